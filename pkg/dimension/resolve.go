package dimension

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"github.com/dtnitsch/fpds-ingest/pkg/db"
	"github.com/dtnitsch/fpds-ingest/pkg/metrics"
	"github.com/dtnitsch/fpds-ingest/pkg/normalize"
)

// Resolver creates and looks up dimension rows.
type Resolver struct {
	logger *slog.Logger
}

func NewResolver(logger *slog.Logger) *Resolver {
	if logger == nil {
		logger = slog.Default()
	}
	return &Resolver{logger: logger}
}

// Resolve makes sure every candidate key has an id in cache. Keys already
// cached are skipped, stored keys are loaded, and the rest are inserted. An
// existing row is never modified. It returns how many rows were created.
func (r *Resolver) Resolve(ctx context.Context, q db.Querier, cache *Cache, cands *Candidates) (int, error) {
	created := 0
	for _, kind := range Order {
		n, err := r.resolveKind(ctx, q, cache, cands, kind)
		if err != nil {
			return created, fmt.Errorf("failed to resolve %s: %w", kind, err)
		}
		created += n
	}
	if created > 0 {
		metrics.DimensionsCreated.Add(int64(created))
	}
	return created, nil
}

func (r *Resolver) resolveKind(ctx context.Context, q db.Querier, cache *Cache, cands *Candidates, kind Kind) (int, error) {
	ids := cache.ids(kind)
	var pending []string
	for _, key := range cands.Keys(kind) {
		if _, ok := ids[key]; !ok {
			pending = append(pending, key)
		}
	}
	if len(pending) == 0 {
		return 0, nil
	}

	dt := dimTables[kind]
	found, err := db.LookupIDs(ctx, q, dt.table, dt.keyColumn, pending)
	if err != nil {
		return 0, err
	}
	var missing []string
	for _, key := range pending {
		if id, ok := found[key]; ok {
			ids[key] = id
		} else {
			missing = append(missing, key)
		}
	}
	if len(missing) == 0 {
		return 0, nil
	}
	// Concurrent transactions insert keys in the same order so their
	// uniqueness waits cannot deadlock.
	sort.Strings(missing)

	cols := []string{dt.keyColumn, dt.nameColumn}
	if kind == Office {
		cols = append(cols, "agency_id")
	}
	rows := make([][]any, 0, len(missing))
	for _, key := range missing {
		cand, _ := cands.Get(kind, key)
		row := []any{key, nullable(kind, cand.Name)}
		if kind == Office {
			row = append(row, r.officeAgency(cache, cand))
		}
		rows = append(rows, row)
	}

	inserted, err := db.InsertRows(ctx, q, dt.table, cols, rows, dt.keyColumn)
	if err != nil {
		return 0, err
	}

	// Rows inserted concurrently by another writer are picked up here too.
	found, err = db.LookupIDs(ctx, q, dt.table, dt.keyColumn, missing)
	if err != nil {
		return 0, err
	}
	for _, key := range missing {
		id, ok := found[key]
		if !ok {
			r.logger.Warn("Dimension row not found after insert", "kind", kind.String(), "key", key)
			continue
		}
		ids[key] = id
	}
	return int(inserted), nil
}

// officeAgency returns the agency id for a new office row, or nil when the
// agency could not be resolved.
func (r *Resolver) officeAgency(cache *Cache, cand Candidate) any {
	if cand.AgencyCode == "" {
		r.logger.Warn("Office has no agency code", "office_code", cand.Key)
		return nil
	}
	if id, ok := cache.ID(Agency, cand.AgencyCode); ok {
		return id
	}
	r.logger.Warn("Office agency not resolved", "office_code", cand.Key, "agency_code", cand.AgencyCode)
	return nil
}

func nullable(kind Kind, name string) any {
	if name != "" {
		return name
	}
	if kind == Vendor {
		return normalize.DefaultVendorName
	}
	return nil
}
