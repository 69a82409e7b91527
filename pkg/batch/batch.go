// Package batch persists one feed page of parsed entries in a single
// transaction.
package batch

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/dtnitsch/fpds-ingest/pkg/db"
	"github.com/dtnitsch/fpds-ingest/pkg/dimension"
	"github.com/dtnitsch/fpds-ingest/pkg/metrics"
	"github.com/dtnitsch/fpds-ingest/pkg/normalize"
	"github.com/dtnitsch/fpds-ingest/pkg/parser"
)

// BatchError wraps a storage failure that rolled back a page.
type BatchError struct {
	Entries int
	Err     error
}

func (e *BatchError) Error() string {
	return fmt.Sprintf("batch of %d entries failed: %v", e.Entries, e.Err)
}

func (e *BatchError) Unwrap() error { return e.Err }

// Writer turns parsed entries into fact, vendor detail and treasury rows.
type Writer struct {
	db       *db.DB
	resolver *dimension.Resolver
	logger   *slog.Logger
	now      func() time.Time
}

func NewWriter(database *db.DB, logger *slog.Logger) *Writer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Writer{
		db:       database,
		resolver: dimension.NewResolver(logger),
		logger:   logger,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// WritePage stores entries and returns how many fact rows were saved.
// Entries already stored, or repeated within the page, are dropped. The
// cache is only updated when the transaction commits.
func (w *Writer) WritePage(ctx context.Context, cache *dimension.Cache, entries []*parser.Entry) (int, error) {
	entries = dedupe(entries)
	if len(entries) == 0 {
		return 0, nil
	}

	ids := make([]string, len(entries))
	for i, e := range entries {
		ids[i] = e.ID
	}
	existing, err := db.ExistingEntryIDs(ctx, w.db, ids)
	if err != nil {
		metrics.BatchFailures.Add(1)
		return 0, &BatchError{Entries: len(entries), Err: err}
	}
	fresh := entries[:0:0]
	for _, e := range entries {
		if !existing[e.ID] {
			fresh = append(fresh, e)
		}
	}
	if dup := len(entries) - len(fresh); dup > 0 {
		metrics.EntriesDuplicate.Add(int64(dup))
		w.logger.Debug("Skipping stored entries", "count", dup)
	}
	if len(fresh) == 0 {
		return 0, nil
	}
	// Facts go in key order like dimension rows, so concurrent pages take
	// their unique index locks in the same order.
	sort.Slice(fresh, func(i, j int) bool { return fresh[i].ID < fresh[j].ID })

	staged := cache.Clone()
	var saved int64
	err = w.db.InTx(ctx, func(tx *db.Tx) error {
		var txErr error
		saved, txErr = w.write(ctx, tx, staged, fresh)
		return txErr
	})
	if err != nil {
		metrics.BatchFailures.Add(1)
		return 0, &BatchError{Entries: len(fresh), Err: err}
	}
	*cache = *staged
	metrics.ActionsSaved.Add(saved)
	return int(saved), nil
}

func (w *Writer) write(ctx context.Context, tx *db.Tx, cache *dimension.Cache, entries []*parser.Entry) (int64, error) {
	refs := make([]normalize.Fields, len(entries))
	for i, e := range entries {
		refs[i] = e.Fields().Refs
	}
	if _, err := w.resolver.Resolve(ctx, tx, cache, dimension.Collect(refs)); err != nil {
		return 0, err
	}

	fetchedAt := w.now()
	cols := db.ActionColumns()
	rows := make([][]any, 0, len(entries))
	kept := make([]*parser.Entry, 0, len(entries))
	for _, e := range entries {
		row, err := w.factRow(e, cols, cache, fetchedAt)
		if err != nil {
			return 0, err
		}
		if row == nil {
			continue
		}
		rows = append(rows, row)
		kept = append(kept, e)
	}
	if len(rows) == 0 {
		return 0, nil
	}

	inserted, err := db.InsertRows(ctx, tx, db.TableActions, cols, rows, "atom_entry_id")
	if err != nil {
		return 0, err
	}
	if inserted < int64(len(rows)) {
		w.logger.Warn("Fewer actions inserted than submitted", "submitted", len(rows), "inserted", inserted)
	}

	keys := make([]string, len(kept))
	for i, e := range kept {
		keys[i] = e.ID
	}
	factIDs, err := db.LookupIDs(ctx, tx, db.TableActions, "atom_entry_id", keys)
	if err != nil {
		return 0, err
	}

	if err := insertVendorDetails(ctx, tx, kept, factIDs); err != nil {
		return 0, err
	}
	if err := insertTreasury(ctx, tx, kept, factIDs); err != nil {
		return 0, err
	}
	return inserted, nil
}

// factRow builds the contract action row for e in cols order. It returns a
// nil row for entries whose vendor could not be resolved.
func (w *Writer) factRow(e *parser.Entry, cols []string, cache *dimension.Cache, fetchedAt time.Time) ([]any, error) {
	f := e.Fields()
	vendorID, ok := cache.ID(dimension.Vendor, f.Refs.String(normalize.RefVendorUEI))
	if !ok {
		w.logger.Warn("Skipping entry without vendor", "entry_id", e.ID, "title", e.Title)
		return nil, nil
	}

	content, err := e.ContentJSON()
	if err != nil {
		return nil, fmt.Errorf("entry %s: %w", e.ID, err)
	}

	values := normalize.Fields{
		"atom_entry_id":              e.ID,
		"atom_title":                 e.Title,
		"atom_feed_modified_date":    e.Modified.UTC(),
		"vendor_id":                  vendorID,
		"agency_id":                  ref(cache, dimension.Agency, f.Refs, normalize.RefContractingAgencyCode),
		"contracting_office_id":      ref(cache, dimension.Office, f.Refs, normalize.RefContractingOfficeCode),
		"funding_agency_id":          ref(cache, dimension.Agency, f.Refs, normalize.RefFundingAgencyCode),
		"funding_office_id":          ref(cache, dimension.Office, f.Refs, normalize.RefFundingOfficeCode),
		"product_or_service_code_id": ref(cache, dimension.PSC, f.Refs, normalize.RefPSCCode),
		"naics_code_id":              ref(cache, dimension.NAICS, f.Refs, normalize.RefNAICSCode),
		"raw_xml_content_sha256":     e.ContentSHA256(),
		"atom_content":               string(content),
		"fetched_at":                 fetchedAt,
	}
	values.Merge(f.Action)

	row := make([]any, len(cols))
	for i, c := range cols {
		row[i] = values[c]
	}
	return row, nil
}

func ref(cache *dimension.Cache, kind dimension.Kind, refs normalize.Fields, column string) any {
	if id, ok := cache.ID(kind, refs.String(column)); ok {
		return id
	}
	return nil
}

func insertVendorDetails(ctx context.Context, tx *db.Tx, entries []*parser.Entry, factIDs map[string]int64) error {
	detailCols := db.VendorDetailColumns()
	cols := append([]string{"contract_action_id"}, detailCols...)
	var rows [][]any
	for _, e := range entries {
		id, ok := factIDs[e.ID]
		vendor := e.Fields().Vendor
		if !ok || vendor == nil {
			continue
		}
		row := make([]any, 0, len(cols))
		row = append(row, id)
		for _, c := range detailCols {
			row = append(row, vendor[c])
		}
		rows = append(rows, row)
	}
	if len(rows) == 0 {
		return nil
	}
	_, err := db.InsertRows(ctx, tx, db.TableVendorDetails, cols, rows, "contract_action_id")
	return err
}

func insertTreasury(ctx context.Context, tx *db.Tx, entries []*parser.Entry, factIDs map[string]int64) error {
	accountCols := db.TreasuryColumns()
	cols := append([]string{"contract_action_id", "account_index"}, accountCols...)
	var rows [][]any
	for _, e := range entries {
		id, ok := factIDs[e.ID]
		if !ok {
			continue
		}
		for i, account := range e.Fields().Treasury {
			row := make([]any, 0, len(cols))
			row = append(row, id, i)
			for _, c := range accountCols {
				row = append(row, account[c])
			}
			rows = append(rows, row)
		}
	}
	if len(rows) == 0 {
		return nil
	}
	_, err := db.InsertRows(ctx, tx, db.TableTreasury, cols, rows, "contract_action_id", "account_index")
	return err
}

// dedupe keeps the first entry for each id.
func dedupe(entries []*parser.Entry) []*parser.Entry {
	seen := make(map[string]bool, len(entries))
	out := make([]*parser.Entry, 0, len(entries))
	for _, e := range entries {
		if seen[e.ID] {
			metrics.EntriesDuplicate.Add(1)
			continue
		}
		seen[e.ID] = true
		out = append(out, e)
	}
	return out
}
