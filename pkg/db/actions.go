package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// ExistingEntryIDs returns the subset of atom entry ids already stored.
func ExistingEntryIDs(ctx context.Context, q Querier, ids []string) (map[string]bool, error) {
	found, err := LookupIDs(ctx, q, TableActions, "atom_entry_id", ids)
	if err != nil {
		return nil, err
	}
	out := make(map[string]bool, len(found))
	for id := range found {
		out[id] = true
	}
	return out, nil
}

// LatestModifiedDate returns the most recent fpds_last_modified_date stored.
// ok is false when the fact table has no dated rows.
func (db *DB) LatestModifiedDate(ctx context.Context) (latest time.Time, ok bool, err error) {
	var t sql.NullTime
	err = db.QueryRowContext(ctx, `
		SELECT fpds_last_modified_date FROM `+TableActions+`
		WHERE fpds_last_modified_date IS NOT NULL
		ORDER BY fpds_last_modified_date DESC
		LIMIT 1
	`).Scan(&t)
	if errors.Is(err, sql.ErrNoRows) {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, fmt.Errorf("failed to query latest modified date: %w", err)
	}
	return t.Time.UTC(), t.Valid, nil
}

// CountActionsModifiedOn counts fact rows whose fpds_last_modified_date falls
// on day (UTC).
func (db *DB) CountActionsModifiedOn(ctx context.Context, day time.Time) (int, error) {
	y, m, d := day.UTC().Date()
	from := time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
	to := from.AddDate(0, 0, 1)

	var n int
	err := db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM `+TableActions+`
		WHERE fpds_last_modified_date >= ? AND fpds_last_modified_date < ?
	`, from, to).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count actions on %s: %w", from.Format("2006-01-02"), err)
	}
	return n, nil
}

// CountRows returns the number of rows in table.
func (db *DB) CountRows(ctx context.Context, table string) (int64, error) {
	var n int64
	if err := db.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+table).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count %s: %w", table, err)
	}
	return n, nil
}
