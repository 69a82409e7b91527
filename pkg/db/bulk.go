package db

import (
	"context"
	"fmt"
	"strings"
)

const (
	// InsertChunk is the number of rows per multi-row INSERT.
	InsertChunk = 100
	// LookupChunk is the number of keys per IN (...) lookup.
	LookupChunk = 500
)

// InsertRows bulk-inserts rows into table. When conflict names one or more
// unique columns, conflicting rows are skipped. It returns the number of rows
// actually inserted.
func InsertRows(ctx context.Context, q Querier, table string, cols []string, rows [][]any, conflict ...string) (int64, error) {
	var inserted int64
	for start := 0; start < len(rows); start += InsertChunk {
		end := min(start+InsertChunk, len(rows))
		chunk := rows[start:end]

		var b strings.Builder
		fmt.Fprintf(&b, "INSERT INTO %s (%s) VALUES ", table, strings.Join(cols, ", "))
		args := make([]any, 0, len(chunk)*len(cols))
		row := "(" + placeholders(len(cols)) + ")"
		for i, r := range chunk {
			if len(r) != len(cols) {
				return inserted, fmt.Errorf("row %d has %d values for %d columns", start+i, len(r), len(cols))
			}
			if i > 0 {
				b.WriteString(", ")
			}
			b.WriteString(row)
			args = append(args, r...)
		}
		if len(conflict) > 0 {
			fmt.Fprintf(&b, " ON CONFLICT (%s) DO NOTHING", strings.Join(conflict, ", "))
		}

		res, err := q.ExecContext(ctx, b.String(), args...)
		if err != nil {
			return inserted, fmt.Errorf("failed to insert into %s: %w", table, err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return inserted, fmt.Errorf("failed to count inserted rows: %w", err)
		}
		inserted += n
	}
	return inserted, nil
}

// LookupIDs maps each key found in table.keyCol to its id.
func LookupIDs(ctx context.Context, q Querier, table, keyCol string, keys []string) (map[string]int64, error) {
	out := make(map[string]int64, len(keys))
	for start := 0; start < len(keys); start += LookupChunk {
		end := min(start+LookupChunk, len(keys))
		chunk := keys[start:end]

		query := fmt.Sprintf("SELECT %s, id FROM %s WHERE %s IN (%s)", keyCol, table, keyCol, placeholders(len(chunk)))
		args := make([]any, len(chunk))
		for i, k := range chunk {
			args[i] = k
		}

		rows, err := q.QueryContext(ctx, query, args...)
		if err != nil {
			return nil, fmt.Errorf("failed to look up %s: %w", table, err)
		}
		for rows.Next() {
			var key string
			var id int64
			if err := rows.Scan(&key, &id); err != nil {
				rows.Close()
				return nil, fmt.Errorf("failed to scan %s id: %w", table, err)
			}
			out[key] = id
		}
		err = rows.Err()
		rows.Close()
		if err != nil {
			return nil, fmt.Errorf("failed to read %s ids: %w", table, err)
		}
	}
	return out, nil
}
