package db

import (
	"context"
	"fmt"
	"strings"

	"github.com/dtnitsch/fpds-ingest/pkg/normalize"
)

// Table names.
const (
	TableVendors       = "fpds_vendors"
	TableAgencies      = "fpds_agencies"
	TableOffices       = "fpds_government_offices"
	TablePSC           = "fpds_product_or_service_codes"
	TableNAICS         = "fpds_naics_codes"
	TableActions       = "fpds_contract_actions"
	TableVendorDetails = "fpds_contract_vendor_details"
	TableTreasury      = "fpds_treasury_accounts"
	TableJobs          = "job_tracker"
)

type column struct {
	name string
	def  string
}

type table struct {
	name   string
	legacy string
	cols   []column
	// constraints are appended after the columns in CREATE TABLE.
	constraints []string
	indexes     []string
}

func idType(d Dialect) string {
	if d == Postgres {
		return "BIGSERIAL PRIMARY KEY"
	}
	return "INTEGER PRIMARY KEY AUTOINCREMENT"
}

func jsonType(d Dialect) string {
	if d == Postgres {
		return "JSONB"
	}
	return "TEXT"
}

func registryColumns(fields []normalize.Field) []column {
	cols := make([]column, 0, len(fields))
	for _, f := range fields {
		cols = append(cols, column{f.Column, f.Kind.SQLType()})
	}
	return cols
}

var timestamps = []column{
	{"created_at", "TIMESTAMP DEFAULT CURRENT_TIMESTAMP"},
	{"updated_at", "TIMESTAMP DEFAULT CURRENT_TIMESTAMP"},
}

// actionGroupColumns are the normalized fields promoted onto the fact row.
func actionGroupColumns() []normalize.Field {
	return append(append([]normalize.Field{}, normalize.CoreFields.Fields...), normalize.Columns(normalize.ActionGroups)...)
}

// ActionColumns lists the insertable columns of the fact table in order.
func ActionColumns() []string {
	cols := []string{
		"atom_entry_id", "atom_title", "atom_feed_modified_date",
		"piid", "modification_number", "record_type",
		"vendor_id", "agency_id", "contracting_office_id",
		"funding_agency_id", "funding_office_id",
		"product_or_service_code_id", "naics_code_id",
	}
	for _, f := range actionGroupColumns() {
		cols = append(cols, f.Column)
	}
	return append(cols, "raw_xml_content_sha256", "atom_content", "fetched_at")
}

// VendorDetailColumns lists the snapshot columns of contract_vendor_details.
func VendorDetailColumns() []string {
	return fieldNames(normalize.Columns(normalize.VendorDetailGroups))
}

// TreasuryColumns lists the account columns of treasury_accounts.
func TreasuryColumns() []string {
	return fieldNames(normalize.TreasuryAccountFields.Fields)
}

func fieldNames(fields []normalize.Field) []string {
	out := make([]string, len(fields))
	for i, f := range fields {
		out[i] = f.Column
	}
	return out
}

func tables(d Dialect) []table {
	jsonCol := jsonType(d)

	actionCols := []column{
		{"id", idType(d)},
		{"atom_entry_id", "TEXT NOT NULL UNIQUE"},
		{"atom_title", "TEXT"},
		{"atom_feed_modified_date", "TIMESTAMP"},
		{"piid", "TEXT NOT NULL"},
		{"modification_number", "TEXT"},
		{"record_type", "TEXT"},
		{"vendor_id", "BIGINT NOT NULL REFERENCES " + TableVendors + "(id)"},
		{"agency_id", "BIGINT REFERENCES " + TableAgencies + "(id)"},
		{"contracting_office_id", "BIGINT REFERENCES " + TableOffices + "(id)"},
		{"funding_agency_id", "BIGINT REFERENCES " + TableAgencies + "(id)"},
		{"funding_office_id", "BIGINT REFERENCES " + TableOffices + "(id)"},
		{"product_or_service_code_id", "BIGINT REFERENCES " + TablePSC + "(id)"},
		{"naics_code_id", "BIGINT REFERENCES " + TableNAICS + "(id)"},
	}
	actionCols = append(actionCols, registryColumns(actionGroupColumns())...)
	actionCols = append(actionCols,
		column{"raw_xml_content_sha256", "TEXT"},
		column{"atom_content", jsonCol},
		column{"fetched_at", "TIMESTAMP"},
		column{"db_updated_at", "TIMESTAMP DEFAULT CURRENT_TIMESTAMP"},
	)

	detailCols := []column{
		{"id", idType(d)},
		{"contract_action_id", "BIGINT NOT NULL UNIQUE REFERENCES " + TableActions + "(id) ON DELETE CASCADE"},
	}
	detailCols = append(detailCols, registryColumns(normalize.Columns(normalize.VendorDetailGroups))...)
	detailCols = append(detailCols, column{"created_at", "TIMESTAMP DEFAULT CURRENT_TIMESTAMP"})

	treasuryCols := []column{
		{"id", idType(d)},
		{"contract_action_id", "BIGINT NOT NULL REFERENCES " + TableActions + "(id) ON DELETE CASCADE"},
		{"account_index", "INTEGER NOT NULL"},
	}
	treasuryCols = append(treasuryCols, registryColumns(normalize.TreasuryAccountFields.Fields)...)
	treasuryCols = append(treasuryCols, column{"created_at", "TIMESTAMP DEFAULT CURRENT_TIMESTAMP"})

	return []table{
		{
			name: TableVendors, legacy: "vendors",
			cols: append([]column{
				{"id", idType(d)},
				{"uei_sam", "TEXT UNIQUE"},
				{"vendor_name", "TEXT NOT NULL"},
			}, timestamps...),
		},
		{
			name: TableAgencies, legacy: "agencies",
			cols: append([]column{
				{"id", idType(d)},
				{"agency_code", "TEXT NOT NULL UNIQUE"},
				{"agency_name", "TEXT"},
			}, timestamps...),
		},
		{
			name: TableOffices, legacy: "government_offices",
			cols: append([]column{
				{"id", idType(d)},
				{"office_code", "TEXT NOT NULL UNIQUE"},
				{"office_name", "TEXT"},
				{"agency_id", "BIGINT REFERENCES " + TableAgencies + "(id)"},
			}, timestamps...),
			indexes: []string{"CREATE INDEX IF NOT EXISTS idx_offices_agency ON " + TableOffices + "(agency_id)"},
		},
		{
			name: TablePSC, legacy: "product_or_service_codes",
			cols: append([]column{
				{"id", idType(d)},
				{"psc_code", "TEXT NOT NULL UNIQUE"},
				{"psc_description", "TEXT"},
			}, timestamps...),
		},
		{
			name: TableNAICS, legacy: "naics_codes",
			cols: append([]column{
				{"id", idType(d)},
				{"naics_code", "TEXT NOT NULL UNIQUE"},
				{"naics_description", "TEXT"},
			}, timestamps...),
		},
		{
			name: TableActions, legacy: "contract_actions",
			cols: actionCols,
			indexes: []string{
				"CREATE INDEX IF NOT EXISTS idx_actions_piid_mod ON " + TableActions + "(piid, modification_number)",
				"CREATE INDEX IF NOT EXISTS idx_actions_content_sha ON " + TableActions + "(raw_xml_content_sha256)",
				"CREATE INDEX IF NOT EXISTS idx_actions_last_modified ON " + TableActions + "(fpds_last_modified_date)",
				"CREATE INDEX IF NOT EXISTS idx_actions_record_type ON " + TableActions + "(record_type)",
				"CREATE INDEX IF NOT EXISTS idx_actions_vendor ON " + TableActions + "(vendor_id)",
			},
		},
		{
			name: TableVendorDetails, legacy: "contract_vendor_details",
			cols: detailCols,
		},
		{
			name: TableTreasury, legacy: "treasury_accounts",
			cols:        treasuryCols,
			constraints: []string{"UNIQUE (contract_action_id, account_index)"},
			indexes:     []string{"CREATE INDEX IF NOT EXISTS idx_treasury_action ON " + TableTreasury + "(contract_action_id)"},
		},
		{
			name: TableJobs,
			cols: append([]column{
				{"id", idType(d)},
				{"job_name", "TEXT NOT NULL UNIQUE"},
				{"status", "TEXT NOT NULL DEFAULT 'idle'"},
				{"last_successful_run_start_time", "TIMESTAMP"},
				{"last_attempted_run_start_time", "TIMESTAMP"},
				{"next_page_url", "TEXT"},
				{"notes", "TEXT"},
				{"failed_dates", "TEXT"},
			}, timestamps...),
		},
	}
}

func (t table) createSQL() string {
	var b strings.Builder
	b.WriteString("CREATE TABLE IF NOT EXISTS ")
	b.WriteString(t.name)
	b.WriteString(" (\n")
	for i, c := range t.cols {
		if i > 0 {
			b.WriteString(",\n")
		}
		b.WriteString("    ")
		b.WriteString(c.name)
		b.WriteString(" ")
		b.WriteString(c.def)
	}
	for _, c := range t.constraints {
		b.WriteString(",\n    ")
		b.WriteString(c)
	}
	b.WriteString("\n)")
	return b.String()
}

// Statements returns the DDL for dialect d in execution order.
func Statements(d Dialect) []string {
	var out []string
	for _, t := range tables(d) {
		out = append(out, t.createSQL())
		out = append(out, t.indexes...)
	}
	return out
}

// InitSchema initializes the database schema
func (db *DB) InitSchema(ctx context.Context) error {
	for _, stmt := range Statements(db.dialect) {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to execute %q: %w", firstLine(stmt), err)
		}
	}
	return nil
}

// Migrate renames pre-prefix tables, creates anything missing and adds
// columns introduced since the tables were created.
func (db *DB) Migrate(ctx context.Context) error {
	for _, t := range tables(db.dialect) {
		if t.legacy == "" {
			continue
		}
		if err := db.renameLegacy(ctx, t.legacy, t.name); err != nil {
			return err
		}
	}

	if err := db.InitSchema(ctx); err != nil {
		return err
	}

	for _, t := range tables(db.dialect) {
		if err := db.addMissingColumns(ctx, t); err != nil {
			return err
		}
	}
	return nil
}

func (db *DB) renameLegacy(ctx context.Context, legacy, name string) error {
	oldExists, err := db.tableExists(ctx, legacy)
	if err != nil {
		return err
	}
	if !oldExists {
		return nil
	}
	newExists, err := db.tableExists(ctx, name)
	if err != nil {
		return err
	}
	if newExists {
		return nil
	}
	if _, err := db.ExecContext(ctx, fmt.Sprintf("ALTER TABLE %s RENAME TO %s", legacy, name)); err != nil {
		return fmt.Errorf("failed to rename %s to %s: %w", legacy, name, err)
	}
	return nil
}

func (db *DB) tableExists(ctx context.Context, name string) (bool, error) {
	query := "SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = ?"
	if db.dialect == Postgres {
		query = "SELECT COUNT(*) FROM information_schema.tables WHERE table_schema = current_schema() AND table_name = ?"
	}
	var n int
	if err := db.QueryRowContext(ctx, query, name).Scan(&n); err != nil {
		return false, fmt.Errorf("failed to check table %s: %w", name, err)
	}
	return n > 0, nil
}

func (db *DB) existingColumns(ctx context.Context, tableName string) (map[string]bool, error) {
	query := "SELECT name FROM pragma_table_info(?)"
	if db.dialect == Postgres {
		query = "SELECT column_name FROM information_schema.columns WHERE table_schema = current_schema() AND table_name = ?"
	}
	rows, err := db.QueryContext(ctx, query, tableName)
	if err != nil {
		return nil, fmt.Errorf("failed to list columns of %s: %w", tableName, err)
	}
	defer rows.Close()

	cols := map[string]bool{}
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("failed to scan column name: %w", err)
		}
		cols[name] = true
	}
	return cols, rows.Err()
}

func (db *DB) addMissingColumns(ctx context.Context, t table) error {
	have, err := db.existingColumns(ctx, t.name)
	if err != nil {
		return err
	}
	for _, c := range t.cols {
		if have[c.name] || !addable(c.def) {
			continue
		}
		stmt := fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s %s", t.name, c.name, c.def)
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to add column %s.%s: %w", t.name, c.name, err)
		}
	}
	return nil
}

// addable reports whether a column can be added to an existing table.
// Keys and non-constant defaults cannot be added by ALTER TABLE in SQLite.
func addable(def string) bool {
	upper := strings.ToUpper(def)
	for _, s := range []string{"PRIMARY KEY", "UNIQUE", "NOT NULL", "CURRENT_TIMESTAMP", "REFERENCES"} {
		if strings.Contains(upper, s) {
			return false
		}
	}
	return true
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}
