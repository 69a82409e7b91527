package dimension

import (
	"bytes"
	"context"
	"database/sql"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/dtnitsch/fpds-ingest/pkg/db"
	"github.com/dtnitsch/fpds-ingest/pkg/normalize"
)

func setupTestDB(t *testing.T) *db.DB {
	t.Helper()
	database, err := db.Open(context.Background(), ":memory:", 0)
	if err != nil {
		t.Fatalf("failed to create test database: %v", err)
	}
	t.Cleanup(func() { database.Close() })
	return database
}

func refs() []normalize.Fields {
	return []normalize.Fields{
		{
			normalize.RefVendorUEI:             "UEI000000001",
			normalize.RefVendorName:            "ACME CORP",
			normalize.RefContractingAgencyCode: "9700",
			normalize.RefContractingAgencyName: "DEPT OF DEFENSE",
			normalize.RefContractingOfficeCode: "W91QUZ",
			normalize.RefContractingOfficeName: "ACC-APG",
			normalize.RefFundingAgencyCode:     "2100",
			normalize.RefPSCCode:               "D302",
			normalize.RefNAICSCode:             "541512",
			normalize.RefNAICSDescription:      "COMPUTER SYSTEMS DESIGN",
		},
		{
			normalize.RefVendorUEI:             "UEI000000001",
			normalize.RefVendorName:            "ACME CORPORATION",
			normalize.RefContractingAgencyCode: "9700",
		},
		{
			normalize.RefVendorUEI: "UEI000000002",
		},
	}
}

func TestCollectFirstObservationWins(t *testing.T) {
	c := Collect(refs())

	if got := c.Keys(Vendor); len(got) != 2 || got[0] != "UEI000000001" {
		t.Fatalf("vendor keys = %v", got)
	}
	v, _ := c.Get(Vendor, "UEI000000001")
	if v.Name != "ACME CORP" {
		t.Errorf("vendor name = %q, want first observed ACME CORP", v.Name)
	}
	v, _ = c.Get(Vendor, "UEI000000002")
	if v.Name != normalize.DefaultVendorName {
		t.Errorf("nameless vendor = %q, want %q", v.Name, normalize.DefaultVendorName)
	}
	if got := c.Keys(Agency); len(got) != 2 {
		t.Errorf("agency keys = %v, want contracting and funding", got)
	}
	o, _ := c.Get(Office, "W91QUZ")
	if o.AgencyCode != "9700" {
		t.Errorf("office agency = %q, want 9700", o.AgencyCode)
	}
}

func TestResolveCreatesOnce(t *testing.T) {
	ctx := context.Background()
	database := setupTestDB(t)
	r := NewResolver(nil)

	cache := NewCache()
	created, err := r.Resolve(ctx, database, cache, Collect(refs()))
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	// 2 vendors, 2 agencies, 1 office, 1 psc, 1 naics
	if created != 7 {
		t.Errorf("created = %d, want 7", created)
	}
	if cache.Len() != 7 {
		t.Errorf("cache holds %d keys, want 7", cache.Len())
	}

	// A fresh run sees the stored rows and creates nothing.
	fresh := NewCache()
	updated := refs()
	updated[0][normalize.RefVendorName] = "RENAMED"
	created, err = r.Resolve(ctx, database, fresh, Collect(updated))
	if err != nil {
		t.Fatalf("second Resolve failed: %v", err)
	}
	if created != 0 {
		t.Errorf("second run created = %d, want 0", created)
	}
	if fresh.Vendors["UEI000000001"] != cache.Vendors["UEI000000001"] {
		t.Error("vendor id changed between runs")
	}

	var name string
	if err := database.QueryRowContext(ctx, "SELECT vendor_name FROM "+db.TableVendors+" WHERE uei_sam = ?", "UEI000000001").Scan(&name); err != nil {
		t.Fatal(err)
	}
	if name != "ACME CORP" {
		t.Errorf("vendor_name = %q, existing rows must not be updated", name)
	}

	var agencyID sql.NullInt64
	if err := database.QueryRowContext(ctx, "SELECT agency_id FROM "+db.TableOffices+" WHERE office_code = ?", "W91QUZ").Scan(&agencyID); err != nil {
		t.Fatal(err)
	}
	if !agencyID.Valid || agencyID.Int64 != cache.Agencies["9700"] {
		t.Errorf("office agency_id = %v, want %d", agencyID, cache.Agencies["9700"])
	}
}

func TestResolveOfficeWithoutAgencyCode(t *testing.T) {
	ctx := context.Background()
	database := setupTestDB(t)

	cache := NewCache()
	in := []normalize.Fields{{
		normalize.RefVendorUEI:         "UEI000000003",
		normalize.RefFundingOfficeCode: "FUND01",
		normalize.RefFundingOfficeName: "FUNDING OFFICE",
		normalize.RefFundingAgencyName: "NO CODE AGENCY",
	}}
	var logs bytes.Buffer
	r := NewResolver(slog.New(slog.NewTextHandler(&logs, nil)))
	if _, err := r.Resolve(ctx, database, cache, Collect(in)); err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if !strings.Contains(logs.String(), "Office has no agency code") {
		t.Errorf("missing agency warning, logs: %s", logs.String())
	}

	if _, ok := cache.ID(Office, "FUND01"); !ok {
		t.Fatal("office should be created")
	}
	var agencyID sql.NullInt64
	if err := database.QueryRowContext(ctx, "SELECT agency_id FROM "+db.TableOffices+" WHERE office_code = ?", "FUND01").Scan(&agencyID); err != nil {
		t.Fatal(err)
	}
	if agencyID.Valid {
		t.Errorf("agency_id = %d, want NULL", agencyID.Int64)
	}
	if len(cache.Agencies) != 0 {
		t.Errorf("agencies = %v, a name without a code is not a key", cache.Agencies)
	}
}

func TestCacheSkipsStore(t *testing.T) {
	ctx := context.Background()
	database := setupTestDB(t)

	cache := NewCache()
	cache.Vendors["UEI000000009"] = 42
	created, err := NewResolver(nil).Resolve(ctx, database, cache, Collect([]normalize.Fields{{normalize.RefVendorUEI: "UEI000000009"}}))
	if err != nil {
		t.Fatal(err)
	}
	if created != 0 {
		t.Errorf("created = %d, cached keys must not be inserted", created)
	}
	n, err := database.CountRows(ctx, db.TableVendors)
	if err != nil {
		t.Fatal(err)
	}
	if n != 0 {
		t.Errorf("vendor rows = %d, want 0", n)
	}
}

func TestResolveOfficeAgencyUnresolved(t *testing.T) {
	ctx := context.Background()
	database := setupTestDB(t)

	cands := newCandidates()
	cands.add(Office, Candidate{Key: "ORPHAN1", Name: "ORPHAN OFFICE", AgencyCode: "0000"})

	cache := NewCache()
	created, err := NewResolver(nil).Resolve(ctx, database, cache, cands)
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if created != 1 {
		t.Errorf("created = %d, want 1", created)
	}
	var agencyID sql.NullInt64
	if err := database.QueryRowContext(ctx, "SELECT agency_id FROM "+db.TableOffices+" WHERE office_code = ?", "ORPHAN1").Scan(&agencyID); err != nil {
		t.Fatal(err)
	}
	if agencyID.Valid {
		t.Errorf("agency_id = %d, want NULL for an unknown agency code", agencyID.Int64)
	}
}

func TestResolveInsertsInKeyOrder(t *testing.T) {
	ctx := context.Background()
	database := setupTestDB(t)

	cands := newCandidates()
	for _, code := range []string{"9700", "4700", "2100"} {
		cands.add(Agency, Candidate{Key: code})
	}
	cache := NewCache()
	if _, err := NewResolver(nil).Resolve(ctx, database, cache, cands); err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if !(cache.Agencies["2100"] < cache.Agencies["4700"] && cache.Agencies["4700"] < cache.Agencies["9700"]) {
		t.Errorf("agency ids = %v, want ascending with the code", cache.Agencies)
	}
}

func TestResolveConcurrentWriters(t *testing.T) {
	ctx := context.Background()
	database, err := db.Open(ctx, filepath.Join(t.TempDir(), "dims.db"), 8)
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	t.Cleanup(func() { database.Close() })
	r := NewResolver(nil)

	const writers = 8
	caches := make([]*Cache, writers)
	errs := make([]error, writers)
	var wg sync.WaitGroup
	for i := 0; i < writers; i++ {
		caches[i] = NewCache()
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = database.InTx(ctx, func(tx *db.Tx) error {
				_, err := r.Resolve(ctx, tx, caches[i], Collect(refs()))
				return err
			})
		}(i)
	}
	wg.Wait()

	for i, err := range errs {
		if err != nil {
			t.Fatalf("writer %d: %v", i, err)
		}
	}
	for table, want := range map[string]int64{
		db.TableVendors:  2,
		db.TableAgencies: 2,
		db.TableOffices:  1,
	} {
		n, err := database.CountRows(ctx, table)
		if err != nil {
			t.Fatal(err)
		}
		if n != want {
			t.Errorf("%s rows = %d, want %d", table, n, want)
		}
	}
	for i := 1; i < writers; i++ {
		if caches[i].Vendors["UEI000000001"] != caches[0].Vendors["UEI000000001"] {
			t.Errorf("writer %d resolved a different vendor id", i)
		}
	}
}
