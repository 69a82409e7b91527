package batch

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/dtnitsch/fpds-ingest/internal/feedtest"
	"github.com/dtnitsch/fpds-ingest/pkg/db"
	"github.com/dtnitsch/fpds-ingest/pkg/dimension"
	"github.com/dtnitsch/fpds-ingest/pkg/parser"
)

var day = time.Date(2024, 3, 2, 10, 0, 0, 0, time.UTC)

func setupTestDB(t *testing.T) *db.DB {
	t.Helper()
	database, err := db.Open(context.Background(), ":memory:", 0)
	if err != nil {
		t.Fatalf("failed to create test database: %v", err)
	}
	t.Cleanup(func() { database.Close() })
	return database
}

func entries(t *testing.T, items ...feedtest.Entry) []*parser.Entry {
	t.Helper()
	page, err := parser.ParsePage(feedtest.Page("", items...))
	if err != nil {
		t.Fatalf("ParsePage failed: %v", err)
	}
	return page.Entries
}

func count(t *testing.T, database *db.DB, table string) int64 {
	t.Helper()
	n, err := database.CountRows(context.Background(), table)
	if err != nil {
		t.Fatal(err)
	}
	return n
}

func TestWritePageStoresEntry(t *testing.T) {
	ctx := context.Background()
	database := setupTestDB(t)
	w := NewWriter(database, nil)

	missing := feedtest.Award("P2", time.Time{})
	in := entries(t, feedtest.Award("P1", day), missing)
	if len(in) != 1 {
		t.Fatalf("parsed %d entries, want 1", len(in))
	}

	saved, err := w.WritePage(ctx, dimension.NewCache(), in)
	if err != nil {
		t.Fatalf("WritePage failed: %v", err)
	}
	if saved != 1 {
		t.Errorf("saved = %d, want 1", saved)
	}
	for table, want := range map[string]int64{
		db.TableActions:       1,
		db.TableVendors:       1,
		db.TableAgencies:      1,
		db.TableOffices:       1,
		db.TablePSC:           1,
		db.TableNAICS:         1,
		db.TableVendorDetails: 1,
		db.TableTreasury:      1,
	} {
		if got := count(t, database, table); got != want {
			t.Errorf("%s rows = %d, want %d", table, got, want)
		}
	}

	var (
		piid, sha string
		obligated float64
		vendorID  int64
	)
	err = database.QueryRowContext(ctx, "SELECT piid, raw_xml_content_sha256, obligated_amount, vendor_id FROM "+db.TableActions+" WHERE atom_entry_id = ?", in[0].ID).
		Scan(&piid, &sha, &obligated, &vendorID)
	if err != nil {
		t.Fatal(err)
	}
	if piid != "P1" || sha != in[0].ContentSHA256() || obligated != 1000 || vendorID == 0 {
		t.Errorf("row = %s %s %v %d", piid, sha, obligated, vendorID)
	}
}

func TestWritePageIsIdempotent(t *testing.T) {
	ctx := context.Background()
	database := setupTestDB(t)
	w := NewWriter(database, nil)

	items := []feedtest.Entry{feedtest.Award("P1", day), feedtest.Award("P2", day.Add(time.Hour))}
	if saved, err := w.WritePage(ctx, dimension.NewCache(), entries(t, items...)); err != nil || saved != 2 {
		t.Fatalf("first write: saved=%d err=%v", saved, err)
	}

	// Re-parse so the second run starts from fresh entries and a fresh cache.
	saved, err := w.WritePage(ctx, dimension.NewCache(), entries(t, items...))
	if err != nil {
		t.Fatalf("second write failed: %v", err)
	}
	if saved != 0 {
		t.Errorf("second write saved = %d, want 0", saved)
	}
	if got := count(t, database, db.TableActions); got != 2 {
		t.Errorf("actions = %d, want 2", got)
	}
	if got := count(t, database, db.TableTreasury); got != 2 {
		t.Errorf("treasury = %d, want 2", got)
	}
}

func TestWritePageDropsRepeatsWithinPage(t *testing.T) {
	database := setupTestDB(t)
	w := NewWriter(database, nil)

	e := feedtest.Award("P1", day)
	saved, err := w.WritePage(context.Background(), dimension.NewCache(), entries(t, e, e))
	if err != nil {
		t.Fatal(err)
	}
	if saved != 1 {
		t.Errorf("saved = %d, want 1", saved)
	}
}

func TestWritePageSkipsVendorless(t *testing.T) {
	database := setupTestDB(t)
	w := NewWriter(database, nil)

	e := feedtest.Award("P1", day)
	e.UEI = ""
	saved, err := w.WritePage(context.Background(), dimension.NewCache(), entries(t, e))
	if err != nil {
		t.Fatalf("WritePage failed: %v", err)
	}
	if saved != 0 {
		t.Errorf("saved = %d, want 0", saved)
	}
	if got := count(t, database, db.TableActions); got != 0 {
		t.Errorf("actions = %d, want 0", got)
	}
}

func TestWritePageKeepsCacheAcrossPages(t *testing.T) {
	ctx := context.Background()
	database := setupTestDB(t)
	w := NewWriter(database, nil)

	cache := dimension.NewCache()
	first := feedtest.Award("P1", day)
	second := feedtest.Award("P2", day)
	second.UEI = first.UEI

	if _, err := w.WritePage(ctx, cache, entries(t, first)); err != nil {
		t.Fatal(err)
	}
	vendorID := cache.Vendors[first.UEI]
	if vendorID == 0 {
		t.Fatal("vendor id should be cached after commit")
	}
	if _, err := w.WritePage(ctx, cache, entries(t, second)); err != nil {
		t.Fatal(err)
	}
	if got := count(t, database, db.TableVendors); got != 1 {
		t.Errorf("vendors = %d, want 1", got)
	}
}

func TestWritePageStorageError(t *testing.T) {
	database := setupTestDB(t)
	w := NewWriter(database, nil)
	database.Close()

	cache := dimension.NewCache()
	_, err := w.WritePage(context.Background(), cache, entries(t, feedtest.Award("P1", day)))
	var be *BatchError
	if !errors.As(err, &be) {
		t.Fatalf("err = %v, want *BatchError", err)
	}
	if be.Entries != 1 {
		t.Errorf("Entries = %d, want 1", be.Entries)
	}
	if cache.Len() != 0 {
		t.Error("cache must not change when the batch fails")
	}
}

func TestWriteDuplicatePastPreCheck(t *testing.T) {
	ctx := context.Background()
	database := setupTestDB(t)
	w := NewWriter(database, nil)

	in := entries(t, feedtest.Award("P1", day))
	if saved, err := w.WritePage(ctx, dimension.NewCache(), in); err != nil || saved != 1 {
		t.Fatalf("first write: saved=%d err=%v", saved, err)
	}

	// Another writer committed the same entry between the pre-check and the
	// insert: the transaction still succeeds without new rows.
	var saved int64
	err := database.InTx(ctx, func(tx *db.Tx) error {
		var txErr error
		saved, txErr = w.write(ctx, tx, dimension.NewCache(), entries(t, feedtest.Award("P1", day)))
		return txErr
	})
	if err != nil {
		t.Fatalf("write failed: %v", err)
	}
	if saved != 0 {
		t.Errorf("saved = %d, want 0", saved)
	}
	for table, want := range map[string]int64{
		db.TableActions:       1,
		db.TableVendorDetails: 1,
		db.TableTreasury:      1,
	} {
		if got := count(t, database, table); got != want {
			t.Errorf("%s rows = %d, want %d", table, got, want)
		}
	}
}

func TestWritePageConcurrentWritersShareDimensions(t *testing.T) {
	ctx := context.Background()
	database, err := db.Open(ctx, filepath.Join(t.TempDir(), "race.db"), 8)
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	t.Cleanup(func() { database.Close() })
	w := NewWriter(database, nil)

	const writers = 8
	pages := make([][]*parser.Entry, writers)
	for i := range pages {
		e := feedtest.Award(fmt.Sprintf("P%d", i), day)
		e.UEI = "UEISHARED0001"
		pages[i] = entries(t, e)
	}

	var wg sync.WaitGroup
	errs := make([]error, writers)
	for i := range pages {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = w.WritePage(ctx, dimension.NewCache(), pages[i])
		}(i)
	}
	wg.Wait()

	for i, err := range errs {
		if err != nil {
			t.Errorf("writer %d: %v", i, err)
		}
	}
	for table, want := range map[string]int64{
		db.TableActions:  writers,
		db.TableVendors:  1,
		db.TableAgencies: 1,
		db.TableOffices:  1,
	} {
		if got := count(t, database, table); got != want {
			t.Errorf("%s rows = %d, want %d", table, got, want)
		}
	}
}
