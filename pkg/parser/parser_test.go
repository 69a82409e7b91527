package parser

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"os"
	"strings"
	"testing"
	"time"
)

func loadPage(t *testing.T) *Page {
	t.Helper()
	body, err := os.ReadFile("testdata/page.xml")
	if err != nil {
		t.Fatalf("failed to read fixture: %v", err)
	}
	page, err := ParsePage(body)
	if err != nil {
		t.Fatalf("ParsePage failed: %v", err)
	}
	return page
}

func TestParsePage(t *testing.T) {
	page := loadPage(t)

	if len(page.Entries) != 2 {
		t.Fatalf("got %d entries, want 2", len(page.Entries))
	}
	if len(page.Skipped) != 2 {
		t.Fatalf("got %d skipped, want 2: %+v", len(page.Skipped), page.Skipped)
	}
	if page.Skipped[0].Index != 1 || page.Skipped[0].Reason != "missing modified timestamp" {
		t.Errorf("skipped[0] = %+v", page.Skipped[0])
	}
	if page.Skipped[1].Index != 2 || !strings.HasPrefix(page.Skipped[1].Reason, "malformed entry xml") {
		t.Errorf("skipped[1] = %+v", page.Skipped[1])
	}

	wantNext := "/ezsearch/FEEDS/ATOM?FEEDNAME=PUBLIC&q=LAST_MOD_DATE:[2024/03/02,2024/03/02]&start=10"
	if page.Next != wantNext {
		t.Errorf("Next = %q, want %q", page.Next, wantNext)
	}

	award := page.Entries[0]
	if award.Title != "DEFINITIVE CONTRACT W912DY24C0001 awarded to ACME BRIDGES LLC" {
		t.Errorf("Title = %q", award.Title)
	}
	if award.RecordType != "award" {
		t.Errorf("RecordType = %q, want award", award.RecordType)
	}
	if got := page.Entries[1].RecordType; got != "IDV" {
		t.Errorf("second RecordType = %q, want IDV", got)
	}
}

func TestEntryIDMatchesTitleAndModified(t *testing.T) {
	page := loadPage(t)
	award := page.Entries[0]

	sum := sha256.Sum256([]byte("DEFINITIVE CONTRACT W912DY24C0001 awarded to ACME BRIDGES LLC-2024-03-02T10:11:12.345-05:00"))
	want := hex.EncodeToString(sum[:])
	if award.ID != want {
		t.Errorf("ID = %s, want %s", award.ID, want)
	}

	same := EntryID(award.Title, award.Modified)
	if same != award.ID {
		t.Error("identical title and modified must produce identical ids")
	}
	other := EntryID(award.Title, award.Modified.Add(time.Millisecond))
	if other == award.ID {
		t.Error("a different timestamp must produce a different id")
	}
}

func TestEntryIDUTCOffset(t *testing.T) {
	mod := time.Date(2024, 1, 2, 3, 4, 5, 6_000_000, time.UTC)
	sum := sha256.Sum256([]byte("T-2024-01-02T03:04:05.006+00:00"))
	if got := EntryID("T", mod); got != hex.EncodeToString(sum[:]) {
		t.Errorf("EntryID(UTC) = %s", got)
	}
}

func TestEntryFields(t *testing.T) {
	page := loadPage(t)
	n := page.Entries[0].Fields()

	if got := n.Action.String("piid"); got != "W912DY24C0001" {
		t.Errorf("piid = %q", got)
	}
	if got := n.Refs.String("vendor_uei"); got != "ABCDEF123456" {
		t.Errorf("vendor_uei = %q", got)
	}
	if n.Vendor == nil || n.Vendor.String("vendor_name") != "ACME BRIDGES LLC" {
		t.Errorf("vendor details = %v", n.Vendor)
	}
	if n != page.Entries[0].Fields() {
		t.Error("Fields should be computed once")
	}

	idv := page.Entries[1].Fields()
	if got := idv.Action.String("modification_number"); got != "PO0004" {
		t.Errorf("idv modification_number = %q", got)
	}
	if idv.Vendor != nil {
		t.Error("idv without vendor should have no vendor details")
	}
}

func TestEntryContentDigestAndJSON(t *testing.T) {
	page := loadPage(t)
	e := page.Entries[0]

	if len(e.ContentSHA256()) != 64 {
		t.Errorf("ContentSHA256 length = %d", len(e.ContentSHA256()))
	}
	if e.ContentSHA256() == page.Entries[1].ContentSHA256() {
		t.Error("different content must hash differently")
	}

	b, err := e.ContentJSON()
	if err != nil {
		t.Fatalf("ContentJSON failed: %v", err)
	}
	var doc map[string]any
	if err := json.Unmarshal(b, &doc); err != nil {
		t.Fatalf("ContentJSON is not valid json: %v", err)
	}
	if !strings.Contains(string(b), "W912DY24C0001") {
		t.Errorf("json does not carry the PIID: %s", b)
	}
}

func TestParsePageRejectsNonFeed(t *testing.T) {
	_, err := ParsePage([]byte("<html><head><title>Maintenance</title></head></html>"))
	if !errors.Is(err, ErrNotFeed) {
		t.Errorf("err = %v, want ErrNotFeed", err)
	}
}

func TestParsePageLastPage(t *testing.T) {
	body := `<feed xmlns="http://www.w3.org/2005/Atom"><title>t</title><link rel="first" href="x"/></feed>`
	page, err := ParsePage([]byte(body))
	if err != nil {
		t.Fatalf("ParsePage failed: %v", err)
	}
	if page.Next != "" || len(page.Entries) != 0 {
		t.Errorf("page = %+v, want empty last page", page)
	}
}
