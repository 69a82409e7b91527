// Package parser splits an FPDS ATOM page into entries and exposes each
// entry's identity, content subtree and normalized fields.
package parser

import (
	"bytes"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/antchfx/xmlquery"
	"github.com/clbanning/mxj/v2"

	"github.com/dtnitsch/fpds-ingest/internal/common"
	"github.com/dtnitsch/fpds-ingest/pkg/normalize"
)

// ModifiedLayout is the ISO-8601 millisecond layout fed into the entry hash.
const ModifiedLayout = "2006-01-02T15:04:05.000-07:00"

// ErrNotFeed is returned for bodies that are not an ATOM feed document.
var ErrNotFeed = errors.New("response is not an ATOM feed")

var (
	entryPattern = regexp.MustCompile(`(?s)<(?:[\w.-]+:)?entry[\s>].*?</(?:[\w.-]+:)?entry\s*>`)
	feedPattern  = regexp.MustCompile(`<(?:[\w.-]+:)?feed[\s>]`)
)

// Page is one parsed feed page.
type Page struct {
	Next    string
	Entries []*Entry
	Skipped []Skip
}

// Skip records an entry that was dropped and why.
type Skip struct {
	Index  int
	Reason string
}

// Normalized is the extracted field set of one entry.
type Normalized struct {
	Action   normalize.Fields
	Refs     normalize.Fields
	Vendor   normalize.Fields
	Treasury []normalize.Fields
}

// Entry is one accepted feed entry.
type Entry struct {
	ID         string
	Title      string
	Modified   time.Time
	RecordType string
	Content    *xmlquery.Node

	once       sync.Once
	normalized *Normalized
	contentXML string
}

// EntryID is the idempotency key of an entry: sha256(title + "-" + modified).
func EntryID(title string, modified time.Time) string {
	return common.ContentHash([]byte(title + "-" + modified.Format(ModifiedLayout)))
}

// ContentXML returns the serialized content subtree.
func (e *Entry) ContentXML() string {
	if e.contentXML == "" {
		e.contentXML = e.Content.OutputXML(true)
	}
	return e.contentXML
}

// ContentSHA256 is the hex digest of the content subtree.
func (e *Entry) ContentSHA256() string {
	return common.ContentHash([]byte(e.ContentXML()))
}

// ContentJSON renders the content subtree as a JSON document.
func (e *Entry) ContentJSON() ([]byte, error) {
	m, err := mxj.NewMapXml([]byte(e.ContentXML()))
	if err != nil {
		return nil, fmt.Errorf("failed to map content xml: %w", err)
	}
	b, err := m.Json()
	if err != nil {
		return nil, fmt.Errorf("failed to encode content json: %w", err)
	}
	return b, nil
}

// Fields extracts the normalized field groups on first use.
func (e *Entry) Fields() *Normalized {
	e.once.Do(func() {
		n := &Normalized{
			Action:   normalize.ActionFields(e.Content),
			Refs:     normalize.Refs(e.Content),
			Treasury: normalize.TreasuryAccounts(e.Content),
		}
		if v, ok := normalize.VendorDetails(e.Content); ok {
			n.Vendor = v
		}
		e.normalized = n
	})
	return e.normalized
}

// ParsePage splits body into entries. Each entry is parsed on its own, so a
// malformed entry is reported in Skipped without affecting the others.
func ParsePage(body []byte) (*Page, error) {
	if !feedPattern.Match(body) {
		return nil, ErrNotFeed
	}

	locs := entryPattern.FindAllIndex(body, -1)
	page := &Page{}

	var header bytes.Buffer
	prev := 0
	for i, loc := range locs {
		header.Write(body[prev:loc[0]])
		prev = loc[1]

		entry, reason := parseEntry(body[loc[0]:loc[1]])
		if entry == nil {
			page.Skipped = append(page.Skipped, Skip{Index: i, Reason: reason})
			continue
		}
		page.Entries = append(page.Entries, entry)
	}
	header.Write(body[prev:])

	next, err := nextLink(header.Bytes())
	if err != nil {
		return nil, err
	}
	page.Next = next
	return page, nil
}

func nextLink(header []byte) (string, error) {
	doc, err := xmlquery.Parse(bytes.NewReader(header))
	if err != nil {
		return "", fmt.Errorf("failed to parse feed header: %w", err)
	}
	normalize.StripNamespaces(doc)
	for _, link := range xmlquery.Find(doc, "//feed/link") {
		if link.SelectAttr("rel") == "next" {
			return strings.TrimSpace(link.SelectAttr("href")), nil
		}
	}
	return "", nil
}

func parseEntry(raw []byte) (*Entry, string) {
	doc, err := xmlquery.Parse(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Sprintf("malformed entry xml: %v", err)
	}
	normalize.StripNamespaces(doc)

	titleNode := xmlquery.FindOne(doc, "//entry/title")
	if titleNode == nil || strings.TrimSpace(titleNode.InnerText()) == "" {
		return nil, "missing title"
	}
	title := strings.TrimSpace(titleNode.InnerText())

	modNode := xmlquery.FindOne(doc, "//entry/modified")
	if modNode == nil {
		return nil, "missing modified timestamp"
	}
	modified, err := normalize.ParseTime(modNode.InnerText())
	if err != nil {
		return nil, fmt.Sprintf("unparseable modified timestamp: %v", err)
	}

	content := xmlquery.FindOne(doc, "//entry/content/*")
	if content == nil {
		return nil, "missing content subtree"
	}

	return &Entry{
		ID:         EntryID(title, modified),
		Title:      title,
		Modified:   modified,
		RecordType: normalize.RecordType(content),
		Content:    content,
	}, ""
}
