// Package dimension resolves the reference rows an action points at
// (vendors, agencies, offices, PSC and NAICS codes) to their store ids,
// creating rows the first time a business key is seen.
package dimension

import (
	"github.com/dtnitsch/fpds-ingest/pkg/db"
	"github.com/dtnitsch/fpds-ingest/pkg/normalize"
)

// Kind identifies a dimension table.
type Kind int

const (
	Vendor Kind = iota
	Agency
	Office
	PSC
	NAICS
)

// Order is the resolution order. Offices reference agencies, so agencies
// must already be resolved when offices are created.
var Order = []Kind{Vendor, Agency, Office, PSC, NAICS}

type dimTable struct {
	table      string
	keyColumn  string
	nameColumn string
	label      string
}

var dimTables = [...]dimTable{
	Vendor: {db.TableVendors, "uei_sam", "vendor_name", "vendor"},
	Agency: {db.TableAgencies, "agency_code", "agency_name", "agency"},
	Office: {db.TableOffices, "office_code", "office_name", "office"},
	PSC:    {db.TablePSC, "psc_code", "psc_description", "psc"},
	NAICS:  {db.TableNAICS, "naics_code", "naics_description", "naics"},
}

func (k Kind) String() string { return dimTables[k].label }

// Candidate is one observed business key with its label.
type Candidate struct {
	Key        string
	Name       string
	AgencyCode string // offices only
}

// Candidates holds the distinct keys observed in a batch, per kind, in
// first-seen order.
type Candidates struct {
	seen  [len(dimTables)]map[string]Candidate
	order [len(dimTables)][]string
}

func newCandidates() *Candidates {
	c := &Candidates{}
	for i := range c.seen {
		c.seen[i] = map[string]Candidate{}
	}
	return c
}

// add records cand unless its key was already observed; the first
// observation wins.
func (c *Candidates) add(kind Kind, cand Candidate) {
	if cand.Key == "" {
		return
	}
	if _, ok := c.seen[kind][cand.Key]; ok {
		return
	}
	c.seen[kind][cand.Key] = cand
	c.order[kind] = append(c.order[kind], cand.Key)
}

// Keys returns the observed keys of kind in first-seen order.
func (c *Candidates) Keys(kind Kind) []string { return c.order[kind] }

// Get returns the candidate recorded for key.
func (c *Candidates) Get(kind Kind, key string) (Candidate, bool) {
	cand, ok := c.seen[kind][key]
	return cand, ok
}

// Collect gathers dimension candidates from the reference fields of each
// action, in order.
func Collect(refs []normalize.Fields) *Candidates {
	c := newCandidates()
	for _, r := range refs {
		if uei := r.String(normalize.RefVendorUEI); uei != "" {
			name := r.String(normalize.RefVendorName)
			if name == "" {
				name = normalize.DefaultVendorName
			}
			c.add(Vendor, Candidate{Key: uei, Name: name})
		}

		c.add(Agency, Candidate{
			Key:  r.String(normalize.RefContractingAgencyCode),
			Name: r.String(normalize.RefContractingAgencyName),
		})
		c.add(Agency, Candidate{
			Key:  r.String(normalize.RefFundingAgencyCode),
			Name: r.String(normalize.RefFundingAgencyName),
		})

		c.add(Office, Candidate{
			Key:        r.String(normalize.RefContractingOfficeCode),
			Name:       r.String(normalize.RefContractingOfficeName),
			AgencyCode: r.String(normalize.RefContractingAgencyCode),
		})
		c.add(Office, Candidate{
			Key:        r.String(normalize.RefFundingOfficeCode),
			Name:       r.String(normalize.RefFundingOfficeName),
			AgencyCode: r.String(normalize.RefFundingAgencyCode),
		})

		c.add(PSC, Candidate{
			Key:  r.String(normalize.RefPSCCode),
			Name: r.String(normalize.RefPSCDescription),
		})
		c.add(NAICS, Candidate{
			Key:  r.String(normalize.RefNAICSCode),
			Name: r.String(normalize.RefNAICSDescription),
		})
	}
	return c
}

// Cache maps business keys to ids for one pipeline run. It is owned by a
// single goroutine and reused across the pages of that run.
type Cache struct {
	Vendors  map[string]int64
	Agencies map[string]int64
	Offices  map[string]int64
	PSCs     map[string]int64
	NAICS    map[string]int64
}

func NewCache() *Cache {
	return &Cache{
		Vendors:  map[string]int64{},
		Agencies: map[string]int64{},
		Offices:  map[string]int64{},
		PSCs:     map[string]int64{},
		NAICS:    map[string]int64{},
	}
}

func (c *Cache) ids(kind Kind) map[string]int64 {
	switch kind {
	case Vendor:
		return c.Vendors
	case Agency:
		return c.Agencies
	case Office:
		return c.Offices
	case PSC:
		return c.PSCs
	default:
		return c.NAICS
	}
}

// ID returns the cached id of key.
func (c *Cache) ID(kind Kind, key string) (int64, bool) {
	if key == "" {
		return 0, false
	}
	id, ok := c.ids(kind)[key]
	return id, ok
}

// Len is the number of cached keys across all kinds.
func (c *Cache) Len() int {
	return len(c.Vendors) + len(c.Agencies) + len(c.Offices) + len(c.PSCs) + len(c.NAICS)
}

// Clone copies the cache so a failed transaction can discard ids it staged.
func (c *Cache) Clone() *Cache {
	out := NewCache()
	for _, kind := range Order {
		dst := out.ids(kind)
		for k, v := range c.ids(kind) {
			dst[k] = v
		}
	}
	return out
}
