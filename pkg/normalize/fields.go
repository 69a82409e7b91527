// Package normalize turns FPDS content subtrees into flat, typed field bags.
//
// Extraction is table driven: every promoted column is a Field naming its
// source XPath(s) and value Kind, and Fields are gathered into Groups that
// mirror the sections of an FPDS award document. The same tables generate the
// warehouse column list, so a field added here is both extracted and stored.
package normalize

import (
	"sort"
	"strings"

	"github.com/antchfx/xmlquery"
	"github.com/antchfx/xpath"
)

// Kind is the value type of a normalized field.
type Kind int

const (
	Text Kind = iota
	Int
	Float
	Date
	Time
	Bool
)

// SQLType returns the column type used for kind k in the warehouse DDL.
func (k Kind) SQLType() string {
	switch k {
	case Int:
		return "BIGINT"
	case Float:
		return "DOUBLE PRECISION"
	case Date:
		return "DATE"
	case Time:
		return "TIMESTAMP"
	case Bool:
		return "BOOLEAN"
	default:
		return "TEXT"
	}
}

// Field is one promoted column. Paths are tried in order and the first one
// that selects a node wins. When Attr is set the attribute value is used
// instead of the node text.
type Field struct {
	Column string
	Kind   Kind
	Attr   string
	Paths  []string

	exprs []*xpath.Expr
}

func field(column string, kind Kind, paths ...string) Field {
	f := Field{Column: column, Kind: kind, Paths: paths}
	for _, p := range paths {
		f.exprs = append(f.exprs, xpath.MustCompile(p))
	}
	return f
}

func attrField(column, attr string, paths ...string) Field {
	f := field(column, Text, paths...)
	f.Attr = attr
	return f
}

// Raw returns the trimmed source text selected by the field, if any node
// matched one of its paths.
func (f Field) Raw(node *xmlquery.Node) (string, bool) {
	if node == nil {
		return "", false
	}
	for _, expr := range f.exprs {
		n := xmlquery.QuerySelector(node, expr)
		if n == nil {
			continue
		}
		if f.Attr != "" {
			return strings.TrimSpace(n.SelectAttr(f.Attr)), true
		}
		return strings.TrimSpace(n.InnerText()), true
	}
	return "", false
}

// Value returns the parsed value of the field. Missing, blank and
// unparseable values all report ok=false.
func (f Field) Value(node *xmlquery.Node) (any, bool) {
	raw, found := f.Raw(node)
	if !found {
		return nil, false
	}
	v, err := f.Kind.Parse(raw)
	if err != nil {
		return nil, false
	}
	return v, true
}

// Group is a set of fields read relative to a common base node.
type Group struct {
	Name   string
	Base   string
	Fields []Field
}

// Extract adds every field of g found under node to out. Fields that are
// absent leave out untouched.
func (g Group) Extract(node *xmlquery.Node, out Fields) {
	base := node
	if g.Base != "" {
		base = xmlquery.FindOne(node, g.Base)
		if base == nil {
			return
		}
	}
	for _, f := range g.Fields {
		if v, ok := f.Value(base); ok {
			out[f.Column] = v
		}
	}
}

// Fields is a flat bag of normalized values keyed by column name. Values are
// string, int64, float64, bool or time.Time.
type Fields map[string]any

// String returns the text value of column, or "" when absent.
func (f Fields) String(column string) string {
	s, _ := f[column].(string)
	return s
}

// Merge copies other into f. Existing keys are overwritten.
func (f Fields) Merge(other Fields) {
	for k, v := range other {
		f[k] = v
	}
}

// Keys returns the column names present in f, sorted.
func (f Fields) Keys() []string {
	keys := make([]string, 0, len(f))
	for k := range f {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Columns flattens groups into their fields, in declaration order.
func Columns(groups []Group) []Field {
	var out []Field
	for _, g := range groups {
		out = append(out, g.Fields...)
	}
	return out
}
