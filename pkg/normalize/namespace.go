package normalize

import "github.com/antchfx/xmlquery"

// StripNamespaces clears element and attribute prefixes under n and drops
// xmlns declarations, so the unprefixed XPaths in this package match the
// feed's ns1: content.
func StripNamespaces(n *xmlquery.Node) {
	if n == nil {
		return
	}
	if n.Type == xmlquery.ElementNode {
		n.Prefix = ""
		n.NamespaceURI = ""
		attrs := n.Attr[:0]
		for _, a := range n.Attr {
			if a.Name.Space == "xmlns" || (a.Name.Space == "" && a.Name.Local == "xmlns") {
				continue
			}
			a.Name.Space = ""
			a.NamespaceURI = ""
			attrs = append(attrs, a)
		}
		n.Attr = attrs
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		StripNamespaces(c)
	}
}
