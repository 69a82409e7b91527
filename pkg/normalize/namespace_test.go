package normalize

import (
	"strings"
	"testing"

	"github.com/antchfx/xmlquery"
)

func TestStripNamespaces(t *testing.T) {
	src := `<ns1:award xmlns:ns1="https://www.fpds.gov/FPDS" version="1.5">
  <ns1:awardID><ns1:awardContractID>
    <ns1:agencyID name="DEPT OF THE ARMY">2100</ns1:agencyID>
    <ns1:PIID>P1</ns1:PIID>
  </ns1:awardContractID></ns1:awardID>
  <ns1:dollarValues><ns1:obligatedAmount>$1,234.50</ns1:obligatedAmount></ns1:dollarValues>
</ns1:award>`
	doc, err := xmlquery.Parse(strings.NewReader(src))
	if err != nil {
		t.Fatalf("failed to parse fixture: %v", err)
	}
	StripNamespaces(doc)

	content := xmlquery.FindOne(doc, "/award")
	if content == nil {
		t.Fatal("unprefixed root not found after stripping")
	}
	if got := content.SelectAttr("version"); got != "1.5" {
		t.Errorf("version attr = %q, want 1.5", got)
	}
	for _, a := range content.Attr {
		if a.Name.Space == "xmlns" {
			t.Errorf("xmlns declaration kept: %v", a.Name)
		}
	}
	if out := content.OutputXML(true); strings.Contains(out, "ns1:") {
		t.Errorf("output still prefixed: %s", out)
	}

	f := ActionFields(content)
	if got := f.String("piid"); got != "P1" {
		t.Errorf("piid = %q, want P1", got)
	}
	if got, _ := f["obligated_amount"].(float64); got != 1234.50 {
		t.Errorf("obligated_amount = %v, want 1234.50", got)
	}
	agency := xmlquery.FindOne(content, "//agencyID")
	if agency == nil || agency.SelectAttr("name") != "DEPT OF THE ARMY" {
		t.Error("agencyID name attribute lost")
	}
}

func TestStripNamespacesNil(t *testing.T) {
	StripNamespaces(nil)
}
