// Package feedtest renders small FPDS ATOM pages for tests.
package feedtest

import (
	"bytes"
	"fmt"
	"html"
	"time"
)

// Entry describes one award entry. Zero fields are omitted from the output.
type Entry struct {
	Title       string
	Modified    time.Time
	PIID        string
	Mod         string
	UEI         string
	VendorName  string
	AgencyCode  string
	AgencyName  string
	OfficeCode  string
	OfficeName  string
	PSC         string
	NAICS       string
	Obligated   string
	Treasury    []string // agency identifiers, one account each
	OmitContent bool
}

// Award returns a complete entry for piid modified at ts.
func Award(piid string, ts time.Time) Entry {
	return Entry{
		Title:      "DEFINITIVE CONTRACT " + piid,
		Modified:   ts,
		PIID:       piid,
		Mod:        "0",
		UEI:        "UEI" + piid,
		VendorName: "VENDOR " + piid,
		AgencyCode: "9700",
		AgencyName: "DEPT OF DEFENSE",
		OfficeCode: "W91QUZ",
		OfficeName: "ACC-APG",
		PSC:        "D302",
		NAICS:      "541512",
		Obligated:  "1000.00",
		Treasury:   []string{"097"},
	}
}

// Page renders a feed document. next, when set, becomes the rel=next href.
func Page(next string, entries ...Entry) []byte {
	var b bytes.Buffer
	b.WriteString(`<?xml version="1.0" encoding="UTF-8"?>` + "\n")
	b.WriteString(`<feed xmlns="http://www.w3.org/2005/Atom">` + "\n")
	b.WriteString("  <title>FPDS-NG ATOM Feed</title>\n")
	if next != "" {
		fmt.Fprintf(&b, "  <link rel=\"next\" href=\"%s\"/>\n", html.EscapeString(next))
	}
	for _, e := range entries {
		writeEntry(&b, e)
	}
	b.WriteString("</feed>\n")
	return b.Bytes()
}

func writeEntry(b *bytes.Buffer, e Entry) {
	b.WriteString("  <entry>\n")
	fmt.Fprintf(b, "    <title>%s</title>\n", html.EscapeString(e.Title))
	if !e.Modified.IsZero() {
		fmt.Fprintf(b, "    <modified>%s</modified>\n", e.Modified.Format("2006-01-02T15:04:05.000-07:00"))
	}
	if e.OmitContent {
		b.WriteString("  </entry>\n")
		return
	}
	b.WriteString(`    <content xmlns:ns1="https://www.fpds.gov/FPDS" type="application/xml">` + "\n")
	b.WriteString(`      <ns1:award version="1.5">` + "\n")
	fmt.Fprintf(b, "        <ns1:awardID><ns1:awardContractID><ns1:PIID>%s</ns1:PIID><ns1:modNumber>%s</ns1:modNumber></ns1:awardContractID></ns1:awardID>\n", e.PIID, e.Mod)
	if e.Obligated != "" {
		fmt.Fprintf(b, "        <ns1:dollarValues><ns1:obligatedAmount>%s</ns1:obligatedAmount></ns1:dollarValues>\n", e.Obligated)
	}
	if e.AgencyCode != "" || e.OfficeCode != "" {
		b.WriteString("        <ns1:purchaserInformation>")
		if e.AgencyCode != "" {
			fmt.Fprintf(b, `<ns1:contractingOfficeAgencyID name="%s">%s</ns1:contractingOfficeAgencyID>`, html.EscapeString(e.AgencyName), e.AgencyCode)
		}
		if e.OfficeCode != "" {
			fmt.Fprintf(b, `<ns1:contractingOfficeID name="%s">%s</ns1:contractingOfficeID>`, html.EscapeString(e.OfficeName), e.OfficeCode)
		}
		b.WriteString("</ns1:purchaserInformation>\n")
	}
	if e.PSC != "" || e.NAICS != "" {
		b.WriteString("        <ns1:productOrServiceInformation>")
		if e.PSC != "" {
			fmt.Fprintf(b, `<ns1:productOrServiceCode description="IT SERVICES">%s</ns1:productOrServiceCode>`, e.PSC)
		}
		if e.NAICS != "" {
			fmt.Fprintf(b, `<ns1:principalNAICSCode description="COMPUTER SYSTEMS DESIGN">%s</ns1:principalNAICSCode>`, e.NAICS)
		}
		b.WriteString("</ns1:productOrServiceInformation>\n")
	}
	if e.UEI != "" || e.VendorName != "" {
		b.WriteString("        <ns1:vendor>")
		if e.VendorName != "" {
			fmt.Fprintf(b, "<ns1:vendorHeader><ns1:vendorName>%s</ns1:vendorName></ns1:vendorHeader>", html.EscapeString(e.VendorName))
		}
		b.WriteString("<ns1:vendorSiteDetails><ns1:vendorLocation><ns1:city>HUNTSVILLE</ns1:city></ns1:vendorLocation>")
		if e.UEI != "" {
			fmt.Fprintf(b, "<ns1:entityIdentifiers><ns1:vendorUEIInformation><ns1:UEI>%s</ns1:UEI></ns1:vendorUEIInformation></ns1:entityIdentifiers>", e.UEI)
		}
		b.WriteString("</ns1:vendorSiteDetails></ns1:vendor>\n")
	}
	if !e.Modified.IsZero() {
		fmt.Fprintf(b, "        <ns1:transactionInformation><ns1:lastModifiedDate>%s</ns1:lastModifiedDate></ns1:transactionInformation>\n", e.Modified.UTC().Format("2006-01-02 15:04:05"))
	}
	if len(e.Treasury) > 0 {
		b.WriteString("        <ns1:listOfTreasuryAccounts>")
		for _, id := range e.Treasury {
			fmt.Fprintf(b, "<ns1:treasuryAccount><ns1:treasuryAccountSymbol><ns1:agencyIdentifier>%s</ns1:agencyIdentifier></ns1:treasuryAccountSymbol></ns1:treasuryAccount>", id)
		}
		b.WriteString("</ns1:listOfTreasuryAccounts>\n")
	}
	b.WriteString("      </ns1:award>\n")
	b.WriteString("    </content>\n")
	b.WriteString("  </entry>\n")
}
