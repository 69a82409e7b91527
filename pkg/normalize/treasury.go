package normalize

import "github.com/antchfx/xmlquery"

// TreasuryAccountFields are read relative to one <treasuryAccount> element.
var TreasuryAccountFields = Group{Name: "treasury_account", Fields: []Field{
	texts("agency_identifier", ".//treasuryAccountSymbol/agencyIdentifier"),
	texts("main_account_code", ".//treasuryAccountSymbol/mainAccountCode"),
	texts("sub_account_code", ".//treasuryAccountSymbol/subAccountCode"),
	texts("sub_level_prefix_code", ".//treasuryAccountSymbol/subLevelPrefixCode"),
	texts("allocation_transfer_agency_identifier", ".//treasuryAccountSymbol/allocationTransferAgencyIdentifier"),
	texts("beginning_period_of_availability", ".//treasuryAccountSymbol/beginningPeriodOfAvailability"),
	texts("ending_period_of_availability", ".//treasuryAccountSymbol/endingPeriodOfAvailability"),
	texts("availability_type_code", ".//treasuryAccountSymbol/availabilityTypeCode"),
	texts("initiative", "./initiative"),
}}

// TreasuryAccounts returns one field bag per non-empty treasury account, in
// document order.
func TreasuryAccounts(content *xmlquery.Node) []Fields {
	if content == nil {
		return nil
	}
	var out []Fields
	for _, ta := range xmlquery.Find(content, ".//listOfTreasuryAccounts/treasuryAccount") {
		acc := Fields{}
		TreasuryAccountFields.Extract(ta, acc)
		if len(acc) > 0 {
			out = append(out, acc)
		}
	}
	return out
}
