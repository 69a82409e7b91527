package normalize

import "github.com/antchfx/xmlquery"

// Ref columns carry the business keys and labels of the dimensions an action
// references. They are not stored on the fact row.
const (
	RefVendorUEI             = "vendor_uei"
	RefVendorName            = "vendor_name"
	RefContractingAgencyCode = "contracting_agency_code"
	RefContractingAgencyName = "contracting_agency_name"
	RefFundingAgencyCode     = "funding_agency_code"
	RefFundingAgencyName     = "funding_agency_name"
	RefContractingOfficeCode = "contracting_office_code"
	RefContractingOfficeName = "contracting_office_name"
	RefFundingOfficeCode     = "funding_office_code"
	RefFundingOfficeName     = "funding_office_name"
	RefPSCCode               = "psc_code"
	RefPSCDescription        = "psc_description"
	RefNAICSCode             = "naics_code"
	RefNAICSDescription      = "naics_description"
)

var refGroup = Group{Name: "refs", Fields: []Field{
	texts(RefVendorUEI, ".//vendorSiteDetails/entityIdentifiers/vendorUEIInformation/UEI"),
	texts(RefVendorName, ".//vendorHeader/vendorName"),
	texts(RefContractingAgencyCode, ".//purchaserInformation/contractingOfficeAgencyID"),
	attrField(RefContractingAgencyName, "name", ".//purchaserInformation/contractingOfficeAgencyID"),
	texts(RefFundingAgencyCode, ".//purchaserInformation/fundingRequestingAgencyID"),
	attrField(RefFundingAgencyName, "name", ".//purchaserInformation/fundingRequestingAgencyID"),
	texts(RefContractingOfficeCode, ".//purchaserInformation/contractingOfficeID"),
	attrField(RefContractingOfficeName, "name", ".//purchaserInformation/contractingOfficeID"),
	texts(RefFundingOfficeCode, ".//purchaserInformation/fundingRequestingOfficeID"),
	attrField(RefFundingOfficeName, "name", ".//purchaserInformation/fundingRequestingOfficeID"),
	texts(RefPSCCode, ".//productOrServiceInformation/productOrServiceCode"),
	attrField(RefPSCDescription, "description", ".//productOrServiceInformation/productOrServiceCode"),
	texts(RefNAICSCode, ".//productOrServiceInformation/principalNAICSCode"),
	attrField(RefNAICSDescription, "description", ".//productOrServiceInformation/principalNAICSCode"),
}}

// Refs extracts the dimension references of an action.
func Refs(content *xmlquery.Node) Fields {
	out := Fields{}
	refGroup.Extract(content, out)
	return out
}
