package normalize

import "github.com/antchfx/xmlquery"

func flag(column, path string) Field { return field(column, Bool, path) }

// VendorDetailGroups describe the vendor snapshot stored in
// contract_vendor_details. Bases are relative to the <vendor> element.
var VendorDetailGroups = []Group{
	{Name: "header", Base: ".//vendorHeader", Fields: []Field{
		texts("vendor_name", "./vendorName"),
		texts("vendor_alternate_name", "./vendorAlternateName"),
		texts("vendor_legal_organization_name", "./vendorLegalOrganizationName"),
		texts("vendor_doing_business_as_name", "./vendorDoingBusinessAsName"),
		flag("vendor_enabled", "./vendorEnabled"),
	}},
	{Name: "entity_identifiers", Base: ".//vendorSiteDetails", Fields: []Field{
		texts("uei", ".//vendorUEIInformation/UEI"),
		texts("ultimate_parent_uei", ".//vendorUEIInformation/ultimateParentUEI"),
		texts("uei_legal_business_name", ".//vendorUEIInformation/UEILegalBusinessName"),
		texts("ultimate_parent_uei_name", ".//vendorUEIInformation/ultimateParentUEIName"),
		texts("cage_code", ".//entityIdentifiers/cageCode"),
		field("registration_date", Date, ".//ccrRegistrationDetails/registrationDate"),
		field("renewal_date", Date, ".//ccrRegistrationDetails/renewalDate"),
		texts("vendor_alternate_site_code", "./vendorAlternateSiteCode"),
	}},
	{Name: "location", Base: ".//vendorSiteDetails//vendorLocation", Fields: []Field{
		texts("street_address", "./streetAddress"),
		texts("city", "./city"),
		texts("state", "./state"),
		texts("zip_code", "./ZIPCode"),
		texts("country_code", "./countryCode"),
		texts("phone_no", "./phoneNo"),
		texts("fax_no", "./faxNo"),
		texts("congressional_district", "./congressionalDistrictCode"),
		flag("vendor_location_disabled_flag", "./vendorLocationDisabledFlag"),
		texts("entity_data_source", "./entityDataSource"),
	}},
	{Name: "socio_economic", Base: ".//vendorSiteDetails//vendorSocioEconomicIndicators", Fields: []Field{
		flag("is_alaskan_native_owned_corporation_or_firm", "./isAlaskanNativeOwnedCorporationOrFirm"),
		flag("is_american_indian_owned", "./isAmericanIndianOwned"),
		flag("is_indian_tribe", "./isIndianTribe"),
		flag("is_native_hawaiian_owned_organization_or_firm", "./isNativeHawaiianOwnedOrganizationOrFirm"),
		flag("is_tribally_owned_firm", "./isTriballyOwnedFirm"),
		flag("is_veteran_owned", "./isVeteranOwned"),
		flag("is_service_related_disabled_veteran_owned_business", "./isServiceRelatedDisabledVeteranOwnedBusiness"),
		flag("is_women_owned", "./isWomenOwned"),
		flag("is_women_owned_small_business", "./isWomenOwnedSmallBusiness"),
		flag("is_economically_disadvantaged_women_owned_small_business", "./isEconomicallyDisadvantagedWomenOwnedSmallBusiness"),
		flag("is_joint_venture_women_owned_small_business", "./isJointVentureWomenOwnedSmallBusiness"),
		flag("is_joint_venture_economically_disadvantaged_women_owned_small_business", "./isJointVentureEconomicallyDisadvantagedWomenOwnedSmallBusiness"),
		flag("is_small_business", "./isSmallBusiness"),
		flag("is_very_small_business", "./isVerySmallBusiness"),
	}},
	{Name: "minority_owned", Base: ".//vendorSocioEconomicIndicators/minorityOwned", Fields: []Field{
		flag("is_minority_owned", "./isMinorityOwned"),
		flag("is_subcontinent_asian_american_owned_business", "./isSubContinentAsianAmericanOwnedBusiness"),
		flag("is_asian_pacific_american_owned_business", "./isAsianPacificAmericanOwnedBusiness"),
		flag("is_black_american_owned_business", "./isBlackAmericanOwnedBusiness"),
		flag("is_hispanic_american_owned_business", "./isHispanicAmericanOwnedBusiness"),
		flag("is_native_american_owned_business", "./isNativeAmericanOwnedBusiness"),
		flag("is_other_minority_owned", "./isOtherMinorityOwned"),
	}},
	{Name: "business_types", Base: ".//vendorSiteDetails//vendorBusinessTypes", Fields: []Field{
		flag("is_community_developed_corporation_owned_firm", "./isCommunityDevelopedCorporationOwnedFirm"),
		flag("is_labor_surplus_area_firm", "./isLaborSurplusAreaFirm"),
		flag("is_state_government", "./isStateGovernment"),
		flag("is_tribal_government", "./isTribalGovernment"),
		flag("is_foreign_government", "./isForeignGovernment"),
	}},
	{Name: "federal_government", Base: ".//vendorBusinessTypes/federalGovernment", Fields: []Field{
		flag("is_federal_government", "./isFederalGovernment"),
		flag("is_federally_funded_research_and_development_corp", "./isFederallyFundedResearchAndDevelopmentCorp"),
		flag("is_federal_government_agency", "./isFederalGovernmentAgency"),
	}},
	{Name: "local_government", Base: ".//vendorBusinessTypes/localGovernment", Fields: []Field{
		flag("is_local_government", "./isLocalGovernment"),
		flag("is_city_local_government", "./isCityLocalGovernment"),
		flag("is_county_local_government", "./isCountyLocalGovernment"),
		flag("is_inter_municipal_local_government", "./isInterMunicipalLocalGovernment"),
		flag("is_local_government_owned", "./isLocalGovernmentOwned"),
		flag("is_municipality_local_government", "./isMunicipalityLocalGovernment"),
		flag("is_school_district_local_government", "./isSchoolDistrictLocalGovernment"),
		flag("is_township_local_government", "./isTownshipLocalGovernment"),
	}},
	{Name: "organization_type", Base: ".//vendorBusinessTypes/businessOrOrganizationType", Fields: []Field{
		flag("is_corporate_entity_not_tax_exempt", "./isCorporateEntityNotTaxExempt"),
		flag("is_corporate_entity_tax_exempt", "./isCorporateEntityTaxExempt"),
		flag("is_partnership_or_limited_liability_partnership", "./isPartnershipOrLimitedLiabilityPartnership"),
		// The feed spells this element "Propreitorship".
		flag("is_sole_proprietorship", "./isSolePropreitorship"),
		flag("is_small_agricultural_cooperative", "./isSmallAgriculturalCooperative"),
		flag("is_international_organization", "./isInternationalOrganization"),
		flag("is_us_government_entity", "./isUSGovernmentEntity"),
	}},
	{Name: "certifications", Base: ".//vendorSiteDetails//vendorCertifications", Fields: []Field{
		flag("is_dot_certified_disadvantaged_business_enterprise", "./isDOTCertifiedDisadvantagedBusinessEnterprise"),
		flag("is_self_certified_small_disadvantaged_business", "./isSelfCertifiedSmallDisadvantagedBusiness"),
		flag("is_sba_certified_small_disadvantaged_business", "./isSBACertifiedSmallDisadvantagedBusiness"),
		flag("is_sba_certified_8a_program_participant", "./isSBACertified8AProgramParticipant"),
		flag("is_self_certified_hubzone_joint_venture", "./isSelfCertifiedHUBZoneJointVenture"),
		flag("is_sba_certified_hubzone", "./isSBACertifiedHUBZone"),
		flag("is_sba_certified_8a_joint_venture", "./isSBACertified8AJointVenture"),
	}},
	{Name: "organization_factors", Base: ".//vendorSiteDetails//vendorOrganizationFactors", Fields: []Field{
		texts("organizational_type", "./organizationalType"),
		flag("is_sheltered_workshop", "./isShelteredWorkshop"),
		flag("is_limited_liability_corporation", "./isLimitedLiabilityCorporation"),
		flag("is_subchapter_s_corporation", "./isSubchapterSCorporation"),
		flag("is_foreign_owned_and_located", "./isForeignOwnedAndLocated"),
		texts("country_of_incorporation", "./countryOfIncorporation"),
		texts("state_of_incorporation", "./stateOfIncorporation"),
		flag("is_for_profit_organization", "./profitStructure/isForProfitOrganization"),
		flag("is_nonprofit_organization", "./profitStructure/isNonprofitOrganization"),
		flag("is_other_not_for_profit_organization", "./profitStructure/isOtherNotForProfitOrganization"),
	}},
	{Name: "educational_entity", Base: ".//vendorSiteDetails//typeOfEducationalEntity", Fields: []Field{
		flag("is_1862_land_grant_college", "./is1862LandGrantCollege"),
		flag("is_1890_land_grant_college", "./is1890LandGrantCollege"),
		flag("is_1994_land_grant_college", "./is1994LandGrantCollege"),
		flag("is_historically_black_college_or_university", "./isHistoricallyBlackCollegeOrUniversity"),
		flag("is_minority_institution", "./isMinorityInstitution"),
		flag("is_private_university_or_college", "./isPrivateUniversityOrCollege"),
		flag("is_school_of_forestry", "./isSchoolOfForestry"),
		flag("is_state_controlled_institution_of_higher_learning", "./isStateControlledInstitutionofHigherLearning"),
		flag("is_tribal_college", "./isTribalCollege"),
		flag("is_veterinary_college", "./isVeterinaryCollege"),
		flag("is_alaskan_native_servicing_institution", "./isAlaskanNativeServicingInstitution"),
		flag("is_native_hawaiian_servicing_institution", "./isNativeHawaiianServicingInstitution"),
	}},
	{Name: "government_entity", Base: ".//vendorSiteDetails//typeOfGovernmentEntity", Fields: []Field{
		flag("is_airport_authority", "./isAirportAuthority"),
		flag("is_council_of_governments", "./isCouncilOfGovernments"),
		flag("is_housing_authorities_public_or_tribal", "./isHousingAuthoritiesPublicOrTribal"),
		flag("is_interstate_entity", "./isInterstateEntity"),
		flag("is_planning_commission", "./isPlanningCommission"),
		flag("is_port_authority", "./isPortAuthority"),
		flag("is_transit_authority", "./isTransitAuthority"),
	}},
	{Name: "federal_relationship", Base: ".//vendorSiteDetails//vendorRelationshipWithFederalGovernment", Fields: []Field{
		flag("receives_contracts", "./receivesContracts"),
		flag("receives_grants", "./receivesGrants"),
		flag("receives_contracts_and_grants", "./receivesContractsAndGrants"),
	}},
}

// VendorDetails extracts the vendor snapshot. ok is false when the content
// has no <vendor> element with site details, or when nothing was found.
func VendorDetails(content *xmlquery.Node) (Fields, bool) {
	if content == nil {
		return nil, false
	}
	vendor := xmlquery.FindOne(content, ".//vendor")
	if vendor == nil || xmlquery.FindOne(vendor, ".//vendorSiteDetails") == nil {
		return nil, false
	}
	out := Fields{}
	for _, g := range VendorDetailGroups {
		g.Extract(vendor, out)
	}
	return out, len(out) > 0
}
