package normalize

import (
	"strings"

	"github.com/antchfx/xmlquery"
)

// Record types as stored in contract_actions.record_type.
const (
	RecordAward                 = "award"
	RecordIDV                   = "IDV"
	RecordOtherTransactionAward = "OtherTransactionAward"
	RecordOtherTransactionIDV   = "OtherTransactionIDV"
)

const (
	UnknownPIID       = "UNKNOWN_PIID"
	DefaultModNumber  = "0"
	DefaultVendorName = "N/A"
)

const (
	recordTypeColumn = "record_type"
	piidColumn       = "piid"
	modNumberColumn  = "modification_number"
)

// RecordType maps the content root element name to its record type.
// Unrecognised names are returned lower-cased.
func RecordType(content *xmlquery.Node) string {
	if content == nil {
		return ""
	}
	name := strings.ToLower(content.Data)
	switch name {
	case "award":
		return RecordAward
	case "idv":
		return RecordIDV
	case "othertransactionaward":
		return RecordOtherTransactionAward
	case "othertransactionidv":
		return RecordOtherTransactionIDV
	}
	return name
}

type idPaths struct {
	recordType string
	piid       Field
	mod        Field
}

// Each record type keeps its contract ID under a different subtree.
var identifierOrder = []idPaths{
	{RecordAward,
		field(piidColumn, Text, ".//awardID/awardContractID/PIID"),
		field(modNumberColumn, Text, ".//awardID/awardContractID/modNumber")},
	{RecordIDV,
		field(piidColumn, Text, ".//contractID/IDVID/PIID"),
		field(modNumberColumn, Text, ".//contractID/IDVID/modNumber")},
	{RecordOtherTransactionAward,
		field(piidColumn, Text, ".//OtherTransactionAwardID/OtherTransactionAwardContractID/PIID"),
		field(modNumberColumn, Text, ".//OtherTransactionAwardID/OtherTransactionAwardContractID/modNumber")},
	{RecordOtherTransactionIDV,
		field(piidColumn, Text, ".//OtherTransactionIDVID/OtherTransactionIDVContractID/PIID"),
		field(modNumberColumn, Text, ".//OtherTransactionIDVID/OtherTransactionIDVContractID/modNumber")},
}

// fallbackOrder returns the identifier paths to try for recordType: its own
// paths first, then the remaining record types in their fixed order.
func fallbackOrder(recordType string) []idPaths {
	out := make([]idPaths, 0, len(identifierOrder))
	for _, p := range identifierOrder {
		if p.recordType == recordType {
			out = append(out, p)
		}
	}
	for _, p := range identifierOrder {
		if p.recordType != recordType {
			out = append(out, p)
		}
	}
	return out
}

// Identifiers returns the PIID and modification number of the action,
// falling back to UnknownPIID and DefaultModNumber.
func Identifiers(content *xmlquery.Node) (piid, mod string) {
	order := fallbackOrder(RecordType(content))
	for _, p := range order {
		if v, ok := p.piid.Value(content); ok {
			piid = v.(string)
			break
		}
	}
	for _, p := range order {
		if v, ok := p.mod.Value(content); ok {
			mod = v.(string)
			break
		}
	}
	if piid == "" {
		piid = UnknownPIID
	}
	if mod == "" {
		mod = DefaultModNumber
	}
	return piid, mod
}

// CoreFields are the fact columns written for every action regardless of
// record type.
var CoreFields = Group{Name: "core", Fields: []Field{
	field("obligated_amount", Float, ".//dollarValues/obligatedAmount"),
	field("base_and_all_options_value", Float, ".//dollarValues/baseAndAllOptionsValue"),
	field("total_estimated_order_value", Float, ".//dollarValues/totalEstimatedOrderValue"),
	field("effective_date", Time, ".//relevantContractDates/effectiveDate"),
	field("last_date_to_order", Date, ".//relevantContractDates/lastDateToOrder"),
	field("completion_date", Date, ".//relevantContractDates/completionDate"),
	field("description_of_requirement", Text, ".//contractData/descriptionOfContractRequirement"),
	field("action_type_code", Text, ".//contractData/contractActionType"),
	attrField("action_type_description", "description", ".//contractData/contractActionType"),
	field("pricing_type_code", Text, ".//contractData/typeOfContractPricing"),
	attrField("pricing_type_description", "description", ".//contractData/typeOfContractPricing"),
	field("fpds_last_modified_date", Time, ".//transactionInformation/lastModifiedDate"),
	field("reason_for_modification", Text, ".//contractData/reasonForModification"),
}}

func texts(column string, paths ...string) Field { return field(column, Text, paths...) }

// ActionGroups are the normalized field groups promoted onto the fact row.
var ActionGroups = []Group{
	{Name: "identification", Fields: []Field{
		texts("referenced_idv_piid", ".//awardID/referencedIDVID/PIID", ".//contractID/referencedIDVID/PIID"),
		texts("referenced_idv_mod_number", ".//awardID/referencedIDVID/modNumber", ".//contractID/referencedIDVID/modNumber"),
		texts("referenced_idv_agency_id", ".//awardID/referencedIDVID/agencyID", ".//contractID/referencedIDVID/agencyID"),
		texts("transaction_number", ".//awardID/awardContractID/transactionNumber"),
	}},
	{Name: "competition", Base: ".//competition", Fields: []Field{
		texts("extent_competed", "./extentCompeted"),
		texts("solicitation_procedures", "./solicitationProcedures"),
		texts("type_of_set_aside", "./typeOfSetAside"),
		texts("type_of_set_aside_source", "./typeOfSetAsideSource"),
		texts("evaluated_preference", "./evaluatedPreference"),
		field("number_of_offers_received", Int, "./numberOfOffersReceived"),
		texts("number_of_offers_source", "./numberOfOffersSource"),
		texts("commercial_item_acquisition_procedures", "./commercialItemAcquisitionProcedures"),
		texts("commercial_item_test_program", "./commercialItemTestProgram"),
		texts("a76_action", "./A76Action"),
		texts("fed_biz_opps", "./fedBizOpps"),
		texts("local_area_set_aside", "./localAreaSetAside"),
		texts("fair_opportunity_limited_sources", "./statutoryExceptionToFairOpportunity"),
		texts("reason_not_competed", "./reasonNotCompeted"),
		texts("competitive_procedures", "./competitiveProcedures"),
		texts("research", "./research"),
		texts("small_business_competitiveness_demo", "./smallBusinessCompetitivenessDemonstrationProgram"),
		texts("idv_type_of_set_aside", "./IDVTypeOfSetAside"),
		field("idv_number_of_offers_received", Int, "./IDVNumberOfOffersReceived"),
	}},
	{Name: "contract_data", Base: ".//contractData", Fields: []Field{
		texts("cost_or_pricing_data", "./costOrPricingData"),
		texts("contract_financing", "./contractFinancing"),
		texts("gfe_gfp", "./GFE_GFP"),
		texts("sea_transportation", "./seaTransportation"),
		texts("undefinitized_action", "./undefinitizedAction"),
		texts("consolidated_contract", "./consolidatedContract"),
		texts("performance_based_service_contract", "./performanceBasedServiceContract"),
		texts("multi_year_contract", "./multiYearContract"),
		texts("contingency_humanitarian_peacekeeping_operation", "./contingencyHumanitarianPeacekeepingOperation"),
		texts("purchase_card_as_payment_method", "./purchaseCardAsPaymentMethod"),
		texts("number_of_actions", "./numberOfActions"),
		texts("referenced_idv_type", "./referencedIDVType"),
		texts("referenced_idv_multiple_or_single", "./referencedIDVMultipleOrSingle"),
		texts("major_program_code", "./majorProgramCode"),
		texts("national_interest_action_code", "./nationalInterestActionCode"),
		texts("cost_accounting_standards_clause", "./costAccountingStandardsClause"),
		texts("inherently_governmental_function", "./inherentlyGovernmentalFunction"),
		texts("solicitation_id", "./solicitationID"),
		texts("type_of_idc", "./typeOfIDC"),
		texts("multiple_or_single_award_idc", "./multipleOrSingleAwardIDC"),
	}},
	{Name: "dollar_values", Fields: []Field{
		field("base_and_exercised_options_value", Float, ".//dollarValues/baseAndExercisedOptionsValue"),
		field("total_obligated_amount", Float, ".//totalDollarValues/totalObligatedAmount"),
		field("total_base_and_all_options_value", Float, ".//totalDollarValues/totalBaseAndAllOptionsValue"),
		field("total_base_and_exercised_options_value", Float, ".//totalDollarValues/totalBaseAndExercisedOptionsValue"),
	}},
	{Name: "legislative_mandates", Base: ".//legislativeMandates", Fields: []Field{
		texts("clinger_cohen_act", "./ClingerCohenAct"),
		texts("construction_wage_rate_requirements", "./constructionWageRateRequirements"),
		texts("labor_standards", "./laborStandards"),
		texts("materials_supplies_articles_equipment", "./materialsSuppliesArticlesEquipment"),
		texts("interagency_contracting_authority", "./interagencyContractingAuthority"),
		texts("other_statutory_authority", "./otherStatutoryAuthority"),
	}},
	{Name: "place_of_performance", Base: ".//placeOfPerformance", Fields: []Field{
		texts("pop_street_address", "./principalPlaceOfPerformance/streetAddress"),
		texts("pop_city", "./principalPlaceOfPerformance/city"),
		texts("pop_state_code", "./principalPlaceOfPerformance/stateCode"),
		texts("pop_zip_code", "./placeOfPerformanceZIPCode"),
		texts("pop_country_code", "./principalPlaceOfPerformance/countryCode"),
		texts("pop_congressional_district", "./placeOfPerformanceCongressionalDistrict"),
	}},
	{Name: "dates", Base: ".//relevantContractDates", Fields: []Field{
		field("signed_date", Date, "./signedDate"),
		field("current_completion_date", Date, "./currentCompletionDate"),
		field("ultimate_completion_date", Date, "./ultimateCompletionDate"),
	}},
	{Name: "transaction_information", Base: ".//transactionInformation", Fields: []Field{
		texts("created_by", "./createdBy"),
		field("created_date", Time, "./createdDate"),
		texts("last_modified_by", "./lastModifiedBy"),
		texts("transaction_status", "./status"),
		texts("approved_by", "./approvedBy"),
		field("approved_date", Time, "./approvedDate"),
		texts("closed_status", "./closedStatus"),
		texts("closed_by", "./closedBy"),
		field("closed_date", Time, "./closedDate"),
	}},
	{Name: "contract_marketing", Base: ".//contractMarketingData", Fields: []Field{
		texts("fee_paid_for_use_of_service", "./feePaidForUseOfService"),
		texts("who_can_use", "./whoCanUse"),
		texts("ordering_procedure", "./orderingProcedure"),
		texts("individual_order_limit", "./individualOrderLimit"),
		texts("type_of_fee_for_use_of_service", "./typeOfFeeForUseOfService"),
		texts("contract_marketing_email", "./emailAddress"),
	}},
	{Name: "product_service", Base: ".//productOrServiceInformation", Fields: []Field{
		texts("claimant_program_code", "./claimantProgramCode"),
		texts("contract_bundling", "./contractBundling"),
		texts("country_of_origin", "./countryOfOrigin"),
		texts("information_technology_commercial_item_category", "./informationTechnologyCommercialItemCategory"),
		texts("manufacturing_organization_type", "./manufacturingOrganizationType"),
		texts("place_of_manufacture", "./placeOfManufacture"),
		texts("recovered_material_clauses", "./recoveredMaterialClauses"),
		texts("system_equipment_code", "./systemEquipmentCode"),
		texts("use_of_epa_designated_products", "./useOfEPADesignatedProducts"),
	}},
	{Name: "misc", Fields: []Field{
		texts("foreign_funding", ".//purchaserInformation/foreignFunding"),
		texts("contracting_officer_business_size_determination", ".//vendor/contractingOfficerBusinessSizeDetermination"),
		texts("subcontract_plan", ".//preferencePrograms/subcontractPlan"),
	}},
}

// ActionFields extracts every promoted fact field from a content subtree,
// including record_type, piid and modification_number.
func ActionFields(content *xmlquery.Node) Fields {
	out := Fields{}
	CoreFields.Extract(content, out)
	for _, g := range ActionGroups {
		g.Extract(content, out)
	}
	if rt := RecordType(content); rt != "" {
		out[recordTypeColumn] = rt
	}
	out[piidColumn], out[modNumberColumn] = Identifiers(content)
	return out
}
