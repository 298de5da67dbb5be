package facts

import "errors"

// ErrUnknownConcept is returned for a concept with no tag mapping.
var ErrUnknownConcept = errors.New("unknown concept")

// conceptSpec maps an internal concept name to the us-gaap tags that
// report it. Tags are tried in order; filers differ in which they use.
// Instant concepts are balance-sheet points in time and carry no
// duration, so they skip the duration-band filter.
type conceptSpec struct {
	Tags    []string
	Instant bool
}

var conceptSpecs = map[string]conceptSpec{
	"revenue": {Tags: []string{
		"RevenueFromContractWithCustomerExcludingAssessedTax",
		"Revenues",
		"SalesRevenueNet",
	}},
	"costOfRevenue": {Tags: []string{
		"CostOfRevenue",
		"CostOfGoodsAndServicesSold",
	}},
	"grossProfit":     {Tags: []string{"GrossProfit"}},
	"operatingIncome": {Tags: []string{"OperatingIncomeLoss"}},
	"netIncome":       {Tags: []string{"NetIncomeLoss"}},
	"operatingExpenses": {Tags: []string{
		"OperatingExpenses",
		"CostsAndExpenses",
	}},
	"researchAndDevelopment": {Tags: []string{"ResearchAndDevelopmentExpense"}},
	"epsDiluted":             {Tags: []string{"EarningsPerShareDiluted"}},
	"epsBasic":               {Tags: []string{"EarningsPerShareBasic"}},
	"operatingCashFlow":      {Tags: []string{"NetCashProvidedByUsedInOperatingActivities"}},
	"capitalExpenditures":    {Tags: []string{"PaymentsToAcquirePropertyPlantAndEquipment"}},

	"totalAssets":      {Tags: []string{"Assets"}, Instant: true},
	"totalLiabilities": {Tags: []string{"Liabilities"}, Instant: true},
	"totalEquity":      {Tags: []string{"StockholdersEquity"}, Instant: true},
	"cash":             {Tags: []string{"CashAndCashEquivalentsAtCarryingValue"}, Instant: true},
	"longTermDebt":     {Tags: []string{"LongTermDebtNoncurrent", "LongTermDebt"}, Instant: true},
	"sharesOutstanding": {Tags: []string{
		"CommonStockSharesOutstanding",
		"WeightedAverageNumberOfDilutedSharesOutstanding",
	}, Instant: true},
}

// LookupConcept returns the tag mapping for an internal concept name.
func LookupConcept(name string) (conceptSpec, error) {
	spec, ok := conceptSpecs[name]
	if !ok {
		return conceptSpec{}, ErrUnknownConcept
	}
	return spec, nil
}

// KnownConcepts lists every mappable concept name.
func KnownConcepts() []string {
	out := make([]string, 0, len(conceptSpecs))
	for name := range conceptSpecs {
		out = append(out, name)
	}
	return out
}
