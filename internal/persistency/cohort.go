package persistency

import (
	"github.com/iwvelando/curve-forecast/pkg/constants"
	"github.com/iwvelando/curve-forecast/pkg/mathutil"
)

// CohortMonth is the patient count on therapy in one simulated month.
type CohortMonth struct {
	Month int `json:"month"`
	// TotalOnDrug is rounded to two decimals.
	TotalOnDrug float64 `json:"totalOnDrug"`
	// CohortContributions[c] is the survivors of the cohort that started c
	// months into the simulation.
	CohortContributions []float64 `json:"cohortContributions"`
}

// Simulate runs a cohort waterfall of newStarts patients starting each month
// for months months, each cohort following p from its own start.
func Simulate(p Params, newStarts float64, months int) []CohortMonth {
	if months < 0 {
		months = 0
	}
	// curve[d] is survival d months into therapy.
	curve := make([]float64, months)
	for d := range curve {
		curve[d] = SurvivalAt(p, float64(d)) / constants.PercentageMultiplier
	}

	out := make([]CohortMonth, 0, months)
	for m := 0; m < months; m++ {
		contributions := make([]float64, m+1)
		total := 0.0
		for c := 0; c <= m; c++ {
			remaining := newStarts * curve[m-c]
			contributions[c] = remaining
			total += remaining
		}
		out = append(out, CohortMonth{
			Month:               m,
			TotalOnDrug:         mathutil.Round(total, 2),
			CohortContributions: contributions,
		})
	}
	return out
}
