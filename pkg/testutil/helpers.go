// Package testutil provides common utility functions for testing.
package testutil

import (
	"github.com/iwvelando/curve-forecast/internal/forecast"
	"github.com/iwvelando/curve-forecast/pkg/optimization"
)

// FindFit finds the fit summary for model within scope.
// Returns a pointer to the summary if found, nil otherwise.
func FindFit(fits []optimization.Summary, scope, model string) *optimization.Summary {
	for i := range fits {
		if fits[i].Scope == scope && fits[i].Model == model {
			return &fits[i]
		}
	}
	return nil
}

// AppliedFit returns the applied fit summary of scope, or nil.
func AppliedFit(fits []optimization.Summary, scope string) *optimization.Summary {
	for i := range fits {
		if fits[i].Scope == scope && fits[i].Applied {
			return &fits[i]
		}
	}
	return nil
}

// AdoptionScenarioFinal returns the last cumulative value of the named
// adoption scenario and whether it was found.
func AdoptionScenarioFinal(report *forecast.Report, name string) (float64, bool) {
	if report == nil {
		return 0, false
	}
	for _, sc := range report.Adoption.Scenarios {
		if sc.Scenario.Name != name {
			continue
		}
		n := len(sc.Series.CumulativePct)
		if n == 0 {
			return 0, true
		}
		return sc.Series.CumulativePct[n-1], true
	}
	return 0, false
}
