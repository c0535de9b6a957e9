package testutil

import (
	"testing"

	"github.com/iwvelando/curve-forecast/internal/adoption"
	"github.com/iwvelando/curve-forecast/internal/forecast"
	"github.com/iwvelando/curve-forecast/pkg/optimization"
)

func testFits() []optimization.Summary {
	return []optimization.Summary{
		{Scope: "adoption", Model: "logistic", R2: 0.97},
		{Scope: "adoption", Model: "gompertz", R2: 0.99, Best: true, Applied: true},
		{Scope: "persistency", Model: "weibull", R2: 0.98, Best: true},
		{Scope: "persistency", Model: "logistic", R2: 0.1},
	}
}

func TestFindFit(t *testing.T) {
	fits := testFits()

	tests := []struct {
		name        string
		scope       string
		model       string
		expectFound bool
		expectedR2  float64
	}{
		{name: "adoption logistic", scope: "adoption", model: "logistic", expectFound: true, expectedR2: 0.97},
		{name: "same model other scope", scope: "persistency", model: "logistic", expectFound: true, expectedR2: 0.1},
		{name: "persistency weibull", scope: "persistency", model: "weibull", expectFound: true, expectedR2: 0.98},
		{name: "missing model", scope: "adoption", model: "bass", expectFound: false},
		{name: "missing scope", scope: "cohort", model: "logistic", expectFound: false},
		{name: "case sensitive", scope: "adoption", model: "Logistic", expectFound: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := FindFit(fits, tt.scope, tt.model)
			if !tt.expectFound {
				if got != nil {
					t.Errorf("FindFit() = %+v, want nil", got)
				}
				return
			}
			if got == nil {
				t.Fatalf("FindFit() = nil, want %s/%s", tt.scope, tt.model)
			}
			if got.R2 != tt.expectedR2 {
				t.Errorf("FindFit() R2 = %v, want %v", got.R2, tt.expectedR2)
			}
		})
	}
}

func TestFindFitReturnsPointerIntoSlice(t *testing.T) {
	fits := testFits()
	got := FindFit(fits, "adoption", "gompertz")
	if got == nil {
		t.Fatalf("FindFit() = nil")
	}
	got.R2 = 0.5
	if fits[1].R2 != 0.5 {
		t.Errorf("expected FindFit to point into the slice")
	}
}

func TestFindFitEmpty(t *testing.T) {
	if got := FindFit(nil, "adoption", "logistic"); got != nil {
		t.Errorf("FindFit(nil) = %+v, want nil", got)
	}
}

func TestAppliedFit(t *testing.T) {
	fits := testFits()
	if got := AppliedFit(fits, "adoption"); got == nil || got.Model != "gompertz" {
		t.Errorf("AppliedFit(adoption) = %+v, want gompertz", got)
	}
	if got := AppliedFit(fits, "persistency"); got != nil {
		t.Errorf("AppliedFit(persistency) = %+v, want nil", got)
	}
}

func TestAdoptionScenarioFinal(t *testing.T) {
	report := &forecast.Report{
		Adoption: forecast.AdoptionReport{
			Scenarios: []adoption.ScenarioSeries{
				{Scenario: adoption.Scenario{Name: "Scenario A"}, Series: adoption.Series{CumulativePct: []float64{1, 5, 12.5}}},
				{Scenario: adoption.Scenario{Name: "Empty"}},
			},
		},
	}

	tests := []struct {
		name      string
		scenario  string
		wantValue float64
		wantFound bool
	}{
		{name: "last value", scenario: "Scenario A", wantValue: 12.5, wantFound: true},
		{name: "empty series", scenario: "Empty", wantValue: 0, wantFound: true},
		{name: "missing", scenario: "Scenario B", wantFound: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, found := AdoptionScenarioFinal(report, tt.scenario)
			if found != tt.wantFound {
				t.Fatalf("found = %v, want %v", found, tt.wantFound)
			}
			if got != tt.wantValue {
				t.Errorf("value = %v, want %v", got, tt.wantValue)
			}
		})
	}

	if _, found := AdoptionScenarioFinal(nil, "Scenario A"); found {
		t.Errorf("expected nil report to find nothing")
	}
}
