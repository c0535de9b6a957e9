// Package forecast defines the data structures related to a forecast report
// and includes functions for assembling it from a resolved workspace.
package forecast

import (
	"fmt"

	"github.com/iwvelando/curve-forecast/internal/adoption"
	"github.com/iwvelando/curve-forecast/internal/config"
	"github.com/iwvelando/curve-forecast/internal/fitting"
	"github.com/iwvelando/curve-forecast/internal/persistency"
	"github.com/iwvelando/curve-forecast/pkg/optimization"
	"go.uber.org/zap"
)

// Report holds everything computed for one workspace.
type Report struct {
	Adoption    AdoptionReport         `json:"adoption"`
	Persistency PersistencyReport      `json:"persistency"`
	Fits        []optimization.Summary `json:"fits,omitempty"`
	Notes       []string               `json:"notes,omitempty"`
}

// AdoptionReport is the adoption curve on display and its comparisons.
type AdoptionReport struct {
	Model      adoption.Model      `json:"model"`
	ModelLabel string              `json:"modelLabel"`
	Core       adoption.CoreParams `json:"core"`
	Params     map[string]float64  `json:"params"`
	// Inflection is set for the Richards family only.
	Inflection string                    `json:"inflection,omitempty"`
	Series     adoption.Series           `json:"series"`
	Milestones adoption.Milestones       `json:"milestones"`
	Score      *fitting.Metrics          `json:"score,omitempty"`
	Scenarios  []adoption.ScenarioSeries `json:"scenarios,omitempty"`
}

// PersistencyReport is the survival curve on display and its comparisons.
type PersistencyReport struct {
	Model      persistency.Model            `json:"model"`
	ModelLabel string                       `json:"modelLabel"`
	PresetID   string                       `json:"presetId,omitempty"`
	Horizon    int                          `json:"horizon"`
	Params     map[string]float64           `json:"params"`
	Knots      []persistency.Knot           `json:"knots,omitempty"`
	Series     []persistency.SurvivalPoint  `json:"series"`
	Metrics    persistency.Metrics          `json:"metrics"`
	Score      *fitting.Metrics             `json:"score,omitempty"`
	Scenarios  []persistency.ScenarioSeries `json:"scenarios,omitempty"`
	Benchmarks []persistency.Benchmark      `json:"benchmarks,omitempty"`
	Cohort     []persistency.CohortMonth    `json:"cohort,omitempty"`
	CohortSize config.Cohort                `json:"cohortSize"`
}

// GetAdoption builds the adoption report for the curve on display.
func GetAdoption(logger *zap.Logger, state adoption.State, observed []adoption.ObservedPoint) (AdoptionReport, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	model, core, params := state.Effective()
	p := params.For(model)
	if p == nil {
		return AdoptionReport{}, fmt.Errorf("%w: %q", adoption.ErrUnknownModel, model)
	}

	series := adoption.Generate(p, core)
	report := AdoptionReport{
		Model:      model,
		ModelLabel: model.Label(),
		Core:       core,
		Params:     p.Values(),
		Series:     series,
		Milestones: adoption.DeriveMilestones(series, core),
		Scenarios:  adoption.ComposeScenarios(state.Scenarios, core, params),
	}
	if r, ok := p.(adoption.RichardsParams); ok {
		report.Inflection = adoption.RichardsInflectionLabel(r.Nu)
	}
	if len(observed) > 0 {
		report.Score = adoption.Score(p, core, observed)
	}

	logger.Debug(fmt.Sprintf("generated %d adoption periods for model %s", len(series.Points), model),
		zap.String("op", "forecast.GetAdoption"),
	)
	return report, nil
}

// GetPersistency builds the persistency report for the curve on display.
func GetPersistency(logger *zap.Logger, state persistency.State, observed []persistency.KMDataPoint, benchmarks []string, cohort config.Cohort, monthlyDose float64) (PersistencyReport, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	model, params := state.Effective()
	p := params.For(model)
	if p == nil {
		return PersistencyReport{}, fmt.Errorf("%w: %q", persistency.ErrUnknownModel, model)
	}

	series := persistency.Generate(p, state.Horizon)
	report := PersistencyReport{
		Model:      model,
		ModelLabel: model.Label(),
		PresetID:   state.PresetID,
		Horizon:    state.Horizon,
		Params:     p.Values(),
		Series:     series,
		Metrics:    persistency.ComputeMetrics(series, monthlyDose),
		Scenarios:  persistency.ComposeScenarios(state.Scenarios, state.Horizon, params),
		Benchmarks: persistency.Benchmarks(benchmarks, state.Horizon),
		Cohort:     persistency.Simulate(p, cohort.NewStarts, cohort.Months),
		CohortSize: cohort,
	}
	if pw, ok := p.(persistency.PiecewiseParams); ok {
		report.Knots = append([]persistency.Knot(nil), pw.Knots...)
	}
	if len(observed) > 0 {
		report.Score = persistency.Score(p, observed)
	}

	logger.Debug(fmt.Sprintf("generated %d survival months for model %s", len(series), model),
		zap.String("op", "forecast.GetPersistency"),
	)
	return report, nil
}

// GetForecast assembles the full report for a resolved workspace. fits may be
// nil when fitting was not run.
func GetForecast(logger *zap.Logger, resolved *config.Resolved, fits []optimization.Summary) (*Report, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if resolved == nil {
		return nil, fmt.Errorf("resolved configuration cannot be nil")
	}

	adoptionReport, err := GetAdoption(logger, resolved.Adoption, resolved.AdoptionObserved)
	if err != nil {
		return nil, err
	}
	persistencyReport, err := GetPersistency(logger, resolved.Persistency, resolved.PersistencyObserved,
		resolved.Benchmarks, resolved.Cohort, resolved.MonthlyDose)
	if err != nil {
		return nil, err
	}

	report := &Report{
		Adoption:    adoptionReport,
		Persistency: persistencyReport,
		Fits:        fits,
	}

	if adoptionReport.Milestones.Reach90 == nil {
		report.Notes = append(report.Notes,
			fmt.Sprintf("Adoption does not reach 90%% of the ceiling within %d periods", adoptionReport.Core.Horizon))
	}
	if persistencyReport.Metrics.MedianDoT == nil {
		report.Notes = append(report.Notes,
			fmt.Sprintf("Median duration of therapy is beyond the %d month horizon", persistencyReport.Horizon))
	}
	if sc, ok := resolved.Adoption.Editing(); ok {
		report.Notes = append(report.Notes, fmt.Sprintf("Adoption curve shows scenario %q", sc.Name))
	}
	if sc, ok := resolved.Persistency.Editing(); ok {
		report.Notes = append(report.Notes, fmt.Sprintf("Persistency curve shows scenario %q", sc.Name))
	}

	logger.Info("forecast assembled",
		zap.String("op", "forecast.GetForecast"),
		zap.String("adoptionModel", string(adoptionReport.Model)),
		zap.String("persistencyModel", string(persistencyReport.Model)),
		zap.Int("adoptionScenarios", len(adoptionReport.Scenarios)),
		zap.Int("persistencyScenarios", len(persistencyReport.Scenarios)),
		zap.Int("fits", len(fits)),
	)
	return report, nil
}
