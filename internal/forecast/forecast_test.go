package forecast

import (
	"testing"

	"github.com/iwvelando/curve-forecast/internal/adoption"
	"github.com/iwvelando/curve-forecast/internal/config"
	"github.com/iwvelando/curve-forecast/internal/persistency"
	"github.com/iwvelando/curve-forecast/pkg/optimization"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func resolve(t *testing.T, conf config.Configuration) *config.Resolved {
	t.Helper()
	resolved, err := conf.Resolve()
	require.NoError(t, err)
	return resolved
}

func TestGetForecastDefaults(t *testing.T) {
	resolved := resolve(t, config.Configuration{})

	report, err := GetForecast(zap.NewNop(), resolved, nil)
	require.NoError(t, err)

	a := report.Adoption
	assert.Equal(t, adoption.Logistic, a.Model)
	assert.Equal(t, "Logistic", a.ModelLabel)
	assert.Len(t, a.Series.Points, adoption.DefaultCore().Horizon)
	assert.NotNil(t, a.Milestones.Reach50)
	assert.NotNil(t, a.Milestones.Reach90)
	assert.Empty(t, a.Inflection)
	assert.Nil(t, a.Score)
	assert.Empty(t, a.Scenarios)

	p := report.Persistency
	assert.Equal(t, persistency.Weibull, p.Model)
	assert.Len(t, p.Series, persistency.DefaultHorizon+1)
	assert.NotNil(t, p.Metrics.MedianDoT)
	require.NotNil(t, p.Metrics.AnnualDoses)
	assert.Len(t, p.Cohort, 24)
	assert.Empty(t, p.Knots)
	assert.Empty(t, p.Benchmarks)

	assert.Empty(t, report.Fits)
	assert.Empty(t, report.Notes)
}

func TestGetForecastNilResolved(t *testing.T) {
	_, err := GetForecast(zap.NewNop(), nil, nil)
	require.Error(t, err)
}

func TestGetForecastScenariosAndBenchmarks(t *testing.T) {
	ceiling := 70.0
	resolved := resolve(t, config.Configuration{
		Adoption: config.AdoptionConfig{
			Model: "richards",
			Scenarios: []config.AdoptionScenario{
				{Name: "Low ceiling", CeilingPct: &ceiling},
				{Model: "bass"},
			},
		},
		Persistency: config.PersistencyConfig{
			Preset:     "adjuvant",
			Benchmarks: []string{"chemotherapy", "carT"},
			Scenarios:  []config.PersistencyScenario{{Model: "exponential"}},
		},
	})

	report, err := GetForecast(zap.NewNop(), resolved, []optimization.Summary{{Scope: "adoption", Model: "logistic"}})
	require.NoError(t, err)

	a := report.Adoption
	assert.Equal(t, "Inflection at 50.00% of ceiling", a.Inflection)
	require.Len(t, a.Scenarios, 2)
	assert.Equal(t, "Low ceiling", a.Scenarios[0].Scenario.Name)
	assert.Equal(t, "Scenario B", a.Scenarios[1].Scenario.Name)
	for _, sc := range a.Scenarios {
		assert.Len(t, sc.Series.Points, a.Core.Horizon)
	}
	last := a.Scenarios[0].Series.CumulativePct[a.Core.Horizon-1]
	assert.LessOrEqual(t, last, ceiling)

	p := report.Persistency
	assert.Equal(t, persistency.Piecewise, p.Model)
	assert.Equal(t, "adjuvant", p.PresetID)
	assert.Len(t, p.Knots, 7)
	require.Len(t, p.Benchmarks, 2)
	assert.Equal(t, "chemotherapy", p.Benchmarks[0].ID)
	require.Len(t, p.Scenarios, 1)
	assert.Len(t, p.Scenarios[0].Series, p.Horizon+1)

	assert.Len(t, report.Fits, 1)
}

func TestGetForecastScoresObservedData(t *testing.T) {
	resolved := resolve(t, config.Configuration{
		Adoption: config.AdoptionConfig{Observed: []adoption.ObservedPoint{
			{Period: 6, ValuePct: 5}, {Period: 12, ValuePct: 20}, {Period: 18, ValuePct: 50},
		}},
		Persistency: config.PersistencyConfig{Observed: []persistency.KMDataPoint{
			{Month: 0, Survival: 100}, {Month: 6, Survival: 40}, {Month: 12, Survival: 25},
		}},
	})

	report, err := GetForecast(zap.NewNop(), resolved, nil)
	require.NoError(t, err)

	require.NotNil(t, report.Adoption.Score)
	assert.Equal(t, 3, report.Adoption.Score.N)
	require.NotNil(t, report.Persistency.Score)
	assert.Equal(t, 3, report.Persistency.Score.N)
}

func TestGetForecastNotes(t *testing.T) {
	horizon := 12
	resolved := resolve(t, config.Configuration{
		Persistency: config.PersistencyConfig{
			Horizon: &horizon,
			Model:   "mixtureCure",
			Params:  config.ParamPatches{"mixtureCure": {"pi": 0.8}},
		},
	})
	state, _, err := resolved.Adoption.Snapshot()
	require.NoError(t, err)
	state, err = state.Edit(state.Scenarios[0].ID)
	require.NoError(t, err)
	resolved.Adoption = state

	report, err := GetForecast(zap.NewNop(), resolved, nil)
	require.NoError(t, err)

	assert.Contains(t, report.Notes, "Median duration of therapy is beyond the 12 month horizon")
	assert.Contains(t, report.Notes, `Adoption curve shows scenario "Scenario A"`)
}
