package persistency

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func linearDecay() []SurvivalPoint {
	series := make([]SurvivalPoint, 0, 21)
	for m := 0; m <= 20; m++ {
		series = append(series, SurvivalPoint{Month: m, Survival: 100 - 5*float64(m)})
	}
	return series
}

func TestMeanDoT(t *testing.T) {
	assert.InDelta(t, 10.0, MeanDoT(linearDecay()), 1e-9)

	flat := make([]SurvivalPoint, 0, 13)
	for m := 0; m <= 12; m++ {
		flat = append(flat, SurvivalPoint{Month: m, Survival: 100})
	}
	assert.InDelta(t, 12.0, MeanDoT(flat), 1e-9)
	assert.Zero(t, MeanDoT(flat[:1]))
}

func TestMedianDoT(t *testing.T) {
	median := MedianDoT(linearDecay())
	require.NotNil(t, median)
	assert.InDelta(t, 10.0, *median, 1e-9)

	below := []SurvivalPoint{{Month: 0, Survival: 40}, {Month: 1, Survival: 30}}
	median = MedianDoT(below)
	require.NotNil(t, median)
	assert.Zero(t, *median)

	never := []SurvivalPoint{{Month: 0, Survival: 100}, {Month: 1, Survival: 90}}
	assert.Nil(t, MedianDoT(never))

	// Weibull median is lambda (ln 2)^(1/k).
	series := Generate(WeibullParams{Lambda: 10, K: 1, Ceiling: 100}, 36)
	median = MedianDoT(series)
	require.NotNil(t, median)
	assert.InDelta(t, 6.93, *median, 0.05)
}

func TestCrossingMonthFlatStep(t *testing.T) {
	series := []SurvivalPoint{{Month: 0, Survival: 100}, {Month: 1, Survival: 75}, {Month: 2, Survival: 75}}
	month := CrossingMonth(series, 75)
	require.NotNil(t, month)
	assert.Equal(t, 1.0, *month)
}

func TestSurvivalAtMonth(t *testing.T) {
	series := linearDecay()
	v := SurvivalAtMonth(series, 6.5)
	require.NotNil(t, v)
	assert.InDelta(t, 67.5, *v, 1e-12)

	v = SurvivalAtMonth(series, 40)
	require.NotNil(t, v)
	assert.Zero(t, *v)

	assert.Nil(t, SurvivalAtMonth(nil, 6))
}

func TestComputeMetrics(t *testing.T) {
	m := ComputeMetrics(linearDecay(), 2)
	require.NotNil(t, m.SurvivalAt6)
	require.NotNil(t, m.SurvivalAt12)
	require.NotNil(t, m.SurvivalAt24)
	assert.InDelta(t, 70.0, *m.SurvivalAt6, 1e-12)
	assert.InDelta(t, 40.0, *m.SurvivalAt12, 1e-12)
	assert.Zero(t, *m.SurvivalAt24)
	require.NotNil(t, m.AnnualDoses)
	assert.InDelta(t, 20.0, *m.AnnualDoses, 1e-9)

	assert.Nil(t, ComputeMetrics(linearDecay(), 0).AnnualDoses)

	short := linearDecay()[:7]
	m = ComputeMetrics(short, 1)
	require.NotNil(t, m.AnnualDoses)
	assert.InDelta(t, MeanDoT(short)*12/6, *m.AnnualDoses, 1e-9)
}
