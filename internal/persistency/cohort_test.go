package persistency

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSimulateConservation(t *testing.T) {
	for _, m := range Models {
		p := DefaultParamSet().For(m)
		months := Simulate(p, 100, 24)
		require.Len(t, months, 24, "%s", m)
		for i, month := range months {
			assert.Equal(t, i, month.Month)
			require.Len(t, month.CohortContributions, i+1)
			sum := 0.0
			for _, c := range month.CohortContributions {
				sum += c
			}
			assert.InDelta(t, sum, month.TotalOnDrug, 0.005+1e-9, "%s month %d", m, i)
		}
	}
}

func TestSimulateContributions(t *testing.T) {
	p := ExponentialParams{Lambda: 0.1, Ceiling: 100}
	months := Simulate(p, 50, 3)

	assert.Equal(t, 50.0, months[0].TotalOnDrug)
	last := months[2].CohortContributions
	assert.InDelta(t, 50*ExponentialSurvival(2, 0.1, 100)/100, last[0], 1e-12)
	assert.InDelta(t, 50*ExponentialSurvival(1, 0.1, 100)/100, last[1], 1e-12)
	assert.Equal(t, 50.0, last[2])

	assert.Empty(t, Simulate(p, 50, 0))
}
