package fitting

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestComputePerfectFit(t *testing.T) {
	y := []float64{10, 20, 30, 40}
	m := Compute(y, y)

	assert.Equal(t, 1.0, m.R2)
	assert.Equal(t, 0.0, m.RMSE)
	assert.Equal(t, 0.0, m.SSE)
	assert.Equal(t, 0.0, m.MAPE)
	assert.Equal(t, 4, m.N)
}

func TestComputeKnownResiduals(t *testing.T) {
	observed := []float64{10, 20, 30, 40}
	predicted := []float64{12, 18, 30, 44}
	m := Compute(observed, predicted)

	// SSres = 4 + 4 + 0 + 16 = 24, SStot = 225 + 25 + 25 + 225 = 500
	assert.InDelta(t, 24, m.SSE, 1e-12)
	assert.InDelta(t, 1-24.0/500, m.R2, 1e-12)
	assert.InDelta(t, math.Sqrt(6), m.RMSE, 1e-12)
	// (0.2 + 0.1 + 0 + 0.1) / 4 * 100
	assert.InDelta(t, 10, m.MAPE, 1e-9)
}

func TestComputeConstantObservations(t *testing.T) {
	flat := []float64{50, 50, 50}
	assert.Equal(t, 1.0, Compute(flat, []float64{50, 50, 50}).R2)
	assert.Equal(t, 0.0, Compute(flat, []float64{49, 50, 51}).R2)
}

func TestComputeMAPESkipsZeroObservations(t *testing.T) {
	m := Compute([]float64{0, 10}, []float64{1, 11})
	assert.InDelta(t, 10, m.MAPE, 1e-9)

	allZero := Compute([]float64{0, 0}, []float64{1, 2})
	assert.Equal(t, 0.0, allZero.MAPE)
}

func TestComputeEmpty(t *testing.T) {
	assert.Equal(t, Metrics{}, Compute(nil, nil))
}

func TestZeroVariance(t *testing.T) {
	assert.True(t, ZeroVariance([]float64{3, 3, 3}))
	assert.True(t, ZeroVariance(nil))
	assert.False(t, ZeroVariance([]float64{3, 3.1}))
}
