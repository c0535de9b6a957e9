package optimization

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRestartsShiftAndClamp(t *testing.T) {
	bounds := []Bound{{Min: 0, Max: 10}, {Min: 1, Max: 100}}
	starts := Restarts([]float64{9.5, 50}, bounds, 0.08)
	require.Len(t, starts, 3)

	assert.Equal(t, []float64{9.5, 50}, starts[0])
	assert.InDelta(t, 10, starts[1][0], 1e-12, "shifted up past the bound is clamped")
	assert.InDelta(t, 57.92, starts[1][1], 1e-9)
	assert.InDelta(t, 8.7, starts[2][0], 1e-9)
	assert.InDelta(t, 42.08, starts[2][1], 1e-9)
}

func TestMultiStartEscapesLocalMinimum(t *testing.T) {
	// Two wells: a shallow one at 0.2 and a deep one at 0.8. A start on the
	// shallow side still reaches the deep well through the upward restart or
	// the simplex steps.
	objective := func(x []float64) float64 {
		a := (x[0] - 0.2) * (x[0] - 0.2)
		b := (x[0]-0.8)*(x[0]-0.8) - 0.05
		return math.Min(a, b)
	}
	bounds := []Bound{{Min: 0, Max: 1}}

	res, err := MultiStart(objective, bounds, []float64{0.45}, 0.3, Options{MaxIterations: 400, Tolerance: 1e-12})
	require.NoError(t, err)
	assert.InDelta(t, 0.8, res.X[0], 1e-3)
	assert.InDelta(t, -0.05, res.FX, 1e-6)
}

func TestMultiStartValidatesBounds(t *testing.T) {
	_, err := MultiStart(func(x []float64) float64 { return 0 }, []Bound{{Min: 3, Max: 3}}, []float64{3}, 0, Options{})
	assert.ErrorIs(t, err, ErrInvalidBounds)
}
