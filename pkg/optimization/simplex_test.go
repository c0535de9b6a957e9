package optimization

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func squaredDistance(target []float64) Objective {
	return func(x []float64) float64 {
		sum := 0.0
		for i := range x {
			d := x[i] - target[i]
			sum += d * d
		}
		return sum
	}
}

func TestMinimizeConvergesToInteriorPoint(t *testing.T) {
	target := []float64{0.3, 12, -4}
	bounds := []Bound{{Min: 0, Max: 1}, {Min: 0, Max: 60}, {Min: -10, Max: 10}}
	start := []float64{0.8, 40, 5}

	res, err := Minimize(squaredDistance(target), bounds, start, Options{MaxIterations: 2000, Tolerance: 1e-12})
	require.NoError(t, err)

	assert.True(t, res.Converged, "expected convergence before the iteration cap")
	assert.Less(t, res.FX, 1e-6)
	for i := range target {
		assert.InDelta(t, target[i], res.X[i], 1e-3, "coordinate %d", i)
	}
}

func TestMinimizeStaysInsideBounds(t *testing.T) {
	// The unconstrained optimum sits outside the box, so the search should
	// press against the upper edge without crossing it.
	bounds := []Bound{{Min: 0, Max: 1}, {Min: 2, Max: 3}}
	res, err := Minimize(squaredDistance([]float64{5, 10}), bounds, []float64{0.5, 2.5}, Options{MaxIterations: 500})
	require.NoError(t, err)

	for i, b := range bounds {
		assert.GreaterOrEqual(t, res.X[i], b.Min)
		assert.LessOrEqual(t, res.X[i], b.Max)
		assert.InDelta(t, b.Max, res.X[i], 1e-2)
	}
}

func TestMinimizeToleratesNaNObjective(t *testing.T) {
	// NaN everywhere above x=0.6 must lose against any real loss.
	objective := func(x []float64) float64 {
		if x[0] > 0.6 {
			return math.NaN()
		}
		d := x[0] - 0.4
		return d * d
	}
	res, err := Minimize(objective, []Bound{{Min: 0, Max: 1}}, []float64{0.55}, Options{MaxIterations: 500, Tolerance: 1e-14})
	require.NoError(t, err)

	assert.False(t, math.IsNaN(res.FX))
	assert.InDelta(t, 0.4, res.X[0], 1e-3)
}

func TestMinimizeReturnsBestAtIterationCap(t *testing.T) {
	res, err := Minimize(squaredDistance([]float64{0.2, 0.7}), []Bound{{0, 1}, {0, 1}}, []float64{0.9, 0.1}, Options{MaxIterations: 3})
	require.NoError(t, err)

	assert.False(t, res.Converged)
	assert.Equal(t, 3, res.Iterations)
	start := squaredDistance([]float64{0.2, 0.7})([]float64{0.9, 0.1})
	assert.LessOrEqual(t, res.FX, start)
}

func TestMinimizeRejectsMalformedInput(t *testing.T) {
	objective := squaredDistance([]float64{0})
	tests := []struct {
		name   string
		bounds []Bound
		start  []float64
		want   error
	}{
		{"Degenerate bound", []Bound{{Min: 1, Max: 1}}, []float64{1}, ErrInvalidBounds},
		{"Inverted bound", []Bound{{Min: 2, Max: 1}}, []float64{1.5}, ErrInvalidBounds},
		{"Infinite bound", []Bound{{Min: 0, Max: math.Inf(1)}}, []float64{1}, ErrInvalidBounds},
		{"Length mismatch", []Bound{{Min: 0, Max: 1}}, []float64{0.5, 0.5}, ErrDimension},
		{"Empty problem", nil, nil, ErrDimension},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Minimize(objective, tt.bounds, tt.start, Options{})
			require.Error(t, err)
			assert.True(t, errors.Is(err, tt.want), "got %v", err)
		})
	}
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	bounds := []Bound{{Min: 0.05, Max: 1}, {Min: 1, Max: 100}, {Min: 0, Max: 24}}
	x := []float64{0.28, 92, 3}

	back := Decode(Encode(x, bounds), bounds)
	for i := range x {
		assert.InDelta(t, x[i], back[i], 1e-9)
	}

	// Values on the edges are pulled just inside so the logit stays finite.
	edges := Encode([]float64{0.05, 100, 0}, bounds)
	for _, u := range edges {
		assert.False(t, math.IsInf(u, 0))
	}
}

func TestOptionsNormalize(t *testing.T) {
	opts := Options{}.Normalize()
	assert.Equal(t, defaultMaxIterations, opts.MaxIterations)
	assert.Equal(t, defaultTolerance, opts.Tolerance)
	assert.Equal(t, defaultInitialStep, opts.InitialStep)

	custom := Options{MaxIterations: 10, Tolerance: 1e-3, InitialStep: 0.5}.Normalize()
	assert.Equal(t, Options{MaxIterations: 10, Tolerance: 1e-3, InitialStep: 0.5}, custom)
}
