// Package optimization provides a bounded derivative-free minimizer and the
// shared data structures for optimization results.
package optimization

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"github.com/iwvelando/curve-forecast/pkg/mathutil"
	"github.com/montanaflynn/stats"
	"gonum.org/v1/gonum/floats"
)

// Nelder–Mead coefficients.
const (
	reflection  = 1.0
	expansion   = 2.0
	contraction = 0.5
	shrinkage   = 0.5

	// unitMargin keeps encoded start values away from logit(0) and logit(1).
	unitMargin = 1e-9
)

const (
	defaultMaxIterations = 400
	defaultTolerance     = 1e-7
	defaultInitialStep   = 0.2
)

var (
	// ErrInvalidBounds is returned when a bound has min >= max or a
	// non-finite endpoint.
	ErrInvalidBounds = errors.New("optimization: invalid bounds")

	// ErrDimension is returned when start and bounds disagree in length or
	// the problem has no dimensions.
	ErrDimension = errors.New("optimization: dimension mismatch")
)

// Bound is a closed box for one parameter.
type Bound struct {
	Min float64 `json:"min" yaml:"min"`
	Max float64 `json:"max" yaml:"max"`
}

// Span returns the width of the bound.
func (b Bound) Span() float64 {
	return b.Max - b.Min
}

// Clamp limits value to the bound.
func (b Bound) Clamp(value float64) float64 {
	return mathutil.Clamp(value, b.Min, b.Max)
}

func (b Bound) valid() bool {
	return mathutil.IsFinite(b.Min) && mathutil.IsFinite(b.Max) && b.Min < b.Max
}

// Options tunes a single simplex run. Zero values select the defaults.
type Options struct {
	MaxIterations int     `json:"maxIterations" yaml:"maxIterations" mapstructure:"maxIterations"`
	Tolerance     float64 `json:"tolerance" yaml:"tolerance" mapstructure:"tolerance"`
	InitialStep   float64 `json:"initialStep" yaml:"initialStep" mapstructure:"initialStep"`
}

// Normalize fills unset fields with defaults.
func (o Options) Normalize() Options {
	if o.MaxIterations <= 0 {
		o.MaxIterations = defaultMaxIterations
	}
	if o.Tolerance <= 0 {
		o.Tolerance = defaultTolerance
	}
	if o.InitialStep <= 0 {
		o.InitialStep = defaultInitialStep
	}
	return o
}

// Objective maps a decoded, in-bounds parameter vector to a loss.
type Objective func(x []float64) float64

// Result is the best vertex found by a run.
type Result struct {
	X          []float64 `json:"x"`
	FX         float64   `json:"fx"`
	Iterations int       `json:"iterations"`
	Converged  bool      `json:"converged"`
}

// Better reports whether r strictly improves on other; NaN losses never win.
func (r Result) Better(other Result) bool {
	return mathutil.Less(r.FX, other.FX)
}

type vertex struct {
	u  []float64
	x  []float64
	fx float64
}

// ValidateBounds checks every bound and the dimension of start.
func ValidateBounds(bounds []Bound, start []float64) error {
	if len(bounds) == 0 || len(bounds) != len(start) {
		return fmt.Errorf("%w: %d bounds for %d start values", ErrDimension, len(bounds), len(start))
	}
	for i, b := range bounds {
		if !b.valid() {
			return fmt.Errorf("%w: parameter %d has [%g, %g]", ErrInvalidBounds, i, b.Min, b.Max)
		}
	}
	return nil
}

// Minimize runs a Nelder–Mead search in the unconstrained coordinate
// u = logit((x-min)/(max-min)), so every vertex decodes to a feasible x.
// The search stops once the population standard deviation of the vertex
// losses falls below Tolerance, or after MaxIterations.
func Minimize(objective Objective, bounds []Bound, start []float64, opts Options) (Result, error) {
	if err := ValidateBounds(bounds, start); err != nil {
		return Result{}, err
	}
	opts = opts.Normalize()
	n := len(start)

	evaluate := func(u []float64) vertex {
		x := Decode(u, bounds)
		return vertex{u: u, x: x, fx: objective(x)}
	}

	startU := Encode(start, bounds)
	simplex := make([]vertex, 0, n+1)
	simplex = append(simplex, evaluate(startU))
	for i := 0; i < n; i++ {
		u := append([]float64(nil), startU...)
		u[i] += opts.InitialStep
		simplex = append(simplex, evaluate(u))
	}

	centroid := make([]float64, n)
	direction := make([]float64, n)
	losses := make([]float64, n+1)

	for iter := 0; iter < opts.MaxIterations; iter++ {
		order(simplex)
		best, worst, secondWorst := simplex[0], simplex[n], simplex[n-1]

		for i := range simplex {
			losses[i] = simplex[i].fx
		}
		if spread, err := stats.StandardDeviationPopulation(losses); err == nil && spread < opts.Tolerance {
			return result(best, iter, true), nil
		}

		for i := range centroid {
			centroid[i] = 0
		}
		for _, v := range simplex[:n] {
			floats.Add(centroid, v.u)
		}
		floats.Scale(1/float64(n), centroid)

		floats.SubTo(direction, centroid, worst.u)
		reflected := evaluate(floats.AddScaledTo(make([]float64, n), centroid, reflection, direction))

		if mathutil.Less(reflected.fx, best.fx) {
			floats.SubTo(direction, reflected.u, centroid)
			expanded := evaluate(floats.AddScaledTo(make([]float64, n), centroid, expansion, direction))
			if mathutil.Less(expanded.fx, reflected.fx) {
				simplex[n] = expanded
			} else {
				simplex[n] = reflected
			}
			continue
		}

		if mathutil.Less(reflected.fx, secondWorst.fx) {
			simplex[n] = reflected
			continue
		}

		// Outside contraction toward the reflected point when it beat the
		// worst vertex, inside contraction toward the worst otherwise.
		toward := worst.u
		if mathutil.Less(reflected.fx, worst.fx) {
			toward = reflected.u
		}
		floats.SubTo(direction, toward, centroid)
		contracted := evaluate(floats.AddScaledTo(make([]float64, n), centroid, contraction, direction))

		floor := worst.fx
		if mathutil.Less(reflected.fx, floor) {
			floor = reflected.fx
		}
		if mathutil.Less(contracted.fx, floor) {
			simplex[n] = contracted
			continue
		}

		for i := 1; i <= n; i++ {
			floats.SubTo(direction, simplex[i].u, best.u)
			simplex[i] = evaluate(floats.AddScaledTo(make([]float64, n), best.u, shrinkage, direction))
		}
	}

	order(simplex)
	return result(simplex[0], opts.MaxIterations, false), nil
}

// order sorts vertices by loss with NaN last; ties keep their position.
func order(simplex []vertex) {
	sort.SliceStable(simplex, func(i, j int) bool {
		return mathutil.Less(simplex[i].fx, simplex[j].fx)
	})
}

func result(v vertex, iterations int, converged bool) Result {
	return Result{
		X:          append([]float64(nil), v.x...),
		FX:         v.fx,
		Iterations: iterations,
		Converged:  converged,
	}
}

// Encode maps in-bounds values to the unconstrained coordinate.
func Encode(x []float64, bounds []Bound) []float64 {
	u := make([]float64, len(x))
	for i, v := range x {
		r := mathutil.Clamp((v-bounds[i].Min)/bounds[i].Span(), unitMargin, 1-unitMargin)
		u[i] = math.Log(r / (1 - r))
	}
	return u
}

// Decode maps unconstrained coordinates back into the bounds.
func Decode(u []float64, bounds []Bound) []float64 {
	x := make([]float64, len(u))
	for i, v := range u {
		x[i] = bounds[i].Min + sigmoid(v)*bounds[i].Span()
	}
	return x
}

func sigmoid(z float64) float64 {
	if z >= 0 {
		return 1 / (1 + math.Exp(-z))
	}
	ez := math.Exp(z)
	return ez / (1 + ez)
}
