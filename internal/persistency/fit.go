package persistency

import (
	"fmt"
	"sort"

	"github.com/iwvelando/curve-forecast/internal/fitting"
	"github.com/iwvelando/curve-forecast/pkg/constants"
	"github.com/iwvelando/curve-forecast/pkg/mathutil"
	"github.com/iwvelando/curve-forecast/pkg/optimization"
)

// KMDataPoint is one Kaplan–Meier observation.
type KMDataPoint struct {
	Month    int     `json:"month" yaml:"month" mapstructure:"month"`
	Survival float64 `json:"survival" yaml:"survival" mapstructure:"survival"`
}

// NormalizeKM drops negative months, keeps the last value for each month and
// sorts ascending.
func NormalizeKM(points []KMDataPoint) []KMDataPoint {
	byMonth := make(map[int]float64, len(points))
	for _, pt := range points {
		if pt.Month < 0 {
			continue
		}
		byMonth[pt.Month] = pt.Survival
	}
	out := make([]KMDataPoint, 0, len(byMonth))
	for month, v := range byMonth {
		out = append(out, KMDataPoint{Month: month, Survival: v})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Month < out[j].Month })
	return out
}

// FitOptions tunes the persistency fits.
type FitOptions struct {
	Simplex       optimization.Options `json:"simplex"`
	RestartSpread float64              `json:"restartSpread"`
}

// DefaultFitOptions returns the persistency fitting defaults.
func DefaultFitOptions() FitOptions {
	return FitOptions{
		Simplex:       optimization.Options{MaxIterations: 600, Tolerance: 1e-7, InitialStep: 0.2},
		RestartSpread: optimization.DefaultRestartSpread,
	}
}

// FitResult is the outcome of fitting one model.
type FitResult struct {
	Model      Model              `json:"model"`
	Params     map[string]float64 `json:"params"`
	Metrics    fitting.Metrics    `json:"metrics"`
	Loss       float64            `json:"loss"`
	Iterations int                `json:"iterations"`
	Converged  bool               `json:"converged"`
	Horizon    int                `json:"horizon"`
}

// ParamBound names a fitted parameter and its search box.
type ParamBound struct {
	Key   string
	Bound optimization.Bound
}

var (
	scaleBound   = optimization.Bound{Min: 0.5, Max: 60}
	shapeBound   = optimization.Bound{Min: 0.2, Max: 5}
	ceilingBound = optimization.Bound{Min: 50, Max: 100}
)

// Bounds returns the fitted parameters of model m in search order, or nil
// for Piecewise.
func Bounds(m Model) []ParamBound {
	switch m {
	case Weibull:
		return []ParamBound{{"lambda", scaleBound}, {"k", shapeBound}, {"ceiling", ceilingBound}}
	case Exponential:
		return []ParamBound{{"lambda", optimization.Bound{Min: 0.005, Max: 1}}, {"ceiling", ceilingBound}}
	case LogNormal:
		return []ParamBound{
			{"medianMonths", optimization.Bound{Min: 1, Max: 60}},
			{"sigma", optimization.Bound{Min: 0.1, Max: 3}},
			{"ceiling", ceilingBound},
		}
	case MixtureCure:
		return []ParamBound{{"pi", optimization.Bound{Min: 0.01, Max: 0.8}}, {"lambda", scaleBound}, {"k", shapeBound}}
	default:
		return nil
	}
}

func candidate(base Params, defs []ParamBound, x []float64) Params {
	values := make(map[string]float64, len(defs))
	for i, def := range defs {
		values[def.Key] = x[i]
	}
	p, err := WithValues(base, values)
	if err != nil {
		return base
	}
	return p
}

func predict(p Params, observed []KMDataPoint) ([]float64, []float64) {
	ys := make([]float64, len(observed))
	yhat := make([]float64, len(observed))
	for i, pt := range observed {
		ys[i] = pt.Survival
		yhat[i] = SurvivalAt(p, float64(pt.Month))
	}
	return ys, yhat
}

func sse(ys, yhat []float64) float64 {
	total := 0.0
	for i := range ys {
		residual := yhat[i] - ys[i]
		total += residual * residual
	}
	return total
}

// Fittable reports whether observed has at least two points that are not
// all the same value.
func Fittable(observed []KMDataPoint) bool {
	if len(observed) < constants.MinimumFitPoints {
		return false
	}
	values := make([]float64, len(observed))
	for i, pt := range observed {
		values[i] = pt.Survival
	}
	return !fitting.ZeroVariance(values)
}

// FitHorizon extends horizon to cover every observed month, with the
// minimum fit horizon as a floor and MaxHorizon as a ceiling.
func FitHorizon(horizon int, observed []KMDataPoint) int {
	h := horizon
	for _, pt := range observed {
		if pt.Month > h {
			h = pt.Month
		}
	}
	if h < constants.MinimumFitHorizon {
		h = constants.MinimumFitHorizon
	}
	if h > constants.MaxHorizon {
		h = constants.MaxHorizon
	}
	return h
}

// Fit estimates the parameters of model m starting from the current params.
// Survival is evaluated in closed form at every observed month. It returns
// nil for Piecewise or unfittable data; an error only signals a malformed
// search box.
func Fit(m Model, params ParamSet, horizon int, observed []KMDataPoint, opts FitOptions) (*FitResult, error) {
	defs := Bounds(m)
	base := params.For(m)
	if len(defs) == 0 || base == nil {
		return nil, nil
	}
	observed = NormalizeKM(observed)
	if !Fittable(observed) {
		return nil, nil
	}

	bounds := make([]optimization.Bound, len(defs))
	start := make([]float64, len(defs))
	current := base.Values()
	for i, def := range defs {
		bounds[i] = def.Bound
		start[i] = def.Bound.Clamp(mathutil.Finite(current[def.Key], def.Bound.Min))
	}

	objective := func(x []float64) float64 {
		ys, yhat := predict(candidate(base, defs, x), observed)
		return sse(ys, yhat)
	}

	res, err := optimization.MultiStart(objective, bounds, start, opts.RestartSpread, opts.Simplex)
	if err != nil {
		return nil, fmt.Errorf("fit %s: %w", m, err)
	}

	fitted := candidate(base, defs, res.X)
	ys, yhat := predict(fitted, observed)
	return &FitResult{
		Model:      m,
		Params:     fitted.Values(),
		Metrics:    fitting.Compute(ys, yhat),
		Loss:       res.FX,
		Iterations: res.Iterations,
		Converged:  res.Converged,
		Horizon:    FitHorizon(horizon, observed),
	}, nil
}

// FitAll fits every model in models (FittableModels when empty).
func FitAll(models []Model, params ParamSet, horizon int, observed []KMDataPoint, opts FitOptions) (map[Model]*FitResult, error) {
	if len(models) == 0 {
		models = FittableModels
	}
	results := make(map[Model]*FitResult, len(models))
	for _, m := range models {
		res, err := Fit(m, params, horizon, observed, opts)
		if err != nil {
			return nil, err
		}
		if res != nil {
			results[m] = res
		}
	}
	return results, nil
}

// Best ranks results by ascending SSE then descending R².
func Best(results map[Model]*FitResult) *FitResult {
	ordered := make([]*FitResult, 0, len(results))
	for _, m := range Models {
		if r := results[m]; r != nil {
			ordered = append(ordered, r)
		}
	}
	if len(ordered) == 0 {
		return nil
	}
	metrics := make([]fitting.Metrics, len(ordered))
	for i, r := range ordered {
		metrics[i] = r.Metrics
	}
	return ordered[fitting.Rank(metrics, fitting.BySSE)[0]]
}

// ApplyFit writes the fitted coefficients into the live state and makes the
// fitted model active.
func ApplyFit(s State, res FitResult) (State, error) {
	base := s.Params.For(res.Model)
	if base == nil {
		return s, fmt.Errorf("%w: %q", ErrUnknownModel, res.Model)
	}
	known := base.Values()
	values := make(map[string]float64, len(res.Params))
	for key, v := range res.Params {
		if _, ok := known[key]; ok {
			values[key] = v
		}
	}
	p, err := WithValues(base, values)
	if err != nil {
		return s, err
	}
	return s.WithModel(res.Model).WithParams(p), nil
}

// Score measures the given coefficients against observed without fitting.
func Score(p Params, observed []KMDataPoint) *fitting.Metrics {
	observed = NormalizeKM(observed)
	if len(observed) == 0 || p == nil {
		return nil
	}
	ys, yhat := predict(p, observed)
	m := fitting.Compute(ys, yhat)
	return &m
}
