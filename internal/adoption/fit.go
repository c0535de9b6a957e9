package adoption

import (
	"fmt"
	"math"
	"sort"

	"github.com/iwvelando/curve-forecast/internal/fitting"
	"github.com/iwvelando/curve-forecast/pkg/constants"
	"github.com/iwvelando/curve-forecast/pkg/mathutil"
	"github.com/iwvelando/curve-forecast/pkg/optimization"
)

// Keys of the core fields fitted alongside the shape parameters.
const (
	KeyCeilingPct = "ceilingPct"
	KeyLaunchLag  = "launchLag"
	KeyT0Fraction = "t0Fraction"
)

// ObservedPoint is one observed cumulative adoption value.
type ObservedPoint struct {
	Period   int     `json:"period" yaml:"period" mapstructure:"period"`
	ValuePct float64 `json:"valuePct" yaml:"valuePct" mapstructure:"valuePct"`
}

// NormalizeObserved drops negative periods, keeps the last value for each
// period and sorts ascending.
func NormalizeObserved(points []ObservedPoint) []ObservedPoint {
	byPeriod := make(map[int]float64, len(points))
	for _, pt := range points {
		if pt.Period < 0 {
			continue
		}
		byPeriod[pt.Period] = pt.ValuePct
	}
	out := make([]ObservedPoint, 0, len(byPeriod))
	for period, v := range byPeriod {
		out = append(out, ObservedPoint{Period: period, ValuePct: v})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Period < out[j].Period })
	return out
}

// FitOptions tunes the adoption fits.
type FitOptions struct {
	Simplex       optimization.Options `json:"simplex"`
	RestartSpread float64              `json:"restartSpread"`
}

// DefaultFitOptions returns the adoption fitting defaults.
func DefaultFitOptions() FitOptions {
	return FitOptions{
		Simplex:       optimization.Options{MaxIterations: 350, Tolerance: 1e-8, InitialStep: 0.22},
		RestartSpread: optimization.DefaultRestartSpread,
	}
}

// FitResult is the outcome of fitting one model.
type FitResult struct {
	Model Model `json:"model"`
	// Params holds the fitted shape parameters plus ceilingPct and launchLag.
	// t0 is in absolute periods; t0Fraction is the searched fraction of the
	// fit horizon.
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
	rateBound    = optimization.Bound{Min: 0.05, Max: 1.0}
	t0Bound      = optimization.Bound{Min: 0.05, Max: 0.95}
	nuBound      = optimization.Bound{Min: 0.1, Max: 5.0}
	pBound       = optimization.Bound{Min: 0.001, Max: 0.1}
	qBound       = optimization.Bound{Min: 0.01, Max: 0.8}
	ceilingBound = optimization.Bound{Min: 1, Max: 100}
	lagBound     = optimization.Bound{Min: 0, Max: 24}
)

// Bounds returns the fitted parameters of model m in search order, or nil
// for a model without free parameters.
func Bounds(m Model) []ParamBound {
	var shape []ParamBound
	switch m {
	case Logistic, Gompertz:
		shape = []ParamBound{{"k", rateBound}, {"t0", t0Bound}}
	case Richards:
		shape = []ParamBound{{"k", rateBound}, {"t0", t0Bound}, {"nu", nuBound}}
	case Bass:
		shape = []ParamBound{{"p", pBound}, {"q", qBound}}
	default:
		return nil
	}
	return append(shape, ParamBound{KeyCeilingPct, ceilingBound}, ParamBound{KeyLaunchLag, lagBound})
}

// candidate maps a decoded search vector to model coefficients and a core.
func candidate(base Params, core CoreParams, defs []ParamBound, x []float64, horizon int) (Params, CoreParams) {
	shape := make(map[string]float64, len(defs))
	for i, def := range defs {
		switch def.Key {
		case KeyCeilingPct:
			core.CeilingPct = x[i]
		case KeyLaunchLag:
			core.LaunchLag = x[i]
		case "t0":
			shape["t0"] = x[i] * float64(horizon)
		default:
			shape[def.Key] = x[i]
		}
	}
	p, err := WithValues(base, shape)
	if err != nil {
		return base, core
	}
	return p, core
}

// startVector reads the current values as a starting point clamped into the
// search box. t0 is converted to a fraction of the fit horizon.
func startVector(p Params, core CoreParams, defs []ParamBound, horizon int) []float64 {
	values := p.Values()
	start := make([]float64, len(defs))
	for i, def := range defs {
		var v float64
		switch def.Key {
		case KeyCeilingPct:
			v = core.CeilingPct
		case KeyLaunchLag:
			v = core.LaunchLag
		case "t0":
			v = values["t0"] / float64(horizon)
		default:
			v = values[def.Key]
		}
		start[i] = def.Bound.Clamp(mathutil.Finite(v, def.Bound.Min))
	}
	return start
}

// predict returns observed values paired with the series predictions;
// observations outside 1..len(cumulative) are skipped.
func predict(cumulative []float64, observed []ObservedPoint) ([]float64, []float64) {
	ys := make([]float64, 0, len(observed))
	yhat := make([]float64, 0, len(observed))
	for _, pt := range observed {
		idx := pt.Period - 1
		if idx < 0 || idx >= len(cumulative) {
			continue
		}
		ys = append(ys, pt.ValuePct)
		yhat = append(yhat, cumulative[idx])
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

func maxPeriod(observed []ObservedPoint) int {
	maxP := 0
	for _, pt := range observed {
		if pt.Period > maxP {
			maxP = pt.Period
		}
	}
	return maxP
}

func observedValues(observed []ObservedPoint) []float64 {
	values := make([]float64, len(observed))
	for i, pt := range observed {
		values[i] = pt.ValuePct
	}
	return values
}

// withinHorizon keeps the observations a series of length horizon can
// predict, those at periods 1..horizon.
func withinHorizon(observed []ObservedPoint, horizon int) []ObservedPoint {
	out := make([]ObservedPoint, 0, len(observed))
	for _, pt := range observed {
		if pt.Period >= 1 && pt.Period <= horizon {
			out = append(out, pt)
		}
	}
	return out
}

// Fittable reports whether observed can be fitted: at least two points in
// periods 1..MaxHorizon that are not all the same value. Period 0 precedes
// every series and never enters a fit.
func Fittable(observed []ObservedPoint) bool {
	usable := withinHorizon(observed, constants.MaxHorizon)
	return len(usable) >= constants.MinimumFitPoints && !fitting.ZeroVariance(observedValues(usable))
}

// Fit estimates the parameters of model m, starting from the current params
// and core. It returns nil when m has no free parameters or observed is not
// fittable; an error only signals a malformed search box.
func Fit(m Model, core CoreParams, params ParamSet, observed []ObservedPoint, opts FitOptions) (*FitResult, error) {
	defs := Bounds(m)
	base := params.For(m)
	if len(defs) == 0 || base == nil {
		return nil, nil
	}
	observed = NormalizeObserved(observed)
	horizon := core.FitHorizon(maxPeriod(observed))
	observed = withinHorizon(observed, horizon)
	if !Fittable(observed) {
		return nil, nil
	}

	fitCore := core.clone()
	fitCore.Horizon = horizon
	fitCore.TAM = nil
	fitCore.TimeToPeak = nil

	bounds := make([]optimization.Bound, len(defs))
	for i, def := range defs {
		bounds[i] = def.Bound
	}

	objective := func(x []float64) float64 {
		p, c := candidate(base, fitCore, defs, x, horizon)
		ys, yhat := predict(Generate(p, c).CumulativePct, observed)
		return sse(ys, yhat)
	}

	start := startVector(base, fitCore, defs, horizon)
	res, err := optimization.MultiStart(objective, bounds, start, opts.RestartSpread, opts.Simplex)
	if err != nil {
		return nil, fmt.Errorf("fit %s: %w", m, err)
	}

	p, c := candidate(base, fitCore, defs, res.X, horizon)
	ys, yhat := predict(Generate(p, c).CumulativePct, observed)

	fitted := p.Values()
	fitted[KeyCeilingPct] = c.CeilingPct
	fitted[KeyLaunchLag] = c.LaunchLag
	for i, def := range defs {
		if def.Key == "t0" {
			fitted[KeyT0Fraction] = res.X[i]
		}
	}

	return &FitResult{
		Model:      m,
		Params:     fitted,
		Metrics:    fitting.Compute(ys, yhat),
		Loss:       res.FX,
		Iterations: res.Iterations,
		Converged:  res.Converged,
		Horizon:    horizon,
	}, nil
}

// FitAll fits every model in models (FittableModels when empty). Models that
// cannot be fitted are absent from the map.
func FitAll(models []Model, core CoreParams, params ParamSet, observed []ObservedPoint, opts FitOptions) (map[Model]*FitResult, error) {
	if len(models) == 0 {
		models = FittableModels
	}
	results := make(map[Model]*FitResult, len(models))
	for _, m := range models {
		res, err := Fit(m, core, params, observed, opts)
		if err != nil {
			return nil, err
		}
		if res != nil {
			results[m] = res
		}
	}
	return results, nil
}

// Best ranks results by ascending RMSE then descending R² and returns the
// winner, or nil when there are none. Ties go to the earlier model in
// Models order.
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
	return ordered[fitting.Rank(metrics, fitting.ByRMSE)[0]]
}

// ApplyFit writes a fit back into the live state: only the fitted model's
// coefficients change, ceiling and the rounded launch lag are updated, and the
// fitted model becomes active.
func ApplyFit(s State, res FitResult) (State, error) {
	base := s.Params.For(res.Model)
	if base == nil {
		return s, fmt.Errorf("%w: %q", ErrUnknownModel, res.Model)
	}

	shape := make(map[string]float64, len(res.Params))
	known := base.Values()
	for key, v := range res.Params {
		if _, ok := known[key]; ok {
			shape[key] = v
		}
	}
	p, err := WithValues(base, shape)
	if err != nil {
		return s, err
	}

	patch := CorePatch{}
	if v, ok := res.Params[KeyCeilingPct]; ok {
		ceiling := mathutil.Clamp(v, 0, constants.PercentMax)
		patch.CeilingPct = &ceiling
	}
	if v, ok := res.Params[KeyLaunchLag]; ok {
		lag := math.Max(0, math.Round(v))
		patch.LaunchLag = &lag
	}

	return s.WithModel(res.Model).WithParams(p).WithCore(patch), nil
}

// Score measures the given coefficients against observed without fitting.
// It returns nil when no observation falls inside the fit horizon.
func Score(p Params, core CoreParams, observed []ObservedPoint) *fitting.Metrics {
	observed = NormalizeObserved(observed)
	if len(observed) == 0 || p == nil {
		return nil
	}
	c := core.clone()
	c.Horizon = core.FitHorizon(maxPeriod(observed))
	ys, yhat := predict(Generate(p, c).CumulativePct, observed)
	if len(ys) == 0 {
		return nil
	}
	m := fitting.Compute(ys, yhat)
	return &m
}
