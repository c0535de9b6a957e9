// Package persistency evaluates therapy persistency (survival) curves, their
// hazards and business metrics, simulates cohort waterfalls, and fits the
// parametric families to Kaplan–Meier observations.
package persistency

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/iwvelando/curve-forecast/pkg/constants"
	"github.com/iwvelando/curve-forecast/pkg/mathutil"
	"github.com/iwvelando/curve-forecast/pkg/validation"
)

// Model identifies a survival curve family.
type Model string

// Survival curve families.
const (
	Weibull     Model = "weibull"
	Exponential Model = "exponential"
	LogNormal   Model = "logNormal"
	Piecewise   Model = "piecewise"
	MixtureCure Model = "mixtureCure"
)

// Models lists every family in display order.
var Models = []Model{Weibull, Exponential, LogNormal, Piecewise, MixtureCure}

// FittableModels lists the families fitted by optimization. Piecewise
// curves are specified by their knots.
var FittableModels = []Model{Weibull, Exponential, LogNormal, MixtureCure}

var (
	// ErrUnknownModel is returned for an unrecognized model name.
	ErrUnknownModel = errors.New("persistency: unknown model")
	// ErrUnknownParam is returned for a parameter key the model does not have.
	ErrUnknownParam = errors.New("persistency: unknown parameter")
)

// ParseModel resolves a model name case-insensitively.
func ParseModel(name string) (Model, error) {
	normalized := strings.ToLower(strings.TrimSpace(name))
	for _, m := range Models {
		if strings.ToLower(string(m)) == normalized {
			return m, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownModel, name)
}

// Label returns the display name of the model.
func (m Model) Label() string {
	switch m {
	case Weibull:
		return "Weibull"
	case Exponential:
		return "Exponential"
	case LogNormal:
		return "Log-Normal"
	case Piecewise:
		return "Piecewise Linear"
	case MixtureCure:
		return "Mixture Cure"
	default:
		return string(m)
	}
}

// Params is the sealed sum of per-family coefficients.
type Params interface {
	Model() Model
	// Values flattens the scalar coefficients by key. Piecewise has none.
	Values() map[string]float64
	isParams()
}

// WeibullParams: ceiling exp(-(t/lambda)^k).
type WeibullParams struct {
	Lambda  float64 `json:"lambda" validate:"gt=0"`
	K       float64 `json:"k" validate:"gt=0,lte=50"`
	Ceiling float64 `json:"ceiling" validate:"gte=0,lte=100"`
}

// ExponentialParams: ceiling exp(-lambda t).
type ExponentialParams struct {
	Lambda  float64 `json:"lambda" validate:"gte=0"`
	Ceiling float64 `json:"ceiling" validate:"gte=0,lte=100"`
}

// LogNormalParams: ceiling (1 - Φ((ln t - ln median) / sigma)).
type LogNormalParams struct {
	MedianMonths float64 `json:"medianMonths" validate:"gt=0"`
	Sigma        float64 `json:"sigma" validate:"gt=0"`
	Ceiling      float64 `json:"ceiling" validate:"gte=0,lte=100"`
}

// Knot is one (month, survival%) point of a piecewise curve.
type Knot struct {
	Month    float64 `json:"month" yaml:"month" mapstructure:"month" validate:"gte=0"`
	Survival float64 `json:"survival" yaml:"survival" mapstructure:"survival" validate:"gte=0,lte=100"`
}

// PiecewiseParams interpolates linearly between knots sorted by month.
type PiecewiseParams struct {
	Knots []Knot `json:"knots" validate:"min=1,dive"`
}

// MixtureCureParams: (pi + (1-pi) exp(-(t/lambda)^k)) 100.
type MixtureCureParams struct {
	Pi     float64 `json:"pi" validate:"gte=0,lte=1"`
	Lambda float64 `json:"lambda" validate:"gt=0"`
	K      float64 `json:"k" validate:"gt=0,lte=50"`
}

func (WeibullParams) Model() Model     { return Weibull }
func (ExponentialParams) Model() Model { return Exponential }
func (LogNormalParams) Model() Model   { return LogNormal }
func (PiecewiseParams) Model() Model   { return Piecewise }
func (MixtureCureParams) Model() Model { return MixtureCure }

func (WeibullParams) isParams()     {}
func (ExponentialParams) isParams() {}
func (LogNormalParams) isParams()   {}
func (PiecewiseParams) isParams()   {}
func (MixtureCureParams) isParams() {}

func (p WeibullParams) Values() map[string]float64 {
	return map[string]float64{"lambda": p.Lambda, "k": p.K, "ceiling": p.Ceiling}
}

func (p ExponentialParams) Values() map[string]float64 {
	return map[string]float64{"lambda": p.Lambda, "ceiling": p.Ceiling}
}

func (p LogNormalParams) Values() map[string]float64 {
	return map[string]float64{"medianMonths": p.MedianMonths, "sigma": p.Sigma, "ceiling": p.Ceiling}
}

func (p PiecewiseParams) Values() map[string]float64 {
	return map[string]float64{}
}

func (p MixtureCureParams) Values() map[string]float64 {
	return map[string]float64{"pi": p.Pi, "lambda": p.Lambda, "k": p.K}
}

// clone copies the knot slice.
func (p PiecewiseParams) clone() PiecewiseParams {
	return PiecewiseParams{Knots: append([]Knot(nil), p.Knots...)}
}

// ParamSet stores one coefficient set per family.
type ParamSet struct {
	Weibull     WeibullParams     `json:"weibull"`
	Exponential ExponentialParams `json:"exponential"`
	LogNormal   LogNormalParams   `json:"logNormal"`
	Piecewise   PiecewiseParams   `json:"piecewise"`
	MixtureCure MixtureCureParams `json:"mixtureCure"`
}

// DefaultParamSet returns the starting coefficients for every family.
func DefaultParamSet() ParamSet {
	return ParamSet{
		Weibull:     WeibullParams{Lambda: 8, K: 0.7, Ceiling: 100},
		Exponential: ExponentialParams{Lambda: 0.1, Ceiling: 100},
		LogNormal:   LogNormalParams{MedianMonths: 12, Sigma: 0.8, Ceiling: 100},
		Piecewise: PiecewiseParams{Knots: []Knot{
			{Month: 0, Survival: 100},
			{Month: 6, Survival: 70},
			{Month: 12, Survival: 45},
			{Month: 18, Survival: 25},
			{Month: 24, Survival: 15},
		}},
		MixtureCure: MixtureCureParams{Pi: 0.25, Lambda: 8, K: 1},
	}
}

// For returns the coefficients of model m.
func (s ParamSet) For(m Model) Params {
	switch m {
	case Weibull:
		return s.Weibull
	case Exponential:
		return s.Exponential
	case LogNormal:
		return s.LogNormal
	case Piecewise:
		return s.Piecewise.clone()
	case MixtureCure:
		return s.MixtureCure
	default:
		return nil
	}
}

// With returns a copy of s with p's family replaced.
func (s ParamSet) With(p Params) ParamSet {
	switch v := p.(type) {
	case WeibullParams:
		s.Weibull = v
	case ExponentialParams:
		s.Exponential = v
	case LogNormalParams:
		s.LogNormal = v
	case PiecewiseParams:
		s.Piecewise = v.clone()
	case MixtureCureParams:
		s.MixtureCure = v
	}
	return s
}

// Merge overlays scalar values onto model m's coefficients.
func (s ParamSet) Merge(m Model, values map[string]float64) (ParamSet, error) {
	base := s.For(m)
	if base == nil {
		return s, fmt.Errorf("%w: %q", ErrUnknownModel, m)
	}
	merged, err := WithValues(base, values)
	if err != nil {
		return s, err
	}
	return s.With(merged), nil
}

// Validate checks every family in the set.
func (s ParamSet) Validate() error {
	for _, m := range Models {
		if err := ValidateParams(s.For(m)); err != nil {
			return err
		}
	}
	return nil
}

// ValidateParams checks the coefficients of p against their struct tags.
// Piecewise knots only need to be in range; ordering is a warning elsewhere.
func ValidateParams(p Params) error {
	if p == nil {
		return ErrUnknownModel
	}
	if err := validation.ValidateStruct(p); err != nil {
		return fmt.Errorf("persistency %s params: %w", p.Model(), err)
	}
	return nil
}

// WithValues returns base with the named coefficients replaced.
func WithValues(base Params, values map[string]float64) (Params, error) {
	keys := make([]string, 0, len(values))
	for key := range values {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	for _, key := range keys {
		v := values[key]
		switch p := base.(type) {
		case WeibullParams:
			switch key {
			case "lambda":
				p.Lambda = v
			case "k":
				p.K = v
			case "ceiling":
				p.Ceiling = v
			default:
				return base, unknownParam(Weibull, key)
			}
			base = p
		case ExponentialParams:
			switch key {
			case "lambda":
				p.Lambda = v
			case "ceiling":
				p.Ceiling = v
			default:
				return base, unknownParam(Exponential, key)
			}
			base = p
		case LogNormalParams:
			switch key {
			case "medianMonths":
				p.MedianMonths = v
			case "sigma":
				p.Sigma = v
			case "ceiling":
				p.Ceiling = v
			default:
				return base, unknownParam(LogNormal, key)
			}
			base = p
		case MixtureCureParams:
			switch key {
			case "pi":
				p.Pi = v
			case "lambda":
				p.Lambda = v
			case "k":
				p.K = v
			default:
				return base, unknownParam(MixtureCure, key)
			}
			base = p
		case PiecewiseParams:
			return base, unknownParam(Piecewise, key)
		default:
			return base, fmt.Errorf("%w: %T", ErrUnknownModel, base)
		}
	}
	return base, nil
}

func unknownParam(m Model, key string) error {
	return fmt.Errorf("%w: %s has no parameter %q", ErrUnknownParam, m, key)
}

// Abramowitz & Stegun 26.2.17 coefficients.
const (
	asA1 = 0.254829592
	asA2 = -0.284496736
	asA3 = 1.421413741
	asA4 = -1.453152027
	asA5 = 1.061405429
	asP  = 0.3275911
)

// NormalCDF approximates the standard normal CDF (absolute error below
// 7.5e-8).
func NormalCDF(z float64) float64 {
	if z < -8 {
		return 0
	}
	if z > 8 {
		return 1
	}
	sign := 1.0
	if z < 0 {
		sign = -1
	}
	x := math.Abs(z) / math.Sqrt2
	t := 1 / (1 + asP*x)
	y := 1 - ((((asA5*t+asA4)*t+asA3)*t+asA2)*t+asA1)*t*math.Exp(-x*x)
	return 0.5 * (1 + sign*y)
}

// WeibullSurvival returns ceiling at t <= 0.
func WeibullSurvival(t, lambda, k, ceiling float64) float64 {
	if t <= 0 {
		return ceiling
	}
	return ceiling * math.Exp(-math.Pow(t/lambda, k))
}

// ExponentialSurvival returns ceiling at t <= 0.
func ExponentialSurvival(t, lambda, ceiling float64) float64 {
	if t <= 0 {
		return ceiling
	}
	return ceiling * math.Exp(-lambda*t)
}

// LogNormalSurvival returns ceiling at t <= 0.
func LogNormalSurvival(t, medianMonths, sigma, ceiling float64) float64 {
	if t <= 0 {
		return ceiling
	}
	z := (math.Log(t) - math.Log(medianMonths)) / sigma
	return ceiling * (1 - NormalCDF(z))
}

// PiecewiseSurvival interpolates between knots and holds the first and last
// knot values outside their range. No knots means full survival.
func PiecewiseSurvival(t float64, knots []Knot) float64 {
	if len(knots) == 0 {
		return constants.PercentMax
	}
	first, last := knots[0], knots[len(knots)-1]
	if t <= first.Month {
		return first.Survival
	}
	if t >= last.Month {
		return last.Survival
	}
	for i := 1; i < len(knots); i++ {
		if t <= knots[i].Month {
			prev, curr := knots[i-1], knots[i]
			return mathutil.Lerp(prev.Month, prev.Survival, curr.Month, curr.Survival, t)
		}
	}
	return last.Survival
}

// MixtureCureSurvival returns 100 at t <= 0.
func MixtureCureSurvival(t, pi, lambda, k float64) float64 {
	if t <= 0 {
		return constants.PercentMax
	}
	uncured := math.Exp(-math.Pow(t/lambda, k))
	return (pi + (1-pi)*uncured) * constants.PercentMax
}

// SurvivalAt evaluates p at month t.
func SurvivalAt(p Params, t float64) float64 {
	switch v := p.(type) {
	case WeibullParams:
		return WeibullSurvival(t, v.Lambda, v.K, v.Ceiling)
	case ExponentialParams:
		return ExponentialSurvival(t, v.Lambda, v.Ceiling)
	case LogNormalParams:
		return LogNormalSurvival(t, v.MedianMonths, v.Sigma, v.Ceiling)
	case PiecewiseParams:
		return PiecewiseSurvival(t, v.Knots)
	case MixtureCureParams:
		return MixtureCureSurvival(t, v.Pi, v.Lambda, v.K)
	default:
		return 0
	}
}

// WeibullHazard is (k/lambda)(t/lambda)^(k-1). At t <= 0 it is +Inf for
// k < 1, 1/lambda for k == 1 and 0 otherwise.
func WeibullHazard(t, lambda, k float64) float64 {
	if t <= 0 {
		switch {
		case k < 1:
			return math.Inf(1)
		case k == 1:
			return 1 / lambda
		default:
			return 0
		}
	}
	return (k / lambda) * math.Pow(t/lambda, k-1)
}

// numericHazard is the central difference -(S(t+dt/2)-S(t-dt/2))/dt/S(t-dt/2),
// clamped to be non-negative.
func numericHazard(p Params, t float64) float64 {
	dt := constants.HazardStep
	s1 := SurvivalAt(p, math.Max(0, t-dt/2))
	s2 := SurvivalAt(p, t+dt/2)
	if s1 <= 0 {
		return 0
	}
	return math.Max(0, -(s2-s1)/dt/s1)
}

// HazardAt returns the instantaneous discontinuation rate of p at month t,
// analytic for Weibull, Exponential and Mixture-Cure.
func HazardAt(p Params, t float64) float64 {
	switch v := p.(type) {
	case WeibullParams:
		return WeibullHazard(t, v.Lambda, v.K)
	case ExponentialParams:
		return v.Lambda
	case MixtureCureParams:
		if v.Pi >= 1 {
			return 0
		}
		uncuredHazard := WeibullHazard(t, v.Lambda, v.K)
		uncured := math.Exp(-math.Pow(math.Max(0, t)/v.Lambda, v.K))
		total := v.Pi + (1-v.Pi)*uncured
		if total <= 0 {
			return 0
		}
		return (1 - v.Pi) * uncured * uncuredHazard / total
	case LogNormalParams, PiecewiseParams:
		return numericHazard(p, t)
	default:
		return 0
	}
}
