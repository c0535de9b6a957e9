// Package adoption evaluates technology-adoption S-curves, generates their
// per-period series, derives milestones, composes scenarios, and fits the
// curve families to observed adoption data.
package adoption

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/iwvelando/curve-forecast/pkg/constants"
	"github.com/iwvelando/curve-forecast/pkg/mathutil"
)

// Model identifies an adoption curve family.
type Model string

// Adoption curve families.
const (
	Logistic Model = "logistic"
	Gompertz Model = "gompertz"
	Richards Model = "richards"
	Bass     Model = "bass"
	Linear   Model = "linear"
)

// Models lists every family in display order.
var Models = []Model{Logistic, Gompertz, Richards, Bass, Linear}

// FittableModels lists the families with free shape parameters.
var FittableModels = []Model{Logistic, Gompertz, Richards, Bass}

var (
	// ErrUnknownModel is returned for an unrecognized model name.
	ErrUnknownModel = errors.New("adoption: unknown model")
	// ErrUnknownParam is returned for a parameter key the model does not have.
	ErrUnknownParam = errors.New("adoption: unknown parameter")
)

// ParseModel resolves a model name case-insensitively.
func ParseModel(name string) (Model, error) {
	normalized := Model(strings.ToLower(strings.TrimSpace(name)))
	for _, m := range Models {
		if m == normalized {
			return m, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownModel, name)
}

// Label returns the display name of the model.
func (m Model) Label() string {
	switch m {
	case Logistic:
		return "Logistic"
	case Gompertz:
		return "Gompertz"
	case Richards:
		return "Richards"
	case Bass:
		return "Bass Diffusion"
	case Linear:
		return "Linear Ramp"
	default:
		return string(m)
	}
}

// Params is the sealed sum of per-family coefficients.
type Params interface {
	Model() Model
	// Values flattens the coefficients by parameter key.
	Values() map[string]float64
	isParams()
}

// LogisticParams: L / (1 + exp(-k (t - t0))).
type LogisticParams struct {
	K  float64 `json:"k" validate:"gt=0"`
	T0 float64 `json:"t0"`
}

// GompertzParams: L exp(-exp(-k (t - t0))).
type GompertzParams struct {
	K  float64 `json:"k" validate:"gt=0"`
	T0 float64 `json:"t0"`
}

// RichardsParams: L / (1 + nu exp(-k (t - t0)))^(1/nu).
type RichardsParams struct {
	K  float64 `json:"k" validate:"gt=0"`
	T0 float64 `json:"t0"`
	Nu float64 `json:"nu" validate:"gt=0"`
}

// BassParams holds the innovation (p) and imitation (q) coefficients.
type BassParams struct {
	P float64 `json:"p" validate:"gte=0"`
	Q float64 `json:"q" validate:"gte=0"`
}

// LinearParams holds the per-period ramp rate in percent.
type LinearParams struct {
	R float64 `json:"r" validate:"gte=0"`
}

func (LogisticParams) Model() Model { return Logistic }
func (GompertzParams) Model() Model { return Gompertz }
func (RichardsParams) Model() Model { return Richards }
func (BassParams) Model() Model     { return Bass }
func (LinearParams) Model() Model   { return Linear }

func (LogisticParams) isParams() {}
func (GompertzParams) isParams() {}
func (RichardsParams) isParams() {}
func (BassParams) isParams()     {}
func (LinearParams) isParams()   {}

func (p LogisticParams) Values() map[string]float64 {
	return map[string]float64{"k": p.K, "t0": p.T0}
}

func (p GompertzParams) Values() map[string]float64 {
	return map[string]float64{"k": p.K, "t0": p.T0}
}

func (p RichardsParams) Values() map[string]float64 {
	return map[string]float64{"k": p.K, "t0": p.T0, "nu": p.Nu}
}

func (p BassParams) Values() map[string]float64 {
	return map[string]float64{"p": p.P, "q": p.Q}
}

func (p LinearParams) Values() map[string]float64 {
	return map[string]float64{"r": p.R}
}

// ParamSet stores one coefficient set per family so switching models keeps
// each family's last values.
type ParamSet struct {
	Logistic LogisticParams `json:"logistic"`
	Gompertz GompertzParams `json:"gompertz"`
	Richards RichardsParams `json:"richards"`
	Bass     BassParams     `json:"bass"`
	Linear   LinearParams   `json:"linear"`
}

// DefaultParamSet returns the starting coefficients for every family.
func DefaultParamSet() ParamSet {
	return ParamSet{
		Logistic: LogisticParams{K: 0.3, T0: 18},
		Gompertz: GompertzParams{K: 0.25, T0: 18},
		Richards: RichardsParams{K: 0.3, T0: 18, Nu: 1.0},
		Bass:     BassParams{P: 0.03, Q: 0.38},
		Linear:   LinearParams{R: 2.5},
	}
}

// For returns the coefficients of model m.
func (s ParamSet) For(m Model) Params {
	switch m {
	case Logistic:
		return s.Logistic
	case Gompertz:
		return s.Gompertz
	case Richards:
		return s.Richards
	case Bass:
		return s.Bass
	case Linear:
		return s.Linear
	default:
		return nil
	}
}

// With returns a copy of s with p's family replaced.
func (s ParamSet) With(p Params) ParamSet {
	switch v := p.(type) {
	case LogisticParams:
		s.Logistic = v
	case GompertzParams:
		s.Gompertz = v
	case RichardsParams:
		s.Richards = v
	case BassParams:
		s.Bass = v
	case LinearParams:
		s.Linear = v
	}
	return s
}

// Merge overlays values onto model m's coefficients. Keys the model does not
// have are rejected.
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
		case LogisticParams:
			switch key {
			case "k":
				p.K = v
			case "t0":
				p.T0 = v
			default:
				return base, unknownParam(Logistic, key)
			}
			base = p
		case GompertzParams:
			switch key {
			case "k":
				p.K = v
			case "t0":
				p.T0 = v
			default:
				return base, unknownParam(Gompertz, key)
			}
			base = p
		case RichardsParams:
			switch key {
			case "k":
				p.K = v
			case "t0":
				p.T0 = v
			case "nu":
				p.Nu = v
			default:
				return base, unknownParam(Richards, key)
			}
			base = p
		case BassParams:
			switch key {
			case "p":
				p.P = v
			case "q":
				p.Q = v
			default:
				return base, unknownParam(Bass, key)
			}
			base = p
		case LinearParams:
			switch key {
			case "r":
				p.R = v
			default:
				return base, unknownParam(Linear, key)
			}
			base = p
		default:
			return base, fmt.Errorf("%w: %T", ErrUnknownModel, base)
		}
	}
	return base, nil
}

func unknownParam(m Model, key string) error {
	return fmt.Errorf("%w: %s has no parameter %q", ErrUnknownParam, m, key)
}

// Evaluate returns cumulative adoption in percent at period t. Closed-form
// families are evaluated directly; Bass is integrated one period at a time
// from launch up to floor(t). The result is always finite and inside
// [0, ceiling].
func Evaluate(p Params, core CoreParams, t float64) float64 {
	ceiling := core.Ceiling()
	if bass, ok := p.(BassParams); ok {
		return evaluateBass(bass, ceiling, core.LaunchLag, t)
	}
	return guard(closedForm(p, ceiling, core.LaunchLag, t), ceiling)
}

// evaluateBass skips the periods before launch, where nothing accumulates, and
// stops at the first whole period that leaves the integrator unchanged: with
// dt fixed at 1 every later period would repeat it. Past BassMaxPeriods after
// launch the curve is treated as settled.
func evaluateBass(b BassParams, ceiling, lag, t float64) float64 {
	if math.IsNaN(t) || !(lag < t) {
		return 0
	}
	last := math.Floor(math.Min(t, lag+constants.BassMaxPeriods))
	integrator := newBassIntegrator(b, ceiling, lag)
	value := 0.0
	period := math.Max(1, math.Floor(lag)+1)
	for n := 0.0; period <= last && n <= constants.BassMaxPeriods; n++ {
		next := integrator.step(period)
		if next == value && period-1 >= lag {
			break
		}
		value = next
		period++
	}
	return guard(value, ceiling)
}

// closedForm evaluates every family except Bass. Before launch the curve is 0.
func closedForm(p Params, ceiling, lag, t float64) float64 {
	rawTe := t - lag
	if rawTe <= 0 {
		return 0
	}
	te := rawTe

	switch v := p.(type) {
	case LogisticParams:
		return logistic(ceiling, v.K, v.T0, te)
	case GompertzParams:
		return gompertz(ceiling, v.K, v.T0, te)
	case RichardsParams:
		if v.Nu < constants.RichardsGompertzCutoff {
			return gompertz(ceiling, v.K, v.T0, te)
		}
		return ceiling / math.Pow(1+v.Nu*math.Exp(-v.K*(te-v.T0)), 1/v.Nu)
	case LinearParams:
		return math.Min(ceiling, v.R*te)
	default:
		return 0
	}
}

func logistic(ceiling, k, t0, te float64) float64 {
	return ceiling / (1 + math.Exp(-k*(te-t0)))
}

func gompertz(ceiling, k, t0, te float64) float64 {
	return ceiling * math.Exp(-math.Exp(-k*(te-t0)))
}

// guard maps NaN to zero and clamps into [0, ceiling].
func guard(value, ceiling float64) float64 {
	return mathutil.Clamp(mathutil.Finite(value, 0), 0, ceiling)
}

// bassIntegrator accumulates dF = (p + q F/L)(L - F) dt per period, where dt
// is the part of the period that falls after the launch lag.
type bassIntegrator struct {
	p, q    float64
	ceiling float64
	lag     float64
	current float64
}

func newBassIntegrator(b BassParams, ceiling, lag float64) *bassIntegrator {
	return &bassIntegrator{p: b.P, q: b.Q, ceiling: ceiling, lag: lag}
}

func (b *bassIntegrator) step(period float64) float64 {
	prevT := math.Max(0, period-1-b.lag)
	currT := math.Max(0, period-b.lag)
	dt := currT - prevT
	if dt > 0 {
		dF := (b.p + b.q*b.current/math.Max(constants.BassCeilingFloor, b.ceiling)) * (b.ceiling - b.current) * dt
		next := mathutil.Finite(b.current+dF, b.current)
		b.current = mathutil.Clamp(next, 0, b.ceiling)
	}
	return b.current
}

// RichardsInflectionPct returns the share of the ceiling, in percent, at which
// a Richards curve with shape nu grows fastest.
func RichardsInflectionPct(nu float64) float64 {
	n := math.Max(constants.RichardsInflectionFloor, nu)
	return math.Pow(n/(1+n), 1/n) * constants.PercentageMultiplier
}

// RichardsInflectionLabel formats RichardsInflectionPct for display.
func RichardsInflectionLabel(nu float64) string {
	return fmt.Sprintf("Inflection at %.2f%% of ceiling", RichardsInflectionPct(nu))
}
