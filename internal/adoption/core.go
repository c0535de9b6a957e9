package adoption

import (
	"fmt"
	"math"

	"github.com/iwvelando/curve-forecast/pkg/constants"
	"github.com/iwvelando/curve-forecast/pkg/mathutil"
	"github.com/iwvelando/curve-forecast/pkg/validation"
)

// CoreParams is the context every adoption model shares.
type CoreParams struct {
	CeilingPct float64  `json:"ceilingPct" validate:"gte=0,lte=100"`
	Horizon    int      `json:"horizon" validate:"gte=1,lte=1200"`
	LaunchLag  float64  `json:"launchLag" validate:"gte=0,lte=1200"`
	TimeUnit   string   `json:"timeUnit" validate:"oneof=months weeks"`
	TAM        *float64 `json:"tam,omitempty" validate:"omitempty,gt=0"`
	TimeToPeak *float64 `json:"timeToPeak,omitempty" validate:"omitempty,gte=0"`
}

// CorePatch is a partial CoreParams; nil fields keep the base value.
type CorePatch struct {
	CeilingPct *float64 `json:"ceilingPct,omitempty" yaml:"ceilingPct" mapstructure:"ceilingPct"`
	Horizon    *int     `json:"horizon,omitempty" yaml:"horizon" mapstructure:"horizon"`
	LaunchLag  *float64 `json:"launchLag,omitempty" yaml:"launchLag" mapstructure:"launchLag"`
	TimeUnit   *string  `json:"timeUnit,omitempty" yaml:"timeUnit" mapstructure:"timeUnit"`
	TAM        *float64 `json:"tam,omitempty" yaml:"tam" mapstructure:"tam"`
	TimeToPeak *float64 `json:"timeToPeak,omitempty" yaml:"timeToPeak" mapstructure:"timeToPeak"`
}

// DefaultCore returns the starting core context.
func DefaultCore() CoreParams {
	return CoreParams{
		CeilingPct: 100,
		Horizon:    60,
		LaunchLag:  0,
		TimeUnit:   constants.TimeUnitMonths,
	}
}

// Apply overlays the non-nil fields of patch onto c.
func (c CoreParams) Apply(patch CorePatch) CoreParams {
	if patch.CeilingPct != nil {
		c.CeilingPct = *patch.CeilingPct
	}
	if patch.Horizon != nil {
		c.Horizon = *patch.Horizon
	}
	if patch.LaunchLag != nil {
		c.LaunchLag = *patch.LaunchLag
	}
	if patch.TimeUnit != nil {
		c.TimeUnit = *patch.TimeUnit
	}
	if patch.TAM != nil {
		tam := *patch.TAM
		c.TAM = &tam
	}
	if patch.TimeToPeak != nil {
		ttp := *patch.TimeToPeak
		c.TimeToPeak = &ttp
	}
	return c
}

// Validate checks the core invariants.
func (c CoreParams) Validate() error {
	if err := validation.ValidateStruct(c); err != nil {
		return fmt.Errorf("adoption core: %w", err)
	}
	return nil
}

// Ceiling is CeilingPct clamped into [0, 100].
func (c CoreParams) Ceiling() float64 {
	return mathutil.Clamp(mathutil.Finite(c.CeilingPct, 0), 0, constants.PercentMax)
}

// FitHorizon extends the horizon to cover every observed period and never
// drops below the minimum fit horizon or exceeds MaxHorizon.
func (c CoreParams) FitHorizon(maxObserved int) int {
	h := c.Horizon
	if maxObserved > h {
		h = maxObserved
	}
	if h < constants.MinimumFitHorizon {
		h = constants.MinimumFitHorizon
	}
	if h > constants.MaxHorizon {
		h = constants.MaxHorizon
	}
	return h
}

// clone copies the optional pointer fields so the result shares no memory
// with c.
func (c CoreParams) clone() CoreParams {
	if c.TAM != nil {
		tam := *c.TAM
		c.TAM = &tam
	}
	if c.TimeToPeak != nil {
		ttp := *c.TimeToPeak
		c.TimeToPeak = &ttp
	}
	return c
}

// ValidateParams checks the coefficients of p against their struct tags.
func ValidateParams(p Params) error {
	if p == nil {
		return ErrUnknownModel
	}
	if err := validation.ValidateStruct(p); err != nil {
		return fmt.Errorf("adoption %s params: %w", p.Model(), err)
	}
	for key, v := range p.Values() {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("adoption %s params: %s is not finite", p.Model(), key)
		}
	}
	return nil
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
