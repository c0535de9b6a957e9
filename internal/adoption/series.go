package adoption

import (
	"fmt"

	"github.com/iwvelando/curve-forecast/pkg/constants"
	"github.com/iwvelando/curve-forecast/pkg/mathutil"
)

// CurvePoint is one period of a generated adoption series.
type CurvePoint struct {
	Period            int      `json:"period"`
	Label             string   `json:"label"`
	CumulativePct     float64  `json:"cumulativePct"`
	IncrementalPct    float64  `json:"incrementalPct"`
	CumulativeVolume  *float64 `json:"cumulativeVolume,omitempty"`
	IncrementalVolume *float64 `json:"incrementalVolume,omitempty"`
}

// Series is a generated adoption curve over periods 1..horizon.
type Series struct {
	Points         []CurvePoint `json:"points"`
	CumulativePct  []float64    `json:"cumulativePct"`
	IncrementalPct []float64    `json:"incrementalPct"`
}

// PeriodLabel renders "Month n" or "Week n".
func PeriodLabel(period int, timeUnit string) string {
	prefix := "Month"
	if timeUnit == constants.TimeUnitWeeks {
		prefix = "Week"
	}
	return fmt.Sprintf("%s %d", prefix, period)
}

// Generate evaluates p over every period 1..horizon, with horizon held to
// [1, MaxHorizon]. Increments are the difference of consecutive cumulative
// values clamped into [0, ceiling].
func Generate(p Params, core CoreParams) Series {
	horizon := core.Horizon
	if horizon < 1 {
		horizon = 1
	}
	if horizon > constants.MaxHorizon {
		horizon = constants.MaxHorizon
	}
	ceiling := core.Ceiling()

	series := Series{
		Points:         make([]CurvePoint, 0, horizon),
		CumulativePct:  make([]float64, 0, horizon),
		IncrementalPct: make([]float64, 0, horizon),
	}

	var bass *bassIntegrator
	if b, ok := p.(BassParams); ok {
		bass = newBassIntegrator(b, ceiling, core.LaunchLag)
	}

	prev := 0.0
	for period := 1; period <= horizon; period++ {
		var cumulative float64
		if bass != nil {
			cumulative = bass.step(float64(period))
		} else {
			cumulative = closedForm(p, ceiling, core.LaunchLag, float64(period))
		}
		cumulative = guard(cumulative, ceiling)
		incremental := mathutil.Clamp(cumulative-prev, 0, ceiling)
		prev = cumulative

		point := CurvePoint{
			Period:         period,
			Label:          PeriodLabel(period, core.TimeUnit),
			CumulativePct:  cumulative,
			IncrementalPct: incremental,
		}
		if core.TAM != nil {
			cv := mathutil.ApplyPercentage(*core.TAM, cumulative)
			iv := mathutil.ApplyPercentage(*core.TAM, incremental)
			point.CumulativeVolume = &cv
			point.IncrementalVolume = &iv
		}

		series.Points = append(series.Points, point)
		series.CumulativePct = append(series.CumulativePct, cumulative)
		series.IncrementalPct = append(series.IncrementalPct, incremental)
	}

	return series
}
