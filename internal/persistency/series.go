package persistency

import (
	"github.com/iwvelando/curve-forecast/pkg/constants"
	"github.com/iwvelando/curve-forecast/pkg/mathutil"
)

// SurvivalPoint is one month of a generated survival series.
type SurvivalPoint struct {
	Month    int     `json:"month"`
	Survival float64 `json:"survival"`
	Hazard   float64 `json:"hazard"`
}

// Generate evaluates p over every month 0..horizon inclusive, with horizon
// held to [0, MaxHorizon]. The month 0 hazard is sampled half a month in, and
// every hazard is clamped to [0, MaxHazard] so extreme shapes stay finite.
func Generate(p Params, horizon int) []SurvivalPoint {
	if horizon < 0 {
		horizon = 0
	}
	if horizon > constants.MaxHorizon {
		horizon = constants.MaxHorizon
	}
	points := make([]SurvivalPoint, 0, horizon+1)
	for m := 0; m <= horizon; m++ {
		at := float64(m)
		if m == 0 {
			at = constants.HazardMonthZeroSample
		}
		points = append(points, SurvivalPoint{
			Month:    m,
			Survival: SurvivalAt(p, float64(m)),
			Hazard:   mathutil.Clamp(mathutil.Finite(HazardAt(p, at), 0), 0, constants.MaxHazard),
		})
	}
	return points
}
