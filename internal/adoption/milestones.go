package adoption

import "github.com/iwvelando/curve-forecast/pkg/mathutil"

// Milestones summarizes a generated adoption series.
type Milestones struct {
	Reach10       *int    `json:"reach10"`
	Reach50       *int    `json:"reach50"`
	Reach90       *int    `json:"reach90"`
	PeakGrowthPct float64 `json:"peakGrowthPct"`
	PeakGrowthAt  int     `json:"peakGrowthAt"`
	// PeakAt is the first period at 99% of the ceiling.
	PeakAt     *int    `json:"peakAt"`
	CeilingPct float64 `json:"ceilingPct"`
	// PeakOffset is PeakGrowthAt minus the targeted time to peak, when one is set.
	PeakOffset *float64 `json:"peakOffset,omitempty"`
}

// InferredPeriod returns the first 1-based period whose cumulative value
// reaches thresholdPct percent of ceiling, or nil if it never does.
func InferredPeriod(cumulative []float64, ceiling, thresholdPct float64) *int {
	target := mathutil.ApplyPercentage(ceiling, thresholdPct)
	for i, v := range cumulative {
		if v >= target {
			period := i + 1
			return &period
		}
	}
	return nil
}

// PeakIncrement returns the largest increment and its 1-based period. Ties
// keep the first occurrence; a series without positive growth reports
// (0, 1).
func PeakIncrement(incremental []float64) (float64, int) {
	peak, at := 0.0, 1
	for i, v := range incremental {
		if v > peak {
			peak = v
			at = i + 1
		}
	}
	return peak, at
}

// DeriveMilestones computes the milestones of a series for the given core.
func DeriveMilestones(series Series, core CoreParams) Milestones {
	ceiling := core.Ceiling()
	peak, at := PeakIncrement(series.IncrementalPct)

	m := Milestones{
		Reach10:       InferredPeriod(series.CumulativePct, ceiling, 10),
		Reach50:       InferredPeriod(series.CumulativePct, ceiling, 50),
		Reach90:       InferredPeriod(series.CumulativePct, ceiling, 90),
		PeakGrowthPct: peak,
		PeakGrowthAt:  at,
		PeakAt:        InferredPeriod(series.CumulativePct, ceiling, 99),
		CeilingPct:    ceiling,
	}
	if core.TimeToPeak != nil {
		offset := float64(at) - *core.TimeToPeak
		m.PeakOffset = &offset
	}
	return m
}
