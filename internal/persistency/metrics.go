package persistency

import (
	"math"

	"github.com/iwvelando/curve-forecast/pkg/constants"
	"github.com/iwvelando/curve-forecast/pkg/mathutil"
)

// Metrics are the business summaries of a survival series.
type Metrics struct {
	MedianDoT    *float64 `json:"medianDoT"`
	MeanDoT      float64  `json:"meanDoT"`
	SurvivalAt6  *float64 `json:"survivalAt6"`
	SurvivalAt12 *float64 `json:"survivalAt12"`
	SurvivalAt24 *float64 `json:"survivalAt24"`
	// AnnualDoses is set only for a positive monthly dose.
	AnnualDoses *float64 `json:"annualDoses"`
}

// CrossingMonth returns the interpolated month at which survival first falls
// to targetPct. A series already below the target starts there; a series that
// never reaches it, or has fewer than two points, yields nil.
func CrossingMonth(series []SurvivalPoint, targetPct float64) *float64 {
	if len(series) < 2 {
		return nil
	}
	if series[0].Survival < targetPct {
		month := float64(series[0].Month)
		return &month
	}
	for i := 1; i < len(series); i++ {
		if series[i].Survival > targetPct {
			continue
		}
		prev, curr := series[i-1], series[i]
		drop := prev.Survival - curr.Survival
		month := float64(curr.Month)
		if drop != 0 {
			frac := (prev.Survival - targetPct) / drop
			month = float64(prev.Month) + frac*float64(curr.Month-prev.Month)
		}
		return &month
	}
	return nil
}

// MedianDoT is the month survival crosses 50%.
func MedianDoT(series []SurvivalPoint) *float64 {
	return CrossingMonth(series, 50)
}

// MeanDoT is the trapezoidal area under the survival percentage divided by
// 100, in months.
func MeanDoT(series []SurvivalPoint) float64 {
	if len(series) < 2 {
		return 0
	}
	auc := 0.0
	for i := 1; i < len(series); i++ {
		dt := float64(series[i].Month - series[i-1].Month)
		auc += 0.5 * (series[i-1].Survival + series[i].Survival) * dt
	}
	return auc / constants.PercentageMultiplier
}

// SurvivalAtMonth interpolates the series at month, holding the boundary
// values outside its range. An empty series yields nil.
func SurvivalAtMonth(series []SurvivalPoint, month float64) *float64 {
	if len(series) == 0 {
		return nil
	}
	first, last := series[0], series[len(series)-1]
	var v float64
	switch {
	case month <= float64(first.Month):
		v = first.Survival
	case month >= float64(last.Month):
		v = last.Survival
	default:
		v = last.Survival
		for i := 1; i < len(series); i++ {
			if float64(series[i].Month) >= month {
				prev, curr := series[i-1], series[i]
				v = mathutil.Lerp(float64(prev.Month), prev.Survival, float64(curr.Month), curr.Survival, month)
				break
			}
		}
	}
	return &v
}

// ComputeMetrics summarizes a series. Annual doses scale the mean duration by
// the monthly dose over at most one year of the series.
func ComputeMetrics(series []SurvivalPoint, monthlyDose float64) Metrics {
	mean := MeanDoT(series)
	m := Metrics{
		MedianDoT:    MedianDoT(series),
		MeanDoT:      mean,
		SurvivalAt6:  SurvivalAtMonth(series, 6),
		SurvivalAt12: SurvivalAtMonth(series, 12),
		SurvivalAt24: SurvivalAtMonth(series, 24),
	}
	if monthlyDose > 0 {
		window := float64(constants.MonthsPerYear)
		if len(series) > 0 {
			window = math.Min(float64(series[len(series)-1].Month), window)
		}
		if window > 0 {
			doses := mean * monthlyDose * constants.MonthsPerYear / window
			m.AnnualDoses = &doses
		}
	}
	return m
}
