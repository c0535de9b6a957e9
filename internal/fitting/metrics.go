// Package fitting holds the goodness-of-fit measures and the result ranking
// shared by the adoption and persistency fitting engines.
package fitting

import (
	"math"

	"github.com/iwvelando/curve-forecast/pkg/constants"
	"github.com/iwvelando/curve-forecast/pkg/mathutil"
	"github.com/montanaflynn/stats"
)

// Metrics summarizes how well predictions match observations.
type Metrics struct {
	R2   float64 `json:"r2"`
	RMSE float64 `json:"rmse"`
	SSE  float64 `json:"sse"`
	MAPE float64 `json:"mape"`
	N    int     `json:"n"`
}

// Compute scores predicted against observed; the slices must be the same
// length. R² is 1 - SSres/SStot, except that a constant observation series
// scores 1 when matched exactly and 0 otherwise. MAPE averages |error/observed|
// over observations with a non-negligible magnitude and is 0 when none qualify.
func Compute(observed, predicted []float64) Metrics {
	n := len(observed)
	if n == 0 {
		return Metrics{}
	}

	mean, err := stats.Mean(observed)
	if err != nil {
		mean = 0
	}

	var ssRes, ssTot, apeSum float64
	apeCount := 0
	for i, y := range observed {
		residual := y - predicted[i]
		ssRes += residual * residual
		ssTot += (y - mean) * (y - mean)
		if !mathutil.WithinTolerance(y, 0, constants.MAPEFloor) {
			apeSum += math.Abs(residual / y)
			apeCount++
		}
	}

	var r2 float64
	switch {
	case ssTot < constants.ZeroVarianceThreshold && ssRes < constants.ZeroVarianceThreshold:
		r2 = 1
	case ssTot < constants.ZeroVarianceThreshold:
		r2 = 0
	default:
		r2 = 1 - ssRes/ssTot
	}

	mape := 0.0
	if apeCount > 0 {
		mape = mathutil.CalculatePercentage(apeSum, float64(apeCount))
	}

	return Metrics{
		R2:   r2,
		RMSE: math.Sqrt(ssRes / float64(n)),
		SSE:  ssRes,
		MAPE: mape,
		N:    n,
	}
}

// ZeroVariance reports whether every observation is (numerically) the same.
func ZeroVariance(observed []float64) bool {
	if len(observed) == 0 {
		return true
	}
	variance, err := stats.PopulationVariance(observed)
	if err != nil {
		return true
	}
	return variance*float64(len(observed)) < constants.ZeroVarianceThreshold
}
