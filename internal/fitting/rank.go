package fitting

import (
	"sort"

	"github.com/iwvelando/curve-forecast/pkg/mathutil"
)

// Criterion names the primary error measure used to rank fits.
type Criterion int

const (
	// ByRMSE ranks by ascending RMSE (adoption side).
	ByRMSE Criterion = iota
	// BySSE ranks by ascending SSE (persistency side).
	BySSE
)

func (c Criterion) primary(m Metrics) float64 {
	if c == BySSE {
		return m.SSE
	}
	return m.RMSE
}

// Better orders a before b by ascending error, then descending R². NaN
// errors rank last.
func (c Criterion) Better(a, b Metrics) bool {
	ea, eb := c.primary(a), c.primary(b)
	if ea != eb {
		return mathutil.Less(ea, eb)
	}
	return mathutil.Less(b.R2, a.R2)
}

// Rank returns the indexes of metrics in ranking order; the first entry is the
// best fit. Ties keep input order.
func Rank(metrics []Metrics, c Criterion) []int {
	idx := make([]int, len(metrics))
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(i, j int) bool {
		return c.Better(metrics[idx[i]], metrics[idx[j]])
	})
	return idx
}
