package optimization

// DefaultRestartSpread is the fraction of each bound span used for the
// symmetric restart vertices.
const DefaultRestartSpread = 0.08

// Restarts returns the start vector followed by two copies shifted up and
// down by spread times each bound span, clamped into the bounds.
func Restarts(start []float64, bounds []Bound, spread float64) [][]float64 {
	up := make([]float64, len(start))
	down := make([]float64, len(start))
	for i, v := range start {
		shift := spread * bounds[i].Span()
		up[i] = bounds[i].Clamp(v + shift)
		down[i] = bounds[i].Clamp(v - shift)
	}
	return [][]float64{append([]float64(nil), start...), up, down}
}

// MultiStart minimizes from every vector Restarts produces and keeps the best
// result. Earlier starts win ties.
func MultiStart(objective Objective, bounds []Bound, start []float64, spread float64, opts Options) (Result, error) {
	if err := ValidateBounds(bounds, start); err != nil {
		return Result{}, err
	}
	if spread <= 0 {
		spread = DefaultRestartSpread
	}

	var best Result
	found := false
	for _, s := range Restarts(start, bounds, spread) {
		res, err := Minimize(objective, bounds, s, opts)
		if err != nil {
			return Result{}, err
		}
		if !found || res.Better(best) {
			best = res
			found = true
		}
	}
	return best, nil
}
