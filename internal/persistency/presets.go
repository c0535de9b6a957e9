package persistency

import "fmt"

// Preset is a named reference therapy curve.
type Preset struct {
	ID          string `json:"id"`
	Label       string `json:"label"`
	Description string `json:"description"`
	Model       Model  `json:"model"`
	Params      Params `json:"params"`
}

// BenchmarkColors is the overlay palette for enabled presets.
var BenchmarkColors = []string{"#f0a500", "#a78bfa", "#22c55e", "#e06666", "#6fa8dc", "#93c47d"}

// Presets returns the reference therapy curves in display order.
func Presets() []Preset {
	return []Preset{
		{
			ID:          "ioMonotherapy",
			Label:       "IO Monotherapy (e.g., Pembrolizumab)",
			Description: "Moderate early dropout with a long tail of durable responders. Shape k < 1 gives decreasing hazard.",
			Model:       Weibull,
			Params:      WeibullParams{Lambda: 8, K: 0.7, Ceiling: 100},
		},
		{
			ID:          "chemotherapy",
			Label:       "Chemotherapy (6-cycle regimen)",
			Description: "Steep initial drop as most patients complete 4-6 cycles then discontinue. Nearly exponential decay.",
			Model:       Exponential,
			Params:      ExponentialParams{Lambda: 0.15, Ceiling: 100},
		},
		{
			ID:          "oralTKI",
			Label:       "Oral TKI (e.g., Osimertinib)",
			Description: "High early persistence, median around 14 months, gradual late dropout.",
			Model:       LogNormal,
			Params:      LogNormalParams{MedianMonths: 14, Sigma: 0.8, Ceiling: 100},
		},
		{
			ID:          "carT",
			Label:       "CAR-T (one-time infusion)",
			Description: "About 35% of patients achieve a durable complete response (cured fraction).",
			Model:       MixtureCure,
			Params:      MixtureCureParams{Pi: 0.35, Lambda: 6, K: 1.2},
		},
		{
			ID:          "adjuvant",
			Label:       "Adjuvant Therapy (12-month course)",
			Description: "95% at 3 months, 80% at 6, 60% at 9, 40% completing the full 12 months.",
			Model:       Piecewise,
			Params: PiecewiseParams{Knots: []Knot{
				{Month: 0, Survival: 100},
				{Month: 3, Survival: 95},
				{Month: 6, Survival: 80},
				{Month: 9, Survival: 60},
				{Month: 12, Survival: 40},
				{Month: 18, Survival: 15},
				{Month: 24, Survival: 5},
			}},
		},
		{
			ID:          "maintenance",
			Label:       "Maintenance Therapy (long-term)",
			Description: "Increasing hazard: patients tolerate well initially, dropout accelerates over time.",
			Model:       Weibull,
			Params:      WeibullParams{Lambda: 18, K: 1.5, Ceiling: 100},
		},
	}
}

// PresetByID looks a preset up by id.
func PresetByID(id string) (Preset, error) {
	for _, p := range Presets() {
		if p.ID == id {
			return p, nil
		}
	}
	return Preset{}, fmt.Errorf("persistency: unknown preset %q", id)
}

// Benchmark is a preset rendered over the live horizon.
type Benchmark struct {
	ID     string          `json:"id"`
	Label  string          `json:"label"`
	Model  Model           `json:"model"`
	Color  string          `json:"color"`
	Series []SurvivalPoint `json:"series"`
}

// Benchmarks renders the presets named in ids, in preset order.
func Benchmarks(ids []string, horizon int) []Benchmark {
	enabled := make(map[string]bool, len(ids))
	for _, id := range ids {
		enabled[id] = true
	}
	var out []Benchmark
	for idx, p := range Presets() {
		if !enabled[p.ID] {
			continue
		}
		out = append(out, Benchmark{
			ID:     p.ID,
			Label:  p.Label,
			Model:  p.Model,
			Color:  BenchmarkColors[idx%len(BenchmarkColors)],
			Series: Generate(p.Params, horizon),
		})
	}
	return out
}
