package output

import (
	"fmt"
	"sort"
	"strings"

	"github.com/iwvelando/curve-forecast/internal/forecast"
	"github.com/iwvelando/curve-forecast/pkg/mathutil"
)

// Table is one rectangular section of a report. Cells are float64, int,
// string, bool or nil for an empty cell.
type Table struct {
	Name    string
	Headers []string
	Rows    [][]interface{}
}

func optional(v *float64) interface{} {
	if v == nil {
		return nil
	}
	return *v
}

func optionalInt(v *int) interface{} {
	if v == nil {
		return nil
	}
	return *v
}

// AdoptionTable lays the adoption series out one period per row, followed by
// the cumulative percent of every scenario.
func AdoptionTable(report *forecast.Report) Table {
	a := report.Adoption
	t := Table{
		Name:    "Adoption",
		Headers: []string{"period", "label", "cumulative_pct", "incremental_pct", "cumulative_volume", "incremental_volume"},
	}
	for _, sc := range a.Scenarios {
		t.Headers = append(t.Headers, fmt.Sprintf("%s cumulative_pct", sc.Scenario.Name))
	}
	for i, pt := range a.Series.Points {
		row := []interface{}{pt.Period, pt.Label, pt.CumulativePct, pt.IncrementalPct, optional(pt.CumulativeVolume), optional(pt.IncrementalVolume)}
		for _, sc := range a.Scenarios {
			if i < len(sc.Series.CumulativePct) {
				row = append(row, sc.Series.CumulativePct[i])
			} else {
				row = append(row, nil)
			}
		}
		t.Rows = append(t.Rows, row)
	}
	return t
}

// PersistencyTable lays the survival series out one month per row, followed
// by every scenario and benchmark curve.
func PersistencyTable(report *forecast.Report) Table {
	p := report.Persistency
	t := Table{
		Name:    "Persistency",
		Headers: []string{"month", "survival_pct", "hazard"},
	}
	for _, sc := range p.Scenarios {
		t.Headers = append(t.Headers, fmt.Sprintf("%s survival_pct", sc.Scenario.Name))
	}
	for _, b := range p.Benchmarks {
		t.Headers = append(t.Headers, fmt.Sprintf("%s survival_pct", b.ID))
	}
	for i, pt := range p.Series {
		row := []interface{}{pt.Month, pt.Survival, pt.Hazard}
		for _, sc := range p.Scenarios {
			if i < len(sc.Series) {
				row = append(row, sc.Series[i].Survival)
			} else {
				row = append(row, nil)
			}
		}
		for _, b := range p.Benchmarks {
			if i < len(b.Series) {
				row = append(row, b.Series[i].Survival)
			} else {
				row = append(row, nil)
			}
		}
		t.Rows = append(t.Rows, row)
	}
	return t
}

// CohortTable lists the total on therapy per simulated month.
func CohortTable(report *forecast.Report) Table {
	t := Table{Name: "Cohort", Headers: []string{"month", "total_on_drug"}}
	for _, m := range report.Persistency.Cohort {
		t.Rows = append(t.Rows, []interface{}{m.Month, m.TotalOnDrug})
	}
	return t
}

// FitsTable lists every fit summary. Parameters are rendered as sorted
// key=value pairs.
func FitsTable(report *forecast.Report) Table {
	t := Table{
		Name:    "Fits",
		Headers: []string{"scope", "model", "r2", "rmse", "sse", "mape", "iterations", "converged", "best", "applied", "params"},
	}
	for _, s := range report.Fits {
		t.Rows = append(t.Rows, []interface{}{
			s.Scope, s.Model, s.R2, s.RMSE, s.SSE, s.MAPE, s.Iterations, s.Converged, s.Best, s.Applied, formatParams(s.Params),
		})
	}
	return t
}

// SummaryTable holds the milestones, survival metrics and notes as key/value
// rows.
func SummaryTable(report *forecast.Report) Table {
	a := report.Adoption
	p := report.Persistency
	t := Table{Name: "Summary", Headers: []string{"metric", "value"}}
	add := func(key string, v interface{}) {
		t.Rows = append(t.Rows, []interface{}{key, v})
	}
	add("adoption_model", a.ModelLabel)
	add("adoption_params", formatParams(a.Params))
	add("ceiling_pct", a.Milestones.CeilingPct)
	add("reach_10pct", optionalInt(a.Milestones.Reach10))
	add("reach_50pct", optionalInt(a.Milestones.Reach50))
	add("reach_90pct", optionalInt(a.Milestones.Reach90))
	add("peak_growth_pct", a.Milestones.PeakGrowthPct)
	add("peak_growth_at", a.Milestones.PeakGrowthAt)
	add("peak_at", optionalInt(a.Milestones.PeakAt))
	if a.Milestones.PeakOffset != nil {
		add("peak_offset", *a.Milestones.PeakOffset)
	}
	if a.Inflection != "" {
		add("inflection", a.Inflection)
	}
	add("persistency_model", p.ModelLabel)
	add("persistency_params", formatParams(p.Params))
	add("median_dot", optional(p.Metrics.MedianDoT))
	add("mean_dot", p.Metrics.MeanDoT)
	add("survival_at_6", optional(p.Metrics.SurvivalAt6))
	add("survival_at_12", optional(p.Metrics.SurvivalAt12))
	add("survival_at_24", optional(p.Metrics.SurvivalAt24))
	add("annual_doses", optional(p.Metrics.AnnualDoses))
	for _, note := range report.Notes {
		add("note", note)
	}
	return t
}

// Tables returns every non-empty table of the report in output order.
func Tables(report *forecast.Report) []Table {
	all := []Table{
		SummaryTable(report),
		AdoptionTable(report),
		PersistencyTable(report),
		CohortTable(report),
		FitsTable(report),
	}
	out := make([]Table, 0, len(all))
	for _, t := range all {
		if len(t.Rows) > 0 {
			out = append(out, t)
		}
	}
	return out
}

func formatParams(params map[string]float64) string {
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%g", k, mathutil.Round(params[k], 4)))
	}
	return strings.Join(parts, ", ")
}

// cellString renders a cell for text formats.
func cellString(v interface{}) string {
	switch c := v.(type) {
	case nil:
		return ""
	case float64:
		return fmt.Sprintf("%.4f", c)
	case int:
		return fmt.Sprintf("%d", c)
	case bool:
		if c {
			return "true"
		}
		return "false"
	case string:
		return c
	default:
		return fmt.Sprint(c)
	}
}
