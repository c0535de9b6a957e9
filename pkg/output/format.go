// Package output provides utilities for formatting and displaying forecast reports.
package output

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"io"
	"strings"

	"github.com/iwvelando/curve-forecast/internal/forecast"
	"github.com/iwvelando/curve-forecast/pkg/constants"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// PrettyFormat writes a human-readable rather than machine-readable report.
func PrettyFormat(w io.Writer, report *forecast.Report) error {
	if report == nil {
		return fmt.Errorf("report cannot be nil")
	}
	p := message.NewPrinter(language.English)
	a := report.Adoption
	pr := report.Persistency

	_, _ = fmt.Fprintf(w, "--- Adoption: %s ---\n", a.ModelLabel)
	_, _ = fmt.Fprintf(w, "Ceiling %.2f%% | Launch lag %g | Horizon %d %s\n", a.Core.CeilingPct, a.Core.LaunchLag, a.Core.Horizon, a.Core.TimeUnit)
	_, _ = fmt.Fprintf(w, "Params: %s\n", formatParams(a.Params))
	if a.Inflection != "" {
		_, _ = fmt.Fprintf(w, "%s\n", a.Inflection)
	}
	_, _ = fmt.Fprintf(w, "Milestones: 10%% %s | 50%% %s | 90%% %s | peak %s | peak growth %.2f%% at %d\n",
		periodOrDash(a.Milestones.Reach10), periodOrDash(a.Milestones.Reach50), periodOrDash(a.Milestones.Reach90),
		periodOrDash(a.Milestones.PeakAt), a.Milestones.PeakGrowthPct, a.Milestones.PeakGrowthAt)
	if a.Score != nil {
		_, _ = fmt.Fprintf(w, "Fit to observed: R² %.4f | RMSE %.4f | n %d\n", a.Score.R2, a.Score.RMSE, a.Score.N)
	}
	withVolume := a.Core.TAM != nil
	if withVolume {
		_, _ = fmt.Fprintf(w, "Period    | Cumulative %% | Incremental %% | Cumulative Volume\n")
		_, _ = fmt.Fprintf(w, "______    | ____________ | _____________ | _________________\n")
	} else {
		_, _ = fmt.Fprintf(w, "Period    | Cumulative %% | Incremental %%\n")
		_, _ = fmt.Fprintf(w, "______    | ____________ | _____________\n")
	}
	for _, pt := range a.Series.Points {
		if withVolume && pt.CumulativeVolume != nil {
			_, _ = p.Fprintf(w, "%-9s | %12.2f | %13.2f | %.0f\n", pt.Label, pt.CumulativePct, pt.IncrementalPct, *pt.CumulativeVolume)
			continue
		}
		_, _ = p.Fprintf(w, "%-9s | %12.2f | %13.2f\n", pt.Label, pt.CumulativePct, pt.IncrementalPct)
	}
	for _, sc := range a.Scenarios {
		last := 0.0
		if n := len(sc.Series.CumulativePct); n > 0 {
			last = sc.Series.CumulativePct[n-1]
		}
		_, _ = fmt.Fprintf(w, "Scenario %s (%s): %.2f%% at horizon\n", sc.Scenario.Name, sc.Scenario.Model.Label(), last)
	}
	_, _ = fmt.Fprintf(w, "\n")

	_, _ = fmt.Fprintf(w, "--- Persistency: %s ---\n", pr.ModelLabel)
	_, _ = fmt.Fprintf(w, "Horizon %d months | Params: %s\n", pr.Horizon, formatParams(pr.Params))
	_, _ = fmt.Fprintf(w, "Median DoT %s | Mean DoT %.2f | 6m %s | 12m %s | 24m %s | Annual doses %s\n",
		valueOrDash(pr.Metrics.MedianDoT), pr.Metrics.MeanDoT,
		valueOrDash(pr.Metrics.SurvivalAt6), valueOrDash(pr.Metrics.SurvivalAt12), valueOrDash(pr.Metrics.SurvivalAt24),
		valueOrDash(pr.Metrics.AnnualDoses))
	if pr.Score != nil {
		_, _ = fmt.Fprintf(w, "Fit to KM data: R² %.4f | SSE %.4f | n %d\n", pr.Score.R2, pr.Score.SSE, pr.Score.N)
	}
	_, _ = fmt.Fprintf(w, "Month | Survival %% | Hazard\n")
	_, _ = fmt.Fprintf(w, "_____ | __________ | ______\n")
	for _, pt := range pr.Series {
		_, _ = fmt.Fprintf(w, "%5d | %10.2f | %.4f\n", pt.Month, pt.Survival, pt.Hazard)
	}
	for _, sc := range pr.Scenarios {
		_, _ = fmt.Fprintf(w, "Scenario %s (%s)\n", sc.Scenario.Name, sc.Scenario.Model.Label())
	}
	for _, b := range pr.Benchmarks {
		_, _ = fmt.Fprintf(w, "Benchmark %s\n", b.Label)
	}
	if len(pr.Cohort) > 0 {
		_, _ = fmt.Fprintf(w, "Cohort of %g new starts per month:\n", pr.CohortSize.NewStarts)
		for _, m := range pr.Cohort {
			_, _ = p.Fprintf(w, "  Month %d: %.2f on therapy\n", m.Month, m.TotalOnDrug)
		}
	}

	if len(report.Fits) > 0 {
		_, _ = fmt.Fprintf(w, "\n--- Fits ---\n")
		_, _ = fmt.Fprintf(w, "Scope       | Model        | R²     | RMSE     | SSE        | Flags\n")
		for _, s := range report.Fits {
			var flags []string
			if s.Best {
				flags = append(flags, "best")
			}
			if s.Applied {
				flags = append(flags, "applied")
			}
			if !s.Converged {
				flags = append(flags, "not converged")
			}
			_, _ = fmt.Fprintf(w, "%-11s | %-12s | %.4f | %8.4f | %10.4f | %s\n", s.Scope, s.Model, s.R2, s.RMSE, s.SSE, strings.Join(flags, ","))
		}
	}

	if len(report.Notes) > 0 {
		_, _ = fmt.Fprintf(w, "\n--- Notes ---\n")
		for _, note := range report.Notes {
			_, _ = fmt.Fprintf(w, "- %s\n", note)
		}
	}
	return nil
}

func periodOrDash(v *int) string {
	if v == nil {
		return "-"
	}
	return fmt.Sprintf("%d", *v)
}

func valueOrDash(v *float64) string {
	if v == nil {
		return "-"
	}
	return fmt.Sprintf("%.2f", *v)
}

// CsvFormat writes every report table in comma-separated value format, with
// a blank line between tables.
func CsvFormat(w io.Writer, report *forecast.Report) error {
	if report == nil {
		return fmt.Errorf("report cannot be nil")
	}
	cw := csv.NewWriter(w)
	for i, t := range Tables(report) {
		if i > 0 {
			if err := cw.Write([]string{}); err != nil {
				return err
			}
		}
		if err := cw.Write([]string{"# " + t.Name}); err != nil {
			return err
		}
		if err := cw.Write(t.Headers); err != nil {
			return err
		}
		for _, row := range t.Rows {
			record := make([]string, len(row))
			for j, cell := range row {
				record[j] = cellString(cell)
			}
			if err := cw.Write(record); err != nil {
				return err
			}
		}
	}
	cw.Flush()
	return cw.Error()
}

// CsvString renders CsvFormat into a string.
func CsvString(report *forecast.Report) string {
	var buf bytes.Buffer
	if err := CsvFormat(&buf, report); err != nil {
		return ""
	}
	return buf.String()
}

// Write renders report in format. xlsx needs a file path; the text formats
// go to w.
func Write(format string, w io.Writer, path string, report *forecast.Report) error {
	switch format {
	case constants.OutputFormatPretty, "":
		return PrettyFormat(w, report)
	case constants.OutputFormatCSV:
		return CsvFormat(w, report)
	case constants.OutputFormatXLSX:
		if strings.TrimSpace(path) == "" {
			return fmt.Errorf("xlsx output requires an output file")
		}
		return XlsxFormat(path, report)
	default:
		return fmt.Errorf("unsupported output format %q", format)
	}
}
