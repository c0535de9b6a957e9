package integration

import (
	"bufio"
	"context"
	"math"
	"strings"
	"testing"

	"github.com/iwvelando/curve-forecast/internal/config"
	"github.com/iwvelando/curve-forecast/internal/forecast"
	"github.com/iwvelando/curve-forecast/internal/optimizer"
	"github.com/iwvelando/curve-forecast/pkg/optimization"
	"github.com/iwvelando/curve-forecast/pkg/output"
	"github.com/iwvelando/curve-forecast/pkg/testutil"
	"go.uber.org/zap"
)

const testConfigPath = "../test_config.yaml"

// runPipeline loads, fits, applies and forecasts exactly as the CLI does.
func runPipeline(t *testing.T, path string) *forecast.Report {
	t.Helper()
	logger := zap.NewNop()

	conf, err := config.LoadConfiguration(path)
	if err != nil {
		t.Fatalf("LoadConfiguration() error = %v", err)
	}
	resolved, err := conf.Resolve()
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}

	var fits []optimization.Summary
	var notes []string
	if resolved.Fit.Enabled {
		runner, err := optimizer.NewRunner(logger, resolved)
		if err != nil {
			t.Fatalf("NewRunner() error = %v", err)
		}
		res, err := runner.Run(context.Background())
		if err != nil {
			t.Fatalf("Run() error = %v", err)
		}
		if notes, err = res.Apply(resolved); err != nil {
			t.Fatalf("Apply() error = %v", err)
		}
		fits = res.Summaries()
	}

	report, err := forecast.GetForecast(logger, resolved, fits)
	if err != nil {
		t.Fatalf("GetForecast() error = %v", err)
	}
	report.Notes = append(notes, report.Notes...)
	return report
}

// TestMainIntegrationBaseline checks the fitted pipeline against the known
// shape of the test data: a Gompertz uptake and a decaying discontinuation curve.
func TestMainIntegrationBaseline(t *testing.T) {
	report := runPipeline(t, testConfigPath)

	if got := len(report.Fits); got != 6 {
		t.Fatalf("Expected 6 fit summaries, got %d", got)
	}

	adoptionFit := testutil.AppliedFit(report.Fits, "adoption")
	if adoptionFit == nil {
		t.Fatalf("Expected an applied adoption fit")
	}
	if adoptionFit.R2 < 0.98 {
		t.Errorf("Applied adoption fit %s has R² %.4f, expected >= 0.98", adoptionFit.Model, adoptionFit.R2)
	}
	if string(report.Adoption.Model) != adoptionFit.Model {
		t.Errorf("Live adoption model %s, expected applied %s", report.Adoption.Model, adoptionFit.Model)
	}

	persistencyFit := testutil.AppliedFit(report.Fits, "persistency")
	if persistencyFit == nil {
		t.Fatalf("Expected an applied persistency fit")
	}
	if persistencyFit.R2 < 0.95 {
		t.Errorf("Applied persistency fit %s has R² %.4f, expected >= 0.95", persistencyFit.Model, persistencyFit.R2)
	}

	for _, model := range []string{"logistic", "gompertz", "richards"} {
		fit := testutil.FindFit(report.Fits, "adoption", model)
		if fit == nil {
			t.Errorf("Missing adoption fit for %s", model)
			continue
		}
		if fit.RMSE < adoptionFit.RMSE {
			t.Errorf("%s beats the applied fit %s", model, adoptionFit.Model)
		}
	}

	validateBaselineValues(t, report)
}

// validateBaselineValues checks properties that hold for any well-behaved fit
// of the test data.
func validateBaselineValues(t *testing.T, report *forecast.Report) {
	a := report.Adoption
	if got := len(a.Series.Points); got != 48 {
		t.Fatalf("Expected 48 adoption points, got %d", got)
	}

	prev := 0.0
	for _, pt := range a.Series.Points {
		if pt.CumulativePct < prev-1e-9 {
			t.Errorf("Cumulative adoption decreases at %s: %.4f < %.4f", pt.Label, pt.CumulativePct, prev)
		}
		if pt.CumulativePct > a.Core.CeilingPct+1e-9 {
			t.Errorf("Cumulative adoption %.4f exceeds ceiling %.4f at %s", pt.CumulativePct, a.Core.CeilingPct, pt.Label)
		}
		if pt.CumulativeVolume == nil {
			t.Fatalf("Expected volumes when tam is set")
		}
		prev = pt.CumulativePct
	}

	// period 24 of the test data is 54.6%
	if got := a.Series.Points[23].CumulativePct; math.Abs(got-54.6) > 3 {
		t.Errorf("Adoption at period 24 = %.2f, expected close to 54.6", got)
	}

	conservative, ok := testutil.AdoptionScenarioFinal(report, "Conservative")
	if !ok {
		t.Fatalf("Missing Conservative scenario")
	}
	if conservative > 60+1e-9 {
		t.Errorf("Conservative scenario ends at %.2f, above its 60%% ceiling", conservative)
	}

	p := report.Persistency
	if got := len(p.Series); got != 37 {
		t.Fatalf("Expected 37 persistency points, got %d", got)
	}
	if p.Series[0].Survival != 100 {
		t.Errorf("Expected survival 100 at month 0, got %.4f", p.Series[0].Survival)
	}
	if p.Metrics.MedianDoT == nil {
		t.Fatalf("Expected a median duration of therapy")
	}
	// survival crosses 50% between months 9 and 12 in the test data
	if *p.Metrics.MedianDoT < 8 || *p.Metrics.MedianDoT > 12 {
		t.Errorf("Median DoT %.2f outside the observed 9..12 month window", *p.Metrics.MedianDoT)
	}
	if p.Metrics.AnnualDoses == nil {
		t.Errorf("Expected annual doses with a monthly dose set")
	}
	if got := len(p.Benchmarks); got != 1 {
		t.Errorf("Expected 1 benchmark, got %d", got)
	}
	if got := len(p.Cohort); got != 18 {
		t.Errorf("Expected 18 cohort months, got %d", got)
	}
}

// TestCsvOutputSections renders the report as the CLI would for csv output.
func TestCsvOutputSections(t *testing.T) {
	report := runPipeline(t, testConfigPath)
	csv := output.CsvString(report)
	if csv == "" {
		t.Fatalf("Expected CSV output")
	}

	var sections []string
	scanner := bufio.NewScanner(strings.NewReader(csv))
	for scanner.Scan() {
		line := scanner.Text()
		if strings.HasPrefix(line, "# ") {
			sections = append(sections, strings.TrimPrefix(line, "# "))
		}
	}
	if err := scanner.Err(); err != nil {
		t.Fatalf("scanner error = %v", err)
	}

	expected := []string{"Summary", "Adoption", "Persistency", "Cohort", "Fits"}
	if len(sections) != len(expected) {
		t.Fatalf("Expected sections %v, got %v", expected, sections)
	}
	for i := range expected {
		if sections[i] != expected[i] {
			t.Errorf("Section %d: expected %s, got %s", i, expected[i], sections[i])
		}
	}

	if !strings.Contains(csv, "Conservative cumulative_pct") {
		t.Errorf("Expected the Conservative scenario column")
	}
	if !strings.Contains(csv, "maintenance survival_pct") {
		t.Errorf("Expected the maintenance benchmark column")
	}
}

// TestExampleConfiguration makes sure the shipped example stays valid.
func TestExampleConfiguration(t *testing.T) {
	conf, err := config.LoadConfiguration("../../config.yaml.example")
	if err != nil {
		t.Fatalf("LoadConfiguration() error = %v", err)
	}
	for _, w := range conf.ValidateConfiguration() {
		t.Errorf("Unexpected warning: %s", w)
	}

	report := runPipeline(t, "../../config.yaml.example")
	if len(report.Adoption.Scenarios) != 2 {
		t.Errorf("Expected 2 adoption scenarios, got %d", len(report.Adoption.Scenarios))
	}
	if len(report.Persistency.Scenarios) != 1 {
		t.Errorf("Expected 1 persistency scenario, got %d", len(report.Persistency.Scenarios))
	}
}
