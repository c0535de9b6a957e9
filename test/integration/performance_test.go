package integration

import (
	"os"
	"reflect"
	"testing"
	"time"

	"github.com/iwvelando/curve-forecast/internal/adoption"
	"github.com/iwvelando/curve-forecast/internal/persistency"
)

// TestRunner is a simple test runner for debugging
func TestMain(m *testing.M) {
	code := m.Run()
	os.Exit(code)
}

// TestPerformance tests performance characteristics of the full pipeline,
// including the concurrent fits.
func TestPerformance(t *testing.T) {
	start := time.Now()
	report := runPipeline(t, testConfigPath)
	total := time.Since(start)

	t.Logf("Performance metrics:")
	t.Logf("  Fits: %d", len(report.Fits))
	t.Logf("  Total time: %v", total)

	if total > 10*time.Second {
		t.Errorf("Total processing time %v exceeds 10 second threshold", total)
	}
}

// TestDataConsistency validates that multiple runs produce identical results
// regardless of how the fits are scheduled.
func TestDataConsistency(t *testing.T) {
	first := runPipeline(t, testConfigPath)

	for run := 1; run < 3; run++ {
		report := runPipeline(t, testConfigPath)

		if len(report.Fits) != len(first.Fits) {
			t.Fatalf("Run %d: got %d fits, expected %d", run, len(report.Fits), len(first.Fits))
		}
		for i := range report.Fits {
			if !reflect.DeepEqual(report.Fits[i], first.Fits[i]) {
				t.Errorf("Run %d, fit %d: %+v != %+v", run, i, report.Fits[i], first.Fits[i])
			}
		}
		if !reflect.DeepEqual(report.Adoption.Series.CumulativePct, first.Adoption.Series.CumulativePct) {
			t.Errorf("Run %d: adoption series differs", run)
		}
		if !reflect.DeepEqual(report.Persistency.Series, first.Persistency.Series) {
			t.Errorf("Run %d: persistency series differs", run)
		}
	}
}

// TestLongHorizons evaluates every family over long horizons to catch
// overflow or NaN in the closed forms.
func TestLongHorizons(t *testing.T) {
	core := adoption.DefaultCore()
	core.Horizon = 520
	core.TimeUnit = "weeks"
	params := adoption.DefaultParamSet()
	for _, m := range adoption.Models {
		series := adoption.Generate(params.For(m), core)
		if len(series.Points) != core.Horizon {
			t.Fatalf("%s: expected %d points, got %d", m, core.Horizon, len(series.Points))
		}
		for _, v := range series.CumulativePct {
			if v != v || v < 0 || v > core.CeilingPct+1e-9 {
				t.Fatalf("%s: cumulative value %v out of range", m, v)
			}
		}
	}

	pparams := persistency.DefaultParamSet()
	for _, m := range persistency.Models {
		series := persistency.Generate(pparams.For(m), 600)
		if len(series) != 601 {
			t.Fatalf("%s: expected 601 points, got %d", m, len(series))
		}
		for _, pt := range series {
			if pt.Survival != pt.Survival || pt.Hazard != pt.Hazard {
				t.Fatalf("%s: NaN at month %d", m, pt.Month)
			}
		}
	}
}
