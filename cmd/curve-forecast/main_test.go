package main

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/iwvelando/curve-forecast/internal/config"
	"go.uber.org/zap"
)

func TestInitializeLogger(t *testing.T) {
	tests := []struct {
		name     string
		cfg      config.LoggingConfig
		override string
		wantErr  bool
	}{
		{name: "defaults", cfg: config.LoggingConfig{}},
		{name: "console debug", cfg: config.LoggingConfig{Level: "debug", Format: "console"}},
		{name: "override wins", cfg: config.LoggingConfig{Level: "bogus"}, override: "warn"},
		{name: "invalid level", cfg: config.LoggingConfig{Level: "loud"}, wantErr: true},
		{name: "invalid format", cfg: config.LoggingConfig{Format: "xml"}, wantErr: true},
		{name: "file output", cfg: config.LoggingConfig{OutputFile: filepath.Join(t.TempDir(), "logs", "out.log")}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			logger, err := initializeLogger(tt.cfg, tt.override)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("expected error, got nil")
				}
				return
			}
			if err != nil {
				t.Fatalf("initializeLogger() error = %v", err)
			}
			_ = logger.Sync()
		})
	}
}

func TestBuildReportExampleConfig(t *testing.T) {
	conf, err := config.LoadConfiguration("../../config.yaml.example")
	if err != nil {
		t.Fatalf("LoadConfiguration() error = %v", err)
	}

	report, err := buildReport(context.Background(), zap.NewNop(), conf, false)
	if err != nil {
		t.Fatalf("buildReport() error = %v", err)
	}
	if len(report.Fits) == 0 {
		t.Fatalf("expected fit summaries")
	}

	applied := 0
	for _, s := range report.Fits {
		if s.Applied {
			applied++
		}
	}
	if applied != 2 {
		t.Errorf("expected one applied fit per side, got %d", applied)
	}
	if len(report.Notes) == 0 {
		t.Errorf("expected apply notes")
	}
	if got := len(report.Persistency.Benchmarks); got != 2 {
		t.Errorf("expected 2 benchmarks, got %d", got)
	}
	if got := len(report.Persistency.Cohort); got != 24 {
		t.Errorf("expected 24 cohort months, got %d", got)
	}
}

func TestBuildReportForceFit(t *testing.T) {
	conf, err := config.ParseConfiguration([]byte(`
adoption:
  observed:
    - period: 6
      valuePct: 5
    - period: 12
      valuePct: 20
    - period: 18
      valuePct: 41
`), "yaml")
	if err != nil {
		t.Fatalf("ParseConfiguration() error = %v", err)
	}

	report, err := buildReport(context.Background(), zap.NewNop(), conf, false)
	if err != nil {
		t.Fatalf("buildReport() error = %v", err)
	}
	if len(report.Fits) != 0 {
		t.Fatalf("expected no fits without -fit, got %d", len(report.Fits))
	}

	report, err = buildReport(context.Background(), zap.NewNop(), conf, true)
	if err != nil {
		t.Fatalf("buildReport() error = %v", err)
	}
	if len(report.Fits) == 0 {
		t.Fatalf("expected fits with -fit")
	}
	for _, s := range report.Fits {
		if s.Applied {
			t.Errorf("apply mode none must not apply %s", s.Model)
		}
	}
}

func TestBuildReportInvalidConfig(t *testing.T) {
	conf, err := config.ParseConfiguration([]byte("adoption:\n  model: cubic\n"), "yaml")
	if err != nil {
		t.Fatalf("ParseConfiguration() error = %v", err)
	}
	if _, err := buildReport(context.Background(), zap.NewNop(), conf, false); err == nil {
		t.Fatalf("expected error for unknown model")
	}
}
