package config

import "testing"

func TestCanonicalApplyMode(t *testing.T) {
	testCases := []struct {
		name     string
		input    string
		expected string
	}{
		{name: "empty defaults to none", input: "", expected: FitApplyNone},
		{name: "off is none", input: "OFF", expected: FitApplyNone},
		{name: "best casing", input: " Best ", expected: FitApplyBest},
		{name: "active is staged", input: "active", expected: FitApplyStaged},
		{name: "adoption model", input: "Gompertz", expected: "gompertz"},
		{name: "persistency model", input: "LOGNORMAL", expected: "logNormal"},
		{name: "unknown lowered", input: "Custom", expected: "custom"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			actual := CanonicalApplyMode(tc.input)
			if actual != tc.expected {
				t.Fatalf("expected %q, got %q", tc.expected, actual)
			}
		})
	}
}

func TestFitConfigNormalizeDefaults(t *testing.T) {
	cfg := &FitConfig{Concurrency: -3}
	cfg.Normalize()

	if cfg.Apply != FitApplyNone {
		t.Fatalf("expected apply %q, got %q", FitApplyNone, cfg.Apply)
	}
	if cfg.Concurrency != 0 {
		t.Fatalf("expected concurrency clamp to 0, got %d", cfg.Concurrency)
	}
	if cfg.Adoption.MaxIterations != defaultAdoptionMaxIterations {
		t.Fatalf("expected adoption iterations %d, got %d", defaultAdoptionMaxIterations, cfg.Adoption.MaxIterations)
	}
	if cfg.Persistency.Tolerance != defaultPersistencyTolerance {
		t.Fatalf("expected persistency tolerance %g, got %g", defaultPersistencyTolerance, cfg.Persistency.Tolerance)
	}
	if cfg.Adoption.RestartSpread <= 0 || cfg.Persistency.RestartSpread <= 0 {
		t.Fatalf("expected restart spreads to be defaulted")
	}

	var nilCfg *FitConfig
	nilCfg.Normalize()
}

func TestFitConfigKeepsOverrides(t *testing.T) {
	cfg := &FitConfig{
		Adoption: OptimizerConfig{MaxIterations: 50, Tolerance: 1e-4, InitialStep: 0.5, RestartSpread: 0.2},
	}
	cfg.Normalize()

	opts := cfg.AdoptionOptions()
	if opts.Simplex.MaxIterations != 50 || opts.Simplex.Tolerance != 1e-4 || opts.Simplex.InitialStep != 0.5 {
		t.Fatalf("expected overrides to survive, got %+v", opts.Simplex)
	}
	if opts.RestartSpread != 0.2 {
		t.Fatalf("expected restart spread 0.2, got %g", opts.RestartSpread)
	}

	popts := cfg.PersistencyOptions()
	if popts.Simplex.MaxIterations != defaultPersistencyMaxIterations {
		t.Fatalf("expected persistency default iterations, got %d", popts.Simplex.MaxIterations)
	}
}

func TestFitConfigValidate(t *testing.T) {
	testCases := []struct {
		name    string
		cfg     FitConfig
		wantErr bool
	}{
		{name: "defaults", cfg: FitConfig{}, wantErr: false},
		{name: "model apply mode", cfg: FitConfig{Apply: "weibull"}, wantErr: false},
		{name: "staged", cfg: FitConfig{Apply: "staged"}, wantErr: false},
		{name: "unsupported apply", cfg: FitConfig{Apply: "everything"}, wantErr: true},
		{name: "unknown adoption model", cfg: FitConfig{Adoption: OptimizerConfig{Models: []string{"cubic"}}}, wantErr: true},
		{name: "unknown persistency model", cfg: FitConfig{Persistency: OptimizerConfig{Models: []string{"gamma"}}}, wantErr: true},
		{name: "restart spread too wide", cfg: FitConfig{Persistency: OptimizerConfig{RestartSpread: 1.5}}, wantErr: true},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := tc.cfg
			err := cfg.Validate()
			if tc.wantErr && err == nil {
				t.Fatalf("expected error but got none")
			}
			if !tc.wantErr && err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
		})
	}

	var nilCfg *FitConfig
	if err := nilCfg.Validate(); err == nil {
		t.Fatalf("expected error for nil config")
	}
}

func TestFitConfigModels(t *testing.T) {
	cfg := FitConfig{
		Adoption:    OptimizerConfig{Models: []string{"Logistic", "bass"}},
		Persistency: OptimizerConfig{Models: []string{"mixturecure"}},
	}

	adoptionModels, err := cfg.AdoptionModels()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(adoptionModels) != 2 || adoptionModels[0] != "logistic" || adoptionModels[1] != "bass" {
		t.Fatalf("unexpected adoption models %v", adoptionModels)
	}

	persistencyModels, err := cfg.PersistencyModels()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(persistencyModels) != 1 || persistencyModels[0] != "mixtureCure" {
		t.Fatalf("unexpected persistency models %v", persistencyModels)
	}
}
