package config

import (
	"fmt"
	"strings"

	"github.com/iwvelando/curve-forecast/internal/adoption"
	"github.com/iwvelando/curve-forecast/internal/persistency"
	"github.com/iwvelando/curve-forecast/pkg/optimization"
)

const (
	// FitApplyNone leaves the live parameters untouched.
	FitApplyNone = "none"
	// FitApplyBest applies the best-ranked result.
	FitApplyBest = "best"
	// FitApplyStaged applies the active model's result, falling back to the best.
	FitApplyStaged = "staged"

	defaultAdoptionMaxIterations    = 350
	defaultAdoptionTolerance        = 1e-8
	defaultAdoptionInitialStep      = 0.22
	defaultPersistencyMaxIterations = 600
	defaultPersistencyTolerance     = 1e-7
	defaultPersistencyInitialStep   = 0.2
)

// FitConfig controls curve fitting.
type FitConfig struct {
	Enabled bool `yaml:"enabled,omitempty" mapstructure:"enabled"`
	// Apply is none, best, staged, or a model name.
	Apply       string          `yaml:"apply,omitempty" mapstructure:"apply"`
	Concurrency int             `yaml:"concurrency,omitempty" mapstructure:"concurrency"`
	Adoption    OptimizerConfig `yaml:"adoption,omitempty" mapstructure:"adoption"`
	Persistency OptimizerConfig `yaml:"persistency,omitempty" mapstructure:"persistency"`
}

// OptimizerConfig tunes the simplex search for one side.
type OptimizerConfig struct {
	Models        []string `yaml:"models,omitempty" mapstructure:"models"`
	MaxIterations int      `yaml:"maxIterations,omitempty" mapstructure:"maxIterations"`
	Tolerance     float64  `yaml:"tolerance,omitempty" mapstructure:"tolerance"`
	InitialStep   float64  `yaml:"initialStep,omitempty" mapstructure:"initialStep"`
	RestartSpread float64  `yaml:"restartSpread,omitempty" mapstructure:"restartSpread"`
}

// CanonicalApplyMode returns the canonical identifier for an apply mode.
func CanonicalApplyMode(value string) string {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return FitApplyNone
	}
	switch strings.ToLower(trimmed) {
	case "none", "off", "false":
		return FitApplyNone
	case "best":
		return FitApplyBest
	case "staged", "active":
		return FitApplyStaged
	default:
		if m, err := adoption.ParseModel(trimmed); err == nil {
			return string(m)
		}
		if m, err := persistency.ParseModel(trimmed); err == nil {
			return string(m)
		}
		return strings.ToLower(trimmed)
	}
}

// normalize fills unset fields with the given defaults.
func (o *OptimizerConfig) normalize(maxIterations int, tolerance, initialStep float64) {
	if o.MaxIterations <= 0 {
		o.MaxIterations = maxIterations
	}
	if o.Tolerance <= 0 {
		o.Tolerance = tolerance
	}
	if o.InitialStep <= 0 {
		o.InitialStep = initialStep
	}
	if o.RestartSpread <= 0 {
		o.RestartSpread = optimization.DefaultRestartSpread
	}
}

func (o OptimizerConfig) options() optimization.Options {
	return optimization.Options{
		MaxIterations: o.MaxIterations,
		Tolerance:     o.Tolerance,
		InitialStep:   o.InitialStep,
	}
}

// Normalize ensures defaults and canonical values are applied before validation.
func (f *FitConfig) Normalize() {
	if f == nil {
		return
	}
	f.Apply = CanonicalApplyMode(f.Apply)
	f.Adoption.normalize(defaultAdoptionMaxIterations, defaultAdoptionTolerance, defaultAdoptionInitialStep)
	f.Persistency.normalize(defaultPersistencyMaxIterations, defaultPersistencyTolerance, defaultPersistencyInitialStep)
	if f.Concurrency < 0 {
		f.Concurrency = 0
	}
}

// Validate returns an error when the fit configuration is unsupported.
func (f *FitConfig) Validate() error {
	if f == nil {
		return fmt.Errorf("fit configuration cannot be nil")
	}

	f.Normalize()

	switch f.Apply {
	case FitApplyNone, FitApplyBest, FitApplyStaged:
	default:
		_, adoptionErr := adoption.ParseModel(f.Apply)
		_, persistencyErr := persistency.ParseModel(f.Apply)
		if adoptionErr != nil && persistencyErr != nil {
			return fmt.Errorf("fit apply mode %q is not supported", f.Apply)
		}
	}

	if _, err := f.AdoptionModels(); err != nil {
		return err
	}
	if _, err := f.PersistencyModels(); err != nil {
		return err
	}

	if f.Adoption.RestartSpread >= 1 || f.Persistency.RestartSpread >= 1 {
		return fmt.Errorf("fit restart spread must be below 1")
	}
	return nil
}

// AdoptionModels parses the adoption models to fit; empty means all.
func (f *FitConfig) AdoptionModels() ([]adoption.Model, error) {
	models := make([]adoption.Model, 0, len(f.Adoption.Models))
	for _, name := range f.Adoption.Models {
		m, err := adoption.ParseModel(name)
		if err != nil {
			return nil, fmt.Errorf("fit adoption models: %w", err)
		}
		models = append(models, m)
	}
	return models, nil
}

// PersistencyModels parses the persistency models to fit; empty means all.
func (f *FitConfig) PersistencyModels() ([]persistency.Model, error) {
	models := make([]persistency.Model, 0, len(f.Persistency.Models))
	for _, name := range f.Persistency.Models {
		m, err := persistency.ParseModel(name)
		if err != nil {
			return nil, fmt.Errorf("fit persistency models: %w", err)
		}
		models = append(models, m)
	}
	return models, nil
}

// AdoptionOptions returns the normalized adoption fit options.
func (f FitConfig) AdoptionOptions() adoption.FitOptions {
	f.Normalize()
	return adoption.FitOptions{Simplex: f.Adoption.options(), RestartSpread: f.Adoption.RestartSpread}
}

// PersistencyOptions returns the normalized persistency fit options.
func (f FitConfig) PersistencyOptions() persistency.FitOptions {
	f.Normalize()
	return persistency.FitOptions{Simplex: f.Persistency.options(), RestartSpread: f.Persistency.RestartSpread}
}
