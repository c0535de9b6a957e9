// Package config defines the data structures related to configuration and
// includes functions for loading, parsing and resolving it into a workspace.
package config

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/iwvelando/curve-forecast/internal/adoption"
	"github.com/iwvelando/curve-forecast/internal/persistency"
	"github.com/iwvelando/curve-forecast/pkg/validation"
	"github.com/spf13/viper"
)

// Configuration holds all configuration for curve-forecast. Every section is
// optional; Resolve fills the gaps with defaults.
type Configuration struct {
	Adoption    AdoptionConfig    `yaml:"adoption,omitempty" mapstructure:"adoption"`
	Persistency PersistencyConfig `yaml:"persistency,omitempty" mapstructure:"persistency"`
	Fit         FitConfig         `yaml:"fit,omitempty" mapstructure:"fit"`
	Logging     LoggingConfig     `yaml:"logging,omitempty" mapstructure:"logging"`
	Output      OutputConfig      `yaml:"output,omitempty" mapstructure:"output"`
}

// LoggingConfig holds logging configuration options
type LoggingConfig struct {
	Level      string `yaml:"level,omitempty" mapstructure:"level"`           // debug, info, warn, error
	Format     string `yaml:"format,omitempty" mapstructure:"format"`         // json, console
	OutputFile string `yaml:"outputFile,omitempty" mapstructure:"outputFile"` // optional file output
}

// OutputConfig holds output format configuration options
type OutputConfig struct {
	Format string `yaml:"format,omitempty" mapstructure:"format"` // pretty, csv, xlsx
	File   string `yaml:"file,omitempty" mapstructure:"file"`     // required for xlsx
}

// ParamPatches maps a model name to the coefficients it overrides.
type ParamPatches map[string]map[string]float64

// AdoptionConfig describes the live adoption curve.
type AdoptionConfig struct {
	Model     string                   `yaml:"model,omitempty" mapstructure:"model"`
	Core      adoption.CorePatch       `yaml:"core,omitempty" mapstructure:"core"`
	Params    ParamPatches             `yaml:"params,omitempty" mapstructure:"params"`
	Observed  []adoption.ObservedPoint `yaml:"observed,omitempty" mapstructure:"observed"`
	Scenarios []AdoptionScenario       `yaml:"scenarios,omitempty" mapstructure:"scenarios"`
}

// AdoptionScenario is a saved adoption comparison curve. Unset fields come
// from the live curve.
type AdoptionScenario struct {
	Name       string             `yaml:"name,omitempty" mapstructure:"name"`
	Model      string             `yaml:"model,omitempty" mapstructure:"model"`
	CeilingPct *float64           `yaml:"ceilingPct,omitempty" mapstructure:"ceilingPct"`
	LaunchLag  *float64           `yaml:"launchLag,omitempty" mapstructure:"launchLag"`
	Params     map[string]float64 `yaml:"params,omitempty" mapstructure:"params"`
}

// PersistencyConfig describes the live persistency curve.
type PersistencyConfig struct {
	Model       string                    `yaml:"model,omitempty" mapstructure:"model"`
	Preset      string                    `yaml:"preset,omitempty" mapstructure:"preset"`
	Horizon     *int                      `yaml:"horizon,omitempty" mapstructure:"horizon"`
	Params      ParamPatches              `yaml:"params,omitempty" mapstructure:"params"`
	Knots       []persistency.Knot        `yaml:"knots,omitempty" mapstructure:"knots"`
	Observed    []persistency.KMDataPoint `yaml:"observed,omitempty" mapstructure:"observed"`
	Scenarios   []PersistencyScenario     `yaml:"scenarios,omitempty" mapstructure:"scenarios"`
	Benchmarks  []string                  `yaml:"benchmarks,omitempty" mapstructure:"benchmarks"`
	Cohort      CohortConfig              `yaml:"cohort,omitempty" mapstructure:"cohort"`
	MonthlyDose *float64                  `yaml:"monthlyDose,omitempty" mapstructure:"monthlyDose"`
}

// PersistencyScenario is a saved persistency comparison curve.
type PersistencyScenario struct {
	Name   string             `yaml:"name,omitempty" mapstructure:"name"`
	Model  string             `yaml:"model,omitempty" mapstructure:"model"`
	Params map[string]float64 `yaml:"params,omitempty" mapstructure:"params"`
	Knots  []persistency.Knot `yaml:"knots,omitempty" mapstructure:"knots"`
}

// CohortConfig sizes the cohort waterfall.
type CohortConfig struct {
	NewStarts *float64 `yaml:"newStarts,omitempty" mapstructure:"newStarts"`
	Months    *int     `yaml:"months,omitempty" mapstructure:"months"`
}

// LoadConfiguration takes a file path as input and loads the YAML-formatted
// configuration there.
func LoadConfiguration(configPath string) (*Configuration, error) {
	v := viper.New()
	v.SetConfigFile(configPath)
	v.AutomaticEnv()

	v.SetConfigType("yml")

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("error reading config file, %w", err)
	}

	return decode(v)
}

// ParseConfiguration loads a configuration document held in memory. format
// is any type viper understands (yaml, json, toml).
func ParseConfiguration(data []byte, format string) (*Configuration, error) {
	if strings.TrimSpace(format) == "" {
		format = "yaml"
	}
	v := viper.New()
	v.SetConfigType(format)

	if err := v.ReadConfig(bytes.NewReader(data)); err != nil {
		return nil, fmt.Errorf("error reading config document, %w", err)
	}

	return decode(v)
}

func decode(v *viper.Viper) (*Configuration, error) {
	var configuration Configuration
	if err := v.Unmarshal(&configuration); err != nil {
		return nil, fmt.Errorf("unable to decode into struct, %w", err)
	}
	return &configuration, nil
}

// ValidateConfiguration performs general validation of the configuration and returns warnings
func (c *Configuration) ValidateConfiguration() []string {
	horizon := adoption.DefaultCore().Horizon
	if c.Adoption.Core.Horizon != nil {
		horizon = *c.Adoption.Core.Horizon
	}
	persistencyHorizon := persistency.DefaultHorizon
	if c.Persistency.Horizon != nil {
		persistencyHorizon = *c.Persistency.Horizon
	}

	cv := validation.ConfigValidator{
		Scenarios: []validation.ScenarioSet{
			{Name: "Adoption", Count: len(c.Adoption.Scenarios), Limit: adoption.MaxScenarios},
			{Name: "Persistency", Count: len(c.Persistency.Scenarios), Limit: persistency.MaxScenarios},
		},
	}

	if len(c.Adoption.Observed) > 0 {
		periods := make([]int, len(c.Adoption.Observed))
		for i, pt := range c.Adoption.Observed {
			periods[i] = pt.Period
		}
		cv.Observed = append(cv.Observed, validation.ObservedSeries{Name: "Adoption observed data", Periods: periods, Horizon: horizon})
	}

	if len(c.Persistency.Observed) > 0 {
		months := make([]int, len(c.Persistency.Observed))
		for i, pt := range c.Persistency.Observed {
			months[i] = pt.Month
		}
		cv.Observed = append(cv.Observed, validation.ObservedSeries{Name: "Persistency KM data", Periods: months, Horizon: persistencyHorizon})
	}

	if len(c.Persistency.Knots) > 0 {
		cv.Knots = append(cv.Knots, knotSeries("Piecewise knots", c.Persistency.Knots))
	}
	for _, sc := range c.Persistency.Scenarios {
		if len(sc.Knots) > 0 {
			cv.Knots = append(cv.Knots, knotSeries(fmt.Sprintf("Scenario '%s' knots", sc.Name), sc.Knots))
		}
	}

	return cv.ValidateAll()
}

func knotSeries(name string, knots []persistency.Knot) validation.KnotSeries {
	series := validation.KnotSeries{Name: name}
	for _, k := range knots {
		series.Months = append(series.Months, k.Month)
		series.Values = append(series.Values, k.Survival)
	}
	return series
}
