// Package validation provides configuration validation utilities.
package validation

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
)

var (
	validate     *validator.Validate
	validateOnce sync.Once
)

func instance() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New()
	})
	return validate
}

// ValidateStruct checks v against its `validate` struct tags and folds every
// field failure into a single error.
func ValidateStruct(v interface{}) error {
	err := instance().Struct(v)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return err
	}

	msgs := make([]string, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		if fe.Param() != "" {
			msgs = append(msgs, fmt.Sprintf("%s must satisfy %s=%s (got %v)", fe.Namespace(), fe.Tag(), fe.Param(), fe.Value()))
		} else {
			msgs = append(msgs, fmt.Sprintf("%s must satisfy %s (got %v)", fe.Namespace(), fe.Tag(), fe.Value()))
		}
	}
	return fmt.Errorf("invalid configuration: %s", strings.Join(msgs, "; "))
}

// ObservedSeries describes an observed data set for warning checks.
type ObservedSeries struct {
	Name    string
	Periods []int
	Horizon int
}

// KnotSeries describes a piecewise survival curve for warning checks.
type KnotSeries struct {
	Name   string
	Months []float64
	Values []float64
}

// ScenarioSet describes a scenario collection and its limit.
type ScenarioSet struct {
	Name  string
	Count int
	Limit int
}

// ValidateObserved warns about duplicate periods (the later value wins) and
// periods that fall beyond the configured horizon.
func ValidateObserved(series ObservedSeries) []string {
	var warnings []string

	seen := make(map[int]bool, len(series.Periods))
	beyond := 0
	for _, p := range series.Periods {
		if seen[p] {
			warnings = append(warnings, fmt.Sprintf("%s has duplicate period %d - the later value is used", series.Name, p))
		}
		seen[p] = true
		if series.Horizon > 0 && p > series.Horizon {
			beyond++
		}
	}

	if beyond > 0 {
		warnings = append(warnings, fmt.Sprintf("%s has %d point(s) beyond the horizon of %d - the fit horizon is extended to cover them",
			series.Name, beyond, series.Horizon))
	}

	return warnings
}

// ValidateKnots warns when piecewise knots are out of order, since they are
// sorted by month before use, and when survival rises between knots in that
// sorted order.
func ValidateKnots(series KnotSeries) []string {
	var warnings []string

	n := len(series.Months)
	if len(series.Values) < n {
		n = len(series.Values)
	}
	for i := 1; i < n; i++ {
		if series.Months[i] < series.Months[i-1] {
			warnings = append(warnings, fmt.Sprintf("%s knot %d is not sorted by month (%g < %g) - knots are sorted before use",
				series.Name, i, series.Months[i], series.Months[i-1]))
		}
	}

	order := make([]int, n)
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool { return series.Months[order[a]] < series.Months[order[b]] })
	for i := 1; i < n; i++ {
		prev, curr := order[i-1], order[i]
		if series.Values[curr] > series.Values[prev] {
			warnings = append(warnings, fmt.Sprintf("%s survival increases between month %g and %g (%g > %g)",
				series.Name, series.Months[prev], series.Months[curr], series.Values[curr], series.Values[prev]))
		}
	}

	return warnings
}

// ConfigValidator gathers the soft checks for a whole configuration.
type ConfigValidator struct {
	Observed  []ObservedSeries
	Knots     []KnotSeries
	Scenarios []ScenarioSet
}

// ValidateAll validates the entire configuration and returns warnings
func (cv *ConfigValidator) ValidateAll() []string {
	var warnings []string

	for _, series := range cv.Observed {
		warnings = append(warnings, ValidateObserved(series)...)
	}

	for _, series := range cv.Knots {
		warnings = append(warnings, ValidateKnots(series)...)
	}

	for _, set := range cv.Scenarios {
		if set.Limit > 0 && set.Count > set.Limit {
			warnings = append(warnings, fmt.Sprintf("%s has %d scenarios - only the first %d are kept",
				set.Name, set.Count, set.Limit))
		}
	}

	return warnings
}
