package config

import (
	"fmt"
	"sort"
	"strings"

	"github.com/iwvelando/curve-forecast/internal/adoption"
	"github.com/iwvelando/curve-forecast/internal/persistency"
	"github.com/iwvelando/curve-forecast/pkg/constants"
	"github.com/iwvelando/curve-forecast/pkg/validation"
)

const (
	defaultCohortNewStarts = 100.0
	defaultCohortMonths    = 24
	defaultMonthlyDose     = 1.0
)

// Cohort sizes a resolved cohort waterfall.
type Cohort struct {
	NewStarts float64 `json:"newStarts" validate:"gte=0"`
	Months    int     `json:"months" validate:"gte=0,lte=600"`
}

// Resolved is a fully populated, validated workspace built from a
// Configuration laid over the defaults.
type Resolved struct {
	Adoption            adoption.State
	AdoptionObserved    []adoption.ObservedPoint
	Persistency         persistency.State
	PersistencyObserved []persistency.KMDataPoint
	Benchmarks          []string
	Cohort              Cohort
	MonthlyDose         float64
	Fit                 FitConfig
	AdoptionModels      []adoption.Model
	PersistencyModels   []persistency.Model
}

// canonicalKeys maps keys onto the spelling used by known, ignoring case.
// Viper lowercases map keys, so "medianMonths" arrives as "medianmonths".
func canonicalKeys(values map[string]float64, known map[string]float64) map[string]float64 {
	lookup := make(map[string]string, len(known))
	for key := range known {
		lookup[strings.ToLower(key)] = key
	}
	out := make(map[string]float64, len(values))
	for key, v := range values {
		if canonical, ok := lookup[strings.ToLower(key)]; ok {
			out[canonical] = v
			continue
		}
		out[key] = v
	}
	return out
}

func sortedModelNames(patches ParamPatches) []string {
	names := make([]string, 0, len(patches))
	for name := range patches {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ToAdoptionParams merges adoption parameter patches onto base.
func ToAdoptionParams(base adoption.ParamSet, patches ParamPatches) (adoption.ParamSet, error) {
	for _, name := range sortedModelNames(patches) {
		m, err := adoption.ParseModel(name)
		if err != nil {
			return base, err
		}
		base, err = base.Merge(m, canonicalKeys(patches[name], base.For(m).Values()))
		if err != nil {
			return base, err
		}
	}
	return base, nil
}

// ToPersistencyParams merges persistency parameter patches and piecewise knots
// onto base. Knots are sorted by month; knots sharing a month keep their
// order.
func ToPersistencyParams(base persistency.ParamSet, patches ParamPatches, knots []persistency.Knot) (persistency.ParamSet, error) {
	for _, name := range sortedModelNames(patches) {
		m, err := persistency.ParseModel(name)
		if err != nil {
			return base, err
		}
		base, err = base.Merge(m, canonicalKeys(patches[name], base.For(m).Values()))
		if err != nil {
			return base, err
		}
	}
	if len(knots) > 0 {
		base = base.With(persistency.PiecewiseParams{Knots: sortedKnots(knots)})
	}
	return base, nil
}

func sortedKnots(knots []persistency.Knot) []persistency.Knot {
	sorted := append([]persistency.Knot(nil), knots...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Month < sorted[j].Month })
	return sorted
}

func (c *Configuration) resolveAdoption() (adoption.State, error) {
	state := adoption.NewState()

	core := state.Core.Apply(c.Adoption.Core)
	if err := core.Validate(); err != nil {
		return state, err
	}

	params, err := ToAdoptionParams(state.Params, c.Adoption.Params)
	if err != nil {
		return state, err
	}
	if err := params.Validate(); err != nil {
		return state, err
	}

	model := state.Model
	if strings.TrimSpace(c.Adoption.Model) != "" {
		if model, err = adoption.ParseModel(c.Adoption.Model); err != nil {
			return state, err
		}
	}

	state.Core = core
	state.Params = params
	state = state.WithModel(model)

	for i, sc := range c.Adoption.Scenarios {
		if i >= adoption.MaxScenarios {
			break
		}
		if state, err = addAdoptionScenario(state, sc); err != nil {
			return state, fmt.Errorf("adoption scenario %d: %w", i+1, err)
		}
	}
	return state, nil
}

// addAdoptionScenario snapshots the scenario's curve from a scratch copy of
// the live state, so the live curve itself is unchanged.
func addAdoptionScenario(state adoption.State, sc AdoptionScenario) (adoption.State, error) {
	scratch := state
	if strings.TrimSpace(sc.Model) != "" {
		m, err := adoption.ParseModel(sc.Model)
		if err != nil {
			return state, err
		}
		scratch = scratch.WithModel(m)
	}
	if len(sc.Params) > 0 {
		params, err := scratch.Params.Merge(scratch.Model, canonicalKeys(sc.Params, scratch.Params.For(scratch.Model).Values()))
		if err != nil {
			return state, err
		}
		if err := adoption.ValidateParams(params.For(scratch.Model)); err != nil {
			return state, err
		}
		scratch = scratch.WithParams(params.For(scratch.Model))
	}
	scratch = scratch.WithCore(adoption.CorePatch{CeilingPct: sc.CeilingPct, LaunchLag: sc.LaunchLag})
	if err := scratch.Core.Validate(); err != nil {
		return state, err
	}

	scratch, snap, err := scratch.Snapshot()
	if err != nil {
		return state, err
	}
	if sc.Name != "" {
		if scratch, err = scratch.Rename(snap.ID, sc.Name); err != nil {
			return state, err
		}
	}
	state.Scenarios = scratch.Scenarios
	return state, nil
}

func (c *Configuration) resolvePersistency() (persistency.State, error) {
	state := persistency.NewState()

	if c.Persistency.Horizon != nil {
		if h := *c.Persistency.Horizon; h < 1 || h > constants.MaxHorizon {
			return state, fmt.Errorf("persistency horizon must be between 1 and %d, got %d", constants.MaxHorizon, h)
		}
		state = state.WithHorizon(*c.Persistency.Horizon)
	}

	if id := strings.TrimSpace(c.Persistency.Preset); id != "" {
		preset, err := persistency.PresetByID(id)
		if err != nil {
			return state, err
		}
		state = state.LoadPreset(preset)
	}

	params, err := ToPersistencyParams(state.Params, c.Persistency.Params, c.Persistency.Knots)
	if err != nil {
		return state, err
	}
	if err := params.Validate(); err != nil {
		return state, err
	}
	if len(c.Persistency.Params) > 0 || len(c.Persistency.Knots) > 0 {
		state.PresetID = ""
	}
	state.Params = params

	if strings.TrimSpace(c.Persistency.Model) != "" {
		m, err := persistency.ParseModel(c.Persistency.Model)
		if err != nil {
			return state, err
		}
		state = state.WithModel(m)
	}

	for i, sc := range c.Persistency.Scenarios {
		if i >= persistency.MaxScenarios {
			break
		}
		if state, err = addPersistencyScenario(state, sc); err != nil {
			return state, fmt.Errorf("persistency scenario %d: %w", i+1, err)
		}
	}
	return state, nil
}

func addPersistencyScenario(state persistency.State, sc PersistencyScenario) (persistency.State, error) {
	scratch := state
	if strings.TrimSpace(sc.Model) != "" {
		m, err := persistency.ParseModel(sc.Model)
		if err != nil {
			return state, err
		}
		scratch = scratch.WithModel(m)
	}
	if len(sc.Params) > 0 || len(sc.Knots) > 0 {
		patches := ParamPatches{}
		if len(sc.Params) > 0 {
			patches[string(scratch.Model)] = sc.Params
		}
		params, err := ToPersistencyParams(scratch.Params, patches, sc.Knots)
		if err != nil {
			return state, err
		}
		if err := persistency.ValidateParams(params.For(scratch.Model)); err != nil {
			return state, err
		}
		scratch = scratch.WithParams(params.For(scratch.Model))
	}

	scratch, snap, err := scratch.Snapshot()
	if err != nil {
		return state, err
	}
	if sc.Name != "" {
		if scratch, err = scratch.Rename(snap.ID, sc.Name); err != nil {
			return state, err
		}
	}
	state.Scenarios = scratch.Scenarios
	return state, nil
}

// Resolve lays the configuration over the defaults and validates the result.
// Unknown models, parameters or presets are errors.
func (c *Configuration) Resolve() (*Resolved, error) {
	adoptionState, err := c.resolveAdoption()
	if err != nil {
		return nil, fmt.Errorf("adoption: %w", err)
	}

	persistencyState, err := c.resolvePersistency()
	if err != nil {
		return nil, fmt.Errorf("persistency: %w", err)
	}

	fit := c.Fit
	if err := fit.Validate(); err != nil {
		return nil, err
	}
	adoptionModels, err := fit.AdoptionModels()
	if err != nil {
		return nil, err
	}
	persistencyModels, err := fit.PersistencyModels()
	if err != nil {
		return nil, err
	}

	for _, id := range c.Persistency.Benchmarks {
		if _, err := persistency.PresetByID(id); err != nil {
			return nil, fmt.Errorf("benchmarks: %w", err)
		}
	}

	cohort := Cohort{NewStarts: defaultCohortNewStarts, Months: defaultCohortMonths}
	if c.Persistency.Cohort.NewStarts != nil {
		cohort.NewStarts = *c.Persistency.Cohort.NewStarts
	}
	if c.Persistency.Cohort.Months != nil {
		cohort.Months = *c.Persistency.Cohort.Months
	}
	if err := validation.ValidateStruct(cohort); err != nil {
		return nil, fmt.Errorf("cohort: %w", err)
	}

	dose := defaultMonthlyDose
	if c.Persistency.MonthlyDose != nil {
		dose = *c.Persistency.MonthlyDose
	}

	adoptionObserved := adoption.NormalizeObserved(c.Adoption.Observed)
	if n := len(adoptionObserved); n > 0 && adoptionObserved[n-1].Period > constants.MaxHorizon {
		return nil, fmt.Errorf("adoption observed: period %d is beyond the limit of %d", adoptionObserved[n-1].Period, constants.MaxHorizon)
	}
	persistencyObserved := persistency.NormalizeKM(c.Persistency.Observed)
	if n := len(persistencyObserved); n > 0 && persistencyObserved[n-1].Month > constants.MaxHorizon {
		return nil, fmt.Errorf("persistency observed: month %d is beyond the limit of %d", persistencyObserved[n-1].Month, constants.MaxHorizon)
	}

	return &Resolved{
		Adoption:            adoptionState,
		AdoptionObserved:    adoptionObserved,
		Persistency:         persistencyState,
		PersistencyObserved: persistencyObserved,
		Benchmarks:          append([]string(nil), c.Persistency.Benchmarks...),
		Cohort:              cohort,
		MonthlyDose:         dose,
		Fit:                 fit,
		AdoptionModels:      adoptionModels,
		PersistencyModels:   persistencyModels,
	}, nil
}
