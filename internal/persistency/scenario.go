package persistency

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// MaxScenarios is the number of persistency snapshots kept side by side.
const MaxScenarios = 4

// ScenarioColors is the overlay palette, assigned in creation order.
var ScenarioColors = []string{"#00d4b4", "#f0a500", "#a78bfa", "#ff6b9a"}

var (
	// ErrScenarioLimit is returned when a snapshot would exceed MaxScenarios.
	ErrScenarioLimit = errors.New("persistency: scenario limit reached")
	// ErrScenarioNotFound is returned for an unknown scenario id.
	ErrScenarioNotFound = errors.New("persistency: scenario not found")
)

// Scenario is a frozen copy of a model and its parameters.
type Scenario struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Color  string `json:"color"`
	Model  Model  `json:"model"`
	Params Params `json:"params"`
}

// State is the live persistency workspace. Methods return a new State.
type State struct {
	Model     Model      `json:"model"`
	Params    ParamSet   `json:"params"`
	Horizon   int        `json:"horizon"`
	Scenarios []Scenario `json:"scenarios"`
	EditingID string     `json:"editingId,omitempty"`
	// PresetID names the preset last loaded, until parameters change.
	PresetID string `json:"presetId,omitempty"`
}

// DefaultHorizon is the default series length in months.
const DefaultHorizon = 36

// NewState returns a workspace at the defaults.
func NewState() State {
	return State{Model: Weibull, Params: DefaultParamSet(), Horizon: DefaultHorizon}
}

func (s State) copyScenarios() []Scenario {
	out := make([]Scenario, len(s.Scenarios))
	copy(out, s.Scenarios)
	return out
}

func (s State) indexOf(id string) int {
	for i, sc := range s.Scenarios {
		if sc.ID == id {
			return i
		}
	}
	return -1
}

// Snapshot freezes the live model and parameters as a new scenario.
func (s State) Snapshot() (State, Scenario, error) {
	if len(s.Scenarios) >= MaxScenarios {
		return s, Scenario{}, fmt.Errorf("%w: %d", ErrScenarioLimit, MaxScenarios)
	}
	n := len(s.Scenarios)
	sc := Scenario{
		ID:     uuid.NewString(),
		Name:   fmt.Sprintf("Scenario %c", rune('A'+n%26)),
		Color:  ScenarioColors[n%len(ScenarioColors)],
		Model:  s.Model,
		Params: s.Params.For(s.Model),
	}
	s.Scenarios = append(s.copyScenarios(), sc)
	return s, sc, nil
}

// Remove drops a scenario; removing the edited one stops editing.
func (s State) Remove(id string) (State, error) {
	i := s.indexOf(id)
	if i < 0 {
		return s, fmt.Errorf("%w: %s", ErrScenarioNotFound, id)
	}
	scenarios := s.copyScenarios()
	s.Scenarios = append(scenarios[:i], scenarios[i+1:]...)
	if s.EditingID == id {
		s.EditingID = ""
	}
	return s, nil
}

// Rename changes a scenario's display name.
func (s State) Rename(id, name string) (State, error) {
	i := s.indexOf(id)
	if i < 0 {
		return s, fmt.Errorf("%w: %s", ErrScenarioNotFound, id)
	}
	s.Scenarios = s.copyScenarios()
	s.Scenarios[i].Name = name
	return s, nil
}

// Clear drops every scenario.
func (s State) Clear() State {
	s.Scenarios = nil
	s.EditingID = ""
	return s
}

// Edit selects a scenario for editing; an empty id stops editing.
func (s State) Edit(id string) (State, error) {
	if id != "" && s.indexOf(id) < 0 {
		return s, fmt.Errorf("%w: %s", ErrScenarioNotFound, id)
	}
	s.EditingID = id
	return s, nil
}

// Editing returns the scenario selected for editing.
func (s State) Editing() (Scenario, bool) {
	i := s.indexOf(s.EditingID)
	if s.EditingID == "" || i < 0 {
		return Scenario{}, false
	}
	return s.Scenarios[i], true
}

func (s State) mirror(fn func(*Scenario)) State {
	i := s.indexOf(s.EditingID)
	if s.EditingID == "" || i < 0 {
		return s
	}
	s.Scenarios = s.copyScenarios()
	fn(&s.Scenarios[i])
	return s
}

// WithModel switches the active model.
func (s State) WithModel(m Model) State {
	s.Model = m
	params := s.Params.For(m)
	return s.mirror(func(sc *Scenario) {
		sc.Model = m
		if sc.Params == nil || sc.Params.Model() != m {
			sc.Params = params
		}
	})
}

// WithParams replaces one family's coefficients.
func (s State) WithParams(p Params) State {
	s.Params = s.Params.With(p)
	s.PresetID = ""
	return s.mirror(func(sc *Scenario) {
		if sc.Model == p.Model() {
			sc.Params = p
		}
	})
}

// WithHorizon sets the shared series length.
func (s State) WithHorizon(horizon int) State {
	s.Horizon = horizon
	return s
}

// LoadPreset makes a preset the live curve.
func (s State) LoadPreset(p Preset) State {
	s = s.WithModel(p.Model).WithParams(p.Params)
	s.PresetID = p.ID
	return s
}

// Effective returns the model and parameters on display.
func (s State) Effective() (Model, ParamSet) {
	sc, ok := s.Editing()
	if !ok {
		return s.Model, s.Params
	}
	params := s.Params
	if sc.Params != nil {
		params = params.With(sc.Params)
	}
	return sc.Model, params
}

// ScenarioSeries pairs a scenario with its generated curve.
type ScenarioSeries struct {
	Scenario Scenario        `json:"scenario"`
	Series   []SurvivalPoint `json:"series"`
}

// ComposeScenarios generates every scenario over the shared horizon.
func ComposeScenarios(scenarios []Scenario, horizon int, params ParamSet) []ScenarioSeries {
	out := make([]ScenarioSeries, 0, len(scenarios))
	for _, sc := range scenarios {
		p := sc.Params
		if p == nil || p.Model() != sc.Model {
			p = params.For(sc.Model)
		}
		if p == nil {
			continue
		}
		out = append(out, ScenarioSeries{Scenario: sc, Series: Generate(p, horizon)})
	}
	return out
}
