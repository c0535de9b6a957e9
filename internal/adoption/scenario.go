package adoption

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// MaxScenarios is the number of adoption snapshots kept side by side.
const MaxScenarios = 3

// ScenarioColors is the overlay palette, assigned in creation order.
var ScenarioColors = []string{"#00d4b4", "#f0a500", "#a78bfa", "#ff6b9a"}

var (
	// ErrScenarioLimit is returned when a snapshot would exceed MaxScenarios.
	ErrScenarioLimit = errors.New("adoption: scenario limit reached")
	// ErrScenarioNotFound is returned for an unknown scenario id.
	ErrScenarioNotFound = errors.New("adoption: scenario not found")
)

// CoreSnapshot is the part of the core a scenario freezes. Horizon, time
// unit and TAM always come from the live core.
type CoreSnapshot struct {
	CeilingPct float64 `json:"ceilingPct"`
	LaunchLag  float64 `json:"launchLag"`
}

// Scenario is a frozen copy of a model and its parameters.
type Scenario struct {
	ID     string       `json:"id"`
	Name   string       `json:"name"`
	Color  string       `json:"color"`
	Model  Model        `json:"model"`
	Core   CoreSnapshot `json:"core"`
	Params Params       `json:"params"`
}

// ScenarioName returns the default name of the i-th scenario ("Scenario A").
func ScenarioName(i int) string {
	return fmt.Sprintf("Scenario %c", rune('A'+i%26))
}

// ScenarioColor returns the palette color of the i-th scenario.
func ScenarioColor(i int) string {
	return ScenarioColors[i%len(ScenarioColors)]
}

// State is the live adoption workspace. Every method returns a new State and
// leaves the receiver untouched.
type State struct {
	Model     Model      `json:"model"`
	Core      CoreParams `json:"core"`
	Params    ParamSet   `json:"params"`
	Scenarios []Scenario `json:"scenarios"`
	// EditingID names the scenario whose snapshot follows live edits.
	EditingID string `json:"editingId,omitempty"`
}

// NewState returns a workspace at the defaults.
func NewState() State {
	return State{
		Model:  Logistic,
		Core:   DefaultCore(),
		Params: DefaultParamSet(),
	}
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

// Snapshot freezes the live model, ceiling, lag and parameters as a new
// scenario.
func (s State) Snapshot() (State, Scenario, error) {
	if len(s.Scenarios) >= MaxScenarios {
		return s, Scenario{}, fmt.Errorf("%w: %d", ErrScenarioLimit, MaxScenarios)
	}
	n := len(s.Scenarios)
	sc := Scenario{
		ID:     uuid.NewString(),
		Name:   ScenarioName(n),
		Color:  ScenarioColor(n),
		Model:  s.Model,
		Core:   CoreSnapshot{CeilingPct: s.Core.CeilingPct, LaunchLag: s.Core.LaunchLag},
		Params: s.Params.For(s.Model),
	}
	s.Scenarios = append(s.copyScenarios(), sc)
	s.Core = s.Core.clone()
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

// mirror applies fn to the edited scenario, if any.
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
	return s.mirror(func(sc *Scenario) {
		if sc.Model == p.Model() {
			sc.Params = p
		}
	})
}

// WithCore overlays a core patch; ceiling and lag reach the edited scenario.
func (s State) WithCore(patch CorePatch) State {
	s.Core = s.Core.clone().Apply(patch)
	return s.mirror(func(sc *Scenario) {
		if patch.CeilingPct != nil {
			sc.Core.CeilingPct = *patch.CeilingPct
		}
		if patch.LaunchLag != nil {
			sc.Core.LaunchLag = *patch.LaunchLag
		}
	})
}

// Effective returns the model, core and parameters currently on display:
// the edited scenario's snapshot layered over the live state, or the live
// state when nothing is being edited.
func (s State) Effective() (Model, CoreParams, ParamSet) {
	core := s.Core.clone()
	sc, ok := s.Editing()
	if !ok {
		return s.Model, core, s.Params
	}
	core.CeilingPct = sc.Core.CeilingPct
	core.LaunchLag = sc.Core.LaunchLag
	params := s.Params
	if sc.Params != nil {
		params = params.With(sc.Params)
	}
	return sc.Model, core, params
}

// ScenarioSeries pairs a scenario with its generated curve.
type ScenarioSeries struct {
	Scenario Scenario `json:"scenario"`
	Series   Series   `json:"series"`
}

// ComposeScenarios generates every scenario against the shared horizon, time
// unit and TAM of core, using each scenario's own ceiling, lag and params.
func ComposeScenarios(scenarios []Scenario, core CoreParams, params ParamSet) []ScenarioSeries {
	out := make([]ScenarioSeries, 0, len(scenarios))
	for _, sc := range scenarios {
		scCore := core.clone()
		scCore.CeilingPct = sc.Core.CeilingPct
		scCore.LaunchLag = sc.Core.LaunchLag

		p := sc.Params
		if p == nil || p.Model() != sc.Model {
			p = params.For(sc.Model)
		}
		if p == nil {
			continue
		}
		out = append(out, ScenarioSeries{Scenario: sc, Series: Generate(p, scCore)})
	}
	return out
}
