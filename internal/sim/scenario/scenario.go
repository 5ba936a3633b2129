// Package scenario seeds a game from a YAML description of its systems,
// hyperlanes, empires and fleets.
package scenario

import (
	"fmt"
	"os"
	"strings"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"stellarforge.ai/internal/sim/catalogs"
	"stellarforge.ai/internal/sim/model"
)

type Scenario struct {
	Name    string       `yaml:"name"`
	Systems []SystemSpec `yaml:"systems"`
	Links   []LinkSpec   `yaml:"links"`
	Empires []EmpireSpec `yaml:"empires"`
	Fleets  []FleetSpec  `yaml:"fleets"`
}

type SystemSpec struct {
	ID            string         `yaml:"id"`
	Name          string         `yaml:"name"`
	Type          string         `yaml:"type"`
	Upgrade       string         `yaml:"upgrade"`
	Owner         string         `yaml:"owner"`
	Capacity      int            `yaml:"capacity"`
	Population    float64        `yaml:"population"`
	DistrictSlots map[string]int `yaml:"district_slots"`
	Districts     map[string]int `yaml:"districts"`
	Buildings     []string       `yaml:"buildings"`
	X             float64        `yaml:"x"`
	Y             float64        `yaml:"y"`
}

// LinkSpec is an undirected hyperlane.
type LinkSpec struct {
	From     string  `yaml:"from"`
	To       string  `yaml:"to"`
	Distance float64 `yaml:"distance"`
}

type EmpireSpec struct {
	ID           string             `yaml:"id"`
	Name         string             `yaml:"name"`
	User         string             `yaml:"user"`
	Traits       []string           `yaml:"traits"`
	Technologies []string           `yaml:"technologies"`
	Resources    map[string]float64 `yaml:"resources"`
}

type FleetSpec struct {
	ID       string   `yaml:"id"`
	Name     string   `yaml:"name"`
	Empire   string   `yaml:"empire"`
	Location string   `yaml:"location"`
	Ships    []string `yaml:"ships"`
}

func Load(path string) (Scenario, error) {
	var s Scenario
	b, err := os.ReadFile(path)
	if err != nil {
		return s, err
	}
	if err := yaml.Unmarshal(b, &s); err != nil {
		return s, fmt.Errorf("%s: %w", path, err)
	}
	return s, nil
}

// Validate checks every reference against the catalogs and the scenario's
// own ids.
func (s Scenario) Validate(cats *catalogs.Catalogs) error {
	systems := map[string]bool{}
	for _, sys := range s.Systems {
		id := strings.TrimSpace(sys.ID)
		if id == "" {
			return fmt.Errorf("system id must not be empty")
		}
		if systems[id] {
			return fmt.Errorf("duplicate system id: %s", id)
		}
		systems[id] = true
		if sys.Upgrade != "" {
			if _, ok := cats.Systems.ByID[sys.Upgrade]; !ok {
				return fmt.Errorf("system %s: unknown upgrade stage %q", id, sys.Upgrade)
			}
		}
		for d, n := range sys.Districts {
			if _, ok := cats.Districts.ByID[d]; !ok {
				return fmt.Errorf("system %s: unknown district %q", id, d)
			}
			if n > sys.DistrictSlots[d] {
				return fmt.Errorf("system %s: %d %s districts exceed %d slots", id, n, d, sys.DistrictSlots[d])
			}
		}
		for d := range sys.DistrictSlots {
			if _, ok := cats.Districts.ByID[d]; !ok {
				return fmt.Errorf("system %s: unknown district slot %q", id, d)
			}
		}
		for _, b := range sys.Buildings {
			if _, ok := cats.Buildings.ByID[b]; !ok {
				return fmt.Errorf("system %s: unknown building %q", id, b)
			}
		}
	}
	for i, l := range s.Links {
		if !systems[l.From] || !systems[l.To] {
			return fmt.Errorf("links[%d]: unknown system in %s-%s", i, l.From, l.To)
		}
		if l.From == l.To {
			return fmt.Errorf("links[%d]: self link on %s", i, l.From)
		}
		if l.Distance <= 0 {
			return fmt.Errorf("links[%d]: distance must be > 0", i)
		}
	}

	empires := map[string]bool{}
	for _, e := range s.Empires {
		if e.ID == "" {
			continue
		}
		if empires[e.ID] {
			return fmt.Errorf("duplicate empire id: %s", e.ID)
		}
		empires[e.ID] = true
	}
	for _, e := range s.Empires {
		for _, t := range e.Traits {
			if _, ok := cats.Traits.ByID[t]; !ok {
				return fmt.Errorf("empire %s: unknown trait %q", e.ID, t)
			}
		}
		for _, t := range e.Technologies {
			if _, ok := cats.Technologies.ByID[t]; !ok {
				return fmt.Errorf("empire %s: unknown technology %q", e.ID, t)
			}
		}
		for r := range e.Resources {
			if !cats.IsResource(r) {
				return fmt.Errorf("empire %s: unknown resource %q", e.ID, r)
			}
		}
	}
	for _, sys := range s.Systems {
		if sys.Owner != "" && !empires[sys.Owner] {
			return fmt.Errorf("system %s: unknown owner %q", sys.ID, sys.Owner)
		}
	}
	for _, f := range s.Fleets {
		if !empires[f.Empire] {
			return fmt.Errorf("fleet %s: unknown empire %q", f.ID, f.Empire)
		}
		if !systems[f.Location] {
			return fmt.Errorf("fleet %s: unknown location %q", f.ID, f.Location)
		}
		for _, sh := range f.Ships {
			if _, ok := cats.Ships.ByID[sh]; !ok {
				return fmt.Errorf("fleet %s: unknown ship type %q", f.ID, sh)
			}
		}
	}
	return nil
}

// Build creates the state of a new game. Empires, fleets and ships without
// an id get a fresh uuid; empire resources missing from the scenario start
// at their catalog amount.
func (s Scenario) Build(gameID string, cats *catalogs.Catalogs) (*model.State, error) {
	return s.build(gameID, cats, uuid.NewString)
}

func (s Scenario) build(gameID string, cats *catalogs.Catalogs, newID func() string) (*model.State, error) {
	if err := s.Validate(cats); err != nil {
		return nil, err
	}
	st := model.NewState(gameID)

	for _, e := range s.Empires {
		emp := &model.Empire{
			ID:           e.ID,
			Name:         e.Name,
			User:         e.User,
			Traits:       append([]string{}, e.Traits...),
			Technologies: append([]string{}, e.Technologies...),
			Resources:    map[string]float64{},
		}
		if emp.ID == "" {
			emp.ID = newID()
		}
		for _, name := range cats.Resources.Names {
			v, ok := e.Resources[name]
			if !ok {
				v = cats.Resources.ByID[name].Starting
			}
			emp.Resources[name] = v
		}
		st.PutEmpire(emp)
	}

	for _, spec := range s.Systems {
		sys := &model.System{
			ID:            spec.ID,
			Name:          spec.Name,
			Type:          spec.Type,
			Upgrade:       spec.Upgrade,
			Owner:         spec.Owner,
			Capacity:      spec.Capacity,
			Population:    spec.Population,
			Districts:     copyInts(spec.Districts),
			DistrictSlots: copyInts(spec.DistrictSlots),
			Buildings:     append([]string{}, spec.Buildings...),
			Links:         map[string]float64{},
			X:             spec.X,
			Y:             spec.Y,
		}
		if sys.Upgrade == "" {
			sys.Upgrade = model.StageUnexplored
		}
		if d, ok := cats.Systems.ByID[sys.Upgrade]; ok {
			sys.Health = d.Health
		}
		st.PutSystem(sys)
	}
	for _, l := range s.Links {
		st.Systems[l.From].Links[l.To] = l.Distance
		st.Systems[l.To].Links[l.From] = l.Distance
	}

	for _, spec := range s.Fleets {
		f := &model.Fleet{ID: spec.ID, Name: spec.Name, Empire: spec.Empire, Location: spec.Location}
		if f.ID == "" {
			f.ID = newID()
		}
		if _, dup := st.Fleets[f.ID]; dup {
			return nil, fmt.Errorf("duplicate fleet id: %s", f.ID)
		}
		st.PutFleet(f)
		for _, typ := range spec.Ships {
			st.PutShip(&model.Ship{
				ID:     newID(),
				Empire: f.Empire,
				Fleet:  f.ID,
				Type:   typ,
				Health: cats.Ships.ByID[typ].Health,
			})
		}
	}
	return st, nil
}

func copyInts(in map[string]int) map[string]int {
	out := make(map[string]int, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
