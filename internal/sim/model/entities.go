package model

import "sort"

// Upgrade stages in their only allowed order.
const (
	StageUnexplored = "unexplored"
	StageExplored   = "explored"
	StageColonized  = "colonized"
	StageUpgraded   = "upgraded"
	StageDeveloped  = "developed"
)

type Empire struct {
	ID           string             `json:"id"`
	Game         string             `json:"game"`
	User         string             `json:"user,omitempty"`
	Name         string             `json:"name"`
	Resources    map[string]float64 `json:"resources"`
	Technologies []string           `json:"technologies"`
	Traits       []string           `json:"traits"`
	Effects      []Effect           `json:"effects,omitempty"`
}

func (e *Empire) HasTechnology(id string) bool {
	for _, t := range e.Technologies {
		if t == id {
			return true
		}
	}
	return false
}

func (e *Empire) Clone() *Empire {
	c := *e
	c.Resources = cloneFloats(e.Resources)
	c.Technologies = append([]string(nil), e.Technologies...)
	c.Traits = append([]string(nil), e.Traits...)
	c.Effects = CloneEffects(e.Effects)
	return &c
}

type System struct {
	ID            string             `json:"id"`
	Game          string             `json:"game"`
	Name          string             `json:"name,omitempty"`
	Type          string             `json:"type"`
	Upgrade       string             `json:"upgrade"`
	Districts     map[string]int     `json:"districts"`
	DistrictSlots map[string]int     `json:"district_slots"`
	Capacity      int                `json:"capacity"`
	Buildings     []string           `json:"buildings"`
	Population    float64            `json:"population"`
	Health        float64            `json:"health"`
	Owner         string             `json:"owner,omitempty"`
	Links         map[string]float64 `json:"links"`
	Effects       []Effect           `json:"effects,omitempty"`
	X             float64            `json:"x"`
	Y             float64            `json:"y"`
}

// CountBuildings returns how many buildings of the given type the system has.
func (s *System) CountBuildings(name string) int {
	n := 0
	for _, b := range s.Buildings {
		if b == name {
			n++
		}
	}
	return n
}

// UsedCapacity counts districts and buildings against Capacity.
func (s *System) UsedCapacity() int {
	n := len(s.Buildings)
	for _, c := range s.Districts {
		n += c
	}
	return n
}

// Neighbors returns linked system ids in sorted order.
func (s *System) Neighbors() []string {
	out := make([]string, 0, len(s.Links))
	for id := range s.Links {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

func (s *System) Clone() *System {
	c := *s
	c.Districts = cloneInts(s.Districts)
	c.DistrictSlots = cloneInts(s.DistrictSlots)
	c.Buildings = append([]string(nil), s.Buildings...)
	c.Links = cloneFloats(s.Links)
	c.Effects = CloneEffects(s.Effects)
	return &c
}

type Fleet struct {
	ID       string   `json:"id"`
	Game     string   `json:"game"`
	Empire   string   `json:"empire"`
	Name     string   `json:"name,omitempty"`
	Location string   `json:"location"`
	Effects  []Effect `json:"effects,omitempty"`
}

func (f *Fleet) Clone() *Fleet {
	c := *f
	c.Effects = CloneEffects(f.Effects)
	return &c
}

type Ship struct {
	ID     string  `json:"id"`
	Game   string  `json:"game"`
	Empire string  `json:"empire"`
	Fleet  string  `json:"fleet"`
	Type   string  `json:"type"`
	Health float64 `json:"health"`
}

func (s *Ship) Clone() *Ship {
	c := *s
	return &c
}

func cloneFloats(in map[string]float64) map[string]float64 {
	if in == nil {
		return nil
	}
	out := make(map[string]float64, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

func cloneInts(in map[string]int) map[string]int {
	if in == nil {
		return nil
	}
	out := make(map[string]int, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

// EffectSource returns the system's custom effects as one source.
func (s *System) EffectSource() EffectSource {
	if s == nil {
		return EffectSource{}
	}
	return EffectSource{ID: "system." + s.ID, Effects: s.Effects}
}

// EffectSource returns the fleet's custom effects as one source.
func (f *Fleet) EffectSource() EffectSource {
	if f == nil {
		return EffectSource{}
	}
	return EffectSource{ID: "fleet." + f.ID, Effects: f.Effects}
}
