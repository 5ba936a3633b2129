// Package aggregates computes named, parameterised scores and throughputs
// over an empire and its systems. Every result is itemised and its total is
// the sum of its items.
package aggregates

import (
	"sort"

	apperrors "stellarforge.ai/internal/platform/errors"
	"stellarforge.ai/internal/sim/catalogs"
	"stellarforge.ai/internal/sim/model"
	"stellarforge.ai/internal/sim/tuning"
	"stellarforge.ai/internal/sim/variables"
)

type Item struct {
	Variable string  `json:"variable"`
	Count    float64 `json:"count"`
	Subtotal float64 `json:"subtotal"`
}

type Result struct {
	Total float64 `json:"total"`
	Items []Item  `json:"items"`
}

// Scope is what an aggregate is computed over: the empire, the systems it
// owns and its ships.
type Scope struct {
	Empire  *model.Empire
	Systems []*model.System
	Ships   []*model.Ship
}

type Params map[string]string

// Resolver returns the scope of another empire in the same game.
type Resolver func(empireID string) (Scope, error)

type computeFunc func(e *Engine, s Scope, p Params, resolve Resolver) (Result, error)

type Def struct {
	Name           string            `json:"name"`
	Description    string            `json:"description"`
	Params         map[string]string `json:"params,omitempty"`
	OptionalParams map[string]string `json:"optional_params,omitempty"`

	compute computeFunc
}

type Engine struct {
	cats   *catalogs.Catalogs
	vars   *variables.Engine
	tuning tuning.Tuning
	defs   map[string]Def
}

func NewEngine(cats *catalogs.Catalogs, vars *variables.Engine, tun tuning.Tuning) *Engine {
	e := &Engine{cats: cats, vars: vars, tuning: tun, defs: map[string]Def{}}
	for _, d := range builtins() {
		e.defs[d.Name] = d
	}
	return e
}

// Definitions lists the registered aggregates sorted by name.
func (e *Engine) Definitions() []Def {
	out := make([]Def, 0, len(e.defs))
	for _, d := range e.defs {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Compute runs the named aggregate. resolve may be nil when no comparison
// aggregate is requested.
func (e *Engine) Compute(name string, s Scope, p Params, resolve Resolver) (Result, error) {
	d, ok := e.defs[name]
	if !ok {
		return Result{}, apperrors.BadRequest("unknown aggregate %q", name)
	}
	if s.Empire == nil {
		return Result{}, apperrors.BadRequest("aggregate %s: no empire", name)
	}
	for _, k := range sortedKeys(d.Params) {
		if p[k] == "" {
			return Result{}, apperrors.BadRequest("aggregate %s: missing param %q", name, k)
		}
	}
	return d.compute(e, s, p, resolve)
}

func builtins() []Def {
	compareParams := map[string]string{"compare": "The ID of the empire to compare to"}
	return []Def{
		{
			Name:           "resources.periodic",
			Description:    "Total amount of one resource produced across the empire in a period",
			Params:         map[string]string{"resource": "The resource to calculate, e.g. energy or population"},
			OptionalParams: map[string]string{"system": "Only calculate the production of this system"},
			compute:        computePeriodic,
		},
		{
			Name:        "empire.level.economy",
			Description: "Economy level of the empire",
			compute:     level((*Engine).economy),
		},
		{
			Name:        "empire.level.military",
			Description: "Military level of the empire",
			compute:     level((*Engine).military),
		},
		{
			Name:        "empire.level.technology",
			Description: "Technology level of the empire",
			compute:     level((*Engine).technology),
		},
		{
			Name:        "empire.compare.economy",
			Description: "Economy level compared to another empire as a bounded logarithmic difference",
			Params:      compareParams,
			compute:     compare("empire.level.economy", (*Engine).economy),
		},
		{
			Name:        "empire.compare.military",
			Description: "Military level compared to another empire as a bounded logarithmic difference",
			Params:      compareParams,
			compute:     compare("empire.level.military", (*Engine).military),
		},
		{
			Name:        "empire.compare.technology",
			Description: "Technology level compared to another empire as a bounded logarithmic difference",
			Params:      compareParams,
			compute:     compare("empire.level.technology", (*Engine).technology),
		},
		{
			Name:        "technology.cost",
			Description: "Research cost of a technology for the empire",
			Params:      map[string]string{"technology": "The ID of the technology"},
			compute: func(e *Engine, s Scope, p Params, _ Resolver) (Result, error) {
				return e.TechnologyCost(s.Empire, p["technology"])
			},
		},
	}
}

func computePeriodic(e *Engine, s Scope, p Params, _ Resolver) (Result, error) {
	resource := p["resource"]
	if !e.cats.IsResource(resource) {
		return Result{}, apperrors.BadRequest("invalid resource: %s", resource)
	}
	systems := s.Systems
	if id := p["system"]; id != "" {
		systems = nil
		for _, sys := range s.Systems {
			if sys.ID == id {
				systems = append(systems, sys)
			}
		}
	}
	if resource == "population" {
		return e.PopulationGrowth(s.Empire, systems), nil
	}
	return e.Periodic(s.Empire, systems, resource), nil
}

func level(f func(*Engine, Scope) Result) computeFunc {
	return func(e *Engine, s Scope, _ Params, _ Resolver) (Result, error) {
		return f(e, s), nil
	}
}

// items accumulates contributions keyed by variable, in first-seen order.
type items struct {
	list  []Item
	index map[string]int
}

func (b *items) add(variable string, count, subtotal float64) {
	if subtotal == 0 {
		return
	}
	if b.index == nil {
		b.index = map[string]int{}
	}
	if i, ok := b.index[variable]; ok {
		b.list[i].Count += count
		b.list[i].Subtotal += subtotal
		return
	}
	b.index[variable] = len(b.list)
	b.list = append(b.list, Item{Variable: variable, Count: count, Subtotal: subtotal})
}

func (b *items) result() Result {
	return newResult(b.list)
}

func newResult(list []Item) Result {
	if list == nil {
		list = []Item{}
	}
	return Result{Total: sum(list), Items: list}
}

func sum(list []Item) float64 {
	t := 0.0
	for _, it := range list {
		t += it.Subtotal
	}
	return t
}

func sortedKeys[V any](m map[string]V) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
