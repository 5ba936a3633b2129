package variables

import (
	"stellarforge.ai/internal/sim/catalogs"
	"stellarforge.ai/internal/sim/model"
)

// Scope contributes context effects: a system or a fleet. A nil *System
// or *Fleet contributes nothing.
type Scope interface {
	EffectSource() model.EffectSource
}

// Engine evaluates variables for an empire and optional scope.
type Engine struct {
	cats *catalogs.Catalogs
	reg  *Registry
}

func NewEngine(cats *catalogs.Catalogs, reg *Registry) *Engine {
	return &Engine{cats: cats, reg: reg}
}

func (e *Engine) Registry() *Registry { return e.reg }

// EffectiveTechnologies expands unlocked ids with everything they imply,
// transitively. Each id appears once; implied technologies follow the one
// that implies them. Unknown ids are skipped.
func (e *Engine) EffectiveTechnologies(unlocked []string) []string {
	seen := map[string]bool{}
	var out []string
	var visit func(id string)
	visit = func(id string) {
		if seen[id] {
			return
		}
		def, ok := e.cats.Technologies.ByID[id]
		if !ok {
			return
		}
		seen[id] = true
		out = append(out, id)
		for _, imp := range def.Implies {
			visit(imp)
		}
	}
	for _, id := range unlocked {
		visit(id)
	}
	return out
}

// Sources lists the effect sources that apply to emp within scope, in
// application order: traits, technologies, the empire's own effects, then
// the scope's effects.
func (e *Engine) Sources(emp *model.Empire, scope Scope) []model.EffectSource {
	var out []model.EffectSource
	if emp != nil {
		for _, id := range emp.Traits {
			t, ok := e.cats.Traits.ByID[id]
			if !ok {
				continue
			}
			out = append(out, model.EffectSource{ID: "traits." + id, Effects: t.Effects})
		}
		for _, id := range e.EffectiveTechnologies(emp.Technologies) {
			out = append(out, model.EffectSource{ID: "technologies." + id, Effects: e.cats.Technologies.ByID[id].Effects})
		}
		if len(emp.Effects) > 0 {
			out = append(out, model.EffectSource{ID: "empire", Effects: emp.Effects})
		}
	}
	if scope != nil {
		if s := scope.EffectSource(); len(s.Effects) > 0 {
			out = append(out, s)
		}
	}
	return out
}

// Evaluate applies every applicable effect to v in place.
func (e *Engine) Evaluate(v *Vars, emp *model.Empire, scope Scope) {
	ApplyEffects(v, Flatten(e.Sources(emp, scope)))
}

// Category returns every variable of cat evaluated for emp and scope.
func (e *Engine) Category(cat Category, emp *model.Empire, scope Scope) *Vars {
	v := e.reg.CategoryDefaults(cat)
	e.Evaluate(v, emp, scope)
	return v
}

// Value returns the effective value of one path.
func (e *Engine) Value(path string, emp *model.Empire, scope Scope) (float64, error) {
	v, err := e.reg.Seed(path)
	if err != nil {
		return 0, err
	}
	e.Evaluate(v, emp, scope)
	x, _ := v.Get(path)
	return x, nil
}

// Explain breaks down the value of path for emp and scope.
func (e *Engine) Explain(path string, emp *model.Empire, scope Scope) (Explained, error) {
	initial, err := e.reg.InitialValue(path)
	if err != nil {
		return Explained{}, err
	}
	return Explain(path, e.Sources(emp, scope), initial), nil
}
