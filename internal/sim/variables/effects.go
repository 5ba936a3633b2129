package variables

import (
	"stellarforge.ai/internal/sim/model"
)

// ApplyEffects applies effects to v in three phases: every base, then
// every multiplier, then every bonus. Only base creates a missing path;
// multipliers and bonuses targeting an absent path are ignored.
func ApplyEffects(v *Vars, effects []model.Effect) {
	for _, e := range effects {
		if e.Base == nil {
			continue
		}
		base := *e.Base
		if !v.update(e.Variable, func(x float64) float64 { return x + base }) {
			v.Set(e.Variable, base)
		}
	}
	for _, e := range effects {
		if e.Multiplier == nil {
			continue
		}
		m := *e.Multiplier
		v.update(e.Variable, func(x float64) float64 { return x * m })
	}
	for _, e := range effects {
		if e.Bonus == nil {
			continue
		}
		b := *e.Bonus
		v.update(e.Variable, func(x float64) float64 { return x + b })
	}
}

// Flatten concatenates the effects of sources in order.
func Flatten(sources []model.EffectSource) []model.Effect {
	var out []model.Effect
	for _, s := range sources {
		out = append(out, s.Effects...)
	}
	return out
}

// Explained is the breakdown of one variable's final value.
type Explained struct {
	Variable string               `json:"variable"`
	Initial  float64              `json:"initial"`
	Sources  []model.EffectSource `json:"sources"`
	Final    float64              `json:"final"`
}

// Explain keeps only the effects targeting path, drops sources left empty,
// and recomputes the final value from initial.
func Explain(path string, sources []model.EffectSource, initial float64) Explained {
	out := Explained{Variable: path, Initial: initial, Sources: []model.EffectSource{}}
	var all []model.Effect
	for _, s := range sources {
		var kept []model.Effect
		for _, e := range s.Effects {
			if e.Variable == path {
				kept = append(kept, e)
			}
		}
		if len(kept) == 0 {
			continue
		}
		out.Sources = append(out.Sources, model.EffectSource{ID: s.ID, Effects: kept})
		all = append(all, kept...)
	}
	v := &Vars{reg: &Registry{}, std: map[string]float64{path: initial}, extra: map[string]float64{}}
	ApplyEffects(v, all)
	out.Final = v.std[path]
	return out
}
