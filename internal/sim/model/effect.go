package model

// Effect modifies one variable path. Any combination of Base, Multiplier and
// Bonus may be set; an effect with none of them is a no-op.
type Effect struct {
	Variable   string   `json:"variable" yaml:"variable"`
	Base       *float64 `json:"base,omitempty" yaml:"base,omitempty"`
	Multiplier *float64 `json:"multiplier,omitempty" yaml:"multiplier,omitempty"`
	Bonus      *float64 `json:"bonus,omitempty" yaml:"bonus,omitempty"`
}

// EffectSource groups the effects contributed by one trait, technology or
// custom list.
type EffectSource struct {
	ID      string   `json:"id" yaml:"id"`
	Effects []Effect `json:"effects" yaml:"effects"`
}

// Float returns a pointer to v, for building effects in code.
func Float(v float64) *float64 { return &v }

func CloneEffects(in []Effect) []Effect {
	if in == nil {
		return nil
	}
	out := make([]Effect, len(in))
	for i, e := range in {
		out[i] = Effect{Variable: e.Variable}
		if e.Base != nil {
			out[i].Base = Float(*e.Base)
		}
		if e.Multiplier != nil {
			out[i].Multiplier = Float(*e.Multiplier)
		}
		if e.Bonus != nil {
			out[i].Bonus = Float(*e.Bonus)
		}
	}
	return out
}
