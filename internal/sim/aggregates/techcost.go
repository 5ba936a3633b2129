package aggregates

import (
	"math"

	apperrors "stellarforge.ai/internal/platform/errors"
	"stellarforge.ai/internal/sim/model"
	"stellarforge.ai/internal/sim/variables"
)

// TechnologyCost resolves the research cost of a technology for emp:
// base cost × difficulty × cost_multiplier^unlocked × each tag multiplier,
// rounded and floored. Items are the additive change of each factor.
func (e *Engine) TechnologyCost(emp *model.Empire, id string) (Result, error) {
	def, ok := e.cats.Technologies.ByID[id]
	if !ok {
		return Result{}, apperrors.NotFound("technology %s", id)
	}
	ev := e.values(emp, nil, variables.Empire, variables.Technologies)

	list := []Item{{Variable: "technologies." + id, Count: 1, Subtotal: def.Cost}}
	value := def.Cost
	step := func(variable string, count, factor float64) {
		next := value * factor
		if next != value {
			list = append(list, Item{Variable: variable, Count: count, Subtotal: next - value})
		}
		value = next
	}
	step("empire.technologies.difficulty", 1, ev("empire.technologies.difficulty"))
	unlocked := float64(len(emp.Technologies))
	step("empire.technologies.cost_multiplier", unlocked, math.Pow(ev("empire.technologies.cost_multiplier"), unlocked))
	for _, tag := range def.Tags {
		if _, ok := e.cats.Technologies.Categories[tag]; !ok {
			continue
		}
		path := "technologies." + tag + ".cost_multiplier"
		step(path, 1, ev(path))
	}

	rounded := math.Round(value)
	if d := rounded - sum(list); d != 0 {
		list = append(list, Item{Variable: "rounding", Count: 1, Subtotal: d})
	}
	if floor := e.tuning.MinTechnologyCost; rounded < floor {
		list = append(list, Item{Variable: "tuning.min_technology_cost", Count: 1, Subtotal: floor - sum(list)})
	}
	return newResult(list), nil
}
