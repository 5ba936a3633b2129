package aggregates

import (
	"math"

	"stellarforge.ai/internal/sim/model"
	"stellarforge.ai/internal/sim/variables"
)

type lookup func(path string) float64

// values evaluates the given categories once for emp and scope.
func (e *Engine) values(emp *model.Empire, scope variables.Scope, cats ...variables.Category) lookup {
	sets := make([]*variables.Vars, len(cats))
	for i, c := range cats {
		sets[i] = e.vars.Category(c, emp, scope)
	}
	return func(path string) float64 {
		for _, v := range sets {
			if x, ok := v.Get(path); ok {
				return x
			}
		}
		return 0
	}
}

func (e *Engine) systemValues(emp *model.Empire, sys *model.System) lookup {
	return e.values(emp, sys, variables.Districts, variables.Buildings, variables.Systems)
}

// Periodic is the net per-period amount of resource: district and building
// production minus their upkeep, minus system upkeep, minus population
// consumption.
func (e *Engine) Periodic(emp *model.Empire, systems []*model.System, resource string) Result {
	var b items
	pop, unemployed := 0.0, 0.0
	for _, sys := range systems {
		val := e.systemValues(emp, sys)
		for _, d := range sortedKeys(sys.Districts) {
			n := float64(sys.Districts[d])
			if n <= 0 {
				continue
			}
			prod := "districts." + d + ".production." + resource
			b.add(prod, n, n*val(prod))
			upk := "districts." + d + ".upkeep." + resource
			b.add(upk, n, -n*val(upk))
		}
		counts := buildingCounts(sys)
		for _, name := range sortedKeys(counts) {
			n := float64(counts[name])
			prod := "buildings." + name + ".production." + resource
			b.add(prod, n, n*val(prod))
			upk := "buildings." + name + ".upkeep." + resource
			b.add(upk, n, -n*val(upk))
		}
		if sys.Upgrade != "" {
			upk := "systems." + sys.Upgrade + ".upkeep." + resource
			b.add(upk, 1, -val(upk))
		}
		pop += sys.Population
		unemployed += math.Max(0, sys.Population-float64(jobSlots(sys)))
	}

	switch resource {
	case "food", "credits":
		ev := e.values(emp, nil, variables.Empire)
		if resource == "food" {
			b.add("empire.pop.consumption.food", pop, -pop*ev("empire.pop.consumption.food"))
		} else {
			path := "empire.pop.consumption.credits.unemployed"
			b.add(path, unemployed, -unemployed*ev(path))
		}
	}
	return b.result()
}

// PopulationGrowth is the per-period population increase of each system:
// population times the growth rate of its upgrade stage.
func (e *Engine) PopulationGrowth(emp *model.Empire, systems []*model.System) Result {
	var b items
	for _, sys := range systems {
		if sys.Upgrade == "" {
			continue
		}
		path := "systems." + sys.Upgrade + ".pop_growth"
		rate := e.values(emp, sys, variables.Systems)(path)
		b.add(path, sys.Population, sys.Population*rate)
	}
	return b.result()
}

// grossProduction sums production per resource, ignoring upkeep.
func (e *Engine) grossProduction(emp *model.Empire, systems []*model.System) map[string]float64 {
	out := map[string]float64{}
	for _, sys := range systems {
		val := e.systemValues(emp, sys)
		counts := buildingCounts(sys)
		for _, r := range e.cats.Resources.Names {
			for d, n := range sys.Districts {
				if n > 0 {
					out[r] += float64(n) * val("districts."+d+".production."+r)
				}
			}
			for name, n := range counts {
				out[r] += float64(n) * val("buildings."+name+".production."+r)
			}
		}
	}
	return out
}

func buildingCounts(sys *model.System) map[string]int {
	out := map[string]int{}
	for _, b := range sys.Buildings {
		out[b]++
	}
	return out
}

// jobSlots is the number of population jobs a system offers: one per
// district and one per building.
func jobSlots(sys *model.System) int {
	return sys.UsedCapacity()
}
