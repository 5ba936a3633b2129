package aggregates

import (
	"math"

	apperrors "stellarforge.ai/internal/platform/errors"
	"stellarforge.ai/internal/sim/variables"
)

func (e *Engine) economy(s Scope) Result {
	var b items
	gross := e.grossProduction(s.Empire, s.Systems)
	for _, r := range e.cats.Resources.Names {
		w := e.cats.Scoring.Economy[r]
		if w == 0 || gross[r] <= 0 {
			continue
		}
		b.add("resources."+r, gross[r], w*gross[r])
	}
	return b.result()
}

func (e *Engine) military(s Scope) Result {
	var b items
	w := e.cats.Scoring.Military
	counts := map[string]int{}
	for _, sh := range s.Ships {
		counts[sh.Type]++
	}
	if len(counts) > 0 {
		ev := e.values(s.Empire, nil, variables.Ships)
		for _, t := range sortedKeys(counts) {
			n := float64(counts[t])
			per := w.Health*ev("ships."+t+".health") + w.Attack*ev("ships."+t+".attack") + w.Defense*ev("ships."+t+".defense")
			b.add("ships."+t, n, n*per)
		}
	}
	for _, sys := range s.Systems {
		if sys.Upgrade == "" {
			continue
		}
		path := "systems." + sys.Upgrade + ".defense"
		def := e.values(s.Empire, sys, variables.Systems)(path)
		b.add(path, 1, w.SystemDefense*def)
	}
	return b.result()
}

func (e *Engine) technology(s Scope) Result {
	var b items
	seen := map[string]bool{}
	for _, id := range s.Empire.Technologies {
		def, ok := e.cats.Technologies.ByID[id]
		if !ok || seen[id] {
			continue
		}
		seen[id] = true
		b.add("technologies."+id, 1, e.cats.Scoring.Technology.Cost*def.Cost)
	}
	return b.result()
}

// Compare maps two scores to a signed log2 ratio clamped to ±bound.
// Compare(a, b) == -Compare(b, a) and Compare(a, a) == 0.
func Compare(a, b, bound float64) float64 {
	d := math.Log2(math.Max(a, 0)+1) - math.Log2(math.Max(b, 0)+1)
	return math.Max(-bound, math.Min(bound, d))
}

func compare(levelName string, f func(*Engine, Scope) Result) computeFunc {
	return func(e *Engine, s Scope, p Params, resolve Resolver) (Result, error) {
		if resolve == nil {
			return Result{}, apperrors.BadRequest("no empires to compare with")
		}
		other, err := resolve(p["compare"])
		if err != nil {
			return Result{}, err
		}
		if other.Empire == nil {
			return Result{}, apperrors.NotFound("empire %s", p["compare"])
		}
		v := Compare(f(e, s).Total, f(e, other).Total, e.tuning.CompareBound)
		return newResult([]Item{{Variable: levelName, Count: 1, Subtotal: v}}), nil
	}
}
