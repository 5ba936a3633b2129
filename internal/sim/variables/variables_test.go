package variables

import (
	"errors"
	"math"
	"testing"

	apperrors "stellarforge.ai/internal/platform/errors"
	"stellarforge.ai/internal/sim/catalogs"
	"stellarforge.ai/internal/sim/model"
)

func newEngine(t *testing.T) *Engine {
	t.Helper()
	cats, err := catalogs.Default()
	if err != nil {
		t.Fatalf("catalogs: %v", err)
	}
	return NewEngine(cats, NewRegistry(cats))
}

func near(a, b float64) bool { return math.Abs(a-b) < 1e-9 }

func TestRegistryInitialValues(t *testing.T) {
	e := newEngine(t)
	cases := map[string]float64{
		"buildings.exchange.build_time":        9,
		"buildings.exchange.cost.minerals":     100,
		"empire.technologies.research_time":    5,
		"empire.pop.consumption.food":          0.1,
		"systems.colonized.cost.energy":        100,
		"ships.explorer.speed":                 6,
		"technologies.society.cost_multiplier": 1,
	}
	for path, want := range cases {
		got, err := e.Registry().InitialValue(path)
		if err != nil {
			t.Fatalf("%s: %v", path, err)
		}
		if got != want {
			t.Fatalf("%s: got %v want %v", path, got, want)
		}
	}
	if _, err := e.Registry().InitialValue("buildings.nope.cost.minerals"); !errors.Is(err, apperrors.ErrNotFound) {
		t.Fatalf("unknown path: expected not found, got %v", err)
	}
	if _, err := e.Registry().InitialValue("nocategory"); err == nil {
		t.Fatalf("expected error for path without category")
	}
}

func TestParseCategory(t *testing.T) {
	for _, c := range Categories() {
		got, ok := ParseCategory(c.String())
		if !ok || got != c {
			t.Fatalf("round trip %v: got %v %v", c, got, ok)
		}
	}
	if _, ok := ParseCategory("traits"); ok {
		t.Fatalf("traits is not a variable category")
	}
}

func TestApplyEffectsPhases(t *testing.T) {
	e := newEngine(t)
	v, err := e.Registry().Seed("buildings.exchange.cost.minerals")
	if err != nil {
		t.Fatalf("seed: %v", err)
	}
	// Declared bonus-first; phases still run base, multiplier, bonus.
	ApplyEffects(v, []model.Effect{
		{Variable: "buildings.exchange.cost.minerals", Bonus: model.Float(5)},
		{Variable: "buildings.exchange.cost.minerals", Multiplier: model.Float(0.5)},
		{Variable: "buildings.exchange.cost.minerals", Base: model.Float(20)},
	})
	got, _ := v.Get("buildings.exchange.cost.minerals")
	if !near(got, (100+20)*0.5+5) {
		t.Fatalf("got %v", got)
	}
}

func TestApplyEffectsMissingPath(t *testing.T) {
	e := newEngine(t)
	v := e.Registry().NewVars()
	ApplyEffects(v, []model.Effect{
		{Variable: "custom.only_mult", Multiplier: model.Float(2)},
		{Variable: "custom.only_bonus", Bonus: model.Float(3)},
		{Variable: "custom.created", Base: model.Float(4), Multiplier: model.Float(2)},
	})
	if _, ok := v.Get("custom.only_mult"); ok {
		t.Fatalf("multiplier must not create a path")
	}
	if _, ok := v.Get("custom.only_bonus"); ok {
		t.Fatalf("bonus must not create a path")
	}
	if got, ok := v.Get("custom.created"); !ok || got != 8 {
		t.Fatalf("created: got %v %v", got, ok)
	}
	if _, ok := v.Standard()["custom.created"]; ok {
		t.Fatalf("effect-introduced path leaked into standard table")
	}
	if _, ok := v.Extra()["custom.created"]; !ok {
		t.Fatalf("expected custom.created in extra table")
	}
}

func TestEffectiveTechnologiesImplies(t *testing.T) {
	e := newEngine(t)
	got := e.EffectiveTechnologies([]string{"cheap_claims_2", "cheap_claims_1", "unknown"})
	want := []string{"cheap_claims_2", "cheap_claims_1"}
	if len(got) != len(want) {
		t.Fatalf("got %v want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("got %v want %v", got, want)
		}
	}
}

func TestSourcesOrder(t *testing.T) {
	e := newEngine(t)
	emp := &model.Empire{
		ID:           "e1",
		Traits:       []string{"intelligent"},
		Technologies: []string{"demographic"},
		Effects:      []model.Effect{{Variable: "empire.market.fee", Bonus: model.Float(0.1)}},
	}
	sys := &model.System{ID: "s1", Effects: []model.Effect{{Variable: "buildings.exchange.build_time", Bonus: model.Float(1)}}}
	src := e.Sources(emp, sys)
	ids := make([]string, len(src))
	for i, s := range src {
		ids[i] = s.ID
	}
	want := []string{"traits.intelligent", "technologies.demographic", "empire", "system.s1"}
	if len(ids) != len(want) {
		t.Fatalf("got %v want %v", ids, want)
	}
	for i := range want {
		if ids[i] != want[i] {
			t.Fatalf("got %v want %v", ids, want)
		}
	}

	var nilSys *model.System
	if got := e.Sources(emp, nilSys); len(got) != 3 {
		t.Fatalf("nil system should contribute nothing, got %d sources", len(got))
	}
}

func TestExplainMatchesValue(t *testing.T) {
	e := newEngine(t)
	emp := &model.Empire{
		ID:           "e1",
		Traits:       []string{"militaristic"},
		Technologies: []string{"cheap_claims_2"},
		Effects: []model.Effect{
			{Variable: "systems.colonized.cost.minerals", Base: model.Float(10)},
			{Variable: "buildings.shipyard.cost.minerals", Bonus: model.Float(-5)},
		},
	}
	paths := []string{
		"systems.colonized.cost.minerals",
		"systems.upgraded.cost.alloys",
		"buildings.shipyard.cost.minerals",
		"empire.market.fee",
	}
	for _, p := range paths {
		val, err := e.Value(p, emp, nil)
		if err != nil {
			t.Fatalf("value %s: %v", p, err)
		}
		ex, err := e.Explain(p, emp, nil)
		if err != nil {
			t.Fatalf("explain %s: %v", p, err)
		}
		if !near(val, ex.Final) {
			t.Fatalf("%s: value %v explain %v", p, val, ex.Final)
		}
		for _, s := range ex.Sources {
			if len(s.Effects) == 0 {
				t.Fatalf("%s: empty source %s kept", p, s.ID)
			}
			for _, eff := range s.Effects {
				if eff.Variable != p {
					t.Fatalf("%s: foreign effect %s in %s", p, eff.Variable, s.ID)
				}
			}
		}
	}

	ex, _ := e.Explain("systems.colonized.cost.minerals", emp, nil)
	// (100 + 10) * 0.85 from the implied cheap_claims_1.
	if !near(ex.Final, 93.5) {
		t.Fatalf("colonized minerals: got %v", ex.Final)
	}
	if len(ex.Sources) != 2 || ex.Sources[0].ID != "technologies.cheap_claims_1" || ex.Sources[1].ID != "empire" {
		t.Fatalf("unexpected sources %+v", ex.Sources)
	}
}

func TestCategoryEvaluation(t *testing.T) {
	e := newEngine(t)
	emp := &model.Empire{ID: "e1", Technologies: []string{"small_fighters"}}
	v := e.Category(Ships, emp, nil)
	got, ok := v.Get("ships.fighter.build_time")
	if !ok || got != 6 {
		t.Fatalf("fighter build_time: got %v %v", got, ok)
	}
	if _, ok := v.Get("buildings.exchange.build_time"); ok {
		t.Fatalf("category evaluation leaked another category")
	}
}

func TestValueUnknownPath(t *testing.T) {
	e := newEngine(t)
	if _, err := e.Value("ships.battlestar.speed", nil, nil); !errors.Is(err, apperrors.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}
