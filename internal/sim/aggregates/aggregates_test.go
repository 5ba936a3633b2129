package aggregates

import (
	"errors"
	"math"
	"testing"

	apperrors "stellarforge.ai/internal/platform/errors"
	"stellarforge.ai/internal/sim/catalogs"
	"stellarforge.ai/internal/sim/model"
	"stellarforge.ai/internal/sim/tuning"
	"stellarforge.ai/internal/sim/variables"
)

func newEngine(t *testing.T) *Engine {
	t.Helper()
	cats, err := catalogs.Default()
	if err != nil {
		t.Fatalf("catalogs: %v", err)
	}
	return NewEngine(cats, variables.NewEngine(cats, variables.NewRegistry(cats)), tuning.Defaults())
}

func testScope() Scope {
	emp := &model.Empire{ID: "e1", Resources: map[string]float64{}}
	sys := &model.System{
		ID:            "s1",
		Upgrade:       model.StageColonized,
		Districts:     map[string]int{"energy": 2, "mining": 1},
		DistrictSlots: map[string]int{"energy": 4, "mining": 4},
		Buildings:     []string{"mine"},
		Population:    10,
		Owner:         "e1",
	}
	return Scope{
		Empire:  emp,
		Systems: []*model.System{sys},
		Ships: []*model.Ship{
			{ID: "sh1", Empire: "e1", Type: "interceptor"},
			{ID: "sh2", Empire: "e1", Type: "interceptor"},
		},
	}
}

func near(a, b float64) bool { return math.Abs(a-b) < 1e-9 }

func checkSum(t *testing.T, name string, r Result) {
	t.Helper()
	s := 0.0
	for _, it := range r.Items {
		s += it.Subtotal
	}
	if s != r.Total {
		t.Fatalf("%s: items sum %v != total %v", name, s, r.Total)
	}
}

func TestPeriodicResources(t *testing.T) {
	e := newEngine(t)
	s := testScope()
	cases := []struct {
		resource string
		want     float64
	}{
		{"energy", 24 - 2 - 1 - 1},
		{"minerals", 12 + 20 - 4 - 1},
		{"food", -1},
		{"alloys", 0},
	}
	for _, tc := range cases {
		r, err := e.Compute("resources.periodic", s, Params{"resource": tc.resource}, nil)
		if err != nil {
			t.Fatalf("%s: %v", tc.resource, err)
		}
		checkSum(t, tc.resource, r)
		if !near(r.Total, tc.want) {
			t.Fatalf("%s: got %v want %v (%+v)", tc.resource, r.Total, tc.want, r.Items)
		}
	}
}

func TestPeriodicAppliesTraits(t *testing.T) {
	e := newEngine(t)
	s := testScope()
	s.Empire.Traits = []string{"industrious"}
	r, err := e.Compute("resources.periodic", s, Params{"resource": "minerals"}, nil)
	if err != nil {
		t.Fatalf("compute: %v", err)
	}
	if !near(r.Total, 13.2+22-4-1) {
		t.Fatalf("got %v", r.Total)
	}
}

func TestPeriodicSystemFilterAndPopulation(t *testing.T) {
	e := newEngine(t)
	s := testScope()
	r, err := e.Compute("resources.periodic", s, Params{"resource": "energy", "system": "other"}, nil)
	if err != nil {
		t.Fatalf("compute: %v", err)
	}
	if r.Total != 0 || len(r.Items) != 0 {
		t.Fatalf("expected empty result for foreign system, got %+v", r)
	}
	r, err = e.Compute("resources.periodic", s, Params{"resource": "population"}, nil)
	if err != nil {
		t.Fatalf("compute: %v", err)
	}
	checkSum(t, "population", r)
	if !near(r.Total, 10*0.05) {
		t.Fatalf("population growth: got %v", r.Total)
	}
}

func TestComputeErrors(t *testing.T) {
	e := newEngine(t)
	s := testScope()
	if _, err := e.Compute("nope", s, nil, nil); !errors.Is(err, apperrors.ErrBadRequest) {
		t.Fatalf("unknown aggregate: %v", err)
	}
	if _, err := e.Compute("resources.periodic", s, Params{"resource": "unobtainium"}, nil); !errors.Is(err, apperrors.ErrBadRequest) {
		t.Fatalf("bad resource: %v", err)
	}
	if _, err := e.Compute("resources.periodic", s, Params{}, nil); !errors.Is(err, apperrors.ErrBadRequest) {
		t.Fatalf("missing param: %v", err)
	}
	if _, err := e.Compute("technology.cost", s, Params{"technology": "warp_drive"}, nil); !errors.Is(err, apperrors.ErrNotFound) {
		t.Fatalf("unknown technology: %v", err)
	}
}

func TestLevelsAreMonotonic(t *testing.T) {
	e := newEngine(t)
	for _, name := range []string{"empire.level.economy", "empire.level.military", "empire.level.technology"} {
		s := testScope()
		before, err := e.Compute(name, s, nil, nil)
		if err != nil {
			t.Fatalf("%s: %v", name, err)
		}
		checkSum(t, name, before)

		s.Systems[0].Districts["mining"]++
		s.Systems[0].Buildings = append(s.Systems[0].Buildings, "research_lab")
		s.Ships = append(s.Ships, &model.Ship{ID: "sh3", Empire: "e1", Type: "explorer"})
		s.Empire.Technologies = append(s.Empire.Technologies, "demographic")
		after, err := e.Compute(name, s, nil, nil)
		if err != nil {
			t.Fatalf("%s: %v", name, err)
		}
		checkSum(t, name, after)
		if after.Total <= before.Total {
			t.Fatalf("%s: expected increase, %v -> %v", name, before.Total, after.Total)
		}
	}
}

func TestCompareSymmetry(t *testing.T) {
	e := newEngine(t)
	a := testScope()
	b := testScope()
	b.Empire.ID = "e2"
	b.Systems[0].Districts["mining"] = 3
	scopes := map[string]Scope{"e1": a, "e2": b}
	resolve := func(id string) (Scope, error) {
		s, ok := scopes[id]
		if !ok {
			return Scope{}, apperrors.NotFound("empire %s", id)
		}
		return s, nil
	}

	ab, err := e.Compute("empire.compare.economy", a, Params{"compare": "e2"}, resolve)
	if err != nil {
		t.Fatalf("a vs b: %v", err)
	}
	ba, err := e.Compute("empire.compare.economy", b, Params{"compare": "e1"}, resolve)
	if err != nil {
		t.Fatalf("b vs a: %v", err)
	}
	checkSum(t, "compare", ab)
	if ab.Total != -ba.Total {
		t.Fatalf("not antisymmetric: %v vs %v", ab.Total, ba.Total)
	}
	if ab.Total >= 0 {
		t.Fatalf("weaker economy should compare negative, got %v", ab.Total)
	}
	self, err := e.Compute("empire.compare.economy", a, Params{"compare": "e1"}, resolve)
	if err != nil {
		t.Fatalf("self: %v", err)
	}
	if self.Total != 0 {
		t.Fatalf("self comparison: got %v", self.Total)
	}
	if _, err := e.Compute("empire.compare.economy", a, Params{"compare": "e9"}, resolve); !errors.Is(err, apperrors.ErrNotFound) {
		t.Fatalf("unknown empire: %v", err)
	}
}

func TestCompareBounded(t *testing.T) {
	if got := Compare(1e9, 0, 3); got != 3 {
		t.Fatalf("upper bound: got %v", got)
	}
	if got := Compare(0, 1e9, 3); got != -3 {
		t.Fatalf("lower bound: got %v", got)
	}
}

func TestTechnologyCost(t *testing.T) {
	e := newEngine(t)
	emp := &model.Empire{ID: "e1"}
	r, err := e.TechnologyCost(emp, "demographic")
	if err != nil {
		t.Fatalf("cost: %v", err)
	}
	checkSum(t, "technology.cost", r)
	if r.Total != 200 {
		t.Fatalf("fresh empire: got %v", r.Total)
	}

	emp.Technologies = []string{"computing"}
	r, _ = e.TechnologyCost(emp, "demographic")
	checkSum(t, "technology.cost", r)
	if r.Total != 190 {
		t.Fatalf("one unlocked: got %v", r.Total)
	}

	emp.Traits = []string{"intelligent"}
	r, _ = e.TechnologyCost(emp, "demographic")
	checkSum(t, "technology.cost", r)
	if r.Total != 171 {
		t.Fatalf("intelligent: got %v (%+v)", r.Total, r.Items)
	}
}

func TestTechnologyCostFloor(t *testing.T) {
	e := newEngine(t)
	emp := &model.Empire{ID: "e1", Effects: []model.Effect{
		{Variable: "empire.technologies.difficulty", Multiplier: model.Float(0)},
	}}
	r, err := e.TechnologyCost(emp, "demographic")
	if err != nil {
		t.Fatalf("cost: %v", err)
	}
	checkSum(t, "floor", r)
	if r.Total != 1 {
		t.Fatalf("expected floor 1, got %v", r.Total)
	}
}

func TestDefinitions(t *testing.T) {
	e := newEngine(t)
	defs := e.Definitions()
	if len(defs) != 8 {
		t.Fatalf("expected 8 aggregates, got %d", len(defs))
	}
	for i := 1; i < len(defs); i++ {
		if defs[i-1].Name >= defs[i].Name {
			t.Fatalf("definitions not sorted: %s, %s", defs[i-1].Name, defs[i].Name)
		}
	}
}
