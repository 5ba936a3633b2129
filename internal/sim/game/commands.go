package game

import (
	"context"
	"sort"

	"stellarforge.ai/internal/persistence/snapshot"
	apperrors "stellarforge.ai/internal/platform/errors"
	"stellarforge.ai/internal/protocol"
	"stellarforge.ai/internal/sim/aggregates"
	"stellarforge.ai/internal/sim/events"
	"stellarforge.ai/internal/sim/jobs"
	"stellarforge.ai/internal/sim/model"
	"stellarforge.ai/internal/sim/variables"
)

// ScopeRef selects the system or fleet whose effects apply on top of the
// empire's. At most one of the fields is set.
type ScopeRef struct {
	System string `json:"system,omitempty"`
	Fleet  string `json:"fleet,omitempty"`
}

// VariableSet is one evaluated category.
type VariableSet struct {
	Category string             `json:"category"`
	Standard map[string]float64 `json:"standard"`
	Extra    map[string]float64 `json:"extra,omitempty"`
}

func (g *Game) CreateJob(ctx context.Context, empireID string, in protocol.JobIntent) (*model.Job, error) {
	return call(ctx, g, func() (*model.Job, error) {
		j, err := g.jobs.Create(g.st, empireID, in)
		if err != nil {
			return nil, err
		}
		g.flush()
		return j.Clone(), nil
	})
}

func (g *Game) CancelJob(ctx context.Context, empireID, jobID string) (*model.Job, error) {
	return call(ctx, g, func() (*model.Job, error) {
		j, err := g.jobs.Cancel(g.st, empireID, jobID)
		if err != nil {
			return nil, err
		}
		g.flush()
		return j.Clone(), nil
	})
}

// AdvancePeriod runs one period immediately, outside the ticker cadence.
func (g *Game) AdvancePeriod(ctx context.Context) (PeriodLogEntry, error) {
	return call(ctx, g, func() (PeriodLogEntry, error) {
		return g.advance(), nil
	})
}

// Job returns one job. An empty empireID matches any owner.
func (g *Game) Job(ctx context.Context, empireID, jobID string) (*model.Job, error) {
	return call(ctx, g, func() (*model.Job, error) {
		j := g.st.Jobs[jobID]
		if j == nil || (empireID != "" && j.Empire != empireID) {
			return nil, apperrors.NotFound("job %s", jobID)
		}
		return j.Clone(), nil
	})
}

// Jobs lists jobs in scheduling order. An empty empireID lists every job.
func (g *Game) Jobs(ctx context.Context, empireID string) ([]*model.Job, error) {
	return call(ctx, g, func() ([]*model.Job, error) {
		if empireID != "" && g.st.Empires[empireID] == nil {
			return nil, apperrors.NotFound("empire %s", empireID)
		}
		out := []*model.Job{}
		for _, j := range g.st.SortedJobs() {
			if empireID == "" || j.Empire == empireID {
				out = append(out, j.Clone())
			}
		}
		return out, nil
	})
}

func (g *Game) Empire(ctx context.Context, empireID string) (*model.Empire, error) {
	return call(ctx, g, func() (*model.Empire, error) {
		emp := g.st.Empires[empireID]
		if emp == nil {
			return nil, apperrors.NotFound("empire %s", empireID)
		}
		return emp.Clone(), nil
	})
}

func (g *Game) Empires(ctx context.Context) ([]*model.Empire, error) {
	return call(ctx, g, func() ([]*model.Empire, error) {
		out := make([]*model.Empire, 0, len(g.st.Empires))
		for _, id := range g.st.EmpireIDs() {
			out = append(out, g.st.Empires[id].Clone())
		}
		return out, nil
	})
}

func (g *Game) scope(empireID string) (aggregates.Scope, error) {
	emp := g.st.Empires[empireID]
	if emp == nil {
		return aggregates.Scope{}, apperrors.NotFound("empire %s", empireID)
	}
	return aggregates.Scope{
		Empire:  emp,
		Systems: g.st.EmpireSystems(empireID),
		Ships:   g.st.EmpireShips(empireID),
	}, nil
}

func (g *Game) Aggregate(ctx context.Context, empireID, name string, params aggregates.Params) (aggregates.Result, error) {
	return call(ctx, g, func() (aggregates.Result, error) {
		s, err := g.scope(empireID)
		if err != nil {
			return aggregates.Result{}, err
		}
		return g.aggs.Compute(name, s, params, g.scope)
	})
}

func (g *Game) resolveScope(empireID string, ref ScopeRef) (*model.Empire, variables.Scope, error) {
	emp := g.st.Empires[empireID]
	if emp == nil {
		return nil, nil, apperrors.NotFound("empire %s", empireID)
	}
	switch {
	case ref.System != "" && ref.Fleet != "":
		return nil, nil, apperrors.BadRequest("scope takes a system or a fleet, not both")
	case ref.System != "":
		sys := g.st.Systems[ref.System]
		if sys == nil {
			return nil, nil, apperrors.NotFound("system %s", ref.System)
		}
		return emp, sys, nil
	case ref.Fleet != "":
		f := g.st.Fleets[ref.Fleet]
		if f == nil || f.Empire != empireID {
			return nil, nil, apperrors.NotFound("fleet %s", ref.Fleet)
		}
		return emp, f, nil
	}
	return emp, nil, nil
}

// Explain breaks the effective value of path down by effect source.
func (g *Game) Explain(ctx context.Context, empireID, path string, ref ScopeRef) (variables.Explained, error) {
	return call(ctx, g, func() (variables.Explained, error) {
		emp, scope, err := g.resolveScope(empireID, ref)
		if err != nil {
			return variables.Explained{}, err
		}
		return g.vars.Explain(path, emp, scope)
	})
}

// Variables evaluates one registry category for the empire.
func (g *Game) Variables(ctx context.Context, empireID, category string, ref ScopeRef) (VariableSet, error) {
	return call(ctx, g, func() (VariableSet, error) {
		cat, ok := variables.ParseCategory(category)
		if !ok {
			return VariableSet{}, apperrors.BadRequest("unknown variable category %q", category)
		}
		emp, scope, err := g.resolveScope(empireID, ref)
		if err != nil {
			return VariableSet{}, err
		}
		v := g.vars.Category(cat, emp, scope)
		return VariableSet{Category: cat.String(), Standard: v.Standard(), Extra: v.Extra()}, nil
	})
}

// CreateEmpire adds an empire. Missing resources start at their catalog
// starting amount; an empty id gets a fresh one.
func (g *Game) CreateEmpire(ctx context.Context, emp *model.Empire) (*model.Empire, error) {
	return call(ctx, g, func() (*model.Empire, error) {
		e := emp.Clone()
		if e.ID == "" {
			e.ID = g.newID()
		}
		if g.st.Empires[e.ID] != nil {
			return nil, apperrors.Conflict("empire %s already exists", e.ID)
		}
		if err := g.checkTraits(e.Traits); err != nil {
			return nil, err
		}
		for _, t := range e.Technologies {
			if _, ok := g.cats.Technologies.ByID[t]; !ok {
				return nil, apperrors.NotFound("technology %s", t)
			}
		}
		if e.Resources == nil {
			e.Resources = map[string]float64{}
		}
		for _, name := range g.cats.Resources.Names {
			if _, ok := e.Resources[name]; !ok {
				e.Resources[name] = g.cats.Resources.ByID[name].Starting
			}
		}
		g.st.PutEmpire(e)
		g.flush()
		return e.Clone(), nil
	})
}

// checkTraits enforces known, distinct, non-conflicting traits, at most
// MaxTraits of them, whose summed cost fits in MaxTraitPoints. Negative
// costs give points back.
func (g *Game) checkTraits(traits []string) error {
	if limit := g.tuning.MaxTraits; limit > 0 && len(traits) > limit {
		return apperrors.Validation("at most %d traits allowed, got %d", limit, len(traits))
	}
	set := map[string]bool{}
	points := 0.0
	for _, t := range traits {
		def, ok := g.cats.Traits.ByID[t]
		if !ok {
			return apperrors.NotFound("trait %s", t)
		}
		if set[t] {
			return apperrors.Validation("duplicate trait %s", t)
		}
		set[t] = true
		points += def.Cost
	}
	for _, t := range traits {
		for _, other := range g.cats.Traits.ByID[t].Conflicts {
			if set[other] {
				return apperrors.Validation("trait %s conflicts with %s", t, other)
			}
		}
	}
	if points > g.tuning.MaxTraitPoints {
		return apperrors.Validation("traits cost %g points, budget is %g", points, g.tuning.MaxTraitPoints)
	}
	return nil
}

// EmpireUpdate changes an existing empire. Resources are deltas traded on
// the market: buying costs credits at credit_value × (1 + market fee),
// selling pays credit_value × (1 − market fee). Free applies the deltas
// as given, credits included. A non-nil Effects replaces the empire's
// custom effects.
type EmpireUpdate struct {
	Resources map[string]float64 `json:"resources,omitempty"`
	Effects   *[]model.Effect    `json:"effects,omitempty"`
	Free      bool               `json:"-"`
}

func (g *Game) UpdateEmpire(ctx context.Context, empireID string, upd EmpireUpdate) (*model.Empire, error) {
	return call(ctx, g, func() (*model.Empire, error) {
		emp := g.st.Empires[empireID]
		if emp == nil {
			return nil, apperrors.NotFound("empire %s", empireID)
		}
		if upd.Effects != nil {
			if err := checkEffects(*upd.Effects); err != nil {
				return nil, err
			}
		}
		debit, credit, err := g.trade(emp, upd.Resources, upd.Free)
		if err != nil {
			return nil, err
		}
		if err := jobs.Debit(emp, debit); err != nil {
			return nil, err
		}
		jobs.Credit(emp, credit)
		if upd.Effects != nil {
			emp.Effects = model.CloneEffects(*upd.Effects)
		}
		g.st.MarkChanged(model.KindEmpire, emp.ID)
		if len(debit) > 0 || len(credit) > 0 {
			res := make(map[string]float64, len(emp.Resources))
			for k, v := range emp.Resources {
				res[k] = v
			}
			g.buffer(events.ForEmpire(events.ResourcesChanged, g.st.GameID, emp.ID, g.st.Period, res))
		}
		g.flush()
		return emp.Clone(), nil
	})
}

// trade splits resource deltas into what leaves and what enters the
// ledger, pricing non-free trades in credits.
func (g *Game) trade(emp *model.Empire, deltas map[string]float64, free bool) (debit, credit map[string]float64, err error) {
	debit, credit = map[string]float64{}, map[string]float64{}
	if len(deltas) == 0 {
		return debit, credit, nil
	}
	fee := 0.0
	if !free {
		if fee, err = g.vars.Value("empire.market.fee", emp, nil); err != nil {
			return nil, nil, err
		}
	}
	credits := 0.0
	for _, r := range sortedResourceKeys(deltas) {
		delta := deltas[r]
		if _, ok := g.cats.Resources.ByID[r]; !ok {
			return nil, nil, apperrors.Validation("unknown resource %s", r)
		}
		if delta == 0 {
			continue
		}
		if !free {
			if r == "credits" || r == "population" {
				return nil, nil, apperrors.Validation("%s cannot be traded", r)
			}
			value, err := g.vars.Value("resources."+r+".credit_value", emp, nil)
			if err != nil {
				return nil, nil, err
			}
			if delta > 0 {
				credits -= delta * value * (1 + fee)
			} else {
				credits += -delta * value * (1 - fee)
			}
		}
		if delta > 0 {
			credit[r] += delta
		} else {
			debit[r] += -delta
		}
	}
	if credits > 0 {
		credit["credits"] += credits
	} else if credits < 0 {
		debit["credits"] += -credits
	}
	return debit, credit, nil
}

// UpdateSystemEffects replaces the custom effects of a system.
func (g *Game) UpdateSystemEffects(ctx context.Context, systemID string, effects []model.Effect) (*model.System, error) {
	return call(ctx, g, func() (*model.System, error) {
		sys := g.st.Systems[systemID]
		if sys == nil {
			return nil, apperrors.NotFound("system %s", systemID)
		}
		if err := checkEffects(effects); err != nil {
			return nil, err
		}
		sys.Effects = model.CloneEffects(effects)
		g.st.MarkChanged(model.KindSystem, sys.ID)
		g.flush()
		return sys.Clone(), nil
	})
}

func checkEffects(effects []model.Effect) error {
	for i, e := range effects {
		if e.Variable == "" {
			return apperrors.Validation("effect %d has no variable", i)
		}
	}
	return nil
}

func sortedResourceKeys(m map[string]float64) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// DeleteEmpire removes the empire with its fleets, ships and jobs.
func (g *Game) DeleteEmpire(ctx context.Context, empireID string) error {
	_, err := call(ctx, g, func() (struct{}, error) {
		if g.st.Empires[empireID] == nil {
			return struct{}{}, apperrors.NotFound("empire %s", empireID)
		}
		removed := g.st.DeleteEmpire(empireID)
		sort.Strings(removed)
		g.buffer(events.ForEmpire(events.EmpireDeleted, g.st.GameID, empireID, g.st.Period, map[string]any{"jobs": removed}))
		g.flush()
		return struct{}{}, nil
	})
	return err
}

func (g *Game) ExportSnapshot(ctx context.Context) (snapshot.GameSnapshotV1, error) {
	return call(ctx, g, func() (snapshot.GameSnapshotV1, error) {
		return snapshot.FromState(g.st, g.cats.Digests()), nil
	})
}

// RequestSnapshot hands a snapshot of the current state to the snapshot
// sink and returns its period.
func (g *Game) RequestSnapshot(ctx context.Context) (uint64, error) {
	return call(ctx, g, func() (uint64, error) {
		if g.snapshotSink == nil {
			return 0, apperrors.Precondition("snapshot sink not configured")
		}
		if !g.sendSnapshot() {
			return 0, apperrors.New(protocol.ErrGameBusy, "snapshot sink backpressure")
		}
		return g.st.Period, nil
	})
}

// ImportSnapshot replaces the whole game state. Entities missing from the
// snapshot are deleted from the store on the following flush.
func (g *Game) ImportSnapshot(ctx context.Context, snap snapshot.GameSnapshotV1) error {
	_, err := call(ctx, g, func() (struct{}, error) {
		if snap.Header.GameID != g.cfg.ID {
			return struct{}{}, apperrors.BadRequest("snapshot belongs to game %s", snap.Header.GameID)
		}
		if snap.Header.Version != snapshot.Version {
			return struct{}{}, apperrors.BadRequest("unsupported snapshot version %d", snap.Header.Version)
		}
		old := g.st
		next := snap.State()
		markGone(next, model.KindEmpire, old.Empires)
		markGone(next, model.KindSystem, old.Systems)
		markGone(next, model.KindFleet, old.Fleets)
		markGone(next, model.KindShip, old.Ships)
		markGone(next, model.KindJob, old.Jobs)
		next.MarkAll()

		g.st = next
		g.collab.State = next
		g.period.Store(next.Period)
		g.flush()
		return struct{}{}, nil
	})
	return err
}

func markGone[V any](next *model.State, kind model.Kind, old map[string]V) {
	var present func(string) bool
	switch kind {
	case model.KindEmpire:
		present = func(id string) bool { return next.Empires[id] != nil }
	case model.KindSystem:
		present = func(id string) bool { return next.Systems[id] != nil }
	case model.KindFleet:
		present = func(id string) bool { return next.Fleets[id] != nil }
	case model.KindShip:
		present = func(id string) bool { return next.Ships[id] != nil }
	default:
		present = func(id string) bool { return next.Jobs[id] != nil }
	}
	for id := range old {
		if !present(id) {
			next.MarkDeleted(kind, id)
		}
	}
}
