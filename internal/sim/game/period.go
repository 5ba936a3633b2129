package game

import (
	"context"
	"math"
	"time"

	"stellarforge.ai/internal/persistence/snapshot"
	"stellarforge.ai/internal/sim/events"
	"stellarforge.ai/internal/sim/model"
)

const saveTimeout = 10 * time.Second

// advance runs one period: retention purge, job advancement, economy,
// persistence, then event publication.
func (g *Game) advance() PeriodLogEntry {
	st := g.st
	st.Period++
	g.period.Store(st.Period)

	g.purgeCompleted()

	before := make(map[string]int, len(st.Jobs))
	for id, j := range st.Jobs {
		if !j.Completed() {
			before[id] = j.Progress
		}
	}
	completed := g.jobs.Advance(st, g.collab)

	entry := PeriodLogEntry{GameID: g.cfg.ID, Period: st.Period}
	for id, p := range before {
		if j := st.Jobs[id]; j != nil && j.Progress > p {
			entry.Advanced++
		}
	}
	for _, j := range completed {
		entry.Completed = append(entry.Completed, j.ID)
	}

	if g.cfg.Economy {
		g.economy()
	}
	g.buffer(events.ForGame(events.PeriodAdvanced, g.cfg.ID, st.Period, entry))
	g.flush()

	if g.periodLog != nil {
		if err := g.periodLog.WritePeriod(entry); err != nil {
			g.logger.Printf("game %s: period log: %v", g.cfg.ID, err)
		}
	}
	if n := g.cfg.SnapshotEveryPeriods; n > 0 && g.snapshotSink != nil && st.Period%uint64(n) == 0 {
		g.sendSnapshot()
	}
	return entry
}

// purgeCompleted deletes jobs that completed in an earlier period, so a
// finished job stays visible for exactly one period.
func (g *Game) purgeCompleted() {
	st := g.st
	for _, j := range st.SortedJobs() {
		if j.Completed() && j.CompletedPeriod < st.Period {
			st.DeleteJob(j.ID)
			g.buffer(events.ForJob(events.JobDeleted, st.Period, j))
		}
	}
}

// economy credits every empire with the net periodic amount of each
// resource and grows system populations.
func (g *Game) economy() {
	st := g.st
	for _, id := range st.EmpireIDs() {
		emp := st.Empires[id]
		systems := st.EmpireSystems(id)
		if len(systems) == 0 {
			continue
		}
		if emp.Resources == nil {
			emp.Resources = map[string]float64{}
		}
		changed := false
		for _, res := range g.cats.Resources.Names {
			if res == "population" {
				continue
			}
			delta := g.aggs.Periodic(emp, systems, res).Total
			if delta == 0 {
				continue
			}
			emp.Resources[res] = math.Max(0, emp.Resources[res]+delta)
			changed = true
		}
		for _, sys := range systems {
			growth := g.aggs.PopulationGrowth(emp, []*model.System{sys}).Total
			if growth == 0 {
				continue
			}
			sys.Population = math.Max(0, sys.Population+growth)
			st.MarkChanged(model.KindSystem, sys.ID)
		}
		if changed {
			st.MarkChanged(model.KindEmpire, emp.ID)
			res := make(map[string]float64, len(emp.Resources))
			for k, v := range emp.Resources {
				res[k] = v
			}
			g.buffer(events.ForEmpire(events.ResourcesChanged, st.GameID, emp.ID, st.Period, res))
		}
	}
}

// flush hands every pending change to the store and publishes the events
// raised since the last flush. A failed save keeps the changes pending for
// the next flush.
func (g *Game) flush() {
	if g.store == nil {
		g.st.ResetChanges()
	} else if g.st.HasChanges() {
		b := g.st.TakeChanges()
		ctx, cancel := context.WithTimeout(context.Background(), saveTimeout)
		err := g.store.SaveBatch(ctx, b)
		cancel()
		if err != nil {
			g.st.Restore(b)
			g.logger.Printf("game %s: save period %d: %v", g.cfg.ID, b.Period, err)
		}
	}
	evs := g.pending
	g.pending = nil
	for _, ev := range evs {
		g.sink.Emit(ev)
	}
}

func (g *Game) sendSnapshot() bool {
	snap := snapshot.FromState(g.st, g.cats.Digests())
	select {
	case g.snapshotSink <- snap:
		return true
	default:
		g.logger.Printf("game %s: snapshot sink backpressure at period %d", g.cfg.ID, g.st.Period)
		return false
	}
}
