package jobs

import (
	apperrors "stellarforge.ai/internal/platform/errors"
	"stellarforge.ai/internal/protocol"
	"stellarforge.ai/internal/sim/events"
	"stellarforge.ai/internal/sim/model"
)

// Advance runs one period over every active job of st in priority order.
// Technology jobs advance one per empire and research lane, construction
// jobs one per system whichever empire owns them, ship jobs up to the
// system's shipyard count. It
// returns the jobs that completed this period.
func (e *Engine) Advance(st *model.State, c Collaborators) []*model.Job {
	lanes := map[string]bool{}
	systems := map[string]bool{}
	shipyards := map[string]int{}
	var completed []*model.Job

	for _, j := range st.SortedJobs() {
		if j.Completed() {
			continue
		}
		emp := st.Empires[j.Empire]
		if emp == nil {
			continue
		}
		switch j.Type {
		case model.JobTechnology:
			def, ok := e.cats.Technologies.ByID[j.Technology]
			if !ok {
				continue
			}
			key := emp.ID + "/" + def.PrimaryTag()
			if lanes[key] {
				continue
			}
			lanes[key] = true
		case model.JobBuilding, model.JobDistrict, model.JobUpgrade:
			if st.Systems[j.System] == nil {
				continue
			}
			if systems[j.System] {
				continue
			}
			systems[j.System] = true
		case model.JobShip:
			sys := st.Systems[j.System]
			if sys == nil {
				continue
			}
			limit := sys.CountBuildings(e.tuning.ShipyardBuilding)
			if limit == 0 || shipyards[j.System] >= limit {
				continue
			}
			shipyards[j.System]++
		case model.JobTravel:
			progressed, arrived := e.advanceTravel(st, emp, j)
			if progressed {
				st.MarkChanged(model.KindJob, j.ID)
			}
			if arrived {
				e.complete(st, c, j)
				completed = append(completed, j)
			}
			continue
		default:
			continue
		}

		j.Progress++
		st.MarkChanged(model.KindJob, j.ID)
		if j.Progress >= j.Total {
			e.complete(st, c, j)
			completed = append(completed, j)
		}
	}
	return completed
}

// complete runs the terminal mutation and stamps the result. Collaborator
// errors are recorded on the job, never returned.
func (e *Engine) complete(st *model.State, c Collaborators, j *model.Job) {
	var err error
	switch j.Type {
	case model.JobTechnology:
		err = c.UnlockTechnology(j.Empire, j.Technology)
	case model.JobBuilding:
		err = c.AddBuilding(j.System, j.Building)
	case model.JobDistrict:
		err = c.AddDistrict(j.System, j.District)
	case model.JobUpgrade:
		err = c.UpgradeSystem(j.System, j.Upgrade, j.Empire)
	case model.JobShip:
		err = c.BuildShip(j.Empire, j.Fleet, j.Ship)
	}
	if err != nil {
		j.Result = &model.Result{Code: apperrors.CodeOf(err), Message: err.Error()}
	} else {
		j.Result = &model.Result{Code: protocol.ResultOK, Message: completedMessage}
	}
	j.CompletedPeriod = st.Period
	st.MarkChanged(model.KindJob, j.ID)
	e.sink.Emit(events.ForJob(events.JobCompleted, st.Period, j))
}

func fleetMoved(st *model.State, f *model.Fleet, from string) events.Event {
	return events.ForEmpire(events.FleetMoved, st.GameID, f.Empire, st.Period, map[string]string{
		"fleet": f.ID,
		"from":  from,
		"to":    f.Location,
	})
}
