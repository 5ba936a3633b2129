// Package jobs turns job intents into costed, time-boxed jobs, advances
// them once per period under per-system and per-lane limits, and resolves
// completed jobs into state changes.
package jobs

import (
	"math"

	"github.com/google/uuid"

	apperrors "stellarforge.ai/internal/platform/errors"
	"stellarforge.ai/internal/protocol"
	"stellarforge.ai/internal/sim/aggregates"
	"stellarforge.ai/internal/sim/catalogs"
	"stellarforge.ai/internal/sim/events"
	"stellarforge.ai/internal/sim/model"
	"stellarforge.ai/internal/sim/tuning"
	"stellarforge.ai/internal/sim/variables"
)

const completedMessage = "Job completed successfully"

type Engine struct {
	cats   *catalogs.Catalogs
	vars   *variables.Engine
	aggs   *aggregates.Engine
	tuning tuning.Tuning
	sink   events.Sink

	newID func() string
}

func NewEngine(cats *catalogs.Catalogs, vars *variables.Engine, aggs *aggregates.Engine, tun tuning.Tuning, sink events.Sink) *Engine {
	if sink == nil {
		sink = events.Discard
	}
	return &Engine{cats: cats, vars: vars, aggs: aggs, tuning: tun, sink: sink, newID: uuid.NewString}
}

// Create validates in, checks its preconditions, resolves cost and
// duration, debits the empire and stores the job. On error nothing in st
// changes.
func (e *Engine) Create(st *model.State, empireID string, in protocol.JobIntent) (*model.Job, error) {
	emp := st.Empires[empireID]
	if emp == nil {
		return nil, apperrors.NotFound("empire %s", empireID)
	}
	if err := protocol.ValidateIntent(in); err != nil {
		return nil, apperrors.Validation("invalid job intent: %v", err)
	}

	j := &model.Job{
		ID:            e.newID(),
		Empire:        emp.ID,
		Type:          model.JobType(in.Type),
		Priority:      in.Priority,
		CreatedPeriod: st.Period,
	}
	var (
		after func()
		err   error
	)
	switch j.Type {
	case model.JobTechnology:
		err = e.prepareTechnology(st, emp, in, j)
	case model.JobBuilding:
		err = e.prepareBuilding(st, emp, in, j)
	case model.JobDistrict:
		err = e.prepareDistrict(st, emp, in, j)
	case model.JobUpgrade:
		after, err = e.prepareUpgrade(st, emp, in, j)
	case model.JobShip:
		err = e.prepareShip(st, emp, in, j)
	case model.JobTravel:
		err = e.prepareTravel(st, emp, in, j)
	default:
		err = apperrors.Validation("unknown job type %q", in.Type)
	}
	if err != nil {
		return nil, err
	}

	if err := Debit(emp, j.Cost); err != nil {
		return nil, err
	}
	if after != nil {
		after()
	}
	st.MarkChanged(model.KindEmpire, emp.ID)
	st.PutJob(j)

	e.sink.Emit(events.ForJob(events.JobCreated, st.Period, j))
	if len(j.Cost) > 0 {
		e.emitResources(st, emp)
	}
	return j, nil
}

// Cancel refunds the full cost snapshot of an active job and deletes it.
func (e *Engine) Cancel(st *model.State, empireID, jobID string) (*model.Job, error) {
	j := st.Jobs[jobID]
	if j == nil || j.Empire != empireID {
		return nil, apperrors.NotFound("job %s", jobID)
	}
	if j.Completed() {
		return nil, apperrors.Conflict("job %s is already completed", jobID)
	}
	emp := st.Empires[empireID]
	if emp == nil {
		return nil, apperrors.NotFound("empire %s", empireID)
	}
	Credit(emp, j.Cost)
	st.MarkChanged(model.KindEmpire, emp.ID)
	st.DeleteJob(j.ID)

	e.sink.Emit(events.ForJob(events.JobDeleted, st.Period, j))
	if len(j.Cost) > 0 {
		e.emitResources(st, emp)
	}
	return j, nil
}

func (e *Engine) emitResources(st *model.State, emp *model.Empire) {
	res := make(map[string]float64, len(emp.Resources))
	for k, v := range emp.Resources {
		res[k] = v
	}
	e.sink.Emit(events.ForEmpire(events.ResourcesChanged, st.GameID, emp.ID, st.Period, res))
}

// periods rounds a duration to whole periods, at least one.
func periods(v float64) int {
	return int(math.Max(1, math.Round(v)))
}
