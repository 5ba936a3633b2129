package jobs

import (
	apperrors "stellarforge.ai/internal/platform/errors"
	"stellarforge.ai/internal/protocol"
	"stellarforge.ai/internal/sim/model"
	"stellarforge.ai/internal/sim/variables"
)

// costAndDuration evaluates <prefix>.cost.* and the duration variable in
// one pass over cat.
func (e *Engine) costAndDuration(cat variables.Category, prefix, durationVar string, emp *model.Empire, scope variables.Scope) (map[string]float64, float64, error) {
	v := e.vars.Category(cat, emp, scope)
	d, ok := v.Get(durationVar)
	if !ok {
		return nil, 0, apperrors.NotFound("variable %s", durationVar)
	}
	cost := map[string]float64{}
	for _, r := range e.cats.Resources.Names {
		if x, ok := v.Get(prefix + ".cost." + r); ok && x > 0 {
			cost[r] = x
		}
	}
	return cost, d, nil
}

func (e *Engine) ownedSystem(st *model.State, emp *model.Empire, id string) (*model.System, error) {
	sys := st.Systems[id]
	if sys == nil {
		return nil, apperrors.NotFound("system %s", id)
	}
	if sys.Owner != emp.ID {
		return nil, apperrors.Precondition("system %s is not owned by empire %s", id, emp.ID)
	}
	return sys, nil
}

// activeJobs counts unfinished jobs matching f.
func activeJobs(st *model.State, f func(*model.Job) bool) int {
	n := 0
	for _, j := range st.Jobs {
		if !j.Completed() && f(j) {
			n++
		}
	}
	return n
}

func (e *Engine) prepareTechnology(st *model.State, emp *model.Empire, in protocol.JobIntent, j *model.Job) error {
	def, ok := e.cats.Technologies.ByID[in.Technology]
	if !ok {
		return apperrors.NotFound("technology %s", in.Technology)
	}
	if emp.HasTechnology(def.ID) {
		return apperrors.Precondition("technology %s is already unlocked", def.ID)
	}
	for _, req := range def.Requires {
		if !emp.HasTechnology(req) {
			return apperrors.Precondition("technology %s requires %s", def.ID, req)
		}
	}
	if activeJobs(st, func(o *model.Job) bool {
		return o.Empire == emp.ID && o.Type == model.JobTechnology && o.Technology == def.ID
	}) > 0 {
		return apperrors.Conflict("technology %s is already being researched", def.ID)
	}

	cost, err := e.aggs.TechnologyCost(emp, def.ID)
	if err != nil {
		return err
	}
	d, err := e.vars.Value("empire.technologies.research_time", emp, nil)
	if err != nil {
		return err
	}
	j.Technology = def.ID
	j.Cost = map[string]float64{"research": cost.Total}
	j.Total = periods(d)
	return nil
}

func (e *Engine) prepareBuilding(st *model.State, emp *model.Empire, in protocol.JobIntent, j *model.Job) error {
	if _, ok := e.cats.Buildings.ByID[in.Building]; !ok {
		return apperrors.NotFound("building %s", in.Building)
	}
	sys, err := e.ownedSystem(st, emp, in.System)
	if err != nil {
		return err
	}
	if sys.Capacity > 0 {
		pending := activeJobs(st, func(o *model.Job) bool {
			return o.System == sys.ID && (o.Type == model.JobBuilding || o.Type == model.JobDistrict)
		})
		if sys.UsedCapacity()+pending >= sys.Capacity {
			return apperrors.Precondition("system %s has no free capacity", sys.ID)
		}
	}
	prefix := "buildings." + in.Building
	cost, d, err := e.costAndDuration(variables.Buildings, prefix, prefix+".build_time", emp, sys)
	if err != nil {
		return err
	}
	j.System = sys.ID
	j.Building = in.Building
	j.Cost = cost
	j.Total = periods(d)
	return nil
}

func (e *Engine) prepareDistrict(st *model.State, emp *model.Empire, in protocol.JobIntent, j *model.Job) error {
	if _, ok := e.cats.Districts.ByID[in.District]; !ok {
		return apperrors.NotFound("district %s", in.District)
	}
	sys, err := e.ownedSystem(st, emp, in.System)
	if err != nil {
		return err
	}
	pending := activeJobs(st, func(o *model.Job) bool {
		return o.System == sys.ID && o.Type == model.JobDistrict && o.District == in.District
	})
	if sys.Districts[in.District]+pending >= sys.DistrictSlots[in.District] {
		return apperrors.Precondition("system %s has no free %s district slot", sys.ID, in.District)
	}
	prefix := "districts." + in.District
	cost, d, err := e.costAndDuration(variables.Districts, prefix, prefix+".build_time", emp, sys)
	if err != nil {
		return err
	}
	j.System = sys.ID
	j.District = in.District
	j.Cost = cost
	j.Total = periods(d)
	return nil
}

// prepareUpgrade returns a func that consumes the colonizer once the
// debit succeeded.
func (e *Engine) prepareUpgrade(st *model.State, emp *model.Empire, in protocol.JobIntent, j *model.Job) (func(), error) {
	sys := st.Systems[in.System]
	if sys == nil {
		return nil, apperrors.NotFound("system %s", in.System)
	}
	next, ok := e.cats.Systems.Next(sys.Upgrade)
	if !ok {
		return nil, apperrors.Precondition("system %s cannot be upgraded past %s", sys.ID, sys.Upgrade)
	}
	claimable := sys.Owner == "" && sys.Upgrade == model.StageUnexplored
	if sys.Owner != emp.ID && !claimable {
		return nil, apperrors.Precondition("system %s is not owned by empire %s", sys.ID, emp.ID)
	}
	if activeJobs(st, func(o *model.Job) bool {
		return o.Empire == emp.ID && o.Type == model.JobUpgrade && o.System == sys.ID
	}) > 0 {
		return nil, apperrors.Conflict("system %s is already being upgraded", sys.ID)
	}

	var after func()
	switch sys.Upgrade {
	case model.StageUnexplored:
		if findShip(st, emp.ID, sys.ID, e.tuning.ExplorerShip) == nil {
			return nil, apperrors.Precondition("an %s must be at system %s", e.tuning.ExplorerShip, sys.ID)
		}
	case model.StageExplored:
		colonizer := findShip(st, emp.ID, sys.ID, e.tuning.ColonizerShip)
		if colonizer == nil {
			return nil, apperrors.Precondition("a %s must be at system %s", e.tuning.ColonizerShip, sys.ID)
		}
		after = func() { st.DeleteShip(colonizer.ID) }
	}

	prefix := "systems." + next
	cost, d, err := e.costAndDuration(variables.Systems, prefix, prefix+".upgrade_time", emp, sys)
	if err != nil {
		return nil, err
	}
	j.System = sys.ID
	j.Upgrade = next
	j.Cost = cost
	j.Total = periods(d)
	return after, nil
}

// findShip returns the first ship of type shipType in one of the empire's
// fleets at systemID.
func findShip(st *model.State, empireID, systemID, shipType string) *model.Ship {
	for _, f := range st.FleetsAt(empireID, systemID) {
		for _, sh := range st.FleetShips(f.ID) {
			if sh.Type == shipType {
				return sh
			}
		}
	}
	return nil
}

func (e *Engine) prepareShip(st *model.State, emp *model.Empire, in protocol.JobIntent, j *model.Job) error {
	if _, ok := e.cats.Ships.ByID[in.Ship]; !ok {
		return apperrors.NotFound("ship type %s", in.Ship)
	}
	sys, err := e.ownedSystem(st, emp, in.System)
	if err != nil {
		return err
	}
	fleet := st.Fleets[in.Fleet]
	if fleet == nil {
		return apperrors.NotFound("fleet %s", in.Fleet)
	}
	if fleet.Empire != emp.ID {
		return apperrors.Precondition("fleet %s does not belong to empire %s", fleet.ID, emp.ID)
	}
	if fleet.Location != sys.ID {
		return apperrors.Precondition("fleet %s is not at system %s", fleet.ID, sys.ID)
	}
	if sys.CountBuildings(e.tuning.ShipyardBuilding) == 0 {
		return apperrors.Precondition("system %s has no %s", sys.ID, e.tuning.ShipyardBuilding)
	}
	prefix := "ships." + in.Ship
	cost, d, err := e.costAndDuration(variables.Ships, prefix, prefix+".build_time", emp, sys)
	if err != nil {
		return err
	}
	if d <= 0 {
		return apperrors.Precondition("ship type %s is not available", in.Ship)
	}
	j.System = sys.ID
	j.Fleet = fleet.ID
	j.Ship = in.Ship
	j.Cost = cost
	j.Total = periods(d)
	return nil
}

func (e *Engine) prepareTravel(st *model.State, emp *model.Empire, in protocol.JobIntent, j *model.Job) error {
	fleet := st.Fleets[in.Fleet]
	if fleet == nil {
		return apperrors.NotFound("fleet %s", in.Fleet)
	}
	if fleet.Empire != emp.ID {
		return apperrors.Precondition("fleet %s does not belong to empire %s", fleet.ID, emp.ID)
	}
	if len(in.Path) < 2 {
		return apperrors.Validation("travel path needs at least two systems")
	}
	if in.Path[0] != fleet.Location {
		return apperrors.Precondition("path must start at the fleet location %s", fleet.Location)
	}
	for _, id := range in.Path {
		if st.Systems[id] == nil {
			return apperrors.NotFound("system %s", id)
		}
	}
	for i := 1; i < len(in.Path); i++ {
		if _, ok := st.Systems[in.Path[i-1]].Links[in.Path[i]]; !ok {
			return apperrors.Precondition("systems %s and %s are not linked", in.Path[i-1], in.Path[i])
		}
	}
	if activeJobs(st, func(o *model.Job) bool {
		return o.Type == model.JobTravel && o.Fleet == fleet.ID && o.Progress != o.Total
	}) > 0 {
		return apperrors.Conflict("fleet %s is already travelling", fleet.ID)
	}

	speed, err := e.SlowestSpeed(st, emp, fleet)
	if err != nil {
		return err
	}
	total := 0
	for i := 1; i < len(in.Path); i++ {
		total += LinkTime(st.Systems[in.Path[i-1]], in.Path[i], speed)
	}
	j.Fleet = fleet.ID
	j.Path = append([]string(nil), in.Path...)
	j.PeriodsInCurrentSystem = 0
	j.Cost = map[string]float64{}
	j.Total = total
	return nil
}
