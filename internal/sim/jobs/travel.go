package jobs

import (
	"math"

	apperrors "stellarforge.ai/internal/platform/errors"
	"stellarforge.ai/internal/sim/model"
)

// SlowestSpeed is the lowest effective speed among the fleet's ship types.
func (e *Engine) SlowestSpeed(st *model.State, emp *model.Empire, fleet *model.Fleet) (float64, error) {
	ships := st.FleetShips(fleet.ID)
	if len(ships) == 0 {
		return 0, apperrors.Precondition("fleet %s has no ships", fleet.ID)
	}
	slowest := math.Inf(1)
	seen := map[string]bool{}
	for _, sh := range ships {
		if seen[sh.Type] {
			continue
		}
		seen[sh.Type] = true
		v, err := e.vars.Value("ships."+sh.Type+".speed", emp, fleet)
		if err != nil {
			return 0, err
		}
		slowest = math.Min(slowest, v)
	}
	if slowest <= 0 {
		return 0, apperrors.Precondition("fleet %s cannot move", fleet.ID)
	}
	return slowest, nil
}

// LinkTime is the number of periods to cross the link from one system to
// a directly linked neighbour: ceil(distance / speed), at least one.
// It returns 0 when the systems are not linked.
func LinkTime(from *model.System, to string, speed float64) int {
	dist, ok := from.Links[to]
	if !ok || speed <= 0 {
		return 0
	}
	return int(math.Max(1, math.Ceil(dist/speed)))
}

func pathIndex(path []string, id string) int {
	for i, p := range path {
		if p == id {
			return i
		}
	}
	return -1
}

// advanceTravel moves a travelling fleet by one period. It reports whether
// the job reached its destination.
func (e *Engine) advanceTravel(st *model.State, emp *model.Empire, j *model.Job) (progressed, arrived bool) {
	fleet := st.Fleets[j.Fleet]
	if fleet == nil {
		return false, false
	}
	current := st.Systems[fleet.Location]
	idx := pathIndex(j.Path, fleet.Location)
	if current == nil || idx < 0 {
		return false, false
	}
	if idx == len(j.Path)-1 {
		return false, true
	}
	speed, err := e.SlowestSpeed(st, emp, fleet)
	if err != nil {
		return false, false
	}
	next := j.Path[idx+1]
	linkTime := LinkTime(current, next, speed)
	if linkTime == 0 {
		return false, false
	}

	if j.PeriodsInCurrentSystem+1 >= linkTime {
		from := fleet.Location
		fleet.Location = next
		j.PeriodsInCurrentSystem = 0
		st.MarkChanged(model.KindFleet, fleet.ID)
		e.sink.Emit(fleetMoved(st, fleet, from))
	} else {
		j.PeriodsInCurrentSystem++
	}
	j.Progress++
	return true, fleet.Location == j.Path[len(j.Path)-1]
}
