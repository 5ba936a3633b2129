package jobs

import (
	"math"

	"github.com/google/uuid"

	apperrors "stellarforge.ai/internal/platform/errors"
	"stellarforge.ai/internal/sim/catalogs"
	"stellarforge.ai/internal/sim/model"
)

// Collaborators apply the terminal mutation of a completed job.
type Collaborators interface {
	UnlockTechnology(empireID, technology string) error
	AddBuilding(systemID, building string) error
	AddDistrict(systemID, district string) error
	UpgradeSystem(systemID, stage, empireID string) error
	BuildShip(empireID, fleetID, shipType string) error
}

// StateCollaborators mutates a game State directly.
type StateCollaborators struct {
	State    *model.State
	Catalogs *catalogs.Catalogs
	NewID    func() string
}

func NewStateCollaborators(st *model.State, cats *catalogs.Catalogs) *StateCollaborators {
	return &StateCollaborators{State: st, Catalogs: cats, NewID: uuid.NewString}
}

func (c *StateCollaborators) UnlockTechnology(empireID, technology string) error {
	emp := c.State.Empires[empireID]
	if emp == nil {
		return apperrors.NotFound("empire %s", empireID)
	}
	if emp.HasTechnology(technology) {
		return apperrors.Conflict("technology %s is already unlocked", technology)
	}
	emp.Technologies = append(emp.Technologies, technology)
	c.State.MarkChanged(model.KindEmpire, emp.ID)
	return nil
}

func (c *StateCollaborators) AddBuilding(systemID, building string) error {
	sys := c.State.Systems[systemID]
	if sys == nil {
		return apperrors.NotFound("system %s", systemID)
	}
	if sys.Capacity > 0 && sys.UsedCapacity() >= sys.Capacity {
		return apperrors.Precondition("system %s has no free capacity", systemID)
	}
	sys.Buildings = append(sys.Buildings, building)
	c.State.MarkChanged(model.KindSystem, sys.ID)
	return nil
}

func (c *StateCollaborators) AddDistrict(systemID, district string) error {
	sys := c.State.Systems[systemID]
	if sys == nil {
		return apperrors.NotFound("system %s", systemID)
	}
	if sys.Districts[district] >= sys.DistrictSlots[district] {
		return apperrors.Precondition("system %s has no free %s district slot", systemID, district)
	}
	if sys.Districts == nil {
		sys.Districts = map[string]int{}
	}
	sys.Districts[district]++
	c.State.MarkChanged(model.KindSystem, sys.ID)
	return nil
}

// UpgradeSystem moves the system one stage forward. Reaching the explored
// stage claims an unowned system for the empire.
func (c *StateCollaborators) UpgradeSystem(systemID, stage, empireID string) error {
	sys := c.State.Systems[systemID]
	if sys == nil {
		return apperrors.NotFound("system %s", systemID)
	}
	next, ok := c.Catalogs.Systems.Next(sys.Upgrade)
	if !ok || next != stage {
		return apperrors.Precondition("system %s cannot be upgraded from %s to %s", systemID, sys.Upgrade, stage)
	}
	if sys.Owner != "" && sys.Owner != empireID {
		return apperrors.Precondition("system %s was claimed by empire %s", systemID, sys.Owner)
	}
	def := c.Catalogs.Systems.ByID[stage]
	sys.Upgrade = stage
	if sys.Owner == "" && stage == model.StageExplored {
		sys.Owner = empireID
	}
	if def.Health > sys.Health {
		sys.Health = def.Health
	}
	if def.CapacityMultiplier > 0 && sys.Capacity > 0 {
		sys.Capacity = int(math.Round(float64(sys.Capacity) * def.CapacityMultiplier))
	}
	c.State.MarkChanged(model.KindSystem, sys.ID)
	return nil
}

func (c *StateCollaborators) BuildShip(empireID, fleetID, shipType string) error {
	fleet := c.State.Fleets[fleetID]
	if fleet == nil {
		return apperrors.NotFound("fleet %s", fleetID)
	}
	if fleet.Empire != empireID {
		return apperrors.Precondition("fleet %s does not belong to empire %s", fleetID, empireID)
	}
	def, ok := c.Catalogs.Ships.ByID[shipType]
	if !ok {
		return apperrors.NotFound("ship type %s", shipType)
	}
	c.State.PutShip(&model.Ship{
		ID:     c.NewID(),
		Empire: empireID,
		Fleet:  fleetID,
		Type:   shipType,
		Health: def.Health,
	})
	return nil
}
