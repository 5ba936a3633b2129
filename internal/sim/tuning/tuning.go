package tuning

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

type Tuning struct {
	ProtocolVersion string `yaml:"protocol_version"`

	PeriodMs             int `yaml:"period_ms"`
	SnapshotEveryPeriods int `yaml:"snapshot_every_periods"`

	// CompareBound clamps empire.compare.* aggregates to [-bound, bound].
	CompareBound      float64 `yaml:"compare_bound"`
	MinTechnologyCost float64 `yaml:"min_technology_cost"`

	ShipyardBuilding string `yaml:"shipyard_building"`
	ExplorerShip     string `yaml:"explorer_ship"`
	ColonizerShip    string `yaml:"colonizer_ship"`

	// MaxTraits caps an empire's trait set; MaxTraitPoints caps the summed
	// trait cost.
	MaxTraits      int     `yaml:"max_traits"`
	MaxTraitPoints float64 `yaml:"max_trait_points"`

	EventBuffer int  `yaml:"event_buffer"`
	Economy     bool `yaml:"economy"`
}

func Defaults() Tuning {
	return Tuning{
		ProtocolVersion:      "1.0",
		PeriodMs:             60_000,
		SnapshotEveryPeriods: 10,
		CompareBound:         3,
		MinTechnologyCost:    1,
		ShipyardBuilding:     "shipyard",
		ExplorerShip:         "explorer",
		ColonizerShip:        "colonizer",
		MaxTraits:            5,
		MaxTraitPoints:       4,
		EventBuffer:          256,
		Economy:              true,
	}
}

func Load(path string) (Tuning, error) {
	t := Defaults()
	raw, err := os.ReadFile(path)
	if err != nil {
		return t, err
	}
	if err := yaml.Unmarshal(raw, &t); err != nil {
		return t, fmt.Errorf("tuning.yaml: %w", err)
	}
	if err := t.Validate(); err != nil {
		return t, fmt.Errorf("tuning.yaml: %w", err)
	}
	return t, nil
}

func (t Tuning) Validate() error {
	if t.PeriodMs <= 0 {
		return fmt.Errorf("period_ms must be > 0")
	}
	if t.SnapshotEveryPeriods < 0 {
		return fmt.Errorf("snapshot_every_periods must be >= 0")
	}
	if t.CompareBound <= 0 {
		return fmt.Errorf("compare_bound must be > 0")
	}
	if t.MinTechnologyCost < 1 {
		return fmt.Errorf("min_technology_cost must be >= 1")
	}
	if t.ShipyardBuilding == "" || t.ExplorerShip == "" || t.ColonizerShip == "" {
		return fmt.Errorf("shipyard_building, explorer_ship and colonizer_ship are required")
	}
	if t.MaxTraits < 0 {
		return fmt.Errorf("max_traits must be >= 0")
	}
	if t.MaxTraitPoints < 0 {
		return fmt.Errorf("max_trait_points must be >= 0")
	}
	return nil
}
