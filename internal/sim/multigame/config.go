package multigame

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

type Config struct {
	DefaultGameID string     `yaml:"default_game_id"`
	Games         []GameSpec `yaml:"games"`
}

type GameSpec struct {
	ID   string `yaml:"id"`
	Name string `yaml:"name"`

	// Scenario seeds the game when the store has no record of it.
	Scenario string `yaml:"scenario,omitempty"`

	// Zero values fall back to tuning.yaml.
	PeriodMs             int   `yaml:"period_ms,omitempty"`
	SnapshotEveryPeriods int   `yaml:"snapshot_every_periods,omitempty"`
	Economy              *bool `yaml:"economy,omitempty"`
}

// EconomyEnabled resolves the per-game economy switch against def.
func (s GameSpec) EconomyEnabled(def bool) bool {
	if s.Economy == nil {
		return def
	}
	return *s.Economy
}

func Load(path string) (Config, error) {
	cfg := defaults()
	if strings.TrimSpace(path) == "" {
		cfg.Normalize()
		return cfg, nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	cfg = Config{}
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return cfg, fmt.Errorf("games.yaml: %w", err)
	}
	cfg.Normalize()
	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("games.yaml: %w", err)
	}
	return cfg, nil
}

func defaults() Config {
	return Config{
		DefaultGameID: "demo",
		Games:         []GameSpec{{ID: "demo", Name: "Demo"}},
	}
}

func (c *Config) Normalize() {
	if c == nil {
		return
	}
	for i := range c.Games {
		c.Games[i].ID = strings.TrimSpace(c.Games[i].ID)
		c.Games[i].Name = strings.TrimSpace(c.Games[i].Name)
		if c.Games[i].Name == "" {
			c.Games[i].Name = c.Games[i].ID
		}
	}
	if c.DefaultGameID == "" && len(c.Games) > 0 {
		c.DefaultGameID = c.Games[0].ID
	}
}

func (c Config) Validate() error {
	c.Normalize()
	if len(c.Games) == 0 {
		return fmt.Errorf("games must not be empty")
	}
	seen := map[string]bool{}
	for _, g := range c.Games {
		if g.ID == "" {
			return fmt.Errorf("game id must not be empty")
		}
		if strings.ContainsAny(g.ID, "./\\ ") {
			return fmt.Errorf("game id %q must not contain dots, slashes or spaces", g.ID)
		}
		if seen[g.ID] {
			return fmt.Errorf("duplicate game id: %s", g.ID)
		}
		seen[g.ID] = true
		if g.PeriodMs < 0 {
			return fmt.Errorf("game %s period_ms must be >= 0", g.ID)
		}
		if g.SnapshotEveryPeriods < 0 {
			return fmt.Errorf("game %s snapshot_every_periods must be >= 0", g.ID)
		}
	}
	if !seen[c.DefaultGameID] {
		return fmt.Errorf("default_game_id %q not found in games", c.DefaultGameID)
	}
	return nil
}

func (c Config) GameSpecByID(id string) (GameSpec, bool) {
	for _, g := range c.Games {
		if g.ID == id {
			return g, true
		}
	}
	return GameSpec{}, false
}
