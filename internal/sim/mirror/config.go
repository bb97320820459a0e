package mirror

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	// Ledger table capacity. Must match the contract.
	MaxSlots int `yaml:"max_slots"`
	// Attempts before the contract force-relocates an occupant.
	MaxAttempts int `yaml:"max_attempts"`

	// World-space geometry, in pixels.
	WorldW       int `yaml:"world_w"`
	WorldH       int `yaml:"world_h"`
	EdgeMarginPx int `yaml:"edge_margin_px"`

	CatchRangePx  float64 `yaml:"catch_range_px"`
	GridCellPx    int     `yaml:"grid_cell_px"`
	MinSpawnSepPx float64 `yaml:"min_spawn_sep_px"`

	// Pool size must be at least MaxSlots; one handle can be mid-release
	// while a new spawn needs one.
	PoolSize int `yaml:"pool_size"`

	PollInterval timeDuration `yaml:"poll_interval"`
	// How long a success/failure outcome stays on screen before the
	// catch machine returns to idle.
	OutcomeDelay timeDuration `yaml:"outcome_delay"`
}

// timeDuration is a yaml-friendly wrapper ("5s", "1200ms").
type timeDuration time.Duration

func (d *timeDuration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	dur, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("duration %q: %w", s, err)
	}
	*d = timeDuration(dur)
	return nil
}

func (d timeDuration) Duration() time.Duration { return time.Duration(d) }

func (c *Config) applyDefaults() {
	if c.MaxSlots <= 0 {
		c.MaxSlots = 20
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 3
	}
	if c.WorldW <= 0 {
		c.WorldW = 1920
	}
	if c.WorldH <= 0 {
		c.WorldH = 1920
	}
	if c.EdgeMarginPx <= 0 {
		c.EdgeMarginPx = 64
	}
	if c.CatchRangePx <= 0 {
		c.CatchRangePx = 96
	}
	if c.GridCellPx <= 0 {
		c.GridCellPx = 128
	}
	if c.MinSpawnSepPx <= 0 {
		c.MinSpawnSepPx = 64
	}
	if c.PoolSize < c.MaxSlots {
		c.PoolSize = c.MaxSlots + 4
	}
	if c.PollInterval <= 0 {
		c.PollInterval = timeDuration(5 * time.Second)
	}
	if c.OutcomeDelay <= 0 {
		c.OutcomeDelay = timeDuration(1200 * time.Millisecond)
	}
}

// DefaultConfig returns a config with every field at its default.
func DefaultConfig() Config {
	var c Config
	c.applyDefaults()
	return c
}

// LoadConfig reads a yaml config file and fills unset fields with
// defaults.
func LoadConfig(path string) (Config, error) {
	var c Config
	raw, err := os.ReadFile(path)
	if err != nil {
		return c, err
	}
	if err := yaml.Unmarshal(raw, &c); err != nil {
		return c, fmt.Errorf("config yaml: %w", err)
	}
	c.applyDefaults()
	return c, nil
}
