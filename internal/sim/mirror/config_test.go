package mirror

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestConfig_Defaults(t *testing.T) {
	c := DefaultConfig()
	if c.MaxSlots != 20 {
		t.Fatalf("max slots = %d", c.MaxSlots)
	}
	if c.MaxAttempts != 3 {
		t.Fatalf("max attempts = %d", c.MaxAttempts)
	}
	if c.CatchRangePx != 96 {
		t.Fatalf("catch range = %v", c.CatchRangePx)
	}
	if c.GridCellPx != 128 {
		t.Fatalf("grid cell = %d", c.GridCellPx)
	}
	if c.MinSpawnSepPx != 64 {
		t.Fatalf("min separation = %v", c.MinSpawnSepPx)
	}
	if c.PoolSize < c.MaxSlots {
		t.Fatalf("pool size %d below max slots %d", c.PoolSize, c.MaxSlots)
	}
	if c.PollInterval.Duration() != 5*time.Second {
		t.Fatalf("poll interval = %v", c.PollInterval.Duration())
	}
}

func TestConfig_PoolSizeBumpedToCapacity(t *testing.T) {
	c := Config{MaxSlots: 30, PoolSize: 10}
	c.applyDefaults()
	if c.PoolSize < 30 {
		t.Fatalf("pool size = %d, want >= 30", c.PoolSize)
	}
}

func TestLoadConfig_YAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "client.yaml")
	raw := []byte(`
max_slots: 10
catch_range_px: 120
poll_interval: "2s"
outcome_delay: "500ms"
`)
	if err := os.WriteFile(path, raw, 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	c, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if c.MaxSlots != 10 {
		t.Fatalf("max slots = %d", c.MaxSlots)
	}
	if c.CatchRangePx != 120 {
		t.Fatalf("catch range = %v", c.CatchRangePx)
	}
	if c.PollInterval.Duration() != 2*time.Second {
		t.Fatalf("poll interval = %v", c.PollInterval.Duration())
	}
	if c.OutcomeDelay.Duration() != 500*time.Millisecond {
		t.Fatalf("outcome delay = %v", c.OutcomeDelay.Duration())
	}
	// Unset fields fall back to defaults.
	if c.MaxAttempts != 3 {
		t.Fatalf("max attempts = %d", c.MaxAttempts)
	}
}

func TestLoadConfig_BadDuration(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "client.yaml")
	if err := os.WriteFile(path, []byte(`poll_interval: "soon"`), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := LoadConfig(path); err == nil {
		t.Fatal("expected duration parse error")
	}
}
