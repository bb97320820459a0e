package mirror

import (
	"testing"

	"wildchain/internal/protocol"
)

func TestCoordMapper_CornersRespectMargin(t *testing.T) {
	cfg := Config{WorldW: 1000, WorldH: 2000, EdgeMarginPx: 50}
	cfg.applyDefaults()
	m := NewCoordMapper(cfg)

	origin := m.ToWorld(0, 0)
	if origin.X != 50 || origin.Y != 50 {
		t.Fatalf("origin = %+v, want (50,50)", origin)
	}

	far := m.ToWorld(protocol.LedgerCoordMax, protocol.LedgerCoordMax)
	if far.X != 950 || far.Y != 1950 {
		t.Fatalf("far corner = %+v, want (950,1950)", far)
	}
}

func TestCoordMapper_MidpointCentered(t *testing.T) {
	cfg := Config{WorldW: 1000, WorldH: 1000, EdgeMarginPx: 100}
	cfg.applyDefaults()
	m := NewCoordMapper(cfg)

	// Grid has an even number of cells, so the midpoint is half a step
	// off true center.
	mid := m.ToWorld(protocol.LedgerCoordMax/2, protocol.LedgerCoordMax/2)
	if mid.X < 499 || mid.X > 501 || mid.Y < 499 || mid.Y > 501 {
		t.Fatalf("midpoint = %+v, want near (500,500)", mid)
	}
}
