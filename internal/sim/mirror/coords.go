package mirror

import (
	"math"

	"wildchain/internal/protocol"
)

// Vec2 is a world-space position in pixels.
type Vec2 struct {
	X float64
	Y float64
}

func (v Vec2) Dist(o Vec2) float64 {
	return math.Hypot(v.X-o.X, v.Y-o.Y)
}

// CoordMapper converts the ledger's compact grid (0..LedgerCoordMax on
// each axis) into world pixels, keeping spawns off the map edges.
type CoordMapper struct {
	worldW float64
	worldH float64
	margin float64
}

func NewCoordMapper(cfg Config) CoordMapper {
	return CoordMapper{
		worldW: float64(cfg.WorldW),
		worldH: float64(cfg.WorldH),
		margin: float64(cfg.EdgeMarginPx),
	}
}

// ToWorld maps ledger grid coordinates to world pixels.
func (m CoordMapper) ToWorld(lx, ly int) Vec2 {
	span := float64(protocol.LedgerCoordMax)
	return Vec2{
		X: m.margin + (float64(lx)/span)*(m.worldW-2*m.margin),
		Y: m.margin + (float64(ly)/span)*(m.worldH-2*m.margin),
	}
}
