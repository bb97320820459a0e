package mirror

import (
	"math"
	"sort"
)

type cellKey struct {
	cx int
	cy int
}

// SpatialGrid is a sparse uniform grid over world space. Cells are
// keyed by floor(x/cell), floor(y/cell); each holds the ids located
// there. An id lives in exactly one cell at a time, matching its
// current position.
type SpatialGrid struct {
	cellPx float64
	cells  map[cellKey]map[string]struct{}
	pos    map[string]Vec2
}

func NewSpatialGrid(cellPx int) *SpatialGrid {
	return &SpatialGrid{
		cellPx: float64(cellPx),
		cells:  make(map[cellKey]map[string]struct{}),
		pos:    make(map[string]Vec2),
	}
}

func (g *SpatialGrid) keyFor(p Vec2) cellKey {
	return cellKey{
		cx: int(math.Floor(p.X / g.cellPx)),
		cy: int(math.Floor(p.Y / g.cellPx)),
	}
}

// Insert places id at p. Inserting an id that is already present moves
// it instead.
func (g *SpatialGrid) Insert(id string, p Vec2) {
	if _, ok := g.pos[id]; ok {
		g.Move(id, p)
		return
	}
	k := g.keyFor(p)
	cell := g.cells[k]
	if cell == nil {
		cell = make(map[string]struct{})
		g.cells[k] = cell
	}
	cell[id] = struct{}{}
	g.pos[id] = p
}

func (g *SpatialGrid) Remove(id string) {
	p, ok := g.pos[id]
	if !ok {
		return
	}
	k := g.keyFor(p)
	if cell := g.cells[k]; cell != nil {
		delete(cell, id)
		if len(cell) == 0 {
			delete(g.cells, k)
		}
	}
	delete(g.pos, id)
}

func (g *SpatialGrid) Move(id string, p Vec2) {
	old, ok := g.pos[id]
	if !ok {
		g.Insert(id, p)
		return
	}
	oldKey := g.keyFor(old)
	newKey := g.keyFor(p)
	if oldKey != newKey {
		if cell := g.cells[oldKey]; cell != nil {
			delete(cell, id)
			if len(cell) == 0 {
				delete(g.cells, oldKey)
			}
		}
		cell := g.cells[newKey]
		if cell == nil {
			cell = make(map[string]struct{})
			g.cells[newKey] = cell
		}
		cell[id] = struct{}{}
	}
	g.pos[id] = p
}

func (g *SpatialGrid) Contains(id string) bool {
	_, ok := g.pos[id]
	return ok
}

func (g *SpatialGrid) PositionOf(id string) (Vec2, bool) {
	p, ok := g.pos[id]
	return p, ok
}

func (g *SpatialGrid) Len() int { return len(g.pos) }

// Hit is one radius-query result.
type Hit struct {
	ID   string
	Pos  Vec2
	Dist float64
}

// QueryRadius returns all ids within radius of center, nearest first.
// Only cells overlapping the radius are visited, never the full grid.
func (g *SpatialGrid) QueryRadius(center Vec2, radius float64) []Hit {
	if radius < 0 {
		return nil
	}
	minCX := int(math.Floor((center.X - radius) / g.cellPx))
	maxCX := int(math.Floor((center.X + radius) / g.cellPx))
	minCY := int(math.Floor((center.Y - radius) / g.cellPx))
	maxCY := int(math.Floor((center.Y + radius) / g.cellPx))

	var hits []Hit
	for cx := minCX; cx <= maxCX; cx++ {
		for cy := minCY; cy <= maxCY; cy++ {
			cell := g.cells[cellKey{cx: cx, cy: cy}]
			for id := range cell {
				p := g.pos[id]
				d := center.Dist(p)
				if d <= radius {
					hits = append(hits, Hit{ID: id, Pos: p, Dist: d})
				}
			}
		}
	}
	sort.Slice(hits, func(i, j int) bool {
		if hits[i].Dist != hits[j].Dist {
			return hits[i].Dist < hits[j].Dist
		}
		return hits[i].ID < hits[j].ID
	})
	return hits
}

// Nearest returns the closest id within radius, if any.
func (g *SpatialGrid) Nearest(center Vec2, radius float64) (Hit, bool) {
	hits := g.QueryRadius(center, radius)
	if len(hits) == 0 {
		return Hit{}, false
	}
	return hits[0], true
}
