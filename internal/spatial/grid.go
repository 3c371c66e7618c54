// Package spatial maps world positions to fixed cells, assigns each cell
// one of three colors such that same-colored cells never share an edge,
// and tracks per-cell entity membership so the scheduler can hand out
// conflict-free work (spec.md §4.4, §3 "Spatial Cell").
package spatial

import (
	"sort"

	"github.com/RoaringBitmap/roaring/v2"

	"github.com/edwinsyarief/rgbworld"
)

// CellEdge is the world-space size of one square cell (spec.md §3: "cell
// edge = 16 units").
const CellEdge = 16.0

// Color is the R/G/B label of a cell.
type Color uint8

const (
	ColorR Color = iota
	ColorG
	ColorB
	numColors = 3
)

func (c Color) String() string {
	switch c {
	case ColorR:
		return "R"
	case ColorG:
		return "G"
	case ColorB:
		return "B"
	default:
		return "?"
	}
}

// CellID identifies a cell by its integer grid coordinates.
type CellID struct {
	CX, CZ int32
}

// Cell converts a world position to the CellID containing it.
func Cell(x, z float64) CellID {
	return CellID{CX: floorDiv(x, CellEdge), CZ: floorDiv(z, CellEdge)}
}

// floorDiv divides and rounds toward negative infinity, so cells at
// negative coordinates still tile correctly (spec.md §4.4: "cells at the
// world's negative coordinates must yield the same color as symmetric
// positives; use the arithmetically correct modulo").
func floorDiv(v, edge float64) int32 {
	q := v / edge
	i := int32(q)
	if q < 0 && float64(i) != q {
		i--
	}
	return i
}

// ColorOf computes a cell's color as a pure function of its coordinates:
// `((cx + cz) mod 3)` using the arithmetically correct (always
// non-negative) modulo, not Go's truncating remainder.
func ColorOf(id CellID) Color {
	sum := int64(id.CX) + int64(id.CZ)
	m := sum % numColors
	if m < 0 {
		m += numColors
	}
	return Color(m)
}

// Neighborhood returns the Moore 3x3 neighborhood centered on id, used by
// a handler to read adjacent cells' entities (spec.md §4.4 `neighborhood`).
func Neighborhood(id CellID) [9]CellID {
	var out [9]CellID
	i := 0
	for dx := int32(-1); dx <= 1; dx++ {
		for dz := int32(-1); dz <= 1; dz++ {
			out[i] = CellID{CX: id.CX + dx, CZ: id.CZ + dz}
			i++
		}
	}
	return out
}

// Grid maintains cell -> entity membership. Membership sets are roaring
// bitmaps over entity slot indices (rgbworld.Entity.ID), which keeps
// per-cell iteration and intersection cheap even for sparse, widely
// spread populations (see SPEC_FULL.md §11 for why a bitmap was chosen
// over a plain map/set here).
type Grid struct {
	cells        map[CellID]*roaring.Bitmap
	entityCell   map[uint32]CellID
	entityHandle map[uint32]rgbworld.Entity
}

// NewGrid creates an empty grid. Cells are not materialized until an
// entity enters them (spec.md §4.4 "Empty cells are valid first-class
// objects... not materialized until an entity enters them").
func NewGrid() *Grid {
	return &Grid{
		cells:        make(map[CellID]*roaring.Bitmap),
		entityCell:   make(map[uint32]CellID),
		entityHandle: make(map[uint32]rgbworld.Entity),
	}
}

func (g *Grid) bitmapFor(id CellID) *roaring.Bitmap {
	bm, ok := g.cells[id]
	if !ok {
		bm = roaring.New()
		g.cells[id] = bm
	}
	return bm
}

// Enter places e into cell id for the first time (e.g. on spawn). It is a
// no-op if e is already tracked in some cell — use Migrate to move it.
func (g *Grid) Enter(e rgbworld.Entity, id CellID) {
	if _, tracked := g.entityCell[e.ID]; tracked {
		return
	}
	g.bitmapFor(id).Add(e.ID)
	g.entityCell[e.ID] = id
	g.entityHandle[e.ID] = e
}

// Migrate moves e from its current cell to `to`. Invoked only from the
// post phase (spec.md §4.4 `migrate`).
func (g *Grid) Migrate(e rgbworld.Entity, to CellID) {
	from, tracked := g.entityCell[e.ID]
	if tracked {
		if from == to {
			return
		}
		g.bitmapFor(from).Remove(e.ID)
	}
	g.bitmapFor(to).Add(e.ID)
	g.entityCell[e.ID] = to
	g.entityHandle[e.ID] = e
}

// Leave removes e from spatial tracking entirely (on despawn).
func (g *Grid) Leave(e rgbworld.Entity) {
	if from, ok := g.entityCell[e.ID]; ok {
		g.bitmapFor(from).Remove(e.ID)
	}
	delete(g.entityCell, e.ID)
	delete(g.entityHandle, e.ID)
}

// CellOf reports the cell currently holding e, if tracked.
func (g *Grid) CellOf(e rgbworld.Entity) (CellID, bool) {
	id, ok := g.entityCell[e.ID]
	return id, ok
}

// Members returns every entity currently located in cell id.
func (g *Grid) Members(id CellID) []rgbworld.Entity {
	bm, ok := g.cells[id]
	if !ok {
		return nil
	}
	out := make([]rgbworld.Entity, 0, bm.GetCardinality())
	it := bm.Iterator()
	for it.HasNext() {
		slot := it.Next()
		if e, ok := g.entityHandle[slot]; ok {
			out = append(out, e)
		}
	}
	return out
}

// CellsOfColor returns every currently-materialized cell with color c, in
// ascending (cx, cz) order — the order the scheduler hands work to the
// pool in, so cross-cell effects stay deterministic (spec.md §4.6 "tasks
// are scheduled in ascending (cell_x, cell_z) order").
func (g *Grid) CellsOfColor(c Color) []CellID {
	var out []CellID
	for id := range g.cells {
		if ColorOf(id) == c {
			out = append(out, id)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CX != out[j].CX {
			return out[i].CX < out[j].CX
		}
		return out[i].CZ < out[j].CZ
	})
	return out
}
