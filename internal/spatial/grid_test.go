package spatial

import (
	"testing"

	"github.com/edwinsyarief/rgbworld"
)

func TestCellAndColorPureArithmetic(t *testing.T) {
	id := Cell(0, 0)
	if id != (CellID{0, 0}) {
		t.Errorf("expected cell (0,0), got %+v", id)
	}
	if ColorOf(id) != ColorR {
		t.Errorf("expected color R for cell (0,0), got %v", ColorOf(id))
	}
}

func TestColorNegativeCoordinatesMatchSymmetricPositives(t *testing.T) {
	pos := ColorOf(CellID{CX: 2, CZ: 1})
	neg := ColorOf(CellID{CX: -2, CZ: -1})
	wantPos := ColorOf(CellID{CX: 2, CZ: 1})
	if pos != wantPos {
		t.Fatalf("sanity check failed")
	}
	// (2+1) mod 3 == 0; (-2-1) mod 3 == -3 mod 3 == 0 under correct modulo.
	if neg != ColorR {
		t.Errorf("expected color R for (-2,-1), got %v", neg)
	}
}

func TestColorPartitionCorrectness(t *testing.T) {
	for cx := int32(-5); cx <= 5; cx++ {
		for cz := int32(-5); cz <= 5; cz++ {
			a := CellID{CX: cx, CZ: cz}
			neighbors := []CellID{
				{CX: cx + 1, CZ: cz}, {CX: cx - 1, CZ: cz},
				{CX: cx, CZ: cz + 1}, {CX: cx, CZ: cz - 1},
				{CX: cx + 1, CZ: cz + 1}, {CX: cx - 1, CZ: cz - 1},
				{CX: cx + 1, CZ: cz - 1}, {CX: cx - 1, CZ: cz + 1},
			}
			for _, b := range neighbors {
				if ColorOf(a) == ColorOf(b) {
					t.Fatalf("adjacent cells %+v and %+v share color %v", a, b, ColorOf(a))
				}
			}
		}
	}
}

func TestNeighborhoodIsMooreNine(t *testing.T) {
	n := Neighborhood(CellID{CX: 5, CZ: 5})
	if len(n) != 9 {
		t.Fatalf("expected 9 neighborhood cells, got %d", len(n))
	}
	found := false
	for _, c := range n {
		if c == (CellID{CX: 5, CZ: 5}) {
			found = true
		}
	}
	if !found {
		t.Error("expected neighborhood to include the center cell")
	}
}

func TestGridEnterMigrateLeave(t *testing.T) {
	g := NewGrid()
	e := rgbworld.Entity{ID: 1, Version: 1}
	g.Enter(e, CellID{0, 0})

	cell, ok := g.CellOf(e)
	if !ok || cell != (CellID{0, 0}) {
		t.Fatalf("expected entity in cell (0,0), got %+v ok=%v", cell, ok)
	}
	members := g.Members(CellID{0, 0})
	if len(members) != 1 || members[0] != e {
		t.Errorf("expected 1 member, got %+v", members)
	}

	g.Migrate(e, CellID{1, 0})
	if _, ok := g.CellOf(e); !ok {
		t.Fatal("expected entity still tracked after migrate")
	}
	if len(g.Members(CellID{0, 0})) != 0 {
		t.Error("expected old cell empty after migrate")
	}
	if len(g.Members(CellID{1, 0})) != 1 {
		t.Error("expected new cell to hold the migrated entity")
	}

	g.Leave(e)
	if _, ok := g.CellOf(e); ok {
		t.Error("expected entity untracked after Leave")
	}
}

func TestCellsOfColorAscendingOrder(t *testing.T) {
	g := NewGrid()
	e1 := rgbworld.Entity{ID: 1, Version: 1}
	e2 := rgbworld.Entity{ID: 2, Version: 1}
	g.Enter(e1, CellID{3, 0}) // color (3+0)%3 = 0 = R
	g.Enter(e2, CellID{0, 0}) // color R too

	cells := g.CellsOfColor(ColorR)
	if len(cells) != 2 {
		t.Fatalf("expected 2 R cells, got %d", len(cells))
	}
	if !(cells[0].CX < cells[1].CX) {
		t.Errorf("expected ascending CX order, got %+v", cells)
	}
}
