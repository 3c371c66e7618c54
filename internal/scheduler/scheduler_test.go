package scheduler

import (
	"context"
	"errors"
	"testing"

	"github.com/edwinsyarief/rgbworld"
	"github.com/edwinsyarief/rgbworld/internal/deferred"
	"github.com/edwinsyarief/rgbworld/internal/event"
	"github.com/edwinsyarief/rgbworld/internal/spatial"
)

var errBoom = errors.New("boom")

type sHealth struct{ HP int }
type sPosition struct{ X, Z float64 }

func newTestWorld(t *testing.T) (*rgbworld.World, *spatial.Grid) {
	t.Helper()
	rgbworld.ResetRegistry()
	return rgbworld.NewWorld(), spatial.NewGrid()
}

func TestRunTickDrivesGlobalSystems(t *testing.T) {
	w, grid := newTestWorld(t)
	s := New(w, grid)

	preRan, postRan := false, false
	s.Pre = append(s.Pre, func(*rgbworld.World, *event.Bus) { preRan = true })
	s.Post = append(s.Post, func(*rgbworld.World, *event.Bus) { postRan = true })

	if err := s.RunTick(context.Background()); err != nil {
		t.Fatalf("RunTick returned error: %v", err)
	}
	if !preRan || !postRan {
		t.Errorf("expected both Pre and Post systems to run, preRan=%v postRan=%v", preRan, postRan)
	}
}

func TestRunTickAppliesColorHandlerWrites(t *testing.T) {
	w, grid := newTestWorld(t)
	e := rgbworld.SpawnWith(w, sHealth{HP: 10})
	grid.Enter(e, spatial.CellID{CX: 0, CZ: 0}) // color R

	s := New(w, grid)
	s.Concurrency = 2
	s.ColorHandler = func(w *rgbworld.World, g *spatial.Grid, cell spatial.CellID, buf *deferred.Buffer, events *event.Bus, color spatial.Color) {
		for _, member := range g.Members(cell) {
			deferred.Update(buf, member, sHealth{HP: 1})
		}
	}

	if err := s.RunTick(context.Background()); err != nil {
		t.Fatalf("RunTick returned error: %v", err)
	}
	got, ok := rgbworld.Get[sHealth](w, e)
	if !ok || got.HP != 1 {
		t.Errorf("expected HP overwritten to 1 by the color handler, got %+v ok=%v", got, ok)
	}
}

func TestRunTickMigratesOnPositionUpdate(t *testing.T) {
	w, grid := newTestWorld(t)
	e := rgbworld.SpawnWith(w, sPosition{X: 0, Z: 0})
	grid.Enter(e, spatial.CellID{CX: 0, CZ: 0})

	s := New(w, grid)
	s.ColorHandler = func(w *rgbworld.World, g *spatial.Grid, cell spatial.CellID, buf *deferred.Buffer, events *event.Bus, color spatial.Color) {
		for _, member := range g.Members(cell) {
			deferred.UpdatePosition(buf, member, sPosition{X: 18, Z: 0})
		}
	}
	s.PositionOf = func(w *rgbworld.World, e rgbworld.Entity) (float64, float64, bool) {
		pos, ok := rgbworld.Get[sPosition](w, e)
		return pos.X, pos.Z, ok
	}

	if err := s.RunTick(context.Background()); err != nil {
		t.Fatalf("RunTick returned error: %v", err)
	}
	cell, ok := grid.CellOf(e)
	if !ok || cell != (spatial.CellID{CX: 1, CZ: 0}) {
		t.Errorf("expected entity migrated to cell (1,0), got %+v ok=%v", cell, ok)
	}
}

func TestRunTickRecoversPanickingCellHandler(t *testing.T) {
	w, grid := newTestWorld(t)
	e := rgbworld.SpawnWith(w, sHealth{HP: 10})
	grid.Enter(e, spatial.CellID{CX: 0, CZ: 0})

	s := New(w, grid)
	s.ColorHandler = func(*rgbworld.World, *spatial.Grid, spatial.CellID, *deferred.Buffer, *event.Bus, spatial.Color) {
		panic("boom")
	}

	if err := s.RunTick(context.Background()); err != nil {
		t.Fatalf("expected RunTick to survive a panicking cell handler, got error: %v", err)
	}
	got, _ := rgbworld.Get[sHealth](w, e)
	if got.HP != 10 {
		t.Errorf("expected quarantined cell to contribute no writes, HP changed to %d", got.HP)
	}
}

func TestRunTickLeavesGridOnDespawn(t *testing.T) {
	w, grid := newTestWorld(t)
	e := rgbworld.SpawnWith(w, sHealth{HP: 10})
	grid.Enter(e, spatial.CellID{CX: 0, CZ: 0})

	s := New(w, grid)
	s.ColorHandler = func(w *rgbworld.World, g *spatial.Grid, cell spatial.CellID, buf *deferred.Buffer, events *event.Bus, color spatial.Color) {
		for _, member := range g.Members(cell) {
			buf.Despawn(member)
		}
	}

	if err := s.RunTick(context.Background()); err != nil {
		t.Fatalf("RunTick returned error: %v", err)
	}
	if _, ok := grid.CellOf(e); ok {
		t.Error("expected despawned entity's grid membership to be released")
	}
}

type failingCommitter struct{ err error }

func (f failingCommitter) Commit(tick uint64, w *rgbworld.World) error { return f.err }

func TestRunTickDoesNotAdvanceOnCommitFailure(t *testing.T) {
	w, grid := newTestWorld(t)
	s := New(w, grid)
	s.Committer = failingCommitter{err: errBoom}

	if err := s.RunTick(context.Background()); err == nil {
		t.Fatal("expected RunTick to return the commit error")
	}
	if s.tick != 0 {
		t.Errorf("expected tick counter to stay at 0 after a failed commit, got %d", s.tick)
	}
}

func TestDrainCommandsRespectsMaxPerTick(t *testing.T) {
	w, grid := newTestWorld(t)
	ch := make(chan Command, 10)
	for i := 0; i < 10; i++ {
		ch <- Command{PacketID: uint32(i)}
	}
	close(ch)

	s := New(w, grid)
	s.Commands = ch
	s.MaxCommandsPerTick = 3
	drained := s.drainCommands()
	if len(drained) != 3 {
		t.Errorf("expected 3 drained commands, got %d", len(drained))
	}
}
