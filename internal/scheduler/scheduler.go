// Package scheduler runs the five-phase tick pipeline described in
// spec.md §4.6: Pre, the three color phases with barriers between them,
// and Post. It dispatches one task per cell of the active color through a
// bounded worker pool, recovers panicking handlers by quarantining that
// cell's writes for the tick, and reports phase timing and deferred-op
// counts through the metrics in this package.
package scheduler

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"

	"github.com/edwinsyarief/rgbworld"
	"github.com/edwinsyarief/rgbworld/internal/deferred"
	"github.com/edwinsyarief/rgbworld/internal/event"
	"github.com/edwinsyarief/rgbworld/internal/spatial"
)

// Command is one decoded inbound message drained by the Pre phase
// (spec.md §6 "Command ingress channel").
type Command struct {
	ConnectionHandle uint64
	PacketID         uint32
	Payload          []byte
}

// GlobalSystem runs single-threaded during Pre or Post. events is the
// same Bus the tick's color phases emit Spatial events against, so Pre
// and Post systems can publish and subscribe to Global events (spec.md
// §4.8 "Global... delivered in Pre or Post").
type GlobalSystem func(w *rgbworld.World, events *event.Bus)

// CellHandler runs once per cell of the active color. It may read any
// entity in cell and cell's Moore neighborhood via grid, but must only
// queue writes (through buf) for entities presently in cell (spec.md
// §4.6 phase 2). color is the phase presently executing, passed through
// so the handler can call event.EmitSpatial with the right
// currentColor.
type CellHandler func(w *rgbworld.World, grid *spatial.Grid, cell spatial.CellID, buf *deferred.Buffer, events *event.Bus, color spatial.Color)

// PositionLookup resolves an entity's current world position so the
// post-phase migration sweep can recompute its cell, for every op the
// color phases flagged with deferred.UpdatePosition.
type PositionLookup func(w *rgbworld.World, e rgbworld.Entity) (x, z float64, ok bool)

// Committer persists a tick's final state into the versioned store
// (package internal/store implements this against the B+tree file).
type Committer interface {
	Commit(tick uint64, w *rgbworld.World) error
}

// CommandHandler applies one drained Command against the world during
// Pre (e.g. translating a decoded packet into component writes).
type CommandHandler func(w *rgbworld.World, cmd Command)

// Scheduler owns one World and drives it through ticks.
type Scheduler struct {
	World  *rgbworld.World
	Grid   *spatial.Grid
	Events *event.Bus

	Pre  []GlobalSystem
	Post []GlobalSystem

	ColorHandler   CellHandler
	PositionOf     PositionLookup
	CommandHandler CommandHandler
	Committer      Committer

	Commands           <-chan Command
	MaxCommandsPerTick int
	Limiter            *rate.Limiter // admission control (spec.md §4.6 "Admission control")

	Concurrency   int64         // worker pool width for one color's cell tasks
	PhaseDeadline time.Duration // soft deadline; overruns are recorded, never cancelled

	// Logger records tick-level failures (commit errors, quarantined
	// cells). Defaults to a no-op logger so a Scheduler built without one
	// stays silent rather than panicking on a nil field.
	Logger zerolog.Logger

	tick uint64
}

// New creates a Scheduler with sane defaults (concurrency 1, meaning
// cell tasks still run as goroutines but serialized by a weight-1
// semaphore — callers running on real hardware should raise
// Concurrency to the worker count they want). It also builds the
// Scheduler's event.Bus and wires World's despawn hook to release that
// entity's Targeted subscriptions (spec.md §4.8 "Targeted... released
// when the entity despawns"), since package rgbworld cannot import
// internal/event itself without creating an import cycle.
func New(w *rgbworld.World, grid *spatial.Grid) *Scheduler {
	bus := event.NewBus(w)
	w.SetDespawnHook(bus.ReleaseTargeted)
	return &Scheduler{
		World:              w,
		Grid:               grid,
		Events:             bus,
		Concurrency:        1,
		MaxCommandsPerTick: 256,
		Logger:             zerolog.Nop(),
	}
}

// RunTick executes one full Pre -> ColorR -> Barrier -> ColorG -> Barrier
// -> ColorB -> Barrier -> Post -> Committed pipeline (spec.md §4.6). The
// tick counter only advances once Post's commit succeeds, so a failed
// commit leaves the scheduler retrying the same tick rather than
// silently drifting ahead of the versioned store (spec.md §7 "integrity
// failure recovery").
func (s *Scheduler) RunTick(ctx context.Context) error {
	s.runPre(ctx)

	var allBuffers []*deferred.Buffer
	for _, color := range []spatial.Color{spatial.ColorR, spatial.ColorG, spatial.ColorB} {
		buffers, err := s.runColor(ctx, color)
		if err != nil {
			return err
		}
		allBuffers = append(allBuffers, buffers...)
	}

	if err := s.runPost(ctx, allBuffers); err != nil {
		return err
	}
	s.tick++
	return nil
}

func (s *Scheduler) runPre(ctx context.Context) {
	start := time.Now()
	defer s.recordPhase("pre", start)

	s.Events.FlushPending()

	for _, cmd := range s.drainCommands() {
		if s.CommandHandler != nil {
			s.CommandHandler(s.World, cmd)
		}
	}
	for _, sys := range s.Pre {
		sys(s.World, s.Events)
	}
}

// drainCommands pulls up to MaxCommandsPerTick commands off the ingress
// channel, paced by Limiter if one is configured (spec.md §4.6 "the Pre
// phase caps the number of commands processed per tick to bound tick
// duration").
func (s *Scheduler) drainCommands() []Command {
	if s.Commands == nil {
		return nil
	}
	var drained []Command
	for len(drained) < s.MaxCommandsPerTick {
		if s.Limiter != nil && !s.Limiter.Allow() {
			break
		}
		select {
		case cmd, ok := <-s.Commands:
			if !ok {
				return drained
			}
			drained = append(drained, cmd)
		default:
			return drained
		}
	}
	return drained
}

func cellKey(id spatial.CellID) uint64 {
	return uint64(uint32(id.CX))<<32 | uint64(uint32(id.CZ))
}

// runColor fans out one task per cell of color, waits for the barrier,
// and returns each cell's deferred buffer (empty if that cell's handler
// panicked).
func (s *Scheduler) runColor(ctx context.Context, color spatial.Color) ([]*deferred.Buffer, error) {
	start := time.Now()
	defer s.recordPhase(color.String(), start)

	cells := s.Grid.CellsOfColor(color)
	if len(cells) == 0 || s.ColorHandler == nil {
		return nil, nil
	}

	sem := semaphore.NewWeighted(max64(s.Concurrency, 1))
	g, gctx := errgroup.WithContext(ctx)
	buffers := make([]*deferred.Buffer, len(cells))

	for i, cell := range cells {
		i, cell := i, cell
		g.Go(func() error {
			if err := sem.Acquire(gctx, 1); err != nil {
				return err
			}
			defer sem.Release(1)
			WorkersBusy.WithLabelValues(color.String()).Inc()
			defer WorkersBusy.WithLabelValues(color.String()).Dec()

			buffers[i] = s.runCellGuarded(cell, color)
			return nil
		})
	}

	err := g.Wait()
	if s.PhaseDeadline > 0 && time.Since(start) > s.PhaseDeadline {
		PhaseOverrunsTotal.WithLabelValues(color.String()).Inc()
	}
	return buffers, err
}

// runCellGuarded recovers a panicking handler: the cell's buffer is
// discarded (it contributes no writes this tick) and the panic is
// counted instead of propagating and aborting the other cells' tasks
// (spec.md §7 "Handler fault").
func (s *Scheduler) runCellGuarded(cell spatial.CellID, color spatial.Color) (buf *deferred.Buffer) {
	buf = deferred.NewBuffer(cellKey(cell))
	defer func() {
		if r := recover(); r != nil {
			CellPanicsTotal.Inc()
			s.Logger.Error().
				Int32("cx", cell.CX).
				Int32("cz", cell.CZ).
				Str("color", color.String()).
				Interface("panic", r).
				Msg("cell handler panicked, quarantining tick's writes for this cell")
			buf = deferred.NewBuffer(cellKey(cell))
		}
	}()
	s.ColorHandler(s.World, s.Grid, cell, buf, s.Events, color)
	return buf
}

func (s *Scheduler) runPost(ctx context.Context, buffers []*deferred.Buffer) error {
	start := time.Now()
	defer s.recordPhase("post", start)

	batch := deferred.MergeAll(buffers)
	deferred.Apply(s.World, batch)
	for _, op := range batch {
		DeferredOpsTotal.WithLabelValues(op.Kind.String()).Inc()
		if op.Kind == deferred.OpDespawn {
			s.Grid.Leave(op.Entity)
		}
	}

	if s.PositionOf != nil {
		for _, op := range batch {
			if !op.TouchesPosition {
				continue
			}
			if x, z, ok := s.PositionOf(s.World, op.Entity); ok {
				s.Grid.Migrate(op.Entity, spatial.Cell(x, z))
			}
		}
	}

	for _, sys := range s.Post {
		sys(s.World, s.Events)
	}

	if s.Committer != nil {
		commitStart := time.Now()
		if err := s.Committer.Commit(s.tick, s.World); err != nil {
			TickCommitLatency.Observe(time.Since(commitStart).Seconds())
			TickCommitFailuresTotal.Inc()
			s.Logger.Error().
				Uint64("tick", s.tick).
				Err(err).
				Msg("tick commit failed, not advancing tick counter")
			return err
		}
		TickCommitLatency.Observe(time.Since(commitStart).Seconds())
	}

	TickEntityCount.Set(float64(s.World.EntityCount()))
	TickArchetypeCount.Set(float64(s.World.ArchetypeCount()))
	return nil
}

func (s *Scheduler) recordPhase(phase string, start time.Time) {
	PhaseDuration.WithLabelValues(phase).Observe(time.Since(start).Seconds())
}

func max64(a, b int64) int64 {
	if a > b {
		return a
	}
	return b
}
