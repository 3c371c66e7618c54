// Package deferred implements the per-cell thread-local mutation queues
// color-phase handlers write into instead of touching the World directly,
// and the deterministic merge/apply step the Post phase runs them through
// (spec.md §4.5, §3 "Deferred Buffer").
package deferred

import (
	"sort"

	"github.com/edwinsyarief/rgbworld"
)

// OpKind tags one deferred mutation. The declaration order IS the
// tie-break rank spec.md §4.5 specifies: "Despawn < Remove < Insert <
// Update < Spawn < Emit".
type OpKind uint8

const (
	OpDespawn OpKind = iota
	OpRemove
	OpInsert
	OpUpdate
	OpSpawn
	OpEmit
)

func (k OpKind) String() string {
	switch k {
	case OpDespawn:
		return "despawn"
	case OpRemove:
		return "remove"
	case OpInsert:
		return "insert"
	case OpUpdate:
		return "update"
	case OpSpawn:
		return "spawn"
	case OpEmit:
		return "emit"
	default:
		return "unknown"
	}
}

// Op is one queued mutation. Apply performs the actual World mutation; it
// is built with the mutated entity (or event target) already captured, so
// Post can run every queued Op through the same uniform interface
// regardless of kind.
//
// EntitySlot is the sort key's primary component for every kind except
// Spawn (which has no entity yet — see MergeAll). OriginCell records which
// cell produced the op, used as the insertion-order tiebreak and as the
// sort key for Spawn ops themselves (spec.md §4.5 "an entity is allocated
// from the free list in insertion-sort order of origin-cell IDs").
type Op struct {
	Kind       OpKind
	Entity     rgbworld.Entity // zero for Spawn ops, whose entity doesn't exist until Apply runs
	EntitySlot uint32
	OriginCell uint64
	seq        uint64 // push-order tiebreak within one cell's buffer
	Apply      func(w *rgbworld.World)
	// TouchesPosition marks an Update that may have moved the entity to a
	// different spatial cell, so the scheduler's post-phase migration sweep
	// (spec.md §4.6 "Migration sweep... a dirty bit is maintained by the
	// Update path") knows to re-evaluate this entity's cell membership.
	TouchesPosition bool
}

// Buffer is one cell's thread-local op queue. A Buffer is only ever
// written by the single task that owns that cell for the current color
// phase, so Push needs no synchronization (spec.md §4.5 "thread-local,
// lock-free").
type Buffer struct {
	CellID uint64
	ops    []Op
}

// NewBuffer creates an empty buffer for the given origin cell.
func NewBuffer(cellID uint64) *Buffer {
	return &Buffer{CellID: cellID}
}

// Push appends op to the buffer, stamping it with this buffer's cell ID
// and the next push-order sequence number.
func (b *Buffer) Push(kind OpKind, e rgbworld.Entity, apply func(w *rgbworld.World)) {
	b.enqueue(Op{Kind: kind, Entity: e, EntitySlot: e.ID, Apply: apply})
}

func (b *Buffer) enqueue(op Op) {
	op.OriginCell = b.CellID
	op.seq = uint64(len(b.ops))
	b.ops = append(b.ops, op)
}

// Despawn queues e's despawn.
func (b *Buffer) Despawn(e rgbworld.Entity) {
	b.Push(OpDespawn, e, func(w *rgbworld.World) { w.Despawn(e) })
}

// Update queues overwriting component T on e (spec.md's `update<T>`,
// §4.3). An Update against a dead entity is dropped at apply time with no
// effect — the World's own Set already no-ops on a dead entity, satisfying
// §4.5's "an Update to a dead entity is dropped" failure mode.
func Update[T any](b *Buffer, e rgbworld.Entity, value T) {
	b.Push(OpUpdate, e, func(w *rgbworld.World) { rgbworld.Set(w, e, value) })
}

// UpdatePosition queues overwriting e's Position-shaped component T,
// additionally flagging the op so the scheduler's post-phase migration
// sweep re-evaluates e's cell membership (spec.md §4.6).
func UpdatePosition[T any](b *Buffer, e rgbworld.Entity, value T) {
	b.enqueue(Op{
		Kind:            OpUpdate,
		Entity:          e,
		EntitySlot:      e.ID,
		TouchesPosition: true,
		Apply:           func(w *rgbworld.World) { rgbworld.Set(w, e, value) },
	})
}

// Insert queues adding component T to e (idempotent: last writer by
// origin-cell order wins, per spec.md §4.5).
func Insert[T any](b *Buffer, e rgbworld.Entity, value T) {
	b.Push(OpInsert, e, func(w *rgbworld.World) { rgbworld.Set(w, e, value) })
}

// Remove queues removing component T from e.
func Remove[T any](b *Buffer, e rgbworld.Entity) {
	b.Push(OpRemove, e, func(w *rgbworld.World) { rgbworld.Remove[T](w, e) })
}

// Spawn queues creating a brand-new entity. build runs against the freshly
// spawned entity in Post (spec.md §4.3: spawns issued during a parallel
// phase are deferred, so no real Entity exists until Post).
func (b *Buffer) Spawn(build func(w *rgbworld.World, e rgbworld.Entity)) {
	b.Push(OpSpawn, rgbworld.Entity{}, func(w *rgbworld.World) {
		e := w.SpawnEmpty()
		build(w, e)
	})
}

// EmitEvent queues publish against target, to be delivered in Post (or
// re-queued — see package internal/event for the color-ordering rule).
func (b *Buffer) EmitEvent(target rgbworld.Entity, publish func(w *rgbworld.World)) {
	b.Push(OpEmit, target, publish)
}

// MergeAll concatenates every cell buffer (in ascending cell-ID order, so
// the stable sort below has a deterministic starting order) and
// stable-sorts by (entity_slot, operation_kind_rank), per spec.md §4.5.
// Spawn ops have no entity slot yet, so they sort by origin cell instead,
// after every addressed op (Spawn's rank already places them after
// Despawn/Remove/Insert/Update).
func MergeAll(buffers []*Buffer) []Op {
	sorted := make([]*Buffer, len(buffers))
	copy(sorted, buffers)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].CellID < sorted[j].CellID })

	var all []Op
	for _, b := range sorted {
		all = append(all, b.ops...)
	}

	sort.SliceStable(all, func(i, j int) bool {
		a, c := all[i], all[j]
		if a.Kind == OpSpawn && c.Kind == OpSpawn {
			if a.OriginCell != c.OriginCell {
				return a.OriginCell < c.OriginCell
			}
			return a.seq < c.seq
		}
		if a.Kind == OpSpawn != (c.Kind == OpSpawn) {
			// Spawns are ordered amongst themselves by origin cell, but
			// still fall after every addressed op by kind rank below.
			return a.Kind < c.Kind
		}
		if a.EntitySlot != c.EntitySlot {
			return a.EntitySlot < c.EntitySlot
		}
		return a.Kind < c.Kind
	})
	return all
}

// Apply runs every op in batch against w, in order.
func Apply(w *rgbworld.World, batch []Op) {
	for _, op := range batch {
		op.Apply(w)
	}
}
