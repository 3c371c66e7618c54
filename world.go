package rgbworld

import "fmt"

const defaultInitialCapacity = 1024

// WorldOptions configures a new World.
type WorldOptions struct {
	// InitialCapacity is the number of rows preallocated per archetype.
	InitialCapacity int
}

// copyOp is one component-column copy performed while moving a row between
// archetypes during an add/remove-component transition.
type copyOp struct {
	fromSlot, toSlot int
	size             int
}

// transition caches the target archetype and precomputed per-column copy
// plan for one (source archetype, changed component) edge, so repeated
// Insert/Remove of the same component on entities of the same archetype
// never recomputes the archetype graph (spec.md §4.2 "archetype graph is
// built lazily: edges... are memoized pointers between archetypes").
type transition struct {
	target *archetype
	copies []copyOp
	// dropped lists components the source archetype carries that the
	// target does not — their storage is discarded (not relocated) when
	// the row moves, so opaque ones among them must run DropFunc first.
	dropped []ComponentID
}

// World owns entity allocation, the archetype graph, pairs, the named
// registry, and the base event bus (spec.md §4.3). It is safe to read
// concurrently (spec.md §5 "during a color phase the World is logically
// immutable") but mutating methods must only be called from the
// single-threaded Pre/Post phases or before the scheduler starts — there
// is deliberately no internal locking (spec.md §5 "No locks in the hot
// path").
type World struct {
	nextEntityID  uint32
	freeEntityIDs []uint32
	entities      []entityMeta

	archetypes     map[archetypeKey]*archetype
	archetypesList []*archetype
	// archetypeVersion increments every time the archetype set changes, so
	// queries/filters that cache a matching-archetype list know to refresh.
	archetypeVersion uint64

	addEdges    map[*archetype]map[ComponentID]transition
	removeEdges map[*archetype]map[ComponentID]transition

	named map[string]Entity

	bus *EventBus

	initialCapacity int

	// dirty and despawned track, per entity slot, which entities a
	// mutating call has touched since the last DrainDirty, so a
	// versioned store (package internal/store) can commit only the
	// keys a tick actually changed instead of re-snapshotting the whole
	// World every commit (spec.md §8 "Copy-on-write sharing").
	dirty     map[uint32]struct{}
	despawned map[uint32]struct{}

	// despawnHook, if set, runs synchronously inside Despawn right after
	// e is confirmed alive, before its slot is recycled. The scheduler
	// wires this to its event bus's ReleaseTargeted so a despawned
	// entity's Targeted-event subscriptions can't outlive it (spec.md
	// §4.3 "despawn... invalidates observers subscribed on the entity").
	// World has no dependency on the event package itself — the
	// indirection is a plain callback, not an import.
	despawnHook func(Entity)
}

// SetDespawnHook installs fn to run synchronously at the start of every
// Despawn call, after e is confirmed alive. Passing nil clears it.
func (w *World) SetDespawnHook(fn func(Entity)) {
	w.despawnHook = fn
}

func (w *World) markDirty(e Entity) {
	w.dirty[e.ID] = struct{}{}
}

// DrainDirty returns every entity touched (component added, removed, or
// overwritten) since the last call, split into entities still alive
// (touched) and entities despawned in the interim (despawnedSlots), then
// resets both internal sets. An entity dirtied and despawned within the
// same window is reported only in despawnedSlots. Used by the versioned
// store to commit exactly the keys a tick changed (spec.md §8
// "Copy-on-write sharing: ... the number of newly-written pages is
// O(M·height) and strictly less than a full tree copy").
func (w *World) DrainDirty() (touched []Entity, despawnedSlots []uint32) {
	for id := range w.dirty {
		if _, gone := w.despawned[id]; gone {
			continue
		}
		if int(id) >= len(w.entities) {
			continue
		}
		if meta := w.entities[id]; meta.archetype != nil {
			touched = append(touched, Entity{ID: id, Version: meta.version})
		}
	}
	despawnedSlots = make([]uint32, 0, len(w.despawned))
	for id := range w.despawned {
		despawnedSlots = append(despawnedSlots, id)
	}
	w.dirty = make(map[uint32]struct{})
	w.despawned = make(map[uint32]struct{})
	return touched, despawnedSlots
}

// NewWorld creates a World with default capacity and spawns the WORLD
// sentinel entity at slot 0 (spec.md §3 "A distinguished handle WORLD
// addresses process-global singletons").
func NewWorld() *World {
	return NewWorldWithOptions(WorldOptions{})
}

// NewWorldWithOptions creates a World with the given options.
func NewWorldWithOptions(opts WorldOptions) *World {
	capacity := defaultInitialCapacity
	if opts.InitialCapacity > 0 {
		capacity = opts.InitialCapacity
	}
	w := &World{
		entities:        make([]entityMeta, 0, capacity),
		archetypes:      make(map[archetypeKey]*archetype, 32),
		archetypesList:  make([]*archetype, 0, 64),
		freeEntityIDs:   make([]uint32, 0, 64),
		addEdges:        make(map[*archetype]map[ComponentID]transition),
		removeEdges:     make(map[*archetype]map[ComponentID]transition),
		named:           make(map[string]Entity, 16),
		bus:             newEventBus(),
		initialCapacity: capacity,
		dirty:           make(map[uint32]struct{}),
		despawned:       make(map[uint32]struct{}),
	}
	root := w.getOrCreateArchetype(mask256{}, nil)
	sentinel := w.allocEntity(root)
	if sentinel != WORLD {
		panic(fmt.Sprintf("rgbworld: WORLD sentinel allocated as %v, expected %v", sentinel, WORLD))
	}
	return w
}

// Events returns the World's base publish/subscribe bus, used for Global
// observer dispatch (spec.md §4.8). Spatial/Targeted routing builds on top
// of this in package internal/event.
func (w *World) Events() *EventBus { return w.bus }

func (w *World) getOrCreateArchetype(mask mask256, pairs []PairID) *archetype {
	key := archetypeKey{mask: mask, pairKey: pairSetKey(pairs)}
	if a, ok := w.archetypes[key]; ok {
		return a
	}
	a := newArchetype(mask, pairs, w.initialCapacity)
	w.archetypes[key] = a
	w.archetypesList = append(w.archetypesList, a)
	w.archetypeVersion++
	return a
}

func (w *World) allocEntity(arch *archetype) Entity {
	var id uint32
	if len(w.freeEntityIDs) > 0 {
		id = w.freeEntityIDs[len(w.freeEntityIDs)-1]
		w.freeEntityIDs = w.freeEntityIDs[:len(w.freeEntityIDs)-1]
	} else {
		id = w.nextEntityID
		w.nextEntityID++
	}
	version := uint32(1)
	if int(id) < len(w.entities) {
		version = w.entities[id].version + 1
		if version == 0 {
			version = 1
		}
	}
	e := Entity{ID: id, Version: version}
	row := arch.reserve(e)
	if int(id) >= len(w.entities) {
		w.entities = extendSlice(w.entities, int(id)-len(w.entities)+1)
	}
	w.entities[id] = entityMeta{archetype: arch, row: row, version: version}
	return e
}

// SpawnEmpty allocates a new entity with no components (spec.md §4.3
// `spawn`, zero-component bundle case).
func (w *World) SpawnEmpty() Entity {
	root := w.getOrCreateArchetype(mask256{}, nil)
	return w.allocEntity(root)
}

// IsAlive reports whether e still refers to a live entity — its slot is
// allocated and its generation matches.
func (w *World) IsAlive(e Entity) bool {
	if int(e.ID) >= len(w.entities) {
		return false
	}
	meta := w.entities[e.ID]
	return meta.archetype != nil && meta.version == e.Version
}

func (w *World) metaOf(e Entity) (entityMeta, bool) {
	if !w.IsAlive(e) {
		return entityMeta{}, false
	}
	return w.entities[e.ID], true
}

// Despawn removes e immediately: row is swap-removed from its archetype,
// its generation is bumped so dangling handles become invalid, and the
// slot is returned to the free list (spec.md §4.3 `despawn`; §3
// "Lifecycles"). Despawning WORLD or an already-dead entity is a no-op.
func (w *World) Despawn(e Entity) {
	if e == WORLD || !w.IsAlive(e) {
		return
	}
	if w.despawnHook != nil {
		w.despawnHook(e)
	}
	meta := w.entities[e.ID]
	meta.archetype.dropOpaqueRow(meta.row)
	moved, ok := meta.archetype.swapRemove(meta.row)
	if ok {
		m := w.entities[moved.ID]
		m.row = meta.row
		w.entities[moved.ID] = m
	}
	// Keep the slot's last generation so allocEntity bumps past it on reuse.
	w.entities[e.ID] = entityMeta{version: e.Version}
	w.freeEntityIDs = append(w.freeEntityIDs, e.ID)
	w.despawned[e.ID] = struct{}{}
}

// transitionAdd returns (creating, if necessary, and caching) the
// archetype reached by adding component id to arch's mask, plus the
// column-copy plan to move an existing row there.
func (w *World) transitionAdd(arch *archetype, id ComponentID) transition {
	byComp, ok := w.addEdges[arch]
	if !ok {
		byComp = make(map[ComponentID]transition)
		w.addEdges[arch] = byComp
	}
	if t, ok := byComp[id]; ok {
		return t
	}
	newMask := arch.mask.set(id)
	target := w.getOrCreateArchetype(newMask, arch.pairs)
	t := transition{target: target, copies: buildCopyPlan(arch, target), dropped: buildDropPlan(arch, target)}
	byComp[id] = t
	return t
}

func (w *World) transitionRemove(arch *archetype, id ComponentID) transition {
	byComp, ok := w.removeEdges[arch]
	if !ok {
		byComp = make(map[ComponentID]transition)
		w.removeEdges[arch] = byComp
	}
	if t, ok := byComp[id]; ok {
		return t
	}
	newMask := arch.mask.unset(id)
	target := w.getOrCreateArchetype(newMask, arch.pairs)
	t := transition{target: target, copies: buildCopyPlan(arch, target), dropped: buildDropPlan(arch, target)}
	byComp[id] = t
	return t
}

// buildCopyPlan computes, once, which columns are shared between src and
// dst so a row move only copies the intersecting components (spec.md
// §4.2 `move_row`: "copies intersecting columns, initializes new ones").
func buildCopyPlan(src, dst *archetype) []copyOp {
	var ops []copyOp
	for _, id := range dst.componentIDs {
		srcSlot := src.getSlot(id)
		if srcSlot < 0 {
			continue
		}
		ops = append(ops, copyOp{fromSlot: srcSlot, toSlot: dst.getSlot(id), size: int(componentSize(id))})
	}
	return ops
}

// buildDropPlan lists the components src carries that dst does not —
// their storage is discarded, not relocated, when a row moves from src
// to dst, so moveRow must run DropFunc on any opaque ones before the
// source row is reclaimed by swapRemove.
func buildDropPlan(src, dst *archetype) []ComponentID {
	var dropped []ComponentID
	for _, id := range src.componentIDs {
		if dst.getSlot(id) < 0 {
			dropped = append(dropped, id)
		}
	}
	return dropped
}

// moveRow relocates the entity at src row `row` into dst using the given
// copy plan, swap-removing it from src. It returns the new row in dst.
func (w *World) moveRow(e Entity, src *archetype, row int, dst *archetype, copies []copyOp, dropped []ComponentID) int {
	newRow := dst.reserve(e)
	for _, op := range copies {
		srcCol := src.componentData[op.fromSlot]
		dstCol := dst.componentData[op.toSlot]
		cloneOrCopyColumn(dst.componentIDs[op.toSlot], srcCol, row, dstCol, newRow)
	}
	// Pairs are identical between src and dst for plain component
	// transitions (pair identity doesn't change), so copy them over too.
	for i, p := range dst.pairs {
		srcSlot, ok := src.getPairSlot(p)
		if !ok {
			continue
		}
		size := int(componentSize(p.Relation))
		srcCol := src.pairData[srcSlot]
		dstCol := dst.pairData[i]
		copy(dstCol[newRow*size:(newRow+1)*size], srcCol[row*size:(row+1)*size])
	}
	for _, id := range dropped {
		dropOpaqueColumn(id, src.componentData[src.getSlot(id)], row)
	}
	moved, ok := src.swapRemove(row)
	if ok {
		m := w.entities[moved.ID]
		m.row = row
		w.entities[moved.ID] = m
	}
	return newRow
}

// insertRaw adds component id (writing value bytes) to e, migrating it to
// the target archetype if it doesn't already have that column. Idempotent:
// if e already carries id, this overwrites in place (spec.md §4.5
// "Insert of a duplicate component on a live entity is idempotent").
func (w *World) insertRaw(e Entity, id ComponentID, value []byte) {
	meta, ok := w.metaOf(e)
	if !ok {
		return
	}
	w.markDirty(e)
	arch := meta.archetype
	if slot := arch.getSlot(id); slot >= 0 {
		arch.writeBytes(meta.row, id, value)
		return
	}
	t := w.transitionAdd(arch, id)
	newRow := w.moveRow(e, arch, meta.row, t.target, t.copies, t.dropped)
	m := w.entities[e.ID]
	m.archetype = t.target
	m.row = newRow
	w.entities[e.ID] = m
	t.target.writeBytes(newRow, id, value)
}

// removeRaw removes component id from e if present, migrating its row.
func (w *World) removeRaw(e Entity, id ComponentID) {
	meta, ok := w.metaOf(e)
	if !ok {
		return
	}
	arch := meta.archetype
	if arch.getSlot(id) < 0 {
		return
	}
	w.markDirty(e)
	t := w.transitionRemove(arch, id)
	newRow := w.moveRow(e, arch, meta.row, t.target, t.copies, t.dropped)
	m := w.entities[e.ID]
	m.archetype = t.target
	m.row = newRow
	w.entities[e.ID] = m
}

// Named returns the entity registered under name, if any (spec.md §4.3).
func (w *World) Named(name string) (Entity, bool) {
	e, ok := w.named[name]
	if !ok || !w.IsAlive(e) {
		return Entity{}, false
	}
	return e, ok
}

// SetNamed interns e under name, overwriting any previous binding.
func (w *World) SetNamed(name string, e Entity) {
	w.named[name] = e
}

// UnsetNamed removes name's binding, if any.
func (w *World) UnsetNamed(name string) {
	delete(w.named, name)
}

// ArchetypeCount reports how many distinct archetypes currently exist
// (used by the Observable metrics surface, spec.md §6).
func (w *World) ArchetypeCount() int { return len(w.archetypesList) }

// EntityCount reports how many live entities exist across all archetypes.
func (w *World) EntityCount() int {
	n := 0
	for _, a := range w.archetypesList {
		n += a.len()
	}
	return n
}
