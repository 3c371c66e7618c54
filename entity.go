// Package rgbworld implements the archetype-based, spatially-partitioned
// entity-component runtime described in spec.md: component registry,
// archetype storage, the world (entity allocation, archetype graph, pairs,
// observers), and the generic Query/Builder helpers used by systems.
//
// The parallel tick scheduler, deferred mutation buffer, spatial grid,
// versioned store, event bus and plugin host live under internal/, since
// they depend on this package but are independently testable.
package rgbworld

// Entity is an opaque 64-bit handle split into a 32-bit slot index and a
// 32-bit generation (spec.md §3). Despawning an entity bumps its
// generation, which invalidates every handle copy still referencing the
// old generation.
type Entity struct {
	ID      uint32
	Version uint32
}

// IsZero reports whether e is the zero-value Entity (never a valid handle,
// since real entities start at Version 1).
func (e Entity) IsZero() bool {
	return e == Entity{}
}

// WORLD is the sentinel entity that addresses process-global singletons
// (spec.md §3, §9 "Global singletons"). It occupies slot 0 and is spawned
// automatically by NewWorld; callers never despawn it.
var WORLD = Entity{ID: 0, Version: 1}

// entityMeta records where a live entity's row currently lives.
type entityMeta struct {
	archetype *archetype
	row       int
	version   uint32
}
