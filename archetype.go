package rgbworld

import (
	"fmt"
	"unsafe"
)

// archetypeKey is the map key identifying an archetype: its component mask
// plus its sorted pair set (spec.md §3 "Archetype": "the set of component
// IDs shared by a population of entities, plus a set of pair identities").
type archetypeKey struct {
	mask    mask256
	pairKey string
}

// archetype is columnar storage for every live entity sharing exactly one
// component mask and one pair set (spec.md §4.2). Each column is a
// contiguous byte slice; row i across every column describes one entity,
// and entities[i] reverse-maps that row to its Entity handle.
type archetype struct {
	mask          mask256
	pairs         []PairID // sorted; parallel to pairData
	componentIDs  []ComponentID
	componentData [][]byte
	pairData      [][]byte
	entities      []Entity
	slots         [maxComponentTypes]int // component ID -> column index, -1 if absent
	pairSlots     map[PairID]int
}

func newArchetype(mask mask256, pairs []PairID, initialCap int) *archetype {
	ids := mask.ids()
	a := &archetype{
		mask:          mask,
		pairs:         pairs,
		componentIDs:  ids,
		componentData: make([][]byte, len(ids)),
		entities:      make([]Entity, 0, initialCap),
	}
	for i := range a.slots {
		a.slots[i] = -1
	}
	for i, id := range ids {
		a.slots[id] = i
		size := int(componentSize(id))
		a.componentData[i] = make([]byte, 0, initialCap*max(size, 1))
	}
	if len(pairs) > 0 {
		a.pairSlots = make(map[PairID]int, len(pairs))
		a.pairData = make([][]byte, len(pairs))
		for i, p := range pairs {
			a.pairSlots[p] = i
			size := int(componentSize(p.Relation))
			a.pairData[i] = make([]byte, 0, initialCap*max(size, 1))
		}
	}
	return a
}

func (a *archetype) key() archetypeKey {
	return archetypeKey{mask: a.mask, pairKey: pairSetKey(a.pairs)}
}

func (a *archetype) len() int { return len(a.entities) }

// getSlot returns the column index for a component ID, or -1 if this
// archetype does not carry that component.
func (a *archetype) getSlot(id ComponentID) int {
	return a.slots[id]
}

func (a *archetype) getPairSlot(p PairID) (int, bool) {
	if a.pairSlots == nil {
		return -1, false
	}
	i, ok := a.pairSlots[p]
	return i, ok
}

// pairsWithRelation returns the archetype's pairs whose relation is rel,
// against any target (used by wildcard relation iteration).
func (a *archetype) pairsWithRelation(rel RelationID) []PairID {
	var out []PairID
	for _, p := range a.pairs {
		if p.Relation == rel {
			out = append(out, p)
		}
	}
	return out
}

// reserve appends a new uninitialized row and returns its index (spec.md
// §4.2 `reserve`).
func (a *archetype) reserve(e Entity) int {
	row := len(a.entities)
	a.entities = extendSlice(a.entities, 1)
	a.entities[row] = e
	for i, id := range a.componentIDs {
		size := int(componentSize(id))
		a.componentData[i] = extendByteSlice(a.componentData[i], size)
	}
	for i, p := range a.pairs {
		size := int(componentSize(p.Relation))
		a.pairData[i] = extendByteSlice(a.pairData[i], size)
	}
	return row
}

// getBytes returns the raw bytes for component id at row. It panics if the
// archetype lacks that column — callers must check getSlot first, mirroring
// spec.md §4.2 "Fails if the archetype lacks that column".
func (a *archetype) getBytes(row int, id ComponentID) []byte {
	slot := a.slots[id]
	if slot < 0 {
		panic(fmt.Sprintf("rgbworld: archetype has no column for component %d", id))
	}
	size := int(componentSize(id))
	return a.componentData[slot][row*size : (row+1)*size]
}

func (a *archetype) getPairBytes(row int, p PairID) []byte {
	slot, ok := a.pairSlots[p]
	if !ok {
		panic(fmt.Sprintf("rgbworld: archetype has no column for pair %+v", p))
	}
	size := int(componentSize(p.Relation))
	return a.pairData[slot][row*size : (row+1)*size]
}

// writeBytes overwrites component id's bytes at row with src (spec.md
// §4.2 `write`).
func (a *archetype) writeBytes(row int, id ComponentID, src []byte) {
	copy(a.getBytes(row, id), src)
}

// dropOpaqueRow invokes DropFunc (if registered) for every opaque column
// still holding a value at row, before that row's storage is reused by
// swapRemove. World.Despawn, which discards a row's components outright,
// calls this first (moveRow instead runs dropOpaqueColumn for just the
// columns the destination archetype doesn't carry); swapRemove itself never drops,
// since it is also used to relocate a row whose components are still
// alive elsewhere (spec.md §4.1's clone/drop vtable).
func (a *archetype) dropOpaqueRow(row int) {
	for i, id := range a.componentIDs {
		dropOpaqueColumn(id, a.componentData[i], row)
	}
}

// dropOpaqueColumn invokes id's DropFunc on the bytes at row, for opaque
// components that registered one. No-op for POD components, zero-sized
// components, or opaque components with no DropFunc.
func dropOpaqueColumn(id ComponentID, col []byte, row int) {
	size := int(componentSize(id))
	if size == 0 {
		return
	}
	desc := DescriptorOf(id)
	if desc.Flavor != Opaque || desc.DropFunc == nil {
		return
	}
	desc.DropFunc(unsafe.Pointer(&col[row*size]))
}

// cloneOrCopyColumn populates dstCol's row from srcCol's row. Opaque
// components with a registered CloneFunc use it to produce an
// independent copy, then release the source slot via DropFunc (the
// source row is about to be discarded by the caller's swapRemove, and
// the clone already gave dst its own copy). POD components, and opaque
// components with no CloneFunc, fall back to a plain byte copy — the
// same shallow-copy relocation this archetype always did.
func cloneOrCopyColumn(id ComponentID, srcCol []byte, srcRow int, dstCol []byte, dstRow int) {
	size := int(componentSize(id))
	if size == 0 {
		return
	}
	desc := DescriptorOf(id)
	if desc.Flavor == Opaque && desc.CloneFunc != nil {
		desc.CloneFunc(unsafe.Pointer(&dstCol[dstRow*size]), unsafe.Pointer(&srcCol[srcRow*size]))
		if desc.DropFunc != nil {
			desc.DropFunc(unsafe.Pointer(&srcCol[srcRow*size]))
		}
		return
	}
	copy(dstCol[dstRow*size:(dstRow+1)*size], srcCol[srcRow*size:(srcRow+1)*size])
}

// swapRemove removes row using the swap-and-pop method: the last row is
// moved into the removed slot so storage stays dense (spec.md §4.2 "O(1)
// swap-remove"). It returns the Entity that was moved into `row` (zero
// Entity if `row` was already last), so the caller can fix up that
// entity's index in the world's entity table.
func (a *archetype) swapRemove(row int) (moved Entity, ok bool) {
	last := len(a.entities) - 1
	if last < 0 || row > last {
		return Entity{}, false
	}
	movedEntity := a.entities[last]
	a.entities[row] = movedEntity
	a.entities = a.entities[:last]

	for i, id := range a.componentIDs {
		size := int(componentSize(id))
		col := a.componentData[i]
		copy(col[row*size:(row+1)*size], col[last*size:(last+1)*size])
		a.componentData[i] = col[:last*size]
	}
	for i, p := range a.pairs {
		size := int(componentSize(p.Relation))
		col := a.pairData[i]
		copy(col[row*size:(row+1)*size], col[last*size:(last+1)*size])
		a.pairData[i] = col[:last*size]
	}
	if row == last {
		return Entity{}, false
	}
	return movedEntity, true
}
