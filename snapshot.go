package rgbworld

// ForEachComponentOfEntity invokes fn once per live, non-opaque component
// currently on e, in archetype column order, and reports whether e is
// alive. Opaque components are skipped — they wrap external handles and
// are never persisted (spec.md §3/§4.1 "opaque components... never
// written into the versioned store"). The versioned store (package
// internal/store) uses this, together with World.DrainDirty, to snapshot
// exactly the entities a tick touched instead of walking every archetype
// every commit (spec.md §8 "Copy-on-write sharing").
func (w *World) ForEachComponentOfEntity(e Entity, fn func(id ComponentID, data []byte)) bool {
	meta, ok := w.metaOf(e)
	if !ok {
		return false
	}
	a := meta.archetype
	for i, id := range a.componentIDs {
		if IsOpaque(id) {
			continue
		}
		size := int(componentSize(id))
		if size == 0 {
			continue
		}
		col := a.componentData[i]
		fn(id, col[meta.row*size:(meta.row+1)*size])
	}
	return true
}
