package rgbworld

import "testing"

type snapPosition struct{ X, Z float64 }

func TestForEachComponentOfEntitySkipsOpaqueAndDeadEntities(t *testing.T) {
	ResetRegistry()
	w := NewWorld()
	type handle struct{ fd int }
	opaqueID := RegisterOpaqueComponent[handle](nil, nil)

	e := w.SpawnEmpty()
	Set(w, e, snapPosition{X: 1, Z: 2})
	w.insertRaw(e, opaqueID, make([]byte, componentSize(opaqueID)))

	var seen []ComponentID
	ok := w.ForEachComponentOfEntity(e, func(id ComponentID, data []byte) {
		seen = append(seen, id)
	})
	if !ok {
		t.Fatal("expected ForEachComponentOfEntity to report the entity alive")
	}
	for _, id := range seen {
		if id == opaqueID {
			t.Error("expected the opaque component to be skipped")
		}
	}
	if len(seen) != 1 {
		t.Errorf("expected exactly one non-opaque component visited, got %d", len(seen))
	}

	w.Despawn(e)
	if ok := w.ForEachComponentOfEntity(e, func(ComponentID, []byte) {}); ok {
		t.Error("expected ForEachComponentOfEntity to report false for a dead entity")
	}
}
