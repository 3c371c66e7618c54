package rgbworld

import (
	"testing"
	"unsafe"
)

type cPosition struct{ X, Y float32 }
type cVelocity struct{ DX, DY float32 }

func TestRegisterComponentIdempotent(t *testing.T) {
	ResetRegistry()
	id1 := RegisterComponent[cPosition]()
	id2 := RegisterComponent[cPosition]()
	if id1 != id2 {
		t.Errorf("expected same ID on re-registration, got %d and %d", id1, id2)
	}
	id3 := RegisterComponent[cVelocity]()
	if id3 == id1 {
		t.Errorf("expected distinct IDs for distinct types, got %d for both", id1)
	}
}

func TestTryComponentIDForUnregistered(t *testing.T) {
	ResetRegistry()
	type neverRegistered struct{ N int }
	if _, ok := TryComponentIDFor[neverRegistered](); ok {
		t.Error("expected TryComponentIDFor to report not-registered for a fresh type")
	}
}

func TestComponentIDForPanicsWhenUnregistered(t *testing.T) {
	ResetRegistry()
	defer func() {
		if recover() == nil {
			t.Error("expected ComponentIDFor to panic for an unregistered type")
		}
	}()
	type neverRegistered struct{ N int }
	ComponentIDFor[neverRegistered]()
}

func TestDescriptorOfReflectsSize(t *testing.T) {
	ResetRegistry()
	id := RegisterComponent[cPosition]()
	desc := DescriptorOf(id)
	if desc.Size != 8 {
		t.Errorf("expected size 8 for two float32 fields, got %d", desc.Size)
	}
	if desc.Flavor != POD {
		t.Errorf("expected POD flavor, got %v", desc.Flavor)
	}
}

func TestRegisterOpaqueComponent(t *testing.T) {
	ResetRegistry()
	type handle struct{ ch chan int }
	id := RegisterOpaqueComponent[handle](nil, nil)
	if !IsOpaque(id) {
		t.Error("expected component registered via RegisterOpaqueComponent to be opaque")
	}
}

func TestDropFuncRunsOnDespawn(t *testing.T) {
	ResetRegistry()
	type handle struct{ n int }
	dropped := 0
	id := RegisterOpaqueComponent[handle](nil, func(p unsafe.Pointer) { dropped++ })

	w := NewWorld()
	e := w.SpawnEmpty()
	w.insertRaw(e, id, make([]byte, componentSize(id)))

	w.Despawn(e)
	if dropped != 1 {
		t.Errorf("expected DropFunc invoked once on despawn, got %d", dropped)
	}
}

func TestDropFuncRunsOnRemove(t *testing.T) {
	ResetRegistry()
	type handle struct{ n int }
	dropped := 0
	id := RegisterOpaqueComponent[handle](nil, func(p unsafe.Pointer) { dropped++ })
	other := RegisterComponent[cPosition]()

	w := NewWorld()
	e := w.SpawnEmpty()
	w.insertRaw(e, id, make([]byte, componentSize(id)))
	w.insertRaw(e, other, make([]byte, componentSize(other)))

	w.removeRaw(e, id)
	if dropped != 1 {
		t.Errorf("expected DropFunc invoked once when the opaque component is removed, got %d", dropped)
	}
}

func TestCloneFuncRunsOnArchetypeMigration(t *testing.T) {
	ResetRegistry()
	type handle struct{ n int }
	cloned, droppedOriginal := 0, 0
	id := RegisterOpaqueComponent[handle](
		func(dst, src unsafe.Pointer) {
			cloned++
			*(*handle)(dst) = *(*handle)(src)
		},
		func(p unsafe.Pointer) { droppedOriginal++ },
	)
	other := RegisterComponent[cPosition]()

	w := NewWorld()
	e := w.SpawnEmpty()
	w.insertRaw(e, id, make([]byte, componentSize(id)))
	// Adding `other` migrates e to a new archetype, relocating the opaque
	// column via CloneFunc rather than a raw byte copy.
	w.insertRaw(e, other, make([]byte, componentSize(other)))

	if cloned != 1 {
		t.Errorf("expected CloneFunc invoked once during the archetype move, got %d", cloned)
	}
	if droppedOriginal != 1 {
		t.Errorf("expected the pre-clone source slot released via DropFunc, got %d", droppedOriginal)
	}
}
