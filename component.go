package rgbworld

import (
	"fmt"
	"reflect"
	"sync"
	"unsafe"
)

const (
	bitsPerWord       = 64
	maskWords         = 4
	maxComponentTypes = maskWords * bitsPerWord
)

// ComponentID is a dense, process-stable identifier assigned on first
// registration (spec.md §4.1).
type ComponentID uint32

// Flavor distinguishes components that may be versioned (POD) from those
// that wrap external handles and are excluded from the versioned store
// (spec.md §3 "opaque").
type Flavor uint8

const (
	// POD components are trivially copyable and free of heap references.
	POD Flavor = iota
	// Opaque components may hold channels, file descriptors, or other
	// handles; they are never written into the versioned store.
	Opaque
)

func (f Flavor) String() string {
	if f == Opaque {
		return "opaque"
	}
	return "pod"
}

// Descriptor is the registry's vtable entry for one component type
// (spec.md §4.1: stable ID, size, alignment, clone, drop, flavor).
type Descriptor struct {
	ID        ComponentID
	Name      string
	Type      reflect.Type
	Size      uintptr
	Align     uintptr
	Flavor    Flavor
	CloneFunc func(dst, src unsafe.Pointer)
	DropFunc  func(p unsafe.Pointer)
}

// registry assigns dense IDs to component types and stores their
// descriptors. It is process-global because ComponentID values must be
// comparable across Worlds — e.g. a plugin dylib registers a type once and
// every World in the process reuses the same ID.
type registry struct {
	mu     sync.RWMutex
	byType map[reflect.Type]ComponentID
	byName map[string]ComponentID
	descs  [maxComponentTypes]Descriptor
	nextID ComponentID
}

var globalRegistry = newRegistry()

func newRegistry() *registry {
	return &registry{
		byType: make(map[reflect.Type]ComponentID, maxComponentTypes),
		byName: make(map[string]ComponentID, maxComponentTypes),
	}
}

// ResetRegistry clears the process-global component registry. Intended for
// tests; a live World should never call this after spawning entities.
func ResetRegistry() {
	globalRegistry = newRegistry()
}

// RegisterComponent registers T as a POD component (the common case:
// position, health, and other plain-data types) and returns its stable ID.
// Registration is idempotent per type. It is fatal (panics) if a type of
// the same name but a different size was already registered, per spec.md
// §4.1's "registering two types under the same name with different sizes
// is fatal on the first mismatch".
func RegisterComponent[T any]() ComponentID {
	return registerTyped[T](POD, nil, nil)
}

// RegisterOpaqueComponent registers T as an opaque component: it may embed
// channels, file descriptors, or other non-POD handles, and the versioned
// store will never attempt to persist it (spec.md §3/§4.1). clone/drop may
// be nil if the zero value / shallow copy is sufficient.
func RegisterOpaqueComponent[T any](clone func(dst, src unsafe.Pointer), drop func(p unsafe.Pointer)) ComponentID {
	return registerTyped[T](Opaque, clone, drop)
}

func registerTyped[T any](flavor Flavor, clone func(dst, src unsafe.Pointer), drop func(p unsafe.Pointer)) ComponentID {
	var zero T
	t := reflect.TypeOf(zero)
	name := t.String()
	size := unsafe.Sizeof(zero)

	globalRegistry.mu.Lock()
	defer globalRegistry.mu.Unlock()

	if id, ok := globalRegistry.byType[t]; ok {
		return id
	}
	if existingID, ok := globalRegistry.byName[name]; ok {
		existing := globalRegistry.descs[existingID]
		if existing.Size != size {
			panic(fmt.Sprintf("rgbworld: component %q re-registered with conflicting size (have %d, got %d)", name, existing.Size, size))
		}
	}
	if int(globalRegistry.nextID) >= maxComponentTypes {
		panic(fmt.Sprintf("rgbworld: maximum number of component types (%d) reached registering %q", maxComponentTypes, name))
	}

	id := globalRegistry.nextID
	globalRegistry.nextID++
	globalRegistry.byType[t] = id
	globalRegistry.byName[name] = id
	globalRegistry.descs[id] = Descriptor{
		ID:        id,
		Name:      name,
		Type:      t,
		Size:      size,
		Align:     uintptr(t.Align()),
		Flavor:    flavor,
		CloneFunc: clone,
		DropFunc:  drop,
	}
	return id
}

// ComponentIDFor returns the ComponentID for T. It panics if T was never
// registered; use TryComponentIDFor to avoid the panic.
func ComponentIDFor[T any]() ComponentID {
	id, ok := TryComponentIDFor[T]()
	if !ok {
		var zero T
		panic(fmt.Sprintf("rgbworld: component %T not registered", zero))
	}
	return id
}

// TryComponentIDFor returns the ComponentID for T and whether it is
// registered.
func TryComponentIDFor[T any]() (ComponentID, bool) {
	var zero T
	t := reflect.TypeOf(zero)
	globalRegistry.mu.RLock()
	defer globalRegistry.mu.RUnlock()
	id, ok := globalRegistry.byType[t]
	return id, ok
}

// DescriptorOf returns the registered Descriptor for id.
func DescriptorOf(id ComponentID) Descriptor {
	globalRegistry.mu.RLock()
	defer globalRegistry.mu.RUnlock()
	return globalRegistry.descs[id]
}

// IsOpaque reports whether id was registered as an opaque component.
func IsOpaque(id ComponentID) bool {
	return DescriptorOf(id).Flavor == Opaque
}

func componentSize(id ComponentID) uintptr {
	globalRegistry.mu.RLock()
	defer globalRegistry.mu.RUnlock()
	return globalRegistry.descs[id].Size
}
