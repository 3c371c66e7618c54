// Package plugin hosts the dylib hot-reload ABI (spec.md §6): each
// plugin exports plugin_load/plugin_unload/plugin_name with C linkage,
// loaded without cgo via ebitengine/purego.
package plugin

import (
	"fmt"
	"sync"
	"unsafe"

	"github.com/cenkalti/backoff/v4"
	"github.com/ebitengine/purego"
	"github.com/google/uuid"

	"github.com/edwinsyarief/rgbworld"
)

// loadedPlugin is the host's bookkeeping record for one loaded dylib —
// enough to make Unload idempotent and to identify the plugin in logs
// and metrics. Per-plugin component/observer/singleton teardown is the
// plugin's own responsibility (plugin_unload "detaches every observer
// it registered and removes owned singletons", spec.md §6); the host
// cannot see into the plugin's native-side state beyond its handle.
type loadedPlugin struct {
	id       uuid.UUID
	path     string
	handle   uintptr
	name     string
	unloadFn func(worldPtr uintptr)
}

// Host manages the set of currently-loaded plugin dylibs against one
// World. It is safe for concurrent Load/Unload calls (load/unload only
// ever happen from Pre/Post, per spec.md §5, but the mutex costs
// nothing there).
type Host struct {
	mu     sync.Mutex
	world  *rgbworld.World
	loaded map[string]*loadedPlugin
}

// NewHost creates a plugin host bound to world.
func NewHost(world *rgbworld.World) *Host {
	return &Host{world: world, loaded: make(map[string]*loadedPlugin)}
}

// Load dlopen's path, resolves the three required symbols, and calls
// plugin_load(world_ptr). Transient dlopen failures (e.g. the file is
// mid-write from a build) are retried with exponential backoff.
func (h *Host) Load(path string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.loaded[path]; ok {
		return nil // registering twice must be idempotent, spec.md §6
	}

	handle, err := h.dlopenWithRetry(path)
	if err != nil {
		return fmt.Errorf("rgbworld/plugin: loading %s: %w", path, err)
	}

	var pluginLoad func(uintptr)
	var pluginUnload func(uintptr)
	var pluginName func() uintptr
	purego.RegisterLibFunc(&pluginLoad, handle, "plugin_load")
	purego.RegisterLibFunc(&pluginUnload, handle, "plugin_unload")
	purego.RegisterLibFunc(&pluginName, handle, "plugin_name")

	name := cString(pluginName())
	worldPtr := uintptr(unsafe.Pointer(h.world))
	pluginLoad(worldPtr)

	h.loaded[path] = &loadedPlugin{
		id:       uuid.New(),
		path:     path,
		handle:   handle,
		name:     name,
		unloadFn: pluginUnload,
	}
	return nil
}

func (h *Host) dlopenWithRetry(path string) (uintptr, error) {
	var handle uintptr
	attempt := func() error {
		var err error
		handle, err = purego.Dlopen(path, purego.RTLD_NOW|purego.RTLD_GLOBAL)
		return err
	}
	policy := backoff.WithMaxRetries(backoff.NewExponentialBackOff(), 3)
	if err := backoff.Retry(attempt, policy); err != nil {
		return 0, err
	}
	return handle, nil
}

// Unload calls plugin_unload(world_ptr) and releases the dylib handle.
// Unloading a path that was never loaded, or was already unloaded, is
// a no-op (spec.md §6 "registering... is idempotent" extends naturally
// to teardown).
func (h *Host) Unload(path string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	rec, ok := h.loaded[path]
	if !ok {
		return nil
	}
	rec.unloadFn(uintptr(unsafe.Pointer(h.world)))
	delete(h.loaded, path)
	return purego.Dlclose(rec.handle)
}

// UnloadAll tears down every currently-loaded plugin, in load order is
// not guaranteed — used on host shutdown.
func (h *Host) UnloadAll() error {
	h.mu.Lock()
	paths := make([]string, 0, len(h.loaded))
	for p := range h.loaded {
		paths = append(paths, p)
	}
	h.mu.Unlock()

	var firstErr error
	for _, p := range paths {
		if err := h.Unload(p); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// Names returns the plugin_name() of every currently-loaded plugin.
func (h *Host) Names() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	names := make([]string, 0, len(h.loaded))
	for _, rec := range h.loaded {
		names = append(names, rec.name)
	}
	return names
}

// cString converts a NUL-terminated C string pointer into a Go string.
// purego does not marshal char* return values automatically, so the
// host walks the bytes itself.
func cString(ptr uintptr) string {
	if ptr == 0 {
		return ""
	}
	var b []byte
	for i := uintptr(0); ; i++ {
		c := *(*byte)(unsafe.Pointer(ptr + i))
		if c == 0 {
			break
		}
		b = append(b, c)
	}
	return string(b)
}
