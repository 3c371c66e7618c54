// Package event builds the three event shapes spec.md §4.8 requires —
// Global, Spatial and Targeted — on top of the root package's priority
// EventBus primitive.
package event

import (
	"github.com/edwinsyarief/rgbworld"
	"github.com/edwinsyarief/rgbworld/internal/spatial"
)

// Bus routes Global events through the World's own bus, and adds
// per-color buckets for Spatial events and an entity-indexed bucket for
// Targeted events.
type Bus struct {
	world *rgbworld.World

	spatialR, spatialG, spatialB *rgbworld.EventBus
	targeted                     map[uint32]*rgbworld.EventBus

	// pending holds Spatial events emitted against a color whose phase has
	// already ended this tick; they fire at the start of next tick's Pre
	// instead (spec.md §9 Open Question: "safe default is next tick").
	pending []func()
}

// NewBus creates an event Bus wired to w's Global bus.
func NewBus(w *rgbworld.World) *Bus {
	return &Bus{
		world:    w,
		spatialR: newSubBus(),
		spatialG: newSubBus(),
		spatialB: newSubBus(),
		targeted: make(map[uint32]*rgbworld.EventBus),
	}
}

func newSubBus() *rgbworld.EventBus {
	return rgbworld.NewEventBus()
}

// SubscribeGlobal registers handler on the World's own Global bus, in
// priority order (spec.md §4.8 "Global").
func SubscribeGlobal[T any](b *Bus, handler func(T), priority rgbworld.Priority) int {
	return rgbworld.Subscribe(b.world.Events(), handler, priority)
}

// EmitGlobal publishes a Global event immediately (call only from Pre or
// Post, matching spec.md's "delivered in Pre or Post").
func EmitGlobal[T any](b *Bus, evt T) {
	rgbworld.Publish(b.world.Events(), evt)
}

// SubscribeSpatial registers handler against events tagged with color c.
func SubscribeSpatial[T any](b *Bus, c spatial.Color, handler func(T), priority rgbworld.Priority) int {
	return rgbworld.Subscribe(b.busForColor(c), handler, priority)
}

func (b *Bus) busForColor(c spatial.Color) *rgbworld.EventBus {
	switch c {
	case spatial.ColorR:
		return b.spatialR
	case spatial.ColorG:
		return b.spatialG
	default:
		return b.spatialB
	}
}

// EmitSpatial routes evt to the bucket for the cell's color. currentColor
// is the color phase presently executing; if cellColor has already run
// this tick (cellColor < currentColor in R,G,B order), the emission is
// re-queued for the next tick's Pre instead of firing now (spec.md §9's
// documented Open Question decision, resolved conservatively).
func EmitSpatial[T any](b *Bus, cellColor spatial.Color, currentColor spatial.Color, evt T) {
	if cellColor < currentColor {
		b.pending = append(b.pending, func() { rgbworld.Publish(b.busForColor(cellColor), evt) })
		return
	}
	rgbworld.Publish(b.busForColor(cellColor), evt)
}

// FlushPending fires every Spatial event that was re-queued from a prior
// tick. Call once at the start of Pre.
func (b *Bus) FlushPending() {
	pending := b.pending
	b.pending = nil
	for _, fire := range pending {
		fire()
	}
}

// SubscribeTargeted registers handler for events addressed to entity e.
func SubscribeTargeted[T any](b *Bus, e rgbworld.Entity, handler func(T), priority rgbworld.Priority) int {
	return rgbworld.Subscribe(b.busFor(e), handler, priority)
}

func (b *Bus) busFor(e rgbworld.Entity) *rgbworld.EventBus {
	bus, ok := b.targeted[e.ID]
	if !ok {
		bus = newSubBus()
		b.targeted[e.ID] = bus
	}
	return bus
}

// EmitTargeted dispatches evt to target's handlers, or silently drops it
// if target is no longer alive (spec.md §4.8 "Targeted... If the target
// is dead at dispatch, the event is silently dropped").
func EmitTargeted[T any](b *Bus, target rgbworld.Entity, evt T) {
	if !b.world.IsAlive(target) {
		return
	}
	bus, ok := b.targeted[target.ID]
	if !ok {
		return
	}
	rgbworld.Publish(bus, evt)
}

// ReleaseTargeted drops every handler registered for an entity (called
// when that entity is despawned, so stale subscriptions can't leak).
func (b *Bus) ReleaseTargeted(e rgbworld.Entity) {
	delete(b.targeted, e.ID)
}
