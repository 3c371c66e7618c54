package event

import (
	"testing"

	"github.com/edwinsyarief/rgbworld"
	"github.com/edwinsyarief/rgbworld/internal/spatial"
)

type damage struct{ Amount int }

func TestEmitGlobalDispatchesThroughWorldBus(t *testing.T) {
	rgbworld.ResetRegistry()
	w := rgbworld.NewWorld()
	b := NewBus(w)

	var got int
	SubscribeGlobal(b, func(e damage) { got = e.Amount }, rgbworld.PriorityNormal)
	EmitGlobal(b, damage{Amount: 5})
	if got != 5 {
		t.Errorf("expected Global event delivered, got %d", got)
	}
}

func TestEmitSpatialSameColorFiresImmediately(t *testing.T) {
	rgbworld.ResetRegistry()
	w := rgbworld.NewWorld()
	b := NewBus(w)

	fired := false
	SubscribeSpatial(b, spatial.ColorG, func(damage) { fired = true }, rgbworld.PriorityNormal)
	EmitSpatial(b, spatial.ColorG, spatial.ColorG, damage{Amount: 1})
	if !fired {
		t.Error("expected same-color spatial event to fire immediately")
	}
}

func TestEmitSpatialEarlierColorIsRequeued(t *testing.T) {
	rgbworld.ResetRegistry()
	w := rgbworld.NewWorld()
	b := NewBus(w)

	fired := false
	SubscribeSpatial(b, spatial.ColorR, func(damage) { fired = true }, rgbworld.PriorityNormal)
	// currently executing color G; event targets R, which already ran.
	EmitSpatial(b, spatial.ColorR, spatial.ColorG, damage{Amount: 1})
	if fired {
		t.Error("expected an event against an earlier color to be re-queued, not fired immediately")
	}
	b.FlushPending()
	if !fired {
		t.Error("expected the re-queued event to fire once FlushPending runs")
	}
}

func TestEmitTargetedDroppedWhenDead(t *testing.T) {
	rgbworld.ResetRegistry()
	w := rgbworld.NewWorld()
	b := NewBus(w)
	e := w.SpawnEmpty()

	fired := false
	SubscribeTargeted(b, e, func(damage) { fired = true }, rgbworld.PriorityNormal)
	w.Despawn(e)
	EmitTargeted(b, e, damage{Amount: 1}) // must not panic, must not fire
	if fired {
		t.Error("expected targeted event against a dead entity to be dropped")
	}
}

func TestEmitTargetedDeliversToLiveEntity(t *testing.T) {
	rgbworld.ResetRegistry()
	w := rgbworld.NewWorld()
	b := NewBus(w)
	e := w.SpawnEmpty()

	var got int
	SubscribeTargeted(b, e, func(d damage) { got = d.Amount }, rgbworld.PriorityNormal)
	EmitTargeted(b, e, damage{Amount: 9})
	if got != 9 {
		t.Errorf("expected targeted event delivered, got %d", got)
	}
}
