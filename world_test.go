package rgbworld

import "testing"

func TestNewWorldSpawnsWorldSentinel(t *testing.T) {
	ResetRegistry()
	w := NewWorld()
	if !w.IsAlive(WORLD) {
		t.Error("expected WORLD sentinel to be alive after NewWorld")
	}
	if w.EntityCount() != 1 {
		t.Errorf("expected 1 live entity (WORLD) right after NewWorld, got %d", w.EntityCount())
	}
}

func TestSpawnEmptyAndDespawn(t *testing.T) {
	ResetRegistry()
	w := NewWorld()
	e := w.SpawnEmpty()
	if !w.IsAlive(e) {
		t.Fatal("expected freshly spawned entity to be alive")
	}
	w.Despawn(e)
	if w.IsAlive(e) {
		t.Error("expected entity to be dead after Despawn")
	}
}

func TestDespawnBumpsGeneration(t *testing.T) {
	ResetRegistry()
	w := NewWorld()
	e := w.SpawnEmpty()
	w.Despawn(e)
	e2 := w.SpawnEmpty()
	if e2.ID == e.ID && e2.Version == e.Version {
		t.Error("expected reused slot to carry a bumped generation")
	}
	if w.IsAlive(e) {
		t.Error("old handle must not be considered alive after its slot is reused")
	}
}

func TestDespawnWorldIsNoop(t *testing.T) {
	ResetRegistry()
	w := NewWorld()
	w.Despawn(WORLD)
	if !w.IsAlive(WORLD) {
		t.Error("despawning WORLD must be a no-op")
	}
}

func TestSetGetRemoveRoundTrip(t *testing.T) {
	ResetRegistry()
	w := NewWorld()
	e := w.SpawnEmpty()

	Set(w, e, cPosition{X: 1, Y: 2})
	got, ok := Get[cPosition](w, e)
	if !ok || got != (cPosition{X: 1, Y: 2}) {
		t.Errorf("expected {1,2}, got %+v ok=%v", got, ok)
	}
	if !Has[cPosition](w, e) {
		t.Error("expected Has to report true after Set")
	}

	Remove[cPosition](w, e)
	if Has[cPosition](w, e) {
		t.Error("expected Has to report false after Remove")
	}
	if _, ok := Get[cPosition](w, e); ok {
		t.Error("expected Get to report false after Remove")
	}
}

func TestSetIsIdempotentOnArchetype(t *testing.T) {
	ResetRegistry()
	w := NewWorld()
	e := w.SpawnEmpty()
	Set(w, e, cPosition{X: 1, Y: 1})
	before := w.ArchetypeCount()
	Set(w, e, cPosition{X: 2, Y: 2})
	if w.ArchetypeCount() != before {
		t.Errorf("expected archetype count unchanged on repeated Set, got %d -> %d", before, w.ArchetypeCount())
	}
	got, _ := Get[cPosition](w, e)
	if got != (cPosition{X: 2, Y: 2}) {
		t.Errorf("expected overwritten value {2,2}, got %+v", got)
	}
}

func TestNamedRegistry(t *testing.T) {
	ResetRegistry()
	w := NewWorld()
	e := w.SpawnEmpty()
	w.SetNamed("player", e)
	got, ok := w.Named("player")
	if !ok || got != e {
		t.Errorf("expected Named(\"player\") to return %+v, got %+v ok=%v", e, got, ok)
	}
	w.UnsetNamed("player")
	if _, ok := w.Named("player"); ok {
		t.Error("expected Named to report false after UnsetNamed")
	}
}

func TestTransitionsAreMemoized(t *testing.T) {
	ResetRegistry()
	w := NewWorld()
	id := RegisterComponent[cPosition]()
	root := w.getOrCreateArchetype(mask256{}, nil)
	t1 := w.transitionAdd(root, id)
	t2 := w.transitionAdd(root, id)
	if t1.target != t2.target {
		t.Error("expected memoized add-transition to return the same target archetype")
	}
}

func TestDrainDirtyReportsTouchedEntities(t *testing.T) {
	ResetRegistry()
	w := NewWorld()
	e1 := w.SpawnEmpty()
	e2 := w.SpawnEmpty()
	Set(w, e1, cPosition{X: 1})

	touched, despawned := w.DrainDirty()
	if len(despawned) != 0 {
		t.Errorf("expected no despawns, got %v", despawned)
	}
	if len(touched) != 1 || touched[0] != e1 {
		t.Errorf("expected only e1 reported touched, got %v (e2=%v untouched)", touched, e2)
	}

	touched, _ = w.DrainDirty()
	if len(touched) != 0 {
		t.Errorf("expected DrainDirty to reset its set, got %v", touched)
	}
}

func TestDrainDirtyReportsDespawnsSeparatelyFromTouched(t *testing.T) {
	ResetRegistry()
	w := NewWorld()
	e := w.SpawnEmpty()
	Set(w, e, cPosition{X: 1})
	w.Despawn(e)

	touched, despawned := w.DrainDirty()
	if len(touched) != 0 {
		t.Errorf("expected an entity despawned in the same window to be excluded from touched, got %v", touched)
	}
	if len(despawned) != 1 || despawned[0] != e.ID {
		t.Errorf("expected despawned to report slot %d, got %v", e.ID, despawned)
	}
}

func TestDespawnHookRunsBeforeSlotIsRecycled(t *testing.T) {
	ResetRegistry()
	w := NewWorld()
	e := w.SpawnEmpty()

	var seen Entity
	var aliveDuringHook bool
	w.SetDespawnHook(func(hooked Entity) {
		seen = hooked
		aliveDuringHook = w.IsAlive(hooked)
	})
	w.Despawn(e)

	if seen != e {
		t.Errorf("expected despawn hook called with %+v, got %+v", e, seen)
	}
	if !aliveDuringHook {
		t.Error("expected the entity to still be alive when the despawn hook runs")
	}
}
