package rgbworld

import "testing"

type relOwns struct{}

func TestAddPairAndTargets(t *testing.T) {
	ResetRegistry()
	w := NewWorld()
	rel := RegisterComponent[relOwns]()
	subject := w.SpawnEmpty()
	target := w.SpawnEmpty()

	w.AddPair(subject, rel, target)
	if !w.HasPair(subject, rel, target) {
		t.Error("expected HasPair to report true after AddPair")
	}
	targets := w.Targets(subject, rel)
	if len(targets) != 1 || targets[0] != target {
		t.Errorf("expected Targets to return [%+v], got %+v", target, targets)
	}
}

func TestAddPairIsIdempotent(t *testing.T) {
	ResetRegistry()
	w := NewWorld()
	rel := RegisterComponent[relOwns]()
	subject := w.SpawnEmpty()
	target := w.SpawnEmpty()

	w.AddPair(subject, rel, target)
	before := w.ArchetypeCount()
	w.AddPair(subject, rel, target)
	if w.ArchetypeCount() != before {
		t.Errorf("expected archetype count unchanged on repeated AddPair, got %d -> %d", before, w.ArchetypeCount())
	}
}

func TestRemovePair(t *testing.T) {
	ResetRegistry()
	w := NewWorld()
	rel := RegisterComponent[relOwns]()
	subject := w.SpawnEmpty()
	target := w.SpawnEmpty()

	w.AddPair(subject, rel, target)
	w.RemovePair(subject, rel, target)
	if w.HasPair(subject, rel, target) {
		t.Error("expected HasPair to report false after RemovePair")
	}
}

func TestPairWildcard(t *testing.T) {
	ResetRegistry()
	w := NewWorld()
	rel := RegisterComponent[relOwns]()
	s1, s2 := w.SpawnEmpty(), w.SpawnEmpty()
	t1, t2 := w.SpawnEmpty(), w.SpawnEmpty()

	w.AddPair(s1, rel, t1)
	w.AddPair(s2, rel, t2)

	all := w.PairWildcard(rel)
	if len(all) != 2 {
		t.Fatalf("expected 2 pairs under relation, got %d", len(all))
	}
}

func TestCyclicPairsAllowed(t *testing.T) {
	ResetRegistry()
	w := NewWorld()
	rel := RegisterComponent[relOwns]()
	a := w.SpawnEmpty()
	b := w.SpawnEmpty()

	w.AddPair(a, rel, b)
	w.AddPair(b, rel, a)
	if !w.HasPair(a, rel, b) || !w.HasPair(b, rel, a) {
		t.Error("expected both directions of a cyclic relation to be recorded")
	}
}
