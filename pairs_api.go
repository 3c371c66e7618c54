package rgbworld

// AddPair attaches the relation `rel` targeting `target` onto `subject`,
// moving subject into (or creating) the archetype that carries this pair
// column (spec.md §4.3 `add_pair`). Adding the same pair twice is
// idempotent — the testable property in spec.md §8 ("Idempotent pair
// add") — since the archetype transition is a no-op if subject's
// archetype already carries the pair.
func (w *World) AddPair(subject Entity, rel RelationID, target Entity) {
	meta, ok := w.metaOf(subject)
	if !ok {
		return
	}
	p := PairID{Relation: rel, Target: target}
	arch := meta.archetype
	if _, already := arch.getPairSlot(p); already {
		return
	}
	newPairs := withPair(arch.pairs, p)
	dst := w.getOrCreateArchetype(arch.mask, newPairs)
	copies := buildCopyPlan(arch, dst)
	dropped := buildDropPlan(arch, dst)
	newRow := w.moveRow(subject, arch, meta.row, dst, copies, dropped)
	m := w.entities[subject.ID]
	m.archetype = dst
	m.row = newRow
	w.entities[subject.ID] = m
}

// RemovePair detaches (rel, target) from subject, migrating it to the
// archetype without that pair column.
func (w *World) RemovePair(subject Entity, rel RelationID, target Entity) {
	meta, ok := w.metaOf(subject)
	if !ok {
		return
	}
	p := PairID{Relation: rel, Target: target}
	arch := meta.archetype
	if _, has := arch.getPairSlot(p); !has {
		return
	}
	newPairs := withoutPair(arch.pairs, p)
	dst := w.getOrCreateArchetype(arch.mask, newPairs)
	copies := buildCopyPlan(arch, dst)
	dropped := buildDropPlan(arch, dst)
	newRow := w.moveRow(subject, arch, meta.row, dst, copies, dropped)
	m := w.entities[subject.ID]
	m.archetype = dst
	m.row = newRow
	w.entities[subject.ID] = m
}

// HasPair reports whether subject currently carries (rel, target).
func (w *World) HasPair(subject Entity, rel RelationID, target Entity) bool {
	meta, ok := w.metaOf(subject)
	if !ok {
		return false
	}
	_, has := meta.archetype.getPairSlot(PairID{Relation: rel, Target: target})
	return has
}

// Targets returns every entity that subject targets via relation rel
// (spec.md §4.3 `targets`).
func (w *World) Targets(subject Entity, rel RelationID) []Entity {
	meta, ok := w.metaOf(subject)
	if !ok {
		return nil
	}
	var out []Entity
	for _, p := range meta.archetype.pairsWithRelation(rel) {
		out = append(out, p.Target)
	}
	return out
}

// PairWildcard returns every (subject, target) pair currently registered
// under relation rel, across every archetype (spec.md §4.3
// `pair_wildcard`).
func (w *World) PairWildcard(rel RelationID) []struct {
	Subject Entity
	Target  Entity
} {
	var out []struct {
		Subject Entity
		Target  Entity
	}
	for _, a := range w.archetypesList {
		matching := a.pairsWithRelation(rel)
		if len(matching) == 0 {
			continue
		}
		for _, subject := range a.entities {
			for _, p := range matching {
				out = append(out, struct {
					Subject Entity
					Target  Entity
				}{Subject: subject, Target: p.Target})
			}
		}
	}
	return out
}
