package rgbworld

import (
	"encoding/binary"
	"sort"
)

// RelationID identifies a relation kind (e.g. "owns", "parent-of"). It is a
// ComponentID: relations are registered through the same registry as plain
// components, so they inherit the registry's dense-ID and
// fatal-on-mismatch guarantees (spec.md §4.1).
type RelationID = ComponentID

// PairID is the composite identity of a (relation, target) pair (spec.md
// §3 "Pair/Relation"). An archetype's identity is its component mask PLUS
// its sorted set of pairs, so two entities with the same components but
// different relation targets live in different archetypes — this is what
// lets cyclic references (A owns B, B owns A) be expressed as indexed
// columns instead of owning pointers (spec.md §9).
type PairID struct {
	Relation RelationID
	Target   Entity
}

func sortPairs(pairs []PairID) {
	sort.Slice(pairs, func(i, j int) bool {
		if pairs[i].Relation != pairs[j].Relation {
			return pairs[i].Relation < pairs[j].Relation
		}
		if pairs[i].Target.ID != pairs[j].Target.ID {
			return pairs[i].Target.ID < pairs[j].Target.ID
		}
		return pairs[i].Target.Version < pairs[j].Target.Version
	})
}

// pairSetKey builds a comparable map key for a sorted set of pairs. pairs
// must already be sorted (sortPairs). Archetype identity lookups are rare
// relative to row reads/writes, so the small allocation here is
// acceptable.
func pairSetKey(pairs []PairID) string {
	if len(pairs) == 0 {
		return ""
	}
	buf := make([]byte, len(pairs)*16)
	for i, p := range pairs {
		o := i * 16
		binary.LittleEndian.PutUint32(buf[o:], uint32(p.Relation))
		binary.LittleEndian.PutUint32(buf[o+4:], p.Target.ID)
		binary.LittleEndian.PutUint32(buf[o+8:], p.Target.Version)
	}
	return string(buf)
}

func containsPair(pairs []PairID, p PairID) (int, bool) {
	for i, existing := range pairs {
		if existing == p {
			return i, true
		}
	}
	return -1, false
}

func withoutPair(pairs []PairID, p PairID) []PairID {
	out := make([]PairID, 0, len(pairs))
	for _, existing := range pairs {
		if existing != p {
			out = append(out, existing)
		}
	}
	return out
}

func withPair(pairs []PairID, p PairID) []PairID {
	out := make([]PairID, len(pairs), len(pairs)+1)
	copy(out, pairs)
	out = append(out, p)
	sortPairs(out)
	return out
}
