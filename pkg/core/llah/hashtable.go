package llah

import "iter"

// HashTable stores every Feature of every document and indexes them by hash
// code. Features live in a single arena and are chained by index; a chain keeps
// insertion order, which the first-hit-wins voting relies on.
type HashTable struct {
	features []Feature
	heads    map[int32]FeatureID
	// tails makes appends O(1) regardless of chain length.
	tails map[int32]FeatureID
}

// NewHashTable returns an empty table.
func NewHashTable() *HashTable {
	return &HashTable{
		heads: make(map[int32]FeatureID),
		tails: make(map[int32]FeatureID),
	}
}

// Add copies f into the arena and appends it to the tail of the chain for
// f.HashCode. The stored copy owns its own invariant slice.
func (t *HashTable) Add(f *Feature) FeatureID {
	id := FeatureID(len(t.features))
	stored := *f
	stored.Invariants = append([]int32(nil), f.Invariants...)
	stored.Next = NoFeature
	t.features = append(t.features, stored)

	if tail, ok := t.tails[f.HashCode]; ok {
		t.features[tail].Next = id
	} else {
		t.heads[f.HashCode] = id
	}
	t.tails[f.HashCode] = id
	return id
}

// Head returns the first feature id with the given code, or NoFeature.
func (t *HashTable) Head(hashCode int32) FeatureID {
	if id, ok := t.heads[hashCode]; ok {
		return id
	}
	return NoFeature
}

// At returns the feature stored under id. The pointer is valid until the next Add.
func (t *HashTable) At(id FeatureID) *Feature {
	return &t.features[id]
}

// Lookup returns the head of the chain for hashCode, or nil.
func (t *HashTable) Lookup(hashCode int32) *Feature {
	id := t.Head(hashCode)
	if id == NoFeature {
		return nil
	}
	return &t.features[id]
}

// Next returns the feature after f in its chain, or nil at the end.
func (t *HashTable) Next(f *Feature) *Feature {
	if f.Next == NoFeature {
		return nil
	}
	return &t.features[f.Next]
}

// Chain iterates over every feature sharing hashCode in insertion order.
func (t *HashTable) Chain(hashCode int32) iter.Seq2[FeatureID, *Feature] {
	return func(yield func(FeatureID, *Feature) bool) {
		for id := t.Head(hashCode); id != NoFeature; id = t.features[id].Next {
			if !yield(id, &t.features[id]) {
				return
			}
		}
	}
}

// Len is the total number of stored features.
func (t *HashTable) Len() int { return len(t.features) }

// NumBuckets is the number of distinct hash codes in the table.
func (t *HashTable) NumBuckets() int { return len(t.heads) }

// Reset forgets every feature.
func (t *HashTable) Reset() {
	t.features = t.features[:0]
	clear(t.heads)
	clear(t.tails)
}
