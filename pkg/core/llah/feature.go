package llah

import "gonum.org/v1/gonum/spatial/r2"

// Point is a 2D landmark or observed dot location.
type Point = r2.Vec

// FeatureID addresses a Feature inside a HashTable's arena.
type FeatureID int32

// NoFeature terminates a chain.
const NoFeature FeatureID = -1

// Feature is one discretized description of the neighbourhood of a landmark.
type Feature struct {
	// Discretized invariant values.
	Invariants []int32
	// Code derived from Invariants. Features with equal codes share a chain.
	HashCode int32
	// Owner of the feature.
	DocumentID int32
	LandmarkID int32
	// Next feature with the same HashCode, or NoFeature. The chain is an index
	// over the arena, it does not own anything.
	Next FeatureID
}

// NewFeature returns a cleared feature able to hold numInvariants values.
func NewFeature(numInvariants int) Feature {
	f := Feature{Invariants: make([]int32, numInvariants)}
	f.Reset()
	return f
}

// Reset puts the feature back in its cleared state.
func (f *Feature) Reset() {
	f.DocumentID = -1
	f.LandmarkID = -1
	f.Next = NoFeature
	for i := range f.Invariants {
		f.Invariants[i] = -1
	}
}

// InvariantsMatch reports whether both features hold the same discretized
// invariants. Equal hash codes alone are not enough to count as a match.
func (f *Feature) InvariantsMatch(other *Feature) bool {
	if len(f.Invariants) != len(other.Invariants) {
		return false
	}
	for i, v := range f.Invariants {
		if other.Invariants[i] != v {
			return false
		}
	}
	return true
}
