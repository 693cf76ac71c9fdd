package llah

import "testing"

func featureWithCode(code, landmark int32) *Feature {
	f := NewFeature(2)
	f.HashCode = code
	f.DocumentID = 0
	f.LandmarkID = landmark
	f.Invariants[0], f.Invariants[1] = landmark, landmark
	return &f
}

func TestHashTableChaining(t *testing.T) {
	table := NewHashTable()
	table.Add(featureWithCode(42, 0))
	table.Add(featureWithCode(42, 1))
	table.Add(featureWithCode(7, 9))
	table.Add(featureWithCode(42, 2))

	if got := table.NumBuckets(); got != 2 {
		t.Fatalf("expected 2 buckets, got %d", got)
	}
	if got := table.Len(); got != 4 {
		t.Fatalf("expected 4 features, got %d", got)
	}

	var chain []int32
	for f := table.Lookup(42); f != nil; f = table.Next(f) {
		chain = append(chain, f.LandmarkID)
	}
	want := []int32{0, 1, 2}
	if len(chain) != len(want) {
		t.Fatalf("chain 42: expected %v, got %v", want, chain)
	}
	for i := range want {
		if chain[i] != want[i] {
			t.Fatalf("chain 42 not in insertion order: expected %v, got %v", want, chain)
		}
	}

	single := table.Lookup(7)
	if single == nil || single.LandmarkID != 9 || table.Next(single) != nil {
		t.Fatalf("chain 7: expected a single feature for landmark 9, got %+v", single)
	}

	if f := table.Lookup(1234); f != nil {
		t.Errorf("lookup on absent code returned %+v", f)
	}
	if id := table.Head(1234); id != NoFeature {
		t.Errorf("head on absent code returned %d", id)
	}
}

func TestHashTableChainIterator(t *testing.T) {
	table := NewHashTable()
	ids := []FeatureID{
		table.Add(featureWithCode(3, 0)),
		table.Add(featureWithCode(3, 1)),
		table.Add(featureWithCode(3, 2)),
	}

	i := 0
	for id, f := range table.Chain(3) {
		if id != ids[i] || f.LandmarkID != int32(i) {
			t.Fatalf("step %d: got id %d landmark %d", i, id, f.LandmarkID)
		}
		i++
		if i == 2 {
			break
		}
	}
	if i != 2 {
		t.Fatalf("expected early stop after 2 features, got %d", i)
	}

	for range table.Chain(99) {
		t.Fatal("absent chain yielded a feature")
	}
}

func TestHashTableAddCopiesInvariants(t *testing.T) {
	table := NewHashTable()
	f := featureWithCode(1, 5)
	id := table.Add(f)

	f.Invariants[0] = 100
	f.Next = 12

	stored := table.At(id)
	if stored.Invariants[0] != 5 {
		t.Errorf("stored invariants alias the caller's slice: %v", stored.Invariants)
	}
	if stored.Next != NoFeature {
		t.Errorf("stored feature should end its chain, got next %d", stored.Next)
	}
}

func TestHashTableReset(t *testing.T) {
	table := NewHashTable()
	table.Add(featureWithCode(1, 0))
	table.Add(featureWithCode(2, 0))
	table.Reset()

	if table.Len() != 0 || table.NumBuckets() != 0 {
		t.Fatalf("reset left %d features in %d buckets", table.Len(), table.NumBuckets())
	}
	if table.Lookup(1) != nil {
		t.Error("lookup after reset found a feature")
	}
	// Chains restart from scratch.
	id := table.Add(featureWithCode(1, 3))
	if id != 0 || table.Lookup(1).LandmarkID != 3 {
		t.Errorf("unexpected state after re-adding: id %d", id)
	}
}

func TestFeatureResetAndMatch(t *testing.T) {
	a := NewFeature(3)
	for i, v := range a.Invariants {
		if v != -1 {
			t.Fatalf("invariant %d not cleared: %d", i, v)
		}
	}
	if a.DocumentID != -1 || a.LandmarkID != -1 || a.Next != NoFeature {
		t.Fatalf("new feature not cleared: %+v", a)
	}

	b := NewFeature(3)
	copy(a.Invariants, []int32{1, 2, 3})
	copy(b.Invariants, []int32{1, 2, 3})
	if !a.InvariantsMatch(&b) {
		t.Error("equal invariants should match")
	}
	b.Invariants[2] = 4
	if a.InvariantsMatch(&b) {
		t.Error("different invariants should not match")
	}
	c := NewFeature(2)
	if a.InvariantsMatch(&c) {
		t.Error("different lengths should not match")
	}
}
