package llah

// bitSet marks the stored features that already voted during one lookup.
type bitSet struct {
	buckets []uint64
}

func newBitSet(initialCapacity uint32) *bitSet {
	return &bitSet{buckets: make([]uint64, (initialCapacity>>6)+1)}
}

func (bs *bitSet) grow(n uint32) {
	needed := (n >> 6) + 1
	if uint32(len(bs.buckets)) < needed {
		buckets := make([]uint64, needed)
		copy(buckets, bs.buckets)
		bs.buckets = buckets
	}
}

func (bs *bitSet) add(n uint32) {
	bucket := n >> 6
	if bucket >= uint32(len(bs.buckets)) {
		bs.grow(n)
	}
	bs.buckets[bucket] |= 1 << (n & 63)
}

func (bs *bitSet) has(n uint32) bool {
	bucket := n >> 6
	if bucket >= uint32(len(bs.buckets)) {
		return false
	}
	return bs.buckets[bucket]&(1<<(n&63)) != 0
}

func (bs *bitSet) clear() {
	clear(bs.buckets)
}
