package llah

import (
	"fmt"
	"math"
	"sort"
)

// Hasher turns an ordered tuple of points into discretized invariants and a
// hash code. The tuple order matters; callers supply every cyclic rotation.
type Hasher interface {
	// InvariantSampleSize is the number of points one invariant needs.
	InvariantSampleSize() int
	// NumberOfInvariants is how many invariants a tuple of n points yields:
	// one for the minimum sample size plus one per additional point.
	NumberOfInvariants(n int) int
	// ComputeInvariants writes the raw invariants of points into out.
	ComputeInvariants(points []Point, out []float64)
	// ComputeHash fills out.Invariants and out.HashCode. Ownership fields are
	// left untouched.
	ComputeHash(points []Point, out *Feature)
	// Discretize maps an invariant to its bucket.
	Discretize(value float64) int32
	// LearnDiscretization picks equal-frequency breakpoints from a histogram of
	// invariant values over [0, maxValue).
	LearnDiscretization(histogram []uint32, totalSamples uint64, maxValue float64, numBuckets int) error
	// Breakpoints returns a copy of the current breakpoint table.
	Breakpoints() []float64
	// SetBreakpoints restores a table previously returned by Breakpoints.
	SetBreakpoints(samples []float64) error
}

// NewHasher builds the hasher selected by cfg with default breakpoints.
func NewHasher(cfg Config) (Hasher, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	k := cfg.HashK
	if k == 0 {
		k = int64(cfg.NumDiscrete)
	}
	base := newDiscretizer(k, cfg.HashTableSize, cfg.NumDiscrete, cfg.MaxInvariantValue)
	switch cfg.Hasher {
	case CrossRatioHasher:
		return &CrossRatioHash{discretizer: base}, nil
	default:
		return &AffineHash{discretizer: base}, nil
	}
}

// discretizer is the part shared by every Hasher: breakpoints and the hash fold.
type discretizer struct {
	hashK     int64
	tableSize int64
	// samples holds numBuckets-1 increasing interior boundaries. A value falls
	// in bucket i when exactly i boundaries are <= value.
	samples []float64
}

func newDiscretizer(hashK, tableSize int64, numBuckets int, maxValue float64) discretizer {
	d := discretizer{hashK: hashK, tableSize: tableSize}
	d.samples = make([]float64, numBuckets-1)
	for i := range d.samples {
		d.samples[i] = float64(i+1) * maxValue / float64(numBuckets)
	}
	return d
}

// Discretize implements Hasher.
func (d *discretizer) Discretize(value float64) int32 {
	if math.IsNaN(value) {
		return int32(len(d.samples))
	}
	return int32(sort.Search(len(d.samples), func(i int) bool { return d.samples[i] > value }))
}

// LearnDiscretization implements Hasher. Boundaries are interpolated inside
// a bin when it holds more than one quantile, so crowded bins still produce
// distinct buckets.
func (d *discretizer) LearnDiscretization(histogram []uint32, totalSamples uint64, maxValue float64, numBuckets int) error {
	if numBuckets < 2 {
		return fmt.Errorf("%w: need at least 2 buckets, got %d", ErrInvalidConfig, numBuckets)
	}
	if !(maxValue > 0) {
		return fmt.Errorf("%w: max value must be positive", ErrInvalidConfig)
	}
	if totalSamples == 0 {
		for _, c := range histogram {
			totalSamples += uint64(c)
		}
	}
	if totalSamples == 0 || len(histogram) == 0 {
		return ErrEmptyHistogram
	}

	width := maxValue / float64(len(histogram))
	samples := make([]float64, 0, numBuckets-1)
	var cumulative float64
	j := 1
	for i, count := range histogram {
		if count == 0 {
			continue
		}
		before := cumulative
		cumulative += float64(count)
		for j < numBuckets {
			target := float64(j) * float64(totalSamples) / float64(numBuckets)
			if cumulative < target {
				break
			}
			frac := (target - before) / float64(count)
			boundary := (float64(i) + frac) * width
			if boundary <= 0 {
				boundary = width * 1e-9
			}
			samples = append(samples, boundary)
			j++
		}
	}
	// totalSamples larger than the histogram mass leaves upper quantiles unset.
	for len(samples) < numBuckets-1 {
		samples = append(samples, maxValue)
	}
	d.samples = samples
	return nil
}

// Breakpoints implements Hasher.
func (d *discretizer) Breakpoints() []float64 {
	return append([]float64(nil), d.samples...)
}

// SetBreakpoints implements Hasher.
func (d *discretizer) SetBreakpoints(samples []float64) error {
	if len(samples) != len(d.samples) {
		return fmt.Errorf("%w: expected %d breakpoints, got %d", ErrInvalidConfig, len(d.samples), len(samples))
	}
	if !sort.Float64sAreSorted(samples) {
		return fmt.Errorf("%w: breakpoints are not sorted", ErrInvalidConfig)
	}
	d.samples = append(d.samples[:0], samples...)
	return nil
}

// hash discretizes raw invariants into out and folds them into out.HashCode.
func (d *discretizer) hash(raw []float64, out *Feature) {
	if len(out.Invariants) != len(raw) {
		out.Invariants = make([]int32, len(raw))
	}
	var code int64
	pow := int64(1)
	for i, v := range raw {
		q := d.Discretize(v)
		out.Invariants[i] = q
		code = (code + int64(q)*pow) % d.tableSize
		pow = (pow * d.hashK) % d.tableSize
	}
	out.HashCode = int32(code)
}

// invariantBuffer avoids a heap allocation for the usual tuple sizes.
const invariantBuffer = 16

// AffineHash computes affine invariants over every window of four
// consecutive points.
type AffineHash struct {
	discretizer
}

// InvariantSampleSize implements Hasher.
func (h *AffineHash) InvariantSampleSize() int { return affineSampleSize }

// NumberOfInvariants implements Hasher.
func (h *AffineHash) NumberOfInvariants(n int) int { return n - affineSampleSize + 1 }

// ComputeInvariants implements Hasher.
func (h *AffineHash) ComputeInvariants(points []Point, out []float64) {
	for i := 0; i+affineSampleSize <= len(points); i++ {
		out[i] = AffineInvariant(points[i], points[i+1], points[i+2], points[i+3])
	}
}

// ComputeHash implements Hasher.
func (h *AffineHash) ComputeHash(points []Point, out *Feature) {
	var buf [invariantBuffer]float64
	raw := invariantSlice(buf[:], h.NumberOfInvariants(len(points)))
	h.ComputeInvariants(points, raw)
	h.hash(raw, out)
}

// CrossRatioHash computes projective cross ratios over every window of five
// consecutive points.
type CrossRatioHash struct {
	discretizer
}

// InvariantSampleSize implements Hasher.
func (h *CrossRatioHash) InvariantSampleSize() int { return crossRatioSampleSize }

// NumberOfInvariants implements Hasher.
func (h *CrossRatioHash) NumberOfInvariants(n int) int { return n - crossRatioSampleSize + 1 }

// ComputeInvariants implements Hasher.
func (h *CrossRatioHash) ComputeInvariants(points []Point, out []float64) {
	for i := 0; i+crossRatioSampleSize <= len(points); i++ {
		out[i] = CrossRatio(points[i], points[i+1], points[i+2], points[i+3], points[i+4])
	}
}

// ComputeHash implements Hasher.
func (h *CrossRatioHash) ComputeHash(points []Point, out *Feature) {
	var buf [invariantBuffer]float64
	raw := invariantSlice(buf[:], h.NumberOfInvariants(len(points)))
	h.ComputeInvariants(points, raw)
	h.hash(raw, out)
}

func invariantSlice(buf []float64, n int) []float64 {
	if n < 0 {
		n = 0
	}
	if n <= len(buf) {
		return buf[:n]
	}
	return make([]float64, n)
}
