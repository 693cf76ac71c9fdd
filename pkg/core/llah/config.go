package llah

import (
	"fmt"

	"gonum.org/v1/gonum/stat/combin"
)

// HasherKind selects the geometric invariant used to describe a neighbourhood.
type HasherKind string

const (
	// AffineHasher uses ratios of triangle areas, invariant under affine maps.
	AffineHasher HasherKind = "affine"
	// CrossRatioHasher uses a five point cross ratio, invariant under projective maps.
	CrossRatioHasher HasherKind = "cross_ratio"
)

// Config holds the parameters fixed when Operations is constructed.
type Config struct {
	// Number of nearest neighbours sampled around each landmark (N).
	NumberOfNeighbors int `yaml:"neighbors" json:"neighbors"`
	// Size of each combination taken from the neighbours (M).
	SizeOfCombination int `yaml:"combination" json:"combination"`

	Hasher HasherKind `yaml:"hasher" json:"hasher"`
	// Number of discrete values each invariant is quantized to.
	NumDiscrete int `yaml:"num_discrete" json:"num_discrete"`
	// Base of the polynomial that folds invariants into a hash code.
	// 0 means NumDiscrete, which keeps codes unique until the modulo.
	HashK int64 `yaml:"hash_k" json:"hash_k"`
	// Modulus of the hash code.
	HashTableSize int64 `yaml:"hash_table_size" json:"hash_table_size"`

	// Upper end of the invariant range used by the default breakpoints and by
	// LearnHashing. Affine invariants rarely exceed ~25.
	MaxInvariantValue float64 `yaml:"max_invariant_value" json:"max_invariant_value"`
	// Number of bins of the learning histogram.
	HistogramLength int `yaml:"histogram_length" json:"histogram_length"`
	// Cap on the invariant samples accumulated while learning. 0 = no cap.
	MaxHistogramSamples int `yaml:"max_histogram_samples" json:"max_histogram_samples"`

	// Minimum votes an observed dot must give a landmark before it is recorded
	// as that landmark's correspondence.
	MinDotVotes uint32 `yaml:"min_dot_votes" json:"min_dot_votes"`
}

// DefaultConfig returns parameters that work well for sparse dot patterns of
// 20 to 100 points.
func DefaultConfig() Config {
	return Config{
		NumberOfNeighbors:   8,
		SizeOfCombination:   6,
		Hasher:              AffineHasher,
		NumDiscrete:         16,
		HashTableSize:       500_000,
		MaxInvariantValue:   25,
		HistogramLength:     100_000,
		MaxHistogramSamples: 5_000_000,
		MinDotVotes:         2,
	}
}

// Validate checks that the configuration can generate features.
func (c Config) Validate() error {
	if c.NumberOfNeighbors < 1 {
		return fmt.Errorf("%w: neighbors must be positive, got %d", ErrInvalidConfig, c.NumberOfNeighbors)
	}
	if c.SizeOfCombination < 1 || c.SizeOfCombination > c.NumberOfNeighbors {
		return fmt.Errorf("%w: combination size %d must be in [1, %d]", ErrInvalidConfig, c.SizeOfCombination, c.NumberOfNeighbors)
	}
	if _, ok := tuplesPerPoint(c.NumberOfNeighbors, c.SizeOfCombination); !ok {
		return fmt.Errorf("%w: C(%d, %d)*%d tuples per point exceeds %d",
			ErrInvalidConfig, c.NumberOfNeighbors, c.SizeOfCombination, c.SizeOfCombination, MaxTuplesPerPoint)
	}
	switch c.Hasher {
	case AffineHasher, CrossRatioHasher:
	default:
		return fmt.Errorf("%w: unknown hasher %q", ErrInvalidConfig, c.Hasher)
	}
	// The landmark itself is part of every tuple.
	if need := sampleSize(c.Hasher); c.SizeOfCombination+1 < need {
		return fmt.Errorf("%w: %s needs combinations of at least %d points, got %d",
			ErrInvalidConfig, c.Hasher, need-1, c.SizeOfCombination)
	}
	if c.NumDiscrete < 2 {
		return fmt.Errorf("%w: num_discrete must be at least 2, got %d", ErrInvalidConfig, c.NumDiscrete)
	}
	if c.HashTableSize < 1 || c.HashTableSize > 1<<31-1 {
		return fmt.Errorf("%w: hash_table_size %d out of range", ErrInvalidConfig, c.HashTableSize)
	}
	if c.HashK < 0 {
		return fmt.Errorf("%w: hash_k must not be negative", ErrInvalidConfig)
	}
	if !(c.MaxInvariantValue > 0) {
		return fmt.Errorf("%w: max_invariant_value must be positive", ErrInvalidConfig)
	}
	if c.HistogramLength < c.NumDiscrete {
		return fmt.Errorf("%w: histogram_length %d shorter than num_discrete %d",
			ErrInvalidConfig, c.HistogramLength, c.NumDiscrete)
	}
	return nil
}

// MaxTuplesPerPoint bounds C(N, M)*M. Combinations are enumerated up front and
// every landmark stores that many features.
const MaxTuplesPerPoint = 1 << 16

// tuplesPerPoint computes C(n, m)*m, reporting false once it exceeds
// MaxTuplesPerPoint.
func tuplesPerPoint(n, m int) (int64, bool) {
	if m > MaxTuplesPerPoint {
		return 0, false
	}
	k := min(m, n-m)
	b := int64(1)
	for i := 1; i <= k; i++ {
		b = b * int64(n-k+i) / int64(i)
		if b*int64(m) > MaxTuplesPerPoint {
			return 0, false
		}
	}
	return b * int64(m), true
}

// MaxUniqueHashPerPoint is the number of tuples generated for one landmark:
// C(N, M) combinations times M cyclic rotations.
func (c Config) MaxUniqueHashPerPoint() int64 {
	return int64(combin.Binomial(c.NumberOfNeighbors, c.SizeOfCombination)) * int64(c.SizeOfCombination)
}

func sampleSize(kind HasherKind) int {
	if kind == CrossRatioHasher {
		return crossRatioSampleSize
	}
	return affineSampleSize
}
