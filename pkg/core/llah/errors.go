package llah

import "errors"

var (
	// ErrTooFewPoints is returned when a point set has fewer than N+1 points, the
	// minimum needed to find N neighbours around every landmark.
	ErrTooFewPoints = errors.New("llah: too few points")
	// ErrInvalidConfig reports parameters that cannot produce features.
	ErrInvalidConfig = errors.New("llah: invalid configuration")
	// ErrEmptyHistogram is returned when discretization is learned from no samples.
	ErrEmptyHistogram = errors.New("llah: empty invariant histogram")
	// ErrLearnAfterDocuments is returned by LearnHashing once documents have been
	// registered, because their hash codes were computed with the old breakpoints.
	ErrLearnAfterDocuments = errors.New("llah: discretization must be learned before documents are created")
	// ErrUnknownDocument is returned when a document id is not registered.
	ErrUnknownDocument = errors.New("llah: unknown document")
)
