package llah

import (
	"math"

	"gonum.org/v1/gonum/spatial/r2"
)

const (
	affineSampleSize     = 4
	crossRatioSampleSize = 5

	// A ratio whose denominator is smaller than this fraction of its numerator
	// comes from (nearly) collinear points and is saturated.
	degenerateRatio = 1e-12
)

// triangleArea returns the unsigned area of the triangle abc.
func triangleArea(a, b, c Point) float64 {
	return math.Abs(r2.Cross(r2.Sub(b, a), r2.Sub(c, a))) / 2
}

// saturatingRatio divides num by den. Degenerate geometry yields +Inf, which
// discretizes into the last bucket instead of producing NaN.
func saturatingRatio(num, den float64) float64 {
	if den == 0 || den <= degenerateRatio*num {
		return math.Inf(1)
	}
	return num / den
}

// AffineInvariant is the ratio of the areas of triangles (a,c,d) and (a,b,c).
// It is preserved by every affine transform of the four points.
func AffineInvariant(a, b, c, d Point) float64 {
	return saturatingRatio(triangleArea(a, c, d), triangleArea(a, b, c))
}

// CrossRatio is the projective cross ratio of five coplanar points:
// P(1,2,4)·P(1,3,5) / (P(1,2,5)·P(1,3,4)) where P is a triangle area.
func CrossRatio(p1, p2, p3, p4, p5 Point) float64 {
	num := triangleArea(p1, p2, p4) * triangleArea(p1, p3, p5)
	den := triangleArea(p1, p2, p5) * triangleArea(p1, p3, p4)
	return saturatingRatio(num, den)
}
