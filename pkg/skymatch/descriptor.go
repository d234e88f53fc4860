package skymatch

import (
	"math"
	"sort"
)

// toleranceSlack absorbs binary rounding of decimal descriptor values, so
// 0.55 vs 0.50 still counts as within a 0.05 tolerance.
const toleranceSlack = 1e-9

// ComputeDescriptor returns the shape descriptor of triangle abc. It reports
// false when the triangle is degenerate in a way the descriptor cannot
// represent: longest side zero, or for angles any side zero. Collinear
// triangles with distinct vertices are representable and never panic.
func ComputeDescriptor(a, b, c Point, kind DescriptorKind, precision int) (Descriptor, bool) {
	sides := [3]float64{a.Dist(b), b.Dist(c), c.Dist(a)}
	sort.Float64s(sides[:])
	shortest, middle, longest := sides[0], sides[1], sides[2]
	if longest == 0 || math.IsNaN(longest) || math.IsInf(longest, 0) {
		return nil, false
	}

	switch kind {
	case DescriptorAngle:
		if shortest == 0 {
			return nil, false
		}
		angles := []float64{
			lawOfCosines(shortest, middle, longest),
			lawOfCosines(middle, shortest, longest),
			lawOfCosines(longest, shortest, middle),
		}
		sort.Float64s(angles)
		for i := range angles {
			angles[i] = roundTo(angles[i], precision)
		}
		return Descriptor(angles), true
	default:
		return Descriptor{
			roundTo(shortest/longest, precision),
			roundTo(middle/longest, precision),
		}, true
	}
}

// lawOfCosines returns the angle in degrees opposite side `opposite`.
func lawOfCosines(opposite, s1, s2 float64) float64 {
	cos := (s1*s1 + s2*s2 - opposite*opposite) / (2 * s1 * s2)
	// Floating point overshoot can push near-degenerate cosines past +-1.
	cos = math.Max(-1, math.Min(1, cos))
	return math.Acos(cos) * 180 / math.Pi
}

func roundTo(v float64, precision int) float64 {
	pow := math.Pow(10, float64(precision))
	return math.Round(v*pow) / pow
}

// WithinTolerance reports whether every element of a and b differs by at
// most tol. Descriptors of different length never match.
func WithinTolerance(a, b Descriptor, tol float64) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if math.Abs(a[i]-b[i]) > tol+toleranceSlack {
			return false
		}
	}
	return true
}

// isZeroArea reports whether abc spans no area relative to its size.
func isZeroArea(a, b, c Point) bool {
	cross := (b.X-a.X)*(c.Y-a.Y) - (b.Y-a.Y)*(c.X-a.X)
	longest := math.Max(a.Dist(b), math.Max(b.Dist(c), c.Dist(a)))
	return math.Abs(cross) <= 1e-9*longest*longest
}

// TriangleDescriptor computes the descriptor of triangle t over points,
// skipping zero-area triangles.
func TriangleDescriptor(points []Point, t Triangle, p *MatcherParams) (Descriptor, bool) {
	a, b, c := points[t[0]], points[t[1]], points[t[2]]
	if isZeroArea(a, b, c) {
		return nil, false
	}
	return ComputeDescriptor(a, b, c, p.Descriptor, p.Precision)
}
