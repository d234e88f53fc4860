package skymatch

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestComputeDescriptor_Ratio(t *testing.T) {
	// 3-4-5 right triangle.
	d, ok := ComputeDescriptor(Point{0, 0}, Point{3, 0}, Point{0, 4}, DescriptorRatio, 2)
	require.True(t, ok)
	assert.Equal(t, Descriptor{0.6, 0.8}, d)
}

func TestComputeDescriptor_Angle(t *testing.T) {
	d, ok := ComputeDescriptor(Point{0, 0}, Point{3, 0}, Point{0, 4}, DescriptorAngle, 1)
	require.True(t, ok)
	require.Len(t, d, 3)
	assert.InDelta(t, 36.9, d[0], 1e-9)
	assert.InDelta(t, 53.1, d[1], 1e-9)
	assert.InDelta(t, 90.0, d[2], 1e-9)
}

func TestComputeDescriptor_Equilateral(t *testing.T) {
	h := math.Sqrt(3) / 2
	d, ok := ComputeDescriptor(Point{0, 0}, Point{1, 0}, Point{0.5, h}, DescriptorAngle, 1)
	require.True(t, ok)
	assert.Equal(t, Descriptor{60, 60, 60}, d)

	d, ok = ComputeDescriptor(Point{0, 0}, Point{1, 0}, Point{0.5, h}, DescriptorRatio, 2)
	require.True(t, ok)
	assert.Equal(t, Descriptor{1, 1}, d)
}

func TestComputeDescriptor_CollinearDoesNotPanic(t *testing.T) {
	a, b, c := Point{0, 0}, Point{1, 0}, Point{2, 0}

	d, ok := ComputeDescriptor(a, b, c, DescriptorRatio, 2)
	require.True(t, ok)
	assert.Equal(t, Descriptor{0.5, 0.5}, d)

	d, ok = ComputeDescriptor(a, b, c, DescriptorAngle, 1)
	require.True(t, ok)
	assert.Equal(t, Descriptor{0, 0, 180}, d)
	for _, v := range d {
		assert.False(t, math.IsNaN(v))
	}
}

func TestComputeDescriptor_NearCollinearCosineClipped(t *testing.T) {
	d, ok := ComputeDescriptor(Point{0, 0}, Point{1e8, 1e-8}, Point{2e8, 0}, DescriptorAngle, 1)
	require.True(t, ok)
	for _, v := range d {
		assert.False(t, math.IsNaN(v), "angle %v", d)
	}
}

func TestComputeDescriptor_ZeroLongestSide(t *testing.T) {
	p := Point{5, 5}
	_, ok := ComputeDescriptor(p, p, p, DescriptorRatio, 2)
	assert.False(t, ok)
	_, ok = ComputeDescriptor(p, p, p, DescriptorAngle, 1)
	assert.False(t, ok)
}

func TestComputeDescriptor_TwoCoincidentVertices(t *testing.T) {
	a, c := Point{0, 0}, Point{3, 4}

	d, ok := ComputeDescriptor(a, a, c, DescriptorRatio, 2)
	require.True(t, ok)
	assert.Equal(t, Descriptor{0, 1}, d)

	_, ok = ComputeDescriptor(a, a, c, DescriptorAngle, 1)
	assert.False(t, ok)
}

func TestComputeDescriptor_ScaleInvariant(t *testing.T) {
	a, b, c := Point{12, 7}, Point{55, 19}, Point{30, 61}
	base, ok := ComputeDescriptor(a, b, c, DescriptorRatio, 2)
	require.True(t, ok)

	for _, k := range []float64{0.01, 0.5, 3, 1000} {
		scaled, ok := ComputeDescriptor(
			Point{a.X * k, a.Y * k}, Point{b.X * k, b.Y * k}, Point{c.X * k, c.Y * k},
			DescriptorRatio, 2)
		require.True(t, ok)
		assert.True(t, WithinTolerance(base, scaled, 0.01), "k=%v: %v vs %v", k, base, scaled)
	}
}

func TestComputeDescriptor_RotationInvariant(t *testing.T) {
	pts := []Point{{12, 7}, {55, 19}, {30, 61}}
	base, ok := ComputeDescriptor(pts[0], pts[1], pts[2], DescriptorAngle, 1)
	require.True(t, ok)

	for _, deg := range []float64{13, 90, 137.5, 271} {
		r := rotate(pts, deg, Point{100, -40})
		rotated, ok := ComputeDescriptor(r[0], r[1], r[2], DescriptorAngle, 1)
		require.True(t, ok)
		for i := range base {
			assert.InDelta(t, base[i], rotated[i], 0.1+1e-9, "rotation %v", deg)
		}
	}
}

func TestWithinTolerance(t *testing.T) {
	assert.True(t, WithinTolerance(Descriptor{0.55, 0.80}, Descriptor{0.50, 0.80}, 0.05))
	assert.False(t, WithinTolerance(Descriptor{0.56, 0.80}, Descriptor{0.50, 0.80}, 0.05))
	assert.False(t, WithinTolerance(Descriptor{0.5, 0.8}, Descriptor{0.5, 0.8, 0.1}, 1))
	assert.True(t, WithinTolerance(Descriptor{60, 60, 60}, Descriptor{61.5, 58.5, 60}, 1.5))
}

func TestTriangleDescriptor_SkipsZeroArea(t *testing.T) {
	pts := []Point{{0, 0}, {1, 1}, {2, 2}}
	_, ok := TriangleDescriptor(pts, Triangle{0, 1, 2}, NewMatcherParams())
	assert.False(t, ok)
}

func rotate(pts []Point, deg float64, center Point) []Point {
	s, c := math.Sincos(deg * math.Pi / 180)
	out := make([]Point, len(pts))
	for i, p := range pts {
		dx, dy := p.X-center.X, p.Y-center.Y
		out[i] = Point{X: center.X + dx*c - dy*s, Y: center.Y + dx*s + dy*c}
	}
	return out
}
