package mesh

import (
	"fmt"
	"math/rand"
	"sort"
	"time"

	"gonum.org/v1/gonum/spatial/r3"
)

// NewRNG returns a seeded generator. A zero seed picks one from the clock.
func NewRNG(seed int64) *rand.Rand {
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return rand.New(rand.NewSource(seed))
}

// SamplePoints draws n points uniformly over the surface of m. A triangle
// is chosen with probability proportional to its area and the point is
// placed uniformly inside it. The same rng state gives the same points.
func SamplePoints(m *Mesh, n int, rng *rand.Rand) ([]r3.Vec, error) {
	if n <= 0 {
		return nil, fmt.Errorf("sampling %d points: %w", n, ErrInvalidSampleCount)
	}
	if m.IsEmpty() {
		return nil, &InputError{Op: "sample", Path: m.Name, Err: ErrEmptyMesh}
	}
	if rng == nil {
		rng = NewRNG(0)
	}

	cumulative := make([]float64, len(m.Faces))
	var total float64
	for i := range m.Faces {
		total += TriangleArea(m.Triangle(i))
		cumulative[i] = total
	}
	if total <= 0 {
		return nil, &InputError{Op: "sample", Path: m.Name, Err: ErrEmptyMesh}
	}

	points := make([]r3.Vec, n)
	for i := range points {
		target := rng.Float64() * total
		face := sort.SearchFloat64s(cumulative, target)
		if face >= len(cumulative) {
			face = len(cumulative) - 1
		}
		a, b, c := m.Triangle(face)
		points[i] = pointInTriangle(a, b, c, rng.Float64(), rng.Float64())
	}
	return points, nil
}

// pointInTriangle maps two uniform variates to a uniform point in abc,
// folding the upper half of the unit square back into the triangle.
func pointInTriangle(a, b, c r3.Vec, r1, r2 float64) r3.Vec {
	if r1+r2 > 1 {
		r1, r2 = 1-r1, 1-r2
	}
	ab := r3.Sub(b, a)
	ac := r3.Sub(c, a)
	return r3.Add(a, r3.Add(r3.Scale(r1, ab), r3.Scale(r2, ac)))
}
