package mesh

import (
	"math"
	"math/rand"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/spatial/r3"
)

// unitCube returns a cube of edge 1 centred on the origin with outward
// facing triangles: 8 vertices, 12 faces.
func unitCube() *Mesh {
	m := &Mesh{Name: "cube"}
	for i := 0; i < 8; i++ {
		v := r3.Vec{X: -0.5, Y: -0.5, Z: -0.5}
		if i&1 != 0 {
			v.X = 0.5
		}
		if i&2 != 0 {
			v.Y = 0.5
		}
		if i&4 != 0 {
			v.Z = 0.5
		}
		m.Vertices = append(m.Vertices, v)
	}
	m.Faces = []Face{
		{0, 2, 3}, {0, 3, 1}, // -z
		{4, 5, 7}, {4, 7, 6}, // +z
		{0, 1, 5}, {0, 5, 4}, // -y
		{2, 6, 7}, {2, 7, 3}, // +y
		{0, 4, 6}, {0, 6, 2}, // -x
		{1, 3, 7}, {1, 7, 5}, // +x
	}
	return m
}

// singleTriangle returns a right triangle in the XY plane.
func singleTriangle() *Mesh {
	return &Mesh{
		Name:     "tri",
		Vertices: []r3.Vec{{X: 0, Y: 0, Z: 0}, {X: 2, Y: 0, Z: 0}, {X: 0, Y: 1, Z: 0}},
		Faces:    []Face{{0, 1, 2}},
	}
}

// writeMesh saves m as binary STL inside dir.
func writeMesh(t *testing.T, dir, name string, m *Mesh) string {
	t.Helper()
	require.NoError(t, os.MkdirAll(dir, 0755))
	path := filepath.Join(dir, name)
	require.NoError(t, SaveSTL(path, m))
	return path
}

// writeRaw writes raw content inside dir.
func writeRaw(t *testing.T, dir, name, content string) string {
	t.Helper()
	require.NoError(t, os.MkdirAll(dir, 0755))
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

// anisotropicCloud returns n random points in a box with distinct extents
// along each axis, so the cloud has no rotational symmetry.
func anisotropicCloud(rng *rand.Rand, n int) []r3.Vec {
	pts := make([]r3.Vec, n)
	for i := range pts {
		pts[i] = r3.Vec{
			X: rng.Float64()*4 - 2,
			Y: rng.Float64()*2 - 1,
			Z: rng.Float64()*1 - 0.5,
		}
	}
	return pts
}

func vecNear(a, b r3.Vec, tol float64) bool {
	return r3.Norm(r3.Sub(a, b)) <= tol
}

// box returns unitCube stretched to the given edge lengths.
func box(sx, sy, sz float64) *Mesh {
	m := unitCube()
	m.Name = "box"
	for i, v := range m.Vertices {
		m.Vertices[i] = r3.Vec{X: v.X * sx, Y: v.Y * sy, Z: v.Z * sz}
	}
	return m
}

// nearestDistance returns the distance from p to the closest of pts.
func nearestDistance(p r3.Vec, pts []r3.Vec) float64 {
	best := math.Inf(1)
	for _, q := range pts {
		best = math.Min(best, r3.Norm(r3.Sub(p, q)))
	}
	return best
}

// testConfig returns a validated-ready configuration over the two
// directories with a fixed seed.
func testConfig(reference, current string) *Config {
	cfg := DefaultConfig()
	cfg.Reference.Dir = reference
	cfg.Current.Dir = current
	cfg.SamplePoints = 4000
	cfg.Seed = 11
	return cfg
}
