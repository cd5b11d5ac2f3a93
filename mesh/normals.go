package mesh

import (
	"math"

	"gonum.org/v1/gonum/spatial/r3"
)

// ComputeVertexNormals returns area-weighted unit normals, one per vertex.
// Vertices not used by any face get a zero normal.
func ComputeVertexNormals(m *Mesh) []r3.Vec {
	normals := make([]r3.Vec, len(m.Vertices))
	for _, f := range m.Faces {
		a, b, c := m.Vertices[f[0]], m.Vertices[f[1]], m.Vertices[f[2]]
		// Unnormalized cross product carries twice the face area as weight.
		n := r3.Cross(r3.Sub(b, a), r3.Sub(c, a))
		for _, idx := range f {
			normals[idx] = r3.Add(normals[idx], n)
		}
	}
	for i, n := range normals {
		if l := r3.Norm(n); l > 0 {
			normals[i] = r3.Scale(1/l, n)
		}
	}
	return normals
}

// WithNormals returns a copy of m carrying freshly computed vertex normals.
func WithNormals(m *Mesh) *Mesh {
	out := m.Clone()
	out.Normals = ComputeVertexNormals(out)
	return out
}

// FaceNormal returns the unit normal of face i, or zero for a degenerate face.
func FaceNormal(m *Mesh, i int) r3.Vec {
	a, b, c := m.Triangle(i)
	n := r3.Cross(r3.Sub(b, a), r3.Sub(c, a))
	if l := r3.Norm(n); l > 0 {
		return r3.Scale(1/l, n)
	}
	return r3.Vec{}
}

// TriangleArea returns the area of the triangle abc.
func TriangleArea(a, b, c r3.Vec) float64 {
	return 0.5 * r3.Norm(r3.Cross(r3.Sub(b, a), r3.Sub(c, a)))
}

// SurfaceArea sums the areas of all faces.
func SurfaceArea(m *Mesh) float64 {
	var total float64
	for i := range m.Faces {
		total += TriangleArea(m.Triangle(i))
	}
	return total
}

// Bounds returns the bounding box of pts. An empty input gives a zero box.
func Bounds(pts []r3.Vec) Box {
	if len(pts) == 0 {
		return Box{}
	}
	b := Box{
		Min: r3.Vec{X: math.Inf(1), Y: math.Inf(1), Z: math.Inf(1)},
		Max: r3.Vec{X: math.Inf(-1), Y: math.Inf(-1), Z: math.Inf(-1)},
	}
	for _, p := range pts {
		b.Min.X, b.Max.X = math.Min(b.Min.X, p.X), math.Max(b.Max.X, p.X)
		b.Min.Y, b.Max.Y = math.Min(b.Min.Y, p.Y), math.Max(b.Max.Y, p.Y)
		b.Min.Z, b.Max.Z = math.Min(b.Min.Z, p.Z), math.Max(b.Max.Z, p.Z)
	}
	return b
}

// Centroid returns the mean of pts.
func Centroid(pts []r3.Vec) r3.Vec {
	if len(pts) == 0 {
		return r3.Vec{}
	}
	var sum r3.Vec
	for _, p := range pts {
		sum = r3.Add(sum, p)
	}
	return r3.Scale(1/float64(len(pts)), sum)
}
