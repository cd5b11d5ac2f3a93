package mesh

import (
	"bufio"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"

	"gonum.org/v1/gonum/spatial/r3"
)

// Matrix4 is a row-major 4x4 homogeneous transform. Points are column
// vectors: p' = M * [x y z 1]^T.
type Matrix4 [4][4]float64

// Identity4 returns the identity transform.
func Identity4() Matrix4 {
	return Matrix4{
		{1, 0, 0, 0},
		{0, 1, 0, 0},
		{0, 0, 1, 0},
		{0, 0, 0, 1},
	}
}

// TranslationMatrix returns a pure translation by t.
func TranslationMatrix(t r3.Vec) Matrix4 {
	m := Identity4()
	m[0][3], m[1][3], m[2][3] = t.X, t.Y, t.Z
	return m
}

// RotationMatrix returns a rotation of angle radians about axis
// (right-handed, Rodrigues form). The axis need not be unit length.
func RotationMatrix(axis r3.Vec, angle float64) Matrix4 {
	u := r3.Unit(axis)
	c, s := math.Cos(angle), math.Sin(angle)
	k := 1 - c
	return Matrix4{
		{c + u.X*u.X*k, u.X*u.Y*k - u.Z*s, u.X*u.Z*k + u.Y*s, 0},
		{u.Y*u.X*k + u.Z*s, c + u.Y*u.Y*k, u.Y*u.Z*k - u.X*s, 0},
		{u.Z*u.X*k - u.Y*s, u.Z*u.Y*k + u.X*s, c + u.Z*u.Z*k, 0},
		{0, 0, 0, 1},
	}
}

// ReflectXMatrix negates the X coordinate.
func ReflectXMatrix() Matrix4 {
	m := Identity4()
	m[0][0] = -1
	return m
}

// Mul returns a*b, which applies b first and then a.
func (a Matrix4) Mul(b Matrix4) Matrix4 {
	var out Matrix4
	for i := 0; i < 4; i++ {
		for j := 0; j < 4; j++ {
			var sum float64
			for k := 0; k < 4; k++ {
				sum += a[i][k] * b[k][j]
			}
			out[i][j] = sum
		}
	}
	return out
}

// TransformPoint applies m to p as a homogeneous point.
func (m Matrix4) TransformPoint(p r3.Vec) r3.Vec {
	x := m[0][0]*p.X + m[0][1]*p.Y + m[0][2]*p.Z + m[0][3]
	y := m[1][0]*p.X + m[1][1]*p.Y + m[1][2]*p.Z + m[1][3]
	z := m[2][0]*p.X + m[2][1]*p.Y + m[2][2]*p.Z + m[2][3]
	w := m[3][0]*p.X + m[3][1]*p.Y + m[3][2]*p.Z + m[3][3]
	if w != 1 && w != 0 {
		return r3.Vec{X: x / w, Y: y / w, Z: z / w}
	}
	return r3.Vec{X: x, Y: y, Z: z}
}

// TransformPoints applies m to every point and returns a new slice.
func (m Matrix4) TransformPoints(pts []r3.Vec) []r3.Vec {
	out := make([]r3.Vec, len(pts))
	for i, p := range pts {
		out[i] = m.TransformPoint(p)
	}
	return out
}

// Linear returns the upper-left 3x3 block.
func (m Matrix4) Linear() [3][3]float64 {
	return [3][3]float64{
		{m[0][0], m[0][1], m[0][2]},
		{m[1][0], m[1][1], m[1][2]},
		{m[2][0], m[2][1], m[2][2]},
	}
}

// Translation returns the translation column.
func (m Matrix4) Translation() r3.Vec {
	return r3.Vec{X: m[0][3], Y: m[1][3], Z: m[2][3]}
}

// Determinant3 returns the determinant of the linear block.
func (m Matrix4) Determinant3() float64 {
	return m[0][0]*(m[1][1]*m[2][2]-m[1][2]*m[2][1]) -
		m[0][1]*(m[1][0]*m[2][2]-m[1][2]*m[2][0]) +
		m[0][2]*(m[1][0]*m[2][1]-m[1][1]*m[2][0])
}

// RigidInverse inverts a rigid (or uniformly scaled) transform without a
// general 4x4 inversion: R^-1 = R^T / s^2, t' = -R^-1 t.
func (m Matrix4) RigidInverse() Matrix4 {
	col := r3.Vec{X: m[0][0], Y: m[1][0], Z: m[2][0]}
	s2 := r3.Norm2(col)
	if s2 == 0 {
		s2 = 1
	}
	var inv Matrix4
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			inv[i][j] = m[j][i] / s2
		}
	}
	t := m.Translation()
	for i := 0; i < 3; i++ {
		inv[i][3] = -(inv[i][0]*t.X + inv[i][1]*t.Y + inv[i][2]*t.Z)
	}
	inv[3] = [4]float64{0, 0, 0, 1}
	return inv
}

// IsRigid reports whether the linear block is a proper rotation
// (orthonormal, determinant +1) and the bottom row is [0 0 0 1].
func (m Matrix4) IsRigid(tol float64) bool {
	if math.Abs(m[3][0])+math.Abs(m[3][1])+math.Abs(m[3][2])+math.Abs(m[3][3]-1) > tol {
		return false
	}
	r := m.Linear()
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			var dot float64
			for k := 0; k < 3; k++ {
				dot += r[k][i] * r[k][j]
			}
			want := 0.0
			if i == j {
				want = 1
			}
			if math.Abs(dot-want) > tol {
				return false
			}
		}
	}
	return math.Abs(m.Determinant3()-1) <= tol
}

// ApproxEqual compares two transforms element-wise.
func (m Matrix4) ApproxEqual(o Matrix4, tol float64) bool {
	for i := 0; i < 4; i++ {
		for j := 0; j < 4; j++ {
			if math.Abs(m[i][j]-o[i][j]) > tol {
				return false
			}
		}
	}
	return true
}

// RotationAngle returns the rotation angle (radians) of the linear block.
func (m Matrix4) RotationAngle() float64 {
	tr := (m[0][0] + m[1][1] + m[2][2] - 1) / 2
	return math.Acos(math.Max(-1, math.Min(1, tr)))
}

// ApplyTransform returns a new mesh with every vertex mapped through t.
// Faces, name and color carry over; normals are recomputed when present.
func ApplyTransform(m *Mesh, t Matrix4) *Mesh {
	out := &Mesh{
		Name:     m.Name,
		Vertices: t.TransformPoints(m.Vertices),
		Faces:    append([]Face(nil), m.Faces...),
		Color:    m.Color,
	}
	if m.Normals != nil {
		out.Normals = ComputeVertexNormals(out)
	}
	return out
}

// WriteMatrix writes m as four whitespace-separated rows.
func WriteMatrix(w io.Writer, m Matrix4) error {
	for _, row := range m {
		if _, err := fmt.Fprintf(w, "%.12g %.12g %.12g %.12g\n", row[0], row[1], row[2], row[3]); err != nil {
			return fmt.Errorf("writing matrix: %w", err)
		}
	}
	return nil
}

// ReadMatrix parses the format produced by WriteMatrix. Blank lines and
// lines starting with '#' are ignored.
func ReadMatrix(r io.Reader) (Matrix4, error) {
	var m Matrix4
	row := 0
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if row >= 4 {
			return m, fmt.Errorf("matrix has more than 4 rows")
		}
		fields := strings.Fields(line)
		if len(fields) != 4 {
			return m, fmt.Errorf("matrix row %d: want 4 values, got %d", row+1, len(fields))
		}
		for j, f := range fields {
			v, err := strconv.ParseFloat(f, 64)
			if err != nil {
				return m, fmt.Errorf("matrix row %d: %w", row+1, err)
			}
			m[row][j] = v
		}
		row++
	}
	if err := sc.Err(); err != nil {
		return m, fmt.Errorf("reading matrix: %w", err)
	}
	if row != 4 {
		return m, fmt.Errorf("matrix has %d rows, want 4", row)
	}
	return m, nil
}
