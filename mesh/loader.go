package mesh

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/hschendel/stl"
	"gonum.org/v1/gonum/spatial/r3"
)

// MeshExtension is the file extension accepted by the loader (any case).
const MeshExtension = ".stl"

// ListMeshFiles returns the sorted paths of STL files directly inside dir,
// skipping files whose name contains any exclude substring. Matching is
// case-insensitive on both the extension and the substrings.
func ListMeshFiles(dir string, exclude []string) ([]string, error) {
	info, err := os.Stat(dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, &InputError{Op: "list", Path: dir, Err: ErrDirectoryNotFound}
		}
		return nil, &InputError{Op: "list", Path: dir, Err: err}
	}
	if !info.IsDir() {
		return nil, &InputError{Op: "list", Path: dir, Err: ErrNotDirectory}
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, &InputError{Op: "list", Path: dir, Err: err}
	}

	var files []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if !strings.EqualFold(filepath.Ext(name), MeshExtension) {
			continue
		}
		if isExcluded(name, exclude) {
			Logger().Debugf("skipping excluded mesh %s", name)
			continue
		}
		files = append(files, filepath.Join(dir, name))
	}
	sort.Strings(files)

	if len(files) == 0 {
		return nil, &InputError{Op: "list", Path: dir, Err: ErrNoMeshFiles}
	}
	return files, nil
}

func isExcluded(name string, exclude []string) bool {
	lower := strings.ToLower(name)
	for _, sub := range exclude {
		sub = strings.ToLower(strings.TrimSpace(sub))
		if sub != "" && strings.Contains(lower, sub) {
			return true
		}
	}
	return false
}

// LoadMeshFile reads one binary or ASCII STL file. Coincident corners
// within the file are welded into shared vertices.
func LoadMeshFile(path string) (*Mesh, error) {
	solid, err := stl.ReadFile(path)
	if err != nil {
		return nil, &InputError{Op: "load", Path: path, Err: err}
	}
	m := meshFromSolid(solid)
	if m.IsEmpty() {
		return nil, &InputError{Op: "load", Path: path, Err: ErrEmptyMesh}
	}
	m.Name = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	Logger().Debugf("loaded %s: %d vertices, %d faces", path, len(m.Vertices), len(m.Faces))
	return m, nil
}

// meshFromSolid converts a triangle soup into an indexed mesh. Corners with
// bit-identical coordinates map to the same vertex.
func meshFromSolid(solid *stl.Solid) *Mesh {
	m := &Mesh{Name: solid.Name}
	index := make(map[stl.Vec3]int, len(solid.Triangles))
	for _, tri := range solid.Triangles {
		var f Face
		for k, v := range tri.Vertices {
			idx, ok := index[v]
			if !ok {
				idx = len(m.Vertices)
				index[v] = idx
				m.Vertices = append(m.Vertices, r3.Vec{X: float64(v[0]), Y: float64(v[1]), Z: float64(v[2])})
			}
			f[k] = idx
		}
		m.Faces = append(m.Faces, f)
	}
	return m
}

// Merge unions meshes into one. Vertices are concatenated without
// de-duplication and face indices are offset accordingly, so the result
// has exactly the summed vertex and face counts.
func Merge(name string, meshes ...*Mesh) *Mesh {
	out := &Mesh{Name: name}
	for _, m := range meshes {
		if m == nil {
			continue
		}
		offset := len(out.Vertices)
		out.Vertices = append(out.Vertices, m.Vertices...)
		for _, f := range m.Faces {
			out.Faces = append(out.Faces, Face{f[0] + offset, f[1] + offset, f[2] + offset})
		}
	}
	return out
}

// LoadCollection lists the mesh files in dir, loads each one and merges them.
// Any failure aborts the whole collection.
func LoadCollection(dir string, exclude []string) (*Mesh, error) {
	files, err := ListMeshFiles(dir, exclude)
	if err != nil {
		return nil, err
	}

	meshes := make([]*Mesh, 0, len(files))
	for _, f := range files {
		m, err := LoadMeshFile(f)
		if err != nil {
			return nil, err
		}
		meshes = append(meshes, m)
	}

	merged := Merge(filepath.Base(filepath.Clean(dir)), meshes...)
	Logger().Infof("loaded %d mesh file(s) from %s: %d vertices, %d faces",
		len(files), dir, len(merged.Vertices), len(merged.Faces))
	return merged, nil
}

// solidFromMesh converts an indexed mesh back into an STL triangle list
// with per-face normals.
func solidFromMesh(m *Mesh) *stl.Solid {
	// A binary header starting with "solid" confuses ASCII detection.
	header := make([]byte, 80)
	copy(header, "meshalign "+m.Name)
	solid := &stl.Solid{Name: m.Name, BinaryHeader: header, Triangles: make([]stl.Triangle, len(m.Faces))}
	for i, f := range m.Faces {
		n := FaceNormal(m, i)
		tri := stl.Triangle{Normal: toVec3(n)}
		for k, idx := range f {
			tri.Vertices[k] = toVec3(m.Vertices[idx])
		}
		solid.Triangles[i] = tri
	}
	return solid
}

func toVec3(v r3.Vec) stl.Vec3 {
	return stl.Vec3{float32(v.X), float32(v.Y), float32(v.Z)}
}

// WriteSTL writes m as a binary STL stream.
func WriteSTL(w io.Writer, m *Mesh) error {
	if err := solidFromMesh(m).WriteAll(w); err != nil {
		return fmt.Errorf("writing STL: %w", err)
	}
	return nil
}

// SaveSTL writes m to path as binary STL.
func SaveSTL(path string, m *Mesh) error {
	return writeFile(path, func(w io.Writer) error { return WriteSTL(w, m) })
}
