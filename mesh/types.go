package mesh

import (
	"image/color"

	"gonum.org/v1/gonum/spatial/r3"
)

// Face is a triangle given as three indices into Mesh.Vertices.
type Face [3]int

// Mesh is a triangulated surface. Operations on a Mesh return new values
// and leave the receiver untouched.
type Mesh struct {
	Name     string
	Vertices []r3.Vec
	Faces    []Face

	// Normals holds one unit normal per vertex once ComputeVertexNormals
	// has run. It is nil otherwise.
	Normals []r3.Vec

	// Color is the uniform display color. A zero alpha means unpainted.
	Color color.NRGBA
}

// Clone returns a deep copy of m.
func (m *Mesh) Clone() *Mesh {
	out := &Mesh{
		Name:     m.Name,
		Vertices: append([]r3.Vec(nil), m.Vertices...),
		Faces:    append([]Face(nil), m.Faces...),
		Color:    m.Color,
	}
	if m.Normals != nil {
		out.Normals = append([]r3.Vec(nil), m.Normals...)
	}
	return out
}

// IsEmpty reports whether m has no triangles.
func (m *Mesh) IsEmpty() bool {
	return m == nil || len(m.Faces) == 0 || len(m.Vertices) == 0
}

// Triangle returns the corner positions of face i.
func (m *Mesh) Triangle(i int) (a, b, c r3.Vec) {
	f := m.Faces[i]
	return m.Vertices[f[0]], m.Vertices[f[1]], m.Vertices[f[2]]
}

// Painted returns a copy of m with the given display color.
func (m *Mesh) Painted(c color.NRGBA) *Mesh {
	out := m.Clone()
	out.Color = c
	return out
}

// Display colors used for the comparison scene.
var (
	ReferenceColor = color.NRGBA{R: 128, G: 128, B: 128, A: 255}
	OriginalColor  = color.NRGBA{R: 0, G: 0, B: 255, A: 255}
	AlignedColor   = color.NRGBA{R: 0, G: 255, B: 0, A: 255}
)

// Box is an axis-aligned bounding box.
type Box struct {
	Min r3.Vec `json:"min"`
	Max r3.Vec `json:"max"`
}

// Contains reports whether p lies in b, allowing tol slack on every side.
func (b Box) Contains(p r3.Vec, tol float64) bool {
	return p.X >= b.Min.X-tol && p.X <= b.Max.X+tol &&
		p.Y >= b.Min.Y-tol && p.Y <= b.Max.Y+tol &&
		p.Z >= b.Min.Z-tol && p.Z <= b.Max.Z+tol
}

// Size returns the edge lengths of b.
func (b Box) Size() r3.Vec {
	return r3.Sub(b.Max, b.Min)
}

// Center returns the midpoint of b.
func (b Box) Center() r3.Vec {
	return r3.Scale(0.5, r3.Add(b.Min, b.Max))
}

// CollectionConfig names one input directory and its anatomical side.
type CollectionConfig struct {
	Dir  string `yaml:"dir" json:"dir"`
	Side Side   `yaml:"side" json:"side"`
}

// ICPSettings is the YAML form of ICPConfig.
type ICPSettings struct {
	MaxIterations        int     `yaml:"maxIterations" json:"maxIterations"`
	ConvergenceThreshold float64 `yaml:"convergenceThreshold" json:"convergenceThreshold"`
	AllowScale           bool    `yaml:"allowScale" json:"allowScale"`
	AlignCentroids       *bool   `yaml:"alignCentroids,omitempty" json:"alignCentroids,omitempty"` // Default true
	MaxMeanResidual      float64 `yaml:"maxMeanResidual,omitempty" json:"maxMeanResidual,omitempty"`
}

// OutputConfig controls the headless artifacts.
type OutputConfig struct {
	Dir     string   `yaml:"dir" json:"dir"`
	Formats []string `yaml:"formats,omitempty" json:"formats,omitempty"` // png, svg, webp
}

// ViewConfig sets the camera and image size of rendered views.
type ViewConfig struct {
	Azimuth   float64 `yaml:"azimuth" json:"azimuth"`     // Degrees about +Z
	Elevation float64 `yaml:"elevation" json:"elevation"` // Degrees above the XY plane
	Width     int     `yaml:"width" json:"width"`         // Pixels for raster output
	Height    int     `yaml:"height" json:"height"`
}

// Config represents the full configuration file
type Config struct {
	Reference    CollectionConfig `yaml:"reference" json:"reference"`
	Current      CollectionConfig `yaml:"current" json:"current"`
	Exclude      []string         `yaml:"exclude,omitempty" json:"exclude,omitempty"`
	SamplePoints int              `yaml:"samplePoints" json:"samplePoints"`
	Seed         int64            `yaml:"seed,omitempty" json:"seed,omitempty"` // 0 picks a random seed
	ICP          ICPSettings      `yaml:"icp" json:"icp"`
	Output       OutputConfig     `yaml:"output" json:"output"`
	View         ViewConfig       `yaml:"view" json:"view"`
	MQTT         MQTTConfig       `yaml:"mqtt,omitempty" json:"mqtt,omitempty"`
	LogLevel     string           `yaml:"logLevel,omitempty" json:"logLevel,omitempty"`
}

// MQTTConfig holds MQTT connection settings
type MQTTConfig struct {
	Broker        string `yaml:"broker" json:"broker"`
	PublishPrefix string `yaml:"publishPrefix" json:"publishPrefix"`
	ClientID      string `yaml:"clientId" json:"clientId"`
	Username      string `yaml:"username,omitempty" json:"username,omitempty"`
	Password      string `yaml:"password,omitempty" json:"password,omitempty"`
}

// ICPConfig converts the settings into engine options.
func (s ICPSettings) ICPConfig() ICPConfig {
	cfg := DefaultICPConfig()
	if s.MaxIterations > 0 {
		cfg.MaxIterations = s.MaxIterations
	}
	if s.ConvergenceThreshold > 0 {
		cfg.ConvergenceThreshold = s.ConvergenceThreshold
	}
	cfg.AllowScale = s.AllowScale
	if s.AlignCentroids != nil {
		cfg.AlignCentroids = *s.AlignCentroids
	}
	cfg.MaxMeanResidual = s.MaxMeanResidual
	return cfg
}
