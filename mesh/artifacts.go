package mesh

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/multierr"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
)

// Artifact file names inside the output directory.
const (
	AlignedMeshFile = "aligned.stl"
	TransformFile   = "transform.txt"
	SummaryFile     = "result.json"
	ResidualsFile   = "residuals.png"
)

// Summary is the serializable digest of a run, written to result.json and
// published over MQTT.
type Summary struct {
	RunID         string                `json:"runId"`
	StartedAt     time.Time             `json:"startedAt"`
	DurationMS    int64                 `json:"durationMs"`
	ReferenceDir  string                `json:"referenceDir,omitempty"`
	CurrentDir    string                `json:"currentDir,omitempty"`
	ReferenceSide string                `json:"referenceSide"`
	CurrentSide   string                `json:"currentSide"`
	Reference     MeshStats             `json:"reference"`
	Current       MeshStats             `json:"current"`
	Transform     Matrix4               `json:"transform"`
	Iterations    int                   `json:"iterations"`
	Converged     bool                  `json:"converged"`
	MeanError     float64               `json:"meanError"`
	RMSError      float64               `json:"rmsError"`
	MaxError      float64               `json:"maxError"`
	Scale         float64               `json:"scale"`
	Warnings      []RegistrationWarning `json:"warnings,omitempty"`
}

// MeshStats describes one merged collection.
type MeshStats struct {
	Name     string  `json:"name"`
	Vertices int     `json:"vertices"`
	Faces    int     `json:"faces"`
	Area     float64 `json:"area"`
	Bounds   Box     `json:"bounds"`
}

func statsOf(m *Mesh) MeshStats {
	if m == nil {
		return MeshStats{}
	}
	return MeshStats{
		Name:     m.Name,
		Vertices: len(m.Vertices),
		Faces:    len(m.Faces),
		Area:     SurfaceArea(m),
		Bounds:   Bounds(m.Vertices),
	}
}

// Summarize builds the Summary of res. cfg may be nil.
func Summarize(res *Result, cfg *Config) Summary {
	s := Summary{
		RunID:         res.RunID.String(),
		StartedAt:     res.StartedAt,
		DurationMS:    res.Duration.Milliseconds(),
		ReferenceSide: res.ReferenceSide.String(),
		CurrentSide:   res.CurrentSide.String(),
		Reference:     statsOf(res.Reference),
		Current:       statsOf(res.Input),
		Transform:     res.Registration.Transform,
		Iterations:    res.Registration.Iterations,
		Converged:     res.Registration.Converged,
		MeanError:     res.Registration.MeanError,
		RMSError:      res.Registration.RMSError,
		MaxError:      res.Registration.MaxError,
		Scale:         res.Registration.Scale,
		Warnings:      res.Registration.Warnings,
	}
	if cfg != nil {
		s.ReferenceDir = cfg.Reference.Dir
		s.CurrentDir = cfg.Current.Dir
	}
	return s
}

// WriteSummary encodes the summary as indented JSON.
func WriteSummary(w io.Writer, s Summary) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(s); err != nil {
		return fmt.Errorf("encoding summary: %w", err)
	}
	return nil
}

// SaveArtifacts writes the aligned mesh, the transform dump, the JSON
// summary and a residual histogram into dir, creating it if needed. It
// returns the paths written. Rendered views are handled by SaveViews.
func SaveArtifacts(dir string, res *Result, cfg *Config) ([]string, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("creating output directory: %w", err)
	}

	var written []string
	write := func(name string, fn func(io.Writer) error) error {
		path := filepath.Join(dir, name)
		if err := writeFile(path, fn); err != nil {
			return err
		}
		written = append(written, path)
		return nil
	}

	if err := write(AlignedMeshFile, func(w io.Writer) error { return WriteSTL(w, res.Aligned) }); err != nil {
		return written, err
	}
	if err := write(TransformFile, func(w io.Writer) error { return WriteMatrix(w, res.Registration.Transform) }); err != nil {
		return written, err
	}
	if err := write(SummaryFile, func(w io.Writer) error { return WriteSummary(w, Summarize(res, cfg)) }); err != nil {
		return written, err
	}

	d := res.Registration.Distances
	if len(d) > 0 && floats.Max(d) > floats.Min(d) {
		if err := write(ResidualsFile, func(w io.Writer) error { return WriteResidualHistogram(w, d) }); err != nil {
			return written, err
		}
	}

	Logger().Infof("wrote %d artifact(s) to %s", len(written), dir)
	return written, nil
}

// WriteResidualHistogram plots the residual distances as a PNG histogram.
func WriteResidualHistogram(w io.Writer, distances []float64) error {
	p := plot.New()
	p.Title.Text = "Residual distance after registration"
	p.X.Label.Text = "distance"
	p.Y.Label.Text = "points"

	h, err := plotter.NewHist(plotter.Values(distances), 50)
	if err != nil {
		return fmt.Errorf("building histogram: %w", err)
	}
	p.Add(h)

	wt, err := p.WriterTo(6*vg.Inch, 4*vg.Inch, "png")
	if err != nil {
		return fmt.Errorf("rendering histogram: %w", err)
	}
	if _, err := wt.WriteTo(w); err != nil {
		return fmt.Errorf("writing histogram: %w", err)
	}
	return nil
}

// writeFile creates path, runs fn on it and folds the close error into the
// result.
func writeFile(path string, fn func(io.Writer) error) (err error) {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating %s: %w", path, err)
	}
	defer func() { err = multierr.Append(err, f.Close()) }()
	return fn(f)
}

// NewResultRenderer builds a scene renderer for res with a legend of the
// registration figures.
func NewResultRenderer(res *Result, view ViewConfig) *SceneRenderer {
	r := NewSceneRenderer(res.Scene(), view)
	if res.Aligned == nil {
		if res.Reference != nil {
			r.Legend = []string{res.Reference.Name}
		}
		return r
	}
	reg := res.Registration
	r.Legend = []string{
		fmt.Sprintf("iterations %d, converged %t", reg.Iterations, reg.Converged),
		fmt.Sprintf("mean %.4g  rms %.4g  max %.4g", reg.MeanError, reg.RMSError, reg.MaxError),
	}
	return r
}

// SaveViews renders res once per format into dir as view.<format>. Any
// failure is returned as a *VisualizationError.
func SaveViews(dir string, res *Result, cfg *Config) ([]string, error) {
	renderer := NewResultRenderer(res, cfg.View)
	var written []string
	var errs error
	for _, name := range cfg.Output.Formats {
		format, err := ParseImageFormat(name)
		if err != nil {
			errs = multierr.Append(errs, err)
			continue
		}
		path := filepath.Join(dir, "view."+string(format))
		if err := writeFile(path, func(w io.Writer) error { return renderer.Render(w, format) }); err != nil {
			errs = multierr.Append(errs, err)
			continue
		}
		written = append(written, path)
	}
	if errs != nil {
		return written, &VisualizationError{Op: "save views", Err: errs}
	}
	return written, nil
}
