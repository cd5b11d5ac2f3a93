package mesh

import (
	"context"
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/spatial/kdtree"
	"gonum.org/v1/gonum/spatial/r3"
	"gonum.org/v1/gonum/stat"
)

// ICPConfig holds the stopping rules and options of the registration.
// Distances are in the units of the input meshes.
type ICPConfig struct {
	MaxIterations        int     // Hard cap on iterations
	ConvergenceThreshold float64 // Stop when the mean distance changes by less than this
	AllowScale           bool    // Estimate a uniform scale as well (similarity transform)
	AlignCentroids       bool    // Translate source centroid onto target centroid first
	MaxMeanResidual      float64 // Flag results above this mean distance; 0 disables
	Initial              *Matrix4
}

// DefaultICPConfig returns the defaults used by the pipeline.
func DefaultICPConfig() ICPConfig {
	return ICPConfig{
		MaxIterations:        1000,
		ConvergenceThreshold: 1e-6,
		AlignCentroids:       true,
	}
}

// RegistrationResult is the outcome of Register.
type RegistrationResult struct {
	Transform  Matrix4               `json:"transform"`
	Distances  []float64             `json:"-"`
	Iterations int                   `json:"iterations"`
	Converged  bool                  `json:"converged"`
	MeanError  float64               `json:"meanError"`
	RMSError   float64               `json:"rmsError"`
	MaxError   float64               `json:"maxError"`
	StdDev     float64               `json:"stdDev"`
	Scale      float64               `json:"scale"`
	Warnings   []RegistrationWarning `json:"warnings,omitempty"`
}

// HasWarning reports whether the result carries the given flag.
func (r RegistrationResult) HasWarning(code WarningCode) bool {
	for _, w := range r.Warnings {
		if w.Code == code {
			return true
		}
	}
	return false
}

// Register aligns source onto target with point-to-point ICP and returns the
// transform mapping source coordinates into target coordinates. Poor
// convergence is reported through Warnings, never as an error.
func Register(ctx context.Context, source, target []r3.Vec, cfg ICPConfig) (RegistrationResult, error) {
	if len(source) < 3 || len(target) < 3 {
		return RegistrationResult{}, fmt.Errorf("registering %d onto %d points: %w", len(source), len(target), ErrTooFewPoints)
	}
	if cfg.MaxIterations <= 0 {
		cfg.MaxIterations = DefaultICPConfig().MaxIterations
	}

	tree := newNearestIndex(target)

	current := Identity4()
	if cfg.Initial != nil {
		current = *cfg.Initial
	}
	if cfg.AlignCentroids {
		moved := Centroid(current.TransformPoints(source))
		current = TranslationMatrix(r3.Sub(Centroid(target), moved)).Mul(current)
	}

	moved := current.TransformPoints(source)
	matched, dists := tree.match(moved)
	prevErr := stat.Mean(dists, nil)
	Logger().Debugf("icp start: %d source, %d target points, mean distance %.6g", len(source), len(target), prevErr)

	result := RegistrationResult{Scale: 1}
	for iter := 1; iter <= cfg.MaxIterations; iter++ {
		if err := ctx.Err(); err != nil {
			return RegistrationResult{}, fmt.Errorf("registration cancelled after %d iterations: %w", iter-1, err)
		}

		step, scale := bestFitTransform(moved, matched, cfg.AllowScale)
		current = step.Mul(current)
		result.Scale *= scale

		moved = current.TransformPoints(source)
		matched, dists = tree.match(moved)
		meanErr := stat.Mean(dists, nil)
		result.Iterations = iter

		Logger().Debugf("icp iteration %d: mean distance %.6g", iter, meanErr)
		if math.Abs(prevErr-meanErr) < cfg.ConvergenceThreshold {
			result.Converged = true
			break
		}
		prevErr = meanErr
	}

	result.Transform = current
	result.Distances = dists
	summarize(&result)

	if !result.Converged {
		result.Warnings = append(result.Warnings, RegistrationWarning{
			Code:    WarnIterationCap,
			Message: fmt.Sprintf("stopped at iteration cap %d without converging", cfg.MaxIterations),
		})
	}
	if cfg.MaxMeanResidual > 0 && result.MeanError > cfg.MaxMeanResidual {
		result.Warnings = append(result.Warnings, RegistrationWarning{
			Code:    WarnHighResidual,
			Message: fmt.Sprintf("mean residual %.6g exceeds threshold %.6g", result.MeanError, cfg.MaxMeanResidual),
		})
	}
	return result, nil
}

func summarize(r *RegistrationResult) {
	d := r.Distances
	r.MeanError = stat.Mean(d, nil)
	r.StdDev = stat.PopStdDev(d, nil)
	r.MaxError = floats.Max(d)
	sq := make([]float64, len(d))
	floats.MulTo(sq, d, d)
	r.RMSError = math.Sqrt(stat.Mean(sq, nil))
}

// nearestIndex answers nearest-neighbour queries against a fixed cloud.
type nearestIndex struct {
	tree *kdtree.Tree
}

func newNearestIndex(pts []r3.Vec) *nearestIndex {
	// kdtree.New reorders its input, so it gets its own slice.
	data := make(kdtree.Points, len(pts))
	for i, p := range pts {
		data[i] = kdtree.Point{p.X, p.Y, p.Z}
	}
	return &nearestIndex{tree: kdtree.New(data, false)}
}

// match returns, for every query point, its nearest indexed point and the
// Euclidean distance to it.
func (n *nearestIndex) match(query []r3.Vec) ([]r3.Vec, []float64) {
	matched := make([]r3.Vec, len(query))
	dists := make([]float64, len(query))
	for i, q := range query {
		c, d2 := n.tree.Nearest(kdtree.Point{q.X, q.Y, q.Z})
		p := c.(kdtree.Point)
		matched[i] = r3.Vec{X: p[0], Y: p[1], Z: p[2]}
		dists[i] = math.Sqrt(d2)
	}
	return matched, dists
}

// bestFitTransform returns the transform minimizing the summed squared
// distance between src[i] and dst[i] (Kabsch), with a uniform scale factor
// when allowScale is set (Umeyama). Reflections are never returned.
func bestFitTransform(src, dst []r3.Vec, allowScale bool) (Matrix4, float64) {
	cs, cd := Centroid(src), Centroid(dst)

	h := mat.NewDense(3, 3, nil)
	var srcVar float64
	for i := range src {
		a := r3.Sub(src[i], cs)
		b := r3.Sub(dst[i], cd)
		srcVar += r3.Norm2(a)
		av := [3]float64{a.X, a.Y, a.Z}
		bv := [3]float64{b.X, b.Y, b.Z}
		for r := 0; r < 3; r++ {
			for c := 0; c < 3; c++ {
				h.Set(r, c, h.At(r, c)+av[r]*bv[c])
			}
		}
	}

	var svd mat.SVD
	if !svd.Factorize(h, mat.SVDFull) {
		return TranslationMatrix(r3.Sub(cd, cs)), 1
	}
	var u, v mat.Dense
	svd.UTo(&u)
	svd.VTo(&v)
	sigma := svd.Values(nil)

	var vu mat.Dense
	vu.Mul(&v, u.T())
	d := 1.0
	if mat.Det(&vu) < 0 {
		d = -1
	}
	diag := mat.NewDiagDense(3, []float64{1, 1, d})
	var vd, rot mat.Dense
	vd.Mul(&v, diag)
	rot.Mul(&vd, u.T())

	scale := 1.0
	if allowScale && srcVar > 0 {
		scale = (sigma[0] + sigma[1] + d*sigma[2]) / srcVar
	}

	m := Identity4()
	for r := 0; r < 3; r++ {
		for c := 0; c < 3; c++ {
			m[r][c] = scale * rot.At(r, c)
		}
	}
	rc := m.TransformPoint(cs)
	m[0][3], m[1][3], m[2][3] = cd.X-rc.X, cd.Y-rc.Y, cd.Z-rc.Z
	return m, scale
}
