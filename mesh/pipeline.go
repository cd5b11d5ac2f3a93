package mesh

import (
	"context"
	"fmt"
	"image/color"
	"time"

	"github.com/google/uuid"
)

// Result holds everything one alignment run produced.
type Result struct {
	RunID     uuid.UUID
	StartedAt time.Time
	Duration  time.Duration

	ReferenceSide Side
	CurrentSide   Side

	Reference *Mesh // Merged reference collection
	Input     *Mesh // Current collection as loaded from disk
	Original  *Mesh // Input after mirroring, before alignment
	Aligned   *Mesh // Original mapped through Registration.Transform

	Registration RegistrationResult
}

// Scene returns the three meshes painted for display. The original current
// mesh is shown as loaded, without mirroring.
func (r *Result) Scene() []*Mesh {
	input := r.Input
	if input == nil {
		input = r.Original
	}
	return PrepareScene(r.Reference, input, r.Aligned)
}

// Run executes the pipeline once: load both collections, mirror as
// configured, sample, register the current cloud onto the reference cloud
// and apply the transform to the current mesh. It never renders.
func Run(ctx context.Context, cfg *Config) (*Result, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	res := &Result{RunID: uuid.New(), StartedAt: time.Now()}
	log := Logger().With("run", res.RunID.String()[:8])

	refSide, err := ResolveSide(cfg.Reference.Side, cfg.Reference.Dir)
	if err != nil {
		return nil, err
	}
	curSide, err := ResolveSide(cfg.Current.Side, cfg.Current.Dir)
	if err != nil {
		return nil, err
	}
	res.ReferenceSide, res.CurrentSide = refSide, curSide

	reference, err := LoadCollection(cfg.Reference.Dir, cfg.Exclude)
	if err != nil {
		return nil, err
	}
	current, err := LoadCollection(cfg.Current.Dir, cfg.Exclude)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	res.Reference = Mirror(reference, refSide)
	res.Input = current
	res.Original = Mirror(current, curSide)
	log.Infof("sides: reference=%s current=%s", refSide, curSide)

	rng := NewRNG(cfg.Seed)
	refPoints, err := SamplePoints(res.Reference, cfg.SamplePoints, rng)
	if err != nil {
		return nil, fmt.Errorf("sampling reference: %w", err)
	}
	curPoints, err := SamplePoints(res.Original, cfg.SamplePoints, rng)
	if err != nil {
		return nil, fmt.Errorf("sampling current: %w", err)
	}
	log.Infof("sampled %d points per mesh", cfg.SamplePoints)

	reg, err := Register(ctx, curPoints, refPoints, cfg.ICP.ICPConfig())
	if err != nil {
		return nil, err
	}
	res.Registration = reg
	log.Infof("registration: %d iterations, converged=%t, mean residual %.6g, rms %.6g",
		reg.Iterations, reg.Converged, reg.MeanError, reg.RMSError)
	for _, w := range reg.Warnings {
		log.Warn("registration quality", "code", w.Code, "detail", w.Message)
	}

	res.Aligned = ApplyTransform(res.Original, reg.Transform)
	res.Aligned.Name = res.Original.Name + "_aligned"
	res.Duration = time.Since(res.StartedAt)
	return res, nil
}

// Preview loads the reference collection for display on its own, as it is
// on disk. The result carries no current mesh and an identity transform.
func Preview(ctx context.Context, cfg *Config) (*Result, error) {
	if err := cfg.ValidatePreview(); err != nil {
		return nil, err
	}
	res := &Result{
		RunID:        uuid.New(),
		StartedAt:    time.Now(),
		Registration: RegistrationResult{Transform: Identity4(), Scale: 1},
	}
	reference, err := LoadCollection(cfg.Reference.Dir, cfg.Exclude)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	res.Reference = reference
	res.Duration = time.Since(res.StartedAt)
	Logger().Infof("preview of %s: %d vertices, %d faces", cfg.Reference.Dir, len(reference.Vertices), len(reference.Faces))
	return res, nil
}

// PrepareScene paints the meshes for display (reference grey, original
// blue, aligned green) and computes vertex normals for shading. Nil meshes
// are skipped.
func PrepareScene(reference, original, aligned *Mesh) []*Mesh {
	var scene []*Mesh
	add := func(m *Mesh, c color.NRGBA) {
		if m == nil {
			return
		}
		p := WithNormals(m)
		p.Color = c
		scene = append(scene, p)
	}
	add(reference, ReferenceColor)
	add(original, OriginalColor)
	add(aligned, AlignedColor)
	return scene
}
