package mesh

import (
	"errors"
	"fmt"
)

// Sentinel causes carried inside an InputError.
var (
	ErrDirectoryNotFound  = errors.New("directory not found")
	ErrNotDirectory       = errors.New("not a directory")
	ErrNoMeshFiles        = errors.New("no matching mesh files")
	ErrEmptyMesh          = errors.New("mesh has no surface area")
	ErrInvalidSampleCount = errors.New("sample count must be positive")
	ErrAmbiguousSide      = errors.New("directory name carries both left and right markers")
	ErrInvalidSide        = errors.New("side must be left, right or auto")
	ErrTooFewPoints       = errors.New("registration needs at least 3 points per cloud")
)

// InputError reports a problem with the data handed to the pipeline:
// a missing directory, no matching files, a corrupt mesh or a bad setting.
// It is always fatal.
type InputError struct {
	Op   string
	Path string
	Err  error
}

func (e *InputError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("%s %s: %v", e.Op, e.Path, e.Err)
}

func (e *InputError) Unwrap() error { return e.Err }

// VisualizationError reports a rendering or viewer failure. Callers use it
// to tell display problems apart from computation failures.
type VisualizationError struct {
	Op  string
	Err error
}

func (e *VisualizationError) Error() string {
	return fmt.Sprintf("visualization %s: %v", e.Op, e.Err)
}

func (e *VisualizationError) Unwrap() error { return e.Err }

// WarningCode identifies a registration quality flag.
type WarningCode string

const (
	WarnIterationCap WarningCode = "iteration_cap"
	WarnHighResidual WarningCode = "high_residual"
)

// RegistrationWarning is a non-fatal quality flag attached to a
// registration result. It never aborts the pipeline.
type RegistrationWarning struct {
	Code    WarningCode `json:"code"`
	Message string      `json:"message"`
}

func (w RegistrationWarning) String() string {
	return fmt.Sprintf("%s: %s", w.Code, w.Message)
}

// IsInputError reports whether err is or wraps an InputError.
func IsInputError(err error) bool {
	var ie *InputError
	return errors.As(err, &ie)
}

// IsVisualizationError reports whether err is or wraps a VisualizationError.
func IsVisualizationError(err error) bool {
	var ve *VisualizationError
	return errors.As(err, &ve)
}
