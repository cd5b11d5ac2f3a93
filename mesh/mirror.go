package mesh

import (
	"fmt"
	"path/filepath"
	"regexp"
	"strings"
)

// Side tells whether a collection holds left or right anatomy.
type Side int

const (
	// SideRight is the canonical orientation; no mirroring.
	SideRight Side = iota
	// SideLeft is reflected across X before comparison.
	SideLeft
	// SideAuto defers to the directory naming convention.
	SideAuto
)

func (s Side) String() string {
	switch s {
	case SideLeft:
		return "left"
	case SideRight:
		return "right"
	case SideAuto:
		return "auto"
	}
	return fmt.Sprintf("Side(%d)", int(s))
}

// MarshalText implements encoding.TextMarshaler.
func (s Side) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *Side) UnmarshalText(b []byte) error {
	v, err := ParseSide(string(b))
	if err != nil {
		return err
	}
	*s = v
	return nil
}

// ParseSide accepts left, right or auto in any case. Empty means right.
func ParseSide(s string) (Side, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "left", "l":
		return SideLeft, nil
	case "right", "r", "":
		return SideRight, nil
	case "auto":
		return SideAuto, nil
	}
	return SideRight, fmt.Errorf("%q: %w", s, ErrInvalidSide)
}

// rightMarker matches "_R" or "_Right" not followed by a lowercase letter,
// so "_Rib" is not a marker.
var rightMarker = regexp.MustCompile(`_R(ight)?(\b|_|$|[^a-z])`)

// InferSide applies the legacy naming rule to the base name of dir: a name
// containing "_L" or "_Left" is left anatomy, anything else is right. A name
// carrying both a left and a right marker is rejected as ambiguous.
func InferSide(dir string) (Side, error) {
	base := filepath.Base(filepath.Clean(dir))
	hasLeft := strings.Contains(base, "_L")
	if !hasLeft {
		return SideRight, nil
	}
	if rightMarker.MatchString(base) {
		return SideRight, &InputError{Op: "infer side", Path: dir, Err: ErrAmbiguousSide}
	}
	return SideLeft, nil
}

// ResolveSide turns SideAuto into a concrete side using InferSide.
func ResolveSide(side Side, dir string) (Side, error) {
	if side != SideAuto {
		return side, nil
	}
	resolved, err := InferSide(dir)
	if err != nil {
		return side, err
	}
	Logger().Infof("inferred %s side from %s", resolved, filepath.Base(dir))
	return resolved, nil
}

// Mirror returns a copy of m reflected across the X axis for left anatomy
// and an unchanged copy for right anatomy. Face winding is kept as is;
// the renderer shades both sides of a face.
func Mirror(m *Mesh, side Side) *Mesh {
	if side != SideLeft {
		return m.Clone()
	}
	return ApplyTransform(m, ReflectXMatrix())
}
