package pattern

import (
	"errors"

	"github.com/nasa-jpl/structlight/param"
	"github.com/nasa-jpl/structlight/retcode"
)

var (
	// ErrPatternRowsMissing is generated when the projector row count was never set
	ErrPatternRowsMissing = errors.New("pattern rows missing")

	// ErrPatternColumnsMissing is generated when the projector column count was never set
	ErrPatternColumnsMissing = errors.New("pattern columns missing")

	// ErrPatternColorMissing is generated when the pattern color was never set
	ErrPatternColorMissing = errors.New("pattern color missing")

	// ErrPatternOrientationMissing is generated when the pattern orientation was never set
	ErrPatternOrientationMissing = errors.New("pattern orientation missing")
)

// Geometry holds the structurally required settings shared by all codecs:
// the projector resolution and the color and orientation of the patterns.
// The zero value has every field unset.
type Geometry struct {
	Rows        int         `koanf:"PatternRows" yaml:"PatternRows"`
	Columns     int         `koanf:"PatternColumns" yaml:"PatternColumns"`
	Color       Color       `koanf:"PatternColor" yaml:"PatternColor"`
	Orientation Orientation `koanf:"PatternOrientation" yaml:"PatternOrientation"`
}

// Validate returns one named error per missing field
func (g Geometry) Validate() retcode.ReturnCode {
	rc := retcode.ReturnCode{}
	if g.Rows <= 0 {
		rc.AddError(ErrPatternRowsMissing)
	}
	if g.Columns <= 0 {
		rc.AddError(ErrPatternColumnsMissing)
	}
	if !g.Color.Valid() {
		rc.AddError(ErrPatternColorMissing)
	}
	if !g.Orientation.Valid() {
		rc.AddError(ErrPatternOrientationMissing)
	}
	return rc
}

// Resolution is the number of positions to address along the coded axis:
// columns for vertical stripes, rows for horizontal ones, 0 otherwise
func (g Geometry) Resolution() int {
	switch g.Orientation {
	case Vertical:
		return g.Columns
	case Horizontal:
		return g.Rows
	default:
		return 0
	}
}

// GeometryFromParams reads the geometry entries of a parameter set and
// validates them
func GeometryFromParams(s *param.Set) (Geometry, retcode.ReturnCode) {
	g := Geometry{}
	if s == nil {
		return g, g.Validate()
	}
	if err := s.Unmarshal(&g); err != nil {
		return g, retcode.New(err)
	}
	return g, g.Validate()
}

// Put writes the geometry entries into a parameter set
func (g Geometry) Put(s *param.Set) {
	s.Put("PatternRows", g.Rows)
	s.Put("PatternColumns", g.Columns)
	s.Put("PatternColor", g.Color)
	s.Put("PatternOrientation", g.Orientation)
}
