/*Package coding selects between the structured light codecs.

The set of codecs is closed: GrayCode and ThreePhase.  Each pairs a pattern
generator with the decoder that inverts it, so the two always agree on
pattern count and order.
*/
package coding

import (
	"errors"
	"fmt"
	"strings"

	"github.com/nasa-jpl/structlight/capture"
	"github.com/nasa-jpl/structlight/coding/graycode"
	"github.com/nasa-jpl/structlight/coding/threephase"
	"github.com/nasa-jpl/structlight/dispmap"
	"github.com/nasa-jpl/structlight/param"
	"github.com/nasa-jpl/structlight/pattern"
	"github.com/nasa-jpl/structlight/retcode"
)

// ErrMethodInvalid is generated when no codec exists for a method
var ErrMethodInvalid = errors.New("coding method invalid")

// Method names a codec
type Method int

const (
	// InvalidMethod is the zero value
	InvalidMethod Method = iota

	// GrayCode is binary reflected Gray code
	GrayCode

	// ThreePhase is three-step phase shifting unwrapped with Gray code
	ThreePhase
)

var methodNames = []string{"invalid", "graycode", "threephase"}

func (m Method) String() string {
	if m < 0 || int(m) >= len(methodNames) {
		return fmt.Sprintf("Method(%d)", int(m))
	}
	return methodNames[m]
}

// MarshalText implements encoding.TextMarshaler
func (m Method) MarshalText() ([]byte, error) {
	return []byte(m.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.  Case, dashes, and
// underscores are ignored, so "three-phase" and "ThreePhase" both parse.
func (m *Method) UnmarshalText(text []byte) error {
	s := strings.ToLower(string(text))
	s = strings.NewReplacer("-", "", "_", "", " ", "").Replace(s)
	for i := 1; i < len(methodNames); i++ {
		if methodNames[i] == s {
			*m = Method(i)
			return nil
		}
	}
	return fmt.Errorf("%w: %q", ErrMethodInvalid, string(text))
}

// Codec generates a pattern sequence and decodes the captures taken under it
type Codec interface {
	// Method names the codec
	Method() Method

	// PatternCount is the number of patterns generated and captures expected
	PatternCount() int

	// GeneratePatternSequence clears seq and fills it with the patterns
	GeneratePatternSequence(seq *pattern.Sequence) retcode.ReturnCode

	// DecodeCaptureSequence decodes captures, in pattern order, into a fresh
	// correspondence map.  The map is nil when the ReturnCode has errors.
	DecodeCaptureSequence(seq *capture.Sequence) (*dispmap.Map, retcode.ReturnCode)
}

// Gray is the Gray code codec
type Gray struct {
	*graycode.Module
}

// Method returns GrayCode
func (Gray) Method() Method { return GrayCode }

// Phase is the three-phase codec
type Phase struct {
	*threephase.Module
}

// Method returns ThreePhase
func (Phase) Method() Method { return ThreePhase }

// New builds and sets up the codec for method from the geometry and options
// in s.  Missing geometry is reported with one error per missing entry.
func New(method Method, s *param.Set) (Codec, retcode.ReturnCode) {
	switch method {
	case GrayCode:
		m, rc := graycode.NewFromParams(s)
		if rc.HasErrors() {
			return nil, rc
		}
		return Gray{m}, rc
	case ThreePhase:
		m, rc := threephase.NewFromParams(s)
		if rc.HasErrors() {
			return nil, rc
		}
		return Phase{m}, rc
	default:
		return nil, retcode.New(fmt.Errorf("%w: %v", ErrMethodInvalid, method))
	}
}

// FromParams reads the method from the "Method" entry of s and builds the codec
func FromParams(s *param.Set) (Codec, retcode.ReturnCode) {
	var m Method
	if err := m.UnmarshalText([]byte(s.String("Method", ""))); err != nil {
		return nil, retcode.New(err)
	}
	return New(m, s)
}
