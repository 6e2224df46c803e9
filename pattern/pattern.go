/*Package pattern describes projectable patterns and ordered sequences of them.

A Pattern is one unit shown by the projector.  A Sequence is the ordered list
produced by a codec; its order is the projection order, and captures are
matched back to it by index.
*/
package pattern

import (
	"errors"
	"image"
	"time"

	"github.com/nasa-jpl/structlight/param"
)

var (
	// ErrDataTypeInvalid is generated when a pattern's DataType tag is not set
	ErrDataTypeInvalid = errors.New("pattern data type invalid")

	// ErrPayloadEmpty is generated when the payload named by the DataType tag is empty
	ErrPayloadEmpty = errors.New("pattern payload empty")

	// ErrPayloadMismatch is generated when a payload other than the tagged one is populated
	ErrPayloadMismatch = errors.New("pattern payload does not match data type")

	// ErrBitdepthInvalid is generated when a pattern's bitdepth is not set
	ErrBitdepthInvalid = errors.New("pattern bitdepth invalid")

	// ErrColorInvalid is generated when a pattern's color is not set
	ErrColorInvalid = errors.New("pattern color invalid")
)

// Pattern is one projectable unit
type Pattern struct {
	// ID identifies the pattern, typically its index in the sequence it was generated into
	ID int

	// Exposure is the time the pattern is lit
	Exposure time.Duration

	// Period is the time from the start of this pattern to the start of the next
	Period time.Duration

	// Bitdepth is the pixel depth the pattern is quantized to
	Bitdepth Bitdepth

	// Color is the projector color the pattern is shown with
	Color Color

	// Orientation is the stripe direction, used to pick the decode axis
	Orientation Orientation

	// Type tags which one of Image, Filename, or Params is the payload
	Type DataType

	Image    image.Image
	Filename string
	Params   *param.Set
}

// Validate checks the tag, the payload, and the enum fields of the pattern
func (p Pattern) Validate() error {
	hasImage := p.Image != nil
	hasFile := p.Filename != ""
	hasParams := p.Params != nil
	switch p.Type {
	case ImageData:
		if !hasImage || p.Image.Bounds().Empty() {
			return ErrPayloadEmpty
		}
		if hasFile || hasParams {
			return ErrPayloadMismatch
		}
	case ImageFile:
		if !hasFile {
			return ErrPayloadEmpty
		}
		if hasImage || hasParams {
			return ErrPayloadMismatch
		}
	case ParameterData:
		if !hasParams {
			return ErrPayloadEmpty
		}
		if hasImage || hasFile {
			return ErrPayloadMismatch
		}
	default:
		return ErrDataTypeInvalid
	}
	if !p.Bitdepth.Valid() {
		return ErrBitdepthInvalid
	}
	if !p.Color.Valid() {
		return ErrColorInvalid
	}
	return nil
}
