/*Package capture holds camera frames recorded while patterns were shown.

A Capture is matched to the pattern it was taken under by position in its
Sequence; the PatternID and CameraID fields are informational.
*/
package capture

import (
	"errors"
	"fmt"
	"image"
	"strings"

	"github.com/nasa-jpl/structlight/param"
	"github.com/nasa-jpl/structlight/raster"
)

var (
	// ErrDataTypeInvalid is generated when a capture's DataType tag is not set
	ErrDataTypeInvalid = errors.New("capture data type invalid")

	// ErrPayloadEmpty is generated when the payload named by the DataType tag is empty
	ErrPayloadEmpty = errors.New("capture payload empty")

	// ErrPayloadMismatch is generated when a payload other than the tagged one is populated
	ErrPayloadMismatch = errors.New("capture payload does not match data type")

	// ErrSequenceEmpty is generated when a sequence that must hold captures is empty
	ErrSequenceEmpty = errors.New("capture sequence empty")

	// ErrIndexOutOfRange is generated when an index is outside [0, Size())
	ErrIndexOutOfRange = errors.New("capture sequence index out of range")

	// ErrDataTypesDiffer is generated when a sequence mixes payload kinds
	ErrDataTypesDiffer = errors.New("capture sequence data types differ")
)

// DataType tags the payload of a capture
type DataType int

const (
	// InvalidData is the zero value; a capture with it cannot be added to a sequence
	InvalidData DataType = iota

	// ImageData is an in-memory raster
	ImageData

	// ImageFile is a path to an image on disk
	ImageFile
)

var dataTypeNames = map[DataType]string{
	InvalidData: "invalid",
	ImageData:   "image",
	ImageFile:   "file",
}

func (d DataType) String() string {
	if s, ok := dataTypeNames[d]; ok {
		return s
	}
	return fmt.Sprintf("DataType(%d)", int(d))
}

// MarshalText implements encoding.TextMarshaler
func (d DataType) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler, ignoring case
func (d *DataType) UnmarshalText(b []byte) error {
	s := strings.ToLower(string(b))
	for k, v := range dataTypeNames {
		if v == s {
			*d = k
			return nil
		}
	}
	return fmt.Errorf("unknown capture data type %q", string(b))
}

// Capture is one recorded camera frame
type Capture struct {
	CameraID  int
	PatternID int
	Type      DataType
	Image     image.Image
	Filename  string
}

// Validate checks the tag and the payload
func (c Capture) Validate() error {
	switch c.Type {
	case ImageData:
		if c.Image == nil || c.Image.Bounds().Empty() {
			return ErrPayloadEmpty
		}
		if c.Filename != "" {
			return ErrPayloadMismatch
		}
	case ImageFile:
		if c.Filename == "" {
			return ErrPayloadEmpty
		}
		if c.Image != nil {
			return ErrPayloadMismatch
		}
	default:
		return ErrDataTypeInvalid
	}
	return nil
}

// Plane returns the capture as an intensity plane, reading it from disk
// if the payload is a filename
func (c Capture) Plane() (*raster.Plane, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}
	if c.Type == ImageFile {
		return raster.Load(c.Filename)
	}
	return raster.FromImage(c.Image), nil
}

// Sequence is an ordered list of captures plus a settings block
type Sequence struct {
	captures []Capture
	settings *param.Set
}

// NewSequence returns an empty sequence
func NewSequence() *Sequence {
	return &Sequence{settings: param.New()}
}

// FromImages builds a sequence of ImageData captures, one per image, with
// PatternID set to the position
func FromImages(cameraID int, imgs ...image.Image) (*Sequence, error) {
	s := NewSequence()
	for i, img := range imgs {
		err := s.Add(Capture{CameraID: cameraID, PatternID: i, Type: ImageData, Image: img})
		if err != nil {
			return nil, fmt.Errorf("capture %d: %w", i, err)
		}
	}
	return s, nil
}

// Settings returns the settings block attached to the sequence
func (s *Sequence) Settings() *param.Set {
	if s.settings == nil {
		s.settings = param.New()
	}
	return s.settings
}

// Size returns the number of captures
func (s *Sequence) Size() int {
	return len(s.captures)
}

// Add validates c and appends it
func (s *Sequence) Add(c Capture) error {
	if err := c.Validate(); err != nil {
		return err
	}
	s.captures = append(s.captures, c)
	return nil
}

// AddSequence appends every capture of other, in order
func (s *Sequence) AddSequence(other *Sequence) error {
	for i, c := range other.captures {
		if err := c.Validate(); err != nil {
			return fmt.Errorf("capture %d: %w", i, err)
		}
	}
	s.captures = append(s.captures, other.captures...)
	return nil
}

func (s *Sequence) checkIndex(i int) error {
	if i < 0 || i >= len(s.captures) {
		return fmt.Errorf("%w: %d not in [0, %d)", ErrIndexOutOfRange, i, len(s.captures))
	}
	return nil
}

// Get returns the capture at index i
func (s *Sequence) Get(i int) (Capture, error) {
	if err := s.checkIndex(i); err != nil {
		return Capture{}, err
	}
	return s.captures[i], nil
}

// Set replaces the capture at index i with a validated c
func (s *Sequence) Set(i int, c Capture) error {
	if err := s.checkIndex(i); err != nil {
		return err
	}
	if err := c.Validate(); err != nil {
		return err
	}
	s.captures[i] = c
	return nil
}

// Remove deletes the capture at index i
func (s *Sequence) Remove(i int) error {
	if err := s.checkIndex(i); err != nil {
		return err
	}
	s.captures = append(s.captures[:i], s.captures[i+1:]...)
	return nil
}

// Clear removes all captures
func (s *Sequence) Clear() {
	s.captures = nil
}

// EqualDataTypes is true if all captures carry the same kind of payload.
// It is vacuously true for an empty sequence.
func (s *Sequence) EqualDataTypes() bool {
	for i := 1; i < len(s.captures); i++ {
		if s.captures[i].Type != s.captures[0].Type {
			return false
		}
	}
	return true
}

// Validate checks that the sequence is non-empty and homogeneous
func (s *Sequence) Validate() error {
	if len(s.captures) == 0 {
		return ErrSequenceEmpty
	}
	for i, c := range s.captures {
		if err := c.Validate(); err != nil {
			return fmt.Errorf("capture %d: %w", i, err)
		}
	}
	if !s.EqualDataTypes() {
		return ErrDataTypesDiffer
	}
	return nil
}

// Planes converts every capture to an intensity plane.  All frames must share
// dimensions.
func (s *Sequence) Planes() ([]*raster.Plane, error) {
	if err := s.Validate(); err != nil {
		return nil, err
	}
	out := make([]*raster.Plane, len(s.captures))
	for i, c := range s.captures {
		p, err := c.Plane()
		if err != nil {
			return nil, fmt.Errorf("capture %d: %w", i, err)
		}
		if i > 0 && !p.SameSize(out[0]) {
			return nil, fmt.Errorf("%w: capture %d is %dx%d, capture 0 is %dx%d",
				raster.ErrSizesDiffer, i, p.Width, p.Height, out[0].Width, out[0].Height)
		}
		out[i] = p
	}
	return out, nil
}
