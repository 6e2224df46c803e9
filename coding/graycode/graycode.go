/*Package graycode implements binary reflected Gray code structured light.

Each bit-plane of the Gray code of a projector column (or row) is projected as
a black and white stripe pattern, most significant plane first, optionally
followed by its complement.  Decoding compares every camera pixel's plain and
inverse intensity per plane, assembles the Gray word, and converts it back to
the projector coordinate.

Using fewer planes than the resolution requires addresses blocks of
2^(required-planes) pixels instead of single pixels; the three-phase codec
relies on this to obtain half-period indices.
*/
package graycode

import (
	"errors"
	"fmt"
	"image"
	"math"
	"time"

	"github.com/nasa-jpl/structlight/capture"
	"github.com/nasa-jpl/structlight/dispmap"
	"github.com/nasa-jpl/structlight/param"
	"github.com/nasa-jpl/structlight/pattern"
	"github.com/nasa-jpl/structlight/raster"
	"github.com/nasa-jpl/structlight/retcode"
	"github.com/nasa-jpl/structlight/util"
)

var (
	// ErrSettingsMissing is generated when the module is used before a successful Setup
	ErrSettingsMissing = errors.New("gray code settings missing, call Setup first")

	// ErrOrientationInvalid is generated when the orientation is neither vertical nor horizontal
	ErrOrientationInvalid = errors.New("gray code orientation must be vertical or horizontal")

	// ErrColorUnlit is generated for a pattern color that lights no projector channel
	ErrColorUnlit = errors.New("pattern color must light at least one channel")

	// ErrResolutionTooSmall is generated when fewer than two positions would be coded
	ErrResolutionTooSmall = errors.New("gray code resolution must be at least 2")

	// ErrSequenceCountInvalid is generated when SequenceCount is negative or larger than the resolution requires
	ErrSequenceCountInvalid = errors.New("gray code sequence count invalid")

	// ErrThresholdInvalid is generated when a threshold is negative
	ErrThresholdInvalid = errors.New("gray code threshold invalid")

	// ErrSequenceSizeInvalid is generated when the number of captures does not match the number of patterns
	ErrSequenceSizeInvalid = errors.New("capture sequence size does not match pattern count")
)

// DefaultPeriod is one frame of a 60 Hz projector
const DefaultPeriod = 16667 * time.Microsecond

// Config holds the options of the Gray code codec
type Config struct {
	// SequenceCount is the number of bit-planes to project.  0 uses as many as
	// the resolution requires; fewer planes address coarser blocks.
	SequenceCount int `koanf:"SequenceCount" yaml:"SequenceCount"`

	// IncludeInverted follows every plane with its complement
	IncludeInverted bool `koanf:"IncludeInverted" yaml:"IncludeInverted"`

	// PixelThreshold is the minimum intensity difference, in 8-bit units, for a
	// bit to be trusted
	PixelThreshold float64 `koanf:"PixelThreshold" yaml:"PixelThreshold"`

	// Threshold is the fixed intensity bits are compared to when
	// IncludeInverted is false
	Threshold float64 `koanf:"Threshold" yaml:"Threshold"`

	// MeasureRegions is the longest camera run, in pixels, that is refined into
	// a sub-block ramp.  0 disables refinement.
	MeasureRegions float64 `koanf:"MeasureRegions" yaml:"MeasureRegions"`

	Exposure time.Duration `koanf:"Exposure" yaml:"Exposure"`
	Period   time.Duration `koanf:"Period" yaml:"Period"`
}

// DefaultConfig returns the default options
func DefaultConfig() Config {
	return Config{
		IncludeInverted: true,
		PixelThreshold:  5,
		Threshold:       127.5,
		Exposure:        DefaultPeriod,
		Period:          DefaultPeriod,
	}
}

// ConfigFromParams overlays the entries of s onto the defaults
func ConfigFromParams(s *param.Set) (Config, error) {
	cfg := DefaultConfig()
	if s == nil {
		return cfg, nil
	}
	err := s.Unmarshal(&cfg)
	return cfg, err
}

// Module is a configured Gray code codec.  The zero value must be Setup
// before use.
type Module struct {
	geom  pattern.Geometry
	cfg   Config
	ready bool

	res        int
	planes     int
	shift      uint
	blockWidth int
}

// New returns a module that has not been set up
func New() *Module {
	return &Module{}
}

// NewFromParams returns a module set up from the geometry and options in s
func NewFromParams(s *param.Set) (*Module, retcode.ReturnCode) {
	m := New()
	geom, rc := pattern.GeometryFromParams(s)
	cfg, err := ConfigFromParams(s)
	rc.AddError(err)
	if rc.HasErrors() {
		return m, rc
	}
	return m, m.Setup(geom, cfg)
}

// Setup validates the geometry and options and, if every check passes,
// makes them the module's configuration.  All problems are reported at once.
// A failed Setup leaves the previous configuration in place.
func (m *Module) Setup(geom pattern.Geometry, cfg Config) retcode.ReturnCode {
	rc := geom.Validate()
	if geom.Orientation.Valid() && geom.Orientation != pattern.Vertical && geom.Orientation != pattern.Horizontal {
		rc.AddError(ErrOrientationInvalid)
	}
	if geom.Color == pattern.Black {
		rc.AddError(ErrColorUnlit)
	}
	if cfg.PixelThreshold < 0 || cfg.Threshold < 0 || cfg.MeasureRegions < 0 {
		rc.AddError(ErrThresholdInvalid)
	}
	if rc.HasErrors() {
		return rc
	}
	res := geom.Resolution()
	required := util.CeilLog2(res)
	if res < 2 {
		rc.AddError(fmt.Errorf("%w: got %d", ErrResolutionTooSmall, res))
		return rc
	}
	planes := required
	if cfg.SequenceCount != 0 {
		if cfg.SequenceCount < 1 || cfg.SequenceCount > required {
			rc.AddError(fmt.Errorf("%w: %d not in [1, %d]", ErrSequenceCountInvalid, cfg.SequenceCount, required))
			return rc
		}
		planes = cfg.SequenceCount
	}
	m.geom = geom
	m.cfg = cfg
	m.res = res
	m.planes = planes
	m.shift = uint(required - planes)
	m.blockWidth = 1 << m.shift
	m.ready = true
	return rc
}

// Geometry returns the configured geometry
func (m *Module) Geometry() pattern.Geometry { return m.geom }

// Config returns the configured options
func (m *Module) Config() Config { return m.cfg }

// Resolution is the number of positions along the coded axis
func (m *Module) Resolution() int { return m.res }

// Planes is the number of bit-planes projected
func (m *Module) Planes() int { return m.planes }

// BlockWidth is the number of projector pixels sharing one code
func (m *Module) BlockWidth() int { return m.blockWidth }

// PatternCount is the number of patterns generated and captures expected
func (m *Module) PatternCount() int {
	if !m.ready {
		return 0
	}
	if m.cfg.IncludeInverted {
		return 2 * m.planes
	}
	return m.planes
}

// Code returns the Gray code word projected at position pos
func (m *Module) Code(pos int) uint32 {
	return util.BinaryToGray(uint32(pos) >> m.shift)
}

// WriteSettings records the geometry and options in a parameter set
func (m *Module) WriteSettings(s *param.Set) {
	m.geom.Put(s)
	s.Put("SequenceCount", m.planes)
	s.Put("IncludeInverted", m.cfg.IncludeInverted)
	s.Put("PixelThreshold", m.cfg.PixelThreshold)
	s.Put("Threshold", m.cfg.Threshold)
	s.Put("MeasureRegions", m.cfg.MeasureRegions)
	s.Put("Exposure", m.cfg.Exposure.String())
	s.Put("Period", m.cfg.Period.String())
}

// GeneratePatternSequence clears seq and fills it with the stripe patterns,
// most significant plane first, each optionally followed by its complement
func (m *Module) GeneratePatternSequence(seq *pattern.Sequence) retcode.ReturnCode {
	if !m.ready {
		return retcode.New(ErrSettingsMissing)
	}
	seq.Clear()
	m.WriteSettings(seq.Settings())
	return m.AppendPatterns(seq)
}

// AppendPatterns adds the stripe patterns to the end of seq without clearing
// it.  Pattern IDs continue from the current size of seq.
func (m *Module) AppendPatterns(seq *pattern.Sequence) retcode.ReturnCode {
	if !m.ready {
		return retcode.New(ErrSettingsMissing)
	}
	rc := retcode.ReturnCode{}
	for k := 0; k < m.planes; k++ {
		bit := uint(m.planes - 1 - k)
		rc.AddError(seq.Add(m.pattern(seq.Size(), bit, false)))
		if m.cfg.IncludeInverted {
			rc.AddError(seq.Add(m.pattern(seq.Size(), bit, true)))
		}
	}
	return rc
}

func (m *Module) pattern(id int, bit uint, invert bool) pattern.Pattern {
	w, h := m.geom.Columns, m.geom.Rows
	img := image.NewGray(image.Rect(0, 0, w, h))
	// one lookup per projector position, then replicate along the other axis
	line := make([]uint8, m.res)
	for pos := range line {
		if util.GetBit(m.Code(pos), bit) != invert {
			line[pos] = 255
		}
	}
	for y := 0; y < h; y++ {
		row := img.Pix[y*img.Stride : y*img.Stride+w]
		if m.geom.Orientation == pattern.Vertical {
			copy(row, line)
			continue
		}
		v := line[y]
		for x := range row {
			row[x] = v
		}
	}
	return pattern.Pattern{
		ID:          id,
		Exposure:    m.cfg.Exposure,
		Period:      m.cfg.Period,
		Bitdepth:    pattern.Mono1,
		Color:       m.geom.Color,
		Orientation: m.geom.Orientation,
		Type:        pattern.ImageData,
		Image:       img,
	}
}

// DecodeCaptureSequence decodes a capture stack into a correspondence map.
// The map is nil whenever the ReturnCode has errors.
func (m *Module) DecodeCaptureSequence(seq *capture.Sequence) (*dispmap.Map, retcode.ReturnCode) {
	if !m.ready {
		return nil, retcode.New(ErrSettingsMissing)
	}
	if seq.Size() != m.PatternCount() {
		return nil, retcode.New(fmt.Errorf("%w: got %d captures, expected %d",
			ErrSequenceSizeInvalid, seq.Size(), m.PatternCount()))
	}
	planes, err := seq.Planes()
	if err != nil {
		return nil, retcode.New(err)
	}
	return m.DecodePlanes(planes)
}

// DecodePlanes decodes already loaded intensity planes, in pattern order
func (m *Module) DecodePlanes(planes []*raster.Plane) (*dispmap.Map, retcode.ReturnCode) {
	if !m.ready {
		return nil, retcode.New(ErrSettingsMissing)
	}
	if len(planes) != m.PatternCount() {
		return nil, retcode.New(fmt.Errorf("%w: got %d planes, expected %d",
			ErrSequenceSizeInvalid, len(planes), m.PatternCount()))
	}
	for i := 1; i < len(planes); i++ {
		if !planes[i].SameSize(planes[0]) {
			return nil, retcode.New(raster.ErrSizesDiffer)
		}
	}
	rc := retcode.ReturnCode{}
	w, h := planes[0].Width, planes[0].Height
	out := dispmap.New(w, h)
	words := make([]uint32, w*h)
	valid := make([]bool, w*h)
	for i := range valid {
		valid[i] = true
	}

	pt := m.cfg.PixelThreshold
	for k := 0; k < m.planes; k++ {
		bit := uint(m.planes - 1 - k)
		var plain, inv []float64
		if m.cfg.IncludeInverted {
			plain, inv = planes[2*k].Pix, planes[2*k+1].Pix
		} else {
			plain = planes[k].Pix
		}
		contrast := raster.NewPlane(w, h)
		for i, v := range plain {
			ref := m.cfg.Threshold
			if inv != nil {
				ref = inv[i]
			}
			contrast.Pix[i] = math.Abs(v - ref)
			if !valid[i] {
				continue
			}
			switch {
			case v > ref+pt:
				words[i] = util.SetBit(words[i], bit, true)
			case ref > v+pt:
				// zero bit
			default:
				valid[i] = false
			}
		}
		if st := contrast.Statistics(); len(plain) > 0 && st.Mean < 2*pt {
			rc.AddWarning(fmt.Sprintf("low dynamic range in bit-plane %d: mean contrast %.2f, spread %.2f", k, st.Mean, st.StdDev))
		}
	}

	for i, word := range words {
		if !valid[i] {
			continue
		}
		pos := int(util.GrayToBinary(word)) * m.blockWidth
		if pos >= m.res {
			continue
		}
		out.Set(i%w, i/w, float64(pos))
	}
	if m.cfg.MeasureRegions > 0 {
		m.refine(out)
	}
	return out, rc
}

// refine replaces short runs of one code that are directly followed by the
// next code with a linear ramp across the block
func (m *Module) refine(out *dispmap.Map) {
	bw := float64(m.blockWidth)
	limit := int(m.cfg.MeasureRegions)
	var outer, inner int
	at := func(o, i int) (x, y int) { return i, o }
	if m.geom.Orientation == pattern.Horizontal {
		outer, inner = out.Width(), out.Height()
		at = func(o, i int) (x, y int) { return o, i }
	} else {
		outer, inner = out.Height(), out.Width()
	}
	for o := 0; o < outer; o++ {
		start := 0
		for start < inner {
			c := out.At(at(o, start))
			end := start + 1
			for end < inner && out.At(at(o, end)) == c {
				end++
			}
			n := end - start
			if dispmap.IsValid(c) && end < inner && n <= limit && out.At(at(o, end)) == c+bw {
				for j := 0; j < n; j++ {
					x, y := at(o, start+j)
					out.Set(x, y, c+bw*float64(j)/float64(n))
				}
			}
			start = end
		}
	}
}
