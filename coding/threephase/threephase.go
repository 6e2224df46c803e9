/*Package threephase implements three-step phase shifting structured light
with Gray code period disambiguation.

Three sinusoidal fringes offset by 2π/3 are projected, optionally repeated,
followed by a Gray code block.  The fringes give the position within one
period to sub-pixel precision; the Gray code gives which half period the
pixel is in.  Unwrap combines the two.
*/
package threephase

import (
	"errors"
	"fmt"
	"image"
	"image/color"
	"math"
	"time"

	"github.com/nasa-jpl/structlight/capture"
	"github.com/nasa-jpl/structlight/coding/graycode"
	"github.com/nasa-jpl/structlight/dispmap"
	"github.com/nasa-jpl/structlight/mathx"
	"github.com/nasa-jpl/structlight/param"
	"github.com/nasa-jpl/structlight/pattern"
	"github.com/nasa-jpl/structlight/raster"
	"github.com/nasa-jpl/structlight/retcode"
	"github.com/nasa-jpl/structlight/util"
)

// Steps is the number of phase steps in one block
const Steps = 3

var (
	// ErrSettingsMissing is generated when the module is used before a successful Setup
	ErrSettingsMissing = errors.New("three phase settings missing, call Setup first")

	// ErrOnlyHybridUnwrapSupported is generated when UseHybridUnwrap is false
	ErrOnlyHybridUnwrapSupported = errors.New("only hybrid unwrap is supported")

	// ErrPixelsPerPeriodNotDivisible is generated when the period cannot be split
	// into Gray code blocks of half a period
	ErrPixelsPerPeriodNotDivisible = errors.New("pixels per period must be even and half of it a power of two")

	// ErrPixelsPerPeriodInvalid is generated when the period is under 4 pixels or wider than the pattern
	ErrPixelsPerPeriodInvalid = errors.New("pixels per period out of range")

	// ErrBitdepthInvalid is generated for an unset or 1-bit pattern bitdepth
	ErrBitdepthInvalid = errors.New("three phase bitdepth invalid, must be mono2..mono8 or rgb6..rgb24")

	// ErrRepeatPhasesInvalid is generated when RepeatPhases < 1
	ErrRepeatPhasesInvalid = errors.New("repeat phases must be at least 1")

	// ErrOversamplingInvalid is generated when Oversampling < 1
	ErrOversamplingInvalid = errors.New("oversampling must be at least 1")

	// ErrMinimumModulationInvalid is generated when MinimumModulation is negative
	ErrMinimumModulationInvalid = errors.New("minimum modulation must not be negative")

	// ErrOrientationInvalid is generated when the orientation is neither vertical nor horizontal
	ErrOrientationInvalid = graycode.ErrOrientationInvalid

	// ErrColorUnlit is generated for a pattern color that lights no projector channel
	ErrColorUnlit = graycode.ErrColorUnlit

	// ErrSequenceSizeInvalid is generated when the number of captures does not match the number of patterns
	ErrSequenceSizeInvalid = graycode.ErrSequenceSizeInvalid
)

// Config holds the options of the three-phase codec
type Config struct {
	// PixelsPerPeriod is the fringe period in projector pixels
	PixelsPerPeriod int `koanf:"PixelsPerPeriod" yaml:"PixelsPerPeriod"`

	// Frequency, if > 0, is the number of periods across the pattern and
	// overrides PixelsPerPeriod
	Frequency float64 `koanf:"Frequency" yaml:"Frequency"`

	Bitdepth pattern.Bitdepth `koanf:"Bitdepth" yaml:"Bitdepth"`

	// UseHybridUnwrap must be true; Gray code unwrapping is the only method
	UseHybridUnwrap bool `koanf:"UseHybridUnwrap" yaml:"UseHybridUnwrap"`

	// RepeatPhases is the number of fringe blocks, averaged when decoding
	RepeatPhases int `koanf:"RepeatPhases" yaml:"RepeatPhases"`

	// Oversampling is the number of camera frames the acquisition stage
	// averages into each capture
	Oversampling int `koanf:"Oversampling" yaml:"Oversampling"`

	// IncludeInverted and PixelThreshold configure the embedded Gray code block
	IncludeInverted bool    `koanf:"IncludeInverted" yaml:"IncludeInverted"`
	PixelThreshold  float64 `koanf:"PixelThreshold" yaml:"PixelThreshold"`

	// MinimumModulation is the smallest fringe amplitude, in 8-bit units, that
	// is decoded
	MinimumModulation float64 `koanf:"MinimumModulation" yaml:"MinimumModulation"`

	Exposure time.Duration `koanf:"Exposure" yaml:"Exposure"`
	Period   time.Duration `koanf:"Period" yaml:"Period"`
}

// DefaultConfig returns the default options
func DefaultConfig() Config {
	return Config{
		PixelsPerPeriod:   16,
		Bitdepth:          pattern.Mono8,
		UseHybridUnwrap:   true,
		RepeatPhases:      1,
		Oversampling:      1,
		IncludeInverted:   true,
		PixelThreshold:    5,
		MinimumModulation: 4,
		Exposure:          graycode.DefaultPeriod,
		Period:            graycode.DefaultPeriod,
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

// Module is a configured three-phase codec
type Module struct {
	geom  pattern.Geometry
	cfg   Config
	ready bool

	res  int
	ppp  int
	gray *graycode.Module
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

// Setup validates the geometry and options and configures the embedded Gray
// code module to address half periods.  All problems are reported at once.
func (m *Module) Setup(geom pattern.Geometry, cfg Config) retcode.ReturnCode {
	rc := geom.Validate()
	if geom.Orientation.Valid() && geom.Orientation != pattern.Vertical && geom.Orientation != pattern.Horizontal {
		rc.AddError(ErrOrientationInvalid)
	}
	if geom.Color == pattern.Black {
		rc.AddError(ErrColorUnlit)
	}
	if !cfg.UseHybridUnwrap {
		rc.AddError(ErrOnlyHybridUnwrapSupported)
	}
	if !cfg.Bitdepth.Valid() || cfg.Bitdepth == pattern.Mono1 || cfg.Bitdepth == pattern.RGB3 {
		rc.AddError(fmt.Errorf("%w: got %v", ErrBitdepthInvalid, cfg.Bitdepth))
	}
	if cfg.RepeatPhases < 1 {
		rc.AddError(ErrRepeatPhasesInvalid)
	}
	if cfg.Oversampling < 1 {
		rc.AddError(ErrOversamplingInvalid)
	}
	if cfg.MinimumModulation < 0 {
		rc.AddError(ErrMinimumModulationInvalid)
	}
	if rc.HasErrors() {
		return rc
	}

	res := geom.Resolution()
	ppp := cfg.PixelsPerPeriod
	if cfg.Frequency > 0 {
		ppp = int(mathx.Round(float64(res)/cfg.Frequency, 1))
	}
	switch {
	case ppp < 4 || ppp > res:
		rc.AddError(fmt.Errorf("%w: %d not in [4, %d]", ErrPixelsPerPeriodInvalid, ppp, res))
	case ppp%2 != 0 || !util.IsPowerOfTwo(ppp/2):
		rc.AddError(fmt.Errorf("%w: got %d", ErrPixelsPerPeriodNotDivisible, ppp))
	}
	if rc.HasErrors() {
		return rc
	}

	gcfg := graycode.DefaultConfig()
	gcfg.SequenceCount = util.CeilLog2(res) - util.CeilLog2(ppp/2)
	gcfg.IncludeInverted = cfg.IncludeInverted
	gcfg.PixelThreshold = cfg.PixelThreshold
	gcfg.Exposure = cfg.Exposure
	gcfg.Period = cfg.Period
	gray := graycode.New()
	rc.Append(gray.Setup(geom, gcfg))
	if rc.HasErrors() {
		return rc
	}

	cfg.PixelsPerPeriod = ppp
	m.geom = geom
	m.cfg = cfg
	m.res = res
	m.ppp = ppp
	m.gray = gray
	m.ready = true
	return rc
}

// Geometry returns the configured geometry
func (m *Module) Geometry() pattern.Geometry { return m.geom }

// Config returns the configured options, with PixelsPerPeriod resolved from
// Frequency if that was given
func (m *Module) Config() Config { return m.cfg }

// Resolution is the number of positions along the coded axis
func (m *Module) Resolution() int { return m.res }

// PixelsPerPeriod is the fringe period in projector pixels
func (m *Module) PixelsPerPeriod() int { return m.ppp }

// Gray returns the embedded Gray code module
func (m *Module) Gray() *graycode.Module { return m.gray }

// FringeCount is the number of fringe patterns, before the Gray code block
func (m *Module) FringeCount() int {
	return Steps * m.cfg.RepeatPhases
}

// PatternCount is the number of patterns generated and captures expected
func (m *Module) PatternCount() int {
	if !m.ready {
		return 0
	}
	return m.FringeCount() + m.gray.PatternCount()
}

// WriteSettings records the geometry and options in a parameter set
func (m *Module) WriteSettings(s *param.Set) {
	m.gray.WriteSettings(s)
	s.Put("PixelsPerPeriod", m.ppp)
	s.Put("Frequency", m.cfg.Frequency)
	s.Put("Bitdepth", m.cfg.Bitdepth.String())
	s.Put("UseHybridUnwrap", m.cfg.UseHybridUnwrap)
	s.Put("RepeatPhases", m.cfg.RepeatPhases)
	s.Put("Oversampling", m.cfg.Oversampling)
	s.Put("MinimumModulation", m.cfg.MinimumModulation)
}

// GeneratePatternSequence clears seq and fills it with RepeatPhases blocks of
// three fringes followed by the Gray code block.  Oversampling and
// RepeatPhases are recorded in the sequence settings for the acquisition stage.
func (m *Module) GeneratePatternSequence(seq *pattern.Sequence) retcode.ReturnCode {
	if !m.ready {
		return retcode.New(ErrSettingsMissing)
	}
	seq.Clear()
	m.WriteSettings(seq.Settings())
	rc := retcode.ReturnCode{}
	for r := 0; r < m.cfg.RepeatPhases; r++ {
		for k := 0; k < Steps; k++ {
			rc.AddError(seq.Add(m.fringe(seq.Size(), k)))
		}
	}
	rc.Append(m.gray.AppendPatterns(seq))
	return rc
}

func (m *Module) fringe(id, step int) pattern.Pattern {
	w, h := m.geom.Columns, m.geom.Rows
	top := float64(m.cfg.Bitdepth.Levels() - 1)
	line := make([]uint8, m.res)
	for pos := range line {
		phi := mathx.TwoPi * float64(pos) / float64(m.ppp)
		q := math.Round(mathx.FringeIntensity(phi, step) * top)
		line[pos] = uint8(math.Round(q * 255 / top))
	}
	at := func(x, y int) uint8 {
		if m.geom.Orientation == pattern.Vertical {
			return line[x]
		}
		return line[y]
	}

	var img image.Image
	if m.cfg.Bitdepth.IsRGB() {
		lr, lg, lb := m.geom.Color.Channels()
		rgba := image.NewRGBA(image.Rect(0, 0, w, h))
		for y := 0; y < h; y++ {
			for x := 0; x < w; x++ {
				v := at(x, y)
				c := color.RGBA{A: 255}
				if lr {
					c.R = v
				}
				if lg {
					c.G = v
				}
				if lb {
					c.B = v
				}
				rgba.SetRGBA(x, y, c)
			}
		}
		img = rgba
	} else {
		gray := image.NewGray(image.Rect(0, 0, w, h))
		for y := 0; y < h; y++ {
			for x := 0; x < w; x++ {
				gray.Pix[y*gray.Stride+x] = at(x, y)
			}
		}
		img = gray
	}
	return pattern.Pattern{
		ID:          id,
		Exposure:    m.cfg.Exposure,
		Period:      m.cfg.Period,
		Bitdepth:    m.cfg.Bitdepth,
		Color:       m.geom.Color,
		Orientation: m.geom.Orientation,
		Type:        pattern.ImageData,
		Image:       img,
	}
}

// DecodeCaptureSequence decodes a capture stack into a correspondence map of
// sub-pixel projector coordinates.  The map is nil whenever the ReturnCode
// has errors.
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
	fringes := m.FringeCount()
	for _, p := range planes[:fringes] {
		if !p.SameSize(planes[fringes]) {
			return nil, retcode.New(raster.ErrSizesDiffer)
		}
	}
	coarse, rc := m.gray.DecodePlanes(planes[fringes:])
	if rc.HasErrors() {
		return nil, rc
	}

	var steps [Steps]*raster.Plane
	for k := range steps {
		block := make([]*raster.Plane, m.cfg.RepeatPhases)
		for r := range block {
			block[r] = planes[r*Steps+k]
		}
		avg, err := raster.Mean(block)
		if err != nil {
			rc.AddError(err)
			return nil, rc
		}
		steps[k] = avg
		if st := avg.Statistics(); st.Max-st.Min < 2*m.cfg.MinimumModulation {
			rc.AddWarning(fmt.Sprintf("low dynamic range in fringe step %d: %.2f to %.2f", k, st.Min, st.Max))
		}
	}
	w, h := coarse.Width(), coarse.Height()
	out := dispmap.New(w, h)
	halfPeriod := m.ppp / 2
	var weak int
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			i := y*w + x
			phase, mod := mathx.ThreeStepPhase(steps[0].Pix[i], steps[1].Pix[i], steps[2].Pix[i])
			if mod < m.cfg.MinimumModulation {
				weak++
				continue
			}
			c := coarse.At(x, y)
			if !dispmap.IsValid(c) {
				continue
			}
			if pos, ok := Unwrap(int(c)/halfPeriod, phase, m.ppp, m.res); ok {
				out.Set(x, y, pos)
			}
		}
	}
	if n := w * h; n > 0 && weak*2 > n {
		rc.AddWarning(fmt.Sprintf("fringe modulation below %g on %d of %d pixels", m.cfg.MinimumModulation, weak, n))
	}
	return out, rc
}

// Unwrap combines a half-period index h from the Gray code with a wrapped
// phase in [0, 2π) into an absolute coordinate along the coded axis.
//
// The coarse estimate is the center of half period h.  Of the period indices
// n0-1, n0, and n0+1 around n0 = h/2, the one whose position
// (n + phase/2π)·ppp is closest to the coarse estimate wins, with n0 winning
// ties.  This absorbs an off-by-one h at period seams, where quantization or
// blur puts the Gray code boundary a little away from the phase wrap.
// Candidates outside [0, resolution) are not considered; if none remain the
// pixel is undecodable.
func Unwrap(h int, phase float64, ppp, resolution int) (float64, bool) {
	if h < 0 || ppp <= 0 {
		return 0, false
	}
	period := float64(ppp)
	coarse := (float64(h) + 0.5) * period / 2
	frac := phase / mathx.TwoPi
	n0 := h / 2

	best, bestDist := 0., math.Inf(1)
	for _, n := range [...]int{n0, n0 - 1, n0 + 1} {
		pos := (float64(n) + frac) * period
		if pos < 0 || pos >= float64(resolution) {
			continue
		}
		if d := math.Abs(pos - coarse); d < bestDist {
			best, bestDist = pos, d
		}
	}
	return best, !math.IsInf(bestDist, 1)
}
