package threephase

import (
	"image"
	"math"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/nasa-jpl/structlight/capture"
	"github.com/nasa-jpl/structlight/coding/graycode"
	"github.com/nasa-jpl/structlight/mathx"
	"github.com/nasa-jpl/structlight/param"
	"github.com/nasa-jpl/structlight/pattern"
	"github.com/nasa-jpl/structlight/raster"
)

func geometry(rows, cols int, o pattern.Orientation) pattern.Geometry {
	return pattern.Geometry{Rows: rows, Columns: cols, Color: pattern.White, Orientation: o}
}

func setup(t *testing.T, g pattern.Geometry, cfg Config) *Module {
	t.Helper()
	m := New()
	if rc := m.Setup(g, cfg); rc.HasErrors() {
		t.Fatalf("setup failed: %v", rc.Err())
	}
	return m
}

func project(t *testing.T, m *Module) *capture.Sequence {
	t.Helper()
	pats := pattern.NewSequence()
	if rc := m.GeneratePatternSequence(pats); rc.HasErrors() {
		t.Fatalf("generate failed: %v", rc.Err())
	}
	caps := capture.NewSequence()
	for i := 0; i < pats.Size(); i++ {
		p, _ := pats.Get(i)
		if err := caps.Add(capture.Capture{PatternID: p.ID, Type: capture.ImageData, Image: p.Image}); err != nil {
			t.Fatal(err)
		}
	}
	return caps
}

func TestUnwrapExactBoundary(t *testing.T) {
	// true position 32 with P=16 sits on a period seam; phase is 0
	for _, h := range []int{3, 4} {
		pos, ok := Unwrap(h, 0, 16, 256)
		if !ok || pos != 32 {
			t.Errorf("h=%d: expected 32 got %g (ok=%v)", h, pos, ok)
		}
	}
}

func TestUnwrapPhaseJustBelowTwoPi(t *testing.T) {
	eps := 1e-3
	phase := mathx.TwoPi - eps
	expected := (1 + phase/mathx.TwoPi) * 16
	// h=3 is correct, h=4 is the Gray code reading one block late
	for _, h := range []int{3, 4} {
		pos, ok := Unwrap(h, phase, 16, 256)
		if !ok || math.Abs(pos-expected) > 1e-9 {
			t.Errorf("h=%d: expected %g got %g", h, expected, pos)
		}
	}
	// the raw coarse index would have put it a whole period later
	if raw := (float64(4/2) + phase/mathx.TwoPi) * 16; math.Abs(raw-expected) < 15 {
		t.Fatalf("test premise broken: raw %g", raw)
	}
}

func TestUnwrapJustInsidePeriod(t *testing.T) {
	x := 31.9
	phase := mathx.WrapPhase(mathx.TwoPi * x / 16)
	pos, ok := Unwrap(4, phase, 16, 256)
	if !ok || math.Abs(pos-x) > 1e-9 {
		t.Errorf("expected %g got %g", x, pos)
	}
}

func TestUnwrapEveryHalfPeriod(t *testing.T) {
	const ppp, res = 16, 128
	for i := 0; i < res*10; i++ {
		x := float64(i) / 10
		phase := mathx.WrapPhase(mathx.TwoPi * x / ppp)
		h := int(x) / (ppp / 2)
		pos, ok := Unwrap(h, phase, ppp, res)
		if !ok || math.Abs(pos-x) > 1e-9 {
			t.Fatalf("x=%g h=%d: got %g (ok=%v)", x, h, pos, ok)
		}
	}
}

func TestUnwrapRange(t *testing.T) {
	if _, ok := Unwrap(-1, 1, 16, 64); ok {
		t.Error("expected negative h to fail")
	}
	// last half period of a 64 wide pattern, phase near 2π stays below 64
	pos, ok := Unwrap(7, mathx.TwoPi-1e-6, 16, 64)
	if !ok || pos >= 64 {
		t.Errorf("expected a position below 64, got %g", pos)
	}
}

func TestPhaseSamples(t *testing.T) {
	for i := 0; i < 32; i++ {
		phi := mathx.TwoPi * float64(i) / 32
		i0, i1, i2 := mathx.FringeIntensity(phi, 0), mathx.FringeIntensity(phi, 1), mathx.FringeIntensity(phi, 2)
		got, _ := mathx.ThreeStepPhase(i0, i1, i2)
		d := math.Abs(got - phi)
		d = math.Min(d, mathx.TwoPi-d)
		if d > 1e-6 {
			t.Errorf("sample %d: expected %g got %g", i, phi, got)
		}
	}
}

func TestRoundTrip(t *testing.T) {
	cases := []struct {
		name string
		g    pattern.Geometry
		cfg  func(*Config)
	}{
		{"vertical mono8", geometry(2, 256, pattern.Vertical), func(*Config) {}},
		{"vertical 600 columns", geometry(1, 600, pattern.Vertical), func(c *Config) { c.PixelsPerPeriod = 32 }},
		{"horizontal", geometry(128, 2, pattern.Horizontal), func(*Config) {}},
		{"repeats no inverse", geometry(1, 128, pattern.Vertical), func(c *Config) {
			c.RepeatPhases = 3
			c.IncludeInverted = false
		}},
		{"rgb24", geometry(1, 64, pattern.Vertical), func(c *Config) { c.Bitdepth = pattern.RGB24 }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tc.cfg(&cfg)
			m := setup(t, tc.g, cfg)
			dmap, rc := m.DecodeCaptureSequence(project(t, m))
			if rc.HasErrors() {
				t.Fatal(rc.Err())
			}
			for y := 0; y < tc.g.Rows; y++ {
				for x := 0; x < tc.g.Columns; x++ {
					expected := x
					if tc.g.Orientation == pattern.Horizontal {
						expected = y
					}
					got := dmap.At(x, y)
					if math.Abs(got-float64(expected)) > 0.15 {
						t.Fatalf("pixel %d,%d: expected %d got %g", x, y, expected, got)
					}
				}
			}
		})
	}
}

func TestPatternLayout(t *testing.T) {
	cfg := DefaultConfig()
	cfg.RepeatPhases = 2
	cfg.Oversampling = 4
	m := setup(t, geometry(1, 128, pattern.Vertical), cfg)
	// 128/8 = 16 half periods, 4 planes, each with an inverse
	if m.Gray().BlockWidth() != 8 || m.Gray().Planes() != 4 {
		t.Fatalf("expected gray blocks of 8 over 4 planes, got %d over %d", m.Gray().BlockWidth(), m.Gray().Planes())
	}
	if m.PatternCount() != 6+8 {
		t.Errorf("expected 14 patterns got %d", m.PatternCount())
	}
	seq := pattern.NewSequence()
	m.GeneratePatternSequence(seq)
	if seq.Size() != m.PatternCount() {
		t.Errorf("expected %d patterns got %d", m.PatternCount(), seq.Size())
	}
	for i := 0; i < seq.Size(); i++ {
		p, _ := seq.Get(i)
		if p.ID != i {
			t.Errorf("pattern %d has ID %d", i, p.ID)
		}
		want := pattern.Mono8
		if i >= 6 {
			want = pattern.Mono1
		}
		if p.Bitdepth != want {
			t.Errorf("pattern %d: expected %v got %v", i, want, p.Bitdepth)
		}
	}
	s := seq.Settings()
	if s.Int("Oversampling", 0) != 4 || s.Int("RepeatPhases", 0) != 2 {
		t.Errorf("expected oversampling and repeats in settings, got %v", s.All())
	}
}

func TestFringeQuantization(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Bitdepth = pattern.Mono2
	m := setup(t, geometry(1, 16, pattern.Vertical), cfg)
	seq := pattern.NewSequence()
	m.GeneratePatternSequence(seq)
	p, _ := seq.Get(0)
	levels := map[uint8]bool{}
	for _, v := range p.Image.(*image.Gray).Pix {
		levels[v] = true
	}
	for v := range levels {
		if v != 0 && v != 85 && v != 170 && v != 255 {
			t.Errorf("unexpected level %d for a 2-bit fringe", v)
		}
	}
}

func TestRGBFringeUsesColor(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Bitdepth = pattern.RGB24
	g := geometry(1, 16, pattern.Vertical)
	g.Color = pattern.Red
	m := setup(t, g, cfg)
	seq := pattern.NewSequence()
	m.GeneratePatternSequence(seq)
	// the middle step peaks at phase 0
	p, _ := seq.Get(1)
	c := p.Image.(*image.RGBA).RGBAAt(0, 0)
	if c.R != 255 || c.G != 0 || c.B != 0 {
		t.Errorf("expected pure red at phase 0, got %v", c)
	}
}

func TestFrequencyOverridesPeriod(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Frequency = 4
	m := setup(t, geometry(1, 128, pattern.Vertical), cfg)
	if m.PixelsPerPeriod() != 32 {
		t.Errorf("expected 32 pixels per period got %d", m.PixelsPerPeriod())
	}
}

func TestFrequencyRoundsToNearestPeriod(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Frequency = 6.1
	// 100/6.1 = 16.39
	m := setup(t, geometry(1, 100, pattern.Vertical), cfg)
	if m.PixelsPerPeriod() != 16 {
		t.Errorf("expected 16 pixels per period got %d", m.PixelsPerPeriod())
	}
}

func TestSetupErrors(t *testing.T) {
	cases := []struct {
		name string
		mod  func(*Config)
		err  error
	}{
		{"odd period", func(c *Config) { c.PixelsPerPeriod = 15 }, ErrPixelsPerPeriodNotDivisible},
		{"period 12", func(c *Config) { c.PixelsPerPeriod = 12 }, ErrPixelsPerPeriodNotDivisible},
		{"period too small", func(c *Config) { c.PixelsPerPeriod = 2 }, ErrPixelsPerPeriodInvalid},
		{"period too large", func(c *Config) { c.PixelsPerPeriod = 256 }, ErrPixelsPerPeriodInvalid},
		{"not hybrid", func(c *Config) { c.UseHybridUnwrap = false }, ErrOnlyHybridUnwrapSupported},
		{"mono1", func(c *Config) { c.Bitdepth = pattern.Mono1 }, ErrBitdepthInvalid},
		{"no bitdepth", func(c *Config) { c.Bitdepth = pattern.InvalidBitdepth }, ErrBitdepthInvalid},
		{"no repeats", func(c *Config) { c.RepeatPhases = 0 }, ErrRepeatPhasesInvalid},
		{"no oversampling", func(c *Config) { c.Oversampling = 0 }, ErrOversamplingInvalid},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tc.mod(&cfg)
			m := New()
			rc := m.Setup(geometry(1, 128, pattern.Vertical), cfg)
			if !rc.Contains(tc.err) {
				t.Errorf("expected %v got %v", tc.err, rc.Err())
			}
			if m.PatternCount() != 0 {
				t.Error("expected a failed setup to leave the module unconfigured")
			}
		})
	}
}

func TestDecodeBeforeSetup(t *testing.T) {
	dmap, rc := New().DecodeCaptureSequence(capture.NewSequence())
	if dmap != nil || !rc.Contains(ErrSettingsMissing) {
		t.Errorf("expected ErrSettingsMissing and no map, got %v", rc.Err())
	}
}

func TestSizeMismatch(t *testing.T) {
	m := setup(t, geometry(1, 64, pattern.Vertical), DefaultConfig())
	caps := project(t, m)
	caps.Remove(caps.Size() - 1)
	dmap, rc := m.DecodeCaptureSequence(caps)
	if dmap != nil || !rc.Contains(graycode.ErrSequenceSizeInvalid) {
		t.Errorf("expected size error and no map, got %v", rc.Err())
	}
}

func TestFringePlaneSizesDiffer(t *testing.T) {
	m := setup(t, geometry(1, 16, pattern.Vertical), DefaultConfig())
	planes := make([]*raster.Plane, m.PatternCount())
	for i := range planes {
		planes[i] = raster.NewPlane(16, 1)
	}
	planes[1] = raster.NewPlane(8, 1)
	dmap, rc := m.DecodePlanes(planes)
	if dmap != nil || !rc.Contains(raster.ErrSizesDiffer) {
		t.Errorf("expected a size error and no map, got %v", rc.Err())
	}
}

func TestIdempotentDecode(t *testing.T) {
	m := setup(t, geometry(3, 64, pattern.Vertical), DefaultConfig())
	caps := project(t, m)
	a, _ := m.DecodeCaptureSequence(caps)
	b, _ := m.DecodeCaptureSequence(caps)
	if diff := cmp.Diff(a.Values(), b.Values()); diff != "" {
		t.Errorf("decodes differ (-first +second):\n%s", diff)
	}
}

func TestFlatCapturesAreUndecodable(t *testing.T) {
	m := setup(t, geometry(1, 32, pattern.Vertical), DefaultConfig())
	caps := capture.NewSequence()
	for i := 0; i < m.PatternCount(); i++ {
		img := image.NewGray(image.Rect(0, 0, 32, 1))
		for j := range img.Pix {
			img.Pix[j] = 128
		}
		caps.Add(capture.Capture{Type: capture.ImageData, Image: img})
	}
	dmap, rc := m.DecodeCaptureSequence(caps)
	if rc.HasErrors() {
		t.Fatal(rc.Err())
	}
	if dmap.ValidCount() != 0 {
		t.Errorf("expected no valid pixels got %d", dmap.ValidCount())
	}
	if !rc.HasWarnings() {
		t.Error("expected warnings for flat captures")
	}
	flat := 0
	for _, w := range rc.Warnings() {
		if strings.Contains(w, "low dynamic range in fringe step") {
			flat++
		}
	}
	if flat != Steps {
		t.Errorf("expected a dynamic range warning per fringe step, got %v", rc.Warnings())
	}
}

func TestBlackPatternsRejected(t *testing.T) {
	s := param.FromMap(map[string]interface{}{
		"PatternRows":        1,
		"PatternColumns":     64,
		"PatternColor":       "black",
		"PatternOrientation": "vertical",
		"Bitdepth":           "rgb24",
	})
	m, rc := NewFromParams(s)
	if !rc.Contains(ErrColorUnlit) {
		t.Errorf("expected ErrColorUnlit got %v", rc.Err())
	}
	if m.PatternCount() != 0 {
		t.Error("expected a failed setup to leave the module unconfigured")
	}
}

func TestNewFromParams(t *testing.T) {
	s, err := param.Load("../../param/testdata/params.yml")
	if err != nil {
		t.Fatal(err)
	}
	m, rc := NewFromParams(s)
	if rc.HasErrors() {
		t.Fatal(rc.Err())
	}
	if m.PixelsPerPeriod() != 32 || m.Config().IncludeInverted {
		t.Errorf("unexpected config %+v", m.Config())
	}
	if m.Config().Exposure.Milliseconds() != 20 {
		t.Errorf("expected 20ms exposure got %v", m.Config().Exposure)
	}
}
