package pattern

import (
	"errors"
	"image"
	"testing"
	"time"

	"github.com/nasa-jpl/structlight/param"
)

func imagePattern(id int) Pattern {
	return Pattern{
		ID:          id,
		Exposure:    10 * time.Millisecond,
		Period:      20 * time.Millisecond,
		Bitdepth:    Mono1,
		Color:       White,
		Orientation: Vertical,
		Type:        ImageData,
		Image:       image.NewGray(image.Rect(0, 0, 4, 2)),
	}
}

func TestDefaultPatternIsInvalid(t *testing.T) {
	p := Pattern{}
	if err := p.Validate(); !errors.Is(err, ErrDataTypeInvalid) {
		t.Errorf("expected ErrDataTypeInvalid got %v", err)
	}
	if p.Bitdepth.Valid() || p.Color.Valid() || p.Orientation.Valid() {
		t.Error("expected zero value enums to be invalid")
	}
}

func TestPatternPayloadChecks(t *testing.T) {
	p := imagePattern(0)
	p.Image = nil
	if err := p.Validate(); !errors.Is(err, ErrPayloadEmpty) {
		t.Errorf("expected ErrPayloadEmpty got %v", err)
	}
	p = imagePattern(0)
	p.Filename = "stripes.png"
	if err := p.Validate(); !errors.Is(err, ErrPayloadMismatch) {
		t.Errorf("expected ErrPayloadMismatch got %v", err)
	}
	p = imagePattern(0)
	p.Type = ParameterData
	p.Image = nil
	p.Params = param.New()
	if err := p.Validate(); err != nil {
		t.Errorf("expected parameter pattern to validate, got %v", err)
	}
	p = imagePattern(0)
	p.Bitdepth = InvalidBitdepth
	if err := p.Validate(); !errors.Is(err, ErrBitdepthInvalid) {
		t.Errorf("expected ErrBitdepthInvalid got %v", err)
	}
}

func TestSequencePreservesOrder(t *testing.T) {
	s := NewSequence()
	for i := 0; i < 5; i++ {
		if err := s.Add(imagePattern(i)); err != nil {
			t.Fatal(err)
		}
	}
	if err := s.Remove(1); err != nil {
		t.Fatal(err)
	}
	expected := []int{0, 2, 3, 4}
	if s.Size() != len(expected) {
		t.Fatalf("expected size %d got %d", len(expected), s.Size())
	}
	for i, id := range expected {
		p, err := s.Get(i)
		if err != nil {
			t.Fatal(err)
		}
		if p.ID != id {
			t.Errorf("index %d: expected ID %d got %d", i, id, p.ID)
		}
	}
}

func TestSequenceIndexErrors(t *testing.T) {
	s := NewSequence()
	if _, err := s.Get(0); !errors.Is(err, ErrIndexOutOfRange) {
		t.Errorf("expected ErrIndexOutOfRange got %v", err)
	}
	s.Add(imagePattern(0))
	if err := s.Set(1, imagePattern(1)); !errors.Is(err, ErrIndexOutOfRange) {
		t.Errorf("expected ErrIndexOutOfRange got %v", err)
	}
	if err := s.Remove(-1); !errors.Is(err, ErrIndexOutOfRange) {
		t.Errorf("expected ErrIndexOutOfRange got %v", err)
	}
	if err := s.Set(0, Pattern{}); !errors.Is(err, ErrDataTypeInvalid) {
		t.Errorf("expected Set to validate, got %v", err)
	}
}

func TestSequenceAddRejectsInvalid(t *testing.T) {
	s := NewSequence()
	if err := s.Add(Pattern{}); err == nil {
		t.Error("expected Add to reject a default pattern")
	}
	if s.Size() != 0 {
		t.Errorf("expected rejected pattern not to be stored")
	}
	if err := s.Validate(); !errors.Is(err, ErrSequenceEmpty) {
		t.Errorf("expected ErrSequenceEmpty got %v", err)
	}
}

func TestEqualPredicates(t *testing.T) {
	s := NewSequence()
	if !s.EqualBitdepths() || !s.EqualColors() || !s.EqualPeriods() || !s.EqualExposures() {
		t.Error("expected predicates to be vacuously true for an empty sequence")
	}
	s.Add(imagePattern(0))
	s.Add(imagePattern(1))
	if !s.EqualBitdepths() || !s.EqualColors() || !s.EqualPeriods() || !s.EqualExposures() || !s.EqualOrientations() {
		t.Error("expected predicates to be true for identical patterns")
	}
	p := imagePattern(2)
	p.Color = Red
	p.Period = time.Second
	s.Add(p)
	if s.EqualColors() {
		t.Error("expected EqualColors to be false")
	}
	if s.EqualPeriods() {
		t.Error("expected EqualPeriods to be false")
	}
	if !s.EqualBitdepths() {
		t.Error("expected EqualBitdepths to remain true")
	}
}

func TestSequenceMixedTypes(t *testing.T) {
	s := NewSequence()
	s.Add(imagePattern(0))
	p := imagePattern(1)
	p.Type = ImageFile
	p.Image = nil
	p.Filename = "p1.png"
	s.Add(p)
	if err := s.Validate(); !errors.Is(err, ErrDataTypesDiffer) {
		t.Errorf("expected ErrDataTypesDiffer got %v", err)
	}
}

func TestAddSequence(t *testing.T) {
	a, b := NewSequence(), NewSequence()
	a.Add(imagePattern(0))
	b.Add(imagePattern(1))
	b.Add(imagePattern(2))
	if err := a.AddSequence(b); err != nil {
		t.Fatal(err)
	}
	last, _ := a.Get(2)
	if a.Size() != 3 || last.ID != 2 {
		t.Errorf("expected appended sequence of 3 ending in ID 2, got %d ending in %d", a.Size(), last.ID)
	}
}

func TestBitdepth(t *testing.T) {
	cases := []struct {
		b      Bitdepth
		bits   int
		levels int
		rgb    bool
	}{
		{Mono1, 1, 2, false},
		{Mono8, 8, 256, false},
		{RGB3, 1, 2, true},
		{RGB24, 8, 256, true},
		{InvalidBitdepth, 0, 1, false},
	}
	for _, c := range cases {
		if c.b.Bits() != c.bits || c.b.Levels() != c.levels || c.b.IsRGB() != c.rgb {
			t.Errorf("%v: expected bits=%d levels=%d rgb=%v got %d %d %v", c.b, c.bits, c.levels, c.rgb, c.b.Bits(), c.b.Levels(), c.b.IsRGB())
		}
	}
}

func TestEnumText(t *testing.T) {
	var o Orientation
	if err := o.UnmarshalText([]byte("Horizontal")); err != nil || o != Horizontal {
		t.Errorf("expected Horizontal got %v (%v)", o, err)
	}
	var c Color
	if err := c.UnmarshalText([]byte("chartreuse")); err == nil {
		t.Error("expected unknown color to fail")
	}
	txt, _ := RGB12.MarshalText()
	if string(txt) != "rgb12" {
		t.Errorf("expected rgb12 got %s", txt)
	}
}

func TestGeometryFromParamsNamesEveryMissingField(t *testing.T) {
	_, rc := GeometryFromParams(param.New())
	for _, err := range []error{ErrPatternRowsMissing, ErrPatternColumnsMissing, ErrPatternColorMissing, ErrPatternOrientationMissing} {
		if !rc.Contains(err) {
			t.Errorf("expected %v", err)
		}
	}
}

func TestGeometryFromParams(t *testing.T) {
	s := param.FromMap(map[string]interface{}{
		"PatternRows":        600,
		"PatternColumns":     800,
		"PatternColor":       "green",
		"PatternOrientation": "horizontal",
	})
	g, rc := GeometryFromParams(s)
	if rc.HasErrors() {
		t.Fatal(rc.Err())
	}
	if g.Color != Green || g.Orientation != Horizontal || g.Resolution() != 600 {
		t.Errorf("unexpected geometry %+v", g)
	}

	typed := param.New()
	Geometry{Rows: 10, Columns: 20, Color: White, Orientation: Vertical}.Put(typed)
	g, rc = GeometryFromParams(typed)
	if rc.HasErrors() {
		t.Fatal(rc.Err())
	}
	if g.Resolution() != 20 {
		t.Errorf("expected vertical resolution 20 got %d", g.Resolution())
	}
}
