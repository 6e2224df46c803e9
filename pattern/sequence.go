package pattern

import (
	"errors"
	"fmt"

	"github.com/nasa-jpl/structlight/param"
)

var (
	// ErrSequenceEmpty is generated when a sequence that must hold patterns is empty
	ErrSequenceEmpty = errors.New("pattern sequence empty")

	// ErrIndexOutOfRange is generated when an index is outside [0, Size())
	ErrIndexOutOfRange = errors.New("pattern sequence index out of range")

	// ErrDataTypesDiffer is generated when a sequence mixes payload kinds
	ErrDataTypesDiffer = errors.New("pattern sequence data types differ")
)

// Sequence is an ordered list of patterns plus a settings block.  Insertion
// order is projection order.  Mutation is by index only.
type Sequence struct {
	patterns []Pattern
	settings *param.Set
}

// NewSequence returns an empty sequence with an empty settings block
func NewSequence() *Sequence {
	return &Sequence{settings: param.New()}
}

// Settings returns the settings block attached to the sequence
func (s *Sequence) Settings() *param.Set {
	if s.settings == nil {
		s.settings = param.New()
	}
	return s.settings
}

// Size returns the number of patterns
func (s *Sequence) Size() int {
	return len(s.patterns)
}

// Add validates p and appends it
func (s *Sequence) Add(p Pattern) error {
	if err := p.Validate(); err != nil {
		return err
	}
	s.patterns = append(s.patterns, p)
	return nil
}

// AddSequence appends every pattern of other, in order.  Nothing is appended
// if any pattern of other is invalid.
func (s *Sequence) AddSequence(other *Sequence) error {
	for i, p := range other.patterns {
		if err := p.Validate(); err != nil {
			return fmt.Errorf("pattern %d: %w", i, err)
		}
	}
	s.patterns = append(s.patterns, other.patterns...)
	return nil
}

func (s *Sequence) checkIndex(i int) error {
	if i < 0 || i >= len(s.patterns) {
		return fmt.Errorf("%w: %d not in [0, %d)", ErrIndexOutOfRange, i, len(s.patterns))
	}
	return nil
}

// Get returns the pattern at index i
func (s *Sequence) Get(i int) (Pattern, error) {
	if err := s.checkIndex(i); err != nil {
		return Pattern{}, err
	}
	return s.patterns[i], nil
}

// Set replaces the pattern at index i with a validated p
func (s *Sequence) Set(i int, p Pattern) error {
	if err := s.checkIndex(i); err != nil {
		return err
	}
	if err := p.Validate(); err != nil {
		return err
	}
	s.patterns[i] = p
	return nil
}

// Remove deletes the pattern at index i, shifting later patterns down
func (s *Sequence) Remove(i int) error {
	if err := s.checkIndex(i); err != nil {
		return err
	}
	s.patterns = append(s.patterns[:i], s.patterns[i+1:]...)
	return nil
}

// Clear removes all patterns.  The settings block is kept.
func (s *Sequence) Clear() {
	s.patterns = nil
}

// Validate checks that the sequence is non-empty, that every pattern is valid,
// and that all patterns carry the same kind of payload
func (s *Sequence) Validate() error {
	if len(s.patterns) == 0 {
		return ErrSequenceEmpty
	}
	for i, p := range s.patterns {
		if err := p.Validate(); err != nil {
			return fmt.Errorf("pattern %d: %w", i, err)
		}
	}
	if !s.EqualDataTypes() {
		return ErrDataTypesDiffer
	}
	return nil
}

// all reports whether every pattern after the first agrees with it under eq.
// It is vacuously true for an empty sequence.
func (s *Sequence) all(eq func(a, b Pattern) bool) bool {
	for i := 1; i < len(s.patterns); i++ {
		if !eq(s.patterns[0], s.patterns[i]) {
			return false
		}
	}
	return true
}

// EqualBitdepths is true if all patterns share a bitdepth
func (s *Sequence) EqualBitdepths() bool {
	return s.all(func(a, b Pattern) bool { return a.Bitdepth == b.Bitdepth })
}

// EqualColors is true if all patterns share a color
func (s *Sequence) EqualColors() bool {
	return s.all(func(a, b Pattern) bool { return a.Color == b.Color })
}

// EqualExposures is true if all patterns share an exposure
func (s *Sequence) EqualExposures() bool {
	return s.all(func(a, b Pattern) bool { return a.Exposure == b.Exposure })
}

// EqualPeriods is true if all patterns share a period
func (s *Sequence) EqualPeriods() bool {
	return s.all(func(a, b Pattern) bool { return a.Period == b.Period })
}

// EqualOrientations is true if all patterns share an orientation
func (s *Sequence) EqualOrientations() bool {
	return s.all(func(a, b Pattern) bool { return a.Orientation == b.Orientation })
}

// EqualDataTypes is true if all patterns carry the same kind of payload
func (s *Sequence) EqualDataTypes() bool {
	return s.all(func(a, b Pattern) bool { return a.Type == b.Type })
}
