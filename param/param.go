/*Package param holds named, typed setting entries with defaults.

A Set is the Parameters collaborator consumed by the codecs at Setup time and
attached to every pattern sequence.  It is backed by koanf, so the same entries
can come from a YAML file, a struct of defaults, or individual Put calls.

Keys are case-insensitive: they are folded to lower case on the way in, so
"PixelsPerPeriod" in code and "pixelsperperiod" in a file name the same entry.
*/
package param

import (
	"strings"
	"time"

	"github.com/knadh/koanf"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/mitchellh/mapstructure"
)

const delim = "."

// Set is a collection of named setting entries
type Set struct {
	k *koanf.Koanf
}

// New returns an empty Set
func New() *Set {
	return &Set{k: koanf.New(delim)}
}

// FromKoanf copies the entries of an existing koanf instance into a new Set
func FromKoanf(k *koanf.Koanf) *Set {
	s := New()
	if k == nil {
		return s
	}
	s.k.Load(confmap.Provider(fold(k.All()), delim), nil)
	return s
}

// FromMap builds a Set from a map of entries
func FromMap(m map[string]interface{}) *Set {
	tmp := koanf.New(delim)
	tmp.Load(confmap.Provider(m, delim), nil)
	return FromKoanf(tmp)
}

// FromStruct builds a Set from the koanf-tagged fields of a struct
func FromStruct(v interface{}) *Set {
	tmp := koanf.New(delim)
	tmp.Load(structs.Provider(v, "koanf"), nil)
	return FromKoanf(tmp)
}

// Load reads a YAML file into a new Set
func Load(path string) (*Set, error) {
	tmp := koanf.New(delim)
	if err := tmp.Load(file.Provider(path), yaml.Parser()); err != nil {
		return nil, err
	}
	return FromKoanf(tmp), nil
}

func fold(flat map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(flat))
	for key, v := range flat {
		out[strings.ToLower(key)] = v
	}
	return out
}

// Put sets a single entry, replacing any previous value
func (s *Set) Put(key string, val interface{}) error {
	return s.k.Load(confmap.Provider(map[string]interface{}{strings.ToLower(key): val}, delim), nil)
}

// Merge copies every entry of other into s, overwriting existing keys
func (s *Set) Merge(other *Set) error {
	if other == nil {
		return nil
	}
	return s.k.Merge(other.k)
}

// Copy returns a deep copy of the set
func (s *Set) Copy() *Set {
	return &Set{k: s.k.Copy()}
}

// Exists returns true if the entry is present
func (s *Set) Exists(key string) bool {
	return s.k.Exists(strings.ToLower(key))
}

// Keys returns the (lower case, flattened) names of all entries
func (s *Set) Keys() []string {
	return s.k.Keys()
}

// All returns a flat map of all entries
func (s *Set) All() map[string]interface{} {
	return s.k.All()
}

// Get returns the raw value of an entry, or nil if absent
func (s *Set) Get(key string) interface{} {
	return s.k.Get(strings.ToLower(key))
}

// Int returns the entry as an int, or def if it is absent
func (s *Set) Int(key string, def int) int {
	key = strings.ToLower(key)
	if !s.k.Exists(key) {
		return def
	}
	return s.k.Int(key)
}

// Float64 returns the entry as a float64, or def if it is absent
func (s *Set) Float64(key string, def float64) float64 {
	key = strings.ToLower(key)
	if !s.k.Exists(key) {
		return def
	}
	return s.k.Float64(key)
}

// Bool returns the entry as a bool, or def if it is absent
func (s *Set) Bool(key string, def bool) bool {
	key = strings.ToLower(key)
	if !s.k.Exists(key) {
		return def
	}
	return s.k.Bool(key)
}

// String returns the entry as a string, or def if it is absent
func (s *Set) String(key string, def string) string {
	key = strings.ToLower(key)
	if !s.k.Exists(key) {
		return def
	}
	return s.k.String(key)
}

// Duration returns the entry as a duration, or def if it is absent.
// Strings are parsed with time.ParseDuration, numbers are nanoseconds.
func (s *Set) Duration(key string, def time.Duration) time.Duration {
	key = strings.ToLower(key)
	if !s.k.Exists(key) {
		return def
	}
	return s.k.Duration(key)
}

// Unmarshal decodes the entries onto the koanf-tagged fields of out.  Fields
// without a matching entry keep their value, so out may be prefilled with
// defaults.  Strings are converted to durations and to any type implementing
// encoding.TextUnmarshaler.
func (s *Set) Unmarshal(out interface{}) error {
	return s.k.UnmarshalWithConf("", out, koanf.UnmarshalConf{
		Tag: "koanf",
		DecoderConfig: &mapstructure.DecoderConfig{
			DecodeHook: mapstructure.ComposeDecodeHookFunc(
				mapstructure.StringToTimeDurationHookFunc(),
				mapstructure.TextUnmarshallerHookFunc()),
			Result:           out,
			TagName:          "koanf",
			WeaklyTypedInput: true,
		},
	})
}
