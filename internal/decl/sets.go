package decl

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/vmihailenco/msgpack/v5"
)

// LocSet is a set of source locations.
//
// On the wire it is an array of strings. A bare string is accepted as a
// one-element set since older scanner output wrote single locations that way.
type LocSet map[string]struct{}

// NewLocSet builds a set from the given locations.
func NewLocSet(locs ...string) LocSet {
	s := make(LocSet, len(locs))
	for _, loc := range locs {
		s[loc] = struct{}{}
	}
	return s
}

// Add inserts loc.
func (s LocSet) Add(loc string) { s[loc] = struct{}{} }

// Has reports whether loc is present.
func (s LocSet) Has(loc string) bool {
	_, ok := s[loc]
	return ok
}

// Union adds every element of other.
func (s LocSet) Union(other LocSet) {
	for loc := range other {
		s[loc] = struct{}{}
	}
}

// Sorted returns the locations in ascending order.
func (s LocSet) Sorted() []string {
	out := make([]string, 0, len(s))
	for loc := range s {
		out = append(out, loc)
	}
	sort.Strings(out)
	return out
}

// Clone copies the set. A nil set clones to nil.
func (s LocSet) Clone() LocSet {
	if s == nil {
		return nil
	}
	c := make(LocSet, len(s))
	c.Union(s)
	return c
}

func (s LocSet) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.Sorted())
}

func (s *LocSet) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*s = LocSet{}
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var loc string
		if err := json.Unmarshal(data, &loc); err != nil {
			return err
		}
		*s = NewLocSet(loc)
		return nil
	}
	var locs []string
	if err := json.Unmarshal(data, &locs); err != nil {
		return fmt.Errorf("location set: %w", err)
	}
	*s = NewLocSet(locs...)
	return nil
}

func (s LocSet) MarshalYAML() (interface{}, error) {
	return s.Sorted(), nil
}

func (s LocSet) EncodeMsgpack(enc *msgpack.Encoder) error {
	return enc.Encode(s.Sorted())
}

func (s *LocSet) DecodeMsgpack(dec *msgpack.Decoder) error {
	v, err := dec.DecodeInterface()
	if err != nil {
		return err
	}
	switch v := v.(type) {
	case nil:
		*s = LocSet{}
	case string:
		*s = NewLocSet(v)
	case []interface{}:
		set := make(LocSet, len(v))
		for _, item := range v {
			loc, ok := item.(string)
			if !ok {
				return fmt.Errorf("location set: unexpected element %T", item)
			}
			set.Add(loc)
		}
		*s = set
	default:
		return fmt.Errorf("location set: unexpected value %T", v)
	}
	return nil
}

// ModSet maps a module name to a set of locations.
type ModSet map[string]LocSet

// Add records loc under mod.
func (m ModSet) Add(mod, loc string) {
	set, ok := m[mod]
	if !ok {
		set = LocSet{}
		m[mod] = set
	}
	set.Add(loc)
}

// Has reports whether loc is recorded under mod.
func (m ModSet) Has(mod, loc string) bool {
	return m[mod].Has(loc)
}

// Remove deletes loc from mod and drops mod once it has no locations left.
func (m ModSet) Remove(mod, loc string) {
	set, ok := m[mod]
	if !ok {
		return
	}
	delete(set, loc)
	if len(set) == 0 {
		delete(m, mod)
	}
}

// Union merges every (module, location) pair of other into m.
func (m ModSet) Union(other ModSet) {
	for mod, locs := range other {
		set, ok := m[mod]
		if !ok {
			set = make(LocSet, len(locs))
			m[mod] = set
		}
		set.Union(locs)
	}
}

// Modules returns the module names in ascending order.
func (m ModSet) Modules() []string {
	out := make([]string, 0, len(m))
	for mod := range m {
		out = append(out, mod)
	}
	sort.Strings(out)
	return out
}

// Pairs returns the number of (module, location) pairs.
func (m ModSet) Pairs() int {
	n := 0
	for _, locs := range m {
		n += len(locs)
	}
	return n
}

// Clone deep-copies the mapping. A nil mapping clones to nil.
func (m ModSet) Clone() ModSet {
	if m == nil {
		return nil
	}
	c := make(ModSet, len(m))
	for mod, locs := range m {
		c[mod] = locs.Clone()
	}
	return c
}

// UsageModule maps the scanner's empty module name onto NoModule. It is the
// key a module appears under in a merged used_from.
func UsageModule(mod string) string {
	if mod == "" {
		return NoModule
	}
	return mod
}
