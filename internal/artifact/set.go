package artifact

import (
	"encoding/json"
	"sort"
)

// StringSet is a JSON-array-backed set: insertion order is not
// significant, duplicates are ignored on merge. It marshals as a sorted
// JSON array for deterministic document diffs.
type StringSet map[string]struct{}

func NewStringSet(vals ...string) StringSet {
	s := make(StringSet, len(vals))
	for _, v := range vals {
		if v == "" {
			continue
		}
		s[v] = struct{}{}
	}
	return s
}

// Union mutates s to include every element of other, returning whether any
// new element was added.
func (s StringSet) Union(other StringSet) (changed bool) {
	for v := range other {
		if _, ok := s[v]; !ok {
			s[v] = struct{}{}
			changed = true
		}
	}
	return changed
}

func (s StringSet) Contains(v string) bool {
	_, ok := s[v]
	return ok
}

func (s StringSet) Clone() StringSet {
	c := make(StringSet, len(s))
	for v := range s {
		c[v] = struct{}{}
	}
	return c
}

func (s StringSet) Slice() []string {
	out := make([]string, 0, len(s))
	for v := range s {
		out = append(out, v)
	}
	sort.Strings(out)
	return out
}

func (s StringSet) Equal(other StringSet) bool {
	if len(s) != len(other) {
		return false
	}
	for v := range s {
		if !other.Contains(v) {
			return false
		}
	}
	return true
}

func (s StringSet) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.Slice())
}

func (s *StringSet) UnmarshalJSON(b []byte) error {
	var vals []string
	if err := json.Unmarshal(b, &vals); err != nil {
		return err
	}
	*s = NewStringSet(vals...)
	return nil
}
