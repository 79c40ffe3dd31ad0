// Package projection works out which members of an entity a request needs.
// It analyzes projection expressions into dotted member paths and builds
// FieldProjectionInfo trees from GraphQL selection sets.
package projection

import (
	"sort"
	"strings"
)

// PathSet is a case-insensitive set of dotted member paths. The first
// spelling added is the one reported.
type PathSet map[string]string

// NewPathSet returns a set holding paths.
func NewPathSet(paths ...string) PathSet {
	s := make(PathSet, len(paths))
	for _, p := range paths {
		s.Add(p)
	}
	return s
}

// Add inserts p unless an equal path is present.
func (s PathSet) Add(p string) {
	if p == "" {
		return
	}
	key := strings.ToLower(p)
	if _, ok := s[key]; !ok {
		s[key] = p
	}
}

// AddAll inserts every path of other.
func (s PathSet) AddAll(other PathSet) {
	for k, v := range other {
		if _, ok := s[k]; !ok {
			s[k] = v
		}
	}
}

// Contains reports whether p is in the set.
func (s PathSet) Contains(p string) bool {
	_, ok := s[strings.ToLower(p)]
	return ok
}

// Union returns a new set with the members of both.
func (s PathSet) Union(other PathSet) PathSet {
	out := make(PathSet, len(s)+len(other))
	out.AddAll(s)
	out.AddAll(other)
	return out
}

// Equal reports whether both sets hold the same paths, ignoring case.
func (s PathSet) Equal(other PathSet) bool {
	if len(s) != len(other) {
		return false
	}
	for k := range s {
		if _, ok := other[k]; !ok {
			return false
		}
	}
	return true
}

// Sorted returns the paths in lexical order of their lower-cased form.
func (s PathSet) Sorted() []string {
	keys := make([]string, 0, len(s))
	for k := range s {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]string, len(keys))
	for i, k := range keys {
		out[i] = s[k]
	}
	return out
}

// Prefixed returns every path with prefix and a dot prepended.
func (s PathSet) Prefixed(prefix string) PathSet {
	if prefix == "" {
		return s.Union(nil)
	}
	out := make(PathSet, len(s))
	for _, p := range s {
		out.Add(prefix + "." + p)
	}
	return out
}
