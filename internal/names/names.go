// Package names holds the single name-comparison rule shared by every
// component that matches people across the roster, users and subscribers.
package names

import "strings"

// Normalize lower-cases s, folds ё to е, trims and collapses internal whitespace.
func Normalize(s string) string {
	s = strings.ToLower(s)
	s = strings.ReplaceAll(s, "ё", "е")
	return strings.Join(strings.Fields(s), " ")
}

// Equal reports whether a and b name the same person.
func Equal(a, b string) bool { return Normalize(a) == Normalize(b) }

// Set is a set of normalized names.
type Set map[string]struct{}

// NewSet normalizes each name and drops empties.
func NewSet(list ...string) Set {
	out := make(Set, len(list))
	for _, n := range list {
		out.Add(n)
	}
	return out
}

func (s Set) Add(name string) {
	if n := Normalize(name); n != "" {
		s[n] = struct{}{}
	}
}

func (s Set) Has(name string) bool {
	_, ok := s[Normalize(name)]
	return ok
}

func (s Set) Len() int { return len(s) }
