// Package apn defines APN profiles, their live ApnContext counterparts,
// and the human-readable APN database line format.
package apn

import (
	"fmt"
	"strings"
)

// Type is a single functional role an APN serves. Values are powers of
// two so a set of types can be represented as a bitmask.
type Type uint32

const (
	Default Type = 1 << iota
	Mms
	Supl
	Dun
	Hipri
	Fota
	Ims
	Cbs
	Ia // initial attach
	Emergency
	All
)

var typeNames = map[Type]string{
	Default:   "default",
	Mms:       "mms",
	Supl:      "supl",
	Dun:       "dun",
	Hipri:     "hipri",
	Fota:      "fota",
	Ims:       "ims",
	Cbs:       "cbs",
	Ia:        "ia",
	Emergency: "emergency",
	All:       "all",
}

func (t Type) String() string {
	if name, ok := typeNames[t]; ok {
		return name
	}
	return fmt.Sprintf("apntype(%d)", uint32(t))
}

// ParseType maps a database type token (as found in the pipe-separated
// supported-types field) to a Type, case-insensitively.
func ParseType(s string) (Type, error) {
	s = strings.ToLower(s)
	for t, name := range typeNames {
		if name == s {
			return t, nil
		}
	}
	return 0, fmt.Errorf("apn: unknown type %q", s)
}

// TypeSet is a bitmask of Type values, as carried by ApnProfile's
// supported-types field and by NetworkRequest capability sets.
type TypeSet uint32

// NewTypeSet ORs the given types into a set.
func NewTypeSet(types ...Type) TypeSet {
	var s TypeSet
	for _, t := range types {
		s |= TypeSet(t)
	}
	return s
}

// Has reports whether t is a member of the set.
func (s TypeSet) Has(t Type) bool {
	return s&TypeSet(t) != 0
}

// Count returns the number of distinct member types.
func (s TypeSet) Count() int {
	n := 0
	for t := range typeNames {
		if s.Has(t) {
			n++
		}
	}
	return n
}

// CanHandle implements the profile-matching invariant from §3:
// t ∈ supportedTypes ∨ (t ≠ Ia ∧ All ∈ supportedTypes) ∨ (t = Hipri ∧ Default ∈ supportedTypes).
func (s TypeSet) CanHandle(t Type) bool {
	if s.Has(t) {
		return true
	}
	if t != Ia && s.Has(All) {
		return true
	}
	if t == Hipri && s.Has(Default) {
		return true
	}
	return false
}
