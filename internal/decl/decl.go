// Package decl holds the declaration records produced by the module scanner
// and the merge that folds many sightings of one symbol into a single record.
package decl

import (
	"errors"
	"fmt"
)

// NoModule replaces an empty module name in used_from.
const NoModule = "__NONE__"

// VisibilityPrivate marks declarations that must not be used outside their module.
const VisibilityPrivate = "private"

// Kinds reported by the scanner that the merge treats specially.
const (
	KindClassDecl     = "CLASS_DECL"
	KindClassTemplate = "CLASS_TEMPLATE"
)

// ErrMissingUSR is returned by Validate for a record without a symbol identifier.
var ErrMissingUSR = errors.New("declaration has no usr")

// Decl is one sighting of a symbol in one compilation. Once stored in a
// Table it becomes the canonical record for its USR and accumulates the
// used_from and other_mods sets of every later sighting.
type Decl struct {
	USR         string `json:"usr" yaml:"usr" msgpack:"usr"`
	DisplayName string `json:"display_name" yaml:"display_name" msgpack:"display_name"`
	Kind        string `json:"kind" yaml:"kind" msgpack:"kind"`
	Loc         string `json:"loc" yaml:"loc" msgpack:"loc"`
	Mod         string `json:"mod" yaml:"mod" msgpack:"mod"`
	Defined     bool   `json:"defined" yaml:"defined" msgpack:"defined"`
	Visibility  string `json:"visibility" yaml:"visibility" msgpack:"visibility"`
	UsedFrom    ModSet `json:"used_from" yaml:"used_from" msgpack:"used_from"`
	OtherMods   ModSet `json:"other_mods,omitempty" yaml:"other_mods,omitempty" msgpack:"other_mods,omitempty"`
}

// Validate reports records the merge cannot key.
func (d *Decl) Validate() error {
	if d == nil || d.USR == "" {
		return ErrMissingUSR
	}
	return nil
}

// IsPrivate reports whether the declaration carries the private visibility tag.
func (d *Decl) IsPrivate() bool {
	return d.Visibility == VisibilityPrivate
}

// Clone returns a copy whose sets can be mutated without touching d.
func (d *Decl) Clone() *Decl {
	if d == nil {
		return nil
	}
	c := *d
	c.UsedFrom = d.UsedFrom.Clone()
	c.OtherMods = d.OtherMods.Clone()
	return &c
}

func (d *Decl) String() string {
	return fmt.Sprintf("%s %s (%s) at %s in %s", d.Kind, d.DisplayName, d.USR, d.Loc, d.Mod)
}

// KindsEquivalent reports whether two sightings of one USR agree on kind.
// The scanner reports class templates as CLASS_DECL in some translation
// units, so the two are interchangeable.
func KindsEquivalent(a, b string) bool {
	if a == b {
		return true
	}
	return (a == KindClassDecl && b == KindClassTemplate) ||
		(a == KindClassTemplate && b == KindClassDecl)
}
