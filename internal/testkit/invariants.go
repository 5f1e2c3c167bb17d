// Package testkit holds checks shared by the tests of several packages.
package testkit

import (
	"fmt"

	"modscan/internal/decl"
)

// CheckTableInvariants checks the shape every merged table must have:
//  1. each record is stored under its own USR
//  2. no used_from key is the empty module
//  3. other_mods never lists the canonical record's own location
//  4. no used_from or other_mods entry has an empty location set
func CheckTableInvariants(t decl.Table) error {
	for usr, d := range t {
		if d == nil {
			return fmt.Errorf("usr %q: nil record", usr)
		}
		if d.USR != usr {
			return fmt.Errorf("usr %q: record stored under %q", d.USR, usr)
		}
		for mod, locs := range d.UsedFrom {
			if mod == "" {
				return fmt.Errorf("usr %q: used_from has an empty module key", usr)
			}
			if len(locs) == 0 {
				return fmt.Errorf("usr %q: used_from[%s] is empty", usr, mod)
			}
		}
		if d.OtherMods.Has(d.Mod, d.Loc) {
			return fmt.Errorf("usr %q: other_mods lists the canonical location %s (%s)", usr, d.Loc, d.Mod)
		}
		for mod, locs := range d.OtherMods {
			if len(locs) == 0 {
				return fmt.Errorf("usr %q: other_mods[%s] is empty", usr, mod)
			}
		}
	}
	return nil
}
