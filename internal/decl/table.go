package decl

import (
	"errors"
	"fmt"
	"sort"
)

// ErrKindMismatch is matched by every ConsistencyError.
var ErrKindMismatch = errors.New("declaration kind mismatch")

// ConsistencyError reports one USR scanned as two incompatible kinds.
// It means the inputs are corrupted or come from mismatched scanner builds,
// and the run cannot continue.
type ConsistencyError struct {
	USR          string
	Kind         string
	Loc          string
	ExistingKind string
	ExistingLoc  string
}

func (e *ConsistencyError) Error() string {
	return fmt.Sprintf("usr %q: kind %s at %s conflicts with kind %s at %s",
		e.USR, e.Kind, e.Loc, e.ExistingKind, e.ExistingLoc)
}

func (e *ConsistencyError) Unwrap() error { return ErrKindMismatch }

// Table holds the canonical record for every USR seen so far.
type Table map[string]*Decl

// NewTable returns an empty table sized for roughly n symbols.
func NewTable(n int) Table {
	return make(Table, n)
}

// Len returns the number of distinct symbols.
func (t Table) Len() int { return len(t) }

// Lookup returns the canonical record for usr.
func (t Table) Lookup(usr string) (*Decl, bool) {
	d, ok := t[usr]
	return d, ok
}

// Merge folds d into the table. The first sighting of a USR is stored as-is
// and owned by the table from then on; later sightings are folded into it:
//
//   - used_from and other_mods grow by set union and never shrink;
//   - a defining sighting replaces a non-defining canonical record, and the
//     record it replaces is remembered in other_mods when the locations differ;
//   - any other sighting at a different location is remembered in other_mods.
//
// The first defining sighting wins, so which record ends up canonical
// depends on merge order while used_from does not.
//
// A kind mismatch returns a *ConsistencyError and leaves the table unchanged.
func (t Table) Merge(d *Decl) error {
	old, seen := t[d.USR]
	if !seen {
		d.UsedFrom = normalizeUsage(d.UsedFrom)
		if d.OtherMods == nil {
			d.OtherMods = ModSet{}
		}
		t[d.USR] = d
		return nil
	}

	if !KindsEquivalent(d.Kind, old.Kind) {
		return &ConsistencyError{
			USR:          d.USR,
			Kind:         d.Kind,
			Loc:          d.Loc,
			ExistingKind: old.Kind,
			ExistingLoc:  old.Loc,
		}
	}

	usedFrom := old.UsedFrom
	if usedFrom == nil {
		usedFrom = ModSet{}
	}
	for mod, locs := range d.UsedFrom {
		mod = UsageModule(mod)
		set, ok := usedFrom[mod]
		if !ok {
			set = make(LocSet, len(locs))
			usedFrom[mod] = set
		}
		set.Union(locs)
	}

	otherMods := old.OtherMods
	if otherMods == nil {
		otherMods = ModSet{}
	}
	otherMods.Union(d.OtherMods)

	if d.Defined && !old.Defined {
		d.UsedFrom = usedFrom
		if d.Loc != old.Loc {
			otherMods.Add(old.Mod, old.Loc)
		}
		// a worker table may have recorded the new canonical location
		otherMods.Remove(d.Mod, d.Loc)
		d.OtherMods = otherMods
		t[d.USR] = d
		return nil
	}

	if d.Loc != old.Loc {
		otherMods.Add(d.Mod, d.Loc)
	}
	otherMods.Remove(old.Mod, old.Loc)
	old.UsedFrom = usedFrom
	old.OtherMods = otherMods
	return nil
}

// MergeAll merges ds in order and stops at the first error.
func (t Table) MergeAll(ds []*Decl) error {
	for _, d := range ds {
		if err := t.Merge(d); err != nil {
			return err
		}
	}
	return nil
}

// Absorb replays every record of other through Merge. Records are moved,
// not copied, so other must not be used afterwards.
func (t Table) Absorb(other Table) error {
	for _, d := range other {
		if err := t.Merge(d); err != nil {
			return err
		}
	}
	return nil
}

// Sorted returns the canonical records ordered by USR.
func (t Table) Sorted() []*Decl {
	out := make([]*Decl, 0, len(t))
	for _, d := range t {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].USR < out[j].USR })
	return out
}

func normalizeUsage(in ModSet) ModSet {
	out := make(ModSet, len(in))
	for mod, locs := range in {
		mod = UsageModule(mod)
		set, ok := out[mod]
		if !ok {
			set = make(LocSet, len(locs))
			out[mod] = set
		}
		set.Union(locs)
	}
	return out
}
