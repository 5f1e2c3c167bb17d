// Package report derives the merged-declaration exports and the list of
// privacy violations from a merged table.
package report

import (
	"sort"

	"modscan/internal/decl"
)

// Options configures Build.
type Options struct {
	// IntraModule keeps a symbol's uses from its own module, both in the
	// export and in the violation check.
	IntraModule bool
}

// Report is everything derived from one merged table.
type Report struct {
	Symbols    int
	Records    []Record
	Violations []Violation
}

// Build derives the export and the violations from t. t is not modified.
func Build(t decl.Table, opts Options) *Report {
	view := View(t, opts.IntraModule)
	return &Report{
		Symbols:    t.Len(),
		Records:    Export(view),
		Violations: Violations(view),
	}
}

// View returns the table the export and the violation check work on: t
// itself when intraModule is set, otherwise a copy without self-use.
func View(t decl.Table, intraModule bool) decl.Table {
	if intraModule {
		return t
	}
	return Prune(t)
}

// Prune returns a copy of t in which no record lists its own module in
// used_from; a record without a module owns the NoModule key. Records and
// their used_from mappings are copied; location sets are shared with t and
// must be treated as read-only.
func Prune(t decl.Table) decl.Table {
	out := decl.NewTable(t.Len())
	for usr, d := range t {
		c := *d
		own := decl.UsageModule(d.Mod)
		c.UsedFrom = make(decl.ModSet, len(d.UsedFrom))
		for mod, locs := range d.UsedFrom {
			if mod == own {
				continue
			}
			c.UsedFrom[mod] = locs
		}
		out[usr] = &c
	}
	return out
}

// ModUsage is one used_from entry of the JSON export.
type ModUsage struct {
	Mod  string   `json:"mod"`
	Locs []string `json:"locs"`
}

// Record is one merged declaration as exported to JSON. used_from is a list
// rather than a mapping so that document stores can unwind it.
type Record struct {
	USR         string              `json:"usr"`
	DisplayName string              `json:"display_name"`
	Kind        string              `json:"kind"`
	Loc         string              `json:"loc"`
	Mod         string              `json:"mod"`
	Defined     bool                `json:"defined"`
	Visibility  string              `json:"visibility"`
	UsedFrom    []ModUsage          `json:"used_from"`
	OtherMods   map[string][]string `json:"other_mods,omitempty"`
}

// Export lists every record of view that is used from some module, ordered
// by USR.
func Export(view decl.Table) []Record {
	out := make([]Record, 0, len(view))
	for _, d := range view.Sorted() {
		if !hasUsage(d) {
			continue
		}
		out = append(out, Record{
			USR:         d.USR,
			DisplayName: d.DisplayName,
			Kind:        d.Kind,
			Loc:         d.Loc,
			Mod:         d.Mod,
			Defined:     d.Defined,
			Visibility:  d.Visibility,
			UsedFrom:    UsedFromList(d.UsedFrom),
			OtherMods:   sortedMods(d.OtherMods),
		})
	}
	return out
}

// UsedFromList reshapes a module→locations mapping into entries sorted by
// module, each with sorted locations.
func UsedFromList(m decl.ModSet) []ModUsage {
	out := make([]ModUsage, 0, len(m))
	for _, mod := range m.Modules() {
		out = append(out, ModUsage{Mod: mod, Locs: m[mod].Sorted()})
	}
	return out
}

// UsedFromMap is the inverse of UsedFromList.
func UsedFromMap(entries []ModUsage) decl.ModSet {
	out := make(decl.ModSet, len(entries))
	for _, e := range entries {
		set, ok := out[e.Mod]
		if !ok {
			set = make(decl.LocSet, len(e.Locs))
			out[e.Mod] = set
		}
		for _, loc := range e.Locs {
			set.Add(loc)
		}
	}
	return out
}

func sortedMods(m decl.ModSet) map[string][]string {
	if len(m) == 0 {
		return nil
	}
	out := make(map[string][]string, len(m))
	for mod, locs := range m {
		out[mod] = locs.Sorted()
	}
	return out
}

// hasUsage reports a non-empty used_from. A module key with no locations counts.
func hasUsage(d *decl.Decl) bool {
	return len(d.UsedFrom) > 0
}

// YAMLRecord is the human-editable export shape: used_from stays a mapping.
// Fields are in alphabetical order to match the key order of the files the
// previous tooling produced.
type YAMLRecord struct {
	Defined     bool                `yaml:"defined"`
	DisplayName string              `yaml:"display_name"`
	Kind        string              `yaml:"kind"`
	Loc         string              `yaml:"loc"`
	Mod         string              `yaml:"mod"`
	OtherMods   map[string][]string `yaml:"other_mods,omitempty"`
	UsedFrom    map[string][]string `yaml:"used_from"`
	USR         string              `yaml:"usr"`
	Visibility  string              `yaml:"visibility"`
}

// YAMLRecords converts export records to the YAML shape, sorted by
// location (USR breaks ties).
func YAMLRecords(records []Record) []YAMLRecord {
	out := make([]YAMLRecord, 0, len(records))
	for _, r := range records {
		usedFrom := make(map[string][]string, len(r.UsedFrom))
		for _, u := range r.UsedFrom {
			usedFrom[u.Mod] = u.Locs
		}
		out = append(out, YAMLRecord{
			Defined:     r.Defined,
			DisplayName: r.DisplayName,
			Kind:        r.Kind,
			Loc:         r.Loc,
			Mod:         r.Mod,
			OtherMods:   r.OtherMods,
			UsedFrom:    usedFrom,
			USR:         r.USR,
			Visibility:  r.Visibility,
		})
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Loc != out[j].Loc {
			return out[i].Loc < out[j].Loc
		}
		return out[i].USR < out[j].USR
	})
	return out
}
