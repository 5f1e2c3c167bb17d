package report

import (
	"fmt"
	"io"
	"sort"

	"github.com/fatih/color"

	"modscan/internal/decl"
)

// Usage is one place a private symbol was referenced from.
type Usage struct {
	Loc string
	Mod string
}

// Violation is a private symbol used from outside its module.
type Violation struct {
	USR         string
	DisplayName string
	Mod         string
	Loc         string
	Usages      []Usage
}

// Violations returns every private record of view that has uses, sorted by
// display name (USR breaks ties). Pass a pruned view unless uses from the
// owning module should count as well.
func Violations(view decl.Table) []Violation {
	var out []Violation
	for _, d := range view {
		if !d.IsPrivate() || !hasUsage(d) {
			continue
		}
		v := Violation{
			USR:         d.USR,
			DisplayName: d.DisplayName,
			Mod:         d.Mod,
			Loc:         d.Loc,
		}
		for _, mod := range d.UsedFrom.Modules() {
			for _, loc := range d.UsedFrom[mod].Sorted() {
				v.Usages = append(v.Usages, Usage{Loc: loc, Mod: mod})
			}
		}
		out = append(out, v)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].DisplayName != out[j].DisplayName {
			return out[i].DisplayName < out[j].DisplayName
		}
		return out[i].USR < out[j].USR
	})
	return out
}

// PrintOptions controls PrintViolations.
type PrintOptions struct {
	Color bool
}

// PrintViolations writes one block per violation:
//
//	Illegal use of mongo::helper outside of module db:
//	  loc: src/mongo/db/helper.cpp:12:6
//	  usages:
//	    src/mongo/s/router.cpp:88:3 (s)
func PrintViolations(w io.Writer, vs []Violation, opts PrintOptions) error {
	name := color.New(color.FgRed, color.Bold)
	mod := color.New(color.FgYellow)
	dim := color.New(color.Faint)
	for _, c := range []*color.Color{name, mod, dim} {
		if opts.Color {
			c.EnableColor()
		} else {
			c.DisableColor()
		}
	}

	for _, v := range vs {
		if _, err := fmt.Fprintf(w, "Illegal use of %s outside of module %s:\n", name.Sprint(v.DisplayName), mod.Sprint(v.Mod)); err != nil {
			return err
		}
		if _, err := fmt.Fprintf(w, "  loc: %s\n  usages:\n", v.Loc); err != nil {
			return err
		}
		for _, u := range v.Usages {
			if _, err := fmt.Fprintf(w, "    %s %s\n", u.Loc, dim.Sprintf("(%s)", u.Mod)); err != nil {
				return err
			}
		}
	}
	return nil
}
