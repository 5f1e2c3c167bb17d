package report

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"gopkg.in/yaml.v3"

	"modscan/internal/decl"
)

func mergedTable(t *testing.T, records ...*decl.Decl) decl.Table {
	t.Helper()
	table := decl.NewTable(len(records))
	if err := table.MergeAll(records); err != nil {
		t.Fatalf("merge: %v", err)
	}
	return table
}

// twoModuleTable mirrors two shards: module A defines S, module B uses it.
func twoModuleTable(t *testing.T, visibility string) decl.Table {
	return mergedTable(t,
		&decl.Decl{
			USR: "U1", DisplayName: "S", Kind: "FUNCTION_DECL", Loc: "fileA.ext:1",
			Mod: "A", Defined: true, Visibility: visibility, UsedFrom: decl.ModSet{},
		},
		&decl.Decl{
			USR: "U1", DisplayName: "S", Kind: "FUNCTION_DECL", Loc: "fileA.ext:1",
			Mod: "B", Visibility: visibility,
			UsedFrom: decl.ModSet{"B": decl.NewLocSet("fileB.ext:10")},
		},
	)
}

func TestPrivateUseFromOtherModuleIsViolation(t *testing.T) {
	rep := Build(twoModuleTable(t, decl.VisibilityPrivate), Options{})
	want := []Violation{{
		USR: "U1", DisplayName: "S", Mod: "A", Loc: "fileA.ext:1",
		Usages: []Usage{{Loc: "fileB.ext:10", Mod: "B"}},
	}}
	if diff := cmp.Diff(want, rep.Violations); diff != "" {
		t.Fatalf("violations (-want +got):\n%s", diff)
	}

	var buf bytes.Buffer
	if err := PrintViolations(&buf, rep.Violations, PrintOptions{}); err != nil {
		t.Fatalf("print: %v", err)
	}
	wantText := "Illegal use of S outside of module A:\n  loc: fileA.ext:1\n  usages:\n    fileB.ext:10 (B)\n"
	if buf.String() != wantText {
		t.Fatalf("printed:\n%q\nwant:\n%q", buf.String(), wantText)
	}
}

func TestPublicUseIsNotViolation(t *testing.T) {
	private := Build(twoModuleTable(t, decl.VisibilityPrivate), Options{})
	public := Build(twoModuleTable(t, "public"), Options{})
	if len(public.Violations) != 0 {
		t.Fatalf("expected no violations, got %+v", public.Violations)
	}
	if len(public.Records) != 1 || len(private.Records) != 1 {
		t.Fatalf("expected one exported record each, got %d/%d", len(public.Records), len(private.Records))
	}
	public.Records[0].Visibility = private.Records[0].Visibility
	if diff := cmp.Diff(private.Records, public.Records); diff != "" {
		t.Fatalf("export differs beyond visibility (-private +public):\n%s", diff)
	}
}

func TestSelfUseIsExcluded(t *testing.T) {
	table := mergedTable(t, &decl.Decl{
		USR: "U2", DisplayName: "T", Kind: "FUNCTION_DECL", Loc: "a.cpp:3", Mod: "A",
		Defined: true, Visibility: decl.VisibilityPrivate,
		UsedFrom: decl.ModSet{"A": decl.NewLocSet("a2.cpp:9")},
	})

	pruned := Prune(table)
	if got := pruned["U2"].UsedFrom; len(got) != 0 {
		t.Fatalf("pruned used_from = %v, want empty", got)
	}
	if !table["U2"].UsedFrom.Has("A", "a2.cpp:9") {
		t.Fatalf("Prune modified the stored table")
	}

	rep := Build(table, Options{})
	if len(rep.Records) != 0 || len(rep.Violations) != 0 {
		t.Fatalf("self-use leaked into report: %+v", rep)
	}

	intra := Build(table, Options{IntraModule: true})
	if len(intra.Records) != 1 || len(intra.Violations) != 1 {
		t.Fatalf("intra-module run should keep self-use: %+v", intra)
	}
}

func TestSelfUseWithoutModuleIsExcluded(t *testing.T) {
	table := mergedTable(t,
		&decl.Decl{
			USR: "U3", DisplayName: "gen", Kind: "FUNCTION_DECL", Loc: "gen.h:1",
			Defined: true, Visibility: decl.VisibilityPrivate,
			UsedFrom: decl.ModSet{"": decl.NewLocSet("gen.cpp:3")},
		},
		&decl.Decl{
			USR: "U3", DisplayName: "gen", Kind: "FUNCTION_DECL", Loc: "gen.h:1",
			Visibility: decl.VisibilityPrivate,
			UsedFrom:   decl.ModSet{"": decl.NewLocSet("gen2.cpp:7")},
		},
	)
	if !table["U3"].UsedFrom.Has(decl.NoModule, "gen.cpp:3") {
		t.Fatalf("fixture: expected used_from under %s, got %v", decl.NoModule, table["U3"].UsedFrom)
	}

	rep := Build(table, Options{})
	if len(rep.Violations) != 0 || len(rep.Records) != 0 {
		t.Fatalf("module-less self-use reported: records=%+v violations=%+v", rep.Records, rep.Violations)
	}

	intra := Build(table, Options{IntraModule: true})
	if len(intra.Violations) != 1 || len(intra.Violations[0].Usages) != 2 {
		t.Fatalf("intra-module run should keep module-less self-use: %+v", intra.Violations)
	}
}

func TestUsedFromRoundTrip(t *testing.T) {
	in := decl.ModSet{
		"b":           decl.NewLocSet("z:1", "a:2"),
		"a":           decl.NewLocSet("q:3"),
		decl.NoModule: decl.NewLocSet("gen:1"),
	}
	list := UsedFromList(in)
	wantList := []ModUsage{
		{Mod: decl.NoModule, Locs: []string{"gen:1"}},
		{Mod: "a", Locs: []string{"q:3"}},
		{Mod: "b", Locs: []string{"a:2", "z:1"}},
	}
	if diff := cmp.Diff(wantList, list); diff != "" {
		t.Fatalf("list (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(in, UsedFromMap(list)); diff != "" {
		t.Fatalf("round trip (-in +out):\n%s", diff)
	}
}

func TestViolationsSortedByDisplayName(t *testing.T) {
	var records []*decl.Decl
	for _, name := range []string{"zeta", "alpha", "mid"} {
		records = append(records, &decl.Decl{
			USR: "usr-" + name, DisplayName: name, Kind: "FUNCTION_DECL", Loc: name + ".cpp:1",
			Mod: "own", Defined: true, Visibility: decl.VisibilityPrivate,
			UsedFrom: decl.ModSet{"other": decl.NewLocSet("x.cpp:2", "w.cpp:1"), "third": decl.NewLocSet("t:1")},
		})
	}
	vs := Violations(Prune(mergedTable(t, records...)))
	var names []string
	for _, v := range vs {
		names = append(names, v.DisplayName)
	}
	if diff := cmp.Diff([]string{"alpha", "mid", "zeta"}, names); diff != "" {
		t.Fatalf("order (-want +got):\n%s", diff)
	}
	wantUsages := []Usage{{Loc: "w.cpp:1", Mod: "other"}, {Loc: "x.cpp:2", Mod: "other"}, {Loc: "t:1", Mod: "third"}}
	if diff := cmp.Diff(wantUsages, vs[0].Usages); diff != "" {
		t.Fatalf("usages (-want +got):\n%s", diff)
	}
}

func TestWriteExports(t *testing.T) {
	table := mergedTable(t,
		&decl.Decl{USR: "U1", DisplayName: "S", Kind: "FUNCTION_DECL", Loc: "b.h:1", Mod: "A", Defined: true,
			Visibility: decl.VisibilityPrivate, UsedFrom: decl.ModSet{"B": decl.NewLocSet("b.cpp:2", "b.cpp:1")}},
		&decl.Decl{USR: "U1", DisplayName: "S", Kind: "FUNCTION_DECL", Loc: "c.h:9", Mod: "C", UsedFrom: decl.ModSet{}},
		&decl.Decl{USR: "U0", DisplayName: "R", Kind: "FUNCTION_DECL", Loc: "a.h:1", Mod: "A", Defined: true,
			Visibility: "public", UsedFrom: decl.ModSet{"C": decl.NewLocSet("c.cpp:5")}},
	)
	rep := Build(table, Options{})
	dir := t.TempDir()

	jsonPath := filepath.Join(dir, "merged_decls.json")
	if err := WriteJSON(jsonPath, rep.Records); err != nil {
		t.Fatalf("WriteJSON: %v", err)
	}
	raw, err := os.ReadFile(jsonPath)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var got []Record
	if err := json.Unmarshal(raw, &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if diff := cmp.Diff(rep.Records, got); diff != "" {
		t.Fatalf("json export (-want +got):\n%s", diff)
	}
	if got[1].USR != "U1" || got[1].OtherMods["C"][0] != "c.h:9" {
		t.Fatalf("unexpected second record %+v", got[1])
	}
	if !strings.Contains(string(raw), `"used_from":[{"mod":"B","locs":["b.cpp:1","b.cpp:2"]}]`) {
		t.Fatalf("used_from not exported as sorted list: %s", raw)
	}

	yamlPath := filepath.Join(dir, "merged_decls.yaml")
	if err := WriteYAML(yamlPath, rep.Records); err != nil {
		t.Fatalf("WriteYAML: %v", err)
	}
	raw, err = os.ReadFile(yamlPath)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var ys []YAMLRecord
	if err := yaml.Unmarshal(raw, &ys); err != nil {
		t.Fatalf("yaml unmarshal: %v", err)
	}
	if len(ys) != 2 || ys[0].Loc != "a.h:1" || ys[1].Loc != "b.h:1" {
		t.Fatalf("yaml not sorted by loc: %+v", ys)
	}
	if diff := cmp.Diff(map[string][]string{"B": {"b.cpp:1", "b.cpp:2"}}, ys[1].UsedFrom); diff != "" {
		t.Fatalf("yaml used_from (-want +got):\n%s", diff)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("readdir: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("temp files left behind: %v", entries)
	}
}
