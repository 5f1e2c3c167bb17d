package shard

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"

	"modscan/internal/decl"
)

func sampleRecords() []*decl.Decl {
	return []*decl.Decl{
		{
			USR:         "c:@N@mongo@F@helper#",
			DisplayName: "mongo::helper",
			Kind:        "FUNCTION_DECL",
			Loc:         "src/mongo/db/helper.cpp:12:6",
			Mod:         "db",
			Defined:     true,
			Visibility:  decl.VisibilityPrivate,
			UsedFrom:    decl.ModSet{"s": decl.NewLocSet("src/mongo/s/router.cpp:88:3")},
			OtherMods:   decl.ModSet{"s": decl.NewLocSet("src/mongo/s/helper_fwd.h:3:6")},
		},
		{
			USR:        "c:@N@mongo@S@Widget",
			Kind:       decl.KindClassDecl,
			Loc:        "src/mongo/db/widget.h:4:7",
			Mod:        "db",
			Visibility: "public",
			UsedFrom:   decl.ModSet{},
		},
	}
}

func newTestLoader(t *testing.T) *Loader {
	t.Helper()
	l, err := NewLoader(Options{})
	if err != nil {
		t.Fatalf("NewLoader: %v", err)
	}
	t.Cleanup(l.Close)
	return l
}

func TestDiscoverFiltersBySuffix(t *testing.T) {
	root := t.TempDir()
	want := []string{
		filepath.Join(root, "a", "x.mod_scanner_decls.json.zst"),
		filepath.Join(root, "b", "c", "y.mod_scanner_decls.json.zst"),
	}
	other := []string{
		filepath.Join(root, "a", "x.o"),
		filepath.Join(root, "a", "x.mod_scanner_decls.json"),
	}
	for _, p := range append(append([]string(nil), want...), other...) {
		if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
			t.Fatalf("mkdir: %v", err)
		}
		if err := os.WriteFile(p, nil, 0o600); err != nil {
			t.Fatalf("write: %v", err)
		}
	}

	got, err := Discover(root, "")
	if err != nil {
		t.Fatalf("Discover: %v", err)
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("Discover (-want +got):\n%s", diff)
	}
}

func TestDiscoverFollowsSymlinkedRoot(t *testing.T) {
	real := t.TempDir()
	if err := os.WriteFile(filepath.Join(real, "u.mod_scanner_decls.json.zst"), nil, 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	link := filepath.Join(t.TempDir(), "bazel-bin")
	if err := os.Symlink(real, link); err != nil {
		t.Skipf("symlinks unavailable: %v", err)
	}
	got, err := Discover(link, DefaultSuffix)
	if err != nil {
		t.Fatalf("Discover: %v", err)
	}
	want := []string{filepath.Join(link, "u.mod_scanner_decls.json.zst")}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("Discover (-want +got):\n%s", diff)
	}
}

func TestDiscoverMissingRoot(t *testing.T) {
	if _, err := Discover(filepath.Join(t.TempDir(), "nope"), ""); err == nil {
		t.Fatalf("expected error for missing root")
	}
}

func TestLoadRoundTripsEveryCodec(t *testing.T) {
	dir := t.TempDir()
	loader := newTestLoader(t)
	for _, name := range []string{
		"unit.mod_scanner_decls.json.zst",
		"unit.mod_scanner_decls.json",
		"unit.mod_scanner_decls.msgpack.zst",
		"unit.mod_scanner_decls.mp",
	} {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(dir, name)
			if err := Write(path, sampleRecords()); err != nil {
				t.Fatalf("Write: %v", err)
			}
			got, err := loader.Load(path)
			if err != nil {
				t.Fatalf("Load: %v", err)
			}
			if diff := cmp.Diff(sampleRecords(), got); diff != "" {
				t.Fatalf("Load (-want +got):\n%s", diff)
			}
		})
	}
}

func TestLoadTruncatedShard(t *testing.T) {
	path := filepath.Join(t.TempDir(), "unit.mod_scanner_decls.json.zst")
	if err := Write(path, sampleRecords()); err != nil {
		t.Fatalf("Write: %v", err)
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if err := os.WriteFile(path, raw[:len(raw)/2], 0o600); err != nil {
		t.Fatalf("truncate: %v", err)
	}

	_, err = newTestLoader(t).Load(path)
	if !errors.Is(err, ErrDecode) {
		t.Fatalf("expected ErrDecode, got %v", err)
	}
	var de *DecodeError
	if !errors.As(err, &de) || de.Path != path || de.Record != -1 {
		t.Fatalf("unexpected decode error %#v", err)
	}
}

func TestLoadRejectsRecordWithoutUSR(t *testing.T) {
	path := filepath.Join(t.TempDir(), "unit.mod_scanner_decls.json")
	body := `[{"usr":"u1","kind":"FUNCTION_DECL","loc":"a:1","mod":"A","used_from":{}},{"kind":"FUNCTION_DECL"}]`
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	_, err := newTestLoader(t).Load(path)
	var de *DecodeError
	if !errors.As(err, &de) {
		t.Fatalf("expected *DecodeError, got %v", err)
	}
	if de.Record != 1 || !errors.Is(err, decl.ErrMissingUSR) {
		t.Fatalf("unexpected decode error: %v", err)
	}
}

func TestLoadGarbage(t *testing.T) {
	dir := t.TempDir()
	loader := newTestLoader(t)
	cases := map[string][]byte{
		"bad.mod_scanner_decls.json":     []byte(`[{"usr": `),
		"bad.mod_scanner_decls.json.zst": []byte("definitely not zstd"),
		"bad.mod_scanner_decls.txt":      []byte(`[]`),
	}
	for name, body := range cases {
		path := filepath.Join(dir, name)
		if err := os.WriteFile(path, body, 0o600); err != nil {
			t.Fatalf("write: %v", err)
		}
		if _, err := loader.Load(path); !errors.Is(err, ErrDecode) {
			t.Fatalf("%s: expected ErrDecode, got %v", name, err)
		}
	}
}
