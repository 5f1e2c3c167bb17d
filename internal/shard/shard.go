// Package shard finds and decodes the per-compilation-unit declaration
// files written by the module scanner.
package shard

import (
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"sort"
	"strings"
)

// DefaultSuffix is the file name suffix of scanner output.
const DefaultSuffix = ".mod_scanner_decls.json.zst"

// ErrDecode is matched by every DecodeError.
var ErrDecode = errors.New("shard decode failed")

// DecodeError reports a shard that is truncated, not validly encoded or
// holds a record the merge cannot key. Record is the index of the offending
// record, or -1 when the shard as a whole could not be read.
type DecodeError struct {
	Path   string
	Record int
	Err    error
}

func (e *DecodeError) Error() string {
	if e.Record >= 0 {
		return fmt.Sprintf("decode %s: record %d: %v", e.Path, e.Record, e.Err)
	}
	return fmt.Sprintf("decode %s: %v", e.Path, e.Err)
}

func (e *DecodeError) Unwrap() []error { return []error{ErrDecode, e.Err} }

// Discover returns every file under root whose name ends with suffix,
// sorted for a deterministic order. root may itself be a symlink, as
// bazel-bin usually is.
func Discover(root, suffix string) ([]string, error) {
	if suffix == "" {
		suffix = DefaultSuffix
	}
	resolved, err := filepath.EvalSymlinks(root)
	if err != nil {
		return nil, fmt.Errorf("resolve shard root: %w", err)
	}

	var files []string
	err = filepath.WalkDir(resolved, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !strings.HasSuffix(d.Name(), suffix) {
			return nil
		}
		if rel, relErr := filepath.Rel(resolved, path); relErr == nil {
			path = filepath.Join(root, rel)
		}
		files = append(files, path)
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.Strings(files)
	return files, nil
}
