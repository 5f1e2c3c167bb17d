package report

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// WriteJSON stores the export records at path.
func WriteJSON(path string, records []Record) error {
	if records == nil {
		records = []Record{}
	}
	return writeAtomic(path, func(w io.Writer) error {
		return json.NewEncoder(w).Encode(records)
	})
}

// WriteYAML stores the YAML shape of records at path.
func WriteYAML(path string, records []Record) error {
	return writeAtomic(path, func(w io.Writer) error {
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(YAMLRecords(records)); err != nil {
			return err
		}
		return enc.Close()
	})
}

// writeAtomic writes through a temp file in the target directory and
// renames it into place, so readers never see a partial export.
func writeAtomic(path string, write func(io.Writer) error) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	f, err := os.CreateTemp(dir, ".tmp-"+filepath.Base(path)+"-*")
	if err != nil {
		return err
	}
	tmp := f.Name()
	if err := f.Chmod(0o644); err != nil {
		_ = f.Close()
		_ = os.Remove(tmp)
		return err
	}
	defer func() {
		// no-op once the rename succeeded
		_ = os.Remove(tmp)
	}()

	if err := write(f); err != nil {
		_ = f.Close()
		return fmt.Errorf("write %s: %w", path, err)
	}
	if err := f.Close(); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}
