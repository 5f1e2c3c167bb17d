// Package config loads modscan.toml and applies its defaults.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/BurntSushi/toml"

	"modscan/internal/shard"
)

// FileName is the config file looked up from the working directory upwards.
const FileName = "modscan.toml"

// Defaults for the [merge] section.
const (
	DefaultRoot    = "bazel-bin"
	DefaultJSONOut = "merged_decls.json"
	DefaultYAMLOut = "merged_decls.yaml"
)

// Merge is the [merge] section.
type Merge struct {
	Root        string `toml:"root"`
	Suffix      string `toml:"suffix"`
	Jobs        int    `toml:"jobs"`
	IntraModule bool   `toml:"intra_module"`
	YAML        bool   `toml:"yaml"`
	JSONOut     string `toml:"json_out"`
	YAMLOut     string `toml:"yaml_out"`
	// MaxShardMiB bounds the decompressed size of one shard; 0 means no
	// explicit bound.
	MaxShardMiB int `toml:"max_shard_mib"`
}

// Config is the decoded modscan.toml.
type Config struct {
	// Path is the file the config was read from, empty for defaults.
	Path  string `toml:"-"`
	Merge Merge  `toml:"merge"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Merge: Merge{
			Root:    DefaultRoot,
			Suffix:  shard.DefaultSuffix,
			JSONOut: DefaultJSONOut,
			YAMLOut: DefaultYAMLOut,
		},
	}
}

// Find looks for FileName in startDir and its parents.
func Find(startDir string) (string, bool, error) {
	if startDir == "" {
		startDir = "."
	}
	dir, err := filepath.Abs(startDir)
	if err != nil {
		return "", false, fmt.Errorf("failed to resolve start directory: %w", err)
	}
	for {
		candidate := filepath.Join(dir, FileName)
		if _, err := os.Stat(candidate); err == nil {
			return candidate, true, nil
		} else if !errors.Is(err, os.ErrNotExist) {
			return "", false, fmt.Errorf("failed to stat %q: %w", candidate, err)
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}
	return "", false, nil
}

// Load decodes path over the defaults. Relative paths in the file are
// resolved against the file's directory. Unknown keys are an error.
func Load(path string) (Config, error) {
	cfg := Default()
	meta, err := toml.DecodeFile(path, &cfg)
	if err != nil {
		return Config{}, fmt.Errorf("%s: failed to parse TOML: %w", path, err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, 0, len(undecoded))
		for _, k := range undecoded {
			keys = append(keys, k.String())
		}
		sort.Strings(keys)
		return Config{}, fmt.Errorf("%s: unknown keys: %s", path, strings.Join(keys, ", "))
	}
	cfg.Path = path

	base := filepath.Dir(path)
	for _, field := range []struct {
		key string
		val *string
	}{
		{"root", &cfg.Merge.Root},
		{"json_out", &cfg.Merge.JSONOut},
		{"yaml_out", &cfg.Merge.YAMLOut},
	} {
		if meta.IsDefined("merge", field.key) && *field.val != "" && !filepath.IsAbs(*field.val) {
			*field.val = filepath.Join(base, *field.val)
		}
	}

	if err := cfg.Merge.Validate(); err != nil {
		return Config{}, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// Resolve loads the file at explicit if set, otherwise the nearest
// modscan.toml above startDir, otherwise the defaults.
func Resolve(explicit, startDir string) (Config, error) {
	if explicit != "" {
		return Load(explicit)
	}
	path, ok, err := Find(startDir)
	if err != nil {
		return Config{}, err
	}
	if !ok {
		return Default(), nil
	}
	return Load(path)
}

// Validate checks values the merge cannot run with.
func (m Merge) Validate() error {
	switch {
	case strings.TrimSpace(m.Root) == "":
		return errors.New("[merge].root must not be empty")
	case strings.TrimSpace(m.Suffix) == "":
		return errors.New("[merge].suffix must not be empty")
	case m.JSONOut == "":
		return errors.New("[merge].json_out must not be empty")
	case m.YAML && m.YAMLOut == "":
		return errors.New("[merge].yaml_out must not be empty when yaml is enabled")
	case m.MaxShardMiB < 0:
		return fmt.Errorf("[merge].max_shard_mib must not be negative, got %d", m.MaxShardMiB)
	}
	if _, err := shard.CodecFor("x" + m.Suffix); err != nil {
		return fmt.Errorf("[merge].suffix: %w", err)
	}
	return nil
}

// MaxShardBytes converts MaxShardMiB to bytes.
func (m Merge) MaxShardBytes() int64 {
	return int64(m.MaxShardMiB) << 20
}
