package shard

import (
	"fmt"
	"strings"
)

// Format is the record encoding inside a shard.
type Format uint8

const (
	FormatJSON Format = iota + 1
	FormatMsgpack
)

func (f Format) String() string {
	switch f {
	case FormatJSON:
		return "json"
	case FormatMsgpack:
		return "msgpack"
	default:
		return "unknown"
	}
}

// Codec describes how a shard file is stored.
type Codec struct {
	Format     Format
	Compressed bool
}

// CodecFor picks the codec from the file name.
func CodecFor(path string) (Codec, error) {
	name := path
	compressed := false
	if trimmed, ok := strings.CutSuffix(name, ".zst"); ok {
		name = trimmed
		compressed = true
	}
	switch {
	case strings.HasSuffix(name, ".json"):
		return Codec{Format: FormatJSON, Compressed: compressed}, nil
	case strings.HasSuffix(name, ".msgpack"), strings.HasSuffix(name, ".mp"):
		return Codec{Format: FormatMsgpack, Compressed: compressed}, nil
	default:
		return Codec{}, fmt.Errorf("unrecognized shard extension: %s", path)
	}
}
