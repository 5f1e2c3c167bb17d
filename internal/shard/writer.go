package shard

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/klauspost/compress/zstd"
	"github.com/vmihailenco/msgpack/v5"

	"modscan/internal/decl"
)

// Write stores records at path using the codec implied by its name.
func Write(path string, records []*decl.Decl) (err error) {
	codec, err := CodecFor(path)
	if err != nil {
		return err
	}
	if records == nil {
		records = []*decl.Decl{}
	}

	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := f.Close(); closeErr != nil && err == nil {
			err = closeErr
		}
	}()

	var w io.Writer = f
	var zw *zstd.Encoder
	if codec.Compressed {
		zw, err = zstd.NewWriter(f)
		if err != nil {
			return fmt.Errorf("create zstd encoder: %w", err)
		}
		w = zw
	}

	switch codec.Format {
	case FormatJSON:
		err = json.NewEncoder(w).Encode(records)
	case FormatMsgpack:
		err = msgpack.NewEncoder(w).Encode(records)
	}
	if err != nil {
		if zw != nil {
			_ = zw.Close()
		}
		return fmt.Errorf("encode %s: %w", path, err)
	}
	if zw != nil {
		return zw.Close()
	}
	return nil
}
