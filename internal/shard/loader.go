package shard

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"fortio.org/safecast"
	"github.com/klauspost/compress/zstd"
	"github.com/vmihailenco/msgpack/v5"

	"modscan/internal/decl"
)

// Options configures a Loader.
type Options struct {
	// MaxDecodedBytes bounds the memory a single decompressed shard may use
	// (0 keeps the codec default).
	MaxDecodedBytes int64
	// Concurrency is the number of shards expected to be decoded at once
	// (0 picks the codec default).
	Concurrency int
}

// Loader decodes shards. It is safe for concurrent use.
type Loader struct {
	zstd *zstd.Decoder
}

// NewLoader prepares a loader with a shared zstd decoder.
func NewLoader(opts Options) (*Loader, error) {
	zopts := []zstd.DOption{}
	if opts.MaxDecodedBytes > 0 {
		limit, err := safecast.Conv[uint64](opts.MaxDecodedBytes)
		if err != nil {
			return nil, fmt.Errorf("shard memory limit: %w", err)
		}
		zopts = append(zopts, zstd.WithDecoderMaxMemory(limit))
	}
	if opts.Concurrency > 0 {
		zopts = append(zopts, zstd.WithDecoderConcurrency(opts.Concurrency))
	}
	dec, err := zstd.NewReader(nil, zopts...)
	if err != nil {
		return nil, fmt.Errorf("create zstd decoder: %w", err)
	}
	return &Loader{zstd: dec}, nil
}

// Close releases the decoder.
func (l *Loader) Close() {
	if l == nil || l.zstd == nil {
		return
	}
	l.zstd.Close()
}

// Load reads path and returns its records in file order. Every failure to
// read or decode the shard is a *DecodeError.
func (l *Loader) Load(path string) ([]*decl.Decl, error) {
	codec, err := CodecFor(path)
	if err != nil {
		return nil, &DecodeError{Path: path, Record: -1, Err: err}
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, &DecodeError{Path: path, Record: -1, Err: err}
	}
	return l.Decode(path, codec, raw)
}

// Decode decodes raw shard bytes stored with codec. path is only used for errors.
func (l *Loader) Decode(path string, codec Codec, raw []byte) ([]*decl.Decl, error) {
	data := raw
	if codec.Compressed {
		var err error
		data, err = l.zstd.DecodeAll(raw, nil)
		if err != nil {
			return nil, &DecodeError{Path: path, Record: -1, Err: fmt.Errorf("zstd: %w", err)}
		}
	}

	var records []*decl.Decl
	switch codec.Format {
	case FormatJSON:
		dec := json.NewDecoder(bytes.NewReader(data))
		if err := dec.Decode(&records); err != nil {
			return nil, &DecodeError{Path: path, Record: -1, Err: fmt.Errorf("json: %w", err)}
		}
		if dec.More() {
			return nil, &DecodeError{Path: path, Record: -1, Err: errors.New("json: trailing data after record list")}
		}
	case FormatMsgpack:
		if err := msgpack.Unmarshal(data, &records); err != nil {
			return nil, &DecodeError{Path: path, Record: -1, Err: fmt.Errorf("msgpack: %w", err)}
		}
	default:
		return nil, &DecodeError{Path: path, Record: -1, Err: fmt.Errorf("unsupported format %s", codec.Format)}
	}

	for i, d := range records {
		if err := d.Validate(); err != nil {
			return nil, &DecodeError{Path: path, Record: i, Err: err}
		}
	}
	return records, nil
}
