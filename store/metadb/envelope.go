package metadb

import (
	"errors"
	"fmt"
	"sync"

	"github.com/klauspost/compress/zstd"
)

const (
	// compressionThreshold is the minimum record size before compression is
	// considered. zstd overhead is not worth it for smaller payloads.
	compressionThreshold = 2048

	// maxPayloadSize is the maximum allowed uncompressed record size.
	maxPayloadSize = 10 * 1024 * 1024

	// maxDecompressedSize is the hard cap during decompression to prevent
	// compression bombs.
	maxDecompressedSize = 10 * 1024 * 1024
)

// Encoding markers stored as the first byte of every record value.
const (
	encodingIdentity byte = 0
	encodingZstd     byte = 1
)

var (
	// ErrPayloadTooLarge is returned when a record exceeds maxPayloadSize.
	ErrPayloadTooLarge = errors.New("metadb: record exceeds maximum size")

	// ErrDecompressionBomb is returned when decompressed size exceeds the cap.
	ErrDecompressionBomb = errors.New("metadb: decompressed record exceeds maximum size")

	// ErrCorrupted is returned when a stored record cannot be decoded.
	ErrCorrupted = errors.New("metadb: corrupted record")
)

// recordCodec encodes record values with optional zstd compression.
// The encoder and decoder are goroutine-safe and reused across calls.
type recordCodec struct {
	encoder *zstd.Encoder
	decoder *zstd.Decoder
	mu      sync.RWMutex
}

// newRecordCodec creates a codec with pooled zstd encoder/decoder.
func newRecordCodec() (*recordCodec, error) {
	enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return nil, fmt.Errorf("creating zstd encoder: %w", err)
	}

	dec, err := zstd.NewReader(nil)
	if err != nil {
		enc.Close()
		return nil, fmt.Errorf("creating zstd decoder: %w", err)
	}

	return &recordCodec{encoder: enc, decoder: dec}, nil
}

// Close releases encoder/decoder resources.
func (c *recordCodec) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.encoder != nil {
		c.encoder.Close()
		c.encoder = nil
	}
	if c.decoder != nil {
		c.decoder.Close()
		c.decoder = nil
	}
}

// Encode prefixes data with an encoding marker, compressing when beneficial.
func (c *recordCodec) Encode(data []byte) ([]byte, error) {
	if len(data) > maxPayloadSize {
		return nil, ErrPayloadTooLarge
	}

	if len(data) >= compressionThreshold {
		c.mu.RLock()
		enc := c.encoder
		c.mu.RUnlock()

		if enc != nil {
			compressed := enc.EncodeAll(data, make([]byte, 1, len(data)/2))
			compressed[0] = encodingZstd
			if len(compressed) < len(data)+1 {
				return compressed, nil
			}
		}
	}

	out := make([]byte, 1+len(data))
	out[0] = encodingIdentity
	copy(out[1:], data)
	return out, nil
}

// Decode strips the encoding marker and decompresses when required.
func (c *recordCodec) Decode(value []byte) ([]byte, error) {
	if len(value) == 0 {
		return nil, ErrCorrupted
	}

	switch value[0] {
	case encodingIdentity:
		out := make([]byte, len(value)-1)
		copy(out, value[1:])
		return out, nil

	case encodingZstd:
		c.mu.RLock()
		dec := c.decoder
		c.mu.RUnlock()
		if dec == nil {
			return nil, ErrCorrupted
		}

		out, err := dec.DecodeAll(value[1:], nil)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrCorrupted, err)
		}
		if len(out) > maxDecompressedSize {
			return nil, ErrDecompressionBomb
		}
		return out, nil

	default:
		return nil, fmt.Errorf("%w: unknown encoding %d", ErrCorrupted, value[0])
	}
}
