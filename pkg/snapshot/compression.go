package snapshot

import (
	"errors"
	"fmt"
	"sync"

	"github.com/klauspost/compress/snappy"
	"github.com/klauspost/compress/zstd"
)

// CompressionCodec identifies the codec a snapshot was packed with.
type CompressionCodec byte

const (
	// CodecNone stores sections uncompressed
	CodecNone CompressionCodec = iota
	// CodecSnappy favors speed over ratio
	CodecSnappy
	// CodecZstd favors ratio over speed
	CodecZstd
)

var (
	// ErrUnknownCodec is returned when an unsupported compression codec is specified
	ErrUnknownCodec = errors.New("unknown compression codec")

	// ErrInvalidCompressedData is returned when compressed data cannot be decompressed
	ErrInvalidCompressedData = errors.New("invalid compressed data")
)

// String returns the codec name.
func (c CompressionCodec) String() string {
	switch c {
	case CodecNone:
		return "none"
	case CodecSnappy:
		return "snappy"
	case CodecZstd:
		return "zstd"
	default:
		return fmt.Sprintf("codec(%d)", byte(c))
	}
}

// CompressionManager compresses and decompresses snapshot sections.
type CompressionManager struct {
	zstdEncoder *zstd.Encoder
	zstdDecoder *zstd.Decoder

	// protects encoder/decoder access
	mu sync.Mutex
}

// NewCompressionManager creates a new manager with initialized codecs.
func NewCompressionManager() (*CompressionManager, error) {
	zstdEncoder, err := zstd.NewWriter(nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create zstd encoder: %w", err)
	}

	zstdDecoder, err := zstd.NewReader(nil)
	if err != nil {
		zstdEncoder.Close()
		return nil, fmt.Errorf("failed to create zstd decoder: %w", err)
	}

	return &CompressionManager{
		zstdEncoder: zstdEncoder,
		zstdDecoder: zstdDecoder,
	}, nil
}

// Compress compresses data using the specified codec.
func (c *CompressionManager) Compress(data []byte, codec CompressionCodec) ([]byte, error) {
	switch codec {
	case CodecNone:
		return data, nil
	case CodecSnappy:
		return snappy.Encode(nil, data), nil
	case CodecZstd:
		c.mu.Lock()
		defer c.mu.Unlock()
		return c.zstdEncoder.EncodeAll(data, nil), nil
	default:
		return nil, fmt.Errorf("%w: %d", ErrUnknownCodec, codec)
	}
}

// Decompress decompresses data using the specified codec.
func (c *CompressionManager) Decompress(data []byte, codec CompressionCodec) ([]byte, error) {
	switch codec {
	case CodecNone:
		return data, nil
	case CodecSnappy:
		out, err := snappy.Decode(nil, data)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidCompressedData, err)
		}
		return out, nil
	case CodecZstd:
		c.mu.Lock()
		defer c.mu.Unlock()
		out, err := c.zstdDecoder.DecodeAll(data, nil)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidCompressedData, err)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("%w: %d", ErrUnknownCodec, codec)
	}
}

// Close releases the codec resources.
func (c *CompressionManager) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.zstdEncoder.Close()
	c.zstdDecoder.Close()
	return nil
}
