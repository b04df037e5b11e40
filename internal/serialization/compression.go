package serialization

import (
	"fmt"
	"strings"

	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

// Compression identifies the codec applied to the data section.
type Compression uint32

// Supported codecs.
const (
	CompressionNone Compression = iota
	CompressionZstd
	CompressionLZ4
)

// String returns the codec name.
func (c Compression) String() string {
	switch c {
	case CompressionNone:
		return "none"
	case CompressionZstd:
		return "zstd"
	case CompressionLZ4:
		return "lz4"
	default:
		return fmt.Sprintf("compression(%d)", uint32(c))
	}
}

// MarshalText implements encoding.TextMarshaler.
func (c Compression) MarshalText() ([]byte, error) {
	if c > CompressionLZ4 {
		return nil, fmt.Errorf("%w: %d", ErrUnknownCompression, uint32(c))
	}
	return []byte(c.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (c *Compression) UnmarshalText(text []byte) error {
	parsed, err := ParseCompression(string(text))
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}

// ParseCompression converts "none", "zstd" or "lz4" to a Compression.
func ParseCompression(s string) (Compression, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "none":
		return CompressionNone, nil
	case "zstd":
		return CompressionZstd, nil
	case "lz4":
		return CompressionLZ4, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrUnknownCompression, s)
	}
}

// compress encodes data with codec c. It reports the codec actually used,
// which falls back to none when the data does not compress.
func compress(c Compression, data []byte) ([]byte, Compression, error) {
	if len(data) == 0 {
		return data, CompressionNone, nil
	}
	switch c {
	case CompressionNone:
		return data, CompressionNone, nil
	case CompressionZstd:
		enc, err := zstd.NewWriter(nil)
		if err != nil {
			return nil, 0, fmt.Errorf("create zstd encoder: %w", err)
		}
		defer enc.Close()
		return enc.EncodeAll(data, make([]byte, 0, len(data)/2)), CompressionZstd, nil
	case CompressionLZ4:
		dst := make([]byte, lz4.CompressBlockBound(len(data)))
		n, err := lz4.CompressBlock(data, dst, nil)
		if err != nil {
			return nil, 0, fmt.Errorf("lz4 compress: %w", err)
		}
		if n == 0 || n >= len(data) {
			return data, CompressionNone, nil
		}
		return dst[:n], CompressionLZ4, nil
	default:
		return nil, 0, fmt.Errorf("%w: %d", ErrUnknownCompression, uint32(c))
	}
}

// decompress reverses compress; rawSize is the expected decoded length.
func decompress(c Compression, data []byte, rawSize int64) ([]byte, error) {
	var out []byte
	switch c {
	case CompressionNone:
		out = data
	case CompressionZstd:
		dec, err := zstd.NewReader(nil)
		if err != nil {
			return nil, fmt.Errorf("create zstd decoder: %w", err)
		}
		defer dec.Close()
		out, err = dec.DecodeAll(data, make([]byte, 0, rawSize))
		if err != nil {
			return nil, fmt.Errorf("zstd decompress: %w", err)
		}
	case CompressionLZ4:
		out = make([]byte, rawSize)
		n, err := lz4.UncompressBlock(data, out)
		if err != nil {
			return nil, fmt.Errorf("lz4 decompress: %w", err)
		}
		out = out[:n]
	default:
		return nil, fmt.Errorf("%w: %d", ErrUnknownCompression, uint32(c))
	}

	if int64(len(out)) != rawSize {
		return nil, &ValidationError{
			Type:    "size_mismatch",
			Details: fmt.Sprintf("data section is %d bytes, header declares %d", len(out), rawSize),
		}
	}
	return out, nil
}
