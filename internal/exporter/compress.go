package exporter

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
)

// Compression represents a payload compression algorithm for the HTTP
// transport. gRPC compression is handled at the transport level and does
// not go through here.
type Compression string

const (
	// CompressionNone sends payloads uncompressed.
	CompressionNone Compression = "none"
	// CompressionGzip compresses payloads with gzip.
	CompressionGzip Compression = "gzip"
	// CompressionZstd compresses payloads with zstd.
	CompressionZstd Compression = "zstd"
)

// ParseCompression validates a compression string from configuration.
func ParseCompression(s string) (Compression, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "none":
		return CompressionNone, nil
	case "gzip":
		return CompressionGzip, nil
	case "zstd":
		return CompressionZstd, nil
	default:
		return CompressionNone, fmt.Errorf("unsupported compression type: %s", s)
	}
}

// ContentEncoding returns the HTTP Content-Encoding header value, or ""
// when no header should be set.
func (c Compression) ContentEncoding() string {
	switch c {
	case CompressionGzip:
		return "gzip"
	case CompressionZstd:
		return "zstd"
	default:
		return ""
	}
}

// compress returns the encoded payload for the configured algorithm.
func compress(data []byte, c Compression) ([]byte, error) {
	switch c {
	case CompressionGzip:
		var buf bytes.Buffer
		w := gzip.NewWriter(&buf)
		if _, err := w.Write(data); err != nil {
			return nil, fmt.Errorf("gzip write: %w", err)
		}
		if err := w.Close(); err != nil {
			return nil, fmt.Errorf("gzip close: %w", err)
		}
		return buf.Bytes(), nil
	case CompressionZstd:
		enc, err := zstd.NewWriter(nil)
		if err != nil {
			return nil, fmt.Errorf("zstd encoder: %w", err)
		}
		out := enc.EncodeAll(data, nil)
		_ = enc.Close()
		return out, nil
	default:
		return data, nil
	}
}
