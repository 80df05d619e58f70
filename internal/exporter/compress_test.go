package exporter

import (
	"bytes"
	"io"
	"testing"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
)

func TestParseCompression(t *testing.T) {
	tests := []struct {
		in      string
		want    Compression
		wantErr bool
	}{
		{"", CompressionNone, false},
		{"none", CompressionNone, false},
		{"gzip", CompressionGzip, false},
		{"GZIP", CompressionGzip, false},
		{" zstd ", CompressionZstd, false},
		{"brotli", CompressionNone, true},
	}
	for _, tt := range tests {
		got, err := ParseCompression(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseCompression(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if !tt.wantErr && got != tt.want {
			t.Errorf("ParseCompression(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestContentEncoding(t *testing.T) {
	if got := CompressionNone.ContentEncoding(); got != "" {
		t.Errorf("none: expected empty encoding, got %q", got)
	}
	if got := CompressionGzip.ContentEncoding(); got != "gzip" {
		t.Errorf("gzip: got %q", got)
	}
	if got := CompressionZstd.ContentEncoding(); got != "zstd" {
		t.Errorf("zstd: got %q", got)
	}
}

func TestCompressGzipRoundTrip(t *testing.T) {
	payload := bytes.Repeat([]byte("telemetry payload "), 64)

	compressed, err := compress(payload, CompressionGzip)
	if err != nil {
		t.Fatalf("compress failed: %v", err)
	}
	if len(compressed) >= len(payload) {
		t.Errorf("expected gzip to shrink repetitive payload, %d >= %d", len(compressed), len(payload))
	}

	r, err := gzip.NewReader(bytes.NewReader(compressed))
	if err != nil {
		t.Fatalf("gzip reader: %v", err)
	}
	decoded, err := io.ReadAll(r)
	if err != nil {
		t.Fatalf("gzip read: %v", err)
	}
	if !bytes.Equal(decoded, payload) {
		t.Error("gzip round trip mismatch")
	}
}

func TestCompressZstdRoundTrip(t *testing.T) {
	payload := bytes.Repeat([]byte("telemetry payload "), 64)

	compressed, err := compress(payload, CompressionZstd)
	if err != nil {
		t.Fatalf("compress failed: %v", err)
	}

	dec, err := zstd.NewReader(nil)
	if err != nil {
		t.Fatalf("zstd decoder: %v", err)
	}
	defer dec.Close()
	decoded, err := dec.DecodeAll(compressed, nil)
	if err != nil {
		t.Fatalf("zstd decode: %v", err)
	}
	if !bytes.Equal(decoded, payload) {
		t.Error("zstd round trip mismatch")
	}
}

func TestCompressNonePassesThrough(t *testing.T) {
	payload := []byte("as-is")
	out, err := compress(payload, CompressionNone)
	if err != nil {
		t.Fatalf("compress failed: %v", err)
	}
	if !bytes.Equal(out, payload) {
		t.Error("expected identical payload for none")
	}
}
