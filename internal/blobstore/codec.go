package blobstore

import (
	"bytes"
	"fmt"
	"io"

	"github.com/klauspost/compress/gzip"

	"edmanweb/internal/models"
)

var gzipMagic = []byte{0x1f, 0x8b}

// Compress encodes data with the named algorithm. Only gzip is supported.
func Compress(data []byte, algorithm string) ([]byte, error) {
	if algorithm != models.CompressionGzip {
		return nil, fmt.Errorf("unsupported compression algorithm %q", algorithm)
	}
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	if _, err := zw.Write(data); err != nil {
		_ = zw.Close()
		return nil, err
	}
	if err := zw.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// HasGzipMagic reports whether data starts with the gzip magic number.
func HasGzipMagic(data []byte) bool {
	return bytes.HasPrefix(data, gzipMagic)
}

// Decode returns data decompressed when it looks like gzip, unchanged
// otherwise. The stored compression tag is not consulted: any content with
// the gzip magic prefix is decompressed.
func Decode(data []byte) ([]byte, error) {
	if !HasGzipMagic(data) {
		return data, nil
	}
	zr, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("open gzip stream: %w", err)
	}
	defer zr.Close()
	out, err := io.ReadAll(zr)
	if err != nil {
		return nil, fmt.Errorf("decompress: %w", err)
	}
	return out, nil
}
