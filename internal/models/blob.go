package models

import (
	"strings"
	"time"
)

// CompressionGzip is the only algorithm the upload path produces.
const CompressionGzip = "gzip"

// Compression records whether blob content was compressed before storage.
// The zero value means uncompressed.
type Compression struct {
	algorithm string
}

// Uncompressed returns the tag for content stored as-is.
func Uncompressed() Compression {
	return Compression{}
}

// Compressed returns the tag for content compressed with algorithm.
func Compressed(algorithm string) Compression {
	return Compression{algorithm: strings.ToLower(strings.TrimSpace(algorithm))}
}

// IsCompressed reports whether an algorithm is recorded.
func (c Compression) IsCompressed() bool {
	return c.algorithm != ""
}

// Algorithm returns the recorded algorithm name, or "" when uncompressed.
func (c Compression) Algorithm() string {
	return c.algorithm
}

func (c Compression) String() string {
	if !c.IsCompressed() {
		return "none"
	}
	return c.algorithm
}

// Blob is the metadata row of one stored content object.
type Blob struct {
	ID             string      `json:"id"`
	SHA256         string      `json:"sha256"`
	SizeBytes      int64       `json:"size_bytes"`
	StorageBackend string      `json:"storage_backend"`
	BlobKey        string      `json:"blob_key"`
	Filename       string      `json:"filename"`
	Compression    Compression `json:"-"`
	CreatedAt      time.Time   `json:"created_at"`
}
