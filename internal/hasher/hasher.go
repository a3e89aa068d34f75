// Package hasher computes content fingerprints of files.
package hasher

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
)

// DefaultChunkSize is the read size used when none is configured.
const DefaultChunkSize = 64 * 1024

// Fingerprint is the SHA-256 digest of a file's full content.
type Fingerprint [sha256.Size]byte

// String returns the lowercase hex form.
func (f Fingerprint) String() string { return hex.EncodeToString(f[:]) }

// HashError is returned when a file cannot be opened or read.
type HashError struct {
	Path string
	Err  error
}

func (e *HashError) Error() string { return fmt.Sprintf("hash %s: %v", e.Path, e.Err) }

func (e *HashError) Unwrap() error { return e.Err }

// Hasher reads files in fixed-size chunks and digests them.
type Hasher struct {
	chunk int
}

// New returns a Hasher reading chunkSize bytes at a time.
// chunkSize <= 0 selects DefaultChunkSize.
func New(chunkSize int) *Hasher {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	return &Hasher{chunk: chunkSize}
}

// Sum returns the fingerprint of path and the number of bytes read.
func (h *Hasher) Sum(path string) (Fingerprint, int64, error) {
	var fp Fingerprint
	f, err := os.Open(path)
	if err != nil {
		return fp, 0, &HashError{Path: path, Err: err}
	}
	defer f.Close()

	fp, n, err := h.sumReader(f)
	if err != nil {
		return Fingerprint{}, 0, &HashError{Path: path, Err: err}
	}
	return fp, n, nil
}

func (h *Hasher) sumReader(r io.Reader) (Fingerprint, int64, error) {
	var fp Fingerprint
	d := sha256.New()
	// Hide any WriterTo so reads stay chunk-sized.
	n, err := io.CopyBuffer(d, struct{ io.Reader }{r}, make([]byte, h.chunk))
	if err != nil {
		return fp, n, err
	}
	copy(fp[:], d.Sum(nil))
	return fp, n, nil
}

// Sum fingerprints path with the default chunk size.
func Sum(path string) (Fingerprint, int64, error) {
	return New(DefaultChunkSize).Sum(path)
}
