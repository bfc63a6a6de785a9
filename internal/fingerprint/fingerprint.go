// Package fingerprint binds Evidence to a physical file, two ways: a
// cryptographic content hash and a perceptual hash of the decoded image
// (spec.md §4.2). Both are dispatched through the blocking worker pool
// by the orchestrator, since decoding and hashing a large image is not
// reactor-safe work.
package fingerprint

import (
	"crypto/sha256"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"os"

	"github.com/corona10/goimagehash"
)

// ErrIO wraps a failure to open or read the file at all.
var ErrIO = errors.New("fingerprint: io error")

// ErrDecode wraps a failure to decode the file as a supported image
// format.
var ErrDecode = errors.New("fingerprint: decode error")

// SHA256OfFile streams the file's bytes through SHA-256 without holding
// the whole file in memory.
func SHA256OfFile(path string) ([32]byte, error) {
	var digest [32]byte

	f, err := os.Open(path)
	if err != nil {
		return digest, fmt.Errorf("%w: %s: %v", ErrIO, path, err)
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return digest, fmt.Errorf("%w: %s: %v", ErrIO, path, err)
	}
	copy(digest[:], h.Sum(nil))
	return digest, nil
}

// PHashOfFile decodes the image at path and returns its 64-bit DCT
// perceptual hash (spec.md §4.2: downsample, 2-D DCT, top-left 8x8
// excluding DC, median threshold over the remaining 63 coefficients).
func PHashOfFile(path string) (uint64, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, fmt.Errorf("%w: %s: %v", ErrIO, path, err)
	}
	defer f.Close()

	img, _, err := image.Decode(f)
	if err != nil {
		return 0, fmt.Errorf("%w: %s: %v", ErrDecode, path, err)
	}

	hash, err := goimagehash.PerceptionHash(img)
	if err != nil {
		return 0, fmt.Errorf("%w: %s: %v", ErrDecode, path, err)
	}
	return hash.GetHash(), nil
}
