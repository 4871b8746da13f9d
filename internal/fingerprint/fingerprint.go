// Package fingerprint computes and compares perceptual image fingerprints.
package fingerprint

import (
	"context"
	"fmt"
	"image"
	_ "image/jpeg" // JPEG decoder
	_ "image/png"  // PNG decoder
	"math/bits"
	"os"
	"strings"

	"github.com/corona10/goimagehash"
	_ "golang.org/x/image/bmp"  // BMP decoder
	_ "golang.org/x/image/webp" // WebP decoder

	apperrors "github.com/GriffinCanCode/fake-detector/internal/errors"
)

// Fingerprint is a fixed-length perceptual hash. Fingerprints compare only when
// produced by the same algorithm and size.
type Fingerprint = *goimagehash.ExtImageHash

// Hasher turns an image file into a fingerprint.
type Hasher interface {
	Hash(ctx context.Context, imagePath string) (Fingerprint, error)
}

// Algorithm selects the goimagehash function.
type Algorithm string

const (
	Perception Algorithm = "phash"
	Average    Algorithm = "ahash"
	Difference Algorithm = "dhash"
)

// ParseAlgorithm accepts the short and long names of each algorithm.
func ParseAlgorithm(s string) (Algorithm, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "phash", "p", "perception":
		return Perception, nil
	case "ahash", "a", "average":
		return Average, nil
	case "dhash", "d", "difference":
		return Difference, nil
	}
	return "", apperrors.Newf(apperrors.CodeConfigInvalid, "unknown hash algorithm %q", s)
}

// MaxSize bounds the resolution parameter. Perception hashing runs a DCT over a
// size^2 x size^2 image, so cost grows with the fourth power of size.
const MaxSize = 32

// ImageHasher decodes image files and hashes them with goimagehash.
// Size is the resolution parameter: a Size x Size hash, so 16 yields 256 bits.
type ImageHasher struct {
	algorithm Algorithm
	size      int
}

// NewImageHasher creates a hasher. Size must be a power of two no larger than MaxSize.
func NewImageHasher(algorithm Algorithm, size int) (*ImageHasher, error) {
	if err := ValidateSize(size); err != nil {
		return nil, err
	}
	switch algorithm {
	case Perception, Average, Difference:
	default:
		return nil, apperrors.Newf(apperrors.CodeConfigInvalid, "unknown hash algorithm %q", algorithm)
	}
	return &ImageHasher{algorithm: algorithm, size: size}, nil
}

// ValidateSize checks a resolution parameter.
func ValidateSize(size int) error {
	if size <= 0 || size&(size-1) != 0 {
		return apperrors.Newf(apperrors.CodeConfigInvalid, "hash size must be a positive power of two, got %d", size)
	}
	if size > MaxSize {
		return apperrors.Newf(apperrors.CodeConfigInvalid, "hash size must be at most %d, got %d", MaxSize, size)
	}
	return nil
}

// Bits returns the fingerprint length produced by this hasher.
func (h *ImageHasher) Bits() int { return h.size * h.size }

// Hash decodes imagePath and fingerprints it.
func (h *ImageHasher) Hash(ctx context.Context, imagePath string) (Fingerprint, error) {
	if err := ctx.Err(); err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeCancelled, "hash cancelled")
	}

	f, err := os.Open(imagePath)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeFingerprintFailed, "open image").WithMetadata("path", imagePath)
	}
	defer func() { _ = f.Close() }()

	img, _, err := image.Decode(f)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeFingerprintFailed, "decode image").WithMetadata("path", imagePath)
	}

	var hash *goimagehash.ExtImageHash
	switch h.algorithm {
	case Average:
		hash, err = goimagehash.ExtAverageHash(img, h.size, h.size)
	case Difference:
		hash, err = goimagehash.ExtDifferenceHash(img, h.size, h.size)
	default:
		hash, err = goimagehash.ExtPerceptionHash(img, h.size, h.size)
	}
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeFingerprintFailed, "compute hash").WithMetadata("path", imagePath)
	}
	return hash, nil
}

// Distance counts the bit positions where a and b differ.
// Unequal lengths are a setup error, never a data condition.
func Distance(a, b Fingerprint) (int, error) {
	if a == nil || b == nil {
		return 0, apperrors.New(apperrors.CodeInternal, "nil fingerprint")
	}
	if a.Bits() != b.Bits() || len(a.GetHash()) != len(b.GetHash()) {
		return 0, apperrors.Newf(apperrors.CodeFingerprintLengthMismatch,
			"fingerprint lengths differ: %d vs %d bits", a.Bits(), b.Bits())
	}
	if a.GetKind() != b.GetKind() {
		return 0, apperrors.Newf(apperrors.CodeFingerprintLengthMismatch,
			"fingerprint algorithms differ: %d vs %d", a.GetKind(), b.GetKind())
	}

	ha, hb := a.GetHash(), b.GetHash()
	dist := 0
	for i := range ha {
		dist += bits.OnesCount64(ha[i] ^ hb[i])
	}
	return dist, nil
}

// Key returns a string usable as a map key; equal fingerprints yield equal keys.
func Key(fp Fingerprint) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "%d:%d:", fp.GetKind(), fp.Bits())
	for _, word := range fp.GetHash() {
		fmt.Fprintf(&sb, "%016x", word)
	}
	return sb.String()
}
