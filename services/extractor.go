package services

import (
	"errors"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"os"

	"github.com/corona10/goimagehash"
	_ "golang.org/x/image/bmp"
)

var errEmptyFingerprint = errors.New("empty fingerprint")

// Fingerprint is a perceptual hash of one image: a hashSize x hashSize bit
// matrix taken from the low-frequency DCT block of the downscaled grayscale
// image.
type Fingerprint struct {
	hash *goimagehash.ExtImageHash
}

// NewFingerprint rebuilds a pHash fingerprint from its raw words.
func NewFingerprint(words []uint64, bits int) Fingerprint {
	w := make([]uint64, len(words))
	copy(w, words)
	return Fingerprint{hash: goimagehash.NewExtImageHash(w, goimagehash.PHash, bits)}
}

func (f Fingerprint) IsZero() bool { return f.hash == nil }

func (f Fingerprint) Bits() int {
	if f.hash == nil {
		return 0
	}
	return f.hash.Bits()
}

func (f Fingerprint) Words() []uint64 {
	if f.hash == nil {
		return nil
	}
	return f.hash.GetHash()
}

func (f Fingerprint) String() string {
	if f.hash == nil {
		return ""
	}
	return f.hash.ToString()
}

// Distance returns the Hamming distance between two fingerprints of equal size.
func (f Fingerprint) Distance(other Fingerprint) (int, error) {
	if f.hash == nil || other.hash == nil {
		return 0, errEmptyFingerprint
	}
	return f.hash.Distance(other.hash)
}

// Similarity returns 100 * (1 - distance/bits).
func (f Fingerprint) Similarity(other Fingerprint) (float64, error) {
	dist, err := f.Distance(other)
	if err != nil {
		return 0, err
	}
	return SimilarityPercent(dist, f.Bits()), nil
}

func SimilarityPercent(distance, bits int) float64 {
	if bits <= 0 {
		return 0
	}
	return 100 * (1 - float64(distance)/float64(bits))
}

// ExtractFingerprint decodes the image at path and computes its pHash.
// The file is closed before hashing so only the decoded pixels stay alive.
func ExtractFingerprint(path string, hashSize int) (Fingerprint, error) {
	file, err := os.Open(path)
	if err != nil {
		return Fingerprint{}, fmt.Errorf("opening %s: %w", path, err)
	}

	img, _, err := image.Decode(file)
	file.Close()
	if err != nil {
		return Fingerprint{}, fmt.Errorf("decoding %s: %w", path, err)
	}

	fp, err := FingerprintImage(img, hashSize)
	if err != nil {
		return Fingerprint{}, fmt.Errorf("hashing %s: %w", path, err)
	}
	return fp, nil
}

func FingerprintImage(img image.Image, hashSize int) (Fingerprint, error) {
	hash, err := goimagehash.ExtPerceptionHash(img, hashSize, hashSize)
	if err != nil {
		return Fingerprint{}, err
	}
	return Fingerprint{hash: hash}, nil
}

// FingerprintTable maps image paths to fingerprints and remembers the order
// in which paths were added. Pair enumeration follows that order.
type FingerprintTable struct {
	keys   []string
	prints map[string]Fingerprint
}

func NewFingerprintTable() *FingerprintTable {
	return &FingerprintTable{prints: make(map[string]Fingerprint)}
}

// Add stores fp under path. Re-adding a path replaces the fingerprint but
// keeps the original position.
func (t *FingerprintTable) Add(path string, fp Fingerprint) {
	if _, ok := t.prints[path]; !ok {
		t.keys = append(t.keys, path)
	}
	t.prints[path] = fp
}

func (t *FingerprintTable) Get(path string) (Fingerprint, bool) {
	fp, ok := t.prints[path]
	return fp, ok
}

func (t *FingerprintTable) Len() int { return len(t.keys) }

func (t *FingerprintTable) Keys() []string {
	out := make([]string, len(t.keys))
	copy(out, t.keys)
	return out
}
