// Package slug generates and validates short link slugs.
//
// Generation is pure: reservation happens atomically in the link store's
// create operation, and the caller retries generation on collision.
package slug

import (
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"regexp"
	"strings"
)

// Errors returned by slug validation and generation.
var (
	ErrInvalidSlug = errors.New("invalid slug format")
)

// Slug rules: 1-32 chars from the URL-safe alphabet, unique case-insensitively.
var slugPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{1,32}$`)

const (
	// GeneratedLength is the length of auto-generated slugs. Base62 at
	// 7 chars gives ~3.5e12 combinations, keeping birthday-collision
	// probability negligible at any plausible link volume.
	GeneratedLength = 7

	alphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"
)

// Validate checks a requested slug against the alphabet and length bound.
func Validate(s string) error {
	if !slugPattern.MatchString(s) {
		return ErrInvalidSlug
	}
	return nil
}

// Fold returns the canonical case-folded form used for uniqueness
// checks and lookups. The slug alphabet is ASCII, so lowercasing is
// sufficient.
func Fold(s string) string {
	return strings.ToLower(s)
}

// Generate returns a random base62 slug of GeneratedLength characters.
func Generate() (string, error) {
	b := make([]byte, GeneratedLength)
	for i := range b {
		idx, err := randInt(len(alphabet))
		if err != nil {
			return "", fmt.Errorf("generate slug: %w", err)
		}
		b[i] = alphabet[idx]
	}
	return string(b), nil
}

// randInt returns a cryptographically secure random integer in [0, max).
func randInt(max int) (int, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(int64(max)))
	if err != nil {
		return 0, err
	}
	return int(n.Int64()), nil
}
