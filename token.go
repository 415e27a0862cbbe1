package registration

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"regexp"
)

// TokenGenerator produces activation keys and pre-checks their format
// before any repository lookup.
type TokenGenerator interface {
	Generate() (string, error)
	IsWellFormed(token string) bool
}

const defaultSegmentBytes = 16

var (
	legacyKeyRE  = regexp.MustCompile(`^[a-f0-9]{40}$`)
	segmentKeyRE = regexp.MustCompile(`^([a-f0-9]+)-([a-f0-9]+)$`)
)

// RandomTokenGenerator builds keys from two CSPRNG segments joined by "-".
// Nothing about the account is encoded in the key.
type RandomTokenGenerator struct {
	// SegmentBytes is the number of random bytes per segment.
	SegmentBytes int
	// AcceptLegacy keeps 40 char hex keys issued by older releases valid.
	AcceptLegacy bool
}

// NewRandomTokenGenerator returns a generator producing 256 bit keys that
// still accepts legacy keys.
func NewRandomTokenGenerator() *RandomTokenGenerator {
	return &RandomTokenGenerator{
		SegmentBytes: defaultSegmentBytes,
		AcceptLegacy: true,
	}
}

func (g *RandomTokenGenerator) segmentBytes() int {
	if g == nil || g.SegmentBytes <= 0 {
		return defaultSegmentBytes
	}
	return g.SegmentBytes
}

// Generate returns a new activation key.
func (g *RandomTokenGenerator) Generate() (string, error) {
	n := g.segmentBytes()
	buf := make([]byte, n*2)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("read random bytes: %w", err)
	}
	return hex.EncodeToString(buf[:n]) + "-" + hex.EncodeToString(buf[n:]), nil
}

// IsWellFormed reports whether token matches the key format.
func (g *RandomTokenGenerator) IsWellFormed(token string) bool {
	if g != nil && g.AcceptLegacy && legacyKeyRE.MatchString(token) {
		return true
	}

	m := segmentKeyRE.FindStringSubmatch(token)
	if m == nil {
		return false
	}

	want := g.segmentBytes() * 2
	return len(m[1]) == want && len(m[2]) == want
}
