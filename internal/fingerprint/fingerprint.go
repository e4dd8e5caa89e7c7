package fingerprint

import (
	"crypto/sha256"
	"fmt"
	"strings"
)

// Normalize cleans the front and back content and joins them. Each side is
// lowercased, trimmed, and has its line endings normalized, then the sides
// are joined with a newline so "front" and "back" text can never run
// together and collide with a different card.
func Normalize(front, back string) string {
	normalizePart := func(part string) string {
		p := strings.ToLower(part)
		p = strings.TrimSpace(p)
		p = strings.ReplaceAll(p, "\r\n", "\n")
		return p
	}
	return normalizePart(front) + "\n" + normalizePart(back)
}

// Hash returns the SHA-256 of the normalized card content as a hex string.
// It serves as the card's identity: re-importing unchanged content maps to
// the same card and keeps its scheduling state.
func Hash(front, back string) string {
	hashBytes := sha256.Sum256([]byte(Normalize(front, back)))
	return fmt.Sprintf("%x", hashBytes)
}
