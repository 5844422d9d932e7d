package fingerprint

import (
	"crypto/sha256"
	"fmt"
	"strings"

	"github.com/lexisched/lexisched/internal/domain"
)

// Normalize concatenates a card's authored content after cleaning each part.
// It trims whitespace, lowercases, and normalizes line endings for each field
// before joining them.
func Normalize(content domain.CardContent) string {
	normalizePart := func(part string) string {
		p := strings.ToLower(part)
		p = strings.TrimSpace(p)
		p = strings.ReplaceAll(p, "\r\n", "\n")
		return p
	}

	f := normalizePart(content.FrontText)
	b := normalizePart(content.BackText)
	n := normalizePart(content.Note)

	// Fields are joined with a newline so "hund" + "dog" can never collide
	// with "hunddog" + "".
	return strings.Join([]string{f, b, n}, "\n")
}

// Hash normalizes the content and returns its SHA-256 as a hex string.
// Deck sync uses it to recognize already-imported cards across runs.
func Hash(content domain.CardContent) string {
	normalized := Normalize(content)
	hashBytes := sha256.Sum256([]byte(normalized))
	return fmt.Sprintf("%x", hashBytes)
}
