// Package identity derives stable listing IDs for sources that do not expose
// one of their own. The fingerprint must survive cosmetic changes to a title
// so the housing merge can recognize a listing across pulls.
package identity

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"regexp"
	"strings"

	"github.com/slammyslinker-sketch/slammyslinker-sketch.github.io/models"
)

var (
	multiSpaceRegex = regexp.MustCompile(`\s+`)
	nonAlnumRegex   = regexp.MustCompile(`[^a-z0-9\s]`)
)

// Fingerprint hashes source, normalized title and URL into a 32-hex-char ID.
func Fingerprint(source models.SourceName, title, url string) string {
	input := fmt.Sprintf("%s|%s|%s", source, NormalizeTitle(title), strings.TrimSpace(url))
	hash := sha256.Sum256([]byte(input))
	return hex.EncodeToString(hash[:16])
}

// NormalizeTitle lowercases, strips punctuation and collapses whitespace.
func NormalizeTitle(title string) string {
	t := strings.ToLower(strings.TrimSpace(title))
	t = nonAlnumRegex.ReplaceAllString(t, " ")
	t = multiSpaceRegex.ReplaceAllString(t, " ")
	return strings.TrimSpace(t)
}
