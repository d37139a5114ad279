// Package filename turns uploaded file names into blob key segments.
package filename

import (
	"path"
	"regexp"
	"strings"
)

const DefaultMaxLen = 120

// unsafeRe matches runs of characters that need escaping in object keys.
var unsafeRe = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

// Sanitize reduces name to a single object key segment. Directories are
// dropped and the extension survives truncation to maxLen bytes.
// Returns "" when nothing usable is left.
func Sanitize(name string, maxLen int) string {
	if maxLen <= 0 {
		maxLen = DefaultMaxLen
	}

	name = strings.ReplaceAll(strings.TrimSpace(name), `\`, "/")
	name = path.Base(name)
	if name == "." || name == "/" {
		return ""
	}

	ext := strings.ToLower(path.Ext(name))
	stem := strings.TrimSuffix(name, path.Ext(name))
	stem = strings.Trim(unsafeRe.ReplaceAllString(stem, "-"), "-.")
	ext = unsafeRe.ReplaceAllString(ext, "")
	if stem == "" {
		return ""
	}

	if len(stem)+len(ext) > maxLen {
		stem = strings.TrimRight(stem[:max(maxLen-len(ext), 1)], "-.")
	}
	return stem + ext
}
