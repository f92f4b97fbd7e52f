package keys

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/cespare/xxhash/v2"
)

const (
	prefix = "viewer"

	PartDocument = "doc"
	PartView     = "view"

	maxIDLen = 64
)

// Session returns the store key of one part of a persisted session. The
// readable id segment is sanitized and truncated; the hash suffix keeps
// distinct ids apart.
func Session(sessionID, part string) string {
	id := strings.TrimSpace(sessionID)
	safe := sanitizeForKey(id)
	if len(safe) > maxIDLen {
		safe = safe[:maxIDLen]
	}
	return fmt.Sprintf("%s:session:%s:%s:f=%016x", prefix, safe, sanitizeForKey(part), xxhash.Sum64String(id))
}

// Fingerprint is a stable 64-bit digest of b in hex.
func Fingerprint(b []byte) string {
	return fmt.Sprintf("%016x", xxhash.Sum64(b))
}

func sanitizeForKey(s string) string {
	if s == "" {
		return ""
	}
	var b strings.Builder
	b.Grow(len(s))

	var prev rune
	for _, r := range s {
		var out rune
		switch {
		case unicode.IsSpace(r):
			out = '_'
		case isAlphaNum(r) || r == '_' || r == '-':
			out = r
		default:
			// ':' is the segment separator, so it is replaced like any
			// other rune
			out = '-'
		}
		if (out == '_' || out == '-') && out == prev {
			continue
		}
		b.WriteRune(out)
		prev = out
	}
	return b.String()
}

func isAlphaNum(r rune) bool {
	return (r >= 'a' && r <= 'z') ||
		(r >= 'A' && r <= 'Z') ||
		(r >= '0' && r <= '9')
}
