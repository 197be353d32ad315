// Package tokenizer mints opaque placeholder strings and substitutes them
// for known original values.
//
// A placeholder is prefix + id + suffix, where prefix/suffix default to the
// Unicode Private-Use-Area characters U+E000 and U+E001 and id is 16
// hexadecimal characters of cryptographically-random entropy (>= 64 bits).
// Models treat PUA characters as opaque: they never occur in natural text
// and cannot be confused with content, which is why every later redaction
// layer treats a minted placeholder as inert.
package tokenizer

import (
	"encoding/hex"
	"regexp"
	"strings"

	"github.com/google/uuid"
)

// DefaultPrefix and DefaultSuffix are the Private-Use-Area wrapper
// characters used unless settings override them.
const (
	DefaultPrefix = ""
	DefaultSuffix = ""
)

// Tokenizer mints and substitutes placeholders using a configurable
// prefix/suffix pair. The zero value is not usable; use New.
type Tokenizer struct {
	prefix string
	suffix string
}

// New returns a Tokenizer using prefix/suffix. Empty strings fall back to
// the defaults.
func New(prefix, suffix string) *Tokenizer {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	if suffix == "" {
		suffix = DefaultSuffix
	}
	return &Tokenizer{prefix: prefix, suffix: suffix}
}

// NewPlaceholder returns a freshly minted opaque placeholder. The id portion
// is 16 hex characters encoding 8 random bytes of a UUIDv4 (bytes 0-5 and
// 9-10, skipping the fixed version and variant bits), giving 64 bits of
// entropy; collisions within a session are treated as impossible.
func (t *Tokenizer) NewPlaceholder() string {
	u := uuid.New()
	var b [8]byte
	copy(b[:6], u[:6])
	copy(b[6:], u[9:11])
	return t.prefix + hex.EncodeToString(b[:]) + t.suffix
}

// IsPlaceholder reports whether s is wrapped in this tokenizer's
// prefix/suffix and has the expected id length.
func (t *Tokenizer) IsPlaceholder(s string) bool {
	if !strings.HasPrefix(s, t.prefix) || !strings.HasSuffix(s, t.suffix) {
		return false
	}
	inner := strings.TrimSuffix(strings.TrimPrefix(s, t.prefix), t.suffix)
	return len(inner) == 16
}

// Tokenize replaces every occurrence of each key in originalToPlaceholder
// (original value -> placeholder) within text, longest original first so
// that "New Zealand" is substituted before "New" would otherwise match a
// prefix of it. Regex metacharacters in the original are escaped before
// building the match pattern. No redaction layer calls it: the dictionary
// layer and the pipeline both replace by index range.
func Tokenize(text string, originalToPlaceholder map[string]string) string {
	if len(originalToPlaceholder) == 0 {
		return text
	}
	originals := make([]string, 0, len(originalToPlaceholder))
	for original := range originalToPlaceholder {
		originals = append(originals, original)
	}
	// Longest-first avoids a shorter original shadowing a longer one that
	// contains it as a substring.
	for i := 1; i < len(originals); i++ {
		for j := i; j > 0 && len(originals[j]) > len(originals[j-1]); j-- {
			originals[j], originals[j-1] = originals[j-1], originals[j]
		}
	}
	parts := make([]string, 0, len(originals))
	for _, o := range originals {
		parts = append(parts, regexp.QuoteMeta(o))
	}
	combined := regexp.MustCompile(strings.Join(parts, "|"))
	return combined.ReplaceAllStringFunc(text, func(match string) string {
		if ph, ok := originalToPlaceholder[match]; ok {
			return ph
		}
		return match
	})
}

// ReplaceSpan substitutes the half-open range [start,end) of text with
// replacement, operating on byte offsets. Callers apply these right-to-left
// across a batch of spans so that earlier indices stay valid.
func ReplaceSpan(text string, start, end int, replacement string) string {
	return text[:start] + replacement + text[end:]
}
