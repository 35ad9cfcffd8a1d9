package pii

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"
)

// RedactionMode selects how a detected span is rewritten.
type RedactionMode string

const (
	// ModeReplace substitutes a per-entity-type token.
	ModeReplace RedactionMode = "replace"
	// ModeMask reveals the first and last 2 characters and fills the
	// interior with asterisks.
	ModeMask RedactionMode = "mask"
	// ModeHash substitutes a token carrying a truncated SHA-256 of the
	// literal span text.
	ModeHash RedactionMode = "hash"
)

// ParseRedactionMode validates a configured redaction mode. Unsupported
// modes are rejected at configuration time rather than silently falling
// through to replace.
func ParseRedactionMode(s string) (RedactionMode, error) {
	switch RedactionMode(s) {
	case ModeReplace, ModeMask, ModeHash:
		return RedactionMode(s), nil
	case "":
		return ModeReplace, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnsupportedRedactionMode, s)
	}
}

// Redact rewrites every entity span in the original text according to the
// mode. Spans are processed in descending start order so earlier
// replacements never shift the offsets of spans still to be processed; the
// input must already be deduplicated (non-overlapping).
func Redact(text string, entities []Entity, mode RedactionMode, tokens map[EntityType]string) string {
	if len(entities) == 0 {
		return text
	}

	sorted := make([]Entity, len(entities))
	copy(sorted, entities)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].Start > sorted[j].Start
	})

	out := text
	for _, e := range sorted {
		if e.Start < 0 || e.End > len(out) || e.Start >= e.End {
			continue
		}
		literal := out[e.Start:e.End]

		var replacement string
		switch mode {
		case ModeMask:
			replacement = maskLiteral(literal)
		case ModeHash:
			replacement = hashToken(e.Type, literal)
		default:
			replacement = replaceToken(e.Type, tokens)
		}

		out = out[:e.Start] + replacement + out[e.End:]
	}

	return out
}

// replaceToken returns the configured token for an entity type, defaulting
// to the bracketed type name.
func replaceToken(t EntityType, tokens map[EntityType]string) string {
	if token, ok := tokens[t]; ok && token != "" {
		return token
	}
	return "[" + string(t) + "]"
}

// maskLiteral reveals the first and last 2 characters. Literals of 4
// characters or fewer are fully masked.
func maskLiteral(literal string) string {
	runes := []rune(literal)
	if len(runes) <= 4 {
		return strings.Repeat("*", len(runes))
	}
	return string(runes[:2]) + strings.Repeat("*", len(runes)-4) + string(runes[len(runes)-2:])
}

// hashToken is deterministic and irreversible: the same literal always
// produces the same token, so repeated values remain correlatable in the
// redacted text without exposing the value itself.
func hashToken(t EntityType, literal string) string {
	sum := sha256.Sum256([]byte(literal))
	return "[" + string(t) + ":" + hex.EncodeToString(sum[:])[:8] + "]"
}
