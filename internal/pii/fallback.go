package pii

import (
	"regexp"
	"strings"

	"github.com/vigilguard/pii-gateway/internal/logger"
	"go.uber.org/zap"
)

// FallbackRule is one entry of the legacy ordered rule list. Target has
// already been mapped through the alias table to the canonical vocabulary.
type FallbackRule struct {
	Name    string
	Pattern string
	Flags   string
	Target  EntityType
}

// FallbackResult is the outcome of evaluating the legacy rule list.
type FallbackResult struct {
	Entities  []Entity
	Attempted int
	Matched   int
	Failed    int
	// Rejected counts matches dropped by checksum validation, not rule
	// failures.
	Rejected int
}

// RunFallback evaluates the ordered legacy rule list against the raw text.
// Every match becomes a span with score 1.0 and source regex. A single
// rule failing to compile is counted and skipped; one bad rule never aborts
// the remaining rules or the request.
//
// When requested is non-empty, rules whose target type is not requested are
// skipped entirely.
func RunFallback(text string, rules []FallbackRule, requested map[EntityType]bool, log *logger.Logger) FallbackResult {
	var result FallbackResult

	for _, rule := range rules {
		if len(requested) > 0 && !requested[rule.Target] {
			continue
		}
		result.Attempted++

		re, err := compileRule(rule)
		if err != nil {
			result.Failed++
			log.Warn("legacy rule skipped",
				zap.String("rule", rule.Name),
				zap.String("pattern", truncatePattern(rule.Pattern)),
				zap.Error(err),
			)
			continue
		}

		for _, loc := range re.FindAllStringIndex(text, -1) {
			literal := text[loc[0]:loc[1]]
			if validate, ok := checksumValidators[rule.Target]; ok && !validate(literal) {
				result.Rejected++
				continue
			}
			result.Entities = append(result.Entities, Entity{
				Type:   rule.Target,
				Start:  loc[0],
				End:    loc[1],
				Score:  1.0,
				Text:   literal,
				Source: SourceRegex,
			})
			result.Matched++
		}
	}

	return result
}

// compileRule builds the Go regexp for a legacy rule, translating its flag
// string into inline flags. Only the flags Go supports (i, m, s, U) are
// carried over.
func compileRule(rule FallbackRule) (*regexp.Regexp, error) {
	var flags strings.Builder
	for _, f := range rule.Flags {
		switch f {
		case 'i', 'm', 's', 'U':
			flags.WriteRune(f)
		}
	}

	pattern := rule.Pattern
	if flags.Len() > 0 {
		pattern = "(?" + flags.String() + ")" + pattern
	}
	return regexp.Compile(pattern)
}

// truncatePattern limits pattern context in logs; some legacy patterns run
// to hundreds of characters.
func truncatePattern(pattern string) string {
	const max = 48
	if len(pattern) <= max {
		return pattern
	}
	return pattern[:max] + "..."
}
