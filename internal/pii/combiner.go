package pii

import "unicode"

// CombineModelResults merges the spans from the two recognition calls into a
// single candidate list, tagging each span with its source.
//
// When the detected language is Polish, PERSON spans from the secondary
// (English) model are kept only when they look like a plausible name:
// cross-model name detections on mismatched language text are a
// disproportionate source of false positives, so a little recall is traded
// for a large precision gain.
func CombineModelResults(language string, primary, secondary []Entity) []Entity {
	combined := make([]Entity, 0, len(primary)+len(secondary))

	for _, e := range primary {
		e.Source = SourcePrimary
		combined = append(combined, e)
	}

	filterNames := language == LanguagePolish
	for _, e := range secondary {
		e.Source = SourceSecondary
		if filterNames && e.Type == TypePerson && !plausibleName(e.Text) {
			continue
		}
		combined = append(combined, e)
	}

	return combined
}

// plausibleName reports whether text is at least 3 runes long and starts
// with an uppercase letter. unicode.IsUpper covers the accented Polish
// uppercase letters (Ł, Ś, Ż, ...).
func plausibleName(text string) bool {
	runes := []rune(text)
	if len(runes) < 3 {
		return false
	}
	return unicode.IsUpper(runes[0])
}
