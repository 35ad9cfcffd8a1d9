package pii

import "fmt"

const (
	// LanguagePolish is the locale-specific recognition language.
	LanguagePolish = "pl"
	// LanguageEnglish is the general recognition language.
	LanguageEnglish = "en"
)

// CallPlan describes one recognition call: which model language to use and
// which entity types to request from it.
type CallPlan struct {
	Language string
	Entities []EntityType
}

// PlanEntityLists partitions the requested entity types (or the defaults)
// into the two language-specific recognition calls.
//
// The language-sensitive PERSON type goes to exactly one call, chosen by the
// detected language. Sending it to both roughly doubles name false
// positives, and the deduplicator cannot arbitrate conflicting types at an
// identical span as cleanly as it arbitrates same-type overlaps.
//
// Unknown requested types are retained and routed to the detected-language
// call; each produces a warning so recognizer vocabulary drift is visible.
func PlanEntityLists(requested []EntityType, language string) ([]CallPlan, []string) {
	var warnings []string

	polish := make([]EntityType, 0, len(polishTypes)+len(generalTypes)+1)
	english := make([]EntityType, 0, len(generalTypes)+1)

	personLanguage := LanguageEnglish
	if language == LanguagePolish {
		personLanguage = LanguagePolish
	}

	valid := 0
	for _, t := range requested {
		switch {
		case !t.Known():
			// Retained, not rejected: the recognizer vocabulary evolves
			// independently of this build. Ride along on the
			// detected-language call only.
			warnings = append(warnings, fmt.Sprintf("unknown entity type %q requested, passing through", t))
			if personLanguage == LanguagePolish {
				polish = append(polish, t)
			} else {
				english = append(english, t)
			}
		case t == TypePerson:
			if personLanguage == LanguagePolish {
				polish = append(polish, t)
			} else {
				english = append(english, t)
			}
			valid++
		case isPolishType(t):
			polish = append(polish, t)
			valid++
		default:
			polish = append(polish, t)
			english = append(english, t)
			valid++
		}
	}

	// No valid request: fall back to the default split.
	if valid == 0 {
		polish = append(polish, polishTypes...)
		polish = append(polish, generalTypes...)
		english = append(english, generalTypes...)
		if personLanguage == LanguagePolish {
			polish = append(polish, TypePerson)
		} else {
			english = append(english, TypePerson)
		}
	}

	plans := make([]CallPlan, 0, 2)
	if len(polish) > 0 {
		plans = append(plans, CallPlan{Language: LanguagePolish, Entities: polish})
	}
	if len(english) > 0 {
		plans = append(plans, CallPlan{Language: LanguageEnglish, Entities: english})
	}
	return plans, warnings
}

func isPolishType(t EntityType) bool {
	for _, p := range polishTypes {
		if t == p {
			return true
		}
	}
	return false
}
