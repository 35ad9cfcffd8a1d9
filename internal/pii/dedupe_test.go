package pii

import (
	"reflect"
	"testing"
)

func TestDeduplicate(t *testing.T) {
	t.Run("NoOverlapInvariant", func(t *testing.T) {
		candidates := []Entity{
			{Type: TypePerson, Start: 0, End: 12, Score: 0.85},
			{Type: TypeEmailAddress, Start: 5, End: 20, Score: 0.95},
			{Type: TypePhoneNumber, Start: 18, End: 30, Score: 0.6},
			{Type: TypePLPesel, Start: 25, End: 36, Score: 1.0},
		}

		result := Deduplicate(candidates)

		for i := 0; i < len(result); i++ {
			for j := i + 1; j < len(result); j++ {
				if result[i].Overlaps(result[j]) {
					t.Errorf("Overlapping spans survived: %+v and %+v", result[i], result[j])
				}
			}
		}
	})

	t.Run("EarlierStartWins", func(t *testing.T) {
		// A higher-scoring later span must not displace an earlier one.
		candidates := []Entity{
			{Type: TypeEmailAddress, Start: 5, End: 20, Score: 0.95},
			{Type: TypePerson, Start: 0, End: 12, Score: 0.85},
		}

		result := Deduplicate(candidates)

		if len(result) != 1 {
			t.Fatalf("Expected 1 entity, got %d", len(result))
		}
		if result[0].Type != TypePerson {
			t.Errorf("Expected PERSON to win, got %s", result[0].Type)
		}
	})

	t.Run("LongerSpanWinsAtSameStart", func(t *testing.T) {
		candidates := []Entity{
			{Type: TypePhoneNumber, Start: 10, End: 19, Score: 0.99},
			{Type: TypePhoneNumber, Start: 10, End: 25, Score: 0.7},
		}

		result := Deduplicate(candidates)

		if len(result) != 1 {
			t.Fatalf("Expected 1 entity, got %d", len(result))
		}
		if result[0].End != 25 {
			t.Errorf("Expected the longer span to win, got end=%d", result[0].End)
		}
	})

	t.Run("HigherScoreBreaksIdenticalSpans", func(t *testing.T) {
		candidates := []Entity{
			{Type: TypeEmailAddress, Start: 4, End: 16, Score: 0.7},
			{Type: TypeURL, Start: 4, End: 16, Score: 0.9},
		}

		result := Deduplicate(candidates)

		if len(result) != 1 {
			t.Fatalf("Expected 1 entity, got %d", len(result))
		}
		if result[0].Type != TypeURL {
			t.Errorf("Expected the higher-scored span to win, got %s", result[0].Type)
		}
	})

	t.Run("Idempotent", func(t *testing.T) {
		candidates := []Entity{
			{Type: TypePerson, Start: 0, End: 12, Score: 0.85},
			{Type: TypeEmailAddress, Start: 5, End: 20, Score: 0.95},
			{Type: TypePhoneNumber, Start: 30, End: 40, Score: 0.6},
		}

		once := Deduplicate(candidates)
		twice := Deduplicate(once)

		if !reflect.DeepEqual(once, twice) {
			t.Errorf("Deduplicate is not idempotent: %+v vs %+v", once, twice)
		}
	})

	t.Run("InputNotMutated", func(t *testing.T) {
		candidates := []Entity{
			{Type: TypeEmailAddress, Start: 5, End: 20, Score: 0.95},
			{Type: TypePerson, Start: 0, End: 12, Score: 0.85},
		}
		original := make([]Entity, len(candidates))
		copy(original, candidates)

		Deduplicate(candidates)

		if !reflect.DeepEqual(candidates, original) {
			t.Error("Deduplicate mutated its input slice")
		}
	})

	t.Run("AdjacentSpansBothKept", func(t *testing.T) {
		// Half-open spans: [0,5) and [5,10) do not overlap.
		candidates := []Entity{
			{Type: TypePerson, Start: 0, End: 5, Score: 0.8},
			{Type: TypeLocation, Start: 5, End: 10, Score: 0.8},
		}

		result := Deduplicate(candidates)

		if len(result) != 2 {
			t.Fatalf("Expected both adjacent spans kept, got %d", len(result))
		}
	})

	t.Run("EmptyInput", func(t *testing.T) {
		result := Deduplicate(nil)
		if len(result) != 0 {
			t.Errorf("Expected empty result, got %d entities", len(result))
		}
	})
}
