package policy

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/vigilguard/pii-gateway/internal/logger"
	"github.com/vigilguard/pii-gateway/internal/pii"
)

func writeDoc(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

func TestStoreCurrent(t *testing.T) {
	log := logger.Nop()

	t.Run("FullDocuments", func(t *testing.T) {
		dir := t.TempDir()
		detection := writeDoc(t, dir, "policy.json", `{
			"pii_detection": {
				"confidence_threshold": 0.8,
				"redaction_mode": "mask",
				"redaction_tokens": {"EMAIL": "<redacted-email>"},
				"languages": ["pl", "en"],
				"api_timeout_ms": 3000,
				"max_text_length": 5000
			}
		}`)
		rules := writeDoc(t, dir, "rules.json", `{
			"rules": [
				{"name": "PESEL_BARE", "pattern": "\\b\\d{11}\\b", "flags": ""},
				{"name": "EMAIL", "pattern": "[a-z]+@[a-z]+", "flags": "i", "target_entity": "EMAIL"}
			],
			"order": ["EMAIL", "PESEL_BARE"]
		}`)

		store := NewStore(detection, rules, log)
		pol, err := store.Current()
		if err != nil {
			t.Fatalf("Current failed: %v", err)
		}

		if pol.ScoreThreshold != 0.8 {
			t.Errorf("threshold = %v", pol.ScoreThreshold)
		}
		if pol.RedactionMode != pii.ModeMask {
			t.Errorf("mode = %v", pol.RedactionMode)
		}
		if pol.CallTimeout != 3*time.Second {
			t.Errorf("timeout = %v", pol.CallTimeout)
		}
		if pol.MaxTextLength != 5000 {
			t.Errorf("max length = %d", pol.MaxTextLength)
		}
		if !pol.RegexFallback {
			t.Error("fallback should be enabled when rules exist")
		}
		if len(pol.Rules) != 2 {
			t.Fatalf("rules = %d", len(pol.Rules))
		}
		// Explicit ordering applied, legacy names mapped to the vocabulary.
		if pol.Rules[0].Name != "EMAIL" || pol.Rules[0].Target != pii.TypeEmailAddress {
			t.Errorf("rule[0] = %+v", pol.Rules[0])
		}
		if pol.Rules[1].Target != pii.TypePLPesel {
			t.Errorf("rule[1] target = %v", pol.Rules[1].Target)
		}
		if pol.RedactionTokens[pii.TypeEmailAddress] != "<redacted-email>" {
			t.Errorf("tokens = %+v", pol.RedactionTokens)
		}
	})

	t.Run("MissingFilesYieldDefaults", func(t *testing.T) {
		dir := t.TempDir()
		store := NewStore(filepath.Join(dir, "absent.json"), filepath.Join(dir, "also-absent.json"), log)

		pol, err := store.Current()
		if err != nil {
			t.Fatalf("Current failed: %v", err)
		}
		if pol.ScoreThreshold != DefaultConfidenceThreshold {
			t.Errorf("threshold = %v", pol.ScoreThreshold)
		}
		if pol.CallTimeout != DefaultAPITimeout {
			t.Errorf("timeout = %v", pol.CallTimeout)
		}
		if pol.RedactionMode != pii.ModeReplace {
			t.Errorf("mode = %v", pol.RedactionMode)
		}
		if pol.RegexFallback {
			t.Error("fallback must be off with no rule document")
		}
	})

	t.Run("UnsupportedRedactionModeRejected", func(t *testing.T) {
		dir := t.TempDir()
		detection := writeDoc(t, dir, "policy.json", `{"pii_detection": {"redaction_mode": "rot13"}}`)

		store := NewStore(detection, "", log)
		_, err := store.Current()
		if !errors.Is(err, pii.ErrUnsupportedRedactionMode) {
			t.Errorf("Expected ErrUnsupportedRedactionMode, got %v", err)
		}
	})

	t.Run("ThresholdOutOfRangeRejected", func(t *testing.T) {
		dir := t.TempDir()
		detection := writeDoc(t, dir, "policy.json", `{"pii_detection": {"confidence_threshold": 1.5}}`)

		store := NewStore(detection, "", log)
		if _, err := store.Current(); err == nil {
			t.Error("Expected an error for threshold 1.5")
		}
	})

	t.Run("MalformedJSONRejected", func(t *testing.T) {
		dir := t.TempDir()
		detection := writeDoc(t, dir, "policy.json", `{not json`)

		store := NewStore(detection, "", log)
		if _, err := store.Current(); err == nil {
			t.Error("Expected a parse error")
		}
	})

	t.Run("EditBecomesVisibleWithoutWatcher", func(t *testing.T) {
		dir := t.TempDir()
		detection := writeDoc(t, dir, "policy.json", `{"pii_detection": {"confidence_threshold": 0.6}}`)

		store := NewStore(detection, "", log)
		pol, err := store.Current()
		if err != nil {
			t.Fatalf("Current failed: %v", err)
		}
		if pol.ScoreThreshold != 0.6 {
			t.Fatalf("threshold = %v", pol.ScoreThreshold)
		}

		writeDoc(t, dir, "policy.json", `{"pii_detection": {"confidence_threshold": 0.9}}`)

		pol, err = store.Current()
		if err != nil {
			t.Fatalf("Current after edit failed: %v", err)
		}
		if pol.ScoreThreshold != 0.9 {
			t.Errorf("edit not picked up, threshold = %v", pol.ScoreThreshold)
		}
	})

	t.Run("RuleWithoutTargetUsesItsName", func(t *testing.T) {
		dir := t.TempDir()
		rules := writeDoc(t, dir, "rules.json", `{"rules": [{"name": "NIP_HINTED", "pattern": "nip \\d{10}"}]}`)

		store := NewStore("", rules, log)
		pol, err := store.Current()
		if err != nil {
			t.Fatalf("Current failed: %v", err)
		}
		if len(pol.Rules) != 1 || pol.Rules[0].Target != pii.TypePLNIP {
			t.Errorf("rules = %+v", pol.Rules)
		}
	})

	t.Run("FallbackDisabledExplicitly", func(t *testing.T) {
		dir := t.TempDir()
		detection := writeDoc(t, dir, "policy.json", `{"pii_detection": {"regex_fallback_enabled": false}}`)
		rules := writeDoc(t, dir, "rules.json", `{"rules": [{"name": "EMAIL", "pattern": "@"}]}`)

		store := NewStore(detection, rules, log)
		pol, err := store.Current()
		if err != nil {
			t.Fatalf("Current failed: %v", err)
		}
		if pol.RegexFallback {
			t.Error("explicit disable must win over a present rule list")
		}
	})
}
