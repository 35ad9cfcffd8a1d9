package pii

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/vigilguard/pii-gateway/internal/logger"
)

type stubPolicies struct {
	policy *DetectionPolicy
	err    error
}

func (s *stubPolicies) Current() (*DetectionPolicy, error) {
	return s.policy, s.err
}

type stubDetector struct {
	result LanguageResult
}

func (s *stubDetector) Detect(ctx context.Context, text string) LanguageResult {
	return s.result
}

type stubRecognizer struct {
	recognize func(ctx context.Context, req RecognizeRequest) (RecognizeResult, error)
}

func (s *stubRecognizer) Recognize(ctx context.Context, req RecognizeRequest) (RecognizeResult, error) {
	return s.recognize(ctx, req)
}

func testPolicy() *DetectionPolicy {
	return &DetectionPolicy{
		ScoreThreshold: 0.7,
		RedactionMode:  ModeReplace,
		Languages:      []string{LanguagePolish, LanguageEnglish},
		CallTimeout:    5 * time.Second,
		MaxTextLength:  10000,
	}
}

func englishDetector() *stubDetector {
	return &stubDetector{result: LanguageResult{Language: LanguageEnglish, Method: "langdetect", Confidence: 0.99}}
}

func byLanguage(results map[string][]Entity) *stubRecognizer {
	return &stubRecognizer{recognize: func(ctx context.Context, req RecognizeRequest) (RecognizeResult, error) {
		return RecognizeResult{Entities: results[req.Language]}, nil
	}}
}

func TestAnalyze(t *testing.T) {
	log := logger.Nop()

	t.Run("RegexRescuesWhatTheModelsMissed", func(t *testing.T) {
		text := "Contact John at john@x.com or +48 123 456 789"
		pol := testPolicy()
		pol.RegexFallback = true
		pol.Rules = []FallbackRule{
			{Name: "PHONE", Pattern: `\+48[ ]?\d{3}[ ]?\d{3}[ ]?\d{3}`, Target: TypePhoneNumber},
		}

		recog := byLanguage(map[string][]Entity{
			LanguageEnglish: {
				{Type: TypePerson, Start: 8, End: 12, Score: 0.85, Text: "John"},
				{Type: TypeEmailAddress, Start: 16, End: 26, Score: 0.95, Text: "john@x.com"},
			},
		})

		analyzer := NewAnalyzer(&stubPolicies{policy: pol}, englishDetector(), recog, log)
		result, err := analyzer.Analyze(context.Background(), AnalyzeRequest{Text: text})
		if err != nil {
			t.Fatalf("Analyze failed: %v", err)
		}

		if len(result.Entities) != 3 {
			t.Fatalf("Expected 3 entities, got %d: %+v", len(result.Entities), result.Entities)
		}
		var regexCount int
		for _, e := range result.Entities {
			if e.Source == SourceRegex {
				regexCount++
				if e.Type != TypePhoneNumber {
					t.Errorf("Regex rescued the wrong type: %s", e.Type)
				}
			}
		}
		if regexCount != 1 {
			t.Errorf("Expected exactly 1 regex span, got %d", regexCount)
		}
		if !result.Stats.DetectionComplete {
			t.Error("Detection should be complete")
		}
		want := "Contact [PERSON] at [EMAIL_ADDRESS] or [PHONE_NUMBER]"
		if result.RedactedText != want {
			t.Errorf("Redacted %q, want %q", result.RedactedText, want)
		}
	})

	t.Run("OverlapResolvedByStartThenLength", func(t *testing.T) {
		text := "John Kowalski x@y.pl"
		recog := byLanguage(map[string][]Entity{
			LanguageEnglish: {
				{Type: TypeEmailAddress, Start: 0, End: 5, Score: 0.95},
				{Type: TypePerson, Start: 0, End: 13, Score: 0.85},
			},
		})

		analyzer := NewAnalyzer(&stubPolicies{policy: testPolicy()}, englishDetector(), recog, log)
		result, err := analyzer.Analyze(context.Background(), AnalyzeRequest{Text: text})
		if err != nil {
			t.Fatalf("Analyze failed: %v", err)
		}

		if len(result.Entities) != 1 {
			t.Fatalf("Expected 1 entity, got %d", len(result.Entities))
		}
		if result.Entities[0].Type != TypePerson {
			t.Errorf("Longer span at the same start must win, got %s", result.Entities[0].Type)
		}
	})

	t.Run("AllCallsFailedIsAnError", func(t *testing.T) {
		recog := &stubRecognizer{recognize: func(ctx context.Context, req RecognizeRequest) (RecognizeResult, error) {
			return RecognizeResult{}, fmt.Errorf("connection refused")
		}}

		analyzer := NewAnalyzer(&stubPolicies{policy: testPolicy()}, englishDetector(), recog, log)
		_, err := analyzer.Analyze(context.Background(), AnalyzeRequest{Text: "some text"})

		if !errors.Is(err, ErrAllRecognizersFailed) {
			t.Errorf("Expected ErrAllRecognizersFailed, got %v", err)
		}
	})

	t.Run("SingleFailedCallDegradesTheResult", func(t *testing.T) {
		recog := &stubRecognizer{recognize: func(ctx context.Context, req RecognizeRequest) (RecognizeResult, error) {
			if req.Language == LanguagePolish {
				return RecognizeResult{}, fmt.Errorf("service unavailable")
			}
			return RecognizeResult{Entities: []Entity{
				{Type: TypeEmailAddress, Start: 0, End: 6, Score: 0.9, Text: "a@b.pl"},
			}}, nil
		}}

		analyzer := NewAnalyzer(&stubPolicies{policy: testPolicy()}, englishDetector(), recog, log)
		result, err := analyzer.Analyze(context.Background(), AnalyzeRequest{Text: "a@b.pl here"})
		if err != nil {
			t.Fatalf("Partial failure must not fail the request: %v", err)
		}

		if result.Stats.DetectionComplete {
			t.Error("Detection must be marked incomplete after a failed call")
		}
		if len(result.Stats.Warnings) == 0 {
			t.Error("Expected a warning about the failed call")
		}
		if len(result.Entities) != 1 {
			t.Errorf("Surviving call's entities must be kept, got %d", len(result.Entities))
		}
	})

	t.Run("AggregateTimeoutCancelsStragglers", func(t *testing.T) {
		pol := testPolicy()
		pol.CallTimeout = 20 * time.Millisecond

		recog := &stubRecognizer{recognize: func(ctx context.Context, req RecognizeRequest) (RecognizeResult, error) {
			time.Sleep(300 * time.Millisecond)
			return RecognizeResult{}, ctx.Err()
		}}

		analyzer := NewAnalyzer(&stubPolicies{policy: pol}, englishDetector(), recog, log)
		start := time.Now()
		_, err := analyzer.Analyze(context.Background(), AnalyzeRequest{Text: "slow service"})

		if !errors.Is(err, ErrAggregateTimeout) {
			t.Fatalf("Expected ErrAggregateTimeout, got %v", err)
		}
		if elapsed := time.Since(start); elapsed > 250*time.Millisecond {
			t.Errorf("Aggregate timeout fired too late: %v", elapsed)
		}
	})

	t.Run("CallerCancellationIsNotATimeout", func(t *testing.T) {
		pol := testPolicy()
		pol.CallTimeout = time.Second

		ctx, cancel := context.WithCancel(context.Background())
		recog := &stubRecognizer{recognize: func(rctx context.Context, req RecognizeRequest) (RecognizeResult, error) {
			cancel()
			<-rctx.Done()
			return RecognizeResult{}, rctx.Err()
		}}

		analyzer := NewAnalyzer(&stubPolicies{policy: pol}, englishDetector(), recog, log)
		_, err := analyzer.Analyze(ctx, AnalyzeRequest{Text: "caller walked away"})

		if errors.Is(err, ErrAggregateTimeout) {
			t.Fatalf("Caller cancellation misreported as a timeout: %v", err)
		}
		if !errors.Is(err, context.Canceled) {
			t.Errorf("Expected context.Canceled, got %v", err)
		}
	})

	t.Run("EmptyTextRejected", func(t *testing.T) {
		analyzer := NewAnalyzer(&stubPolicies{policy: testPolicy()}, englishDetector(), byLanguage(nil), log)

		for _, text := range []string{"", "   \n\t "} {
			_, err := analyzer.Analyze(context.Background(), AnalyzeRequest{Text: text})
			if !errors.Is(err, ErrEmptyText) {
				t.Errorf("Text %q: expected ErrEmptyText, got %v", text, err)
			}
		}
	})

	t.Run("OversizedTextRejected", func(t *testing.T) {
		pol := testPolicy()
		pol.MaxTextLength = 10

		analyzer := NewAnalyzer(&stubPolicies{policy: pol}, englishDetector(), byLanguage(nil), log)
		_, err := analyzer.Analyze(context.Background(), AnalyzeRequest{Text: strings.Repeat("a", 11)})

		if !errors.Is(err, ErrTextTooLong) {
			t.Errorf("Expected ErrTextTooLong, got %v", err)
		}
	})

	t.Run("RequestThresholdOverridesPolicy", func(t *testing.T) {
		recog := byLanguage(map[string][]Entity{
			LanguageEnglish: {
				{Type: TypePerson, Start: 0, End: 4, Score: 0.85, Text: "John"},
			},
		})

		analyzer := NewAnalyzer(&stubPolicies{policy: testPolicy()}, englishDetector(), recog, log)

		threshold := 0.95
		result, err := analyzer.Analyze(context.Background(), AnalyzeRequest{
			Text:           "John here",
			ScoreThreshold: &threshold,
		})
		if err != nil {
			t.Fatalf("Analyze failed: %v", err)
		}
		if len(result.Entities) != 0 {
			t.Errorf("Score 0.85 must be filtered at threshold 0.95, got %+v", result.Entities)
		}
	})

	t.Run("RegexSpansBypassTheScoreThreshold", func(t *testing.T) {
		pol := testPolicy()
		pol.ScoreThreshold = 0.99
		pol.RegexFallback = true
		pol.Rules = []FallbackRule{
			{Name: "EMAIL", Pattern: `[a-z]+@[a-z]+\.[a-z]+`, Target: TypeEmailAddress},
		}

		analyzer := NewAnalyzer(&stubPolicies{policy: pol}, englishDetector(), byLanguage(nil), log)
		result, err := analyzer.Analyze(context.Background(), AnalyzeRequest{Text: "mail a@b.pl"})
		if err != nil {
			t.Fatalf("Analyze failed: %v", err)
		}
		if len(result.Entities) != 1 || result.Entities[0].Source != SourceRegex {
			t.Errorf("Regex span missing: %+v", result.Entities)
		}
	})

	t.Run("FailedLanguageDetectionDegrades", func(t *testing.T) {
		detector := &stubDetector{result: LanguageResult{
			Language: LanguagePolish, Method: "fallback", Confidence: 0.5, ServiceErr: true,
		}}

		analyzer := NewAnalyzer(&stubPolicies{policy: testPolicy()}, detector, byLanguage(nil), log)
		result, err := analyzer.Analyze(context.Background(), AnalyzeRequest{Text: "tekst po polsku"})
		if err != nil {
			t.Fatalf("Degraded language detection must not fail the request: %v", err)
		}

		if result.Stats.DetectionComplete {
			t.Error("Detection must be incomplete when language detection fell back")
		}
		if result.Stats.Language.Method != "fallback" {
			t.Errorf("Language method %q", result.Stats.Language.Method)
		}
		if len(result.Stats.Warnings) == 0 {
			t.Error("Expected a warning about the language service")
		}
	})

	t.Run("PolicyErrorFailsFast", func(t *testing.T) {
		analyzer := NewAnalyzer(&stubPolicies{err: fmt.Errorf("bad document")}, englishDetector(), byLanguage(nil), log)
		_, err := analyzer.Analyze(context.Background(), AnalyzeRequest{Text: "anything"})
		if err == nil {
			t.Fatal("Expected an error for a broken policy")
		}
	})
}
