package pii

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/vigilguard/pii-gateway/internal/logger"
	"go.uber.org/zap"
)

// DetectionPolicy is the effective detection configuration for one request,
// assembled from the detection-policy document and the legacy rule list.
type DetectionPolicy struct {
	ScoreThreshold  float64
	RedactionMode   RedactionMode
	RedactionTokens map[EntityType]string
	Languages       []string
	CallTimeout     time.Duration
	RegexFallback   bool
	Rules           []FallbackRule
	MaxTextLength   int
}

// PolicyProvider hands out immutable policy snapshots. Implementations
// cache by content fingerprint and swap atomically, so concurrent readers
// never observe a partially-updated document.
type PolicyProvider interface {
	Current() (*DetectionPolicy, error)
}

// Analyzer orchestrates language detection, the parallel recognition calls,
// the regex fallback, deduplication, and redaction. It is stateless per
// request and safe for concurrent use.
type Analyzer struct {
	policies   PolicyProvider
	detector   LanguageDetector
	recognizer Recognizer
	logger     *logger.Logger
}

// NewAnalyzer creates an analyzer over the given collaborators.
func NewAnalyzer(policies PolicyProvider, detector LanguageDetector, recognizer Recognizer, log *logger.Logger) *Analyzer {
	return &Analyzer{
		policies:   policies,
		detector:   detector,
		recognizer: recognizer,
		logger:     log,
	}
}

type callOutcome struct {
	language string
	entities []Entity
	err      error
}

// Analyze runs the full detection pipeline and returns the deduplicated
// entity set, the redacted text, and diagnostics.
//
// Failure policy: input errors reject immediately; a failed language
// detection or a failed individual recognition call degrades the result;
// the request as a whole fails only when every attempted recognition call
// failed or the aggregate timeout fired.
func (a *Analyzer) Analyze(ctx context.Context, req AnalyzeRequest) (*AnalyzeResult, error) {
	start := time.Now()

	pol, err := a.policies.Current()
	if err != nil {
		return nil, fmt.Errorf("load detection policy: %w", err)
	}

	text := req.Text
	if strings.TrimSpace(text) == "" {
		return nil, ErrEmptyText
	}
	if pol.MaxTextLength > 0 && len(text) > pol.MaxTextLength {
		return nil, fmt.Errorf("%w: %d > %d", ErrTextTooLong, len(text), pol.MaxTextLength)
	}

	var warnings []string

	// Language detection is fail-safe: a service failure yields a
	// best-guess language, never an error.
	langCtx, cancelLang := context.WithTimeout(ctx, pol.CallTimeout)
	lang := a.detector.Detect(langCtx, text)
	cancelLang()
	if lang.ServiceErr {
		warnings = append(warnings, "language detection service unavailable, using fallback language "+lang.Language)
	}

	plans, planWarnings := PlanEntityLists(req.Entities, lang.Language)
	warnings = append(warnings, planWarnings...)

	threshold := pol.ScoreThreshold
	if req.ScoreThreshold != nil {
		threshold = *req.ScoreThreshold
	}

	byLanguage, failures, err := a.recognizeAll(ctx, pol, plans, text, threshold)
	if err != nil {
		return nil, err
	}
	warnings = append(warnings, failures...)
	if len(plans) > 0 && len(failures) == len(plans) {
		return nil, ErrAllRecognizersFailed
	}

	primary, secondary := byLanguage[LanguageEnglish], byLanguage[LanguagePolish]
	if lang.Language == LanguagePolish {
		primary, secondary = byLanguage[LanguagePolish], byLanguage[LanguageEnglish]
	}

	combined := CombineModelResults(lang.Language, primary, secondary)
	combined = filterByScore(combined, threshold)

	// Model spans are deduplicated first; regex spans are merged afterwards
	// and the union deduplicated again, so regex results fill genuine gaps
	// without reintroducing overlaps the model pass already resolved.
	deduped := Deduplicate(combined)

	var fb FallbackResult
	if pol.RegexFallback && len(pol.Rules) > 0 {
		fb = RunFallback(text, pol.Rules, requestedSet(req.Entities), a.logger)
		if len(fb.Entities) > 0 {
			deduped = Deduplicate(append(deduped, fb.Entities...))
		}
		if fb.Failed > 0 {
			warnings = append(warnings, fmt.Sprintf("%d legacy rules failed and were skipped", fb.Failed))
		}
	}

	redacted := Redact(text, deduped, pol.RedactionMode, pol.RedactionTokens)

	rawCounts := countBySource(combined)
	rawCounts[SourceRegex] = len(fb.Entities)

	result := &AnalyzeResult{
		Entities:     deduped,
		RedactedText: redacted,
		Stats: Stats{
			Language: LanguageStats{
				Language:   lang.Language,
				Method:     lang.Method,
				Confidence: lang.Confidence,
			},
			SourceCounts:      rawCounts,
			FinalSourceCounts: countBySource(deduped),
			RegexFallback: RegexFallbackMeta{
				Enabled:   pol.RegexFallback,
				Attempted: fb.Attempted,
				Matched:   fb.Matched,
				Failed:    fb.Failed,
				Rejected:  fb.Rejected,
			},
			DetectionComplete: !lang.ServiceErr && len(failures) == 0 && fb.Failed == 0,
			Warnings:          warnings,
			ProcessingTime:    time.Since(start),
		},
	}

	a.logger.Debug("analysis complete",
		zap.String("language", lang.Language),
		zap.Int("entities", len(deduped)),
		zap.Bool("detection_complete", result.Stats.DetectionComplete),
		zap.Duration("duration", result.Stats.ProcessingTime),
	)

	return result, nil
}

// recognizeAll fans out one recognition call per plan, each under its own
// timeout, wrapped by an aggregate timeout of twice the per-call budget as
// defense in depth. When the aggregate timeout fires, the derived contexts
// cancel the in-flight calls rather than abandoning them.
func (a *Analyzer) recognizeAll(ctx context.Context, pol *DetectionPolicy, plans []CallPlan, text string, threshold float64) (map[string][]Entity, []string, error) {
	byLanguage := make(map[string][]Entity, len(plans))
	if len(plans) == 0 {
		return byLanguage, nil, nil
	}

	outerCtx, cancel := context.WithTimeout(ctx, 2*pol.CallTimeout)
	defer cancel()

	outcomes := make(chan callOutcome, len(plans))
	for _, plan := range plans {
		go func(p CallPlan) {
			callCtx, cancelCall := context.WithTimeout(outerCtx, pol.CallTimeout)
			defer cancelCall()

			res, err := a.recognizer.Recognize(callCtx, RecognizeRequest{
				Text:           text,
				Language:       p.Language,
				Entities:       p.Entities,
				ScoreThreshold: threshold,
			})
			outcomes <- callOutcome{language: p.Language, entities: res.Entities, err: err}
		}(plan)
	}

	var failures []string
	for range plans {
		select {
		case <-outerCtx.Done():
			// Only the aggregate budget expiring is a timeout. The caller's
			// own cancellation or deadline keeps its error identity.
			if err := ctx.Err(); err != nil {
				return nil, nil, fmt.Errorf("recognition aborted: %w", err)
			}
			return nil, nil, fmt.Errorf("%w: %v", ErrAggregateTimeout, outerCtx.Err())
		case out := <-outcomes:
			if out.err != nil {
				if err := ctx.Err(); err != nil {
					return nil, nil, fmt.Errorf("recognition aborted: %w", err)
				}
				a.logger.Warn("recognition call failed",
					zap.String("language", out.language),
					zap.Error(out.err),
				)
				failures = append(failures, fmt.Sprintf("recognition call for %q failed: %v", out.language, out.err))
				continue
			}
			byLanguage[out.language] = out.entities
		}
	}

	return byLanguage, failures, nil
}

func filterByScore(entities []Entity, threshold float64) []Entity {
	filtered := entities[:0:0]
	for _, e := range entities {
		if e.Score >= threshold {
			filtered = append(filtered, e)
		}
	}
	return filtered
}

func requestedSet(types []EntityType) map[EntityType]bool {
	if len(types) == 0 {
		return nil
	}
	set := make(map[EntityType]bool, len(types))
	for _, t := range types {
		set[t] = true
	}
	return set
}

func countBySource(entities []Entity) map[Source]int {
	counts := make(map[Source]int, 3)
	for _, e := range entities {
		counts[e.Source]++
	}
	return counts
}
