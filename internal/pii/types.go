package pii

import (
	"context"
	"errors"
	"time"
)

// Source identifies which detector produced a candidate entity. It is
// provenance only and never affects span ownership.
type Source string

const (
	// SourcePrimary is the recognition call for the detected language.
	SourcePrimary Source = "primary_language_model"
	// SourceSecondary is the recognition call for the other language.
	SourceSecondary Source = "secondary_language_model"
	// SourceRegex marks spans produced by the legacy regex fallback.
	SourceRegex Source = "regex"
)

// Entity is a detected PII span. Start and End are half-open byte offsets
// into the analyzed text: 0 <= Start < End <= len(text).
type Entity struct {
	Type   EntityType `json:"type"`
	Start  int        `json:"start"`
	End    int        `json:"end"`
	Score  float64    `json:"score"`
	Text   string     `json:"text,omitempty"`
	Source Source     `json:"source"`
}

// Length returns the span length in bytes.
func (e Entity) Length() int {
	return e.End - e.Start
}

// Overlaps reports whether two spans share at least one position.
func (e Entity) Overlaps(other Entity) bool {
	return e.Start < other.End && e.End > other.Start
}

// AnalyzeRequest is the input to the analyzer.
type AnalyzeRequest struct {
	Text           string       `json:"text"`
	Entities       []EntityType `json:"entities,omitempty"`
	ScoreThreshold *float64     `json:"score_threshold,omitempty"`
}

// LanguageStats describes how the input language was determined.
type LanguageStats struct {
	Language   string  `json:"language"`
	Method     string  `json:"method"`
	Confidence float64 `json:"confidence"`
}

// RegexFallbackMeta reports the outcome of the legacy rule evaluation.
type RegexFallbackMeta struct {
	Enabled   bool `json:"enabled"`
	Attempted int  `json:"attempted"`
	Matched   int  `json:"matched"`
	Failed    int  `json:"failed"`
	Rejected  int  `json:"rejected"`
}

// Stats carries per-request diagnostics alongside the entity list.
type Stats struct {
	Language          LanguageStats     `json:"language_stats"`
	SourceCounts      map[Source]int    `json:"source_counts"`
	FinalSourceCounts map[Source]int    `json:"final_source_counts"`
	RegexFallback     RegexFallbackMeta `json:"regex_fallback_meta"`
	DetectionComplete bool              `json:"detection_complete"`
	Warnings          []string          `json:"warnings"`
	ProcessingTime    time.Duration     `json:"-"`
}

// AnalyzeResult is the final output: a non-overlapping entity set, the
// redacted text, and diagnostics.
type AnalyzeResult struct {
	Entities     []Entity `json:"entities"`
	RedactedText string   `json:"redacted_text"`
	Stats        Stats    `json:"stats"`
}

// LanguageResult is the outcome of language detection. Detection is
// fail-safe: implementations never return an error, they fall back to a
// best-guess language and set ServiceErr.
type LanguageResult struct {
	Language   string
	Method     string
	Confidence float64
	ServiceErr bool
}

// LanguageDetector classifies the primary language of a text.
type LanguageDetector interface {
	Detect(ctx context.Context, text string) LanguageResult
}

// RecognizeRequest is one call to the entity recognition service.
type RecognizeRequest struct {
	Text           string
	Language       string
	Entities       []EntityType
	ScoreThreshold float64
}

// RecognizeResult holds the spans returned by one recognition call.
// Source is left unset; the analyzer tags spans per call.
type RecognizeResult struct {
	Entities       []Entity
	ProcessingTime time.Duration
}

// Recognizer performs one entity recognition call against the external
// service.
type Recognizer interface {
	Recognize(ctx context.Context, req RecognizeRequest) (RecognizeResult, error)
}

var (
	// ErrEmptyText is returned for empty or whitespace-only input.
	ErrEmptyText = errors.New("text must not be empty")
	// ErrTextTooLong is returned when the input exceeds the configured limit.
	ErrTextTooLong = errors.New("text exceeds maximum length")
	// ErrAllRecognizersFailed is returned when every attempted recognition
	// call failed. Detection must not silently degrade to nothing.
	ErrAllRecognizersFailed = errors.New("all recognition calls failed")
	// ErrAggregateTimeout is returned when the outer timeout expires before
	// the recognition calls complete.
	ErrAggregateTimeout = errors.New("analysis timed out")
	// ErrUnsupportedRedactionMode is returned at configuration validation
	// for redaction modes this build does not implement.
	ErrUnsupportedRedactionMode = errors.New("unsupported redaction mode")
)
