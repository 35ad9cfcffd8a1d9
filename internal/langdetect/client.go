// Package langdetect is the client for the external language-detection
// service. Detection is fail-safe: any service failure degrades to a local
// heuristic guess instead of an error, because a missing language must not
// block PII detection.
package langdetect

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/vigilguard/pii-gateway/internal/logger"
	"github.com/vigilguard/pii-gateway/internal/pii"
)

// Client calls the language-detection service.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *logger.Logger
}

type detectRequest struct {
	Text string `json:"text"`
}

type detectResponse struct {
	Language   string  `json:"language"`
	Method     string  `json:"method"`
	Confidence float64 `json:"confidence"`
}

// New creates a language-detection client. The transport timeout is a
// backstop; per-request deadlines come from the caller's context.
func New(baseURL string, timeout time.Duration, log *logger.Logger) *Client {
	if timeout == 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
		logger:     log,
	}
}

// Detect classifies the text's primary language. It never returns an
// error: on service failure the result carries a heuristic fallback
// language with ServiceErr set, so callers can distinguish a degraded
// detection from a low-confidence one.
func (c *Client) Detect(ctx context.Context, text string) pii.LanguageResult {
	result, err := c.call(ctx, text)
	if err != nil {
		c.logger.Warn("language detection failed, using heuristic fallback",
			zap.String("text_preview", logger.Preview(text)),
			zap.Error(err),
		)
		return fallbackResult(text)
	}
	return result
}

func (c *Client) call(ctx context.Context, text string) (pii.LanguageResult, error) {
	body, err := json.Marshal(detectRequest{Text: text})
	if err != nil {
		return pii.LanguageResult{}, fmt.Errorf("marshal request: %w", err)
	}

	url := c.baseURL + "/detect"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return pii.LanguageResult{}, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return pii.LanguageResult{}, fmt.Errorf("execute request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return pii.LanguageResult{}, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return pii.LanguageResult{}, fmt.Errorf("service error (%d): %s", resp.StatusCode, string(respBody))
	}

	var parsed detectResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return pii.LanguageResult{}, fmt.Errorf("unmarshal response: %w", err)
	}
	if parsed.Language == "" {
		return pii.LanguageResult{}, fmt.Errorf("service returned empty language")
	}

	return pii.LanguageResult{
		Language:   parsed.Language,
		Method:     parsed.Method,
		Confidence: parsed.Confidence,
	}, nil
}

// Polish-specific signals used by the heuristic fallback. PESEL-length
// digit runs are a strong signal, NIP/REGON-length runs a medium one.
var (
	polishKeywords = []string{
		"pesel", "nip", "regon", "karta", "kredytowa", "kredytowej",
		"dowód", "dowod", "osobisty", "podatku", "jest", "jeszcze",
	}
	elevenDigits = regexp.MustCompile(`\b\d{11}\b`)
	tenDigits    = regexp.MustCompile(`\b\d{10}\b`)
)

// fallbackResult scores Polish signals in the text when the service is
// unavailable. Any signal picks Polish, otherwise English.
func fallbackResult(text string) pii.LanguageResult {
	lower := strings.ToLower(text)

	score := 0
	for _, kw := range polishKeywords {
		if strings.Contains(lower, kw) {
			score++
		}
	}
	if elevenDigits.MatchString(text) {
		score += 3
	}
	if tenDigits.MatchString(text) {
		score += 2
	}

	language := pii.LanguageEnglish
	if score > 0 {
		language = pii.LanguagePolish
	}

	return pii.LanguageResult{
		Language:   language,
		Method:     "fallback",
		Confidence: 0.5,
		ServiceErr: true,
	}
}
