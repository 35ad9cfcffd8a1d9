// Package recognizer is the client for the external entity-recognition
// service. The service is called once per language subset; each call is
// isolated, and a failure returns an error for the orchestrator to
// aggregate rather than aborting the sibling call.
package recognizer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/vigilguard/pii-gateway/internal/logger"
	"github.com/vigilguard/pii-gateway/internal/pii"
)

// Client calls the entity-recognition service.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *logger.Logger
}

type analyzeRequest struct {
	Text           string   `json:"text"`
	Language       string   `json:"language"`
	Entities       []string `json:"entities,omitempty"`
	ScoreThreshold float64  `json:"score_threshold"`
}

type analyzeResponse struct {
	Entities         []entityPayload `json:"entities"`
	ProcessingTimeMs int64           `json:"processing_time_ms"`
	Language         string          `json:"language"`
}

type entityPayload struct {
	Type  string  `json:"type"`
	Start int     `json:"start"`
	End   int     `json:"end"`
	Score float64 `json:"score"`
	Text  string  `json:"text"`
}

// New creates a recognition client. The transport timeout is a backstop;
// per-call deadlines come from the orchestrator's context.
func New(baseURL string, timeout time.Duration, log *logger.Logger) *Client {
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
		logger:     log,
	}
}

// Recognize performs one recognition call for a language subset. The
// service reports character offsets; they are converted to byte offsets
// into the request text before being returned.
func (c *Client) Recognize(ctx context.Context, req pii.RecognizeRequest) (pii.RecognizeResult, error) {
	entities := make([]string, len(req.Entities))
	for i, t := range req.Entities {
		entities[i] = string(t)
	}

	body, err := json.Marshal(analyzeRequest{
		Text:           req.Text,
		Language:       req.Language,
		Entities:       entities,
		ScoreThreshold: req.ScoreThreshold,
	})
	if err != nil {
		return pii.RecognizeResult{}, fmt.Errorf("marshal request: %w", err)
	}

	url := c.baseURL + "/analyze"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return pii.RecognizeResult{}, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	httpResp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return pii.RecognizeResult{}, fmt.Errorf("execute request: %w", err)
	}
	defer func() { _ = httpResp.Body.Close() }()

	respBody, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return pii.RecognizeResult{}, fmt.Errorf("read response: %w", err)
	}

	if httpResp.StatusCode != http.StatusOK {
		return pii.RecognizeResult{}, fmt.Errorf("service error (%d): %s", httpResp.StatusCode, string(respBody))
	}

	var parsed analyzeResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return pii.RecognizeResult{}, fmt.Errorf("unmarshal response: %w", err)
	}

	converter := newOffsetConverter(req.Text)
	result := pii.RecognizeResult{
		Entities:       make([]pii.Entity, 0, len(parsed.Entities)),
		ProcessingTime: time.Duration(parsed.ProcessingTimeMs) * time.Millisecond,
	}
	for _, e := range parsed.Entities {
		start, end, ok := converter.byteSpan(e.Start, e.End)
		if !ok {
			c.logger.Warn("recognition span out of range, dropped",
				zap.String("type", e.Type),
				zap.Int("start", e.Start),
				zap.Int("end", e.End),
			)
			continue
		}
		result.Entities = append(result.Entities, pii.Entity{
			Type:  pii.CanonicalType(e.Type),
			Start: start,
			End:   end,
			Score: e.Score,
			Text:  req.Text[start:end],
		})
	}

	c.logger.Debug("recognition call complete",
		zap.String("language", req.Language),
		zap.Int("entities", len(result.Entities)),
		zap.Duration("service_time", result.ProcessingTime),
	)

	return result, nil
}

// offsetConverter maps character offsets onto byte offsets. For ASCII text
// the mapping is the identity and costs nothing.
type offsetConverter struct {
	byteOffsets []int // byteOffsets[i] is the byte offset of rune i
	textLen     int
	ascii       bool
}

func newOffsetConverter(text string) *offsetConverter {
	if utf8.RuneCountInString(text) == len(text) {
		return &offsetConverter{textLen: len(text), ascii: true}
	}

	offsets := make([]int, 0, len(text))
	for i := range text {
		offsets = append(offsets, i)
	}
	return &offsetConverter{byteOffsets: offsets, textLen: len(text)}
}

func (c *offsetConverter) byteSpan(start, end int) (int, int, bool) {
	if start < 0 || end <= start {
		return 0, 0, false
	}
	if c.ascii {
		if end > c.textLen {
			return 0, 0, false
		}
		return start, end, true
	}

	if start >= len(c.byteOffsets) || end > len(c.byteOffsets) {
		return 0, 0, false
	}
	byteStart := c.byteOffsets[start]
	byteEnd := c.textLen
	if end < len(c.byteOffsets) {
		byteEnd = c.byteOffsets[end]
	}
	return byteStart, byteEnd, true
}
