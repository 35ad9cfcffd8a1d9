package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/vigilguard/pii-gateway/internal/events"
	"github.com/vigilguard/pii-gateway/internal/logger"
	"github.com/vigilguard/pii-gateway/internal/pii"
	"github.com/vigilguard/pii-gateway/internal/websocket"
)

const maxRequestBody = 1 << 20 // 1 MiB

// analyzeResponse is the wire shape of a successful analysis.
type analyzeResponse struct {
	RequestID         string                `json:"request_id"`
	Entities          []pii.Entity          `json:"entities"`
	RedactedText      string                `json:"redacted_text"`
	LanguageStats     pii.LanguageStats     `json:"language_stats"`
	SourceCounts      map[pii.Source]int    `json:"source_counts"`
	FinalSourceCounts map[pii.Source]int    `json:"final_source_counts"`
	RegexFallback     pii.RegexFallbackMeta `json:"regex_fallback_meta"`
	DetectionComplete bool                  `json:"detection_complete"`
	Warnings          []string              `json:"warnings,omitempty"`
	ProcessingMS      float64               `json:"processing_ms"`
	Cached            bool                  `json:"cached"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// handleAnalyze runs the detection pipeline for one request.
func (s *Server) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	requestID := getRequestID(r.Context())
	log := s.logger.WithRequestID(requestID)
	atomic.AddInt64(&s.totalRequests, 1)

	var req pii.AnalyzeRequest
	decoder := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBody))
	if err := decoder.Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	if s.resultCache != nil {
		if cached, ok := s.resultCache.Get(r.Context(), req); ok {
			s.writeResult(w, requestID, cached, true)
			return
		}
	}

	start := time.Now()
	result, err := s.analyzer.Analyze(r.Context(), req)
	if err != nil {
		s.writeAnalyzeError(w, log, err)
		return
	}

	if len(result.Entities) > 0 {
		atomic.AddInt64(&s.totalDetections, 1)
	}

	if s.resultCache != nil {
		if err := s.resultCache.Set(r.Context(), req, result); err != nil {
			log.Warn("Failed to cache analysis result", zap.Error(err))
		}
	}

	s.recordEvent(requestID, result, time.Since(start))
	s.broadcastDetection(requestID, result)

	s.writeResult(w, requestID, result, false)
}

// writeAnalyzeError maps pipeline errors to HTTP statuses. Input problems
// are the client's fault, a fired aggregate timeout is a gateway timeout,
// and total recognition failure is a bad upstream.
func (s *Server) writeAnalyzeError(w http.ResponseWriter, log *logger.Logger, err error) {
	switch {
	case errors.Is(err, pii.ErrEmptyText), errors.Is(err, pii.ErrTextTooLong):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, pii.ErrAggregateTimeout):
		log.Error("Analysis timed out", zap.Error(err))
		writeError(w, http.StatusGatewayTimeout, err.Error())
	case errors.Is(err, pii.ErrAllRecognizersFailed):
		log.Error("All recognition calls failed", zap.Error(err))
		writeError(w, http.StatusBadGateway, err.Error())
	default:
		log.Error("Analysis failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "analysis failed")
	}
}

func (s *Server) writeResult(w http.ResponseWriter, requestID string, result *pii.AnalyzeResult, cached bool) {
	entities := result.Entities
	if entities == nil {
		entities = []pii.Entity{}
	}

	resp := analyzeResponse{
		RequestID:         requestID,
		Entities:          entities,
		RedactedText:      result.RedactedText,
		LanguageStats:     result.Stats.Language,
		SourceCounts:      result.Stats.SourceCounts,
		FinalSourceCounts: result.Stats.FinalSourceCounts,
		RegexFallback:     result.Stats.RegexFallback,
		DetectionComplete: result.Stats.DetectionComplete,
		Warnings:          result.Stats.Warnings,
		ProcessingMS:      float64(result.Stats.ProcessingTime.Nanoseconds()) / 1e6,
		Cached:            cached,
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(resp)
}

// recordEvent persists the detection metadata asynchronously. Recording is
// best effort and never blocks the response.
func (s *Server) recordEvent(requestID string, result *pii.AnalyzeResult, took time.Duration) {
	if s.eventStore == nil {
		return
	}

	types := make([]string, 0, len(result.Entities))
	seen := make(map[string]bool, len(result.Entities))
	for _, e := range result.Entities {
		if t := string(e.Type); !seen[t] {
			seen[t] = true
			types = append(types, t)
		}
	}

	event := &events.Event{
		RequestID:         requestID,
		Language:          result.Stats.Language.Language,
		DetectionMethod:   result.Stats.Language.Method,
		EntityCount:       len(result.Entities),
		EntityTypes:       types,
		RegexMatches:      result.Stats.RegexFallback.Matched,
		RegexFailures:     result.Stats.RegexFallback.Failed,
		DetectionComplete: result.Stats.DetectionComplete,
		ProcessingMs:      took.Milliseconds(),
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := s.eventStore.Record(ctx, event); err != nil {
			s.logger.Warn("Failed to record detection event",
				zap.String("request_id", requestID),
				zap.Error(err),
			)
		}
	}()
}

func (s *Server) broadcastDetection(requestID string, result *pii.AnalyzeResult) {
	if len(result.Entities) == 0 {
		return
	}

	types := make([]string, 0, len(result.Entities))
	seen := make(map[string]bool, len(result.Entities))
	for _, e := range result.Entities {
		if t := string(e.Type); !seen[t] {
			seen[t] = true
			types = append(types, t)
		}
	}

	s.wsHub.BroadcastEvent(websocket.Event{
		Type:      websocket.EventTypeDetection,
		Timestamp: time.Now(),
		RequestID: requestID,
		Data: websocket.DetectionEvent{
			RequestID:         requestID,
			Language:          result.Stats.Language.Language,
			DetectionMethod:   result.Stats.Language.Method,
			EntityCount:       len(result.Entities),
			EntityTypes:       types,
			RegexMatches:      result.Stats.RegexFallback.Matched,
			DetectionComplete: result.Stats.DetectionComplete,
			ProcessingMS:      float64(result.Stats.ProcessingTime.Nanoseconds()) / 1e6,
		},
	})
}

func writeError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(errorResponse{Error: message})
}
