package recognizer

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/vigilguard/pii-gateway/internal/logger"
	"github.com/vigilguard/pii-gateway/internal/pii"
)

func recognitionServer(t *testing.T, entities []map[string]interface{}) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/analyze" || r.Method != http.MethodPost {
			t.Errorf("Unexpected request: %s %s", r.Method, r.URL.Path)
		}
		json.NewEncoder(w).Encode(map[string]interface{}{
			"entities":           entities,
			"processing_time_ms": 12,
		})
	}))
}

func TestRecognize(t *testing.T) {
	log := logger.Nop()

	t.Run("ASCIIOffsetsPassThrough", func(t *testing.T) {
		text := "Contact John at john@x.com"
		srv := recognitionServer(t, []map[string]interface{}{
			{"type": "PERSON", "start": 8, "end": 12, "score": 0.85, "text": "John"},
		})
		defer srv.Close()

		client := New(srv.URL, time.Second, log)
		result, err := client.Recognize(context.Background(), pii.RecognizeRequest{
			Text:     text,
			Language: "en",
			Entities: []pii.EntityType{pii.TypePerson},
		})
		if err != nil {
			t.Fatalf("Recognize failed: %v", err)
		}

		if len(result.Entities) != 1 {
			t.Fatalf("Expected 1 entity, got %d", len(result.Entities))
		}
		e := result.Entities[0]
		if e.Start != 8 || e.End != 12 || e.Text != "John" {
			t.Errorf("Unexpected entity: %+v", e)
		}
		if result.ProcessingTime != 12*time.Millisecond {
			t.Errorf("ProcessingTime = %v", result.ProcessingTime)
		}
	})

	t.Run("CharacterOffsetsConvertedToBytes", func(t *testing.T) {
		// "ę" is two bytes; the service counts characters.
		text := "Imię: Jan Kowalski"
		srv := recognitionServer(t, []map[string]interface{}{
			{"type": "PERSON", "start": 6, "end": 18, "score": 0.9, "text": "Jan Kowalski"},
		})
		defer srv.Close()

		client := New(srv.URL, time.Second, log)
		result, err := client.Recognize(context.Background(), pii.RecognizeRequest{Text: text, Language: "pl"})
		if err != nil {
			t.Fatalf("Recognize failed: %v", err)
		}

		if len(result.Entities) != 1 {
			t.Fatalf("Expected 1 entity, got %d", len(result.Entities))
		}
		e := result.Entities[0]
		if text[e.Start:e.End] != "Jan Kowalski" {
			t.Errorf("Byte span [%d,%d) covers %q", e.Start, e.End, text[e.Start:e.End])
		}
		if e.Text != "Jan Kowalski" {
			t.Errorf("Text = %q", e.Text)
		}
	})

	t.Run("OutOfRangeSpansDropped", func(t *testing.T) {
		srv := recognitionServer(t, []map[string]interface{}{
			{"type": "PERSON", "start": 2, "end": 999, "score": 0.9},
			{"type": "PERSON", "start": -1, "end": 3, "score": 0.9},
			{"type": "EMAIL_ADDRESS", "start": 0, "end": 6, "score": 0.9},
		})
		defer srv.Close()

		client := New(srv.URL, time.Second, log)
		result, err := client.Recognize(context.Background(), pii.RecognizeRequest{Text: "a@b.pl", Language: "en"})
		if err != nil {
			t.Fatalf("Recognize failed: %v", err)
		}

		if len(result.Entities) != 1 || result.Entities[0].Type != pii.TypeEmailAddress {
			t.Errorf("Expected only the valid span, got %+v", result.Entities)
		}
	})

	t.Run("LegacyTypeNamesCanonicalized", func(t *testing.T) {
		srv := recognitionServer(t, []map[string]interface{}{
			{"type": "PESEL_BARE", "start": 0, "end": 11, "score": 1.0},
		})
		defer srv.Close()

		client := New(srv.URL, time.Second, log)
		result, err := client.Recognize(context.Background(), pii.RecognizeRequest{Text: "44051401359", Language: "pl"})
		if err != nil {
			t.Fatalf("Recognize failed: %v", err)
		}
		if result.Entities[0].Type != pii.TypePLPesel {
			t.Errorf("Type = %s", result.Entities[0].Type)
		}
	})

	t.Run("ServerErrorReturnsError", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "overloaded", http.StatusServiceUnavailable)
		}))
		defer srv.Close()

		client := New(srv.URL, time.Second, log)
		_, err := client.Recognize(context.Background(), pii.RecognizeRequest{Text: "x", Language: "en"})
		if err == nil {
			t.Fatal("Expected an error for a 503 response")
		}
	})

	t.Run("ContextCancellationPropagates", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			time.Sleep(time.Second)
		}))
		defer srv.Close()

		client := New(srv.URL, 5*time.Second, log)
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
		defer cancel()

		_, err := client.Recognize(ctx, pii.RecognizeRequest{Text: "x", Language: "en"})
		if err == nil {
			t.Fatal("Expected a context deadline error")
		}
	})
}
