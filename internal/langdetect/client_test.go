package langdetect

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

func TestDetect(t *testing.T) {
	log := logger.Nop()

	t.Run("ServiceResult", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path != "/detect" || r.Method != http.MethodPost {
				t.Errorf("Unexpected request: %s %s", r.Method, r.URL.Path)
			}
			var req struct {
				Text string `json:"text"`
			}
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				t.Errorf("Bad request body: %v", err)
			}
			json.NewEncoder(w).Encode(map[string]interface{}{
				"language":   "pl",
				"method":     "langdetect",
				"confidence": 0.97,
			})
		}))
		defer srv.Close()

		client := New(srv.URL, time.Second, log)
		result := client.Detect(context.Background(), "Mój PESEL to 44051401359")

		if result.Language != "pl" || result.Method != "langdetect" {
			t.Errorf("Unexpected result: %+v", result)
		}
		if result.ServiceErr {
			t.Error("ServiceErr set on a successful call")
		}
	})

	t.Run("ServerErrorFallsBackToHeuristic", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "boom", http.StatusInternalServerError)
		}))
		defer srv.Close()

		client := New(srv.URL, time.Second, log)
		result := client.Detect(context.Background(), "my pesel is 44051401359")

		if !result.ServiceErr {
			t.Error("ServiceErr not set after a failed call")
		}
		if result.Method != "fallback" {
			t.Errorf("Method = %q", result.Method)
		}
		// "pesel" keyword plus an 11-digit run are Polish signals.
		if result.Language != pii.LanguagePolish {
			t.Errorf("Language = %q", result.Language)
		}
	})

	t.Run("UnreachableServiceFallsBack", func(t *testing.T) {
		client := New("http://127.0.0.1:1", 100*time.Millisecond, log)
		result := client.Detect(context.Background(), "plain english sentence")

		if !result.ServiceErr {
			t.Error("ServiceErr not set")
		}
		if result.Language != pii.LanguageEnglish {
			t.Errorf("Text with no Polish signals must fall back to English, got %q", result.Language)
		}
	})

	t.Run("EmptyLanguageTreatedAsFailure", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			json.NewEncoder(w).Encode(map[string]interface{}{"language": ""})
		}))
		defer srv.Close()

		client := New(srv.URL, time.Second, log)
		result := client.Detect(context.Background(), "whatever")

		if !result.ServiceErr {
			t.Error("Empty language must trigger the fallback")
		}
	})
}

func TestFallbackResult(t *testing.T) {
	tests := []struct {
		name string
		text string
		want string
	}{
		{"PolishKeyword", "podaj swój numer NIP teraz", pii.LanguagePolish},
		{"ElevenDigitRun", "number 44051401359 here", pii.LanguagePolish},
		{"TenDigitRun", "id 1234563218 here", pii.LanguagePolish},
		{"PlainEnglish", "nothing suspicious here", pii.LanguageEnglish},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := fallbackResult(tt.text)
			if result.Language != tt.want {
				t.Errorf("fallbackResult(%q).Language = %q, want %q", tt.text, result.Language, tt.want)
			}
			if !result.ServiceErr || result.Method != "fallback" {
				t.Errorf("Fallback metadata wrong: %+v", result)
			}
		})
	}
}
