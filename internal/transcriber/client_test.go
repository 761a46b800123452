package transcriber

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/JpChavez16/podscribe/internal/metrics"
)

func testMetrics() *metrics.Metrics {
	return metrics.NewMetricsWith(prometheus.NewRegistry())
}

func newTestClient(t *testing.T, endpoint string, maxRetries int) *Client {
	t.Helper()
	client, err := NewClient(ClientConfig{
		Endpoint:      endpoint,
		APIKey:        "test-key",
		Model:         "whisper-1",
		Language:      "en",
		Timeout:       5 * time.Second,
		MaxRetries:    maxRetries,
		MaxConcurrent: 2,
	}, testMetrics())
	if err != nil {
		t.Fatalf("NewClient failed: %v", err)
	}
	return client
}

func TestClientSendsMultipartRequest(t *testing.T) {
	var gotAuth string
	var gotModel, gotLanguage, gotFormat string
	var gotFile []byte

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Errorf("ParseMultipartForm failed: %v", err)
		}
		gotModel = r.FormValue("model")
		gotLanguage = r.FormValue("language")
		gotFormat = r.FormValue("response_format")

		file, _, err := r.FormFile("file")
		if err != nil {
			t.Errorf("FormFile failed: %v", err)
		} else {
			buf := make([]byte, 64)
			n, _ := file.Read(buf)
			gotFile = buf[:n]
			file.Close()
		}

		json.NewEncoder(w).Encode(map[string]any{
			"text":     "hello",
			"language": "en",
			"segments": []map[string]any{
				{"start": 0.0, "end": 1.5, "text": "hello"},
			},
		})
	}))
	defer server.Close()

	client := newTestClient(t, server.URL, 0)
	result, err := client.Transcribe(context.Background(), []byte("wav-bytes"), "chunk_000.wav", "")
	if err != nil {
		t.Fatalf("Transcribe failed: %v", err)
	}

	if gotAuth != "Bearer test-key" {
		t.Errorf("auth header = %q", gotAuth)
	}
	if gotModel != "whisper-1" || gotLanguage != "en" || gotFormat != "verbose_json" {
		t.Errorf("form fields = %s/%s/%s", gotModel, gotLanguage, gotFormat)
	}
	if string(gotFile) != "wav-bytes" {
		t.Errorf("file payload = %q", gotFile)
	}

	if result.Text != "hello" || result.Language != "en" {
		t.Errorf("result = %+v", result)
	}
	if len(result.Segments) != 1 || result.Segments[0].End != 1.5 {
		t.Errorf("segments = %+v", result.Segments)
	}
}

func TestClientRetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			http.Error(w, "overloaded", http.StatusServiceUnavailable)
			return
		}
		json.NewEncoder(w).Encode(map[string]any{"text": "recovered"})
	}))
	defer server.Close()

	client := newTestClient(t, server.URL, 2)
	result, err := client.Transcribe(context.Background(), []byte("wav"), "chunk_000.wav", "")
	if err != nil {
		t.Fatalf("Transcribe failed: %v", err)
	}
	if result.Text != "recovered" {
		t.Errorf("text = %q", result.Text)
	}
	if calls.Load() != 2 {
		t.Errorf("calls = %d, want 2", calls.Load())
	}

	stats := client.GetStats()
	if stats.TotalRetries != 1 {
		t.Errorf("retries = %d, want 1", stats.TotalRetries)
	}
}

func TestClientDoesNotRetryClientErrors(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "bad audio", http.StatusBadRequest)
	}))
	defer server.Close()

	client := newTestClient(t, server.URL, 3)
	_, err := client.Transcribe(context.Background(), []byte("wav"), "chunk_000.wav", "")
	if err == nil {
		t.Fatal("Transcribe succeeded on 400 response")
	}
	if !strings.Contains(err.Error(), "HTTP error 400") {
		t.Errorf("error = %v", err)
	}
	if calls.Load() != 1 {
		t.Errorf("calls = %d, want 1 (no retries)", calls.Load())
	}
}

func TestClientLanguageField(t *testing.T) {
	tests := []struct {
		name       string
		configLang string
		reqLang    string
		want       string // "" means the field must be absent
	}{
		{name: "config default", configLang: "en", reqLang: "", want: "en"},
		{name: "request override", configLang: "en", reqLang: "uk", want: "uk"},
		{name: "config auto omitted", configLang: "auto", reqLang: "", want: ""},
		{name: "request auto omitted", configLang: "en", reqLang: "auto", want: ""},
		{name: "unset omitted", configLang: "", reqLang: "", want: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var gotLanguage string
			var hasLanguage bool
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if err := r.ParseMultipartForm(1 << 20); err != nil {
					t.Errorf("ParseMultipartForm failed: %v", err)
				}
				_, hasLanguage = r.MultipartForm.Value["language"]
				gotLanguage = r.FormValue("language")
				json.NewEncoder(w).Encode(map[string]any{"text": "ok"})
			}))
			defer server.Close()

			client, err := NewClient(ClientConfig{
				Endpoint: server.URL,
				Language: tt.configLang,
			}, testMetrics())
			if err != nil {
				t.Fatalf("NewClient failed: %v", err)
			}

			if _, err := client.Transcribe(context.Background(), []byte("wav"), "chunk_000.wav", tt.reqLang); err != nil {
				t.Fatalf("Transcribe failed: %v", err)
			}

			if tt.want == "" {
				if hasLanguage {
					t.Errorf("language field sent as %q, want absent", gotLanguage)
				}
			} else if gotLanguage != tt.want {
				t.Errorf("language = %q, want %q", gotLanguage, tt.want)
			}
		})
	}
}

func TestNewClientValidation(t *testing.T) {
	if _, err := NewClient(ClientConfig{}, testMetrics()); err == nil {
		t.Error("NewClient accepted empty endpoint")
	}
}
