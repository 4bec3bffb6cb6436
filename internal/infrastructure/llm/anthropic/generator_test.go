package anthropic

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/kirillkom/policy-radar/internal/core/domain"
)

func TestGenerateSendsHeadersAndSystemPrompt(t *testing.T) {
	var payload map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/messages" {
			http.NotFound(w, r)
			return
		}
		if r.Header.Get("x-api-key") != "secret" || r.Header.Get("anthropic-version") != apiVersion {
			t.Errorf("missing auth headers: %v", r.Header)
		}
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			t.Errorf("decode: %v", err)
		}
		_, _ = w.Write([]byte(`{"content":[{"type":"text","text":"Answer [1]"}],"stop_reason":"end_turn"}`))
	}))
	defer server.Close()

	gen := NewGenerator(Options{BaseURL: server.URL, APIKey: "secret", Model: "claude-3-5-haiku-latest"})
	answer, err := gen.Generate(context.Background(), "only cite sources", "question")
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	if answer != "Answer [1]" {
		t.Fatalf("unexpected answer %q", answer)
	}
	if payload["system"] != "only cite sources" {
		t.Fatalf("system prompt not forwarded: %v", payload["system"])
	}
}

func TestGenerateWithoutKeyIsUnavailable(t *testing.T) {
	_, err := NewGenerator(Options{}).Generate(context.Background(), "s", "u")
	if !domain.IsKind(err, domain.ErrProviderUnavailable) {
		t.Fatalf("expected ErrProviderUnavailable, got %v", err)
	}
}

func TestGenerateMapsServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"type":"error"}`, http.StatusInternalServerError)
	}))
	defer server.Close()

	_, err := NewGenerator(Options{BaseURL: server.URL, APIKey: "k"}).Generate(context.Background(), "s", "u")
	if !domain.IsKind(err, domain.ErrProviderUnavailable) {
		t.Fatalf("expected ErrProviderUnavailable, got %v", err)
	}
}
