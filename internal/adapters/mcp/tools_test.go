package mcpadapter

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/kirillkom/policy-radar/internal/core/domain"
)

type queryServiceFake struct {
	result  domain.RAGResult
	results []domain.RetrievalResult
	err     error

	k      int
	filter domain.SearchFilter
}

func (f *queryServiceFake) Query(_ context.Context, _ string, k int, filter domain.SearchFilter) (domain.RAGResult, error) {
	f.k, f.filter = k, filter
	return f.result, f.err
}

func (f *queryServiceFake) Search(_ context.Context, _ string, k int, filter domain.SearchFilter) ([]domain.RetrievalResult, error) {
	f.k, f.filter = k, filter
	return f.results, f.err
}

type indexManagerFake struct{}

func (indexManagerFake) Reload(context.Context) error { return nil }
func (indexManagerFake) Status() domain.ServiceStatus {
	return domain.ServiceStatus{State: domain.StateReady, IndexLoaded: true, IndexPath: "/data/index"}
}
func (indexManagerFake) Topics() []domain.ConceptGroup { return nil }

func callRequest(name string, args map[string]any) mcp.CallToolRequest {
	var req mcp.CallToolRequest
	req.Params.Name = name
	req.Params.Arguments = args
	return req
}

func resultText(t *testing.T, res *mcp.CallToolResult) string {
	t.Helper()
	if res == nil || len(res.Content) == 0 {
		t.Fatalf("expected tool content")
	}
	text, ok := res.Content[0].(mcp.TextContent)
	if !ok {
		t.Fatalf("expected text content, got %T", res.Content[0])
	}
	return text.Text
}

func newTestServer(t *testing.T, query *queryServiceFake) *Server {
	t.Helper()
	s, err := NewServer(query, indexManagerFake{})
	if err != nil {
		t.Fatalf("NewServer() error = %v", err)
	}
	return s
}

func TestNewServerRequiresServices(t *testing.T) {
	if _, err := NewServer(nil, indexManagerFake{}); !errors.Is(err, ErrMissingService) {
		t.Fatalf("expected ErrMissingService, got %v", err)
	}
}

func TestHandleQueryForwardsArguments(t *testing.T) {
	query := &queryServiceFake{result: domain.RAGResult{Answer: "In force since 2024 [1].", Mode: domain.AnswerGenerated}}
	s := newTestServer(t, query)

	res, err := s.handleQuery(context.Background(), callRequest("policy_query", map[string]any{
		"question": "hydrogen market rules",
		"k":        float64(4),
		"source":   "EUR-Lex",
	}))
	if err != nil {
		t.Fatalf("handleQuery() error = %v", err)
	}
	if res.IsError {
		t.Fatalf("unexpected tool error: %s", resultText(t, res))
	}
	if !strings.Contains(resultText(t, res), "In force since 2024 [1].") {
		t.Fatalf("answer missing from result: %s", resultText(t, res))
	}
	if query.k != 4 || query.filter.Source != "EUR-Lex" {
		t.Fatalf("arguments not forwarded: k=%d filter=%+v", query.k, query.filter)
	}
}

func TestHandleQueryRequiresQuestion(t *testing.T) {
	s := newTestServer(t, &queryServiceFake{})

	res, err := s.handleQuery(context.Background(), callRequest("policy_query", map[string]any{}))
	if err != nil {
		t.Fatalf("handleQuery() error = %v", err)
	}
	if !res.IsError {
		t.Fatalf("expected tool error for missing question")
	}
}

func TestHandleSearchReturnsHits(t *testing.T) {
	query := &queryServiceFake{results: []domain.RetrievalResult{{
		Chunk: domain.Chunk{ChunkID: "doc-1:0", Title: "Net-Zero Industry Act", Source: "EUR-Lex"},
		Score: 0.82,
	}}}
	s := newTestServer(t, query)

	res, err := s.handleSearch(context.Background(), callRequest("policy_search", map[string]any{"query": "net zero"}))
	if err != nil {
		t.Fatalf("handleSearch() error = %v", err)
	}
	text := resultText(t, res)
	if !strings.Contains(text, `"chunk_id": "doc-1:0"`) || !strings.Contains(text, `"count": 1`) {
		t.Fatalf("unexpected search result: %s", text)
	}
}

func TestHandleSearchReportsServiceError(t *testing.T) {
	query := &queryServiceFake{err: domain.WrapError(domain.ErrNotFound, "search", errors.New("index is not loaded"))}
	s := newTestServer(t, query)

	res, err := s.handleSearch(context.Background(), callRequest("policy_search", map[string]any{"query": "q"}))
	if err != nil {
		t.Fatalf("handleSearch() error = %v", err)
	}
	if !res.IsError || !strings.Contains(resultText(t, res), "index is not loaded") {
		t.Fatalf("expected tool error, got %+v", res)
	}
}

func TestHandleStats(t *testing.T) {
	s := newTestServer(t, &queryServiceFake{})

	res, err := s.handleStats(context.Background(), callRequest("index_stats", nil))
	if err != nil {
		t.Fatalf("handleStats() error = %v", err)
	}
	if !strings.Contains(resultText(t, res), `"vector_store_loaded": true`) {
		t.Fatalf("unexpected stats: %s", resultText(t, res))
	}
}
