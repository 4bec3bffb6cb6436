package mcpadapter

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/kirillkom/policy-radar/internal/core/domain"
)

func (s *Server) registerTools() {
	s.mcp.AddTool(mcp.NewTool("policy_query",
		mcp.WithDescription("Answer a question about EU policy from indexed sources, with numbered citations and a confidence score."),
		mcp.WithString("question", mcp.Required(), mcp.Description("Natural language question")),
		mcp.WithNumber("k", mcp.Description("Number of sources to retrieve (default 8)")),
		mcp.WithString("source", mcp.Description("Only use chunks from this source, e.g. EUR-Lex")),
		mcp.WithString("doc_type", mcp.Description("Only use chunks of this document type")),
	), s.handleQuery)

	s.mcp.AddTool(mcp.NewTool("policy_search",
		mcp.WithDescription("Semantic search over indexed policy chunks without answer generation."),
		mcp.WithString("query", mcp.Required(), mcp.Description("Search text")),
		mcp.WithNumber("k", mcp.Description("Maximum number of results (default 8)")),
		mcp.WithString("source", mcp.Description("Exact source filter")),
		mcp.WithString("doc_type", mcp.Description("Exact document type filter")),
	), s.handleSearch)

	s.mcp.AddTool(mcp.NewTool("index_stats",
		mcp.WithDescription("Report whether the policy index is loaded and what it contains."),
	), s.handleStats)
}

func (s *Server) handleQuery(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	question, err := req.RequireString("question")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	result, err := s.query.Query(ctx, question, req.GetInt("k", 0), filterFrom(req))
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(result)
}

type searchHit struct {
	ChunkID   string  `json:"chunk_id"`
	Title     string  `json:"title"`
	Source    string  `json:"source"`
	DocType   string  `json:"doc_type"`
	Published string  `json:"published"`
	URL       string  `json:"url"`
	Score     float64 `json:"score"`
	Content   string  `json:"content"`
}

func (s *Server) handleSearch(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	query, err := req.RequireString("query")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	results, err := s.query.Search(ctx, query, req.GetInt("k", 0), filterFrom(req))
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	hits := make([]searchHit, 0, len(results))
	for _, r := range results {
		hits = append(hits, searchHit{
			ChunkID:   r.Chunk.ChunkID,
			Title:     r.Chunk.Title,
			Source:    r.Chunk.Source,
			DocType:   r.Chunk.DocType,
			Published: r.Chunk.PublishedDate(),
			URL:       r.Chunk.URL,
			Score:     r.Score,
			Content:   r.Chunk.Content,
		})
	}
	return jsonResult(map[string]any{"results": hits, "count": len(hits)})
}

func (s *Server) handleStats(_ context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return jsonResult(s.index.Status())
}

func filterFrom(req mcp.CallToolRequest) domain.SearchFilter {
	return domain.SearchFilter{
		Source:  req.GetString("source", ""),
		DocType: req.GetString("doc_type", ""),
	}
}

func jsonResult(payload any) (*mcp.CallToolResult, error) {
	data, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode tool result: %w", err)
	}
	return mcp.NewToolResultText(string(data)), nil
}
