package ollama

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/kirillkom/policy-radar/internal/infrastructure/llm/provider"
	"github.com/kirillkom/policy-radar/internal/infrastructure/resilience"
)

const providerName = "ollama"

type Client struct {
	baseURL    string
	httpClient *http.Client
	executor   *resilience.Executor
}

type Options struct {
	// HTTPTimeout caps a single request. Per-attempt deadlines come from the executor.
	HTTPTimeout time.Duration
	Executor    *resilience.Executor
}

func New(baseURL string, opts Options) *Client {
	timeout := opts.HTTPTimeout
	if timeout <= 0 {
		timeout = 120 * time.Second
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
		executor:   opts.Executor,
	}
}

func (c *Client) post(ctx context.Context, operation, path string, payload, out any) error {
	err := c.run(ctx, "ollama."+operation, func(callCtx context.Context) error {
		return provider.PostJSON(callCtx, c.httpClient, provider.Request{
			Provider:  providerName,
			Operation: operation,
			URL:       c.baseURL + path,
			Payload:   payload,
		}, out)
	})
	return provider.WrapError("ollama "+operation, err)
}

func (c *Client) run(ctx context.Context, operation string, fn func(context.Context) error) error {
	if c.executor == nil {
		return fn(ctx)
	}
	return c.executor.Execute(ctx, operation, fn, provider.Classify)
}

// Embedder calls /api/embed and checks every vector against the configured dimension.
type Embedder struct {
	client    *Client
	model     string
	dimension int
}

func NewEmbedder(client *Client, model string, dimension int) *Embedder {
	return &Embedder{client: client, model: model, dimension: dimension}
}

func (e *Embedder) Dimension() int { return e.dimension }

func (e *Embedder) Identifier() string { return providerName + ":" + e.model }

func (e *Embedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	request := map[string]any{
		"model": e.model,
		"input": texts,
	}
	var response struct {
		Embeddings [][]float32 `json:"embeddings"`
	}
	if err := e.client.post(ctx, "embed", "/api/embed", request, &response); err != nil {
		return nil, err
	}

	if len(response.Embeddings) != len(texts) {
		return nil, provider.WrapError("ollama embed", fmt.Errorf("got %d embeddings for %d texts", len(response.Embeddings), len(texts)))
	}
	for i, vector := range response.Embeddings {
		if len(vector) != e.dimension {
			return nil, provider.WrapError("ollama embed", fmt.Errorf("embedding %d has dimension %d, want %d", i, len(vector), e.dimension))
		}
	}
	return response.Embeddings, nil
}

// Generator calls /api/chat with a system and a user message.
type Generator struct {
	client      *Client
	model       string
	temperature float64
}

func NewGenerator(client *Client, model string, temperature float64) *Generator {
	return &Generator{client: client, model: model, temperature: temperature}
}

func (g *Generator) Generate(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	request := map[string]any{
		"model":  g.model,
		"stream": false,
		"messages": []map[string]string{
			{"role": "system", "content": systemPrompt},
			{"role": "user", "content": userPrompt},
		},
		"options": map[string]any{
			"temperature": g.temperature,
		},
	}
	var response struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	}
	if err := g.client.post(ctx, "chat", "/api/chat", request, &response); err != nil {
		return "", err
	}

	answer := strings.TrimSpace(response.Message.Content)
	if answer == "" {
		return "", provider.WrapError("ollama chat", fmt.Errorf("empty completion"))
	}
	return answer, nil
}
