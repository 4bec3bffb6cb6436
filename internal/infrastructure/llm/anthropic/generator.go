// Package anthropic implements text generation over the Anthropic Messages API.
package anthropic

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/kirillkom/policy-radar/internal/infrastructure/llm/provider"
	"github.com/kirillkom/policy-radar/internal/infrastructure/resilience"
)

const (
	DefaultBaseURL = "https://api.anthropic.com"
	apiVersion     = "2023-06-01"
)

type Options struct {
	BaseURL     string
	APIKey      string
	Model       string
	MaxTokens   int
	Temperature float64
	HTTPTimeout time.Duration
	Executor    *resilience.Executor
}

type Generator struct {
	opts       Options
	httpClient *http.Client
}

func NewGenerator(opts Options) *Generator {
	if opts.BaseURL == "" {
		opts.BaseURL = DefaultBaseURL
	}
	opts.BaseURL = strings.TrimRight(opts.BaseURL, "/")
	if opts.MaxTokens <= 0 {
		opts.MaxTokens = 1024
	}
	if opts.HTTPTimeout <= 0 {
		opts.HTTPTimeout = 60 * time.Second
	}
	return &Generator{
		opts:       opts,
		httpClient: &http.Client{Timeout: opts.HTTPTimeout},
	}
}

type messagesResponse struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	StopReason string `json:"stop_reason"`
}

func (g *Generator) Generate(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	if strings.TrimSpace(g.opts.APIKey) == "" {
		return "", provider.WrapError("anthropic messages", fmt.Errorf("api key is not configured"))
	}

	request := provider.Request{
		Provider:  "anthropic",
		Operation: "messages",
		URL:       g.opts.BaseURL + "/v1/messages",
		Headers: map[string]string{
			"x-api-key":         g.opts.APIKey,
			"anthropic-version": apiVersion,
		},
		Payload: map[string]any{
			"model":       g.opts.Model,
			"max_tokens":  g.opts.MaxTokens,
			"temperature": g.opts.Temperature,
			"system":      systemPrompt,
			"messages": []map[string]string{
				{"role": "user", "content": userPrompt},
			},
		},
	}

	response, err := resilience.Call(ctx, g.opts.Executor, "anthropic.messages", func(callCtx context.Context) (messagesResponse, error) {
		var out messagesResponse
		err := provider.PostJSON(callCtx, g.httpClient, request, &out)
		return out, err
	}, provider.Classify)
	if err != nil {
		return "", provider.WrapError("anthropic messages", err)
	}

	var b strings.Builder
	for _, block := range response.Content {
		if block.Type == "text" {
			b.WriteString(block.Text)
		}
	}
	answer := strings.TrimSpace(b.String())
	if answer == "" {
		return "", provider.WrapError("anthropic messages", fmt.Errorf("empty completion (stop_reason=%s)", response.StopReason))
	}
	return answer, nil
}
