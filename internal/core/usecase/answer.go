package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/kirillkom/policy-radar/internal/core/domain"
	"github.com/kirillkom/policy-radar/internal/core/ports"
)

const (
	DefaultContextSources = 6
	DefaultExcerptLength  = 400

	baseSourceScore  = 0.5
	citationWeight   = 0.4
	sourceWeight     = 0.6
	recentBonus      = 0.10
	recentWindow     = 30 * 24 * time.Hour
	quarterBonus     = 0.05
	quarterWindow    = 90 * 24 * time.Hour
	noSourcesAverage = 0.5
)

var citationPattern = regexp.MustCompile(`\[(\d+)\]`)

// DefaultSourceTiers rates authoritative sources above secondary ones.
func DefaultSourceTiers() map[string]float64 {
	return map[string]float64{
		"EUR-Lex":      0.30,
		"EP Open Data": 0.25,
		"EURACTIV":     0.15,
	}
}

type ComposerOptions struct {
	MaxSources    int
	ExcerptLength int
	SourceTiers   map[string]float64
	Now           func() time.Time
}

// AnswerComposer renders retrieved chunks into a citation-forced prompt and
// scores the generated answer.
type AnswerComposer struct {
	generator ports.TextGenerator
	opts      ComposerOptions
}

func NewAnswerComposer(generator ports.TextGenerator, opts ComposerOptions) *AnswerComposer {
	if opts.MaxSources <= 0 {
		opts.MaxSources = DefaultContextSources
	}
	if opts.ExcerptLength <= 0 {
		opts.ExcerptLength = DefaultExcerptLength
	}
	if opts.SourceTiers == nil {
		opts.SourceTiers = DefaultSourceTiers()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &AnswerComposer{generator: generator, opts: opts}
}

// Compose never fails: generation errors degrade to the fallback answer with
// zero confidence.
func (c *AnswerComposer) Compose(
	ctx context.Context,
	query string,
	sources []domain.Chunk,
	language string,
) (string, float64, domain.AnswerMode) {
	if c.generator == nil {
		return c.FallbackAnswer(query, sources), 0, domain.AnswerFallback
	}

	answer, err := c.generator.Generate(ctx, c.systemPrompt(language), c.userPrompt(query, sources))
	if err == nil && strings.TrimSpace(answer) == "" {
		err = domain.WrapError(domain.ErrProviderUnavailable, "generate answer", fmt.Errorf("empty completion"))
	}
	if err != nil {
		slog.Warn("answer_generation_failed",
			"sources", len(sources),
			"provider_failure", domain.IsProviderFailure(err),
			"error", err,
		)
		return c.FallbackAnswer(query, sources), 0, domain.AnswerFallback
	}

	return strings.TrimSpace(answer), c.Confidence(answer, sources), domain.AnswerGenerated
}

// Confidence combines citation coverage with the mean source quality.
func (c *AnswerComposer) Confidence(answer string, sources []domain.Chunk) float64 {
	maxCitations := min(len(sources), c.opts.MaxSources)
	citationScore := 0.0
	if maxCitations > 0 {
		citationScore = float64(countCitations(answer, maxCitations)) / float64(maxCitations)
	}

	avg := noSourcesAverage
	if len(sources) > 0 {
		total := 0.0
		for _, source := range sources {
			total += c.sourceScore(source)
		}
		avg = total / float64(len(sources))
	}
	return clamp01(citationWeight*citationScore + sourceWeight*avg)
}

func (c *AnswerComposer) sourceScore(chunk domain.Chunk) float64 {
	score := baseSourceScore + c.opts.SourceTiers[chunk.Source]
	if chunk.Published != nil {
		age := c.opts.Now().Sub(*chunk.Published)
		switch {
		case age < recentWindow:
			score += recentBonus
		case age < quarterWindow:
			score += quarterBonus
		}
	}
	return min(score, 1.0)
}

// countCitations counts distinct [n] markers that point at a rendered source.
func countCitations(answer string, limit int) int {
	seen := make(map[int]struct{})
	for _, match := range citationPattern.FindAllStringSubmatch(answer, -1) {
		n, err := strconv.Atoi(match[1])
		if err != nil || n < 1 || n > limit {
			continue
		}
		seen[n] = struct{}{}
	}
	return len(seen)
}

func clamp01(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}

func (c *AnswerComposer) systemPrompt(language string) string {
	if language == "" {
		language = "en"
	}
	return strings.Join([]string{
		"You are a Policy Radar assistant specializing in EU policy and legislation analysis.",
		"",
		"Rules:",
		"- Answer in the language with ISO code " + language + ".",
		"- Use only information from the provided sources.",
		"- Cite every factual claim with its source number in brackets, e.g. [1].",
		"- If the sources do not contain enough information, say so explicitly.",
		"- Prefer official sources (EUR-Lex, European Parliament) over news coverage.",
		"- State regulatory status precisely: proposed, adopted, in force or repealed.",
		"- Include dates, document numbers and URLs when the sources give them.",
	}, "\n")
}

func (c *AnswerComposer) userPrompt(query string, sources []domain.Chunk) string {
	var b strings.Builder
	b.WriteString("Query: ")
	b.WriteString(query)
	b.WriteString("\n\nAvailable sources:\n")
	b.WriteString(c.renderContext(sources))
	b.WriteString("\nAnswer the query using only the sources above. ")
	b.WriteString("Every factual claim must carry a [SOURCE_NUMBER] citation.")
	return b.String()
}

func (c *AnswerComposer) renderContext(sources []domain.Chunk) string {
	if len(sources) == 0 {
		return "(no sources matched the query)\n"
	}
	var b strings.Builder
	for i, chunk := range sources[:min(len(sources), c.opts.MaxSources)] {
		fmt.Fprintf(&b, "[%d] Source: %s (%s) | Date: %s\n", i+1, chunk.Source, chunk.DocType, chunk.PublishedDate())
		fmt.Fprintf(&b, "Title: %s\n", chunk.Title)
		fmt.Fprintf(&b, "Content: %s\n", excerpt(chunk.Content, c.opts.ExcerptLength))
		fmt.Fprintf(&b, "URL: %s\n\n", chunk.URL)
	}
	return b.String()
}

func excerpt(text string, limit int) string {
	runes := []rune(text)
	if len(runes) <= limit {
		return text
	}
	return strings.TrimSpace(string(runes[:limit])) + "..."
}

// FallbackAnswer lists the retrieved sources without generated prose.
func (c *AnswerComposer) FallbackAnswer(query string, sources []domain.Chunk) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Generated answer is unavailable for %q. ", query)
	if len(sources) == 0 {
		b.WriteString("No matching sources were found in the index.")
		return b.String()
	}
	b.WriteString("Review the retrieved sources directly:\n")
	for i, chunk := range sources[:min(len(sources), c.opts.MaxSources)] {
		fmt.Fprintf(&b, "[%d] %s | %s | %s", i+1, chunk.Source, chunk.PublishedDate(), chunk.Title)
		if chunk.URL != "" {
			fmt.Fprintf(&b, " | %s", chunk.URL)
		}
		b.WriteString("\n")
	}
	return strings.TrimRight(b.String(), "\n")
}

// UnavailableAnswer is returned while no index snapshot is loaded.
func UnavailableAnswer(query string) string {
	return fmt.Sprintf("The policy index is not loaded, so %q cannot be answered from sources yet. "+
		"Build or reload the index and try again.", query)
}
