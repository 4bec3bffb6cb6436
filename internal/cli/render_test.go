package cli

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/fatih/color"

	"github.com/kirillkom/policy-radar/internal/core/domain"
)

func init() {
	color.NoColor = true
}

func TestRenderAnswerListsSourcesAndExpansion(t *testing.T) {
	published := time.Date(2025, 3, 14, 0, 0, 0, 0, time.UTC)
	var buf bytes.Buffer
	renderAnswer(&buf, domain.RAGResult{
		Answer:         "Funding goes to H2 valleys [1].",
		ExpansionTerms: []string{"hydrogen funding", "hydrogen", "fuel cells"},
		Confidence:     0.72,
		Language:       "en",
		Mode:           domain.AnswerGenerated,
		Sources: []domain.Chunk{
			{Title: "National Hydrogen Strategy", Source: "bmwk", URL: "https://example.org/h2", Published: &published},
		},
	})

	out := buf.String()
	for _, want := range []string{
		"Funding goes to H2 valleys [1].",
		"Confidence: 0.72",
		"Expanded to: hydrogen, fuel cells",
		"[1] National Hydrogen Strategy (bmwk, 2025-03-14)",
		"https://example.org/h2",
	} {
		if !strings.Contains(out, want) {
			t.Fatalf("output missing %q:\n%s", want, out)
		}
	}
	if strings.Contains(out, "Note:") {
		t.Fatalf("generated answer must not carry a mode note:\n%s", out)
	}
}

func TestRenderAnswerFlagsNonGeneratedMode(t *testing.T) {
	var buf bytes.Buffer
	renderAnswer(&buf, domain.RAGResult{Answer: "unavailable", Mode: domain.AnswerUnavailable, Sources: []domain.Chunk{}})

	out := buf.String()
	if !strings.Contains(out, "Note: answer mode is unavailable") {
		t.Fatalf("expected mode note, got:\n%s", out)
	}
	if strings.Contains(out, "Sources:") {
		t.Fatalf("no sources section expected:\n%s", out)
	}
}

func TestRenderResultsTruncatesLongContent(t *testing.T) {
	var buf bytes.Buffer
	renderResults(&buf, "ets", []domain.RetrievalResult{
		{Chunk: domain.Chunk{Title: "ETS reform", Source: "eu", DocType: "regulation", Content: strings.Repeat("ä", previewLength+10)}, Score: 0.91234},
	})

	out := buf.String()
	if !strings.Contains(out, "--- [1] ETS reform (score: 0.912) ---") {
		t.Fatalf("unexpected header:\n%s", out)
	}
	if !strings.Contains(out, strings.Repeat("ä", previewLength)+"...") {
		t.Fatalf("content not truncated on rune boundary:\n%s", out)
	}
	if !strings.Contains(out, "eu | regulation | unknown") {
		t.Fatalf("missing metadata line:\n%s", out)
	}
}

func TestRenderResultsEmpty(t *testing.T) {
	var buf bytes.Buffer
	renderResults(&buf, "nothing", nil)
	if buf.String() != "No results found.\n" {
		t.Fatalf("unexpected output %q", buf.String())
	}
}

func TestRenderStatusSortsCounts(t *testing.T) {
	var buf bytes.Buffer
	renderStatus(&buf, domain.ServiceStatus{
		State:     domain.StateReady,
		IndexPath: "data/index",
		Stats: &domain.IndexStats{
			ChunkCount: 12,
			Dimension:  768,
			Provider:   "ollama",
			BySource:   map[string]int{"un": 2, "eu": 10},
		},
	})

	out := buf.String()
	if !strings.Contains(out, "State: ready") || !strings.Contains(out, "Index: 12 chunks, dimension 768, provider ollama") {
		t.Fatalf("unexpected status output:\n%s", out)
	}
	if strings.Index(out, "eu") > strings.Index(out, "un ") {
		t.Fatalf("counts not sorted:\n%s", out)
	}
}

func TestFormatDuration(t *testing.T) {
	cases := map[time.Duration]string{
		250 * time.Millisecond:  "250ms",
		1500 * time.Millisecond: "1.5s",
		125 * time.Second:       "2m05s",
	}
	for in, want := range cases {
		if got := formatDuration(in); got != want {
			t.Fatalf("formatDuration(%s) = %q, want %q", in, got, want)
		}
	}
}
