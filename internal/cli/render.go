package cli

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/fatih/color"

	"github.com/kirillkom/policy-radar/internal/core/domain"
)

const previewLength = 300

var (
	headingLabel = color.New(color.FgCyan, color.Bold).SprintFunc()
	successLabel = color.New(color.FgGreen, color.Bold).SprintFunc()
	warnLabel    = color.New(color.FgYellow, color.Bold).SprintFunc()
	dimLabel     = color.New(color.Faint).SprintFunc()
)

func renderAnswer(w io.Writer, result domain.RAGResult) {
	if result.Mode != domain.AnswerGenerated {
		fmt.Fprintf(w, "%s answer mode is %s\n\n", warnLabel("Note:"), result.Mode)
	}
	fmt.Fprintln(w, result.Answer)
	fmt.Fprintln(w)

	fmt.Fprintf(w, "%s %.2f  %s %s\n", headingLabel("Confidence:"), result.Confidence, headingLabel("Language:"), result.Language)
	if len(result.ExpansionTerms) > 1 {
		fmt.Fprintf(w, "%s %s\n", headingLabel("Expanded to:"), strings.Join(result.ExpansionTerms[1:], ", "))
	}
	if len(result.Sources) == 0 {
		return
	}

	fmt.Fprintln(w)
	fmt.Fprintln(w, headingLabel("Sources:"))
	for i, src := range result.Sources {
		fmt.Fprintf(w, "  [%d] %s %s\n", i+1, src.Title, dimLabel(fmt.Sprintf("(%s, %s)", src.Source, src.PublishedDate())))
		if src.URL != "" {
			fmt.Fprintf(w, "      %s\n", src.URL)
		}
	}
}

func renderResults(w io.Writer, query string, results []domain.RetrievalResult) {
	if len(results) == 0 {
		fmt.Fprintln(w, "No results found.")
		return
	}
	fmt.Fprintf(w, "Found %d results for: %s\n\n", len(results), query)
	for i, r := range results {
		header := fmt.Sprintf("--- [%d] %s (score: %.3f) ---", i+1, r.Chunk.Title, r.Score)
		fmt.Fprintln(w, headingLabel(header))
		fmt.Fprintln(w, dimLabel(fmt.Sprintf("%s | %s | %s", r.Chunk.Source, r.Chunk.DocType, r.Chunk.PublishedDate())))
		fmt.Fprintln(w, preview(r.Chunk.Content))
		fmt.Fprintln(w)
	}
}

func renderStatus(w io.Writer, status domain.ServiceStatus) {
	state := string(status.State)
	if status.State == domain.StateReady {
		state = successLabel(state)
	} else {
		state = warnLabel(state)
	}
	fmt.Fprintf(w, "%s %s\n", headingLabel("State:"), state)
	fmt.Fprintf(w, "%s %s\n", headingLabel("Index path:"), status.IndexPath)
	if status.LastLoadError != "" {
		fmt.Fprintf(w, "%s %s\n", headingLabel("Last error:"), status.LastLoadError)
	}
	if status.Stats != nil {
		renderStats(w, *status.Stats)
	}
}

func renderStats(w io.Writer, stats domain.IndexStats) {
	fmt.Fprintf(w, "%s %d chunks, dimension %d, provider %s\n",
		successLabel("Index:"), stats.ChunkCount, stats.Dimension, stats.Provider)
	if stats.BuildID != "" {
		fmt.Fprintf(w, "%s %s (%s)\n", headingLabel("Build:"), stats.BuildID, stats.BuiltAt.Format("2006-01-02 15:04:05"))
	}
	renderCounts(w, "By source:", stats.BySource)
	renderCounts(w, "By doc type:", stats.ByDocType)
}

func renderCounts(w io.Writer, title string, counts map[string]int) {
	if len(counts) == 0 {
		return
	}
	keys := make([]string, 0, len(counts))
	for k := range counts {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	fmt.Fprintln(w, headingLabel(title))
	for _, k := range keys {
		fmt.Fprintf(w, "  %-24s %d\n", k, counts[k])
	}
}

func preview(text string) string {
	runes := []rune(text)
	if len(runes) <= previewLength {
		return text
	}
	return string(runes[:previewLength]) + "..."
}
