package domain

import (
	"fmt"
	"strings"
	"time"
)

const maxFilterLength = 256

// SearchFilter holds optional exact-match predicates. Empty means no filter.
type SearchFilter struct {
	Source  string `json:"source,omitempty"`
	DocType string `json:"doc_type,omitempty"`
}

func (f SearchFilter) Normalize() SearchFilter {
	return SearchFilter{
		Source:  strings.TrimSpace(f.Source),
		DocType: strings.TrimSpace(f.DocType),
	}
}

// Validate accepts every value as an exact-match predicate and only bounds
// the length.
func (f SearchFilter) Validate() error {
	if len(f.Source) > maxFilterLength {
		return WrapError(ErrInvalidFilter, "validate filter", fmt.Errorf("source longer than %d bytes", maxFilterLength))
	}
	if len(f.DocType) > maxFilterLength {
		return WrapError(ErrInvalidFilter, "validate filter", fmt.Errorf("doc_type longer than %d bytes", maxFilterLength))
	}
	return nil
}

func (f SearchFilter) Matches(chunk Chunk) bool {
	if f.Source != "" && chunk.Source != f.Source {
		return false
	}
	if f.DocType != "" && chunk.DocType != f.DocType {
		return false
	}
	return true
}

// IsEmpty reports whether f matches every chunk.
func (f SearchFilter) IsEmpty() bool {
	return f.Source == "" && f.DocType == ""
}

// RetrievalResult pairs a chunk with its inner-product score.
type RetrievalResult struct {
	Chunk Chunk   `json:"chunk"`
	Score float64 `json:"score"`
}

// AnswerMode tells consumers how the answer text was produced.
type AnswerMode string

const (
	AnswerGenerated   AnswerMode = "generated"
	AnswerFallback    AnswerMode = "fallback"
	AnswerUnavailable AnswerMode = "unavailable"
)

// RAGResult is the response of a question answering call.
type RAGResult struct {
	Answer         string     `json:"answer"`
	Sources        []Chunk    `json:"sources"`
	ExpansionTerms []string   `json:"expansion_terms"`
	Confidence     float64    `json:"confidence"`
	Language       string     `json:"language"`
	Mode           AnswerMode `json:"mode"`
}

// ServiceState is the lifecycle state of the question answering service.
type ServiceState string

const (
	StateUninitialized ServiceState = "uninitialized"
	StateReady         ServiceState = "ready"
	StateUnavailable   ServiceState = "unavailable"
)

// IndexStats describes the live index snapshot.
type IndexStats struct {
	ChunkCount int            `json:"chunk_count"`
	Dimension  int            `json:"dimension"`
	Provider   string         `json:"provider"`
	BuildID    string         `json:"build_id,omitempty"`
	BuiltAt    time.Time      `json:"built_at"`
	BySource   map[string]int `json:"by_source"`
	ByDocType  map[string]int `json:"by_doc_type"`
	Sources    []string       `json:"sources"`
}

// ServiceStatus combines the lifecycle state with the last load attempt.
type ServiceStatus struct {
	State         ServiceState `json:"state"`
	IndexLoaded   bool         `json:"vector_store_loaded"`
	IndexPath     string       `json:"index_path"`
	LastLoadedAt  *time.Time   `json:"last_loaded_at,omitempty"`
	LastLoadError string       `json:"last_load_error,omitempty"`
	LastAttemptAt *time.Time   `json:"last_attempt_at,omitempty"`
	Stats         *IndexStats  `json:"stats,omitempty"`
}

// ConceptGroup is one row of the controlled concept vocabulary.
type ConceptGroup struct {
	Name  string   `json:"name"`
	Terms []string `json:"terms"`
}

// Top returns the first n terms of the group.
func (g ConceptGroup) Top(n int) []string {
	n = min(max(n, 0), len(g.Terms))
	return g.Terms[:n]
}

// Siblings returns up to n terms of the group other than term.
func (g ConceptGroup) Siblings(term string, n int) []string {
	out := make([]string, 0, max(n, 0))
	for _, candidate := range g.Terms {
		if len(out) >= n {
			break
		}
		if !strings.EqualFold(candidate, term) {
			out = append(out, candidate)
		}
	}
	return out
}
