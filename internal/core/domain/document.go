package domain

import (
	"strings"
	"time"
)

// DocumentRecord is one policy document as produced by an ingestion
// collaborator. Optional fields are normalized once by NormalizeRecord.
type DocumentRecord struct {
	ID        string         `json:"id"`
	Source    string         `json:"source"`
	DocType   string         `json:"doc_type"`
	Title     string         `json:"title"`
	Summary   string         `json:"summary"`
	BodyText  string         `json:"body_text,omitempty"`
	Language  string         `json:"language,omitempty"`
	URL       string         `json:"url"`
	Published *time.Time     `json:"published,omitempty"`
	Topics    []string       `json:"topics"`
	Extra     map[string]any `json:"extra,omitempty"`
}

// Defaults applied to missing optional fields at the ingestion boundary.
const (
	UnknownSource  = "unknown"
	UnknownDocType = "document"
)

// NormalizeRecord trims text fields and fills documented defaults:
// source "unknown", doc_type "document", empty topics and extra.
func NormalizeRecord(rec DocumentRecord) DocumentRecord {
	rec.ID = strings.TrimSpace(rec.ID)
	rec.Source = strings.TrimSpace(rec.Source)
	if rec.Source == "" {
		rec.Source = UnknownSource
	}
	rec.DocType = strings.TrimSpace(rec.DocType)
	if rec.DocType == "" {
		rec.DocType = UnknownDocType
	}
	rec.Title = strings.TrimSpace(rec.Title)
	rec.Summary = strings.TrimSpace(rec.Summary)
	rec.BodyText = strings.TrimSpace(rec.BodyText)
	rec.Language = strings.ToLower(strings.TrimSpace(rec.Language))
	rec.URL = strings.TrimSpace(rec.URL)

	topics := make([]string, 0, len(rec.Topics))
	for _, topic := range rec.Topics {
		if topic = strings.TrimSpace(topic); topic != "" {
			topics = append(topics, topic)
		}
	}
	rec.Topics = topics
	if rec.Extra == nil {
		rec.Extra = map[string]any{}
	}
	return rec
}

// SearchableText joins the non-empty title, summary and body with single
// spaces. Nothing is added, so chunk content is always source text.
func (r DocumentRecord) SearchableText() string {
	parts := make([]string, 0, 3)
	for _, part := range []string{r.Title, r.Summary, r.BodyText} {
		if part = strings.TrimSpace(part); part != "" {
			parts = append(parts, part)
		}
	}
	return strings.Join(parts, " ")
}

var publishedLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
	time.RFC1123Z,
	time.RFC1123,
}

// ParsePublished accepts the timestamp shapes emitted by the RSS, SPARQL and
// REST connectors. Unparseable values yield nil.
func ParsePublished(raw string) *time.Time {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	for _, layout := range publishedLayouts {
		if ts, err := time.Parse(layout, raw); err == nil {
			ts = ts.UTC()
			return &ts
		}
	}
	return nil
}

// Chunk is an embeddable slice of one document carrying a copy of the
// parent's filterable metadata.
type Chunk struct {
	ChunkID   string         `json:"chunk_id"`
	DocID     string         `json:"doc_id"`
	Source    string         `json:"source"`
	DocType   string         `json:"doc_type"`
	Title     string         `json:"title"`
	Content   string         `json:"content"`
	Language  string         `json:"language"`
	URL       string         `json:"url"`
	Published *time.Time     `json:"published,omitempty"`
	Topics    []string       `json:"topics"`
	Concepts  []string       `json:"concepts"`
	Position  int            `json:"position"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// PublishedDate renders the publish date as YYYY-MM-DD or "unknown".
func (c Chunk) PublishedDate() string {
	if c.Published == nil || c.Published.IsZero() {
		return "unknown"
	}
	return c.Published.UTC().Format("2006-01-02")
}
