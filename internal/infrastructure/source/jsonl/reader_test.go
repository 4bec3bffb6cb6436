package jsonl

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/kirillkom/policy-radar/internal/core/domain"
)

const sample = `{"id":"eurlex-1","source":"EUR-Lex","doc_type":"regulation","title":"Hydrogen package","summary":"Rules.","published":"2025-01-15T10:00:00Z","topics":["hydrogen"," "],"extra":{"celex":"32024R1787"}}

not json at all
{"id":"ep-1","title":"Vote","published":"2025-02-01"}
["an","array"]
`

func TestReadStreamSkipsBlankAndMalformedLines(t *testing.T) {
	docs, err := ReadStream(context.Background(), strings.NewReader(sample), "sample")
	if err != nil {
		t.Fatalf("ReadStream() error = %v", err)
	}
	if len(docs) != 2 {
		t.Fatalf("expected 2 documents, got %d", len(docs))
	}

	first := docs[0]
	if first.Source != "EUR-Lex" || first.Published == nil || first.Published.Format("2006-01-02") != "2025-01-15" {
		t.Fatalf("unexpected first record %+v", first)
	}
	if len(first.Topics) != 1 || first.Extra["celex"] != "32024R1787" {
		t.Fatalf("unexpected topics/extra %+v", first)
	}

	second := docs[1]
	if second.Source != domain.UnknownSource || second.DocType != domain.UnknownDocType {
		t.Fatalf("expected defaults, got %+v", second)
	}
	if second.Published == nil {
		t.Fatalf("expected date-only published to parse")
	}
}

func TestDocumentsMissingFileIsMalformedInput(t *testing.T) {
	_, err := New(filepath.Join(t.TempDir(), "missing.jsonl")).Documents(context.Background())
	if !domain.IsKind(err, domain.ErrMalformedInput) {
		t.Fatalf("expected ErrMalformedInput, got %v", err)
	}
}

func TestDocumentsExpandsGlob(t *testing.T) {
	dir := t.TempDir()
	nested := filepath.Join(dir, "eurlex", "2025")
	if err := os.MkdirAll(nested, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "a.jsonl"), []byte(`{"id":"a","title":"A"}`+"\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := os.WriteFile(filepath.Join(nested, "b.jsonl"), []byte(`{"id":"b","title":"B"}`+"\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := os.WriteFile(filepath.Join(nested, "ignored.txt"), []byte("x"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	docs, err := New(filepath.Join(dir, "**", "*.jsonl")).Documents(context.Background())
	if err != nil {
		t.Fatalf("Documents() error = %v", err)
	}
	if len(docs) != 2 {
		t.Fatalf("expected 2 documents, got %d", len(docs))
	}
}

func TestDocumentsGlobWithoutMatches(t *testing.T) {
	_, err := New(filepath.Join(t.TempDir(), "*.jsonl")).Documents(context.Background())
	if !domain.IsKind(err, domain.ErrMalformedInput) {
		t.Fatalf("expected ErrMalformedInput, got %v", err)
	}
}

func TestReadStreamSkipsOversizedLines(t *testing.T) {
	huge := `{"id":"big","summary":"` + strings.Repeat("x", 200*1024) + `"}`
	input := strings.Join([]string{
		`{"id":"a","title":"Before"}`,
		huge,
		`{"id":"b","title":"After"}`,
		huge,
	}, "\n")

	docs, err := readStream(context.Background(), strings.NewReader(input), "oversized", 1024)
	if err != nil {
		t.Fatalf("readStream() error = %v", err)
	}
	if len(docs) != 2 || docs[0].ID != "a" || docs[1].ID != "b" {
		t.Fatalf("expected the two short records, got %+v", docs)
	}
}

func TestReadStreamLastLineWithoutNewline(t *testing.T) {
	docs, err := ReadStream(context.Background(), strings.NewReader("\r\n"+`{"id":"only","title":"T"}`), "tail")
	if err != nil {
		t.Fatalf("ReadStream() error = %v", err)
	}
	if len(docs) != 1 || docs[0].ID != "only" {
		t.Fatalf("unexpected documents %+v", docs)
	}
}
