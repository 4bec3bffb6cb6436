// Package jsonl reads line-delimited DocumentRecords written by the
// ingestion connectors.
package jsonl

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/kirillkom/policy-radar/internal/core/domain"
)

const maxLineBytes = 8 << 20

// Reader loads every file matching a path or doublestar pattern such as
// "data/processed/**/*.jsonl".
type Reader struct {
	pattern string
}

func New(pattern string) *Reader {
	return &Reader{pattern: strings.TrimSpace(pattern)}
}

func (r *Reader) Documents(ctx context.Context) ([]domain.DocumentRecord, error) {
	files, err := r.files()
	if err != nil {
		return nil, err
	}

	var out []domain.DocumentRecord
	for _, path := range files {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		docs, err := readFile(ctx, path)
		if err != nil {
			return nil, err
		}
		out = append(out, docs...)
	}
	return out, nil
}

func (r *Reader) files() ([]string, error) {
	if r.pattern == "" {
		return nil, domain.WrapError(domain.ErrMalformedInput, "read documents", fmt.Errorf("no input path configured"))
	}
	if !strings.ContainsAny(r.pattern, "*?[{") {
		return []string{r.pattern}, nil
	}
	matches, err := doublestar.FilepathGlob(r.pattern)
	if err != nil {
		return nil, domain.WrapError(domain.ErrMalformedInput, "read documents", fmt.Errorf("glob %q: %w", r.pattern, err))
	}
	if len(matches) == 0 {
		return nil, domain.WrapError(domain.ErrMalformedInput, "read documents", fmt.Errorf("no files match %q", r.pattern))
	}
	sort.Strings(matches)
	return matches, nil
}

func readFile(ctx context.Context, path string) ([]domain.DocumentRecord, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, domain.WrapError(domain.ErrMalformedInput, "read documents", err)
	}
	defer f.Close()
	return ReadStream(ctx, f, path)
}

// ReadStream decodes one record per line. Blank lines are ignored; lines
// that do not decode or exceed maxLineBytes are logged and skipped.
func ReadStream(ctx context.Context, r io.Reader, name string) ([]domain.DocumentRecord, error) {
	return readStream(ctx, r, name, maxLineBytes)
}

func readStream(ctx context.Context, r io.Reader, name string, limit int) ([]domain.DocumentRecord, error) {
	br := bufio.NewReaderSize(r, 64*1024)

	var (
		out     []domain.DocumentRecord
		lineNo  int
		skipped int
	)
	for {
		raw, tooLong, err := nextLine(br, limit)
		if err != nil && !errors.Is(err, io.EOF) {
			return nil, domain.WrapError(domain.ErrMalformedInput, "read documents", fmt.Errorf("%s: %w", name, err))
		}
		atEOF := err != nil
		if atEOF && len(raw) == 0 && !tooLong {
			break
		}

		lineNo++
		if lineNo%1000 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		switch line := bytes.TrimSpace(raw); {
		case tooLong:
			skipped++
			slog.Warn("ingest_line_skipped", "file", name, "line", lineNo, "error", fmt.Sprintf("line longer than %d bytes", limit))
		case len(line) == 0:
		default:
			rec, err := decodeLine(line)
			if err != nil {
				skipped++
				slog.Warn("ingest_line_skipped", "file", name, "line", lineNo, "error", err)
				break
			}
			out = append(out, rec)
		}
		if atEOF {
			break
		}
	}

	slog.Info("documents_read", "file", name, "documents", len(out), "skipped_lines", skipped)
	return out, nil
}

// nextLine returns the next line without its newline. Lines longer than
// limit are drained and reported as tooLong without being buffered.
func nextLine(br *bufio.Reader, limit int) (line []byte, tooLong bool, err error) {
	for {
		fragment, err := br.ReadSlice('\n')
		if !tooLong {
			if len(line)+len(fragment) > limit+1 {
				tooLong, line = true, nil
			} else {
				line = append(line, fragment...)
			}
		}
		if errors.Is(err, bufio.ErrBufferFull) {
			continue
		}
		return bytes.TrimSuffix(line, []byte{'\n'}), tooLong, err
	}
}

type lineRecord struct {
	ID        string         `json:"id"`
	Source    string         `json:"source"`
	DocType   string         `json:"doc_type"`
	Title     string         `json:"title"`
	Summary   string         `json:"summary"`
	BodyText  string         `json:"body_text"`
	Language  string         `json:"language"`
	URL       string         `json:"url"`
	Published string         `json:"published"`
	Topics    []string       `json:"topics"`
	Extra     map[string]any `json:"extra"`
}

func decodeLine(line []byte) (domain.DocumentRecord, error) {
	var raw lineRecord
	if err := json.Unmarshal(line, &raw); err != nil {
		return domain.DocumentRecord{}, err
	}
	return domain.NormalizeRecord(domain.DocumentRecord{
		ID:        raw.ID,
		Source:    raw.Source,
		DocType:   raw.DocType,
		Title:     raw.Title,
		Summary:   raw.Summary,
		BodyText:  raw.BodyText,
		Language:  raw.Language,
		URL:       raw.URL,
		Published: domain.ParsePublished(raw.Published),
		Topics:    raw.Topics,
		Extra:     raw.Extra,
	}), nil
}
