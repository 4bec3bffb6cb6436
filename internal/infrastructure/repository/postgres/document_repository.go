package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/kirillkom/policy-radar/internal/core/domain"
)

// DocumentSource stores connector output in policy_documents and serves it
// as a rebuild batch.
type DocumentSource struct {
	db *sql.DB
}

func NewDocumentSource(db *sql.DB) *DocumentSource {
	return &DocumentSource{db: db}
}

func OpenDB(dsn string) (*sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("sql open: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(30 * time.Minute)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("db ping: %w", err)
	}
	return db, nil
}

func (s *DocumentSource) EnsureSchema(ctx context.Context) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin schema tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	// Serialize bootstrap DDL across api/worker/cli startups.
	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1)`, int64(2025031501)); err != nil {
		return fmt.Errorf("acquire schema lock: %w", err)
	}

	const query = `
CREATE TABLE IF NOT EXISTS policy_documents (
	id TEXT PRIMARY KEY,
	source TEXT NOT NULL,
	doc_type TEXT NOT NULL,
	title TEXT NOT NULL DEFAULT '',
	summary TEXT NOT NULL DEFAULT '',
	body_text TEXT NOT NULL DEFAULT '',
	language TEXT NOT NULL DEFAULT '',
	url TEXT NOT NULL DEFAULT '',
	published TIMESTAMPTZ,
	topics JSONB NOT NULL DEFAULT '[]'::jsonb,
	extra JSONB NOT NULL DEFAULT '{}'::jsonb,
	updated_at TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_policy_documents_source ON policy_documents(source);
CREATE INDEX IF NOT EXISTS idx_policy_documents_published ON policy_documents(published DESC);
`
	if _, err := tx.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("execute schema ddl: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit schema tx: %w", err)
	}
	return nil
}

func (s *DocumentSource) Upsert(ctx context.Context, rec domain.DocumentRecord) error {
	rec = domain.NormalizeRecord(rec)
	if rec.ID == "" {
		return domain.WrapError(domain.ErrInvalidInput, "upsert policy document", fmt.Errorf("document id is required"))
	}
	topicsJSON, err := json.Marshal(rec.Topics)
	if err != nil {
		return fmt.Errorf("marshal topics: %w", err)
	}
	extraJSON, err := json.Marshal(rec.Extra)
	if err != nil {
		return fmt.Errorf("marshal extra: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
INSERT INTO policy_documents (
	id, source, doc_type, title, summary, body_text, language, url, published, topics, extra, updated_at
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
ON CONFLICT (id) DO UPDATE SET
	source = EXCLUDED.source,
	doc_type = EXCLUDED.doc_type,
	title = EXCLUDED.title,
	summary = EXCLUDED.summary,
	body_text = EXCLUDED.body_text,
	language = EXCLUDED.language,
	url = EXCLUDED.url,
	published = EXCLUDED.published,
	topics = EXCLUDED.topics,
	extra = EXCLUDED.extra,
	updated_at = EXCLUDED.updated_at
`,
		rec.ID, rec.Source, rec.DocType, rec.Title, rec.Summary, rec.BodyText, rec.Language, rec.URL,
		nullableTime(rec.Published), topicsJSON, extraJSON, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("upsert policy document: %w", err)
	}
	return nil
}

// Documents returns every stored record ordered by id. Rows whose JSON
// columns do not decode are skipped like malformed JSONL lines.
func (s *DocumentSource) Documents(ctx context.Context) ([]domain.DocumentRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT id, source, doc_type, title, summary, body_text, language, url, published, topics, extra
FROM policy_documents
ORDER BY id
`)
	if err != nil {
		return nil, domain.WrapError(domain.ErrMalformedInput, "query policy documents", err)
	}
	defer rows.Close()

	var out []domain.DocumentRecord
	for rows.Next() {
		var (
			rec       domain.DocumentRecord
			published sql.NullTime
			topicsRaw []byte
			extraRaw  []byte
		)
		if err := rows.Scan(
			&rec.ID, &rec.Source, &rec.DocType, &rec.Title, &rec.Summary, &rec.BodyText,
			&rec.Language, &rec.URL, &published, &topicsRaw, &extraRaw,
		); err != nil {
			return nil, fmt.Errorf("scan policy document: %w", err)
		}
		if err := json.Unmarshal(topicsRaw, &rec.Topics); err != nil {
			slog.Warn("policy_document_skipped", "doc_id", rec.ID, "column", "topics", "error", err)
			continue
		}
		if err := json.Unmarshal(extraRaw, &rec.Extra); err != nil {
			slog.Warn("policy_document_skipped", "doc_id", rec.ID, "column", "extra", "error", err)
			continue
		}
		if published.Valid {
			ts := published.Time.UTC()
			rec.Published = &ts
		}
		out = append(out, domain.NormalizeRecord(rec))
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate policy documents: %w", err)
	}
	return out, nil
}

func nullableTime(ts *time.Time) any {
	if ts == nil {
		return nil
	}
	return ts.UTC()
}
