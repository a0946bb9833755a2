package index

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"unicode"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/govdata/cms-search-sync/internal/document"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS documents (
	id INTEGER PRIMARY KEY,
	title TEXT NOT NULL,
	preamble TEXT NOT NULL,
	targetlink TEXT NOT NULL,
	metadata TEXT NOT NULL,
	type TEXT NOT NULL DEFAULT '',
	modified TEXT NOT NULL DEFAULT ''
);

CREATE VIRTUAL TABLE IF NOT EXISTS documents_fts USING fts5(
	title, preamble,
	content='documents',
	content_rowid='id'
);

CREATE TRIGGER IF NOT EXISTS documents_ai AFTER INSERT ON documents BEGIN
	INSERT INTO documents_fts(rowid, title, preamble)
	VALUES (new.id, new.title, new.preamble);
END;

CREATE TRIGGER IF NOT EXISTS documents_ad AFTER DELETE ON documents BEGIN
	INSERT INTO documents_fts(documents_fts, rowid, title, preamble)
	VALUES ('delete', old.id, old.title, old.preamble);
END;

CREATE TRIGGER IF NOT EXISTS documents_au AFTER UPDATE ON documents BEGIN
	INSERT INTO documents_fts(documents_fts, rowid, title, preamble)
	VALUES ('delete', old.id, old.title, old.preamble);
	INSERT INTO documents_fts(rowid, title, preamble)
	VALUES (new.id, new.title, new.preamble);
END;
`

const upsertDocument = `INSERT INTO documents (id, title, preamble, targetlink, metadata, type, modified)
VALUES (?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(id) DO UPDATE SET
	title = excluded.title,
	preamble = excluded.preamble,
	targetlink = excluded.targetlink,
	metadata = excluded.metadata,
	type = excluded.type,
	modified = excluded.modified`

// SearchResult is one hit of a local index search.
type SearchResult struct {
	ID         int64  `json:"id" db:"id"`
	Title      string `json:"title" db:"title"`
	TargetLink string `json:"targetlink" db:"targetlink"`
	Type       string `json:"type" db:"type"`
	Modified   string `json:"modified" db:"modified"`
}

type SearchResponse struct {
	Total   uint64         `json:"total"`
	Results []SearchResult `json:"results"`
}

// Searcher is implemented by index clients that can also answer queries.
type Searcher interface {
	Search(ctx context.Context, query string, limit, offset int) (SearchResponse, error)
}

// SQLiteClient keeps the index in a local SQLite full-text database, for
// development setups without the service facade.
type SQLiteClient struct {
	db *sqlx.DB
}

func NewSQLiteClient(path string) (*SQLiteClient, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create index dir: %w", err)
	}
	db, err := sqlx.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open index db: %w", err)
	}
	db.SetMaxOpenConns(1)
	for _, pragma := range []string{"PRAGMA journal_mode=WAL", "PRAGMA busy_timeout=5000"} {
		if _, err := db.Exec(pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("%s: %w", pragma, err)
		}
	}
	if _, err := db.Exec(sqliteSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}
	return &SQLiteClient{db: db}, nil
}

func (c *SQLiteClient) Save(ctx context.Context, doc *document.Document) error {
	_, err := c.db.ExecContext(ctx, upsertDocument,
		doc.ID, doc.Title, doc.Preamble, doc.TargetLink, doc.Metadata, doc.Type, doc.Modified)
	if err != nil {
		return fmt.Errorf("save document %d: %w", doc.ID, err)
	}
	return nil
}

func (c *SQLiteClient) Delete(ctx context.Context, pageID int64) error {
	if _, err := c.db.ExecContext(ctx, `DELETE FROM documents WHERE id = ?`, pageID); err != nil {
		return fmt.Errorf("delete document %d: %w", pageID, err)
	}
	return nil
}

func (c *SQLiteClient) ClearAll(ctx context.Context) error {
	if _, err := c.db.ExecContext(ctx, `DELETE FROM documents`); err != nil {
		return fmt.Errorf("clear index: %w", err)
	}
	return nil
}

// Search runs a prefix full-text query over titles and preambles.
func (c *SQLiteClient) Search(ctx context.Context, query string, limit, offset int) (SearchResponse, error) {
	resp := SearchResponse{Results: make([]SearchResult, 0)}
	query = sanitizeQuery(query)
	if query == "" {
		return resp, nil
	}
	if limit <= 0 {
		limit = 50
	}

	rows, err := c.db.QueryxContext(ctx, `SELECT d.id, d.title, d.targetlink, d.type, d.modified, COUNT(*) OVER() AS total
		FROM documents_fts f
		JOIN documents d ON d.id = f.rowid
		WHERE documents_fts MATCH ?
		ORDER BY f.rank LIMIT ? OFFSET ?`, query, limit, offset)
	if err != nil {
		return SearchResponse{}, fmt.Errorf("search query: %w", err)
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		var row struct {
			SearchResult
			Total uint64 `db:"total"`
		}
		if err := rows.StructScan(&row); err != nil {
			return SearchResponse{}, fmt.Errorf("scan result: %w", err)
		}
		resp.Total = row.Total
		resp.Results = append(resp.Results, row.SearchResult)
	}
	if err := rows.Err(); err != nil {
		return SearchResponse{}, fmt.Errorf("iterate results: %w", err)
	}
	return resp, nil
}

func (c *SQLiteClient) Close() error {
	return c.db.Close()
}

// sanitizeQuery turns free text into quoted FTS5 prefix terms, dropping
// operators and punctuation.
func sanitizeQuery(q string) string {
	mapped := strings.Map(func(r rune) rune {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || r == '-' || r == '_' || r == '.' {
			return r
		}
		return ' '
	}, q)

	var terms []string
	for _, t := range strings.Fields(mapped) {
		switch strings.ToUpper(t) {
		case "AND", "OR", "NOT", "NEAR":
			continue
		}
		terms = append(terms, `"`+t+`"*`)
	}
	return strings.Join(terms, " ")
}
