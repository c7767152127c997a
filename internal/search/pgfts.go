package search

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
)

// PgFTS implements Searcher using PostgreSQL full-text search over the
// context_files tsvector column, as a fallback when Meilisearch is down.
type PgFTS struct {
	db *sql.DB
}

// NewPgFTS creates a PostgreSQL FTS searcher.
func NewPgFTS(db *sql.DB) *PgFTS {
	return &PgFTS{db: db}
}

// Healthy always returns true — if Postgres is down, the whole subsystem
// is down.
func (p *PgFTS) Healthy() bool {
	return true
}

// Search runs plainto_tsquery over context_files, restricted to the
// requested layers and folders, ranked by ts_rank with ts_headline
// snippets.
func (p *PgFTS) Search(q Query) ([]Result, int, error) {
	if strings.TrimSpace(q.Text) == "" || len(q.Layers) == 0 {
		return nil, 0, nil
	}

	limit := q.Limit
	if limit <= 0 {
		limit = 20
	}
	offset := q.Offset
	if offset < 0 {
		offset = 0
	}

	args := []any{q.Text}
	argN := 2

	layerPh := make([]string, len(q.Layers))
	for i, layer := range q.Layers {
		layerPh[i] = fmt.Sprintf("$%d", argN)
		args = append(args, layer)
		argN++
	}
	where := fmt.Sprintf("fts @@ plainto_tsquery('english', $1) AND layer IN (%s)", strings.Join(layerPh, ", "))

	if len(q.Folders) > 0 {
		folderPh := make([]string, len(q.Folders))
		for i, folder := range q.Folders {
			folderPh[i] = fmt.Sprintf("$%d", argN)
			args = append(args, folder)
			argN++
		}
		where += fmt.Sprintf(" AND split_part(file_path, '/', 2) IN (%s)", strings.Join(folderPh, ", "))
	}

	countSQL := "SELECT count(*) FROM context_files WHERE " + where
	dataSQL := fmt.Sprintf(`
		SELECT file_path, layer,
			split_part(file_path, '/', 2) AS folder,
			regexp_replace(split_part(file_path, '/', 3), '\.md$', '') AS slug,
			title,
			ts_headline('english', body_text, plainto_tsquery('english', $1), 'MaxFragments=1,MaxWords=30') AS snippet,
			ts_rank(fts, plainto_tsquery('english', $1)) AS rank
		FROM context_files
		WHERE %s
		ORDER BY rank DESC
		LIMIT %d OFFSET %d`, where, limit, offset)

	ctx := context.Background()

	var total int
	if err := p.db.QueryRowContext(ctx, countSQL, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("pgfts count: %w", err)
	}

	rows, err := p.db.QueryContext(ctx, dataSQL, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("pgfts query: %w", err)
	}
	defer rows.Close()

	var results []Result
	for rows.Next() {
		var r Result
		var rank float64
		if err := rows.Scan(&r.FilePath, &r.Layer, &r.Folder, &r.Slug, &r.Title, &r.Snippet, &rank); err != nil {
			return nil, 0, fmt.Errorf("pgfts scan: %w", err)
		}
		r.ID = RecordID(r.FilePath)
		results = append(results, r)
	}

	return results, total, rows.Err()
}

// LoadAllRecords returns every indexable context document for full
// reindexing into Meilisearch.
func (p *PgFTS) LoadAllRecords(ctx context.Context) ([]ContextRecord, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT file_path, layer,
			split_part(file_path, '/', 2) AS folder,
			regexp_replace(split_part(file_path, '/', 3), '\.md$', '') AS slug,
			title, body_text
		FROM context_files
	`)
	if err != nil {
		return nil, fmt.Errorf("load context files: %w", err)
	}
	defer rows.Close()

	records := make([]ContextRecord, 0)
	for rows.Next() {
		var rec ContextRecord
		if err := rows.Scan(&rec.FilePath, &rec.Layer, &rec.Folder, &rec.Slug, &rec.Title, &rec.Body); err != nil {
			return nil, fmt.Errorf("scan context file: %w", err)
		}
		rec.ID = RecordID(rec.FilePath)
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate context files: %w", err)
	}
	return records, nil
}
