package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	"humanos/substrate/internal/util"
)

// PostgresStore holds the record-side state: entities, context file
// metadata, and the link graph. Content bytes live in the blob store.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) DB() *sql.DB {
	return s.db
}

// UpsertEntity creates or refreshes the entity row keyed by slug. The id is
// generated on first insert and preserved on conflict.
func (s *PostgresStore) UpsertEntity(ctx context.Context, entity Entity) (Entity, error) {
	metadata, err := json.Marshal(orEmpty(entity.Metadata))
	if err != nil {
		return Entity{}, fmt.Errorf("marshal entity metadata: %w", err)
	}
	if entity.ID == "" {
		entity.ID = util.NewID("ent")
	}

	const query = `
		INSERT INTO entities (id, slug, entity_type, name, email, metadata, owner_id, tenant_id, privacy_scope, source_system, source_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (slug) DO UPDATE SET
			entity_type = EXCLUDED.entity_type,
			name = EXCLUDED.name,
			metadata = EXCLUDED.metadata,
			privacy_scope = EXCLUDED.privacy_scope,
			updated_at = NOW()
		RETURNING id, created_at, updated_at
	`
	err = s.db.QueryRowContext(ctx, query,
		entity.ID, entity.Slug, entity.EntityType, entity.Name, entity.Email,
		metadata, nullable(entity.OwnerID), nullable(entity.TenantID),
		entity.PrivacyScope, nullable(entity.SourceSystem), nullable(entity.SourceID),
	).Scan(&entity.ID, &entity.CreatedAt, &entity.UpdatedAt)
	if err != nil {
		return Entity{}, fmt.Errorf("upsert entity: %w", err)
	}
	return entity, nil
}

func (s *PostgresStore) GetEntityByID(ctx context.Context, id string) (Entity, error) {
	return s.getEntity(ctx, `WHERE id = $1`, id)
}

func (s *PostgresStore) GetEntityBySlug(ctx context.Context, slug string) (Entity, error) {
	return s.getEntity(ctx, `WHERE slug = $1`, slug)
}

func (s *PostgresStore) getEntity(ctx context.Context, where string, arg any) (Entity, error) {
	query := `
		SELECT id, slug, entity_type, name, coalesce(email, ''), metadata,
			coalesce(owner_id, ''), coalesce(tenant_id, ''), privacy_scope,
			coalesce(source_system, ''), coalesce(source_id, ''), created_at, updated_at
		FROM entities ` + where
	var entity Entity
	var metadata []byte
	err := s.db.QueryRowContext(ctx, query, arg).Scan(
		&entity.ID, &entity.Slug, &entity.EntityType, &entity.Name, &entity.Email,
		&metadata, &entity.OwnerID, &entity.TenantID, &entity.PrivacyScope,
		&entity.SourceSystem, &entity.SourceID, &entity.CreatedAt, &entity.UpdatedAt,
	)
	if err != nil {
		return Entity{}, err
	}
	if err := json.Unmarshal(metadata, &entity.Metadata); err != nil {
		return Entity{}, fmt.Errorf("decode entity metadata: %w", err)
	}
	return entity, nil
}

// GetEntitiesBySlugs resolves a batch of slugs in one round-trip. Missing
// slugs are simply absent from the result.
func (s *PostgresStore) GetEntitiesBySlugs(ctx context.Context, slugs []string) ([]Entity, error) {
	if len(slugs) == 0 {
		return []Entity{}, nil
	}
	placeholders, args := placeholderList(slugs, 1)
	query := fmt.Sprintf(`
		SELECT id, slug, entity_type, name, coalesce(email, ''), metadata,
			coalesce(owner_id, ''), coalesce(tenant_id, ''), privacy_scope,
			coalesce(source_system, ''), coalesce(source_id, ''), created_at, updated_at
		FROM entities
		WHERE slug IN (%s)
	`, placeholders)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("batch entities: %w", err)
	}
	defer rows.Close()

	entities := make([]Entity, 0, len(slugs))
	for rows.Next() {
		var entity Entity
		var metadata []byte
		if err := rows.Scan(
			&entity.ID, &entity.Slug, &entity.EntityType, &entity.Name, &entity.Email,
			&metadata, &entity.OwnerID, &entity.TenantID, &entity.PrivacyScope,
			&entity.SourceSystem, &entity.SourceID, &entity.CreatedAt, &entity.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan entity: %w", err)
		}
		if err := json.Unmarshal(metadata, &entity.Metadata); err != nil {
			return nil, fmt.Errorf("decode entity metadata: %w", err)
		}
		entities = append(entities, entity)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate entities: %w", err)
	}
	return entities, nil
}

// UpsertContextFile writes the metadata row keyed by (layer, file_path).
func (s *PostgresStore) UpsertContextFile(ctx context.Context, file ContextFile) (ContextFile, error) {
	if file.ID == "" {
		file.ID = util.NewID("ctx")
	}
	const query = `
		INSERT INTO context_files (id, entity_id, layer, file_path, storage_bucket, title, body_text, content_hash, last_synced_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NOW())
		ON CONFLICT (layer, file_path) DO UPDATE SET
			entity_id = EXCLUDED.entity_id,
			title = EXCLUDED.title,
			body_text = EXCLUDED.body_text,
			content_hash = EXCLUDED.content_hash,
			last_synced_at = NOW()
		RETURNING id, created_at, last_synced_at
	`
	err := s.db.QueryRowContext(ctx, query,
		file.ID, file.EntityID, file.Layer, file.FilePath, file.StorageBucket,
		file.Title, file.BodyText, file.ContentHash,
	).Scan(&file.ID, &file.CreatedAt, &file.LastSyncedAt)
	if err != nil {
		return ContextFile{}, fmt.Errorf("upsert context file: %w", err)
	}
	return file, nil
}

func (s *PostgresStore) GetContextFile(ctx context.Context, layer, filePath string) (ContextFile, error) {
	const query = `
		SELECT id, entity_id, layer, file_path, storage_bucket, title, body_text, content_hash, last_synced_at, created_at
		FROM context_files
		WHERE layer = $1 AND file_path = $2
	`
	var file ContextFile
	err := s.db.QueryRowContext(ctx, query, layer, filePath).Scan(
		&file.ID, &file.EntityID, &file.Layer, &file.FilePath, &file.StorageBucket,
		&file.Title, &file.BodyText, &file.ContentHash, &file.LastSyncedAt, &file.CreatedAt,
	)
	if err != nil {
		return ContextFile{}, err
	}
	return file, nil
}

// FindContextFilesBySlug locates metadata rows for a slug across the given
// layers, regardless of folder.
func (s *PostgresStore) FindContextFilesBySlug(ctx context.Context, slug string, layers []string) ([]ContextFile, error) {
	if len(layers) == 0 {
		return []ContextFile{}, nil
	}
	placeholders, args := placeholderList(layers, 2)
	query := fmt.Sprintf(`
		SELECT id, entity_id, layer, file_path, storage_bucket, title, body_text, content_hash, last_synced_at, created_at
		FROM context_files
		WHERE file_path LIKE '%%/' || $1 || '.md' AND layer IN (%s)
	`, placeholders)

	rows, err := s.db.QueryContext(ctx, query, append([]any{slug}, args...)...)
	if err != nil {
		return nil, fmt.Errorf("find context files: %w", err)
	}
	defer rows.Close()

	files := make([]ContextFile, 0)
	for rows.Next() {
		var file ContextFile
		if err := rows.Scan(
			&file.ID, &file.EntityID, &file.Layer, &file.FilePath, &file.StorageBucket,
			&file.Title, &file.BodyText, &file.ContentHash, &file.LastSyncedAt, &file.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan context file: %w", err)
		}
		files = append(files, file)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate context files: %w", err)
	}
	return files, nil
}

func (s *PostgresStore) DeleteContextFile(ctx context.Context, layer, filePath string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM context_files WHERE layer = $1 AND file_path = $2`, layer, filePath); err != nil {
		return fmt.Errorf("delete context file: %w", err)
	}
	return nil
}

// UpsertLink writes one edge, updating strength and text in place when the
// (layer, source, target, type) key already exists.
func (s *PostgresStore) UpsertLink(ctx context.Context, link EntityLink) error {
	if link.ID == "" {
		link.ID = util.NewID("lnk")
	}
	const query = `
		INSERT INTO entity_links (id, layer, source_slug, target_slug, link_type, link_text, context_snippet, strength)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (layer, source_slug, target_slug, link_type) DO UPDATE SET
			link_text = EXCLUDED.link_text,
			context_snippet = EXCLUDED.context_snippet,
			strength = EXCLUDED.strength
	`
	_, err := s.db.ExecContext(ctx, query,
		link.ID, link.Layer, link.SourceSlug, link.TargetSlug, link.LinkType,
		link.LinkText, link.ContextSnippet, link.Strength,
	)
	if err != nil {
		return fmt.Errorf("upsert link: %w", err)
	}
	return nil
}

// ReplaceWikiLinks swaps the full wiki_link edge set for one source in one
// layer. Delete and reinsert run in a single transaction so readers never
// observe a partially synced edge set.
func (s *PostgresStore) ReplaceWikiLinks(ctx context.Context, layer, sourceSlug string, links []EntityLink) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin wiki link sync: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `
		DELETE FROM entity_links
		WHERE layer = $1 AND source_slug = $2 AND link_type = $3
	`, layer, sourceSlug, LinkWiki); err != nil {
		return fmt.Errorf("clear wiki links: %w", err)
	}

	const insert = `
		INSERT INTO entity_links (id, layer, source_slug, target_slug, link_type, link_text, context_snippet, strength)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (layer, source_slug, target_slug, link_type) DO UPDATE SET
			link_text = EXCLUDED.link_text,
			context_snippet = EXCLUDED.context_snippet,
			strength = EXCLUDED.strength
	`
	for _, link := range links {
		id := link.ID
		if id == "" {
			id = util.NewID("lnk")
		}
		if _, err := tx.ExecContext(ctx, insert,
			id, layer, sourceSlug, link.TargetSlug, LinkWiki,
			link.LinkText, link.ContextSnippet, link.Strength,
		); err != nil {
			return fmt.Errorf("insert wiki link %s -> %s: %w", sourceSlug, link.TargetSlug, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit wiki link sync: %w", err)
	}
	return nil
}

// DeleteWikiLinks removes every wiki_link edge a document produced in its
// layer. Called when the document itself is deleted.
func (s *PostgresStore) DeleteWikiLinks(ctx context.Context, layer, sourceSlug string) error {
	if _, err := s.db.ExecContext(ctx, `
		DELETE FROM entity_links
		WHERE layer = $1 AND source_slug = $2 AND link_type = $3
	`, layer, sourceSlug, LinkWiki); err != nil {
		return fmt.Errorf("delete wiki links: %w", err)
	}
	return nil
}

// DeleteLink removes matching edges. An empty layer matches every layer;
// callers must opt into that broader match deliberately.
func (s *PostgresStore) DeleteLink(ctx context.Context, sourceSlug, targetSlug, linkType, layer string) error {
	query := `DELETE FROM entity_links WHERE source_slug = $1 AND target_slug = $2 AND link_type = $3`
	args := []any{sourceSlug, targetSlug, linkType}
	if layer != "" {
		query += ` AND layer = $4`
		args = append(args, layer)
	}
	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("delete link: %w", err)
	}
	return nil
}

// OutgoingLinks returns edges whose source is slug, restricted to the given
// layers and, when provided, link types.
func (s *PostgresStore) OutgoingLinks(ctx context.Context, slug string, layers, linkTypes []string) ([]EntityLink, error) {
	return s.queryLinks(ctx, "source_slug", []string{slug}, layers, linkTypes)
}

// IncomingLinks returns edges whose target is slug.
func (s *PostgresStore) IncomingLinks(ctx context.Context, slug string, layers, linkTypes []string) ([]EntityLink, error) {
	return s.queryLinks(ctx, "target_slug", []string{slug}, layers, linkTypes)
}

// OutgoingLinksForSlugs fetches all outgoing edges for a BFS frontier in
// one round-trip.
func (s *PostgresStore) OutgoingLinksForSlugs(ctx context.Context, slugs []string, layers, linkTypes []string) ([]EntityLink, error) {
	return s.queryLinks(ctx, "source_slug", slugs, layers, linkTypes)
}

func (s *PostgresStore) queryLinks(ctx context.Context, column string, slugs, layers, linkTypes []string) ([]EntityLink, error) {
	if len(slugs) == 0 || len(layers) == 0 {
		return []EntityLink{}, nil
	}

	var clauses []string
	var args []any
	next := 1

	slugPh, slugArgs := placeholderList(slugs, next)
	clauses = append(clauses, fmt.Sprintf("%s IN (%s)", column, slugPh))
	args = append(args, slugArgs...)
	next += len(slugs)

	layerPh, layerArgs := placeholderList(layers, next)
	clauses = append(clauses, fmt.Sprintf("layer IN (%s)", layerPh))
	args = append(args, layerArgs...)
	next += len(layers)

	if len(linkTypes) > 0 {
		typePh, typeArgs := placeholderList(linkTypes, next)
		clauses = append(clauses, fmt.Sprintf("link_type IN (%s)", typePh))
		args = append(args, typeArgs...)
	}

	query := fmt.Sprintf(`
		SELECT id, layer, source_slug, target_slug, link_type, link_text, context_snippet, strength, created_at
		FROM entity_links
		WHERE %s
		ORDER BY created_at
	`, strings.Join(clauses, " AND "))

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query links: %w", err)
	}
	defer rows.Close()

	links := make([]EntityLink, 0)
	for rows.Next() {
		var link EntityLink
		if err := rows.Scan(
			&link.ID, &link.Layer, &link.SourceSlug, &link.TargetSlug, &link.LinkType,
			&link.LinkText, &link.ContextSnippet, &link.Strength, &link.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan link: %w", err)
		}
		links = append(links, link)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate links: %w", err)
	}
	return links, nil
}

func placeholderList(values []string, start int) (string, []any) {
	placeholders := make([]string, len(values))
	args := make([]any, len(values))
	for i, v := range values {
		placeholders[i] = fmt.Sprintf("$%d", start+i)
		args[i] = v
	}
	return strings.Join(placeholders, ", "), args
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func orEmpty(m map[string]any) map[string]any {
	if m == nil {
		return map[string]any{}
	}
	return m
}
