// Package document implements the privacy-scoped context document store:
// save, get, list, search, merge, and delete over markdown-with-frontmatter
// files. Every operation resolves the storage path first and consults the
// access package before touching the record or blob store.
package document

import (
	"context"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"golang.org/x/crypto/blake2b"

	"humanos/substrate/internal/access"
	"humanos/substrate/internal/blob"
	"humanos/substrate/internal/search"
	"humanos/substrate/internal/store"
)

// Document is a parsed context file with its storage-derived scope.
type Document struct {
	FilePath     string
	Layer        access.Layer
	Scope        access.Scope
	Folder       string
	Slug         string
	Frontmatter  map[string]string
	Content      string
	Body         string
	ContentHash  string
	EntityID     string
	LastSyncedAt time.Time
}

// LayerContent is one layer's contribution to a merged context.
type LayerContent struct {
	Layer    access.Layer
	FilePath string
	Content  string
}

// MergedContext is the union of one entity's content across every layer
// the viewer may read, plus the links visible in those layers.
type MergedContext struct {
	Entity   store.Entity
	Layers   []LayerContent
	Outgoing []store.EntityLink
	Incoming []store.EntityLink
}

// SearchOptions narrows a full-text search.
type SearchOptions struct {
	Limit   int
	Folders []string
}

// ListOptions pages a folder listing.
type ListOptions struct {
	Limit  int
	Offset int
}

type recordStore interface {
	UpsertEntity(ctx context.Context, entity store.Entity) (store.Entity, error)
	GetEntityBySlug(ctx context.Context, slug string) (store.Entity, error)
	UpsertContextFile(ctx context.Context, file store.ContextFile) (store.ContextFile, error)
	GetContextFile(ctx context.Context, layer, filePath string) (store.ContextFile, error)
	FindContextFilesBySlug(ctx context.Context, slug string, layers []string) ([]store.ContextFile, error)
	DeleteContextFile(ctx context.Context, layer, filePath string) error
	ReplaceWikiLinks(ctx context.Context, layer, sourceSlug string, links []store.EntityLink) error
	DeleteWikiLinks(ctx context.Context, layer, sourceSlug string) error
	OutgoingLinks(ctx context.Context, slug string, layers, linkTypes []string) ([]store.EntityLink, error)
	IncomingLinks(ctx context.Context, slug string, layers, linkTypes []string) ([]store.EntityLink, error)
}

type blobStore interface {
	Bucket() string
	Upload(ctx context.Context, path string, content []byte) error
	Download(ctx context.Context, path string) ([]byte, error)
	Remove(ctx context.Context, path string) error
	List(ctx context.Context, prefix string) ([]string, error)
}

type searchService interface {
	Search(q search.Query) search.Response
	IndexContextFile(rec search.ContextRecord)
	DeleteContextFile(id string)
}

type revisionLog interface {
	Record(layerPath, relPath, content, author string) error
	Remove(layerPath, relPath, author string) error
}

// Store executes document operations for one viewer. Construct one per
// call with the caller's viewer; the backing stores are injected and owned
// by the caller. searcher and revisions may be nil.
type Store struct {
	viewer    access.Viewer
	records   recordStore
	blobs     blobStore
	searcher  searchService
	revisions revisionLog
}

func NewStore(viewer access.Viewer, records recordStore, blobs blobStore, searcher searchService, revisions revisionLog) *Store {
	return &Store{
		viewer:    viewer,
		records:   records,
		blobs:     blobs,
		searcher:  searcher,
		revisions: revisions,
	}
}

var folderEntityTypes = map[string]string{
	"people":        store.EntityPerson,
	"companies":     store.EntityCompany,
	"projects":      store.EntityProject,
	"goals":         store.EntityGoal,
	"tasks":         store.EntityTask,
	"relationships": store.EntityRelationship,
	"interactions":  store.EntityInteraction,
	"experts":       store.EntityExpert,
}

var validEntityTypes = map[string]struct{}{
	store.EntityPerson:       {},
	store.EntityCompany:      {},
	store.EntityProject:      {},
	store.EntityGoal:         {},
	store.EntityTask:         {},
	store.EntityRelationship: {},
	store.EntityInteraction:  {},
	store.EntityExpert:       {},
}

// Save writes a document with full-replace semantics, upserts its owning
// entity, and resyncs the document's derived wiki_link edges so edge state
// is a deterministic function of the latest body.
func (s *Store) Save(ctx context.Context, layer access.Layer, folder, slug, content string) (Document, error) {
	path, err := access.BuildPath(layer, folder, slug)
	if err != nil {
		return Document{}, configError(err.Error())
	}
	if !access.CanWrite(s.viewer, path) {
		return Document{}, accessDenied("cannot write " + path)
	}
	layerPath, err := layer.BucketPath()
	if err != nil {
		return Document{}, configError(err.Error())
	}

	frontmatter, body := ParseFrontmatter(content)
	hash := contentHash(content)

	if err := s.blobs.Upload(ctx, path, []byte(content)); err != nil {
		return Document{}, fmt.Errorf("upload document: %w", err)
	}

	entity := store.Entity{
		Slug:         slug,
		EntityType:   inferEntityType(frontmatter, folder),
		Name:         inferName(frontmatter, body, slug),
		Email:        frontmatter["email"],
		PrivacyScope: string(layer.Scope()),
	}
	switch layer.Kind {
	case access.LayerFounder:
		entity.OwnerID = layer.ID
	case access.LayerTenant:
		entity.TenantID = layer.ID
	}
	entity, err = s.records.UpsertEntity(ctx, entity)
	if err != nil {
		return Document{}, fmt.Errorf("upsert entity: %w", err)
	}

	entityID := entity.ID
	file, err := s.records.UpsertContextFile(ctx, store.ContextFile{
		EntityID:      &entityID,
		Layer:         layerPath,
		FilePath:      path,
		StorageBucket: s.blobs.Bucket(),
		Title:         entity.Name,
		BodyText:      body,
		ContentHash:   hash,
	})
	if err != nil {
		return Document{}, fmt.Errorf("upsert metadata: %w", err)
	}

	if entity.ID != "" {
		edges := wikiLinkEdges(layerPath, slug, body)
		if err := s.records.ReplaceWikiLinks(ctx, layerPath, slug, edges); err != nil {
			return Document{}, fmt.Errorf("sync wiki links: %w", err)
		}
	}

	if s.searcher != nil {
		s.searcher.IndexContextFile(search.ContextRecord{
			ID:       search.RecordID(path),
			FilePath: path,
			Layer:    layerPath,
			Folder:   folder,
			Slug:     slug,
			Title:    entity.Name,
			Body:     body,
		})
	}
	if s.revisions != nil {
		if err := s.revisions.Record(layerPath, folder+"/"+slug+".md", content, s.author()); err != nil {
			log.Printf("document: record revision %s: %v", path, err)
		}
	}

	return Document{
		FilePath:     path,
		Layer:        layer,
		Scope:        layer.Scope(),
		Folder:       folder,
		Slug:         slug,
		Frontmatter:  frontmatter,
		Content:      content,
		Body:         body,
		ContentHash:  hash,
		EntityID:     entity.ID,
		LastSyncedAt: file.LastSyncedAt,
	}, nil
}

// Get reads one document. A missing blob is a not-found outcome, distinct
// from storage failure.
func (s *Store) Get(ctx context.Context, layer access.Layer, folder, slug string) (Document, error) {
	path, err := access.BuildPath(layer, folder, slug)
	if err != nil {
		return Document{}, configError(err.Error())
	}
	if !access.CanRead(s.viewer, path) {
		return Document{}, accessDenied("cannot read " + path)
	}

	content, err := s.blobs.Download(ctx, path)
	if errors.Is(err, blob.ErrNotFound) {
		return Document{}, notFound(path)
	}
	if err != nil {
		return Document{}, fmt.Errorf("download document: %w", err)
	}

	frontmatter, body := ParseFrontmatter(string(content))
	doc := Document{
		FilePath:    path,
		Layer:       layer,
		Scope:       layer.Scope(),
		Folder:      folder,
		Slug:        slug,
		Frontmatter: frontmatter,
		Content:     string(content),
		Body:        body,
		ContentHash: contentHash(string(content)),
	}

	layerPath, _ := layer.BucketPath()
	file, err := s.records.GetContextFile(ctx, layerPath, path)
	switch {
	case err == nil:
		if file.EntityID != nil {
			doc.EntityID = *file.EntityID
		}
		doc.LastSyncedAt = file.LastSyncedAt
	case !errors.Is(err, sql.ErrNoRows):
		log.Printf("document: read metadata %s: %v", path, err)
	}
	return doc, nil
}

// GetMerged aggregates one entity's content across every layer the viewer
// may read. For founder layers the viewer does not own, the topic itself
// must have been explicitly shared; a sharer's other topics stay closed.
// Layers that error are skipped, not surfaced as partial failures.
func (s *Store) GetMerged(ctx context.Context, slug string) (MergedContext, error) {
	entity, err := s.records.GetEntityBySlug(ctx, slug)
	if errors.Is(err, sql.ErrNoRows) {
		return MergedContext{}, notFound("entity " + slug)
	}
	if err != nil {
		return MergedContext{}, fmt.Errorf("resolve entity: %w", err)
	}

	layers := access.AccessibleLayers(s.viewer)
	layers = append(layers, access.SharedFounderLayers(s.viewer, slug)...)
	layerPaths := bucketPaths(layers)

	files, err := s.records.FindContextFilesBySlug(ctx, slug, layerPaths)
	if err != nil {
		return MergedContext{}, fmt.Errorf("locate context files: %w", err)
	}

	merged := MergedContext{Entity: entity}
	for _, file := range files {
		content, err := s.blobs.Download(ctx, file.FilePath)
		if err != nil {
			log.Printf("document: merge skip %s: %v", file.FilePath, err)
			continue
		}
		fileLayer, ok := access.LayerFromPath(file.FilePath)
		if !ok {
			continue
		}
		merged.Layers = append(merged.Layers, LayerContent{
			Layer:    fileLayer,
			FilePath: file.FilePath,
			Content:  string(content),
		})
	}

	if outgoing, err := s.records.OutgoingLinks(ctx, slug, layerPaths, nil); err == nil {
		merged.Outgoing = outgoing
	} else {
		log.Printf("document: merge outgoing links %s: %v", slug, err)
	}
	if incoming, err := s.records.IncomingLinks(ctx, slug, layerPaths, nil); err == nil {
		merged.Incoming = incoming
	} else {
		log.Printf("document: merge incoming links %s: %v", slug, err)
	}
	return merged, nil
}

// Search runs a full-text query restricted to the viewer's accessible
// layers. Documents that fail to download after matching are skipped, not
// retried.
func (s *Store) Search(ctx context.Context, query string, opts SearchOptions) ([]Document, error) {
	if s.searcher == nil {
		return []Document{}, nil
	}

	resp := s.searcher.Search(search.Query{
		Text:    query,
		Layers:  bucketPaths(access.AccessibleLayers(s.viewer)),
		Folders: opts.Folders,
		Limit:   opts.Limit,
	})

	docs := make([]Document, 0, len(resp.Results))
	for _, result := range resp.Results {
		layer, folder, slug, ok := access.ParsePath(result.FilePath)
		if !ok || !access.CanRead(s.viewer, result.FilePath) {
			continue
		}
		content, err := s.blobs.Download(ctx, result.FilePath)
		if err != nil {
			log.Printf("document: search skip %s: %v", result.FilePath, err)
			continue
		}
		frontmatter, body := ParseFrontmatter(string(content))
		docs = append(docs, Document{
			FilePath:    result.FilePath,
			Layer:       layer,
			Scope:       layer.Scope(),
			Folder:      folder,
			Slug:        slug,
			Frontmatter: frontmatter,
			Content:     string(content),
			Body:        body,
			ContentHash: contentHash(string(content)),
		})
	}
	return docs, nil
}

// List pages the .md documents under one folder, dropping anything the
// viewer cannot read and anything that fails to download.
func (s *Store) List(ctx context.Context, layer access.Layer, folder string, opts ListOptions) ([]Document, error) {
	layerPath, err := layer.BucketPath()
	if err != nil {
		return nil, configError(err.Error())
	}

	paths, err := s.blobs.List(ctx, layerPath+"/"+folder)
	if err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}

	eligible := make([]string, 0, len(paths))
	for _, path := range paths {
		if !strings.HasSuffix(path, ".md") {
			continue
		}
		if !access.CanRead(s.viewer, path) {
			continue
		}
		eligible = append(eligible, path)
	}

	if opts.Offset > 0 {
		if opts.Offset >= len(eligible) {
			return []Document{}, nil
		}
		eligible = eligible[opts.Offset:]
	}
	if opts.Limit > 0 && opts.Limit < len(eligible) {
		eligible = eligible[:opts.Limit]
	}

	docs := make([]Document, 0, len(eligible))
	for _, path := range eligible {
		docLayer, docFolder, slug, ok := access.ParsePath(path)
		if !ok {
			continue
		}
		content, err := s.blobs.Download(ctx, path)
		if err != nil {
			log.Printf("document: list skip %s: %v", path, err)
			continue
		}
		frontmatter, body := ParseFrontmatter(string(content))
		docs = append(docs, Document{
			FilePath:    path,
			Layer:       docLayer,
			Scope:       docLayer.Scope(),
			Folder:      docFolder,
			Slug:        slug,
			Frontmatter: frontmatter,
			Content:     string(content),
			Body:        body,
			ContentHash: contentHash(string(content)),
		})
	}
	return docs, nil
}

// Delete removes the blob, the metadata row, and every wiki_link edge the
// document produced in its layer. The entity itself is left in place.
func (s *Store) Delete(ctx context.Context, layer access.Layer, folder, slug string) error {
	path, err := access.BuildPath(layer, folder, slug)
	if err != nil {
		return configError(err.Error())
	}
	if !access.CanWrite(s.viewer, path) {
		return accessDenied("cannot delete " + path)
	}
	layerPath, err := layer.BucketPath()
	if err != nil {
		return configError(err.Error())
	}

	if err := s.blobs.Remove(ctx, path); err != nil {
		return fmt.Errorf("remove blob: %w", err)
	}
	if err := s.records.DeleteContextFile(ctx, layerPath, path); err != nil {
		return fmt.Errorf("remove metadata: %w", err)
	}
	if err := s.records.DeleteWikiLinks(ctx, layerPath, slug); err != nil {
		return fmt.Errorf("remove wiki links: %w", err)
	}

	if s.searcher != nil {
		s.searcher.DeleteContextFile(search.RecordID(path))
	}
	if s.revisions != nil {
		if err := s.revisions.Remove(layerPath, folder+"/"+slug+".md", s.author()); err != nil {
			log.Printf("document: record deletion %s: %v", path, err)
		}
	}
	return nil
}

func (s *Store) author() string {
	if s.viewer.UserID != "" {
		return s.viewer.UserID
	}
	return "substrate"
}

func wikiLinkEdges(layerPath, sourceSlug, body string) []store.EntityLink {
	links := ExtractWikiLinks(body)
	edges := make([]store.EntityLink, 0, len(links))
	for _, link := range links {
		edges = append(edges, store.EntityLink{
			Layer:          layerPath,
			SourceSlug:     sourceSlug,
			TargetSlug:     link.TargetSlug,
			LinkType:       store.LinkWiki,
			LinkText:       link.LinkText,
			ContextSnippet: link.ContextSnippet,
			Strength:       1.0,
		})
	}
	return edges
}

func inferEntityType(frontmatter map[string]string, folder string) string {
	if declared := frontmatter["type"]; declared != "" {
		if _, ok := validEntityTypes[declared]; ok {
			return declared
		}
	}
	if inferred, ok := folderEntityTypes[folder]; ok {
		return inferred
	}
	return store.EntityInteraction
}

func inferName(frontmatter map[string]string, body, slug string) string {
	if name := strings.TrimSpace(frontmatter["name"]); name != "" {
		return name
	}
	if heading := firstHeading(body); heading != "" {
		return heading
	}
	return slug
}

func bucketPaths(layers []access.Layer) []string {
	paths := make([]string, 0, len(layers))
	for _, layer := range layers {
		if path, err := layer.BucketPath(); err == nil {
			paths = append(paths, path)
		}
	}
	return paths
}

func contentHash(content string) string {
	sum := blake2b.Sum256([]byte(content))
	return hex.EncodeToString(sum[:])
}
