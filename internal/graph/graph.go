// Package graph exposes node, edge, and traversal queries over the
// layer-scoped entity link graph. Edges live in exactly one layer; a
// viewer never sees an edge from a layer they cannot read, even when both
// endpoint slugs are visible elsewhere.
package graph

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"humanos/substrate/internal/access"
	"humanos/substrate/internal/store"
)

// Direction selects which edges GetConnections fetches.
type Direction string

const (
	DirectionOutgoing Direction = "outgoing"
	DirectionIncoming Direction = "incoming"
	DirectionBoth     Direction = "both"
)

const (
	defaultTraverseDepth = 3
	defaultPathDepth     = 6
	defaultRelatedLimit  = 20
)

type linkStore interface {
	GetEntityByID(ctx context.Context, id string) (store.Entity, error)
	GetEntityBySlug(ctx context.Context, slug string) (store.Entity, error)
	GetEntitiesBySlugs(ctx context.Context, slugs []string) ([]store.Entity, error)
	OutgoingLinks(ctx context.Context, slug string, layers, linkTypes []string) ([]store.EntityLink, error)
	IncomingLinks(ctx context.Context, slug string, layers, linkTypes []string) ([]store.EntityLink, error)
	OutgoingLinksForSlugs(ctx context.Context, slugs []string, layers, linkTypes []string) ([]store.EntityLink, error)
	UpsertLink(ctx context.Context, link store.EntityLink) error
	DeleteLink(ctx context.Context, sourceSlug, targetSlug, linkType, layer string) error
}

// Graph executes queries for one viewer against an injected link store.
type Graph struct {
	viewer access.Viewer
	links  linkStore
}

func New(viewer access.Viewer, links linkStore) *Graph {
	return &Graph{viewer: viewer, links: links}
}

// ConnectionOptions filters GetConnections.
type ConnectionOptions struct {
	Direction Direction
	LinkTypes []string
	Layers    []access.Layer
}

// Connections pairs the matching edges with their resolved neighbor nodes.
type Connections struct {
	Edges []store.EntityLink
	Nodes []store.Entity
}

// TraversalQuery drives a breadth-first walk from one start slug.
type TraversalQuery struct {
	Start       string
	MaxDepth    int
	LinkTypes   []string
	EntityTypes []string
	Layers      []access.Layer
}

// TraversalResult carries the visited subgraph. Paths maps each visited
// slug to a representative shortest path (in edge count) from the start.
type TraversalResult struct {
	Nodes []store.Entity
	Edges []store.EntityLink
	Paths map[string][]string
}

// PathOptions bounds FindPath.
type PathOptions struct {
	MaxDepth int
	Layers   []access.Layer
}

// LinkOptions configures CreateLink.
type LinkOptions struct {
	Layer          access.Layer
	Strength       float64
	LinkText       string
	ContextSnippet string
}

// RelatedOptions filters GetRelatedEntities.
type RelatedOptions struct {
	Limit        int
	ExcludeTypes []string
	Layers       []access.Layer
}

// ErrAccessDenied reports a link write into a layer the viewer cannot
// write.
var ErrAccessDenied = errors.New("graph: access denied")

// GetNode fetches a node by id. A missing node is (nil, nil).
func (g *Graph) GetNode(ctx context.Context, id string) (*store.Entity, error) {
	entity, err := g.links.GetEntityByID(ctx, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get node %s: %w", id, err)
	}
	return &entity, nil
}

// GetNodeBySlug fetches a node by slug. A missing node is (nil, nil).
func (g *Graph) GetNodeBySlug(ctx context.Context, slug string) (*store.Entity, error) {
	entity, err := g.links.GetEntityBySlug(ctx, slug)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get node %s: %w", slug, err)
	}
	return &entity, nil
}

// GetConnections fetches the edges touching slug in the requested
// direction, then resolves every neighboring slug in one batch.
func (g *Graph) GetConnections(ctx context.Context, slug string, opts ConnectionOptions) (Connections, error) {
	layers := g.layerPaths(opts.Layers)
	if len(layers) == 0 {
		return Connections{Edges: []store.EntityLink{}, Nodes: []store.Entity{}}, nil
	}

	direction := opts.Direction
	if direction == "" {
		direction = DirectionBoth
	}

	var edges []store.EntityLink
	if direction == DirectionOutgoing || direction == DirectionBoth {
		outgoing, err := g.links.OutgoingLinks(ctx, slug, layers, opts.LinkTypes)
		if err != nil {
			return Connections{}, fmt.Errorf("outgoing links: %w", err)
		}
		edges = append(edges, outgoing...)
	}
	if direction == DirectionIncoming || direction == DirectionBoth {
		incoming, err := g.links.IncomingLinks(ctx, slug, layers, opts.LinkTypes)
		if err != nil {
			return Connections{}, fmt.Errorf("incoming links: %w", err)
		}
		edges = append(edges, incoming...)
	}

	neighborSet := make(map[string]struct{})
	for _, edge := range edges {
		if edge.SourceSlug != slug {
			neighborSet[edge.SourceSlug] = struct{}{}
		}
		if edge.TargetSlug != slug {
			neighborSet[edge.TargetSlug] = struct{}{}
		}
	}
	nodes, err := g.links.GetEntitiesBySlugs(ctx, keys(neighborSet))
	if err != nil {
		return Connections{}, fmt.Errorf("resolve neighbors: %w", err)
	}

	if edges == nil {
		edges = []store.EntityLink{}
	}
	return Connections{Edges: edges, Nodes: nodes}, nil
}

// GetBacklinks returns the edges pointing at slug.
func (g *Graph) GetBacklinks(ctx context.Context, slug string, layers []access.Layer) ([]store.EntityLink, error) {
	paths := g.layerPaths(layers)
	if len(paths) == 0 {
		return []store.EntityLink{}, nil
	}
	return g.links.IncomingLinks(ctx, slug, paths, nil)
}

// GetOutgoingLinks returns the edges originating at slug.
func (g *Graph) GetOutgoingLinks(ctx context.Context, slug string, layers []access.Layer) ([]store.EntityLink, error) {
	paths := g.layerPaths(layers)
	if len(paths) == 0 {
		return []store.EntityLink{}, nil
	}
	return g.links.OutgoingLinks(ctx, slug, paths, nil)
}

// Traverse walks breadth-first from the start slug. Each slug is expanded
// at most once, so cycles terminate. The entity-type filter shapes the
// output only: traversal continues through excluded nodes. All edges for a
// frontier are fetched in one round-trip.
func (g *Graph) Traverse(ctx context.Context, query TraversalQuery) (TraversalResult, error) {
	empty := TraversalResult{Nodes: []store.Entity{}, Edges: []store.EntityLink{}, Paths: map[string][]string{}}

	layers := g.layerPaths(query.Layers)
	if len(layers) == 0 {
		return empty, nil
	}

	start, err := g.GetNodeBySlug(ctx, query.Start)
	if err != nil {
		return TraversalResult{}, err
	}
	if start == nil {
		return empty, nil
	}

	maxDepth := query.MaxDepth
	if maxDepth <= 0 {
		maxDepth = defaultTraverseDepth
	}

	visited := map[string]struct{}{query.Start: {}}
	paths := map[string][]string{query.Start: {query.Start}}
	frontier := []string{query.Start}
	var edges []store.EntityLink

	for depth := 0; depth < maxDepth && len(frontier) > 0; depth++ {
		frontierEdges, err := g.links.OutgoingLinksForSlugs(ctx, frontier, layers, query.LinkTypes)
		if err != nil {
			return TraversalResult{}, fmt.Errorf("expand frontier: %w", err)
		}
		edges = append(edges, frontierEdges...)

		var next []string
		for _, edge := range frontierEdges {
			if _, done := visited[edge.TargetSlug]; done {
				continue
			}
			visited[edge.TargetSlug] = struct{}{}
			paths[edge.TargetSlug] = appendPath(paths[edge.SourceSlug], edge.TargetSlug)
			next = append(next, edge.TargetSlug)
		}
		frontier = next
	}

	resolved, err := g.links.GetEntitiesBySlugs(ctx, keys(visited))
	if err != nil {
		return TraversalResult{}, fmt.Errorf("resolve visited nodes: %w", err)
	}

	nodes := make([]store.Entity, 0, len(resolved))
	for _, node := range resolved {
		if matchesTypes(node.EntityType, query.EntityTypes) {
			nodes = append(nodes, node)
		}
	}

	if edges == nil {
		edges = []store.EntityLink{}
	}
	return TraversalResult{Nodes: nodes, Edges: edges, Paths: paths}, nil
}

// FindPath returns a shortest path (in edge count) from start to end, or
// nil when none exists within MaxDepth edges. A missing start node yields
// nil, not an error.
func (g *Graph) FindPath(ctx context.Context, startSlug, endSlug string, opts PathOptions) ([]string, error) {
	layers := g.layerPaths(opts.Layers)
	if len(layers) == 0 {
		return nil, nil
	}

	start, err := g.GetNodeBySlug(ctx, startSlug)
	if err != nil {
		return nil, err
	}
	if start == nil {
		return nil, nil
	}
	if startSlug == endSlug {
		return []string{startSlug}, nil
	}

	maxDepth := opts.MaxDepth
	if maxDepth <= 0 {
		maxDepth = defaultPathDepth
	}

	visited := map[string]struct{}{startSlug: {}}
	paths := map[string][]string{startSlug: {startSlug}}
	frontier := []string{startSlug}

	for depth := 0; depth < maxDepth && len(frontier) > 0; depth++ {
		frontierEdges, err := g.links.OutgoingLinksForSlugs(ctx, frontier, layers, nil)
		if err != nil {
			return nil, fmt.Errorf("expand frontier: %w", err)
		}

		var next []string
		for _, edge := range frontierEdges {
			if _, done := visited[edge.TargetSlug]; done {
				continue
			}
			visited[edge.TargetSlug] = struct{}{}
			path := appendPath(paths[edge.SourceSlug], edge.TargetSlug)
			if edge.TargetSlug == endSlug {
				return path, nil
			}
			paths[edge.TargetSlug] = path
			next = append(next, edge.TargetSlug)
		}
		frontier = next
	}
	return nil, nil
}

// CreateLink upserts one authored edge. Calling twice with a different
// strength updates in place; the (layer, source, target, type) key never
// duplicates.
func (g *Graph) CreateLink(ctx context.Context, sourceSlug, targetSlug, linkType string, opts LinkOptions) error {
	if !access.CanWriteLayer(g.viewer, opts.Layer) {
		return fmt.Errorf("%w: layer %s", ErrAccessDenied, opts.Layer)
	}
	layerPath, err := opts.Layer.BucketPath()
	if err != nil {
		return err
	}

	strength := opts.Strength
	if strength == 0 {
		strength = 1.0
	}
	return g.links.UpsertLink(ctx, store.EntityLink{
		Layer:          layerPath,
		SourceSlug:     sourceSlug,
		TargetSlug:     targetSlug,
		LinkType:       linkType,
		LinkText:       opts.LinkText,
		ContextSnippet: opts.ContextSnippet,
		Strength:       strength,
	})
}

// DeleteLink removes matching edges. With layer == nil the match widens to
// every layer the viewer can write.
func (g *Graph) DeleteLink(ctx context.Context, sourceSlug, targetSlug, linkType string, layer *access.Layer) error {
	if layer != nil {
		if !access.CanWriteLayer(g.viewer, *layer) {
			return fmt.Errorf("%w: layer %s", ErrAccessDenied, *layer)
		}
		layerPath, err := layer.BucketPath()
		if err != nil {
			return err
		}
		return g.links.DeleteLink(ctx, sourceSlug, targetSlug, linkType, layerPath)
	}

	for _, candidate := range access.AccessibleLayers(g.viewer) {
		if !access.CanWriteLayer(g.viewer, candidate) {
			continue
		}
		layerPath, err := candidate.BucketPath()
		if err != nil {
			continue
		}
		if err := g.links.DeleteLink(ctx, sourceSlug, targetSlug, linkType, layerPath); err != nil {
			return err
		}
	}
	return nil
}

// GetRelatedEntities unions the outgoing targets of the seed slugs,
// drops the seeds themselves and any excluded types, and truncates to the
// limit.
func (g *Graph) GetRelatedEntities(ctx context.Context, slugs []string, opts RelatedOptions) ([]store.Entity, error) {
	layers := g.layerPaths(opts.Layers)
	if len(layers) == 0 || len(slugs) == 0 {
		return []store.Entity{}, nil
	}

	edges, err := g.links.OutgoingLinksForSlugs(ctx, slugs, layers, nil)
	if err != nil {
		return nil, fmt.Errorf("seed links: %w", err)
	}

	seeds := make(map[string]struct{}, len(slugs))
	for _, slug := range slugs {
		seeds[slug] = struct{}{}
	}
	targets := make(map[string]struct{})
	var ordered []string
	for _, edge := range edges {
		if _, isSeed := seeds[edge.TargetSlug]; isSeed {
			continue
		}
		if _, dup := targets[edge.TargetSlug]; dup {
			continue
		}
		targets[edge.TargetSlug] = struct{}{}
		ordered = append(ordered, edge.TargetSlug)
	}

	resolved, err := g.links.GetEntitiesBySlugs(ctx, ordered)
	if err != nil {
		return nil, fmt.Errorf("resolve related: %w", err)
	}
	byKey := make(map[string]store.Entity, len(resolved))
	for _, node := range resolved {
		byKey[node.Slug] = node
	}

	limit := opts.Limit
	if limit <= 0 {
		limit = defaultRelatedLimit
	}

	related := make([]store.Entity, 0, limit)
	for _, slug := range ordered {
		node, ok := byKey[slug]
		if !ok {
			continue
		}
		if excluded(node.EntityType, opts.ExcludeTypes) {
			continue
		}
		related = append(related, node)
		if len(related) >= limit {
			break
		}
	}
	return related, nil
}

// layerPaths intersects the requested layers with what the viewer may
// read; nil means every accessible layer.
func (g *Graph) layerPaths(requested []access.Layer) []string {
	layers := requested
	if layers == nil {
		layers = access.AccessibleLayers(g.viewer)
	}
	paths := make([]string, 0, len(layers))
	for _, layer := range layers {
		if !access.CanReadLayer(g.viewer, layer) {
			continue
		}
		if path, err := layer.BucketPath(); err == nil {
			paths = append(paths, path)
		}
	}
	return paths
}

func appendPath(base []string, slug string) []string {
	path := make([]string, 0, len(base)+1)
	path = append(path, base...)
	return append(path, slug)
}

func matchesTypes(entityType string, filter []string) bool {
	if len(filter) == 0 {
		return true
	}
	for _, t := range filter {
		if t == entityType {
			return true
		}
	}
	return false
}

func excluded(entityType string, excludeTypes []string) bool {
	for _, t := range excludeTypes {
		if t == entityType {
			return true
		}
	}
	return false
}

func keys(set map[string]struct{}) []string {
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	return out
}
