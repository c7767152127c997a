package graph

import (
	"context"
	"database/sql"
	"errors"
	"reflect"
	"testing"

	"humanos/substrate/internal/access"
	"humanos/substrate/internal/store"
)

type fakeLinks struct {
	entities map[string]store.Entity
	edges    []store.EntityLink
}

func newFakeLinks(slugs ...string) *fakeLinks {
	f := &fakeLinks{entities: make(map[string]store.Entity)}
	for _, slug := range slugs {
		f.addEntity(slug, store.EntityPerson)
	}
	return f
}

func (f *fakeLinks) addEntity(slug, entityType string) {
	f.entities[slug] = store.Entity{ID: "ent-" + slug, Slug: slug, EntityType: entityType, Name: slug}
}

func (f *fakeLinks) addEdge(layer, source, target, linkType string) {
	f.edges = append(f.edges, store.EntityLink{
		Layer: layer, SourceSlug: source, TargetSlug: target, LinkType: linkType, Strength: 1.0,
	})
}

func (f *fakeLinks) GetEntityByID(_ context.Context, id string) (store.Entity, error) {
	for _, entity := range f.entities {
		if entity.ID == id {
			return entity, nil
		}
	}
	return store.Entity{}, sql.ErrNoRows
}

func (f *fakeLinks) GetEntityBySlug(_ context.Context, slug string) (store.Entity, error) {
	entity, ok := f.entities[slug]
	if !ok {
		return store.Entity{}, sql.ErrNoRows
	}
	return entity, nil
}

func (f *fakeLinks) GetEntitiesBySlugs(_ context.Context, slugs []string) ([]store.Entity, error) {
	var out []store.Entity
	for _, slug := range slugs {
		if entity, ok := f.entities[slug]; ok {
			out = append(out, entity)
		}
	}
	return out, nil
}

func (f *fakeLinks) filter(layers, linkTypes []string, match func(store.EntityLink) bool) []store.EntityLink {
	layerSet := make(map[string]struct{}, len(layers))
	for _, l := range layers {
		layerSet[l] = struct{}{}
	}
	var out []store.EntityLink
	for _, edge := range f.edges {
		if _, ok := layerSet[edge.Layer]; !ok {
			continue
		}
		if len(linkTypes) > 0 {
			typed := false
			for _, t := range linkTypes {
				if t == edge.LinkType {
					typed = true
					break
				}
			}
			if !typed {
				continue
			}
		}
		if match(edge) {
			out = append(out, edge)
		}
	}
	return out
}

func (f *fakeLinks) OutgoingLinks(_ context.Context, slug string, layers, linkTypes []string) ([]store.EntityLink, error) {
	return f.filter(layers, linkTypes, func(e store.EntityLink) bool { return e.SourceSlug == slug }), nil
}

func (f *fakeLinks) IncomingLinks(_ context.Context, slug string, layers, linkTypes []string) ([]store.EntityLink, error) {
	return f.filter(layers, linkTypes, func(e store.EntityLink) bool { return e.TargetSlug == slug }), nil
}

func (f *fakeLinks) OutgoingLinksForSlugs(_ context.Context, slugs []string, layers, linkTypes []string) ([]store.EntityLink, error) {
	slugSet := make(map[string]struct{}, len(slugs))
	for _, s := range slugs {
		slugSet[s] = struct{}{}
	}
	return f.filter(layers, linkTypes, func(e store.EntityLink) bool {
		_, ok := slugSet[e.SourceSlug]
		return ok
	}), nil
}

func (f *fakeLinks) UpsertLink(_ context.Context, link store.EntityLink) error {
	for i, edge := range f.edges {
		if edge.Layer == link.Layer && edge.SourceSlug == link.SourceSlug &&
			edge.TargetSlug == link.TargetSlug && edge.LinkType == link.LinkType {
			f.edges[i] = link
			return nil
		}
	}
	f.edges = append(f.edges, link)
	return nil
}

func (f *fakeLinks) DeleteLink(_ context.Context, sourceSlug, targetSlug, linkType, layer string) error {
	kept := f.edges[:0]
	for _, edge := range f.edges {
		if edge.SourceSlug == sourceSlug && edge.TargetSlug == targetSlug && edge.LinkType == linkType &&
			(layer == "" || edge.Layer == layer) {
			continue
		}
		kept = append(kept, edge)
	}
	f.edges = kept
	return nil
}

func founderGraph(links *fakeLinks) *Graph {
	return New(access.Viewer{UserID: "u1"}, links)
}

func TestTraverseCycleTerminates(t *testing.T) {
	links := newFakeLinks("a", "b", "c")
	links.addEdge("founder-u1", "a", "b", store.LinkWiki)
	links.addEdge("founder-u1", "b", "c", store.LinkWiki)
	links.addEdge("founder-u1", "c", "a", store.LinkWiki)

	result, err := founderGraph(links).Traverse(context.Background(), TraversalQuery{Start: "a", MaxDepth: 10})
	if err != nil {
		t.Fatalf("Traverse() error = %v", err)
	}
	if len(result.Nodes) != 3 {
		t.Errorf("nodes = %d, want 3", len(result.Nodes))
	}
	if !reflect.DeepEqual(result.Paths["c"], []string{"a", "b", "c"}) {
		t.Errorf("path to c = %v", result.Paths["c"])
	}
	if !reflect.DeepEqual(result.Paths["a"], []string{"a"}) {
		t.Errorf("path to a = %v", result.Paths["a"])
	}
}

func TestTraverseDepthLimit(t *testing.T) {
	links := newFakeLinks("a", "b", "c", "d")
	links.addEdge("founder-u1", "a", "b", store.LinkWiki)
	links.addEdge("founder-u1", "b", "c", store.LinkWiki)
	links.addEdge("founder-u1", "c", "d", store.LinkWiki)

	result, err := founderGraph(links).Traverse(context.Background(), TraversalQuery{Start: "a", MaxDepth: 2})
	if err != nil {
		t.Fatalf("Traverse() error = %v", err)
	}
	if len(result.Nodes) != 3 {
		t.Errorf("nodes = %d, want 3 (a, b, c)", len(result.Nodes))
	}
	if _, reached := result.Paths["d"]; reached {
		t.Error("d reached past depth limit")
	}
}

func TestTraverseEntityTypeFilterShapesOutputOnly(t *testing.T) {
	links := newFakeLinks()
	links.addEntity("a", store.EntityPerson)
	links.addEntity("acme", store.EntityCompany)
	links.addEntity("b", store.EntityPerson)
	links.addEdge("founder-u1", "a", "acme", store.LinkWorksAt)
	links.addEdge("founder-u1", "acme", "b", store.LinkContacts)

	result, err := founderGraph(links).Traverse(context.Background(), TraversalQuery{
		Start:       "a",
		MaxDepth:    5,
		EntityTypes: []string{store.EntityPerson},
	})
	if err != nil {
		t.Fatalf("Traverse() error = %v", err)
	}
	// acme is filtered from the output but traversal continued through it.
	for _, node := range result.Nodes {
		if node.EntityType != store.EntityPerson {
			t.Errorf("node %s has type %s", node.Slug, node.EntityType)
		}
	}
	if _, reached := result.Paths["b"]; !reached {
		t.Error("b not reached through filtered intermediate node")
	}
}

func TestTraverseMissingStart(t *testing.T) {
	result, err := founderGraph(newFakeLinks()).Traverse(context.Background(), TraversalQuery{Start: "ghost"})
	if err != nil {
		t.Fatalf("Traverse() error = %v", err)
	}
	if len(result.Nodes) != 0 || len(result.Edges) != 0 || len(result.Paths) != 0 {
		t.Errorf("result = %+v, want empty", result)
	}
}

func TestFindPathShortest(t *testing.T) {
	links := newFakeLinks("a", "b", "c", "d", "e")
	links.addEdge("founder-u1", "a", "b", store.LinkWiki)
	links.addEdge("founder-u1", "a", "c", store.LinkWiki)
	links.addEdge("founder-u1", "b", "d", store.LinkWiki)
	links.addEdge("founder-u1", "c", "e", store.LinkWiki)
	links.addEdge("founder-u1", "e", "d", store.LinkWiki)

	path, err := founderGraph(links).FindPath(context.Background(), "a", "d", PathOptions{})
	if err != nil {
		t.Fatalf("FindPath() error = %v", err)
	}
	if !reflect.DeepEqual(path, []string{"a", "b", "d"}) {
		t.Errorf("path = %v, want [a b d]", path)
	}
}

func TestFindPathSameNode(t *testing.T) {
	links := newFakeLinks("a")
	path, err := founderGraph(links).FindPath(context.Background(), "a", "a", PathOptions{})
	if err != nil {
		t.Fatalf("FindPath() error = %v", err)
	}
	if !reflect.DeepEqual(path, []string{"a"}) {
		t.Errorf("path = %v, want [a]", path)
	}
}

func TestFindPathExhausted(t *testing.T) {
	links := newFakeLinks("a", "b", "z")
	links.addEdge("founder-u1", "a", "b", store.LinkWiki)

	path, err := founderGraph(links).FindPath(context.Background(), "a", "z", PathOptions{MaxDepth: 4})
	if err != nil {
		t.Fatalf("FindPath() error = %v", err)
	}
	if path != nil {
		t.Errorf("path = %v, want nil", path)
	}
}

func TestEdgesAreLayerScoped(t *testing.T) {
	links := newFakeLinks("a", "b")
	links.addEdge("founder-u2", "a", "b", store.LinkWiki)

	conns, err := founderGraph(links).GetConnections(context.Background(), "a", ConnectionOptions{})
	if err != nil {
		t.Fatalf("GetConnections() error = %v", err)
	}
	if len(conns.Edges) != 0 {
		t.Errorf("edges from foreign layer = %+v, want none", conns.Edges)
	}

	// Requesting a layer the viewer cannot read yields nothing, not an error.
	backlinks, err := founderGraph(links).GetBacklinks(context.Background(), "b", []access.Layer{access.Founder("u2")})
	if err != nil {
		t.Fatalf("GetBacklinks() error = %v", err)
	}
	if len(backlinks) != 0 {
		t.Errorf("backlinks = %+v, want none", backlinks)
	}
}

func TestGetConnectionsResolvesNeighbors(t *testing.T) {
	links := newFakeLinks("a", "b", "c")
	links.addEdge("founder-u1", "a", "b", store.LinkWiki)
	links.addEdge("founder-u1", "c", "a", store.LinkMentions)

	conns, err := founderGraph(links).GetConnections(context.Background(), "a", ConnectionOptions{})
	if err != nil {
		t.Fatalf("GetConnections() error = %v", err)
	}
	if len(conns.Edges) != 2 {
		t.Errorf("edges = %d, want 2", len(conns.Edges))
	}
	if len(conns.Nodes) != 2 {
		t.Errorf("nodes = %d, want 2 neighbors", len(conns.Nodes))
	}

	outgoing, err := founderGraph(links).GetConnections(context.Background(), "a", ConnectionOptions{Direction: DirectionOutgoing})
	if err != nil {
		t.Fatalf("GetConnections() error = %v", err)
	}
	if len(outgoing.Edges) != 1 || outgoing.Edges[0].TargetSlug != "b" {
		t.Errorf("outgoing edges = %+v", outgoing.Edges)
	}
}

func TestCreateLinkAccess(t *testing.T) {
	links := newFakeLinks("a", "b")
	g := founderGraph(links)
	ctx := context.Background()

	err := g.CreateLink(ctx, "a", "b", store.LinkRelatedTo, LinkOptions{Layer: access.Founder("u2")})
	if !errors.Is(err, ErrAccessDenied) {
		t.Errorf("CreateLink() into foreign layer error = %v, want ErrAccessDenied", err)
	}
	err = g.CreateLink(ctx, "a", "b", store.LinkRelatedTo, LinkOptions{Layer: access.Public()})
	if !errors.Is(err, ErrAccessDenied) {
		t.Errorf("CreateLink() into public layer error = %v, want ErrAccessDenied", err)
	}

	if err := g.CreateLink(ctx, "a", "b", store.LinkRelatedTo, LinkOptions{Layer: access.Founder("u1")}); err != nil {
		t.Fatalf("CreateLink() error = %v", err)
	}
	if len(links.edges) != 1 || links.edges[0].Strength != 1.0 {
		t.Errorf("edges = %+v", links.edges)
	}

	// Re-creating with a new strength updates in place.
	if err := g.CreateLink(ctx, "a", "b", store.LinkRelatedTo, LinkOptions{Layer: access.Founder("u1"), Strength: 0.5}); err != nil {
		t.Fatalf("CreateLink() error = %v", err)
	}
	if len(links.edges) != 1 || links.edges[0].Strength != 0.5 {
		t.Errorf("edges after upsert = %+v", links.edges)
	}
}

func TestDeleteLinkAcrossWritableLayers(t *testing.T) {
	links := newFakeLinks("a", "b")
	links.addEdge("founder-u1", "a", "b", store.LinkRelatedTo)
	links.addEdge("public", "a", "b", store.LinkRelatedTo)
	g := founderGraph(links)

	if err := g.DeleteLink(context.Background(), "a", "b", store.LinkRelatedTo, nil); err != nil {
		t.Fatalf("DeleteLink() error = %v", err)
	}

	// The founder edge is gone; the public edge is out of write reach.
	if len(links.edges) != 1 || links.edges[0].Layer != "public" {
		t.Errorf("edges = %+v, want only the public edge", links.edges)
	}
}

func TestDeleteLinkForeignLayerDenied(t *testing.T) {
	links := newFakeLinks("a", "b")
	links.addEdge("founder-u2", "a", "b", store.LinkRelatedTo)
	layer := access.Founder("u2")

	err := founderGraph(links).DeleteLink(context.Background(), "a", "b", store.LinkRelatedTo, &layer)
	if !errors.Is(err, ErrAccessDenied) {
		t.Errorf("DeleteLink() error = %v, want ErrAccessDenied", err)
	}
	if len(links.edges) != 1 {
		t.Errorf("edges = %+v, want untouched", links.edges)
	}
}

func TestGetRelatedEntities(t *testing.T) {
	links := newFakeLinks()
	links.addEntity("a", store.EntityPerson)
	links.addEntity("b", store.EntityPerson)
	links.addEntity("acme", store.EntityCompany)
	links.addEntity("c", store.EntityPerson)
	links.addEdge("founder-u1", "a", "acme", store.LinkWorksAt)
	links.addEdge("founder-u1", "a", "c", store.LinkWiki)
	links.addEdge("founder-u1", "b", "c", store.LinkWiki)
	links.addEdge("founder-u1", "b", "a", store.LinkWiki)

	related, err := founderGraph(links).GetRelatedEntities(context.Background(), []string{"a", "b"}, RelatedOptions{})
	if err != nil {
		t.Fatalf("GetRelatedEntities() error = %v", err)
	}
	slugs := make([]string, len(related))
	for i, node := range related {
		slugs[i] = node.Slug
	}
	// Seeds excluded, c deduplicated across both seeds.
	if !reflect.DeepEqual(slugs, []string{"acme", "c"}) {
		t.Errorf("related = %v, want [acme c]", slugs)
	}

	people, err := founderGraph(links).GetRelatedEntities(context.Background(), []string{"a", "b"}, RelatedOptions{
		ExcludeTypes: []string{store.EntityCompany},
	})
	if err != nil {
		t.Fatalf("GetRelatedEntities() error = %v", err)
	}
	if len(people) != 1 || people[0].Slug != "c" {
		t.Errorf("related with exclusion = %+v, want [c]", people)
	}

	one, err := founderGraph(links).GetRelatedEntities(context.Background(), []string{"a", "b"}, RelatedOptions{Limit: 1})
	if err != nil {
		t.Fatalf("GetRelatedEntities() error = %v", err)
	}
	if len(one) != 1 {
		t.Errorf("related with limit = %+v, want one", one)
	}
}

func TestGetNodeMissing(t *testing.T) {
	g := founderGraph(newFakeLinks())

	node, err := g.GetNodeBySlug(context.Background(), "ghost")
	if err != nil {
		t.Fatalf("GetNodeBySlug() error = %v", err)
	}
	if node != nil {
		t.Errorf("node = %+v, want nil", node)
	}

	byID, err := g.GetNode(context.Background(), "ent-ghost")
	if err != nil {
		t.Fatalf("GetNode() error = %v", err)
	}
	if byID != nil {
		t.Errorf("node = %+v, want nil", byID)
	}
}
