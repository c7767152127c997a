package store

import "time"

// Entity type values.
const (
	EntityPerson       = "person"
	EntityCompany      = "company"
	EntityProject      = "project"
	EntityGoal         = "goal"
	EntityTask         = "task"
	EntityRelationship = "relationship"
	EntityInteraction  = "interaction"
	EntityExpert       = "expert"
)

// Link types. WikiLink edges are derived from document bodies and fully
// replaced on every save; the rest are authored independently and never
// touched by document saves.
const (
	LinkWiki       = "wiki_link"
	LinkMentions   = "mentions"
	LinkChildOf    = "child_of"
	LinkRelatedTo  = "related_to"
	LinkWorksAt    = "works_at"
	LinkContacts   = "contacts"
	LinkOwns       = "owns"
	LinkAssignedTo = "assigned_to"
	LinkPartOf     = "part_of"
)

// Entity is the canonical record for a named thing, independent of any one
// document. Entities are created on first document save for a slug and are
// never hard-deleted by this subsystem.
type Entity struct {
	ID           string
	Slug         string
	EntityType   string
	Name         string
	Email        string
	Metadata     map[string]any
	OwnerID      string
	TenantID     string
	PrivacyScope string
	SourceSystem string
	SourceID     string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// ContextFile is the metadata row for one stored context document. The
// layer column holds the layer's bucket-path prefix; (Layer, FilePath) is
// the upsert key. Title and BodyText are plaintext copies feeding the
// derived full-text search column.
type ContextFile struct {
	ID            string
	EntityID      *string
	Layer         string
	FilePath      string
	StorageBucket string
	Title         string
	BodyText      string
	ContentHash   string
	LastSyncedAt  time.Time
	CreatedAt     time.Time
}

// EntityLink is a directed, typed, layer-scoped edge between two entity
// slugs. (Layer, SourceSlug, TargetSlug, LinkType) is unique; writes upsert
// on that key.
type EntityLink struct {
	ID             string
	Layer          string
	SourceSlug     string
	TargetSlug     string
	LinkType       string
	LinkText       string
	ContextSnippet string
	Strength       float64
	CreatedAt      time.Time
}
