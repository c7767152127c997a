package search

import (
	"crypto/sha1"
	"encoding/hex"
)

// Result is a single full-text hit over context documents.
type Result struct {
	ID       string `json:"id"`
	FilePath string `json:"filePath"`
	Layer    string `json:"layer"`
	Folder   string `json:"folder"`
	Slug     string `json:"slug"`
	Title    string `json:"title"`
	Snippet  string `json:"snippet"`
}

// Query describes a search request. Layers is mandatory scoping: callers
// pass the viewer's accessible layer prefixes, and no result may come from
// outside that set.
type Query struct {
	Text    string
	Layers  []string
	Folders []string
	Limit   int
	Offset  int
}

// Response is the envelope returned by the search facade.
type Response struct {
	Results []Result `json:"results"`
	Total   int      `json:"total"`
	Query   string   `json:"query"`
}

// Searcher can execute a full-text search.
type Searcher interface {
	Search(q Query) ([]Result, int, error)
	Healthy() bool
}

// Indexer can push context documents into a search index.
type Indexer interface {
	IndexContextFile(rec ContextRecord) error
	DeleteContextFile(id string) error
}

// ContextRecord is the data indexed for one context document.
type ContextRecord struct {
	ID       string `json:"id"`
	FilePath string `json:"filePath"`
	Layer    string `json:"layer"`
	Folder   string `json:"folder"`
	Slug     string `json:"slug"`
	Title    string `json:"title"`
	Body     string `json:"body"`
}

// RecordID derives the stable index key for a storage path, so save and
// delete address the same record without a lookup.
func RecordID(filePath string) string {
	sum := sha1.Sum([]byte(filePath))
	return hex.EncodeToString(sum[:])
}
