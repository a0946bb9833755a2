// Package index talks to the search index that mirrors CMS pages.
package index

import (
	"context"
	"fmt"

	"github.com/govdata/cms-search-sync/internal/document"
)

// DefaultIndexName is the index the facade stores CMS pages in.
const DefaultIndexName = "govdata-cms-de"

// Client is the write side of the search index. A non-success response is
// returned as a *ServiceError; callers log it and move on.
type Client interface {
	Save(ctx context.Context, doc *document.Document) error
	Delete(ctx context.Context, pageID int64) error
	ClearAll(ctx context.Context) error
}

// ServiceError reports a response from the index with an unexpected status.
type ServiceError struct {
	Op     string
	ID     int64
	Status int
	Body   string
}

func (e *ServiceError) Error() string {
	if e.ID != 0 {
		return fmt.Sprintf("index %s %d: status %d: %s", e.Op, e.ID, e.Status, e.Body)
	}
	return fmt.Sprintf("index %s: status %d: %s", e.Op, e.Status, e.Body)
}

// Entry is one element of the facade's request envelope.
type Entry struct {
	IndexName string `json:"indexName"`
	Document  any    `json:"document"`
}

type deleteRef struct {
	ID int64 `json:"id"`
}

// SaveEnvelope wraps doc in the single-entry list the facade expects.
func SaveEnvelope(indexName string, doc *document.Document) []Entry {
	return []Entry{{IndexName: indexName, Document: doc}}
}

// DeleteEnvelope identifies pageID for removal.
func DeleteEnvelope(indexName string, pageID int64) []Entry {
	return []Entry{{IndexName: indexName, Document: deleteRef{ID: pageID}}}
}
