package content

import (
	"context"
	"fmt"
)

// Page is a row of the CMS page tree.
type Page struct {
	ID                int64  `db:"uid"`
	ParentID          int64  `db:"pid"`
	Title             string `db:"title"`
	Slug              string `db:"slug"`
	Doktype           int    `db:"doktype"`
	Abstract          string `db:"abstract"`
	Description       string `db:"description"`
	ExcludeFromSearch bool   `db:"no_search"`
	Tstamp            int64  `db:"tstamp"`
}

// Fragment is a content element placed on a page.
type Fragment struct {
	ID      int64  `db:"uid"`
	PageID  int64  `db:"pid"`
	Body    string `db:"bodytext"`
	Hidden  bool   `db:"hidden"`
	Tstamp  int64  `db:"tstamp"`
	Sorting int64  `db:"sorting"`
}

// Repository gives read access to pages and their content fragments.
//
// Page returns (nil, nil) when the page does not exist or is disabled.
// PageIDForFragment reports ok=false when the fragment cannot be resolved.
type Repository interface {
	Page(ctx context.Context, id int64) (*Page, error)
	Fragments(ctx context.Context, pageID int64) ([]Fragment, error)
	PageIDForFragment(ctx context.Context, fragmentID int64) (pageID int64, ok bool, err error)
	IndexablePageIDs(ctx context.Context, doktypes []int) ([]int64, error)
}

// RepositoryError wraps any failure reading from the content repository.
type RepositoryError struct {
	Op  string
	Err error
}

func (e *RepositoryError) Error() string { return fmt.Sprintf("content repository: %s: %v", e.Op, e.Err) }
func (e *RepositoryError) Unwrap() error { return e.Err }
