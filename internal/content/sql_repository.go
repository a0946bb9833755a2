package content

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jmoiron/sqlx"
)

// Queries honour the CMS's default restrictions: deleted and hidden rows are
// invisible. The fragment-to-page lookup only skips deleted rows so a fragment
// can still be traced to its page while it is being hidden.
const (
	pageQuery = `SELECT uid, pid, title, COALESCE(slug, '') AS slug, doktype,
		COALESCE(abstract, '') AS abstract, COALESCE(description, '') AS description,
		no_search, tstamp
		FROM pages
		WHERE uid = ? AND deleted = 0 AND hidden = 0`

	fragmentsQuery = `SELECT uid, pid, COALESCE(bodytext, '') AS bodytext, hidden, tstamp, sorting
		FROM tt_content
		WHERE pid = ? AND deleted = 0 AND hidden = 0
		ORDER BY sorting`

	fragmentPageQuery = `SELECT pid FROM tt_content WHERE uid = ? AND deleted = 0`

	indexablePagesQuery = `SELECT uid FROM pages
		WHERE doktype IN (?) AND no_search = 0 AND deleted = 0 AND hidden = 0
		ORDER BY uid`
)

// SQLRepository reads the CMS tables pages and tt_content.
type SQLRepository struct {
	db *sqlx.DB
}

func NewSQLRepository(db *sqlx.DB) *SQLRepository {
	return &SQLRepository{db: db}
}

func (r *SQLRepository) Page(ctx context.Context, id int64) (*Page, error) {
	var page Page
	err := r.db.GetContext(ctx, &page, r.db.Rebind(pageQuery), id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, &RepositoryError{Op: "get page", Err: err}
	}
	return &page, nil
}

func (r *SQLRepository) Fragments(ctx context.Context, pageID int64) ([]Fragment, error) {
	fragments := []Fragment{}
	if err := r.db.SelectContext(ctx, &fragments, r.db.Rebind(fragmentsQuery), pageID); err != nil {
		return nil, &RepositoryError{Op: "list fragments", Err: err}
	}
	return fragments, nil
}

func (r *SQLRepository) PageIDForFragment(ctx context.Context, fragmentID int64) (int64, bool, error) {
	var pageID int64
	err := r.db.GetContext(ctx, &pageID, r.db.Rebind(fragmentPageQuery), fragmentID)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, &RepositoryError{Op: "get fragment page", Err: err}
	}
	if pageID <= 0 {
		return 0, false, nil
	}
	return pageID, true, nil
}

func (r *SQLRepository) IndexablePageIDs(ctx context.Context, doktypes []int) ([]int64, error) {
	if len(doktypes) == 0 {
		return nil, nil
	}
	query, args, err := sqlx.In(indexablePagesQuery, doktypes)
	if err != nil {
		return nil, &RepositoryError{Op: "list indexable pages", Err: err}
	}
	ids := []int64{}
	if err := r.db.SelectContext(ctx, &ids, r.db.Rebind(query), args...); err != nil {
		return nil, &RepositoryError{Op: "list indexable pages", Err: err}
	}
	return ids, nil
}
