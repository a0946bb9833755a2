package document

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/govdata/cms-search-sync/internal/content"
	"github.com/govdata/cms-search-sync/internal/logging"
)

// Assembler builds index documents from the content repository. A nil
// *Document with a nil error means the page must not be in the index.
type Assembler struct {
	repo     content.Repository
	types    TypeMap
	location *time.Location
	logger   *zap.Logger
}

func NewAssembler(repo content.Repository, types TypeMap, loc *time.Location, logger *zap.Logger) *Assembler {
	if loc == nil {
		loc = time.UTC
	}
	return &Assembler{
		repo:     repo,
		types:    types,
		location: loc,
		logger:   logging.OrNop(logger),
	}
}

type buildOptions struct {
	exclude map[int64]bool
}

// BuildOption adjusts a single build.
type BuildOption func(*buildOptions)

// ExcludeFragments drops the given fragments from the build, for rebuilding
// a page while those fragments are being hidden but not yet committed.
func ExcludeFragments(ids ...int64) BuildOption {
	return func(o *buildOptions) {
		if o.exclude == nil {
			o.exclude = make(map[int64]bool, len(ids))
		}
		for _, id := range ids {
			o.exclude[id] = true
		}
	}
}

// Indexable reports whether a page may have an index entry at all.
func (a *Assembler) Indexable(page *content.Page) bool {
	if page == nil || page.ExcludeFromSearch {
		return false
	}
	_, ok := a.types.Label(page.Doktype)
	return ok
}

// BuildFromPage assembles the document for pageID. Repository failures are
// returned as errors; every "do not index" case returns (nil, nil).
func (a *Assembler) BuildFromPage(ctx context.Context, pageID int64, opts ...BuildOption) (*Document, error) {
	var o buildOptions
	for _, opt := range opts {
		opt(&o)
	}

	page, err := a.repo.Page(ctx, pageID)
	if err != nil {
		return nil, err
	}
	switch {
	case page == nil:
		a.logger.Debug("page not found, probably disabled", zap.Int64("page_id", pageID))
		return nil, nil
	case page.ExcludeFromSearch:
		a.logger.Debug("page is excluded from search", zap.Int64("page_id", pageID))
		return nil, nil
	}
	label, ok := a.types.Label(page.Doktype)
	if !ok {
		a.logger.Debug("page has unsupported doktype",
			zap.Int64("page_id", pageID), zap.Int("doktype", page.Doktype))
		return nil, nil
	}

	fragments, err := a.repo.Fragments(ctx, pageID)
	if err != nil {
		return nil, err
	}
	if len(o.exclude) > 0 {
		kept := make([]content.Fragment, 0, len(fragments))
		for _, f := range fragments {
			if !o.exclude[f.ID] {
				kept = append(kept, f)
			}
		}
		fragments = kept
	}
	if len(fragments) == 0 && page.Abstract == "" {
		a.logger.Debug("page has neither content nor abstract", zap.Int64("page_id", pageID))
		return nil, nil
	}

	var bodies []string
	var latest int64
	included := 0
	for _, f := range fragments {
		if f.Hidden {
			continue
		}
		bodies = append(bodies, StripTags(f.Body))
		if included == 0 || f.Tstamp > latest {
			latest = f.Tstamp
		}
		included++
	}
	if included == 0 {
		latest = page.Tstamp
	}
	modified := formatTimestamp(latest, a.location)

	meta, err := json.Marshal(Metadata{
		UID:         page.ID,
		PID:         page.ParentID,
		Title:       page.Title,
		Slug:        page.Slug,
		Doktype:     page.Doktype,
		Abstract:    page.Abstract,
		Description: page.Description,
		NoSearch:    page.ExcludeFromSearch,
		Tstamp:      page.Tstamp,
		Modified:    modified,
		Type:        label,
	})
	if err != nil {
		return nil, fmt.Errorf("encode metadata for page %d: %w", pageID, err)
	}

	return &Document{
		ID:         pageID,
		Title:      page.Title,
		Preamble:   strings.Join(bodies, " "),
		TargetLink: page.Slug,
		Metadata:   string(meta),
		Modified:   modified,
		Type:       label,
	}, nil
}

// BuildFromFragment resolves the fragment's page and builds that page.
func (a *Assembler) BuildFromFragment(ctx context.Context, fragmentID int64) (*Document, error) {
	pageID, ok, err := a.repo.PageIDForFragment(ctx, fragmentID)
	if err != nil {
		return nil, err
	}
	if !ok {
		a.logger.Debug("fragment has no page", zap.Int64("content_id", fragmentID))
		return nil, nil
	}
	return a.BuildFromPage(ctx, pageID)
}
