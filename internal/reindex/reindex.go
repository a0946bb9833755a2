// Package reindex rebuilds the whole search index from the content repository.
package reindex

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/govdata/cms-search-sync/internal/content"
	"github.com/govdata/cms-search-sync/internal/document"
	"github.com/govdata/cms-search-sync/internal/index"
	"github.com/govdata/cms-search-sync/internal/logging"
	"github.com/govdata/cms-search-sync/internal/metrics"
	"github.com/govdata/cms-search-sync/internal/sitemap"
	"github.com/govdata/cms-search-sync/internal/storage"
)

const (
	summaryFile  = "reindex-summary.json"
	failuresFile = "reindex-failures.log"
)

// Summary is the result of one reindex run.
type Summary struct {
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
	Total      int       `json:"total"`
	Indexed    int       `json:"indexed"`
	Skipped    int       `json:"skipped"`
	Failed     int       `json:"failed"`
	FailedIDs  []int64   `json:"failed_ids"`
}

type Runner struct {
	Repo      content.Repository
	Assembler *document.Assembler
	Index     index.Client
	Types     document.TypeMap
	// Limiter throttles page builds; nil means unthrottled.
	Limiter *rate.Limiter
	// Storage receives the summary and failure log; nil skips the report.
	Storage *storage.FSStorage
	// Sitemap, when set, receives every indexed page after the run.
	Sitemap *sitemap.Generator
	Metrics *metrics.Metrics
	Logger  *zap.Logger

	failures []string
	indexed  []sitemap.Entry
}

// NewLimiter returns a limiter allowing perSecond page builds, or nil for
// perSecond <= 0.
func NewLimiter(perSecond float64) *rate.Limiter {
	if perSecond <= 0 {
		return nil
	}
	return rate.NewLimiter(rate.Limit(perSecond), 1)
}

// Run clears the index and saves every indexable page. Per-page failures
// are counted and logged; only a failure to list the pages or a cancelled
// context aborts the run.
func (r *Runner) Run(ctx context.Context) (Summary, error) {
	if r.Repo == nil || r.Assembler == nil || r.Index == nil {
		return Summary{}, errors.New("reindex runner missing dependencies")
	}
	logger := logging.OrNop(r.Logger)
	r.failures = nil
	r.indexed = nil
	summary := Summary{StartedAt: time.Now().UTC(), FailedIDs: []int64{}}

	logger.Info("reindex started")
	if err := r.Index.ClearAll(ctx); err != nil {
		logger.Error("could not delete all entries from index", zap.Error(err))
	}

	pageIDs, err := r.Repo.IndexablePageIDs(ctx, r.Types.Doktypes())
	if err != nil {
		return summary, fmt.Errorf("list indexable pages: %w", err)
	}
	summary.Total = len(pageIDs)
	if len(pageIDs) == 0 {
		logger.Warn("no pages are supposed to be included in search, index will be empty")
	}

	for i, pageID := range pageIDs {
		if r.Limiter != nil {
			if err := r.Limiter.Wait(ctx); err != nil {
				return r.finish(ctx, summary), fmt.Errorf("reindex interrupted: %w", err)
			}
		}
		logger.Info("reindexing page",
			zap.Int64("page_id", pageID),
			zap.Int("page", i+1),
			zap.Int("of", len(pageIDs)))

		doc, err := r.indexPage(ctx, pageID)
		switch {
		case errors.Is(err, errSkipped):
			summary.Skipped++
			r.Metrics.ReindexPage("skipped")
		case err != nil:
			summary.Failed++
			summary.FailedIDs = append(summary.FailedIDs, pageID)
			r.recordFailure(logger, pageID, err)
			r.Metrics.ReindexPage("failed")
		default:
			summary.Indexed++
			r.indexed = append(r.indexed, sitemap.Entry{Path: doc.TargetLink, Modified: doc.Modified})
			r.Metrics.ReindexPage("indexed")
		}
	}

	if r.Sitemap != nil {
		if err := r.Sitemap.Generate(ctx, r.indexed); err != nil {
			logger.Error("could not write sitemap", zap.Error(err))
		}
	}
	summary = r.finish(ctx, summary)
	logger.Info("reindex done",
		zap.Int("total", summary.Total),
		zap.Int("indexed", summary.Indexed),
		zap.Int("skipped", summary.Skipped),
		zap.Int("failed", summary.Failed))
	return summary, nil
}

var errSkipped = errors.New("page skipped")

func (r *Runner) indexPage(ctx context.Context, pageID int64) (*document.Document, error) {
	doc, err := r.Assembler.BuildFromPage(ctx, pageID)
	if err != nil {
		return nil, err
	}
	if doc == nil {
		return nil, errSkipped
	}
	err = r.Index.Save(ctx, doc)
	r.Metrics.IndexRequest("save", err)
	return doc, err
}

func (r *Runner) recordFailure(logger *zap.Logger, pageID int64, err error) {
	r.failures = append(r.failures, fmt.Sprintf("page %d: %v", pageID, err))
	logger.Warn("error while reindexing page, continuing with the next page",
		zap.Int64("page_id", pageID), zap.Error(err))
}

func (r *Runner) finish(ctx context.Context, summary Summary) Summary {
	summary.FinishedAt = time.Now().UTC()
	if r.Storage == nil {
		return summary
	}
	logger := logging.OrNop(r.Logger)
	if err := r.Storage.WriteJSON(ctx, summaryFile, summary); err != nil {
		logger.Error("could not write reindex summary", zap.Error(err))
	}
	if err := r.Storage.WriteLines(ctx, failuresFile, r.failures); err != nil {
		logger.Error("could not write reindex failures", zap.Error(err))
	}
	return summary
}
