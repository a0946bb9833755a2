package reindex

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
	"golang.org/x/time/rate"

	"github.com/govdata/cms-search-sync/internal/content"
	"github.com/govdata/cms-search-sync/internal/content/contenttest"
	"github.com/govdata/cms-search-sync/internal/document"
	"github.com/govdata/cms-search-sync/internal/index/indextest"
	"github.com/govdata/cms-search-sync/internal/metrics"
	"github.com/govdata/cms-search-sync/internal/sitemap"
	"github.com/govdata/cms-search-sync/internal/storage"
)

var types = document.TypeMap{1: "article", 137: "blog"}

func newRunner(repo content.Repository, recorder *indextest.Recorder, logger *zap.Logger) *Runner {
	return &Runner{
		Repo:      repo,
		Assembler: document.NewAssembler(repo, types, time.UTC, logger),
		Index:     recorder,
		Types:     types,
		Logger:    logger,
	}
}

func seed(repo *contenttest.Repository) {
	repo.PutPage(content.Page{ID: 3, Title: "Blog", Slug: "/blog", Doktype: 137, Abstract: "about"})
	repo.PutPage(content.Page{ID: 10, Title: "Open Data", Slug: "/open-data", Doktype: 1})
	repo.PutFragment(content.Fragment{ID: 1, PageID: 10, Body: "<p>body</p>", Tstamp: 100})
	repo.PutPage(content.Page{ID: 11, Title: "Empty", Doktype: 1})
	repo.PutPage(content.Page{ID: 12, Title: "Folder", Doktype: 254})
	repo.PutPage(content.Page{ID: 13, Title: "Private", Doktype: 1, ExcludeFromSearch: true})
}

func TestRun(t *testing.T) {
	repo := contenttest.New()
	seed(repo)
	recorder := indextest.New()
	reg := prometheus.NewRegistry()
	runner := newRunner(repo, recorder, nil)
	runner.Metrics = metrics.New(reg)

	summary, err := runner.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 3, summary.Total)
	assert.Equal(t, 2, summary.Indexed)
	assert.Equal(t, 1, summary.Skipped)
	assert.Zero(t, summary.Failed)
	assert.Empty(t, summary.FailedIDs)

	assert.Equal(t, []string{"clear", "save", "save"}, recorder.Ops())
	calls := recorder.Calls()
	assert.Equal(t, int64(3), calls[1].PageID)
	assert.Equal(t, int64(10), calls[2].PageID)
	assert.InDelta(t, 2, testutil.ToFloat64(runner.Metrics.ReindexPages.WithLabelValues("indexed")), 0)
}

func TestRun_ContinuesPastFailures(t *testing.T) {
	repo := contenttest.New()
	seed(repo)
	recorder := indextest.New()
	recorder.Err = errors.New("facade unavailable")
	core, logs := observer.New(zapcore.InfoLevel)
	dir := t.TempDir()

	runner := newRunner(repo, recorder, zap.New(core))
	runner.Storage = storage.NewFSStorage(dir)

	summary, err := runner.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, summary.Failed)
	assert.Equal(t, []int64{3, 10}, summary.FailedIDs)
	assert.Equal(t, 3, logs.FilterMessage("reindexing page").Len())
	assert.Equal(t, 2, logs.FilterMessage("error while reindexing page, continuing with the next page").Len())
	assert.Equal(t, 1, logs.FilterMessage("could not delete all entries from index").Len())

	raw, err := os.ReadFile(runner.Storage.Path(summaryFile))
	require.NoError(t, err)
	var written Summary
	require.NoError(t, json.Unmarshal(raw, &written))
	assert.Equal(t, summary.FailedIDs, written.FailedIDs)

	failures, err := os.ReadFile(runner.Storage.Path(failuresFile))
	require.NoError(t, err)
	assert.Equal(t, "page 3: facade unavailable\npage 10: facade unavailable\n", string(failures))
}

func TestRun_WritesSitemap(t *testing.T) {
	repo := contenttest.New()
	seed(repo)
	store := storage.NewFSStorage(t.TempDir())
	runner := newRunner(repo, indextest.New(), nil)
	runner.Sitemap = &sitemap.Generator{SiteURL: "https://www.govdata.de", Storage: store}

	_, err := runner.Run(context.Background())
	require.NoError(t, err)

	raw, err := os.ReadFile(store.Path("sitemaps/sitemap-pages.xml"))
	require.NoError(t, err)
	assert.Contains(t, string(raw), "<loc>https://www.govdata.de/blog</loc>")
	assert.Contains(t, string(raw), "<loc>https://www.govdata.de/open-data</loc>")
	assert.Contains(t, string(raw), "<lastmod>1970-01-01</lastmod>")
	assert.FileExists(t, store.Path(sitemap.IndexFile))
}

func TestRun_NoIndexablePages(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	recorder := indextest.New()

	summary, err := newRunner(contenttest.New(), recorder, zap.New(core)).Run(context.Background())
	require.NoError(t, err)
	assert.Zero(t, summary.Total)
	assert.Equal(t, []string{"clear"}, recorder.Ops())
	assert.Equal(t, 1, logs.Len())
}

func TestRun_ListFailure(t *testing.T) {
	repo := contenttest.New()
	repo.Err = errors.New("db down")

	_, err := newRunner(repo, indextest.New(), nil).Run(context.Background())
	var repoErr *content.RepositoryError
	assert.ErrorAs(t, err, &repoErr)
}

func TestRun_Cancelled(t *testing.T) {
	repo := contenttest.New()
	seed(repo)
	runner := newRunner(repo, indextest.New(), nil)
	runner.Limiter = rate.NewLimiter(rate.Every(time.Hour), 1)
	require.NoError(t, runner.Limiter.Wait(context.Background()))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := runner.Run(ctx)
	assert.Error(t, err)
}

func TestRun_MissingDependencies(t *testing.T) {
	_, err := (&Runner{}).Run(context.Background())
	assert.Error(t, err)
}

func TestNewLimiter(t *testing.T) {
	assert.Nil(t, NewLimiter(0))
	limiter := NewLimiter(5)
	require.NotNil(t, limiter)
	assert.Equal(t, rate.Limit(5), limiter.Limit())
}
