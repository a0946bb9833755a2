// Package app builds the sync service's collaborators from configuration.
package app

import (
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/govdata/cms-search-sync/internal/config"
	"github.com/govdata/cms-search-sync/internal/content"
	"github.com/govdata/cms-search-sync/internal/document"
	"github.com/govdata/cms-search-sync/internal/hook"
	"github.com/govdata/cms-search-sync/internal/index"
	"github.com/govdata/cms-search-sync/internal/logging"
	"github.com/govdata/cms-search-sync/internal/metrics"
	"github.com/govdata/cms-search-sync/internal/pending"
	"github.com/govdata/cms-search-sync/internal/reindex"
	"github.com/govdata/cms-search-sync/internal/sitemap"
	"github.com/govdata/cms-search-sync/internal/storage"
)

// App holds the wired collaborators. Close releases the database and, for
// the Redis backend, the Redis connection.
type App struct {
	Config    *config.Config
	DB        *sqlx.DB
	Repo      *content.SQLRepository
	Index     index.Client
	Pending   pending.Tracker
	Assembler *document.Assembler
	Metrics   *metrics.Metrics
	Logger    *zap.Logger

	closers []func() error
}

// New connects to the content database and the pending-deletion store and
// builds the index client. Metrics are registered on reg.
func New(cfg *config.Config, reg prometheus.Registerer, logger *zap.Logger) (*App, error) {
	logger = logging.OrNop(logger)
	a := &App{Config: cfg, Logger: logger, Metrics: metrics.New(reg)}

	db, err := content.Open(cfg.Database.Driver, cfg.Database.DSN)
	if err != nil {
		return nil, fmt.Errorf("open content database: %w", err)
	}
	a.DB = db
	a.closers = append(a.closers, db.Close)
	a.Repo = content.NewSQLRepository(db)

	a.Index, err = NewIndexClient(cfg.Index, logger)
	if err != nil {
		_ = a.Close()
		return nil, err
	}
	if closer, ok := a.Index.(interface{ Close() error }); ok {
		a.closers = append(a.closers, closer.Close)
	}

	a.Pending, err = a.newTracker(cfg.Pending)
	if err != nil {
		_ = a.Close()
		return nil, err
	}

	a.Assembler = document.NewAssembler(a.Repo, document.TypeMap(cfg.PageTypes), cfg.Location(), logger.Named("assembler"))
	return a, nil
}

// NewIndexClient builds the client for the configured index backend.
func NewIndexClient(cfg config.IndexConfig, logger *zap.Logger) (index.Client, error) {
	logger = logging.OrNop(logger)
	switch cfg.Backend {
	case config.IndexBackendElasticsearch:
		client, err := index.NewElasticClient(index.ElasticOptions{
			URL:       cfg.URL,
			Username:  cfg.Username,
			Password:  cfg.Password,
			IndexName: cfg.IndexName,
			Timeout:   cfg.Timeout,
		}, logger.Named("index"))
		if err != nil {
			return nil, fmt.Errorf("create index client: %w", err)
		}
		return client, nil
	case config.IndexBackendSQLite:
		client, err := index.NewSQLiteClient(cfg.URL)
		if err != nil {
			return nil, fmt.Errorf("create index client: %w", err)
		}
		return client, nil
	case config.IndexBackendFacade, "":
		return index.NewFacadeClient(index.FacadeOptions{
			URL:       cfg.URL,
			Username:  cfg.Username,
			Password:  cfg.Password,
			IndexName: cfg.IndexName,
			Mandant:   cfg.Mandant,
			Timeout:   cfg.Timeout,
		}, logger.Named("index")), nil
	}
	return nil, fmt.Errorf("unsupported index backend %q", cfg.Backend)
}

func (a *App) newTracker(cfg config.PendingConfig) (pending.Tracker, error) {
	if cfg.Backend != config.PendingBackendRedis {
		return pending.NewMemoryTracker(), nil
	}
	tracker, err := pending.DialRedis(pending.RedisOptions{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
		Key:      cfg.RedisKey,
	})
	if err != nil {
		return nil, fmt.Errorf("connect pending deletion store: %w", err)
	}
	a.closers = append(a.closers, tracker.Close)
	return tracker, nil
}

// Searcher returns the index client when it can answer queries, else nil.
func (a *App) Searcher() index.Searcher {
	if s, ok := a.Index.(index.Searcher); ok {
		return s
	}
	return nil
}

// Engine returns a sync engine over the wired collaborators.
func (a *App) Engine() *hook.Engine {
	return hook.NewEngine(hook.Deps{
		Assembler: a.Assembler,
		Repo:      a.Repo,
		Index:     a.Index,
		Pending:   a.Pending,
		Metrics:   a.Metrics,
		Logger:    a.Logger.Named("hook"),
	})
}

// Reindexer returns a bulk reindex runner. reportDir overrides the
// configured report directory when not empty.
func (a *App) Reindexer(reportDir string) *reindex.Runner {
	if reportDir == "" {
		reportDir = a.Config.Reindex.ReportDir
	}
	runner := &reindex.Runner{
		Repo:      a.Repo,
		Assembler: a.Assembler,
		Index:     a.Index,
		Types:     document.TypeMap(a.Config.PageTypes),
		Limiter:   reindex.NewLimiter(a.Config.Reindex.RatePerSecond),
		Metrics:   a.Metrics,
		Logger:    a.Logger.Named("reindex"),
	}
	if reportDir != "" {
		runner.Storage = storage.NewFSStorage(reportDir)
		if a.Config.Reindex.SiteURL != "" {
			runner.Sitemap = &sitemap.Generator{SiteURL: a.Config.Reindex.SiteURL, Storage: runner.Storage}
		}
	}
	return runner
}

func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
