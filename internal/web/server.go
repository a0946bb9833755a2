// Package web exposes the sync engine to the CMS over HTTP.
package web

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/govdata/cms-search-sync/internal/hook"
	"github.com/govdata/cms-search-sync/internal/index"
	"github.com/govdata/cms-search-sync/internal/logging"
)

const (
	requestIDHeader = "X-Request-ID"
	shutdownTimeout = 10 * time.Second
)

type Server struct {
	engine   *hook.Engine
	searcher index.Searcher
	gatherer prometheus.Gatherer
	logger   *zap.Logger
	router   *gin.Engine
}

// NewServer builds the router. searcher backs /api/search and may be nil;
// gatherer backs /metrics, nil serves the default registry.
func NewServer(engine *hook.Engine, searcher index.Searcher, gatherer prometheus.Gatherer, logger *zap.Logger) *Server {
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	s := &Server{engine: engine, searcher: searcher, gatherer: gatherer, logger: logging.OrNop(logger)}
	s.router = s.routes()
	return s
}

func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) routes() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery(), requestID(), s.logRequests())

	router.GET("/healthz", s.handleHealth)
	router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{})))
	router.GET("/api/pending", s.handlePending)
	router.GET("/api/search", s.handleSearch)

	hooks := router.Group("/hooks")
	hooks.POST("/batch-update", handleEvent[hook.BatchFieldUpdate](s))
	hooks.POST("/committed-write", handleEvent[hook.CommittedWrite](s))
	hooks.POST("/delete-pre", handleEvent[hook.DeleteCommandPre](s))
	hooks.POST("/delete-post", handleEvent[hook.DeleteCommandPost](s))
	return router
}

// ListenAndServe serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("listening", zap.String("addr", addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		s.logger.Info("shutting down")
		return srv.Shutdown(shutdownCtx)
	}
}

func handleEvent[E hook.Event](s *Server) gin.HandlerFunc {
	return func(c *gin.Context) {
		var ev E
		dec := json.NewDecoder(c.Request.Body)
		dec.UseNumber()
		if err := dec.Decode(&ev); err != nil {
			_ = c.Error(err)
			c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("invalid %s notification: %v", ev.Kind(), err)})
			return
		}
		if table, ok := eventTable(ev); ok && !table.Valid() {
			c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("unknown table %q", table)})
			return
		}

		if err := s.engine.Dispatch(c.Request.Context(), ev); err != nil {
			_ = c.Error(err)
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusAccepted, gin.H{"status": "accepted"})
	}
}

func eventTable(ev hook.Event) (hook.Table, bool) {
	switch ev := ev.(type) {
	case hook.CommittedWrite:
		return ev.Table, true
	case hook.DeleteCommandPre:
		return ev.Table, true
	case hook.DeleteCommandPost:
		return ev.Table, true
	}
	return "", false
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) handlePending(c *gin.Context) {
	n, err := s.engine.PendingDeletions(c.Request.Context())
	if err != nil {
		_ = c.Error(err)
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "pending deletions unavailable"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"size": n})
}

func (s *Server) handleSearch(c *gin.Context) {
	if s.searcher == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "search index unavailable"})
		return
	}
	limit := parseIntQuery(c, "limit", 50)
	offset := parseIntQuery(c, "offset", 0)

	results, err := s.searcher.Search(c.Request.Context(), c.Query("q"), limit, offset)
	if err != nil {
		_ = c.Error(err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, results)
}

func parseIntQuery(c *gin.Context, key string, fallback int) int {
	n, err := strconv.Atoi(c.Query(key))
	if err != nil || n < 0 {
		return fallback
	}
	return n
}

// requestID tags every request with an id, reusing one sent by the caller.
func requestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(requestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		c.Set("request_id", id)
		c.Header(requestIDHeader, id)
		c.Next()
	}
}

func (s *Server) logRequests() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		fields := []zap.Field{
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("duration", time.Since(start)),
			zap.String("request_id", c.GetString("request_id")),
		}
		if len(c.Errors) > 0 {
			fields = append(fields, zap.String("errors", strings.TrimSpace(c.Errors.String())))
			s.logger.Warn("request", fields...)
			return
		}
		if strings.HasPrefix(c.Request.URL.Path, "/healthz") || c.Request.URL.Path == "/metrics" {
			s.logger.Debug("request", fields...)
			return
		}
		s.logger.Info("request", fields...)
	}
}
