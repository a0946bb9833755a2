package index

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	es "github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"
	"go.uber.org/zap"

	"github.com/govdata/cms-search-sync/internal/document"
	"github.com/govdata/cms-search-sync/internal/logging"
)

// ElasticOptions configures an ElasticClient.
type ElasticOptions struct {
	URL       string
	Username  string
	Password  string
	IndexName string
	Timeout   time.Duration
	Transport http.RoundTripper
}

// ElasticClient writes documents straight into an Elasticsearch index,
// for deployments without the service facade.
type ElasticClient struct {
	es        *es.Client
	indexName string
	logger    *zap.Logger
}

func NewElasticClient(opts ElasticOptions, logger *zap.Logger) (*ElasticClient, error) {
	address := opts.URL
	if !strings.HasPrefix(address, "http://") && !strings.HasPrefix(address, "https://") {
		address = "http://" + address
	}
	if opts.IndexName == "" {
		opts.IndexName = DefaultIndexName
	}

	cfg := es.Config{
		Addresses: []string{address},
		Transport: opts.Transport,
	}
	if opts.Username != "" && opts.Password != "" {
		cfg.Username = opts.Username
		cfg.Password = opts.Password
	}
	if opts.Timeout > 0 && cfg.Transport == nil {
		cfg.Transport = &http.Transport{ResponseHeaderTimeout: opts.Timeout}
	}

	client, err := es.NewClient(cfg)
	if err != nil {
		return nil, fmt.Errorf("create elasticsearch client: %w", err)
	}
	return &ElasticClient{es: client, indexName: opts.IndexName, logger: logging.OrNop(logger)}, nil
}

func (c *ElasticClient) Save(ctx context.Context, doc *document.Document) error {
	body, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("encode document %d: %w", doc.ID, err)
	}
	c.logger.Debug("indexing document", zap.Int64("page_id", doc.ID), zap.String("index", c.indexName))

	res, err := c.es.Index(c.indexName, bytes.NewReader(body),
		c.es.Index.WithDocumentID(strconv.FormatInt(doc.ID, 10)),
		c.es.Index.WithContext(ctx),
	)
	if err != nil {
		return fmt.Errorf("save document %d: %w", doc.ID, err)
	}
	return checkResponse(res, "save", doc.ID)
}

// Delete treats a missing document as already deleted.
func (c *ElasticClient) Delete(ctx context.Context, pageID int64) error {
	c.logger.Debug("deleting document", zap.Int64("page_id", pageID), zap.String("index", c.indexName))

	res, err := c.es.Delete(c.indexName, strconv.FormatInt(pageID, 10), c.es.Delete.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("delete document %d: %w", pageID, err)
	}
	if res.StatusCode == http.StatusNotFound {
		_ = res.Body.Close()
		return nil
	}
	return checkResponse(res, "delete", pageID)
}

func (c *ElasticClient) ClearAll(ctx context.Context) error {
	c.logger.Debug("deleting all documents", zap.String("index", c.indexName))

	res, err := c.es.DeleteByQuery([]string{c.indexName},
		strings.NewReader(`{"query":{"match_all":{}}}`),
		c.es.DeleteByQuery.WithContext(ctx),
		c.es.DeleteByQuery.WithRefresh(true),
	)
	if err != nil {
		return fmt.Errorf("clear index %s: %w", c.indexName, err)
	}
	return checkResponse(res, "clear", 0)
}

func checkResponse(res *esapi.Response, op string, id int64) error {
	defer func() { _ = res.Body.Close() }()
	if res.IsError() {
		detail, _ := io.ReadAll(io.LimitReader(res.Body, maxErrorBody))
		return &ServiceError{Op: op, ID: id, Status: res.StatusCode, Body: strings.TrimSpace(string(detail))}
	}
	_, _ = io.Copy(io.Discard, res.Body)
	return nil
}
