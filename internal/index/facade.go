package index

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/govdata/cms-search-sync/internal/document"
	"github.com/govdata/cms-search-sync/internal/logging"
)

const (
	queuePath     = "/index-queue"
	mandantHeader = "X-SP-Mandant"

	maxErrorBody = 4 << 10
)

// FacadeOptions configures a FacadeClient.
type FacadeOptions struct {
	URL       string
	Username  string
	Password  string
	IndexName string
	Mandant   string
	Timeout   time.Duration
}

// FacadeClient writes to the index through the service facade's index queue.
type FacadeClient struct {
	BaseURL   string
	Username  string
	Password  string
	IndexName string
	Mandant   string
	Client    *http.Client
	Logger    *zap.Logger
}

func NewFacadeClient(opts FacadeOptions, logger *zap.Logger) *FacadeClient {
	if opts.IndexName == "" {
		opts.IndexName = DefaultIndexName
	}
	if opts.Mandant == "" {
		opts.Mandant = "1"
	}
	return &FacadeClient{
		BaseURL:   strings.TrimSuffix(opts.URL, "/"),
		Username:  opts.Username,
		Password:  opts.Password,
		IndexName: opts.IndexName,
		Mandant:   opts.Mandant,
		Client:    &http.Client{Timeout: opts.Timeout},
		Logger:    logging.OrNop(logger),
	}
}

func (c *FacadeClient) Save(ctx context.Context, doc *document.Document) error {
	c.Logger.Debug("saving document", zap.Int64("page_id", doc.ID))
	return c.do(ctx, "save", doc.ID, http.MethodPost, queuePath, SaveEnvelope(c.IndexName, doc), http.StatusCreated)
}

func (c *FacadeClient) Delete(ctx context.Context, pageID int64) error {
	c.Logger.Debug("deleting document", zap.Int64("page_id", pageID))
	path := queuePath + "/" + strconv.FormatInt(pageID, 10)
	return c.do(ctx, "delete", pageID, http.MethodDelete, path, DeleteEnvelope(c.IndexName, pageID), http.StatusNoContent)
}

func (c *FacadeClient) ClearAll(ctx context.Context) error {
	c.Logger.Debug("deleting all entries", zap.String("index", c.IndexName))
	path := queuePath + "/delete-all-entries/" + url.PathEscape(c.IndexName)
	return c.do(ctx, "clear", 0, http.MethodDelete, path, nil, http.StatusNoContent)
}

func (c *FacadeClient) do(ctx context.Context, op string, id int64, method, path string, payload any, want int) error {
	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("encode %s request: %w", op, err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, body)
	if err != nil {
		return fmt.Errorf("build %s request: %w", op, err)
	}
	if c.Username != "" || c.Password != "" {
		req.SetBasicAuth(c.Username, c.Password)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(mandantHeader, c.Mandant)

	resp, err := c.Client.Do(req)
	if err != nil {
		return fmt.Errorf("%s document: %w", op, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != want {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return &ServiceError{Op: op, ID: id, Status: resp.StatusCode, Body: strings.TrimSpace(string(detail))}
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}
