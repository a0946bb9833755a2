package index

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/govdata/cms-search-sync/internal/document"
)

type recordedRequest struct {
	Method string
	Path   string
	Body   string
	Header http.Header
	User   string
	Pass   string
}

func newFacade(t *testing.T, status int, reply string) (*FacadeClient, *[]recordedRequest) {
	t.Helper()
	var requests []recordedRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		user, pass, _ := r.BasicAuth()
		requests = append(requests, recordedRequest{
			Method: r.Method,
			Path:   r.URL.Path,
			Body:   string(body),
			Header: r.Header.Clone(),
			User:   user,
			Pass:   pass,
		})
		w.WriteHeader(status)
		_, _ = w.Write([]byte(reply))
	}))
	t.Cleanup(server.Close)

	client := NewFacadeClient(FacadeOptions{
		URL:      server.URL + "/",
		Username: "svc",
		Password: "secret",
		Timeout:  5 * time.Second,
	}, nil)
	return client, &requests
}

func sampleDocument() *document.Document {
	return &document.Document{
		ID:         10,
		Title:      "Open Data",
		Preamble:   "body1 body2",
		TargetLink: "/open-data",
		Metadata:   `{"uid":10}`,
		Modified:   "2024-06-15T12:30:45",
		Type:       "article",
	}
}

func TestFacadeClient_Save(t *testing.T) {
	client, requests := newFacade(t, http.StatusCreated, "")

	require.NoError(t, client.Save(context.Background(), sampleDocument()))
	require.Len(t, *requests, 1)

	req := (*requests)[0]
	assert.Equal(t, http.MethodPost, req.Method)
	assert.Equal(t, "/index-queue", req.Path)
	assert.Equal(t, "application/json", req.Header.Get("Content-Type"))
	assert.Equal(t, "1", req.Header.Get("X-SP-Mandant"))
	assert.Equal(t, "svc", req.User)
	assert.Equal(t, "secret", req.Pass)
	assert.JSONEq(t, `[{
		"indexName": "govdata-cms-de",
		"document": {
			"id": 10,
			"title": "Open Data",
			"preamble": "body1 body2",
			"targetlink": "/open-data",
			"metadata": "{\"uid\":10}"
		}
	}]`, req.Body)
}

func TestFacadeClient_SaveUnexpectedStatus(t *testing.T) {
	client, _ := newFacade(t, http.StatusOK, `{"error":"queue full"}`)

	err := client.Save(context.Background(), sampleDocument())
	var svcErr *ServiceError
	require.ErrorAs(t, err, &svcErr)
	assert.Equal(t, "save", svcErr.Op)
	assert.Equal(t, int64(10), svcErr.ID)
	assert.Equal(t, http.StatusOK, svcErr.Status)
	assert.Equal(t, `{"error":"queue full"}`, svcErr.Body)
}

func TestFacadeClient_Delete(t *testing.T) {
	client, requests := newFacade(t, http.StatusNoContent, "")

	require.NoError(t, client.Delete(context.Background(), 42))
	require.Len(t, *requests, 1)

	req := (*requests)[0]
	assert.Equal(t, http.MethodDelete, req.Method)
	assert.Equal(t, "/index-queue/42", req.Path)
	assert.JSONEq(t, `[{"indexName":"govdata-cms-de","document":{"id":42}}]`, req.Body)
}

func TestFacadeClient_DeleteFailure(t *testing.T) {
	client, _ := newFacade(t, http.StatusInternalServerError, "boom")

	err := client.Delete(context.Background(), 42)
	var svcErr *ServiceError
	require.ErrorAs(t, err, &svcErr)
	assert.Equal(t, http.StatusInternalServerError, svcErr.Status)
	assert.Contains(t, err.Error(), "42")
}

func TestFacadeClient_ClearAll(t *testing.T) {
	client, requests := newFacade(t, http.StatusNoContent, "")
	client.IndexName = "govdata-cms-en"
	client.Mandant = "2"

	require.NoError(t, client.ClearAll(context.Background()))
	require.Len(t, *requests, 1)

	req := (*requests)[0]
	assert.Equal(t, http.MethodDelete, req.Method)
	assert.Equal(t, "/index-queue/delete-all-entries/govdata-cms-en", req.Path)
	assert.Empty(t, req.Body)
	assert.Equal(t, "2", req.Header.Get("X-SP-Mandant"))
}

func TestFacadeClient_TransportError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	server.Close()

	client := NewFacadeClient(FacadeOptions{URL: server.URL}, nil)
	err := client.Save(context.Background(), sampleDocument())
	require.Error(t, err)
	var svcErr *ServiceError
	assert.NotErrorAs(t, err, &svcErr)
}

func TestDeleteEnvelope(t *testing.T) {
	data, err := json.Marshal(DeleteEnvelope("idx", 7))
	require.NoError(t, err)
	assert.JSONEq(t, `[{"indexName":"idx","document":{"id":7}}]`, string(data))
}
