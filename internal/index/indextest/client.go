// Package indextest provides a recording index.Client for tests.
package indextest

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/govdata/cms-search-sync/internal/document"
)

// Call is one request received by the Recorder.
type Call struct {
	Op      string
	PageID  int64
	Payload string
}

// Recorder implements index.Client by recording every call. Err, when set,
// is returned from every call after recording it.
type Recorder struct {
	mu    sync.Mutex
	calls []Call

	Err error
}

func New() *Recorder {
	return &Recorder{}
}

func (r *Recorder) Save(_ context.Context, doc *document.Document) error {
	payload, _ := json.Marshal(doc)
	return r.record(Call{Op: "save", PageID: doc.ID, Payload: string(payload)})
}

func (r *Recorder) Delete(_ context.Context, pageID int64) error {
	return r.record(Call{Op: "delete", PageID: pageID})
}

func (r *Recorder) ClearAll(context.Context) error {
	return r.record(Call{Op: "clear"})
}

func (r *Recorder) record(c Call) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, c)
	return r.Err
}

// Calls returns a copy of the recorded calls in order.
func (r *Recorder) Calls() []Call {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Call(nil), r.calls...)
}

// Ops returns "save"/"delete"/"clear" per recorded call.
func (r *Recorder) Ops() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	ops := make([]string, len(r.calls))
	for i, c := range r.calls {
		ops[i] = c.Op
	}
	return ops
}

func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = nil
}
