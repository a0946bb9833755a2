// Package hook decides, for every CMS notification, which index entries to
// rebuild, save or delete.
package hook

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/govdata/cms-search-sync/internal/content"
	"github.com/govdata/cms-search-sync/internal/document"
	"github.com/govdata/cms-search-sync/internal/index"
	"github.com/govdata/cms-search-sync/internal/logging"
	"github.com/govdata/cms-search-sync/internal/metrics"
	"github.com/govdata/cms-search-sync/internal/pending"
)

// ErrUnknownEvent is returned by Dispatch for an event type it cannot handle.
var ErrUnknownEvent = errors.New("unknown event")

// Outcome is the result of reconciling one page with the index.
type Outcome int

const (
	Saved Outcome = iota
	Deleted
	Failed
)

func (o Outcome) String() string {
	switch o {
	case Saved:
		return "saved"
	case Deleted:
		return "deleted"
	default:
		return "failed"
	}
}

// Deps are the collaborators of an Engine. Metrics and Logger may be nil.
type Deps struct {
	Assembler *document.Assembler
	Repo      content.Repository
	Index     index.Client
	Pending   pending.Tracker
	Metrics   *metrics.Metrics
	Logger    *zap.Logger
}

// Engine keeps the index in step with CMS writes. Handlers never return
// collaborator failures; they are logged and the CMS operation proceeds.
type Engine struct {
	assembler *document.Assembler
	repo      content.Repository
	index     index.Client
	pending   pending.Tracker
	metrics   *metrics.Metrics
	logger    *zap.Logger
}

func NewEngine(d Deps) *Engine {
	return &Engine{
		assembler: d.Assembler,
		repo:      d.Repo,
		index:     d.Index,
		pending:   d.Pending,
		metrics:   d.Metrics,
		logger:    logging.OrNop(d.Logger),
	}
}

// Dispatch routes ev to its handler.
func (e *Engine) Dispatch(ctx context.Context, ev Event) error {
	switch ev := ev.(type) {
	case BatchFieldUpdate:
		e.HandleBatchFieldUpdate(ctx, ev)
	case *BatchFieldUpdate:
		e.HandleBatchFieldUpdate(ctx, *ev)
	case CommittedWrite:
		e.HandleCommittedWrite(ctx, ev)
	case *CommittedWrite:
		e.HandleCommittedWrite(ctx, *ev)
	case DeleteCommandPre:
		e.HandleDeleteCommandPre(ctx, ev)
	case *DeleteCommandPre:
		e.HandleDeleteCommandPre(ctx, *ev)
	case DeleteCommandPost:
		e.HandleDeleteCommandPost(ctx, ev)
	case *DeleteCommandPost:
		e.HandleDeleteCommandPost(ctx, *ev)
	default:
		return fmt.Errorf("%w: %T", ErrUnknownEvent, ev)
	}
	return nil
}

// HandleBatchFieldUpdate rebuilds the page of every fragment the batch
// hides, before the CMS commits it.
func (e *Engine) HandleBatchFieldUpdate(ctx context.Context, ev BatchFieldUpdate) {
	e.metrics.Event(ev.Kind())

	var hiding []int64
	for _, f := range ev.Fragments {
		if !f.Hidden || f.New {
			continue
		}
		if id, ok := ev.Substitutions.Resolve(f.Key); ok {
			hiding = append(hiding, id)
		}
	}

	for _, f := range ev.Fragments {
		if !f.Hidden {
			continue
		}
		e.logger.Debug("fragment hidden in batch", zap.String("key", string(f.Key)))

		pageID, ok := e.pageOfHiddenFragment(ctx, f, ev.Substitutions)
		if !ok {
			continue
		}
		e.reconcile(ctx, pageID, "page has no visible content left", document.ExcludeFragments(hiding...))
	}
}

func (e *Engine) pageOfHiddenFragment(ctx context.Context, f FragmentUpdate, ids IDTable) (int64, bool) {
	if f.New {
		if f.PageID >= 0 {
			return f.PageID, f.PageID > 0
		}
		return e.lookupPage(ctx, -f.PageID)
	}
	if f.CurrentPageID > 0 {
		return f.CurrentPageID, true
	}
	contentID, ok := ids.Resolve(f.Key)
	if !ok {
		e.logger.Warn("unresolvable fragment key", zap.String("key", string(f.Key)))
		return 0, false
	}
	return e.lookupPage(ctx, contentID)
}

func (e *Engine) lookupPage(ctx context.Context, contentID int64) (int64, bool) {
	pageID, ok, err := e.repo.PageIDForFragment(ctx, contentID)
	if err != nil {
		e.logger.Error("error while resolving page of content",
			zap.Int64("content_id", contentID), zap.Error(err))
		return 0, false
	}
	if !ok {
		e.logger.Debug("content has no page", zap.Int64("content_id", contentID))
	}
	return pageID, ok
}

// HandleCommittedWrite reacts to a committed write of a page or fragment row.
func (e *Engine) HandleCommittedWrite(ctx context.Context, ev CommittedWrite) {
	e.metrics.Event(ev.Kind())
	e.logger.Debug("committed write",
		zap.String("table", string(ev.Table)),
		zap.String("key", string(ev.Key)),
		zap.Any("fields", ev.Fields))

	id, ok := ev.Substitutions.Resolve(ev.Key)
	if !ok {
		e.logger.Warn("unresolvable record key", zap.String("table", string(ev.Table)), zap.String("key", string(ev.Key)))
		return
	}

	switch ev.Table {
	case TablePages:
		if noSearch, _ := ev.Fields.Bool("no_search"); noSearch {
			e.deleteEntry(ctx, id, "page has been marked as not to be included in search")
			return
		}
		// New pages start disabled and are indexed once enabled.
		if ev.Substitutions.IsNew(ev.Key) {
			return
		}
		e.reconcile(ctx, id, "page is not indexable")

	case TableContent:
		if hidden, present := ev.Fields.Bool("hidden"); present && hidden {
			return
		}
		doc, err := e.assembler.BuildFromFragment(ctx, id)
		if err != nil {
			e.logger.Error("error while updating content", zap.Int64("content_id", id), zap.Error(err))
			return
		}
		if doc == nil {
			return
		}
		e.save(ctx, doc)
	}
}

// HandleDeleteCommandPre remembers the page of a visible fragment that is
// about to be deleted, while it can still be looked up.
func (e *Engine) HandleDeleteCommandPre(ctx context.Context, ev DeleteCommandPre) {
	e.metrics.Event(ev.Kind())
	e.logger.Debug("delete command pre-process",
		zap.String("table", string(ev.Table)),
		zap.String("key", string(ev.Key)))

	if ev.Table != TableContent {
		return
	}
	// Hidden fragments already left the index when they were hidden.
	if hidden, _ := ev.Record.Bool("hidden"); hidden {
		return
	}
	contentID, ok := ev.Substitutions.Resolve(ev.Key)
	if !ok {
		e.logger.Warn("unresolvable fragment key", zap.String("key", string(ev.Key)))
		return
	}

	pageID, ok, err := e.repo.PageIDForFragment(ctx, contentID)
	if err != nil {
		e.logger.Error("error while marking content for deletion", zap.Int64("content_id", contentID), zap.Error(err))
		return
	}
	if !ok {
		return
	}
	page, err := e.repo.Page(ctx, pageID)
	if err != nil {
		e.logger.Error("error while marking content for deletion", zap.Int64("content_id", contentID), zap.Error(err))
		return
	}
	if !e.assembler.Indexable(page) {
		return
	}
	if err := e.pending.Record(ctx, contentID, pageID); err != nil {
		e.logger.Error("error while marking content for deletion", zap.Int64("content_id", contentID), zap.Error(err))
		return
	}
	e.updatePendingGauge(ctx)
}

// HandleDeleteCommandPost removes a deleted page's entry, or rebuilds the
// page of a deleted fragment recorded by HandleDeleteCommandPre.
func (e *Engine) HandleDeleteCommandPost(ctx context.Context, ev DeleteCommandPost) {
	e.metrics.Event(ev.Kind())
	e.logger.Debug("delete command post-process",
		zap.String("table", string(ev.Table)),
		zap.String("key", string(ev.Key)))

	id, ok := ev.Substitutions.Resolve(ev.Key)
	if !ok {
		e.logger.Warn("unresolvable record key", zap.String("table", string(ev.Table)), zap.String("key", string(ev.Key)))
		return
	}

	switch ev.Table {
	case TablePages:
		e.deleteEntry(ctx, id, "page has been deleted")

	case TableContent:
		pageID, found, err := e.pending.Peek(ctx, id)
		if err != nil {
			e.logger.Error("error while reading pending deletion", zap.Int64("content_id", id), zap.Error(err))
			return
		}
		if !found {
			return
		}
		// A failed rebuild keeps the entry so a later delete on this page retries.
		if e.reconcile(ctx, pageID, "no more visible content on the page") == Failed {
			return
		}
		if _, _, err := e.pending.Take(ctx, id); err != nil {
			e.logger.Error("error while clearing pending deletion", zap.Int64("content_id", id), zap.Error(err))
		}
		e.updatePendingGauge(ctx)
	}
}

// Reconcile rebuilds pageID and saves or deletes its index entry.
func (e *Engine) Reconcile(ctx context.Context, pageID int64) Outcome {
	return e.reconcile(ctx, pageID, "page is not indexable")
}

func (e *Engine) reconcile(ctx context.Context, pageID int64, deleteReason string, opts ...document.BuildOption) Outcome {
	doc, err := e.assembler.BuildFromPage(ctx, pageID, opts...)
	if err != nil {
		e.logger.Error("error while building the search index entry",
			zap.Int64("page_id", pageID), zap.Error(err))
		e.metrics.Reconcile(Failed.String())
		return Failed
	}

	outcome := Saved
	if doc == nil {
		e.deleteEntry(ctx, pageID, deleteReason)
		outcome = Deleted
	} else {
		e.save(ctx, doc)
	}
	e.metrics.Reconcile(outcome.String())
	return outcome
}

func (e *Engine) save(ctx context.Context, doc *document.Document) {
	err := e.index.Save(ctx, doc)
	e.metrics.IndexRequest("save", err)
	if err != nil {
		e.logIndexError("could not save document", doc.ID, err)
		return
	}
	e.logger.Debug("saved document", zap.Int64("page_id", doc.ID))
}

func (e *Engine) deleteEntry(ctx context.Context, pageID int64, reason string) {
	e.logger.Info("deleting index entry", zap.Int64("page_id", pageID), zap.String("reason", reason))
	err := e.index.Delete(ctx, pageID)
	e.metrics.IndexRequest("delete", err)
	if err != nil {
		e.logIndexError("could not delete document", pageID, err)
	}
}

func (e *Engine) logIndexError(msg string, pageID int64, err error) {
	fields := []zap.Field{zap.Int64("page_id", pageID)}
	var svcErr *index.ServiceError
	if errors.As(err, &svcErr) {
		fields = append(fields, zap.Int("status", svcErr.Status), zap.String("response", svcErr.Body))
	} else {
		fields = append(fields, zap.Error(err))
	}
	e.logger.Error(msg, fields...)
}

func (e *Engine) updatePendingGauge(ctx context.Context) {
	if e.metrics == nil {
		return
	}
	if n, err := e.pending.Len(ctx); err == nil {
		e.metrics.SetPending(n)
	}
}

// PendingDeletions reports how many fragment deletions await post-processing.
func (e *Engine) PendingDeletions(ctx context.Context) (int, error) {
	return e.pending.Len(ctx)
}
