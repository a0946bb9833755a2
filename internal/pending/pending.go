// Package pending tracks fragment deletions between the pre-delete and
// post-delete notifications, keyed by fragment id.
package pending

import (
	"context"
	"sync"
)

// Tracker maps a fragment about to be deleted to the page it belonged to.
// Entries have no expiry; one left behind by a crash is only ever read by key.
type Tracker interface {
	// Record inserts or overwrites the entry for contentID.
	Record(ctx context.Context, contentID, pageID int64) error
	// Peek reads the entry for contentID without removing it.
	Peek(ctx context.Context, contentID int64) (int64, bool, error)
	// Take reads and removes the entry for contentID in one step.
	Take(ctx context.Context, contentID int64) (int64, bool, error)
	// Len reports the number of entries.
	Len(ctx context.Context) (int, error)
}

// MemoryTracker is a process-local Tracker.
type MemoryTracker struct {
	mu      sync.Mutex
	entries map[int64]int64
}

func NewMemoryTracker() *MemoryTracker {
	return &MemoryTracker{entries: make(map[int64]int64)}
}

func (t *MemoryTracker) Record(_ context.Context, contentID, pageID int64) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.entries[contentID] = pageID
	return nil
}

func (t *MemoryTracker) Peek(_ context.Context, contentID int64) (int64, bool, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	pageID, ok := t.entries[contentID]
	return pageID, ok, nil
}

func (t *MemoryTracker) Take(_ context.Context, contentID int64) (int64, bool, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	pageID, ok := t.entries[contentID]
	if ok {
		delete(t.entries, contentID)
	}
	return pageID, ok, nil
}

func (t *MemoryTracker) Len(_ context.Context) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.entries), nil
}
