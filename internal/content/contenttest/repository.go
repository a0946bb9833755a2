// Package contenttest provides an in-memory content.Repository for tests.
package contenttest

import (
	"context"
	"sort"
	"sync"

	"github.com/govdata/cms-search-sync/internal/content"
)

// Repository is an in-memory content.Repository. Setting Err makes every
// call fail with it; Calls counts calls per method.
type Repository struct {
	mu        sync.Mutex
	pages     map[int64]content.Page
	fragments map[int64]content.Fragment

	Err   error
	Calls map[string]int
}

func New() *Repository {
	return &Repository{
		pages:     make(map[int64]content.Page),
		fragments: make(map[int64]content.Fragment),
		Calls:     make(map[string]int),
	}
}

func (r *Repository) PutPage(p content.Page) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.pages[p.ID] = p
}

func (r *Repository) PutFragment(f content.Fragment) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.fragments[f.ID] = f
}

func (r *Repository) DeleteFragment(id int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.fragments, id)
}

// TotalCalls returns the number of repository reads made so far.
func (r *Repository) TotalCalls() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	total := 0
	for _, n := range r.Calls {
		total += n
	}
	return total
}

func (r *Repository) call(name string) error {
	r.Calls[name]++
	if r.Err != nil {
		return &content.RepositoryError{Op: name, Err: r.Err}
	}
	return nil
}

func (r *Repository) Page(_ context.Context, id int64) (*content.Page, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.call("Page"); err != nil {
		return nil, err
	}
	p, ok := r.pages[id]
	if !ok {
		return nil, nil
	}
	return &p, nil
}

func (r *Repository) Fragments(_ context.Context, pageID int64) ([]content.Fragment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.call("Fragments"); err != nil {
		return nil, err
	}
	var out []content.Fragment
	for _, f := range r.fragments {
		if f.PageID == pageID {
			out = append(out, f)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Sorting < out[j].Sorting })
	return out, nil
}

func (r *Repository) PageIDForFragment(_ context.Context, fragmentID int64) (int64, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.call("PageIDForFragment"); err != nil {
		return 0, false, err
	}
	f, ok := r.fragments[fragmentID]
	if !ok {
		return 0, false, nil
	}
	return f.PageID, true, nil
}

func (r *Repository) IndexablePageIDs(_ context.Context, doktypes []int) ([]int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.call("IndexablePageIDs"); err != nil {
		return nil, err
	}
	allowed := make(map[int]bool, len(doktypes))
	for _, d := range doktypes {
		allowed[d] = true
	}
	var ids []int64
	for id, p := range r.pages {
		if allowed[p.Doktype] && !p.ExcludeFromSearch {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, nil
}
