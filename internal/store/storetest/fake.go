// Package storetest provides an in-memory store.Store for tests.
package storetest

import (
	"context"
	"fmt"
	"sync"

	"github.com/hpungsan/recall/internal/errors"
	"github.com/hpungsan/recall/internal/store"
)

// Fake records calls and returns canned results.
type Fake struct {
	mu sync.Mutex

	Appends  []store.AppendRequest
	Searches []store.SearchRequest
	Created  []string

	// Collections maps existing collection names to ids.
	Collections map[string]string
	// Result is returned by Search.
	Result *store.SearchResult

	// Errors injected per operation.
	AppendErr     error
	SearchErr     error
	CreateErr     error
	LookupErr     error
	PanicOnAppend bool
	// PartialAppendErr fails Append after the conversation is created,
	// returning the new handle with the error.
	PartialAppendErr error

	nextHandle int
}

var _ store.Store = (*Fake)(nil)

// New returns an empty Fake.
func New() *Fake {
	return &Fake{Collections: make(map[string]string)}
}

// Append implements store.Store.
func (f *Fake) Append(_ context.Context, req store.AppendRequest) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.PanicOnAppend {
		panic("fake store exploded")
	}
	if f.AppendErr != nil {
		return "", f.AppendErr
	}
	if f.PartialAppendErr != nil {
		if req.Handle != "" {
			return req.Handle, f.PartialAppendErr
		}
		f.nextHandle++
		return fmt.Sprintf("handle-%d", f.nextHandle), f.PartialAppendErr
	}
	f.Appends = append(f.Appends, req)
	if req.Handle != "" {
		return req.Handle, nil
	}
	f.nextHandle++
	return fmt.Sprintf("handle-%d", f.nextHandle), nil
}

// Search implements store.Store.
func (f *Fake) Search(_ context.Context, req store.SearchRequest) (*store.SearchResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Searches = append(f.Searches, req)
	if f.SearchErr != nil {
		return nil, f.SearchErr
	}
	if f.Result == nil {
		return &store.SearchResult{}, nil
	}
	return f.Result, nil
}

// CreateCollection implements store.Store.
func (f *Fake) CreateCollection(_ context.Context, name string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.CreateErr != nil {
		return "", f.CreateErr
	}
	if _, ok := f.Collections[name]; ok {
		return "", errors.NewConflict("collection already exists: " + name)
	}
	id := "col-" + name
	f.Collections[name] = id
	f.Created = append(f.Created, name)
	return id, nil
}

// CollectionByName implements store.Store.
func (f *Fake) CollectionByName(_ context.Context, name string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.LookupErr != nil {
		return "", f.LookupErr
	}
	id, ok := f.Collections[name]
	if !ok {
		return "", errors.NewNotFound("collection", name)
	}
	return id, nil
}

// AppendCount returns how many Append calls succeeded.
func (f *Fake) AppendCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.Appends)
}

// LastAppend returns the most recent successful Append request.
func (f *Fake) LastAppend() store.AppendRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.Appends) == 0 {
		return store.AppendRequest{}
	}
	return f.Appends[len(f.Appends)-1]
}
