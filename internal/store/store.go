// Package store defines the memory store that captured conversation is sent
// to and searched from. Implementations live in subpackages.
package store

import (
	"context"
	"regexp"
	"slices"
	"strings"
	"time"
)

// Message is one captured conversational turn.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// AppendRequest sends messages to a conversation in a collection.
// An empty Handle starts a new conversation.
type AppendRequest struct {
	Handle     string
	Collection string
	Messages   []Message
	Metadata   map[string]any
}

// SearchRequest queries one collection.
type SearchRequest struct {
	Query      string
	Collection string
	Limit      int
}

// Hit is one search result. Score is in [0,1].
type Hit struct {
	ID        string    `json:"id"`
	Text      string    `json:"text"`
	Score     float64   `json:"score"`
	Role      string    `json:"role,omitempty"`
	Title     string    `json:"title,omitempty"`
	Timestamp time.Time `json:"timestamp,omitzero"`
}

// Entity is a knowledge-graph entity surfaced by a search.
type Entity struct {
	Name        string `json:"name"`
	Category    string `json:"category,omitempty"`
	Description string `json:"description,omitempty"`
}

// Fact is a subject-predicate-object triple surfaced by a search.
type Fact struct {
	Subject   string `json:"subject"`
	Predicate string `json:"predicate"`
	Object    string `json:"object"`
}

// String renders the fact as a sentence fragment.
func (f Fact) String() string {
	return strings.TrimSpace(f.Subject + " " + f.Predicate + " " + f.Object)
}

// SearchResult is everything a search returned.
type SearchResult struct {
	Hits     []Hit    `json:"hits"`
	Entities []Entity `json:"entities,omitempty"`
	Facts    []Fact   `json:"facts,omitempty"`
}

// Store is a memory store.
//
// Implementations retry transient failures themselves and return
// errors.ErrStoreUnavailable when they give up.
type Store interface {
	// Append stores messages in order and returns the conversation handle.
	// When a later message fails after the conversation was opened, the new
	// handle is returned along with the error.
	Append(ctx context.Context, req AppendRequest) (string, error)
	Search(ctx context.Context, req SearchRequest) (*SearchResult, error)
	// CreateCollection returns errors.ErrConflict when name is taken.
	CreateCollection(ctx context.Context, name string) (string, error)
	// CollectionByName returns errors.ErrNotFound when name is unknown.
	CollectionByName(ctx context.Context, name string) (string, error)
}

// Profile is search output split by how durable it is.
type Profile struct {
	Static  []string
	Dynamic []string
	Hits    []Hit
}

// ProfileFromSearch derives a profile: idea or user entities are static,
// facts are dynamic. Each list keeps at most limit items.
func ProfileFromSearch(res *SearchResult, limit int) Profile {
	if res == nil {
		return Profile{}
	}
	var p Profile
	for _, e := range res.Entities {
		if len(p.Static) == limit {
			break
		}
		if e.Category != "idea" && !strings.Contains(strings.ToLower(e.Name), "user") {
			continue
		}
		text := e.Description
		if text == "" {
			text = e.Name
		}
		if text != "" {
			p.Static = append(p.Static, text)
		}
	}
	for _, f := range res.Facts {
		if len(p.Dynamic) == limit {
			break
		}
		if s := f.String(); s != "" {
			p.Dynamic = append(p.Dynamic, s)
		}
	}
	p.Hits = res.Hits
	return p
}

// FilterByScore keeps hits scoring at least min, preserving order.
func FilterByScore(hits []Hit, min float64) []Hit {
	return slices.DeleteFunc(slices.Clone(hits), func(h Hit) bool { return h.Score < min })
}

// Metadata limits.
const (
	maxMetadataKeys  = 50
	maxMetadataKey   = 128
	maxMetadataValue = 1024
)

var validMetadataKey = regexp.MustCompile(`^[\w.-]+$`)

// SanitizeMetadata keeps string, number and boolean values under safe keys,
// truncating long strings. At most 50 keys survive, in sorted key order.
func SanitizeMetadata(md map[string]any) map[string]any {
	keys := make([]string, 0, len(md))
	for k := range md {
		keys = append(keys, k)
	}
	slices.Sort(keys)

	out := make(map[string]any, len(md))
	for _, k := range keys {
		if len(out) == maxMetadataKeys {
			break
		}
		if len(k) > maxMetadataKey || !validMetadataKey.MatchString(k) {
			continue
		}
		switch v := md[k].(type) {
		case string:
			if len(v) > maxMetadataValue {
				v = v[:maxMetadataValue]
			}
			out[k] = v
		case bool, int, int64, float64:
			out[k] = v
		}
	}
	return out
}
