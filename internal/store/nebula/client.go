// Package nebula is a store.Store backed by the Nebula memory API.
package nebula

import (
	"bytes"
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/hpungsan/recall/internal/errors"
	"github.com/hpungsan/recall/internal/store"
)

// Source tags every stored memory.
const Source = "recall"

// Options configures a Client.
type Options struct {
	BaseURL    string
	APIKey     string
	Timeout    time.Duration
	MaxRetries int
	// HTTPClient overrides the default client; Timeout is ignored when set.
	HTTPClient *http.Client
	// InitialInterval is the first retry delay (default 200ms).
	InitialInterval time.Duration
}

// Client talks to the Nebula REST API.
type Client struct {
	baseURL  string
	apiKey   string
	http     *http.Client
	maxTries uint
	initial  time.Duration
	now      func() time.Time
}

var _ store.Store = (*Client)(nil)

// New creates a Client.
func New(opts Options) *Client {
	hc := opts.HTTPClient
	if hc == nil {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = 10 * time.Second
		}
		hc = &http.Client{Timeout: timeout}
	}
	tries := opts.MaxRetries
	if tries <= 0 {
		tries = 3
	}
	initial := opts.InitialInterval
	if initial <= 0 {
		initial = 200 * time.Millisecond
	}
	return &Client{
		baseURL:  strings.TrimRight(opts.BaseURL, "/"),
		apiKey:   opts.APIKey,
		http:     hc,
		maxTries: uint(tries),
		initial:  initial,
		now:      time.Now,
	}
}

type memoryRequest struct {
	CollectionID string         `json:"collection_id"`
	Content      string         `json:"content"`
	Role         string         `json:"role,omitempty"`
	MemoryID     string         `json:"memory_id,omitempty"`
	Metadata     map[string]any `json:"metadata,omitempty"`
}

type idResponse struct {
	ID      string `json:"id"`
	Results struct {
		ID       string `json:"id"`
		MemoryID string `json:"memory_id"`
	} `json:"results"`
}

func (r idResponse) id() string {
	switch {
	case r.Results.ID != "":
		return r.Results.ID
	case r.Results.MemoryID != "":
		return r.Results.MemoryID
	}
	return r.ID
}

// Append stores each message in order. Without a handle the first message
// opens a conversation whose id becomes the handle for the rest.
func (c *Client) Append(ctx context.Context, req store.AppendRequest) (string, error) {
	if req.Collection == "" {
		return "", errors.NewInvalidRequest("collection is required")
	}
	md := map[string]any{
		"source":    Source,
		"timestamp": c.now().UTC().Format(time.RFC3339),
	}
	for k, v := range store.SanitizeMetadata(req.Metadata) {
		md[k] = v
	}

	handle := req.Handle
	for _, m := range req.Messages {
		var resp idResponse
		err := c.do(ctx, http.MethodPost, "/v1/memories", memoryRequest{
			CollectionID: req.Collection,
			Content:      m.Content,
			Role:         m.Role,
			MemoryID:     handle,
			Metadata:     md,
		}, &resp)
		if err != nil {
			return handle, err
		}
		if handle == "" {
			handle = resp.id()
		}
	}
	return handle, nil
}

type searchRequest struct {
	Query         string   `json:"query"`
	CollectionIDs []string `json:"collection_ids"`
	Limit         int      `json:"limit"`
}

type searchResponse struct {
	Results struct {
		Utterances []utterance `json:"utterances"`
		Entities   []entity    `json:"entities"`
		Facts      []fact      `json:"facts"`
	} `json:"results"`
}

type utterance struct {
	ChunkID         string  `json:"chunk_id"`
	EngramID        string  `json:"engram_id"`
	Text            string  `json:"text"`
	ActivationScore float64 `json:"activation_score"`
	SourceRole      string  `json:"source_role"`
	DisplayName     string  `json:"display_name"`
	Timestamp       string  `json:"timestamp"`
}

type entity struct {
	Name     string `json:"entity_name"`
	Category string `json:"entity_category"`
	Profile  struct {
		Entity struct {
			Description string `json:"description"`
		} `json:"entity"`
	} `json:"profile"`
}

type fact struct {
	Subject   string `json:"subject"`
	Predicate string `json:"predicate"`
	Object    string `json:"object_value"`
}

// Search queries one collection.
func (c *Client) Search(ctx context.Context, req store.SearchRequest) (*store.SearchResult, error) {
	limit := req.Limit
	if limit <= 0 {
		limit = 10
	}
	var resp searchResponse
	if err := c.do(ctx, http.MethodPost, "/v1/search", searchRequest{
		Query:         req.Query,
		CollectionIDs: []string{req.Collection},
		Limit:         limit,
	}, &resp); err != nil {
		return nil, err
	}

	out := &store.SearchResult{}
	for _, u := range resp.Results.Utterances {
		id := u.ChunkID
		if id == "" {
			id = u.EngramID
		}
		ts, _ := time.Parse(time.RFC3339Nano, u.Timestamp)
		out.Hits = append(out.Hits, store.Hit{
			ID:        id,
			Text:      u.Text,
			Score:     u.ActivationScore,
			Role:      u.SourceRole,
			Title:     u.DisplayName,
			Timestamp: ts,
		})
	}
	for _, e := range resp.Results.Entities {
		out.Entities = append(out.Entities, store.Entity{
			Name:        e.Name,
			Category:    e.Category,
			Description: e.Profile.Entity.Description,
		})
	}
	for _, f := range resp.Results.Facts {
		out.Facts = append(out.Facts, store.Fact{Subject: f.Subject, Predicate: f.Predicate, Object: f.Object})
	}
	return out, nil
}

type collectionRequest struct {
	Name     string         `json:"name"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// CreateCollection creates a collection and returns its id.
func (c *Client) CreateCollection(ctx context.Context, name string) (string, error) {
	var resp idResponse
	err := c.do(ctx, http.MethodPost, "/v1/collections", collectionRequest{
		Name: name,
		Metadata: map[string]any{
			"source":     Source,
			"created_at": c.now().UTC().Format(time.RFC3339),
		},
	}, &resp)
	if err != nil {
		return "", err
	}
	if id := resp.id(); id != "" {
		return id, nil
	}
	return name, nil
}

// CollectionByName looks up a collection id.
func (c *Client) CollectionByName(ctx context.Context, name string) (string, error) {
	var resp idResponse
	if err := c.do(ctx, http.MethodGet, "/v1/collections/by-name/"+url.PathEscape(name), nil, &resp); err != nil {
		return "", err
	}
	if id := resp.id(); id != "" {
		return id, nil
	}
	return "", errors.NewNotFound("collection", name)
}

// do sends one JSON request with retries. Network errors, 429 and 5xx are
// retried; everything else fails immediately.
func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var payload []byte
	if body != nil {
		var err error
		if payload, err = json.Marshal(body); err != nil {
			return errors.NewInternal(err)
		}
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = c.initial

	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		return struct{}{}, c.attempt(ctx, method, path, payload, out)
	}, backoff.WithBackOff(b), backoff.WithMaxTries(c.maxTries))
	if err == nil {
		return nil
	}

	var rErr *errors.RecallError
	if stderrors.As(err, &rErr) {
		return rErr
	}
	return errors.NewStoreUnavailable(method+" "+path, err)
}

func (c *Client) attempt(ctx context.Context, method, path string, payload []byte, out any) error {
	var body io.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return backoff.Permanent(errors.NewInternal(err))
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return backoff.Permanent(errors.NewStoreUnavailable(method+" "+path, err))
		}
		return err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return err
	}

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		if out == nil || len(bytes.TrimSpace(data)) == 0 {
			return nil
		}
		if err := json.Unmarshal(data, out); err != nil {
			return backoff.Permanent(errors.NewStoreUnavailable(method+" "+path,
				fmt.Errorf("decode response: %w", err)))
		}
		return nil
	}

	msg := apiMessage(data, resp.Status)
	switch {
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return fmt.Errorf("%s %s: %s", method, path, msg)
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return backoff.Permanent(errors.NewNotConfigured("api_key", "rejected by memory store: "+msg))
	case resp.StatusCode == http.StatusNotFound:
		return backoff.Permanent(errors.NewNotFound("resource", path))
	case resp.StatusCode == http.StatusConflict:
		return backoff.Permanent(errors.NewConflict(msg))
	default:
		return backoff.Permanent(errors.NewInvalidRequest(msg))
	}
}

// apiMessage extracts a human-readable error from a response body.
func apiMessage(data []byte, status string) string {
	var body struct {
		Detail  string `json:"detail"`
		Message string `json:"message"`
		Error   string `json:"error"`
	}
	if json.Unmarshal(data, &body) == nil {
		for _, s := range []string{body.Detail, body.Message, body.Error} {
			if s != "" {
				return s
			}
		}
	}
	return status
}
