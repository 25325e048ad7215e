package ops

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/hpungsan/recall/internal/config"
	"github.com/hpungsan/recall/internal/errors"
	"github.com/hpungsan/recall/internal/store"
)

// SearchInput contains parameters for the Search operation.
type SearchInput struct {
	Query string // required
	CWD   string // project directory
	Limit int    // default: 10, max: 50
}

// SearchOutput contains the result of the Search operation.
type SearchOutput struct {
	Query      string      `json:"query"`
	Project    string      `json:"project"`
	Collection string      `json:"collection"`
	Static     []string    `json:"static,omitempty"`
	Dynamic    []string    `json:"dynamic,omitempty"`
	Items      []store.Hit `json:"items"`
}

// Search queries the project's memories.
func Search(ctx context.Context, env *Env, input SearchInput) (*SearchOutput, error) {
	query := strings.TrimSpace(input.Query)
	if query == "" {
		return nil, errors.NewInvalidRequest("query is required")
	}
	if utf8.RuneCountInString(query) > MaxQueryLength {
		return nil, errors.NewInvalidRequest(fmt.Sprintf("query exceeds maximum length of %d characters", MaxQueryLength))
	}
	s, err := env.requireStore()
	if err != nil {
		return nil, err
	}

	// Apply limit defaults and bounds
	limit := input.Limit
	if limit <= 0 {
		limit = DefaultSearchLimit
	}
	if limit > MaxSearchLimit {
		limit = MaxSearchLimit
	}

	info, collection := env.resolve(ctx, input.CWD)
	res, err := s.Search(ctx, store.SearchRequest{Query: query, Collection: collection, Limit: limit})
	if err != nil {
		return nil, err
	}

	maxItems := config.DefaultConfig().MaxProfileItems
	if env.Config != nil && env.Config.MaxProfileItems > 0 {
		maxItems = env.Config.MaxProfileItems
	}
	profile := store.ProfileFromSearch(res, maxItems)

	items := profile.Hits
	if len(items) > limit {
		items = items[:limit]
	}
	if items == nil {
		items = []store.Hit{}
	}
	return &SearchOutput{
		Query:      query,
		Project:    info.Name,
		Collection: collection,
		Static:     profile.Static,
		Dynamic:    profile.Dynamic,
		Items:      items,
	}, nil
}
