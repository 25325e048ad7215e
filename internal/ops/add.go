package ops

import (
	"context"
	"strings"

	"github.com/hpungsan/recall/internal/errors"
	"github.com/hpungsan/recall/internal/project"
	"github.com/hpungsan/recall/internal/store"
	"github.com/hpungsan/recall/internal/transcript"
)

// AddInput contains parameters for the Add operation.
type AddInput struct {
	Content string // required
	CWD     string // project directory
}

// AddOutput contains the result of the Add operation.
type AddOutput struct {
	ID         string `json:"id"`
	Collection string `json:"collection"`
	Project    string `json:"project"`
}

// Add saves a single manual memory to the project's collection.
func Add(ctx context.Context, env *Env, input AddInput) (*AddOutput, error) {
	content := transcript.Sanitize(strings.TrimSpace(input.Content), 0)
	if content == "" {
		return nil, errors.NewInvalidRequest("content is required")
	}
	s, err := env.requireStore()
	if err != nil {
		return nil, err
	}

	info, collection := env.resolve(ctx, input.CWD)
	id, err := s.Append(ctx, store.AppendRequest{
		Collection: collection,
		Messages:   []store.Message{{Role: "user", Content: content}},
		Metadata: map[string]any{
			"memory_type": "conversation",
			"type":        "manual",
			"project":     info.Name,
			"user":        project.UserTag(ctx),
			"timestamp":   env.now().UTC().Format("2006-01-02T15:04:05.000Z07:00"),
		},
	})
	if err != nil {
		return nil, err
	}
	return &AddOutput{ID: id, Collection: collection, Project: info.Name}, nil
}
