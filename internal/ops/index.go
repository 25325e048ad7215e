package ops

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"unicode/utf8"

	"github.com/gobwas/glob"

	"github.com/hpungsan/recall/internal/errors"
	"github.com/hpungsan/recall/internal/project"
	"github.com/hpungsan/recall/internal/store"
)

// IndexSource tags memories created by Index.
const IndexSource = "code-index"

// DefaultIndexSkip lists the files Index never stores: lockfiles, generated
// bundles and markdown. Patterns match the whole repository-relative path.
var DefaultIndexSkip = []string{
	"*package-lock.json",
	"*yarn.lock",
	"*pnpm-lock.yaml",
	"*.min.js",
	"*.min.css",
	"*.bundle.js",
	"*.chunk.js",
	"*.md",
}

// IndexInput contains parameters for the Index operation.
type IndexInput struct {
	Dir string // directory to index; its project owns the memories
	// Skip adds patterns to DefaultIndexSkip.
	Skip []string
	// Progress, if set, is called after each stored file.
	Progress func(done, total int)
}

// IndexOutput contains the result of the Index operation.
type IndexOutput struct {
	Dir        string   `json:"dir"`
	Project    string   `json:"project"`
	Collection string   `json:"collection"`
	Indexed    int      `json:"indexed"`
	Skipped    int      `json:"skipped"`
	Files      []string `json:"files"`
}

// Index stores every git-tracked file under input.Dir as a memory in the
// project's collection. Skipped files are those matching a skip pattern,
// empty, binary or no longer on disk. A store failure stops the run.
func Index(ctx context.Context, env *Env, input IndexInput) (*IndexOutput, error) {
	dir, err := filepath.Abs(input.Dir)
	if err != nil {
		return nil, errors.NewInvalidRequest("invalid directory: " + err.Error())
	}
	skip, err := compileGlobs(append(append([]string{}, DefaultIndexSkip...), input.Skip...))
	if err != nil {
		return nil, err
	}

	files, err := project.TrackedFiles(ctx, dir)
	if err != nil {
		return nil, err
	}

	type candidate struct {
		rel  string
		body []byte
	}
	var eligible []candidate
	for _, rel := range files {
		if matchesAny(skip, rel) {
			continue
		}
		body, err := os.ReadFile(filepath.Join(dir, rel))
		if err != nil || len(bytes.TrimSpace(body)) == 0 || isBinary(body) {
			continue
		}
		eligible = append(eligible, candidate{rel: rel, body: body})
	}

	out := &IndexOutput{Dir: dir, Skipped: len(files) - len(eligible), Files: []string{}}
	if len(eligible) == 0 {
		return out, nil
	}

	s, err := env.requireStore()
	if err != nil {
		return nil, err
	}
	info, collection := env.resolve(ctx, dir)
	out.Project, out.Collection = info.Name, collection

	for i, c := range eligible {
		if err := ctx.Err(); err != nil {
			return nil, errors.NewInternal(err)
		}
		if _, err := s.Append(ctx, store.AppendRequest{
			Collection: collection,
			Messages:   []store.Message{{Role: "user", Content: string(c.body)}},
			Metadata: map[string]any{
				"filepath": filepath.ToSlash(c.rel),
				"source":   IndexSource,
				"project":  info.Name,
			},
		}); err != nil {
			if env.Logger != nil {
				env.Logger.Warn("index stopped", "file", c.rel, "indexed", i, "error", err)
			}
			return nil, err
		}
		out.Indexed++
		out.Files = append(out.Files, c.rel)
		if input.Progress != nil {
			input.Progress(out.Indexed, len(eligible))
		}
	}
	return out, nil
}

func compileGlobs(patterns []string) ([]glob.Glob, error) {
	globs := make([]glob.Glob, 0, len(patterns))
	for _, p := range patterns {
		g, err := glob.Compile(p)
		if err != nil {
			return nil, errors.NewInvalidRequest("invalid skip pattern " + p + ": " + err.Error())
		}
		globs = append(globs, g)
	}
	return globs, nil
}

func matchesAny(globs []glob.Glob, path string) bool {
	for _, g := range globs {
		if g.Match(path) {
			return true
		}
	}
	return false
}

// isBinary treats NUL bytes or invalid UTF-8 as binary content.
func isBinary(body []byte) bool {
	return bytes.IndexByte(body, 0) >= 0 || !utf8.Valid(body)
}
