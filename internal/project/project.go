// Package project derives stable identifiers for the repository a session
// runs in, and resolves them to memory store collections.
package project

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/hpungsan/recall/internal/errors"
)

// TagPrefix starts every project container tag.
const TagPrefix = "claudecode_project_"

// userTagPrefix starts every user container tag.
const userTagPrefix = "claudecode_user_"

// gitTimeout bounds each git invocation; hooks must stay fast.
const gitTimeout = 2 * time.Second

// Info identifies a project.
type Info struct {
	Root string `json:"root"`
	Name string `json:"name"`
	Tag  string `json:"tag"`
}

// Detect resolves cwd to its git root (or cwd itself) and derives the tag
// and name from it.
func Detect(ctx context.Context, cwd string) Info {
	root := GitRoot(ctx, cwd)
	if root == "" {
		root = cwd
	}
	return Info{Root: root, Name: nameOf(root), Tag: TagPrefix + shortHash(root)}
}

// GitRoot returns the top-level directory of the repository containing cwd,
// or "" when cwd is not inside one or git is unavailable.
func GitRoot(ctx context.Context, cwd string) string {
	out, err := git(ctx, cwd, "rev-parse", "--show-toplevel")
	if err != nil {
		return ""
	}
	return out
}

// TrackedFiles lists the files git tracks under dir, relative to dir.
func TrackedFiles(ctx context.Context, dir string) ([]string, error) {
	cmd := exec.CommandContext(ctx, "git", "ls-files", "-z")
	cmd.Dir = dir
	out, err := cmd.Output()
	if err != nil {
		return nil, errors.NewInvalidRequest("not a git repository or git is not available: " + dir)
	}
	var files []string
	for _, f := range strings.Split(string(out), "\x00") {
		if f != "" {
			files = append(files, f)
		}
	}
	return files, nil
}

// UserTag identifies the person across projects: git email, then $USER,
// then "anonymous".
func UserTag(ctx context.Context) string {
	if email, err := git(ctx, "", "config", "user.email"); err == nil && email != "" {
		return userTagPrefix + shortHash(email)
	}
	for _, env := range []string{"USER", "USERNAME"} {
		if u := os.Getenv(env); u != "" {
			return userTagPrefix + shortHash(u)
		}
	}
	return userTagPrefix + shortHash("anonymous")
}

var unsafeName = regexp.MustCompile(`[^a-zA-Z0-9_-]`)

// CollectionName derives a store-friendly collection name.
func CollectionName(tag, name string) string {
	if name != "" && name != "unknown" {
		return strings.ToLower(unsafeName.ReplaceAllString(name, "_"))
	}
	return "project_" + strings.TrimPrefix(tag, TagPrefix)
}

var validTag = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)

// ValidateTag checks a container tag is safe to use as a collection key.
func ValidateTag(tag string) error {
	switch {
	case tag == "":
		return errors.NewInvalidRequest("tag is empty")
	case len(tag) > 100:
		return errors.NewInvalidRequest("tag exceeds 100 characters")
	case !validTag.MatchString(tag):
		return errors.NewInvalidRequest("tag contains invalid characters (only alphanumeric, underscore, hyphen allowed)")
	case strings.HasPrefix(tag, "-") || strings.HasPrefix(tag, "_") ||
		strings.HasSuffix(tag, "-") || strings.HasSuffix(tag, "_"):
		return errors.NewInvalidRequest("tag must not start or end with - or _")
	}
	return nil
}

func shortHash(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])[:16]
}

func nameOf(root string) string {
	base := filepath.Base(filepath.Clean(root))
	if base == "" || base == "." || base == string(filepath.Separator) {
		return "unknown"
	}
	return base
}

func git(ctx context.Context, dir string, args ...string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, gitTimeout)
	defer cancel()
	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Dir = dir
	out, err := cmd.Output()
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(out)), nil
}
