// Package format renders recalled memories as context blocks for the host.
package format

import (
	"fmt"
	"math"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/hpungsan/recall/internal/store"
)

// ContextTag wraps session-start context. Capture strips it back out so
// recalled memories are never stored again.
const ContextTag = "nebula-context"

const (
	intro      = "The following is recalled context about the user. Reference it only when relevant to the conversation."
	disclaimer = "Use these memories naturally when relevant — including indirect connections — but don't force them into every response or make assumptions beyond what's stated."

	titleStatic  = "## User Profile (Persistent)"
	titleDynamic = "## Recent Context"
	titleSearch  = "## Relevant Memories (with relevance %)"
)

// Input is the material for one context block.
type Input struct {
	Static  []string
	Dynamic []string
	Hits    []store.Hit
}

// Options controls Format.
type Options struct {
	// MaxItems caps each category after deduplication; <= 0 means no cap.
	MaxItems int
	// Now is the reference time for relative timestamps (default time.Now).
	Now func() time.Time
}

// Counts records how many items of each category were rendered.
type Counts struct {
	Static  int `json:"static"`
	Dynamic int `json:"dynamic"`
	Search  int `json:"search"`
}

// FormattedContext is a rendered context block.
type FormattedContext struct {
	Text         string `json:"text"`
	SourceCounts Counts `json:"source_counts"`
}

// Format deduplicates by exact text (static before dynamic before search),
// caps each category and renders the sectioned block. ok is false when
// nothing is left to render.
func Format(in Input, opts Options) (FormattedContext, bool) {
	now := time.Now
	if opts.Now != nil {
		now = opts.Now
	}

	seen := make(map[string]bool)
	keep := func(text string) bool {
		if text == "" || seen[text] {
			return false
		}
		seen[text] = true
		return true
	}

	var statics, dynamics []string
	for _, s := range in.Static {
		if keep(s) {
			statics = append(statics, s)
		}
	}
	for _, s := range in.Dynamic {
		if keep(s) {
			dynamics = append(dynamics, s)
		}
	}
	var hits []store.Hit
	for _, h := range in.Hits {
		if keep(h.Text) {
			hits = append(hits, h)
		}
	}

	statics = capItems(statics, opts.MaxItems)
	dynamics = capItems(dynamics, opts.MaxItems)
	hits = capItems(hits, opts.MaxItems)

	if len(statics) == 0 && len(dynamics) == 0 && len(hits) == 0 {
		return FormattedContext{}, false
	}

	var sections []string
	if len(statics) > 0 {
		sections = append(sections, bulletSection(titleStatic, statics))
	}
	if len(dynamics) > 0 {
		sections = append(sections, bulletSection(titleDynamic, dynamics))
	}
	if len(hits) > 0 {
		t := now()
		lines := make([]string, len(hits))
		for i, h := range hits {
			prefix := ""
			if rel := RelativeTime(h.Timestamp, t); rel != "" {
				prefix = "[" + rel + "] "
			}
			lines[i] = fmt.Sprintf("- %s%s [%d%%]", prefix, h.Text, percent(h.Score))
		}
		sections = append(sections, titleSearch+"\n"+strings.Join(lines, "\n"))
	}

	text := Wrap(intro + "\n\n" + strings.Join(sections, "\n\n") + "\n\n" + disclaimer)
	return FormattedContext{
		Text:         text,
		SourceCounts: Counts{Static: len(statics), Dynamic: len(dynamics), Search: len(hits)},
	}, true
}

// Wrap encloses body in the context tag.
func Wrap(body string) string {
	return "<" + ContextTag + ">\n" + body + "\n</" + ContextTag + ">"
}

// RelativeTime describes ts relative to now: "just now", "{n}mins ago",
// "{n}hrs ago", "{n}d ago", or a date ("2 Jan", "2 Jan, 2006" for other
// years). A zero ts yields "".
func RelativeTime(ts, now time.Time) string {
	if ts.IsZero() {
		return ""
	}
	d := now.Sub(ts)
	switch {
	case d < 30*time.Minute:
		return "just now"
	case d < time.Hour:
		return fmt.Sprintf("%dmins ago", int(d/time.Minute))
	case d < 24*time.Hour:
		return fmt.Sprintf("%dhrs ago", int(d/time.Hour))
	case d < 7*24*time.Hour:
		return fmt.Sprintf("%dd ago", int(d/(24*time.Hour)))
	}
	local := ts.In(now.Location())
	if local.Year() == now.Year() {
		return local.Format("2 Jan")
	}
	return local.Format("2 Jan, 2006")
}

// BudgetOptions controls FormatBudget.
type BudgetOptions struct {
	// CharBudget caps the rendered size; the first line is always kept.
	CharBudget int
	// MinScore drops weaker hits before numbering.
	MinScore float64
}

// BudgetHeader opens every budgeted block.
const BudgetHeader = "Relevant memories from past sessions:"

// FormatBudget renders a numbered list of hits, stopping before the block
// would exceed the character budget. ok is false when no hit clears MinScore.
func FormatBudget(hits []store.Hit, opts BudgetOptions) (string, bool) {
	hits = store.FilterByScore(hits, opts.MinScore)
	if len(hits) == 0 {
		return "", false
	}

	var b strings.Builder
	b.WriteString(BudgetHeader)
	count := utf8.RuneCountInString(BudgetHeader)

	for i, h := range hits {
		role := ""
		if h.Role != "" {
			role = "[" + h.Role + "] "
		}
		line := fmt.Sprintf("\n%d. (%d%%) %s%s", i+1, percent(h.Score), role, h.Text)
		n := utf8.RuneCountInString(line)
		if opts.CharBudget > 0 && count+n > opts.CharBudget && i > 0 {
			break
		}
		b.WriteString(line)
		count += n
	}
	return b.String(), true
}

func bulletSection(title string, items []string) string {
	lines := make([]string, len(items))
	for i, s := range items {
		lines[i] = "- " + s
	}
	return title + "\n" + strings.Join(lines, "\n")
}

func capItems[T any](items []T, n int) []T {
	if n > 0 && len(items) > n {
		return items[:n]
	}
	return items
}

func percent(score float64) int {
	return int(math.Round(score * 100))
}
