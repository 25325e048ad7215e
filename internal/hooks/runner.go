package hooks

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/hpungsan/recall/internal/capture"
	"github.com/hpungsan/recall/internal/checkpoint"
	"github.com/hpungsan/recall/internal/config"
	"github.com/hpungsan/recall/internal/format"
	"github.com/hpungsan/recall/internal/inject"
	"github.com/hpungsan/recall/internal/project"
	"github.com/hpungsan/recall/internal/store"
)

// Event is a hook name as given on the command line.
type Event string

const (
	EventSessionStart Event = "session-start"
	EventPrompt       Event = "prompt"
	EventPostTool     Event = "post-tool"
	EventStop         Event = "stop"
	EventSessionEnd   Event = "session-end"
)

// hostEvents maps events to the names the host uses in hookEventName.
var hostEvents = map[Event]string{
	EventSessionStart: "SessionStart",
	EventPrompt:       "UserPromptSubmit",
	EventPostTool:     "PostToolUse",
	EventStop:         "Stop",
	EventSessionEnd:   "SessionEnd",
}

// Events lists every supported event in lifecycle order.
func Events() []Event {
	return []Event{EventSessionStart, EventPrompt, EventPostTool, EventStop, EventSessionEnd}
}

const (
	// sessionStartLimit is how many hits the session-start search asks for.
	sessionStartLimit = 15
	// minPromptChars is the shortest prompt worth searching for.
	minPromptChars = 3
	// defaultSession keys dedup state when the host sent no session id.
	defaultSession = "default"
)

const (
	noKeyHint = "No API key found. Set RECALL_API_KEY environment variable.\n" +
		"Get your key at: https://trynebula.ai/settings/api-keys"
	noMemories = "No previous memories found for this project.\n" +
		"Memories will be saved as you work."
)

// Deps are the collaborators a Runner needs. Store is nil when the memory
// store is not configured; hooks then degrade to no-ops (and a hint at
// session start).
type Deps struct {
	Config      *config.Config
	Store       store.Store
	Checkpoints *checkpoint.Store
	Dedup       *inject.Deduplicator
	Resolver    *project.Resolver
	Logger      *slog.Logger
	Now         func() time.Time
}

// Runner dispatches hook events.
type Runner struct {
	cfg      *config.Config
	store    store.Store
	pipeline *capture.Pipeline
	dedup    *inject.Deduplicator
	resolver *project.Resolver
	logger   *slog.Logger
	now      func() time.Time
	getwd    func() (string, error)
	handlers map[Event]handler
}

type handler func(ctx context.Context, in Input) (Output, error)

// NewRunner creates a Runner.
func NewRunner(d Deps) *Runner {
	logger := d.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	cfg := d.Config
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	now := d.Now
	if now == nil {
		now = time.Now
	}
	r := &Runner{
		cfg:      cfg,
		store:    d.Store,
		dedup:    d.Dedup,
		resolver: d.Resolver,
		logger:   logger,
		now:      now,
		getwd:    os.Getwd,
	}
	if d.Store != nil {
		r.pipeline = capture.New(d.Checkpoints, d.Store, capture.Options{
			MinContentChars: cfg.MinContentChars,
			Logger:          logger,
		})
	}
	r.handlers = map[Event]handler{
		EventSessionStart: r.sessionStart,
		EventPrompt:       r.promptSubmit,
		EventPostTool:     r.postToolUse,
		EventStop:         r.captureOnly(EventStop),
		EventSessionEnd:   r.captureOnly(EventSessionEnd),
	}
	return r
}

// Run handles one hook invocation. Whatever goes wrong inside the handler,
// the host receives a valid output; the only error returned is for an
// unknown event.
func (r *Runner) Run(ctx context.Context, event string, stdin io.Reader, stdout io.Writer) error {
	h, ok := r.handlers[Event(event)]
	if !ok {
		r.write(stdout, Default())
		return fmt.Errorf("unknown hook event %q", event)
	}

	in, err := ReadInput(stdin)
	if err != nil {
		r.logger.Warn("hook input rejected", "event", event, "error", err)
		r.write(stdout, Default())
		return nil
	}
	r.logger.Debug("hook", "event", event, "session", in.SessionID, "tool", in.ToolName)

	out, err := r.safe(h)(ctx, in)
	if err != nil {
		r.logger.Warn("hook failed", "event", event, "session", in.SessionID, "error", err)
		out = Default()
	}
	r.write(stdout, out)
	return nil
}

func (r *Runner) write(w io.Writer, out Output) {
	if err := WriteOutput(w, out); err != nil {
		r.logger.Error("write hook output", "error", err)
	}
}

// safe turns a handler panic into an error.
func (r *Runner) safe(h handler) handler {
	return func(ctx context.Context, in Input) (out Output, err error) {
		defer func() {
			if p := recover(); p != nil {
				err = fmt.Errorf("hook panicked: %v", p)
			}
		}()
		return h(ctx, in)
	}
}

func (r *Runner) sessionStart(ctx context.Context, in Input) (Output, error) {
	host := hostEvents[EventSessionStart]
	if r.store == nil {
		return WithContext(host, format.Wrap(noKeyHint)), nil
	}
	if r.cfg.SkipProfile {
		return Default(), nil
	}

	info := project.Detect(ctx, r.cwd(in))
	collection := r.resolver.Resolve(ctx, info)

	text := ""
	res, err := r.store.Search(ctx, store.SearchRequest{
		Query:      info.Name + " recent work context",
		Collection: collection,
		Limit:      sessionStartLimit,
	})
	if err != nil {
		r.logger.Warn("session-start search failed", "collection", collection, "error", err)
	} else {
		p := store.ProfileFromSearch(res, r.cfg.MaxProfileItems)
		fc, ok := format.Format(format.Input{Static: p.Static, Dynamic: p.Dynamic, Hits: p.Hits},
			format.Options{MaxItems: r.cfg.MaxProfileItems, Now: r.now})
		if ok {
			text = fc.Text
			r.logger.Debug("session-start context", "static", fc.SourceCounts.Static,
				"dynamic", fc.SourceCounts.Dynamic, "search", fc.SourceCounts.Search)
		}
	}
	if text == "" {
		text = format.Wrap(noMemories)
	}

	if !r.dedup.ShouldInject(ctx, sessionKey(in), text) {
		return Default(), nil
	}
	return WithContext(host, text), nil
}

// promptSubmit captures what happened since the last hook and, at the same
// time, searches memories relevant to the new prompt.
func (r *Runner) promptSubmit(ctx context.Context, in Input) (Output, error) {
	if r.store == nil {
		return Default(), nil
	}
	info := project.Detect(ctx, r.cwd(in))
	collection := r.resolver.Resolve(ctx, info)

	// A failed search must not cancel the capture, so the group shares ctx.
	var block string
	var g errgroup.Group
	g.Go(func() error {
		r.capture(ctx, in, EventPrompt, info, collection)
		return nil
	})
	g.Go(func() error {
		var err error
		block, err = r.searchForPrompt(ctx, in.Prompt, collection)
		return err
	})
	if err := g.Wait(); err != nil {
		return Output{}, err
	}

	if block == "" || !r.dedup.ShouldInject(ctx, sessionKey(in), block) {
		return Default(), nil
	}
	return WithContext(hostEvents[EventPrompt], block), nil
}

// searchForPrompt returns the budgeted block for prompt, or "" when there is
// nothing worth injecting.
func (r *Runner) searchForPrompt(ctx context.Context, prompt, collection string) (string, error) {
	prompt = strings.TrimSpace(prompt)
	if r.cfg.DisablePromptSearch || len([]rune(prompt)) < minPromptChars {
		return "", nil
	}
	res, err := r.store.Search(ctx, store.SearchRequest{Query: prompt, Collection: collection})
	if err != nil {
		return "", fmt.Errorf("prompt search: %w", err)
	}
	block, ok := format.FormatBudget(res.Hits, format.BudgetOptions{
		CharBudget: r.cfg.CharBudget,
		MinScore:   r.cfg.MinScore,
	})
	if !ok {
		return "", nil
	}
	return block, nil
}

func (r *Runner) postToolUse(ctx context.Context, in Input) (Output, error) {
	if r.store == nil || !r.cfg.ShouldCaptureTool(in.ToolName) {
		return Default(), nil
	}
	info := project.Detect(ctx, r.cwd(in))
	r.capture(ctx, in, EventPostTool, info, r.resolver.Resolve(ctx, info))
	return Default(), nil
}

func (r *Runner) captureOnly(event Event) handler {
	return func(ctx context.Context, in Input) (Output, error) {
		if r.store == nil {
			return Default(), nil
		}
		info := project.Detect(ctx, r.cwd(in))
		r.capture(ctx, in, event, info, r.resolver.Resolve(ctx, info))
		return Default(), nil
	}
}

// capture runs the pipeline; its outcome never changes the hook output.
func (r *Runner) capture(ctx context.Context, in Input, event Event, info project.Info, collection string) capture.Result {
	res := r.pipeline.Capture(ctx, capture.Request{
		TranscriptPath: in.TranscriptPath,
		SessionID:      in.SessionID,
		HookName:       hostEvents[event],
		Collection:     collection,
		Project:        info.Name,
	})
	if res.Success {
		r.logger.Debug("capture", "event", event, "session", in.SessionID, "count", res.Count)
	} else {
		r.logger.Debug("capture failed", "event", event, "session", in.SessionID,
			"retryable", res.Retryable, "error", res.Error)
	}
	return res
}

func (r *Runner) cwd(in Input) string {
	if in.CWD != "" {
		return in.CWD
	}
	if wd, err := r.getwd(); err == nil {
		return wd
	}
	return "."
}

func sessionKey(in Input) string {
	if in.SessionID == "" {
		return defaultSession
	}
	return in.SessionID
}
