// Package capture sends the not-yet-captured part of a session transcript to
// the memory store and advances the session checkpoint.
package capture

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/hpungsan/recall/internal/checkpoint"
	"github.com/hpungsan/recall/internal/errors"
	"github.com/hpungsan/recall/internal/store"
	"github.com/hpungsan/recall/internal/transcript"
)

// Request identifies what to capture.
type Request struct {
	TranscriptPath string
	SessionID      string
	// HookName is recorded in message metadata.
	HookName   string
	Collection string
	Project    string
}

// Result reports one capture. Success with Count 0 means nothing new.
type Result struct {
	Success bool   `json:"success"`
	Count   int    `json:"count"`
	Error   string `json:"error,omitempty"`
	// Retryable marks a transient store failure; the next run resends the window.
	Retryable bool `json:"retryable,omitempty"`
}

// Pipeline wires the transcript reader, checkpoint store and memory store.
type Pipeline struct {
	checkpoints *checkpoint.Store
	store       store.Store
	minChars    int
	maxChars    int
	logger      *slog.Logger
}

// Options tunes a Pipeline.
type Options struct {
	// MinContentChars is passed to transcript.Extract.
	MinContentChars int
	// MaxContentChars caps each sanitized message.
	MaxContentChars int
	Logger          *slog.Logger
}

// New creates a Pipeline.
func New(cps *checkpoint.Store, s store.Store, opts Options) *Pipeline {
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Pipeline{
		checkpoints: cps,
		store:       s,
		minChars:    opts.MinContentChars,
		maxChars:    opts.MaxContentChars,
		logger:      logger,
	}
}

// Capture processes transcript entries after the session checkpoint.
//
// The checkpoint only moves once the store has accepted the messages, so a
// failed send is retried on the next call. A conversation handle returned
// with a failed send is kept so the retry extends the same conversation. A window that yields no messages
// still moves the checkpoint past it. Capture never panics and never returns
// an error; failures are reported in Result.
func (p *Pipeline) Capture(ctx context.Context, req Request) (res Result) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("capture panicked", "session", req.SessionID, "panic", r)
			res = Result{Error: fmt.Sprintf("internal error: %v", r)}
		}
	}()

	if req.TranscriptPath == "" || req.SessionID == "" {
		return Result{Error: "transcript path and session id are required"}
	}

	entries, err := transcript.Read(req.TranscriptPath)
	if err != nil {
		return Result{Error: err.Error()}
	}
	if len(entries) == 0 {
		return Result{Success: true}
	}

	cp := p.checkpoints.Load(ctx, req.SessionID)
	window, restarted := transcript.After(entries, cp.LastUUID)
	if restarted {
		p.logger.Warn("checkpoint uuid not in transcript, capturing from start",
			"session", req.SessionID, "last_uuid", cp.LastUUID)
	}

	last := lastUUID(window)
	if last == "" {
		return Result{Success: true}
	}

	messages := ExtractMessages(window, p.minChars, p.maxChars)
	if len(messages) == 0 {
		cp.LastUUID = last
		if err := p.checkpoints.Save(ctx, cp); err != nil {
			return Result{Error: fmt.Sprintf("save checkpoint: %v", err)}
		}
		return Result{Success: true}
	}

	handle, err := p.store.Append(ctx, store.AppendRequest{
		Handle:     cp.RemoteHandle,
		Collection: req.Collection,
		Messages:   messages,
		Metadata: map[string]any{
			"session_id": req.SessionID,
			"hook":       req.HookName,
			"project":    req.Project,
		},
	})
	if err != nil {
		p.logger.Warn("append failed, checkpoint unchanged", "session", req.SessionID, "error", err)
		if cp.RemoteHandle == "" && handle != "" {
			// The conversation exists remotely; the retry must extend it.
			cp.RemoteHandle = handle
			if saveErr := p.checkpoints.Save(ctx, cp); saveErr != nil {
				p.logger.Warn("could not record conversation handle", "session", req.SessionID, "error", saveErr)
			}
		}
		return Result{Error: err.Error(), Retryable: errors.IsRetryable(err)}
	}

	cp.LastUUID = last
	if cp.RemoteHandle == "" && handle != "" {
		cp.RemoteHandle = handle
	}
	if err := p.checkpoints.Save(ctx, cp); err != nil {
		// The messages are stored; the next run sends them again.
		p.logger.Warn("stored messages but could not save checkpoint",
			"session", req.SessionID, "count", len(messages), "error", err)
	}

	p.logger.Debug("captured", "session", req.SessionID, "hook", req.HookName, "count", len(messages))
	return Result{Success: true, Count: len(messages)}
}

// ExtractMessages turns user and assistant entries into store messages in
// transcript order, dropping entries with nothing worth keeping.
func ExtractMessages(entries []transcript.Entry, minChars, maxChars int) []store.Message {
	var out []store.Message
	for _, e := range entries {
		if !e.Conversational() {
			continue
		}
		text, ok := transcript.Extract(e.Message.Content, minChars)
		if !ok {
			continue
		}
		text = transcript.Sanitize(text, maxChars)
		if text == "" {
			continue
		}
		out = append(out, store.Message{Role: string(e.Type), Content: text})
	}
	return out
}

// lastUUID returns the uuid of the last entry in window that has one.
func lastUUID(window []transcript.Entry) string {
	for i := len(window) - 1; i >= 0; i-- {
		if window[i].UUID != "" {
			return window[i].UUID
		}
	}
	return ""
}
