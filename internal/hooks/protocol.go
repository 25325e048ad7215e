// Package hooks implements the host hook protocol: one JSON object in on
// stdin, one JSON object out on stdout, and never a blocking failure.
package hooks

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"

	"github.com/hpungsan/recall/internal/errors"
)

// MaxInputBytes bounds how much of stdin is read.
const MaxInputBytes = 1 << 20

// Input is the payload the host sends to every hook.
type Input struct {
	SessionID      string `json:"session_id"`
	TranscriptPath string `json:"transcript_path"`
	CWD            string `json:"cwd"`
	HookEventName  string `json:"hook_event_name,omitempty"`
	ToolName       string `json:"tool_name,omitempty"`
	Prompt         string `json:"prompt,omitempty"`
}

// HookSpecificOutput carries context for the host to add to the conversation.
type HookSpecificOutput struct {
	HookEventName     string `json:"hookEventName"`
	AdditionalContext string `json:"additionalContext"`
}

// Output is the hook's answer to the host.
type Output struct {
	Continue           bool                `json:"continue,omitempty"`
	SuppressOutput     bool                `json:"suppressOutput,omitempty"`
	HookSpecificOutput *HookSpecificOutput `json:"hookSpecificOutput,omitempty"`
}

// Default is the output used whenever a hook has nothing to add.
func Default() Output {
	return Output{Continue: true, SuppressOutput: true}
}

// WithContext returns an output injecting text for the named host event.
func WithContext(hostEvent, text string) Output {
	return Output{HookSpecificOutput: &HookSpecificOutput{
		HookEventName:     hostEvent,
		AdditionalContext: text,
	}}
}

// ReadInput decodes the hook payload. Empty input yields a zero Input.
func ReadInput(r io.Reader) (Input, error) {
	data, err := io.ReadAll(io.LimitReader(r, MaxInputBytes+1))
	if err != nil {
		return Input{}, fmt.Errorf("read hook input: %w", err)
	}
	if len(data) > MaxInputBytes {
		return Input{}, errors.NewInvalidRequest(fmt.Sprintf("hook input too large: exceeds %d bytes", MaxInputBytes))
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return Input{}, nil
	}
	var in Input
	if err := json.Unmarshal(data, &in); err != nil {
		return Input{}, errors.NewInvalidRequest(fmt.Sprintf("hook input is not valid JSON: %v", err))
	}
	return in, nil
}

// WriteOutput encodes out as a single JSON line.
func WriteOutput(w io.Writer, out Output) error {
	return json.NewEncoder(w).Encode(out)
}
