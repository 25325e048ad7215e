// Package transcript reads Claude Code session transcripts (JSONL) and
// extracts the conversational text worth remembering.
package transcript

import (
	"bytes"
	"encoding/json"
	"time"
)

// EntryType is the kind of transcript line.
type EntryType string

const (
	TypeUser      EntryType = "user"
	TypeAssistant EntryType = "assistant"
)

// Entry is one parsed transcript line.
type Entry struct {
	UUID      string    `json:"uuid"`
	Type      EntryType `json:"type"`
	Message   Message   `json:"message"`
	Timestamp string    `json:"timestamp,omitempty"`
}

// Conversational reports whether the entry is a user or assistant turn.
func (e Entry) Conversational() bool {
	return e.Type == TypeUser || e.Type == TypeAssistant
}

// Time parses Timestamp, returning the zero time when absent or malformed.
func (e Entry) Time() time.Time {
	t, err := time.Parse(time.RFC3339Nano, e.Timestamp)
	if err != nil {
		return time.Time{}
	}
	return t
}

// Message is the payload of an entry. Content is nil when the line had none
// or it was neither a string nor a block array.
type Message struct {
	Role    string  `json:"role,omitempty"`
	Content Content `json:"-"`
}

// Content is either PlainText or Blocks.
type Content interface {
	isContent()
}

// PlainText is message content given as a bare string.
type PlainText string

// Blocks is message content given as an ordered list of typed blocks.
type Blocks []ContentBlock

func (PlainText) isContent() {}
func (Blocks) isContent()    {}

// ContentBlock is one element of a block-array message.
// Only "text" blocks carry extractable text; tool_use, tool_result, thinking
// and images are ignored.
type ContentBlock struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
}

// UnmarshalJSON resolves the string-or-array content shape once, at parse time.
func (m *Message) UnmarshalJSON(data []byte) error {
	var raw struct {
		Role    string          `json:"role"`
		Content json.RawMessage `json:"content"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		// A message that is not an object carries nothing extractable.
		*m = Message{}
		return nil
	}
	m.Role = raw.Role
	m.Content = decodeContent(raw.Content)
	return nil
}

// MarshalJSON writes content back in its original shape.
func (m Message) MarshalJSON() ([]byte, error) {
	out := struct {
		Role    string `json:"role,omitempty"`
		Content any    `json:"content,omitempty"`
	}{Role: m.Role}
	switch c := m.Content.(type) {
	case PlainText:
		out.Content = string(c)
	case Blocks:
		out.Content = []ContentBlock(c)
	}
	return json.Marshal(out)
}

func decodeContent(raw json.RawMessage) Content {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return nil
	}
	switch raw[0] {
	case '"':
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return nil
		}
		return PlainText(s)
	case '[':
		// Decode element-wise so one odd block does not lose the rest.
		var items []json.RawMessage
		if err := json.Unmarshal(raw, &items); err != nil {
			return nil
		}
		blocks := make(Blocks, 0, len(items))
		for _, item := range items {
			var b ContentBlock
			if err := json.Unmarshal(item, &b); err != nil {
				continue
			}
			blocks = append(blocks, b)
		}
		return blocks
	}
	return nil
}
