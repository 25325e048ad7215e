package hooks

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/hpungsan/recall/internal/checkpoint"
	"github.com/hpungsan/recall/internal/config"
	"github.com/hpungsan/recall/internal/errors"
	"github.com/hpungsan/recall/internal/format"
	"github.com/hpungsan/recall/internal/inject"
	"github.com/hpungsan/recall/internal/project"
	"github.com/hpungsan/recall/internal/state"
	"github.com/hpungsan/recall/internal/store"
	"github.com/hpungsan/recall/internal/store/storetest"
)

type harness struct {
	runner     *Runner
	fake       *storetest.Fake
	kv         *state.MemoryStore
	transcript string
	cwd        string
}

func newHarness(t *testing.T, withStore bool, mutate func(*config.Config)) *harness {
	t.Helper()
	cfg := config.DefaultConfig()
	if mutate != nil {
		mutate(cfg)
	}
	kv := state.NewMemoryStore()
	fake := storetest.New()
	d := Deps{
		Config:      cfg,
		Checkpoints: checkpoint.NewStore(kv, nil),
		Dedup:       inject.NewDeduplicator(kv, nil),
		Resolver:    project.NewResolver(fake, kv, "col-fixed", nil),
	}
	if withStore {
		d.Store = fake
	}
	dir := t.TempDir()
	return &harness{
		runner:     NewRunner(d),
		fake:       fake,
		kv:         kv,
		transcript: filepath.Join(dir, "transcript.jsonl"),
		cwd:        dir,
	}
}

func (h *harness) writeTranscript(t *testing.T, lines ...string) {
	t.Helper()
	require.NoError(t, os.WriteFile(h.transcript, []byte(strings.Join(lines, "\n")+"\n"), 0600))
}

func (h *harness) run(t *testing.T, event Event, in Input) Output {
	t.Helper()
	if in.CWD == "" {
		in.CWD = h.cwd
	}
	payload, err := json.Marshal(in)
	require.NoError(t, err)

	var out bytes.Buffer
	require.NoError(t, h.runner.Run(context.Background(), string(event), bytes.NewReader(payload), &out))

	var got Output
	require.NoError(t, json.Unmarshal(out.Bytes(), &got))
	return got
}

func (h *harness) input(sessionID string) Input {
	return Input{SessionID: sessionID, TranscriptPath: h.transcript}
}

func TestReadInput(t *testing.T) {
	in, err := ReadInput(strings.NewReader("  \n"))
	require.NoError(t, err)
	require.Equal(t, Input{}, in)

	in, err = ReadInput(strings.NewReader(`{"session_id":"s1","transcript_path":"/t.jsonl","cwd":"/w","tool_name":"Edit","prompt":"hi"}`))
	require.NoError(t, err)
	require.Equal(t, Input{SessionID: "s1", TranscriptPath: "/t.jsonl", CWD: "/w", ToolName: "Edit", Prompt: "hi"}, in)

	_, err = ReadInput(strings.NewReader("{not json"))
	require.True(t, errors.Is(err, errors.ErrInvalidRequest))
}

func TestReadInput_TooLarge(t *testing.T) {
	payload := `{"prompt":"` + strings.Repeat("p", MaxInputBytes) + `"}`
	_, err := ReadInput(strings.NewReader(payload))
	require.True(t, errors.Is(err, errors.ErrInvalidRequest))
	require.Contains(t, err.Error(), "hook input too large")
	require.NotContains(t, err.Error(), "not valid JSON")

	atLimit := `{"prompt":"` + strings.Repeat("p", MaxInputBytes-13) + `"}`
	require.Len(t, atLimit, MaxInputBytes)
	in, err := ReadInput(strings.NewReader(atLimit))
	require.NoError(t, err)
	require.Len(t, in.Prompt, MaxInputBytes-13)
}

func TestWriteOutput_Default(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteOutput(&buf, Default()))
	require.JSONEq(t, `{"continue":true,"suppressOutput":true}`, buf.String())

	buf.Reset()
	require.NoError(t, WriteOutput(&buf, WithContext("SessionStart", "ctx")))
	require.JSONEq(t, `{"hookSpecificOutput":{"hookEventName":"SessionStart","additionalContext":"ctx"}}`, buf.String())
}

func TestRun_UnknownEvent(t *testing.T) {
	h := newHarness(t, true, nil)
	var out bytes.Buffer
	err := h.runner.Run(context.Background(), "bogus", strings.NewReader("{}"), &out)
	require.Error(t, err)
	require.JSONEq(t, `{"continue":true,"suppressOutput":true}`, out.String())
}

func TestRun_UnparsableInputStillContinues(t *testing.T) {
	h := newHarness(t, true, nil)
	var out bytes.Buffer
	require.NoError(t, h.runner.Run(context.Background(), string(EventStop), strings.NewReader("garbage"), &out))
	require.JSONEq(t, `{"continue":true,"suppressOutput":true}`, out.String())
}

func TestRun_HandlerPanicYieldsDefault(t *testing.T) {
	h := newHarness(t, true, nil)
	// A nil deduplicator makes session-start panic.
	h.runner.dedup = nil
	got := h.run(t, EventSessionStart, h.input("s1"))
	require.Equal(t, Default(), got)
}

func TestSessionStart_NoStoreShowsHint(t *testing.T) {
	h := newHarness(t, false, nil)
	got := h.run(t, EventSessionStart, h.input("s1"))
	require.NotNil(t, got.HookSpecificOutput)
	require.Equal(t, "SessionStart", got.HookSpecificOutput.HookEventName)
	require.Contains(t, got.HookSpecificOutput.AdditionalContext, "No API key found")
	require.True(t, strings.HasPrefix(got.HookSpecificOutput.AdditionalContext, "<"+format.ContextTag+">"))
}

func TestSessionStart_InjectsProfileOnce(t *testing.T) {
	h := newHarness(t, true, nil)
	h.fake.Result = &store.SearchResult{
		Hits:     []store.Hit{{ID: "1", Text: "Refactored the capture pipeline", Score: 0.8}},
		Entities: []store.Entity{{Name: "user", Category: "person", Description: "Prefers Go"}},
		Facts:    []store.Fact{{Subject: "recall", Predicate: "uses", Object: "sqlite"}},
	}

	got := h.run(t, EventSessionStart, h.input("s1"))
	require.NotNil(t, got.HookSpecificOutput)
	text := got.HookSpecificOutput.AdditionalContext
	require.Contains(t, text, "- Prefers Go")
	require.Contains(t, text, "- recall uses sqlite")
	require.Contains(t, text, "Refactored the capture pipeline [80%]")

	require.Len(t, h.fake.Searches, 1)
	require.Equal(t, "col-fixed", h.fake.Searches[0].Collection)
	require.Equal(t, sessionStartLimit, h.fake.Searches[0].Limit)
	require.True(t, strings.HasSuffix(h.fake.Searches[0].Query, " recent work context"))

	// Same block for the same session is not injected again
	require.Equal(t, Default(), h.run(t, EventSessionStart, h.input("s1")))
}

func TestSessionStart_SearchFailureFallsBack(t *testing.T) {
	h := newHarness(t, true, nil)
	h.fake.SearchErr = errors.NewStoreUnavailable("search", nil)

	got := h.run(t, EventSessionStart, h.input("s1"))
	require.NotNil(t, got.HookSpecificOutput)
	require.Equal(t, format.Wrap(noMemories), got.HookSpecificOutput.AdditionalContext)
}

func TestSessionStart_SkipProfile(t *testing.T) {
	h := newHarness(t, true, func(c *config.Config) { c.SkipProfile = true })
	require.Equal(t, Default(), h.run(t, EventSessionStart, h.input("s1")))
	require.Empty(t, h.fake.Searches)
}

func TestPrompt_CapturesAndInjects(t *testing.T) {
	h := newHarness(t, true, nil)
	h.writeTranscript(t,
		`{"uuid":"u1","type":"user","message":{"content":"How should the checkpoint store work?"}}`,
		`{"uuid":"u2","type":"assistant","message":{"content":[{"type":"text","text":"Key it by session id."}]}}`,
	)
	h.fake.Result = &store.SearchResult{Hits: []store.Hit{
		{Text: "Checkpoints live under ~/.recall/state", Score: 0.91, Role: "assistant"},
		{Text: "weak match", Score: 0.1},
	}}

	in := h.input("s1")
	in.Prompt = "where do checkpoints live?"
	got := h.run(t, EventPrompt, in)

	require.NotNil(t, got.HookSpecificOutput)
	require.Equal(t, "UserPromptSubmit", got.HookSpecificOutput.HookEventName)
	require.Equal(t, format.BudgetHeader+"\n1. (91%) [assistant] Checkpoints live under ~/.recall/state",
		got.HookSpecificOutput.AdditionalContext)

	require.Equal(t, 1, h.fake.AppendCount())
	require.Len(t, h.fake.LastAppend().Messages, 2)
	require.Equal(t, "UserPromptSubmit", h.fake.LastAppend().Metadata["hook"])
	require.Equal(t, "where do checkpoints live?", h.fake.Searches[0].Query)
}

func TestPrompt_ShortPromptSkipsSearch(t *testing.T) {
	h := newHarness(t, true, nil)
	h.writeTranscript(t, `{"uuid":"u1","type":"user","message":{"content":"a message long enough"}}`)

	in := h.input("s1")
	in.Prompt = " ok "
	require.Equal(t, Default(), h.run(t, EventPrompt, in))
	require.Empty(t, h.fake.Searches)
	require.Equal(t, 1, h.fake.AppendCount())
}

func TestPrompt_SearchFailureStillCaptures(t *testing.T) {
	h := newHarness(t, true, nil)
	h.writeTranscript(t, `{"uuid":"u1","type":"user","message":{"content":"a message long enough"}}`)
	h.fake.SearchErr = errors.NewStoreUnavailable("search", nil)

	in := h.input("s1")
	in.Prompt = "anything relevant?"
	require.Equal(t, Default(), h.run(t, EventPrompt, in))
	require.Equal(t, 1, h.fake.AppendCount())
}

func TestPrompt_DedupUsesDefaultSession(t *testing.T) {
	h := newHarness(t, true, nil)
	h.fake.Result = &store.SearchResult{Hits: []store.Hit{{Text: "remembered", Score: 0.9}}}

	in := Input{Prompt: "tell me again"}
	first := h.run(t, EventPrompt, in)
	require.NotNil(t, first.HookSpecificOutput)
	require.Equal(t, Default(), h.run(t, EventPrompt, in))

	raw, err := h.kv.Get(context.Background(), state.Key(inject.Namespace, defaultSession))
	require.NoError(t, err)
	require.Contains(t, string(raw), inject.Hash(first.HookSpecificOutput.AdditionalContext))
}

func TestPostToolUse_RespectsToolFilter(t *testing.T) {
	h := newHarness(t, true, nil)
	h.writeTranscript(t, `{"uuid":"u1","type":"user","message":{"content":"a message long enough"}}`)

	in := h.input("s1")
	in.ToolName = "Read"
	require.Equal(t, Default(), h.run(t, EventPostTool, in))
	require.Zero(t, h.fake.AppendCount())

	in.ToolName = "Edit"
	require.Equal(t, Default(), h.run(t, EventPostTool, in))
	require.Equal(t, 1, h.fake.AppendCount())
	require.Equal(t, "PostToolUse", h.fake.LastAppend().Metadata["hook"])
}

func TestStopAndSessionEnd_Capture(t *testing.T) {
	h := newHarness(t, true, nil)
	h.writeTranscript(t, `{"uuid":"u1","type":"user","message":{"content":"first message long enough"}}`)
	require.Equal(t, Default(), h.run(t, EventStop, h.input("s1")))
	require.Equal(t, 1, h.fake.AppendCount())

	h.writeTranscript(t,
		`{"uuid":"u1","type":"user","message":{"content":"first message long enough"}}`,
		`{"uuid":"u2","type":"assistant","message":{"content":"second message long enough"}}`,
	)
	require.Equal(t, Default(), h.run(t, EventSessionEnd, h.input("s1")))
	require.Equal(t, 2, h.fake.AppendCount())
	last := h.fake.LastAppend()
	require.Equal(t, "handle-1", last.Handle)
	require.Equal(t, []store.Message{{Role: "assistant", Content: "second message long enough"}}, last.Messages)
}

func TestCaptureHooks_NoStoreIsNoop(t *testing.T) {
	h := newHarness(t, false, nil)
	h.writeTranscript(t, `{"uuid":"u1","type":"user","message":{"content":"a message long enough"}}`)
	for _, ev := range []Event{EventPrompt, EventPostTool, EventStop, EventSessionEnd} {
		in := h.input("s1")
		in.ToolName = "Edit"
		in.Prompt = "long enough prompt"
		require.Equal(t, Default(), h.run(t, ev, in), "event %s", ev)
	}
	require.Zero(t, h.fake.AppendCount())
}

func TestEvents_AllHandled(t *testing.T) {
	h := newHarness(t, false, nil)
	for _, ev := range Events() {
		_, ok := h.runner.handlers[ev]
		require.True(t, ok, "event %s has no handler", ev)
		require.NotEmpty(t, hostEvents[ev])
	}
}
