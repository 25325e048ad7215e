package checkpoint

import (
	"context"
	"testing"
	"time"

	"github.com/hpungsan/recall/internal/state"
)

func TestLoad_Missing(t *testing.T) {
	s := NewStore(state.NewMemoryStore(), nil)

	cp := s.Load(context.Background(), "sess-1")
	if cp.SessionID != "sess-1" || cp.LastUUID != "" || cp.RemoteHandle != "" {
		t.Errorf("Load() = %+v, want empty checkpoint", cp)
	}
}

func TestLoad_Corrupt(t *testing.T) {
	ctx := context.Background()
	kv := state.NewMemoryStore()
	if err := kv.Set(ctx, "checkpoint/sess-1", []byte("{garbage")); err != nil {
		t.Fatal(err)
	}

	cp := NewStore(kv, nil).Load(ctx, "sess-1")
	if cp.LastUUID != "" {
		t.Errorf("Load() corrupt = %+v, want empty", cp)
	}
}

func TestSaveLoad(t *testing.T) {
	ctx := context.Background()
	s := NewStore(state.NewFileStore(t.TempDir()), nil)
	fixed := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return fixed }

	if err := s.Save(ctx, Checkpoint{SessionID: "sess-1", LastUUID: "u1", RemoteHandle: "mem-1"}); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	if err := s.Save(ctx, Checkpoint{SessionID: "sess-1", LastUUID: "u2", RemoteHandle: "mem-1"}); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	cp := s.Load(ctx, "sess-1")
	if cp.LastUUID != "u2" || cp.RemoteHandle != "mem-1" {
		t.Errorf("Load() = %+v, want last write", cp)
	}
	if !cp.UpdatedAt.Equal(fixed) {
		t.Errorf("UpdatedAt = %v, want %v", cp.UpdatedAt, fixed)
	}
}

func TestWireFormat(t *testing.T) {
	ctx := context.Background()
	kv := state.NewMemoryStore()
	if err := kv.Set(ctx, "checkpoint/old", []byte(`{"lastUuid":"abc","memoryId":"m-9"}`)); err != nil {
		t.Fatal(err)
	}

	cp := NewStore(kv, nil).Load(ctx, "old")
	if cp.LastUUID != "abc" || cp.RemoteHandle != "m-9" || cp.SessionID != "old" {
		t.Errorf("Load() = %+v", cp)
	}
}

func TestList(t *testing.T) {
	ctx := context.Background()
	kv := state.NewMemoryStore()
	s := NewStore(kv, nil)

	for _, id := range []string{"b", "a"} {
		if err := s.Save(ctx, Checkpoint{SessionID: id, LastUUID: "u-" + id}); err != nil {
			t.Fatal(err)
		}
	}
	if err := kv.Set(ctx, "checkpoint/broken", []byte("nope")); err != nil {
		t.Fatal(err)
	}

	cps, err := s.List(ctx)
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(cps) != 2 || cps[0].SessionID != "a" || cps[1].SessionID != "b" {
		t.Errorf("List() = %+v", cps)
	}
}
