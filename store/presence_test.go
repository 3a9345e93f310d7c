package store

import (
	"context"
	"testing"
	"time"

	"boardly/domain"
)

func newSubscribedPresence(t *testing.T, fake *fakeChannel) *Presence {
	t.Helper()
	s := NewPresence(fake, nil)
	s.now = func() time.Time { return time.UnixMilli(1700000000000) }
	cancel, err := s.Subscribe(context.Background())
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	t.Cleanup(cancel)
	return s
}

func TestPresenceSnapshotReplace(t *testing.T) {
	fake := &fakeChannel{}
	s := newSubscribedPresence(t, fake)

	fake.pushPresence(map[string]domain.PresenceEntry{
		"alice": {UserID: "alice", Online: true},
	})
	if got := s.Snapshot(); len(got) != 1 {
		t.Fatalf("unexpected snapshot: %v", got)
	}

	fake.pushPresence(map[string]domain.PresenceEntry{
		"bob": {UserID: "bob", Online: true},
	})
	got := s.Snapshot()
	if _, stale := got["alice"]; stale {
		t.Fatalf("expected full replacement, got %v", got)
	}
}

func TestPresenceSetOnlineWritesAllFields(t *testing.T) {
	fake := &fakeChannel{}
	s := newSubscribedPresence(t, fake)

	if err := s.SetOnline(context.Background(), "alice", "Alice"); err != nil {
		t.Fatalf("set online: %v", err)
	}
	if len(fake.presenceWrites) != 1 {
		t.Fatalf("expected one write, got %d", len(fake.presenceWrites))
	}
	w := fake.presenceWrites[0]
	if w.userID != "alice" {
		t.Fatalf("unexpected user %q", w.userID)
	}
	if w.fields.DisplayName == nil || *w.fields.DisplayName != "Alice" {
		t.Fatalf("display name not written: %+v", w.fields)
	}
	if w.fields.Online == nil || !*w.fields.Online {
		t.Fatalf("online flag not written: %+v", w.fields)
	}
	if w.fields.LastSeen == nil || *w.fields.LastSeen != 1700000000000 {
		t.Fatalf("lastSeen not stamped: %+v", w.fields)
	}
}

func TestPresenceSetOfflineIsSoft(t *testing.T) {
	fake := &fakeChannel{}
	s := newSubscribedPresence(t, fake)

	if err := s.SetOffline(context.Background(), "alice"); err != nil {
		t.Fatalf("set offline: %v", err)
	}
	w := fake.presenceWrites[0]
	if w.fields.Online == nil || *w.fields.Online {
		t.Fatalf("expected online=false, got %+v", w.fields)
	}
	if w.fields.DisplayName != nil {
		t.Fatalf("soft offline must not touch display name: %+v", w.fields)
	}
	if len(fake.presenceDels) != 0 {
		t.Fatal("soft offline must not delete the slot")
	}
}

func TestPresenceRemoveDeletesSlot(t *testing.T) {
	fake := &fakeChannel{}
	s := newSubscribedPresence(t, fake)

	if err := s.Remove(context.Background(), "alice"); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if len(fake.presenceDels) != 1 || fake.presenceDels[0] != "alice" {
		t.Fatalf("unexpected deletes: %v", fake.presenceDels)
	}
}

func TestPresenceSetViewing(t *testing.T) {
	fake := &fakeChannel{}
	s := newSubscribedPresence(t, fake)

	if err := s.SetViewing(context.Background(), "alice", "task-1", true); err != nil {
		t.Fatalf("set viewing: %v", err)
	}
	w := fake.presenceWrites[0]
	if w.fields.Viewing == nil || *w.fields.Viewing != "task-1" {
		t.Fatalf("viewing not set: %+v", w.fields)
	}

	if err := s.SetViewing(context.Background(), "alice", "task-1", false); err != nil {
		t.Fatalf("clear viewing: %v", err)
	}
	w = fake.presenceWrites[1]
	if !w.fields.ClearViewing || w.fields.Viewing != nil {
		t.Fatalf("viewing not cleared: %+v", w.fields)
	}
}

func TestPresenceViewersExcludesSelf(t *testing.T) {
	fake := &fakeChannel{}
	s := newSubscribedPresence(t, fake)

	fake.pushPresence(map[string]domain.PresenceEntry{
		"me":    {UserID: "me", DisplayName: "Me", CurrentTaskViewing: "t1"},
		"alice": {UserID: "alice", DisplayName: "Alice", CurrentTaskViewing: "t1"},
	})

	viewers := s.Viewers("me")
	if len(viewers["t1"]) != 1 || viewers["t1"][0].UserID != "alice" {
		t.Fatalf("unexpected viewers: %v", viewers)
	}
}
