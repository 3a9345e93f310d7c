package storage

import (
	"context"
	"testing"
	"time"

	"boardly/domain"
)

func waitForPresence(t *testing.T, ch <-chan map[string]domain.PresenceEntry) map[string]domain.PresenceEntry {
	t.Helper()
	select {
	case presence := <-ch:
		return presence
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for presence snapshot")
		return nil
	}
}

func TestSubscribePresenceDeliversInitialSnapshot(t *testing.T) {
	s, _ := newTestStorage(t)
	ctx := context.Background()

	if err := s.WritePresence(ctx, "alice", domain.PresenceWrite{DisplayName: strPtr("Alice"), Online: boolPtr(true)}); err != nil {
		t.Fatalf("write presence: %v", err)
	}

	snapshots := make(chan map[string]domain.PresenceEntry, 4)
	cancel, err := s.SubscribePresence(ctx, func(p map[string]domain.PresenceEntry) {
		snapshots <- p
	})
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	defer cancel()

	presence := waitForPresence(t, snapshots)
	if _, ok := presence["alice"]; !ok {
		t.Fatalf("expected alice in initial snapshot, got %v", presence)
	}
}

func TestSubscribePresenceRedeliversOnWrite(t *testing.T) {
	s, _ := newTestStorage(t)
	ctx := context.Background()

	snapshots := make(chan map[string]domain.PresenceEntry, 4)
	cancel, err := s.SubscribePresence(ctx, func(p map[string]domain.PresenceEntry) {
		snapshots <- p
	})
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	defer cancel()

	// Initial snapshot is empty.
	if got := waitForPresence(t, snapshots); len(got) != 0 {
		t.Fatalf("expected empty initial snapshot, got %v", got)
	}

	if err := s.WritePresence(ctx, "bob", domain.PresenceWrite{DisplayName: strPtr("Bob"), Online: boolPtr(true)}); err != nil {
		t.Fatalf("write presence: %v", err)
	}

	presence := waitForPresence(t, snapshots)
	if entry, ok := presence["bob"]; !ok || entry.DisplayName != "Bob" {
		t.Fatalf("expected bob in redelivered snapshot, got %v", presence)
	}
}

func TestSubscribePresenceIgnoresOtherKinds(t *testing.T) {
	s, _ := newTestStorage(t)
	ctx := context.Background()

	snapshots := make(chan map[string]domain.PresenceEntry, 4)
	cancel, err := s.SubscribePresence(ctx, func(p map[string]domain.PresenceEntry) {
		snapshots <- p
	})
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	defer cancel()

	waitForPresence(t, snapshots)

	// A task broadcast must not trigger a presence redelivery.
	s.publishUpdate(ctx, updateEvent{Kind: kindTasks})

	select {
	case presence := <-snapshots:
		t.Fatalf("unexpected presence delivery: %v", presence)
	case <-time.After(200 * time.Millisecond):
	}
}

func TestSubscribeCancelStopsDelivery(t *testing.T) {
	s, _ := newTestStorage(t)
	ctx := context.Background()

	snapshots := make(chan map[string]domain.PresenceEntry, 4)
	cancel, err := s.SubscribePresence(ctx, func(p map[string]domain.PresenceEntry) {
		snapshots <- p
	})
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}

	waitForPresence(t, snapshots)
	cancel()
	// Give the loop a moment to observe cancellation.
	time.Sleep(100 * time.Millisecond)

	if err := s.WritePresence(ctx, "carol", domain.PresenceWrite{DisplayName: strPtr("Carol"), Online: boolPtr(true)}); err != nil {
		t.Fatalf("write presence: %v", err)
	}

	select {
	case presence := <-snapshots:
		t.Fatalf("delivery after cancel: %v", presence)
	case <-time.After(200 * time.Millisecond):
	}
}
