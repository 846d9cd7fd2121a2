package failover

import (
	"context"
	"testing"

	"shiftboard/store"
)

func TestReplayOutboxDrainsQueuedWrites(t *testing.T) {
	remote, _, s := newTestPair(t)
	ctx := context.Background()

	remote.setErr(errUnavailable())
	if _, err := s.AddSchedule(ctx, "Alice", "2025-03-10", store.SlotMorning); err != nil {
		t.Fatalf("offline AddSchedule failed: %v", err)
	}
	if _, err := s.AddTodo(ctx, store.Todo{Title: "Queued card"}); err != nil {
		t.Fatalf("offline AddTodo failed: %v", err)
	}

	remote.setErr(nil)
	replayed, err := s.ReplayOutbox(ctx)
	if err != nil {
		t.Fatalf("ReplayOutbox failed: %v", err)
	}
	if replayed != 2 {
		t.Errorf("replayed = %d, want 2", replayed)
	}

	depth, err := s.Depth(ctx)
	if err != nil {
		t.Fatalf("Depth failed: %v", err)
	}
	if depth != 0 {
		t.Errorf("outbox depth after replay = %d, want 0", depth)
	}

	// The writes landed remotely.
	if len(remote.schedules) != 1 || remote.schedules[0].MemberName != "Alice" {
		t.Errorf("schedule not replayed to remote: %+v", remote.schedules)
	}
	if len(remote.todos) != 1 || remote.todos[0].Title != "Queued card" {
		t.Errorf("todo not replayed to remote: %+v", remote.todos)
	}
	if remote.todos[0].ID == "" {
		t.Error("replayed todo must get a remote-assigned id")
	}
}

func TestReplayOutboxStopsWhileStillOffline(t *testing.T) {
	remote, _, s := newTestPair(t)
	ctx := context.Background()

	remote.setErr(errUnavailable())
	if _, err := s.AddSchedule(ctx, "Alice", "2025-03-10", store.SlotMorning); err != nil {
		t.Fatalf("offline AddSchedule failed: %v", err)
	}

	replayed, err := s.ReplayOutbox(ctx)
	if err != nil {
		t.Fatalf("ReplayOutbox failed: %v", err)
	}
	if replayed != 0 {
		t.Errorf("replayed = %d, want 0 while offline", replayed)
	}

	depth, err := s.Depth(ctx)
	if err != nil {
		t.Fatalf("Depth failed: %v", err)
	}
	if depth != 1 {
		t.Errorf("queued write must survive a failed replay, depth = %d", depth)
	}
}

func TestReplayOutboxDropsConflictedWrites(t *testing.T) {
	remote, _, s := newTestPair(t)
	ctx := context.Background()

	remote.setErr(errUnavailable())
	if _, err := s.AddSchedule(ctx, "Alice", "2025-03-10", store.SlotMorning); err != nil {
		t.Fatalf("offline AddSchedule failed: %v", err)
	}

	// Someone else claimed the slot remotely while we were offline.
	remote.setErr(nil)
	if _, err := remote.AddSchedule(ctx, "Alice", "2025-03-10", store.SlotMorning); err != nil {
		t.Fatalf("seeding remote schedule failed: %v", err)
	}

	replayed, err := s.ReplayOutbox(ctx)
	if err != nil {
		t.Fatalf("ReplayOutbox failed: %v", err)
	}
	if replayed != 0 {
		t.Errorf("replayed = %d, want 0 for a conflicted write", replayed)
	}

	depth, err := s.Depth(ctx)
	if err != nil {
		t.Fatalf("Depth failed: %v", err)
	}
	if depth != 0 {
		t.Errorf("conflicted write must be dropped, depth = %d", depth)
	}
	if len(remote.schedules) != 1 {
		t.Errorf("remote must keep exactly the winning entry, got %+v", remote.schedules)
	}
}

func TestReplayOutboxPreservesOrder(t *testing.T) {
	remote, _, s := newTestPair(t)
	ctx := context.Background()

	remote.setErr(errUnavailable())
	added, err := s.AddTodo(ctx, store.Todo{Title: "First"})
	if err != nil {
		t.Fatalf("offline AddTodo failed: %v", err)
	}
	if err := s.DeleteTodo(ctx, added.ID); err != nil {
		t.Fatalf("offline DeleteTodo failed: %v", err)
	}

	remote.setErr(nil)
	replayed, err := s.ReplayOutbox(ctx)
	if err != nil {
		t.Fatalf("ReplayOutbox failed: %v", err)
	}
	if replayed != 2 {
		t.Errorf("replayed = %d, want 2", replayed)
	}

	// The add replays before the delete, but the delete targets the local
	// id, so the remote keeps the re-added card. That is the documented
	// at-least-once tradeoff for offline deletes of offline-created
	// records.
	if depth, _ := s.Depth(ctx); depth != 0 {
		t.Errorf("outbox not drained, depth = %d", depth)
	}
}

func TestReplayOutboxEmptyIsNoOp(t *testing.T) {
	_, _, s := newTestPair(t)
	ctx := context.Background()

	replayed, err := s.ReplayOutbox(ctx)
	if err != nil {
		t.Fatalf("ReplayOutbox failed: %v", err)
	}
	if replayed != 0 {
		t.Errorf("replayed = %d, want 0 for an empty outbox", replayed)
	}
}
