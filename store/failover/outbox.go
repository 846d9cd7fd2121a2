package failover

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"

	"shiftboard/internal/metrics"
	"shiftboard/store"
	"shiftboard/store/local"
)

// The outbox keeps writes that were resolved against the fallback store
// while the remote was unreachable, so they can be replayed once it comes
// back. Replay is FIFO; a replayed write the remote rejects as a conflict
// is dropped, because the remote's view is authoritative.

type opKind string

const (
	opAddSchedule    opKind = "add_schedule"
	opDeleteSchedule opKind = "delete_schedule"
	opSaveProfile    opKind = "save_profile"
	opAddTodo        opKind = "add_todo"
	opUpdateTodo     opKind = "update_todo"
	opDeleteTodo     opKind = "delete_todo"
)

type outboxEntry struct {
	ID       string          `json:"id"`
	Kind     opKind          `json:"kind"`
	QueuedAt time.Time       `json:"queued_at"`
	Payload  json.RawMessage `json:"payload"`
}

type addSchedulePayload struct {
	MemberName string         `json:"member_name"`
	Date       string         `json:"date"`
	TimeSlot   store.TimeSlot `json:"time_slot"`
}

type deletePayload struct {
	ID string `json:"id"`
}

type updateTodoPayload struct {
	ID    string          `json:"id"`
	Patch store.TodoPatch `json:"patch"`
}

type outbox struct {
	local   *local.Store
	metrics *metrics.Metrics
	mu      sync.Mutex
}

func newOutbox(localStore *local.Store, m *metrics.Metrics) *outbox {
	return &outbox{local: localStore, metrics: m}
}

func (o *outbox) load(ctx context.Context) ([]outboxEntry, error) {
	raw, ok, err := o.local.ReadKey(ctx, local.KeyOutbox)
	if err != nil {
		return nil, err
	}
	if !ok || raw == "" {
		return nil, nil
	}
	var entries []outboxEntry
	if err := json.Unmarshal([]byte(raw), &entries); err != nil {
		return nil, err
	}
	return entries, nil
}

func (o *outbox) save(ctx context.Context, entries []outboxEntry) error {
	if entries == nil {
		entries = []outboxEntry{}
	}
	raw, err := json.Marshal(entries)
	if err != nil {
		return err
	}
	if err := o.local.WriteKey(ctx, local.KeyOutbox, string(raw)); err != nil {
		return err
	}
	o.metrics.SetOutboxDepth(len(entries))
	return nil
}

// enqueue appends a pending write. Enqueue failures are logged by the
// caller's store but never fail the user-visible operation: the write
// already succeeded locally.
func (o *outbox) enqueue(ctx context.Context, kind opKind, payload any) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return
	}

	o.mu.Lock()
	defer o.mu.Unlock()

	entries, err := o.load(ctx)
	if err != nil {
		return
	}
	entries = append(entries, outboxEntry{
		ID:       uuid.NewString(),
		Kind:     kind,
		QueuedAt: time.Now().UTC(),
		Payload:  raw,
	})
	_ = o.save(ctx, entries)
}

// Depth returns the number of writes waiting for replay.
func (s *Store) Depth(ctx context.Context) (int, error) {
	s.outbox.mu.Lock()
	defer s.outbox.mu.Unlock()
	entries, err := s.outbox.load(ctx)
	if err != nil {
		return 0, err
	}
	return len(entries), nil
}

// ReplayOutbox drains queued offline writes against the remote store in
// FIFO order. Replay stops at the first write the remote cannot accept for
// availability reasons; writes it rejects outright (conflict, gone record,
// invalid input) are dropped. Returns the number of entries replayed.
func (s *Store) ReplayOutbox(ctx context.Context) (int, error) {
	s.outbox.mu.Lock()
	defer s.outbox.mu.Unlock()

	entries, err := s.outbox.load(ctx)
	if err != nil {
		return 0, err
	}
	if len(entries) == 0 {
		return 0, nil
	}

	replayed := 0
	remaining := entries
	for len(remaining) > 0 {
		entry := remaining[0]
		err := s.replayEntry(ctx, entry)
		if err != nil && store.ShouldFallback(err) {
			// Remote still unavailable; keep the rest for next time.
			break
		}
		if err != nil {
			s.logger.WithError(err).WithField("kind", string(entry.Kind)).
				Warn("dropping queued write rejected by remote")
		} else {
			replayed++
			s.metrics.IncOutboxReplayed()
		}
		remaining = remaining[1:]
	}

	if saveErr := s.outbox.save(ctx, remaining); saveErr != nil {
		return replayed, saveErr
	}
	if replayed > 0 {
		s.logger.WithField("count", replayed).Info("replayed queued offline writes")
	}
	return replayed, nil
}

func (s *Store) replayEntry(ctx context.Context, entry outboxEntry) error {
	switch entry.Kind {
	case opAddSchedule:
		var p addSchedulePayload
		if err := json.Unmarshal(entry.Payload, &p); err != nil {
			return store.NewInvalid("ReplayOutbox", err.Error())
		}
		_, err := s.remote.AddSchedule(ctx, p.MemberName, p.Date, p.TimeSlot)
		return err
	case opDeleteSchedule:
		var p deletePayload
		if err := json.Unmarshal(entry.Payload, &p); err != nil {
			return store.NewInvalid("ReplayOutbox", err.Error())
		}
		return s.remote.DeleteSchedule(ctx, p.ID)
	case opSaveProfile:
		var p store.UserProfile
		if err := json.Unmarshal(entry.Payload, &p); err != nil {
			return store.NewInvalid("ReplayOutbox", err.Error())
		}
		_, err := s.remote.SaveUserProfile(ctx, p)
		return err
	case opAddTodo:
		var p store.Todo
		if err := json.Unmarshal(entry.Payload, &p); err != nil {
			return store.NewInvalid("ReplayOutbox", err.Error())
		}
		// The locally assigned id stays local; the remote assigns its own.
		p.ID = ""
		_, err := s.remote.AddTodo(ctx, p)
		return err
	case opUpdateTodo:
		var p updateTodoPayload
		if err := json.Unmarshal(entry.Payload, &p); err != nil {
			return store.NewInvalid("ReplayOutbox", err.Error())
		}
		_, err := s.remote.UpdateTodo(ctx, p.ID, p.Patch)
		return err
	case opDeleteTodo:
		var p deletePayload
		if err := json.Unmarshal(entry.Payload, &p); err != nil {
			return store.NewInvalid("ReplayOutbox", err.Error())
		}
		return s.remote.DeleteTodo(ctx, p.ID)
	default:
		return store.NewInvalid("ReplayOutbox", "unknown queued operation "+string(entry.Kind))
	}
}
