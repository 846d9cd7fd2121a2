// Package failover implements the dual-backend synchronization policy: every
// operation is issued to the remote gateway first, and failures classified as
// SchemaMissing or RequestFailed are resolved by replaying the operation
// against the local fallback store. Conflicts are authoritative and never
// fall back. Callers cannot observe which store served them.
package failover

import (
	"context"

	"github.com/sirupsen/logrus"

	"shiftboard/internal/metrics"
	"shiftboard/store"
	"shiftboard/store/local"
)

// Store is the failover façade. It satisfies store.Store with the combined
// behavior of the remote gateway and the local fallback.
type Store struct {
	remote  store.Store
	sub     store.Subscriber // non-nil when the remote supports change feeds
	local   *local.Store
	logger  *logrus.Logger
	metrics *metrics.Metrics
	outbox  *outbox

	guards refreshGuards
}

var _ store.Store = (*Store)(nil)

// Option configures a failover store.
type Option func(*Store)

// WithMetrics attaches Prometheus instruments.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Store) { s.metrics = m }
}

// WithSubscriber wires the remote change feed through the façade.
func WithSubscriber(sub store.Subscriber) Option {
	return func(s *Store) { s.sub = sub }
}

// New builds the façade over an explicit remote/local pair. Both are
// required; there is no ambient global client.
func New(remote store.Store, localStore *local.Store, logger *logrus.Logger, opts ...Option) *Store {
	if logger == nil {
		logger = logrus.New()
	}
	s := &Store{
		remote: remote,
		local:  localStore,
		logger: logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.outbox = newOutbox(localStore, s.metrics)
	return s
}

// fellBack records a remote failure that is about to be resolved locally.
func (s *Store) fellBack(op string, err error, write bool) {
	s.metrics.IncRemoteFailure(store.KindOf(err).String())
	if write {
		s.metrics.IncFallbackWrite()
	} else {
		s.metrics.IncFallbackRead()
	}
	s.logger.WithError(err).WithField("op", op).Warn("remote store unavailable, using fallback")
}

/* =================== schedules =================== */

// ListSchedules reads remote-first and falls back to the local mirror when
// the remote is unreachable or the table is missing.
func (s *Store) ListSchedules(ctx context.Context, startDate, endDate string) ([]store.ScheduleEntry, error) {
	entries, err := s.remote.ListSchedules(ctx, startDate, endDate)
	if err == nil {
		return entries, nil
	}
	if !store.ShouldFallback(err) {
		return nil, err
	}
	s.fellBack("ListSchedules", err, false)
	return s.local.ListSchedules(ctx, startDate, endDate)
}

// AddSchedule writes remote-first. A Conflict from the remote is
// authoritative and is never retried locally; any other failure replays the
// write against the fallback store and queues it for later replay.
func (s *Store) AddSchedule(ctx context.Context, memberName, date string, slot store.TimeSlot) (*store.ScheduleEntry, error) {
	entry, err := s.remote.AddSchedule(ctx, memberName, date, slot)
	if err == nil {
		return entry, nil
	}
	if !store.ShouldFallback(err) {
		return nil, err
	}
	s.fellBack("AddSchedule", err, true)

	entry, localErr := s.local.AddSchedule(ctx, memberName, date, slot)
	if localErr != nil {
		return nil, localErr
	}
	s.outbox.enqueue(ctx, opAddSchedule, addSchedulePayload{
		MemberName: memberName, Date: date, TimeSlot: slot,
	})
	return entry, nil
}

// DeleteSchedule deletes remote-first, replaying against the fallback when
// the remote is unavailable.
func (s *Store) DeleteSchedule(ctx context.Context, id string) error {
	err := s.remote.DeleteSchedule(ctx, id)
	if err == nil {
		return nil
	}
	if !store.ShouldFallback(err) {
		return err
	}
	s.fellBack("DeleteSchedule", err, true)

	if localErr := s.local.DeleteSchedule(ctx, id); localErr != nil {
		return localErr
	}
	s.outbox.enqueue(ctx, opDeleteSchedule, deletePayload{ID: id})
	return nil
}

/* =================== profiles =================== */

// GetUserProfile serves the local mirror as the fast path and refreshes the
// mirror from remote in the background. A member with no profile anywhere
// gets the default profile rather than an error.
func (s *Store) GetUserProfile(ctx context.Context, memberName string) (*store.UserProfile, error) {
	profile, err := s.local.GetUserProfile(ctx, memberName)
	if err == nil {
		s.refreshProfiles()
		return profile, nil
	}
	if !store.IsNotFound(err) {
		s.logger.WithError(err).Warn("fallback profile read failed")
	}

	// Mirror miss: go through to the remote synchronously so a fresh
	// install is not stuck with defaults while data exists remotely.
	profile, remoteErr := s.remote.GetUserProfile(ctx, memberName)
	if remoteErr == nil {
		if _, saveErr := s.local.SaveUserProfile(ctx, *profile); saveErr != nil {
			s.logger.WithError(saveErr).Warn("failed to mirror profile locally")
		}
		return profile, nil
	}
	if store.ShouldFallback(remoteErr) {
		s.fellBack("GetUserProfile", remoteErr, false)
	}

	defaultProfile := store.DefaultProfile(memberName)
	return &defaultProfile, nil
}

// ListUserProfiles serves the local mirror first and refreshes it in the
// background; an empty mirror reads through to the remote synchronously.
func (s *Store) ListUserProfiles(ctx context.Context) ([]store.UserProfile, error) {
	profiles, err := s.local.ListUserProfiles(ctx)
	if err == nil && len(profiles) > 0 {
		s.refreshProfiles()
		return profiles, nil
	}

	remoteProfiles, remoteErr := s.remote.ListUserProfiles(ctx)
	if remoteErr == nil {
		if mirrorErr := s.local.ReplaceProfiles(ctx, remoteProfiles); mirrorErr != nil {
			s.logger.WithError(mirrorErr).Warn("failed to mirror profiles locally")
		}
		return remoteProfiles, nil
	}
	if store.ShouldFallback(remoteErr) {
		s.fellBack("ListUserProfiles", remoteErr, false)
		return profiles, err // the (possibly empty) local result stands
	}
	return nil, remoteErr
}

// SaveUserProfile upserts remote-first with local replay on failure.
func (s *Store) SaveUserProfile(ctx context.Context, profile store.UserProfile) (*store.UserProfile, error) {
	stored, err := s.remote.SaveUserProfile(ctx, profile)
	if err == nil {
		// Keep the mirror warm so the settings screen reflects the save
		// immediately even if the next read falls back.
		if _, mirrorErr := s.local.SaveUserProfile(ctx, *stored); mirrorErr != nil {
			s.logger.WithError(mirrorErr).Warn("failed to mirror profile locally")
		}
		return stored, nil
	}
	if !store.ShouldFallback(err) {
		return nil, err
	}
	s.fellBack("SaveUserProfile", err, true)

	stored, localErr := s.local.SaveUserProfile(ctx, profile)
	if localErr != nil {
		return nil, localErr
	}
	s.outbox.enqueue(ctx, opSaveProfile, *stored)
	return stored, nil
}

/* =================== todos =================== */

// ListTodos serves the local mirror first and refreshes it in the
// background; an empty mirror reads through to the remote synchronously.
func (s *Store) ListTodos(ctx context.Context) ([]store.Todo, error) {
	todos, err := s.local.ListTodos(ctx)
	if err == nil && len(todos) > 0 {
		s.refreshTodos()
		return todos, nil
	}

	remoteTodos, remoteErr := s.remote.ListTodos(ctx)
	if remoteErr == nil {
		if mirrorErr := s.local.ReplaceTodos(ctx, remoteTodos); mirrorErr != nil {
			s.logger.WithError(mirrorErr).Warn("failed to mirror todos locally")
		}
		return remoteTodos, nil
	}
	if store.ShouldFallback(remoteErr) {
		s.fellBack("ListTodos", remoteErr, false)
		return todos, err
	}
	return nil, remoteErr
}

// AddTodo writes remote-first with local replay on failure.
func (s *Store) AddTodo(ctx context.Context, todo store.Todo) (*store.Todo, error) {
	stored, err := s.remote.AddTodo(ctx, todo)
	if err == nil {
		s.refreshTodos()
		return stored, nil
	}
	if !store.ShouldFallback(err) {
		return nil, err
	}
	s.fellBack("AddTodo", err, true)

	stored, localErr := s.local.AddTodo(ctx, todo)
	if localErr != nil {
		return nil, localErr
	}
	s.outbox.enqueue(ctx, opAddTodo, *stored)
	return stored, nil
}

// UpdateTodo updates remote-first. NotFound is authoritative; unreachable
// remotes fall back to the local mirror.
func (s *Store) UpdateTodo(ctx context.Context, id string, patch store.TodoPatch) (*store.Todo, error) {
	stored, err := s.remote.UpdateTodo(ctx, id, patch)
	if err == nil {
		s.refreshTodos()
		return stored, nil
	}
	if !store.ShouldFallback(err) {
		return nil, err
	}
	s.fellBack("UpdateTodo", err, true)

	stored, localErr := s.local.UpdateTodo(ctx, id, patch)
	if localErr != nil {
		return nil, localErr
	}
	s.outbox.enqueue(ctx, opUpdateTodo, updateTodoPayload{ID: id, Patch: patch})
	return stored, nil
}

// DeleteTodo deletes remote-first with local replay on failure.
func (s *Store) DeleteTodo(ctx context.Context, id string) error {
	err := s.remote.DeleteTodo(ctx, id)
	if err == nil {
		return nil
	}
	if !store.ShouldFallback(err) {
		return err
	}
	s.fellBack("DeleteTodo", err, true)

	if localErr := s.local.DeleteTodo(ctx, id); localErr != nil {
		return localErr
	}
	s.outbox.enqueue(ctx, opDeleteTodo, deletePayload{ID: id})
	return nil
}

/* =================== subscriptions =================== */

// SubscribeChanges delegates to the remote change feed.
func (s *Store) SubscribeChanges(ctx context.Context, fn func(store.ChangeEvent)) (store.Subscription, error) {
	if s.sub == nil {
		return nil, store.NewRequestFailed("SubscribeChanges", errNoSubscriber)
	}
	return s.sub.SubscribeChanges(ctx, fn)
}
