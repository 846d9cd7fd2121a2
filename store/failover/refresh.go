package failover

import (
	"context"
	"errors"
	"sync/atomic"
	"time"
)

var errNoSubscriber = errors.New("remote store does not support change subscriptions")

const refreshTimeout = 10 * time.Second

// refreshGuards prevents overlapping background refreshes of the same
// collection; rapid successive reads collapse into one in-flight refresh.
type refreshGuards struct {
	profiles atomic.Bool
	todos    atomic.Bool
}

// refreshProfiles re-reads the profile collection from remote in the
// background and overwrites the local mirror on success. A remote error
// never touches the mirror, and the caller is never blocked.
func (s *Store) refreshProfiles() {
	if !s.guards.profiles.CompareAndSwap(false, true) {
		return
	}
	go func() {
		defer s.guards.profiles.Store(false)

		ctx, cancel := context.WithTimeout(context.Background(), refreshTimeout)
		defer cancel()

		profiles, err := s.remote.ListUserProfiles(ctx)
		if err != nil {
			s.logger.WithError(err).Debug("background profile refresh skipped")
			return
		}
		if err := s.local.ReplaceProfiles(ctx, profiles); err != nil {
			s.logger.WithError(err).Warn("failed to refresh profile mirror")
		}
	}()
}

// refreshTodos re-reads the todo collection from remote in the background
// and overwrites the local mirror on success.
func (s *Store) refreshTodos() {
	if !s.guards.todos.CompareAndSwap(false, true) {
		return
	}
	go func() {
		defer s.guards.todos.Store(false)

		ctx, cancel := context.WithTimeout(context.Background(), refreshTimeout)
		defer cancel()

		todos, err := s.remote.ListTodos(ctx)
		if err != nil {
			s.logger.WithError(err).Debug("background todo refresh skipped")
			return
		}
		if err := s.local.ReplaceTodos(ctx, todos); err != nil {
			s.logger.WithError(err).Warn("failed to refresh todo mirror")
		}
	}()
}
