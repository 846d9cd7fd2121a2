// Package store defines the domain types, the Store contract implemented by
// the remote Postgres gateway, the local fallback store and the failover
// façade, and the conflict/validation rules shared by all of them.
package store

import "context"

// Store is the set of domain operations every backing store provides.
// Implementations classify failures with the typed Error of this package so
// callers can branch on the failure kind rather than on error text.
type Store interface {
	// ListSchedules returns entries with date in [startDate, endDate]
	// inclusive, ordered by date ascending.
	ListSchedules(ctx context.Context, startDate, endDate string) ([]ScheduleEntry, error)
	// AddSchedule persists a new shift assignment. It fails with a Conflict
	// error when the (member, date, slot) triple already exists, or when a
	// Morning entry already exists for (member, date) and slot is Morning.
	AddSchedule(ctx context.Context, memberName, date string, slot TimeSlot) (*ScheduleEntry, error)
	// DeleteSchedule removes an entry. Deleting an unknown id is a no-op.
	DeleteSchedule(ctx context.Context, id string) error

	// GetUserProfile returns the profile for a member, or a NotFound error.
	GetUserProfile(ctx context.Context, memberName string) (*UserProfile, error)
	ListUserProfiles(ctx context.Context) ([]UserProfile, error)
	// SaveUserProfile upserts by member name and returns the stored record.
	SaveUserProfile(ctx context.Context, profile UserProfile) (*UserProfile, error)

	// ListTodos returns all cards ordered by created_at descending.
	ListTodos(ctx context.Context) ([]Todo, error)
	// AddTodo stamps created_at/updated_at and persists the card.
	AddTodo(ctx context.Context, todo Todo) (*Todo, error)
	// UpdateTodo merges the patch into the stored card and refreshes
	// updated_at. It fails with a NotFound error for an unknown id.
	UpdateTodo(ctx context.Context, id string, patch TodoPatch) (*Todo, error)
	// DeleteTodo removes a card. Deleting an unknown id is a no-op.
	DeleteTodo(ctx context.Context, id string) error
}

// ChangeEvent describes a remote data change. Delivery is at-least-once with
// no ordering guarantee relative to local writes; consumers reload rather
// than apply deltas.
type ChangeEvent struct {
	Collection string `json:"collection"` // work_schedules, user_profiles or todos
	Action     string `json:"action"`     // INSERT, UPDATE or DELETE
}

// Subscription is a live change-notification channel. Unsubscribe releases
// it; a subscription that is never unsubscribed leaks for the process
// lifetime.
type Subscription interface {
	Unsubscribe()
}

// Subscriber is implemented by stores that can push remote change events.
type Subscriber interface {
	// SubscribeChanges registers fn to be invoked for every remote change
	// until the returned subscription is released. fn runs on the
	// subscriber's own goroutine; it must not block for long.
	SubscribeChanges(ctx context.Context, fn func(ChangeEvent)) (Subscription, error)
}
