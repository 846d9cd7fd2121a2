package local

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"shiftboard/store"
)

// Store is the fallback store. All record mutation happens under a single
// lock as a read-modify-write of one collection key, matching the atomicity
// of the underlying single key write.
type Store struct {
	db   *sql.DB
	path string
	mu   sync.Mutex
	ids  idSource
}

var _ store.Store = (*Store)(nil)

// Open opens the fallback store at path, creating the file and schema when
// absent. An empty path selects the default XDG location.
func Open(path string) (*Store, error) {
	if path == "" {
		var err error
		path, err = DefaultPath()
		if err != nil {
			return nil, err
		}
	}

	db, err := openDatabase(path)
	if err != nil {
		return nil, err
	}

	return &Store{db: db, path: path}, nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// Path returns the location of the fallback database file.
func (s *Store) Path() string {
	return s.path
}

/* =================== key/value primitives =================== */

// ReadKey returns the raw value stored under key, with ok=false when the
// key has never been written.
func (s *Store) ReadKey(ctx context.Context, key string) (string, bool, error) {
	var value string
	err := s.db.QueryRowContext(ctx, "SELECT value FROM kv WHERE key = ?", key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to read key %q: %w", key, err)
	}
	return value, true, nil
}

// WriteKey stores value under key, replacing any previous value.
func (s *Store) WriteKey(ctx context.Context, key, value string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO kv (key, value, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		key, value, time.Now().Unix())
	if err != nil {
		return fmt.Errorf("failed to write key %q: %w", key, err)
	}
	return nil
}

func readCollection[T any](ctx context.Context, s *Store, key string) ([]T, error) {
	raw, ok, err := s.ReadKey(ctx, key)
	if err != nil {
		return nil, err
	}
	if !ok || raw == "" {
		return nil, nil
	}
	var records []T
	if err := json.Unmarshal([]byte(raw), &records); err != nil {
		return nil, fmt.Errorf("corrupt collection %q: %w", key, err)
	}
	return records, nil
}

func writeCollection[T any](ctx context.Context, s *Store, key string, records []T) error {
	if records == nil {
		records = []T{}
	}
	raw, err := json.Marshal(records)
	if err != nil {
		return fmt.Errorf("failed to encode collection %q: %w", key, err)
	}
	return s.WriteKey(ctx, key, string(raw))
}

/* =================== schedules =================== */

// ListSchedules returns entries with date in [startDate, endDate] inclusive,
// ordered by date ascending.
func (s *Store) ListSchedules(ctx context.Context, startDate, endDate string) ([]store.ScheduleEntry, error) {
	const op = "ListSchedules"

	s.mu.Lock()
	defer s.mu.Unlock()

	entries, err := readCollection[store.ScheduleEntry](ctx, s, KeySchedules)
	if err != nil {
		return nil, store.NewRequestFailed(op, err)
	}

	var result []store.ScheduleEntry
	for _, entry := range entries {
		if entry.Date >= startDate && entry.Date <= endDate {
			result = append(result, entry)
		}
	}
	sort.SliceStable(result, func(i, j int) bool {
		return result[i].Date < result[j].Date
	})
	return result, nil
}

// AddSchedule validates the assignment against the shared conflict rules and
// appends it with a locally generated id.
func (s *Store) AddSchedule(ctx context.Context, memberName, date string, slot store.TimeSlot) (*store.ScheduleEntry, error) {
	const op = "AddSchedule"

	if err := store.ValidateSchedule(op, memberName, date, slot); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	entries, err := readCollection[store.ScheduleEntry](ctx, s, KeySchedules)
	if err != nil {
		return nil, store.NewRequestFailed(op, err)
	}
	if err := store.CheckScheduleConflict(entries, memberName, date, slot); err != nil {
		return nil, err
	}

	entry := store.ScheduleEntry{
		ID:         s.ids.next(),
		MemberName: memberName,
		Date:       date,
		TimeSlot:   slot,
		CreatedAt:  time.Now().UTC(),
	}
	entries = append(entries, entry)

	if err := writeCollection(ctx, s, KeySchedules, entries); err != nil {
		return nil, store.NewRequestFailed(op, err)
	}
	return &entry, nil
}

// DeleteSchedule removes the entry with the given id. Unknown ids are a
// no-op.
func (s *Store) DeleteSchedule(ctx context.Context, id string) error {
	const op = "DeleteSchedule"

	s.mu.Lock()
	defer s.mu.Unlock()

	entries, err := readCollection[store.ScheduleEntry](ctx, s, KeySchedules)
	if err != nil {
		return store.NewRequestFailed(op, err)
	}

	kept := entries[:0]
	for _, entry := range entries {
		if entry.ID != id {
			kept = append(kept, entry)
		}
	}
	if len(kept) == len(entries) {
		return nil
	}

	if err := writeCollection(ctx, s, KeySchedules, kept); err != nil {
		return store.NewRequestFailed(op, err)
	}
	return nil
}

/* =================== profiles =================== */

// GetUserProfile returns the stored profile for a member, or a NotFound
// error when the member has never saved one.
func (s *Store) GetUserProfile(ctx context.Context, memberName string) (*store.UserProfile, error) {
	const op = "GetUserProfile"

	s.mu.Lock()
	defer s.mu.Unlock()

	profiles, err := readCollection[store.UserProfile](ctx, s, KeyProfiles)
	if err != nil {
		return nil, store.NewRequestFailed(op, err)
	}
	for i := range profiles {
		if profiles[i].MemberName == memberName {
			p := profiles[i]
			return &p, nil
		}
	}
	return nil, store.NewNotFound(op, fmt.Sprintf("no profile for %q", memberName))
}

// ListUserProfiles returns every stored profile.
func (s *Store) ListUserProfiles(ctx context.Context) ([]store.UserProfile, error) {
	const op = "ListUserProfiles"

	s.mu.Lock()
	defer s.mu.Unlock()

	profiles, err := readCollection[store.UserProfile](ctx, s, KeyProfiles)
	if err != nil {
		return nil, store.NewRequestFailed(op, err)
	}
	return profiles, nil
}

// SaveUserProfile upserts by member name: the record is created on first
// save and replaced on subsequent saves.
func (s *Store) SaveUserProfile(ctx context.Context, profile store.UserProfile) (*store.UserProfile, error) {
	const op = "SaveUserProfile"

	if err := store.ValidateProfile(op, profile); err != nil {
		return nil, err
	}
	store.NormalizeProfile(&profile)

	s.mu.Lock()
	defer s.mu.Unlock()

	profiles, err := readCollection[store.UserProfile](ctx, s, KeyProfiles)
	if err != nil {
		return nil, store.NewRequestFailed(op, err)
	}

	replaced := false
	for i := range profiles {
		if profiles[i].MemberName == profile.MemberName {
			profiles[i] = profile
			replaced = true
			break
		}
	}
	if !replaced {
		profiles = append(profiles, profile)
	}

	if err := writeCollection(ctx, s, KeyProfiles, profiles); err != nil {
		return nil, store.NewRequestFailed(op, err)
	}
	return &profile, nil
}

// ReplaceProfiles overwrites the profile mirror wholesale.
func (s *Store) ReplaceProfiles(ctx context.Context, profiles []store.UserProfile) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return writeCollection(ctx, s, KeyProfiles, profiles)
}

/* =================== todos =================== */

// ListTodos returns all cards ordered by created_at descending.
func (s *Store) ListTodos(ctx context.Context) ([]store.Todo, error) {
	const op = "ListTodos"

	s.mu.Lock()
	defer s.mu.Unlock()

	todos, err := readCollection[store.Todo](ctx, s, KeyTodos)
	if err != nil {
		return nil, store.NewRequestFailed(op, err)
	}
	sort.SliceStable(todos, func(i, j int) bool {
		return todos[i].CreatedAt.After(todos[j].CreatedAt)
	})
	return todos, nil
}

// AddTodo stamps both timestamps, assigns a local id and appends the card.
func (s *Store) AddTodo(ctx context.Context, todo store.Todo) (*store.Todo, error) {
	const op = "AddTodo"

	store.ApplyTodoDefaults(&todo)
	if err := store.ValidateTodo(op, todo); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	todos, err := readCollection[store.Todo](ctx, s, KeyTodos)
	if err != nil {
		return nil, store.NewRequestFailed(op, err)
	}

	now := time.Now().UTC()
	todo.ID = s.ids.next()
	todo.CreatedAt = now
	todo.UpdatedAt = now
	todos = append(todos, todo)

	if err := writeCollection(ctx, s, KeyTodos, todos); err != nil {
		return nil, store.NewRequestFailed(op, err)
	}
	return &todo, nil
}

// UpdateTodo merges the patch into the stored card and refreshes
// updated_at. Unknown ids fail with NotFound.
func (s *Store) UpdateTodo(ctx context.Context, id string, patch store.TodoPatch) (*store.Todo, error) {
	const op = "UpdateTodo"

	s.mu.Lock()
	defer s.mu.Unlock()

	todos, err := readCollection[store.Todo](ctx, s, KeyTodos)
	if err != nil {
		return nil, store.NewRequestFailed(op, err)
	}

	for i := range todos {
		if todos[i].ID != id {
			continue
		}
		updated := todos[i]
		patch.Apply(&updated)
		if err := store.ValidateTodo(op, updated); err != nil {
			return nil, err
		}
		updated.UpdatedAt = time.Now().UTC()
		todos[i] = updated

		if err := writeCollection(ctx, s, KeyTodos, todos); err != nil {
			return nil, store.NewRequestFailed(op, err)
		}
		return &updated, nil
	}

	return nil, store.NewNotFound(op, fmt.Sprintf("no todo with id %q", id))
}

// DeleteTodo removes the card with the given id. Unknown ids are a no-op.
func (s *Store) DeleteTodo(ctx context.Context, id string) error {
	const op = "DeleteTodo"

	s.mu.Lock()
	defer s.mu.Unlock()

	todos, err := readCollection[store.Todo](ctx, s, KeyTodos)
	if err != nil {
		return store.NewRequestFailed(op, err)
	}

	kept := todos[:0]
	for _, todo := range todos {
		if todo.ID != id {
			kept = append(kept, todo)
		}
	}
	if len(kept) == len(todos) {
		return nil
	}

	if err := writeCollection(ctx, s, KeyTodos, kept); err != nil {
		return store.NewRequestFailed(op, err)
	}
	return nil
}

// ReplaceTodos overwrites the todo mirror wholesale.
func (s *Store) ReplaceTodos(ctx context.Context, todos []store.Todo) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return writeCollection(ctx, s, KeyTodos, todos)
}
