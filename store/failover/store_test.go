package failover

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"

	"github.com/sirupsen/logrus"

	"shiftboard/store"
	"shiftboard/store/local"
)

// fakeRemote is an in-memory store.Store whose failure mode can be scripted
// per test. A non-nil err makes every operation fail with it.
type fakeRemote struct {
	mu sync.Mutex

	err       error
	schedules []store.ScheduleEntry
	profiles  []store.UserProfile
	todos     []store.Todo
	nextID    int

	calls map[string]int

	// When set, ListTodos records the call and then parks until the
	// channel closes, holding a refresh in flight.
	blockListTodos chan struct{}
}

func newFakeRemote() *fakeRemote {
	return &fakeRemote{calls: make(map[string]int)}
}

func (f *fakeRemote) setErr(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.err = err
}

func (f *fakeRemote) callCount(op string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[op]
}

func (f *fakeRemote) begin(op string) error {
	f.calls[op]++
	return f.err
}

func (f *fakeRemote) id() string {
	f.nextID++
	return fmt.Sprintf("remote-%d", f.nextID)
}

func (f *fakeRemote) ListSchedules(ctx context.Context, startDate, endDate string) ([]store.ScheduleEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.begin("ListSchedules"); err != nil {
		return nil, err
	}
	var out []store.ScheduleEntry
	for _, entry := range f.schedules {
		if entry.Date >= startDate && entry.Date <= endDate {
			out = append(out, entry)
		}
	}
	return out, nil
}

func (f *fakeRemote) AddSchedule(ctx context.Context, memberName, date string, slot store.TimeSlot) (*store.ScheduleEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.begin("AddSchedule"); err != nil {
		return nil, err
	}
	if err := store.CheckScheduleConflict(f.schedules, memberName, date, slot); err != nil {
		return nil, err
	}
	entry := store.ScheduleEntry{ID: f.id(), MemberName: memberName, Date: date, TimeSlot: slot}
	f.schedules = append(f.schedules, entry)
	return &entry, nil
}

func (f *fakeRemote) DeleteSchedule(ctx context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.begin("DeleteSchedule"); err != nil {
		return err
	}
	kept := f.schedules[:0]
	for _, entry := range f.schedules {
		if entry.ID != id {
			kept = append(kept, entry)
		}
	}
	f.schedules = kept
	return nil
}

func (f *fakeRemote) GetUserProfile(ctx context.Context, memberName string) (*store.UserProfile, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.begin("GetUserProfile"); err != nil {
		return nil, err
	}
	for i := range f.profiles {
		if f.profiles[i].MemberName == memberName {
			p := f.profiles[i]
			return &p, nil
		}
	}
	return nil, store.NewNotFound("GetUserProfile", "no profile for "+memberName)
}

func (f *fakeRemote) ListUserProfiles(ctx context.Context) ([]store.UserProfile, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.begin("ListUserProfiles"); err != nil {
		return nil, err
	}
	return append([]store.UserProfile(nil), f.profiles...), nil
}

func (f *fakeRemote) SaveUserProfile(ctx context.Context, profile store.UserProfile) (*store.UserProfile, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.begin("SaveUserProfile"); err != nil {
		return nil, err
	}
	store.NormalizeProfile(&profile)
	for i := range f.profiles {
		if f.profiles[i].MemberName == profile.MemberName {
			f.profiles[i] = profile
			return &profile, nil
		}
	}
	f.profiles = append(f.profiles, profile)
	return &profile, nil
}

func (f *fakeRemote) ListTodos(ctx context.Context) ([]store.Todo, error) {
	f.mu.Lock()
	f.calls["ListTodos"]++
	block := f.blockListTodos
	f.mu.Unlock()

	if block != nil {
		<-block
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	return append([]store.Todo(nil), f.todos...), nil
}

func (f *fakeRemote) AddTodo(ctx context.Context, todo store.Todo) (*store.Todo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.begin("AddTodo"); err != nil {
		return nil, err
	}
	store.ApplyTodoDefaults(&todo)
	todo.ID = f.id()
	f.todos = append(f.todos, todo)
	return &todo, nil
}

func (f *fakeRemote) UpdateTodo(ctx context.Context, id string, patch store.TodoPatch) (*store.Todo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.begin("UpdateTodo"); err != nil {
		return nil, err
	}
	for i := range f.todos {
		if f.todos[i].ID == id {
			updated := f.todos[i]
			patch.Apply(&updated)
			f.todos[i] = updated
			return &updated, nil
		}
	}
	return nil, store.NewNotFound("UpdateTodo", "no todo with id "+id)
}

func (f *fakeRemote) DeleteTodo(ctx context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.begin("DeleteTodo"); err != nil {
		return err
	}
	kept := f.todos[:0]
	for _, todo := range f.todos {
		if todo.ID != id {
			kept = append(kept, todo)
		}
	}
	f.todos = kept
	return nil
}

var _ store.Store = (*fakeRemote)(nil)

func errUnavailable() error {
	return store.NewRequestFailed("op", errors.New("connection refused"))
}

func newTestPair(t *testing.T) (*fakeRemote, *local.Store, *Store) {
	t.Helper()
	remote := newFakeRemote()
	localStore, err := local.Open(filepath.Join(t.TempDir(), "fallback.db"))
	if err != nil {
		t.Fatalf("failed to open fallback store: %v", err)
	}
	t.Cleanup(func() { localStore.Close() })

	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	return remote, localStore, New(remote, localStore, logger)
}

func TestAddScheduleUsesRemoteWhenHealthy(t *testing.T) {
	remote, localStore, s := newTestPair(t)
	ctx := context.Background()

	entry, err := s.AddSchedule(ctx, "Alice", "2025-03-10", store.SlotMorning)
	if err != nil {
		t.Fatalf("AddSchedule failed: %v", err)
	}
	if entry.ID != "remote-1" {
		t.Errorf("expected the remote-assigned id, got %q", entry.ID)
	}
	if remote.callCount("AddSchedule") != 1 {
		t.Errorf("remote AddSchedule called %d times, want 1", remote.callCount("AddSchedule"))
	}

	// The fallback store stays untouched on the healthy path.
	localEntries, err := localStore.ListSchedules(ctx, "2025-03-01", "2025-03-31")
	if err != nil {
		t.Fatalf("local ListSchedules failed: %v", err)
	}
	if len(localEntries) != 0 {
		t.Errorf("healthy write must not touch the fallback store, got %+v", localEntries)
	}
}

func TestAddScheduleFallsBackWhenRemoteDown(t *testing.T) {
	remote, _, s := newTestPair(t)
	remote.setErr(errUnavailable())
	ctx := context.Background()

	entry, err := s.AddSchedule(ctx, "Alice", "2025-03-10", store.SlotMorning)
	if err != nil {
		t.Fatalf("offline AddSchedule must succeed via fallback: %v", err)
	}
	if entry.ID == "" {
		t.Error("expected a locally generated id")
	}

	// The write is retrievable while still offline.
	entries, err := s.ListSchedules(ctx, "2025-03-01", "2025-03-31")
	if err != nil {
		t.Fatalf("offline ListSchedules failed: %v", err)
	}
	if len(entries) != 1 || entries[0].MemberName != "Alice" {
		t.Fatalf("offline write not retrievable: %+v", entries)
	}

	depth, err := s.Depth(ctx)
	if err != nil {
		t.Fatalf("Depth failed: %v", err)
	}
	if depth != 1 {
		t.Errorf("outbox depth = %d, want 1", depth)
	}
}

func TestConflictNeverFallsBack(t *testing.T) {
	remote, localStore, s := newTestPair(t)
	ctx := context.Background()

	if _, err := s.AddSchedule(ctx, "Alice", "2025-03-10", store.SlotMorning); err != nil {
		t.Fatalf("first AddSchedule failed: %v", err)
	}

	_, err := s.AddSchedule(ctx, "Alice", "2025-03-10", store.SlotMorning)
	if !store.IsConflict(err) {
		t.Fatalf("expected conflict, got %v", err)
	}
	if remote.callCount("AddSchedule") != 2 {
		t.Errorf("remote AddSchedule called %d times, want 2", remote.callCount("AddSchedule"))
	}

	// The rejected write must not land in the fallback store either.
	localEntries, err := localStore.ListSchedules(ctx, "2025-03-01", "2025-03-31")
	if err != nil {
		t.Fatalf("local ListSchedules failed: %v", err)
	}
	if len(localEntries) != 0 {
		t.Errorf("conflicted write leaked into the fallback store: %+v", localEntries)
	}

	depth, err := s.Depth(ctx)
	if err != nil {
		t.Fatalf("Depth failed: %v", err)
	}
	if depth != 0 {
		t.Errorf("conflicted write must not be queued, depth = %d", depth)
	}
}

func TestConflictDetectedOffline(t *testing.T) {
	remote, _, s := newTestPair(t)
	remote.setErr(errUnavailable())
	ctx := context.Background()

	if _, err := s.AddSchedule(ctx, "Alice", "2025-03-10", store.SlotMorning); err != nil {
		t.Fatalf("offline AddSchedule failed: %v", err)
	}

	// The fallback store enforces the same rules the remote does.
	_, err := s.AddSchedule(ctx, "Alice", "2025-03-10", store.SlotMorning)
	if !store.IsConflict(err) {
		t.Fatalf("expected offline conflict, got %v", err)
	}
}

func TestGetUserProfileDefaultsWhenUnknownEverywhere(t *testing.T) {
	remote, _, s := newTestPair(t)
	_ = remote
	ctx := context.Background()

	profile, err := s.GetUserProfile(ctx, "Nobody")
	if err != nil {
		t.Fatalf("GetUserProfile failed: %v", err)
	}
	if profile.DisplayName != "Nobody" || profile.ThemePreference != "light" || profile.LanguagePreference != "en" {
		t.Errorf("expected default profile, got %+v", profile)
	}
}

func TestGetUserProfileReadsThroughAndMirrors(t *testing.T) {
	remote, localStore, s := newTestPair(t)
	ctx := context.Background()

	remote.profiles = []store.UserProfile{{MemberName: "Alice", DisplayName: "Ally"}}

	profile, err := s.GetUserProfile(ctx, "Alice")
	if err != nil {
		t.Fatalf("GetUserProfile failed: %v", err)
	}
	if profile.DisplayName != "Ally" {
		t.Errorf("expected remote profile, got %+v", profile)
	}

	// The remote record is now mirrored so it survives an outage.
	mirrored, err := localStore.GetUserProfile(ctx, "Alice")
	if err != nil {
		t.Fatalf("mirror read failed: %v", err)
	}
	if mirrored.DisplayName != "Ally" {
		t.Errorf("profile not mirrored locally: %+v", mirrored)
	}

	remote.setErr(errUnavailable())
	offline, err := s.GetUserProfile(ctx, "Alice")
	if err != nil {
		t.Fatalf("offline GetUserProfile failed: %v", err)
	}
	if offline.DisplayName != "Ally" {
		t.Errorf("offline read lost the mirrored profile: %+v", offline)
	}
}

func TestListTodosReadsThroughAndMirrors(t *testing.T) {
	remote, localStore, s := newTestPair(t)
	ctx := context.Background()

	remote.todos = []store.Todo{{ID: "remote-9", Title: "Plan sprint", Priority: store.PriorityHigh, Status: store.StatusTodo}}

	todos, err := s.ListTodos(ctx)
	if err != nil {
		t.Fatalf("ListTodos failed: %v", err)
	}
	if len(todos) != 1 || todos[0].Title != "Plan sprint" {
		t.Fatalf("expected remote todos, got %+v", todos)
	}

	mirrored, err := localStore.ListTodos(ctx)
	if err != nil {
		t.Fatalf("mirror read failed: %v", err)
	}
	if len(mirrored) != 1 {
		t.Fatalf("todos not mirrored locally: %+v", mirrored)
	}

	remote.setErr(errUnavailable())
	offline, err := s.ListTodos(ctx)
	if err != nil {
		t.Fatalf("offline ListTodos failed: %v", err)
	}
	if len(offline) != 1 || offline[0].Title != "Plan sprint" {
		t.Errorf("offline read lost the mirror: %+v", offline)
	}
}

func TestUpdateTodoNotFoundPropagates(t *testing.T) {
	_, _, s := newTestPair(t)
	ctx := context.Background()

	status := store.StatusDone
	_, err := s.UpdateTodo(ctx, "missing", store.TodoPatch{Status: &status})
	if !store.IsNotFound(err) {
		t.Fatalf("expected NotFound, got %v", err)
	}
}

func TestSaveUserProfileMirrorsOnSuccess(t *testing.T) {
	_, localStore, s := newTestPair(t)
	ctx := context.Background()

	if _, err := s.SaveUserProfile(ctx, store.UserProfile{MemberName: "Alice", ThemePreference: "dark"}); err != nil {
		t.Fatalf("SaveUserProfile failed: %v", err)
	}

	mirrored, err := localStore.GetUserProfile(ctx, "Alice")
	if err != nil {
		t.Fatalf("mirror read failed: %v", err)
	}
	if mirrored.ThemePreference != "dark" {
		t.Errorf("profile not mirrored after healthy save: %+v", mirrored)
	}
}
