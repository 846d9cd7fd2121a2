package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"

	"shiftboard/store"
	"shiftboard/store/local"
)

// stubStore answers every operation from fixed fields so handler behavior
// can be tested without a database.
type stubStore struct {
	schedules []store.ScheduleEntry
	profiles  []store.UserProfile
	todos     []store.Todo
	err       error
}

func (s *stubStore) ListSchedules(ctx context.Context, startDate, endDate string) ([]store.ScheduleEntry, error) {
	return s.schedules, s.err
}

func (s *stubStore) AddSchedule(ctx context.Context, memberName, date string, slot store.TimeSlot) (*store.ScheduleEntry, error) {
	if s.err != nil {
		return nil, s.err
	}
	if err := store.ValidateSchedule("AddSchedule", memberName, date, slot); err != nil {
		return nil, err
	}
	if err := store.CheckScheduleConflict(s.schedules, memberName, date, slot); err != nil {
		return nil, err
	}
	entry := store.ScheduleEntry{ID: "1", MemberName: memberName, Date: date, TimeSlot: slot}
	return &entry, nil
}

func (s *stubStore) DeleteSchedule(ctx context.Context, id string) error { return s.err }

func (s *stubStore) GetUserProfile(ctx context.Context, memberName string) (*store.UserProfile, error) {
	if s.err != nil {
		return nil, s.err
	}
	profile := store.DefaultProfile(memberName)
	return &profile, nil
}

func (s *stubStore) ListUserProfiles(ctx context.Context) ([]store.UserProfile, error) {
	return s.profiles, s.err
}

func (s *stubStore) SaveUserProfile(ctx context.Context, profile store.UserProfile) (*store.UserProfile, error) {
	if s.err != nil {
		return nil, s.err
	}
	if err := store.ValidateProfile("SaveUserProfile", profile); err != nil {
		return nil, err
	}
	store.NormalizeProfile(&profile)
	return &profile, nil
}

func (s *stubStore) ListTodos(ctx context.Context) ([]store.Todo, error) { return s.todos, s.err }

func (s *stubStore) AddTodo(ctx context.Context, todo store.Todo) (*store.Todo, error) {
	if s.err != nil {
		return nil, s.err
	}
	store.ApplyTodoDefaults(&todo)
	if err := store.ValidateTodo("AddTodo", todo); err != nil {
		return nil, err
	}
	todo.ID = "1"
	return &todo, nil
}

func (s *stubStore) UpdateTodo(ctx context.Context, id string, patch store.TodoPatch) (*store.Todo, error) {
	if s.err != nil {
		return nil, s.err
	}
	return nil, store.NewNotFound("UpdateTodo", "no todo with id "+id)
}

func (s *stubStore) DeleteTodo(ctx context.Context, id string) error { return s.err }

var _ store.Store = (*stubStore)(nil)

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	return logger
}

func newTestServer(t *testing.T, st store.Store) http.Handler {
	t.Helper()
	prefs, err := local.Open(filepath.Join(t.TempDir(), "fallback.db"))
	if err != nil {
		t.Fatalf("failed to open preference store: %v", err)
	}
	t.Cleanup(func() { prefs.Close() })
	return NewServer(st, prefs, quietLogger()).Router()
}

func doRequest(t *testing.T, handler http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var reader *strings.Reader
	if body == "" {
		reader = strings.NewReader("")
	} else {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func errorMessage(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var payload map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
		t.Fatalf("failed to decode error body %q: %v", rec.Body.String(), err)
	}
	return payload["error"]
}

func TestHealthz(t *testing.T) {
	handler := newTestServer(t, &stubStore{})
	rec := doRequest(t, handler, http.MethodGet, "/healthz", "")
	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", rec.Code)
	}

	var payload struct {
		Status    string `json:"status"`
		Remote    string `json:"remote"`
		WSClients int    `json:"ws_clients"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
		t.Fatalf("failed to decode body: %v", err)
	}
	if payload.Status != "ok" {
		t.Errorf("status field = %q, want ok", payload.Status)
	}
	if payload.Remote != "unknown" {
		t.Errorf("remote = %q, want unknown when no pinger is attached", payload.Remote)
	}
	if payload.WSClients != 0 {
		t.Errorf("ws_clients = %d, want 0 with no connections", payload.WSClients)
	}
}

func TestListSchedulesRequiresRange(t *testing.T) {
	handler := newTestServer(t, &stubStore{})

	rec := doRequest(t, handler, http.MethodGet, "/api/schedules", "")
	if rec.Code != http.StatusBadRequest {
		t.Errorf("missing range: status = %d, want 400", rec.Code)
	}

	rec = doRequest(t, handler, http.MethodGet, "/api/schedules?start=2025-03-31&end=2025-03-01", "")
	if rec.Code != http.StatusBadRequest {
		t.Errorf("inverted range: status = %d, want 400", rec.Code)
	}

	rec = doRequest(t, handler, http.MethodGet, "/api/schedules?start=2025-03-01&end=2025-03-31", "")
	if rec.Code != http.StatusOK {
		t.Errorf("valid range: status = %d, want 200", rec.Code)
	}
}

func TestAddScheduleConflictSurfacesMessage(t *testing.T) {
	st := &stubStore{schedules: []store.ScheduleEntry{
		{ID: "1", MemberName: "Alice", Date: "2025-03-10", TimeSlot: store.SlotMorning},
	}}
	handler := newTestServer(t, st)

	rec := doRequest(t, handler, http.MethodPost, "/api/schedules",
		`{"member_name":"Alice","date":"2025-03-10","time_slot":"Morning"}`)
	if rec.Code != http.StatusConflict {
		t.Fatalf("status = %d, want 409", rec.Code)
	}
	want := "Alice already has a Morning shift on 2025-03-10"
	if got := errorMessage(t, rec); got != want {
		t.Errorf("error = %q, want the conflict message verbatim %q", got, want)
	}
}

func TestAddScheduleCreated(t *testing.T) {
	handler := newTestServer(t, &stubStore{})
	rec := doRequest(t, handler, http.MethodPost, "/api/schedules",
		`{"member_name":"Bob","date":"2025-03-11","time_slot":"Night"}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, want 201, body %s", rec.Code, rec.Body.String())
	}

	var entry store.ScheduleEntry
	if err := json.Unmarshal(rec.Body.Bytes(), &entry); err != nil {
		t.Fatalf("failed to decode body: %v", err)
	}
	if entry.MemberName != "Bob" || entry.TimeSlot != store.SlotNight {
		t.Errorf("unexpected entry: %+v", entry)
	}
}

func TestAddScheduleInvalidInput(t *testing.T) {
	handler := newTestServer(t, &stubStore{})

	rec := doRequest(t, handler, http.MethodPost, "/api/schedules",
		`{"member_name":"","date":"2025-03-11","time_slot":"Morning"}`)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("empty member: status = %d, want 400", rec.Code)
	}

	rec = doRequest(t, handler, http.MethodPost, "/api/schedules", `not json`)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("malformed body: status = %d, want 400", rec.Code)
	}
}

func TestStorageOutageMapsToBadGateway(t *testing.T) {
	st := &stubStore{err: store.NewRequestFailed("ListTodos", errors.New("connection refused"))}
	handler := newTestServer(t, st)

	rec := doRequest(t, handler, http.MethodGet, "/api/todos", "")
	if rec.Code != http.StatusBadGateway {
		t.Errorf("status = %d, want 502", rec.Code)
	}
	if msg := errorMessage(t, rec); strings.Contains(msg, "connection refused") {
		t.Errorf("driver detail leaked to the client: %q", msg)
	}
}

func TestUpdateTodoNotFound(t *testing.T) {
	handler := newTestServer(t, &stubStore{})
	rec := doRequest(t, handler, http.MethodPatch, "/api/todos/99", `{"status":"done"}`)
	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}
}

func TestBoardGroupsByStatus(t *testing.T) {
	st := &stubStore{todos: []store.Todo{
		{ID: "1", Title: "a", Status: store.StatusTodo, Priority: store.PriorityHigh},
		{ID: "2", Title: "b", Status: store.StatusDone, Priority: store.PriorityLow},
		{ID: "3", Title: "c", Status: store.StatusTodo, Priority: store.PriorityLow},
	}}
	handler := newTestServer(t, st)

	rec := doRequest(t, handler, http.MethodGet, "/api/board", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	var payload struct {
		Columns []struct {
			Status string       `json:"status"`
			Count  int          `json:"count"`
			Todos  []store.Todo `json:"todos"`
		} `json:"columns"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
		t.Fatalf("failed to decode body: %v", err)
	}
	if len(payload.Columns) != 3 {
		t.Fatalf("got %d columns, want 3", len(payload.Columns))
	}
	if payload.Columns[0].Status != "todo" || payload.Columns[0].Count != 2 {
		t.Errorf("unexpected todo column: %+v", payload.Columns[0])
	}
	if payload.Columns[0].Todos[0].Title != "a" {
		t.Errorf("high priority card must lead the column, got %+v", payload.Columns[0].Todos)
	}
	if payload.Columns[2].Status != "done" || payload.Columns[2].Count != 1 {
		t.Errorf("unexpected done column: %+v", payload.Columns[2])
	}
}

func TestSaveProfilePathWins(t *testing.T) {
	handler := newTestServer(t, &stubStore{})
	rec := doRequest(t, handler, http.MethodPut, "/api/profiles/Alice",
		`{"member_name":"Mallory","display_name":"Ally"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	var profile store.UserProfile
	if err := json.Unmarshal(rec.Body.Bytes(), &profile); err != nil {
		t.Fatalf("failed to decode body: %v", err)
	}
	if profile.MemberName != "Alice" {
		t.Errorf("member name = %q, the path segment must win", profile.MemberName)
	}
}

func TestPreferencesRoundTrip(t *testing.T) {
	handler := newTestServer(t, &stubStore{})

	rec := doRequest(t, handler, http.MethodGet, "/api/preferences", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var prefs Preferences
	if err := json.Unmarshal(rec.Body.Bytes(), &prefs); err != nil {
		t.Fatalf("failed to decode body: %v", err)
	}
	if prefs.Language != "en" || prefs.Theme != "light" {
		t.Errorf("unexpected defaults: %+v", prefs)
	}

	rec = doRequest(t, handler, http.MethodPut, "/api/preferences",
		`{"last_viewed_date":"2025-03-10","language":"ja","theme":"dark","selected_member":"Alice"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("save status = %d, want 200", rec.Code)
	}

	rec = doRequest(t, handler, http.MethodGet, "/api/preferences", "")
	if err := json.Unmarshal(rec.Body.Bytes(), &prefs); err != nil {
		t.Fatalf("failed to decode body: %v", err)
	}
	if prefs.Theme != "dark" || prefs.SelectedMember != "Alice" {
		t.Errorf("preferences not persisted: %+v", prefs)
	}
}
