// Package postgres implements the remote data gateway: it maps the domain
// operations onto the hosted Postgres tables and classifies every failure
// into the store taxonomy so the failover layer can branch on it. The
// gateway itself never falls back.
package postgres

import (
	"context"
	"database/sql"
	"time"

	"github.com/lib/pq"
	"github.com/sirupsen/logrus"

	"shiftboard/store"
)

const defaultOperationTimeout = 5 * time.Second

// Gateway talks to the hosted database. Constructing one does not dial:
// connectivity problems surface as classified errors on the first
// operation, which is what lets the caller degrade to the fallback store.
type Gateway struct {
	db      *sql.DB
	dsn     string
	timeout time.Duration
	logger  *logrus.Logger

	onReconnect func()
}

var (
	_ store.Store      = (*Gateway)(nil)
	_ store.Subscriber = (*Gateway)(nil)
)

// Open prepares a gateway for the given connection string. timeout bounds
// every remote operation; zero selects the default of 5s.
func Open(databaseURL string, timeout time.Duration, logger *logrus.Logger) (*Gateway, error) {
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, err
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if timeout <= 0 {
		timeout = defaultOperationTimeout
	}
	if logger == nil {
		logger = logrus.New()
	}

	return &Gateway{db: db, dsn: databaseURL, timeout: timeout, logger: logger}, nil
}

// Close releases the connection pool.
func (g *Gateway) Close() error {
	return g.db.Close()
}

// Ping verifies connectivity, classified like any other operation.
func (g *Gateway) Ping(ctx context.Context) error {
	ctx, cancel := g.opContext(ctx)
	defer cancel()
	if err := g.db.PingContext(ctx); err != nil {
		return classify("Ping", err)
	}
	return nil
}

func (g *Gateway) opContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, g.timeout)
}

/* =================== schedules =================== */

const scheduleColumns = "id::text, member_name, to_char(date, 'YYYY-MM-DD'), time_slot, created_at"

// ListSchedules returns entries with date in [startDate, endDate]
// inclusive, ordered by date ascending.
func (g *Gateway) ListSchedules(ctx context.Context, startDate, endDate string) ([]store.ScheduleEntry, error) {
	const op = "ListSchedules"

	ctx, cancel := g.opContext(ctx)
	defer cancel()

	rows, err := g.db.QueryContext(ctx, `
		SELECT `+scheduleColumns+`
		FROM work_schedules
		WHERE date >= $1 AND date <= $2
		ORDER BY date ASC`, startDate, endDate)
	if err != nil {
		return nil, classify(op, err)
	}
	defer rows.Close()

	var entries []store.ScheduleEntry
	for rows.Next() {
		var entry store.ScheduleEntry
		if err := rows.Scan(&entry.ID, &entry.MemberName, &entry.Date, &entry.TimeSlot, &entry.CreatedAt); err != nil {
			return nil, classify(op, err)
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, classify(op, err)
	}
	return entries, nil
}

// AddSchedule inserts a new assignment. The shared conflict rules run
// against the member's entries for that date first; the unique index on
// (member_name, date, time_slot) backstops the race where two writers pass
// the check simultaneously, with the loser's violation translated into the
// same Conflict error.
func (g *Gateway) AddSchedule(ctx context.Context, memberName, date string, slot store.TimeSlot) (*store.ScheduleEntry, error) {
	const op = "AddSchedule"

	if err := store.ValidateSchedule(op, memberName, date, slot); err != nil {
		return nil, err
	}

	ctx, cancel := g.opContext(ctx)
	defer cancel()

	existing, err := g.schedulesFor(ctx, memberName, date)
	if err != nil {
		return nil, classify(op, err)
	}
	if err := store.CheckScheduleConflict(existing, memberName, date, slot); err != nil {
		return nil, err
	}

	entry := store.ScheduleEntry{MemberName: memberName, Date: date, TimeSlot: slot}
	err = g.db.QueryRowContext(ctx, `
		INSERT INTO work_schedules (member_name, date, time_slot)
		VALUES ($1, $2, $3)
		RETURNING id::text, created_at`, memberName, date, slot).
		Scan(&entry.ID, &entry.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.NewConflict(op, memberName, date, slot)
		}
		return nil, classify(op, err)
	}
	return &entry, nil
}

func (g *Gateway) schedulesFor(ctx context.Context, memberName, date string) ([]store.ScheduleEntry, error) {
	rows, err := g.db.QueryContext(ctx, `
		SELECT `+scheduleColumns+`
		FROM work_schedules
		WHERE member_name = $1 AND date = $2`, memberName, date)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []store.ScheduleEntry
	for rows.Next() {
		var entry store.ScheduleEntry
		if err := rows.Scan(&entry.ID, &entry.MemberName, &entry.Date, &entry.TimeSlot, &entry.CreatedAt); err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

// DeleteSchedule removes an entry by id. Unknown ids are a no-op.
func (g *Gateway) DeleteSchedule(ctx context.Context, id string) error {
	const op = "DeleteSchedule"

	ctx, cancel := g.opContext(ctx)
	defer cancel()

	if _, err := g.db.ExecContext(ctx, `DELETE FROM work_schedules WHERE id::text = $1`, id); err != nil {
		return classify(op, err)
	}
	return nil
}

/* =================== profiles =================== */

const profileColumns = "member_name, display_name, avatar_url, theme_preference, language_preference"

// GetUserProfile returns the profile for a member, or NotFound.
func (g *Gateway) GetUserProfile(ctx context.Context, memberName string) (*store.UserProfile, error) {
	const op = "GetUserProfile"

	ctx, cancel := g.opContext(ctx)
	defer cancel()

	var profile store.UserProfile
	err := g.db.QueryRowContext(ctx, `
		SELECT `+profileColumns+`
		FROM user_profiles
		WHERE member_name = $1`, memberName).
		Scan(&profile.MemberName, &profile.DisplayName, &profile.AvatarURL,
			&profile.ThemePreference, &profile.LanguagePreference)
	if err != nil {
		return nil, classify(op, err)
	}
	return &profile, nil
}

// ListUserProfiles returns every stored profile.
func (g *Gateway) ListUserProfiles(ctx context.Context) ([]store.UserProfile, error) {
	const op = "ListUserProfiles"

	ctx, cancel := g.opContext(ctx)
	defer cancel()

	rows, err := g.db.QueryContext(ctx, `SELECT `+profileColumns+` FROM user_profiles`)
	if err != nil {
		return nil, classify(op, err)
	}
	defer rows.Close()

	var profiles []store.UserProfile
	for rows.Next() {
		var profile store.UserProfile
		if err := rows.Scan(&profile.MemberName, &profile.DisplayName, &profile.AvatarURL,
			&profile.ThemePreference, &profile.LanguagePreference); err != nil {
			return nil, classify(op, err)
		}
		profiles = append(profiles, profile)
	}
	if err := rows.Err(); err != nil {
		return nil, classify(op, err)
	}
	return profiles, nil
}

// SaveUserProfile upserts by member name and returns the stored record.
func (g *Gateway) SaveUserProfile(ctx context.Context, profile store.UserProfile) (*store.UserProfile, error) {
	const op = "SaveUserProfile"

	if err := store.ValidateProfile(op, profile); err != nil {
		return nil, err
	}
	store.NormalizeProfile(&profile)

	ctx, cancel := g.opContext(ctx)
	defer cancel()

	var stored store.UserProfile
	err := g.db.QueryRowContext(ctx, `
		INSERT INTO user_profiles (member_name, display_name, avatar_url, theme_preference, language_preference)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (member_name) DO UPDATE SET
			display_name = EXCLUDED.display_name,
			avatar_url = EXCLUDED.avatar_url,
			theme_preference = EXCLUDED.theme_preference,
			language_preference = EXCLUDED.language_preference
		RETURNING `+profileColumns,
		profile.MemberName, profile.DisplayName, profile.AvatarURL,
		profile.ThemePreference, profile.LanguagePreference).
		Scan(&stored.MemberName, &stored.DisplayName, &stored.AvatarURL,
			&stored.ThemePreference, &stored.LanguagePreference)
	if err != nil {
		return nil, classify(op, err)
	}
	return &stored, nil
}

/* =================== todos =================== */

const todoColumns = `id::text, title, description, label, priority,
	to_char(due_date, 'YYYY-MM-DD'), assignees, images, status, created_at, updated_at`

// ListTodos returns all cards ordered by created_at descending.
func (g *Gateway) ListTodos(ctx context.Context) ([]store.Todo, error) {
	const op = "ListTodos"

	ctx, cancel := g.opContext(ctx)
	defer cancel()

	rows, err := g.db.QueryContext(ctx, `
		SELECT `+todoColumns+`
		FROM todos
		ORDER BY created_at DESC`)
	if err != nil {
		return nil, classify(op, err)
	}
	defer rows.Close()

	var todos []store.Todo
	for rows.Next() {
		todo, err := scanTodo(rows)
		if err != nil {
			return nil, classify(op, err)
		}
		todos = append(todos, *todo)
	}
	if err := rows.Err(); err != nil {
		return nil, classify(op, err)
	}
	return todos, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTodo(row rowScanner) (*store.Todo, error) {
	var (
		todo      store.Todo
		dueDate   sql.NullString
		assignees pq.StringArray
		images    pq.StringArray
	)
	err := row.Scan(&todo.ID, &todo.Title, &todo.Description, &todo.Label, &todo.Priority,
		&dueDate, &assignees, &images, &todo.Status, &todo.CreatedAt, &todo.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if dueDate.Valid {
		due := dueDate.String
		todo.DueDate = &due
	}
	todo.Assignees = []string(assignees)
	todo.Images = []string(images)
	return &todo, nil
}

// AddTodo inserts a card; the database stamps created_at and updated_at.
func (g *Gateway) AddTodo(ctx context.Context, todo store.Todo) (*store.Todo, error) {
	const op = "AddTodo"

	store.ApplyTodoDefaults(&todo)
	if err := store.ValidateTodo(op, todo); err != nil {
		return nil, err
	}

	ctx, cancel := g.opContext(ctx)
	defer cancel()

	var due any
	if todo.DueDate != nil && *todo.DueDate != "" {
		due = *todo.DueDate
	}

	row := g.db.QueryRowContext(ctx, `
		INSERT INTO todos (title, description, label, priority, due_date, assignees, images, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING `+todoColumns,
		todo.Title, todo.Description, todo.Label, todo.Priority, due,
		pq.Array(todo.Assignees), pq.Array(todo.Images), todo.Status)

	stored, err := scanTodo(row)
	if err != nil {
		return nil, classify(op, err)
	}
	return stored, nil
}

// UpdateTodo merges the patch into the stored card and refreshes
// updated_at. Unknown ids fail with NotFound.
func (g *Gateway) UpdateTodo(ctx context.Context, id string, patch store.TodoPatch) (*store.Todo, error) {
	const op = "UpdateTodo"

	ctx, cancel := g.opContext(ctx)
	defer cancel()

	row := g.db.QueryRowContext(ctx, `
		SELECT `+todoColumns+`
		FROM todos
		WHERE id::text = $1`, id)
	current, err := scanTodo(row)
	if err != nil {
		return nil, classify(op, err)
	}

	patch.Apply(current)
	if err := store.ValidateTodo(op, *current); err != nil {
		return nil, err
	}

	var due any
	if current.DueDate != nil && *current.DueDate != "" {
		due = *current.DueDate
	}

	row = g.db.QueryRowContext(ctx, `
		UPDATE todos SET
			title = $2, description = $3, label = $4, priority = $5,
			due_date = $6, assignees = $7, images = $8, status = $9,
			updated_at = now()
		WHERE id::text = $1
		RETURNING `+todoColumns,
		id, current.Title, current.Description, current.Label, current.Priority,
		due, pq.Array(current.Assignees), pq.Array(current.Images), current.Status)

	stored, err := scanTodo(row)
	if err != nil {
		return nil, classify(op, err)
	}
	return stored, nil
}

// DeleteTodo removes a card by id. Unknown ids are a no-op.
func (g *Gateway) DeleteTodo(ctx context.Context, id string) error {
	const op = "DeleteTodo"

	ctx, cancel := g.opContext(ctx)
	defer cancel()

	if _, err := g.db.ExecContext(ctx, `DELETE FROM todos WHERE id::text = $1`, id); err != nil {
		return classify(op, err)
	}
	return nil
}
