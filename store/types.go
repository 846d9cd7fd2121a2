package store

import "time"

// TimeSlot is a named shift window assignable to one member on one date.
type TimeSlot string

const (
	SlotMorning   TimeSlot = "Morning"
	SlotAfternoon TimeSlot = "Afternoon"
	SlotEvening   TimeSlot = "Evening"
	SlotFullDay   TimeSlot = "Full Day"
	SlotNight     TimeSlot = "Night"
)

// ValidTimeSlots returns all assignable shift slots in display order.
func ValidTimeSlots() []TimeSlot {
	return []TimeSlot{SlotMorning, SlotAfternoon, SlotEvening, SlotFullDay, SlotNight}
}

// Valid reports whether the slot is one of the known shift windows.
func (s TimeSlot) Valid() bool {
	switch s {
	case SlotMorning, SlotAfternoon, SlotEvening, SlotFullDay, SlotNight:
		return true
	}
	return false
}

// ScheduleEntry is a single shift assignment. Entries are immutable after
// creation; the only mutation is deletion.
type ScheduleEntry struct {
	ID         string    `json:"id"`
	MemberName string    `json:"member_name"`
	Date       string    `json:"date"` // ISO 8601 calendar date (YYYY-MM-DD)
	TimeSlot   TimeSlot  `json:"time_slot"`
	CreatedAt  time.Time `json:"created_at"`
}

// UserProfile holds per-member display preferences, keyed by MemberName.
// Saves are upserts; there is no delete.
type UserProfile struct {
	MemberName         string  `json:"member_name" validate:"required"`
	DisplayName        string  `json:"display_name"`
	AvatarURL          *string `json:"avatar_url"` // remote URL or inline data URL
	ThemePreference    string  `json:"theme_preference"`
	LanguagePreference string  `json:"language_preference"`
}

// DefaultProfile returns the profile served for a member that has never
// saved one.
func DefaultProfile(memberName string) UserProfile {
	return UserProfile{
		MemberName:         memberName,
		DisplayName:        memberName,
		ThemePreference:    "light",
		LanguagePreference: "en",
	}
}

// TodoLabel categorizes a board card.
type TodoLabel string

const (
	LabelFeature       TodoLabel = "feature"
	LabelBug           TodoLabel = "bug"
	LabelImprovement   TodoLabel = "improvement"
	LabelUrgent        TodoLabel = "urgent"
	LabelDesign        TodoLabel = "design"
	LabelDocumentation TodoLabel = "documentation"
	LabelTesting       TodoLabel = "testing"
	LabelMaintenance   TodoLabel = "maintenance"
)

// TodoPriority orders cards within a board column.
type TodoPriority string

const (
	PriorityHigh   TodoPriority = "high"
	PriorityMedium TodoPriority = "medium"
	PriorityLow    TodoPriority = "low"
)

// TodoStatus is the board column a card lives in.
type TodoStatus string

const (
	StatusTodo       TodoStatus = "todo"
	StatusInProgress TodoStatus = "in-progress"
	StatusDone       TodoStatus = "done"
)

// Todo is one kanban card. CreatedAt/UpdatedAt are stamped by the stores:
// both on add, UpdatedAt alone on every update.
type Todo struct {
	ID          string       `json:"id"`
	Title       string       `json:"title" validate:"required"`
	Description string       `json:"description"`
	Label       TodoLabel    `json:"label" validate:"omitempty,oneof=feature bug improvement urgent design documentation testing maintenance"`
	Priority    TodoPriority `json:"priority" validate:"omitempty,oneof=high medium low"`
	DueDate     *string      `json:"due_date"` // ISO date or nil
	Assignees   []string     `json:"assignees"`
	Images      []string     `json:"images"` // inline-encoded image blobs, ordered
	Status      TodoStatus   `json:"status" validate:"omitempty,oneof=todo in-progress done"`
	CreatedAt   time.Time    `json:"created_at"`
	UpdatedAt   time.Time    `json:"updated_at"`
}

// TodoPatch carries a partial update. Nil fields are left untouched.
// An empty DueDate string clears the due date.
type TodoPatch struct {
	Title       *string       `json:"title"`
	Description *string       `json:"description"`
	Label       *TodoLabel    `json:"label"`
	Priority    *TodoPriority `json:"priority"`
	DueDate     *string       `json:"due_date"`
	Assignees   *[]string     `json:"assignees"`
	Images      *[]string     `json:"images"`
	Status      *TodoStatus   `json:"status"`
}

// Apply merges the patch into t. It does not touch UpdatedAt; the store
// stamps that after a successful merge.
func (p TodoPatch) Apply(t *Todo) {
	if p.Title != nil {
		t.Title = *p.Title
	}
	if p.Description != nil {
		t.Description = *p.Description
	}
	if p.Label != nil {
		t.Label = *p.Label
	}
	if p.Priority != nil {
		t.Priority = *p.Priority
	}
	if p.DueDate != nil {
		if *p.DueDate == "" {
			t.DueDate = nil
		} else {
			due := *p.DueDate
			t.DueDate = &due
		}
	}
	if p.Assignees != nil {
		t.Assignees = append([]string(nil), (*p.Assignees)...)
	}
	if p.Images != nil {
		t.Images = append([]string(nil), (*p.Images)...)
	}
	if p.Status != nil {
		t.Status = *p.Status
	}
}
