package store

import (
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
)

// The rule set below is invoked by every store implementation so that the
// accept/reject decision for a given input is identical no matter which
// store serves the request.

var validate = validator.New()

// DateLayout is the ISO calendar-date layout used for schedule dates and
// todo due dates.
const DateLayout = "2006-01-02"

// ValidateSchedule checks the inputs of an AddSchedule call.
func ValidateSchedule(op, memberName, date string, slot TimeSlot) error {
	if memberName == "" {
		return NewInvalid(op, "member name is required")
	}
	if _, err := time.Parse(DateLayout, date); err != nil {
		return NewInvalid(op, fmt.Sprintf("invalid date %q: expected YYYY-MM-DD", date))
	}
	if !slot.Valid() {
		return NewInvalid(op, fmt.Sprintf("invalid time slot %q", slot))
	}
	return nil
}

// CheckScheduleConflict applies the duplicate-slot and Morning rules against
// the entries already stored for the member. It returns a Conflict error
// when the new assignment must be rejected.
//
// Two rules apply: at most one entry per (member, date, slot) triple, and at
// most one Morning entry per (member, date) regardless of what triple it
// came from.
func CheckScheduleConflict(existing []ScheduleEntry, memberName, date string, slot TimeSlot) error {
	for _, entry := range existing {
		if entry.MemberName != memberName || entry.Date != date {
			continue
		}
		if entry.TimeSlot == slot {
			return NewConflict("AddSchedule", memberName, date, slot)
		}
		if slot == SlotMorning && entry.TimeSlot == SlotMorning {
			return NewConflict("AddSchedule", memberName, date, SlotMorning)
		}
	}
	return nil
}

// ValidateTodo checks a card before it is stored: title is required and the
// label/priority/status enums must hold known values.
func ValidateTodo(op string, todo Todo) error {
	if err := validate.Struct(todo); err != nil {
		return NewInvalid(op, validationDetail(err))
	}
	if todo.DueDate != nil && *todo.DueDate != "" {
		if _, err := time.Parse(DateLayout, *todo.DueDate); err != nil {
			return NewInvalid(op, fmt.Sprintf("invalid due date %q: expected YYYY-MM-DD", *todo.DueDate))
		}
	}
	return nil
}

// ApplyTodoDefaults fills the defaults a freshly created card gets when the
// caller left them blank.
func ApplyTodoDefaults(todo *Todo) {
	if todo.Priority == "" {
		todo.Priority = PriorityMedium
	}
	if todo.Status == "" {
		todo.Status = StatusTodo
	}
}

// ValidateProfile checks a profile before an upsert.
func ValidateProfile(op string, profile UserProfile) error {
	if err := validate.Struct(profile); err != nil {
		return NewInvalid(op, validationDetail(err))
	}
	return nil
}

// NormalizeProfile fills the display name from the member name when the
// caller left it blank, mirroring what the settings screen does.
func NormalizeProfile(profile *UserProfile) {
	if profile.DisplayName == "" {
		profile.DisplayName = profile.MemberName
	}
}

// validationDetail flattens a validator error into a single readable line.
func validationDetail(err error) string {
	if fieldErrs, ok := err.(validator.ValidationErrors); ok && len(fieldErrs) > 0 {
		fe := fieldErrs[0]
		if fe.Tag() == "required" {
			return fmt.Sprintf("%s is required", fe.Field())
		}
		return fmt.Sprintf("%s has an invalid value", fe.Field())
	}
	return err.Error()
}
