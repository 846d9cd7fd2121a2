// Package board turns the flat todo collection into render-ready kanban
// columns. The ordering inside a column is part of the application's
// observable behavior: priority first, then due-date urgency, then newest.
package board

import (
	"sort"
	"time"

	"shiftboard/store"
)

// noDueDateScore ranks cards without a due date behind everything that has
// one.
const noDueDateScore = 999

// Column is one kanban lane with its cards already in display order.
type Column struct {
	Status store.TodoStatus `json:"status"`
	Count  int              `json:"count"`
	Todos  []store.Todo     `json:"todos"`
}

// Columns groups todos into the three lanes and sorts each one.
func Columns(todos []store.Todo, now time.Time) []Column {
	statuses := []store.TodoStatus{store.StatusTodo, store.StatusInProgress, store.StatusDone}

	columns := make([]Column, 0, len(statuses))
	for _, status := range statuses {
		var lane []store.Todo
		for _, todo := range todos {
			if todo.Status == status {
				lane = append(lane, todo)
			}
		}
		Sort(lane, now)
		columns = append(columns, Column{Status: status, Count: len(lane), Todos: lane})
	}
	return columns
}

// Sort orders cards by priority (high, medium, low), then urgency score
// ascending, then creation time descending.
func Sort(todos []store.Todo, now time.Time) {
	sort.SliceStable(todos, func(i, j int) bool {
		pi, pj := priorityRank(todos[i].Priority), priorityRank(todos[j].Priority)
		if pi != pj {
			return pi < pj
		}
		ui, uj := UrgencyScore(todos[i], now), UrgencyScore(todos[j], now)
		if ui != uj {
			return ui < uj
		}
		return todos[i].CreatedAt.After(todos[j].CreatedAt)
	})
}

func priorityRank(p store.TodoPriority) int {
	switch p {
	case store.PriorityHigh:
		return 0
	case store.PriorityLow:
		return 2
	default:
		return 1
	}
}

// UrgencyScore is the number of whole days until the due date: zero today,
// positive in the future, negative once overdue, so the most overdue card
// sorts first. Cards without a due date score 999.
func UrgencyScore(todo store.Todo, now time.Time) int {
	if todo.DueDate == nil || *todo.DueDate == "" {
		return noDueDateScore
	}
	due, err := time.ParseInLocation(store.DateLayout, *todo.DueDate, now.Location())
	if err != nil {
		return noDueDateScore
	}
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	return int(due.Sub(today).Hours() / 24)
}
