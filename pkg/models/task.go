package models

import "time"

type Priority string

const (
	PriorityLow    Priority = "Low"
	PriorityMedium Priority = "Medium"
	PriorityHigh   Priority = "High"
)

// Valid reports whether p is one of the enumerated priorities or empty (unset).
func (p Priority) Valid() bool {
	switch p {
	case "", PriorityLow, PriorityMedium, PriorityHigh:
		return true
	}
	return false
}

// DueDateLayout is the calendar-day format used for Task.DueDate.
const DueDateLayout = "2006-01-02"

type Comment struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
}

type Subtask struct {
	ID        string `json:"id"`
	Text      string `json:"text"`
	Completed bool   `json:"completed"`
}

type Task struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description"`

	// AssignedTo is a weak reference to a User.ID; empty means unassigned.
	AssignedTo string `json:"assigned_to,omitempty"`

	// DueDate is a calendar day (DueDateLayout); empty means no due date.
	DueDate    string     `json:"due_date,omitempty"`
	ReminderAt *time.Time `json:"reminder_at,omitempty"`
	Priority   Priority   `json:"priority,omitempty"`

	Comments []Comment `json:"comments"`
	Subtasks []Subtask `json:"subtasks"`
}

// CompletedSubtasks returns how many subtasks are checked off.
func (t Task) CompletedSubtasks() int {
	n := 0
	for _, s := range t.Subtasks {
		if s.Completed {
			n++
		}
	}
	return n
}

// Progress returns the completed share of subtasks in percent, 0 when there are none.
func (t Task) Progress() float64 {
	if len(t.Subtasks) == 0 {
		return 0
	}
	return float64(t.CompletedSubtasks()) / float64(len(t.Subtasks)) * 100
}

// CommentsNewestFirst returns a copy of the comments in display order.
func (t Task) CommentsNewestFirst() []Comment {
	out := make([]Comment, len(t.Comments))
	for i, c := range t.Comments {
		out[len(out)-1-i] = c
	}
	return out
}
