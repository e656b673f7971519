package components

import (
	"strings"
	"testing"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/nick-dorsch/projectpilot/pkg/models"
)

func sampleTask() models.Task {
	return models.Task{
		ID:       "task-1",
		Title:    "Ship the beta",
		Priority: models.PriorityHigh,
		DueDate:  "2026-01-02",
		Subtasks: []models.Subtask{
			{ID: "s1", Text: "Write notes", Completed: true},
			{ID: "s2", Text: "Tag release"},
		},
		Comments: []models.Comment{
			{ID: "c1", UserID: "user-1", Text: "first", Timestamp: time.Date(2026, 1, 1, 9, 0, 0, 0, time.UTC)},
			{ID: "c2", UserID: "user-9", Text: "second", Timestamp: time.Date(2026, 1, 1, 10, 0, 0, 0, time.UTC)},
		},
	}
}

func TestColumnView(t *testing.T) {
	c := NewColumn("Backlog", 40)
	c.Cards = []Card{{Task: sampleTask(), Assignee: "Alex Reid", Overdue: true}}
	view := c.View()

	for _, want := range []string{"Backlog", "(1)", "Ship the beta", "High", "due 2026-01-02", "1/2", "@Alex Reid"} {
		if !strings.Contains(view, want) {
			t.Errorf("expected column view to contain %q", want)
		}
	}
}

func TestColumnEmptyState(t *testing.T) {
	view := NewColumn("Done", 30).View()
	if !strings.Contains(view, "No tasks") {
		t.Errorf("expected placeholder when column is empty")
	}
	if !strings.Contains(view, "(0)") {
		t.Errorf("expected zero count")
	}
}

func TestColumnWidth(t *testing.T) {
	c := NewColumn("In Progress", 30)
	c.Cards = []Card{{Task: models.Task{Title: "A very long task title that needs to wrap inside the card"}}}
	c.Focused = true
	c.Selected = 0
	for i, line := range strings.Split(c.View(), "\n") {
		if w := lipgloss.Width(line); w > 30 {
			t.Errorf("line %d is %d wide, want <= 30: %q", i, w, line)
		}
	}
}

func TestRenderDetail(t *testing.T) {
	out := RenderDetail(DetailData{
		Task:    sampleTask(),
		Column:  "Backlog",
		Authors: map[string]string{"user-1": "Alex Reid"},
		Subtask: 1,
		Status:  "Copied!",
	})

	for _, want := range []string{"Ship the beta", "Unassigned", "Subtasks 1/2 (50%)", "[x] ", "[ ] ", "Comments (2)", "Alex Reid", "Unknown", "Copied!", "No description"} {
		if !strings.Contains(out, want) {
			t.Errorf("expected detail to contain %q", want)
		}
	}

	if strings.Index(out, "second") > strings.Index(out, "first") {
		t.Errorf("expected comments newest first")
	}
}

func TestTaskDetailHeight(t *testing.T) {
	d := NewTaskDetail(60, 8)
	d.SetSize(60, 8)
	d.SetData(DetailData{Task: sampleTask(), Subtask: -1})
	lines := strings.Split(strings.TrimRight(d.View(), "\n"), "\n")
	if len(lines) != 8 {
		t.Errorf("expected TaskDetail to be 8 lines, got %d", len(lines))
	}
	if !strings.Contains(d.View(), "│") && !strings.Contains(d.View(), "┃") {
		t.Errorf("expected scrollbar for overflowing content")
	}
}
