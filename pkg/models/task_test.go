package models

import (
	"testing"
	"time"
)

func TestPriorityValid(t *testing.T) {
	tests := []struct {
		p    Priority
		want bool
	}{
		{"", true},
		{PriorityLow, true},
		{PriorityMedium, true},
		{PriorityHigh, true},
		{"Urgent", false},
		{"low", false},
	}
	for _, tt := range tests {
		if got := tt.p.Valid(); got != tt.want {
			t.Errorf("Priority(%q).Valid() = %v, want %v", tt.p, got, tt.want)
		}
	}
}

func TestTaskProgress(t *testing.T) {
	task := Task{}
	if got := task.Progress(); got != 0 {
		t.Errorf("expected 0 progress with no subtasks, got %v", got)
	}

	task.Subtasks = []Subtask{
		{ID: "a", Completed: true},
		{ID: "b", Completed: false},
		{ID: "c", Completed: true},
		{ID: "d", Completed: false},
	}
	if got := task.CompletedSubtasks(); got != 2 {
		t.Errorf("expected 2 completed, got %d", got)
	}
	if got := task.Progress(); got != 50 {
		t.Errorf("expected 50%% progress, got %v", got)
	}
}

func TestCommentsNewestFirst(t *testing.T) {
	now := time.Now()
	task := Task{Comments: []Comment{
		{ID: "c1", Timestamp: now.Add(-2 * time.Hour)},
		{ID: "c2", Timestamp: now.Add(-time.Hour)},
		{ID: "c3", Timestamp: now},
	}}

	got := task.CommentsNewestFirst()
	if len(got) != 3 || got[0].ID != "c3" || got[2].ID != "c1" {
		t.Fatalf("unexpected order: %+v", got)
	}
	if task.Comments[0].ID != "c1" {
		t.Error("expected original slice to be left untouched")
	}
}

func TestProjectColumnTasks(t *testing.T) {
	p := &Project{
		Tasks: map[string]Task{
			"t1": {ID: "t1", Title: "one"},
			"t2": {ID: "t2", Title: "two"},
		},
		Columns: map[string]Column{
			"c1": {ID: "c1", TaskIDs: []string{"t2", "missing", "t1"}},
		},
		ColumnOrder: []string{"c1", "ghost"},
	}

	tasks := p.ColumnTasks("c1")
	if len(tasks) != 2 || tasks[0].ID != "t2" || tasks[1].ID != "t1" {
		t.Errorf("unexpected tasks: %+v", tasks)
	}
	if got := p.ColumnTasks("nope"); got != nil {
		t.Errorf("expected nil for unknown column, got %+v", got)
	}
	if cols := p.OrderedColumns(); len(cols) != 1 {
		t.Errorf("expected 1 ordered column, got %d", len(cols))
	}
}
