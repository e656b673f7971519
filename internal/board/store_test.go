package board

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/nick-dorsch/projectpilot/pkg/models"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	now := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	s := NewStore(SeedProject(now),
		WithUsers(DefaultUsers),
		WithIDGenerator(&Sequence{Prefix: "new"}),
		WithClock(func() time.Time { return now }),
	)
	t.Cleanup(s.Close)
	return s
}

func TestStoreAddTaskPublishes(t *testing.T) {
	s := newTestStore(t)
	updates, cancel := s.Subscribe()
	defer cancel()

	before := s.Snapshot()
	task, err := s.AddTask("column-1", "Foo")
	if err != nil {
		t.Fatalf("AddTask failed: %v", err)
	}
	if task == nil || task.ID != "task-new-1" {
		t.Fatalf("unexpected task: %+v", task)
	}

	select {
	case snap := <-updates:
		if snap == before {
			t.Error("published the old snapshot")
		}
		ids := snap.Columns["column-1"].TaskIDs
		if ids[len(ids)-1] != task.ID {
			t.Errorf("task not appended: %v", ids)
		}
	case <-time.After(time.Second):
		t.Fatal("no snapshot published")
	}
}

func TestStoreConcurrentWritersPublishLatest(t *testing.T) {
	s := newTestStore(t)
	updates, cancel := s.Subscribe()
	defer cancel()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := s.AddSubtask("task-2", "step"); err != nil {
				t.Errorf("AddSubtask failed: %v", err)
			}
		}()
	}
	wg.Wait()

	select {
	case snap := <-updates:
		if snap != s.Snapshot() {
			t.Errorf("subscriber holds a stale snapshot with %d subtasks, want %d",
				len(snap.Tasks["task-2"].Subtasks), len(s.Snapshot().Tasks["task-2"].Subtasks))
		}
	case <-time.After(time.Second):
		t.Fatal("no snapshot published")
	}
}

func TestStoreNoOpDoesNotPublish(t *testing.T) {
	s := newTestStore(t)
	updates, cancel := s.Subscribe()
	defer cancel()

	before := s.Snapshot()
	task, err := s.AddTask("column-1", "   ")
	if err != nil || task != nil {
		t.Fatalf("blank AddTask = %+v, %v", task, err)
	}
	if s.Snapshot() != before {
		t.Error("blank AddTask replaced the snapshot")
	}
	select {
	case <-updates:
		t.Error("no-op should not publish")
	default:
	}
}

func TestStoreAddCommentUsesFirstUser(t *testing.T) {
	s := newTestStore(t)
	c, err := s.AddComment("task-2", "looks good")
	if err != nil {
		t.Fatalf("AddComment failed: %v", err)
	}
	if c.UserID != DefaultUsers[0].ID {
		t.Errorf("author = %s, want %s", c.UserID, DefaultUsers[0].ID)
	}
	if c.Timestamp.IsZero() {
		t.Error("timestamp not set")
	}
	comments := s.Snapshot().Tasks["task-2"].Comments
	if len(comments) != 1 || comments[0].Text != "looks good" {
		t.Errorf("unexpected comments: %+v", comments)
	}

	if _, err := s.AddComment("nope", "x"); !errors.Is(err, ErrTaskNotFound) {
		t.Errorf("expected ErrTaskNotFound, got %v", err)
	}
}

func TestStoreSubtasks(t *testing.T) {
	s := newTestStore(t)

	added, err := s.AddSubtasks("task-2", []string{"one", "two", "three"})
	if err != nil {
		t.Fatalf("AddSubtasks failed: %v", err)
	}
	if len(added) != 3 {
		t.Fatalf("expected 3 subtasks, got %d", len(added))
	}
	seen := map[string]bool{}
	for i, st := range added {
		if st.Text != []string{"one", "two", "three"}[i] {
			t.Errorf("subtask %d = %q", i, st.Text)
		}
		if seen[st.ID] {
			t.Errorf("duplicate id %s", st.ID)
		}
		seen[st.ID] = true
	}

	if err := s.ToggleSubtask("task-2", added[1].ID); err != nil {
		t.Fatalf("ToggleSubtask failed: %v", err)
	}
	if got := s.Snapshot().Tasks["task-2"].Progress(); got < 33 || got > 34 {
		t.Errorf("progress = %v", got)
	}

	single, err := s.AddSubtask("task-2", "four")
	if err != nil || single == nil || single.Text != "four" {
		t.Errorf("AddSubtask = %+v, %v", single, err)
	}
	none, err := s.AddSubtask("task-2", " ")
	if err != nil || none != nil {
		t.Errorf("blank AddSubtask = %+v, %v", none, err)
	}
}

func TestStoreMoveAndDelete(t *testing.T) {
	s := newTestStore(t)

	pos, ok := LocateTask(s.Snapshot(), "task-4")
	if !ok {
		t.Fatal("task-4 not found")
	}
	if err := s.MoveTask("task-4", pos, Position{ColumnID: "column-4", Index: 0}); err != nil {
		t.Fatalf("MoveTask failed: %v", err)
	}
	if got := s.Snapshot().Columns["column-4"].TaskIDs[0]; got != "task-4" {
		t.Errorf("column-4[0] = %s", got)
	}

	if err := s.DeleteTask("task-4"); err != nil {
		t.Fatalf("DeleteTask failed: %v", err)
	}
	if err := s.DeleteTask("task-4"); err != nil {
		t.Fatalf("second DeleteTask failed: %v", err)
	}
	if _, ok := LocateTask(s.Snapshot(), "task-4"); ok {
		t.Error("task-4 still on the board")
	}
}

func TestStoreUUIDs(t *testing.T) {
	s := NewStore(SeedProject(time.Now()), WithUsers(DefaultUsers))
	defer s.Close()

	a, _ := s.AddTask("column-1", "first")
	b, _ := s.AddTask("column-1", "second")
	if a.ID == b.ID {
		t.Fatal("ids collide")
	}
	if !strings.HasPrefix(a.ID, "task-") || len(a.ID) != len("task-")+36 {
		t.Errorf("unexpected id format %q", a.ID)
	}
}

func TestStoreClosedScope(t *testing.T) {
	s := newTestStore(t)
	updates, _ := s.Subscribe()
	s.Close()

	if _, ok := <-updates; ok {
		t.Error("subscription not closed")
	}
	if _, err := s.AddTask("column-1", "late"); !errors.Is(err, ErrNoActiveStore) {
		t.Errorf("expected ErrNoActiveStore, got %v", err)
	}
}

func TestScope(t *testing.T) {
	if _, err := FromContext(context.Background()); !errors.Is(err, ErrNoActiveStore) {
		t.Errorf("expected ErrNoActiveStore, got %v", err)
	}

	s := newTestStore(t)
	ctx := WithStore(context.Background(), s)
	if got := MustFromContext(ctx); got != s {
		t.Error("wrong store from context")
	}

	defer func() {
		r := recover()
		err, ok := r.(error)
		if !ok || !errors.Is(err, ErrNoActiveStore) {
			t.Errorf("expected panic with ErrNoActiveStore, got %v", r)
		}
	}()
	MustFromContext(context.Background())
}

func TestIsOverdue(t *testing.T) {
	today := time.Date(2026, 3, 10, 15, 0, 0, 0, time.UTC)
	p := SeedProject(today)

	if !IsOverdue(p, p.Tasks["task-3"], today) {
		t.Error("task-3 is two days late and not done")
	}
	if IsOverdue(p, p.Tasks["task-1"], today) {
		t.Error("task-1 is due in the future")
	}

	late := p.Tasks["task-6"]
	late.DueDate = "2026-01-01"
	if IsOverdue(p, late, today) {
		t.Error("tasks in the done column are never overdue")
	}

	dueToday := p.Tasks["task-2"]
	dueToday.DueDate = today.Format(models.DueDateLayout)
	if IsOverdue(p, dueToday, today) {
		t.Error("due today is not overdue")
	}
}

func TestSeedInvariants(t *testing.T) {
	p := SeedProject(time.Now())
	seen := map[string]string{}
	for _, colID := range p.ColumnOrder {
		for _, id := range p.Columns[colID].TaskIDs {
			if _, ok := p.Tasks[id]; !ok {
				t.Errorf("column %s references missing task %s", colID, id)
			}
			if prev, dup := seen[id]; dup {
				t.Errorf("task %s in both %s and %s", id, prev, colID)
			}
			seen[id] = colID
		}
	}
	if len(seen) != len(p.Tasks) {
		t.Errorf("%d tasks placed, %d exist", len(seen), len(p.Tasks))
	}
	if len(TasksWithReminders(p)) != 1 {
		t.Error("expected exactly one seeded reminder")
	}
}
