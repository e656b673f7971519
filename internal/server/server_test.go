package server

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/charmbracelet/log"
	"github.com/nick-dorsch/projectpilot/internal/board"
	"github.com/nick-dorsch/projectpilot/internal/reminder"
	"github.com/nick-dorsch/projectpilot/internal/suggest"
	"github.com/nick-dorsch/projectpilot/pkg/models"
)

type fakeForgetter struct {
	forgotten []string
}

func (f *fakeForgetter) Forget(_ context.Context, taskID string) error {
	f.forgotten = append(f.forgotten, taskID)
	return nil
}

type testEnv struct {
	store    *board.Store
	handler  http.Handler
	notifier *reminder.LogNotifier
	forget   *fakeForgetter
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	store := board.NewStore(board.SeedProject(time.Now()),
		board.WithUsers(board.DefaultUsers),
		board.WithIDGenerator(&board.Sequence{Prefix: "new"}),
	)
	t.Cleanup(store.Close)

	logger := log.New(io.Discard)
	notifier := reminder.NewLogNotifier(logger, reminder.PermissionDefault, reminder.PermissionGranted)
	forget := &fakeForgetter{}
	srv := NewServer(Options{
		Store:             store,
		Runner:            suggest.NewRunner(suggest.Mock{Delay: time.Millisecond}, time.Second, logger),
		Notifier:          notifier,
		Reminders:         forget,
		RearmOnReschedule: true,
		ShareOrigin:       "http://pilot.test",
		SharePath:         "/board",
		Logger:            logger,
	})
	return &testEnv{store: store, handler: srv.Handler(), notifier: notifier, forget: forget}
}

func (e *testEnv) do(t *testing.T, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, r)
	w := httptest.NewRecorder()
	e.handler.ServeHTTP(w, req)
	return w
}

func decodeBody[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(w.Body.Bytes(), &v); err != nil {
		t.Fatalf("Failed to decode response %q: %v", w.Body.String(), err)
	}
	return v
}

func TestServer_Board(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, "GET", "/api/board", "")
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status OK, got %v", w.Code)
	}
	p := decodeBody[models.Project](t, w)
	if len(p.Tasks) != 7 || len(p.ColumnOrder) != 4 {
		t.Errorf("Unexpected board: %d tasks, %d columns", len(p.Tasks), len(p.ColumnOrder))
	}

	w = env.do(t, "GET", "/api/users", "")
	users := decodeBody[[]models.User](t, w)
	if len(users) != 4 {
		t.Errorf("Expected 4 users, got %d", len(users))
	}
}

func TestServer_DeepLink(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, "GET", "/?openTask=task-3&view=compact", "")
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status OK, got %v", w.Code)
	}
	resp := decodeBody[indexResponse](t, w)
	if resp.OpenTask == nil || resp.OpenTask.ID != "task-3" {
		t.Fatalf("Expected task-3 to open, got %+v", resp.OpenTask)
	}
	if strings.Contains(resp.URL, "openTask") || !strings.Contains(resp.URL, "view=compact") {
		t.Errorf("URL not stripped correctly: %s", resp.URL)
	}

	w = env.do(t, "GET", resp.URL, "")
	again := decodeBody[indexResponse](t, w)
	if again.OpenTask != nil {
		t.Error("Stripped URL should not open a task")
	}
}

func TestServer_TaskLifecycle(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, "POST", "/api/columns/column-1/tasks", `{"title": "   "}`)
	if w.Code != http.StatusNoContent {
		t.Errorf("Blank title: expected 204, got %v", w.Code)
	}

	w = env.do(t, "POST", "/api/columns/column-1/tasks", `{"title": "Foo"}`)
	if w.Code != http.StatusCreated {
		t.Fatalf("Expected 201, got %v: %s", w.Code, w.Body.String())
	}
	task := decodeBody[models.Task](t, w)
	ids := env.store.Snapshot().Columns["column-1"].TaskIDs
	if ids[len(ids)-1] != task.ID {
		t.Errorf("New task not last in column: %v", ids)
	}

	w = env.do(t, "PATCH", "/api/tasks/"+task.ID, `{"description": "details", "priority": "High"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("PATCH failed: %v %s", w.Code, w.Body.String())
	}
	if got := decodeBody[models.Task](t, w); got.Description != "details" || got.Priority != models.PriorityHigh {
		t.Errorf("Patch not applied: %+v", got)
	}

	w = env.do(t, "PATCH", "/api/tasks/"+task.ID, `{"priority": "Urgent"}`)
	if w.Code != http.StatusBadRequest {
		t.Errorf("Invalid priority: expected 400, got %v", w.Code)
	}

	w = env.do(t, "POST", "/api/tasks/"+task.ID+"/move", `{"destination": {"column_id": "column-2", "index": 0}}`)
	if w.Code != http.StatusOK {
		t.Fatalf("Move failed: %v %s", w.Code, w.Body.String())
	}
	if got := env.store.Snapshot().Columns["column-2"].TaskIDs[0]; got != task.ID {
		t.Errorf("Expected task first in column-2, got %s", got)
	}

	w = env.do(t, "POST", "/api/tasks/"+task.ID+"/move", `{"source": {"column_id": "column-2", "index": 1}, "destination": {"column_id": "column-1", "index": 0}}`)
	if w.Code != http.StatusBadRequest {
		t.Errorf("Wrong source index: expected 400, got %v", w.Code)
	}

	w = env.do(t, "DELETE", "/api/tasks/"+task.ID, "")
	if w.Code != http.StatusNoContent {
		t.Errorf("Delete: expected 204, got %v", w.Code)
	}
	w = env.do(t, "DELETE", "/api/tasks/"+task.ID, "")
	if w.Code != http.StatusNoContent {
		t.Errorf("Second delete should be idempotent, got %v", w.Code)
	}
	w = env.do(t, "GET", "/api/tasks/"+task.ID, "")
	if w.Code != http.StatusNotFound {
		t.Errorf("Deleted task: expected 404, got %v", w.Code)
	}
}

func TestServer_CommentsAndSubtasks(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, "POST", "/api/tasks/task-2/comments", `{"text": "on it"}`)
	if w.Code != http.StatusCreated {
		t.Fatalf("Comment failed: %v", w.Code)
	}
	if c := decodeBody[models.Comment](t, w); c.UserID != "user-1" {
		t.Errorf("Comment author = %s", c.UserID)
	}

	w = env.do(t, "POST", "/api/tasks/task-2/subtasks", `{"texts": ["a", "b", "c"]}`)
	added := decodeBody[[]models.Subtask](t, w)
	if len(added) != 3 {
		t.Fatalf("Expected 3 subtasks, got %d", len(added))
	}

	w = env.do(t, "POST", "/api/tasks/task-2/subtasks", `{"text": " "}`)
	if w.Code != http.StatusNoContent {
		t.Errorf("Blank subtask: expected 204, got %v", w.Code)
	}

	w = env.do(t, "POST", "/api/tasks/task-2/subtasks/"+added[0].ID+"/toggle", "")
	if got := decodeBody[models.Task](t, w); !got.Subtasks[0].Completed {
		t.Error("Subtask not toggled")
	}

	w = env.do(t, "POST", "/api/tasks/missing/comments", `{"text": "x"}`)
	if w.Code != http.StatusNotFound {
		t.Errorf("Unknown task: expected 404, got %v", w.Code)
	}
}

func TestServer_Reminders(t *testing.T) {
	env := newTestEnv(t)
	at := time.Now().Add(time.Hour).UTC().Format(time.RFC3339)

	w := env.do(t, "PATCH", "/api/tasks/task-2", `{"reminder_at": "`+at+`"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("PATCH failed: %v", w.Code)
	}
	if env.notifier.Permission() != reminder.PermissionGranted {
		t.Errorf("Permission should be requested lazily, got %s", env.notifier.Permission())
	}
	if len(env.forget.forgotten) != 0 {
		t.Error("First reminder should not re-arm")
	}

	// task-3 already has a reminder in the seed.
	env.do(t, "PATCH", "/api/tasks/task-3", `{"reminder_at": "`+at+`"}`)
	if len(env.forget.forgotten) != 1 || env.forget.forgotten[0] != "task-3" {
		t.Errorf("Rescheduled reminder should re-arm, got %v", env.forget.forgotten)
	}

	// Sending the same time again is not a reschedule.
	env.do(t, "PATCH", "/api/tasks/task-3", `{"reminder_at": "`+at+`"}`)
	env.do(t, "PATCH", "/api/tasks/task-2", `{"reminder_at": "`+at+`"}`)
	if len(env.forget.forgotten) != 1 {
		t.Errorf("Unchanged reminder should not re-arm, got %v", env.forget.forgotten)
	}
}

func TestServer_SuggestAndShare(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, "POST", "/api/tasks/task-4/suggestions?apply=true", "")
	if w.Code != http.StatusOK {
		t.Fatalf("Suggest failed: %v %s", w.Code, w.Body.String())
	}
	resp := decodeBody[suggestResponse](t, w)
	if resp.Error || !resp.Applied || len(resp.Subtasks) != 3 {
		t.Errorf("Unexpected suggestion response %+v", resp)
	}
	if n := len(env.store.Snapshot().Tasks["task-4"].Subtasks); n != 3 {
		t.Errorf("Expected 3 applied subtasks, got %d", n)
	}

	w = env.do(t, "GET", "/api/tasks/task-4/share", "")
	share := decodeBody[map[string]string](t, w)
	want := "Check out this task in Project Pilot: Write blog post about Q2 features\n\nhttp://pilot.test/board#task-task-4"
	if share["text"] != want {
		t.Errorf("Share text = %q", share["text"])
	}
}

func TestServer_ClosedStore(t *testing.T) {
	env := newTestEnv(t)
	env.store.Close()

	w := env.do(t, "GET", "/api/board", "")
	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("Expected 503 after close, got %v", w.Code)
	}
}
