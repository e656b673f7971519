package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/charmbracelet/log"
	"github.com/nick-dorsch/projectpilot/internal/board"
	"github.com/nick-dorsch/projectpilot/internal/link"
	"github.com/nick-dorsch/projectpilot/internal/reminder"
	"github.com/nick-dorsch/projectpilot/internal/suggest"
	"github.com/nick-dorsch/projectpilot/pkg/models"
)

// Forgetter clears a task from the fired-reminder set.
type Forgetter interface {
	Forget(ctx context.Context, taskID string) error
}

type Options struct {
	Store    *board.Store
	Runner   *suggest.Runner
	Notifier reminder.Notifier
	// Reminders is consulted only when RearmOnReschedule is set.
	Reminders         Forgetter
	RearmOnReschedule bool
	ShareOrigin       string
	SharePath         string
	Logger            *log.Logger
}

type Server struct {
	opts   Options
	logger *log.Logger
	server *http.Server
}

func NewServer(opts Options) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = log.New(io.Discard)
	}
	if opts.SharePath == "" {
		opts.SharePath = "/"
	}
	return &Server{opts: opts, logger: logger}
}

// Handler returns the routed API. The board store is attached to every
// request context.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /{$}", s.handleIndex)
	mux.HandleFunc("GET /api/board", s.handleBoard)
	mux.HandleFunc("GET /api/users", s.handleUsers)
	mux.HandleFunc("POST /api/columns/{column}/tasks", s.handleAddTask)
	mux.HandleFunc("GET /api/tasks/{id}", s.handleGetTask)
	mux.HandleFunc("PATCH /api/tasks/{id}", s.handleUpdateTask)
	mux.HandleFunc("DELETE /api/tasks/{id}", s.handleDeleteTask)
	mux.HandleFunc("POST /api/tasks/{id}/move", s.handleMoveTask)
	mux.HandleFunc("POST /api/tasks/{id}/comments", s.handleAddComment)
	mux.HandleFunc("POST /api/tasks/{id}/subtasks", s.handleAddSubtasks)
	mux.HandleFunc("POST /api/tasks/{id}/subtasks/{sub}/toggle", s.handleToggleSubtask)
	mux.HandleFunc("POST /api/tasks/{id}/suggestions", s.handleSuggest)
	mux.HandleFunc("GET /api/tasks/{id}/share", s.handleShare)

	return s.withStore(s.logRequests(mux))
}

func (s *Server) Start(addr string) error {
	s.server = &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	s.logger.Info("web server listening", "addr", addr)
	return s.server.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

func (s *Server) withStore(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := board.WithStore(r.Context(), s.opts.Store)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		s.logger.Debug("request", "method", r.Method, "path", r.URL.Path, "status", rec.status, "duration", time.Since(start))
	})
}

type indexResponse struct {
	Board    *models.Project `json:"board"`
	OpenTask *models.Task    `json:"open_task,omitempty"`
	URL      string          `json:"url"`
}

// handleIndex serves the board and resolves an openTask deep link. The
// returned url has the parameter stripped so clients replace their location
// with it and the link is consumed once.
func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	store, ok := s.store(w, r)
	if !ok {
		return
	}
	taskID, stripped, err := link.ConsumeOpenTask(r.URL.RequestURI())
	if err != nil {
		s.fail(w, http.StatusBadRequest, err)
		return
	}

	snap := store.Snapshot()
	resp := indexResponse{Board: snap, URL: stripped}
	if taskID != "" {
		if t, ok := snap.Tasks[taskID]; ok {
			resp.OpenTask = &t
		} else {
			s.logger.Warn("deep link to unknown task", "task_id", taskID)
		}
	}
	s.respond(w, http.StatusOK, resp)
}

func (s *Server) handleBoard(w http.ResponseWriter, r *http.Request) {
	if store, ok := s.store(w, r); ok {
		s.respond(w, http.StatusOK, store.Snapshot())
	}
}

func (s *Server) handleUsers(w http.ResponseWriter, r *http.Request) {
	if store, ok := s.store(w, r); ok {
		s.respond(w, http.StatusOK, store.Users())
	}
}

func (s *Server) handleAddTask(w http.ResponseWriter, r *http.Request) {
	store, ok := s.store(w, r)
	if !ok {
		return
	}
	var body struct {
		Title string `json:"title"`
	}
	if !s.decode(w, r, &body) {
		return
	}
	task, err := store.AddTask(r.PathValue("column"), body.Title)
	if err != nil {
		s.fail(w, statusFor(err), err)
		return
	}
	if task == nil {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	s.respond(w, http.StatusCreated, task)
}

func (s *Server) handleGetTask(w http.ResponseWriter, r *http.Request) {
	store, ok := s.store(w, r)
	if !ok {
		return
	}
	t, ok := store.Snapshot().Tasks[r.PathValue("id")]
	if !ok {
		s.fail(w, http.StatusNotFound, board.ErrTaskNotFound)
		return
	}
	s.respond(w, http.StatusOK, t)
}

func (s *Server) handleUpdateTask(w http.ResponseWriter, r *http.Request) {
	store, ok := s.store(w, r)
	if !ok {
		return
	}
	var patch board.TaskPatch
	if !s.decode(w, r, &patch) {
		return
	}
	if patch.Priority != nil && !patch.Priority.Valid() {
		s.fail(w, http.StatusBadRequest, errors.New("priority must be Low, Medium or High"))
		return
	}

	id := r.PathValue("id")
	before, known := store.Snapshot().Tasks[id]
	task, err := store.UpdateTask(id, patch)
	if err != nil {
		s.fail(w, statusFor(err), err)
		return
	}

	if patch.ReminderAt != nil && !patch.ClearReminder {
		rescheduled := known && before.ReminderAt != nil && !before.ReminderAt.Equal(*patch.ReminderAt)
		s.reminderSet(r.Context(), id, rescheduled)
	}
	s.respond(w, http.StatusOK, task)
}

// reminderSet asks for notification permission the first time a reminder is
// set and, when configured, re-arms a rescheduled reminder.
func (s *Server) reminderSet(ctx context.Context, taskID string, rescheduled bool) {
	if s.opts.Notifier != nil {
		perm, err := reminder.RequestIfNeeded(ctx, s.opts.Notifier)
		if err != nil {
			s.logger.Warn("notification permission request failed", "err", err)
		} else {
			s.logger.Debug("notification permission", "state", perm)
		}
	}
	if rescheduled && s.opts.RearmOnReschedule && s.opts.Reminders != nil {
		if err := s.opts.Reminders.Forget(ctx, taskID); err != nil {
			s.logger.Warn("failed to re-arm reminder", "task_id", taskID, "err", err)
		}
	}
}

func (s *Server) handleDeleteTask(w http.ResponseWriter, r *http.Request) {
	store, ok := s.store(w, r)
	if !ok {
		return
	}
	if err := store.DeleteTask(r.PathValue("id")); err != nil {
		s.fail(w, statusFor(err), err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type moveRequest struct {
	Source      *board.Position `json:"source,omitempty"`
	Destination board.Position  `json:"destination"`
}

func (s *Server) handleMoveTask(w http.ResponseWriter, r *http.Request) {
	store, ok := s.store(w, r)
	if !ok {
		return
	}
	var body moveRequest
	if !s.decode(w, r, &body) {
		return
	}

	id := r.PathValue("id")
	src := body.Source
	if src == nil {
		pos, found := board.LocateTask(store.Snapshot(), id)
		if !found {
			s.fail(w, http.StatusNotFound, board.ErrTaskNotFound)
			return
		}
		src = &pos
	}
	if err := store.MoveTask(id, *src, body.Destination); err != nil {
		s.fail(w, statusFor(err), err)
		return
	}
	s.respond(w, http.StatusOK, store.Snapshot())
}

func (s *Server) handleAddComment(w http.ResponseWriter, r *http.Request) {
	store, ok := s.store(w, r)
	if !ok {
		return
	}
	var body struct {
		Text string `json:"text"`
	}
	if !s.decode(w, r, &body) {
		return
	}
	c, err := store.AddComment(r.PathValue("id"), body.Text)
	if err != nil {
		s.fail(w, statusFor(err), err)
		return
	}
	s.respond(w, http.StatusCreated, c)
}

func (s *Server) handleAddSubtasks(w http.ResponseWriter, r *http.Request) {
	store, ok := s.store(w, r)
	if !ok {
		return
	}
	var body struct {
		Text  *string  `json:"text,omitempty"`
		Texts []string `json:"texts,omitempty"`
	}
	if !s.decode(w, r, &body) {
		return
	}

	id := r.PathValue("id")
	if body.Text != nil {
		st, err := store.AddSubtask(id, *body.Text)
		if err != nil {
			s.fail(w, statusFor(err), err)
			return
		}
		if st == nil {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		s.respond(w, http.StatusCreated, []models.Subtask{*st})
		return
	}

	added, err := store.AddSubtasks(id, body.Texts)
	if err != nil {
		s.fail(w, statusFor(err), err)
		return
	}
	s.respond(w, http.StatusCreated, added)
}

func (s *Server) handleToggleSubtask(w http.ResponseWriter, r *http.Request) {
	store, ok := s.store(w, r)
	if !ok {
		return
	}
	id := r.PathValue("id")
	if err := store.ToggleSubtask(id, r.PathValue("sub")); err != nil {
		s.fail(w, statusFor(err), err)
		return
	}
	s.respond(w, http.StatusOK, store.Snapshot().Tasks[id])
}

type suggestResponse struct {
	Subtasks []string `json:"subtasks"`
	Error    bool     `json:"error"`
	Applied  bool     `json:"applied"`
}

// handleSuggest asks for subtask suggestions. With ?apply=true successful
// suggestions are appended to the task.
func (s *Server) handleSuggest(w http.ResponseWriter, r *http.Request) {
	store, ok := s.store(w, r)
	if !ok {
		return
	}
	if s.opts.Runner == nil {
		s.fail(w, http.StatusServiceUnavailable, errors.New("suggestions are not configured"))
		return
	}
	id := r.PathValue("id")
	t, found := store.Snapshot().Tasks[id]
	if !found {
		s.fail(w, http.StatusNotFound, board.ErrTaskNotFound)
		return
	}

	res, err := s.opts.Runner.Run(r.Context(), id, t.Title, t.Description)
	if err != nil {
		s.fail(w, http.StatusConflict, err)
		return
	}
	resp := suggestResponse{Subtasks: res.Subtasks, Error: res.Failed()}
	if !res.Failed() && r.URL.Query().Get("apply") == "true" {
		if _, err := store.AddSubtasks(id, res.Subtasks); err != nil {
			s.fail(w, statusFor(err), err)
			return
		}
		resp.Applied = true
	}
	s.respond(w, http.StatusOK, resp)
}

func (s *Server) handleShare(w http.ResponseWriter, r *http.Request) {
	store, ok := s.store(w, r)
	if !ok {
		return
	}
	t, found := store.Snapshot().Tasks[r.PathValue("id")]
	if !found {
		s.fail(w, http.StatusNotFound, board.ErrTaskNotFound)
		return
	}
	s.respond(w, http.StatusOK, map[string]string{
		"text": link.ShareText(t.Title, s.opts.ShareOrigin, s.opts.SharePath, t.ID),
	})
}

func (s *Server) store(w http.ResponseWriter, r *http.Request) (*board.Store, bool) {
	store, err := board.FromContext(r.Context())
	if err != nil {
		s.fail(w, http.StatusServiceUnavailable, err)
		return nil, false
	}
	return store, true
}

func (s *Server) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		s.fail(w, http.StatusBadRequest, err)
		return false
	}
	return true
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, board.ErrTaskNotFound), errors.Is(err, board.ErrColumnNotFound):
		return http.StatusNotFound
	case errors.Is(err, board.ErrIndexOutOfRange), errors.Is(err, board.ErrTaskNotAtIndex):
		return http.StatusBadRequest
	case errors.Is(err, board.ErrNoActiveStore):
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

func (s *Server) fail(w http.ResponseWriter, status int, err error) {
	if status >= 500 {
		s.logger.Error("request failed", "status", status, "err", err)
	}
	s.respond(w, status, map[string]string{"error": err.Error()})
}

func (s *Server) respond(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}
