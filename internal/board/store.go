package board

import (
	"io"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/nick-dorsch/projectpilot/pkg/models"
)

// Store owns the authoritative board snapshot. Mutations are serialized and
// each successful change publishes a new immutable snapshot to subscribers.
type Store struct {
	mu      sync.RWMutex
	current *models.Project
	users   []models.User
	ids     IDGenerator
	now     func() time.Time
	logger  *log.Logger
	closed  bool

	// pubMu is taken before mu is released so snapshots reach subscribers in
	// commit order.
	pubMu   sync.Mutex
	subsMu  sync.Mutex
	subs    map[int]chan *models.Project
	nextSub int
}

type Option func(*Store)

func WithUsers(users []models.User) Option {
	return func(s *Store) { s.users = users }
}

func WithIDGenerator(g IDGenerator) Option {
	return func(s *Store) { s.ids = g }
}

func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

func WithLogger(l *log.Logger) Option {
	return func(s *Store) { s.logger = l }
}

// NewStore creates a store seeded with the given project. A nil project
// starts from an empty board.
func NewStore(initial *models.Project, opts ...Option) *Store {
	if initial == nil {
		initial = &models.Project{
			Tasks:   map[string]models.Task{},
			Columns: map[string]models.Column{},
		}
	}
	s := &Store{
		current: initial,
		ids:     UUIDGenerator{},
		now:     time.Now,
		subs:    make(map[int]chan *models.Project),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = log.New(io.Discard)
	}
	return s
}

// Snapshot returns the current board. The returned value must not be modified.
func (s *Store) Snapshot() *models.Project {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current
}

func (s *Store) Users() []models.User {
	out := make([]models.User, len(s.users))
	copy(out, s.users)
	return out
}

// FindUser looks up a user by id. Unknown ids report false.
func (s *Store) FindUser(id string) (models.User, bool) {
	for _, u := range s.users {
		if u.ID == id {
			return u, true
		}
	}
	return models.User{}, false
}

// Close ends the store's active scope. Later mutations fail with ErrNoActiveStore
// and subscriber channels are closed.
func (s *Store) Close() {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()

	s.subsMu.Lock()
	defer s.subsMu.Unlock()
	for id, ch := range s.subs {
		close(ch)
		delete(s.subs, id)
	}
}

// Active reports whether the store still accepts operations.
func (s *Store) Active() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return !s.closed
}

// Subscribe returns a channel that receives every published snapshot. Slow
// readers only ever see the latest one. Call cancel to unsubscribe.
func (s *Store) Subscribe() (<-chan *models.Project, func()) {
	ch := make(chan *models.Project, 1)

	s.subsMu.Lock()
	id := s.nextSub
	s.nextSub++
	s.subs[id] = ch
	s.subsMu.Unlock()

	cancel := func() {
		s.subsMu.Lock()
		defer s.subsMu.Unlock()
		if c, ok := s.subs[id]; ok {
			close(c)
			delete(s.subs, id)
		}
	}
	return ch, cancel
}

func (s *Store) publish(p *models.Project) {
	s.subsMu.Lock()
	defer s.subsMu.Unlock()
	for _, ch := range s.subs {
		select {
		case ch <- p:
		default:
			select {
			case <-ch:
			default:
			}
			ch <- p
		}
	}
}

func (s *Store) apply(op string, fn func(p *models.Project) (*models.Project, error)) (*models.Project, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, ErrNoActiveStore
	}
	next, err := fn(s.current)
	if err != nil {
		s.mu.Unlock()
		s.logger.Debug("board operation rejected", "op", op, "err", err)
		return nil, err
	}
	if next == s.current {
		s.mu.Unlock()
		return next, nil
	}
	s.current = next
	s.pubMu.Lock()
	s.mu.Unlock()

	s.logger.Debug("board updated", "op", op)
	s.publish(next)
	s.pubMu.Unlock()
	return next, nil
}

func (s *Store) MoveTask(taskID string, src, dst Position) error {
	_, err := s.apply("move_task", func(p *models.Project) (*models.Project, error) {
		return MoveTask(p, taskID, src, dst)
	})
	return err
}

// AddTask creates a task at the end of columnID. It returns nil, nil when the
// title is blank.
func (s *Store) AddTask(columnID, title string) (*models.Task, error) {
	id := s.ids.NewID("task")
	next, err := s.apply("add_task", func(p *models.Project) (*models.Project, error) {
		return AddTask(p, columnID, id, title)
	})
	if err != nil {
		return nil, err
	}
	t, ok := next.Tasks[id]
	if !ok {
		return nil, nil
	}
	return &t, nil
}

func (s *Store) UpdateTask(taskID string, patch TaskPatch) (models.Task, error) {
	next, err := s.apply("update_task", func(p *models.Project) (*models.Project, error) {
		return UpdateTask(p, taskID, patch)
	})
	if err != nil {
		return models.Task{}, err
	}
	return next.Tasks[taskID], nil
}

func (s *Store) DeleteTask(taskID string) error {
	_, err := s.apply("delete_task", func(p *models.Project) (*models.Project, error) {
		return DeleteTask(p, taskID)
	})
	return err
}

// AddComment appends a comment authored by the first known user.
func (s *Store) AddComment(taskID, text string) (models.Comment, error) {
	c := models.Comment{
		ID:        s.ids.NewID("comment"),
		UserID:    s.author(),
		Text:      text,
		Timestamp: s.now().UTC(),
	}
	_, err := s.apply("add_comment", func(p *models.Project) (*models.Project, error) {
		return AddComment(p, taskID, c)
	})
	if err != nil {
		return models.Comment{}, err
	}
	return c, nil
}

func (s *Store) ToggleSubtask(taskID, subtaskID string) error {
	_, err := s.apply("toggle_subtask", func(p *models.Project) (*models.Project, error) {
		return ToggleSubtask(p, taskID, subtaskID)
	})
	return err
}

// AddSubtask appends a single subtask. It returns nil, nil when text is blank.
func (s *Store) AddSubtask(taskID, text string) (*models.Subtask, error) {
	id := s.ids.NewID("sub")
	next, err := s.apply("add_subtask", func(p *models.Project) (*models.Project, error) {
		return AddSubtask(p, taskID, id, text)
	})
	if err != nil {
		return nil, err
	}
	for _, st := range next.Tasks[taskID].Subtasks {
		if st.ID == id {
			return &st, nil
		}
	}
	return nil, nil
}

func (s *Store) AddSubtasks(taskID string, texts []string) ([]models.Subtask, error) {
	ids := make([]string, len(texts))
	for i := range texts {
		ids[i] = s.ids.NewID("sub")
	}
	next, err := s.apply("add_subtasks", func(p *models.Project) (*models.Project, error) {
		return AddSubtasks(p, taskID, ids, texts)
	})
	if err != nil {
		return nil, err
	}
	subs := next.Tasks[taskID].Subtasks
	return slicesTail(subs, len(texts)), nil
}

func (s *Store) author() string {
	if len(s.users) == 0 {
		return ""
	}
	return s.users[0].ID
}

func slicesTail(subs []models.Subtask, n int) []models.Subtask {
	if n > len(subs) {
		n = len(subs)
	}
	out := make([]models.Subtask, n)
	copy(out, subs[len(subs)-n:])
	return out
}
