package reminder

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/nick-dorsch/projectpilot/internal/slot"
	"github.com/nick-dorsch/projectpilot/pkg/models"
)

// SlotKey is the durable slot holding the JSON list of fired task ids.
const SlotKey = "project-pilot-fired-reminders"

const DefaultInterval = 30 * time.Second

var ErrCorruptFiredSet = errors.New("fired reminders slot is not a JSON list of ids")

// SnapshotSource supplies the latest board snapshot.
type SnapshotSource interface {
	Snapshot() *models.Project
}

// Dispatcher fires one notification per task whose reminder time has passed.
// Fired ids are remembered in a durable slot so a reminder fires at most once
// across restarts and across processes sharing the slot.
type Dispatcher struct {
	source   SnapshotSource
	notifier Notifier
	slots    slot.Store
	logger   *log.Logger
	now      func() time.Time

	Interval time.Duration

	mu    sync.Mutex
	fired []string
	index map[string]struct{}
}

func NewDispatcher(source SnapshotSource, notifier Notifier, slots slot.Store, logger *log.Logger) *Dispatcher {
	return &Dispatcher{
		source:   source,
		notifier: notifier,
		slots:    slots,
		logger:   logger,
		now:      time.Now,
		Interval: DefaultInterval,
		index:    make(map[string]struct{}),
	}
}

// SetClock replaces the time source. Intended for tests.
func (d *Dispatcher) SetClock(now func() time.Time) {
	d.now = now
}

// Run ticks once immediately and then every Interval until ctx is done.
func (d *Dispatcher) Run(ctx context.Context) error {
	d.tickAndLog(ctx)

	ticker := time.NewTicker(d.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			d.tickAndLog(ctx)
		}
	}
}

func (d *Dispatcher) tickAndLog(ctx context.Context) {
	n, err := d.Tick(ctx)
	if err != nil {
		d.logger.Error("reminder tick failed", "err", err)
		return
	}
	if n > 0 {
		d.logger.Debug("reminders fired", "count", n)
	}
}

// Tick runs one pass and returns how many notifications were emitted. Nothing
// happens unless notification permission is granted.
func (d *Dispatcher) Tick(ctx context.Context) (int, error) {
	if d.notifier.Permission() != PermissionGranted {
		return 0, nil
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if err := d.loadLocked(ctx); err != nil {
		return 0, err
	}

	now := d.now()
	due := dueTasks(d.source.Snapshot(), now)

	added := 0
	for _, t := range due {
		if _, ok := d.index[t.ID]; ok {
			continue
		}
		if err := d.notifier.Notify(ctx, NewNotification(t, now)); err != nil {
			d.logger.Warn("failed to deliver reminder", "task_id", t.ID, "err", err)
			continue
		}
		d.index[t.ID] = struct{}{}
		d.fired = append(d.fired, t.ID)
		added++
	}

	if added == 0 {
		return 0, nil
	}
	if err := d.persistLocked(ctx); err != nil {
		return added, err
	}
	return added, nil
}

// Forget removes a task from the fired set so its reminder can fire again.
func (d *Dispatcher) Forget(ctx context.Context, taskID string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if err := d.loadLocked(ctx); err != nil {
		return err
	}
	if _, ok := d.index[taskID]; !ok {
		return nil
	}
	delete(d.index, taskID)
	d.fired = slices.DeleteFunc(d.fired, func(id string) bool { return id == taskID })
	return d.persistLocked(ctx)
}

// Fired returns the fired ids in the order they fired.
func (d *Dispatcher) Fired(ctx context.Context) ([]string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if err := d.loadLocked(ctx); err != nil {
		return nil, err
	}
	return slices.Clone(d.fired), nil
}

// loadLocked re-reads the fired set on every call. Other processes may share
// the slot and record ids between ticks.
func (d *Dispatcher) loadLocked(ctx context.Context) error {
	ids, err := LoadFired(ctx, d.slots)
	if errors.Is(err, ErrCorruptFiredSet) {
		d.logger.Warn("ignoring unreadable fired reminders", "key", SlotKey, "err", err)
		ids = nil
	} else if err != nil {
		return err
	}
	d.fired = ids
	d.index = make(map[string]struct{}, len(ids))
	for _, id := range ids {
		d.index[id] = struct{}{}
	}
	return nil
}

func (d *Dispatcher) persistLocked(ctx context.Context) error {
	data, err := json.Marshal(d.fired)
	if err != nil {
		return fmt.Errorf("failed to encode fired reminders: %w", err)
	}
	if err := d.slots.Set(ctx, SlotKey, string(data)); err != nil {
		return fmt.Errorf("failed to save fired reminders: %w", err)
	}
	return nil
}

// LoadFired reads the fired set straight from a slot store.
func LoadFired(ctx context.Context, slots slot.Store) ([]string, error) {
	raw, ok, err := slots.Get(ctx, SlotKey)
	if err != nil {
		return nil, fmt.Errorf("failed to load fired reminders: %w", err)
	}
	if !ok || raw == "" {
		return []string{}, nil
	}
	var ids []string
	if err := json.Unmarshal([]byte(raw), &ids); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptFiredSet, err)
	}
	return ids, nil
}

// dueTasks returns tasks whose reminder is at or before now, in board order
// so notifications come out in the order the user sees the cards.
func dueTasks(p *models.Project, now time.Time) []models.Task {
	var out []models.Task
	placed := make(map[string]struct{}, len(p.Tasks))
	for _, col := range p.OrderedColumns() {
		for _, id := range col.TaskIDs {
			t, ok := p.Tasks[id]
			if !ok {
				continue
			}
			placed[id] = struct{}{}
			if t.ReminderAt != nil && !t.ReminderAt.After(now) {
				out = append(out, t)
			}
		}
	}

	var loose []models.Task
	for id, t := range p.Tasks {
		if _, ok := placed[id]; ok {
			continue
		}
		if t.ReminderAt != nil && !t.ReminderAt.After(now) {
			loose = append(loose, t)
		}
	}
	sort.Slice(loose, func(i, j int) bool { return loose[i].ID < loose[j].ID })
	return append(out, loose...)
}
