package reminder

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/charmbracelet/log"
	"github.com/nick-dorsch/projectpilot/internal/board"
	"github.com/nick-dorsch/projectpilot/internal/slot"
	"github.com/nick-dorsch/projectpilot/pkg/models"
)

type recordingNotifier struct {
	mu    sync.Mutex
	perm  Permission
	notes []Notification
	err   error
}

func (r *recordingNotifier) Permission() Permission { return r.perm }

func (r *recordingNotifier) RequestPermission(context.Context) (Permission, error) {
	return r.perm, nil
}

func (r *recordingNotifier) Notify(_ context.Context, n Notification) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	r.notes = append(r.notes, n)
	return nil
}

func (r *recordingNotifier) taskIDs() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var ids []string
	for _, n := range r.notes {
		ids = append(ids, n.TaskID)
	}
	return ids
}

type failingSlots struct{ slot.Memory }

func (*failingSlots) Get(context.Context, string) (string, bool, error) {
	return "", false, errors.New("backend down")
}

var testNow = time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)

func quietLogger() *log.Logger {
	return log.New(io.Discard)
}

func boardWithReminders(t *testing.T, reminders map[string]time.Time) *board.Store {
	t.Helper()
	p := &models.Project{
		Tasks:       map[string]models.Task{},
		Columns:     map[string]models.Column{"col": {ID: "col", Title: "Todo"}},
		ColumnOrder: []string{"col"},
	}
	s := board.NewStore(p, board.WithIDGenerator(&board.Sequence{}))
	t.Cleanup(s.Close)
	for _, title := range []string{"alpha", "beta", "gamma"} {
		task, err := s.AddTask("col", title)
		if err != nil {
			t.Fatalf("AddTask failed: %v", err)
		}
		if at, ok := reminders[title]; ok {
			at := at
			if _, err := s.UpdateTask(task.ID, board.TaskPatch{ReminderAt: &at}); err != nil {
				t.Fatalf("UpdateTask failed: %v", err)
			}
		}
	}
	return s
}

func newTestDispatcher(src SnapshotSource, n Notifier, slots slot.Store) *Dispatcher {
	d := NewDispatcher(src, n, slots, quietLogger())
	d.SetClock(func() time.Time { return testNow })
	return d
}

func storedIDs(t *testing.T, slots slot.Store) []string {
	t.Helper()
	raw, ok, err := slots.Get(context.Background(), SlotKey)
	if err != nil || !ok {
		t.Fatalf("slot read = ok %v, err %v", ok, err)
	}
	var ids []string
	if err := json.Unmarshal([]byte(raw), &ids); err != nil {
		t.Fatalf("slot is not a JSON list: %v", err)
	}
	return ids
}

func TestTickSkipsWithoutPermission(t *testing.T) {
	for _, perm := range []Permission{PermissionDefault, PermissionDenied} {
		t.Run(string(perm), func(t *testing.T) {
			s := boardWithReminders(t, map[string]time.Time{"alpha": testNow.Add(-time.Minute)})
			n := &recordingNotifier{perm: perm}
			slots := slot.NewMemory()

			fired, err := newTestDispatcher(s, n, slots).Tick(context.Background())
			if err != nil {
				t.Fatalf("Tick failed: %v", err)
			}
			if fired != 0 || len(n.notes) != 0 {
				t.Errorf("expected no notifications, got %d", fired)
			}
			if _, ok, _ := slots.Get(context.Background(), SlotKey); ok {
				t.Error("slot should not be written without permission")
			}
		})
	}
}

func TestTickFiresDueRemindersOnce(t *testing.T) {
	s := boardWithReminders(t, map[string]time.Time{
		"alpha": testNow.Add(-time.Hour),
		"beta":  testNow,
		"gamma": testNow.Add(time.Minute),
	})
	n := &recordingNotifier{perm: PermissionGranted}
	slots := slot.NewMemory()
	d := newTestDispatcher(s, n, slots)

	fired, err := d.Tick(context.Background())
	if err != nil {
		t.Fatalf("Tick failed: %v", err)
	}
	if fired != 2 {
		t.Fatalf("expected 2 notifications, got %d", fired)
	}
	if got := n.taskIDs(); !slices.Equal(got, []string{"task-1", "task-2"}) {
		t.Errorf("notified %v", got)
	}
	if n.notes[0].Title != NotificationTitle || n.notes[0].Body != `Don't forget about your task: "alpha"` {
		t.Errorf("unexpected notification %+v", n.notes[0])
	}
	if got := storedIDs(t, slots); !slices.Equal(got, []string{"task-1", "task-2"}) {
		t.Errorf("slot = %v", got)
	}

	fired, err = d.Tick(context.Background())
	if err != nil || fired != 0 {
		t.Errorf("second tick fired %d, err %v", fired, err)
	}
}

func TestTickRespectsPersistedSet(t *testing.T) {
	s := boardWithReminders(t, map[string]time.Time{
		"alpha": testNow.Add(-time.Hour),
		"beta":  testNow.Add(-time.Hour),
	})
	slots := slot.NewMemory()
	_ = slots.Set(context.Background(), SlotKey, `["task-1","deleted-task"]`)
	n := &recordingNotifier{perm: PermissionGranted}

	fired, err := newTestDispatcher(s, n, slots).Tick(context.Background())
	if err != nil {
		t.Fatalf("Tick failed: %v", err)
	}
	if fired != 1 || !slices.Equal(n.taskIDs(), []string{"task-2"}) {
		t.Errorf("notified %v", n.taskIDs())
	}
	if got := storedIDs(t, slots); !slices.Equal(got, []string{"task-1", "deleted-task", "task-2"}) {
		t.Errorf("slot should be overwritten with the full set, got %v", got)
	}
}

func TestTickIgnoresCorruptSlot(t *testing.T) {
	s := boardWithReminders(t, map[string]time.Time{"alpha": testNow.Add(-time.Hour)})
	slots := slot.NewMemory()
	_ = slots.Set(context.Background(), SlotKey, `{not json`)
	n := &recordingNotifier{perm: PermissionGranted}

	fired, err := newTestDispatcher(s, n, slots).Tick(context.Background())
	if err != nil || fired != 1 {
		t.Fatalf("Tick = %d, %v", fired, err)
	}
	if got := storedIDs(t, slots); !slices.Equal(got, []string{"task-1"}) {
		t.Errorf("slot = %v", got)
	}
}

func TestTickSlotUnavailable(t *testing.T) {
	s := boardWithReminders(t, map[string]time.Time{"alpha": testNow.Add(-time.Hour)})
	n := &recordingNotifier{perm: PermissionGranted}

	if _, err := newTestDispatcher(s, n, &failingSlots{}).Tick(context.Background()); err == nil {
		t.Fatal("expected error when the slot cannot be read")
	}
	if len(n.notes) != 0 {
		t.Error("should not notify before the fired set is known")
	}
}

func TestTickRetriesFailedDelivery(t *testing.T) {
	s := boardWithReminders(t, map[string]time.Time{"alpha": testNow.Add(-time.Hour)})
	n := &recordingNotifier{perm: PermissionGranted, err: errors.New("no display")}
	d := newTestDispatcher(s, n, slot.NewMemory())

	if fired, _ := d.Tick(context.Background()); fired != 0 {
		t.Fatalf("fired %d despite delivery failure", fired)
	}
	n.err = nil
	if fired, _ := d.Tick(context.Background()); fired != 1 {
		t.Errorf("expected retry to fire, got %d", fired)
	}
}

func TestTickSharedSlotFiresOnce(t *testing.T) {
	s := boardWithReminders(t, map[string]time.Time{"alpha": testNow.Add(time.Minute)})
	slots := slot.NewMemory()
	ctx := context.Background()

	now := testNow
	clock := func() time.Time { return now }
	first := &recordingNotifier{perm: PermissionGranted}
	second := &recordingNotifier{perm: PermissionGranted}
	a := NewDispatcher(s, first, slots, quietLogger())
	a.SetClock(clock)
	b := NewDispatcher(s, second, slots, quietLogger())
	b.SetClock(clock)

	for _, d := range []*Dispatcher{a, b} {
		if fired, err := d.Tick(ctx); err != nil || fired != 0 {
			t.Fatalf("early tick = %d, %v", fired, err)
		}
	}

	now = testNow.Add(2 * time.Minute)
	if fired, err := a.Tick(ctx); err != nil || fired != 1 {
		t.Fatalf("first dispatcher tick = %d, %v", fired, err)
	}
	if fired, err := b.Tick(ctx); err != nil || fired != 0 {
		t.Errorf("second dispatcher fired %d, err %v; the shared slot already holds task-1", fired, err)
	}
	if len(second.notes) != 0 {
		t.Errorf("second dispatcher notified %v", second.taskIDs())
	}
	if got := storedIDs(t, slots); !slices.Equal(got, []string{"task-1"}) {
		t.Errorf("slot = %v", got)
	}
}

func TestTickKeepsIDsWrittenByOthers(t *testing.T) {
	s := boardWithReminders(t, map[string]time.Time{
		"alpha": testNow.Add(-time.Hour),
		"beta":  testNow.Add(time.Minute),
	})
	slots := slot.NewMemory()
	ctx := context.Background()
	now := testNow
	d := NewDispatcher(s, &recordingNotifier{perm: PermissionGranted}, slots, quietLogger())
	d.SetClock(func() time.Time { return now })

	if _, err := d.Tick(ctx); err != nil {
		t.Fatalf("Tick failed: %v", err)
	}
	_ = slots.Set(ctx, SlotKey, `["task-1","task-other"]`)

	now = testNow.Add(2 * time.Minute)
	if fired, err := d.Tick(ctx); err != nil || fired != 1 {
		t.Fatalf("Tick = %d, %v", fired, err)
	}
	if got := storedIDs(t, slots); !slices.Equal(got, []string{"task-1", "task-other", "task-2"}) {
		t.Errorf("slot = %v", got)
	}
}

func TestNotificationKeepsTitleVerbatim(t *testing.T) {
	n := NewNotification(models.Task{ID: "task-1", Title: `Ship "v2"`}, testNow)
	if want := `Don't forget about your task: "Ship "v2""`; n.Body != want {
		t.Errorf("Body = %q, want %q", n.Body, want)
	}
}

func TestForgetRearms(t *testing.T) {
	s := boardWithReminders(t, map[string]time.Time{"alpha": testNow.Add(-time.Hour)})
	n := &recordingNotifier{perm: PermissionGranted}
	slots := slot.NewMemory()
	d := newTestDispatcher(s, n, slots)
	ctx := context.Background()

	if _, err := d.Tick(ctx); err != nil {
		t.Fatalf("Tick failed: %v", err)
	}
	if err := d.Forget(ctx, "task-1"); err != nil {
		t.Fatalf("Forget failed: %v", err)
	}
	if got := storedIDs(t, slots); len(got) != 0 {
		t.Errorf("slot = %v", got)
	}
	if fired, _ := d.Tick(ctx); fired != 1 {
		t.Errorf("expected reminder to fire again, got %d", fired)
	}
	if err := d.Forget(ctx, "unknown"); err != nil {
		t.Errorf("Forget of unknown id failed: %v", err)
	}
}

func TestRunTicksImmediatelyAndStops(t *testing.T) {
	s := boardWithReminders(t, map[string]time.Time{"alpha": testNow.Add(-time.Hour)})
	notifier := NewChannelNotifier(PermissionGranted, 4)
	d := newTestDispatcher(s, notifier, slot.NewMemory())
	d.Interval = time.Hour

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- d.Run(ctx) }()

	select {
	case note := <-notifier.Notifications():
		if note.TaskID != "task-1" {
			t.Errorf("unexpected task %s", note.TaskID)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no immediate tick")
	}

	cancel()
	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("Run returned %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not stop with its context")
	}
}

func TestRequestIfNeeded(t *testing.T) {
	ctx := context.Background()

	n := NewLogNotifier(quietLogger(), PermissionDefault, PermissionGranted)
	if p, _ := RequestIfNeeded(ctx, n); p != PermissionGranted {
		t.Errorf("default should resolve to granted, got %s", p)
	}

	denied := NewLogNotifier(quietLogger(), PermissionDenied, PermissionGranted)
	if p, _ := RequestIfNeeded(ctx, denied); p != PermissionDenied {
		t.Errorf("denied must stay denied, got %s", p)
	}

	pending := NewChannelNotifier(PermissionDefault, 1)
	if p, _ := RequestIfNeeded(ctx, pending); p != PermissionDefault {
		t.Errorf("channel notifier waits for an answer, got %s", p)
	}
	pending.SetPermission(PermissionGranted)
	if pending.Permission() != PermissionGranted {
		t.Error("SetPermission not applied")
	}
}

func TestParsePermission(t *testing.T) {
	tests := []struct {
		in      string
		want    Permission
		wantErr bool
	}{
		{"", PermissionDefault, false},
		{"granted", PermissionGranted, false},
		{"denied", PermissionDenied, false},
		{"maybe", "", true},
	}
	for _, tt := range tests {
		got, err := ParsePermission(tt.in)
		if (err != nil) != tt.wantErr || got != tt.want {
			t.Errorf("ParsePermission(%q) = %q, %v", tt.in, got, err)
		}
	}
}

func TestChannelNotifierDropsWhenFull(t *testing.T) {
	n := NewChannelNotifier(PermissionGranted, 0)
	n.timeout = 10 * time.Millisecond
	if err := n.Notify(context.Background(), Notification{TaskID: "x"}); err == nil {
		t.Error("expected error when nobody reads")
	}
}
