package reminder

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/nick-dorsch/projectpilot/pkg/models"
)

// Permission mirrors the three states of a desktop notification grant.
type Permission string

const (
	PermissionDefault Permission = "default"
	PermissionGranted Permission = "granted"
	PermissionDenied  Permission = "denied"
)

func ParsePermission(s string) (Permission, error) {
	switch p := Permission(s); p {
	case PermissionDefault, PermissionGranted, PermissionDenied:
		return p, nil
	case "":
		return PermissionDefault, nil
	}
	return "", fmt.Errorf("invalid notification permission %q", s)
}

const NotificationTitle = "Project Pilot Reminder"

type Notification struct {
	TaskID string
	Title  string
	Body   string
	At     time.Time
}

func NewNotification(t models.Task, at time.Time) Notification {
	return Notification{
		TaskID: t.ID,
		Title:  NotificationTitle,
		Body:   fmt.Sprintf("Don't forget about your task: \"%s\"", t.Title),
		At:     at,
	}
}

// Notifier delivers reminders to the user.
type Notifier interface {
	Permission() Permission
	RequestPermission(ctx context.Context) (Permission, error)
	Notify(ctx context.Context, n Notification) error
}

// RequestIfNeeded asks for permission only while the notifier is still in
// the default state. Granted and denied are returned as-is.
func RequestIfNeeded(ctx context.Context, n Notifier) (Permission, error) {
	if p := n.Permission(); p != PermissionDefault {
		return p, nil
	}
	return n.RequestPermission(ctx)
}

type permissionState struct {
	mu     sync.RWMutex
	perm   Permission
	answer Permission
}

func (s *permissionState) Permission() Permission {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.perm
}

func (s *permissionState) SetPermission(p Permission) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.perm = p
}

func (s *permissionState) RequestPermission(context.Context) (Permission, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.perm == PermissionDefault && s.answer != "" {
		s.perm = s.answer
	}
	return s.perm, nil
}

// LogNotifier writes reminders to a logger. It is used by the headless
// reminder loop and the web server.
type LogNotifier struct {
	permissionState
	logger *log.Logger
}

// NewLogNotifier starts in perm. A permission request from the default state
// resolves to onRequest.
func NewLogNotifier(logger *log.Logger, perm, onRequest Permission) *LogNotifier {
	n := &LogNotifier{logger: logger}
	n.perm = perm
	n.answer = onRequest
	return n
}

func (n *LogNotifier) Notify(_ context.Context, note Notification) error {
	n.logger.Info(note.Title, "task_id", note.TaskID, "body", note.Body)
	return nil
}

// ChannelNotifier hands notifications to an in-process consumer such as the
// board TUI. The consumer answers permission prompts with SetPermission.
type ChannelNotifier struct {
	permissionState
	ch      chan Notification
	timeout time.Duration
}

func NewChannelNotifier(perm Permission, buffer int) *ChannelNotifier {
	n := &ChannelNotifier{
		ch:      make(chan Notification, buffer),
		timeout: 100 * time.Millisecond,
	}
	n.perm = perm
	return n
}

func (n *ChannelNotifier) Notifications() <-chan Notification {
	return n.ch
}

func (n *ChannelNotifier) Notify(ctx context.Context, note Notification) error {
	select {
	case n.ch <- note:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(n.timeout):
		return fmt.Errorf("notification for task %s dropped: consumer not reading", note.TaskID)
	}
}
