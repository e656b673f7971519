package tui

import (
	"github.com/nick-dorsch/projectpilot/internal/reminder"
	"github.com/nick-dorsch/projectpilot/internal/suggest"
	"github.com/nick-dorsch/projectpilot/pkg/models"
)

// SnapshotMsg carries a newly published board snapshot.
type SnapshotMsg struct {
	Project *models.Project
}

// NotificationMsg is a reminder delivered by the dispatcher.
type NotificationMsg struct {
	Notification reminder.Notification
}

// SuggestionMsg is the outcome of a subtask suggestion request.
type SuggestionMsg struct {
	TaskID string
	Result suggest.Result
}

type shareExpiredMsg struct{}

type bannerExpiredMsg struct {
	seq int
}
