package board

import (
	"slices"
	"time"

	"github.com/nick-dorsch/projectpilot/pkg/models"
)

// LocateTask finds the column and index currently holding taskID.
func LocateTask(p *models.Project, taskID string) (Position, bool) {
	for _, colID := range p.ColumnOrder {
		col, ok := p.Columns[colID]
		if !ok {
			continue
		}
		if i := slices.Index(col.TaskIDs, taskID); i >= 0 {
			return Position{ColumnID: colID, Index: i}, true
		}
	}
	return Position{}, false
}

// DoneColumnID returns the last column in display order, which is treated as
// the finished stage.
func DoneColumnID(p *models.Project) string {
	if len(p.ColumnOrder) == 0 {
		return ""
	}
	return p.ColumnOrder[len(p.ColumnOrder)-1]
}

// IsOverdue reports whether the task's due day lies before today and the task
// is not sitting in the done column.
func IsOverdue(p *models.Project, t models.Task, today time.Time) bool {
	if t.DueDate == "" {
		return false
	}
	due, err := time.ParseInLocation(models.DueDateLayout, t.DueDate, today.Location())
	if err != nil {
		return false
	}
	if pos, ok := LocateTask(p, t.ID); ok && pos.ColumnID == DoneColumnID(p) {
		return false
	}
	y, m, d := today.Date()
	return due.Before(time.Date(y, m, d, 0, 0, 0, 0, today.Location()))
}

// TasksWithReminders returns every task that has a reminder set.
func TasksWithReminders(p *models.Project) []models.Task {
	var out []models.Task
	for _, t := range p.Tasks {
		if t.ReminderAt != nil {
			out = append(out, t)
		}
	}
	return out
}
