package board

import (
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/nick-dorsch/projectpilot/pkg/models"
)

// Position addresses a slot inside a column's task list.
type Position struct {
	ColumnID string `json:"column_id"`
	Index    int    `json:"index"`
}

// TaskPatch is a partial task update. Nil fields are left untouched; an empty
// string clears an optional field.
type TaskPatch struct {
	Title         *string          `json:"title,omitempty"`
	Description   *string          `json:"description,omitempty"`
	AssignedTo    *string          `json:"assigned_to,omitempty"`
	DueDate       *string          `json:"due_date,omitempty"`
	ReminderAt    *time.Time       `json:"reminder_at,omitempty"`
	ClearReminder bool             `json:"clear_reminder,omitempty"`
	Priority      *models.Priority `json:"priority,omitempty"`
}

// Every function below is a pure transition: it never mutates p or anything
// reachable from it, and returns p itself when nothing changes.

// MoveTask removes taskID from src and inserts it at dst. For a same-column
// move the removal happens first; a destination index equal to the list
// length at call time appends.
func MoveTask(p *models.Project, taskID string, src, dst Position) (*models.Project, error) {
	from, ok := p.Columns[src.ColumnID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrColumnNotFound, src.ColumnID)
	}
	to, ok := p.Columns[dst.ColumnID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrColumnNotFound, dst.ColumnID)
	}
	if src.Index < 0 || src.Index >= len(from.TaskIDs) {
		return nil, fmt.Errorf("%w: source index %d in column %s", ErrIndexOutOfRange, src.Index, src.ColumnID)
	}
	if from.TaskIDs[src.Index] != taskID {
		return nil, fmt.Errorf("%w: %s at %s[%d]", ErrTaskNotAtIndex, taskID, src.ColumnID, src.Index)
	}
	if dst.Index < 0 || dst.Index > len(to.TaskIDs) {
		return nil, fmt.Errorf("%w: destination index %d in column %s", ErrIndexOutOfRange, dst.Index, dst.ColumnID)
	}

	next := shallowCopy(p)
	next.Columns = cloneColumns(p.Columns)

	if src.ColumnID == dst.ColumnID {
		ids := slices.Delete(slices.Clone(from.TaskIDs), src.Index, src.Index+1)
		at := min(dst.Index, len(ids))
		from.TaskIDs = slices.Insert(ids, at, taskID)
		next.Columns[from.ID] = from
		return next, nil
	}

	from.TaskIDs = slices.Delete(slices.Clone(from.TaskIDs), src.Index, src.Index+1)
	to.TaskIDs = slices.Insert(slices.Clone(to.TaskIDs), dst.Index, taskID)
	next.Columns[from.ID] = from
	next.Columns[to.ID] = to
	return next, nil
}

// AddTask appends a new task with the given id to the end of a column.
// A blank title is a no-op.
func AddTask(p *models.Project, columnID, taskID, title string) (*models.Project, error) {
	if strings.TrimSpace(title) == "" {
		return p, nil
	}
	col, ok := p.Columns[columnID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrColumnNotFound, columnID)
	}

	next := shallowCopy(p)
	next.Tasks = cloneTasks(p.Tasks)
	next.Tasks[taskID] = models.Task{
		ID:       taskID,
		Title:    title,
		Comments: []models.Comment{},
		Subtasks: []models.Subtask{},
	}

	next.Columns = cloneColumns(p.Columns)
	col.TaskIDs = append(slices.Clone(col.TaskIDs), taskID)
	next.Columns[columnID] = col
	return next, nil
}

// UpdateTask shallow-merges patch into the task.
func UpdateTask(p *models.Project, taskID string, patch TaskPatch) (*models.Project, error) {
	task, ok := p.Tasks[taskID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrTaskNotFound, taskID)
	}

	if patch.Title != nil {
		task.Title = *patch.Title
	}
	if patch.Description != nil {
		task.Description = *patch.Description
	}
	if patch.AssignedTo != nil {
		task.AssignedTo = *patch.AssignedTo
	}
	if patch.DueDate != nil {
		task.DueDate = *patch.DueDate
	}
	if patch.ClearReminder {
		task.ReminderAt = nil
	} else if patch.ReminderAt != nil {
		at := *patch.ReminderAt
		task.ReminderAt = &at
	}
	if patch.Priority != nil {
		task.Priority = *patch.Priority
	}

	return withTask(p, task), nil
}

// DeleteTask removes the task and every column reference to it. Deleting an
// unknown id is a no-op.
func DeleteTask(p *models.Project, taskID string) (*models.Project, error) {
	_, inTasks := p.Tasks[taskID]
	referenced := false
	for _, col := range p.Columns {
		if slices.Contains(col.TaskIDs, taskID) {
			referenced = true
			break
		}
	}
	if !inTasks && !referenced {
		return p, nil
	}

	next := shallowCopy(p)
	next.Tasks = cloneTasks(p.Tasks)
	delete(next.Tasks, taskID)

	next.Columns = make(map[string]models.Column, len(p.Columns))
	for id, col := range p.Columns {
		if slices.Contains(col.TaskIDs, taskID) {
			col.TaskIDs = slices.DeleteFunc(slices.Clone(col.TaskIDs), func(s string) bool { return s == taskID })
		}
		next.Columns[id] = col
	}
	return next, nil
}

// AddComment appends c to the task's comments. Empty text is accepted here.
func AddComment(p *models.Project, taskID string, c models.Comment) (*models.Project, error) {
	task, ok := p.Tasks[taskID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrTaskNotFound, taskID)
	}
	task.Comments = append(slices.Clone(task.Comments), c)
	return withTask(p, task), nil
}

// ToggleSubtask flips the completed flag of the matching subtask. An unknown
// subtask id is a no-op.
func ToggleSubtask(p *models.Project, taskID, subtaskID string) (*models.Project, error) {
	task, ok := p.Tasks[taskID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrTaskNotFound, taskID)
	}
	i := slices.IndexFunc(task.Subtasks, func(s models.Subtask) bool { return s.ID == subtaskID })
	if i < 0 {
		return p, nil
	}

	task.Subtasks = slices.Clone(task.Subtasks)
	task.Subtasks[i].Completed = !task.Subtasks[i].Completed
	return withTask(p, task), nil
}

// AddSubtask appends one trimmed subtask. Blank text is a no-op.
func AddSubtask(p *models.Project, taskID, subtaskID, text string) (*models.Project, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return p, nil
	}
	return AddSubtasks(p, taskID, []string{subtaskID}, []string{text})
}

// AddSubtasks appends one unchecked subtask per text, in order. ids must be
// parallel to texts. Texts are not filtered.
func AddSubtasks(p *models.Project, taskID string, ids, texts []string) (*models.Project, error) {
	if len(ids) != len(texts) {
		return nil, fmt.Errorf("got %d ids for %d subtasks", len(ids), len(texts))
	}
	task, ok := p.Tasks[taskID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrTaskNotFound, taskID)
	}
	if len(texts) == 0 {
		return p, nil
	}

	subtasks := make([]models.Subtask, 0, len(task.Subtasks)+len(texts))
	subtasks = append(subtasks, task.Subtasks...)
	for i, text := range texts {
		subtasks = append(subtasks, models.Subtask{ID: ids[i], Text: text})
	}
	task.Subtasks = subtasks
	return withTask(p, task), nil
}

func withTask(p *models.Project, task models.Task) *models.Project {
	next := shallowCopy(p)
	next.Tasks = cloneTasks(p.Tasks)
	next.Tasks[task.ID] = task
	return next
}

func shallowCopy(p *models.Project) *models.Project {
	next := *p
	return &next
}

func cloneTasks(m map[string]models.Task) map[string]models.Task {
	out := make(map[string]models.Task, len(m)+1)
	for k, v := range m {
		out[k] = v
	}
	return out
}

func cloneColumns(m map[string]models.Column) map[string]models.Column {
	out := make(map[string]models.Column, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
