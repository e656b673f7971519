package models

type Column struct {
	ID      string   `json:"id"`
	Title   string   `json:"title"`
	TaskIDs []string `json:"task_ids"`
}

// Project is the aggregate root of a board. Values handed out by the board store
// are shared between readers and must be treated as read-only.
type Project struct {
	Tasks       map[string]Task   `json:"tasks"`
	Columns     map[string]Column `json:"columns"`
	ColumnOrder []string          `json:"column_order"`
}

// OrderedColumns returns the columns in display order, skipping ids with no column.
func (p *Project) OrderedColumns() []Column {
	cols := make([]Column, 0, len(p.ColumnOrder))
	for _, id := range p.ColumnOrder {
		if c, ok := p.Columns[id]; ok {
			cols = append(cols, c)
		}
	}
	return cols
}

// ColumnTasks resolves a column's task ids in order. Dangling ids are skipped.
func (p *Project) ColumnTasks(columnID string) []Task {
	col, ok := p.Columns[columnID]
	if !ok {
		return nil
	}
	tasks := make([]Task, 0, len(col.TaskIDs))
	for _, id := range col.TaskIDs {
		if t, ok := p.Tasks[id]; ok {
			tasks = append(tasks, t)
		}
	}
	return tasks
}
