package components

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/nick-dorsch/projectpilot/pkg/models"
)

var (
	detailTitleStyle = lipgloss.NewStyle().
				Bold(true).
				Foreground(lipgloss.Color("39"))

	sectionStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("252")).
			MarginTop(1)

	labelStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("241")).
			Width(10)

	statusStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("241")).
			Italic(true)

	doneStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("241")).
			Strikethrough(true)

	cursorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("12")).
			Bold(true)

	scrollbarTrackStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("236"))

	scrollbarHandleStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("241"))
)

// DetailData is everything the detail pane shows for one task.
type DetailData struct {
	Task     models.Task
	Assignee string
	Column   string
	Overdue  bool
	// Authors maps user ids to display names for comments.
	Authors map[string]string
	// Subtask is the highlighted subtask index, -1 for none.
	Subtask int
	// Status is a one-line transient message (share state, suggestion progress).
	Status string
}

// TaskDetail renders a task in a scrollable viewport.
type TaskDetail struct {
	viewport viewport.Model
	data     DetailData
	ready    bool
	width    int
	height   int
}

func NewTaskDetail(width, height int) *TaskDetail {
	return &TaskDetail{
		viewport: viewport.New(width, height),
		width:    width,
		height:   height,
	}
}

func (d *TaskDetail) SetSize(width, height int) {
	d.width = width
	d.height = height
	vpWidth := width
	if width > 0 {
		vpWidth = width - 1
	}
	if !d.ready {
		d.viewport = viewport.New(vpWidth, height)
		d.ready = true
	} else {
		d.viewport.Width = vpWidth
		d.viewport.Height = height
	}
	d.updateContent()
}

func (d *TaskDetail) SetData(data DetailData) {
	d.data = data
	d.updateContent()
}

func (d *TaskDetail) Data() DetailData {
	return d.data
}

func (d *TaskDetail) updateContent() {
	content := RenderDetail(d.data)
	if w := d.viewport.Width; w > 0 {
		content = lipgloss.NewStyle().Width(w).Render(content)
	}
	d.viewport.SetContent(content)
}

func (d *TaskDetail) Update(msg tea.Msg) tea.Cmd {
	var cmd tea.Cmd
	d.viewport, cmd = d.viewport.Update(msg)
	return cmd
}

func (d *TaskDetail) View() string {
	if !d.ready {
		return ""
	}

	if d.viewport.TotalLineCount() <= d.viewport.Height {
		return d.viewport.View()
	}

	h := d.viewport.Height
	handlePos := int(float64(h-1) * d.viewport.ScrollPercent())

	var sb strings.Builder
	for i := 0; i < h; i++ {
		if i == handlePos {
			sb.WriteString(scrollbarHandleStyle.Render("┃"))
		} else {
			sb.WriteString(scrollbarTrackStyle.Render("│"))
		}
		if i < h-1 {
			sb.WriteString("\n")
		}
	}

	return lipgloss.JoinHorizontal(lipgloss.Top, d.viewport.View(), sb.String())
}

// RenderDetail lays out a task's fields, subtasks and comments (newest first).
func RenderDetail(data DetailData) string {
	t := data.Task
	var sb strings.Builder

	sb.WriteString(detailTitleStyle.Render(t.Title))
	sb.WriteString("\n")

	field := func(label, value string) {
		if value == "" {
			value = "-"
		}
		sb.WriteString(labelStyle.Render(label) + value + "\n")
	}

	field("Column", data.Column)
	assignee := data.Assignee
	if assignee == "" {
		assignee = "Unassigned"
	}
	field("Assignee", assignee)
	field("Priority", string(t.Priority))
	due := t.DueDate
	if due != "" && data.Overdue {
		due = overdueStyle.Render(due + " (overdue)")
	}
	field("Due", due)
	reminder := ""
	if t.ReminderAt != nil {
		reminder = t.ReminderAt.Local().Format("2006-01-02 15:04")
	}
	field("Reminder", reminder)

	sb.WriteString(sectionStyle.Render("Description"))
	sb.WriteString("\n")
	if strings.TrimSpace(t.Description) == "" {
		sb.WriteString(placeholderStyle.Render("No description"))
	} else {
		sb.WriteString(t.Description)
	}
	sb.WriteString("\n")

	header := "Subtasks"
	if n := len(t.Subtasks); n > 0 {
		header = fmt.Sprintf("Subtasks %d/%d (%.0f%%)", t.CompletedSubtasks(), n, t.Progress())
	}
	sb.WriteString(sectionStyle.Render(header))
	sb.WriteString("\n")
	if len(t.Subtasks) == 0 {
		sb.WriteString(placeholderStyle.Render("No subtasks"))
		sb.WriteString("\n")
	}
	for i, s := range t.Subtasks {
		prefix := "  "
		if i == data.Subtask {
			prefix = cursorStyle.Render("> ")
		}
		box := "[ ] "
		text := s.Text
		if s.Completed {
			box = "[x] "
			text = doneStyle.Render(text)
		}
		sb.WriteString(prefix + box + text + "\n")
	}

	sb.WriteString(sectionStyle.Render(fmt.Sprintf("Comments (%d)", len(t.Comments))))
	sb.WriteString("\n")
	for _, c := range t.CommentsNewestFirst() {
		author := data.Authors[c.UserID]
		if author == "" {
			author = "Unknown"
		}
		sb.WriteString(statusStyle.Render(fmt.Sprintf("%s · %s", author, c.Timestamp.Local().Format(time.DateTime))))
		sb.WriteString("\n")
		sb.WriteString(c.Text)
		sb.WriteString("\n")
	}

	if data.Status != "" {
		sb.WriteString("\n")
		sb.WriteString(statusStyle.Render(data.Status))
	}

	return sb.String()
}
