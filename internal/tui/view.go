package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/nick-dorsch/projectpilot/internal/board"
	"github.com/nick-dorsch/projectpilot/internal/reminder"
	"github.com/nick-dorsch/projectpilot/internal/ui/components"
)

var (
	orbStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("86")).
			Bold(true)

	headerTextStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("39")).
			Padding(0, 1)

	headerStyle = lipgloss.NewStyle().
			Padding(1, 2)

	bannerStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("0")).
			Background(lipgloss.Color("214")).
			Bold(true).
			Padding(0, 1)

	promptStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("12")).
			Bold(true)

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("196"))

	helpStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("241"))
)

const (
	boardHelp  = "h/l column • j/k card • H/L/J/K move • n new • enter open • x delete • q quit"
	detailHelp = "t title • d description • D due • r reminder • p priority • u assignee • c comment • a subtask • space toggle • g suggest • s share • X delete • esc back"
)

func (m *Model) recalculateLayout() {
	if !m.ready {
		return
	}
	m.detail.SetSize(m.width-4, m.availableHeight())
}

func (m *Model) availableHeight() int {
	h := m.height - m.getHeaderHeight() - lipgloss.Height(m.renderFooter())
	if h < 5 {
		h = 5
	}
	return h
}

func (m *Model) getHeaderHeight() int {
	return lipgloss.Height(m.renderHeader())
}

func (m *Model) View() string {
	if m.quitting {
		return ""
	}
	if !m.ready {
		return "Loading board..."
	}
	if m.err != nil {
		return errorStyle.Render(fmt.Sprintf("Error: %v", m.err)) + "\n"
	}

	var body string
	if m.showingDetail() {
		body = lipgloss.NewStyle().Padding(0, 2).Render(m.detail.View())
	} else {
		body = m.renderBoard()
	}

	return m.renderHeader() + "\n" + body + "\n" + m.renderFooter()
}

func (m *Model) showingDetail() bool {
	switch m.mode {
	case modeDetail, modePermission:
		return true
	case modeInput:
		return m.prompt != nil && m.prompt.back == modeDetail
	case modeConfirmDelete:
		return m.confirmBack == modeDetail
	}
	return false
}

func (m *Model) renderBoard() string {
	order := m.project.ColumnOrder
	if len(order) == 0 {
		return helpStyle.Render("No columns")
	}
	width := m.width / len(order)
	if width < 20 {
		width = 20
	}

	today := m.now()
	views := make([]string, 0, len(order))
	for i, colID := range order {
		col := m.project.Columns[colID]
		c := components.NewColumn(col.Title, width)
		c.Focused = i == m.col
		c.Selected = m.rows[colID]
		for _, t := range m.project.ColumnTasks(colID) {
			card := components.Card{Task: t, Overdue: board.IsOverdue(m.project, t, today)}
			if u, ok := m.store.FindUser(t.AssignedTo); ok {
				card.Assignee = u.Name
			}
			c.Cards = append(c.Cards, card)
		}
		views = append(views, c.View())
	}
	return lipgloss.JoinHorizontal(lipgloss.Top, views...)
}

func (m *Model) renderHeader() string {
	total := len(m.project.Tasks)
	overdue := 0
	today := m.now()
	for _, t := range m.project.Tasks {
		if board.IsOverdue(m.project, t, today) {
			overdue++
		}
	}

	text := fmt.Sprintf("Project Pilot | Tasks: %d | Overdue: %d", total, overdue)
	if m.opts.Notifier != nil {
		text += fmt.Sprintf(" | Reminders: %s", permissionLabel(m.opts.Notifier.Permission()))
	}
	if n := len(m.suggesting); n > 0 {
		text += fmt.Sprintf(" | Suggesting: %d", n)
	}

	header := lipgloss.JoinHorizontal(lipgloss.Center, orbStyle.Render("⬤"), "  ", headerTextStyle.Render(text))
	width := m.width - 4
	if width < 0 {
		width = 0
	}
	return headerStyle.Width(width).Render(header)
}

func permissionLabel(p reminder.Permission) string {
	switch p {
	case reminder.PermissionGranted:
		return "on"
	case reminder.PermissionDenied:
		return "blocked"
	default:
		return "not asked"
	}
}

func (m *Model) renderFooter() string {
	var lines []string
	if m.banner != nil {
		lines = append(lines, bannerStyle.Render(fmt.Sprintf("⏰ %s: %s (o to open)", m.banner.Title, m.bannerTaskTitle())))
	}

	switch m.mode {
	case modeInput:
		lines = append(lines, promptStyle.Render(m.prompt.label+": ")+m.input.View())
		lines = append(lines, helpStyle.Render("enter save • esc cancel"))
	case modeConfirmDelete:
		title := m.project.Tasks[m.taskID].Title
		lines = append(lines, promptStyle.Render(fmt.Sprintf("Delete %q? (y/n)", title)))
	case modePermission:
		lines = append(lines, promptStyle.Render("Allow Project Pilot to show reminder notifications? (y/n)"))
	case modeDetail:
		lines = append(lines, helpStyle.Render(detailHelp))
	default:
		if m.status != "" {
			lines = append(lines, errorStyle.Render(m.status))
		}
		lines = append(lines, helpStyle.Render(boardHelp))
	}
	return strings.Join(lines, "\n")
}

func (m *Model) bannerTaskTitle() string {
	if t, ok := m.project.Tasks[m.banner.TaskID]; ok {
		return t.Title
	}
	return m.banner.TaskID
}
