package components

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/nick-dorsch/projectpilot/pkg/models"
)

var (
	columnStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("240")).
			Padding(0, 1)

	focusedColumnStyle = columnStyle.
				BorderForeground(lipgloss.Color("39"))

	columnHeaderStyle = lipgloss.NewStyle().
				Bold(true).
				Foreground(lipgloss.Color("252"))

	countStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("241"))

	cardStyle = lipgloss.NewStyle().
			Border(lipgloss.NormalBorder()).
			BorderForeground(lipgloss.Color("238")).
			Padding(0, 1)

	selectedCardStyle = cardStyle.
				BorderForeground(lipgloss.Color("12"))

	grabbedCardStyle = cardStyle.
				Border(lipgloss.DoubleBorder()).
				BorderForeground(lipgloss.Color("214"))

	metaStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("245"))

	overdueStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("196")).
			Bold(true)

	placeholderStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("240")).
				Italic(true)

	priorityStyles = map[models.Priority]lipgloss.Style{
		models.PriorityHigh:   lipgloss.NewStyle().Foreground(lipgloss.Color("196")),
		models.PriorityMedium: lipgloss.NewStyle().Foreground(lipgloss.Color("214")),
		models.PriorityLow:    lipgloss.NewStyle().Foreground(lipgloss.Color("42")),
	}
)

// Card is the view data for a single task card.
type Card struct {
	Task     models.Task
	Assignee string
	Overdue  bool
}

// Column renders one board column as a box of task cards.
type Column struct {
	Title    string
	Cards    []Card
	Width    int
	Focused  bool
	Selected int
	// Grabbed marks the selected card as being carried for a move.
	Grabbed bool
}

func NewColumn(title string, width int) *Column {
	return &Column{Title: title, Width: width, Selected: -1}
}

func (c *Column) View() string {
	inner := c.Width - 4
	if inner < 10 {
		inner = 10
	}

	header := columnHeaderStyle.Render(c.Title) + " " + countStyle.Render(fmt.Sprintf("(%d)", len(c.Cards)))

	var cards []string
	for i, card := range c.Cards {
		style := cardStyle
		if c.Focused && i == c.Selected {
			style = selectedCardStyle
			if c.Grabbed {
				style = grabbedCardStyle
			}
		}
		cards = append(cards, style.Width(inner-4).Render(renderCard(card, inner-6)))
	}

	body := placeholderStyle.Render("No tasks")
	if len(cards) > 0 {
		body = strings.Join(cards, "\n")
	}

	style := columnStyle
	if c.Focused {
		style = focusedColumnStyle
	}
	return style.Width(inner).Render(header + "\n" + body)
}

func renderCard(card Card, width int) string {
	if width < 1 {
		width = 1
	}
	t := card.Task
	lines := []string{lipgloss.NewStyle().Width(width).Render(t.Title)}

	var meta []string
	if t.Priority != "" {
		meta = append(meta, priorityStyles[t.Priority].Render(string(t.Priority)))
	}
	if t.DueDate != "" {
		due := "due " + t.DueDate
		if card.Overdue {
			meta = append(meta, overdueStyle.Render(due))
		} else {
			meta = append(meta, metaStyle.Render(due))
		}
	}
	if t.ReminderAt != nil {
		meta = append(meta, metaStyle.Render("⏰"))
	}
	if len(meta) > 0 {
		lines = append(lines, strings.Join(meta, " "))
	}

	var foot []string
	if n := len(t.Subtasks); n > 0 {
		foot = append(foot, fmt.Sprintf("☑ %d/%d", t.CompletedSubtasks(), n))
	}
	if n := len(t.Comments); n > 0 {
		foot = append(foot, fmt.Sprintf("💬 %d", n))
	}
	if card.Assignee != "" {
		foot = append(foot, "@"+card.Assignee)
	}
	if len(foot) > 0 {
		lines = append(lines, metaStyle.Render(strings.Join(foot, "  ")))
	}
	return strings.Join(lines, "\n")
}
