// Package tui is the interactive board: columns of cards, a task detail
// pane, reminders and subtask suggestions.
package tui

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/log"

	"github.com/nick-dorsch/projectpilot/internal/board"
	"github.com/nick-dorsch/projectpilot/internal/link"
	"github.com/nick-dorsch/projectpilot/internal/reminder"
	"github.com/nick-dorsch/projectpilot/internal/suggest"
	"github.com/nick-dorsch/projectpilot/internal/ui/components"
	"github.com/nick-dorsch/projectpilot/pkg/models"
)

// BoardURL is the base of deep links handled by the TUI.
const BoardURL = "pilot://board"

const bannerDuration = 10 * time.Second

// Forgetter re-arms a reminder that has already fired.
type Forgetter interface {
	Forget(ctx context.Context, taskID string) error
}

type Options struct {
	Store     *board.Store
	Runner    *suggest.Runner
	Notifier  *reminder.ChannelNotifier
	Reminders Forgetter
	Clipboard link.Clipboard

	RearmOnReschedule bool
	ShareOrigin       string
	SharePath         string

	// Link is an initial deep link; an openTask parameter opens that task.
	Link   string
	Logger *log.Logger
	Now    func() time.Time
}

type mode int

const (
	modeBoard mode = iota
	modeDetail
	modeInput
	modeConfirmDelete
	modePermission
)

type prompt struct {
	label    string
	back     mode
	onSubmit func(value string) tea.Cmd
}

type Model struct {
	opts   Options
	store  *board.Store
	logger *log.Logger
	now    func() time.Time
	ctx    context.Context

	project     *models.Project
	updates     <-chan *models.Project
	unsubscribe func()

	mode        mode
	confirmBack mode
	col         int
	rows        map[string]int
	taskID      string
	sub         int

	input  textinput.Model
	prompt *prompt

	share      *link.ShareStatus
	suggesting map[string]bool
	status     string

	banner    *reminder.Notification
	bannerSeq int

	link string

	detail   *components.TaskDetail
	width    int
	height   int
	ready    bool
	quitting bool
	err      error
}

func NewModel(ctx context.Context, opts Options) *Model {
	logger := opts.Logger
	if logger == nil {
		logger = log.New(io.Discard)
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}

	ti := textinput.New()
	ti.CharLimit = 500

	m := &Model{
		opts:       opts,
		store:      opts.Store,
		logger:     logger,
		now:        now,
		ctx:        ctx,
		rows:       make(map[string]int),
		input:      ti,
		share:      link.NewShareStatus(now),
		suggesting: make(map[string]bool),
		detail:     components.NewTaskDetail(80, 20),
		link:       opts.Link,
	}
	m.project = opts.Store.Snapshot()
	m.updates, m.unsubscribe = opts.Store.Subscribe()
	m.consumeLink()
	return m
}

func (m *Model) Init() tea.Cmd {
	cmds := []tea.Cmd{m.pollSnapshots()}
	if m.opts.Notifier != nil {
		cmds = append(cmds, m.pollNotifications())
	}
	return tea.Batch(cmds...)
}

func (m *Model) pollSnapshots() tea.Cmd {
	return func() tea.Msg {
		p, ok := <-m.updates
		if !ok {
			return nil
		}
		return SnapshotMsg{Project: p}
	}
}

func (m *Model) pollNotifications() tea.Cmd {
	return func() tea.Msg {
		n, ok := <-m.opts.Notifier.Notifications()
		if !ok {
			return nil
		}
		return NotificationMsg{Notification: n}
	}
}

func waitForSuggestion(taskID string, ch <-chan suggest.Result) tea.Cmd {
	return func() tea.Msg {
		return SuggestionMsg{TaskID: taskID, Result: <-ch}
	}
}

func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.ready = true
		m.recalculateLayout()
		return m, nil

	case SnapshotMsg:
		m.project = msg.Project
		m.clampCursor()
		if m.mode == modeDetail || m.mode == modeConfirmDelete {
			if _, ok := m.project.Tasks[m.taskID]; !ok {
				m.closeDetail()
			}
		}
		m.refreshDetail()
		return m, m.pollSnapshots()

	case NotificationMsg:
		n := msg.Notification
		m.banner = &n
		m.bannerSeq++
		seq := m.bannerSeq
		return m, tea.Batch(
			m.pollNotifications(),
			tea.Tick(bannerDuration, func(time.Time) tea.Msg { return bannerExpiredMsg{seq: seq} }),
		)

	case bannerExpiredMsg:
		if msg.seq == m.bannerSeq {
			m.banner = nil
		}
		return m, nil

	case SuggestionMsg:
		m.handleSuggestion(msg)
		return m, nil

	case shareExpiredMsg:
		m.refreshDetail()
		return m, nil

	case tea.KeyMsg:
		if msg.String() == "ctrl+c" {
			return m, m.quit()
		}
		var cmd tea.Cmd
		switch m.mode {
		case modeInput:
			cmd = m.updateInput(msg)
		case modeConfirmDelete:
			cmd = m.updateConfirm(msg)
		case modePermission:
			cmd = m.updatePermission(msg)
		case modeDetail:
			cmd = m.updateDetail(msg)
		default:
			cmd = m.updateBoard(msg)
		}
		m.sync()
		return m, cmd

	case error:
		m.err = msg
		return m, tea.Quit
	}

	switch m.mode {
	case modeInput:
		var cmd tea.Cmd
		m.input, cmd = m.input.Update(msg)
		return m, cmd
	case modeDetail:
		return m, m.detail.Update(msg)
	}
	return m, nil
}

func (m *Model) quit() tea.Cmd {
	m.quitting = true
	if m.opts.Runner != nil {
		m.opts.Runner.CancelAll()
	}
	m.unsubscribe()
	return tea.Quit
}

func (m *Model) updateBoard(msg tea.KeyMsg) tea.Cmd {
	switch msg.String() {
	case "q":
		return m.quit()
	case "h", "left":
		m.moveFocus(-1)
	case "l", "right":
		m.moveFocus(1)
	case "k", "up":
		m.moveCursor(-1)
	case "j", "down":
		m.moveCursor(1)
	case "H", "shift+left":
		m.moveAcross(-1)
	case "L", "shift+right":
		m.moveAcross(1)
	case "K", "shift+up":
		m.moveWithin(-1)
	case "J", "shift+down":
		m.moveWithin(1)
	case "n", "a":
		colID := m.focusedColumn()
		if colID == "" {
			return nil
		}
		return m.ask("New task", "", modeBoard, func(v string) tea.Cmd {
			t, err := m.store.AddTask(colID, v)
			m.report(err)
			if t != nil {
				m.project = m.store.Snapshot()
				m.rows[colID] = len(m.project.Columns[colID].TaskIDs) - 1
			}
			return nil
		})
	case "enter", "e":
		if id := m.selectedTaskID(); id != "" {
			m.openDetail(id)
		}
	case "x", "delete":
		if id := m.selectedTaskID(); id != "" {
			m.taskID = id
			m.confirmBack = modeBoard
			m.mode = modeConfirmDelete
		}
	case "o":
		if m.banner != nil {
			m.activateBanner()
		}
	}
	return nil
}

func (m *Model) updateDetail(msg tea.KeyMsg) tea.Cmd {
	task, ok := m.project.Tasks[m.taskID]
	if !ok {
		m.closeDetail()
		return nil
	}

	switch msg.String() {
	case "esc", "q":
		m.closeDetail()
	case "j", "down":
		if m.sub < len(task.Subtasks)-1 {
			m.sub++
		}
	case "k", "up":
		if m.sub > 0 {
			m.sub--
		}
	case " ", "x":
		if m.sub >= 0 && m.sub < len(task.Subtasks) {
			m.report(m.store.ToggleSubtask(task.ID, task.Subtasks[m.sub].ID))
		}
	case "pgdown", "pgup", "ctrl+d", "ctrl+u":
		return m.detail.Update(msg)
	case "t":
		return m.ask("Title", task.Title, modeDetail, func(v string) tea.Cmd {
			if strings.TrimSpace(v) == "" {
				return nil
			}
			return m.patch(board.TaskPatch{Title: &v})
		})
	case "d":
		return m.ask("Description", task.Description, modeDetail, func(v string) tea.Cmd {
			return m.patch(board.TaskPatch{Description: &v})
		})
	case "D":
		return m.ask("Due date (YYYY-MM-DD, blank clears)", task.DueDate, modeDetail, func(v string) tea.Cmd {
			v = strings.TrimSpace(v)
			if v != "" {
				if _, err := time.Parse(models.DueDateLayout, v); err != nil {
					m.status = fmt.Sprintf("Invalid due date %q", v)
					return nil
				}
			}
			return m.patch(board.TaskPatch{DueDate: &v})
		})
	case "r":
		label := "Reminder (YYYY-MM-DD HH:MM or +30m, blank clears)"
		if task.ReminderAt != nil {
			label = fmt.Sprintf("Reminder, now %s (YYYY-MM-DD HH:MM or +30m, blank clears)", task.ReminderAt.Local().Format(reminderLayout))
		}
		return m.ask(label, "", modeDetail, func(v string) tea.Cmd {
			return m.setReminder(task, v)
		})
	case "p":
		next := nextPriority(task.Priority)
		return m.patch(board.TaskPatch{Priority: &next})
	case "u":
		next := m.nextAssignee(task.AssignedTo)
		return m.patch(board.TaskPatch{AssignedTo: &next})
	case "c":
		return m.ask("Comment", "", modeDetail, func(v string) tea.Cmd {
			_, err := m.store.AddComment(task.ID, v)
			m.report(err)
			return nil
		})
	case "a":
		return m.ask("Subtask", "", modeDetail, func(v string) tea.Cmd {
			_, err := m.store.AddSubtask(task.ID, v)
			m.report(err)
			return nil
		})
	case "g":
		return m.suggest(task)
	case "s":
		return m.shareTask(task)
	case "X":
		m.confirmBack = modeDetail
		m.mode = modeConfirmDelete
	}
	m.refreshDetail()
	return nil
}

func (m *Model) updateInput(msg tea.KeyMsg) tea.Cmd {
	switch msg.Type {
	case tea.KeyEsc:
		m.mode = m.prompt.back
		m.prompt = nil
		m.input.Blur()
		m.refreshDetail()
		return nil
	case tea.KeyEnter:
		p := m.prompt
		value := m.input.Value()
		m.mode = p.back
		m.prompt = nil
		m.input.Blur()
		cmd := p.onSubmit(value)
		m.refreshDetail()
		return cmd
	}
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return cmd
}

func (m *Model) updateConfirm(msg tea.KeyMsg) tea.Cmd {
	switch msg.String() {
	case "y", "Y":
		id := m.taskID
		m.closeDetail()
		m.report(m.store.DeleteTask(id))
		m.project = m.store.Snapshot()
		m.clampCursor()
	case "n", "N", "esc":
		m.mode = m.confirmBack
		if m.mode == modeBoard {
			m.taskID = ""
		}
	}
	return nil
}

func (m *Model) updatePermission(msg tea.KeyMsg) tea.Cmd {
	switch msg.String() {
	case "y", "Y":
		m.opts.Notifier.SetPermission(reminder.PermissionGranted)
		m.logger.Info("notification permission granted")
	case "n", "N", "esc":
		m.opts.Notifier.SetPermission(reminder.PermissionDenied)
		m.logger.Info("notification permission denied")
	default:
		return nil
	}
	m.mode = modeDetail
	m.refreshDetail()
	return nil
}

func (m *Model) ask(label, value string, back mode, onSubmit func(string) tea.Cmd) tea.Cmd {
	m.prompt = &prompt{label: label, back: back, onSubmit: onSubmit}
	m.input.SetValue(value)
	m.input.CursorEnd()
	m.mode = modeInput
	return m.input.Focus()
}

func (m *Model) patch(p board.TaskPatch) tea.Cmd {
	_, err := m.store.UpdateTask(m.taskID, p)
	m.report(err)
	m.refreshDetail()
	return nil
}

// sync picks up the store's latest snapshot after a local edit so the next
// render does not wait for the subscription.
func (m *Model) sync() {
	if !m.store.Active() {
		return
	}
	m.project = m.store.Snapshot()
	m.clampCursor()
	if m.mode == modeDetail {
		if _, ok := m.project.Tasks[m.taskID]; !ok {
			m.closeDetail()
		}
	}
	m.refreshDetail()
}

func (m *Model) report(err error) {
	if err == nil {
		return
	}
	m.logger.Error("board operation failed", "task_id", m.taskID, "err", err)
	switch {
	case errors.Is(err, board.ErrNoActiveStore):
		m.err = err
	default:
		m.status = err.Error()
	}
}

// Navigation

func (m *Model) focusedColumn() string {
	if m.col < 0 || m.col >= len(m.project.ColumnOrder) {
		return ""
	}
	return m.project.ColumnOrder[m.col]
}

func (m *Model) selectedTaskID() string {
	colID := m.focusedColumn()
	ids := m.project.Columns[colID].TaskIDs
	row := m.rows[colID]
	if row < 0 || row >= len(ids) {
		return ""
	}
	return ids[row]
}

func (m *Model) moveFocus(dir int) {
	n := len(m.project.ColumnOrder)
	if n == 0 {
		return
	}
	m.col += dir
	if m.col < 0 {
		m.col = 0
	} else if m.col >= n {
		m.col = n - 1
	}
}

func (m *Model) moveCursor(dir int) {
	colID := m.focusedColumn()
	n := len(m.project.Columns[colID].TaskIDs)
	row := m.rows[colID] + dir
	if row < 0 {
		row = 0
	}
	if row >= n {
		row = n - 1
	}
	if row < 0 {
		row = 0
	}
	m.rows[colID] = row
}

func (m *Model) clampCursor() {
	if n := len(m.project.ColumnOrder); m.col >= n {
		m.col = n - 1
	}
	if m.col < 0 {
		m.col = 0
	}
	for id, col := range m.project.Columns {
		if m.rows[id] >= len(col.TaskIDs) {
			m.rows[id] = len(col.TaskIDs) - 1
		}
		if m.rows[id] < 0 {
			m.rows[id] = 0
		}
	}
}

// moveAcross carries the selected card into the neighbouring column, landing
// at that column's cursor.
func (m *Model) moveAcross(dir int) {
	id := m.selectedTaskID()
	if id == "" {
		return
	}
	target := m.col + dir
	if target < 0 || target >= len(m.project.ColumnOrder) {
		return
	}
	src, ok := board.LocateTask(m.project, id)
	if !ok {
		return
	}
	dstID := m.project.ColumnOrder[target]
	dstLen := len(m.project.Columns[dstID].TaskIDs)
	idx := m.rows[dstID]
	if idx > dstLen {
		idx = dstLen
	}
	if err := m.store.MoveTask(id, src, board.Position{ColumnID: dstID, Index: idx}); err != nil {
		m.report(err)
		return
	}
	m.project = m.store.Snapshot()
	m.col = target
	m.rows[dstID] = idx
	m.logger.Debug("task moved", "task_id", id, "from", src.ColumnID, "to", dstID, "index", idx)
}

// moveWithin swaps the selected card with its neighbour in the same column.
func (m *Model) moveWithin(dir int) {
	id := m.selectedTaskID()
	if id == "" {
		return
	}
	src, ok := board.LocateTask(m.project, id)
	if !ok {
		return
	}
	idx := src.Index + dir
	if idx < 0 || idx >= len(m.project.Columns[src.ColumnID].TaskIDs) {
		return
	}
	if err := m.store.MoveTask(id, src, board.Position{ColumnID: src.ColumnID, Index: idx}); err != nil {
		m.report(err)
		return
	}
	m.project = m.store.Snapshot()
	m.rows[src.ColumnID] = idx
}

// Detail

func (m *Model) openDetail(taskID string) {
	if _, ok := m.project.Tasks[taskID]; !ok {
		m.logger.Warn("cannot open unknown task", "task_id", taskID)
		return
	}
	if pos, ok := board.LocateTask(m.project, taskID); ok {
		for i, id := range m.project.ColumnOrder {
			if id == pos.ColumnID {
				m.col = i
			}
		}
		m.rows[pos.ColumnID] = pos.Index
	}
	m.taskID = taskID
	m.sub = 0
	m.status = ""
	m.mode = modeDetail
	m.refreshDetail()
}

func (m *Model) closeDetail() {
	if m.taskID != "" && m.opts.Runner != nil && m.suggesting[m.taskID] {
		m.opts.Runner.Cancel(m.taskID)
		delete(m.suggesting, m.taskID)
	}
	m.taskID = ""
	m.status = ""
	m.mode = modeBoard
}

func (m *Model) refreshDetail() {
	task, ok := m.project.Tasks[m.taskID]
	if !ok {
		return
	}
	if m.sub >= len(task.Subtasks) {
		m.sub = len(task.Subtasks) - 1
	}
	if m.sub < 0 && len(task.Subtasks) > 0 {
		m.sub = 0
	}

	column := ""
	if pos, ok := board.LocateTask(m.project, task.ID); ok {
		column = m.project.Columns[pos.ColumnID].Title
	}
	authors := make(map[string]string)
	for _, u := range m.store.Users() {
		authors[u.ID] = u.Name
	}

	m.detail.SetData(components.DetailData{
		Task:     task,
		Assignee: authors[task.AssignedTo],
		Column:   column,
		Overdue:  board.IsOverdue(m.project, task, m.now()),
		Authors:  authors,
		Subtask:  m.sub,
		Status:   m.detailStatus(task.ID),
	})
}

func (m *Model) detailStatus(taskID string) string {
	if m.suggesting[taskID] {
		return "Generating subtask suggestions..."
	}
	if st := m.share.State(); st != link.ShareIdle {
		return st.String()
	}
	return m.status
}

const reminderLayout = "2006-01-02 15:04"

func (m *Model) setReminder(task models.Task, value string) tea.Cmd {
	value = strings.TrimSpace(value)
	if value == "" {
		return m.patch(board.TaskPatch{ClearReminder: true})
	}
	at, err := parseReminder(value, m.now())
	if err != nil {
		m.status = err.Error()
		return nil
	}
	rescheduled := task.ReminderAt != nil && !task.ReminderAt.Equal(at)
	if _, err := m.store.UpdateTask(task.ID, board.TaskPatch{ReminderAt: &at}); err != nil {
		m.report(err)
		return nil
	}

	if rescheduled && m.opts.RearmOnReschedule && m.opts.Reminders != nil {
		if err := m.opts.Reminders.Forget(m.ctx, task.ID); err != nil {
			m.logger.Warn("failed to re-arm reminder", "task_id", task.ID, "err", err)
		}
	}
	if m.opts.Notifier != nil && m.opts.Notifier.Permission() == reminder.PermissionDefault {
		m.mode = modePermission
	}
	m.refreshDetail()
	return nil
}

// parseReminder accepts a local "YYYY-MM-DD HH:MM" or a duration such as
// "+30m" relative to now.
func parseReminder(value string, now time.Time) (time.Time, error) {
	if d, err := time.ParseDuration(strings.TrimPrefix(value, "+")); err == nil {
		return now.Add(d).UTC(), nil
	}
	at, err := time.ParseInLocation(reminderLayout, value, time.Local)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid reminder %q", value)
	}
	return at.UTC(), nil
}

func nextPriority(p models.Priority) models.Priority {
	switch p {
	case "":
		return models.PriorityLow
	case models.PriorityLow:
		return models.PriorityMedium
	case models.PriorityMedium:
		return models.PriorityHigh
	default:
		return ""
	}
}

func (m *Model) nextAssignee(current string) string {
	users := m.store.Users()
	if current == "" {
		if len(users) == 0 {
			return ""
		}
		return users[0].ID
	}
	for i, u := range users {
		if u.ID == current && i+1 < len(users) {
			return users[i+1].ID
		}
	}
	return ""
}

func (m *Model) suggest(task models.Task) tea.Cmd {
	if m.opts.Runner == nil {
		m.status = "Suggestions are not configured"
		m.refreshDetail()
		return nil
	}
	if m.suggesting[task.ID] {
		return nil
	}
	ch, ok := m.opts.Runner.Start(m.ctx, task.ID, task.Title, task.Description)
	if !ok {
		return nil
	}
	m.suggesting[task.ID] = true
	m.refreshDetail()
	return waitForSuggestion(task.ID, ch)
}

func (m *Model) handleSuggestion(msg SuggestionMsg) {
	delete(m.suggesting, msg.TaskID)
	res := msg.Result
	if res.Canceled() {
		return
	}
	if res.Failed() {
		if msg.TaskID == m.taskID {
			m.status = suggest.ErrorText
		}
		m.refreshDetail()
		return
	}
	added, err := m.store.AddSubtasks(msg.TaskID, res.Subtasks)
	if err != nil {
		m.report(err)
		return
	}
	if msg.TaskID == m.taskID {
		m.status = fmt.Sprintf("Added %d suggested subtasks", len(added))
	}
	m.project = m.store.Snapshot()
	m.refreshDetail()
}

func (m *Model) shareTask(task models.Task) tea.Cmd {
	if m.opts.Clipboard == nil {
		return nil
	}
	text := link.ShareText(task.Title, m.opts.ShareOrigin, m.opts.SharePath, task.ID)
	state := m.share.Share(m.opts.Clipboard, text)
	m.logger.Debug("task shared", "task_id", task.ID, "state", state)
	m.refreshDetail()
	return tea.Tick(link.ShareFeedbackDuration, func(time.Time) tea.Msg { return shareExpiredMsg{} })
}

// Deep links

// activateBanner opens the task named by the current reminder banner through
// the same openTask link a notification click would carry.
func (m *Model) activateBanner() {
	u, err := link.OpenTaskURL(BoardURL, m.banner.TaskID)
	if err != nil {
		m.logger.Warn("failed to build task link", "task_id", m.banner.TaskID, "err", err)
		return
	}
	m.banner = nil
	m.link = u
	m.consumeLink()
}

// consumeLink opens the task named in the pending link once and strips the
// parameter so it is not acted on again.
func (m *Model) consumeLink() {
	if m.link == "" {
		return
	}
	taskID, stripped, err := link.ConsumeOpenTask(m.link)
	if err != nil {
		m.logger.Warn("ignoring malformed link", "link", m.link, "err", err)
		m.link = ""
		return
	}
	m.link = stripped
	if taskID != "" {
		m.openDetail(taskID)
	}
}

func (m *Model) Link() string {
	return m.link
}
