package tui

import (
	"context"
	"errors"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/nick-dorsch/projectpilot/internal/reminder"
)

// Run shows the board until the user quits or ctx is cancelled. When a
// dispatcher is given it polls reminders for the lifetime of the program.
func Run(ctx context.Context, opts Options, dispatcher *reminder.Dispatcher) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	m := NewModel(ctx, opts)
	p := tea.NewProgram(m, tea.WithAltScreen(), tea.WithContext(ctx))

	dispatchDone := make(chan struct{})
	go func() {
		defer close(dispatchDone)
		if dispatcher == nil {
			return
		}
		if err := dispatcher.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			m.logger.Error("reminder dispatcher stopped", "err", err)
		}
	}()

	_, err := p.Run()

	cancel()
	<-dispatchDone

	if errors.Is(err, tea.ErrProgramKilled) && ctx.Err() != nil {
		return nil
	}
	if err == nil && m.err != nil {
		return m.err
	}
	return err
}
