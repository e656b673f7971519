package link

import (
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/aymanbagabas/go-osc52/v2"
)

// Clipboard puts text on the user's clipboard.
type Clipboard interface {
	Copy(text string) error
}

// OSC52Clipboard writes an OSC 52 escape sequence, which terminals that
// support it turn into a clipboard write. It works over SSH too.
type OSC52Clipboard struct {
	Out    io.Writer
	Screen bool
	Tmux   bool
}

func NewOSC52Clipboard() *OSC52Clipboard {
	return &OSC52Clipboard{
		Out:    os.Stderr,
		Screen: os.Getenv("STY") != "",
		Tmux:   os.Getenv("TMUX") != "",
	}
}

func (c *OSC52Clipboard) Copy(text string) error {
	if c.Out == nil {
		return errors.New("clipboard has no output")
	}
	seq := osc52.New(text)
	switch {
	case c.Tmux:
		seq = seq.Tmux()
	case c.Screen:
		seq = seq.Screen()
	}
	if _, err := seq.WriteTo(c.Out); err != nil {
		return fmt.Errorf("failed to write clipboard sequence: %w", err)
	}
	return nil
}

type ShareState int

const (
	ShareIdle ShareState = iota
	ShareCopied
	ShareFailed
)

func (s ShareState) String() string {
	switch s {
	case ShareCopied:
		return "Copied!"
	case ShareFailed:
		return "Failed to copy"
	}
	return "Share"
}

// ShareFeedbackDuration is how long a copied/failed state stays visible.
const ShareFeedbackDuration = 2 * time.Second

// ShareStatus remembers the outcome of the last share for a short time.
type ShareStatus struct {
	mu    sync.Mutex
	state ShareState
	until time.Time
	now   func() time.Time
}

func NewShareStatus(now func() time.Time) *ShareStatus {
	if now == nil {
		now = time.Now
	}
	return &ShareStatus{now: now}
}

// Share copies text and records the outcome.
func (s *ShareStatus) Share(c Clipboard, text string) ShareState {
	state := ShareCopied
	if err := c.Copy(text); err != nil {
		state = ShareFailed
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = state
	s.until = s.now().Add(ShareFeedbackDuration)
	return state
}

// State returns the current state, falling back to idle once the feedback
// window has passed.
func (s *ShareStatus) State() ShareState {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != ShareIdle && !s.now().Before(s.until) {
		s.state = ShareIdle
	}
	return s.state
}
