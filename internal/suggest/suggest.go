// Package suggest asks a text-generation service for subtask checklists.
package suggest

import (
	"context"
	"errors"
	"strings"
	"time"
)

// ErrorText is the single entry of a failed result. Callers detect failure
// through Result.Err, never by matching entry text.
const ErrorText = "Error generating suggestions. Please try again."

const (
	MinSubtasks = 3
	MaxSubtasks = 5
)

var (
	ErrNoSuggestions = errors.New("model returned no usable subtasks")
	ErrInFlight      = errors.New("a suggestion request is already running for this task")
)

// MockSubtasks is returned when no API key is configured.
var MockSubtasks = []string{
	"Mock Subtask 1: Analyze requirements",
	"Mock Subtask 2: Create action plan",
	"Mock Subtask 3: Review and finalize",
}

// Result is either a list of suggested subtasks or a failure. A failure
// carries Err and a Subtasks list holding only ErrorText.
type Result struct {
	Subtasks []string
	Err      error
}

func (r Result) Failed() bool {
	return r.Err != nil
}

// Canceled reports whether the request was abandoned rather than failed.
func (r Result) Canceled() bool {
	return errors.Is(r.Err, context.Canceled)
}

func failure(err error) Result {
	return Result{Subtasks: []string{ErrorText}, Err: err}
}

type Suggester interface {
	Suggest(ctx context.Context, title, description string) Result
}

// Mock returns MockSubtasks after Delay.
type Mock struct {
	Delay time.Duration
}

func (m Mock) Suggest(ctx context.Context, _, _ string) Result {
	select {
	case <-time.After(m.Delay):
	case <-ctx.Done():
		return failure(ctx.Err())
	}
	out := make([]string, len(MockSubtasks))
	copy(out, MockSubtasks)
	return Result{Subtasks: out}
}

// normalize trims entries, drops blanks and caps the list at MaxSubtasks.
func normalize(items []string) []string {
	out := make([]string, 0, len(items))
	for _, s := range items {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		out = append(out, s)
		if len(out) == MaxSubtasks {
			break
		}
	}
	return out
}
