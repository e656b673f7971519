package board

import "errors"

var (
	ErrTaskNotFound    = errors.New("task not found")
	ErrColumnNotFound  = errors.New("column not found")
	ErrIndexOutOfRange = errors.New("index out of range")
	ErrTaskNotAtIndex  = errors.New("task is not at the given source index")

	// ErrNoActiveStore signals a wiring defect: a board operation was attempted
	// without a store in scope, or after the store was closed.
	ErrNoActiveStore = errors.New("board: no active store in scope")
)
