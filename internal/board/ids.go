package board

import (
	"strconv"
	"sync/atomic"

	"github.com/google/uuid"
)

// IDGenerator hands out process-unique identifiers. kind is a short prefix
// such as "task", "comment" or "sub".
type IDGenerator interface {
	NewID(kind string) string
}

// UUIDGenerator prefixes a random UUID with the kind.
type UUIDGenerator struct{}

func (UUIDGenerator) NewID(kind string) string {
	return kind + "-" + uuid.NewString()
}

// Sequence is a monotonic counter generator. The zero value starts at 1.
// A non-empty Prefix goes between kind and counter ("task-new-1"), which keeps
// generated ids apart from the seed data's "task-1".
type Sequence struct {
	Prefix string
	n      atomic.Uint64
}

func (s *Sequence) NewID(kind string) string {
	n := strconv.FormatUint(s.n.Add(1), 10)
	if s.Prefix != "" {
		return kind + "-" + s.Prefix + "-" + n
	}
	return kind + "-" + n
}
