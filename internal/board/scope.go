package board

import "context"

type storeKey struct{}

// WithStore returns a context carrying s as the active store.
func WithStore(ctx context.Context, s *Store) context.Context {
	return context.WithValue(ctx, storeKey{}, s)
}

// FromContext returns the active store, or ErrNoActiveStore when none is in
// scope or the store has been closed.
func FromContext(ctx context.Context) (*Store, error) {
	s, ok := ctx.Value(storeKey{}).(*Store)
	if !ok || s == nil || !s.Active() {
		return nil, ErrNoActiveStore
	}
	return s, nil
}

// MustFromContext is FromContext for code paths where a missing store can only
// mean broken wiring. It panics with ErrNoActiveStore.
func MustFromContext(ctx context.Context) *Store {
	s, err := FromContext(ctx)
	if err != nil {
		panic(err)
	}
	return s
}
