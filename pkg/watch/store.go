package watch

import (
	"context"
	"errors"
	"sync"

	"github.com/mamaar/goextract/pkg/types"
)

// ErrStale is returned by Swap when the snapshot a change was computed from
// is no longer current.
var ErrStale = errors.New("snapshot is no longer current")

// Store holds the current program snapshot of a host. Reads are concurrent;
// writes are serialized and only succeed against the snapshot they were
// derived from.
type Store struct {
	mu      sync.RWMutex
	cur     *types.Program
	version uint64
}

func NewStore(prog *types.Program) *Store {
	return &Store{cur: prog}
}

// Current returns the current snapshot, or nil when nothing is loaded.
func (s *Store) Current() *types.Program {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cur
}

// Version counts the snapshots installed since the store was created.
func (s *Store) Version() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.version
}

// Set installs prog unconditionally.
func (s *Store) Set(prog *types.Program) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cur = prog
	s.version++
}

// Swap installs next if old is still current.
func (s *Store) Swap(old, next *types.Program) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cur != old {
		return ErrStale
	}
	if next != old {
		s.cur = next
		s.version++
	}
	return nil
}

// Update derives a new snapshot from the current one with fn and installs
// it. fn runs without the lock held and is retried when another writer
// got in first.
func (s *Store) Update(ctx context.Context, fn func(*types.Program) (*types.Program, error)) (*types.Program, error) {
	for {
		if err := ctx.Err(); err != nil {
			return nil, types.ContextError(err)
		}
		cur := s.Current()
		next, err := fn(cur)
		if err != nil {
			return nil, err
		}
		err = s.Swap(cur, next)
		if errors.Is(err, ErrStale) {
			continue
		}
		return next, err
	}
}
