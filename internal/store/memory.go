package store

import (
	"context"
	"sync"
)

// MemoryStore keeps the tree in process memory as a flat map of leaves.
type MemoryStore struct {
	mu     sync.RWMutex
	leaves map[string][]byte
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{leaves: make(map[string][]byte)}
}

// Get returns the subtree at path.
func (s *MemoryStore) Get(ctx context.Context, path string) (any, error) {
	path, err := CleanPath(path)
	if err != nil {
		return nil, err
	}

	s.mu.RLock()
	found := make(map[string][]byte)
	for leaf, data := range s.leaves {
		if inSubtree(leaf, path) {
			found[leaf] = data
		}
	}
	s.mu.RUnlock()

	return assemble(path, found)
}

// Set replaces the subtree at path.
func (s *MemoryStore) Set(ctx context.Context, path string, value any) error {
	path, err := CleanPath(path)
	if err != nil {
		return err
	}
	leaves, err := flatten(path, value)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.removeLocked(path)
	for _, a := range ancestors(path) {
		delete(s.leaves, a)
	}
	for leaf, data := range leaves {
		s.leaves[leaf] = data
	}
	return nil
}

// Push stores value under a new child key of path.
func (s *MemoryStore) Push(ctx context.Context, path string, value any) (string, error) {
	key := NewPushKey()
	if err := s.Set(ctx, Join(path, key), value); err != nil {
		return "", err
	}
	return key, nil
}

// Remove deletes the subtree at path.
func (s *MemoryStore) Remove(ctx context.Context, path string) error {
	path, err := CleanPath(path)
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.removeLocked(path)
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) removeLocked(path string) {
	for leaf := range s.leaves {
		if inSubtree(leaf, path) {
			delete(s.leaves, leaf)
		}
	}
}

// Exists reports whether anything is stored at or below path.
func (s *MemoryStore) Exists(ctx context.Context, path string) (bool, error) {
	path, err := CleanPath(path)
	if err != nil {
		return false, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	for leaf := range s.leaves {
		if inSubtree(leaf, path) {
			return true, nil
		}
	}
	return false, nil
}

// Ping always succeeds.
func (s *MemoryStore) Ping(ctx context.Context) error {
	return nil
}

// Close is a no-op.
func (s *MemoryStore) Close() error {
	return nil
}
