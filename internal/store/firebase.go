package store

import (
	"context"
	"fmt"

	fbase "firebase.google.com/go"
	"firebase.google.com/go/db"
)

// FirebaseStore delegates to a Firebase Realtime Database. The database
// already has the tree semantics the Store interface describes.
type FirebaseStore struct {
	client *db.Client
}

// NewFirebaseStore opens the Realtime Database configured on app.
func NewFirebaseStore(ctx context.Context, app *fbase.App) (*FirebaseStore, error) {
	client, err := app.Database(ctx)
	if err != nil {
		return nil, fmt.Errorf("firebase database: %w", err)
	}
	return &FirebaseStore{client: client}, nil
}

// Close is a no-op; the REST client holds no connections of its own.
func (s *FirebaseStore) Close() error {
	return nil
}

// Ping reads a path that is never written.
func (s *FirebaseStore) Ping(ctx context.Context) error {
	var v any
	return s.client.NewRef("_ping").Get(ctx, &v)
}

// Get returns the subtree at path.
func (s *FirebaseStore) Get(ctx context.Context, path string) (any, error) {
	path, err := CleanPath(path)
	if err != nil {
		return nil, err
	}

	var v any
	if err := s.client.NewRef(path).Get(ctx, &v); err != nil {
		return nil, err
	}
	if v == nil {
		return nil, nil
	}
	return Normalize(v)
}

// Set replaces the subtree at path.
func (s *FirebaseStore) Set(ctx context.Context, path string, value any) error {
	path, err := CleanPath(path)
	if err != nil {
		return err
	}
	generic, err := Normalize(value)
	if err != nil {
		return err
	}
	// Reject bad keys with ErrInvalidKey before the database does.
	if _, err := flatten(path, generic); err != nil {
		return err
	}
	if generic == nil {
		return s.client.NewRef(path).Delete(ctx)
	}
	return s.client.NewRef(path).Set(ctx, generic)
}

// Push stores value under a key generated by this process, so keys sort
// the same way as in the other backends.
func (s *FirebaseStore) Push(ctx context.Context, path string, value any) (string, error) {
	key := NewPushKey()
	if err := s.Set(ctx, Join(path, key), value); err != nil {
		return "", err
	}
	return key, nil
}

// Remove deletes the subtree at path.
func (s *FirebaseStore) Remove(ctx context.Context, path string) error {
	path, err := CleanPath(path)
	if err != nil {
		return err
	}
	return s.client.NewRef(path).Delete(ctx)
}

// Exists reports whether anything is stored at or below path.
func (s *FirebaseStore) Exists(ctx context.Context, path string) (bool, error) {
	path, err := CleanPath(path)
	if err != nil {
		return false, err
	}

	var v any
	if err := s.client.NewRef(path).Get(ctx, &v); err != nil {
		return false, err
	}
	return v != nil, nil
}
