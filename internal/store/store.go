package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode"

	"github.com/oklog/ulid/v2"
)

var (
	ErrInvalidKey  = errors.New("invalid key")
	ErrInvalidPath = errors.New("invalid path")
)

// Store is a hierarchical key/value tree addressed by slash-separated paths.
// Values are JSON-shaped: maps, slices, strings, numbers, booleans. Nulls and
// empty objects are never stored; setting one removes the node.
//
// MemoryStore, RedisStore, PostgresStore, SQLiteStore and FirebaseStore all
// implement this interface.
type Store interface {
	// Get returns the subtree at path, or nil if nothing is stored there.
	Get(ctx context.Context, path string) (any, error)
	// Set replaces the subtree at path with value.
	Set(ctx context.Context, path string, value any) error
	// Push stores value under a freshly generated, time-ordered child key
	// of path and returns that key.
	Push(ctx context.Context, path string, value any) (string, error)
	// Remove deletes the subtree at path. Removing a missing path is not an error.
	Remove(ctx context.Context, path string) error
	// Exists reports whether anything is stored at or below path.
	Exists(ctx context.Context, path string) (bool, error)

	Ping(ctx context.Context) error
	Close() error
}

// NewPushKey returns a child key that sorts after every key previously
// generated by this process.
func NewPushKey() string {
	return ulid.Make().String()
}

// ValidateKey checks a single path segment against the Realtime Database
// key rules: non-empty, no control characters and none of / . # $ [ ].
func ValidateKey(key string) error {
	if key == "" {
		return fmt.Errorf("%w: empty", ErrInvalidKey)
	}
	if len(key) > 768 {
		return fmt.Errorf("%w: longer than 768 bytes", ErrInvalidKey)
	}
	for _, r := range key {
		if unicode.IsControl(r) || strings.ContainsRune("/.#$[]", r) {
			return fmt.Errorf("%w: %q contains %q", ErrInvalidKey, key, r)
		}
	}
	return nil
}

// Join builds a path from segments. Empty segments are dropped and
// surrounding slashes are trimmed, so Join("a", "/b/c/") == "a/b/c".
func Join(parts ...string) string {
	segs := make([]string, 0, len(parts))
	for _, p := range parts {
		segs = append(segs, Split(p)...)
	}
	return strings.Join(segs, "/")
}

// Split breaks a path into its non-empty segments.
func Split(path string) []string {
	raw := strings.Split(path, "/")
	segs := raw[:0]
	for _, s := range raw {
		if s != "" {
			segs = append(segs, s)
		}
	}
	return segs
}

// CleanPath normalizes path and validates every segment.
func CleanPath(path string) (string, error) {
	segs := Split(path)
	if len(segs) == 0 {
		return "", fmt.Errorf("%w: empty", ErrInvalidPath)
	}
	for _, s := range segs {
		if err := ValidateKey(s); err != nil {
			return "", fmt.Errorf("%w: %w", ErrInvalidPath, err)
		}
	}
	return strings.Join(segs, "/"), nil
}

// ancestors returns every proper prefix of a clean path, shortest first.
func ancestors(path string) []string {
	segs := strings.Split(path, "/")
	out := make([]string, 0, len(segs)-1)
	for i := 1; i < len(segs); i++ {
		out = append(out, strings.Join(segs[:i], "/"))
	}
	return out
}

// subtreeBounds returns the half-open range [lo, hi) that holds every
// descendant of path under byte-wise ordering. '0' is the byte after '/'.
func subtreeBounds(path string) (lo, hi string) {
	return path + "/", path + "0"
}

// inSubtree reports whether leaf is path itself or lies below it.
func inSubtree(leaf, path string) bool {
	return leaf == path || strings.HasPrefix(leaf, path+"/")
}
