package rfs

import "context"

// Store is the Zarr v2 key/value store behavior an RFS backs (spec §4.1).
// Concrete implementations compose an *RFS with a chunk fetcher and,
// optionally, a tar or directory container for self-referential ranges;
// see internal/store.
type Store interface {
	// Get returns the decoded bytes for key, resolving inline refs
	// directly and external refs through the fetcher or container.
	Get(ctx context.Context, key string) ([]byte, error)

	// Set stores bytes at key. Read-only stores return ErrReadOnly.
	Set(ctx context.Context, key string, data []byte) error

	// ListDir returns the immediate children of prefix (the next path
	// component only, not a recursive listing), the way Zarr enumerates
	// groups and chunks.
	ListDir(ctx context.Context, prefix string) ([]string, error)

	// Contains reports whether key resolves to a value.
	Contains(ctx context.Context, key string) (bool, error)

	// Delete removes key. Read-only stores return ErrReadOnly.
	Delete(ctx context.Context, key string) error

	// ToRFS returns a snapshot of the store's current reference document.
	ToRFS() *RFS

	// Close releases any resources (fetcher caches, open container
	// handles, staging area) the store holds.
	Close() error
}
