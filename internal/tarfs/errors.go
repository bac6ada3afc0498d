package tarfs

import "errors"

var (
	// ErrBadHeader means the archive does not open with a well-formed
	// .tar_entry.json (spec §4.2, §7: "inconsistent .tar_entry.json (wrong
	// declared size, not the first member, not exactly 1024 bytes) ->
	// refuse to open").
	ErrBadHeader = errors.New("lindi: malformed tar container header")

	// ErrMemberNotFound means the requested member is absent from the
	// index (or was tombstoned).
	ErrMemberNotFound = errors.New("lindi: tar member not found")

	// ErrNotGrowable means Grow was called on a member the container did
	// not mark as growable.
	ErrNotGrowable = errors.New("lindi: tar member is not growable")

	// ErrReadOnly means a mutating operation was attempted on a container
	// opened without a backing io.WriterAt.
	ErrReadOnly = errors.New("lindi: tar container is read-only")

	// ErrOutOfBounds means a self-referential read would fall outside the
	// data region of any live member (spec §4.6 integrity requirement).
	ErrOutOfBounds = errors.New("lindi: self-referential range outside any member's data region")
)
