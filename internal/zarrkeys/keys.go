// Package zarrkeys implements the key-naming conventions of Zarr v2 that
// LINDI's reference store must enforce and reason about: which keys are
// metadata files, which are chunks, and how a chunk key's indices relate to
// an array's declared shape.
package zarrkeys

import (
	"fmt"
	"strconv"
	"strings"
)

const (
	GroupMeta = ".zgroup"
	ArrayMeta = ".zarray"
	AttrsMeta = ".zattrs"
)

// IsMetaKey reports whether key names one of the three Zarr v2 metadata
// files, at any depth in the hierarchy.
func IsMetaKey(key string) bool {
	base := Base(key)
	return base == GroupMeta || base == ArrayMeta || base == AttrsMeta
}

// Base returns the final path component of a slash-delimited Zarr key.
func Base(key string) string {
	if i := strings.LastIndexByte(key, '/'); i >= 0 {
		return key[i+1:]
	}
	return key
}

// Dir returns the key with its final path component removed (the "group
// path" a metadata or chunk key belongs to). Returns "" for a top-level key.
func Dir(key string) string {
	if i := strings.LastIndexByte(key, '/'); i >= 0 {
		return key[:i]
	}
	return ""
}

// Join joins a group path and a leaf name into a Zarr key, matching Zarr's
// own convention of slash-delimited paths with no leading slash.
func Join(dir, leaf string) string {
	if dir == "" {
		return leaf
	}
	return dir + "/" + leaf
}

// IsValid reports whether key is a well-formed Zarr key: non-empty, no
// leading slash, no empty path components, no ".." components.
func IsValid(key string) bool {
	if key == "" || strings.HasPrefix(key, "/") || strings.HasSuffix(key, "/") {
		return false
	}
	for _, part := range strings.Split(key, "/") {
		if part == "" || part == "." || part == ".." {
			return false
		}
	}
	return true
}

// ChunkIndices parses the "i0.i1.…" chunk-coordinate suffix of a chunk key
// into per-dimension indices. Returns an error if any component is not a
// non-negative integer.
func ChunkIndices(chunkKeyBase string) ([]int, error) {
	parts := strings.Split(chunkKeyBase, ".")
	indices := make([]int, len(parts))
	for i, p := range parts {
		n, err := strconv.Atoi(p)
		if err != nil || n < 0 {
			return nil, fmt.Errorf("zarrkeys: invalid chunk index component %q in %q", p, chunkKeyBase)
		}
		indices[i] = n
	}
	return indices, nil
}

// ChunkKey builds the "i0.i1.…" chunk key for the given group path and
// per-dimension chunk indices.
func ChunkKey(groupPath string, indices []int) string {
	parts := make([]string, len(indices))
	for i, n := range indices {
		parts[i] = strconv.Itoa(n)
	}
	return Join(groupPath, strings.Join(parts, "."))
}

// ChunkGridShape returns, for an array shape and chunk shape, the number of
// chunks along each dimension (ceil(shape[i] / chunks[i])).
func ChunkGridShape(shape, chunks []int64) ([]int64, error) {
	if len(shape) != len(chunks) {
		return nil, fmt.Errorf("zarrkeys: shape has %d dims, chunks has %d", len(shape), len(chunks))
	}
	grid := make([]int64, len(shape))
	for i := range shape {
		if chunks[i] <= 0 {
			return nil, fmt.Errorf("zarrkeys: chunk dimension %d must be positive, got %d", i, chunks[i])
		}
		grid[i] = (shape[i] + chunks[i] - 1) / chunks[i]
	}
	return grid, nil
}

// IndicesWithinGrid reports whether a chunk's indices lie within the
// declared chunk-grid shape (spec §3 invariant: "each .zarray key must be
// paired with chunk keys whose indices lie within the declared shape").
func IndicesWithinGrid(indices []int, grid []int64) bool {
	if len(indices) != len(grid) {
		return false
	}
	for i, idx := range indices {
		if int64(idx) < 0 || int64(idx) >= grid[i] {
			return false
		}
	}
	return true
}
