// Package staging implements the scoped buffer of newly written chunks a
// read-write LINDI store accumulates before finalization (spec §4.5).
package staging

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/cespare/xxhash/v2"
	"github.com/google/uuid"
)

// StagingScheme is the synthetic URL scheme a staged chunk's in-memory ref
// carries until finalization rewrites it to a real (self-referential or
// sidecar-file) reference.
const StagingScheme = "staging://"

// Area is a scoped resource: created over a base directory, consumed by one
// or more Put calls from mutating operations, and guaranteed to release its
// temporary files on Close regardless of how the caller exits (spec §4.5
// "guaranteed to release its temporary files on all exit paths").
type Area struct {
	dir string

	mu     sync.Mutex
	paths  map[string]string // digest -> file path
	closed bool
}

// New creates a staging area as a fresh temporary subdirectory of baseDir.
func New(baseDir string) (*Area, error) {
	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		return nil, fmt.Errorf("lindi: creating staging base directory: %w", err)
	}
	dir, err := os.MkdirTemp(baseDir, "lindi-staging-*")
	if err != nil {
		return nil, fmt.Errorf("lindi: creating staging directory: %w", err)
	}
	return &Area{dir: dir, paths: make(map[string]string)}, nil
}

// Dir returns the staging area's backing directory.
func (a *Area) Dir() string { return a.dir }

// Put writes data under a content-addressed filename and returns a
// synthetic staging:// URL the caller should record as the chunk's
// external reference until Finalize rewrites it.
func (a *Area) Put(data []byte) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return "", fmt.Errorf("lindi: staging area is closed")
	}

	digest := fmt.Sprintf("%016x", xxhash.Sum64(data))
	if path, ok := a.paths[digest]; ok {
		return StagingScheme + digest, pathCheck(path)
	}

	path := filepath.Join(a.dir, digest+".bin")
	// The temp file gets a uuid suffix and is renamed to its digest name
	// once fully written. Put holds a.mu for its whole duration, so two
	// Puts on one Area never write temp files concurrently.
	tmpName := filepath.Join(a.dir, digest+".tmp-"+uuid.New().String())
	tmp, err := os.OpenFile(tmpName, os.O_RDWR|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return "", fmt.Errorf("lindi: staging chunk: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return "", fmt.Errorf("lindi: staging chunk: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return "", fmt.Errorf("lindi: staging chunk: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		os.Remove(tmp.Name())
		return "", fmt.Errorf("lindi: staging chunk: %w", err)
	}

	a.paths[digest] = path
	return StagingScheme + digest, nil
}

// Path resolves a staging:// URL (as produced by Put) back to the on-disk
// file holding its bytes.
func (a *Area) Path(stagingURL string) (string, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	digest, ok := trimStagingScheme(stagingURL)
	if !ok {
		return "", false
	}
	path, ok := a.paths[digest]
	return path, ok
}

// Close removes the staging directory and everything under it.
func (a *Area) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return nil
	}
	a.closed = true
	return os.RemoveAll(a.dir)
}

func trimStagingScheme(url string) (string, bool) {
	if len(url) <= len(StagingScheme) || url[:len(StagingScheme)] != StagingScheme {
		return "", false
	}
	return url[len(StagingScheme):], true
}

func pathCheck(path string) error {
	if _, err := os.Stat(path); err != nil {
		return fmt.Errorf("lindi: staged file missing: %w", err)
	}
	return nil
}
