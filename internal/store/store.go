// Package store composes the reference document, the chunk fetcher, and
// (when present) a tar container or staging area into the concrete
// rfs.Store a caller opens and mutates (spec §4.1, §4.6).
package store

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/url"
	"path"
	"strings"
	"sync"

	"github.com/NeurodataWithoutBorders/lindi/internal/fetch"
	"github.com/NeurodataWithoutBorders/lindi/internal/rfs"
	"github.com/NeurodataWithoutBorders/lindi/internal/staging"
	"github.com/NeurodataWithoutBorders/lindi/internal/tarfs"
	"github.com/NeurodataWithoutBorders/lindi/internal/zarrkeys"
)

// InlineThreshold is the largest value Set will store inline rather than
// routing through the staging area. It is not part of the wire format —
// callers may always read inline or external refs regardless of size — but
// keeping small writes inline avoids staging-area churn for metadata-sized
// values (.zattrs updates, scalar rewrites).
const InlineThreshold = 4096

// Config wires a Store's collaborators (spec §4.6's three on-disk shapes
// share this same composition; only which fields are populated differs).
type Config struct {
	// BaseURL resolves relative external refs that are not the strict
	// self-referential marker ("./" or "").
	BaseURL string
	// Container is non-nil for .lindi.tar-backed stores.
	Container *tarfs.Container
	// Fetcher resolves non-self-referential external refs.
	Fetcher *fetch.Fetcher
	// Staging is non-nil for writable stores; Set delegates large writes
	// to it.
	Staging *staging.Area
	// Closer, if set, is closed by Store.Close (e.g. the backing *os.File).
	Closer   io.Closer
	ReadOnly bool
}

// Store is the concrete rfs.Store implementation.
type Store struct {
	mu  sync.RWMutex
	doc *rfs.RFS
	cfg Config
}

var _ rfs.Store = (*Store)(nil)

// Open wraps doc with cfg's collaborators.
func Open(doc *rfs.RFS, cfg Config) *Store {
	return &Store{doc: doc, cfg: cfg}
}

func (s *Store) Get(ctx context.Context, key string) ([]byte, error) {
	s.mu.RLock()
	ref, ok := s.doc.Refs[key]
	s.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("lindi: key %q: %w", key, rfs.ErrNotFound)
	}

	switch ref.Kind {
	case rfs.RefInline, rfs.RefInlineBase64:
		return ref.Bytes()
	case rfs.RefExternal:
		return s.getExternal(ctx, key, ref)
	default:
		return nil, fmt.Errorf("lindi: key %q: %w: unknown ref kind", key, rfs.ErrCorruptReference)
	}
}

func (s *Store) getExternal(ctx context.Context, key string, ref rfs.Ref) ([]byte, error) {
	if ref.IsSelfReferential() {
		if s.cfg.Container == nil {
			return nil, fmt.Errorf("lindi: key %q: %w: self-referential ref with no backing container", key, rfs.ErrCorruptContainer)
		}
		return s.cfg.Container.ReadAbsolute(ctx, ref.Offset, ref.Size)
	}
	if s.cfg.Fetcher == nil {
		return nil, fmt.Errorf("lindi: key %q: %w: no fetcher configured for external refs", key, rfs.ErrUnsupportedFeature)
	}
	resolved := s.resolveURL(ref.URL)
	data, err := s.cfg.Fetcher.Fetch(ctx, resolved, ref.Offset, ref.Size)
	if err != nil {
		return nil, fmt.Errorf("lindi: key %q: %w", key, err)
	}
	if int64(len(data)) != ref.Size {
		return nil, fmt.Errorf("lindi: key %q: %w: expected %d bytes, got %d", key, rfs.ErrCorruptReference, ref.Size, len(data))
	}
	return data, nil
}

func (s *Store) resolveURL(ref string) string {
	if s.cfg.BaseURL == "" {
		return ref
	}
	u, err := url.Parse(ref)
	if err == nil && u.IsAbs() {
		return ref
	}
	base, err := url.Parse(s.cfg.BaseURL)
	if err != nil {
		return ref
	}
	rel, err := url.Parse(ref)
	if err != nil {
		return ref
	}
	return base.ResolveReference(rel).String()
}

func (s *Store) Set(ctx context.Context, key string, data []byte) error {
	if s.cfg.ReadOnly {
		return fmt.Errorf("lindi: key %q: %w", key, rfs.ErrReadOnly)
	}
	if !zarrkeys.IsValid(key) {
		return fmt.Errorf("lindi: %w: invalid key %q", rfs.ErrCorruptReference, key)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if !zarrkeys.IsMetaKey(key) {
		if indices, err := zarrkeys.ChunkIndices(zarrkeys.Base(key)); err == nil {
			if grid, ok := s.chunkGridLocked(zarrkeys.Dir(key)); ok && !zarrkeys.IndicesWithinGrid(indices, grid) {
				return fmt.Errorf("lindi: key %q: %w: chunk indices %v outside declared grid %v", key, rfs.ErrCorruptReference, indices, grid)
			}
		}
	}

	if len(data) <= InlineThreshold {
		s.doc.Refs[key] = rfs.NewInlineBytes(data)
		return nil
	}
	if s.cfg.Staging == nil {
		return fmt.Errorf("lindi: key %q: %w: no staging area for large writes", key, rfs.ErrReadOnly)
	}
	stagingURL, err := s.cfg.Staging.Put(data)
	if err != nil {
		return err
	}
	s.doc.Refs[key] = rfs.NewExternal(stagingURL, 0, int64(len(data)))
	return nil
}

// chunkGridLocked looks up the .zarray sibling of a group path and returns
// its chunk-grid shape (spec §3: chunk keys must lie within it). The second
// return is false when there is no sibling .zarray to check against (e.g.
// the key is not part of a Zarr array at all), in which case Set does not
// enforce the invariant. Caller must hold s.mu.
func (s *Store) chunkGridLocked(dir string) ([]int64, bool) {
	ref, ok := s.doc.Refs[zarrkeys.Join(dir, zarrkeys.ArrayMeta)]
	if !ok {
		return nil, false
	}
	raw, err := ref.Bytes()
	if err != nil {
		return nil, false
	}
	var zarray struct {
		Shape  []int64 `json:"shape"`
		Chunks []int64 `json:"chunks"`
	}
	if err := json.Unmarshal(raw, &zarray); err != nil {
		return nil, false
	}
	grid, err := zarrkeys.ChunkGridShape(zarray.Shape, zarray.Chunks)
	if err != nil {
		return nil, false
	}
	return grid, true
}

func (s *Store) ListDir(ctx context.Context, prefix string) ([]string, error) {
	prefix = strings.Trim(prefix, "/")

	s.mu.RLock()
	defer s.mu.RUnlock()

	seen := make(map[string]struct{})
	var out []string
	for key := range s.doc.Refs {
		rest, ok := childOf(prefix, key)
		if !ok {
			continue
		}
		if _, dup := seen[rest]; dup {
			continue
		}
		seen[rest] = struct{}{}
		out = append(out, rest)
	}
	return out, nil
}

// childOf reports whether key lies under prefix, returning the immediate
// next path component (which may itself be a "directory" if other keys
// continue past it).
func childOf(prefix, key string) (string, bool) {
	if prefix == "" {
		if key == "" {
			return "", false
		}
		return path.Base("/" + firstComponent(key)), true
	}
	if !strings.HasPrefix(key, prefix+"/") {
		return "", false
	}
	rest := strings.TrimPrefix(key, prefix+"/")
	return firstComponent(rest), true
}

func firstComponent(s string) string {
	if i := strings.IndexByte(s, '/'); i >= 0 {
		return s[:i]
	}
	return s
}

func (s *Store) Contains(ctx context.Context, key string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.doc.Refs[key]
	return ok, nil
}

func (s *Store) Delete(ctx context.Context, key string) error {
	if s.cfg.ReadOnly {
		return fmt.Errorf("lindi: key %q: %w", key, rfs.ErrReadOnly)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.doc.Refs[key]; !ok {
		return fmt.Errorf("lindi: key %q: %w", key, rfs.ErrNotFound)
	}
	delete(s.doc.Refs, key)
	return nil
}

// Staging returns the store's staging area, or nil if it was opened
// read-only. WriteLindi uses this to fold staged writes into a
// finalized container or directory.
func (s *Store) Staging() *staging.Area {
	return s.cfg.Staging
}

func (s *Store) ToRFS() *rfs.RFS {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.doc.Clone()
}

func (s *Store) Close() error {
	var firstErr error
	if s.cfg.Staging != nil {
		if err := s.cfg.Staging.Close(); err != nil {
			firstErr = err
		}
	}
	if s.cfg.Closer != nil {
		if err := s.cfg.Closer.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
