package staging

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/NeurodataWithoutBorders/lindi/internal/rfs"
	"github.com/NeurodataWithoutBorders/lindi/internal/tarfs"
)

// Destination is where Finalize writes staged chunks: either inside a tar
// container's member table, or as sidecar files in a directory.
type Destination interface {
	// Put writes data under a name derived from key and returns the
	// reference Finalize should install in its place — a self-referential
	// tar range, or a relative sidecar-file reference.
	Put(ctx context.Context, key string, data []byte) (rfs.Ref, error)
}

// Finalize rewrites every staging:// reference in doc to the reference
// Destination.Put returns for its bytes, leaving every other ref untouched.
// It does not mutate doc; it returns a new, finalized RFS (spec §4.5
// "manifest's external references to staging paths are rewritten").
func (a *Area) Finalize(ctx context.Context, doc *rfs.RFS, dst Destination) (*rfs.RFS, error) {
	out := doc.Clone()
	for key, ref := range out.Refs {
		if ref.Kind != rfs.RefExternal {
			continue
		}
		digest, ok := trimStagingScheme(ref.URL)
		if !ok {
			continue
		}
		a.mu.Lock()
		path, ok := a.paths[digest]
		a.mu.Unlock()
		if !ok {
			return nil, fmt.Errorf("lindi: finalizing %q: staged file for digest %s not found", key, digest)
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("lindi: finalizing %q: %w", key, err)
		}
		newRef, err := dst.Put(ctx, key, data)
		if err != nil {
			return nil, fmt.Errorf("lindi: finalizing %q: %w", key, err)
		}
		out.Refs[key] = newRef
	}
	return out, nil
}

// DirDestination finalizes staged chunks as sidecar files inside a
// .lindi.d directory layout.
type DirDestination struct {
	Dir string
}

func (d DirDestination) Put(ctx context.Context, key string, data []byte) (rfs.Ref, error) {
	name := sanitizeFileName(key)
	path := filepath.Join(d.Dir, name)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return rfs.Ref{}, err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return rfs.Ref{}, err
	}
	return rfs.NewExternal("./"+name, 0, int64(len(data))), nil
}

// TarDestination finalizes staged chunks as members of an open, writable
// tar container, rewriting refs to self-referential (offset, size) pairs
// into the archive.
type TarDestination struct {
	Container *tarfs.Container
}

func (d TarDestination) Put(ctx context.Context, key string, data []byte) (rfs.Ref, error) {
	name := "chunks/" + sanitizeFileName(key)
	if err := d.Container.AddMember(ctx, name, data, false); err != nil {
		return rfs.Ref{}, err
	}
	member, ok := d.Container.Index()[name]
	if !ok {
		return rfs.Ref{}, fmt.Errorf("lindi: member %s missing from index immediately after AddMember", name)
	}
	return rfs.NewExternal("./", member.DataOffset, member.DataSize), nil
}

func sanitizeFileName(key string) string {
	out := make([]byte, len(key))
	for i := 0; i < len(key); i++ {
		c := key[i]
		if c == '/' {
			out[i] = '_'
		} else {
			out[i] = c
		}
	}
	return string(out)
}
