// Package lindi implements LINDI, a cloud-friendly container format for
// hierarchical scientific datasets: a Zarr v2 reference file system, an
// HDF5-to-Zarr translator, and a random-access tar container, bound
// together behind a single Zarr-store-shaped interface (spec §4.6).
package lindi

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/exp/mmap"

	"github.com/NeurodataWithoutBorders/lindi/internal/fetch"
	"github.com/NeurodataWithoutBorders/lindi/internal/rfs"
	"github.com/NeurodataWithoutBorders/lindi/internal/staging"
	"github.com/NeurodataWithoutBorders/lindi/internal/store"
	"github.com/NeurodataWithoutBorders/lindi/internal/tarfs"
)

// Format is one of the three on-disk shapes a LINDI store can take (spec
// §4.6): a bare RFS document, a tar container, or an equivalent directory
// layout.
type Format int

const (
	FormatJSON Format = iota
	FormatTar
	FormatDir
)

func (f Format) String() string {
	switch f {
	case FormatJSON:
		return "lindi.json"
	case FormatTar:
		return "lindi.tar"
	case FormatDir:
		return "lindi.d"
	default:
		return "unknown"
	}
}

// DetectFormat infers a store's on-disk shape from its path suffix.
func DetectFormat(pathOrURL string) (Format, error) {
	switch {
	case strings.HasSuffix(pathOrURL, ".lindi.json"), strings.HasSuffix(pathOrURL, ".json"):
		return FormatJSON, nil
	case strings.HasSuffix(pathOrURL, ".lindi.tar"), strings.HasSuffix(pathOrURL, ".tar"):
		return FormatTar, nil
	case strings.HasSuffix(pathOrURL, ".lindi.d"), strings.HasSuffix(pathOrURL, "/"):
		return FormatDir, nil
	default:
		return 0, fmt.Errorf("lindi: %q has no recognized .lindi.json/.lindi.tar/.lindi.d suffix", pathOrURL)
	}
}

// OpenOptions configures OpenLindi.
type OpenOptions struct {
	// ReadWrite opens the store with a staging area, so Set/Delete work.
	ReadWrite bool
	// StagingBaseDir is where the staging area (if any) creates its
	// temporary directory. Defaults to os.TempDir() when empty.
	StagingBaseDir string
	Fetch          fetch.Options
}

func isRemote(pathOrURL string) bool {
	return strings.HasPrefix(pathOrURL, "http://") || strings.HasPrefix(pathOrURL, "https://")
}

// OpenLindi opens a LINDI store, local or remote, dispatching on its
// on-disk shape.
func OpenLindi(ctx context.Context, pathOrURL string, opts OpenOptions) (rfs.Store, error) {
	format, err := DetectFormat(pathOrURL)
	if err != nil {
		return nil, err
	}

	fetcher, err := fetch.New(opts.Fetch)
	if err != nil {
		return nil, fmt.Errorf("lindi: constructing fetcher: %w", err)
	}

	switch format {
	case FormatJSON:
		return openJSON(ctx, pathOrURL, fetcher, opts)
	case FormatTar:
		return openTar(ctx, pathOrURL, fetcher, opts)
	case FormatDir:
		return openDir(ctx, pathOrURL, fetcher, opts)
	default:
		return nil, fmt.Errorf("lindi: unsupported format %v", format)
	}
}

func openJSON(ctx context.Context, pathOrURL string, fetcher *fetch.Fetcher, opts OpenOptions) (rfs.Store, error) {
	var raw []byte
	var err error
	baseURL := dirOf(pathOrURL)

	if isRemote(pathOrURL) {
		size, serr := fetcher.Size(ctx, pathOrURL)
		if serr != nil {
			return nil, fmt.Errorf("lindi: sizing remote manifest %q: %w", pathOrURL, serr)
		}
		raw, err = fetcher.Fetch(ctx, pathOrURL, 0, size)
	} else {
		raw, err = os.ReadFile(pathOrURL)
	}
	if err != nil {
		return nil, fmt.Errorf("lindi: reading manifest %q: %w", pathOrURL, err)
	}

	doc := rfs.New()
	if err := json.Unmarshal(raw, doc); err != nil {
		return nil, fmt.Errorf("lindi: parsing manifest %q: %w", pathOrURL, err)
	}

	cfg := store.Config{BaseURL: baseURL, Fetcher: fetcher, ReadOnly: !opts.ReadWrite}
	if opts.ReadWrite {
		area, err := staging.New(stagingDir(opts))
		if err != nil {
			return nil, err
		}
		cfg.Staging = area
	}
	return store.Open(doc, cfg), nil
}

func openTar(ctx context.Context, pathOrURL string, fetcher *fetch.Fetcher, opts OpenOptions) (rfs.Store, error) {
	var container *tarfs.Container
	var closer io.Closer

	if isRemote(pathOrURL) {
		size, err := fetcher.Size(ctx, pathOrURL)
		if err != nil {
			return nil, fmt.Errorf("lindi: sizing remote container %q: %w", pathOrURL, err)
		}
		ra := tarfs.NewRemoteReaderAt(ctx, fetcher, pathOrURL)
		container, err = tarfs.Open(ctx, ra, size, nil)
		if err != nil {
			return nil, err
		}
	} else if opts.ReadWrite {
		f, err := os.OpenFile(pathOrURL, os.O_RDWR, 0o644)
		if err != nil {
			return nil, fmt.Errorf("lindi: opening container %q: %w", pathOrURL, err)
		}
		info, err := f.Stat()
		if err != nil {
			f.Close()
			return nil, err
		}
		container, err = tarfs.Open(ctx, f, info.Size(), f)
		if err != nil {
			f.Close()
			return nil, err
		}
		closer = f
	} else {
		// Read-only local containers are opened via mmap for zero-copy
		// random access, the way the teacher opens local index/CAR files.
		ra, err := mmap.Open(pathOrURL)
		if err != nil {
			return nil, fmt.Errorf("lindi: opening container %q: %w", pathOrURL, err)
		}
		container, err = tarfs.Open(ctx, ra, int64(ra.Len()), nil)
		if err != nil {
			ra.Close()
			return nil, err
		}
		closer = ra
	}

	manifest, err := container.ReadMember(ctx, tarfs.ManifestMemberName, 0, container.Index()[tarfs.ManifestMemberName].DataSize)
	if err != nil {
		return nil, fmt.Errorf("lindi: reading %s: %w", tarfs.ManifestMemberName, err)
	}
	doc := rfs.New()
	if err := json.Unmarshal(manifest, doc); err != nil {
		return nil, fmt.Errorf("lindi: parsing %s: %w", tarfs.ManifestMemberName, err)
	}

	cfg := store.Config{Container: container, Fetcher: fetcher, ReadOnly: !opts.ReadWrite}
	if closer != nil {
		cfg.Closer = closer
	}
	if opts.ReadWrite {
		area, err := staging.New(stagingDir(opts))
		if err != nil {
			return nil, err
		}
		cfg.Staging = area
	}
	return store.Open(doc, cfg), nil
}

func openDir(ctx context.Context, dirPath string, fetcher *fetch.Fetcher, opts OpenOptions) (rfs.Store, error) {
	manifestPath := filepath.Join(dirPath, tarfs.ManifestMemberName)
	raw, err := os.ReadFile(manifestPath)
	if err != nil {
		return nil, fmt.Errorf("lindi: reading %s: %w", manifestPath, err)
	}
	doc := rfs.New()
	if err := json.Unmarshal(raw, doc); err != nil {
		return nil, fmt.Errorf("lindi: parsing %s: %w", manifestPath, err)
	}

	cfg := store.Config{BaseURL: dirPath + string(filepath.Separator), Fetcher: fetcher, ReadOnly: !opts.ReadWrite}
	if opts.ReadWrite {
		area, err := staging.New(stagingDir(opts))
		if err != nil {
			return nil, err
		}
		cfg.Staging = area
	}
	return store.Open(doc, cfg), nil
}

func stagingDir(opts OpenOptions) string {
	if opts.StagingBaseDir != "" {
		return opts.StagingBaseDir
	}
	return os.TempDir()
}

func dirOf(pathOrURL string) string {
	if isRemote(pathOrURL) {
		if i := strings.LastIndexByte(pathOrURL, '/'); i >= 0 {
			return pathOrURL[:i+1]
		}
		return pathOrURL
	}
	return filepath.Dir(pathOrURL) + string(filepath.Separator)
}

// WriteLindi finalizes s into a new LINDI file at dst in the requested
// format (spec §4.5 "finalization"). s's staged writes are folded in and
// its manifest is serialized last.
func WriteLindi(ctx context.Context, s rfs.Store, dst string, format Format) error {
	doc := s.ToRFS()

	area, hasStaging := stagingOf(s)

	switch format {
	case FormatJSON:
		return writeJSON(dst, doc)
	case FormatTar:
		return writeTar(ctx, dst, doc, area, hasStaging)
	case FormatDir:
		return writeDir(ctx, dst, doc, area, hasStaging)
	default:
		return fmt.Errorf("lindi: unsupported destination format %v", format)
	}
}

// stagingOf extracts the staging area from a *store.Store so WriteLindi can
// finalize it, without exposing staging as part of the public rfs.Store
// interface.
func stagingOf(s rfs.Store) (*staging.Area, bool) {
	type stagingHolder interface {
		Staging() *staging.Area
	}
	if h, ok := s.(stagingHolder); ok {
		if a := h.Staging(); a != nil {
			return a, true
		}
	}
	return nil, false
}

func writeJSON(dst string, doc *rfs.RFS) error {
	encoded, err := json.Marshal(doc)
	if err != nil {
		return err
	}
	return atomicWriteFile(dst, encoded)
}

func writeTar(ctx context.Context, dst string, doc *rfs.RFS, area *staging.Area, hasStaging bool) error {
	tmp := dst + ".tmp"
	f, err := os.OpenFile(tmp, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	// The container must exist before staged chunks can be appended to
	// it, so it is created with a placeholder manifest that gets grown
	// to its final contents once every staged ref has been rewritten.
	container, err := tarfs.Create(ctx, f, []byte(`{"version":0,"refs":{}}`))
	if err != nil {
		return err
	}

	if hasStaging {
		doc, err = area.Finalize(ctx, doc, staging.TarDestination{Container: container})
		if err != nil {
			return err
		}
	}
	manifest, err := json.Marshal(doc)
	if err != nil {
		return err
	}
	if err := container.Grow(ctx, tarfs.ManifestMemberName, manifest); err != nil {
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	return os.Rename(tmp, dst)
}

func writeDir(ctx context.Context, dst string, doc *rfs.RFS, area *staging.Area, hasStaging bool) error {
	if err := os.MkdirAll(dst, 0o755); err != nil {
		return err
	}
	if hasStaging {
		finalized, err := area.Finalize(ctx, doc, staging.DirDestination{Dir: dst})
		if err != nil {
			return err
		}
		doc = finalized
	}
	encoded, err := json.Marshal(doc)
	if err != nil {
		return err
	}
	return atomicWriteFile(filepath.Join(dst, tarfs.ManifestMemberName), encoded)
}

func atomicWriteFile(dst string, data []byte) error {
	tmp := dst + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	if err := os.Rename(tmp, dst); err != nil {
		os.Remove(tmp)
		return err
	}
	return nil
}
