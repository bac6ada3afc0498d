// Package hdf5src declares the collaborator interface LINDI's translator
// depends on to read an HDF5 file's structure and chunk locations. LINDI
// does not implement an HDF5 parser itself (spec §6 non-goal): a production
// build plugs in a conformant reader such as scigolib/hdf5, shaped to this
// interface.
package hdf5src

import (
	"context"
	"fmt"
)

// Layout describes how a dataset's raw bytes sit on disk.
type Layout int

const (
	// LayoutContiguous means the dataset occupies one unbroken file range.
	LayoutContiguous Layout = iota
	// LayoutChunked means the dataset is split into independently stored
	// chunks, each with its own file offset and size.
	LayoutChunked
	// LayoutCompact means the dataset's values are stored inline in its
	// object header rather than at a separate file offset.
	LayoutCompact
)

// Chunk is one stored chunk of a chunked dataset: its grid index and its
// byte range within the HDF5 file.
type Chunk struct {
	Index  []uint64
	Offset int64
	Size   int64
}

// DType is a translator-facing description of an HDF5 datatype, already
// reduced to the subset of distinctions Zarr needs to make.
type DType struct {
	// ZarrDtype is a Zarr v2 dtype string (e.g. "<f8", "<i4", "|u1").
	ZarrDtype string
	// Compound lists field names, in declaration order, for compound
	// datatypes. Empty for non-compound datatypes.
	Compound []string
}

// Filter is one stage of an HDF5 chunk filter pipeline (e.g. gzip,
// shuffle), identified by filter name (e.g. "deflate", "shuffle") plus
// whatever parameters were recorded for it.
type Filter struct {
	Name       string
	Parameters []uint32
}

// Object is any node of the HDF5 tree: a Group, a Dataset or a SoftLink.
type Object interface {
	Name() string
	Path() string
}

// Attributes is implemented by any Object that carries HDF5 attributes.
type Attributes interface {
	ListAttributes(ctx context.Context) ([]string, error)
	ReadAttribute(ctx context.Context, name string) (any, error)
}

// Group is an HDF5 group: a named node that contains child objects.
type Group interface {
	Object
	Attributes
	Children() []Object
}

// SoftLink is an HDF5 soft link, surfaced as its own Object kind because it
// has no data of its own — only a target path (spec §4.3: "Soft link ->
// empty Zarr group with attribute _SOFT_LINK").
type SoftLink interface {
	Object
	Target() string
}

// ObjectRef is a resolved HDF5 object reference, either a whole attribute
// value or an element of a dataset of reference type (spec §3 _REFERENCE).
type ObjectRef struct {
	Path string
	// SourceObjectID is an opaque identifier for the object the reference
	// was read from, used as _REFERENCE's source_object_id.
	SourceObjectID string
}

// Dataset is an HDF5 dataset.
type Dataset interface {
	Object
	Attributes

	Shape() []uint64
	DType() (DType, error)
	Layout() Layout

	// ChunkShape returns the declared chunk shape for a chunked dataset.
	// It is meaningless for LayoutContiguous and LayoutCompact.
	ChunkShape() []uint64

	// Filters returns the filter pipeline applied to this dataset's raw
	// chunk bytes, in application order.
	Filters() ([]Filter, error)

	// ContiguousRange returns the dataset's single file range, valid only
	// when Layout() == LayoutContiguous.
	ContiguousRange(ctx context.Context) (offset, size int64, err error)

	// Chunks iterates every stored chunk of a chunked dataset. It must
	// visit chunks in a stable order so that translation is deterministic.
	Chunks(ctx context.Context, fn func(Chunk) error) error

	// ChunkCount reports how many chunks Chunks would visit, without
	// reading them, so the translator can apply the
	// Options.MaxChunksInline threshold cheaply.
	ChunkCount(ctx context.Context) (int, error)

	// ReadCompact returns a compact dataset's inline-stored bytes, valid
	// only when Layout() == LayoutCompact.
	ReadCompact(ctx context.Context) ([]byte, error)

	// ReadScalar returns a scalar dataset's single value, JSON-encodable.
	ReadScalar(ctx context.Context) (any, error)

	// ReadCompoundRows returns a compound dataset's values as one map per
	// record, field name to JSON-encodable value, in field declaration
	// order's iteration (map key order is not significant; DType().Compound
	// carries the declared order). Valid only when DType().Compound is
	// non-empty.
	ReadCompoundRows(ctx context.Context) ([]map[string]any, error)
}

// Reader is the root collaborator: an already-open HDF5 file.
type Reader interface {
	// Root returns the file's root group.
	Root() Group

	// SourceURL is the URL the translator should record in chunk
	// references — typically the HDF5 file's own location.
	SourceURL() string

	// Close releases any resources held open by the reader.
	Close() error
}

// OpenFunc opens path as an HDF5 file and returns a Reader over it, the way
// a database/sql driver or image.RegisterFormat decoder does for its own
// format: the concern is registered once by whichever conformant reader is
// linked into the binary, not implemented here.
type OpenFunc func(ctx context.Context, path string) (Reader, error)

var openers = map[string]OpenFunc{}

// Register makes an OpenFunc available to Open under name. Conformant HDF5
// readers (scigolib/hdf5 or otherwise) call this from an init() in the
// package a production build imports for side effects.
func Register(name string, fn OpenFunc) {
	openers[name] = fn
}

// Open opens path using the named registered reader. It returns an error if
// no reader of that name has been linked into the binary.
func Open(ctx context.Context, name, path string) (Reader, error) {
	fn, ok := openers[name]
	if !ok {
		return nil, fmt.Errorf("hdf5src: no reader registered under %q; link a conformant HDF5 reader package for side-effect registration", name)
	}
	return fn(ctx, path)
}
