package hdf5translate

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/NeurodataWithoutBorders/lindi/internal/hdf5translate/hdf5src"
)

// fakeGroup/fakeDataset/fakeSoftLink implement hdf5src's interfaces over an
// in-memory tree, standing in for a real HDF5 reader in these tests.

type fakeAttrs map[string]any

func (a fakeAttrs) ListAttributes(ctx context.Context) ([]string, error) {
	names := make([]string, 0, len(a))
	for k := range a {
		names = append(names, k)
	}
	return names, nil
}

func (a fakeAttrs) ReadAttribute(ctx context.Context, name string) (any, error) {
	return a[name], nil
}

type fakeGroup struct {
	fakeAttrs
	name     string
	path     string
	children []hdf5src.Object
}

func (g *fakeGroup) Name() string            { return g.name }
func (g *fakeGroup) Path() string            { return g.path }
func (g *fakeGroup) Children() []hdf5src.Object { return g.children }

type fakeSoftLink struct {
	name, path, target string
}

func (l *fakeSoftLink) Name() string   { return l.name }
func (l *fakeSoftLink) Path() string   { return l.path }
func (l *fakeSoftLink) Target() string { return l.target }

type fakeDataset struct {
	fakeAttrs
	name       string
	path       string
	shape      []uint64
	chunkShape []uint64
	dtype      hdf5src.DType
	layout     hdf5src.Layout
	filters    []hdf5src.Filter
	chunks     []hdf5src.Chunk
	contigOff  int64
	contigSize int64
	scalar     any
	compound   []map[string]any
}

func (d *fakeDataset) Name() string { return d.name }
func (d *fakeDataset) Path() string { return d.path }

func (d *fakeDataset) Shape() []uint64            { return d.shape }
func (d *fakeDataset) DType() (hdf5src.DType, error) { return d.dtype, nil }
func (d *fakeDataset) Layout() hdf5src.Layout      { return d.layout }
func (d *fakeDataset) ChunkShape() []uint64        { return d.chunkShape }
func (d *fakeDataset) Filters() ([]hdf5src.Filter, error) { return d.filters, nil }

func (d *fakeDataset) ContiguousRange(ctx context.Context) (int64, int64, error) {
	return d.contigOff, d.contigSize, nil
}

func (d *fakeDataset) Chunks(ctx context.Context, fn func(hdf5src.Chunk) error) error {
	for _, c := range d.chunks {
		if err := fn(c); err != nil {
			return err
		}
	}
	return nil
}

func (d *fakeDataset) ChunkCount(ctx context.Context) (int, error) {
	return len(d.chunks), nil
}

func (d *fakeDataset) ReadCompact(ctx context.Context) ([]byte, error) {
	return []byte("compact-bytes"), nil
}

func (d *fakeDataset) ReadScalar(ctx context.Context) (any, error) {
	return d.scalar, nil
}

func (d *fakeDataset) ReadCompoundRows(ctx context.Context) ([]map[string]any, error) {
	return d.compound, nil
}

type fakeReader struct {
	root      *fakeGroup
	sourceURL string
}

func (r *fakeReader) Root() hdf5src.Group { return r.root }
func (r *fakeReader) SourceURL() string   { return r.sourceURL }
func (r *fakeReader) Close() error        { return nil }

func TestTranslate_ChunkedDataset(t *testing.T) {
	root := &fakeGroup{fakeAttrs: fakeAttrs{}, path: ""}
	ds := &fakeDataset{
		fakeAttrs:  fakeAttrs{},
		name:       "data",
		path:       "data",
		shape:      []uint64{4, 4},
		chunkShape: []uint64{2, 2},
		dtype:      hdf5src.DType{ZarrDtype: "<f8"},
		layout:     hdf5src.LayoutChunked,
		chunks: []hdf5src.Chunk{
			{Index: []uint64{0, 0}, Offset: 100, Size: 32},
			{Index: []uint64{0, 1}, Offset: 200, Size: 32},
		},
	}
	root.children = []hdf5src.Object{ds}

	r := &fakeReader{root: root, sourceURL: "file:///data.h5"}
	out, err := Translate(context.Background(), r, Options{})
	require.NoError(t, err)

	require.Contains(t, out.Refs, ".zgroup")
	require.Contains(t, out.Refs, "data/.zarray")
	chunkRef, ok := out.Refs["data/0.0"]
	require.True(t, ok)
	require.Equal(t, "file:///data.h5", chunkRef.URL)
	require.EqualValues(t, 100, chunkRef.Offset)
	require.EqualValues(t, 32, chunkRef.Size)
}

func TestTranslate_ChunkLimitFallsBackToExternalLink(t *testing.T) {
	root := &fakeGroup{fakeAttrs: fakeAttrs{}, path: ""}
	ds := &fakeDataset{
		fakeAttrs:  fakeAttrs{},
		name:       "big",
		path:       "big",
		shape:      []uint64{100},
		chunkShape: []uint64{1},
		dtype:      hdf5src.DType{ZarrDtype: "<i4"},
		layout:     hdf5src.LayoutChunked,
		chunks: []hdf5src.Chunk{
			{Index: []uint64{0}, Offset: 0, Size: 4},
			{Index: []uint64{1}, Offset: 4, Size: 4},
		},
	}
	root.children = []hdf5src.Object{ds}

	r := &fakeReader{root: root, sourceURL: "file:///big.h5"}
	out, err := Translate(context.Background(), r, Options{MaxChunksInline: 1})
	require.NoError(t, err)

	require.NotContains(t, out.Refs, "big/0")
	attrsRaw, ok := out.Refs["big/.zattrs"]
	require.True(t, ok)
	var attrs map[string]any
	require.NoError(t, json.Unmarshal([]byte(attrsRaw.Inline), &attrs))
	link, ok := attrs["_EXTERNAL_ARRAY_LINK"].(map[string]any)
	require.True(t, ok)
	require.Equal(t, "hdf5_dataset", link["link_type"])
}

func TestTranslate_ScalarDataset(t *testing.T) {
	root := &fakeGroup{fakeAttrs: fakeAttrs{}, path: ""}
	ds := &fakeDataset{
		fakeAttrs: fakeAttrs{},
		name:      "scalar",
		path:      "scalar",
		shape:     nil,
		dtype:     hdf5src.DType{ZarrDtype: "<f8"},
		scalar:    3.5,
	}
	root.children = []hdf5src.Object{ds}

	r := &fakeReader{root: root, sourceURL: "file:///s.h5"}
	out, err := Translate(context.Background(), r, Options{})
	require.NoError(t, err)

	attrsRaw := out.Refs["scalar/.zattrs"]
	var attrs map[string]any
	require.NoError(t, json.Unmarshal([]byte(attrsRaw.Inline), &attrs))
	require.Equal(t, true, attrs["_SCALAR"])

	chunk := out.Refs["scalar/0"]
	require.Equal(t, "3.5", chunk.Inline)
}

func TestTranslate_SoftLink(t *testing.T) {
	root := &fakeGroup{fakeAttrs: fakeAttrs{}, path: ""}
	root.children = []hdf5src.Object{&fakeSoftLink{name: "alias", path: "alias", target: "/real/group"}}

	r := &fakeReader{root: root, sourceURL: "file:///x.h5"}
	out, err := Translate(context.Background(), r, Options{})
	require.NoError(t, err)

	attrsRaw, ok := out.Refs["alias/.zattrs"]
	require.True(t, ok)
	var attrs map[string]any
	require.NoError(t, json.Unmarshal([]byte(attrsRaw.Inline), &attrs))
	link, ok := attrs["_SOFT_LINK"].(map[string]any)
	require.True(t, ok)
	require.Equal(t, "/real/group", link["path"])
}

func TestTranslate_ObjectReferenceAttribute(t *testing.T) {
	root := &fakeGroup{
		fakeAttrs: fakeAttrs{
			"linked": hdf5src.ObjectRef{Path: "/other", SourceObjectID: "obj-1"},
		},
		path: "",
	}

	r := &fakeReader{root: root, sourceURL: "file:///x.h5"}
	out, err := Translate(context.Background(), r, Options{})
	require.NoError(t, err)

	var attrs map[string]any
	require.NoError(t, json.Unmarshal([]byte(out.Refs[".zattrs"].Inline), &attrs))
	ref, ok := attrs["linked"].(map[string]any)
	require.True(t, ok)
	inner := ref["_REFERENCE"].(map[string]any)
	require.Equal(t, "/other", inner["path"])
	require.Equal(t, "obj-1", inner["source_object_id"])
}
