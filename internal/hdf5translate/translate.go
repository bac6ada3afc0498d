// Package hdf5translate walks an already-open HDF5 file (via the hdf5src
// collaborator interface) and produces an RFS whose metadata mirrors the
// HDF5 structure under Zarr v2 conventions, and whose chunk references
// point back at the original file (spec §4.3).
package hdf5translate

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"

	"k8s.io/klog/v2"

	"github.com/NeurodataWithoutBorders/lindi/internal/hdf5translate/hdf5src"
	"github.com/NeurodataWithoutBorders/lindi/internal/rfs"
	"github.com/NeurodataWithoutBorders/lindi/internal/zarrkeys"
)

// Options configures a single translation run.
type Options struct {
	// MaxChunksInline bounds how many chunk references a dataset may emit
	// inline before the translator falls back to _EXTERNAL_ARRAY_LINK
	// (spec §9 "large-scale chunk listings" escape hatch). Zero or a
	// negative value selects the default of 1,000,000 chunks.
	MaxChunksInline int
}

const defaultMaxChunksInline = 1_000_000

// Translate walks r's object tree depth-first, children sorted
// lexicographically (spec §4.3 "Determinism"), and returns the resulting
// RFS. Unsupported constructs degrade gracefully: the affected object is
// elided with a logged warning, or its dataset falls back to
// _EXTERNAL_ARRAY_LINK, and translation continues (spec §4.3 "Error
// handling").
func Translate(ctx context.Context, r hdf5src.Reader, opts Options) (*rfs.RFS, error) {
	if opts.MaxChunksInline <= 0 {
		opts.MaxChunksInline = defaultMaxChunksInline
	}
	out := rfs.New()
	t := &translator{r: r, opts: opts, out: out}
	if err := t.walkGroup(ctx, r.Root(), ""); err != nil {
		return nil, err
	}
	return out, nil
}

type translator struct {
	r    hdf5src.Reader
	opts Options
	out  *rfs.RFS
}

func (t *translator) walkGroup(ctx context.Context, g hdf5src.Group, path string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	attrs, err := t.buildAttrs(ctx, g)
	if err != nil {
		return fmt.Errorf("lindi: reading attributes of group %q: %w", path, err)
	}
	if err := t.putJSON(zarrkeys.Join(path, zarrkeys.GroupMeta), map[string]any{"zarr_format": 2}); err != nil {
		return err
	}
	if err := t.putJSON(zarrkeys.Join(path, zarrkeys.AttrsMeta), attrs); err != nil {
		return err
	}

	children := append([]hdf5src.Object(nil), g.Children()...)
	sort.Slice(children, func(i, j int) bool { return children[i].Name() < children[j].Name() })

	for _, child := range children {
		childPath := zarrkeys.Join(path, child.Name())
		switch obj := child.(type) {
		case hdf5src.Group:
			if err := t.walkGroup(ctx, obj, childPath); err != nil {
				return err
			}
		case hdf5src.SoftLink:
			if err := t.writeSoftLink(ctx, obj, childPath); err != nil {
				return err
			}
		case hdf5src.Dataset:
			if err := t.writeDataset(ctx, obj, childPath); err != nil {
				klog.Warningf("lindi: eliding dataset %q: %v", childPath, err)
				continue
			}
		default:
			klog.Warningf("lindi: eliding unrecognized object %q of type %T", childPath, child)
		}
	}
	return nil
}

func (t *translator) writeSoftLink(ctx context.Context, link hdf5src.SoftLink, path string) error {
	if err := t.putJSON(zarrkeys.Join(path, zarrkeys.GroupMeta), map[string]any{"zarr_format": 2}); err != nil {
		return err
	}
	attrs := map[string]any{"_SOFT_LINK": map[string]any{"path": link.Target()}}
	return t.putJSON(zarrkeys.Join(path, zarrkeys.AttrsMeta), attrs)
}

func (t *translator) writeDataset(ctx context.Context, ds hdf5src.Dataset, path string) error {
	attrs, err := t.buildAttrs(ctx, ds)
	if err != nil {
		return fmt.Errorf("reading attributes: %w", err)
	}

	dtype, err := ds.DType()
	if err != nil {
		return fmt.Errorf("reading dtype: %w", err)
	}

	if len(dtype.Compound) > 0 {
		return t.writeCompoundDataset(ctx, ds, path, attrs)
	}

	shape := toInts(ds.Shape())
	if len(shape) == 0 {
		return t.writeScalarDataset(ctx, ds, path, attrs, dtype)
	}

	switch ds.Layout() {
	case hdf5src.LayoutChunked:
		return t.writeChunkedDataset(ctx, ds, path, attrs, dtype, shape)
	case hdf5src.LayoutContiguous:
		return t.writeContiguousDataset(ctx, ds, path, attrs, dtype, shape)
	case hdf5src.LayoutCompact:
		return t.writeCompactDataset(ctx, ds, path, attrs, dtype, shape)
	default:
		return fmt.Errorf("unsupported layout %v", ds.Layout())
	}
}

func (t *translator) writeChunkedDataset(ctx context.Context, ds hdf5src.Dataset, path string, attrs map[string]any, dtype hdf5src.DType, shape []int64) error {
	count, err := ds.ChunkCount(ctx)
	if err != nil {
		return fmt.Errorf("counting chunks: %w", err)
	}
	if count > t.opts.MaxChunksInline {
		klog.Infof("lindi: dataset %q has %d chunks (limit %d); falling back to _EXTERNAL_ARRAY_LINK", path, count, t.opts.MaxChunksInline)
		return t.writeExternalLinkDataset(ds, path, attrs, dtype, shape, nil)
	}

	chunkShape := toInts(ds.ChunkShape())
	filters, err := ds.Filters()
	if err != nil {
		return fmt.Errorf("reading filters: %w", err)
	}
	compressor, preFilters, recognized := codecPipelineJSON(filters)
	if !recognized {
		klog.Infof("lindi: dataset %q has an unrecognized filter in its pipeline; falling back to _EXTERNAL_ARRAY_LINK", path)
		return t.writeExternalLinkDataset(ds, path, attrs, dtype, shape, nil)
	}

	if err := t.putZarray(path, shape, chunkShape, dtype.ZarrDtype, compressor, preFilters); err != nil {
		return err
	}

	grid, err := zarrkeys.ChunkGridShape(shape, chunkShape)
	if err != nil {
		return fmt.Errorf("computing chunk grid: %w", err)
	}

	var walkErr error
	err = ds.Chunks(ctx, func(c hdf5src.Chunk) error {
		indices := toIntIndices(c.Index)
		if !zarrkeys.IndicesWithinGrid(indices, grid) {
			return fmt.Errorf("chunk index %v outside declared grid %v", indices, grid)
		}
		key := zarrkeys.ChunkKey(path, indices)
		t.out.Refs[key] = rfs.NewExternal(t.r.SourceURL(), c.Offset, c.Size)
		return nil
	})
	if err != nil {
		walkErr = fmt.Errorf("iterating chunks: %w", err)
	}
	if walkErr != nil {
		return walkErr
	}
	return t.putJSON(zarrkeys.Join(path, zarrkeys.AttrsMeta), attrs)
}

func (t *translator) writeContiguousDataset(ctx context.Context, ds hdf5src.Dataset, path string, attrs map[string]any, dtype hdf5src.DType, shape []int64) error {
	offset, size, err := ds.ContiguousRange(ctx)
	if err != nil {
		return fmt.Errorf("reading contiguous range: %w", err)
	}
	if err := t.putZarray(path, shape, shape, dtype.ZarrDtype, nil, nil); err != nil {
		return err
	}
	key := zarrkeys.ChunkKey(path, zeros(len(shape)))
	t.out.Refs[key] = rfs.NewExternal(t.r.SourceURL(), offset, size)
	return t.putJSON(zarrkeys.Join(path, zarrkeys.AttrsMeta), attrs)
}

func (t *translator) writeCompactDataset(ctx context.Context, ds hdf5src.Dataset, path string, attrs map[string]any, dtype hdf5src.DType, shape []int64) error {
	data, err := ds.ReadCompact(ctx)
	if err != nil {
		return fmt.Errorf("reading compact data: %w", err)
	}
	if err := t.putZarray(path, shape, shape, dtype.ZarrDtype, nil, nil); err != nil {
		return err
	}
	key := zarrkeys.ChunkKey(path, zeros(len(shape)))
	t.out.Refs[key] = rfs.NewInlineBytes(data)
	return t.putJSON(zarrkeys.Join(path, zarrkeys.AttrsMeta), attrs)
}

func (t *translator) writeScalarDataset(ctx context.Context, ds hdf5src.Dataset, path string, attrs map[string]any, dtype hdf5src.DType) error {
	value, err := ds.ReadScalar(ctx)
	if err != nil {
		return fmt.Errorf("reading scalar value: %w", err)
	}
	attrs["_SCALAR"] = true
	if err := t.putZarray(path, []int64{1}, []int64{1}, dtype.ZarrDtype, nil, nil); err != nil {
		return err
	}
	encoded, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("encoding scalar value: %w", err)
	}
	t.out.Refs[zarrkeys.ChunkKey(path, []int{0})] = rfs.NewInline(string(encoded))
	return t.putJSON(zarrkeys.Join(path, zarrkeys.AttrsMeta), attrs)
}

func (t *translator) writeCompoundDataset(ctx context.Context, ds hdf5src.Dataset, path string, attrs map[string]any) error {
	dtype, err := ds.DType()
	if err != nil {
		return err
	}
	rows, err := ds.ReadCompoundRows(ctx)
	if err != nil {
		return fmt.Errorf("reading compound rows: %w", err)
	}
	fields := make([][2]string, len(dtype.Compound))
	for i, name := range dtype.Compound {
		fields[i] = [2]string{name, "object"}
	}
	attrs["_COMPOUND_DTYPE"] = fields

	if err := t.putZarray(path, []int64{int64(len(rows))}, []int64{int64(len(rows))}, "|O", nil, nil); err != nil {
		return err
	}
	encoded, err := json.Marshal(rows)
	if err != nil {
		return fmt.Errorf("encoding compound rows: %w", err)
	}
	t.out.Refs[zarrkeys.ChunkKey(path, []int{0})] = rfs.NewInlineBytes(encoded)
	return t.putJSON(zarrkeys.Join(path, zarrkeys.AttrsMeta), attrs)
}

func (t *translator) writeExternalLinkDataset(ds hdf5src.Dataset, path string, attrs map[string]any, dtype hdf5src.DType, shape []int64, _ []hdf5src.Filter) error {
	if err := t.putZarray(path, shape, shape, dtype.ZarrDtype, nil, nil); err != nil {
		return err
	}
	attrs["_EXTERNAL_ARRAY_LINK"] = map[string]any{
		"link_type": "hdf5_dataset",
		"url":       t.r.SourceURL(),
		"name":      path,
	}
	return t.putJSON(zarrkeys.Join(path, zarrkeys.AttrsMeta), attrs)
}

func (t *translator) buildAttrs(ctx context.Context, obj hdf5src.Attributes) (map[string]any, error) {
	names, err := obj.ListAttributes(ctx)
	if err != nil {
		return nil, err
	}
	sort.Strings(names)
	out := make(map[string]any, len(names))
	for _, name := range names {
		v, err := obj.ReadAttribute(ctx, name)
		if err != nil {
			klog.Warningf("lindi: eliding attribute %q: %v", name, err)
			continue
		}
		out[name] = convertAttrValue(v)
	}
	return out, nil
}

func convertAttrValue(v any) any {
	switch val := v.(type) {
	case hdf5src.ObjectRef:
		return map[string]any{
			"_REFERENCE": map[string]any{
				"source":           ".",
				"path":             val.Path,
				"object_id":        val.Path,
				"source_object_id": val.SourceObjectID,
			},
		}
	case []hdf5src.ObjectRef:
		refs := make([]any, len(val))
		for i, r := range val {
			refs[i] = convertAttrValue(r)
		}
		return refs
	default:
		return val
	}
}

func (t *translator) putJSON(key string, v any) error {
	encoded, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("lindi: encoding %q: %w", key, err)
	}
	t.out.Refs[key] = rfs.NewInline(string(encoded))
	return nil
}

func (t *translator) putZarray(path string, shape, chunks []int64, dtype string, compressor any, filters []any) error {
	doc := map[string]any{
		"zarr_format": 2,
		"shape":       shape,
		"chunks":      chunks,
		"dtype":       dtype,
		"order":       "C",
		"fill_value":  nil,
		"compressor":  compressor,
		"filters":     filters,
	}
	return t.putJSON(zarrkeys.Join(path, zarrkeys.ArrayMeta), doc)
}

func toInts(u []uint64) []int64 {
	out := make([]int64, len(u))
	for i, v := range u {
		out[i] = int64(v)
	}
	return out
}

func toIntIndices(u []uint64) []int {
	out := make([]int, len(u))
	for i, v := range u {
		out[i] = int(v)
	}
	return out
}

func zeros(n int) []int {
	return make([]int, n)
}
