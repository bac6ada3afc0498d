package hdf5translate

import "github.com/NeurodataWithoutBorders/lindi/internal/hdf5translate/hdf5src"

// zarrCodec mirrors a Zarr v2 numcodecs codec id plus its configuration, as
// it appears in a .zarray's "filters"/"compressor" entries.
type zarrCodec struct {
	ID     string         `json:"id"`
	Params map[string]any `json:"-"`
}

// translateFilter maps one HDF5 filter pipeline stage to the equivalent
// Zarr/numcodecs codec name (spec §4.3 "Codec selection"). Filters this
// table doesn't recognize make the dataset fall back to
// _EXTERNAL_ARRAY_LINK rather than emitting an inline reference the reader
// couldn't decode.
func translateFilter(f hdf5src.Filter) (zarrCodec, bool) {
	switch f.Name {
	case "deflate", "gzip":
		level := 4
		if len(f.Parameters) > 0 {
			level = int(f.Parameters[0])
		}
		return zarrCodec{ID: "zlib", Params: map[string]any{"level": level}}, true
	case "shuffle":
		elementSize := 4
		if len(f.Parameters) > 0 {
			elementSize = int(f.Parameters[0])
		}
		return zarrCodec{ID: "shuffle", Params: map[string]any{"elementsize": elementSize}}, true
	case "fletcher32":
		return zarrCodec{ID: "fletcher32"}, true
	case "szip":
		// SZIP is patent-encumbered and not in any common Zarr codec
		// registry; never translate it.
		return zarrCodec{}, false
	default:
		return zarrCodec{}, false
	}
}

// codecPipelineJSON renders a filter pipeline into the "filters"/compressor
// shape a .zarray expects: the last recognized filter becomes the
// compressor, everything before it becomes a pre-compression filter.
// allRecognized is false if any filter in the pipeline had no Zarr
// counterpart, signaling the caller to fall back to _EXTERNAL_ARRAY_LINK.
func codecPipelineJSON(filters []hdf5src.Filter) (compressor any, preFilters []any, allRecognized bool) {
	allRecognized = true
	for i, f := range filters {
		codec, ok := translateFilter(f)
		if !ok {
			allRecognized = false
			continue
		}
		entry := map[string]any{"id": codec.ID}
		for k, v := range codec.Params {
			entry[k] = v
		}
		if i == len(filters)-1 {
			compressor = entry
		} else {
			preFilters = append(preFilters, entry)
		}
	}
	return compressor, preFilters, allRecognized
}
