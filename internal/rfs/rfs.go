package rfs

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// CurrentVersion is the schema version LINDI writes. Readers must accept
// older versions too; there is only one version defined so far.
const CurrentVersion = 0

// SelfReferencePrefixes are the reserved URL forms that mean "bytes inside
// the enclosing LINDI container" (spec §3).
var SelfReferencePrefixes = []string{"./", ""}

// RefKind distinguishes the three shapes a ref can take in JSON.
type RefKind int

const (
	RefInline RefKind = iota
	RefInlineBase64
	RefExternal
)

// Ref is one value in the refs map: either inline bytes (as a UTF-8 string),
// inline base64 bytes (tiny binaries), or an external (url, offset, size)
// triple. Exactly one of the fields is meaningful, selected by Kind.
type Ref struct {
	Kind RefKind

	// RefInline
	Inline string

	// RefInlineBase64
	Base64 []byte

	// RefExternal
	URL    string
	Offset int64
	Size   int64
}

// IsSelfReferential reports whether an external ref's URL is the reserved
// "this archive" marker.
func (r Ref) IsSelfReferential() bool {
	if r.Kind != RefExternal {
		return false
	}
	for _, p := range SelfReferencePrefixes {
		if r.URL == p {
			return true
		}
	}
	return false
}

// Bytes returns the decoded bytes for an inline ref (RefInline or
// RefInlineBase64). It is an error to call this on a RefExternal ref.
func (r Ref) Bytes() ([]byte, error) {
	switch r.Kind {
	case RefInline:
		return []byte(r.Inline), nil
	case RefInlineBase64:
		return r.Base64, nil
	default:
		return nil, fmt.Errorf("%w: ref is external, not inline", ErrCorruptReference)
	}
}

// NewInline builds an inline string ref (used for .zgroup/.zarray/.zattrs).
func NewInline(s string) Ref { return Ref{Kind: RefInline, Inline: s} }

// NewInlineBytes builds an inline base64 ref (used for tiny binary values).
func NewInlineBytes(b []byte) Ref { return Ref{Kind: RefInlineBase64, Base64: b} }

// NewExternal builds an external (url, offset, size) ref.
func NewExternal(url string, offset, size int64) Ref {
	return Ref{Kind: RefExternal, URL: url, Offset: offset, Size: size}
}

// Validate checks the per-ref invariants of spec §3: offset >= 0, size > 0.
func (r Ref) Validate() error {
	if r.Kind != RefExternal {
		return nil
	}
	if r.Offset < 0 {
		return fmt.Errorf("%w: negative offset %d", ErrCorruptReference, r.Offset)
	}
	if r.Size <= 0 {
		return fmt.Errorf("%w: non-positive size %d", ErrCorruptReference, r.Size)
	}
	return nil
}

// MarshalJSON emits the three shapes from spec §3: a bare string, a
// one-element array, or a three-element array.
func (r Ref) MarshalJSON() ([]byte, error) {
	switch r.Kind {
	case RefInline:
		return json.Marshal(r.Inline)
	case RefInlineBase64:
		return json.Marshal([]string{base64.StdEncoding.EncodeToString(r.Base64)})
	case RefExternal:
		return json.Marshal([]any{r.URL, r.Offset, r.Size})
	default:
		return nil, fmt.Errorf("lindi: unknown ref kind %d", r.Kind)
	}
}

// UnmarshalJSON parses whichever of the three shapes is present, dispatching
// on the raw JSON token (string vs array) rather than trying types in order,
// so that malformed input is rejected instead of silently misparsed.
func (r *Ref) UnmarshalJSON(data []byte) error {
	trimmed := strings.TrimSpace(string(data))
	if len(trimmed) == 0 {
		return fmt.Errorf("%w: empty ref", ErrCorruptReference)
	}

	if trimmed[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return fmt.Errorf("%w: %v", ErrCorruptReference, err)
		}
		*r = NewInline(s)
		return nil
	}

	if trimmed[0] != '[' {
		return fmt.Errorf("%w: ref must be a string or array, got %q", ErrCorruptReference, trimmed)
	}

	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("%w: %v", ErrCorruptReference, err)
	}

	switch len(raw) {
	case 1:
		var b64 string
		if err := json.Unmarshal(raw[0], &b64); err != nil {
			return fmt.Errorf("%w: base64 element: %v", ErrCorruptReference, err)
		}
		decoded, err := base64.StdEncoding.DecodeString(b64)
		if err != nil {
			return fmt.Errorf("%w: invalid base64: %v", ErrCorruptReference, err)
		}
		*r = NewInlineBytes(decoded)
		return nil
	case 3:
		var url string
		var offset, size int64
		if err := json.Unmarshal(raw[0], &url); err != nil {
			return fmt.Errorf("%w: url element: %v", ErrCorruptReference, err)
		}
		if err := json.Unmarshal(raw[1], &offset); err != nil {
			return fmt.Errorf("%w: offset element: %v", ErrCorruptReference, err)
		}
		if err := json.Unmarshal(raw[2], &size); err != nil {
			return fmt.Errorf("%w: size element: %v", ErrCorruptReference, err)
		}
		ref := NewExternal(url, offset, size)
		if err := ref.Validate(); err != nil {
			return err
		}
		*r = ref
		return nil
	default:
		return fmt.Errorf("%w: ref array must have 1 or 3 elements, got %d", ErrCorruptReference, len(raw))
	}
}

// RFS is the top-level reference file system document (spec §3).
type RFS struct {
	Version int
	Refs    map[string]Ref
}

// New returns an empty, writable RFS at CurrentVersion.
func New() *RFS {
	return &RFS{Version: CurrentVersion, Refs: make(map[string]Ref)}
}

type rfsWire struct {
	Version int             `json:"version"`
	Refs    map[string]Ref  `json:"refs"`
}

// MarshalJSON serializes keys in lexicographic order (spec §9: "mapping
// iteration order... emit keys in lexicographic order when serializing an
// RFS") so that translator output and round-trips are byte-identical.
func (r *RFS) MarshalJSON() ([]byte, error) {
	keys := make([]string, 0, len(r.Refs))
	for k := range r.Refs {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	b.WriteString(fmt.Sprintf(`{"version":%d,"refs":{`, r.Version))
	for i, k := range keys {
		if i > 0 {
			b.WriteByte(',')
		}
		kb, err := json.Marshal(k)
		if err != nil {
			return nil, err
		}
		vb, err := json.Marshal(r.Refs[k])
		if err != nil {
			return nil, fmt.Errorf("lindi: marshaling ref %q: %w", k, err)
		}
		b.Write(kb)
		b.WriteByte(':')
		b.Write(vb)
	}
	b.WriteString("}}")
	return []byte(b.String()), nil
}

// UnmarshalJSON parses an RFS document (spec §3, §6 "RFS JSON").
func (r *RFS) UnmarshalJSON(data []byte) error {
	var wire rfsWire
	if err := json.Unmarshal(data, &wire); err != nil {
		return fmt.Errorf("%w: %v", ErrCorruptReference, err)
	}
	r.Version = wire.Version
	r.Refs = wire.Refs
	if r.Refs == nil {
		r.Refs = make(map[string]Ref)
	}
	return nil
}

// Clone makes a deep-enough copy for staging/finalization to rewrite safely
// without mutating the caller's RFS.
func (r *RFS) Clone() *RFS {
	out := &RFS{Version: r.Version, Refs: make(map[string]Ref, len(r.Refs))}
	for k, v := range r.Refs {
		out.Refs[k] = v
	}
	return out
}
