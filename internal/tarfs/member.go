package tarfs

// MemberEntry describes one live member of a LINDI tar container: its
// header and data byte ranges, and — for growable members — the
// whitespace-padded capacity available before an edit must overflow
// (spec §3 "Tar member table").
type MemberEntry struct {
	HeaderOffset   int64 `json:"header_offset"`
	DataOffset     int64 `json:"data_offset"`
	DataSize       int64 `json:"data_size"`
	PaddedCapacity int64 `json:"padded_capacity"`
	Growable       bool  `json:"growable"`
}

// DataRange returns the member's data region, clipped to its declared size
// (not its padded capacity).
func (m MemberEntry) DataRange() (offset, size int64) {
	return m.DataOffset, m.DataSize
}

const (
	entryMemberName = ".tar_entry.json"
	indexMemberName = ".tar_index.json"
	// ManifestMemberName is the canonical RFS manifest member (spec §4.2
	// rule 3: "lindi.json is present as a growable member").
	ManifestMemberName = "lindi.json"

	// TrashPrefix is where tombstoned members' headers are renamed to.
	TrashPrefix = "./trash/"
)

type tarEntryDoc struct {
	IndexMember MemberEntry `json:"index_member"`
}

type tarIndexDoc struct {
	Members map[string]MemberEntry `json:"members"`
}
