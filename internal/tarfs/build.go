package tarfs

import (
	"context"
)

// Create initializes a brand-new LINDI tar container on wa: the fixed
// .tar_entry.json, an empty .tar_index.json, and a growable lindi.json seeded
// with manifest (spec §4.2 rule 3, §6 "finalizing a staging area"). rw is
// both read and written by the returned Container; callers typically pass
// an *os.File opened for read-write.
func Create(ctx context.Context, rw ReadWriterAt, manifest []byte) (*Container, error) {
	c := &Container{
		ra:      rw,
		wa:      rw,
		members: map[string]MemberEntry{},
	}

	entryBlock, err := encodeHeader(ustarHeader{Name: entryMemberName, Size: 0})
	if err != nil {
		return nil, err
	}
	if _, err := c.wa.WriteAt(entryBlock[:], 0); err != nil {
		return nil, err
	}
	// Reserve the fixed 1024-byte window; the data half is filled in once
	// the index's real location is known, via persistIndexLocked below.
	c.members[entryMemberName] = MemberEntry{HeaderOffset: 0, DataOffset: BlockSize, DataSize: 0, PaddedCapacity: BlockSize, Growable: false}
	c.end = 1024

	indexBlock, err := encodeHeader(ustarHeader{Name: indexMemberName, Size: 0})
	if err != nil {
		return nil, err
	}
	if _, err := c.wa.WriteAt(indexBlock[:], c.end); err != nil {
		return nil, err
	}
	const initialIndexCapacity = BlockSize * 4
	c.members[indexMemberName] = MemberEntry{HeaderOffset: c.end, DataOffset: c.end + BlockSize, DataSize: 0, PaddedCapacity: initialIndexCapacity, Growable: true}
	c.end += BlockSize + initialIndexCapacity

	terminator := make([]byte, BlockSize*2)
	if _, err := c.wa.WriteAt(terminator, c.end); err != nil {
		return nil, err
	}

	if err := c.AddMember(ctx, ManifestMemberName, manifest, true); err != nil {
		return nil, err
	}
	return c, nil
}

// ReadWriterAt is satisfied by *os.File and is what Create needs to lay
// down a fresh container.
type ReadWriterAt interface {
	ReadAt(p []byte, off int64) (int, error)
	WriteAt(p []byte, off int64) (int, error)
}
