// Package tarfs implements LINDI's random-access tar container (spec §4.2):
// a POSIX ustar archive whose first two members are a fixed 1024-byte
// .tar_entry.json pointer and a growable .tar_index.json member table,
// opened with exactly two range requests and mutated by growing members in
// place until they overflow their padded capacity, at which point the old
// header is tombstoned into ./trash/ and a fresh, larger member is appended.
package tarfs

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"sync"

	"k8s.io/klog/v2"
)

// Container is an open LINDI tar archive. A Container opened without a
// WriterAt is read-only; Grow on such a container returns ErrReadOnly.
type Container struct {
	ra io.ReaderAt
	wa io.WriterAt

	mu      sync.RWMutex
	end     int64 // offset of the terminating two zero blocks
	members map[string]MemberEntry
	dirty   bool
	seq     int
}

// Open discovers a LINDI tar container's member table using exactly two
// range reads: the fixed first 1024 bytes (header + data of
// .tar_entry.json), then the byte range of .tar_index.json it points to
// (spec §4.2 "opening a container performs exactly two range requests").
// size is the container's total current length, used to seed the append
// offset for future growth; it is not re-derived from the archive itself.
func Open(ctx context.Context, ra io.ReaderAt, size int64, wa io.WriterAt) (*Container, error) {
	if size < 1024 {
		return nil, fmt.Errorf("lindi: %w: container shorter than the fixed entry member", ErrBadHeader)
	}

	first := make([]byte, 1024)
	if _, err := ra.ReadAt(first, 0); err != nil {
		return nil, fmt.Errorf("lindi: reading entry member: %w", err)
	}
	var headerBlock [BlockSize]byte
	copy(headerBlock[:], first[:BlockSize])
	hdr, err := decodeHeader(headerBlock)
	if err != nil {
		return nil, err
	}
	if hdr.Name != entryMemberName {
		return nil, fmt.Errorf("lindi: %w: first member is %q, want %q", ErrBadHeader, hdr.Name, entryMemberName)
	}

	entryData := trimPadding(first[BlockSize:1024])
	var entry tarEntryDoc
	if err := json.Unmarshal(entryData, &entry); err != nil {
		return nil, fmt.Errorf("lindi: %w: decoding .tar_entry.json: %v", ErrBadHeader, err)
	}
	idx := entry.IndexMember
	if idx.HeaderOffset < 2*BlockSize {
		return nil, fmt.Errorf("lindi: %w: .tar_index.json must follow the entry member", ErrBadHeader)
	}

	indexRaw := make([]byte, idx.PaddedCapacity)
	if _, err := ra.ReadAt(indexRaw, idx.DataOffset); err != nil {
		return nil, fmt.Errorf("lindi: reading index member: %w", err)
	}
	var doc tarIndexDoc
	if err := json.Unmarshal(trimPadding(indexRaw[:idx.DataSize]), &doc); err != nil {
		return nil, fmt.Errorf("lindi: %w: decoding .tar_index.json: %v", ErrBadHeader, err)
	}
	if doc.Members == nil {
		doc.Members = map[string]MemberEntry{}
	}
	doc.Members[entryMemberName] = MemberEntry{HeaderOffset: 0, DataOffset: BlockSize, DataSize: int64(len(entryData)), PaddedCapacity: BlockSize, Growable: false}
	doc.Members[indexMemberName] = idx

	return &Container{
		ra:      ra,
		wa:      wa,
		end:     size - 1024,
		members: doc.Members,
	}, nil
}

// Index returns a snapshot of the live member table (tombstoned members are
// never included; spec §4.2 "a tombstoned member... never reappears").
func (c *Container) Index() map[string]MemberEntry {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make(map[string]MemberEntry, len(c.members))
	for k, v := range c.members {
		out[k] = v
	}
	return out
}

// ReadMember reads n bytes at offset off within a named member's data
// region.
func (c *Container) ReadMember(ctx context.Context, name string, off, n int64) ([]byte, error) {
	c.mu.RLock()
	m, ok := c.members[name]
	c.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("lindi: %w: %s", ErrMemberNotFound, name)
	}
	if off < 0 || off+n > m.DataSize {
		return nil, fmt.Errorf("lindi: %w: member %s data size %d, requested [%d,%d)", ErrOutOfBounds, name, m.DataSize, off, off+n)
	}
	buf := make([]byte, n)
	if _, err := c.ra.ReadAt(buf, m.DataOffset+off); err != nil {
		return nil, fmt.Errorf("lindi: reading member %s: %w", name, err)
	}
	return buf, nil
}

// ReadAbsolute resolves a self-referential ref's [offset, offset+size) range
// against the live member table: the range must fall entirely within one
// member's declared data region (spec §4.6 integrity requirement; no
// self-referential read may straddle a tombstoned or foreign byte range).
func (c *Container) ReadAbsolute(ctx context.Context, offset, size int64) ([]byte, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, m := range c.members {
		if offset >= m.DataOffset && offset+size <= m.DataOffset+m.DataSize {
			buf := make([]byte, size)
			if _, err := c.ra.ReadAt(buf, offset); err != nil {
				return nil, fmt.Errorf("lindi: reading absolute range: %w", err)
			}
			return buf, nil
		}
	}
	return nil, fmt.Errorf("lindi: %w: [%d,%d)", ErrOutOfBounds, offset, offset+size)
}

// Grow replaces a growable member's data with newData, growing it in place
// when it still fits the member's padded capacity, and otherwise tombstoning
// the old header and appending a fresh, larger member at the end of the
// archive (spec §4.2 "growing a member"). The member table update is
// persisted last, after the member bytes themselves; if it fails the
// container is marked dirty rather than rolled back, and Dirty reports
// true from then on.
func (c *Container) Grow(ctx context.Context, name string, newData []byte) error {
	if c.wa == nil {
		return ErrReadOnly
	}
	if name == indexMemberName || name == entryMemberName {
		return fmt.Errorf("lindi: %w: %s is maintained internally", ErrNotGrowable, name)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.growMemberLocked(ctx, name, newData); err != nil {
		return err
	}
	return c.persistIndexLocked(ctx)
}

// AddMember appends a brand-new member; growable marks it as growable and
// gives it extra padded capacity (used by Create for the manifest and by
// staging finalize when writing chunk payloads directly into the container
// rather than leaving them as external refs).
func (c *Container) AddMember(ctx context.Context, name string, data []byte, growable bool) error {
	if c.wa == nil {
		return ErrReadOnly
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.members[name]; exists {
		return fmt.Errorf("lindi: member %s already exists", name)
	}
	cap := padded(int64(len(data)))
	if growable {
		cap = padded(int64(len(data))*2 + BlockSize)
	}
	if err := c.appendMemberLocked(name, data, cap); err != nil {
		return err
	}
	if !growable {
		m := c.members[name]
		m.Growable = false
		c.members[name] = m
	}
	return c.persistIndexLocked(ctx)
}

func (c *Container) growMemberLocked(ctx context.Context, name string, newData []byte) error {
	m, ok := c.members[name]
	if !ok {
		return fmt.Errorf("lindi: %w: %s", ErrMemberNotFound, name)
	}
	if !m.Growable && name != indexMemberName && name != entryMemberName {
		return fmt.Errorf("lindi: %w: %s", ErrNotGrowable, name)
	}

	if int64(len(newData)) <= m.PaddedCapacity {
		if err := c.writeDataInPlace(m.DataOffset, newData, m.PaddedCapacity); err != nil {
			return err
		}
		m.DataSize = int64(len(newData))
		c.members[name] = m
		metricGrowsTotal.Inc()
		return nil
	}

	// Overflow: tombstone the old header, append a fresh larger member.
	metricOverflowsTotal.Inc()
	tombName := fmt.Sprintf("%s%s.%d", TrashPrefix, name, c.seq)
	c.seq++
	if err := c.tombstoneLocked(m.HeaderOffset, tombName); err != nil {
		return err
	}
	newCap := padded(int64(len(newData))*2 + BlockSize)
	klog.V(2).Infof("lindi: tarfs: %s overflowed capacity %d, reappending with capacity %d", name, m.PaddedCapacity, newCap)
	return c.appendMemberLocked(name, newData, newCap)
}

// persistIndexLocked serializes the member table and grows .tar_index.json
// with it. If the index itself overflows and moves, .tar_entry.json's
// pointer is rewritten to match — the one piece of bookkeeping that must
// always happen last, since it is the sole root of discovery on reopen.
func (c *Container) persistIndexLocked(ctx context.Context) error {
	live := make(map[string]MemberEntry, len(c.members))
	for k, v := range c.members {
		if k == entryMemberName || k == indexMemberName {
			continue
		}
		live[k] = v
	}
	data, err := marshalIndexDeterministic(live)
	if err != nil {
		return err
	}

	before := c.members[indexMemberName]
	if err := c.growMemberLocked(ctx, indexMemberName, data); err != nil {
		c.dirty = true
		return fmt.Errorf("lindi: persisting tar index: %w", err)
	}
	after := c.members[indexMemberName]

	if after != before {
		entryData, err := json.Marshal(tarEntryDoc{IndexMember: after})
		if err != nil {
			return err
		}
		if err := c.writeDataInPlace(BlockSize, entryData, BlockSize); err != nil {
			c.dirty = true
			return fmt.Errorf("lindi: updating tar entry pointer: %w", err)
		}
		c.members[entryMemberName] = MemberEntry{HeaderOffset: 0, DataOffset: BlockSize, DataSize: int64(len(entryData)), PaddedCapacity: BlockSize, Growable: false}
	}
	return nil
}

func marshalIndexDeterministic(members map[string]MemberEntry) ([]byte, error) {
	names := make([]string, 0, len(members))
	for k := range members {
		names = append(names, k)
	}
	sort.Strings(names)
	ordered := make(map[string]MemberEntry, len(members))
	for _, n := range names {
		ordered[n] = members[n]
	}
	return json.Marshal(tarIndexDoc{Members: ordered})
}

func (c *Container) writeDataInPlace(offset int64, data []byte, capacity int64) error {
	if int64(len(data)) > capacity {
		return fmt.Errorf("lindi: internal error: %d bytes exceed capacity %d at offset %d", len(data), capacity, offset)
	}
	block := make([]byte, capacity)
	copy(block, data)
	for i := len(data); i < len(block); i++ {
		block[i] = ' '
	}
	_, err := c.wa.WriteAt(block, offset)
	return err
}

func (c *Container) tombstoneLocked(headerOffset int64, newName string) error {
	buf := make([]byte, BlockSize)
	if _, err := c.ra.ReadAt(buf, headerOffset); err != nil {
		return fmt.Errorf("lindi: reading header to tombstone: %w", err)
	}
	var block [BlockSize]byte
	copy(block[:], buf)
	if err := patchName(&block, newName); err != nil {
		return err
	}
	_, err := c.wa.WriteAt(block[:], headerOffset)
	return err
}

func (c *Container) appendMemberLocked(name string, data []byte, capacity int64) error {
	headerOffset := c.end
	dataOffset := headerOffset + BlockSize

	block, err := encodeHeader(ustarHeader{Name: name, Size: int64(len(data))})
	if err != nil {
		return err
	}
	if _, err := c.wa.WriteAt(block[:], headerOffset); err != nil {
		return err
	}
	if err := c.writeDataInPlace(dataOffset, data, capacity); err != nil {
		return err
	}

	newEnd := dataOffset + capacity
	terminator := make([]byte, BlockSize*2)
	if _, err := c.wa.WriteAt(terminator, newEnd); err != nil {
		return err
	}

	c.members[name] = MemberEntry{
		HeaderOffset:   headerOffset,
		DataOffset:     dataOffset,
		DataSize:       int64(len(data)),
		PaddedCapacity: capacity,
		Growable:       true,
	}
	c.end = newEnd
	return nil
}

// Dirty reports whether a prior Grow left the archive's index unpersisted
// after a partial write. A dirty container must not be trusted for further
// writes.
func (c *Container) Dirty() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.dirty
}

func trimPadding(b []byte) []byte {
	i := len(b)
	for i > 0 && (b[i-1] == ' ' || b[i-1] == 0) {
		i--
	}
	return b[:i]
}
