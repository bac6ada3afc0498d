package tarfs

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func openFresh(t *testing.T, manifest []byte) (*Container, *os.File) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "container.lindi.tar")
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644)
	require.NoError(t, err)
	c, err := Create(context.Background(), f, manifest)
	require.NoError(t, err)
	return c, f
}

func reopen(t *testing.T, f *os.File) *Container {
	t.Helper()
	info, err := f.Stat()
	require.NoError(t, err)
	c, err := Open(context.Background(), f, info.Size(), f)
	require.NoError(t, err)
	return c
}

func TestCreate_RoundTrip(t *testing.T) {
	c, f := openFresh(t, []byte(`{"version":1,"refs":{}}`))
	defer f.Close()

	idx := c.Index()
	require.Contains(t, idx, ManifestMemberName)
	require.Contains(t, idx, entryMemberName)
	require.Contains(t, idx, indexMemberName)

	got, err := c.ReadMember(context.Background(), ManifestMemberName, 0, idx[ManifestMemberName].DataSize)
	require.NoError(t, err)
	require.Equal(t, `{"version":1,"refs":{}}`, string(got))

	reopened := reopen(t, f)
	idx2 := reopened.Index()
	require.Equal(t, idx[ManifestMemberName], idx2[ManifestMemberName])
}

// TestGrow_InPlace grounds scenario E3: growing a member within its padded
// capacity must not move it or touch any other member's offsets.
func TestGrow_InPlace(t *testing.T) {
	c, f := openFresh(t, []byte(`{"version":1,"refs":{}}`))
	defer f.Close()

	before := c.Index()[ManifestMemberName]
	require.Greater(t, before.PaddedCapacity, int64(len(`{"version":1,"refs":{"a":"b"}}`)))

	newManifest := []byte(`{"version":1,"refs":{"a":"b"}}`)
	require.NoError(t, c.Grow(context.Background(), ManifestMemberName, newManifest))

	after := c.Index()[ManifestMemberName]
	require.Equal(t, before.HeaderOffset, after.HeaderOffset)
	require.Equal(t, before.DataOffset, after.DataOffset)
	require.Equal(t, before.PaddedCapacity, after.PaddedCapacity)
	require.Equal(t, int64(len(newManifest)), after.DataSize)

	got, err := c.ReadMember(context.Background(), ManifestMemberName, 0, after.DataSize)
	require.NoError(t, err)
	require.Equal(t, newManifest, got)
}

// TestGrow_OverflowTombstonesAndAppends grounds scenario E4: growing past
// capacity tombstones the old header and appends a fresh member, and a
// reopen via the two-range-request path sees only the new location.
func TestGrow_OverflowTombstonesAndAppends(t *testing.T) {
	c, f := openFresh(t, []byte(`{}`))
	defer f.Close()

	before := c.Index()[ManifestMemberName]
	big := make([]byte, before.PaddedCapacity+4096)
	for i := range big {
		big[i] = byte('a' + i%26)
	}
	require.NoError(t, c.Grow(context.Background(), ManifestMemberName, big))

	after := c.Index()[ManifestMemberName]
	require.NotEqual(t, before.HeaderOffset, after.HeaderOffset)
	require.Greater(t, after.PaddedCapacity, int64(len(big)))
	require.Equal(t, int64(len(big)), after.DataSize)

	reopened := reopen(t, f)
	idx := reopened.Index()
	require.Equal(t, after, idx[ManifestMemberName])

	got, err := reopened.ReadMember(context.Background(), ManifestMemberName, 0, int64(len(big)))
	require.NoError(t, err)
	require.Equal(t, big, got)
}

func TestReadAbsolute_SelfReferentialWithinMember(t *testing.T) {
	c, f := openFresh(t, []byte(`{"hello":"world!"}`))
	defer f.Close()

	m := c.Index()[ManifestMemberName]
	got, err := c.ReadAbsolute(context.Background(), m.DataOffset+2, 5)
	require.NoError(t, err)
	require.Equal(t, `hello`, string(got))
}

func TestReadAbsolute_OutOfBoundsRejected(t *testing.T) {
	c, f := openFresh(t, []byte(`{}`))
	defer f.Close()

	_, err := c.ReadAbsolute(context.Background(), c.end+10_000, 8)
	require.ErrorIs(t, err, ErrOutOfBounds)
}

func TestGrow_ReadOnlyContainerRejected(t *testing.T) {
	_, f := openFresh(t, []byte(`{}`))
	defer f.Close()

	info, err := f.Stat()
	require.NoError(t, err)
	ro, err := Open(context.Background(), f, info.Size(), nil)
	require.NoError(t, err)

	err = ro.Grow(context.Background(), ManifestMemberName, []byte(`{"x":1}`))
	require.ErrorIs(t, err, ErrReadOnly)
}

func TestAddMember_DuplicateRejected(t *testing.T) {
	c, f := openFresh(t, []byte(`{}`))
	defer f.Close()

	err := c.AddMember(context.Background(), ManifestMemberName, []byte(`{}`), true)
	require.Error(t, err)
}
