package staging

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/NeurodataWithoutBorders/lindi/internal/rfs"
)

func TestPut_IsContentAddressed(t *testing.T) {
	a, err := New(t.TempDir())
	require.NoError(t, err)
	defer a.Close()

	url1, err := a.Put([]byte("hello"))
	require.NoError(t, err)
	url2, err := a.Put([]byte("hello"))
	require.NoError(t, err)
	require.Equal(t, url1, url2)

	path, ok := a.Path(url1)
	require.True(t, ok)
	require.FileExists(t, path)
}

func TestPut_ClosedAreaRejected(t *testing.T) {
	a, err := New(t.TempDir())
	require.NoError(t, err)
	require.NoError(t, a.Close())

	_, err = a.Put([]byte("data"))
	require.Error(t, err)
}

func TestFinalize_DirDestination(t *testing.T) {
	a, err := New(t.TempDir())
	require.NoError(t, err)
	defer a.Close()

	url, err := a.Put([]byte("chunk-bytes"))
	require.NoError(t, err)

	doc := rfs.New()
	doc.Refs["0.0"] = rfs.NewExternal(url, 0, int64(len("chunk-bytes")))
	doc.Refs[".zattrs"] = rfs.NewInline("{}")

	dst := t.TempDir()
	finalized, err := a.Finalize(context.Background(), doc, DirDestination{Dir: dst})
	require.NoError(t, err)

	ref := finalized.Refs["0.0"]
	require.Equal(t, rfs.RefExternal, ref.Kind)
	require.False(t, ref.IsSelfReferential())

	data, err := finalized.Refs[".zattrs"].Bytes()
	require.NoError(t, err)
	require.Equal(t, "{}", string(data))
}
