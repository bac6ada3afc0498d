package lindi

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/NeurodataWithoutBorders/lindi/internal/rfs"
	"github.com/NeurodataWithoutBorders/lindi/internal/store"
)

func newTestDoc() *rfs.RFS {
	doc := rfs.New()
	doc.Refs[".zattrs"] = rfs.NewInline("{}")
	return doc
}

func TestDetectFormat(t *testing.T) {
	cases := map[string]Format{
		"x.lindi.json": FormatJSON,
		"x.json":       FormatJSON,
		"x.lindi.tar":  FormatTar,
		"x.tar":        FormatTar,
		"x.lindi.d":    FormatDir,
		"x/":           FormatDir,
	}
	for path, want := range cases {
		got, err := DetectFormat(path)
		require.NoError(t, err, path)
		require.Equal(t, want, got, path)
	}

	_, err := DetectFormat("x.unknown")
	require.Error(t, err)
}

func TestOpenWriteLindi_JSONRoundTrip(t *testing.T) {
	src := filepath.Join(t.TempDir(), "a.lindi.json")
	require.NoError(t, writeJSON(src, newTestDoc()))

	s, err := OpenLindi(context.Background(), src, OpenOptions{})
	require.NoError(t, err)
	defer s.Close()

	got, err := s.Get(context.Background(), ".zattrs")
	require.NoError(t, err)
	require.Equal(t, "{}", string(got))
}

func TestOpenWriteLindi_JSONToDir(t *testing.T) {
	src := filepath.Join(t.TempDir(), "a.lindi.json")
	require.NoError(t, writeJSON(src, newTestDoc()))

	s, err := OpenLindi(context.Background(), src, OpenOptions{ReadWrite: true, StagingBaseDir: t.TempDir()})
	require.NoError(t, err)

	require.NoError(t, s.Set(context.Background(), "big", make([]byte, store.InlineThreshold+1)))

	dst := filepath.Join(t.TempDir(), "out.lindi.d")
	require.NoError(t, WriteLindi(context.Background(), s, dst, FormatDir))
	require.NoError(t, s.Close())

	reopened, err := OpenLindi(context.Background(), dst, OpenOptions{})
	require.NoError(t, err)
	defer reopened.Close()

	got, err := reopened.Get(context.Background(), ".zattrs")
	require.NoError(t, err)
	require.Equal(t, "{}", string(got))

	big, err := reopened.Get(context.Background(), "big")
	require.NoError(t, err)
	require.Len(t, big, store.InlineThreshold+1)
}

func TestOpenWriteLindi_JSONToTar(t *testing.T) {
	src := filepath.Join(t.TempDir(), "a.lindi.json")
	require.NoError(t, writeJSON(src, newTestDoc()))

	s, err := OpenLindi(context.Background(), src, OpenOptions{ReadWrite: true, StagingBaseDir: t.TempDir()})
	require.NoError(t, err)

	require.NoError(t, s.Set(context.Background(), "big", make([]byte, store.InlineThreshold+1)))

	dst := filepath.Join(t.TempDir(), "out.lindi.tar")
	require.NoError(t, WriteLindi(context.Background(), s, dst, FormatTar))
	require.NoError(t, s.Close())

	reopened, err := OpenLindi(context.Background(), dst, OpenOptions{})
	require.NoError(t, err)
	defer reopened.Close()

	got, err := reopened.Get(context.Background(), ".zattrs")
	require.NoError(t, err)
	require.Equal(t, "{}", string(got))

	big, err := reopened.Get(context.Background(), "big")
	require.NoError(t, err)
	require.Len(t, big, store.InlineThreshold+1)
}
