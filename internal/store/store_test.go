package store

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/NeurodataWithoutBorders/lindi/internal/fetch"
	"github.com/NeurodataWithoutBorders/lindi/internal/rfs"
)

func TestGet_Inline(t *testing.T) {
	doc := rfs.New()
	doc.Refs[".zattrs"] = rfs.NewInline(`{"foo":1}`)

	s := Open(doc, Config{ReadOnly: true})
	got, err := s.Get(context.Background(), ".zattrs")
	require.NoError(t, err)
	require.Equal(t, `{"foo":1}`, string(got))
}

func TestGet_External_ResolvesAgainstBaseURL(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Range", "bytes 0-3/4")
		w.WriteHeader(http.StatusPartialContent)
		w.Write([]byte("data"))
	}))
	defer srv.Close()

	doc := rfs.New()
	doc.Refs["0.0"] = rfs.NewExternal("chunk.bin", 0, 4)

	f, err := fetch.New(fetch.Options{DiskCacheDir: t.TempDir()})
	require.NoError(t, err)

	s := Open(doc, Config{BaseURL: srv.URL + "/", Fetcher: f, ReadOnly: true})
	got, err := s.Get(context.Background(), "0.0")
	require.NoError(t, err)
	require.Equal(t, []byte("data"), got)
}

func TestGet_External_SelfReferentialWithNoContainerIsCorruptContainer(t *testing.T) {
	doc := rfs.New()
	doc.Refs["0.0"] = rfs.NewExternal("./", 0, 4)

	s := Open(doc, Config{ReadOnly: true})
	_, err := s.Get(context.Background(), "0.0")
	require.ErrorIs(t, err, rfs.ErrCorruptContainer)
}

func TestSet_ReadOnlyRejected(t *testing.T) {
	s := Open(rfs.New(), Config{ReadOnly: true})
	err := s.Set(context.Background(), ".zattrs", []byte("{}"))
	require.ErrorIs(t, err, rfs.ErrReadOnly)
}

func TestSet_InvalidKeyRejected(t *testing.T) {
	s := Open(rfs.New(), Config{})
	err := s.Set(context.Background(), "group/../escape", []byte("{}"))
	require.ErrorIs(t, err, rfs.ErrCorruptReference)
}

func TestSet_ChunkIndexOutsideGridRejected(t *testing.T) {
	doc := rfs.New()
	doc.Refs["arr/.zarray"] = rfs.NewInline(`{"shape":[4],"chunks":[2]}`)
	s := Open(doc, Config{})

	err := s.Set(context.Background(), "arr/1", []byte("ok"))
	require.NoError(t, err)

	err = s.Set(context.Background(), "arr/2", []byte("bad"))
	require.ErrorIs(t, err, rfs.ErrCorruptReference)
}

func TestListDir_ImmediateChildrenOnly(t *testing.T) {
	doc := rfs.New()
	doc.Refs["group/.zgroup"] = rfs.NewInline("{}")
	doc.Refs["group/dataset/.zarray"] = rfs.NewInline("{}")
	doc.Refs[".zgroup"] = rfs.NewInline("{}")

	s := Open(doc, Config{ReadOnly: true})
	children, err := s.ListDir(context.Background(), "")
	require.NoError(t, err)
	require.ElementsMatch(t, []string{".zgroup", "group"}, children)

	children, err = s.ListDir(context.Background(), "group")
	require.NoError(t, err)
	require.ElementsMatch(t, []string{".zgroup", "dataset"}, children)
}

func TestDelete_RemovesKey(t *testing.T) {
	doc := rfs.New()
	doc.Refs[".zattrs"] = rfs.NewInline("{}")
	s := Open(doc, Config{})

	require.NoError(t, s.Delete(context.Background(), ".zattrs"))
	ok, err := s.Contains(context.Background(), ".zattrs")
	require.NoError(t, err)
	require.False(t, ok)

	err = s.Delete(context.Background(), ".zattrs")
	require.ErrorIs(t, err, rfs.ErrNotFound)
}
