package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestURI_Classification(t *testing.T) {
	require.True(t, URI("./data.h5").IsLocal())
	require.True(t, URI("/abs/data.h5").IsLocal())
	require.True(t, URI("file:///abs/data.h5").IsLocal())
	require.True(t, URI("https://example.org/data.h5").IsRemoteWeb())
	require.True(t, URI("./").IsSelfReference())
	require.True(t, URI("").IsSelfReference())
	require.False(t, URI("https://example.org/data.h5").IsSelfReference())
}

func TestLoadConfig_JSON(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	require.NoError(t, os.WriteFile(path, []byte(`{
		"source": "https://example.org/data.h5",
		"fetch": {"disk_cache_max_bytes": 1024},
		"translate": {"max_chunks_inline": 500}
	}`), 0o644))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	require.Equal(t, URI("https://example.org/data.h5"), cfg.Source)
	require.EqualValues(t, 1024, cfg.Fetch.DiskCacheMaxBytes)
	require.Equal(t, 500, cfg.Translate.MaxChunksInline)
	require.Equal(t, path, cfg.ConfigFilepath())
	require.NoError(t, cfg.Validate())
}

func TestLoadConfig_YAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("source: ./local.h5\n"), 0o644))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	require.Equal(t, URI("./local.h5"), cfg.Source)
	require.NoError(t, cfg.Validate())
}

func TestLoadConfig_UnrecognizedExtension(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	require.NoError(t, os.WriteFile(path, []byte("source = './x.h5'"), 0o644))

	_, err := LoadConfig(path)
	require.Error(t, err)
}

func TestConfig_Validate_RejectsEmptySource(t *testing.T) {
	cfg := &Config{}
	require.Error(t, cfg.Validate())
}
