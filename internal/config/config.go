// Package config loads the JSON/YAML configuration LINDI's CLI and
// higher-level callers use to describe where a store lives and how its
// fetcher/cache should be sized.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/goware/urlx"
	"gopkg.in/yaml.v2"
)

// URI is a location LINDI can open: a local path, a remote http(s) URL, or
// the reserved self-reference marker.
type URI string

func (u URI) String() string { return string(u) }

// IsZero reports an empty URI.
func (u URI) IsZero() bool { return u == "" }

// IsLocal reports a local file or directory path.
func (u URI) IsLocal() bool {
	return strings.HasPrefix(string(u), "file://") || strings.HasPrefix(string(u), "/") || strings.HasPrefix(string(u), "./") || strings.HasPrefix(string(u), "../")
}

// IsRemoteWeb reports an http:// or https:// URL.
func (u URI) IsRemoteWeb() bool {
	return strings.HasPrefix(string(u), "http://") || strings.HasPrefix(string(u), "https://")
}

// IsSelfReference reports the reserved "this archive" marker (spec §3).
func (u URI) IsSelfReference() bool {
	return u == "./" || u == ""
}

// IsValid reports whether the URI is a form LINDI knows how to resolve.
func (u URI) IsValid() bool {
	if u.IsZero() {
		return false
	}
	if u.IsLocal() || u.IsRemoteWeb() {
		return true
	}
	_, err := urlx.Parse(string(u))
	return err == nil
}

// FetchConfig sizes the chunk fetcher and its caches (spec §4.4).
type FetchConfig struct {
	DiskCacheDir        string `json:"disk_cache_dir" yaml:"disk_cache_dir"`
	DiskCacheMaxBytes   int64  `json:"disk_cache_max_bytes" yaml:"disk_cache_max_bytes"`
	MemoryCacheMaxBytes int64  `json:"memory_cache_max_bytes" yaml:"memory_cache_max_bytes"`
}

// TranslateConfig bounds an HDF5-to-Zarr translation run (spec §4.3).
type TranslateConfig struct {
	MaxChunksInline int `json:"max_chunks_inline" yaml:"max_chunks_inline"`
}

// Config is the top-level LINDI CLI/library configuration document.
type Config struct {
	originalFilepath string

	Source    URI             `json:"source" yaml:"source"`
	Fetch     FetchConfig     `json:"fetch" yaml:"fetch"`
	Translate TranslateConfig `json:"translate" yaml:"translate"`
}

// ConfigFilepath returns the path Config was loaded from.
func (c *Config) ConfigFilepath() string { return c.originalFilepath }

// Validate checks the loaded config for obviously unusable values.
func (c *Config) Validate() error {
	if c.Source.IsZero() {
		return fmt.Errorf("source must be set")
	}
	if !c.Source.IsValid() {
		return fmt.Errorf("source %q is not a recognized local path or remote URL", c.Source)
	}
	if c.Fetch.DiskCacheMaxBytes < 0 {
		return fmt.Errorf("fetch.disk_cache_max_bytes must be >= 0")
	}
	if c.Fetch.MemoryCacheMaxBytes < 0 {
		return fmt.Errorf("fetch.memory_cache_max_bytes must be >= 0")
	}
	return nil
}

// LoadConfig reads a JSON or YAML config file, dispatching on extension.
func LoadConfig(configFilepath string) (*Config, error) {
	var cfg Config
	switch {
	case isJSONFile(configFilepath):
		if err := loadFromJSON(configFilepath, &cfg); err != nil {
			return nil, err
		}
	case isYAMLFile(configFilepath):
		if err := loadFromYAML(configFilepath, &cfg); err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("config file %q must be JSON or YAML", configFilepath)
	}
	cfg.originalFilepath = configFilepath
	return &cfg, nil
}

func isJSONFile(path string) bool {
	return strings.HasSuffix(path, ".json")
}

func isYAMLFile(path string) bool {
	return strings.HasSuffix(path, ".yaml") || strings.HasSuffix(path, ".yml")
}

func loadFromJSON(configFilepath string, dst any) error {
	file, err := os.Open(configFilepath)
	if err != nil {
		return fmt.Errorf("failed to open config file: %w", err)
	}
	defer file.Close()
	return json.NewDecoder(file).Decode(dst)
}

func loadFromYAML(configFilepath string, dst any) error {
	file, err := os.Open(configFilepath)
	if err != nil {
		return fmt.Errorf("failed to open config file: %w", err)
	}
	defer file.Close()
	return yaml.NewDecoder(file).Decode(dst)
}
