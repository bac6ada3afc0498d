package main

import (
	"github.com/urfave/cli/v2"

	"github.com/NeurodataWithoutBorders/lindi/internal/config"
	"github.com/NeurodataWithoutBorders/lindi/internal/fetch"
)

// FlagConfig names an optional JSON/YAML config file (internal/config)
// supplying fetch-cache sizing and translation defaults, so they need not
// be repeated as flags on every invocation.
var FlagConfig = &cli.StringFlag{
	Name:    "config",
	Usage:   "path to a JSON or YAML config file (source/fetch/translate settings)",
	EnvVars: []string{"LINDI_CONFIG"},
}

// fetchOptionsFromConfig loads configPath's FetchConfig into fetch.Options.
// An empty configPath is not an error; it just leaves the fetcher at its
// zero-value defaults: no disk cache and an unbounded in-memory range cache.
func fetchOptionsFromConfig(configPath string) (fetch.Options, error) {
	if configPath == "" {
		return fetch.Options{}, nil
	}
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return fetch.Options{}, err
	}
	return fetch.Options{
		DiskCacheDir:        cfg.Fetch.DiskCacheDir,
		DiskCacheMaxBytes:   cfg.Fetch.DiskCacheMaxBytes,
		MemoryCacheMaxBytes: cfg.Fetch.MemoryCacheMaxBytes,
	}, nil
}
