package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/urfave/cli/v2"
	"k8s.io/klog/v2"

	"github.com/NeurodataWithoutBorders/lindi/internal/config"
	"github.com/NeurodataWithoutBorders/lindi/internal/hdf5translate"
	"github.com/NeurodataWithoutBorders/lindi/internal/hdf5translate/hdf5src"
)

func newCmd_Translate() *cli.Command {
	var reader string
	var maxChunksInline int
	return &cli.Command{
		Name:        "translate",
		Usage:       "Translate an HDF5 file into a LINDI reference file system manifest.",
		Description: "Translate an HDF5 file into a LINDI reference file system manifest (.lindi.json).",
		ArgsUsage:   "<hdf5-path> <output.lindi.json>",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "hdf5-reader",
				Usage:       "name of the registered hdf5src reader to use (linked in via a side-effect import)",
				EnvVars:     []string{"LINDI_HDF5_READER"},
				Destination: &reader,
				Value:       "scigolib",
			},
			&cli.IntFlag{
				Name:        "max-chunks-inline",
				Usage:       "chunk count above which a chunked dataset falls back to an _EXTERNAL_ARRAY_LINK",
				EnvVars:     []string{"LINDI_MAX_CHUNKS_INLINE"},
				Destination: &maxChunksInline,
				Value:       1_000_000,
			},
			FlagConfig,
		},
		Action: func(c *cli.Context) error {
			if c.NArg() != 2 {
				return fmt.Errorf("usage: lindi translate <hdf5-path> <output.lindi.json>")
			}
			src := c.Args().Get(0)
			dst := c.Args().Get(1)

			r, err := hdf5src.Open(c.Context, reader, src)
			if err != nil {
				return fmt.Errorf("opening %q: %w", src, err)
			}
			defer r.Close()

			opts := hdf5translate.Options{}
			if maxChunksInline > 0 {
				opts.MaxChunksInline = maxChunksInline
			}
			// An explicit --config's translate.max_chunks_inline only
			// applies when the caller left --max-chunks-inline at its
			// default, so the flag always wins when both are given.
			if configPath := c.String("config"); configPath != "" && !c.IsSet("max-chunks-inline") {
				cfg, err := config.LoadConfig(configPath)
				if err != nil {
					return err
				}
				if cfg.Translate.MaxChunksInline > 0 {
					opts.MaxChunksInline = cfg.Translate.MaxChunksInline
				}
			}

			klog.Infof("translating %q -> %q", src, dst)
			doc, err := hdf5translate.Translate(c.Context, r, opts)
			if err != nil {
				return fmt.Errorf("translating %q: %w", src, err)
			}

			encoded, err := json.MarshalIndent(doc, "", "  ")
			if err != nil {
				return err
			}
			if err := os.WriteFile(dst, encoded, 0o644); err != nil {
				return err
			}
			if c.Bool("verbose") {
				fmt.Printf("wrote %d refs to %s\n", len(doc.Refs), dst)
			}
			return nil
		},
	}
}
