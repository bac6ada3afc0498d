package main

import (
	"fmt"

	"github.com/urfave/cli/v2"
	"k8s.io/klog/v2"

	"github.com/NeurodataWithoutBorders/lindi"
)

func newCmd_Pack() *cli.Command {
	var format string
	return &cli.Command{
		Name:        "pack",
		Aliases:     []string{"finalize"},
		Usage:       "Finalize a LINDI manifest into a tar container or directory layout.",
		Description: "Open a .lindi.json manifest, fold any staged writes in, and write it out as a .lindi.tar or .lindi.d store.",
		ArgsUsage:   "<source.lindi.json> <dest>",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "format",
				Usage:       "destination format: tar or dir",
				EnvVars:     []string{"LINDI_PACK_FORMAT"},
				Destination: &format,
				Value:       "tar",
			},
			FlagConfig,
		},
		Action: func(c *cli.Context) error {
			if c.NArg() != 2 {
				return fmt.Errorf("usage: lindi pack <source.lindi.json> <dest>")
			}
			src := c.Args().Get(0)
			dst := c.Args().Get(1)

			var dstFormat lindi.Format
			switch format {
			case "tar":
				dstFormat = lindi.FormatTar
			case "dir":
				dstFormat = lindi.FormatDir
			default:
				return fmt.Errorf("unknown --format %q, want tar or dir", format)
			}

			fetchOpts, err := fetchOptionsFromConfig(c.String("config"))
			if err != nil {
				return err
			}
			s, err := lindi.OpenLindi(c.Context, src, lindi.OpenOptions{ReadWrite: true, Fetch: fetchOpts})
			if err != nil {
				return err
			}
			defer s.Close()

			klog.Infof("packing %q -> %q (%s)", src, dst, dstFormat)
			if err := lindi.WriteLindi(c.Context, s, dst, dstFormat); err != nil {
				return fmt.Errorf("packing %q: %w", src, err)
			}
			if c.Bool("verbose") {
				fmt.Printf("wrote %s\n", dst)
			}
			return nil
		},
	}
}
