package main

import (
	"fmt"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/NeurodataWithoutBorders/lindi"
)

func newCmd_Cat() *cli.Command {
	return &cli.Command{
		Name:        "cat",
		Aliases:     []string{"open"},
		Usage:       "Print the bytes stored at a key in a LINDI store.",
		Description: "Print the decoded bytes for a single key (e.g. .zattrs, or a chunk key like 0.0) in a LINDI store.",
		ArgsUsage:   "<lindi-path> <key>",
		Flags:       []cli.Flag{FlagConfig},
		Action: func(c *cli.Context) error {
			if c.NArg() != 2 {
				return fmt.Errorf("usage: lindi cat <lindi-path> <key>")
			}
			path := c.Args().Get(0)
			key := c.Args().Get(1)

			fetchOpts, err := fetchOptionsFromConfig(c.String("config"))
			if err != nil {
				return err
			}
			s, err := lindi.OpenLindi(c.Context, path, lindi.OpenOptions{Fetch: fetchOpts})
			if err != nil {
				return err
			}
			defer s.Close()

			data, err := s.Get(c.Context, key)
			if err != nil {
				return err
			}
			_, err = os.Stdout.Write(data)
			return err
		},
	}
}
