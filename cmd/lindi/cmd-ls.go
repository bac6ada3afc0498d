package main

import (
	"fmt"
	"sort"

	"github.com/urfave/cli/v2"

	"github.com/NeurodataWithoutBorders/lindi"
)

func newCmd_Ls() *cli.Command {
	return &cli.Command{
		Name:        "ls",
		Usage:       "List the children of a key prefix in a LINDI store.",
		Description: "List the immediate children of a key prefix (the empty string for the root) in a LINDI store.",
		ArgsUsage:   "<lindi-path> [prefix]",
		Flags:       []cli.Flag{FlagConfig},
		Action: func(c *cli.Context) error {
			if c.NArg() < 1 {
				return fmt.Errorf("usage: lindi ls <lindi-path> [prefix]")
			}
			path := c.Args().Get(0)
			prefix := c.Args().Get(1)

			fetchOpts, err := fetchOptionsFromConfig(c.String("config"))
			if err != nil {
				return err
			}
			s, err := lindi.OpenLindi(c.Context, path, lindi.OpenOptions{Fetch: fetchOpts})
			if err != nil {
				return err
			}
			defer s.Close()

			children, err := s.ListDir(c.Context, prefix)
			if err != nil {
				return err
			}
			sort.Strings(children)
			for _, child := range children {
				fmt.Println(child)
			}
			return nil
		},
	}
}
