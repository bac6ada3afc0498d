package main

import (
	"fmt"
	"sort"

	"github.com/dustin/go-humanize"
	"github.com/urfave/cli/v2"
	"golang.org/x/exp/mmap"

	"github.com/NeurodataWithoutBorders/lindi/internal/tarfs"
)

func newCmd_Stat() *cli.Command {
	return &cli.Command{
		Name:        "stat",
		Usage:       "Print a .lindi.tar container's member table.",
		Description: "Print the name, offset, size, padded capacity and growability of every member in a .lindi.tar container.",
		ArgsUsage:   "<lindi.tar-path>",
		Action: func(c *cli.Context) error {
			if c.NArg() != 1 {
				return fmt.Errorf("usage: lindi stat <lindi.tar-path>")
			}
			path := c.Args().Get(0)

			ra, err := mmap.Open(path)
			if err != nil {
				return err
			}
			defer ra.Close()

			container, err := tarfs.Open(c.Context, ra, int64(ra.Len()), nil)
			if err != nil {
				return err
			}

			index := container.Index()
			names := make([]string, 0, len(index))
			for name := range index {
				names = append(names, name)
			}
			sort.Strings(names)

			for _, name := range names {
				m := index[name]
				growable := ""
				if m.Growable {
					growable = " growable"
				}
				fmt.Printf("%-40s  off=%-10d  size=%-12s  capacity=%-12s%s\n",
					name, m.DataOffset, humanize.Bytes(uint64(m.DataSize)), humanize.Bytes(uint64(m.PaddedCapacity)), growable)
			}
			if container.Dirty() {
				fmt.Println("warning: container is marked dirty (a prior grow/overflow did not complete)")
			}
			return nil
		},
	}
}
