package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"syscall"

	"github.com/urfave/cli/v2"
	"k8s.io/klog/v2"
)

var gitCommitSHA = ""

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		interrupt := make(chan os.Signal, 1)
		signal.Notify(interrupt, syscall.SIGTERM, syscall.SIGINT)

		select {
		case <-interrupt:
			fmt.Println()
			klog.Info("received interrupt signal")
			cancel()
		case <-ctx.Done():
		}

		signal.Stop(interrupt)
	}()

	app := &cli.App{
		Name:        "lindi",
		Version:     gitCommitSHA,
		Description: "CLI to translate, inspect, and repack LINDI containers for hierarchical scientific datasets backed by HDF5 or Zarr.",
		Before: func(c *cli.Context) error {
			return nil
		},
		Flags: append([]cli.Flag{
			FlagVerbose,
		}, NewKlogFlagSet()...),
		Action: nil,
		Commands: []*cli.Command{
			newCmd_Translate(),
			newCmd_Ls(),
			newCmd_Stat(),
			newCmd_Cat(),
			newCmd_Pack(),
			newCmd_Version(),
		},
	}

	sort.Sort(cli.FlagsByName(app.Flags))
	sort.Sort(cli.CommandsByName(app.Commands))

	if err := app.RunContext(ctx, os.Args); err != nil {
		klog.Fatal(err)
	}
}
