package main

import (
	"fmt"
	"os"

	"github.com/bsv-blockchain/peerlogic/cmd/settings"
	"github.com/bsv-blockchain/peerlogic/cmd/simulate"
	"github.com/ordishs/gocore"
	"github.com/urfave/cli/v2"
)

// Name used by build script for the binaries. (Please keep on single line)
const progname = "peerlogic"

// Version & commit strings injected at build with -ldflags -X...
var version string
var commit string

func init() {
	gocore.SetInfo(progname, version, commit)
}

func main() {
	app := &cli.App{
		Name:    progname,
		Usage:   "BSV peer message processing",
		Version: fmt.Sprintf("%s (%s)", version, commit),
		Commands: []*cli.Command{
			{
				Name:  "settings",
				Usage: "Print the resolved settings",
				Action: func(c *cli.Context) error {
					return settings.CmdSettings(version, commit)
				},
			},
			simulate.Command(progname),
		},
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}
}
