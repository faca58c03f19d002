package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/ruteri/shamir-custody/cmd/flags"
	"github.com/urfave/cli/v2"
)

var flagThreshold = &cli.IntFlag{
	Name:    "threshold",
	Aliases: []string{"k"},
	Usage:   "minimum number of shares needed to reconstruct",
}
var flagCount = &cli.IntFlag{
	Name:     "count",
	Aliases:  []string{"n"},
	Required: true,
	Usage:    "number of shares to produce",
}
var flagSessionID = &cli.StringFlag{
	Name:    "session-id",
	Usage:   "session identifier binding the share set",
	EnvVars: []string{"SHAMIR_SESSION_ID"},
}
var flagSetName = &cli.StringFlag{
	Name:  "set-name",
	Usage: "name of the share set in storage (default: base name of --output)",
}
var flagShareFiles = &cli.StringSliceFlag{
	Name:    "input",
	Aliases: []string{"i", "inputs"},
	Usage:   "encoded share file; repeat for every share",
}

func newApp() *cli.App {
	return &cli.App{
		Name:  "shamir",
		Usage: "split secrets into SHAM shares and reconstruct them",
		Flags: []cli.Flag{
			flags.LogJsonFlag,
			flags.LogDebugFlag,
			flags.LogUidFlag,
			flags.LogServiceFlagFn("shamir"),
		},
		Commands: []*cli.Command{
			splitCommand,
			combineCommand,
			verifyCommand,
			inspectCommand,
		},
	}
}

func main() {
	if err := newApp().Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, diagnostic(err))
		os.Exit(1)
	}
}

// diagnostic renders err as the single line printed on failure.
func diagnostic(err error) string {
	msg := strings.Join(strings.Fields(err.Error()), " ")
	return "error: " + msg
}
