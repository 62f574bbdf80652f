// Package cli provides the command-line interface for shopper-runner.
package cli

import (
	"fmt"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/devicelab-dev/shopper-runner/pkg/config"
)

// Version is set at build time.
var Version = "dev"

// GlobalFlags are available to all commands.
var GlobalFlags = []cli.Flag{
	&cli.StringFlag{
		Name:    "config",
		Aliases: []string{"c"},
		Usage:   "Session configuration file (JSON)",
		Value:   config.DefaultConfigFile,
		EnvVars: []string{"SHOPPER_CONFIG"},
	},
	&cli.StringFlag{
		Name:    "log-dir",
		Usage:   "Directory for daily log files (empty disables file logging)",
		EnvVars: []string{"SHOPPER_LOG_DIR"},
	},
	&cli.BoolFlag{
		Name:    "verbose",
		Usage:   "Enable verbose logging",
		EnvVars: []string{"SHOPPER_VERBOSE"},
	},
}

// NewApp builds the command tree.
func NewApp() *cli.App {
	return &cli.App{
		Name:    "shopper-runner",
		Usage:   "Human-like browsing sessions on Android devices through Appium",
		Version: Version,
		Description: `shopper-runner opens one Appium session per device and drives the
shopping app like a person would: go home, browse the feed, search for a
keyword and scroll through product details until stopped.

Examples:
  shopper-runner run
  shopper-runner --config prod.json run --device ABCD1234,EFGH5678
  shopper-runner run --keyword 鞋子 --max-duration 30m
  shopper-runner devices`,
		Flags: GlobalFlags,
		Commands: []*cli.Command{
			runCommand,
			devicesCommand,
		},
	}
}

// Execute runs the CLI.
func Execute() {
	if err := NewApp().Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
