package main

import (
	"context"
	"errors"
	"os"

	"github.com/desertthunder/setlist/internal/shared"
	"github.com/urfave/cli/v3"
)

func main() {
	logger := shared.NewLogger(nil)
	runner := NewRunner(RunnerOpts{Logger: logger})

	if err := newApp(runner).Run(context.Background(), os.Args); err != nil {
		if errors.Is(err, shared.ErrNotImplemented) {
			logger.Warn("not implemented", "error", err)
			os.Exit(0)
		}
		logger.Fatalf("application error: %v", err)
	}
}

// newApp builds the command tree around r.
func newApp(r *Runner) *cli.Command {
	return &cli.Command{
		Name:    "setlist",
		Usage:   "Build and sync presentation lists of songs & cards",
		Version: "0.3.0",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Path to configuration file",
				Value:   "config.toml",
			},
			&cli.StringFlag{
				Name:    "user",
				Aliases: []string{"u"},
				Usage:   "Act as this user (overrides identity.user)",
				Sources: cli.EnvVars("SETLIST_USER"),
			},
			&cli.BoolFlag{
				Name:  "verbose",
				Usage: "Enable debug logging",
			},
		},
		Before:   r.Before,
		After:    r.After,
		Commands: r.register(),
	}
}
