// Package main is the CoOrganizer command line: it manages groups, shares
// captured traffic through the store and runs the control API with the
// importing store proxy.
package main

import (
	"cmp"
	"fmt"
	"os"

	"github.com/atinyakov/CoOrganizer/internal/app"
	"github.com/atinyakov/CoOrganizer/internal/config"
	"github.com/atinyakov/CoOrganizer/internal/logger"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"
)

var (
	// version holds the build version set via ldflags.
	version string
	// buildDate holds the build timestamp set via ldflags.
	buildDate string
)

// runtime carries what Before resolved into the command actions.
type runtime struct {
	opts    *config.Options
	log     *logger.Logger
	appOpts []app.Option
}

func newApp(rt *runtime) *cli.App {
	return &cli.App{
		Name:    "coorganizer",
		Usage:   "share captured HTTP traffic with your team through a store",
		Version: cmp.Or(version, "N/A"),
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "path to JSON config file",
			},
			&cli.StringFlag{
				Name:  "log-level",
				Usage: "debug, info, warn or error",
			},
			&cli.StringFlag{
				Name:  "prefs",
				Usage: "preferences: file path, sqlite://path or postgres://dsn",
			},
			&cli.StringFlag{
				Name:  "store-host",
				Usage: "host of the shared-item store",
			},
			&cli.IntFlag{
				Name:  "store-port",
				Usage: "port of the shared-item store",
			},
		},
		Before: func(c *cli.Context) error {
			opts, err := config.Load(c.String("config"))
			if err != nil {
				return err
			}
			if c.IsSet("log-level") {
				opts.LogLevel = c.String("log-level")
			}
			if c.IsSet("prefs") {
				opts.Prefs = c.String("prefs")
			}
			if c.IsSet("store-host") {
				opts.StoreHost = c.String("store-host")
			}
			if c.IsSet("store-port") {
				opts.StorePort = c.Int("store-port")
			}
			if err := rt.log.Init(opts.LogLevel); err != nil {
				return err
			}
			rt.opts = opts
			return nil
		},
		After: func(*cli.Context) error {
			_ = rt.log.Log.Sync()
			return nil
		},
		Commands: []*cli.Command{
			groupCommand(rt),
			shareCommand(rt),
			serveCommand(rt),
			organizerCommand(rt),
			debugIDCommand(rt),
			{
				Name:  "version",
				Usage: "print build metadata",
				Action: func(c *cli.Context) error {
					fmt.Fprintf(c.App.Writer, "Build version: %s\n", cmp.Or(version, "N/A"))
					fmt.Fprintf(c.App.Writer, "Build date: %s\n", cmp.Or(buildDate, "N/A"))
					return nil
				},
			},
		},
	}
}

func main() {
	rt := &runtime{log: logger.New()}
	if err := newApp(rt).Run(os.Args); err != nil {
		rt.log.Log.Debug("command failed", zap.Error(err))
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
