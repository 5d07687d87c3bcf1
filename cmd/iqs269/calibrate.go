package main

import (
	"context"
	"log/slog"

	"github.com/urfave/cli/v2"

	"github.com/mklimuk/iqs269/cmd/iqs269/console"
)

var calibrateCmd = cli.Command{
	Name:  "calibrate",
	Usage: "reprogram the device and wait for sensor calibration to complete",
	Flags: append([]cli.Flag{
		&cli.StringFlag{
			Name:     "config",
			Aliases:  []string{"c"},
			Usage:    "device configuration file",
			Required: true,
		},
	}, busFlags...),
	Action: func(c *cli.Context) error {
		cfg, err := loadConfig(c.String("config"))
		if err != nil {
			return console.Exit(1, "configuration error: %s", console.Red(err))
		}
		s, err := openSession(c)
		if err != nil {
			return console.Exit(1, "bus error: %s", console.Red(err))
		}
		defer s.cleanup()
		if err = s.dev.Probe(c.Context); err != nil {
			return console.Exit(1, "probe failed: %s", console.Red(err))
		}
		if err = s.dev.Configure(c.Context, cfg); err != nil {
			return console.Exit(1, "configuration failed: %s", console.Red(err))
		}

		// Calibration completion is only observed on the interrupt path, so
		// keep servicing while the trigger blocks.
		ctx, stop := context.WithCancel(c.Context)
		defer stop()
		go func() {
			for ctx.Err() == nil {
				if err := s.wait(c); err != nil {
					return
				}
				if err := s.dev.ServiceInterrupt(ctx); err != nil {
					slog.Debug("interrupt service error", "error", err)
				}
			}
		}()

		if err = s.dev.TriggerATI(c.Context); err != nil {
			return console.Exit(1, "calibration failed: %s", console.Red(err))
		}
		console.Infof("calibration complete")
		return nil
	},
}
