package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v2"
	"gopkg.in/yaml.v3"

	"github.com/mklimuk/iqs269"
	"github.com/mklimuk/iqs269/cmd/iqs269/console"
	"github.com/mklimuk/iqs269/input"
)

var monitorCmd = cli.Command{
	Name:  "monitor",
	Usage: "configure the device and forward its events to virtual input devices",
	Flags: append([]cli.Flag{
		&cli.StringFlag{
			Name:     "config",
			Aliases:  []string{"c"},
			Usage:    "device configuration file",
			Required: true,
		},
		&cli.StringFlag{
			Name:  "name",
			Usage: "virtual input device name prefix",
			Value: "iqs269a",
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

		ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
		defer stop()
		c.Context = ctx

		if err = s.dev.Probe(ctx); err != nil {
			return console.Exit(1, "probe failed: %s", console.Red(err))
		}
		if err = s.dev.Configure(ctx, cfg); err != nil {
			return console.Exit(1, "configuration failed: %s", console.Red(err))
		}
		// Input devices go live only once the first full decode has
		// confirmed calibration.
		for !s.dev.Calibrated() {
			if err = s.wait(c); err != nil {
				if errors.Is(err, context.Canceled) {
					return nil
				}
				return err
			}
			if err = s.dev.ServiceInterrupt(ctx); err != nil {
				slog.Error("interrupt service error", "error", err)
			}
		}
		closeSinks, err := attachSinks(s.dev, c.String("name"))
		if err != nil {
			return console.Exit(1, "input device error: %s", console.Red(err))
		}
		defer closeSinks()

		slog.Info("monitoring", "transport", c.String("transport"))
		for {
			if err = s.wait(c); err != nil {
				break
			}
			if err = s.dev.ServiceInterrupt(ctx); err != nil {
				slog.Error("interrupt service error", "error", err)
			}
		}
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	},
}

func loadConfig(path string) (*iqs269.Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("could not read %s: %w", path, err)
	}
	var cfg iqs269.Config
	if err = yaml.Unmarshal(raw, &cfg); err != nil {
		return nil, fmt.Errorf("could not parse %s: %w", path, err)
	}
	return &cfg, nil
}

// attachSinks creates one virtual keypad plus one device per configured
// slider and binds them to the driver. Returns a closer for all of them.
func attachSinks(dev *iqs269.Device, prefix string) (func(), error) {
	var sinks []*input.Device
	closeAll := func() {
		for _, s := range sinks {
			_ = s.Close()
		}
	}
	keys, switches := dev.KeypadCodes()
	if len(keys) > 0 || len(switches) > 0 {
		keypad, err := input.NewKeypad(prefix+"-keypad", keys, switches)
		if err != nil {
			return nil, err
		}
		sinks = append(sinks, keypad)
		dev.AttachKeypad(keypad)
	}
	for i := 0; i < iqs269.NumSliders; i++ {
		class := dev.SliderClass(i)
		if class == iqs269.SliderNone {
			continue
		}
		slider, err := input.NewSlider(fmt.Sprintf("%s-slider-%d", prefix, i), dev.SliderCodes(i), class == iqs269.SliderRaw)
		if err != nil {
			closeAll()
			return nil, err
		}
		sinks = append(sinks, slider)
		if err = dev.AttachSlider(i, slider); err != nil {
			closeAll()
			return nil, err
		}
	}
	return closeAll, nil
}
