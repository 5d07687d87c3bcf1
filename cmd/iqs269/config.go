package main

import (
	"bytes"
	"fmt"
	"os"

	"github.com/urfave/cli/v2"
	"gopkg.in/yaml.v3"

	"github.com/mklimuk/iqs269"
	"github.com/mklimuk/iqs269/cmd/iqs269/console"
)

var configCmd = cli.Command{
	Name:  "config",
	Usage: "device configuration tooling",
	Subcommands: cli.Commands{
		&configCheckCmd,
		&configShowCmd,
	},
}

var configCheckCmd = cli.Command{
	Name:      "check",
	Usage:     "validate a configuration file",
	ArgsUsage: "<file>",
	Action: func(c *cli.Context) error {
		if c.NArg() < 1 {
			return console.Exit(1, "usage: iqs269 config check <file>")
		}
		path := c.Args().First()
		cfg, err := loadConfigStrict(path)
		if err != nil {
			return console.Exit(1, "%s: %s", path, console.Red(err))
		}
		if err = checkConfig(cfg); err != nil {
			return console.Exit(1, "%s: %s", path, console.Red(err))
		}
		console.Infof("%s: %s", path, console.Green("ok"))
		return nil
	},
}

var configShowCmd = cli.Command{
	Name:      "show",
	Usage:     "print a configuration file in normalized form",
	ArgsUsage: "<file>",
	Action: func(c *cli.Context) error {
		if c.NArg() < 1 {
			return console.Exit(1, "usage: iqs269 config show <file>")
		}
		cfg, err := loadConfigStrict(c.Args().First())
		if err != nil {
			return console.Exit(1, "configuration error: %s", console.Red(err))
		}
		enc := yaml.NewEncoder(os.Stdout)
		defer enc.Close()
		if err = enc.Encode(cfg); err != nil {
			return console.Exit(1, "encoding error: %s", console.Red(err))
		}
		return nil
	},
}

// loadConfigStrict rejects unknown keys, so typos in field names surface
// instead of silently keeping hardware defaults.
func loadConfigStrict(path string) (*iqs269.Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("could not read file: %w", err)
	}
	dec := yaml.NewDecoder(bytes.NewReader(raw))
	dec.KnownFields(true)
	var cfg iqs269.Config
	if err = dec.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("could not parse file: %w", err)
	}
	return &cfg, nil
}

// checkConfig covers the structural constraints that do not need a device
// connection; the full numeric validation happens when the configuration is
// applied.
func checkConfig(cfg *iqs269.Config) error {
	seen := map[uint32]bool{}
	for i := range cfg.Channels {
		ch := &cfg.Channels[i]
		if ch.Channel >= iqs269.NumChannels {
			return fmt.Errorf("channel %d: index out of range", ch.Channel)
		}
		if seen[ch.Channel] {
			return fmt.Errorf("channel %d: duplicate definition", ch.Channel)
		}
		seen[ch.Channel] = true
		for _, masks := range [][]uint32{ch.RxEnable, ch.TxEnable, ch.AssocSelect} {
			if len(masks) > iqs269.NumChannels {
				return fmt.Errorf("channel %d: enable list too long", ch.Channel)
			}
			for _, v := range masks {
				if v >= iqs269.NumChannels {
					return fmt.Errorf("channel %d: enable entry %d out of range", ch.Channel, v)
				}
			}
		}
	}
	if len(cfg.SliderCodes) > int(iqs269.NumGestures)*iqs269.NumSliders {
		return fmt.Errorf("slider-codes: too many entries (%d)", len(cfg.SliderCodes))
	}
	if cfg.HallEnable {
		for _, ch := range []uint32{iqs269.HallChannelInactive, iqs269.HallChannelActive} {
			if !seen[ch] {
				return fmt.Errorf("hall sensing enabled but channel %d is not configured", ch)
			}
		}
	}
	return nil
}
