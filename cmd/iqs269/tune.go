package main

import (
	"errors"
	"io"
	"log/slog"
	"strconv"
	"strings"

	"github.com/chzyer/readline"
	"github.com/urfave/cli/v2"

	"github.com/mklimuk/iqs269"
	"github.com/mklimuk/iqs269/cmd/iqs269/console"
)

var tuneCmd = cli.Command{
	Name:  "tune",
	Usage: "interactive sensor tuning console",
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

		// Tuning reads need the interrupt path serviced in the background so
		// calibration completion and counts stay observable.
		go func() {
			for c.Context.Err() == nil {
				if err := s.wait(c); err != nil {
					return
				}
				if err := s.dev.ServiceInterrupt(c.Context); err != nil {
					slog.Debug("interrupt service error", "error", err)
				}
			}
		}()

		rl, err := readline.New(console.Bold("iqs269> "))
		if err != nil {
			return console.Exit(1, "console error: %s", console.Red(err))
		}
		defer rl.Close()
		console.Print("sensor tuning console; type 'help' for commands")
		for {
			line, err := rl.Readline()
			if errors.Is(err, readline.ErrInterrupt) || errors.Is(err, io.EOF) {
				return nil
			}
			if err != nil {
				return console.Exit(1, "console error: %s", console.Red(err))
			}
			if done := tuneDispatch(c, s, strings.Fields(line)); done {
				return nil
			}
		}
	},
}

func tuneDispatch(c *cli.Context, s *session, args []string) bool {
	if len(args) == 0 {
		return false
	}
	dev := s.dev
	switch args[0] {
	case "help":
		console.Print("channel [n]         show or select the tuned channel")
		console.Print("mode [0-3]          show or set ATI mode")
		console.Print("base [75|100|150|200]  show or set ATI base")
		console.Print("target [counts]     show or set ATI target")
		console.Print("rx [mask]           show or set rx pad mask")
		console.Print("hall [on|off]       show or toggle hall sensing")
		console.Print("status              read live system flags")
		console.Print("counts              read filtered counts")
		console.Print("bin                 read hall calibration bin")
		console.Print("ati                 reprogram and recalibrate")
		console.Print("quit")
	case "quit", "exit":
		return true
	case "channel":
		if num, ok := tuneArg(args); ok {
			if err := dev.SelectChannel(num); err != nil {
				console.Errorf("%v", err)
			}
			return false
		}
		console.Printf("channel %s\n", console.White(dev.SelectedChannel()))
	case "mode":
		if num, ok := tuneArg(args); ok {
			if err := dev.SetATIMode(dev.SelectedChannel(), num); err != nil {
				console.Errorf("%v", err)
			}
			return false
		}
		mode, err := dev.ATIMode(dev.SelectedChannel())
		if err != nil {
			console.Errorf("%v", err)
			return false
		}
		console.Printf("ati mode %s\n", console.White(mode))
	case "base":
		if num, ok := tuneArg(args); ok {
			if err := dev.SetATIBase(dev.SelectedChannel(), num); err != nil {
				console.Errorf("%v", err)
			}
			return false
		}
		base, err := dev.ATIBase(dev.SelectedChannel())
		if err != nil {
			console.Errorf("%v", err)
			return false
		}
		console.Printf("ati base %s\n", console.White(base))
	case "target":
		if num, ok := tuneArg(args); ok {
			if err := dev.SetATITarget(dev.SelectedChannel(), num); err != nil {
				console.Errorf("%v", err)
			}
			return false
		}
		target, err := dev.ATITarget(dev.SelectedChannel())
		if err != nil {
			console.Errorf("%v", err)
			return false
		}
		console.Printf("ati target %s\n", console.White(target))
	case "rx":
		if num, ok := tuneArg(args); ok {
			dev.SetRxEnable(uint8(num))
			return false
		}
		console.Printf("rx mask %s\n", console.White(strconv.FormatUint(uint64(dev.RxEnable()), 2)))
	case "hall":
		if len(args) > 1 {
			dev.SetHallEnable(args[1] == "on")
			return false
		}
		console.Printf("hall sensing %s\n", console.White(dev.HallEnable()))
	case "status":
		flags, err := dev.Status(c.Context)
		if err != nil {
			console.Errorf("%v", err)
			return false
		}
		console.Printf("power mode %s\n", console.White(flags.PowerMode()))
		console.Printf("calibrating %s\n", console.White(flags.Calibrating()))
	case "counts":
		counts, err := dev.Counts(c.Context)
		if err != nil {
			if errors.Is(err, iqs269.ErrATIStale) {
				console.Warnf("settings changed since last calibration; run 'ati' first")
				return false
			}
			console.Errorf("%v", err)
			return false
		}
		console.Printf("counts %s\n", console.White(counts))
	case "bin":
		bin, err := dev.HallBin(c.Context)
		if err != nil {
			console.Errorf("%v", err)
			return false
		}
		console.Printf("hall bin %s\n", console.White(bin))
	case "ati":
		answer, err := console.YesOrNo("reprogram the device and recalibrate?")
		if err != nil || answer != console.Yes {
			return false
		}
		if err := dev.TriggerATI(c.Context); err != nil {
			console.Errorf("calibration failed: %v", err)
			return false
		}
		console.Infof("calibration complete")
	default:
		console.Warnf("unknown command %q; type 'help'", args[0])
	}
	return false
}

func tuneArg(args []string) (uint32, bool) {
	if len(args) < 2 {
		return 0, false
	}
	v, err := strconv.ParseUint(args[1], 0, 32)
	if err != nil {
		console.Errorf("invalid value %q", args[1])
		return 0, false
	}
	return uint32(v), true
}
