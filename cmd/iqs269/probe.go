package main

import (
	"github.com/urfave/cli/v2"

	"github.com/mklimuk/iqs269/cmd/iqs269/console"
)

var probeCmd = cli.Command{
	Name:  "probe",
	Usage: "check device presence and print version information",
	Flags: busFlags,
	Action: func(c *cli.Context) error {
		s, err := openSession(c)
		if err != nil {
			return console.Exit(1, "bus error: %s", console.Red(err))
		}
		defer s.cleanup()
		if err = s.dev.Probe(c.Context); err != nil {
			return console.Exit(1, "probe failed: %s", console.Red(err))
		}
		info := s.dev.VersionInfo()
		console.Printf("product number:  %s\n", console.White(info.ProdNum))
		console.Printf("software number: %s\n", console.White(info.SwNum))
		console.Printf("hardware number: %s\n", console.White(info.HwNum))
		console.Printf("firmware number: %s\n", console.White(info.FwNum))
		return nil
	},
}
