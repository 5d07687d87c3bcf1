package main

import (
	"fmt"
	"strconv"
	"time"

	"github.com/urfave/cli/v2"
	"gobot.io/x/gobot/v2/platforms/friendlyelec/nanopi"

	"github.com/mklimuk/iqs269"
	"github.com/mklimuk/iqs269/adapter"
	"github.com/mklimuk/iqs269/gobotio"
	"github.com/mklimuk/iqs269/i2c"
)

var busFlags = []cli.Flag{
	&cli.StringFlag{
		Name:  "transport",
		Usage: "bus transport: mcp2221, i2c or nanopi",
		Value: "i2c",
	},
	&cli.StringFlag{
		Name:  "dev",
		Usage: "i2c device reference (i2c transport) or bus number (nanopi transport)",
		Value: "/dev/i2c-1",
	},
	&cli.StringFlag{
		Name:  "addr",
		Usage: "device address on the bus",
		Value: "0x44",
	},
	&cli.IntFlag{
		Name:  "rdy-pin",
		Usage: "adapter GPIO pin wired to the RDY line (mcp2221 transport, -1 to disable)",
		Value: -1,
	},
	&cli.DurationFlag{
		Name:  "poll",
		Usage: "polling interval when no RDY line is available",
		Value: 15 * time.Millisecond,
	},
	&cli.StringFlag{
		Name:  "otp",
		Usage: "factory variant of the part: default, tws or hold",
		Value: "default",
	},
}

// session holds everything a command needs to talk to one device.
type session struct {
	dev     *iqs269.Device
	rdy     *adapter.RDYLine
	poll    time.Duration
	cleanup func()
}

func openSession(c *cli.Context) (*session, error) {
	addr, err := parseAddr(c.String("addr"))
	if err != nil {
		return nil, err
	}
	otp, err := parseOTP(c.String("otp"))
	if err != nil {
		return nil, err
	}
	s := &session{poll: c.Duration("poll")}
	var bus iqs269.I2CBus
	switch transport := c.String("transport"); transport {
	case "mcp2221":
		a := adapter.NewMCP2221()
		if err = a.Init(); err != nil {
			return nil, err
		}
		if pin := c.Int("rdy-pin"); pin >= 0 {
			s.rdy = adapter.NewRDYLine(a, pin, s.poll)
		}
		s.cleanup = func() { _ = a.Close() }
		bus = a
	case "i2c":
		b, err := i2c.NewGenericBus(c.String("dev"))
		if err != nil {
			return nil, err
		}
		s.cleanup = func() { _ = b.Close() }
		bus = b
	case "nanopi":
		busNum, err := strconv.Atoi(c.String("dev"))
		if err != nil {
			return nil, fmt.Errorf("invalid bus number %q: %w", c.String("dev"), err)
		}
		npi := nanopi.NewNeoAdaptor()
		if err = npi.I2cBusAdaptor.Connect(); err != nil {
			return nil, fmt.Errorf("adaptor connect error: %w", err)
		}
		b := gobotio.NewBus(npi, busNum)
		s.cleanup = func() {
			_ = b.Release(c.Context)
			_ = npi.I2cBusAdaptor.Finalize()
		}
		bus = b
	default:
		return nil, fmt.Errorf("unknown transport %q", transport)
	}
	s.dev = iqs269.New(bus, iqs269.WithAddress(addr), iqs269.WithOTPOption(otp))
	if s.rdy != nil {
		s.dev.SetInterruptLine(s.rdy)
	}
	return s, nil
}

// wait blocks until the device signals it has something to report. Without
// an RDY line it falls back to a fixed interval.
func (s *session) wait(c *cli.Context) error {
	if s.rdy != nil {
		return s.rdy.Wait(c.Context)
	}
	timer := time.NewTimer(s.poll)
	defer timer.Stop()
	select {
	case <-c.Context.Done():
		return c.Context.Err()
	case <-timer.C:
		return nil
	}
}

func parseOTP(s string) (iqs269.OTPOption, error) {
	switch s {
	case "default", "":
		return iqs269.OTPOptionDefault, nil
	case "tws":
		// TWS parts carry the hold bit as well.
		return iqs269.OTPOptionTWS, nil
	case "hold":
		return iqs269.OTPOptionHold, nil
	}
	return 0, fmt.Errorf("unknown factory variant %q", s)
}

func parseAddr(s string) (byte, error) {
	v, err := strconv.ParseUint(s, 0, 8)
	if err != nil {
		return 0, fmt.Errorf("invalid device address %q: %w", s, err)
	}
	return byte(v), nil
}
