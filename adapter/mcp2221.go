// Package adapter bridges the driver transport onto an MCP2221/MCP2221A
// USB-to-I2C adapter. The adapter also exposes its GPIO pins, one of which
// can be wired to the controller RDY line and polled in place of a real
// interrupt.
package adapter

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/karalabe/hid"

	"github.com/mklimuk/iqs269"
)

const VendorID = 0x04D8
const ProductID = 0x00DD

// HID command codes used by the adapter protocol.
const (
	cmdStatus    byte = 0x10
	cmdReadData  byte = 0x40
	cmdGPIOGet   byte = 0x51
	cmdI2CWrite  byte = 0x90
	cmdI2CRead   byte = 0x91
	cmdSetParams byte = 0xB1
)

var ErrCommandFailed = errors.New("mcp2221: command failed")
var ErrNotFound = errors.New("mcp2221: device not found")

var _ iqs269.I2CBus = &MCP2221{}

// MCP2221 owns one open HID handle; commands are 64-byte request/response
// report pairs and are serialized by the embedded mutex.
type MCP2221 struct {
	mx           sync.Mutex
	dev          *hid.Device
	request      []byte
	response     []byte
	responseWait time.Duration
}

func NewMCP2221() *MCP2221 {
	return &MCP2221{
		request:      make([]byte, 64),
		response:     make([]byte, 64),
		responseWait: 50 * time.Millisecond,
	}
}

func (d *MCP2221) Init() error {
	devs := hid.Enumerate(VendorID, ProductID)
	if len(devs) == 0 {
		return ErrNotFound
	}
	if len(devs) > 1 {
		return fmt.Errorf("mcp2221: ambiguous device identification (%d candidates)", len(devs))
	}
	dev, err := devs[0].Open()
	if err != nil {
		return fmt.Errorf("mcp2221: could not open device: %w", err)
	}
	d.dev = dev
	return nil
}

func (d *MCP2221) Close() error {
	if d.dev == nil {
		return nil
	}
	return d.dev.Close()
}

func (d *MCP2221) WriteToAddr(ctx context.Context, address byte, buffer []byte) error {
	d.mx.Lock()
	defer d.mx.Unlock()
	d.resetBuffers()
	d.request[0] = cmdI2CWrite
	binary.LittleEndian.PutUint16(d.request[1:3], uint16(len(buffer)))
	d.request[3] = address << 1
	copy(d.request[4:], buffer)
	if err := d.send(ctx); err != nil {
		return fmt.Errorf("write to %x failed: %w", address, err)
	}
	if d.response[1] == 0x01 {
		slog.Debug("mcp2221 engine busy")
		return iqs269.ErrBusBusy
	}
	return nil
}

func (d *MCP2221) ReadFromAddr(ctx context.Context, address byte, buffer []byte) error {
	d.mx.Lock()
	defer d.mx.Unlock()
	d.resetBuffers()
	d.request[0] = cmdI2CRead
	binary.LittleEndian.PutUint16(d.request[1:3], uint16(len(buffer)))
	d.request[3] = address<<1 + 1
	if err := d.send(ctx); err != nil {
		return fmt.Errorf("bus read from %x failed: %w", address, err)
	}
	d.request[0] = cmdReadData
	resetBuffer(d.response)
	if err := d.send(ctx); err != nil {
		return fmt.Errorf("error getting read data from adapter: %w", err)
	}
	if d.response[1] == 0x41 {
		return fmt.Errorf("mcp2221: error reading I2C slave data from the engine")
	}
	if d.response[3] == 127 || int(d.response[3]) != len(buffer) {
		return fmt.Errorf("mcp2221: invalid data size byte; expected %d, got %d", len(buffer), d.response[3])
	}
	copy(buffer, d.response[4:])
	return nil
}

// Release cancels any pending transfer and returns the engine to idle.
func (d *MCP2221) Release(ctx context.Context) error {
	d.mx.Lock()
	defer d.mx.Unlock()
	d.resetBuffers()
	d.request[0] = cmdStatus
	d.request[2] = 0x10
	if err := d.send(ctx); err != nil {
		return fmt.Errorf("bus release failed: %w", err)
	}
	return nil
}

// GPIO reads the current level of one GPIO pin (0-3).
func (d *MCP2221) GPIO(ctx context.Context, pin int) (bool, error) {
	if pin < 0 || pin > 3 {
		return false, fmt.Errorf("mcp2221: invalid GPIO pin %d", pin)
	}
	d.mx.Lock()
	defer d.mx.Unlock()
	d.resetBuffers()
	d.request[0] = cmdGPIOGet
	if err := d.send(ctx); err != nil {
		return false, fmt.Errorf("read GPIO values failed: %w", err)
	}
	if d.response[1] == 0x01 {
		return false, ErrCommandFailed
	}
	// Pin values sit at every other byte starting at offset 2.
	return d.response[2+pin*2] != 0, nil
}

func (d *MCP2221) send(ctx context.Context) error {
	if d.dev == nil {
		return ErrNotFound
	}
	n, err := d.dev.Write(d.request)
	if err != nil {
		return fmt.Errorf("could not write request: %w", err)
	}
	if n != len(d.request) {
		return fmt.Errorf("short write: %d", n)
	}
	timer := time.NewTimer(d.responseWait)
	defer timer.Stop()
	select {
	case <-timer.C:
	case <-ctx.Done():
		return ctx.Err()
	}
	n, err = d.dev.Read(d.response)
	if err != nil {
		return fmt.Errorf("could not read response: %w", err)
	}
	if n != len(d.response) {
		return fmt.Errorf("short read: %d", n)
	}
	return nil
}

func (d *MCP2221) resetBuffers() {
	resetBuffer(d.request)
	resetBuffer(d.response)
}

func resetBuffer(buf []byte) {
	for i := range buf {
		buf[i] = 0x00
	}
}

// RDYLine polls a GPIO pin wired to the controller RDY output and reports
// falling edges (the device asserts RDY low). It satisfies
// iqs269.InterruptLine so the driver can mask it around unsolicited reads.
type RDYLine struct {
	adapter  *MCP2221
	pin      int
	interval time.Duration

	mx       sync.Mutex
	disabled bool
	last     bool
}

func NewRDYLine(adapter *MCP2221, pin int, interval time.Duration) *RDYLine {
	return &RDYLine{adapter: adapter, pin: pin, interval: interval, last: true}
}

func (l *RDYLine) Disable() {
	l.mx.Lock()
	l.disabled = true
	l.mx.Unlock()
}

func (l *RDYLine) Enable() {
	l.mx.Lock()
	l.disabled = false
	l.mx.Unlock()
}

// Wait blocks until RDY is observed asserted (low) or the context ends.
func (l *RDYLine) Wait(ctx context.Context) error {
	ticker := time.NewTicker(l.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
		l.mx.Lock()
		disabled := l.disabled
		l.mx.Unlock()
		if disabled {
			continue
		}
		level, err := l.adapter.GPIO(ctx, l.pin)
		if err != nil {
			return err
		}
		l.mx.Lock()
		fell := l.last && !level
		l.last = level
		l.mx.Unlock()
		if fell {
			return nil
		}
	}
}
