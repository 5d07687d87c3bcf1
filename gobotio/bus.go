// Package gobotio adapts a gobot I2C platform adaptor to the driver bus
// interface, for boards (NanoPi and friends) supported by gobot rather
// than by a plain /dev/i2c device.
package gobotio

import (
	"context"
	"fmt"
	"sync"

	"gobot.io/x/gobot/v2/drivers/i2c"

	"github.com/mklimuk/iqs269"
)

var _ iqs269.I2CBus = &Bus{}

// Bus wraps a gobot connector. Gobot binds a driver to a single slave
// address, so one driver is kept per address seen.
type Bus struct {
	mx      sync.Mutex
	adaptor i2c.Connector
	bus     int
	drivers map[byte]*i2c.GenericDriver
}

func NewBus(adaptor i2c.Connector, bus int) *Bus {
	return &Bus{
		adaptor: adaptor,
		bus:     bus,
		drivers: map[byte]*i2c.GenericDriver{},
	}
}

func (b *Bus) driver(address byte) (*i2c.GenericDriver, error) {
	if d, ok := b.drivers[address]; ok {
		return d, nil
	}
	d := i2c.NewGenericDriver(b.adaptor, "iqs269", int(address), func(c i2c.Config) {
		c.SetBus(b.bus)
	})
	if err := d.Start(); err != nil {
		return nil, fmt.Errorf("driver start error: %w", err)
	}
	b.drivers[address] = d
	return d, nil
}

func (b *Bus) WriteToAddr(_ context.Context, address byte, buffer []byte) error {
	b.mx.Lock()
	defer b.mx.Unlock()
	d, err := b.driver(address)
	if err != nil {
		return err
	}
	if err = d.Write(buffer); err != nil {
		return fmt.Errorf("write to %#x failed: %w", address, err)
	}
	return nil
}

func (b *Bus) ReadFromAddr(_ context.Context, address byte, buffer []byte) error {
	b.mx.Lock()
	defer b.mx.Unlock()
	d, err := b.driver(address)
	if err != nil {
		return err
	}
	if err = d.Read(buffer); err != nil {
		return fmt.Errorf("read from %#x failed: %w", address, err)
	}
	return nil
}

// Release halts all bound drivers; the adaptor itself stays connected.
func (b *Bus) Release(context.Context) error {
	b.mx.Lock()
	defer b.mx.Unlock()
	for addr, d := range b.drivers {
		if err := d.Halt(); err != nil {
			return fmt.Errorf("halt driver %#x: %w", addr, err)
		}
		delete(b.drivers, addr)
	}
	return nil
}
