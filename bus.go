package iqs269

import (
	"context"
	"fmt"
)

var ErrBusBusy = fmt.Errorf("I2C engine is busy (command not completed)")

// I2CBus is the transport the driver talks through. Implementations live in
// the i2c (periph.io), adapter (MCP2221 over USB-HID) and gobotio packages.
type I2CBus interface {
	ReadFromAddr(ctx context.Context, address byte, buffer []byte) error
	WriteToAddr(ctx context.Context, address byte, buffer []byte) error
	Release(ctx context.Context) error
}

// InterruptLine gates delivery of the device RDY interrupt. Unsolicited bus
// traffic prompts the device to assert RDY, so the line is disabled around
// any host-initiated read that is not itself the interrupt handler.
type InterruptLine interface {
	Disable()
	Enable()
}

type nopInterruptLine struct{}

func (nopInterruptLine) Disable() {}
func (nopInterruptLine) Enable()  {}
