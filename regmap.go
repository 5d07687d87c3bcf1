package iqs269

import (
	"context"
	"encoding/binary"
	"fmt"
)

// The device exposes a byte-addressable register space (8-bit addresses,
// 16-bit registers, big-endian on the wire). A read is a write of the start
// address followed by a read of the payload; a write carries the start
// address and the payload in a single transaction.
type regmap struct {
	bus  I2CBus
	addr byte
}

func newRegmap(bus I2CBus, addr byte) *regmap {
	return &regmap{bus: bus, addr: addr}
}

func (r *regmap) rawRead(ctx context.Context, reg byte, buf []byte) error {
	if err := r.bus.WriteToAddr(ctx, r.addr, []byte{reg}); err != nil {
		return fmt.Errorf("could not select register %#02x: %w", reg, err)
	}
	if err := r.bus.ReadFromAddr(ctx, r.addr, buf); err != nil {
		return fmt.Errorf("could not read %d bytes from register %#02x: %w", len(buf), reg, err)
	}
	return nil
}

func (r *regmap) rawWrite(ctx context.Context, reg byte, data []byte) error {
	buf := make([]byte, 0, len(data)+1)
	buf = append(buf, reg)
	buf = append(buf, data...)
	if err := r.bus.WriteToAddr(ctx, r.addr, buf); err != nil {
		return fmt.Errorf("could not write %d bytes to register %#02x: %w", len(data), reg, err)
	}
	return nil
}

func (r *regmap) readWord(ctx context.Context, reg byte) (uint16, error) {
	buf := make([]byte, 2)
	if err := r.rawRead(ctx, reg, buf); err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint16(buf), nil
}

func (r *regmap) writeWord(ctx context.Context, reg byte, val uint16) error {
	buf := make([]byte, 2)
	binary.BigEndian.PutUint16(buf, val)
	return r.rawWrite(ctx, reg, buf)
}

// updateBits performs a read-modify-write cycle on a single register.
func (r *regmap) updateBits(ctx context.Context, reg byte, mask, val uint16) error {
	old, err := r.readWord(ctx, reg)
	if err != nil {
		return err
	}
	next := (old &^ mask) | (val & mask)
	if next == old {
		return nil
	}
	return r.writeWord(ctx, reg, next)
}
