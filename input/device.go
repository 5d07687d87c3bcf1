// Package input exposes decoded controller events as a virtual Linux input
// device via /dev/uinput.
package input

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"log/slog"
	"os"
	"syscall"

	"golang.org/x/sys/unix"

	"github.com/mklimuk/iqs269"
)

const DevicePath = "/dev/uinput"

// uinput.h
const (
	maxNameSize = 80
	absSize     = 64

	devCreate  = 0x5501
	devDestroy = 0x5502
	setEvBit   = 0x40045564
	setKeyBit  = 0x40045565
	setAbsBit  = 0x40045567
	setSwBit   = 0x4004556d

	busVirtual = 0x06
)

// input-event-codes.h
const (
	evSyn uint16 = 0x00
	evKey uint16 = 0x01
	evAbs uint16 = 0x03
	evSw  uint16 = 0x05

	synReport uint16 = 0x00
	absX      uint16 = 0x00
)

type inputID struct {
	Bustype uint16
	Vendor  uint16
	Product uint16
	Version uint16
}

type userDev struct {
	Name       [maxNameSize]byte
	ID         inputID
	EffectsMax uint32
	Absmax     [absSize]int32
	Absmin     [absSize]int32
	Absfuzz    [absSize]int32
	Absflat    [absSize]int32
}

type event struct {
	Time  syscall.Timeval
	Type  uint16
	Code  uint16
	Value int32
}

var _ iqs269.EventSink = &Device{}

// Device is a created uinput node. Report methods follow kernel input
// semantics and do not return errors; write failures are logged.
type Device struct {
	name string
	file *os.File
	log  *slog.Logger
}

// NewKeypad creates a device announcing the given key and switch codes.
func NewKeypad(name string, keys []uint16, switches []uint16) (*Device, error) {
	f, err := openDeviceFile()
	if err != nil {
		return nil, err
	}
	if err = ioctl(f, setEvBit, uintptr(evKey)); err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("could not enable key events: %w", err)
	}
	for _, code := range keys {
		if code == 0 {
			continue
		}
		if err = ioctl(f, setKeyBit, uintptr(code)); err != nil {
			_ = f.Close()
			return nil, fmt.Errorf("could not register key %#x: %w", code, err)
		}
	}
	if len(switches) > 0 {
		if err = ioctl(f, setEvBit, uintptr(evSw)); err != nil {
			_ = f.Close()
			return nil, fmt.Errorf("could not enable switch events: %w", err)
		}
		for _, code := range switches {
			if err = ioctl(f, setSwBit, uintptr(code)); err != nil {
				_ = f.Close()
				return nil, fmt.Errorf("could not register switch %#x: %w", code, err)
			}
		}
	}
	if err = create(f, name, userDev{}); err != nil {
		_ = f.Close()
		return nil, err
	}
	return &Device{name: name, file: f, log: slog.With("device", name)}, nil
}

// NewSlider creates a device for one slider surface. In raw mode the
// coordinate is announced as ABS_X over the full 8-bit range together
// with BTN_TOUCH; otherwise only the gesture key codes are announced.
func NewSlider(name string, codes []uint16, raw bool) (*Device, error) {
	f, err := openDeviceFile()
	if err != nil {
		return nil, err
	}
	if err = ioctl(f, setEvBit, uintptr(evKey)); err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("could not enable key events: %w", err)
	}
	keys := codes
	if raw {
		keys = []uint16{iqs269.BtnTouch}
	}
	for _, code := range keys {
		if code == 0 {
			continue
		}
		if err = ioctl(f, setKeyBit, uintptr(code)); err != nil {
			_ = f.Close()
			return nil, fmt.Errorf("could not register key %#x: %w", code, err)
		}
	}
	var dev userDev
	if raw {
		if err = ioctl(f, setEvBit, uintptr(evAbs)); err != nil {
			_ = f.Close()
			return nil, fmt.Errorf("could not enable absolute axis events: %w", err)
		}
		if err = ioctl(f, setAbsBit, uintptr(absX)); err != nil {
			_ = f.Close()
			return nil, fmt.Errorf("could not register ABS_X: %w", err)
		}
		dev.Absmin[absX] = 0
		dev.Absmax[absX] = 255
	}
	if err = create(f, name, dev); err != nil {
		_ = f.Close()
		return nil, err
	}
	return &Device{name: name, file: f, log: slog.With("device", name)}, nil
}

func (d *Device) ReportKey(code uint16, pressed bool) {
	var value int32
	if pressed {
		value = 1
	}
	d.write(event{Type: evKey, Code: code, Value: value})
}

func (d *Device) ReportSwitch(code uint16, active bool) {
	var value int32
	if active {
		value = 1
	}
	d.write(event{Type: evSw, Code: code, Value: value})
}

func (d *Device) ReportAbs(value int32) {
	d.write(event{Type: evAbs, Code: absX, Value: value})
}

func (d *Device) Sync() {
	d.write(event{Type: evSyn, Code: synReport})
}

func (d *Device) Close() error {
	_ = ioctl(d.file, devDestroy, 0)
	return d.file.Close()
}

func (d *Device) write(ev event) {
	buf := new(bytes.Buffer)
	if err := binary.Write(buf, binary.LittleEndian, ev); err != nil {
		d.log.Error("could not encode input event", "error", err)
		return
	}
	if _, err := d.file.Write(buf.Bytes()); err != nil {
		d.log.Error("could not write input event", "type", ev.Type, "code", ev.Code, "error", err)
	}
}

func openDeviceFile() (*os.File, error) {
	f, err := os.OpenFile(DevicePath, syscall.O_WRONLY|syscall.O_NONBLOCK, 0660)
	if err != nil {
		return nil, fmt.Errorf("could not open %s: %w", DevicePath, err)
	}
	return f, nil
}

func create(f *os.File, name string, dev userDev) error {
	copy(dev.Name[:], name)
	dev.ID = inputID{Bustype: busVirtual, Vendor: 0x4f29, Product: 0x269a, Version: 1}
	buf := new(bytes.Buffer)
	if err := binary.Write(buf, binary.LittleEndian, dev); err != nil {
		return fmt.Errorf("could not encode device descriptor: %w", err)
	}
	if _, err := f.Write(buf.Bytes()); err != nil {
		return fmt.Errorf("could not write device descriptor: %w", err)
	}
	if err := ioctl(f, devCreate, 0); err != nil {
		return fmt.Errorf("could not create device: %w", err)
	}
	return nil
}

func ioctl(f *os.File, request uintptr, arg uintptr) error {
	_, _, errno := unix.Syscall(unix.SYS_IOCTL, f.Fd(), request, arg)
	if errno != 0 {
		return errno
	}
	return nil
}
