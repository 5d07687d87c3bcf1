package iqs269

import (
	"context"
	"encoding/binary"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// DefaultAddress is the 7-bit I2C address of the controller.
const DefaultAddress = 0x44

// OTPOption selects factory (one-time-programmable) behavior of the part.
type OTPOption uint8

const (
	OTPOptionDefault OTPOption = 0x00
	OTPOptionTWS     OTPOption = 0xD0
	// OTPOptionHold is the bit that marks touch-and-hold variants.
	OTPOptionHold OTPOption = 0x80
)

// ATI base percentages accepted by SetATIBase.
const (
	ATIBase75  = 75
	ATIBase100 = 100
	ATIBase150 = 150
	ATIBase200 = 200
)

const (
	atiWaitTimeout   = 2000 * time.Millisecond
	defaultInitDelay = 2 * time.Millisecond
	defaultIRQDelay  = 200 * time.Microsecond
)

type Opts struct {
	Address   byte
	OTPOption OTPOption
	// InitDelay gives the device time to deassert RDY after the settings
	// block is written, so an interrupt is not serviced prematurely.
	InitDelay time.Duration
	// IRQDelay is the settle time after unsolicited bus traffic before the
	// interrupt line is re-enabled.
	IRQDelay time.Duration
	Logger   *slog.Logger
}

type Opt func(*Opts)

func WithAddress(addr byte) Opt {
	return func(o *Opts) { o.Address = addr }
}

func WithOTPOption(opt OTPOption) Opt {
	return func(o *Opts) { o.OTPOption = opt }
}

func WithInitDelay(d time.Duration) Opt {
	return func(o *Opts) { o.InitDelay = d }
}

func WithIRQDelay(d time.Duration) Opt {
	return func(o *Opts) { o.IRQDelay = d }
}

func WithLogger(log *slog.Logger) Opt {
	return func(o *Opts) { o.Logger = log }
}

// Device drives one IQS269A. All mutable state shared between the interrupt
// path and the tuning interface lives behind a single mutex; tuning writes
// and a reset-triggered reinitialization can never interleave partially.
type Device struct {
	mx     sync.Mutex
	regmap *regmap
	log    *slog.Logger
	irq    InterruptLine
	config Opts

	verInfo   VerInfo
	sysReg    SysReg
	otpOption OTPOption

	keycode  [int(numEvents) * NumChannels]uint16
	slCode   [NumSliders][NumGestures]uint16
	switches [numEvents]switchDesc

	keypad EventSink
	slider [NumSliders]EventSink

	chNum      uint8
	hallEnable bool

	// atiCurrent is false whenever the mirrored configuration diverges from
	// what was last programmed; only a successful Init sets it back.
	atiCurrent bool
	atiDone    *completion
}

func New(bus I2CBus, opts ...Opt) *Device {
	config := Opts{
		Address:   DefaultAddress,
		OTPOption: OTPOptionDefault,
		InitDelay: defaultInitDelay,
		IRQDelay:  defaultIRQDelay,
		Logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(&config)
	}
	return &Device{
		regmap:    newRegmap(bus, config.Address),
		log:       config.Logger,
		irq:       nopInterruptLine{},
		config:    config,
		otpOption: config.OTPOption,
		keypad:    nopSink{},
		slider:    [NumSliders]EventSink{nopSink{}, nopSink{}},
		atiDone:   newCompletion(),
	}
}

// SetInterruptLine attaches the control for the RDY interrupt so the driver
// can suppress it around unsolicited bus reads. Call before Configure.
func (d *Device) SetInterruptLine(irq InterruptLine) {
	d.irq = irq
}

// AttachKeypad connects the sink for key and switch events.
func (d *Device) AttachKeypad(sink EventSink) {
	d.keypad = sink
}

// AttachSlider connects the sink for slider events.
func (d *Device) AttachSlider(num int, sink EventSink) error {
	if num < 0 || num >= NumSliders {
		return invalid("slider number", num)
	}
	d.slider[num] = sink
	return nil
}

// Probe reads the version registers and verifies the product number.
func (d *Device) Probe(ctx context.Context) error {
	buf := make([]byte, verInfoSize)
	if err := d.regmap.rawRead(ctx, regVerInfo, buf); err != nil {
		return fmt.Errorf("iqs269: could not read version info: %w", err)
	}
	d.verInfo.decode(buf)
	if d.verInfo.ProdNum != verInfoProdNum {
		return fmt.Errorf("iqs269: unrecognized product number: %#02x", d.verInfo.ProdNum)
	}
	return nil
}

// VersionInfo returns the version registers read by Probe.
func (d *Device) VersionInfo() VerInfo {
	return d.verInfo
}

// Configure seeds the configuration mirror from the device, applies cfg on
// top of it and programs the result. A validation failure leaves the device
// untouched.
func (d *Device) Configure(ctx context.Context, cfg *Config) error {
	buf := make([]byte, sysRegSize)
	if err := d.regmap.rawRead(ctx, regSysSettings, buf); err != nil {
		return fmt.Errorf("iqs269: could not read settings block: %w", err)
	}
	d.mx.Lock()
	defer d.mx.Unlock()
	d.sysReg.decode(buf)

	if err := d.applyConfig(cfg); err != nil {
		return err
	}
	return d.initLocked(ctx)
}

// Init programs the full settings block. It is also re-run from the
// interrupt path after an unsolicited reset.
func (d *Device) Init(ctx context.Context) error {
	d.mx.Lock()
	defer d.mx.Unlock()
	return d.initLocked(ctx)
}

var twsUnlock = []struct {
	reg byte
	val uint16
}{
	{regTouchHoldSel, touchHoldDefaultCeil},
	{regOTPBank, 0x580F},
	{regOTPBank, 0x59EF},
}

func (d *Device) initLocked(ctx context.Context) error {
	// Early silicon loses OTP-enabled functionality across a soft reset;
	// the unlock sequence restores it.
	if d.otpOption == OTPOptionTWS && d.verInfo.FwNum < verInfoFwNum3 {
		for _, w := range twsUnlock {
			if err := d.regmap.writeWord(ctx, w.reg, w.val); err != nil {
				return fmt.Errorf("iqs269: OTP restore write failed: %w", err)
			}
		}
	}

	var hall uint16
	if d.hallEnable {
		hall = hallUIEnable
	}
	if err := d.regmap.updateBits(ctx, regHallUI, hallUIEnable, hall); err != nil {
		return fmt.Errorf("iqs269: could not update hall UI: %w", err)
	}

	if err := d.regmap.rawWrite(ctx, regSysSettings, d.sysReg.encode()); err != nil {
		return fmt.Errorf("iqs269: could not write settings block: %w", err)
	}

	// Give the device time to deassert RDY before the next interrupt is
	// serviced.
	if err := sleep(ctx, d.config.InitDelay); err != nil {
		return err
	}

	d.atiCurrent = true
	return nil
}

func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (d *Device) irqWait(ctx context.Context) {
	_ = sleep(ctx, d.config.IRQDelay)
}

// sliderType classifies a slider from the current configuration. It is
// re-evaluated on demand, never cached.
func (d *Device) sliderType(num int) SliderType {
	// Slider 1 is unavailable on touch-and-hold variants; its selection
	// register holds the timer ceiling instead.
	if num == 1 && d.otpOption&OTPOptionHold != 0 {
		return SliderNone
	}
	if d.sysReg.SliderSelect[num] == 0 {
		return SliderNone
	}
	for _, code := range d.slCode[num] {
		if code != 0 {
			return SliderKey
		}
	}
	return SliderRaw
}

// SliderClass reports how slider num is currently classified.
func (d *Device) SliderClass(num int) SliderType {
	d.mx.Lock()
	defer d.mx.Unlock()
	return d.sliderType(num)
}

// SliderCodes returns the gesture keycodes bound to slider num.
func (d *Device) SliderCodes(num int) []uint16 {
	var codes []uint16
	for _, code := range d.slCode[num] {
		if code != 0 {
			codes = append(codes, code)
		}
	}
	return codes
}

// KeypadCodes returns the key and switch codes the keypad surface can emit.
func (d *Device) KeypadCodes() (keys, switches []uint16) {
	for i := 0; i < int(numEvents); i++ {
		for j := 0; j < NumChannels; j++ {
			code := d.keycode[i*NumChannels+j]
			switch roleOf(j) {
			case RoleHallActive:
				if d.hallEnable && d.switches[i].enabled {
					switches = append(switches, d.switches[i].code)
				}
				if d.hallEnable {
					continue
				}
			case RoleHallInactive:
				if d.hallEnable {
					continue
				}
			}
			if code != 0 {
				keys = append(keys, code)
			}
		}
	}
	return keys, switches
}

func (d *Device) checkChannel(ch uint32) error {
	if ch >= NumChannels {
		return invalid("channel number", ch)
	}
	return nil
}

// SetATIMode programs the ATI mode (0-3) of one channel into the engine A
// word. The change only reaches the device on the next Init.
func (d *Device) SetATIMode(ch, mode uint32) error {
	if err := d.checkChannel(ch); err != nil {
		return err
	}
	d.mx.Lock()
	defer d.mx.Unlock()
	return d.setATIMode(ch, mode)
}

func (d *Device) setATIMode(ch, mode uint32) error {
	if mode > engAATIModeMax {
		return invalid("ati-mode", mode)
	}
	reg := &d.sysReg.Ch[ch]
	reg.EngineA &^= engAATIModeMask
	reg.EngineA |= uint16(mode) << engAATIModeShift
	d.atiCurrent = false
	return nil
}

// ATIMode reads the ATI mode of one channel from the mirror.
func (d *Device) ATIMode(ch uint32) (uint32, error) {
	if err := d.checkChannel(ch); err != nil {
		return 0, err
	}
	d.mx.Lock()
	defer d.mx.Unlock()
	return uint32(d.sysReg.Ch[ch].EngineA&engAATIModeMask) >> engAATIModeShift, nil
}

// SetATIBase programs the ATI base percentage (75, 100, 150 or 200) of one
// channel into the engine B word.
func (d *Device) SetATIBase(ch, base uint32) error {
	if err := d.checkChannel(ch); err != nil {
		return err
	}
	d.mx.Lock()
	defer d.mx.Unlock()
	return d.setATIBase(ch, base)
}

func (d *Device) setATIBase(ch, base uint32) error {
	var bits uint16
	switch base {
	case ATIBase75:
		bits = engBATIBase75
	case ATIBase100:
		bits = engBATIBase100
	case ATIBase150:
		bits = engBATIBase150
	case ATIBase200:
		bits = engBATIBase200
	default:
		return invalid("ati-base", base)
	}
	reg := &d.sysReg.Ch[ch]
	reg.EngineB &^= engBATIBaseMask
	reg.EngineB |= bits
	d.atiCurrent = false
	return nil
}

// ATIBase reads the ATI base percentage of one channel from the mirror. An
// on-device bit pattern outside the four known encodings is surfaced as
// ErrUnknownATIBase.
func (d *Device) ATIBase(ch uint32) (uint32, error) {
	if err := d.checkChannel(ch); err != nil {
		return 0, err
	}
	d.mx.Lock()
	defer d.mx.Unlock()
	switch d.sysReg.Ch[ch].EngineB & engBATIBaseMask {
	case engBATIBase75:
		return ATIBase75, nil
	case engBATIBase100:
		return ATIBase100, nil
	case engBATIBase150:
		return ATIBase150, nil
	case engBATIBase200:
		return ATIBase200, nil
	default:
		return 0, ErrUnknownATIBase
	}
}

// SetATITarget programs the ATI target (0-2016) of one channel. The target
// is stored as target/32, so reads round-trip only on multiples of 32; the
// quantization is intentional and matches the 6-bit field on the device.
func (d *Device) SetATITarget(ch, target uint32) error {
	if err := d.checkChannel(ch); err != nil {
		return err
	}
	d.mx.Lock()
	defer d.mx.Unlock()
	return d.setATITarget(ch, target)
}

func (d *Device) setATITarget(ch, target uint32) error {
	if target > atiTargetMax {
		return invalid("ati-target", target)
	}
	reg := &d.sysReg.Ch[ch]
	reg.EngineB &^= engBATITargetMask
	reg.EngineB |= uint16(target / 32)
	d.atiCurrent = false
	return nil
}

// ATITarget reads the quantized ATI target of one channel from the mirror.
func (d *Device) ATITarget(ch uint32) (uint32, error) {
	if err := d.checkChannel(ch); err != nil {
		return 0, err
	}
	d.mx.Lock()
	defer d.mx.Unlock()
	return uint32(d.sysReg.Ch[ch].EngineB&engBATITargetMask) * 32, nil
}

// SelectChannel sets the channel subsequent tuning reads and writes apply to.
func (d *Device) SelectChannel(ch uint32) error {
	if err := d.checkChannel(ch); err != nil {
		return err
	}
	d.chNum = uint8(ch)
	return nil
}

// SelectedChannel returns the channel tuning operations currently target.
func (d *Device) SelectedChannel() uint32 {
	return uint32(d.chNum)
}

// RxEnable returns the raw receiver-enable mask of the selected channel.
func (d *Device) RxEnable() uint8 {
	d.mx.Lock()
	defer d.mx.Unlock()
	return d.sysReg.Ch[d.chNum].RxEnable
}

// SetRxEnable replaces the raw receiver-enable mask of the selected channel.
func (d *Device) SetRxEnable(mask uint8) {
	d.mx.Lock()
	defer d.mx.Unlock()
	d.sysReg.Ch[d.chNum].RxEnable = mask
	d.atiCurrent = false
}

// HallEnable reports whether Hall-effect sensing is enabled.
func (d *Device) HallEnable() bool {
	d.mx.Lock()
	defer d.mx.Unlock()
	return d.hallEnable
}

// SetHallEnable switches Hall-effect sensing on or off. Takes effect on the
// next Init.
func (d *Device) SetHallEnable(enable bool) {
	d.mx.Lock()
	defer d.mx.Unlock()
	d.hallEnable = enable
	d.atiCurrent = false
}

// Counts reads the filtered counts of the selected channel. The read is
// refused while Hall sensing is enabled, while the mirror has uncommitted
// calibration changes, or before calibration has signaled completion.
// Status reads the live system flags snapshot outside of the decode
// pipeline. Tuning consoles use it to inspect the device state.
func (d *Device) Status(ctx context.Context) (StatusFlags, error) {
	var flags StatusFlags
	d.irq.Disable()
	buf := make([]byte, statusFlagsSize)
	err := d.regmap.rawRead(ctx, regSysFlags, buf)
	d.irqWait(ctx)
	d.irq.Enable()
	if err != nil {
		return flags, fmt.Errorf("iqs269: could not read device status: %w", err)
	}
	flags.decode(buf)
	return flags, nil
}

func (d *Device) Counts(ctx context.Context) (uint16, error) {
	d.mx.Lock()
	if !d.atiCurrent || d.hallEnable {
		d.mx.Unlock()
		if d.hallEnable {
			return 0, ErrCountsUnavailable
		}
		return 0, ErrATIStale
	}
	ch := d.chNum
	d.mx.Unlock()

	if !d.atiDone.completed() {
		return 0, ErrATIBusy
	}

	d.irq.Disable()
	buf := make([]byte, 2)
	err := d.regmap.rawRead(ctx, regChCounts+ch*2, buf)
	d.irqWait(ctx)
	d.irq.Enable()
	if err != nil {
		return 0, fmt.Errorf("iqs269: could not read counts: %w", err)
	}
	// Counts are the one little-endian quantity in the register space.
	return binary.LittleEndian.Uint16(buf), nil
}

// HallBin reads back the calibration bin of the Hall pad wired to the
// dedicated channel pair.
func (d *Device) HallBin(ctx context.Context) (uint8, error) {
	d.irq.Disable()
	val, err := d.regmap.readWord(ctx, regCalDataA)
	d.irqWait(ctx)
	d.irq.Enable()
	if err != nil {
		return 0, fmt.Errorf("iqs269: could not read calibration data: %w", err)
	}

	d.mx.Lock()
	pads := d.sysReg.Ch[HallChannelActive].RxEnable & d.sysReg.Ch[HallChannelInactive].RxEnable
	d.mx.Unlock()

	switch pads {
	case hallPadRight:
		return uint8((val & calDataAHallBinRMask) >> calDataAHallBinRShift), nil
	case hallPadLeft:
		return uint8((val & calDataAHallBinLMask) >> calDataAHallBinLShift), nil
	default:
		return 0, ErrHallPads
	}
}

// TriggerATI reprograms the device and blocks until the next interrupt pass
// confirms that calibration finished, or atiWaitTimeout elapses.
func (d *Device) TriggerATI(ctx context.Context) error {
	d.irq.Disable()
	d.atiDone.reinit()
	err := d.Init(ctx)
	d.irqWait(ctx)
	d.irq.Enable()
	if err != nil {
		return err
	}
	return d.atiDone.wait(ctx, atiWaitTimeout)
}

// WaitCalibrated blocks until the first full decode after initialization has
// signaled calibration completion.
func (d *Device) WaitCalibrated(ctx context.Context) error {
	return d.atiDone.wait(ctx, atiWaitTimeout)
}

// Calibrated reports whether the mirror is committed and calibration has
// signaled completion.
func (d *Device) Calibrated() bool {
	d.mx.Lock()
	current := d.atiCurrent
	d.mx.Unlock()
	return current && d.atiDone.completed()
}

// generalWord derives the settings word used for power transitions: one-shot
// trigger bits cleared and automatic mode switching disabled.
func (d *Device) generalWord() uint16 {
	d.mx.Lock()
	general := d.sysReg.General
	d.mx.Unlock()
	general &^= sysSettingsRedoATI
	general &^= sysSettingsAckReset
	return general | sysSettingsDisAuto
}

// Suspend forces the configured suspend power mode. A configuration without
// a suspend mode leaves the device running.
func (d *Device) Suspend(ctx context.Context) error {
	general := d.generalWord()
	if general&sysSettingsPwrModeMask == 0 {
		return nil
	}

	d.irq.Disable()
	err := d.regmap.writeWord(ctx, regSysSettings, general)
	d.irqWait(ctx)
	d.irq.Enable()
	if err != nil {
		return fmt.Errorf("iqs269: suspend write failed: %w", err)
	}
	return nil
}

// Resume returns the device to full power and then re-enables automatic
// mode switching. The two writes stay separate so the device never samples
// an inconsistent intermediate word.
func (d *Device) Resume(ctx context.Context) error {
	general := d.generalWord()
	if general&sysSettingsPwrModeMask == 0 {
		return nil
	}

	d.irq.Disable()
	err := d.regmap.writeWord(ctx, regSysSettings, general&^sysSettingsPwrModeMask)
	if err == nil {
		err = d.regmap.writeWord(ctx, regSysSettings, general&^sysSettingsDisAuto)
	}
	d.irqWait(ctx)
	d.irq.Enable()
	if err != nil {
		return fmt.Errorf("iqs269: resume write failed: %w", err)
	}
	return nil
}
