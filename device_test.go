package iqs269

import (
	"context"
	"encoding/binary"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func TestDevice_Probe(t *testing.T) {
	tests := []struct {
		name      string
		setupMock func(*MockI2CBus)
		wantErr   string
	}{
		{
			name: "success",
			setupMock: func(bus *MockI2CBus) {
				bus.expectRead(regVerInfo, []byte{verInfoProdNum, 0x01, 0x02, verInfoFwNum3})
			},
		},
		{
			name: "wrong product number",
			setupMock: func(bus *MockI2CBus) {
				bus.expectRead(regVerInfo, []byte{0x3B, 0x01, 0x02, 0x03})
			},
			wantErr: "unrecognized product number",
		},
		{
			name: "bus error",
			setupMock: func(bus *MockI2CBus) {
				bus.On("WriteToAddr", mock.Anything, byte(DefaultAddress), []byte{regVerInfo}).
					Return(errors.New("i2c write failed")).Once()
			},
			wantErr: "could not read version info",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			bus := new(MockI2CBus)
			tt.setupMock(bus)
			d := New(bus)

			err := d.Probe(context.Background())
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
			} else {
				require.NoError(t, err)
				assert.Equal(t, uint8(verInfoProdNum), d.VersionInfo().ProdNum)
				assert.Equal(t, uint8(verInfoFwNum3), d.VersionInfo().FwNum)
			}
			bus.AssertExpectations(t)
		})
	}
}

func TestDevice_ATITarget(t *testing.T) {
	d := newTestDevice()

	require.NoError(t, d.SetATITarget(2, 800))
	got, err := d.ATITarget(2)
	require.NoError(t, err)
	assert.Equal(t, uint32(800), got)

	// Targets quantize to 32-count steps.
	require.NoError(t, d.SetATITarget(2, 831))
	got, err = d.ATITarget(2)
	require.NoError(t, err)
	assert.Equal(t, uint32(800), got)

	// Out-of-range values leave the register word untouched.
	before := d.sysReg.Ch[2].EngineB
	var verr *ValidationError
	require.ErrorAs(t, d.SetATITarget(2, atiTargetMax+1), &verr)
	assert.Equal(t, before, d.sysReg.Ch[2].EngineB)

	_, err = d.ATITarget(NumChannels)
	require.ErrorAs(t, err, &verr)
}

func TestDevice_ATIBase(t *testing.T) {
	d := newTestDevice()

	for _, base := range []uint32{ATIBase75, ATIBase100, ATIBase150, ATIBase200} {
		require.NoError(t, d.SetATIBase(1, base))
		got, err := d.ATIBase(1)
		require.NoError(t, err)
		assert.Equal(t, base, got)
	}

	var verr *ValidationError
	require.ErrorAs(t, d.SetATIBase(1, 120), &verr)
	assert.Equal(t, "ati-base", verr.Field)
}

func TestDevice_ATIMode(t *testing.T) {
	d := newTestDevice()

	require.NoError(t, d.SetATIMode(5, 3))
	got, err := d.ATIMode(5)
	require.NoError(t, err)
	assert.Equal(t, uint32(3), got)

	var verr *ValidationError
	require.ErrorAs(t, d.SetATIMode(5, 4), &verr)
	assert.Equal(t, "ati-mode", verr.Field)
}

func TestDevice_TuningInvalidatesCalibration(t *testing.T) {
	d := newTestDevice()
	d.atiCurrent = true

	require.NoError(t, d.SetATITarget(0, 640))
	assert.False(t, d.atiCurrent)

	d.atiCurrent = true
	require.NoError(t, d.SetATIMode(0, 1))
	assert.False(t, d.atiCurrent)

	d.atiCurrent = true
	require.NoError(t, d.SetATIBase(0, ATIBase150))
	assert.False(t, d.atiCurrent)

	d.atiCurrent = true
	d.SetRxEnable(0x05)
	assert.False(t, d.atiCurrent)

	d.atiCurrent = true
	d.SetHallEnable(true)
	assert.False(t, d.atiCurrent)
}

func TestDevice_SelectChannel(t *testing.T) {
	d := newTestDevice()
	assert.Equal(t, uint32(0), d.SelectedChannel())

	require.NoError(t, d.SelectChannel(6))
	assert.Equal(t, uint32(6), d.SelectedChannel())

	var verr *ValidationError
	require.ErrorAs(t, d.SelectChannel(NumChannels), &verr)
	assert.Equal(t, uint32(6), d.SelectedChannel())

	d.sysReg.Ch[6].RxEnable = 0x41
	assert.Equal(t, uint8(0x41), d.RxEnable())
}

func TestDevice_CountsGuards(t *testing.T) {
	ctx := context.Background()

	// Uncommitted tuning changes.
	d := newTestDevice()
	_, err := d.Counts(ctx)
	assert.ErrorIs(t, err, ErrATIStale)

	// Hall sensing claims the counts readout.
	d = newTestDevice()
	d.atiCurrent = true
	d.hallEnable = true
	_, err = d.Counts(ctx)
	assert.ErrorIs(t, err, ErrCountsUnavailable)

	// Calibration still in flight.
	d = newTestDevice()
	d.atiCurrent = true
	_, err = d.Counts(ctx)
	assert.ErrorIs(t, err, ErrATIBusy)
}

func TestDevice_Counts(t *testing.T) {
	bus := new(MockI2CBus)
	d := New(bus, WithIRQDelay(0))
	d.atiCurrent = true
	d.atiDone.complete()
	require.NoError(t, d.SelectChannel(2))

	// Counts live two registers apart per channel and are little-endian.
	bus.expectRead(regChCounts+4, []byte{0x34, 0x12})

	counts, err := d.Counts(context.Background())
	require.NoError(t, err)
	assert.Equal(t, uint16(0x1234), counts)
	bus.AssertExpectations(t)
}

func TestDevice_Status(t *testing.T) {
	bus := new(MockI2CBus)
	d := New(bus, WithIRQDelay(0))
	bus.expectRead(regSysFlags, statusBuf(2<<sysFlagsPwrModeShift|sysFlagsInATI, 0, 0, 0, 0, 0))

	flags, err := d.Status(context.Background())
	require.NoError(t, err)
	assert.Equal(t, uint8(2), flags.PowerMode())
	assert.True(t, flags.Calibrating())
	bus.AssertExpectations(t)
}

func TestDevice_HallBin(t *testing.T) {
	word := make([]byte, 2)
	binary.BigEndian.PutUint16(word, 0x3A00)

	tests := []struct {
		name    string
		pads    uint8
		want    uint8
		wantErr error
	}{
		{name: "right pad", pads: hallPadRight, want: 0xA},
		{name: "left pad", pads: hallPadLeft, want: 0x3},
		{name: "no pad", pads: 0, wantErr: ErrHallPads},
		{name: "both pads", pads: hallPadRight | hallPadLeft, wantErr: ErrHallPads},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			bus := new(MockI2CBus)
			d := New(bus, WithIRQDelay(0))
			d.sysReg.Ch[HallChannelActive].RxEnable = tt.pads
			d.sysReg.Ch[HallChannelInactive].RxEnable = tt.pads
			bus.expectRead(regCalDataA, word)

			bin, err := d.HallBin(context.Background())
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
			} else {
				require.NoError(t, err)
				assert.Equal(t, tt.want, bin)
			}
			bus.AssertExpectations(t)
		})
	}
}

func TestDevice_Init(t *testing.T) {
	bus := new(MockI2CBus)
	d := New(bus, WithInitDelay(0))
	d.verInfo.FwNum = verInfoFwNum3
	d.sysReg.General = 0x0125

	// Hall UI matches the requested state already, so only the settings
	// block is written.
	bus.expectRead(regHallUI, []byte{0x00, 0x00})
	var block []byte
	bus.captureWrite(regSysSettings, &block)

	require.NoError(t, d.Init(context.Background()))
	require.Len(t, block, sysRegSize)
	assert.Equal(t, []byte{0x01, 0x25}, block[0:2])
	assert.True(t, d.atiCurrent)
	bus.AssertExpectations(t)
}

func TestDevice_InitHallUpdate(t *testing.T) {
	bus := new(MockI2CBus)
	d := New(bus, WithInitDelay(0))
	d.hallEnable = true

	bus.expectRead(regHallUI, []byte{0x00, 0x07})
	bus.expectWrite(regHallUI, []byte{0x80, 0x07})
	var block []byte
	bus.captureWrite(regSysSettings, &block)

	require.NoError(t, d.Init(context.Background()))
	bus.AssertExpectations(t)
}

func TestDevice_InitTWSUnlock(t *testing.T) {
	bus := new(MockI2CBus)
	d := New(bus, WithInitDelay(0), WithOTPOption(OTPOptionTWS))
	d.verInfo.FwNum = verInfoFwNum2

	// Early TWS silicon needs its factory options restored before any
	// other programming.
	bus.expectWrite(regTouchHoldSel, []byte{0x00, touchHoldDefaultCeil})
	bus.expectWrite(regOTPBank, []byte{0x58, 0x0F})
	bus.expectWrite(regOTPBank, []byte{0x59, 0xEF})
	bus.expectRead(regHallUI, []byte{0x00, 0x00})
	var block []byte
	bus.captureWrite(regSysSettings, &block)

	require.NoError(t, d.Init(context.Background()))
	bus.AssertExpectations(t)

	// Current silicon keeps its options across resets.
	bus = new(MockI2CBus)
	d = New(bus, WithInitDelay(0), WithOTPOption(OTPOptionTWS))
	d.verInfo.FwNum = verInfoFwNum3
	bus.expectRead(regHallUI, []byte{0x00, 0x00})
	bus.captureWrite(regSysSettings, &block)
	require.NoError(t, d.Init(context.Background()))
	bus.AssertExpectations(t)
}

func TestDevice_Configure(t *testing.T) {
	bus := new(MockI2CBus)
	d := New(bus, WithInitDelay(0))
	d.verInfo.FwNum = verInfoFwNum3

	seed := make([]byte, sysRegSize)
	seed[6] = 16 // normal-power rate survives an unconfigured field
	bus.expectRead(regSysSettings, seed)
	bus.expectRead(regHallUI, []byte{0x00, 0x00})
	var block []byte
	bus.captureWrite(regSysSettings, &block)

	cfg := &Config{
		Channels: []ChannelConfig{{
			Channel: 1,
			Events:  map[string]EventConfig{"touch": {Code: 30}},
		}},
	}
	require.NoError(t, d.Configure(context.Background(), cfg))

	require.Len(t, block, sysRegSize)
	var sys SysReg
	sys.decode(block)
	assert.Equal(t, uint8(1<<1), sys.Active)
	assert.Equal(t, uint8(16), sys.RateNP)
	assert.NotZero(t, sys.General&sysSettingsEventMode)
	assert.NotZero(t, sys.General&sysSettingsRedoATI)
	assert.Zero(t, sys.EventMask&eventMaskTouch)
	bus.AssertExpectations(t)
}

func TestDevice_ConfigureValidationLeavesDeviceUntouched(t *testing.T) {
	bus := new(MockI2CBus)
	d := New(bus, WithInitDelay(0))

	bus.expectRead(regSysSettings, make([]byte, sysRegSize))

	err := d.Configure(context.Background(), &Config{RateULPMs: u32(5000)})
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	// No write reached the device.
	bus.AssertExpectations(t)
}

func TestDevice_SuspendResume(t *testing.T) {
	bus := new(MockI2CBus)
	d := New(bus, WithIRQDelay(0))
	ctx := context.Background()

	general := sysSettingsEventMode | sysSettingsRedoATI | sysSettingsAckReset |
		uint16(2)<<sysSettingsPwrModeShift
	d.sysReg.General = general

	// One-shot trigger bits never reach a power transition write.
	stable := general &^ (sysSettingsRedoATI | sysSettingsAckReset)

	suspendWord := make([]byte, 2)
	binary.BigEndian.PutUint16(suspendWord, stable|sysSettingsDisAuto)
	bus.expectWrite(regSysSettings, suspendWord)
	require.NoError(t, d.Suspend(ctx))
	bus.AssertExpectations(t)

	// Resume first restores full power, then re-enables automatic mode
	// switching in a separate write.
	first := make([]byte, 2)
	binary.BigEndian.PutUint16(first, (stable|sysSettingsDisAuto)&^sysSettingsPwrModeMask)
	second := make([]byte, 2)
	binary.BigEndian.PutUint16(second, stable)
	bus.expectWrite(regSysSettings, first)
	bus.expectWrite(regSysSettings, second)
	require.NoError(t, d.Resume(ctx))
	bus.AssertExpectations(t)
}

func TestDevice_SuspendWithoutModeIsNoop(t *testing.T) {
	bus := new(MockI2CBus)
	d := New(bus)
	d.sysReg.General = sysSettingsEventMode

	require.NoError(t, d.Suspend(context.Background()))
	require.NoError(t, d.Resume(context.Background()))
	bus.AssertExpectations(t)
}

func TestDevice_TriggerATI(t *testing.T) {
	bus := new(MockI2CBus)
	d := New(bus, WithInitDelay(0), WithIRQDelay(0))
	d.verInfo.FwNum = verInfoFwNum3
	d.atiDone.complete()

	bus.expectRead(regHallUI, []byte{0x00, 0x00})
	var block []byte
	bus.captureWrite(regSysSettings, &block)

	// The interrupt path confirms completion shortly after reprogramming.
	go func() {
		time.Sleep(20 * time.Millisecond)
		d.atiDone.complete()
	}()

	require.NoError(t, d.TriggerATI(context.Background()))
	assert.True(t, d.Calibrated())
	bus.AssertExpectations(t)
}

func TestDevice_AttachSlider(t *testing.T) {
	d := newTestDevice()
	require.NoError(t, d.AttachSlider(0, &recordSink{}))
	require.NoError(t, d.AttachSlider(1, &recordSink{}))

	var verr *ValidationError
	require.ErrorAs(t, d.AttachSlider(2, &recordSink{}), &verr)
	require.ErrorAs(t, d.AttachSlider(-1, &recordSink{}), &verr)
}

func TestDevice_MutexSerializesTuning(t *testing.T) {
	d := newTestDevice()

	var wg sync.WaitGroup
	var busy int32
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(ch uint32) {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				assert.NoError(t, d.SetATITarget(ch, uint32(j%64)*32))
				_, err := d.ATITarget(ch)
				assert.NoError(t, err)
			}
			atomic.AddInt32(&busy, 1)
		}(uint32(i))
	}
	wg.Wait()
	assert.Equal(t, int32(8), atomic.LoadInt32(&busy))
}

func TestDevice_ConfigureSerializesWithTuning(t *testing.T) {
	bus := new(MockI2CBus)
	d := New(bus, WithInitDelay(0))
	d.verInfo.FwNum = verInfoFwNum3

	bus.expectRead(regSysSettings, make([]byte, sysRegSize))
	bus.expectRead(regHallUI, []byte{0x00, 0x00})
	var block []byte
	bus.captureWrite(regSysSettings, &block)

	// Tuning setters race the mirror seed and apply; the device mutex
	// keeps every mutation whole.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 200; i++ {
			assert.NoError(t, d.SetATITarget(0, uint32(i%64)*32))
		}
	}()
	require.NoError(t, d.Configure(context.Background(), &Config{}))
	<-done
	require.Len(t, block, sysRegSize)
	bus.AssertExpectations(t)
}
