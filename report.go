package iqs269

import (
	"context"
	"fmt"
)

// ServiceInterrupt runs the full decode pipeline for one assertion of the
// device RDY line. A non-nil return means the interrupt was not serviced and
// the host may re-deliver it.
func (d *Device) ServiceInterrupt(ctx context.Context) error {
	buf := make([]byte, statusFlagsSize)
	if err := d.regmap.rawRead(ctx, regSysFlags, buf); err != nil {
		return fmt.Errorf("iqs269: could not read device status: %w", err)
	}
	var flags StatusFlags
	flags.decode(buf)

	d.mx.Lock()
	defer d.mx.Unlock()

	// The device resets itself if its own watchdog bites, which can happen
	// after an I2C communication error. Nothing about its state can be
	// trusted until every register is restored, so no events are reported
	// on this pass.
	if flags.System&sysFlagsShowReset != 0 {
		d.log.Error("unexpected device reset")
		if err := d.initLocked(ctx); err != nil {
			d.log.Error("failed to re-initialize device", "error", err)
			return err
		}
		return nil
	}

	if flags.System&sysFlagsInATI != 0 {
		return nil
	}

	var sliderX [NumSliders]uint8
	if d.sliderType(0) == SliderRaw || d.sliderType(1) == SliderRaw {
		pos := make([]byte, NumSliders)
		if err := d.regmap.rawRead(ctx, regSliderX, pos); err != nil {
			return fmt.Errorf("iqs269: could not read slider position: %w", err)
		}
		copy(sliderX[:], pos)
	}

	for i := 0; i < NumSliders; i++ {
		gesture := flags.Gesture >> (i * int(NumGestures))

		switch d.sliderType(i) {
		case SliderNone:
			continue

		case SliderKey:
			for j := Gesture(0); j < NumGestures; j++ {
				d.slider[i].ReportKey(d.slCode[i][j], gesture&(1<<j) != 0)
			}

			momentary := uint8(1<<GestureTap | 1<<GestureFlickPos | 1<<GestureFlickNeg)
			if gesture&momentary != 0 {
				d.slider[i].Sync()

				// Momentary gestures are followed by a complementary
				// release cycle so a full keystroke is emulated without
				// waiting for a second interrupt.
				for j := Gesture(0); j < NumGestures; j++ {
					if j != GestureHold {
						d.slider[i].ReportKey(d.slCode[i][j], false)
					}
				}
			}

		case SliderRaw:
			// The slider is touched if any of its selected channels is.
			state := flags.States[stOffsetTouch] & d.sysReg.SliderSelect[i]
			d.slider[i].ReportKey(BtnTouch, state != 0)
			if state != 0 {
				d.slider[i].ReportAbs(int32(sliderX[i]))
			}
		}

		d.slider[i].Sync()
	}

	for i := eventID(0); i < numEvents; i++ {
		dirMask := flags.States[stOffsetDir]
		if !eventTable[i].dirUp {
			dirMask = ^dirMask
		}
		state := flags.States[eventTable[i].stOffs] & dirMask

		for j := 0; j < NumChannels; j++ {
			keycode := d.keycode[int(i)*NumChannels+j]
			bit := state&(1<<j) != 0

			switch roleOf(j) {
			case RoleHallActive:
				if d.hallEnable && d.switches[i].enabled {
					d.keypad.ReportSwitch(d.switches[i].code, bit)
				}
				if d.hallEnable {
					continue
				}
			case RoleHallInactive:
				if d.hallEnable {
					continue
				}
			}
			if keycode != 0 {
				d.keypad.ReportKey(keycode, bit)
			}
		}
	}

	d.keypad.Sync()

	// The first full decode confirms that calibration has finished and the
	// initial switch states have been reported; signaling again later is a
	// no-op.
	d.atiDone.complete()

	return nil
}
