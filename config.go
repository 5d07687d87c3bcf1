package iqs269

// EventConfig overrides the threshold and hysteresis for one event on one
// channel and optionally binds an input code to it. A zero code leaves the
// event unbound.
type EventConfig struct {
	Thresh *uint32 `yaml:"thresh,omitempty"`
	Hyst   *uint32 `yaml:"hyst,omitempty"`
	Code   uint16  `yaml:"code,omitempty"`
}

// ChannelConfig describes one physical channel. Optional scalar fields are
// pointers so that absence means "keep the device default" rather than zero.
type ChannelConfig struct {
	Channel         uint32                 `yaml:"channel"`
	ReseedDisable   bool                   `yaml:"reseed-disable,omitempty"`
	BlockingEnable  bool                   `yaml:"blocking-enable,omitempty"`
	Slider0Select   bool                   `yaml:"slider0-select,omitempty"`
	Slider1Select   bool                   `yaml:"slider1-select,omitempty"`
	RxEnable        []uint32               `yaml:"rx-enable,omitempty"`
	TxEnable        []uint32               `yaml:"tx-enable,omitempty"`
	MeasCapDecrease bool                   `yaml:"meas-cap-decrease,omitempty"`
	RxFloatInactive bool                   `yaml:"rx-float-inactive,omitempty"`
	LocalCapSize    *uint32                `yaml:"local-cap-size,omitempty"`
	InvertEnable    bool                   `yaml:"invert-enable,omitempty"`
	ProjBias        *uint32                `yaml:"proj-bias,omitempty"`
	SenseMode       *uint32                `yaml:"sense-mode,omitempty"`
	SenseFreq       *uint32                `yaml:"sense-freq,omitempty"`
	StaticEnable    bool                   `yaml:"static-enable,omitempty"`
	ATIMode         *uint32                `yaml:"ati-mode,omitempty"`
	ATIBase         *uint32                `yaml:"ati-base,omitempty"`
	ATITarget       *uint32                `yaml:"ati-target,omitempty"`
	AssocSelect     []uint32               `yaml:"assoc-select,omitempty"`
	AssocWeight     *uint32                `yaml:"assoc-weight,omitempty"`
	Events          map[string]EventConfig `yaml:"events,omitempty"`
}

// Local capacitor sizing values accepted by ChannelConfig.LocalCapSize.
const (
	LocalCapSize0 = iota
	LocalCapSizeGlobalOnly
	LocalCapSizeGlobal0pF5
)

// Config is the declarative configuration the driver is built from. It maps
// onto the device's system settings block; every numeric field has an
// explicit maximum and quantized fields floor-divide on write.
type Config struct {
	HallEnable bool `yaml:"hall-enable,omitempty"`

	FiltStrLPLTA *uint32 `yaml:"filt-str-lp-lta,omitempty"`
	FiltStrLPCnt *uint32 `yaml:"filt-str-lp-cnt,omitempty"`
	FiltStrNPLTA *uint32 `yaml:"filt-str-np-lta,omitempty"`
	FiltStrNPCnt *uint32 `yaml:"filt-str-np-cnt,omitempty"`

	RateNPMs  *uint32 `yaml:"rate-np-ms,omitempty"`
	RateLPMs  *uint32 `yaml:"rate-lp-ms,omitempty"`
	RateULPMs *uint32 `yaml:"rate-ulp-ms,omitempty"`

	TimeoutPwrMs *uint32 `yaml:"timeout-pwr-ms,omitempty"`
	TimeoutLTAMs *uint32 `yaml:"timeout-lta-ms,omitempty"`

	ATIBandDisable    bool    `yaml:"ati-band-disable,omitempty"`
	ATILPOnly         bool    `yaml:"ati-lp-only,omitempty"`
	ATIBandTighten    bool    `yaml:"ati-band-tighten,omitempty"`
	FiltDisable       bool    `yaml:"filt-disable,omitempty"`
	GPIO3Select       *uint32 `yaml:"gpio3-select,omitempty"`
	DualDirection     bool    `yaml:"dual-direction,omitempty"`
	TxFreq            *uint32 `yaml:"tx-freq,omitempty"`
	GlobalCapIncrease bool    `yaml:"global-cap-increase,omitempty"`

	ReseedSelect   *uint32 `yaml:"reseed-select,omitempty"`
	TrackingEnable bool    `yaml:"tracking-enable,omitempty"`
	FiltStrSlider  *uint32 `yaml:"filt-str-slider,omitempty"`

	// TouchHoldMs is only meaningful when the touch-and-hold factory option
	// is set; the slider 1 selection register is repurposed for the ceiling.
	TouchHoldMs *uint32 `yaml:"touch-hold-ms,omitempty"`

	ClkDiv       bool    `yaml:"clk-div,omitempty"`
	SuspendMode  *uint32 `yaml:"suspend-mode,omitempty"`
	ULPUpdate    *uint32 `yaml:"ulp-update,omitempty"`
	ReseedOffset bool    `yaml:"reseed-offset,omitempty"`

	// SliderCodes binds gesture keycodes, row-major: four slots (tap, hold,
	// flick-positive, flick-negative) for slider 0 followed by slider 1.
	SliderCodes    []uint16 `yaml:"slider-codes,omitempty"`
	GestureSwipe   bool     `yaml:"gesture-swipe,omitempty"`
	TimeoutTapMs   *uint32  `yaml:"timeout-tap-ms,omitempty"`
	TimeoutSwipeMs *uint32  `yaml:"timeout-swipe-ms,omitempty"`
	ThreshSwipe    *uint32  `yaml:"thresh-swipe,omitempty"`

	Channels []ChannelConfig `yaml:"channels"`
}

// parseMask folds a list of channel indices into a bitmask. Up to eight
// entries, each a valid channel index.
func parseMask(field string, vals []uint32) (uint8, error) {
	if len(vals) > NumChannels {
		return 0, invalid(field, len(vals))
	}
	var mask uint8
	for _, v := range vals {
		if v >= NumChannels {
			return 0, invalid(field, v)
		}
		mask |= 1 << v
	}
	return mask, nil
}

func setNibblePair(dst *uint8, val uint32, mask uint8, shift int, field string) error {
	if val > filtStrMax {
		return invalid(field, val)
	}
	*dst &= ^mask
	*dst |= uint8(val) << shift
	return nil
}

// applyConfig rebuilds the mirrored system settings block from cfg. The
// mirror must already be seeded with the block read from the device so that
// unspecified fields keep their hardware defaults. Nothing is written to the
// device here; call Init afterwards.
func (d *Device) applyConfig(cfg *Config) error {
	sys := &d.sysReg
	d.hallEnable = cfg.HallEnable

	if v := cfg.FiltStrLPLTA; v != nil {
		if err := setNibblePair(&sys.Filter, *v, filtStrLPLTAMask, filtStrLPLTAShift, "filt-str-lp-lta"); err != nil {
			return err
		}
	}
	if v := cfg.FiltStrLPCnt; v != nil {
		if err := setNibblePair(&sys.Filter, *v, filtStrLPCntMask, filtStrLPCntShift, "filt-str-lp-cnt"); err != nil {
			return err
		}
	}
	if v := cfg.FiltStrNPLTA; v != nil {
		if err := setNibblePair(&sys.Filter, *v, filtStrNPLTAMask, filtStrNPLTAShift, "filt-str-np-lta"); err != nil {
			return err
		}
	}
	if v := cfg.FiltStrNPCnt; v != nil {
		if err := setNibblePair(&sys.Filter, *v, filtStrNPCntMask, 0, "filt-str-np-cnt"); err != nil {
			return err
		}
	}

	if v := cfg.RateNPMs; v != nil {
		if *v > rateNPMsMax {
			return invalid("rate-np-ms", *v)
		}
		sys.RateNP = uint8(*v)
	}
	if v := cfg.RateLPMs; v != nil {
		if *v > rateLPMsMax {
			return invalid("rate-lp-ms", *v)
		}
		sys.RateLP = uint8(*v)
	}
	if v := cfg.RateULPMs; v != nil {
		if *v > rateULPMsMax {
			return invalid("rate-ulp-ms", *v)
		}
		sys.RateULP = uint8(*v / 16)
	}
	if v := cfg.TimeoutPwrMs; v != nil {
		if *v > timeoutPwrMsMax {
			return invalid("timeout-pwr-ms", *v)
		}
		sys.TimeoutPwr = uint8(*v / 512)
	}
	if v := cfg.TimeoutLTAMs; v != nil {
		if *v > timeoutLTAMsMax {
			return invalid("timeout-lta-ms", *v)
		}
		sys.TimeoutLTA = uint8(*v / 512)
	}

	miscA := sys.MiscA
	miscB := sys.MiscB

	miscA &^= miscAATIBandDisable
	if cfg.ATIBandDisable {
		miscA |= miscAATIBandDisable
	}
	miscA &^= miscAATILPOnly
	if cfg.ATILPOnly {
		miscA |= miscAATILPOnly
	}
	miscA &^= miscAATIBandTighten
	if cfg.ATIBandTighten {
		miscA |= miscAATIBandTighten
	}
	miscA &^= miscAFiltDisable
	if cfg.FiltDisable {
		miscA |= miscAFiltDisable
	}
	if v := cfg.GPIO3Select; v != nil {
		if *v >= NumChannels {
			return invalid("gpio3-select", *v)
		}
		miscA &^= miscAGPIO3SelectMask
		miscA |= uint16(*v) << miscAGPIO3SelectShift
	}
	miscA &^= miscADualDir
	if cfg.DualDirection {
		miscA |= miscADualDir
	}
	if v := cfg.TxFreq; v != nil {
		if *v > miscATxFreqMax {
			return invalid("tx-freq", *v)
		}
		miscA &^= miscATxFreqMask
		miscA |= uint16(*v) << miscATxFreqShift
	}
	miscA &^= miscAGlobalCapSize
	if cfg.GlobalCapIncrease {
		miscA |= miscAGlobalCapSize
	}

	if v := cfg.ReseedSelect; v != nil {
		if *v > miscBReseedUISelMax {
			return invalid("reseed-select", *v)
		}
		miscB &^= miscBReseedUISelMask
		miscB |= uint16(*v) << miscBReseedUISelShift
	}
	miscB &^= miscBTrackingUIEnable
	if cfg.TrackingEnable {
		miscB |= miscBTrackingUIEnable
	}
	if v := cfg.FiltStrSlider; v != nil {
		if *v > filtStrMax {
			return invalid("filt-str-slider", *v)
		}
		miscB &^= miscBFiltStrSlider
		miscB |= uint16(*v)
	}

	sys.MiscA = miscA
	sys.MiscB = miscB

	sys.Active = 0
	sys.Reseed = 0
	sys.Blocking = 0
	sys.SliderSelect[0] = 0

	// With the touch-and-hold factory option the device asserts a pulse on
	// GPIO4 once a selected channel stays touched for a configurable time,
	// and the slider 1 selection register holds the timer ceiling instead.
	if d.otpOption&OTPOptionHold != 0 {
		switch v := cfg.TouchHoldMs; {
		case v != nil:
			if *v < touchHoldMsMin || *v > touchHoldMsMax {
				return invalid("touch-hold-ms", *v)
			}
			sys.SliderSelect[1] = uint8(*v / 256)
		case d.verInfo.FwNum < verInfoFwNum3:
			// The ceiling read back from early silicon is invalid if the
			// device soft-reset between power-on and the read; cache the
			// documented default so re-initialization always restores it.
			sys.SliderSelect[1] = touchHoldDefaultCeil
		}
	} else {
		sys.SliderSelect[1] = 0
	}

	sys.EventMask = ^eventMaskSys

	for i := range cfg.Channels {
		if err := d.applyChannel(&cfg.Channels[i]); err != nil {
			return err
		}
	}

	// All active channels participate when REDO-ATI is triggered manually.
	sys.RedoATI = sys.Active

	general := sys.General
	if cfg.ClkDiv {
		general |= sysSettingsClkDiv
	}

	// The device switches between normal and low-power modes on its own as
	// a function of sensing activity. Ultra-low-power mode, if configured,
	// is reserved for suspend.
	general &^= sysSettingsULPAuto
	general &^= sysSettingsDisAuto
	general &^= sysSettingsPwrModeMask
	if v := cfg.SuspendMode; v != nil {
		if *v > sysSettingsPwrModeMax {
			return invalid("suspend-mode", *v)
		}
		general |= uint16(*v) << sysSettingsPwrModeShift
	}
	if v := cfg.ULPUpdate; v != nil {
		if *v > sysSettingsULPUpdateMax {
			return invalid("ulp-update", *v)
		}
		general &^= sysSettingsULPUpdateMask
		general |= uint16(*v) << sysSettingsULPUpdateShift
	}

	if len(cfg.SliderCodes) > 0 {
		if len(cfg.SliderCodes) > int(NumGestures)*NumSliders {
			return invalid("slider-codes", len(cfg.SliderCodes))
		}
		for i, code := range cfg.SliderCodes {
			d.slCode[i/int(NumGestures)][i%int(NumGestures)] = code
		}

		if cfg.GestureSwipe {
			general |= sysSettingsSliderSwipe
		}

		// Early silicon uses a more granular step size for the tap and
		// swipe gesture timeouts.
		scale := uint32(1)
		if d.verInfo.FwNum < verInfoFwNum3 {
			scale = 4
		}
		if v := cfg.TimeoutTapMs; v != nil {
			if *v > timeoutTapMsMax/scale {
				return invalid("timeout-tap-ms", *v)
			}
			sys.TimeoutTap = uint8(*v / (16 / scale))
		}
		if v := cfg.TimeoutSwipeMs; v != nil {
			if *v > timeoutSwipeMsMax/scale {
				return invalid("timeout-swipe-ms", *v)
			}
			sys.TimeoutSwipe = uint8(*v / (16 / scale))
		}
		if v := cfg.ThreshSwipe; v != nil {
			if *v > threshSwipeMax {
				return invalid("thresh-swipe", *v)
			}
			sys.ThreshSwipe = uint8(*v)
		}

		sys.EventMask &^= eventMaskGesture
	}

	general &^= sysSettingsReseedOffset
	if cfg.ReseedOffset {
		general |= sysSettingsReseedOffset
	}

	general |= sysSettingsEventMode

	// Streaming is enabled during normal-power mode if raw coordinates will
	// be read from either slider; the device falls back to event mode in
	// low-power mode.
	if d.sliderType(0) == SliderRaw || d.sliderType(1) == SliderRaw {
		general |= sysSettingsEventModeLP
	}

	general |= sysSettingsRedoATI
	general |= sysSettingsAckReset

	sys.General = general

	return nil
}

func (d *Device) applyChannel(ch *ChannelConfig) error {
	if ch.Channel >= NumChannels {
		return invalid("channel number", ch.Channel)
	}
	reg := &d.sysReg.Ch[ch.Channel]
	bit := uint8(1) << ch.Channel

	d.sysReg.Active |= bit
	if !ch.ReseedDisable {
		d.sysReg.Reseed |= bit
	}
	if ch.BlockingEnable {
		d.sysReg.Blocking |= bit
	}
	if ch.Slider0Select {
		d.sysReg.SliderSelect[0] |= bit
	}
	if ch.Slider1Select && d.otpOption&OTPOptionHold == 0 {
		d.sysReg.SliderSelect[1] |= bit
	}

	if ch.RxEnable != nil {
		mask, err := parseMask("rx-enable", ch.RxEnable)
		if err != nil {
			return err
		}
		reg.RxEnable = mask
	}
	if ch.TxEnable != nil {
		mask, err := parseMask("tx-enable", ch.TxEnable)
		if err != nil {
			return err
		}
		reg.TxEnable = mask
	}

	engineA := reg.EngineA
	engineB := reg.EngineB

	engineA |= engAMeasCapSize
	if ch.MeasCapDecrease {
		engineA &^= engAMeasCapSize
	}
	engineA |= engARxGndInactive
	if ch.RxFloatInactive {
		engineA &^= engARxGndInactive
	}

	engineA &^= engALocalCapSize
	engineB &^= engBLocalCapEnable
	if v := ch.LocalCapSize; v != nil {
		switch *v {
		case LocalCapSize0:
		case LocalCapSizeGlobal0pF5:
			engineA |= engALocalCapSize
			fallthrough
		case LocalCapSizeGlobalOnly:
			engineB |= engBLocalCapEnable
		default:
			return invalid("local-cap-size", *v)
		}
	}

	engineA &^= engAInvLogic
	if ch.InvertEnable {
		engineA |= engAInvLogic
	}
	if v := ch.ProjBias; v != nil {
		if *v > engAProjBiasMax {
			return invalid("proj-bias", *v)
		}
		engineA &^= engAProjBiasMask
		engineA |= uint16(*v) << engAProjBiasShift
	}
	if v := ch.SenseMode; v != nil {
		if *v > engASenseModeMax {
			return invalid("sense-mode", *v)
		}
		engineA &^= engASenseModeMask
		engineA |= uint16(*v)
	}
	if v := ch.SenseFreq; v != nil {
		if *v > engBSenseFreqMax {
			return invalid("sense-freq", *v)
		}
		engineB &^= engBSenseFreqMask
		engineB |= uint16(*v) << engBSenseFreqShift
	}
	engineB &^= engBStaticEnable
	if ch.StaticEnable {
		engineB |= engBStaticEnable
	}

	reg.EngineA = engineA
	reg.EngineB = engineB

	if v := ch.ATIMode; v != nil {
		if err := d.setATIMode(ch.Channel, *v); err != nil {
			return err
		}
	}
	if v := ch.ATIBase; v != nil {
		if err := d.setATIBase(ch.Channel, *v); err != nil {
			return err
		}
	}
	if v := ch.ATITarget; v != nil {
		if err := d.setATITarget(ch.Channel, *v); err != nil {
			return err
		}
	}

	if ch.AssocSelect != nil {
		mask, err := parseMask("assoc-select", ch.AssocSelect)
		if err != nil {
			return err
		}
		reg.AssocSelect = mask
	}
	if v := ch.AssocWeight; v != nil {
		if *v > chWeightMax {
			return invalid("assoc-weight", *v)
		}
		reg.AssocWeight = uint8(*v)
	}

	for name, ev := range ch.Events {
		id, ok := eventByName(name)
		if !ok {
			return invalid("event name", name)
		}
		desc := &eventTable[id]

		if v := ev.Thresh; v != nil {
			if *v > chThreshMax {
				return invalid("thresh", *v)
			}
			reg.Thresh[desc.thOffs] = uint8(*v)
		}
		if v := ev.Hyst; v != nil {
			if *v > chHystMax {
				return invalid("hyst", *v)
			}
			switch id {
			case eventDeepDown, eventDeepUp:
				reg.Hyst &^= chHystDeepMask
				reg.Hyst |= uint8(*v) << chHystDeepShift
			case eventTouchDown, eventTouchUp:
				reg.Hyst &^= chHystTouchMask
				reg.Hyst |= uint8(*v)
			}
		}

		if ev.Code == 0 {
			continue
		}

		// Hall-effect sensing repurposes a dedicated channel pair, only
		// one of which produces a switch event.
		switch roleOf(int(ch.Channel)) {
		case RoleHallActive:
			if d.hallEnable {
				d.switches[id] = switchDesc{code: ev.Code, enabled: true}
				break
			}
			d.keycode[int(id)*NumChannels+int(ch.Channel)] = ev.Code
		case RoleHallInactive:
			if d.hallEnable {
				break
			}
			d.keycode[int(id)*NumChannels+int(ch.Channel)] = ev.Code
		default:
			d.keycode[int(id)*NumChannels+int(ch.Channel)] = ev.Code
		}

		// A bound event reports; clear its bit from the masked defaults.
		d.sysReg.EventMask &^= desc.mask
	}

	return nil
}
