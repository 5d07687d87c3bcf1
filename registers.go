package iqs269

import "encoding/binary"

// Register map (per datasheet)
//
//	0x00: version info (product/software/hardware/firmware numbers)
//	0x02: system flags, gesture byte and the four channel state bitmasks
//	0x08: per-channel filtered counts (little-endian, two registers apart)
//	0x30: slider coordinates
//	0x35: calibration data (Hall bins in the upper byte)
//	0x80: start of the system settings block
//	0x89: touch-and-hold timer ceiling (factory option only)
//	0xF5: Hall UI enable
const (
	regVerInfo           byte = 0x00
	regSysFlags          byte = 0x02
	regChCounts          byte = 0x08
	regSliderX           byte = 0x30
	regCalDataA          byte = 0x35
	regSysSettings       byte = 0x80
	regTouchHoldSel      byte = 0x89
	regOTPBank           byte = 0xF0
	regHallUI            byte = 0xF5
	maxRegister          byte = 0xFF
	verInfoProdNum            = 0x4F
	verInfoFwNum2             = 0x03
	verInfoFwNum3             = 0x10
	touchHoldDefaultCeil      = 0x14
)

// System flags (register 0x02)
const (
	sysFlagsShowReset    uint16 = 1 << 15
	sysFlagsPwrModeMask  uint16 = 0x3 << 11
	sysFlagsPwrModeShift        = 11
	sysFlagsInATI        uint16 = 1 << 10
)

// System settings word (first word of the 0x80 block)
const (
	sysSettingsClkDiv         uint16 = 1 << 15
	sysSettingsULPAuto        uint16 = 1 << 14
	sysSettingsDisAuto        uint16 = 1 << 13
	sysSettingsPwrModeMask    uint16 = 0x3 << 11
	sysSettingsPwrModeShift          = 11
	sysSettingsPwrModeMax            = 3
	sysSettingsULPUpdateMask  uint16 = 0x7 << 8
	sysSettingsULPUpdateShift        = 8
	sysSettingsULPUpdateMax          = 7
	sysSettingsSliderSwipe    uint16 = 1 << 7
	sysSettingsReseedOffset   uint16 = 1 << 6
	sysSettingsEventMode      uint16 = 1 << 5
	sysSettingsEventModeLP    uint16 = 1 << 4
	sysSettingsRedoATI        uint16 = 1 << 2
	sysSettingsAckReset       uint16 = 1 << 0
)

// Filter strength nibble quad
const (
	filtStrLPLTAMask  uint8 = 0x3 << 6
	filtStrLPLTAShift       = 6
	filtStrLPCntMask  uint8 = 0x3 << 4
	filtStrLPCntShift       = 4
	filtStrNPLTAMask  uint8 = 0x3 << 2
	filtStrNPLTAShift       = 2
	filtStrNPCntMask  uint8 = 0x3
	filtStrMax              = 3
)

// Event mask bits
const (
	eventMaskSys     uint8 = 1 << 6
	eventMaskGesture uint8 = 1 << 3
	eventMaskDeep    uint8 = 1 << 2
	eventMaskTouch   uint8 = 1 << 1
	eventMaskProx    uint8 = 1 << 0
)

// Report rate and timeout ceilings (milliseconds)
const (
	rateNPMsMax       = 255
	rateLPMsMax       = 255
	rateULPMsMax      = 4080
	timeoutPwrMsMax   = 130560
	timeoutLTAMsMax   = 130560
	timeoutTapMsMax   = 4080
	timeoutSwipeMsMax = 4080
	threshSwipeMax    = 255
	touchHoldMsMin    = 256
	touchHoldMsMax    = 65280
)

// Misc A word
const (
	miscAATIBandDisable  uint16 = 1 << 15
	miscAATILPOnly       uint16 = 1 << 14
	miscAATIBandTighten  uint16 = 1 << 13
	miscAFiltDisable     uint16 = 1 << 12
	miscAGPIO3SelectMask uint16 = 0x7 << 8
	miscAGPIO3SelectShift       = 8
	miscADualDir         uint16 = 1 << 6
	miscATxFreqMask      uint16 = 0x3 << 4
	miscATxFreqShift            = 4
	miscATxFreqMax              = 3
	miscAGlobalCapSize   uint16 = 1 << 0
)

// Misc B word
const (
	miscBReseedUISelMask  uint16 = 0x3 << 6
	miscBReseedUISelShift        = 6
	miscBReseedUISelMax          = 3
	miscBTrackingUIEnable uint16 = 1 << 4
	miscBFiltStrSlider    uint16 = 0x3
)

// Channel engine A word
const (
	engAMeasCapSize   uint16 = 1 << 15
	engARxGndInactive uint16 = 1 << 13
	engALocalCapSize  uint16 = 1 << 12
	engAATIModeMask   uint16 = 0x3 << 8
	engAATIModeShift         = 8
	engAATIModeMax           = 3
	engAInvLogic      uint16 = 1 << 7
	engAProjBiasMask  uint16 = 0x3 << 5
	engAProjBiasShift        = 5
	engAProjBiasMax          = 3
	engASenseModeMask uint16 = 0xF
	engASenseModeMax         = 15
)

// Channel engine B word
const (
	engBLocalCapEnable uint16 = 1 << 13
	engBSenseFreqMask  uint16 = 0x3 << 9
	engBSenseFreqShift        = 9
	engBSenseFreqMax          = 3
	engBStaticEnable   uint16 = 1 << 8
	engBATIBaseMask    uint16 = 0x3 << 6
	engBATIBase75      uint16 = 0x00
	engBATIBase100     uint16 = 0x40
	engBATIBase150     uint16 = 0x80
	engBATIBase200     uint16 = 0xC0
	engBATITargetMask  uint16 = 0x3F
	atiTargetMax              = 2016
)

// Per-channel limits
const (
	chWeightMax        = 255
	chThreshMax        = 255
	chHystDeepMask     uint8 = 0xF << 4
	chHystDeepShift          = 4
	chHystTouchMask    uint8 = 0xF
	chHystMax                = 15
)

// Hall-effect sensing repurposes a dedicated channel pair.
const (
	HallChannelInactive = 6
	HallChannelActive   = 7

	hallPadRight uint8 = 1 << 0
	hallPadLeft  uint8 = 1 << 1

	hallUIEnable uint16 = 1 << 15

	calDataAHallBinLMask  uint16 = 0xF << 12
	calDataAHallBinLShift        = 12
	calDataAHallBinRMask  uint16 = 0xF << 8
	calDataAHallBinRShift        = 8
)

const (
	// NumChannels is the number of sensing channels presented by the device.
	NumChannels = 8
	// NumSliders is the number of axial sliders presented by the device.
	NumSliders = 2
)

// VerInfo holds the version registers read once at probe time.
type VerInfo struct {
	ProdNum uint8
	SwNum   uint8
	HwNum   uint8
	FwNum   uint8
}

const verInfoSize = 4

func (v *VerInfo) decode(buf []byte) {
	v.ProdNum = buf[0]
	v.SwNum = buf[1]
	v.HwNum = buf[2]
	v.FwNum = buf[3]
}

// ChanReg mirrors one channel record inside the system settings block.
// The two engine words and the ATI compensation are big-endian on the wire.
type ChanReg struct {
	RxEnable    uint8
	TxEnable    uint8
	EngineA     uint16
	EngineB     uint16
	ATIComp     uint16
	Thresh      [3]uint8
	Hyst        uint8
	AssocSelect uint8
	AssocWeight uint8
}

const chanRegSize = 14

func (c *ChanReg) encode(buf []byte) {
	buf[0] = c.RxEnable
	buf[1] = c.TxEnable
	binary.BigEndian.PutUint16(buf[2:4], c.EngineA)
	binary.BigEndian.PutUint16(buf[4:6], c.EngineB)
	binary.BigEndian.PutUint16(buf[6:8], c.ATIComp)
	buf[8] = c.Thresh[0]
	buf[9] = c.Thresh[1]
	buf[10] = c.Thresh[2]
	buf[11] = c.Hyst
	buf[12] = c.AssocSelect
	buf[13] = c.AssocWeight
}

func (c *ChanReg) decode(buf []byte) {
	c.RxEnable = buf[0]
	c.TxEnable = buf[1]
	c.EngineA = binary.BigEndian.Uint16(buf[2:4])
	c.EngineB = binary.BigEndian.Uint16(buf[4:6])
	c.ATIComp = binary.BigEndian.Uint16(buf[6:8])
	c.Thresh[0] = buf[8]
	c.Thresh[1] = buf[9]
	c.Thresh[2] = buf[10]
	c.Hyst = buf[11]
	c.AssocSelect = buf[12]
	c.AssocWeight = buf[13]
}

// SysReg mirrors the full system settings block starting at register 0x80.
// It is written back to the device as one atomic raw block.
type SysReg struct {
	General      uint16
	Active       uint8
	Filter       uint8
	Reseed       uint8
	EventMask    uint8
	RateNP       uint8
	RateLP       uint8
	RateULP      uint8
	TimeoutPwr   uint8
	TimeoutRdy   uint8
	TimeoutLTA   uint8
	MiscA        uint16
	MiscB        uint16
	Blocking     uint8
	SliderSelect [NumSliders]uint8
	TimeoutTap   uint8
	TimeoutSwipe uint8
	ThreshSwipe  uint8
	RedoATI      uint8
	Ch           [NumChannels]ChanReg
}

// One padding byte sits between the blocking mask and the slider selects.
const sysRegSize = 24 + NumChannels*chanRegSize

func (s *SysReg) encode() []byte {
	buf := make([]byte, sysRegSize)
	binary.BigEndian.PutUint16(buf[0:2], s.General)
	buf[2] = s.Active
	buf[3] = s.Filter
	buf[4] = s.Reseed
	buf[5] = s.EventMask
	buf[6] = s.RateNP
	buf[7] = s.RateLP
	buf[8] = s.RateULP
	buf[9] = s.TimeoutPwr
	buf[10] = s.TimeoutRdy
	buf[11] = s.TimeoutLTA
	binary.BigEndian.PutUint16(buf[12:14], s.MiscA)
	binary.BigEndian.PutUint16(buf[14:16], s.MiscB)
	buf[16] = s.Blocking
	buf[18] = s.SliderSelect[0]
	buf[19] = s.SliderSelect[1]
	buf[20] = s.TimeoutTap
	buf[21] = s.TimeoutSwipe
	buf[22] = s.ThreshSwipe
	buf[23] = s.RedoATI
	for i := range s.Ch {
		s.Ch[i].encode(buf[24+i*chanRegSize:])
	}
	return buf
}

func (s *SysReg) decode(buf []byte) {
	s.General = binary.BigEndian.Uint16(buf[0:2])
	s.Active = buf[2]
	s.Filter = buf[3]
	s.Reseed = buf[4]
	s.EventMask = buf[5]
	s.RateNP = buf[6]
	s.RateLP = buf[7]
	s.RateULP = buf[8]
	s.TimeoutPwr = buf[9]
	s.TimeoutRdy = buf[10]
	s.TimeoutLTA = buf[11]
	s.MiscA = binary.BigEndian.Uint16(buf[12:14])
	s.MiscB = binary.BigEndian.Uint16(buf[14:16])
	s.Blocking = buf[16]
	s.SliderSelect[0] = buf[18]
	s.SliderSelect[1] = buf[19]
	s.TimeoutTap = buf[20]
	s.TimeoutSwipe = buf[21]
	s.ThreshSwipe = buf[22]
	s.RedoATI = buf[23]
	for i := range s.Ch {
		s.Ch[i].decode(buf[24+i*chanRegSize:])
	}
}

// StatusFlags is the snapshot read on every interrupt: the system flags word,
// the gesture byte (one nibble per slider) and the four channel state masks
// indexed by stOffset.
type StatusFlags struct {
	System  uint16
	Gesture uint8
	States  [4]uint8
}

// One padding byte follows the gesture byte on the wire.
const statusFlagsSize = 8

func (f *StatusFlags) decode(buf []byte) {
	f.System = binary.BigEndian.Uint16(buf[0:2])
	f.Gesture = buf[2]
	copy(f.States[:], buf[4:8])
}

// PowerMode reports the power mode the device is currently running in.
func (f StatusFlags) PowerMode() uint8 {
	return uint8((f.System & sysFlagsPwrModeMask) >> sysFlagsPwrModeShift)
}

// Calibrating reports whether an ATI cycle is in progress.
func (f StatusFlags) Calibrating() bool {
	return f.System&sysFlagsInATI != 0
}
