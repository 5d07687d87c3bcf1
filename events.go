package iqs269

// State bitmask offsets within StatusFlags.States.
type stOffset int

const (
	stOffsetProx stOffset = iota
	stOffsetDir
	stOffsetTouch
	stOffsetDeep
)

// Threshold slots within ChanReg.Thresh.
type thOffset int

const (
	thOffsetProx thOffset = iota
	thOffsetTouch
	thOffsetDeep
)

type eventID int

const (
	eventProxDown eventID = iota
	eventProxUp
	eventTouchDown
	eventTouchUp
	eventDeepDown
	eventDeepUp
	numEvents
)

type eventDesc struct {
	name    string
	stOffs  stOffset
	thOffs  thOffset
	dirUp   bool
	mask    uint8
}

// eventTable is the single source of truth for event semantics: which state
// bitmask and threshold slot each event reads, whether it is the direction-up
// variant, and which event-mask bit gates its reporting.
var eventTable = [numEvents]eventDesc{
	eventProxDown: {
		name:   "prox",
		stOffs: stOffsetProx,
		thOffs: thOffsetProx,
		mask:   eventMaskProx,
	},
	eventProxUp: {
		name:   "prox-alt",
		stOffs: stOffsetProx,
		thOffs: thOffsetProx,
		dirUp:  true,
		mask:   eventMaskProx,
	},
	eventTouchDown: {
		name:   "touch",
		stOffs: stOffsetTouch,
		thOffs: thOffsetTouch,
		mask:   eventMaskTouch,
	},
	eventTouchUp: {
		name:   "touch-alt",
		stOffs: stOffsetTouch,
		thOffs: thOffsetTouch,
		dirUp:  true,
		mask:   eventMaskTouch,
	},
	eventDeepDown: {
		name:   "deep",
		stOffs: stOffsetDeep,
		thOffs: thOffsetDeep,
		mask:   eventMaskDeep,
	},
	eventDeepUp: {
		name:   "deep-alt",
		stOffs: stOffsetDeep,
		thOffs: thOffsetDeep,
		dirUp:  true,
		mask:   eventMaskDeep,
	},
}

func eventByName(name string) (eventID, bool) {
	for i, desc := range eventTable {
		if desc.name == name {
			return eventID(i), true
		}
	}
	return 0, false
}

// Gesture identifies one of the four slider gesture slots.
type Gesture int

const (
	GestureTap Gesture = iota
	GestureHold
	GestureFlickPos
	GestureFlickNeg
	NumGestures
)

// SliderType classifies how a slider reports.
type SliderType int

const (
	// SliderNone means the slider has no selected channels (or is consumed
	// by the touch-and-hold factory option) and reports nothing.
	SliderNone SliderType = iota
	// SliderKey means one or more gesture slots carry a keycode and the
	// slider reports discrete gesture keys.
	SliderKey
	// SliderRaw means the slider reports a continuous coordinate plus a
	// touch state, with no gesture decoding.
	SliderRaw
)

// ChannelRole tags the fixed Hall channel pair so the decode path never
// re-derives the special cases from raw index comparisons.
type ChannelRole int

const (
	RoleOrdinary ChannelRole = iota
	RoleHallActive
	RoleHallInactive
)

func roleOf(ch int) ChannelRole {
	switch ch {
	case HallChannelActive:
		return RoleHallActive
	case HallChannelInactive:
		return RoleHallInactive
	default:
		return RoleOrdinary
	}
}

type switchDesc struct {
	code    uint16
	enabled bool
}

// BtnTouch is the input code reported for raw slider touch state.
const BtnTouch uint16 = 0x14A

// EventSink consumes decoded input events. All state changes for one logical
// surface are delimited by a Sync call; a batch is never interleaved with
// another surface's batch. Implementations must tolerate redundant reports
// (same state reported twice).
type EventSink interface {
	ReportKey(code uint16, pressed bool)
	ReportSwitch(code uint16, on bool)
	ReportAbs(value int32)
	Sync()
}

type nopSink struct{}

func (nopSink) ReportKey(uint16, bool)    {}
func (nopSink) ReportSwitch(uint16, bool) {}
func (nopSink) ReportAbs(int32)           {}
func (nopSink) Sync()                     {}
