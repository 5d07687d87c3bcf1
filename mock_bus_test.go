package iqs269

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/stretchr/testify/mock"
)

// MockI2CBus is a mock implementation of I2CBus using testify/mock
type MockI2CBus struct {
	mock.Mock
	concurrentOps int64 // tracks concurrent operations
	maxConcurrent int64 // maximum concurrent operations observed
	mu            sync.Mutex
}

func (m *MockI2CBus) WriteToAddr(ctx context.Context, address byte, buffer []byte) error {
	m.mu.Lock()
	concurrent := atomic.AddInt64(&m.concurrentOps, 1)
	if concurrent > atomic.LoadInt64(&m.maxConcurrent) {
		atomic.StoreInt64(&m.maxConcurrent, concurrent)
	}
	m.mu.Unlock()

	args := m.Called(ctx, address, buffer)

	m.mu.Lock()
	atomic.AddInt64(&m.concurrentOps, -1)
	m.mu.Unlock()

	return args.Error(0)
}

func (m *MockI2CBus) ReadFromAddr(ctx context.Context, address byte, buffer []byte) error {
	m.mu.Lock()
	concurrent := atomic.AddInt64(&m.concurrentOps, 1)
	if concurrent > atomic.LoadInt64(&m.maxConcurrent) {
		atomic.StoreInt64(&m.maxConcurrent, concurrent)
	}
	m.mu.Unlock()

	args := m.Called(ctx, address, buffer)
	if args.Get(0) != nil {
		// Copy mock data to buffer if provided
		if data, ok := args.Get(0).([]byte); ok && len(data) <= len(buffer) {
			copy(buffer, data)
		}
	}

	m.mu.Lock()
	atomic.AddInt64(&m.concurrentOps, -1)
	m.mu.Unlock()

	return args.Error(1)
}

func (m *MockI2CBus) Release(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

// expectRead wires the register-select write plus the payload read that
// together form one register read transaction.
func (m *MockI2CBus) expectRead(reg byte, data []byte) {
	m.On("WriteToAddr", mock.Anything, byte(DefaultAddress), []byte{reg}).
		Return(nil).Once()
	m.On("ReadFromAddr", mock.Anything, byte(DefaultAddress), mock.MatchedBy(func(buf []byte) bool {
		return len(buf) == len(data)
	})).Return(data, nil).Once()
}

// expectWrite matches a register write carrying the given payload.
func (m *MockI2CBus) expectWrite(reg byte, data []byte) {
	m.On("WriteToAddr", mock.Anything, byte(DefaultAddress), append([]byte{reg}, data...)).
		Return(nil).Once()
}

// captureWrite accepts any write selecting reg and stores its payload.
func (m *MockI2CBus) captureWrite(reg byte, dst *[]byte) {
	m.On("WriteToAddr", mock.Anything, byte(DefaultAddress), mock.MatchedBy(func(buf []byte) bool {
		return len(buf) > 1 && buf[0] == reg
	})).Run(func(args mock.Arguments) {
		buf := args.Get(2).([]byte)
		*dst = append([]byte(nil), buf[1:]...)
	}).Return(nil).Once()
}

// sinkEvent is one recorded EventSink call.
type sinkEvent struct {
	kind  string // key, switch, abs, sync
	code  uint16
	value int32
}

// recordSink records every report for later inspection.
type recordSink struct {
	mu     sync.Mutex
	events []sinkEvent
}

func (s *recordSink) ReportKey(code uint16, pressed bool) {
	s.record(sinkEvent{kind: "key", code: code, value: boolVal(pressed)})
}

func (s *recordSink) ReportSwitch(code uint16, on bool) {
	s.record(sinkEvent{kind: "switch", code: code, value: boolVal(on)})
}

func (s *recordSink) ReportAbs(value int32) {
	s.record(sinkEvent{kind: "abs", value: value})
}

func (s *recordSink) Sync() {
	s.record(sinkEvent{kind: "sync"})
}

func (s *recordSink) record(ev sinkEvent) {
	s.mu.Lock()
	s.events = append(s.events, ev)
	s.mu.Unlock()
}

// coded returns the recorded events with zero-code key reports filtered out,
// the way an input layer drops codes that were never announced.
func (s *recordSink) coded() []sinkEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []sinkEvent
	for _, ev := range s.events {
		if ev.kind == "key" && ev.code == 0 {
			continue
		}
		out = append(out, ev)
	}
	return out
}

func boolVal(b bool) int32 {
	if b {
		return 1
	}
	return 0
}

// statusBuf builds the raw 8-byte status snapshot read on every interrupt.
func statusBuf(system uint16, gesture uint8, prox, dir, touch, deep uint8) []byte {
	return []byte{byte(system >> 8), byte(system), gesture, 0x00, prox, dir, touch, deep}
}
