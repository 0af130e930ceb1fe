package pose

import (
	"context"
	"sync"
	"time"
)

// MockSource is a Source for tests. Frames are pushed with Emit.
type MockSource struct {
	mu       sync.Mutex
	initErrs []error
	initHook func(ctx context.Context) error
	onResult func(Frame)
	open     bool
	inits    int
	starts   int
	stops    int
	closes   int
}

// NewMockSource creates a MockSource. Each Init call consumes the next error
// in initErrs; once they are used up Init succeeds.
func NewMockSource(initErrs ...error) *MockSource {
	return &MockSource{initErrs: initErrs}
}

// SetInitHook installs a function that runs inside Init after the queued
// errors are exhausted. Tests use it to block Init until ctx is done.
func (m *MockSource) SetInitHook(hook func(ctx context.Context) error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.initHook = hook
}

// Init returns the next queued error, or the hook's result.
func (m *MockSource) Init(ctx context.Context) error {
	m.mu.Lock()
	m.inits++
	if len(m.initErrs) > 0 {
		err := m.initErrs[0]
		m.initErrs = m.initErrs[1:]
		if err != nil {
			m.mu.Unlock()
			return err
		}
	}
	hook := m.initHook
	m.mu.Unlock()

	if hook != nil {
		if err := hook(ctx); err != nil {
			return err
		}
	}

	m.mu.Lock()
	m.open = true
	m.mu.Unlock()
	return nil
}

// Start records onResult for Emit.
func (m *MockSource) Start(onResult func(Frame)) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.open {
		return ErrSourceNotReady
	}
	m.starts++
	m.onResult = onResult
	return nil
}

// Stop detaches the callback.
func (m *MockSource) Stop() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.onResult != nil {
		m.stops++
	}
	m.onResult = nil
	return nil
}

// Close detaches the callback and marks the source released.
func (m *MockSource) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onResult = nil
	if m.open {
		m.closes++
	}
	m.open = false
	return nil
}

// Emit delivers f to the started callback. It reports false if the source
// is not started.
func (m *MockSource) Emit(f Frame) bool {
	m.mu.Lock()
	fn := m.onResult
	m.mu.Unlock()

	if fn == nil {
		return false
	}
	fn(f)
	return true
}

// EmitLandmarks delivers a frame carrying lm stamped with the current time.
func (m *MockSource) EmitLandmarks(lm *Landmarks) bool {
	return m.Emit(Frame{Landmarks: lm, Timestamp: time.Now()})
}

// Open reports whether the source holds acquired resources.
func (m *MockSource) Open() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.open
}

// MockCalls counts lifecycle calls on a MockSource.
type MockCalls struct {
	Inits, Starts, Stops, Closes int
}

// Calls returns the lifecycle call counts.
func (m *MockSource) Calls() MockCalls {
	m.mu.Lock()
	defer m.mu.Unlock()
	return MockCalls{Inits: m.inits, Starts: m.starts, Stops: m.stops, Closes: m.closes}
}
