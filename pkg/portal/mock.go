package portal

import (
	"context"
	"sync"
	"time"

	"github.com/pumpwatch/pumpwatch/pkg/types"
)

// Mock implements Source with canned data. This is primarily used for
// testing the poller and API without a portal.
type Mock struct {
	mu       sync.Mutex
	snapshot types.SensorSnapshot
	err      error
	calls    int
}

// NewMock returns a Mock that serves a minimal plausible snapshot.
func NewMock() *Mock {
	return &Mock{
		snapshot: types.SensorSnapshot{
			TakenAt: time.Now(),
			Readings: map[types.SensorKey]types.SensorReading{
				types.SensorOutdoorTemperature: {Key: types.SensorOutdoorTemperature, Value: 8.0, Raw: "8.0"},
				types.SensorDHWStatus:          {Key: types.SensorDHWStatus, Status: types.StatusOff, Raw: "OFF"},
			},
		},
	}
}

// SetSnapshot replaces the snapshot returned by CurrentSnapshot.
func (m *Mock) SetSnapshot(s types.SensorSnapshot) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.snapshot = s
	m.err = nil
}

// SetError makes CurrentSnapshot fail until a snapshot is set again.
func (m *Mock) SetError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}

// Calls reports how many cycles ran against the mock.
func (m *Mock) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

// CurrentSnapshot implements Source.
func (m *Mock) CurrentSnapshot(ctx context.Context) (types.SensorSnapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	if m.err != nil {
		return types.SensorSnapshot{}, m.err
	}
	snap := m.snapshot
	snap.TakenAt = time.Now()
	return snap, nil
}
