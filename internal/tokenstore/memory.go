package tokenstore

import (
	"context"
	"sync"
	"time"

	domainauth "github.com/target/talentgate/internal/domain/auth"
)

// MemoryBackend keeps tuples in process memory. Records do not survive a restart.
type MemoryBackend struct {
	mu       sync.Mutex
	data     map[string]domainauth.Session
	lastSeen map[string]time.Time
	now      func() time.Time
}

// NewMemoryBackend returns an empty in-memory backend.
func NewMemoryBackend() *MemoryBackend {
	return NewMemoryBackendWithClock(time.Now)
}

// NewMemoryBackendWithClock is NewMemoryBackend with the clock used to stamp activity.
func NewMemoryBackendWithClock(now func() time.Time) *MemoryBackend {
	if now == nil {
		now = time.Now
	}
	return &MemoryBackend{
		data:     make(map[string]domainauth.Session),
		lastSeen: make(map[string]time.Time),
		now:      now,
	}
}

// Load returns the tuple for deviceID or ErrNotFound. A hit counts as activity for PruneIdle.
func (m *MemoryBackend) Load(_ context.Context, deviceID string) (domainauth.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	sess, ok := m.data[deviceID]
	if !ok {
		return domainauth.Session{}, ErrNotFound
	}
	m.lastSeen[deviceID] = m.now()
	return sess, nil
}

// Save replaces the tuple for sess.DeviceID.
func (m *MemoryBackend) Save(_ context.Context, sess domainauth.Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[sess.DeviceID] = sess
	m.lastSeen[sess.DeviceID] = m.now()
	return nil
}

// Delete removes the tuple for deviceID. Missing records are not an error.
func (m *MemoryBackend) Delete(_ context.Context, deviceID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, deviceID)
	delete(m.lastSeen, deviceID)
	return nil
}

// Len reports the number of stored devices.
func (m *MemoryBackend) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.data)
}

// PruneIdle deletes tuples neither loaded nor saved since cutoff and returns how many were removed.
func (m *MemoryBackend) PruneIdle(_ context.Context, cutoff time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for id := range m.data {
		if m.lastSeen[id].Before(cutoff) {
			delete(m.data, id)
			delete(m.lastSeen, id)
			n++
		}
	}
	return n, nil
}
