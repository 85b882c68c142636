package data

import (
	"sync"
	"time"

	"github.com/target/mmk-jobqueue/internal/core"
)

var (
	_ core.TimeProvider = (*RealTimeProvider)(nil)
	_ core.TimeProvider = (*FixedTimeProvider)(nil)
)

// RealTimeProvider reports wall-clock time in UTC so archived and mirrored timestamps agree.
type RealTimeProvider struct{}

// Now returns the current time in UTC.
func (*RealTimeProvider) Now() time.Time {
	return time.Now().UTC()
}

// FixedTimeProvider is a manually advanced clock. The queue reads it for retry eligibility,
// so tests move it forward instead of sleeping.
type FixedTimeProvider struct {
	mu  sync.RWMutex
	now time.Time
}

// NewFixedTimeProvider returns a clock stopped at t.
func NewFixedTimeProvider(t time.Time) *FixedTimeProvider {
	return &FixedTimeProvider{now: t}
}

// Now returns the stopped time.
func (f *FixedTimeProvider) Now() time.Time {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.now
}

// SetTime moves the clock to t, which may be earlier than the current value.
func (f *FixedTimeProvider) SetTime(t time.Time) {
	f.mu.Lock()
	f.now = t
	f.mu.Unlock()
}

// AddTime advances the clock by d.
func (f *FixedTimeProvider) AddTime(d time.Duration) {
	f.mu.Lock()
	f.now = f.now.Add(d)
	f.mu.Unlock()
}
