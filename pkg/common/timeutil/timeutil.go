// Package timeutil provides time-related utilities and abstractions.
// It facilitates easier testing of time-dependent code and standardizes
// time-related operations across the application.
package timeutil

import (
	"context"
	"sync"
	"time"
)

// Provider defines an interface for time operations,
// allowing for easier testing by providing a way to mock time.
type Provider interface {
	// Now returns the current time.
	Now() time.Time

	// After returns a channel that receives the current time once d has elapsed.
	After(d time.Duration) <-chan time.Time
}

// RealProvider is the default implementation of Provider that
// provides access to the actual system time.
type RealProvider struct{}

// Now returns the current time in UTC.
func (RealProvider) Now() time.Time { return time.Now().UTC() }

// After waits for the duration to elapse on the system clock.
func (RealProvider) After(d time.Duration) <-chan time.Time { return time.After(d) }

// Sleep pauses the calling goroutine for d or until ctx is done, whichever
// happens first. It returns ctx.Err() when the wait was cut short.
func Sleep(ctx context.Context, p Provider, d time.Duration) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-p.After(d):
		return nil
	}
}

// Mock is an implementation of Provider used for testing,
// allowing tests to control what time is returned. Calls to After advance
// the mock clock immediately and never block.
type Mock struct {
	mu          sync.Mutex
	CurrentTime time.Time
	Waits       []time.Duration
}

// Now returns the preset time.
func (m *Mock) Now() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.CurrentTime
}

// SetNow directly sets the current time to the provided time.
func (m *Mock) SetNow(t time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.CurrentTime = t
}

// Advance moves the mock time forward by the specified duration.
func (m *Mock) Advance(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.CurrentTime = m.CurrentTime.Add(d)
}

// After advances the mock time by d, records the wait and returns a channel
// that already holds the new time.
func (m *Mock) After(d time.Duration) <-chan time.Time {
	m.mu.Lock()
	m.CurrentTime = m.CurrentTime.Add(d)
	m.Waits = append(m.Waits, d)
	now := m.CurrentTime
	m.mu.Unlock()

	ch := make(chan time.Time, 1)
	ch <- now
	return ch
}

// WaitCount reports how many times After was called.
func (m *Mock) WaitCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Waits)
}

// Default returns a Provider implementation that uses the real system time.
func Default() Provider { return RealProvider{} }

// NewMock creates a new mock time provider with the specified time.
func NewMock(t time.Time) *Mock { return &Mock{CurrentTime: t} }
