package timeutil

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRealProvider_Now(t *testing.T) {
	provider := RealProvider{}
	now := provider.Now()

	// Check that it's reasonably close to the current time.
	assert.InEpsilon(t, time.Now().UTC().Unix(), now.Unix(), 10, "Time should be close to current time")
}

func TestRealProvider_After(t *testing.T) {
	provider := RealProvider{}

	select {
	case <-provider.After(time.Millisecond):
	case <-time.After(5 * time.Second):
		t.Fatal("After should fire for a short duration")
	}
}

func TestMock_Now(t *testing.T) {
	fixedTime := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	provider := NewMock(fixedTime)

	// Verify that Now() returns the fixed time.
	assert.Equal(t, fixedTime, provider.Now(), "Mock provider should return the fixed time")
}

func TestMock_After(t *testing.T) {
	fixedTime := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	provider := NewMock(fixedTime)

	fired := <-provider.After(1 * time.Second)
	assert.Equal(t, fixedTime.Add(1*time.Second), fired, "Channel should carry the advanced time")
	assert.Equal(t, fixedTime.Add(1*time.Second), provider.Now(), "Time should be advanced by 1 second")
	assert.Equal(t, 1, provider.WaitCount())
	assert.Equal(t, []time.Duration{time.Second}, provider.Waits)
}

func TestMock_SetNow(t *testing.T) {
	initialTime := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	newTime := time.Date(2024, 2, 2, 0, 0, 0, 0, time.UTC)

	provider := NewMock(initialTime)
	assert.Equal(t, initialTime, provider.Now(), "Initial time should match")

	provider.SetNow(newTime)
	assert.Equal(t, newTime, provider.Now(), "Time should be updated after SetNow")
}

func TestMock_Advance(t *testing.T) {
	initialTime := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	duration := 1 * time.Hour
	expectedTime := initialTime.Add(duration)

	provider := NewMock(initialTime)
	assert.Equal(t, initialTime, provider.Now(), "Initial time should match")

	provider.Advance(duration)
	assert.Equal(t, expectedTime, provider.Now(), "Time should be advanced by the specified duration")
}

func TestSleep(t *testing.T) {
	provider := NewMock(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))

	err := Sleep(context.Background(), provider, 500*time.Millisecond)
	assert.NoError(t, err)
	assert.Equal(t, 1, provider.WaitCount())
}

func TestSleep_ContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := Sleep(ctx, RealProvider{}, time.Hour)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestDefault(t *testing.T) {
	provider := Default()

	_, ok := provider.(RealProvider)
	assert.True(t, ok, "Default provider should be a RealProvider")
}
