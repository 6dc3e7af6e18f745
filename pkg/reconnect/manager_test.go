package reconnect

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBackoffGrowth(t *testing.T) {
	m := NewManager(Config{MinBackoff: 10 * time.Millisecond, MaxBackoff: 40 * time.Millisecond})

	t.Run("first wait is immediate", func(t *testing.T) {
		start := time.Now()
		require.NoError(t, m.Wait(context.Background()))
		assert.Less(t, time.Since(start), 5*time.Millisecond)
	})

	t.Run("failures grow the delay up to the ceiling", func(t *testing.T) {
		m.RecordFailure()
		start := time.Now()
		require.NoError(t, m.Wait(context.Background()))
		first := time.Since(start)
		assert.GreaterOrEqual(t, first, 10*time.Millisecond)

		m.RecordFailure()
		m.RecordFailure()
		m.RecordFailure()
		start = time.Now()
		require.NoError(t, m.Wait(context.Background()))
		assert.Less(t, time.Since(start), 120*time.Millisecond, "delay is capped at MaxBackoff")
	})

	t.Run("success resets the schedule", func(t *testing.T) {
		m.RecordSuccess()
		assert.Zero(t, m.Failures())
		start := time.Now()
		require.NoError(t, m.Wait(context.Background()))
		assert.Less(t, time.Since(start), 5*time.Millisecond)
	})
}

func TestWaitCancellation(t *testing.T) {
	m := NewManager(Config{MinBackoff: time.Minute})
	m.RecordFailure()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	start := time.Now()
	err := m.Wait(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), time.Second)
}

func TestCooldownAfterFailureCap(t *testing.T) {
	m := NewManager(Config{
		MinBackoff:  time.Millisecond,
		MaxFailures: 2,
		Cooldown:    30 * time.Millisecond,
	})
	m.RecordFailure()
	m.RecordFailure()

	start := time.Now()
	require.NoError(t, m.Wait(context.Background()))
	assert.GreaterOrEqual(t, time.Since(start), 30*time.Millisecond)

	// Half-open: the failure run starts over after the cooldown
	assert.Zero(t, m.Failures())
}

func TestMessageTracking(t *testing.T) {
	m := NewManager(Config{})
	assert.Zero(t, m.SinceLastMessage(), "no traffic yet")

	m.RecordMessage()
	assert.Less(t, m.SinceLastMessage(), time.Second)

	m.RecordSuccess()
	assert.Equal(t, 1, m.Connects())
}
