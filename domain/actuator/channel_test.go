package actuator

import (
	"context"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestBank(t *testing.T, timeout time.Duration, axes ...Axis) (*Bank, *SimDriver) {
	t.Helper()
	if len(axes) == 0 {
		axes = []Axis{{X: 1}, {Y: 1}}
	}
	drv := NewSimDriver(time.Millisecond, axes)
	opts := make([]ChannelOptions, len(axes))
	for i := range opts {
		opts[i] = ChannelOptions{TravelMin: -10, TravelMax: 10, MaxMagnitude: 3, AckTimeout: timeout}
	}
	bank, err := NewBank(drv, opts, axes, nil)
	require.NoError(t, err)
	return bank, drv
}

func TestChannel_StartsDisabled(t *testing.T) {
	bank, drv := newTestBank(t, 100*time.Millisecond)
	ch, err := bank.Channel(0)
	require.NoError(t, err)
	assert.False(t, ch.Enabled())

	_, err = ch.Jog(context.Background(), Forward, 1)
	assert.True(t, errors.Is(err, ErrChannelDisabled))
	assert.Empty(t, drv.Sent())
}

func TestChannel_JogAcknowledged(t *testing.T) {
	bank, drv := newTestBank(t, time.Second)
	bank.EnableAll()
	ch, _ := bank.Channel(1)

	res, err := ch.Jog(context.Background(), Reverse, 2)
	require.NoError(t, err)
	assert.Equal(t, JogResult{Applied: -2, Position: -2}, res)
	assert.False(t, ch.Pending())

	x, y := drv.Offset()
	assert.Equal(t, 0.0, x)
	assert.Equal(t, -2.0, y)
	assert.Equal(t, []Command{{Channel: 1, Seq: 1, Delta: -2}}, drv.Sent())
}

func TestChannel_MagnitudeAndTravelClamp(t *testing.T) {
	bank, _ := newTestBank(t, time.Second)
	bank.EnableAll()
	ch, _ := bank.Channel(0)
	ctx := context.Background()

	res, err := ch.Jog(ctx, Forward, 10)
	require.NoError(t, err)
	assert.Equal(t, 3.0, res.Applied)
	assert.True(t, res.Clamped)

	for i := 0; i < 2; i++ {
		_, err = ch.Jog(ctx, Forward, 3)
		require.NoError(t, err)
	}
	res, err = ch.Jog(ctx, Forward, 3)
	require.NoError(t, err)
	assert.Equal(t, 1.0, res.Applied, "only 1 left before the travel limit")
	assert.True(t, res.Clamped)
	assert.Equal(t, 10.0, ch.Position())

	res, err = ch.Jog(ctx, Forward, 1)
	require.NoError(t, err)
	assert.Zero(t, res.Applied)
	assert.True(t, res.Clamped)
}

func TestChannel_NegativeMagnitudeFlipsDirection(t *testing.T) {
	bank, _ := newTestBank(t, time.Second)
	bank.EnableAll()
	ch, _ := bank.Channel(0)
	res, err := ch.Jog(context.Background(), Forward, -2)
	require.NoError(t, err)
	assert.Equal(t, -2.0, res.Applied)
}

func TestChannel_AckTimeoutFaults(t *testing.T) {
	bank, drv := newTestBank(t, 20*time.Millisecond)
	drv.Silence(0, true)
	bank.EnableAll()
	ch, _ := bank.Channel(0)

	_, err := ch.Jog(context.Background(), Forward, 1)
	assert.True(t, errors.Is(err, ErrAckTimeout))
	assert.True(t, ch.Faulted())
	assert.True(t, ch.Pending(), "timed out command is still out at the driver")

	// late ack for the timed out command still counts as travel
	bank.Acknowledge(Ack{Channel: 0, Seq: 1, Applied: 1})
	assert.Equal(t, 1.0, ch.Position())
	assert.False(t, ch.Pending())

	_, err = ch.Jog(context.Background(), Forward, 1)
	assert.True(t, errors.Is(err, ErrFaulted))
	assert.Len(t, drv.Sent(), 1)

	bank.ResetFaults()
	drv.Silence(0, false)
	_, err = ch.Jog(context.Background(), Forward, 1)
	assert.NoError(t, err)
	assert.Equal(t, 2.0, ch.Position())
}

func TestChannel_TimedOutCommandBlocksRestartUntilDrained(t *testing.T) {
	bank, drv := newTestBank(t, 10*time.Millisecond)
	drv.Silence(0, true)
	bank.EnableAll()
	ch, _ := bank.Channel(0)

	_, err := ch.Jog(context.Background(), Forward, 1)
	require.True(t, errors.Is(err, ErrAckTimeout))
	bank.ResetFaults()
	bank.EnableAll()
	drv.Silence(0, false)

	_, err = ch.Jog(context.Background(), Forward, 1)
	assert.True(t, errors.Is(err, ErrCommandOutstanding), "got %v", err)
	assert.Len(t, drv.Sent(), 1)

	require.Eventually(t, func() bool { return !ch.Pending() }, time.Second, 2*time.Millisecond)
	_, err = ch.Jog(context.Background(), Forward, 1)
	require.NoError(t, err)
	assert.Len(t, drv.Sent(), 2)

	// an ack for the drained command is stale by now
	bank.Acknowledge(Ack{Channel: 0, Seq: 1, Applied: 1})
	assert.Equal(t, 1.0, ch.Position())
}

func TestChannel_RejectsSecondCommandWhileOutstanding(t *testing.T) {
	bank, drv := newTestBank(t, 5*time.Second)
	drv.Silence(0, true)
	bank.EnableAll()
	ch, _ := bank.Channel(0)

	done := make(chan error, 1)
	go func() {
		_, err := ch.Jog(context.Background(), Forward, 1)
		done <- err
	}()
	require.Eventually(t, ch.Pending, time.Second, time.Millisecond)

	_, err := ch.Jog(context.Background(), Forward, 1)
	assert.True(t, errors.Is(err, ErrCommandOutstanding))
	assert.Len(t, drv.Sent(), 1)

	ch.SetEnabled(false)
	select {
	case err := <-done:
		assert.True(t, errors.Is(err, ErrChannelDisabled), "got %v", err)
	case <-time.After(time.Second):
		t.Fatal("disable did not wake the waiting jog")
	}
	assert.False(t, ch.Faulted())
	assert.True(t, ch.Pending(), "disable does not recall the command")
	assert.True(t, ch.Orphaned())

	ch.SetEnabled(true)
	_, err = ch.Jog(context.Background(), Forward, 1)
	assert.True(t, errors.Is(err, ErrCommandOutstanding), "got %v", err)
	assert.Len(t, drv.Sent(), 1)

	bank.Acknowledge(Ack{Channel: 0, Seq: 1, Applied: 1})
	assert.False(t, ch.Pending())
	assert.Equal(t, 1.0, ch.Position())

	drv.Silence(0, false)
	res, err := ch.Jog(context.Background(), Forward, 1)
	require.NoError(t, err)
	assert.Equal(t, 2.0, res.Position)
	assert.Len(t, drv.Sent(), 2)
}

func TestChannel_LateNakReleasesWithoutTravel(t *testing.T) {
	bank, drv := newTestBank(t, 5*time.Second)
	drv.Silence(0, true)
	bank.EnableAll()
	ch, _ := bank.Channel(0)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		for !ch.Pending() {
			time.Sleep(time.Millisecond)
		}
		cancel()
	}()
	_, err := ch.Jog(ctx, Forward, 2)
	require.True(t, errors.Is(err, context.Canceled))

	bank.Acknowledge(Ack{Channel: 0, Seq: 1, Rejected: true, Reason: "limit switch"})
	assert.False(t, ch.Pending())
	assert.Zero(t, ch.Position())
	assert.False(t, ch.Faulted())
}

func TestChannel_NakFaults(t *testing.T) {
	bank, drv := newTestBank(t, time.Second)
	drv.Reject(1, "limit switch")
	bank.EnableAll()
	ch, _ := bank.Channel(1)

	_, err := ch.Jog(context.Background(), Forward, 1)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrRejected))
	assert.Contains(t, err.Error(), "limit switch")
	assert.True(t, ch.Faulted())
}

func TestChannel_ContextCancel(t *testing.T) {
	bank, drv := newTestBank(t, 5*time.Second)
	drv.Silence(0, true)
	bank.EnableAll()
	ch, _ := bank.Channel(0)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err := ch.Jog(ctx, Forward, 1)
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
	assert.True(t, ch.Orphaned())

	bank.Acknowledge(Ack{Channel: 0, Seq: 1, Applied: 1})
	assert.False(t, ch.Pending())
	assert.Equal(t, 1.0, ch.Position())
}
