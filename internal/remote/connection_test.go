package remote_test

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/diewo77/garage-records/internal/apperr"
	"github.com/diewo77/garage-records/internal/remote"
	"github.com/diewo77/garage-records/internal/remote/remotetest"
)

func TestConnectionLifecycle(t *testing.T) {
	mem := remotetest.NewMemory()
	conn := remote.NewConnection(mem, 2, zerolog.Nop())
	assert.Equal(t, remote.StateNotAttempted, conn.Status().State)
	assert.False(t, conn.Connected())

	require.NoError(t, conn.Connect(context.Background(), time.Second))
	assert.True(t, conn.Connected())
	assert.Equal(t, "memory", conn.Status().Driver)

	// Ordinary failures are tolerated up to the threshold.
	conn.ReportFailure(errors.New("duplicate key"))
	assert.True(t, conn.Connected())
	conn.ReportSuccess()
	conn.ReportFailure(errors.New("duplicate key"))
	assert.True(t, conn.Connected(), "success resets the counter")
	conn.ReportFailure(errors.New("duplicate key"))
	assert.False(t, conn.Connected())
	assert.Equal(t, remote.StateUnavailable, conn.Status().State)
}

func TestConnectionDemotesOnNetworkFailure(t *testing.T) {
	conn := remote.NewConnection(remotetest.NewMemory(), 10, zerolog.Nop())
	require.NoError(t, conn.Connect(context.Background(), time.Second))

	conn.ReportFailure(apperr.New(apperr.KindInvalidInput, "bad record", nil))
	assert.True(t, conn.Connected(), "invalid input is the caller's fault")

	conn.ReportFailure(apperr.New(apperr.KindUnavailable, "connection reset", nil))
	assert.False(t, conn.Connected())
	assert.Contains(t, conn.Status().Reason, "connection reset")
}

func TestConnectionToleratesTimeoutsUpToThreshold(t *testing.T) {
	conn := remote.NewConnection(remotetest.NewMemory(), 3, zerolog.Nop())
	require.NoError(t, conn.Connect(context.Background(), time.Second))
	timeout := apperr.New(apperr.KindOperationTimeout, "find timed out", nil)

	conn.ReportFailure(timeout)
	assert.True(t, conn.Connected(), "a single timeout does not demote")
	assert.Equal(t, 1, conn.Status().Failures)
	conn.ReportFailure(timeout)
	assert.True(t, conn.Connected())
	conn.ReportFailure(timeout)
	assert.False(t, conn.Connected())
	assert.Contains(t, conn.Status().Reason, "timed out")
}

func TestConnectFailure(t *testing.T) {
	mem := remotetest.NewMemory()
	mem.SetDown(true)
	conn := remote.NewConnection(mem, 0, zerolog.Nop())

	err := conn.Connect(context.Background(), time.Second)
	assert.ErrorIs(t, err, apperr.ErrUnavailable)
	assert.Equal(t, remote.StateUnavailable, conn.Status().State)
	assert.False(t, conn.Status().LastAttempt.IsZero())
}

func TestNilStoreIsNeverConnected(t *testing.T) {
	conn := remote.NewConnection(nil, 0, zerolog.Nop())
	assert.False(t, conn.Configured())
	assert.ErrorIs(t, conn.Connect(context.Background(), time.Second), apperr.ErrUnavailable)
	assert.False(t, conn.Connected())
	assert.Equal(t, "", conn.Status().Driver)
}

func TestWatchReconnects(t *testing.T) {
	mem := remotetest.NewMemory()
	mem.SetDown(true)
	conn := remote.NewConnection(mem, 0, zerolog.Nop())
	_ = conn.Connect(context.Background(), time.Second)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var reconnects atomic.Int32
	done := make(chan struct{})
	go func() {
		defer close(done)
		conn.Watch(ctx, 5*time.Millisecond, time.Second, func(context.Context) { reconnects.Add(1) })
	}()

	time.Sleep(20 * time.Millisecond)
	assert.False(t, conn.Connected())
	mem.SetDown(false)

	require.Eventually(t, conn.Connected, time.Second, 5*time.Millisecond)
	require.Eventually(t, func() bool { return reconnects.Load() == 1 }, time.Second, 5*time.Millisecond)
	cancel()
	<-done
}

func TestClassify(t *testing.T) {
	assert.Nil(t, remote.Classify("find", nil))

	err := remote.Classify("find", fmt.Errorf("wrapped: %w", context.DeadlineExceeded))
	assert.ErrorIs(t, err, apperr.ErrOperationTimeout)

	err = remote.Classify("find", &net.OpError{Op: "dial", Net: "tcp", Err: errors.New("connection refused")})
	assert.ErrorIs(t, err, apperr.ErrUnavailable)

	kept := apperr.Invalid("nope", nil)
	assert.Same(t, kept, remote.Classify("find", kept))

	err = remote.Classify("find", errors.New("boom"))
	assert.Equal(t, apperr.KindInternal, apperr.KindOf(err))
	assert.Contains(t, err.Error(), "find: boom")
}
