package og

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPendingDuplicateReqID(t *testing.T) {
	table := newPendingTable()

	_, err := table.add("req-1", time.Minute, func(*pendingRequest) {})
	require.NoError(t, err)

	_, err = table.add("req-1", time.Minute, func(*pendingRequest) {})
	assert.ErrorIs(t, err, ErrDuplicateReqID)
	assert.Equal(t, 1, table.len())
}

func TestPendingTakeResolvesOnce(t *testing.T) {
	table := newPendingTable()

	p, err := table.add("req-1", time.Minute, func(*pendingRequest) {})
	require.NoError(t, err)

	won := table.take("req-1")
	require.Same(t, p, won)
	assert.Nil(t, table.take("req-1"))
	assert.Equal(t, 0, table.len())
}

func TestPendingTimeoutFiresOnlyWhileInFlight(t *testing.T) {
	table := newPendingTable()

	fired := make(chan struct{}, 1)
	p, err := table.add("req-1", 10*time.Millisecond, func(won *pendingRequest) {
		fired <- struct{}{}
		won.done <- result{err: errors.New("timeout")}
	})
	require.NoError(t, err)

	select {
	case <-fired:
	case <-time.After(time.Second):
		t.Fatal("timeout callback never fired")
	}
	res := <-p.done
	assert.Error(t, res.err)

	// A request resolved before its deadline must not time out.
	p2, err := table.add("req-2", 20*time.Millisecond, func(*pendingRequest) {
		t.Error("timeout fired for resolved request")
	})
	require.NoError(t, err)
	won := table.take("req-2")
	require.Same(t, p2, won)
	won.timer.Stop()
	time.Sleep(50 * time.Millisecond)
}

func TestPendingFailAll(t *testing.T) {
	table := newPendingTable()

	p1, err := table.add("req-1", time.Minute, func(*pendingRequest) {})
	require.NoError(t, err)
	p2, err := table.add("req-2", time.Minute, func(*pendingRequest) {})
	require.NoError(t, err)

	table.failAll(ErrConnectionLost)

	assert.ErrorIs(t, (<-p1.done).err, ErrConnectionLost)
	assert.ErrorIs(t, (<-p2.done).err, ErrConnectionLost)
	assert.Equal(t, 0, table.len())
}
