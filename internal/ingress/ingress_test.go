package ingress

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edwinsyarief/rgbworld/internal/scheduler"
)

func TestPushThenChanDelivers(t *testing.T) {
	q := NewQueue(4)
	cmd := scheduler.Command{ConnectionHandle: 7, PacketID: 1, Payload: []byte("hi")}
	q.Push(cmd)

	got := <-q.Chan()
	assert.Equal(t, cmd, got)
}

func TestTryPushFailsWhenFull(t *testing.T) {
	q := NewQueue(1)
	require.True(t, q.TryPush(scheduler.Command{ConnectionHandle: 1}))
	assert.False(t, q.TryPush(scheduler.Command{ConnectionHandle: 2}))
	assert.Equal(t, 1, q.Len())
	assert.Equal(t, 1, q.Cap())
}

func TestTryPushSucceedsAfterDrain(t *testing.T) {
	q := NewQueue(1)
	require.True(t, q.TryPush(scheduler.Command{ConnectionHandle: 1}))
	<-q.Chan()
	assert.True(t, q.TryPush(scheduler.Command{ConnectionHandle: 2}))
}
