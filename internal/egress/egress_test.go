package egress

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edwinsyarief/rgbworld"
)

type recordingDrainer struct {
	sent []struct {
		handle  uint64
		payload []byte
	}
	failOn int
}

func (d *recordingDrainer) Send(handle uint64, payload []byte) error {
	if d.failOn > 0 && len(d.sent) == d.failOn-1 {
		d.sent = append(d.sent, struct {
			handle  uint64
			payload []byte
		}{handle, payload})
		return errors.New("send failed")
	}
	d.sent = append(d.sent, struct {
		handle  uint64
		payload []byte
	}{handle, payload})
	return nil
}

func TestEnqueueThenDrainReturnsInFIFOOrder(t *testing.T) {
	pb := NewPacketBuffer()
	pb.Enqueue([]byte("one"))
	pb.Enqueue([]byte("two"))

	got := pb.Drain()
	require.Len(t, got, 2)
	assert.Equal(t, []byte("one"), got[0])
	assert.Equal(t, []byte("two"), got[1])

	assert.Empty(t, pb.Drain(), "drain must empty the buffer")
}

func TestDrainAllFlushesEveryConnectionEntity(t *testing.T) {
	rgbworld.ResetRegistry()
	RegisterComponent()
	w := rgbworld.NewWorld()

	e1 := w.SpawnEmpty()
	e2 := w.SpawnEmpty()
	rgbworld.Set(w, e1, NewPacketBuffer())
	rgbworld.Set(w, e2, NewPacketBuffer())

	pb1, _ := rgbworld.Get[PacketBuffer](w, e1)
	pb1.Enqueue([]byte("hello"))
	pb2, _ := rgbworld.Get[PacketBuffer](w, e2)
	pb2.Enqueue([]byte("world"))

	drainer := &recordingDrainer{}
	require.NoError(t, DrainAll(w, drainer))
	assert.Len(t, drainer.sent, 2)

	// A second drain finds nothing left queued.
	drainer2 := &recordingDrainer{}
	require.NoError(t, DrainAll(w, drainer2))
	assert.Empty(t, drainer2.sent)
}

func TestDrainAllReportsFirstSendError(t *testing.T) {
	rgbworld.ResetRegistry()
	RegisterComponent()
	w := rgbworld.NewWorld()

	e := w.SpawnEmpty()
	rgbworld.Set(w, e, NewPacketBuffer())
	pb, _ := rgbworld.Get[PacketBuffer](w, e)
	pb.Enqueue([]byte("x"))

	drainer := &recordingDrainer{failOn: 1}
	err := DrainAll(w, drainer)
	assert.Error(t, err)
}
