// Package egress is the response side of spec.md §6: each connection
// entity owns a PacketBuffer opaque component queuing response bytes,
// drained to the network after Post by code external to the core tick.
package egress

import (
	"sync"

	"github.com/edwinsyarief/rgbworld"
)

// PacketBuffer is an opaque component: it only carries pointer-sized
// fields, so the default shallow (byte-copy) clone used when no
// CloneFunc is registered already aliases the same underlying mutex
// and slice correctly across any copy the archetype machinery makes.
type PacketBuffer struct {
	mu      *sync.Mutex
	packets *[][]byte
}

// NewPacketBuffer returns an empty, ready-to-use PacketBuffer.
func NewPacketBuffer() PacketBuffer {
	return PacketBuffer{mu: &sync.Mutex{}, packets: &[][]byte{}}
}

// RegisterComponent registers PacketBuffer as opaque, per spec.md §3
// "opaque components... never written into the versioned store". Must
// be called before the first Query[PacketBuffer]/Get[PacketBuffer]
// call anywhere in the process — registration locks in the flavor of
// the first caller, and a plain Query would otherwise register it POD.
func RegisterComponent() rgbworld.ComponentID {
	return rgbworld.RegisterOpaqueComponent[PacketBuffer](nil, nil)
}

// Enqueue appends payload to the buffer's pending queue.
func (b PacketBuffer) Enqueue(payload []byte) {
	b.mu.Lock()
	defer b.mu.Unlock()
	*b.packets = append(*b.packets, payload)
}

// Drain returns every queued packet and empties the buffer.
func (b PacketBuffer) Drain() [][]byte {
	b.mu.Lock()
	defer b.mu.Unlock()
	pending := *b.packets
	*b.packets = nil
	return pending
}

// Drainer hands a drained packet off to the network layer. Send is
// called once per queued packet, in FIFO order per connection.
type Drainer interface {
	Send(connectionHandle uint64, payload []byte) error
}

// DrainAll walks every connection entity's PacketBuffer and flushes its
// queued packets through drainer, called once per tick after Post
// (spec.md §6). The connection handle is the entity's stable slot
// value — callers that need the wire-level handle instead should keep
// their own entity-to-handle table, since PacketBuffer itself carries
// no handle.
func DrainAll(w *rgbworld.World, drainer Drainer) error {
	q := rgbworld.NewQuery[PacketBuffer](w, nil, nil)
	var firstErr error
	for q.Next() {
		pb := q.Get()
		handle := uint64(q.Entity().ID)
		for _, pkt := range pb.Drain() {
			if err := drainer.Send(handle, pkt); err != nil && firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}
