package forestz

import (
	"strconv"
	"sync/atomic"
)

// ID identifies an open span. The zero ID is NoParent and never names a span.
type ID uint64

// NoParent marks a span or event that has no enclosing span.
const NoParent ID = 0

const slotBits = 32

func makeID(slot, generation uint32) ID {
	return ID(uint64(generation)<<slotBits | uint64(slot))
}

// Slot returns the pool slot of an ID allocated by an IDPool.
func (id ID) Slot() uint32 { return uint32(id) }

// Generation returns how many times the slot was reused before this ID.
func (id ID) Generation() uint32 { return uint32(id >> slotBits) }

func (id ID) String() string {
	return strconv.FormatUint(uint64(id), 16)
}

// IDPool hands out span identities and recycles the slots of released ones.
// A recycled slot comes back with its generation bumped, so a late
// notification against the old ID never resolves to the new span.
type IDPool struct {
	free   chan ID
	next   atomic.Uint32
	closed atomic.Bool
}

// NewIDPool creates a pool that keeps up to capacity released slots for reuse.
func NewIDPool(capacity int) *IDPool {
	if capacity < 0 {
		capacity = 0
	}
	return &IDPool{
		free: make(chan ID, capacity),
	}
}

// Get returns a recycled ID or allocates a fresh slot if none is available.
func (p *IDPool) Get() ID {
	select {
	case id := <-p.free:
		return makeID(id.Slot(), id.Generation()+1)
	default:
	}
	// Nothing to recycle, take a new slot (slot 0 is reserved).
	slot := p.next.Add(1)
	if slot == 0 {
		slot = p.next.Add(1)
	}
	return makeID(slot, 0)
}

// Put releases an ID. Its slot is retired if the pool is full or closed.
func (p *IDPool) Put(id ID) {
	if id == NoParent || p.closed.Load() {
		return
	}
	select {
	case p.free <- id:
	default:
	}
}

// Close stops the pool from recycling further slots. Get keeps working.
func (p *IDPool) Close() {
	p.closed.Store(true)
}
