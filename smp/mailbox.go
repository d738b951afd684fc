package smp

import (
	"runtime"
	"sync/atomic"
)

const mailboxSlots = 256

type mailSlot struct {
	seq atomic.Uint64
	msg Message
}

// mailbox is a bounded multi-producer/single-consumer FIFO of IPI messages.
//
// Slot sequence numbers make the handoff safe without a lock: a producer
// reserves a slot by advancing head, publishes the message by storing
// seq = position+1, and the consumer returns the slot by storing
// seq = position+mailboxSlots. Messages from one producer are delivered
// in the order that producer enqueued them.
type mailbox struct {
	_     [0]func() // prevent accidental copying.
	head  atomic.Uint64
	tail  atomic.Uint64
	slots [mailboxSlots]mailSlot
}

func newMailbox() *mailbox {
	mb := &mailbox{}
	for i := range mb.slots {
		mb.slots[i].seq.Store(uint64(i))
	}
	return mb
}

// trySend attempts to enqueue a message, returning false if the mailbox is full.
func (mb *mailbox) trySend(msg Message) bool {
	for {
		head := mb.head.Load()
		slot := &mb.slots[head%mailboxSlots]
		seq := slot.seq.Load()
		switch {
		case seq == head:
			if !mb.head.CompareAndSwap(head, head+1) {
				continue // lost the slot to another producer
			}
			slot.msg = msg
			slot.seq.Store(head + 1)
			return true
		case seq < head:
			// The slot a full ring ahead of us has not been consumed yet.
			return false
		default:
			// Another producer claimed head in between; reload and retry.
		}
	}
}

// send enqueues a message, yielding until a slot frees up.
func (mb *mailbox) send(msg Message) {
	for !mb.trySend(msg) {
		runtime.Gosched()
	}
}

// tryRecv dequeues one message, returning false if the mailbox is empty.
// Only the owning core may call it.
func (mb *mailbox) tryRecv() (Message, bool) {
	tail := mb.tail.Load()
	slot := &mb.slots[tail%mailboxSlots]
	if slot.seq.Load() != tail+1 {
		return Message{}, false
	}
	msg := slot.msg
	slot.msg = Message{} // drop the Call reference
	slot.seq.Store(tail + mailboxSlots)
	mb.tail.Store(tail + 1)
	return msg, true
}
