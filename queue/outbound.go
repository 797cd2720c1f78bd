// Package queue implements the outbound telemetry queue and the twin
// pending/ack queues. Ordering, timeout sweeping, and id correlation live
// here; the package performs no locking — the client core is single-owner
// and cooperatively driven.
package queue

import (
	"container/list"

	"github.com/azdevice/deviceclient/transport"
)

// SendCallback is invoked exactly once per outbound entry, with the
// terminal confirmation verdict.
type SendCallback func(confirmation transport.Confirmation, userCtx any)

// outboundEntry is one queued outbound message entry.
type outboundEntry struct {
	id       uint64
	msg      *transport.Message
	cb       SendCallback
	userCtx  any
	deadline uint64 // tick at which this entry was enqueued plus timeout; 0 = no timeout
	span     uint64
}

// OutboundQueue holds cloned telemetry awaiting send and enforces the
// per-message timeout sweep.
type OutboundQueue struct {
	entries *list.List // of *outboundEntry, oldest first
	nextID  uint64
}

// NewOutboundQueue constructs an empty queue.
func NewOutboundQueue() *OutboundQueue {
	return &OutboundQueue{entries: list.New()}
}

// Enqueue clones msg, assigns it a deadline (tick+span, or 0 meaning no
// timeout when span is 0), and appends it to the queue. It returns the
// internal entry id, used only for testing/introspection.
func (q *OutboundQueue) Enqueue(msg *transport.Message, cb SendCallback, userCtx any, tick, timeoutSpan uint64) uint64 {
	q.nextID++
	entry := &outboundEntry{
		id:      q.nextID,
		msg:     msg.Clone(),
		cb:      cb,
		userCtx: userCtx,
		span:    timeoutSpan,
	}
	if timeoutSpan != 0 {
		entry.deadline = tick + timeoutSpan
	}
	q.entries.PushBack(entry)
	return entry.id
}

// Len reports the number of entries still queued.
func (q *OutboundQueue) Len() int { return q.entries.Len() }

// IsBusy reports whether any entry is queued; backs GetSendStatus.
func (q *OutboundQueue) IsBusy() bool { return q.entries.Len() > 0 }

// Pending returns a snapshot of every queued entry as transport.PendingMessage,
// in enqueue order, for the driver loop to hand to the transport.
func (q *OutboundQueue) Pending() []transport.PendingMessage {
	out := make([]transport.PendingMessage, 0, q.entries.Len())
	for e := q.entries.Front(); e != nil; e = e.Next() {
		entry := e.Value.(*outboundEntry)
		out = append(out, transport.PendingMessage{ID: entry.id, Msg: entry.msg})
	}
	return out
}

// SweepTimeouts walks the queue and, for every entry whose deadline is
// non-zero and now-deadline exceeds its span, removes it, invokes its
// callback with MESSAGE_TIMEOUT, and drops the reference to its message.
func (q *OutboundQueue) SweepTimeouts(now uint64) {
	var next *list.Element
	for e := q.entries.Front(); e != nil; e = next {
		next = e.Next()
		entry := e.Value.(*outboundEntry)
		if entry.deadline == 0 {
			continue
		}
		if now < entry.deadline {
			continue
		}
		if now-entry.deadline > entry.span {
			q.entries.Remove(e)
			if entry.cb != nil {
				entry.cb(transport.ConfirmationMessageTimeout, entry.userCtx)
			}
			entry.msg = nil
		}
	}
}

// Complete applies a transport-reported confirmation to every entry named
// by ids, invoking each callback once and removing the entry. Entries whose id is not present in
// the queue are ignored (they may already have timed out).
func (q *OutboundQueue) Complete(ids []uint64, confirmation transport.Confirmation) {
	want := make(map[uint64]bool, len(ids))
	for _, id := range ids {
		want[id] = true
	}
	var next *list.Element
	for e := q.entries.Front(); e != nil; e = next {
		next = e.Next()
		entry := e.Value.(*outboundEntry)
		if !want[entry.id] {
			continue
		}
		q.entries.Remove(e)
		if entry.cb != nil {
			entry.cb(confirmation, entry.userCtx)
		}
		entry.msg = nil
	}
}

// DrainAll removes every remaining entry, invoking each callback with the
// given confirmation. Used by teardown.
func (q *OutboundQueue) DrainAll(confirmation transport.Confirmation) {
	var next *list.Element
	for e := q.entries.Front(); e != nil; e = next {
		next = e.Next()
		entry := e.Value.(*outboundEntry)
		q.entries.Remove(e)
		if entry.cb != nil {
			entry.cb(confirmation, entry.userCtx)
		}
		entry.msg = nil
	}
}
