package queue

import (
	"container/list"
	"math"

	"github.com/azdevice/deviceclient/transport"
)

// TwinCallback is invoked exactly once for a reported-state entry, with the
// transport-reported status.
type TwinCallback func(status transport.Result, userCtx any)

// twinEntry is one reported-state entry: an item id, a shared reference
// to the opaque payload, and the user callback.
type twinEntry struct {
	itemID  uint32
	payload []byte
	cb      TwinCallback
	userCtx any
}

// ItemIDAllocator produces monotone, wrap-around item ids: successive
// calls return distinct values in (0, MaxUint32], wrapping from
// MaxUint32 back to 1 (0 is never returned).
type ItemIDAllocator struct {
	next uint32
}

// NewItemIDAllocator starts the sequence so the first Next() returns 1.
func NewItemIDAllocator() *ItemIDAllocator {
	return &ItemIDAllocator{next: 0}
}

// Next returns the next item id, skipping 0 and wrapping from MaxUint32.
func (a *ItemIDAllocator) Next() uint32 {
	if a.next == math.MaxUint32 {
		a.next = 1
	} else {
		a.next++
	}
	return a.next
}

// TwinQueue holds the pending and ack-waiting reported-state entries.
type TwinQueue struct {
	ids     *ItemIDAllocator
	pending *list.List // of *twinEntry, oldest first
	acking  *list.List // of *twinEntry, no ordering requirement beyond id lookup
}

// NewTwinQueue constructs an empty twin queue with its own id allocator.
func NewTwinQueue() *TwinQueue {
	return &TwinQueue{ids: NewItemIDAllocator(), pending: list.New(), acking: list.New()}
}

// Enqueue assigns the next item id and appends a pending entry, returning
// the assigned id.
func (q *TwinQueue) Enqueue(payload []byte, cb TwinCallback, userCtx any) uint32 {
	id := q.ids.Next()
	q.pending.PushBack(&twinEntry{itemID: id, payload: payload, cb: cb, userCtx: userCtx})
	return id
}

// PendingLen reports the number of entries still awaiting transmission.
func (q *TwinQueue) PendingLen() int { return q.pending.Len() }

// AckLen reports the number of entries accepted by the transport and
// awaiting acknowledgement.
func (q *TwinQueue) AckLen() int { return q.acking.Len() }

// Drain walks the pending list front-to-back, handing each entry's payload
// to process, and applies this rule to the result:
//
//	CONTINUE or NOT_CONNECTED -> stop iteration for this tick
//	OK                        -> move the entry to the ack queue
//	anything else             -> remove and free, logged by the caller
//
// It returns the ids moved to the ack queue, and the ids dropped due to
// transport error, so the caller can log the latter.
func (q *TwinQueue) Drain(process func(itemID uint32, payload []byte) transport.ItemResult) (acked []uint32, dropped []uint32) {
	for e := q.pending.Front(); e != nil; {
		entry := e.Value.(*twinEntry)
		result := process(entry.itemID, entry.payload)
		switch result {
		case transport.ItemContinue, transport.ItemNotConnected:
			return acked, dropped
		case transport.ItemOK:
			next := e.Next()
			q.pending.Remove(e)
			q.acking.PushBack(entry)
			acked = append(acked, entry.itemID)
			e = next
		default:
			next := e.Next()
			q.pending.Remove(e)
			dropped = append(dropped, entry.itemID)
			e = next
		}
	}
	return acked, dropped
}

// Acknowledge scans the ack queue for itemID; if found, its callback is
// invoked with status and the entry is removed and freed. Unmatched ids
// are ignored.
func (q *TwinQueue) Acknowledge(itemID uint32, status transport.Result) (found bool) {
	for e := q.acking.Front(); e != nil; e = e.Next() {
		entry := e.Value.(*twinEntry)
		if entry.itemID != itemID {
			continue
		}
		q.acking.Remove(e)
		if entry.cb != nil {
			entry.cb(status, entry.userCtx)
		}
		return true
	}
	return false
}

// DestroyAll removes every entry from both queues without firing
// callbacks.
func (q *TwinQueue) DestroyAll() {
	q.pending.Init()
	q.acking.Init()
}
