package realtime

import (
	"sync"
	"sync/atomic"

	"github.com/valyala/bytebufferpool"

	"groupchat/pkg/metrics"
)

// envelope is one encoded frame waiting for fan-out. The buffer holds the
// wire-ready JSON and is returned to the pool after delivery.
type envelope struct {
	group  string
	event  string
	buf    *bytebufferpool.ByteBuffer
	except string
}

// eventQueue is a bounded, non-blocking buffer between publishers and the
// delivery workers. When full, events are dropped and counted rather than
// blocking the ingestion path.
type eventQueue struct {
	ch      chan *envelope
	dropped uint64
	mu      sync.Mutex
	closed  bool
}

func newEventQueue(capacity int) *eventQueue {
	if capacity <= 0 {
		capacity = 1024
	}
	return &eventQueue{ch: make(chan *envelope, capacity)}
}

// TryEnqueue attempts to queue an envelope without blocking. On failure
// the buffer is released and the drop is counted.
func (q *eventQueue) TryEnqueue(e *envelope) bool {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		q.release(e)
		metrics.IncEventsDropped("queue_closed")
		return false
	}
	select {
	case q.ch <- e:
		q.mu.Unlock()
		return true
	default:
		q.mu.Unlock()
		atomic.AddUint64(&q.dropped, 1)
		q.release(e)
		metrics.IncEventsDropped("queue_full")
		return false
	}
}

func (q *eventQueue) release(e *envelope) {
	if e.buf != nil {
		bytebufferpool.Put(e.buf)
		e.buf = nil
	}
}

// Close stops accepting new envelopes; workers drain what remains.
func (q *eventQueue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}
	q.closed = true
	close(q.ch)
}

func (q *eventQueue) Dropped() uint64 { return atomic.LoadUint64(&q.dropped) }
