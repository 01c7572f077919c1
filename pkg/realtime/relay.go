package realtime

import (
	"encoding/json"
	"sync"

	"github.com/valyala/bytebufferpool"

	"groupchat/pkg/logger"
	"groupchat/pkg/metrics"
)

// Frame is the outbound wire shape for every realtime event.
type Frame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// Relay fans events out to the sessions subscribed to a room. Delivery is
// best effort and at most once: events published before a join, or while a
// client's buffer is full, are simply not delivered. When a NATS bridge is
// attached, publishes travel through the broker so every process in the
// deployment sees them; the subscription feeds back into the local queue.
type Relay struct {
	reg     *Registry
	q       *eventQueue
	workers int
	wg      sync.WaitGroup
	bridge  *NATSBridge
}

func NewRelay(reg *Registry, queueSize, workers int) *Relay {
	if workers <= 0 {
		workers = 4
	}
	return &Relay{reg: reg, q: newEventQueue(queueSize), workers: workers}
}

// AttachBridge routes publishes through NATS. Must be called before Start.
func (r *Relay) AttachBridge(b *NATSBridge) { r.bridge = b }

func (r *Relay) Start() {
	if r.bridge != nil {
		if err := r.bridge.Start(r.enqueue); err != nil {
			logger.Error("nats_subscribe_failed", "error", err)
			r.bridge.Close()
			r.bridge = nil
		}
	}
	for i := 0; i < r.workers; i++ {
		r.wg.Add(1)
		go r.worker()
	}
}

// Stop drains queued events and waits for workers to finish.
func (r *Relay) Stop() {
	if r.bridge != nil {
		r.bridge.Close()
	}
	r.q.Close()
	r.wg.Wait()
}

// Publish implements the fan-out hook the ingestion pipeline calls after a
// durable write.
func (r *Relay) Publish(groupID, event string, payload any) {
	r.publish(groupID, event, payload, "")
}

// PublishExcept fans out to everyone in the room except the named user.
// Used for typing signals, which never echo back to their source.
func (r *Relay) PublishExcept(groupID, event string, payload any, exceptUser string) {
	r.publish(groupID, event, payload, exceptUser)
}

func (r *Relay) publish(groupID, event string, payload any, except string) {
	data, err := json.Marshal(payload)
	if err != nil {
		logger.Error("event_encode_failed", "event", event, "error", err)
		return
	}
	metrics.IncEventsPublished(event)
	if r.bridge != nil {
		err := r.bridge.Publish(groupID, event, data, except)
		if err == nil {
			return
		}
		logger.Warn("nats_publish_failed", "event", event, "error", err)
	}
	r.enqueue(groupID, event, data, except)
}

func (r *Relay) enqueue(groupID, event string, data []byte, except string) {
	buf := bytebufferpool.Get()
	if err := json.NewEncoder(buf).Encode(Frame{Event: event, Data: data}); err != nil {
		bytebufferpool.Put(buf)
		logger.Error("frame_encode_failed", "event", event, "error", err)
		return
	}
	e := &envelope{group: groupID, event: event, buf: buf, except: except}
	r.q.TryEnqueue(e)
}

func (r *Relay) worker() {
	defer r.wg.Done()
	for e := range r.q.ch {
		r.deliver(e)
	}
}

func (r *Relay) deliver(e *envelope) {
	// Copy out of the pooled buffer once; sessions share the read-only
	// slice while their writers drain.
	frame := append([]byte(nil), e.buf.Bytes()...)
	r.q.release(e)
	for _, s := range r.reg.MembersOf(e.group) {
		if e.except != "" && s.User == e.except {
			continue
		}
		if !s.trySend(frame) {
			metrics.IncEventsDropped("slow_consumer")
			logger.Debug("frame_dropped", "session", s.ID, "event", e.event)
		}
	}
}

// Dropped reports how many events the queue refused since startup.
func (r *Relay) Dropped() uint64 { return r.q.Dropped() }
