package realtime

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/nats-io/nats.go"

	"groupchat/pkg/logger"
)

// natsEnvelope is the broker payload for one room event.
type natsEnvelope struct {
	Group  string          `json:"group"`
	Event  string          `json:"event"`
	Except string          `json:"except,omitempty"`
	Data   json.RawMessage `json:"data"`
}

// NATSBridge mirrors room events through a NATS subject per group so that
// multiple gateway processes share one fan-out plane.
type NATSBridge struct {
	nc     *nats.Conn
	sub    *nats.Subscription
	prefix string
}

// NewNATSBridge connects to the broker. The prefix namespaces subjects,
// one subject per group: <prefix>.<groupID>.
func NewNATSBridge(url, prefix string) (*NATSBridge, error) {
	if prefix == "" {
		prefix = "chat.room"
	}
	nc, err := nats.Connect(url,
		nats.Name("groupchat-relay"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			logger.Warn("nats_disconnected", "error", err)
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Info("nats_reconnected", "url", nc.ConnectedUrl())
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("nats connect: %w", err)
	}
	return &NATSBridge{nc: nc, prefix: strings.TrimSuffix(prefix, ".")}, nil
}

// Start subscribes to the room subject space and feeds received events to
// the local delivery queue.
func (b *NATSBridge) Start(deliver func(group, event string, data []byte, except string)) error {
	sub, err := b.nc.Subscribe(b.prefix+".>", func(msg *nats.Msg) {
		var env natsEnvelope
		if err := json.Unmarshal(msg.Data, &env); err != nil {
			logger.Warn("nats_envelope_decode_failed", "subject", msg.Subject, "error", err)
			return
		}
		deliver(env.Group, env.Event, env.Data, env.Except)
	})
	if err != nil {
		return fmt.Errorf("nats subscribe: %w", err)
	}
	b.sub = sub
	logger.Info("nats_bridge_started", "subject", b.prefix+".>")
	return nil
}

// Publish sends one room event to the broker.
func (b *NATSBridge) Publish(group, event string, data []byte, except string) error {
	payload, err := json.Marshal(natsEnvelope{Group: group, Event: event, Except: except, Data: data})
	if err != nil {
		return err
	}
	return b.nc.Publish(b.prefix+"."+group, payload)
}

func (b *NATSBridge) Close() {
	if b.sub != nil {
		_ = b.sub.Unsubscribe()
	}
	if b.nc != nil {
		_ = b.nc.Drain()
	}
}
