package bus

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog/log"

	"github.com/mkarlin14/quizroom/internal/events"
)

const (
	subjectPrefix   = "quizroom.rooms."
	subjectWildcard = subjectPrefix + ">"
)

// NATSBus relays room events over core NATS subjects, one subject per
// room code, so every server instance broadcasts to its own sockets.
// Core subjects keep per-publisher order per room, which is all the
// gateway's causal-ordering contract needs.
type NATSBus struct {
	nc *nats.Conn
}

var _ Bus = (*NATSBus)(nil)

// Connect dials NATS with reconnect handling and returns a bus.
func Connect(url string) (*NATSBus, error) {
	nc, err := nats.Connect(url,
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			log.Error().Err(err).Msg("NATS disconnected")
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info().Str("url", nc.ConnectedUrl()).Msg("NATS reconnected")
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect to NATS: %w", err)
	}
	return &NATSBus{nc: nc}, nil
}

// NewNATSBus wraps an existing connection, for callers that also use
// it for the JetStream KV live store.
func NewNATSBus(nc *nats.Conn) *NATSBus {
	return &NATSBus{nc: nc}
}

// Conn exposes the underlying connection for JetStream binding.
func (b *NATSBus) Conn() *nats.Conn {
	return b.nc
}

func (b *NATSBus) Publish(ctx context.Context, ev *events.Envelope) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal event envelope: %w", err)
	}
	if err := b.nc.Publish(subjectPrefix+ev.RoomCode, data); err != nil {
		return fmt.Errorf("publish %s event for room %s: %w", ev.Kind, ev.RoomCode, err)
	}
	return nil
}

func (b *NATSBus) Subscribe(handler Handler) (func(), error) {
	sub, err := b.nc.Subscribe(subjectWildcard, func(msg *nats.Msg) {
		var ev events.Envelope
		if err := json.Unmarshal(msg.Data, &ev); err != nil {
			log.Error().Err(err).Str("subject", msg.Subject).Msg("failed to decode room event")
			return
		}
		handler(context.Background(), &ev)
	})
	if err != nil {
		return nil, fmt.Errorf("subscribe %s: %w", subjectWildcard, err)
	}

	return func() {
		if err := sub.Unsubscribe(); err != nil {
			log.Error().Err(err).Msg("failed to unsubscribe room events")
		}
	}, nil
}

// Close drains the connection.
func (b *NATSBus) Close() {
	b.nc.Close()
}
