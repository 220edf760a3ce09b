package events

import (
	"context"
	"fmt"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog/log"
)

// Triggerer requests a replica sync without blocking.
type Triggerer interface {
	Trigger()
}

// Listener turns auction change notifications into sync requests. Payloads
// are not applied directly; the sync pulls authoritative state instead.
type Listener struct {
	conn     *nats.Conn
	subs     []*nats.Subscription
	subjects []string
	sync     Triggerer

	subscribe func(subject string, cb nats.MsgHandler) (*nats.Subscription, error)
}

func NewListener(natsURL string, subjects []string, sync Triggerer) (*Listener, error) {
	conn, err := nats.Connect(natsURL,
		nats.Name("auctionsearch"),
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				log.Warn().Err(err).Msg("nats disconnected")
			}
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			log.Info().Str("url", c.ConnectedUrl()).Msg("nats reconnected")
			// changes published while disconnected were missed
			sync.Trigger()
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}
	return &Listener{conn: conn, subjects: subjects, sync: sync, subscribe: conn.Subscribe}, nil
}

// Start subscribes and blocks until ctx is cancelled. A subject that cannot
// be subscribed is logged and skipped; it never stops the process.
func (l *Listener) Start(ctx context.Context) error {
	for _, subject := range l.subjects {
		sub, err := l.subscribe(subject, l.HandleMessage)
		if err != nil {
			log.Warn().Err(err).Str("subject", subject).Msg("failed to subscribe to auction events")
			continue
		}
		l.subs = append(l.subs, sub)
		log.Info().Str("subject", subject).Msg("subscribed to auction events")
	}

	if len(l.subs) == 0 {
		log.Warn().Msg("event-driven sync disabled: no subscriptions")
	}

	<-ctx.Done()
	return nil
}

func (l *Listener) HandleMessage(msg *nats.Msg) {
	log.Debug().Str("subject", msg.Subject).Int("bytes", len(msg.Data)).Msg("auction event received")
	l.sync.Trigger()
}

func (l *Listener) Close() error {
	for _, sub := range l.subs {
		_ = sub.Unsubscribe()
	}
	if l.conn != nil {
		l.conn.Close()
	}
	return nil
}
