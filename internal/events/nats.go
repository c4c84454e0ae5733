package events

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"whatsapp-inbox/pkg/metrics"
)

const subjectPrefix = "inbox.events"

// subjectFor maps an event type to a NATS subject, e.g.
// "message:new" -> "inbox.events.message.new".
func subjectFor(eventType string) string {
	return subjectPrefix + "." + strings.ReplaceAll(eventType, ":", ".")
}

// NATSBus publishes change events over NATS so multiple inbox nodes
// share one realtime stream.
type NATSBus struct {
	conn   *nats.Conn
	logger *zap.Logger
}

func ConnectNATS(url string, logger *zap.Logger) (*NATSBus, error) {
	conn, err := nats.Connect(url,
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			logger.Warn("nats disconnected", zap.Error(err))
		}),
		nats.ReconnectHandler(func(_ *nats.Conn) {
			logger.Info("nats reconnected")
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}
	return &NATSBus{conn: conn, logger: logger}, nil
}

func (b *NATSBus) Publish(_ context.Context, evt Event) error {
	if evt.Timestamp.IsZero() {
		evt.Timestamp = time.Now()
	}

	data, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}
	if err := b.conn.Publish(subjectFor(evt.Type), data); err != nil {
		return fmt.Errorf("failed to publish %s: %w", evt.Type, err)
	}

	metrics.EventsPublished.WithLabelValues(evt.Type).Inc()
	return nil
}

func (b *NATSBus) Subscribe(eventType string, fn Handler) (*Subscription, error) {
	sub, err := b.conn.Subscribe(subjectFor(eventType), func(msg *nats.Msg) {
		var evt Event
		if err := json.Unmarshal(msg.Data, &evt); err != nil {
			b.logger.Warn("dropping undecodable event",
				zap.String("subject", msg.Subject), zap.Error(err))
			return
		}
		fn(evt)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to subscribe to %s: %w", eventType, err)
	}

	return &Subscription{topic: eventType, cancel: sub.Unsubscribe}, nil
}

func (b *NATSBus) Unsubscribe(sub *Subscription) error {
	if sub == nil || sub.cancel == nil {
		return nil
	}
	return sub.cancel()
}

func (b *NATSBus) Close() error {
	b.conn.Close()
	return nil
}
