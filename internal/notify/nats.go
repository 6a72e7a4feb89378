package notify

import (
	"context"
	"fmt"

	"github.com/nats-io/nats.go"
)

// DefaultSubject is the NATS subject notifications are published on.
const DefaultSubject = "bggeo.notifications"

// natsPublisher is the subset of *nats.Conn used here.
type natsPublisher interface {
	Publish(subject string, data []byte) error
}

// NATSNotifier publishes notifications for a device-side bridge to schedule.
type NATSNotifier struct {
	conn    natsPublisher
	subject string
}

var _ natsPublisher = (*nats.Conn)(nil)

func NewNATSNotifier(conn *nats.Conn, subject string) *NATSNotifier {
	return newNATSNotifier(conn, subject)
}

func newNATSNotifier(conn natsPublisher, subject string) *NATSNotifier {
	if subject == "" {
		subject = DefaultSubject
	}
	return &NATSNotifier{conn: conn, subject: subject}
}

func (p *NATSNotifier) Notify(ctx context.Context, n Notification) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	_, data, err := encodeEnvelope(n)
	if err != nil {
		return err
	}
	if err := p.conn.Publish(p.subject, data); err != nil {
		return fmt.Errorf("failed to publish notification: %w", err)
	}
	return nil
}
