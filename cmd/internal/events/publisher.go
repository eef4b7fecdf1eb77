package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"

	"vidshare/cmd/identity"
)

// UserRegistered is the body of a "user.registered" message.
type UserRegistered struct {
	EventID    string    `json:"eventId"`
	UserID     int64     `json:"userId"`
	Username   string    `json:"username"`
	OccurredAt time.Time `json:"occurredAt"`
}

type publishChannel interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
}

// Publisher implements identity.EventPublisher on a topic exchange.
type Publisher struct {
	conn     *amqp.Connection
	ch       *amqp.Channel
	pub      publishChannel
	exchange string
	now      func() time.Time
	newID    func() string
}

var _ identity.EventPublisher = (*Publisher)(nil)

// NewPublisher dials url and declares exchange.
func NewPublisher(url, exchange string) (*Publisher, error) {
	conn, ch, err := dial(url, exchange)
	if err != nil {
		return nil, err
	}
	p := newPublisher(ch, exchange)
	p.conn, p.ch = conn, ch
	return p, nil
}

func newPublisher(pub publishChannel, exchange string) *Publisher {
	return &Publisher{
		pub:      pub,
		exchange: exchange,
		now:      func() time.Time { return time.Now().UTC() },
		newID:    uuid.NewString,
	}
}

// UserRegistered publishes a "user.registered" event for u.
func (p *Publisher) UserRegistered(ctx context.Context, u identity.User) error {
	ev := UserRegistered{
		EventID:    p.newID(),
		UserID:     u.ID,
		Username:   u.Username,
		OccurredAt: p.now(),
	}
	return p.publishJSON(ctx, RKUserRegistered, ev.EventID, ev)
}

func (p *Publisher) publishJSON(ctx context.Context, key, messageID string, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("events: marshal %s: %w", key, err)
	}
	err = p.pub.PublishWithContext(ctx, p.exchange, key, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    messageID,
		Timestamp:    p.now(),
		Body:         b,
	})
	if err != nil {
		return fmt.Errorf("events: publish %s: %w", key, err)
	}
	return nil
}

// Close releases the channel and connection.
func (p *Publisher) Close() error { return closeAll(p.ch, p.conn) }
