package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"vidshare/cmd/catalog"
	"vidshare/cmd/identity"
)

// VideoEncoded is the body of a "video.encoded" message.
type VideoEncoded struct {
	VideoID         int64   `json:"videoId"`
	DurationSeconds *int32  `json:"durationSeconds"`
	ThumbnailURL    *string `json:"thumbnailUrl"`
}

// VideoFailed is the body of a "video.failed" message.
type VideoFailed struct {
	VideoID int64 `json:"videoId"`
}

// StatusUpdater applies pipeline results. *catalog.Service satisfies it.
type StatusUpdater interface {
	MarkReady(ctx context.Context, id int64, res catalog.EncodingResult) (catalog.Video, error)
	MarkFailed(ctx context.Context, id int64) (catalog.Video, error)
}

// ConsumerConfig names the queue bound to the pipeline routing keys.
type ConsumerConfig struct {
	URL      string
	Exchange string
	Queue    string
	Prefetch int

	// RetryDelay is the pause before requeueing after a store failure. It doubles
	// with each consecutive failure up to MaxRetryDelay.
	RetryDelay    time.Duration
	MaxRetryDelay time.Duration
}

// Consumer drives video status transitions from pipeline messages.
type Consumer struct {
	cfg     ConsumerConfig
	updater StatusUpdater
	log     *slog.Logger

	conn *amqp.Connection
	ch   *amqp.Channel

	// Consecutive store failures; process runs on one goroutine.
	failures int
	wait     func(ctx context.Context, d time.Duration)
}

// errBadMessage marks a delivery that can never succeed.
var errBadMessage = errors.New("bad message")

// NewConsumer returns an unconnected Consumer.
func NewConsumer(cfg ConsumerConfig, updater StatusUpdater, log *slog.Logger) *Consumer {
	if log == nil {
		log = slog.Default()
	}
	if cfg.Prefetch <= 0 {
		cfg.Prefetch = 8
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = 500 * time.Millisecond
	}
	if cfg.MaxRetryDelay < cfg.RetryDelay {
		cfg.MaxRetryDelay = 30 * time.Second
	}
	return &Consumer{cfg: cfg, updater: updater, log: log, wait: sleepCtx}
}

// Connect declares the exchange and queue and binds the pipeline keys.
func (c *Consumer) Connect() error {
	conn, ch, err := dial(c.cfg.URL, c.cfg.Exchange)
	if err != nil {
		return err
	}
	q, err := ch.QueueDeclare(c.cfg.Queue, true, false, false, false, nil)
	if err != nil {
		_ = closeAll(ch, conn)
		return fmt.Errorf("events: declare queue: %w", err)
	}
	for _, key := range []string{RKVideoEncoded, RKVideoFailed} {
		if err := ch.QueueBind(q.Name, key, c.cfg.Exchange, false, nil); err != nil {
			_ = closeAll(ch, conn)
			return fmt.Errorf("events: bind %s: %w", key, err)
		}
	}
	if err := ch.Qos(c.cfg.Prefetch, 0, false); err != nil {
		_ = closeAll(ch, conn)
		return fmt.Errorf("events: set qos: %w", err)
	}
	c.conn, c.ch = conn, ch
	c.cfg.Queue = q.Name
	return nil
}

// Run consumes until ctx is done or the delivery channel closes.
func (c *Consumer) Run(ctx context.Context) error {
	if c.ch == nil {
		return errors.New("events: consumer not connected")
	}
	msgs, err := c.ch.ConsumeWithContext(ctx, c.cfg.Queue, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("events: consume: %w", err)
	}
	c.log.InfoContext(ctx, "events.consumer.start", "queue", c.cfg.Queue)

	for {
		select {
		case <-ctx.Done():
			return nil
		case d, ok := <-msgs:
			if !ok {
				return errors.New("events: delivery channel closed")
			}
			c.process(ctx, d)
		}
	}
}

// process settles one delivery: ack on success or on a stale transition,
// reject bad messages, requeue store failures after a growing delay.
func (c *Consumer) process(ctx context.Context, d amqp.Delivery) {
	err := c.handle(ctx, d.RoutingKey, d.Body)
	if err == nil || !isRetryable(err) {
		c.failures = 0
	}
	switch {
	case err == nil:
		_ = d.Ack(false)

	case errors.Is(err, errBadMessage), identity.IsNotFound(err), identity.IsInvalidInput(err):
		c.log.WarnContext(ctx, "events.delivery.reject", "key", d.RoutingKey, "err", err)
		_ = d.Reject(false)

	case identity.IsConflict(err):
		c.log.InfoContext(ctx, "events.delivery.stale", "key", d.RoutingKey, "err", err)
		_ = d.Ack(false)

	default:
		delay := c.retryDelay()
		c.failures++
		c.log.ErrorContext(ctx, "events.delivery.retry", "key", d.RoutingKey, "failures", c.failures, "delay", delay, "err", err)
		c.wait(ctx, delay)
		_ = d.Nack(false, true)
	}
}

func isRetryable(err error) bool {
	return !errors.Is(err, errBadMessage) && !identity.IsNotFound(err) &&
		!identity.IsInvalidInput(err) && !identity.IsConflict(err)
}

func (c *Consumer) retryDelay() time.Duration {
	d := c.cfg.RetryDelay
	for i := 0; i < c.failures && d < c.cfg.MaxRetryDelay; i++ {
		d *= 2
	}
	return min(d, c.cfg.MaxRetryDelay)
}

// sleepCtx pauses for d or until ctx is done.
func sleepCtx(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}

func (c *Consumer) handle(ctx context.Context, key string, body []byte) error {
	switch key {
	case RKVideoEncoded:
		ev, err := decode[VideoEncoded](body)
		if err != nil {
			return err
		}
		if ev.VideoID <= 0 {
			return fmt.Errorf("%w: missing videoId", errBadMessage)
		}
		_, err = c.updater.MarkReady(ctx, ev.VideoID, catalog.EncodingResult{
			DurationSeconds: ev.DurationSeconds,
			ThumbnailURL:    ev.ThumbnailURL,
		})
		return err

	case RKVideoFailed:
		ev, err := decode[VideoFailed](body)
		if err != nil {
			return err
		}
		if ev.VideoID <= 0 {
			return fmt.Errorf("%w: missing videoId", errBadMessage)
		}
		_, err = c.updater.MarkFailed(ctx, ev.VideoID)
		return err

	default:
		return fmt.Errorf("%w: unknown routing key %q", errBadMessage, key)
	}
}

func decode[T any](b []byte) (T, error) {
	var t T
	if err := json.Unmarshal(b, &t); err != nil {
		var zero T
		return zero, fmt.Errorf("%w: %v", errBadMessage, err)
	}
	return t, nil
}

// Close releases the channel and connection.
func (c *Consumer) Close() error { return closeAll(c.ch, c.conn) }
