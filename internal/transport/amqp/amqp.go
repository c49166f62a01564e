// Package amqp consumes chat events from a RabbitMQ queue and publishes the
// replies.
//
// Inbound body:  {"identifier": "42", "text": "/start"}
// Outbound body: {"identifier": "42", "text": "...", "options": ["..."]}
//
// Replies go to the delivery's ReplyTo queue when set, otherwise to the
// configured exchange and reply routing key. Deliveries are acked once the
// reply is published; bodies that cannot be decoded are rejected without
// requeue. Events that fail to persist are nacked with requeue and get no
// reply.
package amqp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/tbourn/go-feedback-bot/internal/services"
	"github.com/tbourn/go-feedback-bot/internal/transport"
)

const publishTimeout = 5 * time.Second

// Channel is the part of *amqp.Channel the transport uses.
type Channel interface {
	QueueDeclare(name string, durable, autoDelete, exclusive, noWait bool, args amqp.Table) (amqp.Queue, error)
	Qos(prefetchCount, prefetchSize int, global bool) error
	Consume(queue, consumer string, autoAck, exclusive, noLocal, noWait bool, args amqp.Table) (<-chan amqp.Delivery, error)
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
}

// Options configures a Transport.
type Options struct {
	InboundQueue string
	ReplyQueue   string
	Exchange     string // "" publishes to the default exchange
	ConsumerTag  string
	Workers      int
	Log          *zerolog.Logger
}

// Inbound is one chat event on the wire.
type Inbound struct {
	Identifier string `json:"identifier"`
	Text       string `json:"text"`
}

// Outbound is one reply on the wire.
type Outbound struct {
	Identifier string   `json:"identifier"`
	Text       string   `json:"text"`
	Options    []string `json:"options,omitempty"`
}

// ErrBadMessage is returned by Decode for unusable bodies.
var ErrBadMessage = errors.New("amqp: bad message")

// Transport feeds queue deliveries to the conversation.
type Transport struct {
	ch    Channel
	sched transport.Scheduler
	opts  Options
}

// New returns a Transport reading from ch.
func New(ch Channel, sched transport.Scheduler, opts Options) *Transport {
	if opts.Workers < 1 {
		opts.Workers = 16
	}
	if opts.ConsumerTag == "" {
		opts.ConsumerTag = "feedbackbot"
	}
	return &Transport{ch: ch, sched: sched, opts: opts}
}

// Dial opens a connection and channel to url.
func Dial(url string) (*amqp.Connection, *amqp.Channel, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, nil, fmt.Errorf("amqp: dial: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, nil, fmt.Errorf("amqp: open channel: %w", err)
	}
	return conn, ch, nil
}

// Run declares the queues and consumes until ctx is cancelled or the
// delivery channel closes, then waits for in-flight events.
func (t *Transport) Run(ctx context.Context) error {
	for _, q := range []string{t.opts.InboundQueue, t.opts.ReplyQueue} {
		if q == "" {
			continue
		}
		if _, err := t.ch.QueueDeclare(q, true, false, false, false, nil); err != nil {
			return fmt.Errorf("amqp: declare %s: %w", q, err)
		}
	}
	if err := t.ch.Qos(t.opts.Workers*2, 0, false); err != nil {
		return fmt.Errorf("amqp: qos: %w", err)
	}
	msgs, err := t.ch.Consume(t.opts.InboundQueue, t.opts.ConsumerTag, false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("amqp: consume %s: %w", t.opts.InboundQueue, err)
	}

	d := transport.NewDispatcher(ctx, t.sched, t.opts.Workers)
	defer d.Wait()

	t.logger().Info().Str("queue", t.opts.InboundQueue).Int("workers", t.opts.Workers).Msg("amqp consumer started")
	for {
		select {
		case <-ctx.Done():
			t.logger().Info().Msg("amqp consumer stopped")
			return nil
		case dlv, ok := <-msgs:
			if !ok {
				return nil
			}
			t.handle(d, dlv)
		}
	}
}

func (t *Transport) handle(d *transport.Dispatcher, dlv amqp.Delivery) {
	in, err := Decode(dlv.Body)
	if err != nil {
		t.logger().Warn().Err(err).Uint64("delivery_tag", dlv.DeliveryTag).Msg("amqp message rejected")
		_ = dlv.Reject(false)
		return
	}

	d.Submit(in.Identifier, in.Text, func(reply services.Reply, err error) {
		if errors.Is(err, services.ErrPersistence) {
			// Nothing was committed; the redelivery re-reads the state.
			t.logger().Warn().Err(err).Uint64("delivery_tag", dlv.DeliveryTag).Msg("amqp event requeued")
			_ = dlv.Nack(false, true)
			return
		}
		if err != nil {
			t.logger().Error().Err(err).Uint64("delivery_tag", dlv.DeliveryTag).Msg("amqp event failed")
			reply = services.Reply{Text: services.ErrorReplyText}
		}
		if perr := t.publish(dlv, Outbound{Identifier: in.Identifier, Text: reply.Text, Options: reply.Options}); perr != nil {
			t.logger().Error().Err(perr).Uint64("delivery_tag", dlv.DeliveryTag).Msg("amqp publish failed")
			_ = dlv.Nack(false, false)
			return
		}
		_ = dlv.Ack(false)
	})
}

func (t *Transport) publish(dlv amqp.Delivery, out Outbound) error {
	body, err := json.Marshal(out)
	if err != nil {
		return err
	}
	exchange, key := t.opts.Exchange, t.opts.ReplyQueue
	if dlv.ReplyTo != "" {
		exchange, key = "", dlv.ReplyTo
	}
	if key == "" {
		return nil // nowhere to reply
	}

	// The consumer context may already be cancelled while draining.
	ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
	defer cancel()
	return t.ch.PublishWithContext(ctx, exchange, key, false, false, amqp.Publishing{
		ContentType:   "application/json",
		CorrelationId: dlv.CorrelationId,
		Body:          body,
		Timestamp:     time.Now(),
		DeliveryMode:  amqp.Persistent,
	})
}

// Decode parses an inbound body.
func Decode(body []byte) (Inbound, error) {
	var in Inbound
	if err := json.Unmarshal(body, &in); err != nil {
		return Inbound{}, fmt.Errorf("%w: %v", ErrBadMessage, err)
	}
	if strings.TrimSpace(in.Identifier) == "" || in.Text == "" {
		return Inbound{}, fmt.Errorf("%w: identifier and text are required", ErrBadMessage)
	}
	return in, nil
}

func (t *Transport) logger() *zerolog.Logger {
	if t.opts.Log != nil {
		return t.opts.Log
	}
	return &log.Logger
}
