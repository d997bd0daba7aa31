package mailer

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/rabbitmq/amqp091-go"

	"github.com/hackgods/practice-booking-engine/internal/apperr"
)

const dialTimeout = 5 * time.Second

// job is the payload the mail relay consumes.
type job struct {
	From     string `json:"from"`
	To       string `json:"to"`
	Subject  string `json:"subject"`
	HTMLBody string `json:"html"`
	Kind     Kind   `json:"kind"`
	QueuedAt string `json:"queuedAt"`
}

// channel is the part of *amqp091.Channel the sender publishes through.
type channel interface {
	PublishWithDeferredConfirmWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp091.Publishing) (*amqp091.DeferredConfirmation, error)
	IsClosed() bool
	Close() error
}

// RabbitSender publishes persistent mail jobs and waits for the broker confirm.
// A closed channel or connection is reopened on the next Send.
type RabbitSender struct {
	mu      sync.Mutex
	open    func() (channel, error)
	closer  func() error
	channel channel
	queue   string
	from    string
}

// Dial connects to the broker that feeds the mail relay.
func Dial(url string) (*amqp091.Connection, error) {
	conn, err := amqp091.DialConfig(url, amqp091.Config{
		Dial:      amqp091.DefaultDial(dialTimeout),
		Heartbeat: 10 * time.Second,
		Locale:    "en_US",
	})
	if err != nil {
		return nil, errBrokerUnavailable(err)
	}
	return conn, nil
}

// NewRabbitSender dials url and declares queue. The connection is owned by
// the sender and redialed after a broker restart.
func NewRabbitSender(url, queue, from string) (*RabbitSender, error) {
	d := &rabbitDialer{url: url, queue: queue}
	s := newRabbitSender(d.open, d.close, queue, from)

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.ensureChannel(); err != nil {
		return nil, err
	}
	return s, nil
}

func newRabbitSender(open func() (channel, error), closer func() error, queue, from string) *RabbitSender {
	return &RabbitSender{
		open:   open,
		closer: closer,
		queue:  queue,
		from:   from,
	}
}

func (s *RabbitSender) Send(ctx context.Context, msg Message) error {
	if !ValidEmail(msg.To) {
		return ErrInvalidRecipient
	}

	publishing, err := s.publishing(msg, time.Now())
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	ch, err := s.ensureChannel()
	if err != nil {
		return err
	}

	confirm, err := ch.PublishWithDeferredConfirmWithContext(ctx, "", s.queue, false, false, publishing)
	if err != nil {
		if errors.Is(err, amqp091.ErrClosed) || ch.IsClosed() {
			s.dropChannel()
			return errBrokerUnavailable(err)
		}
		return apperr.Wrap(apperr.KindDelivery, "mail_publish_failed", "failed to publish mail job", err)
	}

	acked, err := confirm.WaitContext(ctx)
	if err != nil {
		return apperr.Wrap(apperr.KindDelivery, "mail_confirm_timeout", "mail job was not confirmed", err)
	}
	if !acked {
		if ch.IsClosed() {
			s.dropChannel()
			return errBrokerUnavailable(amqp091.ErrClosed)
		}
		return apperr.New(apperr.KindDelivery, "mail_nacked", "broker rejected the mail job")
	}
	return nil
}

// Ping reopens the channel if the broker dropped it.
func (s *RabbitSender) Ping(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.ensureChannel()
	return err
}

// ensureChannel must be called with s.mu held.
func (s *RabbitSender) ensureChannel() (channel, error) {
	if s.channel != nil && !s.channel.IsClosed() {
		return s.channel, nil
	}
	ch, err := s.open()
	if err != nil {
		if apperr.Is(err, apperr.KindTransient) {
			return nil, err
		}
		return nil, errBrokerUnavailable(err)
	}
	s.channel = ch
	return ch, nil
}

func (s *RabbitSender) dropChannel() {
	if s.channel != nil {
		_ = s.channel.Close()
	}
	s.channel = nil
}

func (s *RabbitSender) publishing(msg Message, now time.Time) (amqp091.Publishing, error) {
	body, err := json.Marshal(job{
		From:     s.from,
		To:       msg.To,
		Subject:  msg.Subject,
		HTMLBody: msg.HTMLBody,
		Kind:     msg.Kind,
		QueuedAt: now.UTC().Format(time.RFC3339),
	})
	if err != nil {
		return amqp091.Publishing{}, fmt.Errorf("encode mail job: %w", err)
	}

	return amqp091.Publishing{
		ContentType:  "application/json",
		Body:         body,
		DeliveryMode: amqp091.Persistent,
		Timestamp:    now,
		Type:         string(msg.Kind),
		Headers: amqp091.Table{
			"message_type":     "JSON",
			"requeue_strategy": "DROP",
		},
	}, nil
}

func (s *RabbitSender) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.dropChannel()
	if s.closer != nil {
		return s.closer()
	}
	return nil
}

func errBrokerUnavailable(err error) error {
	return apperr.Wrap(apperr.KindTransient, "mail_broker_unavailable", "mail broker is unavailable", err)
}

// rabbitDialer owns the broker connection behind a RabbitSender.
type rabbitDialer struct {
	url   string
	queue string
	conn  *amqp091.Connection
}

func (d *rabbitDialer) open() (channel, error) {
	if d.conn == nil || d.conn.IsClosed() {
		conn, err := Dial(d.url)
		if err != nil {
			return nil, err
		}
		d.conn = conn
	}

	ch, err := d.conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("open channel: %w", err)
	}
	if err := ch.Confirm(false); err != nil {
		_ = ch.Close()
		return nil, fmt.Errorf("enable publisher confirms: %w", err)
	}
	if _, err := ch.QueueDeclare(d.queue, true, false, false, false, nil); err != nil {
		_ = ch.Close()
		return nil, fmt.Errorf("declare queue %s: %w", d.queue, err)
	}
	return ch, nil
}

func (d *rabbitDialer) close() error {
	if d.conn == nil || d.conn.IsClosed() {
		return nil
	}
	return d.conn.Close()
}
