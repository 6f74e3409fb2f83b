package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog/log"
	"github.com/streadway/amqp"

	"github.com/unclebandit/salon-messaging/internal/model"
)

// WakeSource delivers a signal whenever new work may be due. Signals are
// coalesced; a reader only learns that something happened.
type WakeSource interface {
	Wake() <-chan struct{}
	Close() error
}

type wakeSignal struct {
	ID     string    `json:"id"`
	SendAt time.Time `json:"sendAt"`
}

func encodeWake(entry model.QueueEntry) ([]byte, error) {
	return json.Marshal(wakeSignal{ID: entry.ID, SendAt: entry.SendAt})
}

func signal(ch chan struct{}) {
	select {
	case ch <- struct{}{}:
	default:
	}
}

// LocalWake connects a queue and a worker living in the same process.
type LocalWake struct {
	ch chan struct{}
}

func NewLocalWake() *LocalWake {
	return &LocalWake{ch: make(chan struct{}, 1)}
}

func (l *LocalWake) Notify(ctx context.Context, entry model.QueueEntry) error {
	signal(l.ch)
	return nil
}

func (l *LocalWake) Wake() <-chan struct{} { return l.ch }
func (l *LocalWake) Close() error          { return nil }

// --- AMQP ---

// AMQPNotifier publishes a wake signal to a fanout exchange.
type AMQPNotifier struct {
	conn     *amqp.Connection
	ch       *amqp.Channel
	exchange string
}

func dialAMQP(url, exchange string) (*amqp.Connection, *amqp.Channel, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, nil, fmt.Errorf("connect to RabbitMQ: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, nil, fmt.Errorf("open channel: %w", err)
	}
	err = ch.ExchangeDeclare(
		exchange, // name
		"fanout", // kind
		true,     // durable
		false,    // auto-delete
		false,    // internal
		false,    // no-wait
		nil,      // arguments
	)
	if err != nil {
		ch.Close()
		conn.Close()
		return nil, nil, fmt.Errorf("declare exchange %s: %w", exchange, err)
	}
	return conn, ch, nil
}

func NewAMQPNotifier(url, exchange string) (*AMQPNotifier, error) {
	conn, ch, err := dialAMQP(url, exchange)
	if err != nil {
		return nil, err
	}
	return &AMQPNotifier{conn: conn, ch: ch, exchange: exchange}, nil
}

func (n *AMQPNotifier) Notify(ctx context.Context, entry model.QueueEntry) error {
	body, err := encodeWake(entry)
	if err != nil {
		return err
	}
	return n.ch.Publish(n.exchange, "", false, false, amqp.Publishing{
		ContentType: "application/json",
		Timestamp:   time.Now(),
		Body:        body,
	})
}

func (n *AMQPNotifier) Close() error {
	n.ch.Close()
	return n.conn.Close()
}

// AMQPWakeSource binds a private queue to the wake exchange.
type AMQPWakeSource struct {
	conn *amqp.Connection
	ch   *amqp.Channel
	out  chan struct{}
}

func NewAMQPWakeSource(url, exchange string) (*AMQPWakeSource, error) {
	conn, ch, err := dialAMQP(url, exchange)
	if err != nil {
		return nil, err
	}
	q, err := ch.QueueDeclare(
		"",    // server-named
		false, // durable
		true,  // delete when unused
		true,  // exclusive
		false, // no-wait
		nil,
	)
	if err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("declare wake queue: %w", err)
	}
	if err := ch.QueueBind(q.Name, "", exchange, false, nil); err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("bind wake queue: %w", err)
	}
	deliveries, err := ch.Consume(q.Name, "", true, true, false, false, nil)
	if err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("consume wake queue: %w", err)
	}

	s := &AMQPWakeSource{conn: conn, ch: ch, out: make(chan struct{}, 1)}
	go func() {
		for range deliveries {
			signal(s.out)
		}
		log.Debug().Msg("amqp wake consumer stopped")
	}()
	return s, nil
}

func (s *AMQPWakeSource) Wake() <-chan struct{} { return s.out }

func (s *AMQPWakeSource) Close() error {
	s.ch.Close()
	return s.conn.Close()
}

// --- NATS ---

func connectNATS(url string) (*nats.Conn, error) {
	opts := []nats.Option{
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2 * time.Second),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			log.Warn().Err(err).Msg("NATS disconnected")
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info().Str("url", nc.ConnectedUrl()).Msg("NATS reconnected")
		}),
	}
	nc, err := nats.Connect(url, opts...)
	if err != nil {
		return nil, fmt.Errorf("connect to NATS: %w", err)
	}
	return nc, nil
}

// NATSNotifier publishes a wake signal on a subject.
type NATSNotifier struct {
	nc      *nats.Conn
	subject string
}

func NewNATSNotifier(url, subject string) (*NATSNotifier, error) {
	nc, err := connectNATS(url)
	if err != nil {
		return nil, err
	}
	return &NATSNotifier{nc: nc, subject: subject}, nil
}

func (n *NATSNotifier) Notify(ctx context.Context, entry model.QueueEntry) error {
	body, err := encodeWake(entry)
	if err != nil {
		return err
	}
	return n.nc.Publish(n.subject, body)
}

func (n *NATSNotifier) Close() error {
	n.nc.Close()
	return nil
}

type NATSWakeSource struct {
	nc  *nats.Conn
	sub *nats.Subscription
	out chan struct{}
}

func NewNATSWakeSource(url, subject string) (*NATSWakeSource, error) {
	nc, err := connectNATS(url)
	if err != nil {
		return nil, err
	}
	s := &NATSWakeSource{nc: nc, out: make(chan struct{}, 1)}
	s.sub, err = nc.Subscribe(subject, func(*nats.Msg) { signal(s.out) })
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("subscribe %s: %w", subject, err)
	}
	return s, nil
}

func (s *NATSWakeSource) Wake() <-chan struct{} { return s.out }

func (s *NATSWakeSource) Close() error {
	if err := s.sub.Unsubscribe(); err != nil {
		log.Warn().Err(err).Msg("NATS unsubscribe failed")
	}
	s.nc.Close()
	return nil
}
