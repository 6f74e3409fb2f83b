package queue

import (
	"fmt"

	"github.com/unclebandit/salon-messaging/internal/config"
)

// NotifierCloser is a Notifier holding a broker connection.
type NotifierCloser interface {
	Notifier
	Close() error
}

// OpenNotifier returns the enqueue side of WAKE_DRIVER, or nil for "none".
func OpenNotifier(cfg *config.Settings) (NotifierCloser, error) {
	switch cfg.WakeDriver {
	case "", "none":
		return nil, nil
	case "amqp":
		n, err := NewAMQPNotifier(cfg.AMQPURL, cfg.WakeSubject)
		if err != nil {
			return nil, err
		}
		return n, nil
	case "nats":
		n, err := NewNATSNotifier(cfg.NATSURL, cfg.WakeSubject)
		if err != nil {
			return nil, err
		}
		return n, nil
	default:
		return nil, fmt.Errorf("unknown wake driver %q", cfg.WakeDriver)
	}
}

// OpenWakeSource returns the worker side of WAKE_DRIVER, or nil for "none".
func OpenWakeSource(cfg *config.Settings) (WakeSource, error) {
	switch cfg.WakeDriver {
	case "", "none":
		return nil, nil
	case "amqp":
		s, err := NewAMQPWakeSource(cfg.AMQPURL, cfg.WakeSubject)
		if err != nil {
			return nil, err
		}
		return s, nil
	case "nats":
		s, err := NewNATSWakeSource(cfg.NATSURL, cfg.WakeSubject)
		if err != nil {
			return nil, err
		}
		return s, nil
	default:
		return nil, fmt.Errorf("unknown wake driver %q", cfg.WakeDriver)
	}
}
