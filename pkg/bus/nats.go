package bus

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"time"

	"github.com/nats-io/nats.go"

	apperrors "github.com/odvcencio/panel/pkg/errors"
	"github.com/odvcencio/panel/pkg/logging"
)

const (
	natsReconnectWait = time.Second
	natsGroupBuffer   = 256
)

// NATSBus carries panel subjects over core NATS. Delivery is at most once;
// a panel that is disconnected misses the commands sent meanwhile.
type NATSBus struct {
	conn   *nats.Conn
	logger *logging.Logger
	closed atomic.Bool
}

// NewNATSBus connects to cfg.URL and reconnects forever on loss.
func NewNATSBus(cfg Config) (*NATSBus, error) {
	defaults := DefaultConfig()
	if cfg.URL == "" {
		cfg.URL = defaults.URL
	}
	if cfg.Name == "" {
		cfg.Name = defaults.Name
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaults.Timeout
	}
	logger := cfg.Logger
	if logger == nil {
		logger = logging.Discard()
	}
	logger = logger.Component("bus")

	conn, err := nats.Connect(cfg.URL,
		nats.Name(cfg.Name),
		nats.Timeout(cfg.Timeout),
		nats.ReconnectWait(natsReconnectWait),
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Warn("nats disconnected", "error", err)
			}
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			logger.Info("nats reconnected", "url", c.ConnectedUrlRedacted())
		}),
	)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrCodeTransport, "nats connect").
			WithContext("url", cfg.URL).
			WithRetryable(true)
	}
	return &NATSBus{conn: conn, logger: logger}, nil
}

// NewNATSBusFromConn wraps a connection owned by the caller. Close still
// drains it.
func NewNATSBusFromConn(conn *nats.Conn) *NATSBus {
	return &NATSBus{conn: conn, logger: logging.Discard()}
}

func (b *NATSBus) Publish(ctx context.Context, subject string, data []byte) error {
	if b.closed.Load() {
		return ErrClosed
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := b.conn.Publish(subject, data); err != nil {
		return apperrors.Wrap(err, apperrors.ErrCodeTransport, "nats publish").
			WithContext("subject", subject).
			WithRetryable(true)
	}
	return nil
}

// Subscribe registers handler on subject. NATS runs the callbacks of one
// subscription sequentially, so delivery order is kept. The subscription
// ends with ctx.
func (b *NATSBus) Subscribe(ctx context.Context, subject string, handler MessageHandler) (Subscription, error) {
	if b.closed.Load() {
		return nil, ErrClosed
	}

	sub, err := b.conn.Subscribe(subject, func(msg *nats.Msg) {
		handler(&Message{Subject: msg.Subject, Data: msg.Data})
	})
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrCodeTransport, "nats subscribe").
			WithContext("subject", subject)
	}

	s := &natsSubscription{subs: []*nats.Subscription{sub}, done: make(chan struct{})}
	go func() {
		select {
		case <-ctx.Done():
			_ = s.Unsubscribe()
		case <-s.done:
		}
	}()
	return s, nil
}

// SubscribeMany routes every subject into one channel. The connection's
// read loop fills it in arrival order and a single goroutine drains it.
func (b *NATSBus) SubscribeMany(ctx context.Context, subjects []string, handler MessageHandler) (Subscription, error) {
	if b.closed.Load() {
		return nil, ErrClosed
	}
	if len(subjects) == 0 {
		return nil, errNoSubjects
	}

	ch := make(chan *nats.Msg, natsGroupBuffer)
	s := &natsSubscription{done: make(chan struct{})}
	for _, subject := range subjects {
		sub, err := b.conn.ChanSubscribe(subject, ch)
		if err != nil {
			_ = s.Unsubscribe()
			return nil, apperrors.Wrap(err, apperrors.ErrCodeTransport, "nats subscribe").
				WithContext("subject", subject)
		}
		s.subs = append(s.subs, sub)
	}

	go func() {
		for {
			select {
			case <-ctx.Done():
				_ = s.Unsubscribe()
				return
			case <-s.done:
				return
			case msg := <-ch:
				handler(&Message{Subject: msg.Subject, Data: msg.Data})
			}
		}
	}()
	return s, nil
}

// Close drains in-flight messages before closing the connection.
func (b *NATSBus) Close() error {
	if b.closed.Swap(true) {
		return ErrClosed
	}
	if err := b.conn.Drain(); err != nil {
		b.logger.Warn("nats drain failed", "error", err)
		b.conn.Close()
	}
	return nil
}

// Conn returns the underlying NATS connection.
func (b *NATSBus) Conn() *nats.Conn {
	return b.conn
}

type natsSubscription struct {
	subs []*nats.Subscription
	done chan struct{}
	once atomic.Bool
}

// Unsubscribe is idempotent; errors from a connection that is already
// closing are ignored.
func (s *natsSubscription) Unsubscribe() error {
	if s.once.Swap(true) {
		return nil
	}
	close(s.done)
	var first error
	for _, sub := range s.subs {
		err := sub.Unsubscribe()
		switch {
		case err == nil,
			errors.Is(err, nats.ErrConnectionClosed),
			errors.Is(err, nats.ErrConnectionDraining),
			errors.Is(err, nats.ErrBadSubscription):
		default:
			if first == nil {
				first = err
			}
		}
	}
	return first
}

func (s *natsSubscription) Subject() string {
	subjects := make([]string, 0, len(s.subs))
	for _, sub := range s.subs {
		subjects = append(subjects, sub.Subject)
	}
	return strings.Join(subjects, ",")
}
