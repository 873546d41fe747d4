// Package bus provides the publish/subscribe channel between a panel and its
// controller. Display and request commands arrive on subscribed subjects;
// user responses are published. The production implementation uses NATS,
// with an in-memory option for tests and single-process setups.
package bus

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/odvcencio/panel/pkg/logging"
)

var (
	// ErrClosed is returned when operating on a closed bus or subscription.
	ErrClosed = errors.New("bus or subscription closed")

	errNoSubjects = errors.New("no subjects to subscribe to")
)

// Driver names a MessageBus implementation.
type Driver string

const (
	DriverMemory Driver = "memory"
	DriverNATS   Driver = "nats"
)

// MessageBus is the transport seen by the panel engine.
// Implementations must be safe for concurrent use.
type MessageBus interface {
	// Publish sends a message to all subscribers of the given subject.
	// Returns immediately; does not wait for message delivery.
	Publish(ctx context.Context, subject string, data []byte) error

	// Subscribe registers a handler for messages on the given subject.
	// Messages of one subscription are handed to the handler one at a time,
	// in delivery order.
	// Supports wildcards: "panel.*" matches "panel.view".
	Subscribe(ctx context.Context, subject string, handler MessageHandler) (Subscription, error)

	// SubscribeMany registers one handler for several subjects. Messages of
	// all the subjects are handed to the handler one at a time, in the order
	// the bus received them.
	SubscribeMany(ctx context.Context, subjects []string, handler MessageHandler) (Subscription, error)

	// Close shuts down the bus and all subscriptions.
	Close() error
}

// MessageHandler processes incoming messages.
type MessageHandler func(msg *Message)

// Message represents an incoming message from the bus.
type Message struct {
	Subject string
	Data    []byte
}

// Subscription represents an active subscription that can be cancelled.
type Subscription interface {
	// Unsubscribe stops receiving messages and cleans up resources.
	Unsubscribe() error

	// Subject returns the subject pattern this subscription is for.
	Subject() string
}

// Config holds configuration for creating a MessageBus.
type Config struct {
	Driver Driver

	// URL is the NATS server URL (e.g., "nats://localhost:4222").
	// Ignored for in-memory bus.
	URL string

	// Name is a client identifier for debugging/monitoring.
	Name string

	// Timeout is the connect timeout.
	Timeout time.Duration

	// Logger receives connection state changes. Optional.
	Logger *logging.Logger
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		Driver:  DriverMemory,
		URL:     "nats://localhost:4222",
		Name:    "panel",
		Timeout: 30 * time.Second,
	}
}

// New creates the MessageBus selected by cfg.Driver.
func New(cfg Config) (MessageBus, error) {
	switch Driver(strings.ToLower(string(cfg.Driver))) {
	case DriverMemory, "":
		return NewMemoryBus(), nil
	case DriverNATS:
		b, err := NewNATSBus(cfg)
		if err != nil {
			return nil, err
		}
		return b, nil
	default:
		return nil, fmt.Errorf("unknown bus driver %q", cfg.Driver)
	}
}
