package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog/log"

	"github.com/gavelhouse/gavel/internal/auction/events"
)

// EventConsumerConfig holds configuration for the NATS event consumer.
type EventConsumerConfig struct {
	URL           string
	SubjectFilter string // e.g., "auction.events.>"
	BufferSize    int
	MaxReconnects int
	ReconnectWait time.Duration
}

// DefaultEventConsumerConfig returns default consumer configuration.
func DefaultEventConsumerConfig() EventConsumerConfig {
	return EventConsumerConfig{
		URL:           nats.DefaultURL,
		SubjectFilter: "auction.events.>",
		BufferSize:    256,
		MaxReconnects: -1, // Infinite
		ReconnectWait: 2 * time.Second,
	}
}

// EventConsumer subscribes to auction events on NATS and fans them out
// to connected WebSocket clients. Auction events carry full state
// snapshots, so plain core NATS is enough: a client that misses a
// message is corrected by the next one.
type EventConsumer struct {
	connectionManager *ConnectionManager
	nc                *nats.Conn
	sub               *nats.Subscription
	config            EventConsumerConfig
	messageCh         chan *nats.Msg
}

// NewEventConsumer connects to NATS and prepares the subscription.
func NewEventConsumer(cm *ConnectionManager, config EventConsumerConfig) (*EventConsumer, error) {
	opts := []nats.Option{
		nats.MaxReconnects(config.MaxReconnects),
		nats.ReconnectWait(config.ReconnectWait),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			log.Error().Err(err).Msg("NATS disconnected")
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info().Str("url", nc.ConnectedUrl()).Msg("NATS reconnected")
		}),
		nats.ErrorHandler(func(nc *nats.Conn, sub *nats.Subscription, err error) {
			log.Error().Err(err).Msg("NATS error")
		}),
	}

	nc, err := nats.Connect(config.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("connect to NATS: %w", err)
	}

	messageCh := make(chan *nats.Msg, config.BufferSize)
	sub, err := nc.ChanSubscribe(config.SubjectFilter, messageCh)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("subscribe to %s: %w", config.SubjectFilter, err)
	}

	return &EventConsumer{
		connectionManager: cm,
		nc:                nc,
		sub:               sub,
		config:            config,
		messageCh:         messageCh,
	}, nil
}

// Start processes events until the context is cancelled.
func (ec *EventConsumer) Start(ctx context.Context) error {
	log.Info().
		Str("subject", ec.config.SubjectFilter).
		Msg("starting NATS event consumer")

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("event consumer shutting down")
			return nil
		case msg, ok := <-ec.messageCh:
			if !ok {
				return nil
			}
			if err := ec.processMessage(msg); err != nil {
				log.Error().
					Err(err).
					Str("subject", msg.Subject).
					Msg("failed to process message")
			}
		}
	}
}

// processMessage decodes one event and broadcasts it.
func (ec *EventConsumer) processMessage(msg *nats.Msg) error {
	var event events.Event
	if err := json.Unmarshal(msg.Data, &event); err != nil {
		return fmt.Errorf("unmarshal event envelope: %w", err)
	}

	log.Debug().
		Str("event_id", event.ID).
		Str("event_type", string(event.Type)).
		Str("subject", msg.Subject).
		Msg("processing auction event")

	ec.connectionManager.Broadcast(event)
	return nil
}

// Stop gracefully shuts down the event consumer.
func (ec *EventConsumer) Stop() error {
	log.Info().Msg("stopping event consumer")

	if ec.sub != nil {
		if err := ec.sub.Unsubscribe(); err != nil {
			log.Error().Err(err).Msg("failed to unsubscribe")
		}
	}
	if ec.nc != nil {
		ec.nc.Close()
	}

	return nil
}
