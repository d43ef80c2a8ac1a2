package gateway

import (
	"context"
	"fmt"
	"net/http"

	"github.com/rs/zerolog/log"
)

// Service is the auction gateway: it owns the WebSocket connection pool,
// the NATS event consumer feeding it, and the inbound command dispatcher.
type Service struct {
	connectionManager *ConnectionManager
	wsHandler         *WebSocketHandler
	eventConsumer     *EventConsumer
}

// Config holds configuration for the gateway service.
type Config struct {
	ConnectionConfig ConnectionConfig
	ConsumerConfig   EventConsumerConfig
}

// DefaultConfig returns default configuration for the gateway.
func DefaultConfig() Config {
	return Config{
		ConnectionConfig: DefaultConnectionConfig(),
		ConsumerConfig:   DefaultEventConsumerConfig(),
	}
}

// NewService creates the gateway service.
func NewService(config Config, commands CommandHandler, verifier TokenVerifier) (*Service, error) {
	connectionManager := NewConnectionManager(config.ConnectionConfig, commands)
	wsHandler := NewWebSocketHandler(connectionManager, verifier)

	eventConsumer, err := NewEventConsumer(connectionManager, config.ConsumerConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create event consumer: %w", err)
	}

	return &Service{
		connectionManager: connectionManager,
		wsHandler:         wsHandler,
		eventConsumer:     eventConsumer,
	}, nil
}

// Start runs the gateway until the context is cancelled.
func (s *Service) Start(ctx context.Context) error {
	log.Info().Msg("starting auction gateway")

	go s.connectionManager.Start(ctx)

	go func() {
		if err := s.eventConsumer.Start(ctx); err != nil {
			log.Error().Err(err).Msg("event consumer failed")
		}
	}()

	<-ctx.Done()

	log.Info().Msg("auction gateway shutting down")
	return s.Stop()
}

// Stop gracefully shuts down the gateway.
func (s *Service) Stop() error {
	if err := s.eventConsumer.Stop(); err != nil {
		log.Error().Err(err).Msg("failed to stop event consumer")
	}
	log.Info().Msg("auction gateway stopped")
	return nil
}

// RegisterRoutes registers the WebSocket HTTP routes.
func (s *Service) RegisterRoutes(mux *http.ServeMux) {
	s.wsHandler.RegisterRoutes(mux)
}

// ConnectionCount reports the number of active WebSocket clients.
func (s *Service) ConnectionCount() int {
	return s.connectionManager.ConnectionCount()
}
