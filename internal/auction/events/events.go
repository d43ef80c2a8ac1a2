// Package events defines the broadcast envelope and payloads shared by
// the orchestrator (producer) and the gateway (consumer).
package events

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/gavelhouse/gavel/internal/models"
)

// Type identifies a broadcast event on the wire.
type Type string

const (
	TypeRoundStarted          Type = "round:started"
	TypeRoundClosed           Type = "round:closed"
	TypeNewBid                Type = "bid:new"
	TypePriceUpdate           Type = "round:priceUpdate"
	TypePresentationStarted   Type = "round:presentationStarted"
	TypePresentationEnded     Type = "round:presentationEnded"
	TypeTimerUpdate           Type = "round:timerUpdate"
	TypeTimerCancelled        Type = "round:timerCancelled"
	TypeAutoCloseNotification Type = "round:autoCloseNotification"
	TypeTeamsUpdated          Type = "teams:updated"
	TypeTimeoutUpdated        Type = "config:timeoutUpdated"
)

// Event is the envelope published on the broadcast channel and relayed
// verbatim to WebSocket clients.
type Event struct {
	ID        string          `json:"id"`
	Type      Type            `json:"type"`
	RoundID   *uuid.UUID      `json:"round_id,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
	Data      json.RawMessage `json:"data"`
}

// New builds an event envelope around a JSON payload.
func New(eventType Type, roundID *uuid.UUID, at time.Time, payload any) (Event, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return Event{}, fmt.Errorf("failed to marshal %s payload: %w", eventType, err)
	}
	return Event{
		ID:        uuid.New().String(),
		Type:      eventType,
		RoundID:   roundID,
		Timestamp: at,
		Data:      data,
	}, nil
}

// RoundSnapshotPayload is the payload for round:started and round:closed.
type RoundSnapshotPayload struct {
	Round  models.Round        `json:"round"`
	Winner *models.TeamSummary `json:"winner,omitempty"`
}

// NewBidPayload is the payload for bid:new.
type NewBidPayload struct {
	Bid  models.Bid         `json:"bid"`
	Team models.TeamSummary `json:"team"`
}

// PriceUpdatePayload is the payload for round:priceUpdate. Stopped marks
// the terminal update of a clock round that has hit its floor.
type PriceUpdatePayload struct {
	RoundID      uuid.UUID `json:"round_id"`
	CurrentPrice float64   `json:"current_price"`
	Stopped      bool      `json:"stopped,omitempty"`
}

// PresentationStartedPayload is the payload for round:presentationStarted.
type PresentationStartedPayload struct {
	RoundID            uuid.UUID `json:"round_id"`
	PresentationEndsAt time.Time `json:"presentation_ends_at"`
}

// PresentationEndedPayload is the payload for round:presentationEnded.
type PresentationEndedPayload struct {
	RoundID uuid.UUID `json:"round_id"`
}

// TimerUpdatePayload is the payload for round:timerUpdate.
type TimerUpdatePayload struct {
	RoundID   uuid.UUID `json:"round_id"`
	ExpiresAt time.Time `json:"expires_at"`
}

// TimerCancelledPayload is the payload for round:timerCancelled.
type TimerCancelledPayload struct {
	RoundID uuid.UUID `json:"round_id"`
}

// AutoClosePayload is the payload for round:autoCloseNotification.
type AutoClosePayload struct {
	RoundID uuid.UUID `json:"round_id"`
	Reason  string    `json:"reason"`
	Message string    `json:"message"`
}

// TeamsUpdatedPayload is the payload for teams:updated.
type TeamsUpdatedPayload struct {
	Teams []models.Team `json:"teams"`
}

// TimeoutUpdatedPayload is the payload for config:timeoutUpdated.
type TimeoutUpdatedPayload struct {
	Minutes float64 `json:"minutes"`
}
