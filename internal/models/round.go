package models

import (
	"time"

	"github.com/google/uuid"
)

// RoundKind defines how a round is sold.
type RoundKind string

const (
	// RoundKindAscending is an English auction: price only rises.
	RoundKindAscending RoundKind = "ASCENDING"
	// RoundKindDescending is a clock auction: the displayed price falls
	// until a team stops it.
	RoundKindDescending RoundKind = "DESCENDING"
)

// RoundStatus defines the lifecycle state of a round.
type RoundStatus string

const (
	RoundStatusPending RoundStatus = "PENDING"
	RoundStatusActive  RoundStatus = "ACTIVE"
	RoundStatusClosed  RoundStatus = "CLOSED"
)

// MinigameKind identifies the bonus minigame attached to a round, if any.
type MinigameKind string

const (
	MinigameKindCoinflip MinigameKind = "COINFLIP"
	MinigameKindRoulette MinigameKind = "ROULETTE"
)

// Round represents one auctioned item.
type Round struct {
	ID          uuid.UUID   `json:"id"`
	Title       string      `json:"title"`
	Description string      `json:"description,omitempty"`
	ImageURL    string      `json:"image_url,omitempty"`
	Kind        RoundKind   `json:"kind"`
	Status      RoundStatus `json:"status"`

	// Ascending configuration.
	MinPrice     float64 `json:"min_price"`
	MinIncrement float64 `json:"min_increment"`

	// Descending configuration.
	StartingPrice       *float64 `json:"starting_price,omitempty"`
	PriceDecrement      *float64 `json:"price_decrement,omitempty"`
	DecrementIntervalMs *int     `json:"decrement_interval_ms,omitempty"`

	// Live state. CurrentPrice is nil until the round starts.
	CurrentPrice *float64 `json:"current_price,omitempty"`

	PresentationDurationMs int        `json:"presentation_duration_ms"`
	PresentationEndsAt     *time.Time `json:"presentation_ends_at,omitempty"`

	StartedAt *time.Time `json:"started_at,omitempty"`
	ClosedAt  *time.Time `json:"closed_at,omitempty"`

	WinnerID   *uuid.UUID `json:"winner_id,omitempty"`
	FinalPrice *float64   `json:"final_price,omitempty"`

	HasMinigame  bool          `json:"has_minigame"`
	MinigameKind *MinigameKind `json:"minigame_kind,omitempty"`

	DisplayOrder int       `json:"display_order"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// DecrementInterval returns the price-decay tick interval for a
// descending round, defaulting to one second when unset.
func (r *Round) DecrementInterval() time.Duration {
	if r.DecrementIntervalMs == nil || *r.DecrementIntervalMs <= 0 {
		return time.Second
	}
	return time.Duration(*r.DecrementIntervalMs) * time.Millisecond
}
