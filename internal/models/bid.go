package models

import (
	"time"

	"github.com/google/uuid"
)

// Bid is an immutable record of a price offer. Seq is assigned by the
// store in insertion order and is the single source of truth for
// "last bid" within a round; ClientTimestamp is client-asserted and is
// used only to reconstruct the displayed price of a descending round.
type Bid struct {
	ID              uuid.UUID  `json:"id"`
	Seq             int64      `json:"seq"`
	RoundID         uuid.UUID  `json:"round_id"`
	TeamID          uuid.UUID  `json:"team_id"`
	Amount          float64    `json:"amount"`
	ClientTimestamp *time.Time `json:"client_timestamp,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
}
