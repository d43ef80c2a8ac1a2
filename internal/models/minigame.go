package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// MinigameUsage records a team's one allowed attempt at a round's bonus
// minigame. At most one row exists per (round, team) pair. The result
// payload is stored opaquely; the gate does not interpret it.
type MinigameUsage struct {
	ID      uuid.UUID       `json:"id"`
	RoundID uuid.UUID       `json:"round_id"`
	TeamID  uuid.UUID       `json:"team_id"`
	Kind    MinigameKind    `json:"kind"`
	Result  json.RawMessage `json:"result,omitempty"`
	UsedAt  time.Time       `json:"used_at"`
}
