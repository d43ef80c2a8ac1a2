package models

import (
	"time"

	"github.com/google/uuid"
)

// Team represents a competing party in the auction event.
// Balance is mutated only by the settlement engine.
type Team struct {
	ID             uuid.UUID `json:"id"`
	Name           string    `json:"name"`
	Color          string    `json:"color"`
	AccessToken    string    `json:"-"`
	Balance        float64   `json:"balance"`
	InitialBalance float64   `json:"initial_balance"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// TeamSummary is the public view of a team embedded in broadcasts.
type TeamSummary struct {
	ID    uuid.UUID `json:"id"`
	Name  string    `json:"name"`
	Color string    `json:"color"`
}

// Summary returns the broadcast-safe view of the team.
func (t *Team) Summary() TeamSummary {
	return TeamSummary{ID: t.ID, Name: t.Name, Color: t.Color}
}
