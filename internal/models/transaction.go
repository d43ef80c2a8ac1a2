package models

import (
	"time"

	"github.com/google/uuid"
)

// TransactionKind classifies a ledger entry.
type TransactionKind string

const (
	// TransactionKindWin debits the winning team when a round settles.
	TransactionKindWin TransactionKind = "WIN"
)

// Transaction is an immutable ledger entry created by the settlement
// engine, one per settled round, inside the same atomic operation as
// the balance mutation it records.
type Transaction struct {
	ID            uuid.UUID       `json:"id"`
	TeamID        uuid.UUID       `json:"team_id"`
	RoundID       uuid.UUID       `json:"round_id"`
	Kind          TransactionKind `json:"kind"`
	Amount        float64         `json:"amount"`
	BalanceBefore float64         `json:"balance_before"`
	BalanceAfter  float64         `json:"balance_after"`
	Description   string          `json:"description,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
}
