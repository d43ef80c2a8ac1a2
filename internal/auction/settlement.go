package auction

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/gavelhouse/gavel/internal/models"
	"github.com/gavelhouse/gavel/internal/pgutil"
)

// BalanceStore is the transactional view a settlement runs against: a
// locked balance read, the balance write, and the ledger insert, all
// scoped to one atomic unit by the caller.
type BalanceStore interface {
	TeamBalanceForUpdate(ctx context.Context, teamID uuid.UUID) (float64, error)
	SetTeamBalance(ctx context.Context, teamID uuid.UUID, balance float64) error
	InsertTransaction(ctx context.Context, txn models.Transaction) (*models.Transaction, error)
}

// SettlementEngine debits a winning team and records the ledger entry.
// It is the sole writer of team balances and sole creator of transaction
// rows. Balances are not clamped at zero: a team that stops a clock round
// above its means goes into debt rather than producing a partial close.
type SettlementEngine struct {
	pool *pgxpool.Pool
}

// NewSettlementEngine creates a new settlement engine.
func NewSettlementEngine(pool *pgxpool.Pool) *SettlementEngine {
	return &SettlementEngine{pool: pool}
}

// Settle atomically debits amount from the team and writes a WIN
// transaction carrying the before/after balance snapshot. The team row is
// locked for the duration so concurrent settlements against the same team
// cannot lose updates. On any error nothing is applied.
func (e *SettlementEngine) Settle(ctx context.Context, teamID, roundID uuid.UUID, amount float64) (*models.Transaction, error) {
	var txn *models.Transaction

	err := pgutil.Run(ctx, e.pool, func(tx pgx.Tx) error {
		var err error
		txn, err = settle(ctx, &pgxBalanceStore{tx: tx}, teamID, roundID, amount)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("settlement failed: %w", err)
	}
	return txn, nil
}

// settle debits the team and records the ledger entry through the store.
// Exactly one transaction row is written per call, and its before/after
// snapshot matches the balance mutation.
func settle(ctx context.Context, store BalanceStore, teamID, roundID uuid.UUID, amount float64) (*models.Transaction, error) {
	balanceBefore, err := store.TeamBalanceForUpdate(ctx, teamID)
	if err != nil {
		return nil, err
	}

	balanceAfter := balanceBefore - amount
	if err := store.SetTeamBalance(ctx, teamID, balanceAfter); err != nil {
		return nil, err
	}

	return store.InsertTransaction(ctx, models.Transaction{
		ID:            uuid.New(),
		TeamID:        teamID,
		RoundID:       roundID,
		Kind:          models.TransactionKindWin,
		Amount:        amount,
		BalanceBefore: balanceBefore,
		BalanceAfter:  balanceAfter,
		Description:   "won the round",
	})
}

// pgxBalanceStore implements BalanceStore over one open pgx transaction.
type pgxBalanceStore struct {
	tx pgx.Tx
}

func (s *pgxBalanceStore) TeamBalanceForUpdate(ctx context.Context, teamID uuid.UUID) (float64, error) {
	var balance float64
	err := s.tx.QueryRow(ctx,
		`SELECT balance FROM teams WHERE id = $1 FOR UPDATE`, teamID,
	).Scan(&balance)
	if err != nil {
		return 0, fmt.Errorf("failed to lock team balance: %w", err)
	}
	return balance, nil
}

func (s *pgxBalanceStore) SetTeamBalance(ctx context.Context, teamID uuid.UUID, balance float64) error {
	if _, err := s.tx.Exec(ctx,
		`UPDATE teams SET balance = $2, updated_at = now() WHERE id = $1`,
		teamID, balance,
	); err != nil {
		return fmt.Errorf("failed to update balance: %w", err)
	}
	return nil
}

func (s *pgxBalanceStore) InsertTransaction(ctx context.Context, txn models.Transaction) (*models.Transaction, error) {
	row := s.tx.QueryRow(ctx, `
		INSERT INTO transactions (id, team_id, round_id, kind, amount, balance_before, balance_after, description)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id, team_id, round_id, kind, amount, balance_before, balance_after, description, created_at`,
		txn.ID, txn.TeamID, txn.RoundID, txn.Kind, txn.Amount,
		txn.BalanceBefore, txn.BalanceAfter, txn.Description,
	)
	var out models.Transaction
	if err := row.Scan(
		&out.ID, &out.TeamID, &out.RoundID, &out.Kind, &out.Amount,
		&out.BalanceBefore, &out.BalanceAfter, &out.Description,
		&out.CreatedAt,
	); err != nil {
		return nil, fmt.Errorf("failed to record transaction: %w", err)
	}
	return &out, nil
}

// ListTransactionsByTeam returns a team's ledger, newest first.
func (e *SettlementEngine) ListTransactionsByTeam(ctx context.Context, teamID uuid.UUID) ([]models.Transaction, error) {
	rows, err := e.pool.Query(ctx, `
		SELECT id, team_id, round_id, kind, amount, balance_before, balance_after, description, created_at
		FROM transactions WHERE team_id = $1
		ORDER BY created_at DESC`, teamID)
	if err != nil {
		return nil, fmt.Errorf("failed to list transactions: %w", err)
	}
	defer rows.Close()

	var txns []models.Transaction
	for rows.Next() {
		var txn models.Transaction
		if err := rows.Scan(
			&txn.ID, &txn.TeamID, &txn.RoundID, &txn.Kind, &txn.Amount,
			&txn.BalanceBefore, &txn.BalanceAfter, &txn.Description,
			&txn.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan transaction: %w", err)
		}
		txns = append(txns, txn)
	}
	return txns, rows.Err()
}
