package auction

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jonboulle/clockwork"

	"github.com/gavelhouse/gavel/internal/models"
)

// MinigameUsageStore defines what the gate needs from the entity store.
type MinigameUsageStore interface {
	GetUsage(ctx context.Context, roundID, teamID uuid.UUID) (*models.MinigameUsage, error)
	InsertUsage(ctx context.Context, usage models.MinigameUsage) (*models.MinigameUsage, error)
}

// RoundGetter is the slice of the round store the gate needs.
type RoundGetter interface {
	GetRound(ctx context.Context, id uuid.UUID) (*models.Round, error)
}

// MinigameGate enforces at most one minigame attempt per (round, team)
// pair. The minigame's outcome is stored opaquely, never interpreted.
type MinigameGate struct {
	rounds RoundGetter
	usage  MinigameUsageStore
	clock  clockwork.Clock
}

// NewMinigameGate creates a new minigame usage gate.
func NewMinigameGate(rounds RoundGetter, usage MinigameUsageStore, clock clockwork.Clock) *MinigameGate {
	return &MinigameGate{rounds: rounds, usage: usage, clock: clock}
}

// CheckUsage reports whether the team has already used the round's minigame.
func (g *MinigameGate) CheckUsage(ctx context.Context, roundID, teamID uuid.UUID) (bool, error) {
	if _, err := g.rounds.GetRound(ctx, roundID); err != nil {
		return false, err
	}
	usage, err := g.usage.GetUsage(ctx, roundID, teamID)
	if err != nil {
		return false, fmt.Errorf("failed to check minigame usage: %w", err)
	}
	return usage != nil, nil
}

// RegisterUsage records the team's one attempt. A second attempt for the
// same pair returns ErrMinigameAlreadyUsed and creates nothing, even under
// concurrent calls: the store's uniqueness constraint is authoritative.
func (g *MinigameGate) RegisterUsage(ctx context.Context, roundID, teamID uuid.UUID, kind models.MinigameKind, result json.RawMessage) (*models.MinigameUsage, error) {
	round, err := g.rounds.GetRound(ctx, roundID)
	if err != nil {
		return nil, err
	}
	if !round.HasMinigame {
		return nil, ErrMinigameUnavailable
	}

	usage, err := g.usage.InsertUsage(ctx, models.MinigameUsage{
		ID:      uuid.New(),
		RoundID: roundID,
		TeamID:  teamID,
		Kind:    kind,
		Result:  result,
		UsedAt:  g.clock.Now(),
	})
	if err != nil {
		return nil, err
	}
	return usage, nil
}

// MinigameUsageRepository implements MinigameUsageStore on Postgres.
type MinigameUsageRepository struct {
	pool *pgxpool.Pool
}

// NewMinigameUsageRepository creates a new minigame usage repository.
func NewMinigameUsageRepository(pool *pgxpool.Pool) *MinigameUsageRepository {
	return &MinigameUsageRepository{pool: pool}
}

func (r *MinigameUsageRepository) GetUsage(ctx context.Context, roundID, teamID uuid.UUID) (*models.MinigameUsage, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id, round_id, team_id, kind, result, used_at
		FROM minigame_usages WHERE round_id = $1 AND team_id = $2`,
		roundID, teamID)

	var usage models.MinigameUsage
	err := row.Scan(&usage.ID, &usage.RoundID, &usage.TeamID, &usage.Kind, &usage.Result, &usage.UsedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get minigame usage: %w", err)
	}
	return &usage, nil
}

func (r *MinigameUsageRepository) InsertUsage(ctx context.Context, usage models.MinigameUsage) (*models.MinigameUsage, error) {
	row := r.pool.QueryRow(ctx, `
		INSERT INTO minigame_usages (id, round_id, team_id, kind, result, used_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, round_id, team_id, kind, result, used_at`,
		usage.ID, usage.RoundID, usage.TeamID, usage.Kind, usage.Result, usage.UsedAt)

	var created models.MinigameUsage
	err := row.Scan(&created.ID, &created.RoundID, &created.TeamID, &created.Kind, &created.Result, &created.UsedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return nil, ErrMinigameAlreadyUsed
		}
		return nil, fmt.Errorf("failed to insert minigame usage: %w", err)
	}
	return &created, nil
}
