package auction

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/gavelhouse/gavel/internal/models"
	"github.com/gavelhouse/gavel/internal/pgutil"
)

const roundColumns = `id, title, description, image_url, kind, status,
	min_price, min_increment, starting_price, price_decrement,
	decrement_interval_ms, current_price, presentation_duration_ms,
	presentation_ends_at, started_at, closed_at, winner_id, final_price,
	has_minigame, minigame_kind, display_order, created_at, updated_at`

// RoundRepository implements round and bid data access on Postgres.
type RoundRepository struct {
	pool *pgxpool.Pool
}

// NewRoundRepository creates a new round repository.
func NewRoundRepository(pool *pgxpool.Pool) *RoundRepository {
	return &RoundRepository{pool: pool}
}

// CreateRoundRequest carries the fields an admin sets when creating a round.
type CreateRoundRequest struct {
	Title                  string               `json:"title"`
	Description            string               `json:"description"`
	ImageURL               string               `json:"image_url"`
	Kind                   models.RoundKind     `json:"kind"`
	MinPrice               float64              `json:"min_price"`
	MinIncrement           float64              `json:"min_increment"`
	StartingPrice          *float64             `json:"starting_price"`
	PriceDecrement         *float64             `json:"price_decrement"`
	DecrementIntervalMs    *int                 `json:"decrement_interval_ms"`
	PresentationDurationMs int                  `json:"presentation_duration_ms"`
	HasMinigame            bool                 `json:"has_minigame"`
	MinigameKind           *models.MinigameKind `json:"minigame_kind"`
	DisplayOrder           int                  `json:"display_order"`
}

func (r *RoundRepository) CreateRound(ctx context.Context, req CreateRoundRequest) (*models.Round, error) {
	row := r.pool.QueryRow(ctx, `
		INSERT INTO rounds (
			id, title, description, image_url, kind, status,
			min_price, min_increment, starting_price, price_decrement,
			decrement_interval_ms, presentation_duration_ms,
			has_minigame, minigame_kind, display_order
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
		RETURNING `+roundColumns,
		uuid.New(), req.Title, req.Description, req.ImageURL, req.Kind,
		models.RoundStatusPending, req.MinPrice, req.MinIncrement,
		req.StartingPrice, req.PriceDecrement, req.DecrementIntervalMs,
		req.PresentationDurationMs, req.HasMinigame, req.MinigameKind,
		req.DisplayOrder,
	)
	round, err := scanRound(row)
	if err != nil {
		return nil, fmt.Errorf("failed to create round: %w", err)
	}
	return round, nil
}

func (r *RoundRepository) GetRound(ctx context.Context, id uuid.UUID) (*models.Round, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+roundColumns+` FROM rounds WHERE id = $1`, id)
	round, err := scanRound(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrRoundNotFound
		}
		return nil, fmt.Errorf("failed to get round: %w", err)
	}
	return round, nil
}

func (r *RoundRepository) ListRounds(ctx context.Context) ([]models.Round, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+roundColumns+`
		FROM rounds
		ORDER BY display_order ASC, created_at ASC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list rounds: %w", err)
	}
	defer rows.Close()

	var rounds []models.Round
	for rows.Next() {
		round, err := scanRound(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan round: %w", err)
		}
		rounds = append(rounds, *round)
	}
	return rounds, rows.Err()
}

// UpdateRoundRequest carries admin-editable fields; only pending rounds
// may be updated, which the caller enforces.
type UpdateRoundRequest struct {
	Title                  *string  `json:"title"`
	Description            *string  `json:"description"`
	ImageURL               *string  `json:"image_url"`
	MinPrice               *float64 `json:"min_price"`
	MinIncrement           *float64 `json:"min_increment"`
	StartingPrice          *float64 `json:"starting_price"`
	PriceDecrement         *float64 `json:"price_decrement"`
	DecrementIntervalMs    *int     `json:"decrement_interval_ms"`
	PresentationDurationMs *int     `json:"presentation_duration_ms"`
	DisplayOrder           *int     `json:"display_order"`
}

func (r *RoundRepository) UpdateRound(ctx context.Context, id uuid.UUID, req UpdateRoundRequest) (*models.Round, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE rounds SET
			title = COALESCE($2, title),
			description = COALESCE($3, description),
			image_url = COALESCE($4, image_url),
			min_price = COALESCE($5, min_price),
			min_increment = COALESCE($6, min_increment),
			starting_price = COALESCE($7, starting_price),
			price_decrement = COALESCE($8, price_decrement),
			decrement_interval_ms = COALESCE($9, decrement_interval_ms),
			presentation_duration_ms = COALESCE($10, presentation_duration_ms),
			display_order = COALESCE($11, display_order),
			updated_at = now()
		WHERE id = $1
		RETURNING `+roundColumns,
		id, req.Title, req.Description, req.ImageURL, req.MinPrice,
		req.MinIncrement, req.StartingPrice, req.PriceDecrement,
		req.DecrementIntervalMs, req.PresentationDurationMs, req.DisplayOrder,
	)
	round, err := scanRound(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrRoundNotFound
		}
		return nil, fmt.Errorf("failed to update round: %w", err)
	}
	return round, nil
}

func (r *RoundRepository) DeleteRound(ctx context.Context, id uuid.UUID) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM rounds WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete round: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrRoundNotFound
	}
	return nil
}

// ActivateRound transitions a pending round to active. The status check
// is part of the UPDATE so a concurrent start loses cleanly.
func (r *RoundRepository) ActivateRound(ctx context.Context, id uuid.UUID, startedAt time.Time, currentPrice float64, presentationEndsAt *time.Time) (*models.Round, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE rounds SET
			status = $2, started_at = $3, current_price = $4,
			presentation_ends_at = $5, updated_at = now()
		WHERE id = $1 AND status = $6
		RETURNING `+roundColumns,
		id, models.RoundStatusActive, startedAt, currentPrice,
		presentationEndsAt, models.RoundStatusPending,
	)
	round, err := scanRound(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, r.statusConflict(ctx, id, ErrRoundNotPending)
		}
		return nil, fmt.Errorf("failed to activate round: %w", err)
	}
	return round, nil
}

// CloseRound transitions an active round to closed. winnerID and
// finalPrice are both nil when the round closes without bids.
func (r *RoundRepository) CloseRound(ctx context.Context, id uuid.UUID, closedAt time.Time, winnerID *uuid.UUID, finalPrice *float64) (*models.Round, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE rounds SET
			status = $2, closed_at = $3, winner_id = $4, final_price = $5,
			updated_at = now()
		WHERE id = $1 AND status = $6
		RETURNING `+roundColumns,
		id, models.RoundStatusClosed, closedAt, winnerID, finalPrice,
		models.RoundStatusActive,
	)
	round, err := scanRound(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, r.statusConflict(ctx, id, ErrRoundNotActive)
		}
		return nil, fmt.Errorf("failed to close round: %w", err)
	}
	return round, nil
}

func (r *RoundRepository) UpdateCurrentPrice(ctx context.Context, id uuid.UUID, price float64) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE rounds SET current_price = $2, updated_at = now()
		WHERE id = $1 AND status = $3`,
		id, price, models.RoundStatusActive)
	if err != nil {
		return fmt.Errorf("failed to update current price: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrRoundNotActive
	}
	return nil
}

// statusConflict distinguishes "row missing" from "row in another state"
// after a compare-and-swap update matched nothing.
func (r *RoundRepository) statusConflict(ctx context.Context, id uuid.UUID, conflict error) error {
	if _, err := r.GetRound(ctx, id); err != nil {
		return err
	}
	return conflict
}

// CreateBidRequest carries the fields of a new bid. The store assigns seq.
type CreateBidRequest struct {
	RoundID         uuid.UUID
	TeamID          uuid.UUID
	Amount          float64
	ClientTimestamp *time.Time
}

// CreateBid inserts one immutable bid row and fixes the round's current
// price to the bid amount, both in a single transaction. A failure on
// either side leaves no bid behind.
func (r *RoundRepository) CreateBid(ctx context.Context, req CreateBidRequest) (*models.Bid, error) {
	var bid *models.Bid
	err := pgutil.Run(ctx, r.pool, func(tx pgx.Tx) error {
		row := tx.QueryRow(ctx, `
			INSERT INTO bids (id, round_id, team_id, amount, client_timestamp)
			VALUES ($1, $2, $3, $4, $5)
			RETURNING id, seq, round_id, team_id, amount, client_timestamp, created_at`,
			uuid.New(), req.RoundID, req.TeamID, req.Amount, req.ClientTimestamp,
		)
		var err error
		bid, err = scanBid(row)
		if err != nil {
			return fmt.Errorf("failed to create bid: %w", err)
		}

		tag, err := tx.Exec(ctx, `
			UPDATE rounds SET current_price = $2, updated_at = now()
			WHERE id = $1 AND status = $3`,
			req.RoundID, req.Amount, models.RoundStatusActive)
		if err != nil {
			return fmt.Errorf("failed to update current price: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return ErrRoundNotActive
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return bid, nil
}

func (r *RoundRepository) ListBidsByRound(ctx context.Context, roundID uuid.UUID) ([]models.Bid, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, seq, round_id, team_id, amount, client_timestamp, created_at
		FROM bids WHERE round_id = $1
		ORDER BY seq DESC`, roundID)
	if err != nil {
		return nil, fmt.Errorf("failed to list bids: %w", err)
	}
	defer rows.Close()

	var bids []models.Bid
	for rows.Next() {
		bid, err := scanBid(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan bid: %w", err)
		}
		bids = append(bids, *bid)
	}
	return bids, rows.Err()
}

// LatestBid returns the bid with the greatest server-assigned seq for the
// round, or nil when the round has no bids.
func (r *RoundRepository) LatestBid(ctx context.Context, roundID uuid.UUID) (*models.Bid, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id, seq, round_id, team_id, amount, client_timestamp, created_at
		FROM bids WHERE round_id = $1
		ORDER BY seq DESC LIMIT 1`, roundID)
	bid, err := scanBid(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get latest bid: %w", err)
	}
	return bid, nil
}

func scanRound(row pgx.Row) (*models.Round, error) {
	var round models.Round
	err := row.Scan(
		&round.ID, &round.Title, &round.Description, &round.ImageURL,
		&round.Kind, &round.Status, &round.MinPrice, &round.MinIncrement,
		&round.StartingPrice, &round.PriceDecrement, &round.DecrementIntervalMs,
		&round.CurrentPrice, &round.PresentationDurationMs,
		&round.PresentationEndsAt, &round.StartedAt, &round.ClosedAt,
		&round.WinnerID, &round.FinalPrice, &round.HasMinigame,
		&round.MinigameKind, &round.DisplayOrder, &round.CreatedAt,
		&round.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &round, nil
}

func scanBid(row pgx.Row) (*models.Bid, error) {
	var bid models.Bid
	err := row.Scan(
		&bid.ID, &bid.Seq, &bid.RoundID, &bid.TeamID, &bid.Amount,
		&bid.ClientTimestamp, &bid.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &bid, nil
}
