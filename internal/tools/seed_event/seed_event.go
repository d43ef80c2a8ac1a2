package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/gavelhouse/gavel/internal/dbconfig"
)

// Team mirrors the seed JSON structure.
type Team struct {
	ID          uuid.UUID `json:"id"`
	Name        string    `json:"name"`
	Color       string    `json:"color"`
	AccessToken string    `json:"access_token"`
	Balance     float64   `json:"balance"`
}

// Round mirrors the seed JSON structure.
type Round struct {
	ID                     uuid.UUID `json:"id"`
	Title                  string    `json:"title"`
	Description            string    `json:"description"`
	ImageURL               string    `json:"image_url"`
	Kind                   string    `json:"kind"`
	MinPrice               float64   `json:"min_price"`
	MinIncrement           float64   `json:"min_increment"`
	StartingPrice          *float64  `json:"starting_price"`
	PriceDecrement         *float64  `json:"price_decrement"`
	DecrementIntervalMs    *int      `json:"decrement_interval_ms"`
	PresentationDurationMs int       `json:"presentation_duration_ms"`
	HasMinigame            bool      `json:"has_minigame"`
	MinigameKind           *string   `json:"minigame_kind"`
	DisplayOrder           int       `json:"display_order"`
}

type seedFile struct {
	Teams  []Team  `json:"teams"`
	Rounds []Round `json:"rounds"`
}

func main() {
	path := "internal/assets/event.json"
	if len(os.Args) > 1 {
		path = os.Args[1]
	}

	// 1) Load the JSON snapshot
	data, err := os.ReadFile(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "read JSON: %v\n", err)
		os.Exit(1)
	}
	var seed seedFile
	if err := json.Unmarshal(data, &seed); err != nil {
		fmt.Fprintf(os.Stderr, "unmarshal JSON: %v\n", err)
		os.Exit(1)
	}

	// 2) Connect using shared dbconfig
	cfg := dbconfig.NewConfigFromEnv()
	pool, err := pgxpool.New(context.Background(), cfg.DSN())
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to connect: %v\n", err)
		os.Exit(1)
	}
	defer pool.Close()

	// 3) Upsert and count
	var inserted, skipped, errs int

	for _, t := range seed.Teams {
		cmdTag, err := pool.Exec(context.Background(), `
            INSERT INTO teams (id, name, color, access_token, balance, initial_balance)
            VALUES ($1, $2, $3, $4, $5, $5)
            ON CONFLICT (id) DO NOTHING
        `, t.ID, t.Name, t.Color, t.AccessToken, t.Balance)
		if err != nil {
			fmt.Fprintf(os.Stderr, "error inserting team %s: %v\n", t.ID, err)
			errs++
			continue
		}
		if cmdTag.RowsAffected() == 1 {
			inserted++
		} else {
			skipped++
		}
	}

	for _, r := range seed.Rounds {
		cmdTag, err := pool.Exec(context.Background(), `
            INSERT INTO rounds (
              id, title, description, image_url, kind, status,
              min_price, min_increment, starting_price, price_decrement,
              decrement_interval_ms, presentation_duration_ms,
              has_minigame, minigame_kind, display_order
            ) VALUES (
              $1, $2, $3, $4, $5, 'PENDING',
              $6, $7, $8, $9, $10, $11, $12, $13, $14
            )
            ON CONFLICT (id) DO NOTHING
        `,
			r.ID, r.Title, r.Description, r.ImageURL, r.Kind,
			r.MinPrice, r.MinIncrement, r.StartingPrice, r.PriceDecrement,
			r.DecrementIntervalMs, r.PresentationDurationMs,
			r.HasMinigame, r.MinigameKind, r.DisplayOrder,
		)
		if err != nil {
			fmt.Fprintf(os.Stderr, "error inserting round %s: %v\n", r.ID, err)
			errs++
			continue
		}
		if cmdTag.RowsAffected() == 1 {
			inserted++
		} else {
			skipped++
		}
	}

	// 4) Print summary
	fmt.Printf(
		"Seed complete: %d teams, %d rounds, %d inserted, %d skipped, %d errors\n",
		len(seed.Teams), len(seed.Rounds), inserted, skipped, errs,
	)
}
