package pricing

import (
	"testing"
	"time"

	"github.com/gavelhouse/gavel/internal/models"
)

func descendingRound(startedAt time.Time, startingPrice, decrement, minPrice float64, intervalMs int) *models.Round {
	return &models.Round{
		Kind:                models.RoundKindDescending,
		Status:              models.RoundStatusActive,
		MinPrice:            minPrice,
		StartingPrice:       &startingPrice,
		PriceDecrement:      &decrement,
		DecrementIntervalMs: &intervalMs,
		StartedAt:           &startedAt,
	}
}

func TestAscendingFloor(t *testing.T) {
	round := &models.Round{MinPrice: 100, MinIncrement: 50}
	if got := AscendingFloor(round); got != 100 {
		t.Fatalf("expected floor 100 before any bid, got %v", got)
	}

	current := 150.0
	round.CurrentPrice = &current
	if got := AscendingFloor(round); got != 150 {
		t.Fatalf("expected floor 150 after bid, got %v", got)
	}
}

func TestMinimumNextBid(t *testing.T) {
	round := &models.Round{MinPrice: 100, MinIncrement: 50}
	if got := MinimumNextBid(round); got != 150 {
		t.Fatalf("expected minimum next bid 150, got %v", got)
	}
}

func TestPriceAtTickSchedule(t *testing.T) {
	t0 := time.Date(2026, 3, 14, 20, 0, 0, 0, time.UTC)
	round := descendingRound(t0, 1000, 50, 100, 1000)

	tests := []struct {
		name string
		at   time.Time
		want float64
	}{
		{"at start", t0, 1000},
		{"before first tick", t0.Add(999 * time.Millisecond), 1000},
		{"first tick", t0.Add(time.Second), 950},
		{"partial interval floors", t0.Add(2500 * time.Millisecond), 900},
		{"clamped at min price", t0.Add(time.Hour), 100},
		{"before start", t0.Add(-time.Minute), 1000},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := PriceAt(round, tt.at); got != tt.want {
				t.Fatalf("PriceAt(%s): expected %v, got %v", tt.at, tt.want, got)
			}
		})
	}
}

func TestPriceAtNonIncreasing(t *testing.T) {
	t0 := time.Date(2026, 3, 14, 20, 0, 0, 0, time.UTC)
	round := descendingRound(t0, 500, 7, 150, 300)

	prev := PriceAt(round, t0)
	for step := time.Duration(0); step < 30*time.Second; step += 100 * time.Millisecond {
		price := PriceAt(round, t0.Add(step))
		if price > prev {
			t.Fatalf("price increased from %v to %v at offset %s", prev, price, step)
		}
		if price < round.MinPrice {
			t.Fatalf("price %v fell below min price %v at offset %s", price, round.MinPrice, step)
		}
		prev = price
	}
}

func TestPriceAtDecayStartsAfterPresentation(t *testing.T) {
	t0 := time.Date(2026, 3, 14, 20, 0, 0, 0, time.UTC)
	round := descendingRound(t0, 1000, 50, 100, 1000)
	presentationEnd := t0.Add(30 * time.Second)
	round.PresentationEndsAt = &presentationEnd

	if got := PriceAt(round, t0.Add(10*time.Second)); got != 1000 {
		t.Fatalf("expected full price during presentation, got %v", got)
	}
	if got := PriceAt(round, presentationEnd.Add(2*time.Second)); got != 900 {
		t.Fatalf("expected decay measured from presentation end, got %v", got)
	}
}

func TestPriceAtWithoutStartingPrice(t *testing.T) {
	round := &models.Round{MinPrice: 100}
	if got := PriceAt(round, time.Now()); got != 100 {
		t.Fatalf("expected min price fallback, got %v", got)
	}
}
