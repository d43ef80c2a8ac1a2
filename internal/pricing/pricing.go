// Package pricing computes round prices from stored configuration and
// timestamps. All functions are pure: the settling price of a descending
// round is derived from a client-supplied timestamp and must match what
// any process would compute from the same stored state.
package pricing

import (
	"time"

	"github.com/gavelhouse/gavel/internal/models"
)

// AscendingFloor returns the minimum price a new ascending bid must
// exceed: the current price if the round has one, else the min price.
func AscendingFloor(round *models.Round) float64 {
	if round.CurrentPrice != nil {
		return *round.CurrentPrice
	}
	return round.MinPrice
}

// MinimumNextBid returns the smallest acceptable ascending bid.
func MinimumNextBid(round *models.Round) float64 {
	return AscendingFloor(round) + round.MinIncrement
}

// PriceAt returns the displayed price of a descending round at the given
// instant. Decay starts when the presentation period ends (or at round
// start when there is no presentation); the price drops by PriceDecrement
// once per full elapsed interval and never goes below MinPrice.
func PriceAt(round *models.Round, at time.Time) float64 {
	if round.StartingPrice == nil {
		return round.MinPrice
	}
	start := *round.StartingPrice

	origin := round.StartedAt
	if round.PresentationEndsAt != nil {
		origin = round.PresentationEndsAt
	}
	if origin == nil {
		return start
	}

	elapsed := at.Sub(*origin)
	if elapsed < 0 {
		elapsed = 0
	}

	decrement := 0.0
	if round.PriceDecrement != nil {
		decrement = *round.PriceDecrement
	}
	ticks := elapsed / round.DecrementInterval()

	price := start - float64(ticks)*decrement
	if price < round.MinPrice {
		return round.MinPrice
	}
	return price
}
