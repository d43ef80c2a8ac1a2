// Package orchestrator drives the round lifecycle: it validates external
// commands and timer expirations against round state, mutates the entity
// store, invokes settlement, and publishes broadcast events.
package orchestrator

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/gavelhouse/gavel/internal/auction"
	"github.com/gavelhouse/gavel/internal/auction/events"
	"github.com/gavelhouse/gavel/internal/models"
	"github.com/gavelhouse/gavel/internal/pricing"
)

// Inactivity timeout bounds for SetInactivityTimeout.
const (
	MinInactivityTimeout = 30 * time.Second
	MaxInactivityTimeout = 30 * time.Minute

	DefaultInactivityTimeout = 5 * time.Minute
)

// RoundStore defines what the orchestrator needs from the round store.
type RoundStore interface {
	GetRound(ctx context.Context, id uuid.UUID) (*models.Round, error)
	ActivateRound(ctx context.Context, id uuid.UUID, startedAt time.Time, currentPrice float64, presentationEndsAt *time.Time) (*models.Round, error)
	CloseRound(ctx context.Context, id uuid.UUID, closedAt time.Time, winnerID *uuid.UUID, finalPrice *float64) (*models.Round, error)
	UpdateCurrentPrice(ctx context.Context, id uuid.UUID, price float64) error
	// CreateBid records the bid and moves the round's current price to
	// the bid amount as one atomic write.
	CreateBid(ctx context.Context, req auction.CreateBidRequest) (*models.Bid, error)
	LatestBid(ctx context.Context, roundID uuid.UUID) (*models.Bid, error)
}

// TeamStore defines what the orchestrator needs from the team store.
type TeamStore interface {
	GetTeam(ctx context.Context, id uuid.UUID) (*models.Team, error)
	ListTeams(ctx context.Context) ([]models.Team, error)
}

// Settler is the settlement engine: an atomic debit plus ledger entry.
type Settler interface {
	Settle(ctx context.Context, teamID, roundID uuid.UUID, amount float64) (*models.Transaction, error)
}

// Broadcaster fans out state-change events to connected viewers.
type Broadcaster interface {
	Publish(ctx context.Context, event events.Event) error
}

// Config holds orchestrator tunables.
type Config struct {
	// InactivityTimeout applies to newly armed inactivity timers. Zero
	// means DefaultInactivityTimeout.
	InactivityTimeout time.Duration
}

// Orchestrator is the round lifecycle state machine. All mutations to a
// given round are serialized through a per-round lock: commands and timer
// expirations for the same round never interleave mid-handler.
type Orchestrator struct {
	rounds      RoundStore
	teams       TeamStore
	settler     Settler
	broadcaster Broadcaster
	clock       clockwork.Clock
	timers      *TimerSet

	mu                sync.Mutex
	inactivityTimeout time.Duration
	roundLocks        map[uuid.UUID]*sync.Mutex
}

// New creates a round lifecycle orchestrator.
func New(rounds RoundStore, teams TeamStore, settler Settler, broadcaster Broadcaster, clock clockwork.Clock, cfg Config) *Orchestrator {
	timeout := cfg.InactivityTimeout
	if timeout == 0 {
		timeout = DefaultInactivityTimeout
	}
	return &Orchestrator{
		rounds:            rounds,
		teams:             teams,
		settler:           settler,
		broadcaster:       broadcaster,
		clock:             clock,
		timers:            NewTimerSet(clock),
		inactivityTimeout: timeout,
		roundLocks:        make(map[uuid.UUID]*sync.Mutex),
	}
}

// StartRound transitions a pending round to active, broadcasts the new
// state, and arms the presentation timer (or, with no presentation
// configured, the inactivity timer and decay ticker directly).
func (o *Orchestrator) StartRound(ctx context.Context, roundID uuid.UUID) (*models.Round, error) {
	defer o.lockRound(roundID)()

	round, err := o.rounds.GetRound(ctx, roundID)
	if err != nil {
		return nil, err
	}
	if round.Status != models.RoundStatusPending {
		return nil, auction.ErrRoundNotPending
	}

	now := o.clock.Now()
	currentPrice := round.MinPrice
	if round.Kind == models.RoundKindDescending && round.StartingPrice != nil {
		currentPrice = *round.StartingPrice
	}

	var presentationEndsAt *time.Time
	if round.PresentationDurationMs > 0 {
		endsAt := now.Add(time.Duration(round.PresentationDurationMs) * time.Millisecond)
		presentationEndsAt = &endsAt
	}

	started, err := o.rounds.ActivateRound(ctx, roundID, now, currentPrice, presentationEndsAt)
	if err != nil {
		return nil, err
	}

	log.Info().
		Str("round_id", roundID.String()).
		Str("kind", string(started.Kind)).
		Float64("current_price", currentPrice).
		Msg("round started")

	o.publish(ctx, events.TypeRoundStarted, &roundID, events.RoundSnapshotPayload{Round: *started})

	if presentationEndsAt != nil {
		o.timers.ArmPresentation(roundID, presentationEndsAt.Sub(now), o.onPresentationEnded)
		o.publish(ctx, events.TypePresentationStarted, &roundID, events.PresentationStartedPayload{
			RoundID:            roundID,
			PresentationEndsAt: *presentationEndsAt,
		})
	} else {
		o.armRoundTimers(ctx, started)
	}

	return started, nil
}

// PlaceBid validates and records an ascending bid, updates the current
// price, and rearms the inactivity timer.
func (o *Orchestrator) PlaceBid(ctx context.Context, roundID, teamID uuid.UUID, amount float64, clientTimestamp *time.Time) (*models.Bid, error) {
	defer o.lockRound(roundID)()

	round, err := o.rounds.GetRound(ctx, roundID)
	if err != nil {
		return nil, err
	}
	team, err := o.teams.GetTeam(ctx, teamID)
	if err != nil {
		return nil, err
	}

	if round.Status != models.RoundStatusActive {
		return nil, auction.ErrRoundNotActive
	}
	if o.presentationRunning(round) {
		return nil, auction.ErrPresentationRunning
	}
	if round.Kind != models.RoundKindAscending {
		return nil, auction.ErrWrongRoundKind
	}
	if team.Balance < amount {
		return nil, auction.ErrInsufficientBalance
	}
	if amount < pricing.MinimumNextBid(round) {
		return nil, auction.ErrBidBelowMinimum
	}

	bid, err := o.rounds.CreateBid(ctx, auction.CreateBidRequest{
		RoundID:         roundID,
		TeamID:          teamID,
		Amount:          amount,
		ClientTimestamp: clientTimestamp,
	})
	if err != nil {
		return nil, err
	}

	o.armInactivity(ctx, roundID)

	log.Info().
		Str("round_id", roundID.String()).
		Str("team_id", teamID.String()).
		Float64("amount", amount).
		Msg("bid accepted")

	o.publish(ctx, events.TypeNewBid, &roundID, events.NewBidPayload{Bid: *bid, Team: team.Summary()})
	return bid, nil
}

// StopDescending settles a clock round for the team that stopped it. The
// settling price is reconstructed from the client-asserted timestamp and
// fixed into a single authoritative bid and transaction.
func (o *Orchestrator) StopDescending(ctx context.Context, roundID, teamID uuid.UUID, clientTimestamp time.Time) (*models.Round, error) {
	defer o.lockRound(roundID)()

	round, err := o.rounds.GetRound(ctx, roundID)
	if err != nil {
		return nil, err
	}
	team, err := o.teams.GetTeam(ctx, teamID)
	if err != nil {
		return nil, err
	}

	if round.Status != models.RoundStatusActive {
		return nil, auction.ErrRoundNotActive
	}
	if o.presentationRunning(round) {
		return nil, auction.ErrPresentationRunning
	}
	if round.Kind != models.RoundKindDescending {
		return nil, auction.ErrWrongRoundKind
	}

	price := pricing.PriceAt(round, clientTimestamp)
	if team.Balance < price {
		return nil, auction.ErrInsufficientBalance
	}

	bid, err := o.rounds.CreateBid(ctx, auction.CreateBidRequest{
		RoundID:         roundID,
		TeamID:          teamID,
		Amount:          price,
		ClientTimestamp: &clientTimestamp,
	})
	if err != nil {
		return nil, err
	}

	// Settlement before the status flip: if the debit fails the round
	// stays active and its timers keep running.
	if _, err := o.settler.Settle(ctx, teamID, roundID, price); err != nil {
		return nil, err
	}

	closed, err := o.rounds.CloseRound(ctx, roundID, o.clock.Now(), &teamID, &price)
	if err != nil {
		return nil, err
	}
	o.cancelTimers(ctx, roundID)

	log.Info().
		Str("round_id", roundID.String()).
		Str("team_id", teamID.String()).
		Float64("price", price).
		Int64("bid_seq", bid.Seq).
		Msg("descending round stopped")

	winner := team.Summary()
	o.publish(ctx, events.TypeRoundClosed, &roundID, events.RoundSnapshotPayload{Round: *closed, Winner: &winner})
	o.publishTeams(ctx)
	return closed, nil
}

// CloseRound settles and closes an active round on explicit admin action.
// The winner is the bid with the greatest server-assigned seq; a round
// with no bids closes without winner or settlement.
func (o *Orchestrator) CloseRound(ctx context.Context, roundID uuid.UUID) (*models.Round, error) {
	defer o.lockRound(roundID)()

	round, err := o.rounds.GetRound(ctx, roundID)
	if err != nil {
		return nil, err
	}
	if round.Status != models.RoundStatusActive {
		return nil, auction.ErrRoundNotActive
	}
	return o.closeLocked(ctx, round, "")
}

// SetInactivityTimeout updates the timeout applied to newly armed
// inactivity timers. Already-running timers are not rearmed.
func (o *Orchestrator) SetInactivityTimeout(ctx context.Context, minutes float64) error {
	d := time.Duration(minutes * float64(time.Minute))
	if d < MinInactivityTimeout || d > MaxInactivityTimeout {
		return auction.ErrTimeoutOutOfRange
	}

	o.mu.Lock()
	o.inactivityTimeout = d
	o.mu.Unlock()

	log.Info().Float64("minutes", minutes).Msg("inactivity timeout updated")
	o.publish(ctx, events.TypeTimeoutUpdated, nil, events.TimeoutUpdatedPayload{Minutes: minutes})
	return nil
}

// InactivityTimeout returns the timeout applied to newly armed timers.
func (o *Orchestrator) InactivityTimeout() time.Duration {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.inactivityTimeout
}

// TimerStates returns the armed deadline of every round with a live
// timer, for resync of (re)connecting clients.
func (o *Orchestrator) TimerStates() []TimerState {
	return o.timers.Snapshot()
}

// closeLocked performs the shared close path. reason is non-empty for
// auto-close. The caller holds the round lock and has verified the round
// is active.
func (o *Orchestrator) closeLocked(ctx context.Context, round *models.Round, reason string) (*models.Round, error) {
	latest, err := o.rounds.LatestBid(ctx, round.ID)
	if err != nil {
		return nil, err
	}

	var winnerID *uuid.UUID
	var finalPrice *float64
	var winner *models.TeamSummary

	if latest != nil {
		if _, err := o.settler.Settle(ctx, latest.TeamID, round.ID, latest.Amount); err != nil {
			return nil, err
		}
		winnerID = &latest.TeamID
		finalPrice = &latest.Amount

		team, err := o.teams.GetTeam(ctx, latest.TeamID)
		if err != nil {
			return nil, err
		}
		summary := team.Summary()
		winner = &summary
	}

	closed, err := o.rounds.CloseRound(ctx, round.ID, o.clock.Now(), winnerID, finalPrice)
	if err != nil {
		return nil, err
	}
	o.cancelTimers(ctx, round.ID)

	log.Info().
		Str("round_id", round.ID.String()).
		Bool("has_winner", winnerID != nil).
		Str("reason", reason).
		Msg("round closed")

	o.publish(ctx, events.TypeRoundClosed, &round.ID, events.RoundSnapshotPayload{Round: *closed, Winner: winner})
	if reason != "" {
		o.publish(ctx, events.TypeAutoCloseNotification, &round.ID, events.AutoClosePayload{
			RoundID: round.ID,
			Reason:  reason,
			Message: fmt.Sprintf("round closed automatically after %s of inactivity", o.InactivityTimeout()),
		})
	}
	o.publishTeams(ctx)
	return closed, nil
}

// onPresentationEnded fires when the presentation countdown expires:
// bidding opens, the inactivity timer arms, and a descending round starts
// its price decay.
func (o *Orchestrator) onPresentationEnded(roundID uuid.UUID) {
	ctx := context.Background()
	defer o.lockRound(roundID)()

	round, err := o.rounds.GetRound(ctx, roundID)
	if err != nil {
		log.Warn().Err(err).Str("round_id", roundID.String()).Msg("presentation ended for unknown round")
		return
	}
	if round.Status != models.RoundStatusActive {
		log.Warn().Str("round_id", roundID.String()).Str("status", string(round.Status)).Msg("presentation ended for inactive round")
		return
	}

	o.publish(ctx, events.TypePresentationEnded, &roundID, events.PresentationEndedPayload{RoundID: roundID})
	o.armRoundTimers(ctx, round)
}

// onInactivityExpired force-settles a round nobody has bid on for the
// configured timeout. A round that was closed in the meantime is a benign
// no-op: the expiry is re-checked under the round lock.
func (o *Orchestrator) onInactivityExpired(roundID uuid.UUID) {
	ctx := context.Background()
	defer o.lockRound(roundID)()

	round, err := o.rounds.GetRound(ctx, roundID)
	if err != nil {
		log.Warn().Err(err).Str("round_id", roundID.String()).Msg("inactivity expired for unknown round")
		return
	}
	if round.Status != models.RoundStatusActive {
		log.Warn().Str("round_id", roundID.String()).Str("status", string(round.Status)).Msg("inactivity expired for inactive round")
		return
	}

	if _, err := o.closeLocked(ctx, round, "inactivity"); err != nil {
		log.Error().Err(err).Str("round_id", roundID.String()).Msg("auto-close failed")
	}
}

// decayTick recomputes and persists the displayed price of a descending
// round. Returns false to stop the ticker: the price hit its floor or the
// round left the active state. Hitting the floor does not close the round.
func (o *Orchestrator) decayTick(roundID uuid.UUID) bool {
	ctx := context.Background()
	defer o.lockRound(roundID)()

	round, err := o.rounds.GetRound(ctx, roundID)
	if err != nil || round.Status != models.RoundStatusActive {
		return false
	}

	price := pricing.PriceAt(round, o.clock.Now())
	if err := o.rounds.UpdateCurrentPrice(ctx, roundID, price); err != nil {
		log.Warn().Err(err).Str("round_id", roundID.String()).Msg("price decay update failed")
		return false
	}

	stopped := price <= round.MinPrice
	o.publish(ctx, events.TypePriceUpdate, &roundID, events.PriceUpdatePayload{
		RoundID:      roundID,
		CurrentPrice: price,
		Stopped:      stopped,
	})
	return !stopped
}

// armRoundTimers arms the post-presentation timers: inactivity always,
// price decay for descending rounds.
func (o *Orchestrator) armRoundTimers(ctx context.Context, round *models.Round) {
	o.armInactivity(ctx, round.ID)
	if round.Kind == models.RoundKindDescending {
		o.timers.StartDecay(round.ID, round.DecrementInterval(), o.decayTick)
	}
}

func (o *Orchestrator) armInactivity(ctx context.Context, roundID uuid.UUID) {
	deadline := o.timers.ArmInactivity(roundID, o.InactivityTimeout(), o.onInactivityExpired)
	o.publish(ctx, events.TypeTimerUpdate, &roundID, events.TimerUpdatePayload{
		RoundID:   roundID,
		ExpiresAt: deadline,
	})
}

func (o *Orchestrator) cancelTimers(ctx context.Context, roundID uuid.UUID) {
	o.timers.CancelAll(roundID)
	o.publish(ctx, events.TypeTimerCancelled, &roundID, events.TimerCancelledPayload{RoundID: roundID})
}

func (o *Orchestrator) presentationRunning(round *models.Round) bool {
	return round.PresentationEndsAt != nil && o.clock.Now().Before(*round.PresentationEndsAt)
}

// publish broadcasts an event; a broadcast failure never fails the
// command that produced it.
func (o *Orchestrator) publish(ctx context.Context, eventType events.Type, roundID *uuid.UUID, payload any) {
	event, err := events.New(eventType, roundID, o.clock.Now(), payload)
	if err != nil {
		log.Error().Err(err).Str("event_type", string(eventType)).Msg("failed to build event")
		return
	}
	if err := o.broadcaster.Publish(ctx, event); err != nil {
		log.Error().Err(err).Str("event_type", string(eventType)).Msg("failed to publish event")
	}
}

func (o *Orchestrator) publishTeams(ctx context.Context) {
	teams, err := o.teams.ListTeams(ctx)
	if err != nil {
		log.Error().Err(err).Msg("failed to list teams for broadcast")
		return
	}
	o.publish(ctx, events.TypeTeamsUpdated, nil, events.TeamsUpdatedPayload{Teams: teams})
}

// lockRound acquires the per-round serialization lock and returns the
// unlock func, so every command and timer expiry for one round runs alone.
func (o *Orchestrator) lockRound(roundID uuid.UUID) func() {
	o.mu.Lock()
	lk, ok := o.roundLocks[roundID]
	if !ok {
		lk = &sync.Mutex{}
		o.roundLocks[roundID] = lk
	}
	o.mu.Unlock()

	lk.Lock()
	return lk.Unlock
}
