package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/gavelhouse/gavel/internal/auction"
	"github.com/gavelhouse/gavel/internal/auction/events"
	"github.com/gavelhouse/gavel/internal/auction/orchestrator"
	"github.com/gavelhouse/gavel/internal/auth"
	"github.com/gavelhouse/gavel/internal/models"
)

// Inbound command types, matching the client wire protocol.
const (
	cmdStartRound        = "admin:startRound"
	cmdCloseRound        = "admin:closeRound"
	cmdSetTimeout        = "admin:setTimeout"
	cmdBid               = "team:bid"
	cmdStop              = "team:stop"
	cmdCheckMinigame     = "team:checkMinigame"
	cmdUseMinigame       = "team:useMinigame"
	cmdRequestTimerState = "client:requestTimerState"
)

// Reply types sent only to the requesting connection.
const (
	replyError          = "error"
	replyMinigameStatus = "minigame:status"
	replyMinigameResult = "minigame:result"
)

// Orchestrator defines what the dispatcher needs from the round
// lifecycle orchestrator.
type Orchestrator interface {
	StartRound(ctx context.Context, roundID uuid.UUID) (*models.Round, error)
	CloseRound(ctx context.Context, roundID uuid.UUID) (*models.Round, error)
	PlaceBid(ctx context.Context, roundID, teamID uuid.UUID, amount float64, clientTimestamp *time.Time) (*models.Bid, error)
	StopDescending(ctx context.Context, roundID, teamID uuid.UUID, clientTimestamp time.Time) (*models.Round, error)
	SetInactivityTimeout(ctx context.Context, minutes float64) error
	TimerStates() []orchestrator.TimerState
}

// MinigameGate defines what the dispatcher needs from the usage gate.
type MinigameGate interface {
	CheckUsage(ctx context.Context, roundID, teamID uuid.UUID) (bool, error)
	RegisterUsage(ctx context.Context, roundID, teamID uuid.UUID, kind models.MinigameKind, result json.RawMessage) (*models.MinigameUsage, error)
}

// Dispatcher routes inbound WebSocket commands to the orchestrator and
// minigame gate, enforcing the caller's role. Errors go back to the
// requesting connection only; state changes reach everyone through the
// broadcast channel.
type Dispatcher struct {
	orch     Orchestrator
	minigame MinigameGate
	clock    clockwork.Clock
}

// NewDispatcher creates a command dispatcher.
func NewDispatcher(orch Orchestrator, minigame MinigameGate, clock clockwork.Clock) *Dispatcher {
	return &Dispatcher{orch: orch, minigame: minigame, clock: clock}
}

type inboundMessage struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// HandleMessage processes one raw client message.
func (d *Dispatcher) HandleMessage(ctx context.Context, conn *Connection, raw []byte) {
	var msg inboundMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		d.sendError(conn, "malformed message")
		return
	}

	log.Debug().
		Str("connection_id", conn.ID).
		Str("command", msg.Type).
		Msg("handling client command")

	switch msg.Type {
	case cmdStartRound:
		d.handleStartRound(ctx, conn, msg.Data)
	case cmdCloseRound:
		d.handleCloseRound(ctx, conn, msg.Data)
	case cmdSetTimeout:
		d.handleSetTimeout(ctx, conn, msg.Data)
	case cmdBid:
		d.handleBid(ctx, conn, msg.Data)
	case cmdStop:
		d.handleStop(ctx, conn, msg.Data)
	case cmdCheckMinigame:
		d.handleCheckMinigame(ctx, conn, msg.Data)
	case cmdUseMinigame:
		d.handleUseMinigame(ctx, conn, msg.Data)
	case cmdRequestTimerState:
		d.handleTimerStateRequest(conn)
	default:
		log.Warn().Str("command", msg.Type).Msg("unknown command - ignoring")
	}
}

func (d *Dispatcher) handleStartRound(ctx context.Context, conn *Connection, data json.RawMessage) {
	if !conn.Principal.IsAdmin() {
		d.sendError(conn, "not authorized")
		return
	}
	var req struct {
		RoundID uuid.UUID `json:"round_id"`
	}
	if err := json.Unmarshal(data, &req); err != nil {
		d.sendError(conn, "malformed payload")
		return
	}
	if _, err := d.orch.StartRound(ctx, req.RoundID); err != nil {
		d.sendCommandError(conn, err)
	}
}

func (d *Dispatcher) handleCloseRound(ctx context.Context, conn *Connection, data json.RawMessage) {
	if !conn.Principal.IsAdmin() {
		d.sendError(conn, "not authorized")
		return
	}
	var req struct {
		RoundID uuid.UUID `json:"round_id"`
	}
	if err := json.Unmarshal(data, &req); err != nil {
		d.sendError(conn, "malformed payload")
		return
	}
	if _, err := d.orch.CloseRound(ctx, req.RoundID); err != nil {
		d.sendCommandError(conn, err)
	}
}

func (d *Dispatcher) handleSetTimeout(ctx context.Context, conn *Connection, data json.RawMessage) {
	if !conn.Principal.IsAdmin() {
		d.sendError(conn, "not authorized")
		return
	}
	var req struct {
		Minutes float64 `json:"minutes"`
	}
	if err := json.Unmarshal(data, &req); err != nil {
		d.sendError(conn, "malformed payload")
		return
	}
	if err := d.orch.SetInactivityTimeout(ctx, req.Minutes); err != nil {
		d.sendCommandError(conn, err)
	}
}

func (d *Dispatcher) handleBid(ctx context.Context, conn *Connection, data json.RawMessage) {
	teamID, ok := d.requireTeam(conn)
	if !ok {
		return
	}
	var req struct {
		RoundID         uuid.UUID `json:"round_id"`
		Amount          float64   `json:"amount"`
		ClientTimestamp *int64    `json:"client_timestamp"`
	}
	if err := json.Unmarshal(data, &req); err != nil {
		d.sendError(conn, "malformed payload")
		return
	}

	var clientTS *time.Time
	if req.ClientTimestamp != nil {
		ts := time.UnixMilli(*req.ClientTimestamp)
		clientTS = &ts
	}
	if _, err := d.orch.PlaceBid(ctx, req.RoundID, teamID, req.Amount, clientTS); err != nil {
		d.sendCommandError(conn, err)
	}
}

func (d *Dispatcher) handleStop(ctx context.Context, conn *Connection, data json.RawMessage) {
	teamID, ok := d.requireTeam(conn)
	if !ok {
		return
	}
	var req struct {
		RoundID         uuid.UUID `json:"round_id"`
		ClientTimestamp int64     `json:"client_timestamp"`
	}
	if err := json.Unmarshal(data, &req); err != nil {
		d.sendError(conn, "malformed payload")
		return
	}
	if _, err := d.orch.StopDescending(ctx, req.RoundID, teamID, time.UnixMilli(req.ClientTimestamp)); err != nil {
		d.sendCommandError(conn, err)
	}
}

func (d *Dispatcher) handleCheckMinigame(ctx context.Context, conn *Connection, data json.RawMessage) {
	teamID, ok := d.requireTeam(conn)
	if !ok {
		return
	}
	var req struct {
		RoundID uuid.UUID `json:"round_id"`
	}
	if err := json.Unmarshal(data, &req); err != nil {
		d.sendError(conn, "malformed payload")
		return
	}

	used, err := d.minigame.CheckUsage(ctx, req.RoundID, teamID)
	if err != nil {
		d.sendCommandError(conn, err)
		return
	}
	d.sendReply(conn, replyMinigameStatus, map[string]any{
		"round_id":    req.RoundID,
		"used_before": used,
	})
}

func (d *Dispatcher) handleUseMinigame(ctx context.Context, conn *Connection, data json.RawMessage) {
	teamID, ok := d.requireTeam(conn)
	if !ok {
		return
	}
	var req struct {
		RoundID uuid.UUID           `json:"round_id"`
		Kind    models.MinigameKind `json:"kind"`
		Result  json.RawMessage     `json:"result"`
	}
	if err := json.Unmarshal(data, &req); err != nil {
		d.sendError(conn, "malformed payload")
		return
	}

	usage, err := d.minigame.RegisterUsage(ctx, req.RoundID, teamID, req.Kind, req.Result)
	if err != nil {
		d.sendCommandError(conn, err)
		return
	}
	d.sendReply(conn, replyMinigameResult, usage)
}

// handleTimerStateRequest answers a resync request with the armed
// deadline of every round that has a live timer.
func (d *Dispatcher) handleTimerStateRequest(conn *Connection) {
	for _, state := range d.orch.TimerStates() {
		switch state.Kind {
		case orchestrator.TimerKindPresentation:
			d.replyEvent(conn, events.TypePresentationStarted, &state.RoundID, events.PresentationStartedPayload{
				RoundID:            state.RoundID,
				PresentationEndsAt: state.ExpiresAt,
			})
		case orchestrator.TimerKindInactivity:
			d.replyEvent(conn, events.TypeTimerUpdate, &state.RoundID, events.TimerUpdatePayload{
				RoundID:   state.RoundID,
				ExpiresAt: state.ExpiresAt,
			})
		}
	}
}

func (d *Dispatcher) requireTeam(conn *Connection) (uuid.UUID, bool) {
	if conn.Principal.Role != auth.RoleTeam || conn.Principal.TeamID == nil {
		d.sendError(conn, "not authorized")
		return uuid.Nil, false
	}
	return *conn.Principal.TeamID, true
}

// sendCommandError maps domain errors to client-facing messages.
func (d *Dispatcher) sendCommandError(conn *Connection, err error) {
	switch {
	case errors.Is(err, auction.ErrRoundNotFound),
		errors.Is(err, auction.ErrTeamNotFound),
		errors.Is(err, auction.ErrRoundNotPending),
		errors.Is(err, auction.ErrRoundNotActive),
		errors.Is(err, auction.ErrWrongRoundKind),
		errors.Is(err, auction.ErrPresentationRunning),
		errors.Is(err, auction.ErrBidBelowMinimum),
		errors.Is(err, auction.ErrInsufficientBalance),
		errors.Is(err, auction.ErrMinigameAlreadyUsed),
		errors.Is(err, auction.ErrMinigameUnavailable),
		errors.Is(err, auction.ErrTimeoutOutOfRange):
		d.sendError(conn, err.Error())
	default:
		log.Error().Err(err).Str("connection_id", conn.ID).Msg("command failed")
		d.sendError(conn, "internal error")
	}
}

func (d *Dispatcher) sendError(conn *Connection, message string) {
	d.sendReply(conn, replyError, map[string]string{"message": message})
}

func (d *Dispatcher) sendReply(conn *Connection, replyType string, payload any) {
	event, err := events.New(events.Type(replyType), nil, d.clock.Now(), payload)
	if err != nil {
		log.Error().Err(err).Str("reply_type", replyType).Msg("failed to build reply")
		return
	}
	conn.SendEvent(event)
}

func (d *Dispatcher) replyEvent(conn *Connection, eventType events.Type, roundID *uuid.UUID, payload any) {
	event, err := events.New(eventType, roundID, d.clock.Now(), payload)
	if err != nil {
		log.Error().Err(err).Str("event_type", string(eventType)).Msg("failed to build resync event")
		return
	}
	conn.SendEvent(event)
}
