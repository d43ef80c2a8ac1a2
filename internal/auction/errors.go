package auction

import "errors"

// Validation and concurrency errors surfaced to callers. The gateway maps
// these to client-facing error events; nothing is mutated when they occur.
var (
	ErrRoundNotFound       = errors.New("round not found")
	ErrTeamNotFound        = errors.New("team not found")
	ErrRoundNotPending     = errors.New("round already started")
	ErrRoundNotActive      = errors.New("round is not active")
	ErrWrongRoundKind      = errors.New("action not valid for this round kind")
	ErrPresentationRunning = errors.New("presentation still in progress")
	ErrBidBelowMinimum     = errors.New("bid below minimum increment")
	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrMinigameAlreadyUsed = errors.New("minigame already used for this round")
	ErrMinigameUnavailable = errors.New("round has no minigame")
	ErrTimeoutOutOfRange   = errors.New("inactivity timeout out of range")
)
