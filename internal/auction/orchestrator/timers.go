package orchestrator

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
)

// TimerKind names a resyncable per-round deadline. The decay ticker has
// no kind: it carries no deadline, only an interval, and clients derive
// the displayed price from the round snapshot instead.
type TimerKind string

const (
	TimerKindPresentation TimerKind = "presentation"
	TimerKindInactivity   TimerKind = "inactivity"
)

// TimerState is a snapshot of one armed deadline, used for client resync.
type TimerState struct {
	RoundID   uuid.UUID `json:"round_id"`
	Kind      TimerKind `json:"kind"`
	ExpiresAt time.Time `json:"expires_at"`
}

// oneShot is a single cancellable deadline.
type oneShot struct {
	deadline time.Time
	stop     chan struct{}
}

// roundTimers holds the live timers of one round.
type roundTimers struct {
	presentation *oneShot
	inactivity   *oneShot
	decayStop    chan struct{}
}

// TimerSet manages the per-round timers: the presentation and inactivity
// one-shots and the price-decay ticker. Arming a timer that is already
// armed cancels the previous one first, so a round never has two live
// timers of the same kind. State is process-local and in-memory.
type TimerSet struct {
	clock clockwork.Clock

	mu     sync.Mutex
	rounds map[uuid.UUID]*roundTimers
}

// NewTimerSet creates an empty timer set on the given clock.
func NewTimerSet(clock clockwork.Clock) *TimerSet {
	return &TimerSet{
		clock:  clock,
		rounds: make(map[uuid.UUID]*roundTimers),
	}
}

// ArmPresentation arms the one-shot presentation countdown and returns its
// deadline. fire runs in its own goroutine when the countdown expires.
func (ts *TimerSet) ArmPresentation(roundID uuid.UUID, d time.Duration, fire func(roundID uuid.UUID)) time.Time {
	return ts.armOneShot(roundID, TimerKindPresentation, d, fire)
}

// ArmInactivity arms (or rearms) the inactivity countdown and returns its
// deadline. Every accepted bid rearms it; only one is ever live per round.
func (ts *TimerSet) ArmInactivity(roundID uuid.UUID, d time.Duration, fire func(roundID uuid.UUID)) time.Time {
	return ts.armOneShot(roundID, TimerKindInactivity, d, fire)
}

func (ts *TimerSet) armOneShot(roundID uuid.UUID, kind TimerKind, d time.Duration, fire func(roundID uuid.UUID)) time.Time {
	ts.mu.Lock()
	defer ts.mu.Unlock()

	rt := ts.ensureLocked(roundID)
	switch kind {
	case TimerKindPresentation:
		cancelOneShot(rt.presentation)
	case TimerKindInactivity:
		cancelOneShot(rt.inactivity)
	}

	shot := &oneShot{
		deadline: ts.clock.Now().Add(d),
		stop:     make(chan struct{}),
	}
	switch kind {
	case TimerKindPresentation:
		rt.presentation = shot
	case TimerKindInactivity:
		rt.inactivity = shot
	}

	go func() {
		timer := ts.clock.NewTimer(d)
		defer timer.Stop()
		select {
		case <-timer.Chan():
			ts.clearOneShot(roundID, kind, shot)
			fire(roundID)
		case <-shot.stop:
		}
	}()

	return shot.deadline
}

// StartDecay starts the periodic price-decay ticker for a round. tick runs
// on every interval and returns false to stop the ticker (the price has
// reached its floor or the round is no longer active).
func (ts *TimerSet) StartDecay(roundID uuid.UUID, interval time.Duration, tick func(roundID uuid.UUID) bool) {
	ts.mu.Lock()
	defer ts.mu.Unlock()

	rt := ts.ensureLocked(roundID)
	if rt.decayStop != nil {
		close(rt.decayStop)
	}
	stop := make(chan struct{})
	rt.decayStop = stop

	go func() {
		ticker := ts.clock.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.Chan():
				if !tick(roundID) {
					ts.stopDecayIf(roundID, stop)
					return
				}
			case <-stop:
				return
			}
		}
	}()
}

// CancelAll cancels every timer of the round. Called on every close path
// before the round's state moves on, so no stale expiry can fire.
func (ts *TimerSet) CancelAll(roundID uuid.UUID) {
	ts.mu.Lock()
	defer ts.mu.Unlock()

	rt, ok := ts.rounds[roundID]
	if !ok {
		return
	}
	cancelOneShot(rt.presentation)
	cancelOneShot(rt.inactivity)
	if rt.decayStop != nil {
		close(rt.decayStop)
	}
	delete(ts.rounds, roundID)
}

// InactivityDeadline reports the live inactivity deadline of a round, if any.
func (ts *TimerSet) InactivityDeadline(roundID uuid.UUID) (time.Time, bool) {
	ts.mu.Lock()
	defer ts.mu.Unlock()

	rt, ok := ts.rounds[roundID]
	if !ok || rt.inactivity == nil {
		return time.Time{}, false
	}
	return rt.inactivity.deadline, true
}

// Snapshot returns every armed one-shot deadline, for resync of newly
// connected clients.
func (ts *TimerSet) Snapshot() []TimerState {
	ts.mu.Lock()
	defer ts.mu.Unlock()

	var states []TimerState
	for roundID, rt := range ts.rounds {
		if rt.presentation != nil {
			states = append(states, TimerState{RoundID: roundID, Kind: TimerKindPresentation, ExpiresAt: rt.presentation.deadline})
		}
		if rt.inactivity != nil {
			states = append(states, TimerState{RoundID: roundID, Kind: TimerKindInactivity, ExpiresAt: rt.inactivity.deadline})
		}
	}
	return states
}

func (ts *TimerSet) ensureLocked(roundID uuid.UUID) *roundTimers {
	rt, ok := ts.rounds[roundID]
	if !ok {
		rt = &roundTimers{}
		ts.rounds[roundID] = rt
	}
	return rt
}

// clearOneShot drops the bookkeeping for a one-shot that has fired, but
// only if it has not been replaced by a newer arm in the meantime.
func (ts *TimerSet) clearOneShot(roundID uuid.UUID, kind TimerKind, shot *oneShot) {
	ts.mu.Lock()
	defer ts.mu.Unlock()

	rt, ok := ts.rounds[roundID]
	if !ok {
		return
	}
	switch kind {
	case TimerKindPresentation:
		if rt.presentation == shot {
			rt.presentation = nil
		}
	case TimerKindInactivity:
		if rt.inactivity == shot {
			rt.inactivity = nil
		}
	}
}

func (ts *TimerSet) stopDecayIf(roundID uuid.UUID, stop chan struct{}) {
	ts.mu.Lock()
	defer ts.mu.Unlock()

	rt, ok := ts.rounds[roundID]
	if ok && rt.decayStop == stop {
		rt.decayStop = nil
	}
}

func cancelOneShot(shot *oneShot) {
	if shot != nil {
		close(shot.stop)
	}
}
