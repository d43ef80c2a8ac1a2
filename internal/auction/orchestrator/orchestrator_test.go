package orchestrator

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"github.com/gavelhouse/gavel/internal/auction"
	"github.com/gavelhouse/gavel/internal/auction/events"
	"github.com/gavelhouse/gavel/internal/models"
)

// fakeRoundStore is an in-memory RoundStore with the same state-guard
// semantics as the Postgres repository.
type fakeRoundStore struct {
	mu      sync.Mutex
	rounds  map[uuid.UUID]*models.Round
	bids    []models.Bid
	nextSeq int64
	bidErr  error
}

func newFakeRoundStore(rounds ...*models.Round) *fakeRoundStore {
	s := &fakeRoundStore{rounds: make(map[uuid.UUID]*models.Round)}
	for _, r := range rounds {
		s.rounds[r.ID] = r
	}
	return s
}

func (s *fakeRoundStore) GetRound(ctx context.Context, id uuid.UUID) (*models.Round, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	round, ok := s.rounds[id]
	if !ok {
		return nil, auction.ErrRoundNotFound
	}
	out := *round
	return &out, nil
}

func (s *fakeRoundStore) ActivateRound(ctx context.Context, id uuid.UUID, startedAt time.Time, currentPrice float64, presentationEndsAt *time.Time) (*models.Round, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	round, ok := s.rounds[id]
	if !ok {
		return nil, auction.ErrRoundNotFound
	}
	if round.Status != models.RoundStatusPending {
		return nil, auction.ErrRoundNotPending
	}
	round.Status = models.RoundStatusActive
	round.StartedAt = &startedAt
	round.CurrentPrice = &currentPrice
	round.PresentationEndsAt = presentationEndsAt
	out := *round
	return &out, nil
}

func (s *fakeRoundStore) CloseRound(ctx context.Context, id uuid.UUID, closedAt time.Time, winnerID *uuid.UUID, finalPrice *float64) (*models.Round, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	round, ok := s.rounds[id]
	if !ok {
		return nil, auction.ErrRoundNotFound
	}
	if round.Status != models.RoundStatusActive {
		return nil, auction.ErrRoundNotActive
	}
	round.Status = models.RoundStatusClosed
	round.ClosedAt = &closedAt
	round.WinnerID = winnerID
	round.FinalPrice = finalPrice
	out := *round
	return &out, nil
}

func (s *fakeRoundStore) UpdateCurrentPrice(ctx context.Context, id uuid.UUID, price float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	round, ok := s.rounds[id]
	if !ok {
		return auction.ErrRoundNotFound
	}
	if round.Status != models.RoundStatusActive {
		return auction.ErrRoundNotActive
	}
	round.CurrentPrice = &price
	return nil
}

// CreateBid mirrors the repository contract: the bid insert and the
// current-price move commit together or not at all.
func (s *fakeRoundStore) CreateBid(ctx context.Context, req auction.CreateBidRequest) (*models.Bid, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.bidErr != nil {
		return nil, s.bidErr
	}
	round, ok := s.rounds[req.RoundID]
	if !ok {
		return nil, auction.ErrRoundNotFound
	}
	if round.Status != models.RoundStatusActive {
		return nil, auction.ErrRoundNotActive
	}
	s.nextSeq++
	bid := models.Bid{
		ID:              uuid.New(),
		Seq:             s.nextSeq,
		RoundID:         req.RoundID,
		TeamID:          req.TeamID,
		Amount:          req.Amount,
		ClientTimestamp: req.ClientTimestamp,
	}
	s.bids = append(s.bids, bid)
	price := req.Amount
	round.CurrentPrice = &price
	return &bid, nil
}

func (s *fakeRoundStore) LatestBid(ctx context.Context, roundID uuid.UUID) (*models.Bid, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var latest *models.Bid
	for i := range s.bids {
		if s.bids[i].RoundID != roundID {
			continue
		}
		if latest == nil || s.bids[i].Seq > latest.Seq {
			latest = &s.bids[i]
		}
	}
	if latest == nil {
		return nil, nil
	}
	out := *latest
	return &out, nil
}

func (s *fakeRoundStore) currentPrice(id uuid.UUID) float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	round := s.rounds[id]
	if round.CurrentPrice == nil {
		return 0
	}
	return *round.CurrentPrice
}

func (s *fakeRoundStore) bidCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.bids)
}

func (s *fakeRoundStore) status(id uuid.UUID) models.RoundStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rounds[id].Status
}

type fakeTeamStore struct {
	mu    sync.Mutex
	teams map[uuid.UUID]*models.Team
}

func newFakeTeamStore(teams ...*models.Team) *fakeTeamStore {
	s := &fakeTeamStore{teams: make(map[uuid.UUID]*models.Team)}
	for _, t := range teams {
		s.teams[t.ID] = t
	}
	return s
}

func (s *fakeTeamStore) GetTeam(ctx context.Context, id uuid.UUID) (*models.Team, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	team, ok := s.teams[id]
	if !ok {
		return nil, auction.ErrTeamNotFound
	}
	out := *team
	return &out, nil
}

func (s *fakeTeamStore) ListTeams(ctx context.Context) ([]models.Team, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var teams []models.Team
	for _, t := range s.teams {
		teams = append(teams, *t)
	}
	return teams, nil
}

type settleCall struct {
	TeamID  uuid.UUID
	RoundID uuid.UUID
	Amount  float64
}

type fakeSettler struct {
	mu    sync.Mutex
	calls []settleCall
	err   error
}

func (s *fakeSettler) Settle(ctx context.Context, teamID, roundID uuid.UUID, amount float64) (*models.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}
	s.calls = append(s.calls, settleCall{TeamID: teamID, RoundID: roundID, Amount: amount})
	return &models.Transaction{ID: uuid.New(), TeamID: teamID, RoundID: roundID, Amount: amount}, nil
}

func (s *fakeSettler) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.calls)
}

type fakeBroadcaster struct {
	mu     sync.Mutex
	events []events.Event
}

func (b *fakeBroadcaster) Publish(ctx context.Context, event events.Event) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = append(b.events, event)
	return nil
}

func (b *fakeBroadcaster) has(eventType events.Type) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, e := range b.events {
		if e.Type == eventType {
			return true
		}
	}
	return false
}

// waitFor polls until the condition holds or the wall-clock deadline
// passes. Timer callbacks run on their own goroutines even with a fake
// clock, so observing their effects needs a real-time wait.
func waitFor(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal(msg)
}

func floatPtr(v float64) *float64 { return &v }
func intPtr(v int) *int           { return &v }

func ascendingRound() *models.Round {
	return &models.Round{
		ID:           uuid.New(),
		Title:        "lot one",
		Kind:         models.RoundKindAscending,
		Status:       models.RoundStatusPending,
		MinPrice:     100,
		MinIncrement: 50,
	}
}

func descendingRound() *models.Round {
	return &models.Round{
		ID:                  uuid.New(),
		Title:               "lot two",
		Kind:                models.RoundKindDescending,
		Status:              models.RoundStatusPending,
		MinPrice:            100,
		StartingPrice:       floatPtr(1000),
		PriceDecrement:      floatPtr(50),
		DecrementIntervalMs: intPtr(1000),
	}
}

func testTeam(balance float64) *models.Team {
	return &models.Team{ID: uuid.New(), Name: "blue", Balance: balance, InitialBalance: balance}
}

type fixture struct {
	orch        *Orchestrator
	rounds      *fakeRoundStore
	teams       *fakeTeamStore
	settler     *fakeSettler
	broadcaster *fakeBroadcaster
	clock       *clockwork.FakeClock
}

func newFixture(t *testing.T, cfg Config, rounds []*models.Round, teams []*models.Team) *fixture {
	t.Helper()
	f := &fixture{
		rounds:      newFakeRoundStore(rounds...),
		teams:       newFakeTeamStore(teams...),
		settler:     &fakeSettler{},
		broadcaster: &fakeBroadcaster{},
		clock:       clockwork.NewFakeClock(),
	}
	f.orch = New(f.rounds, f.teams, f.settler, f.broadcaster, f.clock, cfg)
	return f
}

func TestStartRoundAscending(t *testing.T) {
	round := ascendingRound()
	f := newFixture(t, Config{}, []*models.Round{round}, nil)

	started, err := f.orch.StartRound(context.Background(), round.ID)
	if err != nil {
		t.Fatalf("StartRound: %v", err)
	}
	if started.Status != models.RoundStatusActive {
		t.Errorf("status = %s, want ACTIVE", started.Status)
	}
	if started.CurrentPrice == nil || *started.CurrentPrice != round.MinPrice {
		t.Errorf("current price = %v, want %v", started.CurrentPrice, round.MinPrice)
	}
	if !f.broadcaster.has(events.TypeRoundStarted) {
		t.Error("round started event not published")
	}

	deadline, ok := f.orch.timers.InactivityDeadline(round.ID)
	if !ok {
		t.Fatal("inactivity timer not armed")
	}
	if want := f.clock.Now().Add(DefaultInactivityTimeout); !deadline.Equal(want) {
		t.Errorf("inactivity deadline = %v, want %v", deadline, want)
	}
}

func TestStartRoundNotPending(t *testing.T) {
	round := ascendingRound()
	round.Status = models.RoundStatusActive
	f := newFixture(t, Config{}, []*models.Round{round}, nil)

	if _, err := f.orch.StartRound(context.Background(), round.ID); !errors.Is(err, auction.ErrRoundNotPending) {
		t.Fatalf("err = %v, want ErrRoundNotPending", err)
	}
}

func TestStartRoundDescendingOpensAtStartingPrice(t *testing.T) {
	round := descendingRound()
	f := newFixture(t, Config{}, []*models.Round{round}, nil)

	started, err := f.orch.StartRound(context.Background(), round.ID)
	if err != nil {
		t.Fatalf("StartRound: %v", err)
	}
	if started.CurrentPrice == nil || *started.CurrentPrice != 1000 {
		t.Errorf("current price = %v, want 1000", started.CurrentPrice)
	}
}

func TestPresentationBlocksBidding(t *testing.T) {
	round := ascendingRound()
	round.PresentationDurationMs = 3000
	team := testTeam(10000)
	f := newFixture(t, Config{}, []*models.Round{round}, []*models.Team{team})

	if _, err := f.orch.StartRound(context.Background(), round.ID); err != nil {
		t.Fatalf("StartRound: %v", err)
	}
	if !f.broadcaster.has(events.TypePresentationStarted) {
		t.Error("presentation started event not published")
	}

	_, err := f.orch.PlaceBid(context.Background(), round.ID, team.ID, 200, nil)
	if !errors.Is(err, auction.ErrPresentationRunning) {
		t.Fatalf("err = %v, want ErrPresentationRunning", err)
	}

	f.clock.BlockUntil(1)
	f.clock.Advance(3 * time.Second)

	waitFor(t, func() bool { return f.broadcaster.has(events.TypePresentationEnded) },
		"presentation ended event not published")
	waitFor(t, func() bool {
		_, ok := f.orch.timers.InactivityDeadline(round.ID)
		return ok
	}, "inactivity timer not armed after presentation")

	if _, err := f.orch.PlaceBid(context.Background(), round.ID, team.ID, 200, nil); err != nil {
		t.Fatalf("PlaceBid after presentation: %v", err)
	}
}

func TestPlaceBidValidation(t *testing.T) {
	team := testTeam(500)

	tests := []struct {
		name    string
		round   func() *models.Round
		amount  float64
		wantErr error
	}{
		{
			name: "round not active",
			round: func() *models.Round {
				r := ascendingRound()
				return r
			},
			amount:  200,
			wantErr: auction.ErrRoundNotActive,
		},
		{
			name: "wrong kind",
			round: func() *models.Round {
				r := descendingRound()
				r.Status = models.RoundStatusActive
				r.CurrentPrice = floatPtr(1000)
				return r
			},
			amount:  200,
			wantErr: auction.ErrWrongRoundKind,
		},
		{
			name: "below minimum on fresh round",
			round: func() *models.Round {
				r := ascendingRound()
				r.Status = models.RoundStatusActive
				r.CurrentPrice = floatPtr(100)
				return r
			},
			amount:  140,
			wantErr: auction.ErrBidBelowMinimum,
		},
		{
			name: "below increment over standing bid",
			round: func() *models.Round {
				r := ascendingRound()
				r.Status = models.RoundStatusActive
				r.CurrentPrice = floatPtr(200)
				return r
			},
			amount:  249,
			wantErr: auction.ErrBidBelowMinimum,
		},
		{
			name: "insufficient balance",
			round: func() *models.Round {
				r := ascendingRound()
				r.Status = models.RoundStatusActive
				r.CurrentPrice = floatPtr(100)
				return r
			},
			amount:  600,
			wantErr: auction.ErrInsufficientBalance,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			round := tt.round()
			f := newFixture(t, Config{}, []*models.Round{round}, []*models.Team{team})

			_, err := f.orch.PlaceBid(context.Background(), round.ID, team.ID, tt.amount, nil)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("err = %v, want %v", err, tt.wantErr)
			}
			if len(f.rounds.bids) != 0 {
				t.Errorf("rejected bid was recorded")
			}
		})
	}
}

func TestPlaceBidAcceptsMinimum(t *testing.T) {
	round := ascendingRound()
	round.Status = models.RoundStatusActive
	round.CurrentPrice = floatPtr(100)
	team := testTeam(10000)
	f := newFixture(t, Config{}, []*models.Round{round}, []*models.Team{team})

	bid, err := f.orch.PlaceBid(context.Background(), round.ID, team.ID, 150, nil)
	if err != nil {
		t.Fatalf("PlaceBid: %v", err)
	}
	if bid.Seq != 1 {
		t.Errorf("seq = %d, want 1", bid.Seq)
	}
	if got := f.rounds.currentPrice(round.ID); got != 150 {
		t.Errorf("current price = %v, want 150", got)
	}
	if !f.broadcaster.has(events.TypeNewBid) {
		t.Error("new bid event not published")
	}
}

func TestPlaceBidStoreFailureMutatesNothing(t *testing.T) {
	round := ascendingRound()
	round.Status = models.RoundStatusActive
	round.CurrentPrice = floatPtr(100)
	team := testTeam(10000)
	f := newFixture(t, Config{}, []*models.Round{round}, []*models.Team{team})
	f.rounds.bidErr = errors.New("connection reset")

	if _, err := f.orch.PlaceBid(context.Background(), round.ID, team.ID, 150, nil); err == nil {
		t.Fatal("PlaceBid succeeded with failing store")
	}
	if got := f.rounds.bidCount(); got != 0 {
		t.Errorf("bid count = %d, want 0", got)
	}
	if got := f.rounds.currentPrice(round.ID); got != 100 {
		t.Errorf("current price = %v, want 100", got)
	}
	if f.broadcaster.has(events.TypeNewBid) {
		t.Error("new bid event published for rejected bid")
	}
}

func TestPlaceBidRearmsInactivityTimer(t *testing.T) {
	round := ascendingRound()
	team := testTeam(10000)
	f := newFixture(t, Config{InactivityTimeout: time.Minute}, []*models.Round{round}, []*models.Team{team})

	if _, err := f.orch.StartRound(context.Background(), round.ID); err != nil {
		t.Fatalf("StartRound: %v", err)
	}

	f.clock.BlockUntil(1)
	f.clock.Advance(30 * time.Second)

	if _, err := f.orch.PlaceBid(context.Background(), round.ID, team.ID, 150, nil); err != nil {
		t.Fatalf("PlaceBid: %v", err)
	}

	deadline, ok := f.orch.timers.InactivityDeadline(round.ID)
	if !ok {
		t.Fatal("inactivity timer not armed")
	}
	if want := f.clock.Now().Add(time.Minute); !deadline.Equal(want) {
		t.Errorf("deadline = %v, want %v (rearmed from the bid)", deadline, want)
	}
}

func TestInactivityAutoClose(t *testing.T) {
	round := ascendingRound()
	team := testTeam(10000)
	f := newFixture(t, Config{InactivityTimeout: time.Minute}, []*models.Round{round}, []*models.Team{team})

	if _, err := f.orch.StartRound(context.Background(), round.ID); err != nil {
		t.Fatalf("StartRound: %v", err)
	}
	if _, err := f.orch.PlaceBid(context.Background(), round.ID, team.ID, 150, nil); err != nil {
		t.Fatalf("PlaceBid: %v", err)
	}

	f.clock.BlockUntil(1)
	f.clock.Advance(time.Minute)

	waitFor(t, func() bool { return f.rounds.status(round.ID) == models.RoundStatusClosed },
		"round not auto-closed after inactivity timeout")

	if !f.broadcaster.has(events.TypeAutoCloseNotification) {
		t.Error("auto-close notification not published")
	}
	if f.settler.callCount() != 1 {
		t.Errorf("settle calls = %d, want 1", f.settler.callCount())
	}

	f.rounds.mu.Lock()
	winner := f.rounds.rounds[round.ID].WinnerID
	f.rounds.mu.Unlock()
	if winner == nil || *winner != team.ID {
		t.Errorf("winner = %v, want %v", winner, team.ID)
	}
}

// An inactivity expiry that loses the race against an explicit close is
// a no-op: the round settles exactly once.
func TestInactivityExpiryAfterCloseIsNoop(t *testing.T) {
	round := ascendingRound()
	team := testTeam(10000)
	f := newFixture(t, Config{InactivityTimeout: time.Minute}, []*models.Round{round}, []*models.Team{team})

	if _, err := f.orch.StartRound(context.Background(), round.ID); err != nil {
		t.Fatalf("StartRound: %v", err)
	}
	if _, err := f.orch.PlaceBid(context.Background(), round.ID, team.ID, 150, nil); err != nil {
		t.Fatalf("PlaceBid: %v", err)
	}
	if _, err := f.orch.CloseRound(context.Background(), round.ID); err != nil {
		t.Fatalf("CloseRound: %v", err)
	}

	// Fire the expiry callback directly, as a timer that already fired
	// before the cancel would.
	f.orch.onInactivityExpired(round.ID)

	if f.settler.callCount() != 1 {
		t.Errorf("settle calls = %d, want 1", f.settler.callCount())
	}
}

func TestCloseRoundWithoutBids(t *testing.T) {
	round := ascendingRound()
	round.Status = models.RoundStatusActive
	f := newFixture(t, Config{}, []*models.Round{round}, nil)

	closed, err := f.orch.CloseRound(context.Background(), round.ID)
	if err != nil {
		t.Fatalf("CloseRound: %v", err)
	}
	if closed.WinnerID != nil {
		t.Errorf("winner = %v, want none", closed.WinnerID)
	}
	if f.settler.callCount() != 0 {
		t.Errorf("settle calls = %d, want 0", f.settler.callCount())
	}
	if !f.broadcaster.has(events.TypeRoundClosed) {
		t.Error("round closed event not published")
	}
}

func TestCloseRoundSettlesLastBid(t *testing.T) {
	round := ascendingRound()
	round.Status = models.RoundStatusActive
	round.CurrentPrice = floatPtr(100)
	first := testTeam(10000)
	second := testTeam(10000)
	f := newFixture(t, Config{}, []*models.Round{round}, []*models.Team{first, second})

	if _, err := f.orch.PlaceBid(context.Background(), round.ID, first.ID, 150, nil); err != nil {
		t.Fatalf("first bid: %v", err)
	}
	if _, err := f.orch.PlaceBid(context.Background(), round.ID, second.ID, 200, nil); err != nil {
		t.Fatalf("second bid: %v", err)
	}

	closed, err := f.orch.CloseRound(context.Background(), round.ID)
	if err != nil {
		t.Fatalf("CloseRound: %v", err)
	}
	if closed.WinnerID == nil || *closed.WinnerID != second.ID {
		t.Errorf("winner = %v, want %v", closed.WinnerID, second.ID)
	}
	if closed.FinalPrice == nil || *closed.FinalPrice != 200 {
		t.Errorf("final price = %v, want 200", closed.FinalPrice)
	}
	if f.settler.callCount() != 1 || f.settler.calls[0].Amount != 200 {
		t.Errorf("settler calls = %+v, want one call for 200", f.settler.calls)
	}
}

func TestStopDescendingSettlesAtClientTimestampPrice(t *testing.T) {
	round := descendingRound()
	team := testTeam(10000)
	f := newFixture(t, Config{}, []*models.Round{round}, []*models.Team{team})

	startedAt := f.clock.Now()
	if _, err := f.orch.StartRound(context.Background(), round.ID); err != nil {
		t.Fatalf("StartRound: %v", err)
	}

	// Two full decrement intervals plus change have elapsed at the
	// moment the client pressed stop.
	stopAt := startedAt.Add(2500 * time.Millisecond)
	closed, err := f.orch.StopDescending(context.Background(), round.ID, team.ID, stopAt)
	if err != nil {
		t.Fatalf("StopDescending: %v", err)
	}

	if closed.Status != models.RoundStatusClosed {
		t.Errorf("status = %s, want CLOSED", closed.Status)
	}
	if closed.FinalPrice == nil || *closed.FinalPrice != 900 {
		t.Errorf("final price = %v, want 900", closed.FinalPrice)
	}
	if f.settler.callCount() != 1 || f.settler.calls[0].Amount != 900 {
		t.Errorf("settler calls = %+v, want one call for 900", f.settler.calls)
	}
	if len(f.rounds.bids) != 1 || f.rounds.bids[0].Amount != 900 {
		t.Errorf("bids = %+v, want one bid for 900", f.rounds.bids)
	}
	if !f.broadcaster.has(events.TypeRoundClosed) {
		t.Error("round closed event not published")
	}
	if !f.broadcaster.has(events.TypeTeamsUpdated) {
		t.Error("teams updated event not published")
	}
}

func TestStopDescendingSettlementFailureKeepsRoundActive(t *testing.T) {
	round := descendingRound()
	team := testTeam(10000)
	f := newFixture(t, Config{}, []*models.Round{round}, []*models.Team{team})
	f.settler.err = errors.New("ledger unavailable")

	startedAt := f.clock.Now()
	if _, err := f.orch.StartRound(context.Background(), round.ID); err != nil {
		t.Fatalf("StartRound: %v", err)
	}

	_, err := f.orch.StopDescending(context.Background(), round.ID, team.ID, startedAt.Add(time.Second))
	if err == nil {
		t.Fatal("StopDescending succeeded despite settlement failure")
	}

	if got := f.rounds.status(round.ID); got != models.RoundStatusActive {
		t.Errorf("status = %s, want ACTIVE after failed settlement", got)
	}
	if _, ok := f.orch.timers.InactivityDeadline(round.ID); !ok {
		t.Error("inactivity timer cancelled despite failed settlement")
	}
}

func TestStopDescendingWrongKind(t *testing.T) {
	round := ascendingRound()
	round.Status = models.RoundStatusActive
	team := testTeam(10000)
	f := newFixture(t, Config{}, []*models.Round{round}, []*models.Team{team})

	_, err := f.orch.StopDescending(context.Background(), round.ID, team.ID, f.clock.Now())
	if !errors.Is(err, auction.ErrWrongRoundKind) {
		t.Fatalf("err = %v, want ErrWrongRoundKind", err)
	}
}

func TestSetInactivityTimeoutBounds(t *testing.T) {
	f := newFixture(t, Config{}, nil, nil)

	tests := []struct {
		minutes float64
		wantErr bool
	}{
		{0.4, true},  // below the 30s floor
		{0.5, false}, // exactly the floor
		{5, false},
		{30, false}, // exactly the ceiling
		{31, true},
	}

	for _, tt := range tests {
		err := f.orch.SetInactivityTimeout(context.Background(), tt.minutes)
		if tt.wantErr && !errors.Is(err, auction.ErrTimeoutOutOfRange) {
			t.Errorf("SetInactivityTimeout(%v) = %v, want ErrTimeoutOutOfRange", tt.minutes, err)
		}
		if !tt.wantErr && err != nil {
			t.Errorf("SetInactivityTimeout(%v) = %v, want nil", tt.minutes, err)
		}
	}

	if got := f.orch.InactivityTimeout(); got != 30*time.Minute {
		t.Errorf("timeout = %v, want 30m from last accepted update", got)
	}
	if !f.broadcaster.has(events.TypeTimeoutUpdated) {
		t.Error("timeout updated event not published")
	}
}

func TestPriceDecayClampsAtFloorWithoutClosing(t *testing.T) {
	round := descendingRound()
	round.StartingPrice = floatPtr(200)
	round.PriceDecrement = floatPtr(60)
	f := newFixture(t, Config{}, []*models.Round{round}, nil)

	if _, err := f.orch.StartRound(context.Background(), round.ID); err != nil {
		t.Fatalf("StartRound: %v", err)
	}

	// Inactivity timer plus decay ticker are both waiting on the clock.
	f.clock.BlockUntil(2)

	f.clock.Advance(time.Second)
	waitFor(t, func() bool { return f.rounds.currentPrice(round.ID) == 140 }, "price not decayed to 140")

	f.clock.BlockUntil(2)
	f.clock.Advance(time.Second)
	waitFor(t, func() bool { return f.rounds.currentPrice(round.ID) == 100 }, "price not clamped to floor")

	// The floor stops the ticker but never closes the round.
	if got := f.rounds.status(round.ID); got != models.RoundStatusActive {
		t.Errorf("status = %s, want ACTIVE at price floor", got)
	}
	if !f.broadcaster.has(events.TypePriceUpdate) {
		t.Error("price update events not published")
	}
}
