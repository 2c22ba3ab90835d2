package tournament

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/ClawGameArena/ClawGame/internal/pkg/agent"
	"github.com/ClawGameArena/ClawGame/internal/pkg/commitment"
	"github.com/ClawGameArena/ClawGame/internal/pkg/common"
	"github.com/ClawGameArena/ClawGame/internal/pkg/notify"
	"github.com/ClawGameArena/ClawGame/internal/pkg/payment"
	"github.com/ClawGameArena/ClawGame/internal/pkg/types"
	"github.com/decred/slog"
	ethcommon "github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/samber/do/v2"
	"golang.org/x/sync/errgroup"
)

const (
	ReasonOperator  = "OperatorCancelled"
	ReasonExpired   = "RegistrationExpired"
	ReasonStalled   = "Stalled"
	ReasonNoReveals = "NoRevealsDeriverAborted"
)

// Store durably records tournaments, per-round ledgers and the audit log.
type Store interface {
	NextTournamentID() (types.TournamentID, error)
	SaveTournament(t *Tournament) error
	LoadTournaments() ([]*Tournament, error)
	SaveLedgerRecord(id types.TournamentID, round int, rec commitment.Record) error
	LoadLedger(id types.TournamentID, round int) ([]commitment.Record, error)
	AppendAudit(rec AuditRecord) error
	Audit(id types.TournamentID) ([]AuditRecord, error)
}

type Agents interface {
	Get(id types.AgentID) (agent.Agent, error)
}

type Config struct {
	Capacity        int
	MaxRounds       int
	CommitDuration  time.Duration
	RevealDuration  time.Duration
	ResolutionPause time.Duration
	CancelAfter     time.Duration
}

func DefaultConfig() Config {
	return Config{
		Capacity:        types.DefaultCapacity,
		MaxRounds:       types.MaxRounds,
		CommitDuration:  5 * time.Minute,
		RevealDuration:  5 * time.Minute,
		ResolutionPause: 30 * time.Second,
		CancelAfter:     7 * 24 * time.Hour,
	}
}

type Deps struct {
	Store    Store
	Agents   Agents
	Payments payment.Collaborator
	Sink     notify.Sink
	Log      slog.Logger
	Now      func() time.Time
}

type instance struct {
	mu sync.RWMutex
	t  *Tournament
}

// EngineService is the registry of tournament instances. Each instance
// serializes its own transitions; submissions only take its read lock.
type EngineService struct {
	cfg Config

	store    Store
	agents   Agents
	payments payment.Collaborator
	sink     notify.Sink
	log      slog.Logger
	now      func() time.Time

	mu        sync.RWMutex
	instances map[types.TournamentID]*instance
}

func NewEngineService(i do.Injector) (*EngineService, error) {
	cfg := Config{
		Capacity:        do.MustInvokeNamed[int](i, "capacity"),
		MaxRounds:       do.MustInvokeNamed[int](i, "max-rounds"),
		CommitDuration:  do.MustInvokeNamed[time.Duration](i, "commit-duration"),
		RevealDuration:  do.MustInvokeNamed[time.Duration](i, "reveal-duration"),
		ResolutionPause: do.MustInvokeNamed[time.Duration](i, "resolution-pause"),
		CancelAfter:     do.MustInvokeNamed[time.Duration](i, "cancel-after"),
	}

	deps := Deps{
		Store:    do.MustInvoke[Store](i),
		Agents:   do.MustInvoke[*agent.RegistryService](i),
		Payments: do.MustInvoke[payment.Collaborator](i),
		Sink:     do.MustInvoke[notify.Sink](i),
		Log:      do.MustInvoke[*common.LogService](i).Logger("ENGN"),
	}

	return NewEngine(cfg, deps)
}

var ErrInvalidConfig = errors.New("invalid engine config")

// NewEngine loads every persisted tournament with its ledgers and resumes
// from the last durably recorded phase.
func NewEngine(cfg Config, deps Deps) (*EngineService, error) {
	if cfg.Capacity < 2 || cfg.Capacity > types.MaxCapacity {
		return nil, fmt.Errorf("%w: capacity %d", ErrInvalidConfig, cfg.Capacity)
	}

	if cfg.MaxRounds < 1 || cfg.MaxRounds > types.MaxRounds {
		return nil, fmt.Errorf("%w: max rounds %d", ErrInvalidConfig, cfg.MaxRounds)
	}

	if deps.Now == nil {
		deps.Now = time.Now
	}

	if deps.Log == nil {
		deps.Log = slog.Disabled
	}

	e := &EngineService{
		cfg:       cfg,
		store:     deps.Store,
		agents:    deps.Agents,
		payments:  deps.Payments,
		sink:      deps.Sink,
		log:       deps.Log,
		now:       deps.Now,
		instances: map[types.TournamentID]*instance{},
	}

	tournaments, err := e.store.LoadTournaments()
	if err != nil {
		return nil, fmt.Errorf("failed to load tournaments: %w", err)
	}

	for _, t := range tournaments {
		for _, r := range t.Rounds {
			records, err := e.store.LoadLedger(t.ID, r.Number)
			if err != nil {
				return nil, fmt.Errorf("failed to load ledger of tournament %d round %d: %w", t.ID, r.Number, err)
			}

			r.ledger = commitment.NewLedger()
			for _, rec := range records {
				r.ledger.Restore(rec)
			}
		}

		if t.Settlement != nil && t.Settlement.State == SettlementPending {
			e.log.Warnf("Tournament %d: %s settlement was pending at shutdown, needs operator retry",
				t.ID, t.Settlement.Kind)
		}

		e.instances[t.ID] = &instance{t: t}
	}

	e.log.Infof("Loaded %d tournaments", len(tournaments))

	return e, nil
}

func (e *EngineService) Config() Config {
	return e.cfg
}

func (e *EngineService) get(id types.TournamentID) (*instance, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	inst, ok := e.instances[id]
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrTournamentNotFound, id)
	}

	return inst, nil
}

func (e *EngineService) snapshot() []*instance {
	e.mu.RLock()
	defer e.mu.RUnlock()

	result := make([]*instance, 0, len(e.instances))
	for _, inst := range e.instances {
		result = append(result, inst)
	}

	return result
}

func (e *EngineService) persist(t *Tournament) error {
	err := e.store.SaveTournament(t)
	if err != nil {
		return fmt.Errorf("%w: tournament %d: %w", ErrPersist, t.ID, err)
	}

	return nil
}

func (e *EngineService) event(eventType notify.EventType, t *Tournament, now time.Time) notify.Event {
	ev := notify.NewEvent(eventType, t.ID, now)
	ev.Arena = t.Arena
	ev.Status = string(t.Status)
	ev.Round = t.CurrentRound

	return ev
}

func (e *EngineService) publish(ctx context.Context, events []notify.Event) {
	for _, ev := range events {
		err := e.sink.Publish(ctx, ev)
		if err != nil {
			e.log.Warnf("Failed to publish %s for tournament %d: %v", ev.Type, ev.TournamentID, err)
		}
	}
}

// apply builds the next state on a clone, persists it and swaps it in, so a
// failed transition leaves no trace. A transition into a terminal state
// triggers its settlement. Caller holds inst.mu for writing.
func (e *EngineService) apply(
	ctx context.Context,
	inst *instance,
	mutate func(next *Tournament) ([]notify.Event, error),
) error {
	next := inst.t.clone()

	events, err := mutate(next)
	if err != nil {
		return err
	}

	err = e.persist(next)
	if err != nil {
		return err
	}

	inst.t = next
	e.publish(ctx, events)

	if s := next.Settlement; s != nil && s.State == SettlementPending {
		return e.settle(ctx, inst)
	}

	return nil
}

func (e *EngineService) Create(ctx context.Context, arena types.Arena, entryFee *uint256.Int) (*Tournament, error) {
	if !arena.Valid() {
		return nil, fmt.Errorf("%w: %d", types.ErrUnknownArena, arena)
	}

	if entryFee == nil {
		entryFee = new(uint256.Int)
	}

	id, err := e.store.NextTournamentID()
	if err != nil {
		return nil, fmt.Errorf("%w: failed to allocate tournament id: %w", ErrPersist, err)
	}

	now := e.now()

	t := &Tournament{
		ID:        id,
		Arena:     arena,
		EntryFee:  entryFee.Dec(),
		Capacity:  e.cfg.Capacity,
		MaxRounds: e.cfg.MaxRounds,
		Status:    StatusOpen,
		Entries:   []Entry{},
		Rounds:    []*Round{},
		CreatedAt: now,
		UpdatedAt: now,
	}

	err = e.persist(t)
	if err != nil {
		return nil, err
	}

	e.mu.Lock()
	e.instances[id] = &instance{t: t}
	e.mu.Unlock()

	e.log.Infof("Tournament %d opened in %s arena, entry fee %s", id, arena, t.EntryFee)
	e.publish(ctx, []notify.Event{e.event(notify.EventTournamentCreated, t, now)})

	return t.clone(), nil
}

// Join admits an active agent after its deposit is confirmed. Reaching
// capacity starts round 1.
func (e *EngineService) Join(ctx context.Context, id types.TournamentID, agentID types.AgentID) (*Tournament, error) {
	inst, err := e.get(id)
	if err != nil {
		return nil, err
	}

	a, err := e.agents.Get(agentID)
	if err != nil {
		return nil, fmt.Errorf("failed to look up agent: %w", err)
	}

	if !a.Active() {
		return nil, fmt.Errorf("%w: agent %d is %s", ErrAgentInactive, agentID, a.Status)
	}

	inst.mu.Lock()
	defer inst.mu.Unlock()

	t := inst.t

	switch {
	case t.Status.Terminal():
		return nil, fmt.Errorf("%w: tournament %d is %s", ErrTournamentTerminal, id, t.Status)
	case t.Status != StatusOpen:
		return nil, fmt.Errorf("%w: tournament %d is %s", ErrNotOpen, id, t.Status)
	case t.Entry(agentID) != nil:
		return nil, fmt.Errorf("%w: agent %d in tournament %d", ErrAlreadyJoined, agentID, id)
	case len(t.Entries) >= t.Capacity:
		return nil, fmt.Errorf("%w: %d players", ErrTournamentFull, len(t.Entries))
	}

	receipt, err := e.payments.Deposit(ctx, payment.DepositRequest{
		TournamentID: id,
		AgentID:      agentID,
		Wallet:       a.Wallet,
		Amount:       t.Fee(),
	})
	if err != nil {
		return nil, fmt.Errorf("%w: deposit of agent %d: %w", ErrPaymentNotConfirmed, agentID, err)
	}

	now := e.now()

	err = e.apply(ctx, inst, func(next *Tournament) ([]notify.Event, error) {
		next.Entries = append(next.Entries, Entry{
			AgentID:    agentID,
			Wallet:     a.Wallet,
			Creator:    creatorOf(a),
			JoinedAt:   now,
			DepositRef: receipt.Reference,
			Alive:      true,
		})
		next.UpdatedAt = now

		joined := e.event(notify.EventPlayerJoined, next, now)
		joined.AgentID = agentID
		joined.PlayerCount = len(next.Entries)

		events := []notify.Event{joined}

		if len(next.Entries) == next.Capacity {
			started, err := e.startRound(next, 1, now)
			if err != nil {
				return nil, err
			}

			events = append(events, started...)
		}

		return events, nil
	})
	if err != nil {
		e.log.Criticalf("Tournament %d: deposit %s of agent %d confirmed but join not recorded: %v",
			id, receipt.Reference, agentID, err)

		return nil, err
	}

	e.log.Infof("Agent %d joined tournament %d (%d/%d)", agentID, id, len(inst.t.Entries), inst.t.Capacity)

	return inst.t.clone(), nil
}

func creatorOf(a agent.Agent) ethcommon.Address {
	if a.Creator == (ethcommon.Address{}) {
		return a.Wallet
	}

	return a.Creator
}

// Start is the operator override that begins round 1 before capacity is
// reached.
func (e *EngineService) Start(ctx context.Context, id types.TournamentID) (*Tournament, error) {
	inst, err := e.get(id)
	if err != nil {
		return nil, err
	}

	inst.mu.Lock()
	defer inst.mu.Unlock()

	t := inst.t

	switch {
	case t.Status.Terminal():
		return nil, fmt.Errorf("%w: tournament %d is %s", ErrTournamentTerminal, id, t.Status)
	case t.Status != StatusOpen:
		return nil, fmt.Errorf("%w: tournament %d is %s", ErrNotOpen, id, t.Status)
	case len(t.Entries) < 2:
		return nil, fmt.Errorf("%w: %d players", ErrNotEnoughPlayers, len(t.Entries))
	}

	now := e.now()

	err = e.apply(ctx, inst, func(next *Tournament) ([]notify.Event, error) {
		return e.startRound(next, 1, now)
	})
	if err != nil {
		return nil, err
	}

	return inst.t.clone(), nil
}

// Cancel is the operator override. Only open tournaments can be cancelled
// this way.
func (e *EngineService) Cancel(ctx context.Context, id types.TournamentID, reason string) (*Tournament, error) {
	inst, err := e.get(id)
	if err != nil {
		return nil, err
	}

	inst.mu.Lock()
	defer inst.mu.Unlock()

	t := inst.t

	switch {
	case t.Status.Terminal():
		return nil, fmt.Errorf("%w: tournament %d is %s", ErrTournamentTerminal, id, t.Status)
	case t.Status != StatusOpen:
		return nil, fmt.Errorf("%w: tournament %d is %s", ErrNotOpen, id, t.Status)
	}

	if reason == "" {
		reason = ReasonOperator
	}

	now := e.now()

	err = e.apply(ctx, inst, func(next *Tournament) ([]notify.Event, error) {
		return e.cancel(next, reason, now)
	})

	// The cancellation itself is durable even when the refund was not confirmed.
	if inst.t.Status == StatusCancelled {
		return inst.t.clone(), err
	}

	return nil, err
}

// RetrySettlement replays the recorded distribution or refund. The outcome
// is never recomputed.
func (e *EngineService) RetrySettlement(ctx context.Context, id types.TournamentID) (*Tournament, error) {
	inst, err := e.get(id)
	if err != nil {
		return nil, err
	}

	inst.mu.Lock()
	defer inst.mu.Unlock()

	s := inst.t.Settlement
	if s == nil || s.State == SettlementConfirmed {
		return nil, fmt.Errorf("%w: tournament %d", ErrNothingToSettle, id)
	}

	e.log.Infof("Tournament %d: retrying %s settlement (attempt %d)", id, s.Kind, s.Attempts+1)

	err = e.settle(ctx, inst)

	return inst.t.clone(), err
}

func (e *EngineService) startRound(next *Tournament, number int, now time.Time) ([]notify.Event, error) {
	err := next.transition(StatusCommit, now)
	if err != nil {
		return nil, err
	}

	players := next.Alive()

	next.Rounds = append(next.Rounds, &Round{
		Number:         number,
		Phase:          PhaseCommit,
		Players:        players,
		CommitDeadline: now.Add(e.cfg.CommitDuration),
		ledger:         commitment.NewLedger(),
	})
	next.CurrentRound = number
	next.NextRoundAt = time.Time{}

	if number == 1 {
		next.StartedAt = now
		next.markFinalists()
	}

	e.log.Infof("Tournament %d: round %d commit phase with %d players", next.ID, number, len(players))

	ev := e.event(notify.EventPhaseChanged, next, now)
	ev.PlayerCount = len(players)

	return []notify.Event{ev}, nil
}

func (e *EngineService) cancel(next *Tournament, reason string, now time.Time) ([]notify.Event, error) {
	err := next.transition(StatusCancelled, now)
	if err != nil {
		return nil, err
	}

	next.CancelReason = reason
	next.FinishedAt = now
	next.Settlement = &Settlement{
		Kind:      SettlementRefund,
		State:     SettlementPending,
		UpdatedAt: now,
	}

	e.log.Warnf("Tournament %d cancelled: %s", next.ID, reason)

	ev := e.event(notify.EventTournamentCancelled, next, now)
	ev.Reason = reason
	ev.PlayerCount = len(next.Entries)

	return []notify.Event{ev}, nil
}

func (e *EngineService) finish(next *Tournament, forced bool, now time.Time) ([]notify.Event, error) {
	outcome, err := next.decideOutcome(forced)
	if err != nil {
		return nil, err
	}

	err = next.transition(StatusFinished, now)
	if err != nil {
		return nil, err
	}

	next.Outcome = outcome
	next.FinishedAt = now
	next.Settlement = &Settlement{
		Kind:      SettlementDistribute,
		State:     SettlementPending,
		UpdatedAt: now,
	}

	e.log.Infof("Tournament %d finished after round %d: winner %d, finalists %v, forced %t",
		next.ID, next.CurrentRound, outcome.Winner, outcome.Finalists, forced)

	ev := e.event(notify.EventTournamentFinished, next, now)
	ev.Winner = outcome.Winner
	ev.Finalists = outcome.Finalists
	ev.Forced = forced
	ev.Payouts = outcome.Payouts

	return []notify.Event{ev}, nil
}

func (e *EngineService) resolve(next *Tournament, now time.Time) ([]notify.Event, error) {
	round := next.Round()
	records := round.ledger.Records()

	result, err := Evaluate(round.Players, records)
	if err != nil {
		return nil, err
	}

	err = next.applyResult(result)
	if err != nil {
		return nil, err
	}

	round.ResolvedAt = now

	err = e.store.AppendAudit(newAuditRecord(next, records))
	if err != nil {
		return nil, fmt.Errorf("%w: audit of tournament %d round %d: %w", ErrPersist, next.ID, round.Number, err)
	}

	e.log.Infof("Tournament %d: round %d secret %d, %d survive, %d eliminated",
		next.ID, round.Number, result.Secret, len(result.Survivors), len(result.Eliminated))

	resolved := e.event(notify.EventRoundResolved, next, now)
	resolved.Secret = result.Secret
	resolved.Survivors = result.Survivors
	resolved.Eliminated = result.Eliminated

	events := []notify.Event{resolved}

	var more []notify.Event

	switch {
	case len(result.Survivors) == 1:
		more, err = e.finish(next, false, now)
	case round.Number >= next.MaxRounds:
		more, err = e.finish(next, true, now)
	default:
		more, err = e.pause(next, now)
	}

	if err != nil {
		return nil, err
	}

	return append(events, more...), nil
}

func (e *EngineService) pause(next *Tournament, now time.Time) ([]notify.Event, error) {
	err := next.transition(StatusActiveNextRound, now)
	if err != nil {
		return nil, err
	}

	next.NextRoundAt = now.Add(e.cfg.ResolutionPause)

	events := []notify.Event{e.event(notify.EventPhaseChanged, next, now)}

	if e.cfg.ResolutionPause > 0 {
		return events, nil
	}

	started, err := e.startRound(next, next.CurrentRound+1, now)
	if err != nil {
		return nil, err
	}

	return append(events, started...), nil
}

func (e *EngineService) settle(ctx context.Context, inst *instance) error {
	t := inst.t

	var (
		receipt payment.Receipt
		err     error
	)

	switch t.Settlement.Kind {
	case SettlementDistribute:
		receipt, err = e.payments.Distribute(ctx, t.ID, t.Outcome.Distribution)
	case SettlementRefund:
		receipt, err = e.payments.RefundAll(ctx, t.ID)
	}

	now := e.now()
	next := t.clone()

	s := next.Settlement
	s.Attempts++
	s.UpdatedAt = now

	var events []notify.Event

	if err != nil {
		s.State = SettlementFailed
		s.Error = err.Error()

		e.log.Criticalf("Tournament %d: %s not confirmed, manual reconciliation required: %v", t.ID, s.Kind, err)

		ev := e.event(notify.EventSettlementFailed, next, now)
		ev.Reason = err.Error()
		events = append(events, ev)
	} else {
		s.State = SettlementConfirmed
		s.Reference = receipt.Reference
		s.Error = ""

		e.log.Infof("Tournament %d: %s confirmed, reference %s", t.ID, s.Kind, receipt.Reference)
	}

	perr := e.persist(next)

	// The external call happened either way; memory must reflect it.
	inst.t = next

	e.publish(ctx, events)

	if perr != nil {
		e.log.Criticalf("Tournament %d: settlement state not recorded: %v", t.ID, perr)

		return errors.Join(perr, err)
	}

	if err != nil {
		return fmt.Errorf("%w: tournament %d %s: %w", ErrPaymentNotConfirmed, t.ID, strings.ToLower(string(s.Kind)), err)
	}

	return nil
}

// step applies the first due transition. It reports whether anything
// changed so the caller can catch up on several overdue deadlines.
func (e *EngineService) step(ctx context.Context, inst *instance, now time.Time) (bool, error) {
	t := inst.t

	switch {
	case t.Status.Terminal():
		return false, nil

	case t.Status == StatusOpen && now.Sub(t.CreatedAt) >= e.cfg.CancelAfter:
		return true, e.apply(ctx, inst, func(next *Tournament) ([]notify.Event, error) {
			return e.cancel(next, ReasonExpired, now)
		})

	case t.Status.InPlay() && now.Sub(t.UpdatedAt) >= e.cfg.CancelAfter:
		return true, e.apply(ctx, inst, func(next *Tournament) ([]notify.Event, error) {
			return e.cancel(next, ReasonStalled, now)
		})

	case t.Status == StatusCommit && !now.Before(t.Round().CommitDeadline):
		return true, e.apply(ctx, inst, func(next *Tournament) ([]notify.Event, error) {
			err := next.transition(StatusReveal, now)
			if err != nil {
				return nil, err
			}

			round := next.Round()
			round.Phase = PhaseReveal
			round.RevealDeadline = now.Add(e.cfg.RevealDuration)

			e.log.Infof("Tournament %d: round %d reveal phase, %d commitments",
				next.ID, round.Number, len(round.ledger.Records()))

			return []notify.Event{e.event(notify.EventPhaseChanged, next, now)}, nil
		})

	case t.Status == StatusReveal && !now.Before(t.Round().RevealDeadline):
		var aborted error

		err := e.apply(ctx, inst, func(next *Tournament) ([]notify.Event, error) {
			events, err := e.resolve(next, now)
			if errors.Is(err, ErrNoRevealsDeriverAborted) {
				aborted = fmt.Errorf("tournament %d round %d: %w", next.ID, next.CurrentRound, err)

				return e.cancel(next, ReasonNoReveals, now)
			}

			return events, err
		})

		return true, errors.Join(aborted, err)

	case t.Status == StatusActiveNextRound && !now.Before(t.NextRoundAt):
		return true, e.apply(ctx, inst, func(next *Tournament) ([]notify.Event, error) {
			return e.startRound(next, next.CurrentRound+1, now)
		})
	}

	return false, nil
}

// CheckAndAdvance applies every transition of one tournament that is due at
// now.
func (e *EngineService) CheckAndAdvance(ctx context.Context, id types.TournamentID, now time.Time) error {
	inst, err := e.get(id)
	if err != nil {
		return err
	}

	inst.mu.Lock()
	defer inst.mu.Unlock()

	// open, every round's three phases, and the terminal transition
	for range 3*types.MaxRounds + 2 {
		advanced, err := e.step(ctx, inst, now)
		if err != nil {
			return err
		}

		if !advanced {
			return nil
		}
	}

	return nil
}

// CheckAll advances every tournament in parallel. A failing tournament does
// not stop the others.
func (e *EngineService) CheckAll(ctx context.Context, now time.Time) error {
	var (
		g    errgroup.Group
		mu   sync.Mutex
		errs []error
	)

	g.SetLimit(8)

	for _, inst := range e.snapshot() {
		id := inst.id()

		g.Go(func() error {
			err := e.CheckAndAdvance(ctx, id, now)
			if err != nil {
				e.log.Errorf("Tournament %d: %v", id, err)

				mu.Lock()
				errs = append(errs, err)
				mu.Unlock()
			}

			return nil
		})
	}

	_ = g.Wait()

	return errors.Join(errs...)
}

func (inst *instance) id() types.TournamentID {
	inst.mu.RLock()
	defer inst.mu.RUnlock()

	return inst.t.ID
}

func (e *EngineService) rejected(op string, id types.TournamentID, agentID types.AgentID, err error) error {
	if Classify(err) == ClassIntegrity {
		e.log.Warnf("Cheating signal: %s by agent %d in tournament %d: %v", op, agentID, id, err)
	} else {
		e.log.Debugf("Rejected %s by agent %d in tournament %d: %v", op, agentID, id, err)
	}

	return err
}

// gate checks that a submission targets the current round in the wanted
// status before its deadline. Caller holds inst.mu for reading.
func gate(t *Tournament, status Status, roundNumber int, agentID types.AgentID, now time.Time) (*Round, error) {
	if t.Status.Terminal() {
		return nil, fmt.Errorf("%w: tournament %d is %s", ErrTournamentTerminal, t.ID, t.Status)
	}

	round := t.Round()
	if t.Status != status || round == nil || round.Number != roundNumber {
		return nil, fmt.Errorf("%w: tournament %d is %s in round %d", ErrPhaseMismatch, t.ID, t.Status, t.CurrentRound)
	}

	if !round.HasPlayer(agentID) {
		return nil, fmt.Errorf("%w: agent %d in round %d", ErrNotEligible, agentID, roundNumber)
	}

	deadline := round.CommitDeadline
	if status == StatusReveal {
		deadline = round.RevealDeadline
	}

	if !now.Before(deadline) {
		return nil, fmt.Errorf("%w: %s deadline was %s", ErrDeadlinePassed, strings.ToLower(string(status)),
			deadline.UTC().Format(time.RFC3339))
	}

	return round, nil
}

// SubmitCommit stores an agent's commitment hash. Concurrent submissions
// for the same agent race on the ledger; exactly one wins.
func (e *EngineService) SubmitCommit(
	_ context.Context,
	id types.TournamentID,
	roundNumber int,
	agentID types.AgentID,
	hash ethcommon.Hash,
) error {
	inst, err := e.get(id)
	if err != nil {
		return err
	}

	inst.mu.RLock()
	defer inst.mu.RUnlock()

	round, err := gate(inst.t, StatusCommit, roundNumber, agentID, e.now())
	if err != nil {
		return e.rejected("commit", id, agentID, err)
	}

	undo, err := round.ledger.Commit(agentID, hash)
	if err != nil {
		return e.rejected("commit", id, agentID, err)
	}

	rec, _ := round.ledger.Record(agentID)

	err = e.store.SaveLedgerRecord(id, roundNumber, rec)
	if err != nil {
		undo()

		return fmt.Errorf("%w: commitment of agent %d: %w", ErrPersist, agentID, err)
	}

	e.log.Debugf("Tournament %d round %d: agent %d committed", id, roundNumber, agentID)

	return nil
}

// SubmitReveal verifies (value, salt) against the agent's commitment.
// Re-submitting an accepted pair is a no-op.
func (e *EngineService) SubmitReveal(
	_ context.Context,
	id types.TournamentID,
	roundNumber int,
	agentID types.AgentID,
	value int,
	salt []byte,
) error {
	inst, err := e.get(id)
	if err != nil {
		return err
	}

	inst.mu.RLock()
	defer inst.mu.RUnlock()

	round, err := gate(inst.t, StatusReveal, roundNumber, agentID, e.now())
	if err != nil {
		return e.rejected("reveal", id, agentID, err)
	}

	pending, err := round.ledger.Reveal(agentID, value, salt)
	if err != nil {
		return e.rejected("reveal", id, agentID, err)
	}

	if pending == nil {
		return nil
	}

	rec, _ := round.ledger.Record(agentID)

	err = e.store.SaveLedgerRecord(id, roundNumber, rec)
	if err != nil {
		pending.Abort()

		return fmt.Errorf("%w: reveal of agent %d: %w", ErrPersist, agentID, err)
	}

	pending.Confirm()

	e.log.Debugf("Tournament %d round %d: agent %d revealed", id, roundNumber, agentID)

	return nil
}

func (e *EngineService) Tournament(id types.TournamentID) (*Tournament, error) {
	inst, err := e.get(id)
	if err != nil {
		return nil, err
	}

	inst.mu.RLock()
	defer inst.mu.RUnlock()

	return inst.t.clone(), nil
}

// List returns matching tournaments, newest first.
func (e *EngineService) List(filter ListFilter) []*Tournament {
	result := []*Tournament{}

	for _, inst := range e.snapshot() {
		inst.mu.RLock()
		if filter.match(inst.t) {
			result = append(result, inst.t.clone())
		}
		inst.mu.RUnlock()
	}

	slices.SortFunc(result, func(a, b *Tournament) int {
		return cmp.Compare(b.ID, a.ID)
	})

	if filter.Limit > 0 && len(result) > filter.Limit {
		result = result[:filter.Limit]
	}

	return result
}

// Current is the newest tournament of arena that has not ended.
func (e *EngineService) Current(arena types.Arena) (*Tournament, bool) {
	for _, t := range e.List(ListFilter{Arena: &arena}) {
		if !t.Status.Terminal() {
			return t, true
		}
	}

	return nil, false
}

func (e *EngineService) InPlay() bool {
	for _, inst := range e.snapshot() {
		inst.mu.RLock()
		inPlay := inst.t.Status.InPlay()
		inst.mu.RUnlock()

		if inPlay {
			return true
		}
	}

	return false
}

func (e *EngineService) PlayerStatus(id types.TournamentID, agentID types.AgentID) (PlayerStatus, error) {
	inst, err := e.get(id)
	if err != nil {
		return PlayerStatus{}, err
	}

	inst.mu.RLock()
	defer inst.mu.RUnlock()

	t := inst.t

	result := PlayerStatus{
		TournamentID: id,
		AgentID:      agentID,
		Status:       t.Status,
		Round:        t.CurrentRound,
	}

	entry := t.Entry(agentID)
	if entry == nil {
		return result, nil
	}

	result.Registered = true
	result.Alive = entry.Alive
	result.Finalist = entry.Finalist
	result.EliminatedRound = entry.EliminatedRound
	result.CumulativeDistance = entry.CumulativeDistance

	if round := t.Round(); round != nil {
		result.Committed = round.ledger.Committed(agentID)
		result.Revealed = round.ledger.Revealed(agentID)
	}

	if t.Outcome != nil {
		if rank := slices.Index(t.Outcome.Ranking, agentID); rank >= 0 {
			result.FinalRank = rank + 1
		}
	}

	return result, nil
}

func (e *EngineService) Audit(id types.TournamentID) ([]AuditRecord, error) {
	_, err := e.get(id)
	if err != nil {
		return nil, err
	}

	records, err := e.store.Audit(id)
	if err != nil {
		return nil, fmt.Errorf("failed to read audit log of tournament %d: %w", id, err)
	}

	return records, nil
}

// NextDeadline is the earliest time at which CheckAndAdvance has work to do.
func (e *EngineService) NextDeadline() (time.Time, bool) {
	var (
		next  time.Time
		found bool
	)

	for _, inst := range e.snapshot() {
		inst.mu.RLock()
		t := inst.t

		var due time.Time

		switch t.Status {
		case StatusOpen:
			due = t.CreatedAt.Add(e.cfg.CancelAfter)
		case StatusCommit:
			due = t.Round().CommitDeadline
		case StatusReveal:
			due = t.Round().RevealDeadline
		case StatusActiveNextRound:
			due = t.NextRoundAt
		}

		inst.mu.RUnlock()

		if due.IsZero() {
			continue
		}

		if !found || due.Before(next) {
			next, found = due, true
		}
	}

	return next, found
}
