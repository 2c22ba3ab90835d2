package tournament_test

import (
	"cmp"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"slices"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ClawGameArena/ClawGame/internal/pkg/agent"
	"github.com/ClawGameArena/ClawGame/internal/pkg/commitment"
	"github.com/ClawGameArena/ClawGame/internal/pkg/notify"
	"github.com/ClawGameArena/ClawGame/internal/pkg/payment"
	"github.com/ClawGameArena/ClawGame/internal/pkg/tournament"
	"github.com/ClawGameArena/ClawGame/internal/pkg/types"
	ethcommon "github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/require"
)

const fee = 1000

var errInjected = errors.New("injected failure")

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.now
}

func (c *clock) Advance(d time.Duration) time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.now = c.now.Add(d)

	return c.now
}

type agents map[types.AgentID]agent.Agent

func (a agents) Get(id types.AgentID) (agent.Agent, error) {
	result, ok := a[id]
	if !ok {
		return agent.Agent{}, fmt.Errorf("%w: %d", agent.ErrNotFound, id)
	}

	return result, nil
}

func wallet(id types.AgentID) ethcommon.Address {
	return ethcommon.BigToAddress(big.NewInt(int64(10_000 + id)))
}

func creator(id types.AgentID) ethcommon.Address {
	return ethcommon.BigToAddress(big.NewInt(int64(50_000 + id)))
}

type ledgerKey struct {
	id    types.TournamentID
	round int
	agent types.AgentID
}

type auditKey struct {
	id    types.TournamentID
	round int
}

// memStore keeps JSON snapshots in memory and can be told to fail writes.
type memStore struct {
	mu          sync.Mutex
	seq         uint64
	tournaments map[types.TournamentID][]byte
	ledger      map[ledgerKey]commitment.Record
	audit       map[auditKey]tournament.AuditRecord

	failSave   atomic.Bool
	failLedger atomic.Bool
}

func newMemStore() *memStore {
	return &memStore{
		tournaments: map[types.TournamentID][]byte{},
		ledger:      map[ledgerKey]commitment.Record{},
		audit:       map[auditKey]tournament.AuditRecord{},
	}
}

func (s *memStore) NextTournamentID() (types.TournamentID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.seq++

	return types.TournamentID(s.seq), nil
}

func (s *memStore) SaveTournament(t *tournament.Tournament) error {
	if s.failSave.Load() {
		return errInjected
	}

	raw, err := json.Marshal(t)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.tournaments[t.ID] = raw

	return nil
}

func (s *memStore) LoadTournaments() ([]*tournament.Tournament, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	result := []*tournament.Tournament{}

	for _, raw := range s.tournaments {
		var t tournament.Tournament

		err := json.Unmarshal(raw, &t)
		if err != nil {
			return nil, err
		}

		result = append(result, &t)
	}

	return result, nil
}

func (s *memStore) SaveLedgerRecord(id types.TournamentID, round int, rec commitment.Record) error {
	if s.failLedger.Load() {
		return errInjected
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.ledger[ledgerKey{id, round, rec.AgentID}] = rec

	return nil
}

func (s *memStore) LoadLedger(id types.TournamentID, round int) ([]commitment.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	result := []commitment.Record{}

	for k, rec := range s.ledger {
		if k.id == id && k.round == round {
			result = append(result, rec)
		}
	}

	slices.SortFunc(result, func(a, b commitment.Record) int {
		return cmp.Compare(a.AgentID, b.AgentID)
	})

	return result, nil
}

func (s *memStore) AppendAudit(rec tournament.AuditRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.audit[auditKey{rec.TournamentID, rec.Round}] = rec

	return nil
}

func (s *memStore) Audit(id types.TournamentID) ([]tournament.AuditRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	result := []tournament.AuditRecord{}

	for k, rec := range s.audit {
		if k.id == id {
			result = append(result, rec)
		}
	}

	slices.SortFunc(result, func(a, b tournament.AuditRecord) int {
		return cmp.Compare(a.Round, b.Round)
	})

	return result, nil
}

// payments counts calls into the in-process ledger and can fail the next
// few distributions.
type payments struct {
	ledger *payment.Ledger

	failDistributions atomic.Int32
	distributions     atomic.Int32
	refunds           atomic.Int32
}

func (p *payments) Deposit(ctx context.Context, req payment.DepositRequest) (payment.Receipt, error) {
	return p.ledger.Deposit(ctx, req)
}

func (p *payments) Distribute(ctx context.Context, id types.TournamentID, d payment.Distribution) (payment.Receipt, error) {
	p.distributions.Add(1)

	if p.failDistributions.Add(-1) >= 0 {
		return payment.Receipt{}, payment.ErrNotConfirmed
	}

	return p.ledger.Distribute(ctx, id, d)
}

func (p *payments) RefundAll(ctx context.Context, id types.TournamentID) (payment.Receipt, error) {
	p.refunds.Add(1)

	return p.ledger.RefundAll(ctx, id)
}

type harness struct {
	cfg      tournament.Config
	store    tournament.Store
	agents   agents
	payments *payments
	events   chan notify.Event
	clock    *clock
	engine   *tournament.EngineService
}

func newHarness(t *testing.T, capacity, players int) *harness {
	t.Helper()

	return newHarnessWithStore(t, capacity, players, newMemStore())
}

func newHarnessWithStore(t *testing.T, capacity, players int, store tournament.Store) *harness {
	t.Helper()

	cfg := tournament.DefaultConfig()
	cfg.Capacity = capacity

	h := &harness{
		cfg:      cfg,
		store:    store,
		agents:   agents{},
		payments: &payments{ledger: payment.NewLedger()},
		events:   make(chan notify.Event, 100_000),
		clock:    &clock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)},
	}

	for i := 1; i <= players; i++ {
		id := types.AgentID(i)
		h.agents[id] = agent.Agent{
			ID:      id,
			Name:    fmt.Sprintf("agent-%d", i),
			Wallet:  wallet(id),
			Creator: creator(id),
			Status:  agent.StatusActive,
		}
	}

	h.restart(t)

	return h
}

// restart builds a fresh engine over the same store, as after a crash.
func (h *harness) restart(t *testing.T) {
	t.Helper()

	engine, err := tournament.NewEngine(h.cfg, tournament.Deps{
		Store:    h.store,
		Agents:   h.agents,
		Payments: h.payments,
		Sink:     notify.ChannelSink{C: h.events},
		Now:      h.clock.Now,
	})
	require.NoError(t, err)

	h.engine = engine
}

// open creates a Bronze tournament, joins the given agents and force starts
// it when capacity was not reached.
func (h *harness) open(t *testing.T, ids ...types.AgentID) types.TournamentID {
	t.Helper()

	tr, err := h.engine.Create(context.Background(), types.Bronze, uint256.NewInt(fee))
	require.NoError(t, err)

	for _, id := range ids {
		_, err := h.engine.Join(context.Background(), tr.ID, id)
		require.NoError(t, err)
	}

	current, err := h.engine.Tournament(tr.ID)
	require.NoError(t, err)

	if current.Status == tournament.StatusOpen {
		_, err := h.engine.Start(context.Background(), tr.ID)
		require.NoError(t, err)
	}

	return tr.ID
}

func (h *harness) all(n int) []types.AgentID {
	result := make([]types.AgentID, 0, n)
	for i := 1; i <= n; i++ {
		result = append(result, types.AgentID(i))
	}

	return result
}

func (h *harness) tournament(t *testing.T, id types.TournamentID) *tournament.Tournament {
	t.Helper()

	tr, err := h.engine.Tournament(id)
	require.NoError(t, err)

	return tr
}

func (h *harness) tick(id types.TournamentID, d time.Duration) error {
	return h.engine.CheckAndAdvance(context.Background(), id, h.clock.Advance(d))
}

func salt(id types.AgentID, round int) []byte {
	return []byte(fmt.Sprintf("salt-agent-%05d-round-%d", id, round))
}

func bid(id types.AgentID, round int) int {
	return int((uint64(id)*37+uint64(round)*101)%1000) + 1
}

func (h *harness) commit(id types.TournamentID, round int, agentID types.AgentID, value int) error {
	return h.engine.SubmitCommit(context.Background(), id, round, agentID,
		commitment.ComputeHash(value, salt(agentID, round)))
}

func (h *harness) reveal(id types.TournamentID, round int, agentID types.AgentID, value int) error {
	return h.engine.SubmitReveal(context.Background(), id, round, agentID, value, salt(agentID, round))
}

// playRound has every player of the current round commit and reveal, and
// drives the deadlines until the next round starts or the tournament ends.
func (h *harness) playRound(t *testing.T, id types.TournamentID) *tournament.Tournament {
	t.Helper()

	tr := h.tournament(t, id)
	require.Equal(t, tournament.StatusCommit, tr.Status)

	round := tr.Round()

	for _, a := range round.Players {
		require.NoError(t, h.commit(id, round.Number, a, bid(a, round.Number)))
	}

	require.NoError(t, h.tick(id, h.cfg.CommitDuration))
	require.Equal(t, tournament.StatusReveal, h.tournament(t, id).Status)

	for _, a := range round.Players {
		require.NoError(t, h.reveal(id, round.Number, a, bid(a, round.Number)))
	}

	require.NoError(t, h.tick(id, h.cfg.RevealDuration))

	tr = h.tournament(t, id)
	if tr.Status == tournament.StatusActiveNextRound {
		require.NoError(t, h.tick(id, h.cfg.ResolutionPause))

		tr = h.tournament(t, id)
	}

	return tr
}

func (h *harness) drain() []notify.Event {
	result := []notify.Event{}

	for {
		select {
		case ev := <-h.events:
			result = append(result, ev)
		default:
			return result
		}
	}
}

func countEvents(events []notify.Event, eventType notify.EventType) int {
	n := 0

	for _, ev := range events {
		if ev.Type == eventType {
			n++
		}
	}

	return n
}
