package scheduler_test

import (
	"context"
	"fmt"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/ClawGameArena/ClawGame/internal/pkg/agent"
	"github.com/ClawGameArena/ClawGame/internal/pkg/common"
	"github.com/ClawGameArena/ClawGame/internal/pkg/notify"
	"github.com/ClawGameArena/ClawGame/internal/pkg/payment"
	"github.com/ClawGameArena/ClawGame/internal/pkg/scheduler"
	"github.com/ClawGameArena/ClawGame/internal/pkg/store"
	"github.com/ClawGameArena/ClawGame/internal/pkg/tournament"
	"github.com/ClawGameArena/ClawGame/internal/pkg/types"
	"github.com/decred/slog"
	ethcommon "github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type agents map[types.AgentID]agent.Agent

func (a agents) Get(id types.AgentID) (agent.Agent, error) {
	result, ok := a[id]
	if !ok {
		return agent.Agent{}, fmt.Errorf("%w: %d", agent.ErrNotFound, id)
	}

	return result, nil
}

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.now = c.now.Add(d)
}

func newMonitor(t *testing.T) (*scheduler.MonitorService, *clock) {
	t.Helper()

	db, err := common.OpenDatabase(t.TempDir())
	require.NoError(t, err)

	t.Cleanup(func() { _ = db.Shutdown() })

	c := &clock{now: time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)}

	players := agents{}
	for i := 1; i <= 2; i++ {
		id := types.AgentID(i)
		players[id] = agent.Agent{ID: id, Wallet: ethcommon.BigToAddress(big.NewInt(int64(i))), Status: agent.StatusActive}
	}

	cfg := tournament.DefaultConfig()
	cfg.Capacity = 2

	engine, err := tournament.NewEngine(cfg, tournament.Deps{
		Store:    &store.TournamentStore{DatabaseService: db},
		Agents:   players,
		Payments: payment.NewLedger(),
		Sink:     notify.ChannelSink{C: make(chan notify.Event, 1000)},
		Now:      c.Now,
	})
	require.NoError(t, err)

	return &scheduler.MonitorService{
		Engine:     engine,
		ActiveTick: time.Minute,
		IdleTick:   10 * time.Minute,
		AutoOpen:   true,
		Fees: map[types.Arena]*uint256.Int{
			types.Bronze: uint256.NewInt(10),
			types.Silver: uint256.NewInt(100),
			types.Gold:   uint256.NewInt(1000),
		},
		Now: c.Now,
		Log: slog.Disabled,
	}, c
}

func TestEnsureOpenKeepsOnePerArena(t *testing.T) {
	t.Parallel()

	m, _ := newMonitor(t)

	require.NoError(t, m.Tick(context.Background()))
	require.NoError(t, m.Tick(context.Background()))

	all := m.Engine.List(tournament.ListFilter{})
	require.Len(t, all, 3)

	for _, arena := range types.Arenas {
		current, ok := m.Engine.Current(arena)
		require.True(t, ok)
		assert.Equal(t, tournament.StatusOpen, current.Status)
		assert.Equal(t, m.Fees[arena].Dec(), current.EntryFee)
	}
}

func TestTickAdvancesAndReopens(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	m, c := newMonitor(t)

	require.NoError(t, m.Tick(ctx))

	bronze, ok := m.Engine.Current(types.Bronze)
	require.True(t, ok)

	for _, a := range []types.AgentID{1, 2} {
		_, err := m.Engine.Join(ctx, bronze.ID, a)
		require.NoError(t, err)
	}

	// the full tournament left registration, so a new bronze one opens
	require.NoError(t, m.Tick(ctx))
	assert.Len(t, m.Engine.List(tournament.ListFilter{Statuses: []tournament.Status{tournament.StatusOpen}}), 3)

	c.Advance(m.Engine.Config().CommitDuration)
	require.NoError(t, m.Tick(ctx))

	tr, err := m.Engine.Tournament(bronze.ID)
	require.NoError(t, err)
	assert.Equal(t, tournament.StatusReveal, tr.Status)
}

func TestIntervalFollowsActivity(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	m, c := newMonitor(t)

	assert.Equal(t, m.IdleTick, m.Interval())

	require.NoError(t, m.Tick(ctx))
	assert.Equal(t, m.IdleTick, m.Interval(), "open tournaments expire days from now")

	bronze, ok := m.Engine.Current(types.Bronze)
	require.True(t, ok)

	for _, a := range []types.AgentID{1, 2} {
		_, err := m.Engine.Join(ctx, bronze.ID, a)
		require.NoError(t, err)
	}

	assert.Equal(t, m.ActiveTick, m.Interval())

	c.Advance(m.Engine.Config().CommitDuration - 20*time.Second)
	assert.Equal(t, 20*time.Second, m.Interval())

	c.Advance(time.Minute)
	assert.Equal(t, scheduler.MinInterval, m.Interval())
}

func TestRunStopsWithContext(t *testing.T) {
	t.Parallel()

	m, _ := newMonitor(t)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)

	go func() {
		done <- m.Run(ctx)
	}()

	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("monitor did not stop")
	}
}
