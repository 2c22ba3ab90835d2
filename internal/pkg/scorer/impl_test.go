package scorer_test

import (
	"context"
	"testing"
	"time"

	"github.com/ClawGameArena/ClawGame/internal/pkg/common"
	"github.com/ClawGameArena/ClawGame/internal/pkg/notify"
	scorer "github.com/ClawGameArena/ClawGame/internal/pkg/scorer"
	"github.com/ClawGameArena/ClawGame/internal/pkg/types"
	"github.com/decred/slog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newScorer(t *testing.T, source <-chan notify.Event) *scorer.ScorerService {
	t.Helper()

	db, err := common.OpenDatabase(t.TempDir())
	require.NoError(t, err)

	t.Cleanup(func() { _ = db.Shutdown() })

	return &scorer.ScorerService{
		DatabaseService: db,
		EventSource:     source,
		Log:             slog.Disabled,
	}
}

func joined(agentID types.AgentID) notify.Event {
	ev := notify.NewEvent(notify.EventPlayerJoined, 1, time.Now())
	ev.AgentID = agentID

	return ev
}

func TestWinRate(t *testing.T) {
	t.Parallel()

	assert.InDelta(t, 0.0, scorer.WinRate(0, 0), 0)
	assert.InDelta(t, 33.3, scorer.WinRate(1, 3), 1e-9)
	assert.InDelta(t, 100.0, scorer.WinRate(2, 2), 0)
}

func TestHandleEvent(t *testing.T) {
	t.Parallel()

	s := newScorer(t, nil)

	for _, id := range []types.AgentID{1, 2, 3, 1} {
		require.NoError(t, s.HandleEvent(joined(id)))
	}

	finished := notify.NewEvent(notify.EventTournamentFinished, 1, time.Now())
	finished.Winner = 2
	finished.Payouts = map[types.AgentID]string{
		2: "1850",
		1: "450",
	}

	require.NoError(t, s.HandleEvent(finished))
	require.NoError(t, s.HandleEvent(finished))

	card, err := s.Scorecard(2)
	require.NoError(t, err)
	assert.Equal(t, int64(2), card.Wins)
	assert.Equal(t, int64(1), card.Entries)
	assert.Equal(t, "3700", card.Earnings)

	card, err = s.Scorecard(1)
	require.NoError(t, err)
	assert.Equal(t, int64(0), card.Wins)
	assert.Equal(t, int64(2), card.Entries)
	assert.Equal(t, "900", card.Earnings)

	card, err = s.Scorecard(99)
	require.NoError(t, err)
	assert.Equal(t, "0", card.Earnings)

	bad := finished
	bad.Payouts = map[types.AgentID]string{3: "lots"}
	require.ErrorIs(t, s.HandleEvent(bad), scorer.ErrInvalidEarnings)
}

func TestLeaderboard(t *testing.T) {
	t.Parallel()

	s := newScorer(t, nil)

	for _, id := range []types.AgentID{1, 2, 2, 3, 3, 3} {
		require.NoError(t, s.HandleEvent(joined(id)))
	}

	finished := notify.NewEvent(notify.EventTournamentFinished, 1, time.Now())
	finished.Winner = 1
	require.NoError(t, s.HandleEvent(finished))

	board, err := s.Leaderboard(0)
	require.NoError(t, err)
	require.Len(t, board, 3)

	assert.Equal(t, types.AgentID(1), board[0].AgentID)
	assert.Equal(t, types.AgentID(3), board[1].AgentID)
	assert.Equal(t, types.AgentID(2), board[2].AgentID)

	board, err = s.Leaderboard(1)
	require.NoError(t, err)
	assert.Len(t, board, 1)
}

func TestRunConsumesUntilClosed(t *testing.T) {
	t.Parallel()

	events := make(chan notify.Event, 4)
	s := newScorer(t, events)

	events <- joined(5)
	events <- joined(5)
	close(events)

	require.NoError(t, s.Run(context.Background()))

	card, err := s.Scorecard(5)
	require.NoError(t, err)
	assert.Equal(t, int64(2), card.Entries)
}
