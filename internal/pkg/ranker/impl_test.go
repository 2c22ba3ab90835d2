package ranker_test

import (
	"testing"

	"github.com/ClawGameArena/ClawGame/internal/pkg/ranker"
	"github.com/ClawGameArena/ClawGame/internal/pkg/types"
	"github.com/stretchr/testify/assert"
)

func TestEliminationCount(t *testing.T) {
	t.Parallel()

	assert.Equal(t, 0, ranker.EliminationCount(1))
	assert.Equal(t, 1, ranker.EliminationCount(2))
	assert.Equal(t, 1, ranker.EliminationCount(3))
	assert.Equal(t, 2, ranker.EliminationCount(4))
	assert.Equal(t, 50, ranker.EliminationCount(100))
}

func TestRankTieBrokenByAgentID(t *testing.T) {
	t.Parallel()

	players := []types.AgentID{4, 3, 2, 1}
	reveals := map[types.AgentID]int{1: 490, 2: 510, 3: 100, 4: 900}

	result := ranker.Rank(500, players, reveals)

	assert.Equal(t, []types.AgentID{1, 2}, result.Survivors)
	assert.Equal(t, []types.AgentID{3, 4}, result.Eliminated)
	assert.Equal(t, 10, result.Standings[0].Distance)
	assert.Equal(t, 10, result.Standings[1].Distance)
	assert.Equal(t, 400, result.Standings[2].Distance)
	assert.Equal(t, 400, result.Standings[3].Distance)
}

func TestRankTieAtCutoff(t *testing.T) {
	t.Parallel()

	players := []types.AgentID{7, 5, 9}
	reveals := map[types.AgentID]int{5: 300, 7: 700, 9: 500}

	result := ranker.Rank(500, players, reveals)

	assert.Equal(t, []types.AgentID{9, 5}, result.Survivors)
	assert.Equal(t, []types.AgentID{7}, result.Eliminated)
}

func TestRankNonRevealersAtMaxDistance(t *testing.T) {
	t.Parallel()

	players := []types.AgentID{1, 2, 3, 4}
	reveals := map[types.AgentID]int{2: 1000, 4: 1}

	result := ranker.Rank(1, players, reveals)

	assert.Equal(t, []types.AgentID{4, 2}, result.Survivors)
	assert.Equal(t, []types.AgentID{1, 3}, result.Eliminated)

	for _, s := range result.Standings {
		if s.AgentID == 1 || s.AgentID == 3 {
			assert.False(t, s.Revealed)
			assert.Equal(t, ranker.MaxDistance, s.Distance)
		}
	}

	assert.Equal(t, 999, result.Standings[1].Distance)
	assert.Less(t, result.Standings[1].Distance, ranker.MaxDistance)
}

func TestRankDeterministic(t *testing.T) {
	t.Parallel()

	reveals := map[types.AgentID]int{}
	players := make([]types.AgentID, 0, 40)

	for i := range 40 {
		id := types.AgentID(i + 1)
		players = append(players, id)
		reveals[id] = (i*37)%1000 + 1
	}

	first := ranker.Rank(321, players, reveals)

	reversed := make([]types.AgentID, len(players))
	for i, id := range players {
		reversed[len(players)-1-i] = id
	}

	second := ranker.Rank(321, reversed, reveals)

	assert.Equal(t, first, second)
	assert.Len(t, first.Survivors, 20)
	assert.Len(t, first.Eliminated, 20)
}

func TestRankSinglePlayerSurvives(t *testing.T) {
	t.Parallel()

	result := ranker.Rank(10, []types.AgentID{1}, nil)

	assert.Equal(t, []types.AgentID{1}, result.Survivors)
	assert.Empty(t, result.Eliminated)
}

func TestFinalRanking(t *testing.T) {
	t.Parallel()

	ranking := ranker.FinalRanking([]ranker.Contender{
		{AgentID: 1, EliminatedRound: 6, LastDistance: 20},
		{AgentID: 2, Alive: true, CumulativeDistance: 900},
		{AgentID: 3, EliminatedRound: 7, LastDistance: 50},
		{AgentID: 4, Alive: true, CumulativeDistance: 300},
		{AgentID: 5, EliminatedRound: 7, LastDistance: 50},
		{AgentID: 6, Alive: true, CumulativeDistance: 300},
	})

	assert.Equal(t, []types.AgentID{4, 6, 2, 3, 5, 1}, ranking)
}
