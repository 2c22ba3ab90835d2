package ranker

import (
	"cmp"
	"slices"

	"github.com/ClawGameArena/ClawGame/internal/pkg/types"
)

func Distance(value, secret int) int {
	if value > secret {
		return value - secret
	}

	return secret - value
}

// EliminationCount rounds down so a round always leaves at least one
// survivor.
func EliminationCount(players int) int {
	return players / 2
}

// Rank orders players by distance to secret, lower agent id first on ties,
// and eliminates the farthest EliminationCount(len(players)). Players missing
// from reveals rank at MaxDistance.
func Rank(secret int, players []types.AgentID, reveals map[types.AgentID]int) Result {
	standings := make([]Standing, 0, len(players))

	for _, agentID := range players {
		standing := Standing{AgentID: agentID, Distance: MaxDistance}

		if value, ok := reveals[agentID]; ok {
			standing.Value = value
			standing.Revealed = true
			standing.Distance = Distance(value, secret)
		}

		standings = append(standings, standing)
	}

	slices.SortFunc(standings, func(a, b Standing) int {
		return cmp.Or(
			cmp.Compare(a.Distance, b.Distance),
			cmp.Compare(a.AgentID, b.AgentID),
		)
	})

	keep := len(standings) - EliminationCount(len(standings))

	result := Result{
		Secret:     secret,
		Standings:  standings,
		Survivors:  make([]types.AgentID, 0, keep),
		Eliminated: make([]types.AgentID, 0, len(standings)-keep),
	}

	for i, standing := range standings {
		if i < keep {
			result.Survivors = append(result.Survivors, standing.AgentID)
		} else {
			result.Eliminated = append(result.Eliminated, standing.AgentID)
		}
	}

	return result
}

// FinalRanking orders contenders for the prize split. Players still alive
// come first by cumulative distance (the forced finalize order). Eliminated
// players follow, later eliminations first, then by their distance in the
// round that eliminated them. Agent id breaks every tie.
func FinalRanking(contenders []Contender) []types.AgentID {
	sorted := slices.Clone(contenders)

	slices.SortFunc(sorted, func(a, b Contender) int {
		if a.Alive != b.Alive {
			if a.Alive {
				return -1
			}

			return 1
		}

		if a.Alive {
			return cmp.Or(
				cmp.Compare(a.CumulativeDistance, b.CumulativeDistance),
				cmp.Compare(a.AgentID, b.AgentID),
			)
		}

		return cmp.Or(
			cmp.Compare(b.EliminatedRound, a.EliminatedRound),
			cmp.Compare(a.LastDistance, b.LastDistance),
			cmp.Compare(a.AgentID, b.AgentID),
		)
	})

	result := make([]types.AgentID, 0, len(sorted))
	for _, c := range sorted {
		result = append(result, c.AgentID)
	}

	return result
}
