package tournament

import (
	"errors"
	"fmt"
	"slices"

	"github.com/ClawGameArena/ClawGame/internal/pkg/commitment"
	"github.com/ClawGameArena/ClawGame/internal/pkg/payment"
	"github.com/ClawGameArena/ClawGame/internal/pkg/ranker"
	"github.com/ClawGameArena/ClawGame/internal/pkg/secret"
	"github.com/ClawGameArena/ClawGame/internal/pkg/types"
	ethcommon "github.com/ethereum/go-ethereum/common"
)

// Evaluate derives the secret and the ranking of one round from its ledger
// records. Only verified reveals of the round's players count. It is a pure
// function of its inputs, so the engine and any auditor get the same result.
func Evaluate(players []types.AgentID, records []commitment.Record) (ranker.Result, error) {
	salts := [][]byte{}
	reveals := map[types.AgentID]int{}

	for _, rec := range records {
		if rec.Reveal == nil || !slices.Contains(players, rec.AgentID) {
			continue
		}

		salts = append(salts, rec.Reveal.Salt)
		reveals[rec.AgentID] = rec.Reveal.Value
	}

	s, err := secret.Derive(salts)
	if err != nil {
		if errors.Is(err, secret.ErrNoReveals) {
			return ranker.Result{}, fmt.Errorf("%w: %d players", ErrNoRevealsDeriverAborted, len(players))
		}

		return ranker.Result{}, fmt.Errorf("failed to derive secret: %w", err)
	}

	return ranker.Rank(s, players, reveals), nil
}

// applyResult stores result on the current round and updates every entry's
// standing.
func (t *Tournament) applyResult(result ranker.Result) error {
	round := t.Round()

	if round.Secret != 0 && round.Secret != result.Secret {
		return fmt.Errorf("%w: round %d has %d, derived %d", ErrSecretAlreadySet, round.Number, round.Secret, result.Secret)
	}

	round.Secret = result.Secret
	round.Standings = result.Standings
	round.Survivors = result.Survivors
	round.Eliminated = result.Eliminated
	round.Phase = PhaseResolved

	for _, standing := range result.Standings {
		e := t.Entry(standing.AgentID)
		if e == nil {
			continue
		}

		e.LastDistance = standing.Distance
		e.CumulativeDistance += standing.Distance
	}

	for _, id := range result.Eliminated {
		if e := t.Entry(id); e != nil {
			e.Alive = false
			e.EliminatedRound = round.Number
		}
	}

	t.markFinalists()

	return nil
}

// markFinalists flags the first survivor set that fits the prize split.
func (t *Tournament) markFinalists() {
	alive := t.Alive()
	if len(alive) > payment.FinalistSlots+1 {
		return
	}

	for _, e := range t.Entries {
		if e.Finalist {
			return
		}
	}

	for i := range t.Entries {
		if t.Entries[i].Alive {
			t.Entries[i].Finalist = true
		}
	}
}

func (t *Tournament) contenders() []ranker.Contender {
	result := make([]ranker.Contender, 0, len(t.Entries))

	for _, e := range t.Entries {
		result = append(result, ranker.Contender{
			AgentID:            e.AgentID,
			Alive:              e.Alive,
			EliminatedRound:    e.EliminatedRound,
			LastDistance:       e.LastDistance,
			CumulativeDistance: e.CumulativeDistance,
		})
	}

	return result
}

// decideOutcome ranks every entrant. The winner is the best ranked survivor;
// finalists are the next best members of the finalist set.
func (t *Tournament) decideOutcome(forced bool) (*Outcome, error) {
	ranking := ranker.FinalRanking(t.contenders())
	if len(ranking) == 0 {
		return nil, fmt.Errorf("%w: tournament %d has no entrants", ErrNotEnoughPlayers, t.ID)
	}

	winner := ranking[0]
	finalists := []types.AgentID{}

	for _, id := range ranking[1:] {
		if len(finalists) == payment.FinalistSlots {
			break
		}

		e := t.Entry(id)
		if e.Finalist || e.Alive {
			finalists = append(finalists, id)
		}
	}

	finalistAddrs := make([]ethcommon.Address, 0, len(finalists))
	for _, id := range finalists {
		finalistAddrs = append(finalistAddrs, t.Entry(id).Creator)
	}

	distribution, err := payment.NewDistribution(t.Entry(winner).Creator, finalistAddrs)
	if err != nil {
		return nil, fmt.Errorf("failed to build distribution: %w", err)
	}

	pool := t.Pool()
	amounts := distribution.Amounts(pool)

	payouts := map[types.AgentID]string{winner: amounts.Winner.Dec()}
	for i, id := range finalists {
		payouts[id] = amounts.Finalists[i].Dec()
	}

	return &Outcome{
		Winner:       winner,
		Finalists:    finalists,
		Ranking:      ranking,
		Forced:       forced,
		Pool:         pool.Dec(),
		Distribution: distribution,
		Payouts:      payouts,
	}, nil
}
