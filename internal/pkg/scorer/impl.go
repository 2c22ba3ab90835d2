package scorer

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"math"
	"slices"

	"github.com/ClawGameArena/ClawGame/internal/pkg/common"
	"github.com/ClawGameArena/ClawGame/internal/pkg/notify"
	"github.com/ClawGameArena/ClawGame/internal/pkg/types"
	"github.com/decred/slog"
	"github.com/holiman/uint256"
	"github.com/samber/do/v2"
	"go.etcd.io/bbolt"
)

const DefaultLeaderboardSize = 50

var ErrInvalidEarnings = errors.New("invalid earnings amount")

type Scorecard struct {
	AgentID  types.AgentID `json:"agent_id"`
	Wins     int64         `json:"wins"`
	Entries  int64         `json:"entries"`
	WinRate  float64       `json:"win_rate"`
	Earnings string        `json:"total_earnings"`
}

// ScorerService keeps per-agent participation stats from tournament events.
type ScorerService struct {
	DatabaseService *common.DatabaseService

	EventSource <-chan notify.Event

	Log slog.Logger
}

func NewScorerService(i do.Injector) (*ScorerService, error) {
	databaseService := do.MustInvoke[*common.DatabaseService](i)
	eventSource := do.MustInvokeNamed[<-chan notify.Event](i, "event-source")

	result := &ScorerService{
		DatabaseService: databaseService,

		EventSource: eventSource,

		Log: do.MustInvoke[*common.LogService](i).Logger("SCOR"),
	}

	return result, nil
}

func WinRate(wins, entries int64) float64 {
	if entries == 0 {
		return 0
	}

	return math.Round(float64(wins)/float64(entries)*1000) / 10
}

func (s *ScorerService) HandleEvent(ev notify.Event) error {
	switch ev.Type {
	case notify.EventPlayerJoined:
		return s.DatabaseService.DB.Update(func(tx *bbolt.Tx) error {
			return increment(tx.Bucket([]byte(common.ScorerEntriesBucket)), ev.AgentID)
		})

	case notify.EventTournamentFinished:
		return s.DatabaseService.DB.Update(func(tx *bbolt.Tx) error {
			err := increment(tx.Bucket([]byte(common.ScorerWinsBucket)), ev.Winner)
			if err != nil {
				return err
			}

			earnings := tx.Bucket([]byte(common.ScorerEarningsBucket))

			for agentID, amount := range ev.Payouts {
				err := addEarnings(earnings, agentID, amount)
				if err != nil {
					return err
				}
			}

			return nil
		})

	default:
		return nil
	}
}

func increment(bucket *bbolt.Bucket, agentID types.AgentID) error {
	k := common.Uint64Key(uint64(agentID))

	count := common.BytesToInt64(bucket.Get(k), 0)

	err := bucket.Put(k, common.Int64ToBytes(count+1))
	if err != nil {
		return fmt.Errorf("failed to put count of agent %d: %w", agentID, err)
	}

	return nil
}

func addEarnings(bucket *bbolt.Bucket, agentID types.AgentID, amount string) error {
	add, err := uint256.FromDecimal(amount)
	if err != nil {
		return fmt.Errorf("%w: %q for agent %d", ErrInvalidEarnings, amount, agentID)
	}

	k := common.Uint64Key(uint64(agentID))

	total := new(uint256.Int).SetBytes(bucket.Get(k))
	total.Add(total, add)

	err = bucket.Put(k, total.Bytes())
	if err != nil {
		return fmt.Errorf("failed to put earnings of agent %d: %w", agentID, err)
	}

	return nil
}

func readScorecard(tx *bbolt.Tx, agentID types.AgentID) Scorecard {
	k := common.Uint64Key(uint64(agentID))

	wins := common.BytesToInt64(tx.Bucket([]byte(common.ScorerWinsBucket)).Get(k), 0)
	entries := common.BytesToInt64(tx.Bucket([]byte(common.ScorerEntriesBucket)).Get(k), 0)
	earnings := new(uint256.Int).SetBytes(tx.Bucket([]byte(common.ScorerEarningsBucket)).Get(k))

	return Scorecard{
		AgentID:  agentID,
		Wins:     wins,
		Entries:  entries,
		WinRate:  WinRate(wins, entries),
		Earnings: earnings.Dec(),
	}
}

func (s *ScorerService) Scorecard(agentID types.AgentID) (Scorecard, error) {
	var result Scorecard

	err := s.DatabaseService.DB.View(func(tx *bbolt.Tx) error {
		result = readScorecard(tx, agentID)

		return nil
	})
	if err != nil {
		return Scorecard{}, fmt.Errorf("failed to read scorecard: %w", err)
	}

	return result, nil
}

// Leaderboard ranks agents that played at least once by wins, then by
// tournaments played.
func (s *ScorerService) Leaderboard(limit int) ([]Scorecard, error) {
	if limit <= 0 {
		limit = DefaultLeaderboardSize
	}

	result := []Scorecard{}

	err := s.DatabaseService.DB.View(func(tx *bbolt.Tx) error {
		return tx.Bucket([]byte(common.ScorerEntriesBucket)).ForEach(func(k, _ []byte) error {
			result = append(result, readScorecard(tx, types.AgentID(common.KeyUint64(k))))

			return nil
		})
	})
	if err != nil {
		return nil, fmt.Errorf("failed to read leaderboard: %w", err)
	}

	slices.SortFunc(result, func(a, b Scorecard) int {
		return cmp.Or(
			cmp.Compare(b.Wins, a.Wins),
			cmp.Compare(b.Entries, a.Entries),
			cmp.Compare(a.AgentID, b.AgentID),
		)
	})

	if len(result) > limit {
		result = result[:limit]
	}

	return result, nil
}

// Run consumes events until ctx is done or the source is closed.
func (s *ScorerService) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-s.EventSource:
			if !ok {
				return nil
			}

			err := s.HandleEvent(ev)
			if err != nil {
				s.Log.Errorf("Failed to score %s %s: %v", ev.Type, ev.ID, err)
			}
		}
	}
}
