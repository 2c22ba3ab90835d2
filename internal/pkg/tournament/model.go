package tournament

import (
	"slices"
	"time"

	"github.com/ClawGameArena/ClawGame/internal/pkg/commitment"
	"github.com/ClawGameArena/ClawGame/internal/pkg/payment"
	"github.com/ClawGameArena/ClawGame/internal/pkg/ranker"
	"github.com/ClawGameArena/ClawGame/internal/pkg/types"
	ethcommon "github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

type Status string

const (
	StatusOpen            Status = "OPEN"
	StatusCommit          Status = "COMMIT"
	StatusReveal          Status = "REVEAL"
	StatusActiveNextRound Status = "ACTIVE_NEXT_ROUND"
	StatusFinished        Status = "FINISHED"
	StatusCancelled       Status = "CANCELLED"
)

func (s Status) Terminal() bool {
	return s == StatusFinished || s == StatusCancelled
}

func (s Status) InPlay() bool {
	return s == StatusCommit || s == StatusReveal || s == StatusActiveNextRound
}

type Phase string

const (
	PhaseCommit   Phase = "COMMIT"
	PhaseReveal   Phase = "REVEAL"
	PhaseResolved Phase = "RESOLVED"
)

type Entry struct {
	AgentID    types.AgentID     `json:"agent_id"`
	Wallet     ethcommon.Address `json:"wallet"`
	Creator    ethcommon.Address `json:"creator"`
	JoinedAt   time.Time         `json:"joined_at"`
	DepositRef string            `json:"deposit_ref"`

	Alive    bool `json:"alive"`
	Finalist bool `json:"finalist"`

	EliminatedRound    int `json:"eliminated_round,omitempty"`
	LastDistance       int `json:"last_distance"`
	CumulativeDistance int `json:"cumulative_distance"`
}

type Round struct {
	Number  int             `json:"number"`
	Phase   Phase           `json:"phase"`
	Players []types.AgentID `json:"players"`

	CommitDeadline time.Time `json:"commit_deadline"`
	RevealDeadline time.Time `json:"reveal_deadline,omitzero"`

	// Secret is zero until the round resolves and never changes afterwards.
	Secret     int               `json:"secret,omitempty"`
	Standings  []ranker.Standing `json:"standings,omitempty"`
	Survivors  []types.AgentID   `json:"survivors,omitempty"`
	Eliminated []types.AgentID   `json:"eliminated,omitempty"`
	ResolvedAt time.Time         `json:"resolved_at,omitzero"`

	ledger *commitment.Ledger
}

func (r *Round) HasPlayer(agentID types.AgentID) bool {
	return slices.Contains(r.Players, agentID)
}

type SettlementKind string

const (
	SettlementDistribute SettlementKind = "DISTRIBUTE"
	SettlementRefund     SettlementKind = "REFUND"
)

type SettlementState string

const (
	SettlementPending   SettlementState = "PENDING"
	SettlementConfirmed SettlementState = "CONFIRMED"
	SettlementFailed    SettlementState = "FAILED"
)

type Settlement struct {
	Kind      SettlementKind  `json:"kind"`
	State     SettlementState `json:"state"`
	Reference string          `json:"reference,omitempty"`
	Error     string          `json:"error,omitempty"`
	Attempts  int             `json:"attempts"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// Outcome is recorded once, when the tournament finishes, and is the only
// input to the prize distribution.
type Outcome struct {
	Winner    types.AgentID   `json:"winner"`
	Finalists []types.AgentID `json:"finalists"`
	Ranking   []types.AgentID `json:"ranking"`
	Forced    bool            `json:"forced"`

	Pool         string                   `json:"pool"`
	Distribution payment.Distribution     `json:"distribution"`
	Payouts      map[types.AgentID]string `json:"payouts"`
}

type Tournament struct {
	ID        types.TournamentID `json:"id"`
	Arena     types.Arena        `json:"arena"`
	EntryFee  string             `json:"entry_fee"`
	Capacity  int                `json:"capacity"`
	MaxRounds int                `json:"max_rounds"`

	Status       Status   `json:"status"`
	CurrentRound int      `json:"current_round"`
	Entries      []Entry  `json:"entries"`
	Rounds       []*Round `json:"rounds"`

	NextRoundAt  time.Time   `json:"next_round_at,omitzero"`
	Outcome      *Outcome    `json:"outcome,omitempty"`
	CancelReason string      `json:"cancel_reason,omitempty"`
	Settlement   *Settlement `json:"settlement,omitempty"`

	CreatedAt  time.Time `json:"created_at"`
	StartedAt  time.Time `json:"started_at,omitzero"`
	UpdatedAt  time.Time `json:"updated_at"`
	FinishedAt time.Time `json:"finished_at,omitzero"`
}

func (t *Tournament) Fee() *uint256.Int {
	fee, err := uint256.FromDecimal(t.EntryFee)
	if err != nil {
		return new(uint256.Int)
	}

	return fee
}

// Pool is the sum of all entry fees.
func (t *Tournament) Pool() *uint256.Int {
	return new(uint256.Int).Mul(t.Fee(), uint256.NewInt(uint64(len(t.Entries))))
}

func (t *Tournament) Round() *Round {
	if t.CurrentRound < 1 || t.CurrentRound > len(t.Rounds) {
		return nil
	}

	return t.Rounds[t.CurrentRound-1]
}

func (t *Tournament) Entry(agentID types.AgentID) *Entry {
	for i := range t.Entries {
		if t.Entries[i].AgentID == agentID {
			return &t.Entries[i]
		}
	}

	return nil
}

func (t *Tournament) Alive() []types.AgentID {
	result := []types.AgentID{}

	for _, e := range t.Entries {
		if e.Alive {
			result = append(result, e.AgentID)
		}
	}

	return result
}

func (t *Tournament) clone() *Tournament {
	c := *t

	c.Entries = slices.Clone(t.Entries)

	c.Rounds = make([]*Round, len(t.Rounds))
	for i, r := range t.Rounds {
		rc := *r
		rc.Players = slices.Clone(r.Players)
		rc.Standings = slices.Clone(r.Standings)
		rc.Survivors = slices.Clone(r.Survivors)
		rc.Eliminated = slices.Clone(r.Eliminated)
		c.Rounds[i] = &rc
	}

	if t.Outcome != nil {
		o := *t.Outcome
		o.Finalists = slices.Clone(t.Outcome.Finalists)
		o.Ranking = slices.Clone(t.Outcome.Ranking)
		o.Distribution.Finalists = slices.Clone(t.Outcome.Distribution.Finalists)
		o.Payouts = make(map[types.AgentID]string, len(t.Outcome.Payouts))

		for k, v := range t.Outcome.Payouts {
			o.Payouts[k] = v
		}

		c.Outcome = &o
	}

	if t.Settlement != nil {
		s := *t.Settlement
		c.Settlement = &s
	}

	return &c
}

// PlayerStatus is one agent's view of a tournament.
type PlayerStatus struct {
	TournamentID types.TournamentID `json:"tournament_id"`
	AgentID      types.AgentID      `json:"agent_id"`
	Status       Status             `json:"status"`
	Round        int                `json:"round"`

	Registered bool `json:"registered"`
	Alive      bool `json:"alive"`
	Finalist   bool `json:"finalist"`
	Committed  bool `json:"committed"`
	Revealed   bool `json:"revealed"`

	EliminatedRound    int `json:"eliminated_round,omitempty"`
	CumulativeDistance int `json:"cumulative_distance"`
	// FinalRank is 1-based and only set once the tournament is finished.
	FinalRank int `json:"final_rank,omitempty"`
}

type ListFilter struct {
	Arena    *types.Arena
	Statuses []Status
	Limit    int
}

func (f ListFilter) match(t *Tournament) bool {
	if f.Arena != nil && t.Arena != *f.Arena {
		return false
	}

	if len(f.Statuses) > 0 && !slices.Contains(f.Statuses, t.Status) {
		return false
	}

	return true
}
