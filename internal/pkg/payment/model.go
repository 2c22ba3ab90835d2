package payment

import (
	"context"
	"errors"
	"time"

	"github.com/ClawGameArena/ClawGame/internal/pkg/types"
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

var (
	ErrNotConfirmed     = errors.New("payment not confirmed")
	ErrAlreadySettled   = errors.New("tournament already settled")
	ErrTooManyFinalists = errors.New("too many finalists")
	ErrInvalidDeposit   = errors.New("invalid deposit")
	ErrGatewayRejected  = errors.New("payment gateway rejected the request")
)

// Collaborator is the external value-transfer ledger. A returned error means
// the call was not confirmed; callers must not retry with other parameters.
type Collaborator interface {
	Deposit(ctx context.Context, req DepositRequest) (Receipt, error)
	Distribute(ctx context.Context, id types.TournamentID, d Distribution) (Receipt, error)
	RefundAll(ctx context.Context, id types.TournamentID) (Receipt, error)
}

type DepositRequest struct {
	TournamentID types.TournamentID `json:"tournament_id"`
	AgentID      types.AgentID      `json:"agent_id"`
	Wallet       common.Address     `json:"wallet"`
	Amount       *uint256.Int       `json:"amount"`
}

type Receipt struct {
	Reference   string    `json:"reference"`
	ConfirmedAt time.Time `json:"confirmed_at"`
}

const (
	BasisPoints = 10_000

	WinnerBps       = 2_500
	FinalistPoolBps = 4_500
	FinalistSlots   = 4
	FinalistBps     = FinalistPoolBps / FinalistSlots
	TreasuryBps     = 1_000
	BurnBps         = 1_000
)

// Distribution says who receives which fraction of the prize pool. Payout
// addresses are the agents' creator addresses.
type Distribution struct {
	Winner    common.Address   `json:"winner"`
	Finalists []common.Address `json:"finalists"`

	WinnerBps   uint64 `json:"winner_bps"`
	FinalistBps uint64 `json:"finalist_bps"`
	TreasuryBps uint64 `json:"treasury_bps"`
	BurnBps     uint64 `json:"burn_bps"`
}

type Amounts struct {
	Winner    *uint256.Int   `json:"winner"`
	Finalists []*uint256.Int `json:"finalists"`
	Treasury  *uint256.Int   `json:"treasury"`
	Burn      *uint256.Int   `json:"burn"`
}
