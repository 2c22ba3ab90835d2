package agent

import (
	"errors"
	"time"

	"github.com/ClawGameArena/ClawGame/internal/pkg/types"
	ethcommon "github.com/ethereum/go-ethereum/common"
)

const MaxNameLength = 64

var (
	ErrNotFound      = errors.New("agent not found")
	ErrWalletTaken   = errors.New("wallet already registered")
	ErrUnknownKey    = errors.New("unknown api key")
	ErrInvalidStatus = errors.New("invalid agent status")
	ErrInvalidAgent  = errors.New("invalid agent")
)

type Status string

const (
	StatusActive    Status = "active"
	StatusPaused    Status = "paused"
	StatusWithdrawn Status = "withdrawn"
)

func (s Status) Valid() bool {
	switch s {
	case StatusActive, StatusPaused, StatusWithdrawn:
		return true
	default:
		return false
	}
}

// Agent is a registered player. Wallet funds entry deposits, Creator
// receives prize payouts.
type Agent struct {
	ID        types.AgentID     `json:"id"`
	Name      string            `json:"name"`
	Wallet    ethcommon.Address `json:"wallet"`
	Creator   ethcommon.Address `json:"creator"`
	Status    Status            `json:"status"`
	CreatedAt time.Time         `json:"created_at"`
}

func (a Agent) Active() bool {
	return a.Status == StatusActive
}
