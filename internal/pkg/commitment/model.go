package commitment

import (
	"errors"

	"github.com/ClawGameArena/ClawGame/internal/pkg/types"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

var (
	ErrDuplicateCommit = errors.New("agent already committed this round")
	ErrNoCommitment    = errors.New("no commitment found for this round")
	ErrHashMismatch    = errors.New("value and salt don't match the commitment")
	ErrAlreadyRevealed = errors.New("a different reveal was already accepted")

	ErrInvalidValue  = errors.New("bid value out of range")
	ErrInvalidSalt   = errors.New("invalid salt")
	ErrMalformedHash = errors.New("malformed commitment hash")
)

type Reveal struct {
	Value int           `json:"value"`
	Salt  hexutil.Bytes `json:"salt"`
}

// Record is the durable form of one agent's ledger slot.
type Record struct {
	AgentID types.AgentID `json:"agent_id"`
	Hash    common.Hash   `json:"hash"`
	Reveal  *Reveal       `json:"reveal,omitempty"`
}
