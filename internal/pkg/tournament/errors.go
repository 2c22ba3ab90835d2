package tournament

import (
	"errors"

	"github.com/ClawGameArena/ClawGame/internal/pkg/agent"
	"github.com/ClawGameArena/ClawGame/internal/pkg/commitment"
	"github.com/ClawGameArena/ClawGame/internal/pkg/types"
)

var (
	ErrTournamentNotFound = errors.New("tournament not found")
	ErrIllegalTransition  = errors.New("illegal status transition")
	ErrPhaseMismatch      = errors.New("tournament is not in the required phase")
	ErrNotEligible        = errors.New("agent is not a survivor of this round")
	ErrNotOpen            = errors.New("tournament is not open for registration")
	ErrAlreadyJoined      = errors.New("agent already joined")
	ErrTournamentFull     = errors.New("tournament is full")
	ErrAgentInactive      = errors.New("agent is not active")
	ErrNotEnoughPlayers   = errors.New("not enough players to start")
	ErrNothingToSettle    = errors.New("no failed settlement to retry")

	ErrDeadlinePassed = errors.New("deadline passed")

	ErrTournamentTerminal = errors.New("tournament is finished or cancelled")

	ErrNoRevealsDeriverAborted = errors.New("no reveals in round, secret derivation aborted")
	ErrSecretAlreadySet        = errors.New("round secret already set to a different value")
	ErrPaymentNotConfirmed     = errors.New("payment not confirmed")
	ErrPersist                 = errors.New("failed to persist state")
)

type Class int

const (
	ClassSystemic Class = iota
	ClassValidation
	ClassTiming
	ClassIntegrity
)

func (c Class) String() string {
	switch c {
	case ClassValidation:
		return "validation"
	case ClassTiming:
		return "timing"
	case ClassIntegrity:
		return "integrity"
	default:
		return "systemic"
	}
}

type reason struct {
	err   error
	class Class
	code  string
}

var reasons = []reason{
	{ErrTournamentNotFound, ClassValidation, "TournamentNotFound"},
	{ErrIllegalTransition, ClassValidation, "IllegalTransition"},
	{ErrPhaseMismatch, ClassValidation, "PhaseMismatch"},
	{ErrNotEligible, ClassValidation, "NotEligible"},
	{ErrNotOpen, ClassValidation, "NotOpen"},
	{ErrAlreadyJoined, ClassValidation, "AlreadyJoined"},
	{ErrTournamentFull, ClassValidation, "TournamentFull"},
	{ErrAgentInactive, ClassValidation, "AgentInactive"},
	{ErrNotEnoughPlayers, ClassValidation, "NotEnoughPlayers"},
	{ErrNothingToSettle, ClassValidation, "NothingToSettle"},
	{types.ErrUnknownArena, ClassValidation, "UnknownArena"},
	{agent.ErrNotFound, ClassValidation, "AgentNotFound"},
	{commitment.ErrNoCommitment, ClassValidation, "NoCommitment"},
	{commitment.ErrInvalidValue, ClassValidation, "InvalidValue"},
	{commitment.ErrInvalidSalt, ClassValidation, "InvalidSalt"},
	{commitment.ErrMalformedHash, ClassValidation, "MalformedHash"},

	{ErrDeadlinePassed, ClassTiming, "DeadlinePassed"},

	{commitment.ErrDuplicateCommit, ClassIntegrity, "DuplicateCommit"},
	{commitment.ErrHashMismatch, ClassIntegrity, "HashMismatch"},
	{commitment.ErrAlreadyRevealed, ClassIntegrity, "AlreadyRevealed"},
	{ErrTournamentTerminal, ClassIntegrity, "TournamentTerminal"},

	{ErrNoRevealsDeriverAborted, ClassSystemic, "NoRevealsDeriverAborted"},
	{ErrSecretAlreadySet, ClassSystemic, "SecretAlreadySet"},
	{ErrPaymentNotConfirmed, ClassSystemic, "PaymentNotConfirmed"},
	{ErrPersist, ClassSystemic, "PersistFailed"},
}

func lookup(err error) (reason, bool) {
	for _, r := range reasons {
		if errors.Is(err, r.err) {
			return r, true
		}
	}

	return reason{}, false
}

// Classify places err in the error taxonomy. Unknown errors are systemic.
func Classify(err error) Class {
	r, ok := lookup(err)
	if !ok {
		return ClassSystemic
	}

	return r.class
}

// Reason returns the code reported to agents, e.g. "HashMismatch".
func Reason(err error) string {
	if err == nil {
		return ""
	}

	r, ok := lookup(err)
	if !ok {
		return "Internal"
	}

	return r.code
}
