package tournament

import (
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/ClawGameArena/ClawGame/internal/pkg/commitment"
	"github.com/ClawGameArena/ClawGame/internal/pkg/types"
)

var ErrAuditMismatch = errors.New("audit record does not match recomputation")

// AuditRecord holds everything needed to recompute a round's secret and
// eliminations from public data.
type AuditRecord struct {
	TournamentID types.TournamentID  `json:"tournament_id"`
	Round        int                 `json:"round"`
	Players      []types.AgentID     `json:"players"`
	Records      []commitment.Record `json:"records"`
	Secret       int                 `json:"secret"`
	Survivors    []types.AgentID     `json:"survivors"`
	Eliminated   []types.AgentID     `json:"eliminated"`
	ResolvedAt   time.Time           `json:"resolved_at"`
}

func newAuditRecord(t *Tournament, records []commitment.Record) AuditRecord {
	round := t.Round()

	return AuditRecord{
		TournamentID: t.ID,
		Round:        round.Number,
		Players:      slices.Clone(round.Players),
		Records:      records,
		Secret:       round.Secret,
		Survivors:    slices.Clone(round.Survivors),
		Eliminated:   slices.Clone(round.Eliminated),
		ResolvedAt:   round.ResolvedAt,
	}
}

// VerifyAudit checks every reveal against its commitment and recomputes the
// secret and the elimination decision.
func VerifyAudit(rec AuditRecord) error {
	for _, r := range rec.Records {
		if r.Reveal == nil {
			continue
		}

		if commitment.ComputeHash(r.Reveal.Value, r.Reveal.Salt) != r.Hash {
			return fmt.Errorf("%w: round %d agent %d reveal does not match its commitment",
				ErrAuditMismatch, rec.Round, r.AgentID)
		}
	}

	result, err := Evaluate(rec.Players, rec.Records)
	if err != nil {
		return err
	}

	if result.Secret != rec.Secret {
		return fmt.Errorf("%w: round %d secret %d, recomputed %d", ErrAuditMismatch, rec.Round, rec.Secret, result.Secret)
	}

	if !slices.Equal(result.Survivors, rec.Survivors) || !slices.Equal(result.Eliminated, rec.Eliminated) {
		return fmt.Errorf("%w: round %d eliminations differ", ErrAuditMismatch, rec.Round)
	}

	return nil
}
