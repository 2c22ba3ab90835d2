package tournament

import (
	"fmt"
	"slices"
	"time"
)

var transitions = map[Status][]Status{
	StatusOpen:            {StatusCommit, StatusCancelled},
	StatusCommit:          {StatusReveal, StatusCancelled},
	StatusReveal:          {StatusActiveNextRound, StatusFinished, StatusCancelled},
	StatusActiveNextRound: {StatusCommit, StatusCancelled},
}

func CanTransition(from, to Status) bool {
	return slices.Contains(transitions[from], to)
}

func (t *Tournament) transition(to Status, now time.Time) error {
	if !CanTransition(t.Status, to) {
		return fmt.Errorf("%w: %s -> %s", ErrIllegalTransition, t.Status, to)
	}

	t.Status = to
	t.UpdatedAt = now

	return nil
}
