package notify

import (
	"context"
	"time"

	"github.com/ClawGameArena/ClawGame/internal/pkg/types"
)

type EventType string

const (
	EventTournamentCreated   EventType = "tournament.created"
	EventPlayerJoined        EventType = "player.joined"
	EventPhaseChanged        EventType = "phase.changed"
	EventRoundResolved       EventType = "round.resolved"
	EventTournamentFinished  EventType = "tournament.finished"
	EventTournamentCancelled EventType = "tournament.cancelled"
	EventSettlementFailed    EventType = "settlement.failed"
)

type Event struct {
	ID           string             `json:"id"`
	Type         EventType          `json:"type"`
	TournamentID types.TournamentID `json:"tournament_id"`
	Arena        types.Arena        `json:"arena"`
	Status       string             `json:"status"`
	Round        int                `json:"round,omitempty"`
	Timestamp    time.Time          `json:"timestamp"`

	AgentID     types.AgentID `json:"agent_id,omitempty"`
	PlayerCount int           `json:"player_count,omitempty"`

	Secret     int             `json:"secret,omitempty"`
	Survivors  []types.AgentID `json:"survivors,omitempty"`
	Eliminated []types.AgentID `json:"eliminated,omitempty"`

	Winner    types.AgentID   `json:"winner,omitempty"`
	Finalists []types.AgentID `json:"finalists,omitempty"`
	Forced    bool            `json:"forced,omitempty"`
	// Payouts maps agents to the decimal wei amount their creator receives.
	Payouts map[types.AgentID]string `json:"payouts,omitempty"`

	Reason string `json:"reason,omitempty"`
}

type Sink interface {
	Publish(ctx context.Context, ev Event) error
}
