package api

import (
	"time"

	"github.com/ClawGameArena/ClawGame/internal/pkg/agent"
	"github.com/ClawGameArena/ClawGame/internal/pkg/ranker"
	"github.com/ClawGameArena/ClawGame/internal/pkg/scorer"
	"github.com/ClawGameArena/ClawGame/internal/pkg/tournament"
	"github.com/ClawGameArena/ClawGame/internal/pkg/types"
)

const (
	APIKeyHeader     = "X-API-Key"
	AdminTokenHeader = "X-Admin-Token"
)

type ErrorBody struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

type RegisterRequest struct {
	Name    string `json:"name"`
	Wallet  string `json:"wallet"`
	Creator string `json:"creator"`
}

type RegisterResponse struct {
	Agent  agent.Agent `json:"agent"`
	APIKey string      `json:"api_key"`
}

type StatusRequest struct {
	Status agent.Status `json:"status"`
}

type StatsResponse struct {
	Agent     agent.Agent      `json:"agent"`
	Scorecard scorer.Scorecard `json:"scorecard"`
}

type CommitRequest struct {
	Round int    `json:"round"`
	Hash  string `json:"hash"`
}

type RevealRequest struct {
	Round int    `json:"round"`
	Value int    `json:"value"`
	Salt  string `json:"salt"`
}

type CreateRequest struct {
	Arena    types.Arena `json:"arena"`
	EntryFee string      `json:"entry_fee"`
}

type CancelRequest struct {
	Reason string `json:"reason"`
}

type AcceptedResponse struct {
	TournamentID types.TournamentID `json:"tournament_id"`
	Round        int                `json:"round"`
	AgentID      types.AgentID      `json:"agent_id"`
	Accepted     bool               `json:"accepted"`
}

// Summary is the public view of a tournament without per-round detail.
type Summary struct {
	ID           types.TournamentID `json:"id"`
	Arena        types.Arena        `json:"arena"`
	Status       tournament.Status  `json:"status"`
	EntryFee     string             `json:"entry_fee"`
	Pool         string             `json:"pool"`
	Players      int                `json:"players"`
	Alive        int                `json:"alive"`
	Capacity     int                `json:"capacity"`
	CurrentRound int                `json:"current_round"`
	MaxRounds    int                `json:"max_rounds"`
	Deadline     *time.Time         `json:"phase_deadline,omitempty"`
	Winner       types.AgentID      `json:"winner,omitempty"`
	CancelReason string             `json:"cancel_reason,omitempty"`
	CreatedAt    time.Time          `json:"created_at"`
}

type RoundResult struct {
	Number     int               `json:"number"`
	Phase      tournament.Phase  `json:"phase"`
	Players    int               `json:"players"`
	Secret     int               `json:"secret,omitempty"`
	Standings  []ranker.Standing `json:"standings,omitempty"`
	Survivors  []types.AgentID   `json:"survivors,omitempty"`
	Eliminated []types.AgentID   `json:"eliminated,omitempty"`
}

type Results struct {
	Summary

	Rounds     []RoundResult          `json:"rounds"`
	Outcome    *tournament.Outcome    `json:"outcome,omitempty"`
	Settlement *tournament.Settlement `json:"settlement,omitempty"`
}
