package ranker

import "github.com/ClawGameArena/ClawGame/internal/pkg/types"

// MaxDistance is assigned to players without a verified reveal. It is larger
// than any distance a real bid can have.
const MaxDistance = types.MaxBid - types.MinBid + 1

type Standing struct {
	AgentID  types.AgentID `json:"agent_id"`
	Value    int           `json:"value,omitempty"`
	Revealed bool          `json:"revealed"`
	Distance int           `json:"distance"`
}

type Result struct {
	Secret     int             `json:"secret"`
	Standings  []Standing      `json:"standings"`
	Survivors  []types.AgentID `json:"survivors"`
	Eliminated []types.AgentID `json:"eliminated"`
}

// Contender is a player considered for the final ranking.
type Contender struct {
	AgentID            types.AgentID
	Alive              bool
	EliminatedRound    int
	LastDistance       int
	CumulativeDistance int
}
