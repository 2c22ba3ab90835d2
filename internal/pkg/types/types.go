package types

import (
	"errors"
	"fmt"
	"strings"
)

const (
	MinBid = 1
	MaxBid = 1000

	MinSaltLength = 16

	MaxRounds       = 7
	MaxCapacity     = 100
	DefaultCapacity = MaxCapacity
)

var ErrUnknownArena = errors.New("unknown arena")

type (
	AgentID      uint64
	TournamentID uint64
)

type Arena uint8

const (
	Bronze Arena = iota
	Silver
	Gold
)

var Arenas = []Arena{Bronze, Silver, Gold}

func (a Arena) String() string {
	switch a {
	case Bronze:
		return "BRONZE"
	case Silver:
		return "SILVER"
	case Gold:
		return "GOLD"
	default:
		return fmt.Sprintf("ARENA(%d)", uint8(a))
	}
}

func (a Arena) Valid() bool {
	return a <= Gold
}

func ParseArena(s string) (Arena, error) {
	for _, a := range Arenas {
		if strings.EqualFold(s, a.String()) {
			return a, nil
		}
	}

	return 0, fmt.Errorf("%w: %q", ErrUnknownArena, s)
}

func (a Arena) MarshalText() ([]byte, error) {
	return []byte(a.String()), nil
}

func (a *Arena) UnmarshalText(b []byte) error {
	parsed, err := ParseArena(string(b))
	if err != nil {
		return err
	}

	*a = parsed

	return nil
}
