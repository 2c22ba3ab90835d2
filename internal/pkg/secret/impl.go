// Package secret derives a round's target number from the salts of every
// verified reveal. Anyone holding the public reveal data can recompute it.
package secret

import (
	"bytes"
	"errors"
	"slices"

	"github.com/ClawGameArena/ClawGame/internal/pkg/types"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/holiman/uint256"
)

var ErrNoReveals = errors.New("no reveals to derive the secret from")

// Derive sorts the salts bytewise, hashes their concatenation and maps the
// digest onto [MinBid, MaxBid]. The input order does not matter and the
// input slice is left untouched.
func Derive(salts [][]byte) (int, error) {
	if len(salts) == 0 {
		return 0, ErrNoReveals
	}

	sorted := slices.Clone(salts)
	slices.SortFunc(sorted, bytes.Compare)

	digest := hashSalts(sorted)

	n := new(uint256.Int).SetBytes32(digest[:])
	n.Mod(n, uint256.NewInt(types.MaxBid-types.MinBid+1))

	//nolint:gosec // n < 1000
	return int(n.Uint64()) + types.MinBid, nil
}

// hashSalts is the secret's own hashing call-site, not shared with
// commitment.ComputeHash.
func hashSalts(sorted [][]byte) common.Hash {
	return crypto.Keccak256Hash(sorted...)
}
