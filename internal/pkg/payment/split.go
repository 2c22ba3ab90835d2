package payment

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// NewDistribution gives each actual finalist one FinalistBps slot; the slots
// left empty roll into the winner's share.
func NewDistribution(winner common.Address, finalists []common.Address) (Distribution, error) {
	if len(finalists) > FinalistSlots {
		return Distribution{}, fmt.Errorf("%w: %d > %d", ErrTooManyFinalists, len(finalists), FinalistSlots)
	}

	empty := uint64(FinalistSlots - len(finalists))

	return Distribution{
		Winner:      winner,
		Finalists:   append([]common.Address(nil), finalists...),
		WinnerBps:   WinnerBps + empty*FinalistBps,
		FinalistBps: FinalistBps,
		TreasuryBps: TreasuryBps,
		BurnBps:     BurnBps,
	}, nil
}

// Amounts splits pool. Whatever is not assigned to finalists, treasury and
// burn, rounding dust included, goes to the winner.
func (d Distribution) Amounts(pool *uint256.Int) Amounts {
	if pool == nil {
		pool = new(uint256.Int)
	}

	result := Amounts{
		Treasury:  share(pool, d.TreasuryBps),
		Burn:      share(pool, d.BurnBps),
		Finalists: make([]*uint256.Int, 0, len(d.Finalists)),
	}

	assigned := new(uint256.Int).Add(result.Treasury, result.Burn)

	for range d.Finalists {
		amount := share(pool, d.FinalistBps)
		assigned.Add(assigned, amount)
		result.Finalists = append(result.Finalists, amount)
	}

	result.Winner = new(uint256.Int).Sub(pool, assigned)

	return result
}

func share(pool *uint256.Int, bps uint64) *uint256.Int {
	// bps never exceeds BasisPoints, so the quotient fits.
	z, _ := new(uint256.Int).MulDivOverflow(pool, uint256.NewInt(bps), uint256.NewInt(BasisPoints))

	return z
}
