package payment

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ClawGameArena/ClawGame/internal/pkg/types"
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// Ledger is an in-process Collaborator. It keeps deposits and balances in
// memory and settles each tournament at most once.
type Ledger struct {
	mu sync.Mutex

	deposits map[types.TournamentID][]DepositRequest
	settled  map[types.TournamentID]string
	balances map[common.Address]*uint256.Int

	burned   *uint256.Int
	treasury *uint256.Int

	seq uint64
}

func NewLedger() *Ledger {
	return &Ledger{
		deposits: map[types.TournamentID][]DepositRequest{},
		settled:  map[types.TournamentID]string{},
		balances: map[common.Address]*uint256.Int{},
		burned:   new(uint256.Int),
		treasury: new(uint256.Int),
	}
}

func (l *Ledger) Deposit(_ context.Context, req DepositRequest) (Receipt, error) {
	if req.Amount == nil {
		return Receipt{}, fmt.Errorf("%w: missing amount", ErrInvalidDeposit)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if how, ok := l.settled[req.TournamentID]; ok {
		return Receipt{}, fmt.Errorf("%w: tournament %d was %s", ErrAlreadySettled, req.TournamentID, how)
	}

	req.Amount = new(uint256.Int).Set(req.Amount)
	l.deposits[req.TournamentID] = append(l.deposits[req.TournamentID], req)

	return l.receipt("deposit", req.TournamentID), nil
}

func (l *Ledger) Distribute(_ context.Context, id types.TournamentID, d Distribution) (Receipt, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if how, ok := l.settled[id]; ok {
		return Receipt{}, fmt.Errorf("%w: tournament %d was %s", ErrAlreadySettled, id, how)
	}

	amounts := d.Amounts(l.pool(id))

	l.credit(d.Winner, amounts.Winner)

	for i, finalist := range d.Finalists {
		l.credit(finalist, amounts.Finalists[i])
	}

	l.treasury.Add(l.treasury, amounts.Treasury)
	l.burned.Add(l.burned, amounts.Burn)

	l.settled[id] = "distributed"

	return l.receipt("distribute", id), nil
}

func (l *Ledger) RefundAll(_ context.Context, id types.TournamentID) (Receipt, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if how, ok := l.settled[id]; ok {
		return Receipt{}, fmt.Errorf("%w: tournament %d was %s", ErrAlreadySettled, id, how)
	}

	for _, dep := range l.deposits[id] {
		l.credit(dep.Wallet, dep.Amount)
	}

	l.settled[id] = "refunded"

	return l.receipt("refund", id), nil
}

func (l *Ledger) Pool(id types.TournamentID) *uint256.Int {
	l.mu.Lock()
	defer l.mu.Unlock()

	return l.pool(id)
}

func (l *Ledger) Balance(addr common.Address) *uint256.Int {
	l.mu.Lock()
	defer l.mu.Unlock()

	if b, ok := l.balances[addr]; ok {
		return new(uint256.Int).Set(b)
	}

	return new(uint256.Int)
}

func (l *Ledger) Burned() *uint256.Int {
	l.mu.Lock()
	defer l.mu.Unlock()

	return new(uint256.Int).Set(l.burned)
}

func (l *Ledger) Treasury() *uint256.Int {
	l.mu.Lock()
	defer l.mu.Unlock()

	return new(uint256.Int).Set(l.treasury)
}

func (l *Ledger) Settlement(id types.TournamentID) (string, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	how, ok := l.settled[id]

	return how, ok
}

func (l *Ledger) pool(id types.TournamentID) *uint256.Int {
	total := new(uint256.Int)
	for _, dep := range l.deposits[id] {
		total.Add(total, dep.Amount)
	}

	return total
}

func (l *Ledger) credit(addr common.Address, amount *uint256.Int) {
	b, ok := l.balances[addr]
	if !ok {
		b = new(uint256.Int)
		l.balances[addr] = b
	}

	b.Add(b, amount)
}

func (l *Ledger) receipt(op string, id types.TournamentID) Receipt {
	l.seq++

	return Receipt{
		Reference:   fmt.Sprintf("ledger-%s-%d-%d", op, id, l.seq),
		ConfirmedAt: time.Now(),
	}
}
