package commitment

import (
	"bytes"
	"cmp"
	"encoding/binary"
	"fmt"
	"slices"
	"sync"
	"sync/atomic"

	"github.com/ClawGameArena/ClawGame/internal/pkg/types"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
)

// ComputeHash returns keccak256(uint16(value) || salt), the layout the
// escrow contract uses for abi.encodePacked(uint16, bytes).
func ComputeHash(value int, salt []byte) common.Hash {
	buf := make([]byte, 2, 2+len(salt))
	//nolint:gosec // value is range checked by callers
	binary.BigEndian.PutUint16(buf, uint16(value))
	buf = append(buf, salt...)

	return crypto.Keccak256Hash(buf)
}

func ValidateValue(value int) error {
	if value < types.MinBid || value > types.MaxBid {
		return fmt.Errorf("%w: %d not in [%d, %d]", ErrInvalidValue, value, types.MinBid, types.MaxBid)
	}

	return nil
}

func ValidateSalt(salt []byte) error {
	if len(salt) < types.MinSaltLength {
		return fmt.Errorf("%w: %d bytes, need at least %d", ErrInvalidSalt, len(salt), types.MinSaltLength)
	}

	return nil
}

func ParseHash(s string) (common.Hash, error) {
	b, err := hexutil.Decode(s)
	if err != nil {
		return common.Hash{}, fmt.Errorf("%w: %w", ErrMalformedHash, err)
	}

	if len(b) != common.HashLength {
		return common.Hash{}, fmt.Errorf("%w: %d bytes", ErrMalformedHash, len(b))
	}

	return common.BytesToHash(b), nil
}

func ParseSalt(s string) ([]byte, error) {
	b, err := hexutil.Decode(s)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidSalt, err)
	}

	err = ValidateSalt(b)
	if err != nil {
		return nil, err
	}

	return b, nil
}

type entry struct {
	hash common.Hash
	// held from an accepted reveal until it is confirmed or aborted
	mu     sync.Mutex
	reveal atomic.Pointer[Reveal]
}

// Ledger holds the commitments and verified reveals of a single round.
// Writes on distinct agents never contend. Commits on the same agent are
// settled by compare-and-set, reveals by the slot lock.
type Ledger struct {
	entries sync.Map
}

func NewLedger() *Ledger {
	return &Ledger{}
}

// Commit stores hash for agentID. The returned func removes exactly this
// commitment again and is meant for rolling back a write that could not be
// persisted.
func (l *Ledger) Commit(agentID types.AgentID, hash common.Hash) (func(), error) {
	e := &entry{hash: hash}

	_, loaded := l.entries.LoadOrStore(agentID, e)
	if loaded {
		return nil, fmt.Errorf("%w: agent %d", ErrDuplicateCommit, agentID)
	}

	return func() {
		l.entries.CompareAndDelete(agentID, e)
	}, nil
}

// Pending is an accepted reveal that is not durable yet. The slot stays
// locked until Confirm or Abort is called, so a concurrent resubmission of
// the same pair waits for the outcome instead of reporting success early.
type Pending struct {
	once sync.Once
	e    *entry
	r    *Reveal
}

func (p *Pending) Confirm() {
	p.once.Do(p.e.mu.Unlock)
}

// Abort removes the reveal again.
func (p *Pending) Abort() {
	p.once.Do(func() {
		p.e.reveal.CompareAndSwap(p.r, nil)
		p.e.mu.Unlock()
	})
}

// Reveal verifies (value, salt) against the stored commitment. Resubmitting
// an accepted and confirmed pair returns a nil Pending and a nil error.
func (l *Ledger) Reveal(agentID types.AgentID, value int, salt []byte) (*Pending, error) {
	err := ValidateValue(value)
	if err != nil {
		return nil, err
	}

	err = ValidateSalt(salt)
	if err != nil {
		return nil, err
	}

	v, ok := l.entries.Load(agentID)
	if !ok {
		return nil, fmt.Errorf("%w: agent %d", ErrNoCommitment, agentID)
	}

	e, _ := v.(*entry)

	e.mu.Lock()

	if prev := e.reveal.Load(); prev != nil {
		e.mu.Unlock()

		return nil, sameOrRevealed(prev, value, salt)
	}

	if ComputeHash(value, salt) != e.hash {
		e.mu.Unlock()

		return nil, fmt.Errorf("%w: agent %d", ErrHashMismatch, agentID)
	}

	r := &Reveal{Value: value, Salt: bytes.Clone(salt)}
	e.reveal.Store(r)

	return &Pending{e: e, r: r}, nil
}

func sameOrRevealed(prev *Reveal, value int, salt []byte) error {
	if prev.Value == value && bytes.Equal(prev.Salt, salt) {
		return nil
	}

	return ErrAlreadyRevealed
}

// Restore loads a persisted record without re-verifying it.
func (l *Ledger) Restore(rec Record) {
	e := &entry{hash: rec.Hash}
	if rec.Reveal != nil {
		r := *rec.Reveal
		e.reveal.Store(&r)
	}

	l.entries.Store(rec.AgentID, e)
}

func (l *Ledger) Committed(agentID types.AgentID) bool {
	_, ok := l.entries.Load(agentID)

	return ok
}

func (l *Ledger) Revealed(agentID types.AgentID) bool {
	v, ok := l.entries.Load(agentID)
	if !ok {
		return false
	}

	e, _ := v.(*entry)

	return e.reveal.Load() != nil
}

// Records returns a snapshot ordered by agent id.
func (l *Ledger) Records() []Record {
	var result []Record

	l.entries.Range(func(k, v any) bool {
		agentID, _ := k.(types.AgentID)
		e, _ := v.(*entry)

		result = append(result, e.record(agentID))

		return true
	})

	slices.SortFunc(result, func(a, b Record) int {
		return cmp.Compare(a.AgentID, b.AgentID)
	})

	return result
}

func (l *Ledger) Record(agentID types.AgentID) (Record, bool) {
	v, ok := l.entries.Load(agentID)
	if !ok {
		return Record{}, false
	}

	e, _ := v.(*entry)

	return e.record(agentID), true
}

func (e *entry) record(agentID types.AgentID) Record {
	rec := Record{AgentID: agentID, Hash: e.hash}
	if r := e.reveal.Load(); r != nil {
		c := *r
		rec.Reveal = &c
	}

	return rec
}
