package store

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/ClawGameArena/ClawGame/internal/pkg/commitment"
	"github.com/ClawGameArena/ClawGame/internal/pkg/common"
	"github.com/ClawGameArena/ClawGame/internal/pkg/tournament"
	"github.com/ClawGameArena/ClawGame/internal/pkg/types"
	"github.com/samber/do/v2"
	bolt "go.etcd.io/bbolt"
)

// TournamentStore keeps tournament snapshots, round ledgers and the audit
// log in bbolt. Ledger and audit keys are big endian composites so a prefix
// scan returns one tournament (or round) in order.
type TournamentStore struct {
	DatabaseService *common.DatabaseService
}

func NewTournamentStoreService(i do.Injector) (tournament.Store, error) {
	databaseService := do.MustInvoke[*common.DatabaseService](i)

	return &TournamentStore{
		DatabaseService: databaseService,
	}, nil
}

func key(parts ...uint64) []byte {
	result := make([]byte, 0, 8*len(parts))
	for _, p := range parts {
		result = append(result, common.Uint64Key(p)...)
	}

	return result
}

func (s *TournamentStore) NextTournamentID() (types.TournamentID, error) {
	var id uint64

	err := s.DatabaseService.DB.Update(func(tx *bolt.Tx) error {
		var err error

		id, err = tx.Bucket([]byte(common.TournamentsBucket)).NextSequence()

		return err
	})
	if err != nil {
		return 0, fmt.Errorf("failed to allocate tournament id: %w", err)
	}

	return types.TournamentID(id), nil
}

func (s *TournamentStore) SaveTournament(t *tournament.Tournament) error {
	raw, err := json.Marshal(t)
	if err != nil {
		return fmt.Errorf("failed to encode tournament %d: %w", t.ID, err)
	}

	return s.put(common.TournamentsBucket, key(uint64(t.ID)), raw)
}

func (s *TournamentStore) LoadTournaments() ([]*tournament.Tournament, error) {
	result := []*tournament.Tournament{}

	err := s.DatabaseService.DB.View(func(tx *bolt.Tx) error {
		return tx.Bucket([]byte(common.TournamentsBucket)).ForEach(func(k, v []byte) error {
			var t tournament.Tournament

			err := json.Unmarshal(v, &t)
			if err != nil {
				return fmt.Errorf("failed to decode tournament %d: %w", common.KeyUint64(k), err)
			}

			result = append(result, &t)

			return nil
		})
	})
	if err != nil {
		return nil, fmt.Errorf("failed to load tournaments: %w", err)
	}

	return result, nil
}

func (s *TournamentStore) SaveLedgerRecord(id types.TournamentID, round int, rec commitment.Record) error {
	raw, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to encode ledger record: %w", err)
	}

	//nolint:gosec // round numbers are small and positive
	return s.put(common.LedgerBucket, key(uint64(id), uint64(round), uint64(rec.AgentID)), raw)
}

func (s *TournamentStore) LoadLedger(id types.TournamentID, round int) ([]commitment.Record, error) {
	//nolint:gosec // round numbers are small and positive
	return scan[commitment.Record](s, common.LedgerBucket, key(uint64(id), uint64(round)))
}

func (s *TournamentStore) AppendAudit(rec tournament.AuditRecord) error {
	raw, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to encode audit record: %w", err)
	}

	//nolint:gosec // round numbers are small and positive
	return s.put(common.AuditBucket, key(uint64(rec.TournamentID), uint64(rec.Round)), raw)
}

func (s *TournamentStore) Audit(id types.TournamentID) ([]tournament.AuditRecord, error) {
	return scan[tournament.AuditRecord](s, common.AuditBucket, key(uint64(id)))
}

func (s *TournamentStore) put(bucket string, k, v []byte) error {
	err := s.DatabaseService.DB.Update(func(tx *bolt.Tx) error {
		return tx.Bucket([]byte(bucket)).Put(k, v)
	})
	if err != nil {
		return fmt.Errorf("failed to put into %s: %w", bucket, err)
	}

	return nil
}

func scan[T any](s *TournamentStore, bucket string, prefix []byte) ([]T, error) {
	result := []T{}

	err := s.DatabaseService.DB.View(func(tx *bolt.Tx) error {
		c := tx.Bucket([]byte(bucket)).Cursor()

		for k, v := c.Seek(prefix); k != nil && bytes.HasPrefix(k, prefix); k, v = c.Next() {
			var item T

			err := json.Unmarshal(v, &item)
			if err != nil {
				return fmt.Errorf("failed to decode %s entry: %w", bucket, err)
			}

			result = append(result, item)
		}

		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan %s: %w", bucket, err)
	}

	return result, nil
}
