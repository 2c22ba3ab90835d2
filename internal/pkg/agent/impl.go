package agent

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/ClawGameArena/ClawGame/internal/pkg/common"
	"github.com/ClawGameArena/ClawGame/internal/pkg/types"
	ethcommon "github.com/ethereum/go-ethereum/common"
	"github.com/samber/do/v2"
	bolt "go.etcd.io/bbolt"
)

const apiKeyPrefix = "claw_"

type RegistryService struct {
	DatabaseService *common.DatabaseService
}

func NewRegistryService(i do.Injector) (*RegistryService, error) {
	databaseService := do.MustInvoke[*common.DatabaseService](i)

	return &RegistryService{
		DatabaseService: databaseService,
	}, nil
}

func NewAPIKey() (string, error) {
	buf := make([]byte, 24)

	_, err := rand.Read(buf)
	if err != nil {
		return "", fmt.Errorf("failed to generate api key: %w", err)
	}

	return apiKeyPrefix + hex.EncodeToString(buf), nil
}

func hashKey(key string) []byte {
	sum := sha256.Sum256([]byte(key))

	return sum[:]
}

// Register stores a new active agent and returns it together with its API
// key. Only the key's hash is persisted.
func (s *RegistryService) Register(wallet, creator ethcommon.Address, name string, now time.Time) (Agent, string, error) {
	name = strings.TrimSpace(name)
	if name == "" || len(name) > MaxNameLength {
		return Agent{}, "", fmt.Errorf("%w: name must be 1-%d characters", ErrInvalidAgent, MaxNameLength)
	}

	if wallet == (ethcommon.Address{}) {
		return Agent{}, "", fmt.Errorf("%w: wallet is required", ErrInvalidAgent)
	}

	if creator == (ethcommon.Address{}) {
		creator = wallet
	}

	key, err := NewAPIKey()
	if err != nil {
		return Agent{}, "", err
	}

	var result Agent

	err = s.DatabaseService.DB.Update(func(tx *bolt.Tx) error {
		wallets := tx.Bucket([]byte(common.AgentWalletsBucket))
		if wallets.Get(wallet.Bytes()) != nil {
			return fmt.Errorf("%w: %s", ErrWalletTaken, wallet.Hex())
		}

		agents := tx.Bucket([]byte(common.AgentsBucket))

		seq, err := agents.NextSequence()
		if err != nil {
			return fmt.Errorf("failed to allocate agent id: %w", err)
		}

		result = Agent{
			ID:        types.AgentID(seq),
			Name:      name,
			Wallet:    wallet,
			Creator:   creator,
			Status:    StatusActive,
			CreatedAt: now.UTC(),
		}

		err = putAgent(agents, result)
		if err != nil {
			return err
		}

		idKey := common.Uint64Key(seq)

		err = wallets.Put(wallet.Bytes(), idKey)
		if err != nil {
			return fmt.Errorf("failed to index wallet: %w", err)
		}

		err = tx.Bucket([]byte(common.AgentKeysBucket)).Put(hashKey(key), idKey)
		if err != nil {
			return fmt.Errorf("failed to index api key: %w", err)
		}

		return nil
	})
	if err != nil {
		return Agent{}, "", fmt.Errorf("failed to register agent: %w", err)
	}

	return result, key, nil
}

func (s *RegistryService) Get(id types.AgentID) (Agent, error) {
	var result Agent

	err := s.DatabaseService.DB.View(func(tx *bolt.Tx) error {
		var err error

		result, err = getAgent(tx.Bucket([]byte(common.AgentsBucket)), id)

		return err
	})

	return result, err
}

func (s *RegistryService) Authenticate(key string) (Agent, error) {
	var result Agent

	err := s.DatabaseService.DB.View(func(tx *bolt.Tx) error {
		idKey := tx.Bucket([]byte(common.AgentKeysBucket)).Get(hashKey(key))
		if idKey == nil {
			return ErrUnknownKey
		}

		var err error

		result, err = getAgent(tx.Bucket([]byte(common.AgentsBucket)), types.AgentID(common.KeyUint64(idKey)))

		return err
	})

	return result, err
}

func (s *RegistryService) SetStatus(id types.AgentID, status Status) (Agent, error) {
	if !status.Valid() {
		return Agent{}, fmt.Errorf("%w: %q", ErrInvalidStatus, status)
	}

	var result Agent

	err := s.DatabaseService.DB.Update(func(tx *bolt.Tx) error {
		agents := tx.Bucket([]byte(common.AgentsBucket))

		var err error

		result, err = getAgent(agents, id)
		if err != nil {
			return err
		}

		result.Status = status

		return putAgent(agents, result)
	})

	return result, err
}

func getAgent(agents *bolt.Bucket, id types.AgentID) (Agent, error) {
	raw := agents.Get(common.Uint64Key(uint64(id)))
	if raw == nil {
		return Agent{}, fmt.Errorf("%w: %d", ErrNotFound, id)
	}

	var result Agent

	err := json.Unmarshal(raw, &result)
	if err != nil {
		return Agent{}, fmt.Errorf("failed to decode agent %d: %w", id, err)
	}

	return result, nil
}

func putAgent(agents *bolt.Bucket, a Agent) error {
	raw, err := json.Marshal(a)
	if err != nil {
		return fmt.Errorf("failed to encode agent %d: %w", a.ID, err)
	}

	err = agents.Put(common.Uint64Key(uint64(a.ID)), raw)
	if err != nil {
		return fmt.Errorf("failed to put agent %d: %w", a.ID, err)
	}

	return nil
}
