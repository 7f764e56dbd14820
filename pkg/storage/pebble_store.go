package storage

import (
	"fmt"
	"math/big"

	"github.com/cockroachdb/pebble"
	"github.com/ethereum/go-ethereum/common"

	"github.com/victorlabs/vicmarket/pkg/market"
)

// PebbleStore persists the two durable shared resources of the settlement
// engine: the consumption ledger (keys settled exactly once, never cleared)
// and the treasury's per-currency balances. Both are small, point-read
// workloads, so every write goes down with Sync.
type PebbleStore struct {
	db *pebble.DB
}

func NewPebbleStore(path string) (*PebbleStore, error) {
	db, err := pebble.Open(path, &pebble.Options{})
	if err != nil {
		return nil, err
	}
	return &PebbleStore{db: db}, nil
}

func (s *PebbleStore) Close() error { return s.db.Close() }

// keys: u:<consumption-key> (used flag), t:<20-byte-currency> (balance)
func kUsed(key market.ConsumptionKey) []byte  { return append([]byte("u:"), key...) }
func kBalance(currency common.Address) []byte { return append([]byte("t:"), currency.Bytes()...) }

// Consumed reports whether key has ever been settled.
func (s *PebbleStore) Consumed(key market.ConsumptionKey) (bool, error) {
	_, closer, err := s.db.Get(kUsed(key))
	if err == pebble.ErrNotFound {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("ledger read %s: %w", key, err)
	}
	closer.Close()
	return true, nil
}

// Consume marks key as settled.
func (s *PebbleStore) Consume(key market.ConsumptionKey) error {
	if err := s.db.Set(kUsed(key), []byte{1}, pebble.Sync); err != nil {
		return fmt.Errorf("ledger write %s: %w", key, err)
	}
	return nil
}

// Release clears a consumption mark. Only the settlement unwind path uses
// this; a successfully settled key is never released.
func (s *PebbleStore) Release(key market.ConsumptionKey) error {
	if err := s.db.Delete(kUsed(key), pebble.Sync); err != nil {
		return fmt.Errorf("ledger delete %s: %w", key, err)
	}
	return nil
}

// Balance returns the treasury balance held for currency, zero when absent.
func (s *PebbleStore) Balance(currency common.Address) (*big.Int, error) {
	val, closer, err := s.db.Get(kBalance(currency))
	if err == pebble.ErrNotFound {
		return big.NewInt(0), nil
	}
	if err != nil {
		return nil, fmt.Errorf("balance read %s: %w", currency.Hex(), err)
	}
	defer closer.Close()
	return new(big.Int).SetBytes(val), nil
}

// SetBalance overwrites the treasury balance held for currency.
func (s *PebbleStore) SetBalance(currency common.Address, amount *big.Int) error {
	if err := s.db.Set(kBalance(currency), amount.Bytes(), pebble.Sync); err != nil {
		return fmt.Errorf("balance write %s: %w", currency.Hex(), err)
	}
	return nil
}

var _ market.Ledger = (*PebbleStore)(nil)
var _ market.BalanceStore = (*PebbleStore)(nil)
