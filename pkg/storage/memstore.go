package storage

import (
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"github.com/victorlabs/vicmarket/pkg/market"
)

// MemStore is an in-memory Ledger + BalanceStore for tests and throwaway
// devnet runs. Same semantics as PebbleStore, no durability.
type MemStore struct {
	mu       sync.Mutex
	used     map[market.ConsumptionKey]bool
	balances map[common.Address]*big.Int
}

func NewMemStore() *MemStore {
	return &MemStore{
		used:     make(map[market.ConsumptionKey]bool),
		balances: make(map[common.Address]*big.Int),
	}
}

func (s *MemStore) Consumed(key market.ConsumptionKey) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.used[key], nil
}

func (s *MemStore) Consume(key market.ConsumptionKey) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.used[key] = true
	return nil
}

func (s *MemStore) Release(key market.ConsumptionKey) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.used, key)
	return nil
}

func (s *MemStore) Balance(currency common.Address) (*big.Int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if b, ok := s.balances[currency]; ok {
		return new(big.Int).Set(b), nil
	}
	return big.NewInt(0), nil
}

func (s *MemStore) SetBalance(currency common.Address, amount *big.Int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.balances[currency] = new(big.Int).Set(amount)
	return nil
}

var _ market.Ledger = (*MemStore)(nil)
var _ market.BalanceStore = (*MemStore)(nil)
