package market

import (
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/common"
)

// Ledger is the durable consumption record behind the Registry. Keys are set
// exactly once for the lifetime of the deployment and never reused; Release
// exists solely for the engine's unwind path when asset delivery fails after
// a key was marked.
type Ledger interface {
	Consumed(key ConsumptionKey) (bool, error)
	Consume(key ConsumptionKey) error
	Release(key ConsumptionKey) error
}

// Registry holds the deployment-wide configuration the engine verifies
// against: the payment-currency allow-list, the linked collection and
// marketplace addresses, and the consumption ledger. All mutators are gated
// on the owner address.
type Registry struct {
	mu sync.RWMutex

	owner         common.Address
	allowed       map[common.Address]bool
	assetContract common.Address
	marketplace   common.Address

	ledger Ledger
}

// NewRegistry creates a registry owned by owner, with an empty allow-list.
func NewRegistry(owner common.Address, ledger Ledger) *Registry {
	return &Registry{
		owner:   owner,
		allowed: make(map[common.Address]bool),
		ledger:  ledger,
	}
}

// Owner returns the authorized configuration party.
func (r *Registry) Owner() common.Address { return r.owner }

func (r *Registry) authorize(caller common.Address) error {
	if caller != r.owner {
		return fmt.Errorf("%w: caller %s is not the owner", ErrUnauthorized, caller.Hex())
	}
	return nil
}

// SetPaymentTokens replaces the entire currency allow-list. Replace-all
// semantics keep the list deterministic: the new list is exactly what was
// passed, regardless of what was allowed before.
func (r *Registry) SetPaymentTokens(caller common.Address, tokens []common.Address) error {
	if err := r.authorize(caller); err != nil {
		return err
	}
	allowed := make(map[common.Address]bool, len(tokens))
	for _, t := range tokens {
		allowed[t] = true
	}
	r.mu.Lock()
	r.allowed = allowed
	r.mu.Unlock()
	return nil
}

// IsAllowedCurrency reports whether c is currently accepted as payment.
func (r *Registry) IsAllowedCurrency(c common.Address) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.allowed[c]
}

// AllowedCurrencies returns a snapshot of the allow-list.
func (r *Registry) AllowedCurrencies() []common.Address {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]common.Address, 0, len(r.allowed))
	for c := range r.allowed {
		out = append(out, c)
	}
	return out
}

// SetAssetContract pins the collection address orders must reference.
func (r *Registry) SetAssetContract(caller, addr common.Address) error {
	if err := r.authorize(caller); err != nil {
		return err
	}
	r.mu.Lock()
	r.assetContract = addr
	r.mu.Unlock()
	return nil
}

// AssetContract returns the pinned collection address.
func (r *Registry) AssetContract() common.Address {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.assetContract
}

// SetMarketplaceAddress records the settlement contract's own address, the
// reverse reference used when constructing the signature domain.
func (r *Registry) SetMarketplaceAddress(caller, addr common.Address) error {
	if err := r.authorize(caller); err != nil {
		return err
	}
	r.mu.Lock()
	r.marketplace = addr
	r.mu.Unlock()
	return nil
}

// MarketplaceAddress returns the linked settlement contract address.
func (r *Registry) MarketplaceAddress() common.Address {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.marketplace
}

// CheckAndConsume marks key as settled. Fails with ErrReplayedOrder if the
// key was ever consumed before. Callers serialize settlements, so the
// check-and-set is atomic with respect to the surrounding transaction.
func (r *Registry) CheckAndConsume(key ConsumptionKey) error {
	used, err := r.ledger.Consumed(key)
	if err != nil {
		return fmt.Errorf("consumption ledger read: %w", err)
	}
	if used {
		return fmt.Errorf("%w: key %s", ErrReplayedOrder, key)
	}
	if err := r.ledger.Consume(key); err != nil {
		return fmt.Errorf("consumption ledger write: %w", err)
	}
	return nil
}

// Release clears a consumption mark. Only the engine's atomic-unwind path
// calls this, when asset delivery failed and the settlement never happened.
func (r *Registry) Release(key ConsumptionKey) error {
	return r.ledger.Release(key)
}

// Consumed reports whether key has been settled.
func (r *Registry) Consumed(key ConsumptionKey) (bool, error) {
	return r.ledger.Consumed(key)
}
