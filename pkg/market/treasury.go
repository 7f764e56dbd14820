package market

import (
	"context"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"
)

// BalanceStore persists the treasury's per-currency balances.
type BalanceStore interface {
	Balance(currency common.Address) (*big.Int, error)
	SetBalance(currency common.Address, amount *big.Int) error
}

// Treasury tracks funds the marketplace itself holds: payouts that could not
// be delivered to their recipient and anything sent to the contract directly.
// Balances only grow through Credit and only shrink through an owner
// withdrawal.
type Treasury struct {
	mu sync.Mutex

	owner      common.Address
	balances   BalanceStore
	currencies CurrencyResolver
}

// WithdrawalReceipt records one treasury withdrawal; Amount is zero when the
// balance was already empty.
type WithdrawalReceipt struct {
	Currency common.Address
	To       common.Address
	Amount   *big.Int
}

// NewTreasury creates a treasury owned by owner, paying out through the given
// currency resolver.
func NewTreasury(owner common.Address, balances BalanceStore, currencies CurrencyResolver) *Treasury {
	return &Treasury{owner: owner, balances: balances, currencies: currencies}
}

// Credit adds amount to the held balance for currency.
func (t *Treasury) Credit(currency common.Address, amount *big.Int) error {
	if amount == nil || amount.Sign() <= 0 {
		return nil
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	bal, err := t.balances.Balance(currency)
	if err != nil {
		return fmt.Errorf("treasury balance read: %w", err)
	}
	bal = new(big.Int).Add(bal, amount)
	if err := t.balances.SetBalance(currency, bal); err != nil {
		return fmt.Errorf("treasury balance write: %w", err)
	}
	return nil
}

// Balance returns the held balance for currency.
func (t *Treasury) Balance(currency common.Address) (*big.Int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.balances.Balance(currency)
}

// Withdraw transfers the entire held balance for currency to `to` and zeroes
// it. Owner only. Withdrawing an empty balance is not an error: it succeeds
// with a zero-amount receipt and the balance stays at zero.
func (t *Treasury) Withdraw(ctx context.Context, caller, currency, to common.Address) (*WithdrawalReceipt, error) {
	if caller != t.owner {
		return nil, fmt.Errorf("%w: caller %s is not the owner", ErrUnauthorized, caller.Hex())
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	bal, err := t.balances.Balance(currency)
	if err != nil {
		return nil, fmt.Errorf("treasury balance read: %w", err)
	}
	receipt := &WithdrawalReceipt{Currency: currency, To: to, Amount: bal}
	if bal.Sign() == 0 {
		return receipt, nil
	}

	cur, ok := t.currencies.Currency(currency)
	if !ok {
		return nil, fmt.Errorf("%w: no collaborator for currency %s", ErrPaymentTransferFailed, currency.Hex())
	}
	if err := cur.Transfer(ctx, to, bal); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPaymentTransferFailed, err)
	}
	if err := t.balances.SetBalance(currency, big.NewInt(0)); err != nil {
		return nil, fmt.Errorf("treasury balance write: %w", err)
	}
	return receipt, nil
}
