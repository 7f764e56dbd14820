package market

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// AssetCollaborator is the engine's view of the collection contract. The
// engine never creates or owns assets itself; it asks the collaborator to
// mint or move them and treats any failure as fatal for the settlement.
type AssetCollaborator interface {
	// Mint creates a new asset owned by `to` with the given metadata URI and
	// royalty terms, returning the new asset id.
	Mint(ctx context.Context, to common.Address, uri string, royaltyReceiver common.Address, royaltyBps int64) (*big.Int, error)

	// Transfer moves an existing asset from the seller to the buyer.
	Transfer(ctx context.Context, from, to common.Address, tokenID *big.Int) error

	// OwnerOf returns the current owner of an asset.
	OwnerOf(ctx context.Context, tokenID *big.Int) (common.Address, error)
}

// CurrencyCollaborator is the engine's view of one payment currency. An
// implementation is bound to the marketplace as spender/payer: TransferFrom
// pulls buyer funds into the marketplace, Transfer pays out of the
// marketplace's own holdings.
type CurrencyCollaborator interface {
	TransferFrom(ctx context.Context, from, to common.Address, amount *big.Int) error
	Transfer(ctx context.Context, to common.Address, amount *big.Int) error
	BalanceOf(ctx context.Context, holder common.Address) (*big.Int, error)
}

// CurrencyResolver maps a currency address (NativeCurrency for the native
// coin) to its collaborator. The allow-list in the Registry decides whether a
// currency is acceptable; the resolver decides whether it is wired.
type CurrencyResolver interface {
	Currency(addr common.Address) (CurrencyCollaborator, bool)
}

// CurrencyMap is a static CurrencyResolver.
type CurrencyMap map[common.Address]CurrencyCollaborator

func (m CurrencyMap) Currency(addr common.Address) (CurrencyCollaborator, bool) {
	c, ok := m[addr]
	return c, ok
}
