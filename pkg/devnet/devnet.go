// Package devnet provides in-process asset and currency collaborators for
// local development and tests. They mimic the approval semantics of the real
// on-chain contracts (a seller must approve the marketplace before its token
// can be moved, a buyer must approve a token spend) without any chain.
package devnet

import (
	"context"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"github.com/victorlabs/vicmarket/pkg/market"
)

// Collection is an in-memory collectible collection.
type Collection struct {
	mu sync.Mutex

	marketplace common.Address // the only operator allowed to move tokens
	nextID      int64

	owners    map[string]common.Address // tokenID -> owner
	uris      map[string]string
	royalties map[string]royalty
	approved  map[string]bool // tokenID -> marketplace approved
}

type royalty struct {
	receiver common.Address
	bps      int64
}

// NewCollection creates a collection that only the given marketplace may
// operate on.
func NewCollection(marketplace common.Address) *Collection {
	return &Collection{
		marketplace: marketplace,
		nextID:      1,
		owners:      make(map[string]common.Address),
		uris:        make(map[string]string),
		royalties:   make(map[string]royalty),
		approved:    make(map[string]bool),
	}
}

// SafeMint mints a token directly to an owner, outside any settlement. Used
// to seed secondary-sale fixtures the way the real collection's safeMint is
// used before listing.
func (c *Collection) SafeMint(to common.Address, uri string, royaltyReceiver common.Address, royaltyBps int64) *big.Int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.mint(to, uri, royaltyReceiver, royaltyBps)
}

func (c *Collection) mint(to common.Address, uri string, royaltyReceiver common.Address, royaltyBps int64) *big.Int {
	id := big.NewInt(c.nextID)
	c.nextID++
	k := id.String()
	c.owners[k] = to
	c.uris[k] = uri
	c.royalties[k] = royalty{receiver: royaltyReceiver, bps: royaltyBps}
	return id
}

// Approve lets a token's owner authorize the marketplace to move it.
func (c *Collection) Approve(caller common.Address, tokenID *big.Int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	k := tokenID.String()
	owner, ok := c.owners[k]
	if !ok {
		return fmt.Errorf("token %s does not exist", k)
	}
	if owner != caller {
		return fmt.Errorf("caller %s does not own token %s", caller.Hex(), k)
	}
	c.approved[k] = true
	return nil
}

// Mint implements market.AssetCollaborator: lazy-mint at settlement time.
func (c *Collection) Mint(_ context.Context, to common.Address, uri string, royaltyReceiver common.Address, royaltyBps int64) (*big.Int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.mint(to, uri, royaltyReceiver, royaltyBps), nil
}

// Transfer implements market.AssetCollaborator. The marketplace must have
// been approved for the token, and `from` must own it.
func (c *Collection) Transfer(_ context.Context, from, to common.Address, tokenID *big.Int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	k := tokenID.String()
	owner, ok := c.owners[k]
	if !ok {
		return fmt.Errorf("token %s does not exist", k)
	}
	if owner != from {
		return fmt.Errorf("token %s owned by %s, not %s", k, owner.Hex(), from.Hex())
	}
	if !c.approved[k] {
		return fmt.Errorf("marketplace not approved for token %s", k)
	}
	c.owners[k] = to
	delete(c.approved, k) // approval does not survive a transfer
	return nil
}

// OwnerOf implements market.AssetCollaborator.
func (c *Collection) OwnerOf(_ context.Context, tokenID *big.Int) (common.Address, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	owner, ok := c.owners[tokenID.String()]
	if !ok {
		return common.Address{}, fmt.Errorf("token %s does not exist", tokenID.String())
	}
	return owner, nil
}

// TokenURI returns a token's metadata pointer.
func (c *Collection) TokenURI(tokenID *big.Int) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	uri, ok := c.uris[tokenID.String()]
	return uri, ok
}

var _ market.AssetCollaborator = (*Collection)(nil)

// Bank is an in-memory currency bound to the marketplace as spender. With
// requireApproval set it behaves like an ERC20 (TransferFrom needs a prior
// Approve); without it it models the native coin, where the attached value
// on the buy call is the buyer's consent.
type Bank struct {
	mu sync.Mutex

	marketplace     common.Address
	requireApproval bool

	balances   map[common.Address]*big.Int
	allowances map[common.Address]*big.Int // owner -> amount approved for marketplace
}

// NewBank creates a token-style bank (approval required).
func NewBank(marketplace common.Address) *Bank {
	return &Bank{
		marketplace:     marketplace,
		requireApproval: true,
		balances:        make(map[common.Address]*big.Int),
		allowances:      make(map[common.Address]*big.Int),
	}
}

// NewNativeBank creates a native-coin bank (no approval step).
func NewNativeBank(marketplace common.Address) *Bank {
	b := NewBank(marketplace)
	b.requireApproval = false
	return b
}

// Credit mints amount to an account. Test/devnet seeding only.
func (b *Bank) Credit(addr common.Address, amount *big.Int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.balances[addr] = new(big.Int).Add(b.balance(addr), amount)
}

// Approve authorizes the marketplace to pull up to amount from owner.
func (b *Bank) Approve(owner common.Address, amount *big.Int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.allowances[owner] = new(big.Int).Set(amount)
}

func (b *Bank) balance(addr common.Address) *big.Int {
	if v, ok := b.balances[addr]; ok {
		return v
	}
	return big.NewInt(0)
}

// TransferFrom implements market.CurrencyCollaborator.
func (b *Bank) TransferFrom(_ context.Context, from, to common.Address, amount *big.Int) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.requireApproval {
		allowance, ok := b.allowances[from]
		if !ok || allowance.Cmp(amount) < 0 {
			return fmt.Errorf("allowance of %s too low", from.Hex())
		}
		b.allowances[from] = new(big.Int).Sub(allowance, amount)
	}
	return b.move(from, to, amount)
}

// Transfer implements market.CurrencyCollaborator: pays out of the
// marketplace's own holdings.
func (b *Bank) Transfer(_ context.Context, to common.Address, amount *big.Int) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.move(b.marketplace, to, amount)
}

func (b *Bank) move(from, to common.Address, amount *big.Int) error {
	bal := b.balance(from)
	if bal.Cmp(amount) < 0 {
		return fmt.Errorf("balance of %s too low: have %s, need %s", from.Hex(), bal, amount)
	}
	b.balances[from] = new(big.Int).Sub(bal, amount)
	b.balances[to] = new(big.Int).Add(b.balance(to), amount)
	return nil
}

// BalanceOf implements market.CurrencyCollaborator.
func (b *Bank) BalanceOf(_ context.Context, holder common.Address) (*big.Int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return new(big.Int).Set(b.balance(holder)), nil
}

var _ market.CurrencyCollaborator = (*Bank)(nil)
