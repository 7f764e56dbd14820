package devnet

import (
	"context"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
)

var (
	mkt   = common.HexToAddress("0x0000000000000000000000000000000000000001")
	alice = common.HexToAddress("0x0000000000000000000000000000000000000002")
	bob   = common.HexToAddress("0x0000000000000000000000000000000000000003")
)

func TestCollectionMintAndTransfer(t *testing.T) {
	c := NewCollection(mkt)
	ctx := context.Background()

	id := c.SafeMint(alice, "ipfs://QmOne", alice, 250)
	if id.Sign() <= 0 {
		t.Fatalf("minted id = %s, want positive", id)
	}
	owner, err := c.OwnerOf(ctx, id)
	if err != nil || owner != alice {
		t.Fatalf("owner = %s (err %v), want alice", owner.Hex(), err)
	}
	uri, ok := c.TokenURI(id)
	if !ok || uri != "ipfs://QmOne" {
		t.Errorf("uri = %q, want ipfs://QmOne", uri)
	}

	// Transfer needs a prior approval from the owner
	if err := c.Transfer(ctx, alice, bob, id); err == nil {
		t.Error("transfer without approval succeeded")
	}
	if err := c.Approve(bob, id); err == nil {
		t.Error("non-owner approval succeeded")
	}
	if err := c.Approve(alice, id); err != nil {
		t.Fatalf("approve failed: %v", err)
	}
	if err := c.Transfer(ctx, alice, bob, id); err != nil {
		t.Fatalf("transfer failed: %v", err)
	}
	owner, _ = c.OwnerOf(ctx, id)
	if owner != bob {
		t.Errorf("owner after transfer = %s, want bob", owner.Hex())
	}

	// Approval does not survive a transfer
	if err := c.Transfer(ctx, bob, alice, id); err == nil {
		t.Error("transfer re-used a consumed approval")
	}
}

func TestCollectionLazyMintIDs(t *testing.T) {
	c := NewCollection(mkt)
	ctx := context.Background()

	id1, err := c.Mint(ctx, alice, "ipfs://QmA", alice, 100)
	if err != nil {
		t.Fatalf("mint failed: %v", err)
	}
	id2, err := c.Mint(ctx, bob, "ipfs://QmB", alice, 100)
	if err != nil {
		t.Fatalf("mint failed: %v", err)
	}
	if id1.Cmp(id2) == 0 {
		t.Error("mint reused an id")
	}
}

func TestBankApprovalSemantics(t *testing.T) {
	b := NewBank(mkt)
	ctx := context.Background()
	b.Credit(alice, big.NewInt(100))

	// Token-style bank requires an allowance for TransferFrom
	if err := b.TransferFrom(ctx, alice, mkt, big.NewInt(50)); err == nil {
		t.Error("pull without allowance succeeded")
	}
	b.Approve(alice, big.NewInt(50))
	if err := b.TransferFrom(ctx, alice, mkt, big.NewInt(50)); err != nil {
		t.Fatalf("pull failed: %v", err)
	}
	// Allowance is spent
	if err := b.TransferFrom(ctx, alice, mkt, big.NewInt(1)); err == nil {
		t.Error("pull beyond allowance succeeded")
	}

	bal, _ := b.BalanceOf(ctx, mkt)
	if bal.Cmp(big.NewInt(50)) != 0 {
		t.Errorf("marketplace balance = %s, want 50", bal)
	}

	// Transfer pays out of the marketplace's own holdings
	if err := b.Transfer(ctx, bob, big.NewInt(50)); err != nil {
		t.Fatalf("payout failed: %v", err)
	}
	if err := b.Transfer(ctx, bob, big.NewInt(1)); err == nil {
		t.Error("payout beyond holdings succeeded")
	}
}

func TestNativeBankSkipsApproval(t *testing.T) {
	b := NewNativeBank(mkt)
	ctx := context.Background()
	b.Credit(alice, big.NewInt(100))

	// The attached value on the buy call is the buyer's consent; no Approve
	if err := b.TransferFrom(ctx, alice, mkt, big.NewInt(100)); err != nil {
		t.Fatalf("native pull failed: %v", err)
	}
	if err := b.TransferFrom(ctx, alice, mkt, big.NewInt(1)); err == nil {
		t.Error("pull beyond balance succeeded")
	}
}
