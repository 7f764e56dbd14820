package market

import (
	"errors"
	"math/big"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/common"
)

func validOrder() *Order {
	return &Order{
		Seller:          common.HexToAddress("0x0000000000000000000000000000000000000011"),
		ContractAddress: common.HexToAddress("0x0000000000000000000000000000000000000001"),
		RoyaltyFee:      250,
		RoyaltyReceiver: common.HexToAddress("0x0000000000000000000000000000000000000022"),
		PaymentToken:    NativeCurrency,
		BasePrice:       big.NewInt(10_000_000_000_000),
		ListingTime:     1_700_000_000,
		ExpirationTime:  0,
		Nonce:           1,
		TokenID:         big.NewInt(0),
		Signature:       make([]byte, 65),
		URI:             "ipfs://QmTest",
		ObjID:           "obj-1",
	}
}

func TestOrderValidate(t *testing.T) {
	if err := validOrder().Validate(); err != nil {
		t.Fatalf("valid order rejected: %v", err)
	}

	cases := []struct {
		name   string
		mutate func(*Order)
	}{
		{"zero seller", func(o *Order) { o.Seller = common.Address{} }},
		{"zero contract", func(o *Order) { o.ContractAddress = common.Address{} }},
		{"nil price", func(o *Order) { o.BasePrice = nil }},
		{"zero price", func(o *Order) { o.BasePrice = big.NewInt(0) }},
		{"negative price", func(o *Order) { o.BasePrice = big.NewInt(-1) }},
		{"royalty above denominator", func(o *Order) { o.RoyaltyFee = FeeDenominator + 1 }},
		{"negative royalty", func(o *Order) { o.RoyaltyFee = -1 }},
		{"royalty without receiver", func(o *Order) { o.RoyaltyReceiver = common.Address{} }},
		{"negative listing time", func(o *Order) { o.ListingTime = -1 }},
		{"negative expiration", func(o *Order) { o.ExpirationTime = -1 }},
		{"nil token id", func(o *Order) { o.TokenID = nil }},
		{"negative token id", func(o *Order) { o.TokenID = big.NewInt(-5) }},
		{"short signature", func(o *Order) { o.Signature = make([]byte, 64) }},
		{"empty signature", func(o *Order) { o.Signature = nil }},
	}
	for _, tc := range cases {
		o := validOrder()
		tc.mutate(o)
		err := o.Validate()
		if err == nil {
			t.Errorf("%s: expected validation error", tc.name)
			continue
		}
		if !errors.Is(err, ErrMalformedOrder) {
			t.Errorf("%s: error %v is not ErrMalformedOrder", tc.name, err)
		}
	}

	var nilOrder *Order
	if err := nilOrder.Validate(); !errors.Is(err, ErrMalformedOrder) {
		t.Errorf("nil order: got %v, want ErrMalformedOrder", err)
	}
}

func TestOrderZeroRoyaltyNeedsNoReceiver(t *testing.T) {
	o := validOrder()
	o.RoyaltyFee = 0
	o.RoyaltyReceiver = common.Address{}
	if err := o.Validate(); err != nil {
		t.Errorf("zero-royalty order rejected: %v", err)
	}
}

func TestIsLazyMint(t *testing.T) {
	o := validOrder()
	if !o.IsLazyMint() {
		t.Error("token id 0 should be a lazy mint")
	}
	o.TokenID = big.NewInt(7)
	if o.IsLazyMint() {
		t.Error("token id 7 should not be a lazy mint")
	}
}

func TestConsumptionKey(t *testing.T) {
	// Existing asset: keyed by token id, independent of seller and nonce
	o := validOrder()
	o.TokenID = big.NewInt(42)
	if got := o.ConsumptionKey(); got != ConsumptionKey("token:42") {
		t.Errorf("secondary key = %q, want token:42", got)
	}
	o.Nonce = 99
	if got := o.ConsumptionKey(); got != ConsumptionKey("token:42") {
		t.Errorf("secondary key changed with nonce: %q", got)
	}

	// Lazy mint: keyed by (seller, nonce), seller hex lowercased
	o = validOrder()
	o.Nonce = 7
	key := string(o.ConsumptionKey())
	want := "nonce:" + strings.ToLower(o.Seller.Hex()) + ":7"
	if key != want {
		t.Errorf("lazy key = %q, want %q", key, want)
	}

	// Two sellers with the same nonce never collide
	other := validOrder()
	other.Seller = common.HexToAddress("0x0000000000000000000000000000000000000033")
	other.Nonce = 7
	if o.ConsumptionKey() == other.ConsumptionKey() {
		t.Error("lazy keys collided across sellers")
	}
}

func TestToEIP712(t *testing.T) {
	o := validOrder()
	typed := o.ToEIP712()

	if typed.Seller != o.Seller {
		t.Errorf("seller = %s, want %s", typed.Seller.Hex(), o.Seller.Hex())
	}
	if typed.RoyaltyFee.Int64() != o.RoyaltyFee {
		t.Errorf("royaltyFee = %s, want %d", typed.RoyaltyFee, o.RoyaltyFee)
	}
	if typed.Nonce.Uint64() != o.Nonce {
		t.Errorf("nonce = %s, want %d", typed.Nonce, o.Nonce)
	}
	if typed.URI != o.URI || typed.ObjID != o.ObjID {
		t.Error("string fields did not carry over")
	}

	// nil TokenID maps to 0 so hashing never panics
	o.TokenID = nil
	if o.ToEIP712().TokenID.Sign() != 0 {
		t.Error("nil token id should map to 0")
	}
}
