package market

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"

	"github.com/victorlabs/vicmarket/pkg/crypto"
)

// FeeDenominator is the basis-point denominator for royalty and platform fees.
const FeeDenominator = 10000

// NativeCurrency is the sentinel payment-token address denoting the chain's
// native coin.
var NativeCurrency = common.Address{}

// Order is a seller-signed listing of a collectible for sale. It is immutable
// once signed: the engine only reads it, and any field change invalidates the
// signature.
type Order struct {
	Seller          common.Address // Asset owner / lister, must match the recovered signer
	ContractAddress common.Address // Collection the asset belongs to
	RoyaltyFee      int64          // Creator royalty in basis points (0-10000)
	RoyaltyReceiver common.Address // Royalty recipient
	PaymentToken    common.Address // Accepted currency; NativeCurrency = native coin
	BasePrice       *big.Int       // Price in the currency's smallest unit, > 0
	ListingTime     int64          // Unix seconds the listing becomes buyable
	ExpirationTime  int64          // Unix seconds the listing lapses; 0 = no expiry
	Nonce           uint64         // Replay discriminator for lazy-mint listings
	TokenID         *big.Int       // Existing asset id, or 0 for lazy mint
	Signature       []byte         // 65-byte [R || S || V] over the typed-data digest
	URI             string         // Metadata pointer, used only when minting
	ObjID           string         // Off-chain cross-reference id (opaque)
}

// Validate checks the order is structurally sound before any cryptographic or
// stateful work. Every violation maps to ErrMalformedOrder.
func (o *Order) Validate() error {
	if o == nil {
		return fmt.Errorf("%w: nil order", ErrMalformedOrder)
	}
	if o.Seller == (common.Address{}) {
		return fmt.Errorf("%w: zero seller", ErrMalformedOrder)
	}
	if o.ContractAddress == (common.Address{}) {
		return fmt.Errorf("%w: zero asset contract", ErrMalformedOrder)
	}
	if o.BasePrice == nil || o.BasePrice.Sign() <= 0 {
		return fmt.Errorf("%w: base price must be positive", ErrMalformedOrder)
	}
	if o.RoyaltyFee < 0 || o.RoyaltyFee > FeeDenominator {
		return fmt.Errorf("%w: royalty fee %d out of range", ErrMalformedOrder, o.RoyaltyFee)
	}
	if o.RoyaltyFee > 0 && o.RoyaltyReceiver == (common.Address{}) {
		return fmt.Errorf("%w: royalty fee set but receiver is zero", ErrMalformedOrder)
	}
	if o.ListingTime < 0 || o.ExpirationTime < 0 {
		return fmt.Errorf("%w: negative timestamp", ErrMalformedOrder)
	}
	if o.TokenID == nil || o.TokenID.Sign() < 0 {
		return fmt.Errorf("%w: invalid token id", ErrMalformedOrder)
	}
	if len(o.Signature) != 65 {
		return fmt.Errorf("%w: signature must be 65 bytes, got %d", ErrMalformedOrder, len(o.Signature))
	}
	return nil
}

// IsLazyMint reports whether the listed asset does not exist yet and must be
// minted to the buyer at settlement.
func (o *Order) IsLazyMint() bool {
	return o.TokenID == nil || o.TokenID.Sign() == 0
}

// ConsumptionKey is the replay-prevention identity of an order: the token id
// for an existing asset, or (seller, nonce) for a lazy mint. Each key settles
// at most once for the lifetime of the ledger.
type ConsumptionKey string

// ConsumptionKey derives the order's replay key.
func (o *Order) ConsumptionKey() ConsumptionKey {
	if !o.IsLazyMint() {
		return ConsumptionKey("token:" + o.TokenID.String())
	}
	return ConsumptionKey(fmt.Sprintf("nonce:%s:%d", strings.ToLower(o.Seller.Hex()), o.Nonce))
}

// ToEIP712 converts the order to its typed-data form for hashing and
// signature recovery.
func (o *Order) ToEIP712() *crypto.OrderEIP712 {
	tokenID := o.TokenID
	if tokenID == nil {
		tokenID = big.NewInt(0)
	}
	return &crypto.OrderEIP712{
		Seller:          o.Seller,
		ContractAddress: o.ContractAddress,
		RoyaltyFee:      big.NewInt(o.RoyaltyFee),
		RoyaltyReceiver: o.RoyaltyReceiver,
		PaymentToken:    o.PaymentToken,
		BasePrice:       o.BasePrice,
		ListingTime:     big.NewInt(o.ListingTime),
		ExpirationTime:  big.NewInt(o.ExpirationTime),
		Nonce:           new(big.Int).SetUint64(o.Nonce),
		TokenID:         tokenID,
		URI:             o.URI,
		ObjID:           o.ObjID,
	}
}
