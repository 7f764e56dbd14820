package crypto

import (
	"encoding/json"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/math"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"
)

// EIP712Domain is the domain separator for EIP-712 typed data.
// Binding the protocol name, version, chain and verifying contract into the
// digest prevents a listing signed for one deployment from being replayed
// against another.
type EIP712Domain struct {
	Name              string         // Protocol name (e.g., "Victor Marketplace")
	Version           string         // Protocol version (e.g., "1.0.1")
	ChainID           *big.Int       // Chain ID the listing is bound to
	VerifyingContract common.Address // Validator contract the listing is bound to
}

// OrderEIP712 is the typed-data structure a seller signs when listing a
// collectible. Field order matters: it is the canonical encoding order and
// changing it invalidates every existing signature.
type OrderEIP712 struct {
	Seller          common.Address // Current owner / lister
	ContractAddress common.Address // Collection the asset belongs to
	RoyaltyFee      *big.Int       // Creator royalty in basis points (0-10000)
	RoyaltyReceiver common.Address // Royalty recipient
	PaymentToken    common.Address // Accepted currency; zero address = native coin
	BasePrice       *big.Int       // Price in the currency's smallest unit
	ListingTime     *big.Int       // Unix seconds the listing becomes buyable
	ExpirationTime  *big.Int       // Unix seconds the listing lapses; 0 = no expiry
	Nonce           *big.Int       // Distinguishes otherwise-identical lazy-mint listings
	TokenID         *big.Int       // Existing asset id, or 0 for lazy mint
	URI             string         // Metadata pointer, used only when minting
	ObjID           string         // Off-chain cross-reference id
}

// orderType is the EIP-712 type table for Order. The hashing and wallet-JSON
// paths both read it so they can never drift apart.
var orderType = []apitypes.Type{
	{Name: "seller", Type: "address"},
	{Name: "contractAddress", Type: "address"},
	{Name: "royaltyFee", Type: "uint256"},
	{Name: "royaltyReceiver", Type: "address"},
	{Name: "paymentToken", Type: "address"},
	{Name: "basePrice", Type: "uint256"},
	{Name: "listingTime", Type: "uint256"},
	{Name: "expirationTime", Type: "uint256"},
	{Name: "nonce", Type: "uint256"},
	{Name: "tokenId", Type: "uint256"},
	{Name: "uri", Type: "string"},
	{Name: "objId", Type: "string"},
}

// EIP712Signer hashes, signs and recovers marketplace orders under a fixed
// domain. It holds no mutable state; every method is a pure function of its
// inputs and the domain.
type EIP712Signer struct {
	domain EIP712Domain
}

// NewEIP712Signer creates a signer bound to the given domain.
func NewEIP712Signer(domain EIP712Domain) *EIP712Signer {
	return &EIP712Signer{domain: domain}
}

// Domain returns the domain the signer was constructed with.
func (e *EIP712Signer) Domain() EIP712Domain { return e.domain }

func (e *EIP712Signer) typedData(order *OrderEIP712) apitypes.TypedData {
	return apitypes.TypedData{
		Types: apitypes.Types{
			"EIP712Domain": []apitypes.Type{
				{Name: "name", Type: "string"},
				{Name: "version", Type: "string"},
				{Name: "chainId", Type: "uint256"},
				{Name: "verifyingContract", Type: "address"},
			},
			"Order": orderType,
		},
		PrimaryType: "Order",
		Domain: apitypes.TypedDataDomain{
			Name:              e.domain.Name,
			Version:           e.domain.Version,
			ChainId:           (*math.HexOrDecimal256)(e.domain.ChainID),
			VerifyingContract: e.domain.VerifyingContract.Hex(),
		},
		Message: apitypes.TypedDataMessage{
			"seller":          order.Seller.Hex(),
			"contractAddress": order.ContractAddress.Hex(),
			"royaltyFee":      order.RoyaltyFee.String(),
			"royaltyReceiver": order.RoyaltyReceiver.Hex(),
			"paymentToken":    order.PaymentToken.Hex(),
			"basePrice":       order.BasePrice.String(),
			"listingTime":     order.ListingTime.String(),
			"expirationTime":  order.ExpirationTime.String(),
			"nonce":           order.Nonce.String(),
			"tokenId":         order.TokenID.String(),
			"uri":             order.URI,
			"objId":           order.ObjID,
		},
	}
}

// HashOrder computes the EIP-712 digest a seller signs:
// keccak256("\x19\x01" || domainSeparator || hashStruct(order)).
func (e *EIP712Signer) HashOrder(order *OrderEIP712) ([]byte, error) {
	typedData := e.typedData(order)

	domainSeparator, err := typedData.HashStruct("EIP712Domain", typedData.Domain.Map())
	if err != nil {
		return nil, fmt.Errorf("failed to hash domain: %w", err)
	}

	typedDataHash, err := typedData.HashStruct(typedData.PrimaryType, typedData.Message)
	if err != nil {
		return nil, fmt.Errorf("failed to hash message: %w", err)
	}

	rawData := []byte(fmt.Sprintf("\x19\x01%s%s", string(domainSeparator), string(typedDataHash)))
	digest := crypto.Keccak256Hash(rawData)

	return digest.Bytes(), nil
}

// SignOrder signs an order with the given key and returns the 65-byte
// [R || S || V] signature.
func (e *EIP712Signer) SignOrder(signer *Signer, order *OrderEIP712) ([]byte, error) {
	hash, err := e.HashOrder(order)
	if err != nil {
		return nil, fmt.Errorf("failed to hash order: %w", err)
	}

	signature, err := signer.Sign(hash)
	if err != nil {
		return nil, fmt.Errorf("failed to sign order: %w", err)
	}

	return signature, nil
}

// RecoverOrderSigner recovers the address that produced signature over the
// order's digest. It performs recovery only; callers decide whether the
// recovered address is authorized to sell.
func (e *EIP712Signer) RecoverOrderSigner(order *OrderEIP712, signature []byte) (common.Address, error) {
	hash, err := e.HashOrder(order)
	if err != nil {
		return common.Address{}, fmt.Errorf("failed to hash order: %w", err)
	}

	addr, err := RecoverAddress(hash, signature)
	if err != nil {
		return common.Address{}, err
	}
	if addr == (common.Address{}) {
		return common.Address{}, fmt.Errorf("recovered zero address")
	}
	return addr, nil
}

// VerifyOrderSignature reports whether signature was produced by order.Seller
// over the order's digest.
func (e *EIP712Signer) VerifyOrderSignature(order *OrderEIP712, signature []byte) (bool, error) {
	addr, err := e.RecoverOrderSigner(order, signature)
	if err != nil {
		return false, err
	}
	return addr == order.Seller, nil
}

// OrderToJSON renders the typed data in the format wallets expect for
// eth_signTypedData_v4, so a frontend can request the exact same digest.
func (e *EIP712Signer) OrderToJSON(order *OrderEIP712) (string, error) {
	typedData := e.typedData(order)

	payload := map[string]interface{}{
		"types":       typedData.Types,
		"primaryType": typedData.PrimaryType,
		"domain": map[string]interface{}{
			"name":              e.domain.Name,
			"version":           e.domain.Version,
			"chainId":           e.domain.ChainID.String(),
			"verifyingContract": e.domain.VerifyingContract.Hex(),
		},
		"message": typedData.Message,
	}

	jsonBytes, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal JSON: %w", err)
	}
	return string(jsonBytes), nil
}
