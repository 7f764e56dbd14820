package api

import (
	"fmt"
	"math/big"

	"github.com/victorlabs/vicmarket/pkg/crypto"
	"github.com/victorlabs/vicmarket/pkg/market"
)

// Wire types for REST endpoints and WebSocket messages. Amounts travel as
// decimal strings: uint256 values do not fit in JSON numbers.

// OrderPayload is a signed listing as submitted by clients. Field names
// follow the typed-data field names sellers sign in their wallets.
type OrderPayload struct {
	Seller          string `json:"seller"`
	ContractAddress string `json:"contractAddress"`
	RoyaltyFee      int64  `json:"royaltyFee"`
	RoyaltyReceiver string `json:"royaltyReceiver"`
	PaymentToken    string `json:"paymentToken"`
	BasePrice       string `json:"basePrice"`
	ListingTime     int64  `json:"listingTime"`
	ExpirationTime  int64  `json:"expirationTime"`
	Nonce           uint64 `json:"nonce"`
	TokenID         string `json:"tokenId"`
	Signature       string `json:"signature"` // 0x-prefixed hex
	URI             string `json:"uri"`
	ObjID           string `json:"objId"`
}

// ToOrder parses the payload into the engine's order type. Parse errors map
// to MalformedOrder so clients get a taxonomy code, not a JSON error.
func (p *OrderPayload) ToOrder() (*market.Order, error) {
	seller, err := crypto.ParseAddress(p.Seller)
	if err != nil {
		return nil, fmt.Errorf("%w: seller: %v", market.ErrMalformedOrder, err)
	}
	contract, err := crypto.ParseAddress(p.ContractAddress)
	if err != nil {
		return nil, fmt.Errorf("%w: contractAddress: %v", market.ErrMalformedOrder, err)
	}
	royaltyReceiver, err := crypto.ParseAddress(p.RoyaltyReceiver)
	if err != nil {
		return nil, fmt.Errorf("%w: royaltyReceiver: %v", market.ErrMalformedOrder, err)
	}
	paymentToken, err := crypto.ParseAddress(p.PaymentToken)
	if err != nil {
		return nil, fmt.Errorf("%w: paymentToken: %v", market.ErrMalformedOrder, err)
	}
	basePrice, ok := new(big.Int).SetString(p.BasePrice, 10)
	if !ok {
		return nil, fmt.Errorf("%w: basePrice %q", market.ErrMalformedOrder, p.BasePrice)
	}
	tokenID, ok := new(big.Int).SetString(p.TokenID, 10)
	if !ok {
		return nil, fmt.Errorf("%w: tokenId %q", market.ErrMalformedOrder, p.TokenID)
	}
	sig, err := crypto.DecodeSignatureHex(p.Signature)
	if err != nil {
		return nil, fmt.Errorf("%w: signature: %v", market.ErrMalformedOrder, err)
	}

	return &market.Order{
		Seller:          seller,
		ContractAddress: contract,
		RoyaltyFee:      p.RoyaltyFee,
		RoyaltyReceiver: royaltyReceiver,
		PaymentToken:    paymentToken,
		BasePrice:       basePrice,
		ListingTime:     p.ListingTime,
		ExpirationTime:  p.ExpirationTime,
		Nonce:           p.Nonce,
		TokenID:         tokenID,
		Signature:       sig,
		URI:             p.URI,
		ObjID:           p.ObjID,
	}, nil
}

// BuyRequest is the settlement call: an order plus tendered payment.
type BuyRequest struct {
	Buyer         string       `json:"buyer"`
	AssetContract string       `json:"assetContract"`
	TokenID       string       `json:"tokenId"`
	ExpectedPrice string       `json:"expectedPrice"`
	Value         string       `json:"value,omitempty"` // attached native value
	Order         OrderPayload `json:"order"`
}

// PayoutInfo is one settlement distribution leg.
type PayoutInfo struct {
	Recipient string `json:"recipient"`
	Amount    string `json:"amount"`
}

// ReckonEvent is the settlement event emitted on every successful buy, over
// REST as the buy response and over WebSocket/gossip to subscribers.
type ReckonEvent struct {
	Key             string       `json:"key"`
	Buyer           string       `json:"buyer"`
	Seller          string       `json:"seller"`
	AssetID         string       `json:"assetId"`
	LazyMinted      bool         `json:"lazyMinted"`
	Currency        string       `json:"currency"`
	Price           string       `json:"price"`
	RoyaltyReceiver string       `json:"royaltyReceiver"`
	RoyaltyValue    string       `json:"royaltyValue"`
	PlatformFee     string       `json:"platformFee"`
	SellerProceeds  string       `json:"sellerProceeds"`
	Splits          []PayoutInfo `json:"splits,omitempty"`
	Retained        []PayoutInfo `json:"retained,omitempty"`
	ObjID           string       `json:"objId"`
	Timestamp       int64        `json:"timestamp"`
}

func reckonFromReceipt(r *market.Receipt) ReckonEvent {
	return ReckonEvent{
		Key:             string(r.Key),
		Buyer:           r.Buyer.Hex(),
		Seller:          r.Seller.Hex(),
		AssetID:         r.AssetID.String(),
		LazyMinted:      r.LazyMinted,
		Currency:        r.Currency.Hex(),
		Price:           r.Price.String(),
		RoyaltyReceiver: r.RoyaltyReceiver.Hex(),
		RoyaltyValue:    r.RoyaltyValue.String(),
		PlatformFee:     r.PlatformFee.String(),
		SellerProceeds:  r.SellerProceeds.String(),
		Splits:          payoutInfos(r.Splits),
		Retained:        payoutInfos(r.Retained),
		ObjID:           r.ObjID,
		Timestamp:       r.Timestamp,
	}
}

func payoutInfos(ps []market.Payout) []PayoutInfo {
	if len(ps) == 0 {
		return nil
	}
	out := make([]PayoutInfo, len(ps))
	for i, p := range ps {
		out[i] = PayoutInfo{Recipient: p.Recipient.Hex(), Amount: p.Amount.String()}
	}
	return out
}

// Admin request bodies. Caller is the claimed admin address; the engine
// rejects non-owners. The node trusts its transport the way a contract
// trusts msg.sender.
type PaymentTokensRequest struct {
	Caller string   `json:"caller"`
	Tokens []string `json:"tokens"`
}

type AssetContractRequest struct {
	Caller  string `json:"caller"`
	Address string `json:"address"`
}

type ClosingTimeRequest struct {
	Caller  string `json:"caller"`
	Seconds int64  `json:"seconds"` // 0 clears the deadline
}

type WithdrawRequest struct {
	Caller   string `json:"caller"`
	Currency string `json:"currency"`
	To       string `json:"to"`
}

// WithdrawResponse reports a treasury withdrawal; Amount is "0" when the
// balance was already empty.
type WithdrawResponse struct {
	Currency string `json:"currency"`
	To       string `json:"to"`
	Amount   string `json:"amount"`
}

// OrderStatus reports whether a consumption key has been settled.
type OrderStatus struct {
	Key      string `json:"key"`
	Consumed bool   `json:"consumed"`
}

// TreasuryBalance reports the held balance for one currency.
type TreasuryBalance struct {
	Currency string `json:"currency"`
	Balance  string `json:"balance"`
}

// ConfigInfo describes the deployment for clients that need to build and
// sign orders.
type ConfigInfo struct {
	DomainName        string   `json:"domainName"`
	DomainVersion     string   `json:"domainVersion"`
	ChainID           string   `json:"chainId"`
	VerifyingContract string   `json:"verifyingContract"`
	AssetContract     string   `json:"assetContract"`
	PaymentTokens     []string `json:"paymentTokens"`
	PlatformFeeBps    int64    `json:"platformFeeBps"`
	ClosingTime       int64    `json:"closingTime"`
}

// ErrorResponse is the uniform error body; Code is a settlement taxonomy
// code when the failure came from the engine.
type ErrorResponse struct {
	Error  string `json:"error"`
	Code   string `json:"code,omitempty"`
	Detail string `json:"detail,omitempty"`
}

// WSSubscribeRequest is the client -> server subscription message.
type WSSubscribeRequest struct {
	Op       string   `json:"op"` // "subscribe" or "unsubscribe"
	Channels []string `json:"channels"`
}
