package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math/big"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/ethereum/go-ethereum/common"

	"github.com/victorlabs/vicmarket/pkg/crypto"
	"github.com/victorlabs/vicmarket/pkg/devnet"
	"github.com/victorlabs/vicmarket/pkg/market"
	"github.com/victorlabs/vicmarket/pkg/storage"
)

var (
	apiOwner  = common.HexToAddress("0x0000000000000000000000000000000000000200")
	apiMarket = common.HexToAddress("0x0000000000000000000000000000000000000201")
	apiBuyer  = common.HexToAddress("0x0000000000000000000000000000000000000202")
	apiAdmin  = common.HexToAddress("0x0000000000000000000000000000000000000203")
	apiColl   = common.HexToAddress("0x0000000000000000000000000000000000000204")
)

const apiPrice = 10_000_000_000_000

type apiFixture struct {
	server    *Server
	sellerKey *crypto.Signer
	verifier  *crypto.EIP712Signer
	native    *devnet.Bank
}

func newAPIFixture(t *testing.T) *apiFixture {
	t.Helper()

	sellerKey, err := crypto.GenerateKey()
	if err != nil {
		t.Fatalf("failed to generate key: %v", err)
	}

	store := storage.NewMemStore()
	registry := market.NewRegistry(apiOwner, store)
	if err := registry.SetPaymentTokens(apiOwner, []common.Address{market.NativeCurrency}); err != nil {
		t.Fatalf("failed to set payment tokens: %v", err)
	}

	native := devnet.NewNativeBank(apiMarket)
	currencies := market.CurrencyMap{market.NativeCurrency: native}
	verifier := crypto.NewEIP712Signer(crypto.EIP712Domain{
		Name:    "Victor Marketplace",
		Version: "1.0.1",
		ChainID: big.NewInt(31337),
	})

	engine, err := market.NewEngine(market.EngineConfig{
		Owner:       apiOwner,
		Marketplace: apiMarket,
		Registry:    registry,
		Treasury:    market.NewTreasury(apiOwner, store, currencies),
		FeeSplits:   market.FeeSplitTable{{Recipient: apiAdmin, ShareBps: 1000}},
		Verifier:    verifier,
		Assets:      devnet.NewCollection(apiMarket),
		Currencies:  currencies,
	})
	if err != nil {
		t.Fatalf("failed to build engine: %v", err)
	}

	return &apiFixture{
		server:    NewServer(engine),
		sellerKey: sellerKey,
		verifier:  verifier,
		native:    native,
	}
}

// signedPayload builds and signs a lazy-mint listing as a wire payload.
func (f *apiFixture) signedPayload(t *testing.T, nonce uint64) OrderPayload {
	t.Helper()
	order := &market.Order{
		Seller:          f.sellerKey.Address(),
		ContractAddress: apiColl,
		RoyaltyFee:      250,
		RoyaltyReceiver: f.sellerKey.Address(),
		PaymentToken:    market.NativeCurrency,
		BasePrice:       big.NewInt(apiPrice),
		ListingTime:     0,
		Nonce:           nonce,
		TokenID:         big.NewInt(0),
		URI:             "ipfs://QmTest",
		ObjID:           fmt.Sprintf("obj-%d", nonce),
	}
	sig, err := f.verifier.SignOrder(f.sellerKey, order.ToEIP712())
	if err != nil {
		t.Fatalf("failed to sign order: %v", err)
	}
	return OrderPayload{
		Seller:          order.Seller.Hex(),
		ContractAddress: order.ContractAddress.Hex(),
		RoyaltyFee:      order.RoyaltyFee,
		RoyaltyReceiver: order.RoyaltyReceiver.Hex(),
		PaymentToken:    order.PaymentToken.Hex(),
		BasePrice:       order.BasePrice.String(),
		ListingTime:     order.ListingTime,
		ExpirationTime:  order.ExpirationTime,
		Nonce:           order.Nonce,
		TokenID:         order.TokenID.String(),
		Signature:       fmt.Sprintf("0x%x", sig),
		URI:             order.URI,
		ObjID:           order.ObjID,
	}
}

func (f *apiFixture) buyRequest(payload OrderPayload) BuyRequest {
	return BuyRequest{
		Buyer:         apiBuyer.Hex(),
		AssetContract: payload.ContractAddress,
		TokenID:       payload.TokenID,
		ExpectedPrice: payload.BasePrice,
		Value:         payload.BasePrice,
		Order:         payload,
	}
}

func (f *apiFixture) post(t *testing.T, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	raw, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("failed to marshal request: %v", err)
	}
	req := httptest.NewRequest("POST", path, bytes.NewReader(raw))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	f.server.router.ServeHTTP(w, req)
	return w
}

func (f *apiFixture) get(t *testing.T, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest("GET", path, nil)
	w := httptest.NewRecorder()
	f.server.router.ServeHTTP(w, req)
	return w
}

func TestBuyEndpoint(t *testing.T) {
	f := newAPIFixture(t)
	f.native.Credit(apiBuyer, big.NewInt(2*apiPrice))
	payload := f.signedPayload(t, 1)

	w := f.post(t, "/api/v1/buy", f.buyRequest(payload))
	if w.Code != http.StatusOK {
		t.Fatalf("buy status = %d, body %s", w.Code, w.Body.String())
	}

	var event ReckonEvent
	if err := json.Unmarshal(w.Body.Bytes(), &event); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if !event.LazyMinted {
		t.Error("response not marked lazy-minted")
	}
	if event.Price != payload.BasePrice {
		t.Errorf("price = %s, want %s", event.Price, payload.BasePrice)
	}
	if event.Buyer != apiBuyer.Hex() {
		t.Errorf("buyer = %s, want %s", event.Buyer, apiBuyer.Hex())
	}

	// Replay of the same listing conflicts
	w = f.post(t, "/api/v1/buy", f.buyRequest(payload))
	if w.Code != http.StatusConflict {
		t.Errorf("replay status = %d, want 409", w.Code)
	}
	var errResp ErrorResponse
	if err := json.Unmarshal(w.Body.Bytes(), &errResp); err != nil {
		t.Fatalf("failed to decode error: %v", err)
	}
	if errResp.Code != "REPLAYED_ORDER" {
		t.Errorf("error code = %q, want REPLAYED_ORDER", errResp.Code)
	}

	// Settlement status is queryable by consumption key
	key := "nonce:" + toLowerHex(f.sellerKey.Address()) + ":1"
	w = f.get(t, "/api/v1/orders/"+key)
	if w.Code != http.StatusOK {
		t.Fatalf("order status = %d", w.Code)
	}
	var status OrderStatus
	json.Unmarshal(w.Body.Bytes(), &status)
	if !status.Consumed {
		t.Error("settled key reported unconsumed")
	}
}

func TestBuyEndpointBadSignature(t *testing.T) {
	f := newAPIFixture(t)
	f.native.Credit(apiBuyer, big.NewInt(apiPrice))

	payload := f.signedPayload(t, 1)
	payload.BasePrice = fmt.Sprintf("%d", apiPrice*2) // breaks the signature
	req := f.buyRequest(payload)

	w := f.post(t, "/api/v1/buy", req)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", w.Code)
	}
	var errResp ErrorResponse
	json.Unmarshal(w.Body.Bytes(), &errResp)
	if errResp.Code != "BAD_SIGNATURE" {
		t.Errorf("error code = %q, want BAD_SIGNATURE", errResp.Code)
	}
}

func TestAdminEndpointsRejectNonOwner(t *testing.T) {
	f := newAPIFixture(t)

	w := f.post(t, "/api/v1/admin/payment-tokens", PaymentTokensRequest{
		Caller: apiBuyer.Hex(),
		Tokens: []string{market.NativeCurrency.Hex()},
	})
	if w.Code != http.StatusForbidden {
		t.Errorf("payment-tokens status = %d, want 403", w.Code)
	}

	w = f.post(t, "/api/v1/admin/closing-time", ClosingTimeRequest{
		Caller:  apiBuyer.Hex(),
		Seconds: 600,
	})
	if w.Code != http.StatusForbidden {
		t.Errorf("closing-time status = %d, want 403", w.Code)
	}

	w = f.post(t, "/api/v1/admin/withdraw", WithdrawRequest{
		Caller:   apiBuyer.Hex(),
		Currency: market.NativeCurrency.Hex(),
		To:       apiBuyer.Hex(),
	})
	if w.Code != http.StatusForbidden {
		t.Errorf("withdraw status = %d, want 403", w.Code)
	}
}

func TestAdminClosingTime(t *testing.T) {
	f := newAPIFixture(t)

	w := f.post(t, "/api/v1/admin/closing-time", ClosingTimeRequest{
		Caller:  apiOwner.Hex(),
		Seconds: 600,
	})
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", w.Code, w.Body.String())
	}

	var resp map[string]interface{}
	json.Unmarshal(w.Body.Bytes(), &resp)
	if resp["closingTime"] == nil || resp["closingTime"].(float64) == 0 {
		t.Error("closing time not reported back")
	}
}

func TestTreasuryAndConfigEndpoints(t *testing.T) {
	f := newAPIFixture(t)

	w := f.get(t, "/api/v1/treasury/"+market.NativeCurrency.Hex())
	if w.Code != http.StatusOK {
		t.Fatalf("treasury status = %d", w.Code)
	}
	var bal TreasuryBalance
	json.Unmarshal(w.Body.Bytes(), &bal)
	if bal.Balance != "0" {
		t.Errorf("fresh treasury balance = %s, want 0", bal.Balance)
	}

	w = f.get(t, "/api/v1/config")
	if w.Code != http.StatusOK {
		t.Fatalf("config status = %d", w.Code)
	}
	var cfg ConfigInfo
	json.Unmarshal(w.Body.Bytes(), &cfg)
	if cfg.DomainName != "Victor Marketplace" || cfg.DomainVersion != "1.0.1" {
		t.Errorf("domain = %q %q", cfg.DomainName, cfg.DomainVersion)
	}
	if cfg.PlatformFeeBps != 1000 {
		t.Errorf("platform fee = %d, want 1000", cfg.PlatformFeeBps)
	}

	w = f.get(t, "/health")
	if w.Code != http.StatusOK {
		t.Errorf("health status = %d", w.Code)
	}
}

func TestOrderPayloadToOrder(t *testing.T) {
	f := newAPIFixture(t)
	payload := f.signedPayload(t, 3)

	order, err := payload.ToOrder()
	if err != nil {
		t.Fatalf("failed to parse payload: %v", err)
	}
	if order.Seller != f.sellerKey.Address() {
		t.Errorf("seller = %s", order.Seller.Hex())
	}
	if order.BasePrice.Cmp(big.NewInt(apiPrice)) != 0 {
		t.Errorf("price = %s", order.BasePrice)
	}
	if len(order.Signature) != 65 {
		t.Errorf("signature length = %d", len(order.Signature))
	}

	// Parse failures map to the malformed-order taxonomy code
	bad := payload
	bad.BasePrice = "not-a-number"
	if _, err := bad.ToOrder(); market.ErrorCode(err) != "MALFORMED_ORDER" {
		t.Errorf("bad price: code %q, want MALFORMED_ORDER", market.ErrorCode(err))
	}
	bad = payload
	bad.Seller = "0x123"
	if _, err := bad.ToOrder(); market.ErrorCode(err) != "MALFORMED_ORDER" {
		t.Errorf("bad seller: code %q, want MALFORMED_ORDER", market.ErrorCode(err))
	}
}

func toLowerHex(a common.Address) string {
	return "0x" + common.Bytes2Hex(a.Bytes())
}
