package api

import (
	"encoding/json"
	"errors"
	"log"
	"math/big"
	"net/http"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gorilla/mux"
	"github.com/rs/cors"

	"github.com/victorlabs/vicmarket/pkg/crypto"
	"github.com/victorlabs/vicmarket/pkg/market"
)

// Server exposes the settlement engine over REST and streams Reckon events
// over WebSocket.
type Server struct {
	engine *market.Engine
	router *mux.Router
	hub    *Hub
}

// NewServer creates an API server wired to the engine's Reckon events.
func NewServer(engine *market.Engine) *Server {
	s := &Server{
		engine: engine,
		router: mux.NewRouter(),
		hub:    NewHub(),
	}
	s.setupRoutes()

	engine.OnReckon(func(r *market.Receipt) {
		s.hub.BroadcastToChannel("reckon", reckonFromReceipt(r))
	})

	return s
}

func (s *Server) setupRoutes() {
	api := s.router.PathPrefix("/api/v1").Subrouter()

	// Settlement
	api.HandleFunc("/buy", s.handleBuy).Methods("POST")
	api.HandleFunc("/orders/{key}", s.handleOrderStatus).Methods("GET")

	// Treasury
	api.HandleFunc("/treasury/{currency}", s.handleTreasuryBalance).Methods("GET")

	// Admin (owner-gated by the engine)
	api.HandleFunc("/admin/payment-tokens", s.handleSetPaymentTokens).Methods("POST")
	api.HandleFunc("/admin/asset-contract", s.handleSetAssetContract).Methods("POST")
	api.HandleFunc("/admin/closing-time", s.handleSetClosingTime).Methods("POST")
	api.HandleFunc("/admin/withdraw", s.handleWithdraw).Methods("POST")

	// Deployment description for order-building clients
	api.HandleFunc("/config", s.handleGetConfig).Methods("GET")

	// WebSocket endpoint
	s.router.HandleFunc("/ws", s.handleWebSocket)

	// Health check
	s.router.HandleFunc("/health", s.handleHealth).Methods("GET")
}

// Start starts the API server.
func (s *Server) Start(addr string) error {
	go s.hub.Run()

	c := cors.New(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Content-Type"},
		AllowCredentials: false,
	})
	handler := c.Handler(s.router)

	log.Printf("[api] server starting on %s", addr)
	return http.ListenAndServe(addr, handler)
}

// ==============================
// REST Handlers
// ==============================

func (s *Server) handleBuy(w http.ResponseWriter, r *http.Request) {
	var req BuyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", "", err.Error())
		return
	}

	buyer, err := crypto.ParseAddress(req.Buyer)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid buyer address", "", err.Error())
		return
	}
	assetContract, err := crypto.ParseAddress(req.AssetContract)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid asset contract address", "", err.Error())
		return
	}
	tokenID, ok := new(big.Int).SetString(req.TokenID, 10)
	if !ok {
		respondError(w, http.StatusBadRequest, "invalid tokenId", "", req.TokenID)
		return
	}
	expectedPrice, ok := new(big.Int).SetString(req.ExpectedPrice, 10)
	if !ok {
		respondError(w, http.StatusBadRequest, "invalid expectedPrice", "", req.ExpectedPrice)
		return
	}
	var tender market.Tender
	if req.Value != "" {
		v, ok := new(big.Int).SetString(req.Value, 10)
		if !ok {
			respondError(w, http.StatusBadRequest, "invalid value", "", req.Value)
			return
		}
		tender.Value = v
	}

	order, err := req.Order.ToOrder()
	if err != nil {
		respondSettlementError(w, err)
		return
	}

	receipt, err := s.engine.Buy(r.Context(), buyer, assetContract, tokenID, expectedPrice, order, tender)
	if err != nil {
		respondSettlementError(w, err)
		return
	}

	respondJSON(w, reckonFromReceipt(receipt))
}

func (s *Server) handleOrderStatus(w http.ResponseWriter, r *http.Request) {
	key := market.ConsumptionKey(mux.Vars(r)["key"])
	consumed, err := s.engine.Registry().Consumed(key)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "ledger read failed", "", err.Error())
		return
	}
	respondJSON(w, OrderStatus{Key: string(key), Consumed: consumed})
}

func (s *Server) handleTreasuryBalance(w http.ResponseWriter, r *http.Request) {
	currency, err := crypto.ParseAddress(mux.Vars(r)["currency"])
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid currency address", "", err.Error())
		return
	}
	bal, err := s.engine.Treasury().Balance(currency)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "balance read failed", "", err.Error())
		return
	}
	respondJSON(w, TreasuryBalance{Currency: currency.Hex(), Balance: bal.String()})
}

func (s *Server) handleSetPaymentTokens(w http.ResponseWriter, r *http.Request) {
	var req PaymentTokensRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", "", err.Error())
		return
	}
	caller, err := crypto.ParseAddress(req.Caller)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid caller address", "", err.Error())
		return
	}
	parsed, err := parseAddressList(req.Tokens)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid token address", "", err.Error())
		return
	}
	if err := s.engine.Registry().SetPaymentTokens(caller, parsed); err != nil {
		respondSettlementError(w, err)
		return
	}
	respondJSON(w, map[string]any{"ok": true, "count": len(parsed)})
}

func (s *Server) handleSetAssetContract(w http.ResponseWriter, r *http.Request) {
	var req AssetContractRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", "", err.Error())
		return
	}
	caller, err := crypto.ParseAddress(req.Caller)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid caller address", "", err.Error())
		return
	}
	addr, err := crypto.ParseAddress(req.Address)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid contract address", "", err.Error())
		return
	}
	if err := s.engine.Registry().SetAssetContract(caller, addr); err != nil {
		respondSettlementError(w, err)
		return
	}
	respondJSON(w, map[string]any{"ok": true})
}

func (s *Server) handleSetClosingTime(w http.ResponseWriter, r *http.Request) {
	var req ClosingTimeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", "", err.Error())
		return
	}
	caller, err := crypto.ParseAddress(req.Caller)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid caller address", "", err.Error())
		return
	}
	if err := s.engine.SetClosingTime(caller, time.Duration(req.Seconds)*time.Second); err != nil {
		respondSettlementError(w, err)
		return
	}
	respondJSON(w, map[string]any{"ok": true, "closingTime": s.engine.ClosingTime()})
}

func (s *Server) handleWithdraw(w http.ResponseWriter, r *http.Request) {
	var req WithdrawRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", "", err.Error())
		return
	}
	caller, err := crypto.ParseAddress(req.Caller)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid caller address", "", err.Error())
		return
	}
	currency, err := crypto.ParseAddress(req.Currency)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid currency address", "", err.Error())
		return
	}
	to, err := crypto.ParseAddress(req.To)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid destination address", "", err.Error())
		return
	}

	receipt, err := s.engine.WithdrawCurrency(r.Context(), caller, currency, to)
	if err != nil {
		respondSettlementError(w, err)
		return
	}
	respondJSON(w, WithdrawResponse{
		Currency: receipt.Currency.Hex(),
		To:       receipt.To.Hex(),
		Amount:   receipt.Amount.String(),
	})
}

func (s *Server) handleGetConfig(w http.ResponseWriter, r *http.Request) {
	domain := s.engine.Verifier().Domain()
	reg := s.engine.Registry()

	tokens := reg.AllowedCurrencies()
	tokenHexes := make([]string, len(tokens))
	for i, t := range tokens {
		tokenHexes[i] = t.Hex()
	}

	respondJSON(w, ConfigInfo{
		DomainName:        domain.Name,
		DomainVersion:     domain.Version,
		ChainID:           domain.ChainID.String(),
		VerifyingContract: domain.VerifyingContract.Hex(),
		AssetContract:     reg.AssetContract().Hex(),
		PaymentTokens:     tokenHexes,
		PlatformFeeBps:    s.engine.FeeSplits().TotalShareBps(),
		ClosingTime:       s.engine.ClosingTime(),
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, map[string]string{"status": "ok"})
}

// ==============================
// Helpers
// ==============================

func parseAddressList(in []string) ([]common.Address, error) {
	out := make([]common.Address, len(in))
	for i, s := range in {
		addr, err := crypto.ParseAddress(s)
		if err != nil {
			return nil, err
		}
		out[i] = addr
	}
	return out, nil
}

func respondJSON(w http.ResponseWriter, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.Printf("[api] encode error: %v", err)
	}
}

func respondError(w http.ResponseWriter, status int, msg, code, detail string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(ErrorResponse{Error: msg, Code: code, Detail: detail})
}

// respondSettlementError maps an engine failure to a status and taxonomy
// code, so off-chain tooling can tell retryable failures from fatal ones.
func respondSettlementError(w http.ResponseWriter, err error) {
	code := market.ErrorCode(err)
	status := http.StatusBadRequest
	switch {
	case errors.Is(err, market.ErrUnauthorized):
		status = http.StatusForbidden
	case errors.Is(err, market.ErrReplayedOrder):
		status = http.StatusConflict
	case errors.Is(err, market.ErrBadSignature):
		status = http.StatusUnauthorized
	case code == "":
		status = http.StatusInternalServerError
	}
	respondError(w, status, err.Error(), code, "")
}
