package market

import (
	"context"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"github.com/victorlabs/vicmarket/pkg/crypto"
	"github.com/victorlabs/vicmarket/pkg/util"
)

// Tender is the payment presented with a Buy call. Value is the native coin
// amount attached to the call; it must equal the order's base price for
// native-currency orders and be absent for token orders (token funds are
// pulled from the buyer instead).
type Tender struct {
	Value *big.Int
}

func (t Tender) value() *big.Int {
	if t.Value == nil {
		return big.NewInt(0)
	}
	return t.Value
}

// Receipt records a completed settlement. It is the payload of the "Reckon"
// event streamed to API and gossip subscribers.
type Receipt struct {
	Key        ConsumptionKey
	Buyer      common.Address
	Seller     common.Address
	AssetID    *big.Int
	LazyMinted bool

	Currency        common.Address
	Price           *big.Int
	RoyaltyReceiver common.Address
	RoyaltyValue    *big.Int
	PlatformFee     *big.Int
	SellerProceeds  *big.Int
	Splits          []Payout

	// Retained lists payouts that could not be delivered and were credited
	// to the treasury instead of aborting the settlement.
	Retained []Payout

	ObjID     string
	Timestamp int64
}

// EngineConfig wires a settlement engine together.
type EngineConfig struct {
	Owner       common.Address // Authorized party for admin operations
	Marketplace common.Address // The marketplace's own fund-holding identity
	Registry    *Registry
	Treasury    *Treasury
	FeeSplits   FeeSplitTable
	Verifier    *crypto.EIP712Signer
	Assets      AssetCollaborator
	Currencies  CurrencyResolver
	Clock       util.Clock
	Logger      *zap.SugaredLogger
}

// Engine verifies signed orders and settles them: it authenticates the
// seller, enforces the replay ledger, collects payment, delivers the asset
// and distributes funds between seller, creator and platform. A single mutex
// serializes every state-mutating call, so each settlement runs as one
// uninterrupted transaction.
type Engine struct {
	mu sync.Mutex

	owner       common.Address
	marketplace common.Address
	registry    *Registry
	treasury    *Treasury
	feeSplits   FeeSplitTable
	verifier    *crypto.EIP712Signer
	assets      AssetCollaborator
	currencies  CurrencyResolver
	clock       util.Clock
	log         *zap.SugaredLogger

	// closingAt, when nonzero, rejects every new settlement from that unix
	// second on. Deployment-wide analogue of an order's expirationTime.
	closingAt int64

	subsMu sync.Mutex
	subs   []func(*Receipt)
}

// NewEngine validates the configuration and builds an engine.
func NewEngine(cfg EngineConfig) (*Engine, error) {
	if cfg.Registry == nil || cfg.Treasury == nil {
		return nil, fmt.Errorf("engine requires a registry and a treasury")
	}
	if cfg.Verifier == nil {
		return nil, fmt.Errorf("engine requires an EIP-712 verifier")
	}
	if cfg.Assets == nil || cfg.Currencies == nil {
		return nil, fmt.Errorf("engine requires asset and currency collaborators")
	}
	if err := cfg.FeeSplits.Validate(); err != nil {
		return nil, fmt.Errorf("fee splits: %w", err)
	}
	if cfg.Clock == nil {
		cfg.Clock = util.RealClock{}
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop().Sugar()
	}
	return &Engine{
		owner:       cfg.Owner,
		marketplace: cfg.Marketplace,
		registry:    cfg.Registry,
		treasury:    cfg.Treasury,
		feeSplits:   cfg.FeeSplits,
		verifier:    cfg.Verifier,
		assets:      cfg.Assets,
		currencies:  cfg.Currencies,
		clock:       cfg.Clock,
		log:         cfg.Logger,
	}, nil
}

// Owner returns the engine's authorized admin party.
func (e *Engine) Owner() common.Address { return e.owner }

// FeeSplits returns the platform fee schedule.
func (e *Engine) FeeSplits() FeeSplitTable { return e.feeSplits }

// Registry returns the configuration registry the engine verifies against.
func (e *Engine) Registry() *Registry { return e.registry }

// Treasury returns the engine's retained-funds treasury.
func (e *Engine) Treasury() *Treasury { return e.treasury }

// Verifier returns the EIP-712 verifier, exposing the signing domain to
// clients that need to build orders.
func (e *Engine) Verifier() *crypto.EIP712Signer { return e.verifier }

// OnReckon registers a callback invoked after every successful settlement.
// Callbacks run outside the settlement mutex and may call back into the
// engine.
func (e *Engine) OnReckon(fn func(*Receipt)) {
	e.subsMu.Lock()
	e.subs = append(e.subs, fn)
	e.subsMu.Unlock()
}

func (e *Engine) notify(r *Receipt) {
	e.subsMu.Lock()
	subs := make([]func(*Receipt), len(e.subs))
	copy(subs, e.subs)
	e.subsMu.Unlock()
	for _, fn := range subs {
		fn(r)
	}
}

// SetClosingTime sets the deployment-wide settlement deadline to now + d.
// A zero duration clears the deadline. Owner only.
func (e *Engine) SetClosingTime(caller common.Address, d time.Duration) error {
	if caller != e.owner {
		return fmt.Errorf("%w: caller %s is not the owner", ErrUnauthorized, caller.Hex())
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if d == 0 {
		e.closingAt = 0
		return nil
	}
	e.closingAt = e.clock.Now().Add(d).Unix()
	return nil
}

// ClosingTime returns the current deadline as a unix second, 0 if unset.
func (e *Engine) ClosingTime() int64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.closingAt
}

// WithdrawCurrency transfers the treasury's full balance for currency to
// `to`. Owner only; withdrawing an empty balance is a zero-amount success.
func (e *Engine) WithdrawCurrency(ctx context.Context, caller, currency, to common.Address) (*WithdrawalReceipt, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.treasury.Withdraw(ctx, caller, currency, to)
}

// Buy settles a signed order: the buyer presents the order together with
// payment, and on success the asset is transferred (or minted) to the buyer
// while the funds are split between royalty receiver, platform and seller.
//
// Preconditions run cheapest-first; any failure before asset delivery rolls
// the call back completely, so the order stays settleable with corrected
// input. Once the asset has changed hands the settlement is terminal: an
// individual payout failure is absorbed into the treasury rather than
// un-transferring the asset.
func (e *Engine) Buy(ctx context.Context, buyer, assetContract common.Address, tokenID *big.Int, expectedPrice *big.Int, order *Order, tender Tender) (*Receipt, error) {
	receipt, err := e.settle(ctx, buyer, assetContract, tokenID, expectedPrice, order, tender)
	if err != nil {
		return nil, err
	}
	e.notify(receipt)
	return receipt, nil
}

func (e *Engine) settle(ctx context.Context, buyer, assetContract common.Address, tokenID *big.Int, expectedPrice *big.Int, order *Order, tender Tender) (*Receipt, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	// Boundary validation: parse-once, fail fast on anything structurally
	// wrong before touching crypto or state.
	if err := order.Validate(); err != nil {
		return nil, err
	}
	if order.RoyaltyFee+e.feeSplits.TotalShareBps() > FeeDenominator {
		return nil, fmt.Errorf("%w: royalty %d bps plus platform %d bps exceeds %d",
			ErrMalformedOrder, order.RoyaltyFee, e.feeSplits.TotalShareBps(), FeeDenominator)
	}
	if order.ContractAddress != assetContract {
		return nil, fmt.Errorf("%w: order is for collection %s, buy references %s",
			ErrMalformedOrder, order.ContractAddress.Hex(), assetContract.Hex())
	}
	if pinned := e.registry.AssetContract(); pinned != (common.Address{}) && pinned != order.ContractAddress {
		return nil, fmt.Errorf("%w: collection %s is not the linked asset contract",
			ErrMalformedOrder, order.ContractAddress.Hex())
	}
	if tokenID == nil {
		tokenID = big.NewInt(0)
	}
	if tokenID.Cmp(order.ToEIP712().TokenID) != 0 {
		return nil, fmt.Errorf("%w: buy references token %s, order lists token %s",
			ErrMalformedOrder, tokenID.String(), order.ToEIP712().TokenID.String())
	}

	// 1. Time window: deployment closing time, listing start, order expiry.
	now := e.clock.Now().Unix()
	if e.closingAt != 0 && now >= e.closingAt {
		return nil, fmt.Errorf("%w: marketplace closed at %d", ErrOrderExpired, e.closingAt)
	}
	if order.ListingTime > now {
		return nil, fmt.Errorf("%w: listing starts at %d", ErrOrderExpired, order.ListingTime)
	}
	if order.ExpirationTime != 0 && order.ExpirationTime <= now {
		return nil, fmt.Errorf("%w: expired at %d", ErrOrderExpired, order.ExpirationTime)
	}

	// 2. Price: the buyer's expectation and the tendered amount must both
	// match the signed price exactly.
	if expectedPrice == nil || expectedPrice.Cmp(order.BasePrice) != 0 {
		return nil, fmt.Errorf("%w: expected %v, order price %s", ErrPriceMismatch, expectedPrice, order.BasePrice)
	}
	native := order.PaymentToken == NativeCurrency
	if native {
		if tender.value().Cmp(order.BasePrice) != 0 {
			return nil, fmt.Errorf("%w: tendered %s, order price %s", ErrPriceMismatch, tender.value(), order.BasePrice)
		}
	} else if tender.value().Sign() != 0 {
		return nil, fmt.Errorf("%w: native value attached to a token-priced order", ErrPriceMismatch)
	}

	// 3. Currency allow-list.
	if !e.registry.IsAllowedCurrency(order.PaymentToken) {
		return nil, fmt.Errorf("%w: %s", ErrCurrencyNotAllowed, order.PaymentToken.Hex())
	}

	// 4. Signature: recovered signer must be the seller.
	signer, err := e.verifier.RecoverOrderSigner(order.ToEIP712(), order.Signature)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadSignature, err)
	}
	if signer != order.Seller {
		return nil, fmt.Errorf("%w: signed by %s, seller is %s", ErrBadSignature, signer.Hex(), order.Seller.Hex())
	}

	// 5. Replay ledger. Marked before any funds or assets move so a
	// re-entrant or concurrent attempt can never observe "unconsumed".
	key := order.ConsumptionKey()
	if err := e.registry.CheckAndConsume(key); err != nil {
		return nil, err
	}

	// 6. Payment collection. Pulls the buyer's funds into the marketplace.
	cur, ok := e.currencies.Currency(order.PaymentToken)
	if !ok {
		e.unwind(key)
		return nil, fmt.Errorf("%w: no collaborator for currency %s", ErrPaymentTransferFailed, order.PaymentToken.Hex())
	}
	if err := cur.TransferFrom(ctx, buyer, e.marketplace, order.BasePrice); err != nil {
		e.unwind(key)
		return nil, fmt.Errorf("%w: %v", ErrPaymentTransferFailed, err)
	}

	// 7. Asset delivery: mint to the buyer for lazy listings, otherwise
	// move the existing asset from the seller. Failure refunds the buyer
	// and releases the key so the settlement never happened.
	var assetID *big.Int
	lazy := order.IsLazyMint()
	if lazy {
		assetID, err = e.assets.Mint(ctx, buyer, order.URI, order.RoyaltyReceiver, order.RoyaltyFee)
	} else {
		assetID = order.TokenID
		err = e.assets.Transfer(ctx, order.Seller, buyer, order.TokenID)
	}
	if err != nil {
		e.refund(ctx, cur, buyer, order.PaymentToken, order.BasePrice)
		e.unwind(key)
		return nil, fmt.Errorf("%w: %v", ErrAssetTransferFailed, err)
	}

	// 8. Fund distribution: royalty first, platform shares in table order,
	// remainder (including all rounding dust) to the seller.
	price := order.BasePrice
	royalty := BpsOf(price, order.RoyaltyFee)
	splits := e.feeSplits.Distribute(price)
	platformFee := big.NewInt(0)
	for _, p := range splits {
		platformFee.Add(platformFee, p.Amount)
	}
	sellerProceeds := new(big.Int).Sub(price, royalty)
	sellerProceeds.Sub(sellerProceeds, platformFee)

	receipt := &Receipt{
		Key:             key,
		Buyer:           buyer,
		Seller:          order.Seller,
		AssetID:         assetID,
		LazyMinted:      lazy,
		Currency:        order.PaymentToken,
		Price:           new(big.Int).Set(price),
		RoyaltyReceiver: order.RoyaltyReceiver,
		RoyaltyValue:    royalty,
		PlatformFee:     platformFee,
		SellerProceeds:  sellerProceeds,
		Splits:          splits,
		ObjID:           order.ObjID,
		Timestamp:       now,
	}

	payouts := make([]Payout, 0, len(splits)+2)
	payouts = append(payouts, Payout{Recipient: order.RoyaltyReceiver, Amount: royalty})
	payouts = append(payouts, splits...)
	payouts = append(payouts, Payout{Recipient: order.Seller, Amount: sellerProceeds})

	for _, p := range payouts {
		if p.Amount.Sign() == 0 {
			continue
		}
		if err := cur.Transfer(ctx, p.Recipient, p.Amount); err != nil {
			// The asset already changed hands; absorb the failed leg into
			// the treasury instead of aborting a completed settlement.
			if cerr := e.treasury.Credit(order.PaymentToken, p.Amount); cerr != nil {
				e.log.Errorw("treasury_credit_failed",
					"recipient", p.Recipient.Hex(), "amount", p.Amount.String(), "err", cerr)
			}
			receipt.Retained = append(receipt.Retained, p)
			e.log.Warnw("payout_retained",
				"recipient", p.Recipient.Hex(), "amount", p.Amount.String(), "err", err)
		}
	}

	e.log.Infow("reckon",
		"key", string(key),
		"buyer", buyer.Hex(),
		"seller", order.Seller.Hex(),
		"asset_id", assetID.String(),
		"lazy_mint", lazy,
		"currency", order.PaymentToken.Hex(),
		"price", price.String(),
		"royalty", royalty.String(),
		"platform_fee", platformFee.String(),
		"seller_proceeds", sellerProceeds.String(),
		"obj_id", order.ObjID,
	)

	return receipt, nil
}

// unwind clears a consumption mark after a failed settlement attempt.
func (e *Engine) unwind(key ConsumptionKey) {
	if err := e.registry.Release(key); err != nil {
		e.log.Errorw("ledger_release_failed", "key", string(key), "err", err)
	}
}

// refund returns collected payment to the buyer. If the refund transfer
// itself fails the funds are parked in the treasury so they are never lost.
func (e *Engine) refund(ctx context.Context, cur CurrencyCollaborator, buyer, currency common.Address, amount *big.Int) {
	if err := cur.Transfer(ctx, buyer, amount); err != nil {
		e.log.Warnw("refund_failed_crediting_treasury",
			"buyer", buyer.Hex(), "amount", amount.String(), "err", err)
		if cerr := e.treasury.Credit(currency, amount); cerr != nil {
			e.log.Errorw("treasury_credit_failed", "amount", amount.String(), "err", cerr)
		}
	}
}
