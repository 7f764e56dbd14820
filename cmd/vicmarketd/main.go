package main

import (
	"context"
	"log"
	"math/big"
	"os"
	"os/signal"
	"syscall"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"github.com/victorlabs/vicmarket/params"
	"github.com/victorlabs/vicmarket/pkg/api"
	"github.com/victorlabs/vicmarket/pkg/crypto"
	"github.com/victorlabs/vicmarket/pkg/devnet"
	"github.com/victorlabs/vicmarket/pkg/market"
	"github.com/victorlabs/vicmarket/pkg/p2p"
	"github.com/victorlabs/vicmarket/pkg/storage"
	"github.com/victorlabs/vicmarket/pkg/util"
)

func main() {
	cfg, err := params.LoadFromEnv("") // "" means load from .env in current directory
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	logger, err := util.NewLoggerWithFile(cfg.Node.LogFile)
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer logger.Sync()
	sugar := logger.Sugar()
	sugar.Infow("logger_initialized", "log_file", cfg.Node.LogFile)

	// ---- Identities ----
	owner := resolveOwner(cfg, sugar)

	marketAddr := owner
	if cfg.Marketplace.Address != "" {
		marketAddr = mustAddress(cfg.Marketplace.Address)
	}

	verifyingContract := common.Address{}
	if cfg.Domain.VerifyingContract != "" {
		verifyingContract = mustAddress(cfg.Domain.VerifyingContract)
	}

	// ---- Storage: consumption ledger + treasury balances ----
	store, err := storage.NewPebbleStore(cfg.Node.DBPath)
	if err != nil {
		sugar.Fatalw("store_open_failed", "path", cfg.Node.DBPath, "err", err)
	}
	defer store.Close()

	// ---- Registry ----
	registry := market.NewRegistry(owner, store)
	if err := registry.SetMarketplaceAddress(owner, marketAddr); err != nil {
		sugar.Fatalw("registry_init_failed", "err", err)
	}

	var paymentTokens []common.Address
	for _, t := range cfg.Marketplace.PaymentTokens {
		paymentTokens = append(paymentTokens, mustAddress(t))
	}
	if err := registry.SetPaymentTokens(owner, paymentTokens); err != nil {
		sugar.Fatalw("registry_init_failed", "err", err)
	}

	// ---- Collaborators ----
	// Devnet bindings: in-process collection and banks. A production
	// deployment swaps these for chain-backed implementations.
	collection := devnet.NewCollection(marketAddr)
	currencies := market.CurrencyMap{
		market.NativeCurrency: devnet.NewNativeBank(marketAddr),
	}
	for _, t := range paymentTokens {
		if t != market.NativeCurrency {
			currencies[t] = devnet.NewBank(marketAddr)
		}
	}

	if cfg.Marketplace.AssetContract != "" {
		if err := registry.SetAssetContract(owner, mustAddress(cfg.Marketplace.AssetContract)); err != nil {
			sugar.Fatalw("registry_init_failed", "err", err)
		}
	}

	// ---- Engine ----
	verifier := crypto.NewEIP712Signer(crypto.EIP712Domain{
		Name:              cfg.Domain.Name,
		Version:           cfg.Domain.Version,
		ChainID:           big.NewInt(cfg.Domain.ChainID),
		VerifyingContract: verifyingContract,
	})

	feeSplits := make(market.FeeSplitTable, 0, len(cfg.Marketplace.FeeSplits))
	for _, fs := range cfg.Marketplace.FeeSplits {
		feeSplits = append(feeSplits, market.FeeSplit{
			Recipient: mustAddress(fs.Recipient),
			ShareBps:  fs.ShareBps,
		})
	}

	treasury := market.NewTreasury(owner, store, currencies)

	engine, err := market.NewEngine(market.EngineConfig{
		Owner:       owner,
		Marketplace: marketAddr,
		Registry:    registry,
		Treasury:    treasury,
		FeeSplits:   feeSplits,
		Verifier:    verifier,
		Assets:      collection,
		Currencies:  currencies,
		Logger:      sugar,
	})
	if err != nil {
		sugar.Fatalw("engine_init_failed", "err", err)
	}

	if cfg.Marketplace.ClosingTime > 0 {
		if err := engine.SetClosingTime(owner, cfg.Marketplace.ClosingTime); err != nil {
			sugar.Fatalw("closing_time_init_failed", "err", err)
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// ---- Receipt gossip (optional) ----
	if cfg.Node.P2PListen != "" {
		gossip, err := p2p.NewGossip(ctx, p2p.Config{
			ListenAddr: cfg.Node.P2PListen,
			Bootstrap:  cfg.Node.Bootstrap,
			Logger:     sugar,
		})
		if err != nil {
			sugar.Fatalw("gossip_init_failed", "err", err)
		}
		defer gossip.Close()

		engine.OnReckon(func(r *market.Receipt) {
			if err := gossip.PublishReceipt(ctx, r); err != nil {
				sugar.Warnw("receipt_publish_failed", "key", string(r.Key), "err", err)
			}
		})
	}

	// ---- API ----
	server := api.NewServer(engine)
	go func() {
		if err := server.Start(cfg.Node.APIListen); err != nil {
			sugar.Fatalw("api_server_failed", "err", err)
		}
	}()

	sugar.Infow("vicmarketd_ready",
		"owner", owner.Hex(),
		"marketplace", marketAddr.Hex(),
		"chain_id", cfg.Domain.ChainID,
		"api", cfg.Node.APIListen,
		"platform_fee_bps", feeSplits.TotalShareBps(),
	)

	<-ctx.Done()
	sugar.Info("shutting down")
}

// resolveOwner picks the admin identity: explicit address, address derived
// from the configured key, or a fresh devnet key as a last resort.
func resolveOwner(cfg params.Config, sugar *zap.SugaredLogger) common.Address {
	if cfg.Marketplace.Owner != "" {
		return mustAddress(cfg.Marketplace.Owner)
	}
	if cfg.Marketplace.OwnerKey != "" {
		signer, err := crypto.FromPrivateKeyHex(cfg.Marketplace.OwnerKey)
		if err != nil {
			log.Fatalf("OWNER_PRIVATE_KEY: %v", err)
		}
		return signer.Address()
	}
	signer, err := crypto.GenerateKey()
	if err != nil {
		log.Fatalf("generate owner key: %v", err)
	}
	sugar.Infow("generated_devnet_owner",
		"address", signer.Address().Hex(),
		"private_key", signer.PrivateKeyHex(),
	)
	return signer.Address()
}

func mustAddress(s string) common.Address {
	addr, err := crypto.ParseAddress(s)
	if err != nil {
		log.Fatalf("invalid address %q: %v", s, err)
	}
	return addr
}
