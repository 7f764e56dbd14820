package params

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Domain is the EIP-712 signing context. Every order signature is bound to
// this tuple; changing any field invalidates all outstanding listings.
type Domain struct {
	Name              string
	Version           string
	ChainID           int64
	VerifyingContract string // validator contract address (hex)
}

// FeeSplitConfig is one platform fee recipient, as configured.
type FeeSplitConfig struct {
	Recipient string // hex address
	ShareBps  int64
}

// Marketplace carries the settlement engine's deployment parameters.
type Marketplace struct {
	Owner           string // admin address (hex); derived from OwnerKey when empty
	OwnerKey        string // hex private key, devnet convenience only
	Address         string // the marketplace's own fund-holding address (hex)
	AssetContract   string // linked collection address (hex)
	FeeSplits       []FeeSplitConfig
	PaymentTokens   []string      // initial allow-list (hex addresses)
	ClosingTime     time.Duration // 0 = marketplace never closes
}

// Node holds process-level settings.
type Node struct {
	DBPath    string
	APIListen string
	P2PListen string // libp2p multiaddr; empty disables gossip
	Bootstrap []string
	LogFile   string
}

type Config struct {
	Domain      Domain
	Marketplace Marketplace
	Node        Node
}

func Default() Config {
	return Config{
		Domain: Domain{
			Name:    "Victor Marketplace",
			Version: "1.0.1",
			ChainID: 31337, // local devnet
		},
		Marketplace: Marketplace{
			FeeSplits: nil,
			// Native coin allowed out of the box on devnet.
			PaymentTokens: []string{"0x0000000000000000000000000000000000000000"},
		},
		Node: Node{
			DBPath:    "data/vicmarket",
			APIListen: ":8080",
			LogFile:   "data/vicmarket.log",
		},
	}
}

// LoadFromEnv loads configuration from a .env file (if it exists) and
// environment variables. Priority: ENV > .env file > defaults.
func LoadFromEnv(envPath string) (Config, error) {
	cfg := Default()

	if envPath != "" {
		_ = godotenv.Load(envPath)
	} else {
		_ = godotenv.Load()
	}

	cfg.Domain.Name = getEnvStr("DOMAIN_NAME", cfg.Domain.Name)
	cfg.Domain.Version = getEnvStr("DOMAIN_VERSION", cfg.Domain.Version)
	cfg.Domain.ChainID = getEnvInt64("CHAIN_ID", cfg.Domain.ChainID)
	cfg.Domain.VerifyingContract = getEnvStr("VERIFYING_CONTRACT", cfg.Domain.VerifyingContract)

	cfg.Marketplace.Owner = getEnvStr("OWNER_ADDRESS", cfg.Marketplace.Owner)
	cfg.Marketplace.OwnerKey = getEnvStr("OWNER_PRIVATE_KEY", cfg.Marketplace.OwnerKey)
	cfg.Marketplace.Address = getEnvStr("MARKETPLACE_ADDRESS", cfg.Marketplace.Address)
	cfg.Marketplace.AssetContract = getEnvStr("ASSET_CONTRACT", cfg.Marketplace.AssetContract)
	cfg.Marketplace.ClosingTime = getEnvDuration("CLOSING_TIME", cfg.Marketplace.ClosingTime)

	if v := os.Getenv("PAYMENT_TOKENS"); v != "" {
		cfg.Marketplace.PaymentTokens = splitList(v)
	}

	if v := os.Getenv("FEE_SPLITS"); v != "" {
		splits, err := parseFeeSplits(v)
		if err != nil {
			return cfg, fmt.Errorf("FEE_SPLITS: %w", err)
		}
		cfg.Marketplace.FeeSplits = splits
	}

	cfg.Node.DBPath = getEnvStr("DB_PATH", cfg.Node.DBPath)
	cfg.Node.APIListen = getEnvStr("API_LISTEN", cfg.Node.APIListen)
	cfg.Node.P2PListen = getEnvStr("P2P_LISTEN", cfg.Node.P2PListen)
	cfg.Node.LogFile = getEnvStr("LOG_FILE", cfg.Node.LogFile)
	if v := os.Getenv("P2P_BOOTSTRAP"); v != "" {
		cfg.Node.Bootstrap = splitList(v)
	}

	return cfg, nil
}

// parseFeeSplits parses "0xabc...:1000,0xdef...:250" into fee split entries.
func parseFeeSplits(s string) ([]FeeSplitConfig, error) {
	var out []FeeSplitConfig
	for _, part := range splitList(s) {
		i := strings.LastIndex(part, ":")
		if i < 0 {
			return nil, fmt.Errorf("entry %q: want <address>:<bps>", part)
		}
		bps, err := strconv.ParseInt(part[i+1:], 10, 64)
		if err != nil {
			return nil, fmt.Errorf("entry %q: %w", part, err)
		}
		out = append(out, FeeSplitConfig{Recipient: part[:i], ShareBps: bps})
	}
	return out, nil
}

func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func getEnvStr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getEnvInt64(key string, def int64) int64 {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			return n
		}
	}
	return def
}

func getEnvDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}
