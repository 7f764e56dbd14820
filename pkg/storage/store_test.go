package storage

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"

	"github.com/victorlabs/vicmarket/pkg/market"
)

// Both stores implement the same Ledger + BalanceStore contract; run the
// same scenarios over each.
func stores(t *testing.T) map[string]interface {
	market.Ledger
	market.BalanceStore
} {
	t.Helper()
	pb, err := NewPebbleStore(t.TempDir())
	if err != nil {
		t.Fatalf("failed to open pebble store: %v", err)
	}
	t.Cleanup(func() { pb.Close() })
	return map[string]interface {
		market.Ledger
		market.BalanceStore
	}{
		"pebble": pb,
		"mem":    NewMemStore(),
	}
}

func TestLedgerConsumeRelease(t *testing.T) {
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			key := market.ConsumptionKey("token:42")

			used, err := s.Consumed(key)
			if err != nil {
				t.Fatalf("read failed: %v", err)
			}
			if used {
				t.Error("fresh key reported consumed")
			}

			if err := s.Consume(key); err != nil {
				t.Fatalf("consume failed: %v", err)
			}
			if used, _ := s.Consumed(key); !used {
				t.Error("key not consumed after Consume")
			}

			// Distinct keys do not interfere
			other := market.ConsumptionKey("nonce:0xabc:7")
			if used, _ := s.Consumed(other); used {
				t.Error("unrelated key reported consumed")
			}

			if err := s.Release(key); err != nil {
				t.Fatalf("release failed: %v", err)
			}
			if used, _ := s.Consumed(key); used {
				t.Error("key still consumed after Release")
			}

			// Releasing an absent key is harmless
			if err := s.Release(market.ConsumptionKey("token:404")); err != nil {
				t.Errorf("releasing absent key errored: %v", err)
			}
		})
	}
}

func TestBalanceRoundTrip(t *testing.T) {
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			currency := common.HexToAddress("0x00000000000000000000000000000000000000c1")

			bal, err := s.Balance(currency)
			if err != nil {
				t.Fatalf("read failed: %v", err)
			}
			if bal.Sign() != 0 {
				t.Errorf("fresh balance = %s, want 0", bal)
			}

			amount := new(big.Int).Mul(big.NewInt(1_000_000_000), big.NewInt(1_000_000_000))
			if err := s.SetBalance(currency, amount); err != nil {
				t.Fatalf("write failed: %v", err)
			}
			bal, _ = s.Balance(currency)
			if bal.Cmp(amount) != 0 {
				t.Errorf("balance = %s, want %s", bal, amount)
			}

			// Native currency (zero address) is a regular key
			if err := s.SetBalance(market.NativeCurrency, big.NewInt(7)); err != nil {
				t.Fatalf("native write failed: %v", err)
			}
			bal, _ = s.Balance(market.NativeCurrency)
			if bal.Cmp(big.NewInt(7)) != 0 {
				t.Errorf("native balance = %s, want 7", bal)
			}
			// And it did not clobber the token balance
			bal, _ = s.Balance(currency)
			if bal.Cmp(amount) != 0 {
				t.Errorf("token balance after native write = %s, want %s", bal, amount)
			}

			if err := s.SetBalance(currency, big.NewInt(0)); err != nil {
				t.Fatalf("zero write failed: %v", err)
			}
			bal, _ = s.Balance(currency)
			if bal.Sign() != 0 {
				t.Errorf("zeroed balance = %s, want 0", bal)
			}
		})
	}
}

func TestPebbleStorePersistsAcrossReopen(t *testing.T) {
	dir := t.TempDir()

	s, err := NewPebbleStore(dir)
	if err != nil {
		t.Fatalf("failed to open: %v", err)
	}
	key := market.ConsumptionKey("token:9")
	if err := s.Consume(key); err != nil {
		t.Fatalf("consume failed: %v", err)
	}
	if err := s.SetBalance(market.NativeCurrency, big.NewInt(321)); err != nil {
		t.Fatalf("write failed: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("close failed: %v", err)
	}

	s2, err := NewPebbleStore(dir)
	if err != nil {
		t.Fatalf("failed to reopen: %v", err)
	}
	defer s2.Close()

	used, err := s2.Consumed(key)
	if err != nil || !used {
		t.Errorf("consumption mark lost across reopen (used=%v, err=%v)", used, err)
	}
	bal, err := s2.Balance(market.NativeCurrency)
	if err != nil || bal.Cmp(big.NewInt(321)) != 0 {
		t.Errorf("balance lost across reopen (bal=%s, err=%v)", bal, err)
	}
}
