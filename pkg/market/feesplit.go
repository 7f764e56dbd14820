package market

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// FeeSplit routes a fixed basis-point share of every sale to one platform
// recipient.
type FeeSplit struct {
	Recipient common.Address
	ShareBps  int64
}

// FeeSplitTable is the platform's ordered fee schedule. Shares are evaluated
// in table order and the total must stay within the fee denominator
// independent of any order's royalty.
type FeeSplitTable []FeeSplit

// Validate checks the table is usable: every entry has a recipient and a
// positive share, and the total does not exceed 100%.
func (t FeeSplitTable) Validate() error {
	total := int64(0)
	for i, s := range t {
		if s.Recipient == (common.Address{}) {
			return fmt.Errorf("fee split %d: zero recipient", i)
		}
		if s.ShareBps <= 0 {
			return fmt.Errorf("fee split %d: share %d must be positive", i, s.ShareBps)
		}
		total += s.ShareBps
	}
	if total > FeeDenominator {
		return fmt.Errorf("fee splits total %d bps exceeds %d", total, FeeDenominator)
	}
	return nil
}

// TotalShareBps returns the platform's total cut in basis points.
func (t FeeSplitTable) TotalShareBps() int64 {
	total := int64(0)
	for _, s := range t {
		total += s.ShareBps
	}
	return total
}

// Payout is one (recipient, amount) leg of a settlement distribution.
type Payout struct {
	Recipient common.Address
	Amount    *big.Int
}

// Distribute computes each entry's share of amount in table order using floor
// division. Rounding loss is never kept here: the seller receives whatever
// remains after royalty and platform shares, so all dust accrues to the
// seller.
func (t FeeSplitTable) Distribute(amount *big.Int) []Payout {
	payouts := make([]Payout, 0, len(t))
	for _, s := range t {
		share := new(big.Int).Mul(amount, big.NewInt(s.ShareBps))
		share.Div(share, big.NewInt(FeeDenominator))
		payouts = append(payouts, Payout{Recipient: s.Recipient, Amount: share})
	}
	return payouts
}

// BpsOf returns floor(amount * bps / FeeDenominator). Used for both royalty
// and platform share math so every leg rounds the same way.
func BpsOf(amount *big.Int, bps int64) *big.Int {
	v := new(big.Int).Mul(amount, big.NewInt(bps))
	return v.Div(v, big.NewInt(FeeDenominator))
}
