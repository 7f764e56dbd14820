package market

import "errors"

// Settlement failure taxonomy. Every Buy/Withdraw failure wraps exactly one of
// these sentinels so callers (and the API layer) can tell "retry with a new
// signature" apart from "fatal, already settled".
var (
	ErrMalformedOrder        = errors.New("malformed order")
	ErrBadSignature          = errors.New("bad signature")
	ErrOrderExpired          = errors.New("order expired")
	ErrPriceMismatch         = errors.New("price mismatch")
	ErrCurrencyNotAllowed    = errors.New("currency not allowed")
	ErrReplayedOrder         = errors.New("order already settled")
	ErrPaymentTransferFailed = errors.New("payment transfer failed")
	ErrAssetTransferFailed   = errors.New("asset transfer failed")
	ErrUnauthorized          = errors.New("unauthorized")
)

// ErrorCode returns the stable wire code for a settlement error, or "" when
// err does not wrap a taxonomy sentinel.
func ErrorCode(err error) string {
	switch {
	case errors.Is(err, ErrMalformedOrder):
		return "MALFORMED_ORDER"
	case errors.Is(err, ErrBadSignature):
		return "BAD_SIGNATURE"
	case errors.Is(err, ErrOrderExpired):
		return "ORDER_EXPIRED"
	case errors.Is(err, ErrPriceMismatch):
		return "PRICE_MISMATCH"
	case errors.Is(err, ErrCurrencyNotAllowed):
		return "CURRENCY_NOT_ALLOWED"
	case errors.Is(err, ErrReplayedOrder):
		return "REPLAYED_ORDER"
	case errors.Is(err, ErrPaymentTransferFailed):
		return "PAYMENT_TRANSFER_FAILED"
	case errors.Is(err, ErrAssetTransferFailed):
		return "ASSET_TRANSFER_FAILED"
	case errors.Is(err, ErrUnauthorized):
		return "UNAUTHORIZED"
	default:
		return ""
	}
}
