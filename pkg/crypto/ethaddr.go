package crypto

import (
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"golang.org/x/crypto/sha3"
)

// EIP55 computes the checksummed hex address string from a 20-byte raw address.
func EIP55(addr20 []byte) string {
	hexaddr := hex.EncodeToString(addr20) // lower
	// keccak of lowercase hex
	h := sha3.NewLegacyKeccak256()
	h.Write([]byte(hexaddr))
	hash := h.Sum(nil)
	// apply checksum
	var out = make([]byte, 2+len(hexaddr))
	copy(out, []byte("0x"))
	for i, c := range []byte(hexaddr) {
		if c >= '0' && c <= '9' {
			out[2+i] = c
			continue
		}
		// each hex char maps to 4 bits; i>>1 picks the byte; even/odd decides high/low nibble
		hb := hash[i>>1]
		nibble := hb
		if i%2 == 0 {
			nibble = (hb >> 4) & 0x0f
		} else {
			nibble = hb & 0x0f
		}
		if nibble >= 8 {
			out[2+i] = byte(strings.ToUpper(string(c))[0])
		} else {
			out[2+i] = c
		}
	}
	return string(out)
}

// ParseAddress parses a user-supplied address string. All-lower and all-upper
// hex is accepted as-is; mixed case must carry a valid EIP-55 checksum, which
// catches single-character typos in pasted addresses.
func ParseAddress(s string) (common.Address, error) {
	raw := strings.TrimPrefix(s, "0x")
	if len(raw) != 40 {
		return common.Address{}, fmt.Errorf("invalid address length: %q", s)
	}
	b, err := hex.DecodeString(raw)
	if err != nil {
		return common.Address{}, fmt.Errorf("invalid address hex: %q", s)
	}
	if raw != strings.ToLower(raw) && raw != strings.ToUpper(raw) {
		if EIP55(b) != "0x"+raw {
			return common.Address{}, fmt.Errorf("checksum mismatch: %q", s)
		}
	}
	return common.BytesToAddress(b), nil
}
