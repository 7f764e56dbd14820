package p2p

import (
	"bytes"
	"encoding/gob"
)

// Receipts travel between marketplace nodes as gob frames; every node in a
// deployment runs the same binary, so the encoding only has to agree with
// itself.

func gobEncode(v any) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func gobDecode(b []byte, v any) error {
	return gob.NewDecoder(bytes.NewReader(b)).Decode(v)
}
