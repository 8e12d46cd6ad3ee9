// Package transform provides typedstore.Transformer implementations for
// compressing and encrypting stored values.
//
// Every transformer emits standard base64 text so the result is still a
// plain string the backing store can hold. Transformers are safe for
// concurrent use and can be stacked with typedstore.Chain, e.g. compress
// first, then encrypt:
//
//	t := typedstore.Chain(transform.Zstd(), sealer)
package transform

import (
	"encoding/base64"
	"errors"
	"fmt"
)

var errIncompressible = errors.New("transform: data is incompressible")

func encodeText(b []byte) string {
	return base64.StdEncoding.EncodeToString(b)
}

func decodeText(s string) ([]byte, error) {
	b, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("decoding base64: %w", err)
	}
	return b, nil
}
