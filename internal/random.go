package internal

import (
	"crypto/rand"
	"errors"
	"math/big"
	"strings"
)

const opaqueTokenAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"

const minOpaqueTokenLength = 32

// NewOpaqueToken generates a refresh-token string of the given length over
// an alphanumeric alphabet. Every character comes from crypto/rand; at 62
// symbols per position a 32-character token carries ~190 bits of entropy,
// so collisions are cryptographically negligible.
func NewOpaqueToken(length int) (string, error) {
	if length < minOpaqueTokenLength {
		return "", errors.New("opaque token length below minimum")
	}

	var b strings.Builder
	b.Grow(length)

	max := big.NewInt(int64(len(opaqueTokenAlphabet)))
	for i := 0; i < length; i++ {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", err
		}
		b.WriteByte(opaqueTokenAlphabet[n.Int64()])
	}

	return b.String(), nil
}
