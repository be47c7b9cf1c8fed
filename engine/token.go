/*
token.go - Opaque token generation

PURPOSE:
  Tokens are the public identity of users and vouchers. They are minted
  once, at row creation, and never recomputed. A token must not be
  derivable from, or leak, the record's label, description or internal id.

FORMATS:
  user:    tokusr_c7kmp2ax      fixed prefix + 8 random chars
  voucher: 0042-QHZLD           sortnumber prefix + 5 random uppercase

  The user alphabet drops 0/1/l and uppercase entirely so badges survive
  being read aloud or retyped. The voucher prefix is the position within
  the emission - non-sensitive, and handy when matching printed sheets.

  Randomness comes from crypto/rand; a failing system entropy source is
  not worth recovering from, so the generators panic on read errors.
*/
package engine

import (
	"crypto/rand"
	"fmt"
	"math/big"
)

const (
	userTokenAlphabet    = "23456789abcdefghijkmnopqrstuvwxyz"
	userTokenLength      = 8
	voucherTokenAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ"
	voucherTokenLength   = 5
)

// NewUserToken mints an opaque user token.
func NewUserToken() string {
	return "tokusr_" + randomString(userTokenAlphabet, userTokenLength)
}

// NewVoucherToken mints an opaque voucher token. The sortnumber is the
// voucher's position within its emission.
func NewVoucherToken(sortnumber int) string {
	return fmt.Sprintf("%04d-%s", sortnumber, randomString(voucherTokenAlphabet, voucherTokenLength))
}

func randomString(alphabet string, length int) string {
	max := big.NewInt(int64(len(alphabet)))
	out := make([]byte, length)
	for i := range out {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			panic(fmt.Sprintf("token generation: %v", err))
		}
		out[i] = alphabet[n.Int64()]
	}
	return string(out)
}
