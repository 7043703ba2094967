package signature

import "math/bits"

const (
	// Modulus is the RSA-style modulus shared by every party.
	Modulus uint64 = 533
	// PublicExponent is the default public key handed to the identity registry.
	PublicExponent uint64 = 13
	// PrivateExponent pairs with PublicExponent under Modulus.
	PrivateExponent uint64 = 37
)

// KeyPair groups the exponents a client signs and registers with.
type KeyPair struct {
	Modulus uint64
	Public  uint64
	Private uint64
}

// DefaultKeyPair returns the toy key pair every bundled client uses.
func DefaultKeyPair() KeyPair {
	return KeyPair{Modulus: Modulus, Public: PublicExponent, Private: PrivateExponent}
}

// ModExp computes base^exp mod m by square-and-multiply. Every product is
// reduced through a 128-bit intermediate so any 64-bit modulus is safe.
func ModExp(base, exp, m uint64) uint64 {
	if m == 1 {
		return 0
	}
	result := uint64(1)
	base %= m
	for exp > 0 {
		if exp&1 == 1 {
			result = mulMod(result, base, m)
		}
		exp >>= 1
		base = mulMod(base, base, m)
	}
	return result
}

func mulMod(a, b, m uint64) uint64 {
	hi, lo := bits.Mul64(a, b)
	return bits.Rem64(hi, lo, m)
}

// Sign raises message (reduced mod modulus) to the private exponent.
func Sign(message, privateExponent, modulus uint64) uint64 {
	return ModExp(message%modulus, privateExponent, modulus)
}

// Verify reports whether signature^publicExponent mod modulus reproduces
// expected (reduced mod modulus).
func Verify(signature, publicExponent, modulus, expected uint64) bool {
	return ModExp(signature, publicExponent, modulus) == expected%modulus
}
