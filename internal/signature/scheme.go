package signature

// Scheme signs and verifies login timestamps. Protocol code only depends on
// this interface so a sound primitive can replace ToyRSA.
type Scheme interface {
	Sign(message, privateKey uint64) uint64
	Verify(signature, publicKey, message uint64) bool
}

// ToyRSA is textbook RSA over a small shared modulus. It offers no security.
type ToyRSA struct {
	Modulus uint64
}

// NewToyRSA returns a scheme over modulus, falling back to Modulus when zero.
func NewToyRSA(modulus uint64) ToyRSA {
	if modulus == 0 {
		modulus = Modulus
	}
	return ToyRSA{Modulus: modulus}
}

// Sign implements Scheme.
func (s ToyRSA) Sign(message, privateKey uint64) uint64 {
	return Sign(message, privateKey, s.Modulus)
}

// Verify implements Scheme.
func (s ToyRSA) Verify(signature, publicKey, message uint64) bool {
	return Verify(signature, publicKey, s.Modulus, message)
}

// Signer binds a scheme to one private key, the way clients hold it.
type Signer struct {
	scheme Scheme
	key    uint64
}

// NewSigner builds a Signer for keys.Private under scheme.
func NewSigner(scheme Scheme, keys KeyPair) *Signer {
	return &Signer{scheme: scheme, key: keys.Private}
}

// Sign signs message with the bound private key.
func (s *Signer) Sign(message uint64) uint64 {
	return s.scheme.Sign(message, s.key)
}
