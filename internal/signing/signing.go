// Package signing provides the signature capability streams are built on.
//
// Streams depend only on the Provider, Signer and Verifier contracts. The
// reference Provider is Secp256k1.
package signing

import (
	"fmt"

	"github.com/danmuck/authpipe/internal/protocol"
)

// KeyPair is one endpoint's asymmetric key material in the provider's
// serialized form.
type KeyPair struct {
	PublicKey  []byte
	PrivateKey []byte
}

func (kp KeyPair) Validate() error {
	if len(kp.PrivateKey) == 0 {
		return fmt.Errorf("%w: missing private key", protocol.ErrInvalidKeyPair)
	}
	if len(kp.PublicKey) == 0 {
		return fmt.Errorf("%w: missing public key", protocol.ErrInvalidKeyPair)
	}
	return nil
}

// Signer signs messages with a private key bound at construction.
type Signer interface {
	Sign(message []byte) ([]byte, error)
}

// Verifier checks signatures against a public key bound at construction.
// Verify must return false, not panic, for malformed signatures.
type Verifier interface {
	Verify(message, signature []byte) bool
}

// Provider creates key material and the capabilities bound to it.
type Provider interface {
	GenerateKeyPair() (KeyPair, error)
	NewSigner(privateKey []byte) (Signer, error)
	NewVerifier(publicKey []byte) (Verifier, error)
	// PublicKeyOf derives the public half of a serialized private key.
	PublicKeyOf(privateKey []byte) ([]byte, error)
}

// SignerFunc adapts a function into a Signer.
type SignerFunc func(message []byte) ([]byte, error)

func (f SignerFunc) Sign(message []byte) ([]byte, error) {
	return f(message)
}

// VerifierFunc adapts a function into a Verifier.
type VerifierFunc func(message, signature []byte) bool

func (f VerifierFunc) Verify(message, signature []byte) bool {
	return f(message, signature)
}

// Default is the provider used when none is configured.
var Default Provider = Secp256k1{}
