package signing

import (
	"fmt"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/decred/dcrd/dcrec/secp256k1/v4/ecdsa"
	sha256 "github.com/minio/sha256-simd"

	"github.com/danmuck/authpipe/internal/protocol"
)

const (
	PrivateKeyLen = secp256k1.PrivKeyBytesLen
	PublicKeyLen  = secp256k1.PubKeyBytesLenCompressed
)

// Secp256k1 signs SHA-256 digests with ECDSA over secp256k1. Public keys
// are 33-byte compressed points; signatures are DER and vary in length.
//
// It is safe to use concurrently.
type Secp256k1 struct{}

func (Secp256k1) GenerateKeyPair() (KeyPair, error) {
	priv, err := secp256k1.GeneratePrivateKey()
	if err != nil {
		return KeyPair{}, fmt.Errorf("generate secp256k1 key: %w", err)
	}
	return KeyPair{
		PublicKey:  priv.PubKey().SerializeCompressed(),
		PrivateKey: priv.Serialize(),
	}, nil
}

func (Secp256k1) NewSigner(privateKey []byte) (Signer, error) {
	priv, err := parsePrivateKey(privateKey)
	if err != nil {
		return nil, err
	}
	return SignerFunc(func(message []byte) ([]byte, error) {
		digest := sha256.Sum256(message)
		return ecdsa.Sign(priv, digest[:]).Serialize(), nil
	}), nil
}

func (Secp256k1) NewVerifier(publicKey []byte) (Verifier, error) {
	pub, err := secp256k1.ParsePubKey(publicKey)
	if err != nil {
		return nil, fmt.Errorf("%w: public key: %v", protocol.ErrInvalidKeyPair, err)
	}
	return VerifierFunc(func(message, signature []byte) bool {
		sig, err := ecdsa.ParseDERSignature(signature)
		if err != nil {
			return false
		}
		digest := sha256.Sum256(message)
		return sig.Verify(digest[:], pub)
	}), nil
}

// PublicKeyOf derives the compressed public key for a serialized private key.
func (Secp256k1) PublicKeyOf(privateKey []byte) ([]byte, error) {
	priv, err := parsePrivateKey(privateKey)
	if err != nil {
		return nil, err
	}
	return priv.PubKey().SerializeCompressed(), nil
}

func parsePrivateKey(b []byte) (*secp256k1.PrivateKey, error) {
	if len(b) != PrivateKeyLen {
		return nil, fmt.Errorf("%w: private key is %d bytes, want %d", protocol.ErrInvalidKeyPair, len(b), PrivateKeyLen)
	}
	priv := secp256k1.PrivKeyFromBytes(b)
	if priv.Key.IsZero() {
		return nil, fmt.Errorf("%w: private key is zero", protocol.ErrInvalidKeyPair)
	}
	return priv, nil
}
