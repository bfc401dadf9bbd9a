package signing

import (
	"fmt"
	"strings"

	"github.com/mr-tron/base58"

	"github.com/danmuck/authpipe/internal/protocol"
)

const (
	publicPrefix  = "P"
	privatePrefix = "p"
)

// FormatPublicKey renders a public key as "P" plus base58.
func FormatPublicKey(key []byte) string {
	return publicPrefix + base58.Encode(key)
}

// FormatPrivateKey renders a private key as "p" plus base58.
func FormatPrivateKey(key []byte) string {
	return privatePrefix + base58.Encode(key)
}

func ParsePublicKey(s string) ([]byte, error) {
	return parseKeyText(s, publicPrefix, "public")
}

func ParsePrivateKey(s string) ([]byte, error) {
	return parseKeyText(s, privatePrefix, "private")
}

func parseKeyText(s, prefix, kind string) ([]byte, error) {
	s = strings.TrimSpace(s)
	if len(s) < 2 {
		return nil, fmt.Errorf("%w: %s key is too short", protocol.ErrInvalidKeyPair, kind)
	}
	if s[:1] != prefix {
		if strings.EqualFold(s[:1], prefix) {
			return nil, fmt.Errorf("%w: %s key appears to be the other half of a key pair", protocol.ErrInvalidKeyPair, kind)
		}
		return nil, fmt.Errorf("%w: %s key has unknown prefix %q", protocol.ErrInvalidKeyPair, kind, s[:1])
	}
	b, err := base58.Decode(s[1:])
	if err != nil {
		return nil, fmt.Errorf("%w: %s key: %v", protocol.ErrInvalidKeyPair, kind, err)
	}
	if len(b) == 0 {
		return nil, fmt.Errorf("%w: %s key is empty", protocol.ErrInvalidKeyPair, kind)
	}
	return b, nil
}
