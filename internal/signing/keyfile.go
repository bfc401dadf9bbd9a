package signing

import (
	"bytes"
	"fmt"
	"os"
	"strings"

	"github.com/BurntSushi/toml"

	"github.com/danmuck/authpipe/internal/protocol"
)

type keyFile struct {
	PublicKey  string `toml:"public_key"`
	PrivateKey string `toml:"private_key"`
}

// SaveKeyPair writes kp to path readable only by the owner. An existing file
// is left untouched unless overwrite is set.
func SaveKeyPair(path string, kp KeyPair, overwrite bool) error {
	if err := kp.Validate(); err != nil {
		return err
	}
	if !overwrite {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("key file already exists: %s", path)
		}
	}
	var buf bytes.Buffer
	if err := toml.NewEncoder(&buf).Encode(keyFile{
		PublicKey:  FormatPublicKey(kp.PublicKey),
		PrivateKey: FormatPrivateKey(kp.PrivateKey),
	}); err != nil {
		return fmt.Errorf("encode key file: %w", err)
	}
	return os.WriteFile(path, buf.Bytes(), 0o600)
}

// LoadKeyPair reads a secp256k1 key file written by SaveKeyPair. The public
// key is derived from private_key; a stored public_key must match it.
func LoadKeyPair(path string) (KeyPair, error) {
	var raw keyFile
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return KeyPair{}, fmt.Errorf("%w: load key file (%s): %v", protocol.ErrInvalidKeyPair, path, err)
	}
	if !meta.IsDefined("private_key") || strings.TrimSpace(raw.PrivateKey) == "" {
		return KeyPair{}, fmt.Errorf("%w: key file (%s) has no private_key", protocol.ErrMissingKeyPair, path)
	}
	priv, err := ParsePrivateKey(raw.PrivateKey)
	if err != nil {
		return KeyPair{}, err
	}
	pub, err := Secp256k1{}.PublicKeyOf(priv)
	if err != nil {
		return KeyPair{}, err
	}
	if meta.IsDefined("public_key") {
		stored, err := ParsePublicKey(raw.PublicKey)
		if err != nil {
			return KeyPair{}, err
		}
		if !bytes.Equal(stored, pub) {
			return KeyPair{}, fmt.Errorf("%w: key file (%s) public_key does not match private_key", protocol.ErrInvalidKeyPair, path)
		}
	}
	kp := KeyPair{PublicKey: pub, PrivateKey: priv}
	return kp, kp.Validate()
}
