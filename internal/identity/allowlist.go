package identity

import (
	"crypto/subtle"
	"fmt"
	"sync"

	"github.com/BurntSushi/toml"
	"github.com/rs/zerolog"
	"go.uber.org/multierr"

	"github.com/danmuck/authpipe/internal/protocol"
	"github.com/danmuck/authpipe/internal/signing"
)

// Peer is one trusted key as written in an allow list file:
//
//	[[peer]]
//	name = "build-runner"
//	public_key = "P..."
type Peer struct {
	Name      string `toml:"name"`
	PublicKey string `toml:"public_key"`
}

type allowListFile struct {
	Peers []Peer `toml:"peer"`
}

type trusted struct {
	name string
	key  []byte
}

// AllowList approves only keys it holds.
type AllowList struct {
	mu    sync.RWMutex
	peers []trusted
	log   zerolog.Logger
}

func NewAllowList(logger zerolog.Logger) *AllowList {
	return &AllowList{log: logger}
}

// LoadAllowList reads a TOML allow list. Every malformed entry is reported.
func LoadAllowList(path string, logger zerolog.Logger) (*AllowList, error) {
	var file allowListFile
	if _, err := toml.DecodeFile(path, &file); err != nil {
		return nil, fmt.Errorf("%w: allow list %s: %v", protocol.ErrInvalidConfig, path, err)
	}
	list := NewAllowList(logger)
	var errs error
	for i, p := range file.Peers {
		key, err := signing.ParsePublicKey(p.PublicKey)
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("peer %d (%s): %w", i+1, p.Name, err))
			continue
		}
		list.Add(p.Name, key)
	}
	if errs != nil {
		return nil, fmt.Errorf("%w: allow list %s: %v", protocol.ErrInvalidConfig, path, errs)
	}
	logger.Debug().Str("path", path).Int("peers", list.Len()).Msg("allow_list_loaded")
	return list, nil
}

func (a *AllowList) Add(name string, publicKey []byte) {
	key := make([]byte, len(publicKey))
	copy(key, publicKey)
	a.mu.Lock()
	defer a.mu.Unlock()
	a.peers = append(a.peers, trusted{name: name, key: key})
}

// Contains reports whether publicKey is trusted and under which name.
func (a *AllowList) Contains(publicKey []byte) (string, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	for _, p := range a.peers {
		if subtle.ConstantTimeCompare(p.key, publicKey) == 1 {
			return p.name, true
		}
	}
	return "", false
}

func (a *AllowList) Len() int {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return len(a.peers)
}

func (a *AllowList) VerifyPeerKey(publicKey []byte, done func(bool, error)) {
	name, ok := a.Contains(publicKey)
	a.log.Info().
		Str("peer", Fingerprint(publicKey)).
		Str("name", name).
		Bool("approved", ok).
		Msg("peer_allow_list_checked")
	done(ok, nil)
}
