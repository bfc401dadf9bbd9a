// Package identity provides peer-key trust decisions for stream decoders.
//
// It holds no stream state; every type here is a stream.PeerVerifier.
package identity

import (
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	sha256 "github.com/minio/sha256-simd"
	"github.com/rs/zerolog"

	"github.com/danmuck/authpipe/internal/protocol"
	"github.com/danmuck/authpipe/internal/stream"
)

// FingerprintLen is the number of hex characters in a short fingerprint.
const FingerprintLen = 12

// Fingerprint is the short human-facing identity of a public key.
func Fingerprint(publicKey []byte) string {
	return digestHex(publicKey)[:FingerprintLen]
}

func digestHex(publicKey []byte) string {
	sum := sha256.Sum256(publicKey)
	return hex.EncodeToString(sum[:])
}

// AcceptAny approves every key. It logs the fingerprint so an operator can
// check it out of band.
func AcceptAny(logger zerolog.Logger) stream.PeerVerifier {
	return stream.SyncVerifier(func(publicKey []byte) (bool, error) {
		logger.Info().Str("peer", Fingerprint(publicKey)).Msg("peer_accepted_unchecked")
		return true, nil
	})
}

// ExpectFingerprint approves keys whose SHA-256 hex digest starts with
// expected. Matching ignores case.
func ExpectFingerprint(expected string, logger zerolog.Logger) (stream.PeerVerifier, error) {
	want := strings.ToLower(strings.TrimSpace(expected))
	if want == "" {
		return nil, fmt.Errorf("%w: empty peer fingerprint", protocol.ErrInvalidConfig)
	}
	if len(want) > 2*sha256.Size {
		return nil, fmt.Errorf("%w: peer fingerprint longer than a digest", protocol.ErrInvalidConfig)
	}
	if _, err := hex.DecodeString(padEven(want)); err != nil {
		return nil, fmt.Errorf("%w: peer fingerprint %q is not hex", protocol.ErrInvalidConfig, expected)
	}
	return stream.SyncVerifier(func(publicKey []byte) (bool, error) {
		got := digestHex(publicKey)
		ok := strings.HasPrefix(got, want)
		logger.Debug().
			Str("peer", got[:FingerprintLen]).
			Str("expected", want).
			Bool("approved", ok).
			Msg("peer_fingerprint_checked")
		return ok, nil
	}), nil
}

func padEven(s string) string {
	if len(s)%2 == 1 {
		return s + "0"
	}
	return s
}

// Deferred parks the verification request until Approve or Reject is
// called, for embedders that ask a human or a remote service.
type Deferred struct {
	requested chan struct{}
	key       []byte
	done      func(bool, error)
}

var ErrNotRequested = errors.New("identity: no verification requested")

func NewDeferred() *Deferred {
	return &Deferred{requested: make(chan struct{})}
}

func (d *Deferred) VerifyPeerKey(publicKey []byte, done func(bool, error)) {
	select {
	case <-d.requested:
		return
	default:
	}
	d.key = publicKey
	d.done = done
	close(d.requested)
}

// Requested is closed once the decoder has asked for a decision.
func (d *Deferred) Requested() <-chan struct{} {
	return d.requested
}

// PublicKey returns the key awaiting a decision, or nil.
func (d *Deferred) PublicKey() []byte {
	select {
	case <-d.requested:
		return d.key
	default:
		return nil
	}
}

func (d *Deferred) Approve() error {
	return d.resolve(true, nil)
}

// Reject fails the stream. A nil reason rejects without a cause.
func (d *Deferred) Reject(reason error) error {
	return d.resolve(false, reason)
}

func (d *Deferred) resolve(approved bool, err error) error {
	select {
	case <-d.requested:
	default:
		return ErrNotRequested
	}
	d.done(approved, err)
	return nil
}
