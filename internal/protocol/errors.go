package protocol

import (
	"errors"
	"fmt"
)

// Error kinds. Every stream failure wraps exactly one of these.
var (
	ErrConfiguration  = errors.New("configuration error")
	ErrProtocol       = errors.New("protocol error")
	ErrAuthentication = errors.New("authentication error")
)

var (
	ErrMissingKeyPair = fmt.Errorf("%w: missing key pair", ErrConfiguration)
	ErrInvalidKeyPair = fmt.Errorf("%w: invalid key pair", ErrConfiguration)
	ErrInvalidConfig  = fmt.Errorf("%w: invalid stream config", ErrConfiguration)

	ErrInvalidChunkSize    = fmt.Errorf("%w: invalid chunk size", ErrProtocol)
	ErrInvalidPublicKeyLen = fmt.Errorf("%w: invalid public key length", ErrProtocol)
	ErrPublicKeyTooLarge   = fmt.Errorf("%w: public key too large", ErrProtocol)
	ErrInvalidSignatureLen = fmt.Errorf("%w: invalid signature length", ErrProtocol)
	ErrSignatureTooLarge   = fmt.Errorf("%w: signature too large", ErrProtocol)
	ErrTruncatedStream     = fmt.Errorf("%w: truncated stream", ErrProtocol)
	ErrMalformedPeerKey    = fmt.Errorf("%w: malformed peer public key", ErrProtocol)

	ErrInvalidSignature = fmt.Errorf("%w: invalid signature", ErrAuthentication)
	ErrPeerRejected     = fmt.Errorf("%w: peer public key rejected", ErrAuthentication)
	ErrPeerVerification = fmt.Errorf("%w: peer public key verification failed", ErrAuthentication)
)

// Lifecycle errors. These are not failures of the wire itself.
var (
	ErrClosed  = errors.New("protocol: stream closed")
	ErrAborted = errors.New("protocol: stream aborted")
)

// Kind classifies err into one of the taxonomy labels.
func Kind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrConfiguration):
		return "configuration"
	case errors.Is(err, ErrProtocol):
		return "protocol"
	case errors.Is(err, ErrAuthentication):
		return "authentication"
	case errors.Is(err, ErrAborted):
		return "aborted"
	default:
		return "other"
	}
}
