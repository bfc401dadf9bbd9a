package stream

// PeerVerifier decides whether a peer's claimed public key is trusted.
//
// VerifyPeerKey is called once per Decoder, with the key exactly as it
// appeared on the wire. done may be called synchronously or later from any
// goroutine; the decoder stays suspended until it is. Only the first call
// to done has any effect. The stream proceeds only when done is called with
// approved set and a nil error.
type PeerVerifier interface {
	VerifyPeerKey(publicKey []byte, done func(approved bool, err error))
}

// PeerVerifierFunc adapts a function into a PeerVerifier.
type PeerVerifierFunc func(publicKey []byte, done func(approved bool, err error))

func (f PeerVerifierFunc) VerifyPeerKey(publicKey []byte, done func(approved bool, err error)) {
	f(publicKey, done)
}

// SyncVerifier wraps a blocking decision function.
func SyncVerifier(fn func(publicKey []byte) (bool, error)) PeerVerifier {
	return PeerVerifierFunc(func(publicKey []byte, done func(bool, error)) {
		done(fn(publicKey))
	})
}
