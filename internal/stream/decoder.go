package stream

import (
	"encoding/hex"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/danmuck/authpipe/internal/bytequeue"
	"github.com/danmuck/authpipe/internal/observability"
	"github.com/danmuck/authpipe/internal/protocol"
	"github.com/danmuck/authpipe/internal/protocol/frame"
	"github.com/danmuck/authpipe/internal/signing"
)

// State is the position of a Decoder in the wire grammar.
type State int

const (
	StateAwaitChunkSize State = iota
	StateAwaitKeyLen
	StateAwaitPeerKey
	StateAwaitVerification
	StateAwaitSigLen
	StateAwaitSig
	StateAwaitPayload
	StateEnd
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateAwaitChunkSize:
		return "await_chunk_size"
	case StateAwaitKeyLen:
		return "await_key_len"
	case StateAwaitPeerKey:
		return "await_peer_key"
	case StateAwaitVerification:
		return "await_verification"
	case StateAwaitSigLen:
		return "await_sig_len"
	case StateAwaitSig:
		return "await_sig"
	case StateAwaitPayload:
		return "await_payload"
	case StateEnd:
		return "end"
	case StateFailed:
		return "failed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Decoder parses wire bytes written to it and delivers authenticated
// payloads to a sink, one sink Write per frame.
//
// Decoder is safe for concurrent use. Sink writes happen with the decoder
// locked, so a slow sink holds back Write.
type Decoder struct {
	mu       sync.Mutex
	sink     io.Writer
	peer     PeerVerifier
	provider signing.Provider
	limits   protocol.Limits
	log      zerolog.Logger

	queue     *bytequeue.Queue
	state     State
	received  int
	chunkSize int
	keyLen    int
	peerKey   []byte
	sigLen    int
	signature []byte
	verifier  signing.Verifier
	payloads  int
	closing   bool
	err       error

	verifyStarted time.Time
	resolved      chan struct{}
	resolvedDone  bool
}

func NewDecoder(sink io.Writer, peer PeerVerifier, cfg Config) (*Decoder, error) {
	if sink == nil {
		return nil, fmt.Errorf("%w: nil sink", protocol.ErrInvalidConfig)
	}
	if peer == nil {
		return nil, fmt.Errorf("%w: nil peer verifier", protocol.ErrInvalidConfig)
	}
	cfg = cfg.normalize()
	return &Decoder{
		sink:     sink,
		peer:     peer,
		provider: cfg.Provider,
		limits:   cfg.Limits,
		log:      cfg.logger("decoder"),
		queue:    bytequeue.New(),
		state:    StateAwaitChunkSize,
		resolved: make(chan struct{}),
	}, nil
}

// Write feeds wire bytes. While peer verification is pending the bytes are
// only buffered; once Limits.MaxPendingBytes are buffered Write blocks
// until the verification resolves or the decoder is aborted.
func (d *Decoder) Write(p []byte) (int, error) {
	d.mu.Lock()
	if err := d.writable(); err != nil {
		d.mu.Unlock()
		return 0, err
	}
	if len(p) == 0 {
		d.mu.Unlock()
		return 0, nil
	}
	d.queue.Put(p)
	d.received += len(p)
	d.waitPending(true)
	key, err := d.advance(false)
	d.mu.Unlock()
	if err != nil {
		return 0, err
	}
	if key != nil {
		d.requestVerification(key)
	}
	if err := d.Err(); err != nil {
		return 0, err
	}
	return len(p), nil
}

// Close marks the end of input. It waits for a pending verification,
// delivers the final short frame, and reports ErrTruncatedStream when
// buffered bytes do not complete the grammar. A decoder that never received
// a byte closes cleanly.
func (d *Decoder) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.err != nil {
		return d.err
	}
	if d.state == StateEnd {
		return nil
	}
	d.closing = true
	d.waitPending(false)
	if d.err != nil {
		return d.err
	}
	if _, err := d.advance(true); err != nil {
		return err
	}

	clean := (d.state == StateAwaitChunkSize && d.received == 0) ||
		(d.state == StateAwaitSigLen && d.queue.Size() == 0)
	if !clean {
		return d.fail(fmt.Errorf("%w: %d bytes left in %s", protocol.ErrTruncatedStream, d.queue.Size(), d.state))
	}
	d.state = StateEnd
	d.log.Debug().Int("payloads", d.payloads).Msg("decoder_closed")
	return nil
}

// Abort discards buffered input and fails the decoder with
// protocol.ErrAborted. A pending verification outcome is ignored.
func (d *Decoder) Abort() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.state != StateEnd {
		d.fail(protocol.ErrAborted)
	}
}

func (d *Decoder) Err() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.err
}

func (d *Decoder) State() State {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.state
}

// Payloads reports how many frames were verified and delivered.
func (d *Decoder) Payloads() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.payloads
}

// PeerKey returns the approved peer key, or nil before approval.
func (d *Decoder) PeerKey() []byte {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.verifier == nil {
		return nil
	}
	out := make([]byte, len(d.peerKey))
	copy(out, d.peerKey)
	return out
}

// ChunkSize returns the peer's declared chunk size, or 0 before the header.
func (d *Decoder) ChunkSize() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.chunkSize
}

// Resolved is closed once peer verification has an outcome, or the
// decoder has failed. Nothing is delivered to the sink before then.
func (d *Decoder) Resolved() <-chan struct{} {
	return d.resolved
}

// awaitingVerification reports whether the peer key is with the verifier.
func (d *Decoder) awaitingVerification() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.state == StateAwaitVerification
}

func (d *Decoder) writable() error {
	if d.err != nil {
		return d.err
	}
	if d.closing || d.state == StateEnd {
		return protocol.ErrClosed
	}
	return nil
}

// waitPending releases the lock while verification is outstanding. With
// bounded set it only waits once the pending buffer is full.
func (d *Decoder) waitPending(bounded bool) {
	for d.state == StateAwaitVerification {
		if bounded && d.queue.Size() < d.limits.MaxPendingBytes {
			return
		}
		ch := d.resolved
		d.mu.Unlock()
		<-ch
		d.mu.Lock()
	}
}

// advance runs the state machine over buffered bytes. When the header is
// complete it returns the peer key; the caller must then request
// verification without holding the lock. flush allows a short final
// payload.
func (d *Decoder) advance(flush bool) ([]byte, error) {
	for {
		switch d.state {
		case StateAwaitChunkSize:
			b, ok := d.queue.Take(frame.FieldLen)
			if !ok {
				return nil, nil
			}
			n := frame.Field(b)
			if err := d.limits.CheckChunkSize(n); err != nil {
				return nil, d.fail(err)
			}
			d.chunkSize = n
			d.state = StateAwaitKeyLen

		case StateAwaitKeyLen:
			b, ok := d.queue.Take(frame.FieldLen)
			if !ok {
				return nil, nil
			}
			n := frame.Field(b)
			if err := d.limits.CheckPublicKeyLen(n); err != nil {
				return nil, d.fail(err)
			}
			d.keyLen = n
			d.state = StateAwaitPeerKey

		case StateAwaitPeerKey:
			key, ok := d.queue.Take(d.keyLen)
			if !ok {
				return nil, nil
			}
			d.peerKey = key
			d.state = StateAwaitVerification
			d.verifyStarted = time.Now()
			d.log.Debug().
				Int("chunk_size", d.chunkSize).
				Str("peer", shortHex(key)).
				Msg("peer_key_received")
			out := make([]byte, len(key))
			copy(out, key)
			return out, nil

		case StateAwaitVerification:
			return nil, nil

		case StateAwaitSigLen:
			b, ok := d.queue.Take(frame.FieldLen)
			if !ok {
				return nil, nil
			}
			n := frame.Field(b)
			if err := d.limits.CheckSignatureLen(n); err != nil {
				return nil, d.fail(err)
			}
			d.sigLen = n
			d.state = StateAwaitSig

		case StateAwaitSig:
			sig, ok := d.queue.Take(d.sigLen)
			if !ok {
				return nil, nil
			}
			d.signature = sig
			d.state = StateAwaitPayload

		case StateAwaitPayload:
			n := d.chunkSize
			if flush && d.queue.Size() < n {
				n = d.queue.Size()
			}
			if n == 0 {
				return nil, nil
			}
			payload, ok := d.queue.Take(n)
			if !ok {
				return nil, nil
			}
			if err := d.deliver(payload); err != nil {
				return nil, err
			}

		default:
			return nil, d.err
		}
	}
}

func (d *Decoder) deliver(payload []byte) error {
	if !d.verifier.Verify(payload, d.signature) {
		observability.RecordFrame(observability.DirectionDecode, len(payload), false)
		return d.fail(fmt.Errorf("%w: frame %d", protocol.ErrInvalidSignature, d.payloads+1))
	}
	d.signature = nil
	d.state = StateAwaitSigLen
	if _, err := d.sink.Write(payload); err != nil {
		return d.fail(fmt.Errorf("stream: deliver frame %d: %w", d.payloads+1, err))
	}
	d.payloads++
	observability.RecordFrame(observability.DirectionDecode, len(payload), true)
	return nil
}

func (d *Decoder) requestVerification(key []byte) {
	var once sync.Once
	d.peer.VerifyPeerKey(key, func(approved bool, err error) {
		once.Do(func() {
			d.resolve(approved, err)
		})
	})
}

func (d *Decoder) resolve(approved bool, err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.state != StateAwaitVerification {
		return
	}
	observability.RecordPeerVerification(approved && err == nil, time.Since(d.verifyStarted))
	switch {
	case err != nil:
		d.fail(fmt.Errorf("%w: %w", protocol.ErrPeerVerification, err))
		return
	case !approved:
		d.fail(protocol.ErrPeerRejected)
		return
	}
	v, verr := d.provider.NewVerifier(d.peerKey)
	if verr != nil {
		d.fail(fmt.Errorf("%w: %v", protocol.ErrMalformedPeerKey, verr))
		return
	}
	d.verifier = v
	d.state = StateAwaitSigLen
	d.signalResolved()
	d.log.Debug().Str("peer", shortHex(d.peerKey)).Int("buffered", d.queue.Size()).Msg("peer_approved")
	d.advance(false)
}

func (d *Decoder) signalResolved() {
	if !d.resolvedDone {
		d.resolvedDone = true
		close(d.resolved)
	}
}

func (d *Decoder) fail(err error) error {
	if d.err != nil {
		return d.err
	}
	d.err = err
	d.state = StateFailed
	d.queue.Reset()
	d.signature = nil
	d.signalResolved()
	observability.RecordFailure(observability.DirectionDecode, protocol.Kind(err))
	d.log.Warn().Err(err).Int("payloads", d.payloads).Msg("decoder_failed")
	return err
}

func shortHex(b []byte) string {
	if len(b) > 8 {
		b = b[:8]
	}
	return hex.EncodeToString(b)
}
