package stream

import (
	"bytes"
	"fmt"
	"io"
	"sync"

	"github.com/rs/zerolog"

	"github.com/danmuck/authpipe/internal/bytequeue"
	"github.com/danmuck/authpipe/internal/observability"
	"github.com/danmuck/authpipe/internal/protocol"
	"github.com/danmuck/authpipe/internal/protocol/frame"
	"github.com/danmuck/authpipe/internal/signing"
)

// Encoder signs everything written to it and writes the wire format to dst.
//
// The header goes out with the first non-empty Write, so an encoder that
// never sees input writes nothing at all. Full chunks are framed as soon as
// they are buffered; Close frames whatever is left.
type Encoder struct {
	mu        sync.Mutex
	dst       io.Writer
	signer    signing.Signer
	publicKey []byte
	chunkSize int
	queue     *bytequeue.Queue
	header    bool
	closed    bool
	frames    int
	err       error
	log       zerolog.Logger
}

func NewEncoder(dst io.Writer, cfg Config) (*Encoder, error) {
	if dst == nil {
		return nil, fmt.Errorf("%w: nil destination", protocol.ErrInvalidConfig)
	}
	cfg = cfg.normalize()
	if cfg.ChunkSize < 1 || cfg.ChunkSize > cfg.Limits.MaxChunkSize {
		return nil, fmt.Errorf("%w: chunk size %d outside [1, %d]", protocol.ErrInvalidConfig, cfg.ChunkSize, cfg.Limits.MaxChunkSize)
	}

	var kp signing.KeyPair
	if cfg.KeyPair == nil {
		generated, err := cfg.Provider.GenerateKeyPair()
		if err != nil {
			return nil, configError(err)
		}
		kp = generated
	} else {
		kp = *cfg.KeyPair
	}
	if err := kp.Validate(); err != nil {
		return nil, err
	}
	if len(kp.PublicKey) > protocol.MaxField {
		return nil, fmt.Errorf("%w: public key is %d bytes", protocol.ErrInvalidKeyPair, len(kp.PublicKey))
	}
	derived, err := cfg.Provider.PublicKeyOf(kp.PrivateKey)
	if err != nil {
		return nil, configError(err)
	}
	if !bytes.Equal(derived, kp.PublicKey) {
		return nil, fmt.Errorf("%w: public key does not belong to the private key", protocol.ErrInvalidKeyPair)
	}
	signer, err := cfg.Provider.NewSigner(kp.PrivateKey)
	if err != nil {
		return nil, configError(err)
	}

	publicKey := make([]byte, len(kp.PublicKey))
	copy(publicKey, kp.PublicKey)
	return &Encoder{
		dst:       dst,
		signer:    signer,
		publicKey: publicKey,
		chunkSize: cfg.ChunkSize,
		queue:     bytequeue.New(),
		log:       cfg.logger("encoder"),
	}, nil
}

// Write buffers p and emits a frame for every complete chunk.
func (e *Encoder) Write(p []byte) (int, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.err != nil {
		return 0, e.err
	}
	if e.closed {
		return 0, protocol.ErrClosed
	}
	if len(p) == 0 {
		return 0, nil
	}
	if !e.header {
		if err := e.writeHeader(); err != nil {
			return 0, err
		}
	}
	e.queue.Put(p)
	for {
		payload, ok := e.queue.Take(e.chunkSize)
		if !ok {
			break
		}
		if err := e.writeFrame(payload); err != nil {
			return 0, err
		}
	}
	return len(p), nil
}

// Close frames any buffered remainder. It does not close dst.
func (e *Encoder) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.err != nil {
		return e.err
	}
	if e.closed {
		return nil
	}
	e.closed = true
	if n := e.queue.Size(); n > 0 {
		payload, _ := e.queue.Take(n)
		if err := e.writeFrame(payload); err != nil {
			return err
		}
	}
	e.log.Debug().Int("frames", e.frames).Msg("encoder_closed")
	return nil
}

// Abort drops buffered input. Later calls return protocol.ErrAborted.
func (e *Encoder) Abort() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.err == nil && !e.closed {
		e.fail(protocol.ErrAborted)
	}
	e.queue.Reset()
}

func (e *Encoder) PublicKey() []byte {
	out := make([]byte, len(e.publicKey))
	copy(out, e.publicKey)
	return out
}

func (e *Encoder) ChunkSize() int {
	return e.chunkSize
}

func (e *Encoder) Frames() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.frames
}

func (e *Encoder) Err() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.err
}

func (e *Encoder) writeHeader() error {
	hdr, err := frame.EncodeHeader(e.chunkSize, e.publicKey)
	if err != nil {
		return e.fail(fmt.Errorf("%w: %v", protocol.ErrInvalidConfig, err))
	}
	if _, err := e.dst.Write(hdr); err != nil {
		return e.fail(fmt.Errorf("stream: write header: %w", err))
	}
	e.header = true
	e.log.Debug().Int("chunk_size", e.chunkSize).Int("public_key_len", len(e.publicKey)).Msg("header_sent")
	return nil
}

func (e *Encoder) writeFrame(payload []byte) error {
	sig, err := e.signer.Sign(payload)
	if err != nil {
		observability.RecordFrame(observability.DirectionEncode, len(payload), false)
		return e.fail(fmt.Errorf("stream: sign frame %d: %w", e.frames+1, err))
	}
	buf := make([]byte, 0, frame.FieldLen+len(sig)+len(payload))
	buf, err = frame.AppendFrame(buf, sig, payload)
	if err != nil {
		return e.fail(fmt.Errorf("stream: frame %d: %w", e.frames+1, err))
	}
	if _, err := e.dst.Write(buf); err != nil {
		return e.fail(fmt.Errorf("stream: write frame %d: %w", e.frames+1, err))
	}
	e.frames++
	observability.RecordFrame(observability.DirectionEncode, len(payload), true)
	return nil
}

func (e *Encoder) fail(err error) error {
	if e.err != nil {
		return e.err
	}
	e.err = err
	e.queue.Reset()
	observability.RecordFailure(observability.DirectionEncode, protocol.Kind(err))
	e.log.Warn().Err(err).Int("frames", e.frames).Msg("encoder_failed")
	return err
}
