package stream

import (
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/danmuck/authpipe/internal/bytequeue"
	"github.com/danmuck/authpipe/internal/protocol"
)

const readBufferSize = 32 * 1024

// Reader reads wire bytes from src and returns authenticated payload bytes.
// After a clean end of stream Read returns io.EOF; after a failure it
// returns the decoder's terminal error. Payloads verified before a failure
// are still returned first.
type Reader struct {
	src io.Reader
	dec *Decoder
	out *payloadBuffer
	buf []byte
	err error
}

func NewReader(src io.Reader, peer PeerVerifier, cfg Config) (*Reader, error) {
	if src == nil {
		return nil, fmt.Errorf("%w: nil source", protocol.ErrInvalidConfig)
	}
	out := &payloadBuffer{q: bytequeue.New()}
	dec, err := NewDecoder(out, peer, cfg)
	if err != nil {
		return nil, err
	}
	return &Reader{
		src: src,
		dec: dec,
		out: out,
		buf: make([]byte, readBufferSize),
	}, nil
}

func (r *Reader) Read(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	for {
		if n := r.out.read(p); n > 0 {
			return n, nil
		}
		if r.err != nil {
			return 0, r.err
		}
		n, err := r.src.Read(r.buf)
		if n > 0 {
			if _, werr := r.dec.Write(r.buf[:n]); werr != nil {
				r.err = werr
				continue
			}
			// The verdict may arrive from another goroutine. Payloads it
			// releases must be returned without waiting on src again.
			if err == nil && r.dec.awaitingVerification() {
				<-r.dec.Resolved()
			}
			if derr := r.dec.Err(); derr != nil {
				r.err = derr
				continue
			}
		}
		switch {
		case err == nil:
		case errors.Is(err, io.EOF):
			if cerr := r.dec.Close(); cerr != nil {
				r.err = cerr
			} else {
				r.err = io.EOF
			}
		default:
			r.dec.Abort()
			r.err = err
		}
	}
}

// Abort fails the underlying decoder and drops undelivered payloads. A Read
// waiting on peer verification returns at once; a Read blocked on src stays
// blocked until src returns, so close src to unblock it.
func (r *Reader) Abort() {
	r.dec.Abort()
	r.out.reset()
}

func (r *Reader) Decoder() *Decoder {
	return r.dec
}

// payloadBuffer is the Reader's sink. The decoder may write to it from a
// verification callback goroutine.
type payloadBuffer struct {
	mu sync.Mutex
	q  *bytequeue.Queue
}

func (b *payloadBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.q.Put(p)
	return len(p), nil
}

func (b *payloadBuffer) read(p []byte) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	n := min(len(p), b.q.Size())
	if n == 0 {
		return 0
	}
	chunk, _ := b.q.Take(n)
	return copy(p, chunk)
}

func (b *payloadBuffer) reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.q.Reset()
}
