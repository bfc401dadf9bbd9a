package stream

import (
	"bytes"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/danmuck/authpipe/internal/signing"
)

// eventSink records every sink Write as a separate payload event.
type eventSink struct {
	mu     sync.Mutex
	events [][]byte
}

func (s *eventSink) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := make([]byte, len(p))
	copy(c, p)
	s.events = append(s.events, c)
	return len(p), nil
}

func (s *eventSink) Events() [][]byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([][]byte(nil), s.events...)
}

func (s *eventSink) Bytes() []byte {
	return bytes.Join(s.Events(), nil)
}

// countingVerifier approves keys equal to want and counts invocations.
type countingVerifier struct {
	want  []byte
	calls atomic.Int32
}

func (v *countingVerifier) VerifyPeerKey(key []byte, done func(bool, error)) {
	v.calls.Add(1)
	done(bytes.Equal(key, v.want), nil)
}

// parkedVerifier holds the completion handle until the test resolves it.
type parkedVerifier struct {
	calls atomic.Int32
	mu    sync.Mutex
	key   []byte
	done  func(bool, error)
	ready chan struct{}
}

func newParkedVerifier() *parkedVerifier {
	return &parkedVerifier{ready: make(chan struct{})}
}

func (v *parkedVerifier) VerifyPeerKey(key []byte, done func(bool, error)) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.calls.Add(1) == 1 {
		v.key = key
		v.done = done
		close(v.ready)
	}
}

func (v *parkedVerifier) resolve(approved bool, err error) {
	<-v.ready
	v.mu.Lock()
	done := v.done
	v.mu.Unlock()
	done(approved, err)
}

func testKeyPair(t testing.TB) signing.KeyPair {
	t.Helper()
	kp, err := signing.Default.GenerateKeyPair()
	if err != nil {
		t.Fatalf("generate key pair: %v", err)
	}
	return kp
}

func testConfig(kp signing.KeyPair, chunkSize int) Config {
	cfg := DefaultConfig()
	cfg.ChunkSize = chunkSize
	cfg.KeyPair = &kp
	return cfg
}

func encodeAll(t testing.TB, data []byte, cfg Config) []byte {
	t.Helper()
	var wire bytes.Buffer
	enc, err := NewEncoder(&wire, cfg)
	if err != nil {
		t.Fatalf("new encoder: %v", err)
	}
	if _, err := enc.Write(data); err != nil {
		t.Fatalf("encoder write: %v", err)
	}
	if err := enc.Close(); err != nil {
		t.Fatalf("encoder close: %v", err)
	}
	return wire.Bytes()
}

func patterned(n int) []byte {
	b := make([]byte, n)
	for i := range b {
		b[i] = byte(i*7 + 3)
	}
	return b
}
