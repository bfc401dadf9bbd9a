package stream

import (
	"bytes"
	"errors"
	"io"
	"testing"

	"github.com/danmuck/authpipe/internal/protocol"
	"github.com/danmuck/authpipe/internal/protocol/frame"
	"github.com/danmuck/authpipe/internal/signing"
	"github.com/danmuck/authpipe/internal/testutil/testlog"
)

func TestEncoderConcreteScenario(t *testing.T) {
	testlog.Start(t)
	kp := testKeyPair(t)
	wire := encodeAll(t, []byte("abcdefghij"), testConfig(kp, 4))

	fr, err := frame.NewReader(bytes.NewReader(wire), protocol.DefaultLimits())
	if err != nil {
		t.Fatalf("read header: %v", err)
	}
	if fr.Header().ChunkSize != 4 {
		t.Fatalf("unexpected chunk size %d", fr.Header().ChunkSize)
	}
	if !bytes.Equal(fr.Header().PublicKey, kp.PublicKey) {
		t.Fatalf("header carries the wrong public key")
	}
	verifier, err := signing.Default.NewVerifier(kp.PublicKey)
	if err != nil {
		t.Fatalf("verifier: %v", err)
	}
	for i, want := range []string{"abcd", "efgh", "ij"} {
		f, err := fr.Next()
		if err != nil {
			t.Fatalf("frame %d: %v", i, err)
		}
		if string(f.Payload) != want {
			t.Fatalf("frame %d payload=%q want %q", i, f.Payload, want)
		}
		if !verifier.Verify(f.Payload, f.Signature) {
			t.Fatalf("frame %d signature does not verify", i)
		}
	}
	if _, err := fr.Next(); !errors.Is(err, io.EOF) {
		t.Fatalf("expected end of frames, got %v", err)
	}
}

func TestEncoderEmptyInputWritesNothing(t *testing.T) {
	var wire bytes.Buffer
	enc, err := NewEncoder(&wire, testConfig(testKeyPair(t), 4))
	if err != nil {
		t.Fatalf("new encoder: %v", err)
	}
	if n, err := enc.Write(nil); n != 0 || err != nil {
		t.Fatalf("empty write: n=%d err=%v", n, err)
	}
	if err := enc.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if wire.Len() != 0 {
		t.Fatalf("expected no wire bytes, got %d", wire.Len())
	}
}

func TestEncoderHeaderOnceAndExactChunkHasNoTrailingFrame(t *testing.T) {
	kp := testKeyPair(t)
	var wire bytes.Buffer
	enc, err := NewEncoder(&wire, testConfig(kp, 4))
	if err != nil {
		t.Fatalf("new encoder: %v", err)
	}
	for _, part := range []string{"ab", "cd", "efg", "h"} {
		if _, err := enc.Write([]byte(part)); err != nil {
			t.Fatalf("write %q: %v", part, err)
		}
	}
	if err := enc.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if enc.Frames() != 2 {
		t.Fatalf("expected 2 frames, got %d", enc.Frames())
	}

	fr, err := frame.NewReader(bytes.NewReader(wire.Bytes()), protocol.DefaultLimits())
	if err != nil {
		t.Fatalf("read header: %v", err)
	}
	var payloads []string
	for {
		f, err := fr.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			t.Fatalf("next: %v", err)
		}
		payloads = append(payloads, string(f.Payload))
	}
	if len(payloads) != 2 || payloads[0] != "abcd" || payloads[1] != "efgh" {
		t.Fatalf("unexpected payloads %q", payloads)
	}
}

func TestEncoderWriteAfterClose(t *testing.T) {
	enc, err := NewEncoder(io.Discard, testConfig(testKeyPair(t), 4))
	if err != nil {
		t.Fatalf("new encoder: %v", err)
	}
	if err := enc.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if _, err := enc.Write([]byte("x")); !errors.Is(err, protocol.ErrClosed) {
		t.Fatalf("expected ErrClosed, got %v", err)
	}
	if err := enc.Close(); err != nil {
		t.Fatalf("second close: %v", err)
	}
}

func TestEncoderGeneratesKeyPairWhenAbsent(t *testing.T) {
	cfg := DefaultConfig()
	var wire bytes.Buffer
	enc, err := NewEncoder(&wire, cfg)
	if err != nil {
		t.Fatalf("new encoder: %v", err)
	}
	if len(enc.PublicKey()) != signing.PublicKeyLen {
		t.Fatalf("unexpected generated key length %d", len(enc.PublicKey()))
	}
	if enc.ChunkSize() != DefaultChunkSize {
		t.Fatalf("unexpected default chunk size %d", enc.ChunkSize())
	}
}

func TestEncoderConfigurationErrors(t *testing.T) {
	kp, other := testKeyPair(t), testKeyPair(t)
	cases := []struct {
		name string
		dst  io.Writer
		cfg  Config
	}{
		{"nil dst", nil, testConfig(kp, 4)},
		{"negative chunk size", io.Discard, testConfig(kp, -1)},
		{"chunk size beyond wire", io.Discard, testConfig(kp, protocol.MaxField+1)},
		{"missing private key", io.Discard, testConfig(signing.KeyPair{PublicKey: kp.PublicKey}, 4)},
		{"missing public key", io.Discard, testConfig(signing.KeyPair{PrivateKey: kp.PrivateKey}, 4)},
		{"malformed private key", io.Discard, testConfig(signing.KeyPair{PublicKey: kp.PublicKey, PrivateKey: []byte("x")}, 4)},
		{"public key from another pair", io.Discard, testConfig(signing.KeyPair{PublicKey: other.PublicKey, PrivateKey: kp.PrivateKey}, 4)},
		{"unparseable public key", io.Discard, testConfig(signing.KeyPair{PublicKey: []byte{0x02, 0x01}, PrivateKey: kp.PrivateKey}, 4)},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := NewEncoder(tc.dst, tc.cfg); !errors.Is(err, protocol.ErrConfiguration) {
				t.Fatalf("expected configuration error, got %v", err)
			}
		})
	}

	limited := testConfig(kp, 64)
	limited.Limits.MaxChunkSize = 32
	if _, err := NewEncoder(io.Discard, limited); !errors.Is(err, protocol.ErrInvalidConfig) {
		t.Fatalf("expected ErrInvalidConfig for chunk size above limit, got %v", err)
	}
}

func TestEncoderRejectsMismatchedKeyPair(t *testing.T) {
	kp, other := testKeyPair(t), testKeyPair(t)
	for name, pair := range map[string]signing.KeyPair{
		"foreign public key": {PublicKey: other.PublicKey, PrivateKey: kp.PrivateKey},
		"truncated public key": {PublicKey: kp.PublicKey[:20], PrivateKey: kp.PrivateKey},
	} {
		var wire bytes.Buffer
		_, err := NewEncoder(&wire, testConfig(pair, 4))
		if !errors.Is(err, protocol.ErrInvalidKeyPair) {
			t.Fatalf("%s: expected ErrInvalidKeyPair, got %v", name, err)
		}
		if wire.Len() != 0 {
			t.Fatalf("%s: rejected encoder wrote %d bytes", name, wire.Len())
		}
	}
}

type failingProvider struct {
	signing.Provider
}

func (failingProvider) NewSigner([]byte) (signing.Signer, error) {
	return signing.SignerFunc(func([]byte) ([]byte, error) {
		return nil, errors.New("hsm offline")
	}), nil
}

func TestEncoderSignFailureIsSticky(t *testing.T) {
	cfg := testConfig(testKeyPair(t), 2)
	cfg.Provider = failingProvider{signing.Default}
	var wire bytes.Buffer
	enc, err := NewEncoder(&wire, cfg)
	if err != nil {
		t.Fatalf("new encoder: %v", err)
	}
	_, err = enc.Write([]byte("abcd"))
	if err == nil {
		t.Fatalf("expected sign failure")
	}
	if _, again := enc.Write([]byte("ef")); again != err {
		t.Fatalf("expected sticky error, got %v", again)
	}
	if cerr := enc.Close(); cerr != err {
		t.Fatalf("close should return the terminal error, got %v", cerr)
	}
}

type brokenWriter struct{}

func (brokenWriter) Write([]byte) (int, error) {
	return 0, errors.New("pipe closed")
}

func TestEncoderDestinationFailure(t *testing.T) {
	enc, err := NewEncoder(brokenWriter{}, testConfig(testKeyPair(t), 4))
	if err != nil {
		t.Fatalf("new encoder: %v", err)
	}
	if _, err := enc.Write([]byte("a")); err == nil {
		t.Fatalf("expected header write failure")
	}
	if enc.Err() == nil {
		t.Fatalf("encoder should be failed")
	}
}

func TestEncoderAbortDropsRemainder(t *testing.T) {
	var wire bytes.Buffer
	enc, err := NewEncoder(&wire, testConfig(testKeyPair(t), 4))
	if err != nil {
		t.Fatalf("new encoder: %v", err)
	}
	if _, err := enc.Write([]byte("ab")); err != nil {
		t.Fatalf("write: %v", err)
	}
	before := wire.Len()
	enc.Abort()
	if err := enc.Close(); !errors.Is(err, protocol.ErrAborted) {
		t.Fatalf("expected ErrAborted, got %v", err)
	}
	if wire.Len() != before {
		t.Fatalf("aborted encoder flushed buffered bytes")
	}
}
