package frame

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/danmuck/authpipe/internal/protocol"
)

// FieldLen is the size of every length field on the wire.
const FieldLen = 2

var (
	ErrShortHeader = fmt.Errorf("%w: frame: short header", protocol.ErrTruncatedStream)
	ErrShortFrame  = fmt.Errorf("%w: frame: short frame", protocol.ErrTruncatedStream)
	ErrFieldRange  = errors.New("frame: value does not fit a length field")
)

// Header is the once-per-stream prologue.
type Header struct {
	ChunkSize uint16
	PublicKey []byte
}

// Frame is one signed payload unit.
type Frame struct {
	Signature []byte
	Payload   []byte
}

func PutField(b []byte, v int) {
	binary.LittleEndian.PutUint16(b, uint16(v))
}

func Field(b []byte) int {
	return int(binary.LittleEndian.Uint16(b))
}

// EncodeHeader renders the stream header.
func EncodeHeader(chunkSize int, publicKey []byte) ([]byte, error) {
	if chunkSize <= 0 || chunkSize > protocol.MaxField {
		return nil, fmt.Errorf("%w: chunk size %d", ErrFieldRange, chunkSize)
	}
	if len(publicKey) == 0 || len(publicKey) > protocol.MaxField {
		return nil, fmt.Errorf("%w: public key length %d", ErrFieldRange, len(publicKey))
	}
	buf := make([]byte, 2*FieldLen+len(publicKey))
	PutField(buf[0:2], chunkSize)
	PutField(buf[2:4], len(publicKey))
	copy(buf[4:], publicKey)
	return buf, nil
}

// AppendFrame appends signature_len | signature | payload to dst.
func AppendFrame(dst, signature, payload []byte) ([]byte, error) {
	if len(signature) == 0 || len(signature) > protocol.MaxField {
		return dst, fmt.Errorf("%w: signature length %d", ErrFieldRange, len(signature))
	}
	var l [FieldLen]byte
	PutField(l[:], len(signature))
	dst = append(dst, l[:]...)
	dst = append(dst, signature...)
	dst = append(dst, payload...)
	return dst, nil
}

// ReadHeader reads and bounds-checks the header from r. io.EOF is returned
// untouched when r is empty, which is a valid zero-length stream.
func ReadHeader(r io.Reader, limits protocol.Limits) (Header, error) {
	var fixed [2 * FieldLen]byte
	n, err := io.ReadFull(r, fixed[:FieldLen])
	if err != nil {
		if errors.Is(err, io.EOF) && n == 0 {
			return Header{}, io.EOF
		}
		return Header{}, shortOr(err, ErrShortHeader)
	}
	chunkSize := Field(fixed[0:2])
	if err := limits.CheckChunkSize(chunkSize); err != nil {
		return Header{}, err
	}
	if _, err := io.ReadFull(r, fixed[FieldLen:]); err != nil {
		return Header{}, shortOr(err, ErrShortHeader)
	}
	keyLen := Field(fixed[2:4])
	if err := limits.CheckPublicKeyLen(keyLen); err != nil {
		return Header{}, err
	}
	key := make([]byte, keyLen)
	if _, err := io.ReadFull(r, key); err != nil {
		return Header{}, shortOr(err, ErrShortHeader)
	}
	return Header{ChunkSize: uint16(chunkSize), PublicKey: key}, nil
}

// Reader pulls unverified frames off r. It is used for inspection; the
// authenticating path lives in package stream.
type Reader struct {
	r      io.Reader
	limits protocol.Limits
	header Header
	done   bool
}

// NewReader reads the header from r and returns a Reader positioned at the
// first frame.
func NewReader(r io.Reader, limits protocol.Limits) (*Reader, error) {
	limits = limits.Normalize()
	h, err := ReadHeader(r, limits)
	if err != nil {
		return nil, err
	}
	return &Reader{r: r, limits: limits, header: h}, nil
}

func (fr *Reader) Header() Header {
	return fr.header
}

// Next returns the next frame, or io.EOF after the last one.
func (fr *Reader) Next() (Frame, error) {
	if fr.done {
		return Frame{}, io.EOF
	}
	var l [FieldLen]byte
	n, err := io.ReadFull(fr.r, l[:])
	if err != nil {
		if errors.Is(err, io.EOF) && n == 0 {
			fr.done = true
			return Frame{}, io.EOF
		}
		return Frame{}, shortOr(err, ErrShortFrame)
	}
	sigLen := Field(l[:])
	if err := fr.limits.CheckSignatureLen(sigLen); err != nil {
		return Frame{}, err
	}
	sig := make([]byte, sigLen)
	if _, err := io.ReadFull(fr.r, sig); err != nil {
		return Frame{}, shortOr(err, ErrShortFrame)
	}
	payload := make([]byte, fr.header.ChunkSize)
	n, err = io.ReadFull(fr.r, payload)
	switch {
	case err == nil:
	case errors.Is(err, io.ErrUnexpectedEOF):
		// final, shorter frame
		fr.done = true
		payload = payload[:n]
	case errors.Is(err, io.EOF):
		return Frame{}, ErrShortFrame
	default:
		return Frame{}, err
	}
	return Frame{Signature: sig, Payload: payload}, nil
}

func shortOr(err, short error) error {
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return short
	}
	return err
}
