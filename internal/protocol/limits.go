package protocol

import "fmt"

// MaxField is the largest value a uint16 length field can carry.
const MaxField = 1<<16 - 1

// Limits bounds every header-derived length before anything is buffered
// for it. A peer is unauthenticated until its key is approved, so these are
// checked as soon as each field is decoded.
type Limits struct {
	MaxChunkSize      int
	MaxPublicKeyBytes int
	MaxSignatureBytes int
	// MaxPendingBytes caps input buffered while peer verification is
	// outstanding. Writers block once it is reached.
	MaxPendingBytes int
}

func DefaultLimits() Limits {
	return Limits{
		MaxChunkSize:      MaxField,
		MaxPublicKeyBytes: 1024,
		MaxSignatureBytes: 512,
		MaxPendingBytes:   1 << 20,
	}
}

// Normalize fills zero fields with defaults and clamps field limits to what
// the wire can express.
func (l Limits) Normalize() Limits {
	def := DefaultLimits()
	if l.MaxChunkSize <= 0 || l.MaxChunkSize > MaxField {
		l.MaxChunkSize = def.MaxChunkSize
	}
	if l.MaxPublicKeyBytes <= 0 || l.MaxPublicKeyBytes > MaxField {
		l.MaxPublicKeyBytes = def.MaxPublicKeyBytes
	}
	if l.MaxSignatureBytes <= 0 || l.MaxSignatureBytes > MaxField {
		l.MaxSignatureBytes = def.MaxSignatureBytes
	}
	if l.MaxPendingBytes <= 0 {
		l.MaxPendingBytes = def.MaxPendingBytes
	}
	return l
}

func (l Limits) CheckChunkSize(n int) error {
	if n <= 0 {
		return fmt.Errorf("%w: %d", ErrInvalidChunkSize, n)
	}
	if n > l.MaxChunkSize {
		return fmt.Errorf("%w: %d exceeds limit %d", ErrInvalidChunkSize, n, l.MaxChunkSize)
	}
	return nil
}

func (l Limits) CheckPublicKeyLen(n int) error {
	if n <= 0 {
		return fmt.Errorf("%w: %d", ErrInvalidPublicKeyLen, n)
	}
	if n > l.MaxPublicKeyBytes {
		return fmt.Errorf("%w: %d exceeds limit %d", ErrPublicKeyTooLarge, n, l.MaxPublicKeyBytes)
	}
	return nil
}

func (l Limits) CheckSignatureLen(n int) error {
	if n <= 0 {
		return fmt.Errorf("%w: %d", ErrInvalidSignatureLen, n)
	}
	if n > l.MaxSignatureBytes {
		return fmt.Errorf("%w: %d exceeds limit %d", ErrSignatureTooLarge, n, l.MaxSignatureBytes)
	}
	return nil
}
