package stream

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/danmuck/authpipe/internal/protocol"
	"github.com/danmuck/authpipe/internal/signing"
)

// DefaultChunkSize is the payload length of every non-final frame.
const DefaultChunkSize = 1024

// Config is shared by encoders and decoders. Decoders ignore ChunkSize and
// KeyPair; the chunk size is read from the peer's header.
type Config struct {
	ChunkSize int
	// KeyPair signs outgoing frames. A fresh pair is generated when nil.
	KeyPair  *signing.KeyPair
	Provider signing.Provider
	Limits   protocol.Limits
	// Logger defaults to the global zerolog logger.
	Logger *zerolog.Logger
}

func DefaultConfig() Config {
	return Config{
		ChunkSize: DefaultChunkSize,
		Provider:  signing.Default,
		Limits:    protocol.DefaultLimits(),
	}
}

func (c Config) normalize() Config {
	if c.ChunkSize == 0 {
		c.ChunkSize = DefaultChunkSize
	}
	if c.Provider == nil {
		c.Provider = signing.Default
	}
	c.Limits = c.Limits.Normalize()
	return c
}

func (c Config) logger(component string) zerolog.Logger {
	base := log.Logger
	if c.Logger != nil {
		base = *c.Logger
	}
	return base.With().
		Str("component", component).
		Str("stream_id", uuid.NewString()).
		Logger()
}

// configError keeps provider errors inside the configuration kind.
func configError(err error) error {
	if err == nil || errors.Is(err, protocol.ErrConfiguration) {
		return err
	}
	return fmt.Errorf("%w: %w", protocol.ErrInvalidKeyPair, err)
}
