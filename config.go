package fountain

import (
	"errors"
	"fmt"

	"github.com/pitscout/fountain/internal/protocol"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// Config contains all configuration data needed for a Transmitter or a Collector.
type Config struct {
	// Profile used by the Transmitter. Defaults to ProfileFast.
	Profile Profile
	// BlockSize is the source block size in bytes. Defaults to 128.
	BlockSize int
	// Format is the wire format of the frames produced by the Transmitter.
	Format Format
	// HeaderInterval is how often a compact stream repeats the session header.
	// A value of 1 attaches it to every packet.
	HeaderInterval int
	// FrameRate is the number of frames Run displays per second.
	// rate.Inf displays them as fast as the display callback returns.
	FrameRate rate.Limit
	// MaxPendingPackets bounds the packets a Collector buffers per session before the header is known.
	MaxPendingPackets int
	// Seed makes the packet stream reproducible. If 0, a random seed is used.
	Seed uint64
	// Handler is informed when a session completes or fails.
	Handler PayloadHandler
	Logger  *zap.Logger
}

// Clone clones a Config
func (c *Config) Clone() *Config {
	copied := *c
	return &copied
}

func validateConfig(config *Config) error {
	if config == nil {
		return nil
	}
	if config.BlockSize < 0 || config.BlockSize > protocol.MaxBlockSize {
		return fmt.Errorf("invalid block size %d, must be in (0, %d]", config.BlockSize, protocol.MaxBlockSize)
	}
	if config.HeaderInterval < 0 {
		return errors.New("invalid header interval")
	}
	if config.FrameRate < 0 {
		return errors.New("invalid frame rate")
	}
	if config.MaxPendingPackets < 0 {
		return errors.New("invalid max pending packets")
	}
	switch config.Format {
	case FormatCompact, FormatLegacy:
	default:
		return fmt.Errorf("invalid format %d", config.Format)
	}
	return nil
}

// populateConfig populates fields in the Config with their default values, if none are set.
// It may be called with nil.
func populateConfig(config *Config) *Config {
	if config == nil {
		config = &Config{}
	}
	profile := config.Profile
	if profile == protocol.ProfileUnset {
		profile = ProfileFast
	}
	blockSize := config.BlockSize
	if blockSize == 0 {
		blockSize = protocol.DefaultBlockSize
	}
	headerInterval := config.HeaderInterval
	if headerInterval == 0 {
		headerInterval = protocol.DefaultHeaderInterval
	}
	frameRate := config.FrameRate
	if frameRate == 0 {
		frameRate = protocol.DefaultFrameRate
	}
	maxPending := config.MaxPendingPackets
	if maxPending == 0 {
		maxPending = protocol.DefaultMaxPendingPackets
	}
	logger := config.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Config{
		Profile:           profile,
		BlockSize:         blockSize,
		Format:            config.Format,
		HeaderInterval:    headerInterval,
		FrameRate:         frameRate,
		MaxPendingPackets: maxPending,
		Seed:              config.Seed,
		Handler:           config.Handler,
		Logger:            logger,
	}
}
