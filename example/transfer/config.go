package main

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/pitscout/fountain"
	"github.com/pitscout/fountain/internal/logging"
	"github.com/pitscout/fountain/internal/protocol"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// Config is the configuration of the transfer tool.
type Config struct {
	// Profile: fast or reliable
	Profile   string `mapstructure:"profile"`
	BlockSize int    `mapstructure:"block_size"`
	// Format: compact or legacy
	Format            string  `mapstructure:"format"`
	HeaderInterval    int     `mapstructure:"header_interval"`
	FrameRate         float64 `mapstructure:"frame_rate"`
	MaxPendingPackets int     `mapstructure:"max_pending_packets"`
	QueueLen          int     `mapstructure:"queue_len"`

	// Loss is the share of frames the simulated camera misses.
	Loss float64 `mapstructure:"loss"`

	Log logging.Config `mapstructure:"log"`
}

func defaultConfig() *Config {
	return &Config{
		Profile:           "fast",
		BlockSize:         protocol.DefaultBlockSize,
		Format:            "compact",
		HeaderInterval:    protocol.DefaultHeaderInterval,
		FrameRate:         protocol.DefaultFrameRate,
		MaxPendingPackets: protocol.DefaultMaxPendingPackets,
		QueueLen:          fountain.DefaultScanQueueLen,
		Loss:              0.3,
		Log: logging.Config{
			Level:   "info",
			Format:  "console",
			Outputs: []string{"stderr"},
		},
	}
}

// addFlags registers the flags that override config keys.
func addFlags(fs *pflag.FlagSet) {
	def := defaultConfig()
	fs.String("profile", def.Profile, "transfer profile (fast, reliable)")
	fs.Int("block-size", def.BlockSize, "source block size in bytes")
	fs.String("format", def.Format, "wire format (compact, legacy)")
	fs.Float64("frame-rate", def.FrameRate, "frames per second, 0 for unlimited")
	fs.Float64("loss", def.Loss, "share of frames lost by the simulated camera")
	fs.String("log-level", def.Log.Level, "log level")
}

// loadConfig reads the config file at path (if any), the environment and the flags.
// Environment variables use the prefix FOUNTAIN, e.g. FOUNTAIN_LOG_LEVEL=debug.
func loadConfig(path string, fs *pflag.FlagSet) (*Config, error) {
	cfg := defaultConfig()

	v := viper.New()
	v.SetEnvPrefix("FOUNTAIN")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	v.SetDefault("profile", cfg.Profile)
	v.SetDefault("block_size", cfg.BlockSize)
	v.SetDefault("format", cfg.Format)
	v.SetDefault("header_interval", cfg.HeaderInterval)
	v.SetDefault("frame_rate", cfg.FrameRate)
	v.SetDefault("max_pending_packets", cfg.MaxPendingPackets)
	v.SetDefault("queue_len", cfg.QueueLen)
	v.SetDefault("loss", cfg.Loss)
	v.SetDefault("log.level", cfg.Log.Level)
	v.SetDefault("log.format", cfg.Log.Format)
	v.SetDefault("log.outputs", cfg.Log.Outputs)
	v.SetDefault("log.development", cfg.Log.Development)
	v.SetDefault("log.rotation.enable", cfg.Log.Rotation.Enable)

	if fs != nil {
		for key, flag := range map[string]string{
			"profile":    "profile",
			"block_size": "block-size",
			"format":     "format",
			"frame_rate": "frame-rate",
			"loss":       "loss",
			"log.level":  "log-level",
		} {
			if f := fs.Lookup(flag); f != nil {
				if err := v.BindPFlag(key, f); err != nil {
					return nil, err
				}
			}
		}
	}

	if path == "" {
		path = os.Getenv("FOUNTAIN_CONFIG")
	}
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("fountain")
		v.AddConfigPath(".")
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if cfg.Loss < 0 || cfg.Loss >= 1 {
		return nil, fmt.Errorf("invalid loss %v, must be in [0, 1)", cfg.Loss)
	}
	return cfg, nil
}

// fountainConfig converts the tool config into the library config.
func (c *Config) fountainConfig(logger *zap.Logger) (*fountain.Config, error) {
	profile, err := fountain.ParseProfile(c.Profile)
	if err != nil {
		return nil, err
	}
	format, err := fountain.ParseFormat(c.Format)
	if err != nil {
		return nil, err
	}
	frameRate := rate.Limit(c.FrameRate)
	if c.FrameRate == 0 {
		frameRate = rate.Inf
	}
	return &fountain.Config{
		Profile:           profile,
		BlockSize:         c.BlockSize,
		Format:            format,
		HeaderInterval:    c.HeaderInterval,
		FrameRate:         frameRate,
		MaxPendingPackets: c.MaxPendingPackets,
		Logger:            logger,
	}, nil
}
