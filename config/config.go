// Package config loads updater settings from a TOML file.
//
// Example file:
//
//	max_retries   = 5
//	retry_delay   = "2s"
//	settle_delay  = "500ms"
//	chunk_size    = 20
//	corrupt_after = 0
//	reset_prn     = false
//	log_level     = "debug"
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/rs/zerolog"

	"github.com/moffa90/go-nrfdfu/dfu"
	"github.com/moffa90/go-nrfdfu/logging"
	"github.com/moffa90/go-nrfdfu/protocol"
)

type fileConfig struct {
	MaxRetries   int    `toml:"max_retries"`
	RetryDelay   string `toml:"retry_delay"`
	SettleDelay  string `toml:"settle_delay"`
	ChunkSize    int    `toml:"chunk_size"`
	CorruptAfter int64  `toml:"corrupt_after"`
	ResetPRN     bool   `toml:"reset_prn"`
	LogLevel     string `toml:"log_level"`
}

// File holds the settings found in a config file. Fields left at their zero value
// were not set and keep the dfu defaults.
type File struct {
	MaxRetries   int
	RetryDelay   time.Duration
	SettleDelay  time.Duration
	ChunkSize    int
	CorruptAfter uint32
	ResetPRN     bool
	LogLevel     zerolog.Level

	defined map[string]bool
}

// Load reads and validates the TOML file at path.
func Load(path string) (*File, error) {
	var raw fileConfig
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return nil, fmt.Errorf("load dfu config: %w", err)
	}
	return fromMeta(raw, meta)
}

// Parse reads and validates TOML from data.
func Parse(data string) (*File, error) {
	var raw fileConfig
	meta, err := toml.Decode(data, &raw)
	if err != nil {
		return nil, fmt.Errorf("parse dfu config: %w", err)
	}
	return fromMeta(raw, meta)
}

func fromMeta(raw fileConfig, meta toml.MetaData) (*File, error) {
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, 0, len(undecoded))
		for _, k := range undecoded {
			keys = append(keys, k.String())
		}
		return nil, fmt.Errorf("unknown config keys: %s", strings.Join(keys, ", "))
	}

	f := &File{
		LogLevel: zerolog.InfoLevel,
		defined:  make(map[string]bool),
	}

	if meta.IsDefined("max_retries") {
		if raw.MaxRetries < 1 {
			return nil, fmt.Errorf("max_retries must be at least 1, got %d", raw.MaxRetries)
		}
		f.MaxRetries = raw.MaxRetries
		f.defined["max_retries"] = true
	}

	if meta.IsDefined("retry_delay") {
		d, err := parseDuration("retry_delay", raw.RetryDelay)
		if err != nil {
			return nil, err
		}
		f.RetryDelay = d
		f.defined["retry_delay"] = true
	}

	if meta.IsDefined("settle_delay") {
		d, err := parseDuration("settle_delay", raw.SettleDelay)
		if err != nil {
			return nil, err
		}
		f.SettleDelay = d
		f.defined["settle_delay"] = true
	}

	if meta.IsDefined("chunk_size") {
		if raw.ChunkSize < 1 || raw.ChunkSize > protocol.MaxChunkSize {
			return nil, fmt.Errorf("chunk_size must be between 1 and %d, got %d", protocol.MaxChunkSize, raw.ChunkSize)
		}
		f.ChunkSize = raw.ChunkSize
		f.defined["chunk_size"] = true
	}

	if meta.IsDefined("corrupt_after") {
		if raw.CorruptAfter < 0 || raw.CorruptAfter > int64(^uint32(0)) {
			return nil, fmt.Errorf("corrupt_after out of range: %d", raw.CorruptAfter)
		}
		f.CorruptAfter = uint32(raw.CorruptAfter)
		f.defined["corrupt_after"] = true
	}

	if meta.IsDefined("reset_prn") {
		f.ResetPRN = raw.ResetPRN
		f.defined["reset_prn"] = true
	}

	if meta.IsDefined("log_level") {
		level, err := logging.ParseLevel(raw.LogLevel)
		if err != nil {
			return nil, fmt.Errorf("parse log_level: %w", err)
		}
		f.LogLevel = level
		f.defined["log_level"] = true
	}

	return f, nil
}

func parseDuration(key, value string) (time.Duration, error) {
	d, err := time.ParseDuration(strings.TrimSpace(value))
	if err != nil {
		return 0, fmt.Errorf("parse %s: %w", key, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("%s cannot be negative", key)
	}
	return d, nil
}

// IsDefined reports whether key was present in the file.
func (f *File) IsDefined(key string) bool {
	return f.defined[key]
}

// Options converts the settings present in the file to updater options.
func (f *File) Options() []dfu.Option {
	var opts []dfu.Option
	if f.defined["max_retries"] {
		opts = append(opts, dfu.WithMaxRetries(f.MaxRetries))
	}
	if f.defined["retry_delay"] {
		opts = append(opts, dfu.WithRetryDelay(f.RetryDelay))
	}
	if f.defined["settle_delay"] {
		opts = append(opts, dfu.WithSettleDelay(f.SettleDelay))
	}
	if f.defined["chunk_size"] {
		opts = append(opts, dfu.WithChunkSize(f.ChunkSize))
	}
	if f.defined["corrupt_after"] {
		opts = append(opts, dfu.WithCorruptAfter(f.CorruptAfter))
	}
	if f.defined["reset_prn"] {
		opts = append(opts, dfu.WithReceiptNotifications(f.ResetPRN))
	}
	return opts
}
