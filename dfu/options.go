package dfu

import (
	"context"
	"time"

	"github.com/moffa90/go-nrfdfu/protocol"
)

// SleepFunc waits for d or until ctx is done.
type SleepFunc func(ctx context.Context, d time.Duration) error

// Config holds the updater configuration.
type Config struct {
	// ProgressCallback is called during the update to report progress (optional)
	ProgressCallback ProgressCallback

	// Logger is used for logging operations (optional)
	Logger Logger

	// MaxRetries is the number of times the command+data sequence is attempted
	MaxRetries int

	// RetryDelay is the pause between failed attempts
	RetryDelay time.Duration

	// SettleDelay is the pause before requesting the checksum of a short block.
	// Some bootloaders fail the checksum of a very short final block sent at full speed.
	SettleDelay time.Duration

	// ChunkSize is the maximum size of one data write
	ChunkSize int

	// CorruptAfter inverts the first byte of the first chunk that starts at or after
	// this object offset, once per object. Zero disables it.
	CorruptAfter uint32

	// ResetReceiptNotifications sends Set PRN(0) at the start of every attempt
	ResetReceiptNotifications bool

	// Sleep implements RetryDelay and SettleDelay
	Sleep SleepFunc
}

// DefaultMaxRetries is the number of update attempts made by default.
const DefaultMaxRetries = 3

// defaultConfig returns the default configuration.
func defaultConfig() Config {
	return Config{
		MaxRetries:  DefaultMaxRetries,
		RetryDelay:  3 * time.Second,
		SettleDelay: 1 * time.Second,
		ChunkSize:   protocol.MaxChunkSize,
		Sleep:       sleepContext,
	}
}

// sleepContext blocks for d, returning early with ctx.Err() if ctx is done first.
func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Option is a functional option for configuring the Updater.
type Option func(*Config)

// WithProgressCallback sets a callback function to track update progress.
func WithProgressCallback(callback ProgressCallback) Option {
	return func(c *Config) {
		c.ProgressCallback = callback
	}
}

// WithLogger sets a logger for the updater operations.
//
// Example:
//
//	u := dfu.New(connector, dfu.WithLogger(myLogger))
func WithLogger(logger Logger) Option {
	return func(c *Config) {
		c.Logger = logger
	}
}

// WithMaxRetries sets the number of attempts for the whole command+data sequence.
// Values below 1 are ignored.
//
// Example:
//
//	u := dfu.New(connector, dfu.WithMaxRetries(5))
func WithMaxRetries(retries int) Option {
	return func(c *Config) {
		if retries >= 1 {
			c.MaxRetries = retries
		}
	}
}

// WithRetryDelay sets the pause between failed attempts. Default is 3 seconds.
func WithRetryDelay(d time.Duration) Option {
	return func(c *Config) {
		if d >= 0 {
			c.RetryDelay = d
		}
	}
}

// WithSettleDelay sets the pause before the checksum request of a short block.
// Default is 1 second.
func WithSettleDelay(d time.Duration) Option {
	return func(c *Config) {
		if d >= 0 {
			c.SettleDelay = d
		}
	}
}

// WithChunkSize sets the maximum size of one data write.
// Must be between 1 and protocol.MaxChunkSize; other values are ignored.
//
// Example:
//
//	u := dfu.New(connector, dfu.WithChunkSize(16))
func WithChunkSize(size int) Option {
	return func(c *Config) {
		if size > 0 && size <= protocol.MaxChunkSize {
			c.ChunkSize = size
		}
	}
}

// WithCorruptAfter corrupts one byte of the stream once the object offset reaches
// offset, forcing a checksum mismatch and a retransmission. It exists for testing
// recovery against real hardware.
func WithCorruptAfter(offset uint32) Option {
	return func(c *Config) {
		c.CorruptAfter = offset
	}
}

// WithReceiptNotifications makes every attempt start with Set PRN(0) when reset is
// true, for bootloaders that keep a receipt interval from an earlier session.
func WithReceiptNotifications(reset bool) Option {
	return func(c *Config) {
		c.ResetReceiptNotifications = reset
	}
}

// WithSleepFunc replaces the function used for retry and settle delays.
func WithSleepFunc(sleep SleepFunc) Option {
	return func(c *Config) {
		if sleep != nil {
			c.Sleep = sleep
		}
	}
}
