package dfu

import (
	"time"

	"github.com/moffa90/go-nrfdfu/protocol"
)

// Progress phases reported through ProgressCallback.
const (
	PhaseConnecting     = "connecting"
	PhaseSelect         = "select"
	PhaseResuming       = "resuming"
	PhaseResumeRejected = "resume-rejected"
	PhaseTransferring   = "transferring"
	PhaseExecuting      = "executing"
	PhaseRetrying       = "retrying"
	PhaseComplete       = "complete"
)

// Progress contains information about the update progress.
// Passed to ProgressCallback during an update.
type Progress struct {
	// Phase describes the current operation phase:
	//   "connecting"      - Opening the transport
	//   "select"          - Selecting an object and reading its state
	//   "resuming"        - Acknowledging bytes the peripheral already holds
	//   "resume-rejected" - The peripheral refused to resume; power cycle or wait for its timeout
	//   "transferring"    - A block was verified by checksum
	//   "executing"       - The object was fully transferred and executed
	//   "retrying"        - The attempt failed and the update will be retried
	//   "complete"        - The update completed successfully
	Phase string

	// Object is the object being transferred (zero while connecting)
	Object protocol.ObjectType

	// Offset is the number of bytes of Object acknowledged by the peripheral
	Offset uint32

	// Total is the length of Object in bytes
	Total uint32

	// Percentage is the completion percentage of Object (0.0 to 100.0)
	Percentage float64

	// Attempt is the 1-based attempt number
	Attempt int

	// ElapsedTime is the time elapsed since the update started
	ElapsedTime time.Duration
}

// ProgressCallback is called during an update to report progress.
// Implementations should return quickly to avoid stalling the transfer.
//
// Example:
//
//	u := dfu.New(connector,
//	    dfu.WithProgressCallback(func(p dfu.Progress) {
//	        fmt.Printf("[%s] %s %.1f%%\n", p.Phase, p.Object, p.Percentage)
//	    }),
//	)
type ProgressCallback func(Progress)

// Logger is an optional logging interface that can be provided to the updater.
// The logging package provides a zerolog-backed implementation.
//
// Example:
//
//	u := dfu.New(connector, dfu.WithLogger(logging.New(os.Stderr, "nrfdfu")))
type Logger interface {
	// Debug logs a debug message with optional key-value pairs
	Debug(msg string, keysAndValues ...interface{})

	// Info logs an info message with optional key-value pairs
	Info(msg string, keysAndValues ...interface{})

	// Error logs an error message with optional key-value pairs
	Error(msg string, keysAndValues ...interface{})
}
