package dfu

import (
	"fmt"

	"github.com/pkg/errors"
)

var (
	// ErrMalformedResponse means a notification did not have the shape its request requires.
	ErrMalformedResponse = errors.New("unexpected notification from the peripheral")

	// ErrZeroOffset means the peripheral reported 0 bytes received after a block was written.
	ErrZeroOffset = errors.New("peripheral reported 0 bytes received")

	// ErrZeroBlockSize means Select reported a max object size of 0 for a non-empty object.
	ErrZeroBlockSize = errors.New("peripheral reported a max object size of 0")

	// ErrOffsetRegressed means a verified offset was lower than one already acknowledged.
	ErrOffsetRegressed = errors.New("peripheral offset moved backwards")

	// ErrEmptyObject means the init packet or firmware image is empty.
	ErrEmptyObject = errors.New("object is empty")

	// ErrObjectTooLarge means an object does not fit the protocol's 32-bit sizes.
	ErrObjectTooLarge = errors.New("object exceeds 4 GiB")
)

// ResumeMismatchError indicates that the bytes the peripheral holds for an object do
// not match the local copy, so the transfer cannot continue from them.
type ResumeMismatchError struct {
	Offset   uint32
	Expected uint32
	Actual   uint32
}

func (e *ResumeMismatchError) Error() string {
	return fmt.Sprintf("bad CRC for existing data: %d bytes, expected 0x%08X, peripheral has 0x%08X",
		e.Offset, e.Expected, e.Actual)
}

// ResumeRejectedError indicates that the peripheral refused to execute the bytes it
// already holds. The peripheral stays in this state until it is power cycled or its
// DFU timeout expires.
type ResumeRejectedError struct {
	Offset uint32
	Err    error
}

func (e *ResumeRejectedError) Error() string {
	return fmt.Sprintf("resume at offset %d rejected: %v; power cycle the device or allow the DFU to time out and try again",
		e.Offset, e.Err)
}

func (e *ResumeRejectedError) Unwrap() error {
	return e.Err
}

// RetriesExhaustedError is returned by Update when every attempt failed.
type RetriesExhaustedError struct {
	Attempts int
	Last     error
}

func (e *RetriesExhaustedError) Error() string {
	return fmt.Sprintf("too many retries, the operation failed after %d attempts: %v", e.Attempts, e.Last)
}

func (e *RetriesExhaustedError) Unwrap() error {
	return e.Last
}
