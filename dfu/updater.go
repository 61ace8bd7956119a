package dfu

import (
	"context"
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/moffa90/go-nrfdfu/protocol"
)

// Updater performs firmware updates against Nordic Secure DFU bootloaders.
// It handles connection, retries, resume and progress tracking.
//
// Updater is safe for concurrent use after initialization; every Update call
// owns its own session.
type Updater struct {
	connector Connector
	config    Config
}

// New creates a new Updater with the given connector and options.
//
// Example:
//
//	u := dfu.New(connector,
//	    dfu.WithProgressCallback(progressFunc),
//	    dfu.WithMaxRetries(5),
//	)
func New(connector Connector, opts ...Option) *Updater {
	if connector == nil {
		panic("connector cannot be nil")
	}

	cfg := defaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}

	return &Updater{
		connector: connector,
		config:    cfg,
	}
}

// Update transfers the init packet and the firmware image to the peripheral at address:
//  1. Connect (a connection failure is returned without retry)
//  2. Enable notifications
//  3. Send and execute the init packet as the command object
//  4. Send and execute the firmware as the data object
//
// Steps 2 to 4 are attempted up to MaxRetries times with RetryDelay between attempts.
// The transport is closed exactly once, whatever the outcome. When every attempt
// fails the returned *RetriesExhaustedError wraps the last failure, so
// protocol.ResultOf reports the last result code pair.
//
// Example:
//
//	err := u.Update(ctx, "C8:2B:96:A1:00:01", initPacket, firmware)
func (u *Updater) Update(ctx context.Context, address string, initPacket, firmware []byte) error {
	if len(initPacket) == 0 {
		return errors.Wrap(ErrEmptyObject, "init packet")
	}
	if len(firmware) == 0 {
		return errors.Wrap(ErrEmptyObject, "firmware")
	}
	if uint64(len(initPacket)) > math.MaxUint32 || uint64(len(firmware)) > math.MaxUint32 {
		return ErrObjectTooLarge
	}

	s := &session{
		id:     uuid.NewString(),
		config: &u.config,
		start:  time.Now(),
	}

	s.reportProgress(PhaseConnecting, nil)
	s.logInfo("connecting", "address", address)

	transport, err := u.connector.Connect(ctx, address)
	if err != nil {
		return errors.Wrapf(err, "connect to %s", address)
	}
	s.transport = transport
	defer func() {
		if err := transport.Close(); err != nil {
			s.logError("close transport", "error", err.Error())
		}
	}()

	var last error
	for attempt := 1; attempt <= u.config.MaxRetries; attempt++ {
		s.attempt = attempt

		last = s.run(ctx, initPacket, firmware)
		if last == nil {
			s.reportProgress(PhaseComplete, &object{kind: protocol.ObjectData, buf: firmware, offset: uint32(len(firmware))})
			s.logInfo("update complete",
				"attempts", attempt,
				"bytes", len(firmware),
				"elapsed", time.Since(s.start).String(),
			)
			return nil
		}

		if ctx.Err() != nil {
			return last
		}

		result, ext := protocol.ResultOf(last)
		s.logError("update attempt failed",
			"result", byte(result),
			"extended", byte(ext),
			"error", last.Error(),
		)

		if attempt < u.config.MaxRetries {
			s.reportProgress(PhaseRetrying, nil)
			if err := u.config.Sleep(ctx, u.config.RetryDelay); err != nil {
				return errors.Wrap(err, "wait before retry")
			}
		}
	}

	return &RetriesExhaustedError{
		Attempts: u.config.MaxRetries,
		Last:     last,
	}
}

// session is the state of one Update call. doNotResume outlives attempts but not
// the session.
type session struct {
	id        string
	config    *Config
	transport Transport
	attempt   int
	start     time.Time

	doNotResume bool
}

// run makes one attempt at the whole command and data sequence.
func (s *session) run(ctx context.Context, initPacket, firmware []byte) error {
	if err := s.transport.EnableNotifications(ctx); err != nil {
		return errors.Wrap(err, "enable notifications")
	}

	if s.config.ResetReceiptNotifications {
		if err := s.setReceiptNotifications(ctx, 0); err != nil {
			return errors.Wrap(err, "reset receipt notifications")
		}
	}

	if err := s.sendObject(ctx, &object{kind: protocol.ObjectCommand, buf: initPacket}); err != nil {
		return errors.Wrap(err, "send init packet")
	}

	if err := s.sendObject(ctx, &object{kind: protocol.ObjectData, buf: firmware}); err != nil {
		return errors.Wrap(err, "send firmware")
	}

	return nil
}

// reportProgress calls the progress callback if configured.
func (s *session) reportProgress(phase string, obj *object) {
	if s.config.ProgressCallback == nil {
		return
	}

	p := Progress{
		Phase:       phase,
		Attempt:     s.attempt,
		ElapsedTime: time.Since(s.start),
	}
	if obj != nil {
		p.Object = obj.kind
		p.Offset = obj.offset
		p.Total = obj.total()
		p.Percentage = obj.percentage()
	}
	s.config.ProgressCallback(p)
}

// logDebug logs a debug message if logger is configured.
func (s *session) logDebug(msg string, keysAndValues ...interface{}) {
	if s.config.Logger != nil {
		s.config.Logger.Debug(msg, s.fields(keysAndValues)...)
	}
}

// logInfo logs an info message if logger is configured.
func (s *session) logInfo(msg string, keysAndValues ...interface{}) {
	if s.config.Logger != nil {
		s.config.Logger.Info(msg, s.fields(keysAndValues)...)
	}
}

// logError logs an error message if logger is configured.
func (s *session) logError(msg string, keysAndValues ...interface{}) {
	if s.config.Logger != nil {
		s.config.Logger.Error(msg, s.fields(keysAndValues)...)
	}
}

func (s *session) fields(keysAndValues []interface{}) []interface{} {
	out := make([]interface{}, 0, len(keysAndValues)+4)
	out = append(out, "session", s.id)
	if s.attempt > 0 {
		out = append(out, "attempt", s.attempt)
	}
	return append(out, keysAndValues...)
}
