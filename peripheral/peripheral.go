// Package peripheral simulates a Nordic Secure DFU bootloader behind the control
// point and packet characteristics.
//
// A Peripheral satisfies dfu.Transport. It keeps the bytes it receives, answers
// control point requests the way the bootloader does, and can be told to fail in
// specific ways to exercise recovery paths.
package peripheral

import (
	"context"
	"sync"

	"github.com/pkg/errors"

	"github.com/moffa90/go-nrfdfu/protocol"
)

// Default object size limits, matching the nRF5 SDK bootloader.
const (
	DefaultMaxCommandSize = 256
	DefaultMaxDataSize    = 4096
)

var (
	// ErrNotificationsDisabled is returned by Request before EnableNotifications succeeds.
	ErrNotificationsDisabled = errors.New("notifications not enabled")

	// ErrNotificationFailure is returned by an injected EnableNotifications failure.
	ErrNotificationFailure = errors.New("notification subscription failed")

	// ErrWriteFailure is returned by an injected WriteData failure.
	ErrWriteFailure = errors.New("packet write failed")

	// ErrClosed is returned by every call after Close.
	ErrClosed = errors.New("link closed")
)

// InitValidator checks an executed init packet. A non-zero code rejects it with
// an extended error.
type InitValidator func(initPacket []byte) protocol.ExtendedCode

type rejection struct {
	result   protocol.ResultCode
	extended protocol.ExtendedCode
	times    int
}

// objectState is what the bootloader holds for one object type.
type objectState struct {
	maxSize uint32

	// executed bytes are permanent until the object is reset
	executed []byte

	// pending bytes were received since the last Create and are not executed
	pending []byte

	// created is the size announced by the last Create, 0 when none is open
	created uint32
}

func (o *objectState) offset() uint32 {
	return uint32(len(o.executed) + len(o.pending))
}

func (o *objectState) crc() uint32 {
	buf := make([]byte, 0, len(o.executed)+len(o.pending))
	buf = append(buf, o.executed...)
	buf = append(buf, o.pending...)
	return protocol.CRC32(buf)
}

func (o *objectState) reset() {
	o.executed = nil
	o.pending = nil
	o.created = 0
}

// Peripheral is a simulated DFU target. It is safe for concurrent use.
type Peripheral struct {
	mu sync.Mutex

	command objectState
	data    objectState
	current protocol.ObjectType

	initValid     bool
	notifications bool
	closed        bool
	prn           uint16

	validate             InitValidator
	notificationFailures int
	writeFailureAfter    int
	corruptAt            int64
	rejections           map[protocol.Opcode]*rejection

	requests   [][]byte
	chunkSizes []int
	writes     int
	closes     int
}

// Option configures a Peripheral.
type Option func(*Peripheral)

// WithMaxObjectSize sets the max object size reported by Select for kind.
func WithMaxObjectSize(kind protocol.ObjectType, size uint32) Option {
	return func(p *Peripheral) {
		p.object(kind).maxSize = size
	}
}

// WithNotificationFailures makes the first n EnableNotifications calls fail.
func WithNotificationFailures(n int) Option {
	return func(p *Peripheral) {
		p.notificationFailures = n
	}
}

// WithRejection makes the next times requests with opcode op fail with result.
// ext is reported when result is protocol.ResultExtendedError.
func WithRejection(op protocol.Opcode, result protocol.ResultCode, ext protocol.ExtendedCode, times int) Option {
	return func(p *Peripheral) {
		p.rejections[op] = &rejection{result: result, extended: ext, times: times}
	}
}

// WithCorruptedByte inverts the data object byte at pos the first time it is received.
func WithCorruptedByte(pos uint32) Option {
	return func(p *Peripheral) {
		p.corruptAt = int64(pos)
	}
}

// WithInitValidator sets the check applied when the command object is executed.
func WithInitValidator(v InitValidator) Option {
	return func(p *Peripheral) {
		p.validate = v
	}
}

// WithWriteFailure makes the data write after n successful writes fail once.
func WithWriteFailure(n int) Option {
	return func(p *Peripheral) {
		p.writeFailureAfter = n
	}
}

// New returns a Peripheral with empty objects.
func New(opts ...Option) *Peripheral {
	p := &Peripheral{
		command:           objectState{maxSize: DefaultMaxCommandSize},
		data:              objectState{maxSize: DefaultMaxDataSize},
		corruptAt:         -1,
		writeFailureAfter: -1,
		rejections:        make(map[protocol.Opcode]*rejection),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func (p *Peripheral) object(kind protocol.ObjectType) *objectState {
	if kind == protocol.ObjectCommand {
		return &p.command
	}
	return &p.data
}

// Preload stores buf for kind as if an earlier session had sent it. Executed
// bytes survive a Create for the same object; pending ones do not.
func (p *Peripheral) Preload(kind protocol.ObjectType, buf []byte, executed bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	o := p.object(kind)
	o.reset()
	if executed {
		o.executed = append([]byte(nil), buf...)
		if kind == protocol.ObjectCommand {
			p.initValid = true
		}
	} else {
		o.pending = append([]byte(nil), buf...)
	}
	p.current = kind
}

// EnableNotifications subscribes to control point notifications.
func (p *Peripheral) EnableNotifications(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return ErrClosed
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if p.notificationFailures > 0 {
		p.notificationFailures--
		return ErrNotificationFailure
	}
	p.notifications = true
	return nil
}

// Request handles one control point write and returns its notification.
func (p *Peripheral) Request(ctx context.Context, cmd []byte) ([]byte, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return nil, ErrClosed
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if !p.notifications {
		return nil, ErrNotificationsDisabled
	}
	if len(cmd) == 0 {
		return nil, errors.New("empty control point write")
	}

	p.requests = append(p.requests, append([]byte(nil), cmd...))

	op := protocol.Opcode(cmd[0])
	if r, ok := p.rejections[op]; ok && r.times > 0 {
		r.times--
		if r.result == protocol.ResultExtendedError {
			return protocol.EncodeExtendedErrorResponse(op, r.extended), nil
		}
		return protocol.EncodeStatusResponse(op, r.result), nil
	}

	switch op {
	case protocol.OpSelect:
		return p.handleSelect(cmd), nil
	case protocol.OpCreate:
		return p.handleCreate(cmd), nil
	case protocol.OpSetReceiptNotification:
		if len(cmd) != 3 {
			return protocol.EncodeStatusResponse(op, protocol.ResultInvalidParameter), nil
		}
		p.prn = uint16(cmd[1]) | uint16(cmd[2])<<8
		return protocol.EncodeStatusResponse(op, protocol.ResultSuccess), nil
	case protocol.OpCalculateChecksum:
		o := p.object(p.current)
		return protocol.EncodeChecksumResponse(o.offset(), o.crc()), nil
	case protocol.OpExecute:
		return p.handleExecute(), nil
	default:
		return protocol.EncodeStatusResponse(op, protocol.ResultOpcodeNotSupported), nil
	}
}

func (p *Peripheral) handleSelect(cmd []byte) []byte {
	if len(cmd) != 2 {
		return protocol.EncodeStatusResponse(protocol.OpSelect, protocol.ResultInvalidParameter)
	}
	kind := protocol.ObjectType(cmd[1])
	if kind != protocol.ObjectCommand && kind != protocol.ObjectData {
		return protocol.EncodeStatusResponse(protocol.OpSelect, protocol.ResultUnsupportedType)
	}
	p.current = kind
	o := p.object(kind)
	return protocol.EncodeSelectResponse(o.maxSize, o.offset(), o.crc())
}

func (p *Peripheral) handleCreate(cmd []byte) []byte {
	if len(cmd) != 6 {
		return protocol.EncodeStatusResponse(protocol.OpCreate, protocol.ResultInvalidParameter)
	}
	kind := protocol.ObjectType(cmd[1])
	if kind != protocol.ObjectCommand && kind != protocol.ObjectData {
		return protocol.EncodeStatusResponse(protocol.OpCreate, protocol.ResultUnsupportedType)
	}
	size := uint32(cmd[2]) | uint32(cmd[3])<<8 | uint32(cmd[4])<<16 | uint32(cmd[5])<<24

	o := p.object(kind)
	if size == 0 || size > o.maxSize {
		return protocol.EncodeStatusResponse(protocol.OpCreate, protocol.ResultInsufficientResources)
	}

	switch kind {
	case protocol.ObjectCommand:
		// a new init packet starts the update over
		p.command.reset()
		p.data.reset()
		p.initValid = false
	case protocol.ObjectData:
		if !p.initValid {
			return protocol.EncodeStatusResponse(protocol.OpCreate, protocol.ResultOperationNotPermitted)
		}
		o.pending = nil
	}

	o.created = size
	p.current = kind
	return protocol.EncodeStatusResponse(protocol.OpCreate, protocol.ResultSuccess)
}

func (p *Peripheral) handleExecute() []byte {
	o := p.object(p.current)
	if len(o.pending) == 0 {
		if p.current == protocol.ObjectCommand && p.initValid {
			return protocol.EncodeStatusResponse(protocol.OpExecute, protocol.ResultSuccess)
		}
		if p.current == protocol.ObjectData && len(o.executed) > 0 {
			return protocol.EncodeStatusResponse(protocol.OpExecute, protocol.ResultSuccess)
		}
		return protocol.EncodeStatusResponse(protocol.OpExecute, protocol.ResultOperationNotPermitted)
	}

	if p.current == protocol.ObjectCommand {
		if p.validate != nil {
			if ext := p.validate(o.pending); ext != protocol.ExtNoError {
				o.reset()
				return protocol.EncodeExtendedErrorResponse(protocol.OpExecute, ext)
			}
		}
		p.initValid = true
	}

	o.executed = append(o.executed, o.pending...)
	o.pending = nil
	o.created = 0
	return protocol.EncodeStatusResponse(protocol.OpExecute, protocol.ResultSuccess)
}

// WriteData receives one chunk for the open object.
func (p *Peripheral) WriteData(ctx context.Context, chunk []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return ErrClosed
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if len(chunk) > protocol.MaxChunkSize {
		return errors.Errorf("chunk of %d bytes exceeds %d", len(chunk), protocol.MaxChunkSize)
	}
	if p.writeFailureAfter == p.writes {
		p.writeFailureAfter = -1
		return ErrWriteFailure
	}
	p.writes++
	p.chunkSizes = append(p.chunkSizes, len(chunk))

	o := p.object(p.current)
	if o.created == 0 || uint32(len(o.pending)+len(chunk)) > o.created {
		// the bootloader drops writes outside an open object
		return nil
	}

	start := int64(o.offset())
	o.pending = append(o.pending, chunk...)
	if p.current == protocol.ObjectData && p.corruptAt >= start && p.corruptAt < start+int64(len(chunk)) {
		i := len(o.pending) - len(chunk) + int(p.corruptAt-start)
		o.pending[i] = ^o.pending[i]
		p.corruptAt = -1
	}
	return nil
}

// Close releases the link. Later calls fail with ErrClosed.
func (p *Peripheral) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.closes++
	p.closed = true
	p.notifications = false
	return nil
}

// Reopen makes a closed Peripheral usable again, keeping the objects it holds.
func (p *Peripheral) Reopen() {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.closed = false
}

// InitPacket returns the executed command object.
func (p *Peripheral) InitPacket() []byte {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]byte(nil), p.command.executed...)
}

// Image returns the executed data object.
func (p *Peripheral) Image() []byte {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]byte(nil), p.data.executed...)
}

// Requests returns a copy of every control point write, in order.
func (p *Peripheral) Requests() [][]byte {
	p.mu.Lock()
	defer p.mu.Unlock()

	out := make([][]byte, len(p.requests))
	for i, r := range p.requests {
		out[i] = append([]byte(nil), r...)
	}
	return out
}

// Ops returns the opcode of every control point write, in order.
func (p *Peripheral) Ops() []protocol.Opcode {
	p.mu.Lock()
	defer p.mu.Unlock()

	out := make([]protocol.Opcode, len(p.requests))
	for i, r := range p.requests {
		out[i] = protocol.Opcode(r[0])
	}
	return out
}

// ChunkSizes returns the length of every accepted data write, in order.
func (p *Peripheral) ChunkSizes() []int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]int(nil), p.chunkSizes...)
}

// Closes returns how many times Close was called.
func (p *Peripheral) Closes() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closes
}

// ReceiptInterval returns the last PRN interval set.
func (p *Peripheral) ReceiptInterval() uint16 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.prn
}
