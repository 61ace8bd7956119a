package dfu

import (
	"context"
	"fmt"

	"github.com/pkg/errors"

	"github.com/moffa90/go-nrfdfu/protocol"
)

// object is one of the two byte buffers transferred during an update.
type object struct {
	kind protocol.ObjectType
	buf  []byte

	// offset is the number of bytes the peripheral has acknowledged by checksum
	offset uint32
}

func (o *object) total() uint32 {
	return uint32(len(o.buf))
}

// nextBlock returns the size of the next Create, or 0 once everything is acknowledged.
func (o *object) nextBlock(blockSize uint32) uint32 {
	if o.offset >= o.total() {
		return 0
	}
	remaining := o.total() - o.offset
	if blockSize < remaining {
		return blockSize
	}
	return remaining
}

func (o *object) percentage() float64 {
	if o.total() == 0 {
		return 0
	}
	return float64(o.offset) / float64(o.total()) * 100
}

// sendObject transfers obj and leaves it executed on the peripheral.
//
// Sequence:
//  1. Select the object and read what the peripheral already holds
//  2. Resume from the buffered prefix when its CRC matches
//  3. Create a block, stream it in chunks and verify it by checksum
//  4. Execute verified blocks; re-create and resend blocks that fail the checksum
func (s *session) sendObject(ctx context.Context, obj *object) error {
	s.reportProgress(PhaseSelect, obj)

	sel, err := s.selectObject(ctx, obj.kind)
	if err != nil {
		return err
	}

	s.logDebug("object selected",
		"object", obj.kind.String(),
		"max_size", sel.MaxSize,
		"offset", sel.Offset,
		"crc", fmt.Sprintf("0x%08X", sel.CRC),
	)

	if sel.Offset > 0 {
		if err := s.resume(ctx, obj, sel); err != nil {
			return err
		}
	}

	blockSize := sel.MaxSize
	size := obj.nextBlock(blockSize)
	if size == 0 {
		if obj.offset >= obj.total() {
			return nil
		}
		return violation(protocol.OpSelect, obj.kind, ErrZeroBlockSize)
	}

	if err := s.create(ctx, obj.kind, size); err != nil {
		return err
	}

	inject := s.config.CorruptAfter > 0
	for {
		sent, err := s.streamBlock(ctx, obj, blockSize, &inject)
		if err != nil {
			return err
		}

		if sent < blockSize {
			if err := s.config.Sleep(ctx, s.config.SettleDelay); err != nil {
				return errors.Wrap(err, "settle before checksum")
			}
		}

		sum, err := s.checksum(ctx, obj.kind)
		if err != nil {
			return err
		}
		if sum.Offset == 0 {
			return violation(protocol.OpCalculateChecksum, obj.kind, ErrZeroOffset)
		}

		if crc, ok := protocol.PrefixCRC32(obj.buf, sum.Offset); ok && crc == sum.CRC {
			if sum.Offset < obj.offset {
				return violation(protocol.OpCalculateChecksum, obj.kind,
					errors.Wrapf(ErrOffsetRegressed, "%d < %d", sum.Offset, obj.offset))
			}
			obj.offset = sum.Offset

			if err := s.execute(ctx, obj.kind); err != nil {
				return err
			}
			s.reportProgress(PhaseTransferring, obj)

			if obj.offset >= obj.total() {
				s.reportProgress(PhaseExecuting, obj)
				s.logInfo("object transferred", "object", obj.kind.String(), "bytes", obj.total())
				return nil
			}
		} else {
			s.logInfo("checksum mismatch, resending block",
				"object", obj.kind.String(),
				"offset", obj.offset,
				"reported_offset", sum.Offset,
				"expected", fmt.Sprintf("0x%08X", crc),
				"actual", fmt.Sprintf("0x%08X", sum.CRC),
			)
		}

		if err := s.create(ctx, obj.kind, obj.nextBlock(blockSize)); err != nil {
			return err
		}
	}
}

// resume handles a Select that reported bytes already buffered on the peripheral.
func (s *session) resume(ctx context.Context, obj *object, sel *protocol.SelectResponse) error {
	crc, ok := protocol.PrefixCRC32(obj.buf, sel.Offset)
	if !ok || crc != sel.CRC {
		if obj.kind == protocol.ObjectData {
			s.doNotResume = true
			return violation(protocol.OpSelect, obj.kind, &ResumeMismatchError{
				Offset:   sel.Offset,
				Expected: crc,
				Actual:   sel.CRC,
			})
		}
		s.logInfo("buffered object differs, sending it again",
			"object", obj.kind.String(),
			"offset", sel.Offset,
		)
		return nil
	}

	if s.doNotResume {
		s.logInfo("resume aborted, sending object from the start",
			"object", obj.kind.String(),
			"offset", sel.Offset,
		)
		return nil
	}

	obj.offset = sel.Offset
	s.reportProgress(PhaseResuming, obj)
	s.logInfo("resuming object", "object", obj.kind.String(), "offset", obj.offset)

	if err := s.execute(ctx, obj.kind); err != nil {
		s.doNotResume = true
		if result, _ := protocol.ResultOf(err); result == protocol.ResultOperationNotPermitted && protocol.IsProtocolError(err) {
			rejected := &ResumeRejectedError{Offset: obj.offset, Err: err}
			s.logError("resume rejected", "object", obj.kind.String(), "error", rejected.Error())
			s.reportProgress(PhaseResumeRejected, obj)
			return rejected
		}
		return err
	}
	return nil
}

// streamBlock writes up to blockSize bytes from obj.offset and returns how many were sent.
func (s *session) streamBlock(ctx context.Context, obj *object, blockSize uint32, inject *bool) (uint32, error) {
	end := uint64(obj.offset) + uint64(blockSize)
	if end > uint64(obj.total()) {
		end = uint64(obj.total())
	}

	chunkSize := uint64(s.config.ChunkSize)
	for pos := uint64(obj.offset); pos < end; {
		if err := ctx.Err(); err != nil {
			return 0, errors.Wrap(err, "stream block")
		}

		n := chunkSize
		if end-pos < n {
			n = end - pos
		}
		chunk := obj.buf[pos : pos+n]

		if *inject && pos >= uint64(s.config.CorruptAfter) {
			chunk = corrupt(chunk)
			*inject = false
			s.logDebug("corrupted chunk", "object", obj.kind.String(), "position", pos)
		}

		if err := s.transport.WriteData(ctx, chunk); err != nil {
			return 0, errors.Wrapf(err, "write %s object at %d", obj.kind, pos)
		}
		pos += n
	}

	return uint32(end) - obj.offset, nil
}

// corrupt returns a copy of chunk with its first byte inverted.
func corrupt(chunk []byte) []byte {
	c := make([]byte, len(chunk))
	copy(c, chunk)
	c[0] = ^c[0]
	return c
}

func (s *session) selectObject(ctx context.Context, kind protocol.ObjectType) (*protocol.SelectResponse, error) {
	cmd, err := protocol.BuildSelectCmd(kind)
	if err != nil {
		return nil, err
	}
	msg, err := s.request(ctx, kind, cmd)
	if err != nil {
		return nil, err
	}
	sel, ok := msg.(*protocol.SelectResponse)
	if !ok {
		return nil, violation(protocol.OpSelect, kind, ErrMalformedResponse)
	}
	return sel, nil
}

func (s *session) create(ctx context.Context, kind protocol.ObjectType, size uint32) error {
	cmd, err := protocol.BuildCreateCmd(kind, size)
	if err != nil {
		return err
	}
	s.logDebug("creating object", "object", kind.String(), "size", size)
	_, err = s.request(ctx, kind, cmd)
	return err
}

func (s *session) checksum(ctx context.Context, kind protocol.ObjectType) (*protocol.ChecksumResponse, error) {
	msg, err := s.request(ctx, kind, protocol.BuildCalculateChecksumCmd())
	if err != nil {
		return nil, err
	}
	sum, ok := msg.(*protocol.ChecksumResponse)
	if !ok {
		return nil, violation(protocol.OpCalculateChecksum, kind, ErrMalformedResponse)
	}
	return sum, nil
}

func (s *session) execute(ctx context.Context, kind protocol.ObjectType) error {
	_, err := s.request(ctx, kind, protocol.BuildExecuteCmd())
	return err
}

func (s *session) setReceiptNotifications(ctx context.Context, interval uint16) error {
	_, err := s.request(ctx, 0, protocol.BuildSetReceiptNotificationCmd(interval))
	return err
}

// request performs one control point round-trip and decodes the answer.
// Non-success results come back as *protocol.ProtocolError.
func (s *session) request(ctx context.Context, kind protocol.ObjectType, cmd []byte) (protocol.Message, error) {
	op := protocol.Opcode(cmd[0])
	if err := ctx.Err(); err != nil {
		return nil, errors.Wrapf(err, "%s request", op)
	}

	frame, err := s.transport.Request(ctx, cmd)
	if err != nil {
		return nil, errors.Wrapf(err, "%s request", op)
	}

	switch msg := protocol.Decode(frame).(type) {
	case *protocol.MalformedResponse:
		s.logDebug("malformed notification", "operation", op.String(), "reason", msg.Reason)
		return nil, violation(op, kind, errors.Wrap(ErrMalformedResponse, msg.Reason))
	case *protocol.StatusResponse:
		if msg.Op != op {
			return nil, violation(op, kind, errors.Wrapf(ErrMalformedResponse, "answer to %s", msg.Op))
		}
		if !msg.Success() {
			return nil, &protocol.ProtocolError{
				Operation: op,
				Object:    kind,
				Result:    msg.Result,
				Extended:  msg.Extended,
			}
		}
		return msg, nil
	default:
		if msg.Opcode() != op {
			return nil, violation(op, kind, errors.Wrapf(ErrMalformedResponse, "answer to %s", msg.Opcode()))
		}
		return msg, nil
	}
}

// violation reports a local protocol violation as an operation failure.
func violation(op protocol.Opcode, kind protocol.ObjectType, err error) error {
	return &protocol.ProtocolError{
		Operation: op,
		Object:    kind,
		Result:    protocol.ResultOperationFailed,
		Err:       err,
	}
}
