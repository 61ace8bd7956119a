package protocol

import (
	"encoding/binary"
	"fmt"
)

// Decode classifies a control point notification.
//
// Notification structure:
//
//	[0x60][OPCODE][RESULT][PAYLOAD...]
//
// A non-success result always decodes to a *StatusResponse, with the extended code
// filled in when RESULT is ResultExtendedError and the fourth byte is present.
// Successful Select and Calculate Checksum answers must have exactly
// SelectResponseSize and ChecksumResponseSize bytes; anything else is a
// *MalformedResponse. Decode never returns nil.
func Decode(frame []byte) Message {
	if len(frame) < ResponseHeaderSize {
		return &MalformedResponse{
			Frame:  frame,
			Reason: fmt.Sprintf("notification too short: got %d bytes, minimum is %d", len(frame), ResponseHeaderSize),
		}
	}

	op := Opcode(frame[1])
	if Opcode(frame[0]) != OpResponse {
		return &MalformedResponse{
			Op:     op,
			Frame:  frame,
			Reason: fmt.Sprintf("invalid response code: got 0x%02X, expected 0x%02X", frame[0], byte(OpResponse)),
		}
	}

	result := ResultCode(frame[2])
	if result != ResultSuccess {
		status := &StatusResponse{Op: op, Result: result}
		if result == ResultExtendedError && len(frame) >= ExtendedErrorResponseSize {
			status.Extended = ExtendedCode(frame[3])
		}
		return status
	}

	switch op {
	case OpSelect:
		if len(frame) != SelectResponseSize {
			return malformedLength(op, frame, SelectResponseSize)
		}
		return &SelectResponse{
			MaxSize: binary.LittleEndian.Uint32(frame[3:7]),
			Offset:  binary.LittleEndian.Uint32(frame[7:11]),
			CRC:     binary.LittleEndian.Uint32(frame[11:15]),
		}

	case OpCalculateChecksum:
		if len(frame) != ChecksumResponseSize {
			return malformedLength(op, frame, ChecksumResponseSize)
		}
		return &ChecksumResponse{
			Offset: binary.LittleEndian.Uint32(frame[3:7]),
			CRC:    binary.LittleEndian.Uint32(frame[7:11]),
		}

	default:
		return &StatusResponse{Op: op, Result: result}
	}
}

func malformedLength(op Opcode, frame []byte, want int) *MalformedResponse {
	return &MalformedResponse{
		Op:     op,
		Frame:  frame,
		Reason: fmt.Sprintf("invalid length for %s response: got %d bytes, expected %d", op, len(frame), want),
	}
}

// EncodeSelectResponse builds the notification a peripheral sends for a successful
// Select Object.
func EncodeSelectResponse(maxSize, offset, crc uint32) []byte {
	frame := make([]byte, SelectResponseSize)
	frame[0] = byte(OpResponse)
	frame[1] = byte(OpSelect)
	frame[2] = byte(ResultSuccess)
	binary.LittleEndian.PutUint32(frame[3:7], maxSize)
	binary.LittleEndian.PutUint32(frame[7:11], offset)
	binary.LittleEndian.PutUint32(frame[11:15], crc)
	return frame
}

// EncodeChecksumResponse builds the notification a peripheral sends for a successful
// Calculate Checksum.
func EncodeChecksumResponse(offset, crc uint32) []byte {
	frame := make([]byte, ChecksumResponseSize)
	frame[0] = byte(OpResponse)
	frame[1] = byte(OpCalculateChecksum)
	frame[2] = byte(ResultSuccess)
	binary.LittleEndian.PutUint32(frame[3:7], offset)
	binary.LittleEndian.PutUint32(frame[7:11], crc)
	return frame
}

// EncodeStatusResponse builds a header-only notification.
func EncodeStatusResponse(op Opcode, result ResultCode) []byte {
	return []byte{byte(OpResponse), byte(op), byte(result)}
}

// EncodeExtendedErrorResponse builds an extended error notification.
func EncodeExtendedErrorResponse(op Opcode, ext ExtendedCode) []byte {
	return []byte{byte(OpResponse), byte(op), byte(ResultExtendedError), byte(ext)}
}
