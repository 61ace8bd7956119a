package protocol

import "fmt"

// ProtocolVersion is the Nordic Secure DFU protocol revision implemented by this library.
const ProtocolVersion = "SDK 15.x"

// Opcode identifies a control point request. The peripheral echoes it in byte 1 of
// every response notification.
type Opcode byte

// Control point opcodes.
const (
	// OpCreate creates a new command or data object of a given size
	OpCreate Opcode = 0x01

	// OpSetReceiptNotification sets the packet receipt notification (PRN) interval
	OpSetReceiptNotification Opcode = 0x02

	// OpCalculateChecksum requests the offset and CRC-32 of the selected object
	OpCalculateChecksum Opcode = 0x03

	// OpExecute executes (commits) the current object
	OpExecute Opcode = 0x04

	// OpSelect selects an object type and reports its max size, offset and CRC-32
	OpSelect Opcode = 0x06

	// OpResponse is the first byte of every control point notification
	OpResponse Opcode = 0x60
)

func (op Opcode) String() string {
	switch op {
	case OpCreate:
		return "create"
	case OpSetReceiptNotification:
		return "set receipt notification"
	case OpCalculateChecksum:
		return "calculate checksum"
	case OpExecute:
		return "execute"
	case OpSelect:
		return "select"
	case OpResponse:
		return "response"
	default:
		return fmt.Sprintf("opcode(0x%02X)", byte(op))
	}
}

// ObjectType is the kind of object being transferred.
type ObjectType byte

// Object types.
const (
	// ObjectCommand is the init packet (command object)
	ObjectCommand ObjectType = 0x01

	// ObjectData is the firmware image (data object)
	ObjectData ObjectType = 0x02
)

func (t ObjectType) String() string {
	switch t {
	case ObjectCommand:
		return "command"
	case ObjectData:
		return "data"
	default:
		return fmt.Sprintf("object(0x%02X)", byte(t))
	}
}

// MaxChunkSize is the largest data write sent over the link.
// Default ATT MTU (23) minus the 3-byte ATT header.
const MaxChunkSize = 20

// Response notification sizes, in bytes, including the 3-byte header.
const (
	// ResponseHeaderSize is [RESPONSE][OPCODE][RESULT]
	ResponseHeaderSize = 3

	// SelectResponseSize is header + max size(4) + offset(4) + crc(4)
	SelectResponseSize = 15

	// ChecksumResponseSize is header + offset(4) + crc(4)
	ChecksumResponseSize = 11

	// ExtendedErrorResponseSize is header + extended code(1)
	ExtendedErrorResponseSize = 4
)

// ResultCode is the base result code carried in byte 2 of a response notification.
// The space is open: peripherals may report values not listed here.
type ResultCode byte

// Base result codes.
const (
	// ResultInvalid means the opcode was missing or malformed
	ResultInvalid ResultCode = 0x00

	// ResultSuccess means the operation completed successfully
	ResultSuccess ResultCode = 0x01

	// ResultOpcodeNotSupported means the opcode is unknown to the peripheral
	ResultOpcodeNotSupported ResultCode = 0x02

	// ResultInvalidParameter means a parameter for the opcode was missing
	ResultInvalidParameter ResultCode = 0x03

	// ResultInsufficientResources means there is not enough memory for the object
	ResultInsufficientResources ResultCode = 0x04

	// ResultInvalidObject means the object failed validation
	ResultInvalidObject ResultCode = 0x05

	// ResultUnsupportedType means the object type is not valid for the operation
	ResultUnsupportedType ResultCode = 0x07

	// ResultOperationNotPermitted means the DFU state does not allow the operation
	ResultOperationNotPermitted ResultCode = 0x08

	// ResultOperationFailed means the operation failed
	ResultOperationFailed ResultCode = 0x0A

	// ResultExtendedError means byte 3 holds an ExtendedCode
	ResultExtendedError ResultCode = 0x0B
)

// ExtendedCode refines ResultExtendedError. Like ResultCode the space is open.
type ExtendedCode byte

// Extended error codes.
const (
	ExtNoError            ExtendedCode = 0x00
	ExtInvalidErrorCode   ExtendedCode = 0x01
	ExtWrongCommandFormat ExtendedCode = 0x02
	ExtUnknownCommand     ExtendedCode = 0x03
	ExtInitCommandInvalid ExtendedCode = 0x04
	ExtFwVersionFailure   ExtendedCode = 0x05
	ExtHwVersionFailure   ExtendedCode = 0x06
	ExtSdVersionFailure   ExtendedCode = 0x07
	ExtSignatureMissing   ExtendedCode = 0x08
	ExtWrongHashType      ExtendedCode = 0x09
	ExtHashFailed         ExtendedCode = 0x0A
	ExtWrongSignatureType ExtendedCode = 0x0B
	ExtVerificationFailed ExtendedCode = 0x0C
	ExtInsufficientSpace  ExtendedCode = 0x0D
)
