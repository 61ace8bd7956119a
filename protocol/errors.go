package protocol

import (
	"errors"
	"fmt"
	"strings"
)

// Known reports whether c is one of the documented base result codes.
func (c ResultCode) Known() bool {
	return resultDescription(c) != ""
}

// String returns the human-readable description of c, or the unknown-code text
// when the peripheral reported a value this library does not know.
func (c ResultCode) String() string {
	return DescribeResult(c)
}

// DescribeResult renders a base result code. It never fails.
func DescribeResult(c ResultCode) string {
	if desc := resultDescription(c); desc != "" {
		return desc
	}
	return fmt.Sprintf("Unknown code: ??? (code: %d)", byte(c))
}

func resultDescription(c ResultCode) string {
	switch c {
	case ResultInvalid:
		return "Invalid code: The provided opcode was missing or malformed."
	case ResultSuccess:
		return "Success: The operation completed successfully."
	case ResultOpcodeNotSupported:
		return "Opcode not supported: The provided opcode was invalid."
	case ResultInvalidParameter:
		return "Invalid parameter: A parameter for the opcode was missing."
	case ResultInsufficientResources:
		return "Insufficient resources: There was not enough memory for the data object."
	case ResultInvalidObject:
		return "Invalid object: The data object did not match the firmware and hardware requirements, the signature was missing, or parsing the command failed."
	case ResultUnsupportedType:
		return "Unsupported type: The provided object type was not valid for a Create or Read operation."
	case ResultOperationNotPermitted:
		return "Operation not permitted: The state of the DFU process did not allow this operation."
	case ResultOperationFailed:
		return "Operation failed: The operation failed."
	case ResultExtendedError:
		return "Extended error."
	default:
		return ""
	}
}

// Known reports whether c is one of the documented extended error codes.
func (c ExtendedCode) Known() bool {
	return extendedDescription(c) != ""
}

// String returns the human-readable description of c.
func (c ExtendedCode) String() string {
	return DescribeExtended(c)
}

// DescribeExtended renders an extended error code. It never fails.
func DescribeExtended(c ExtendedCode) string {
	if desc := extendedDescription(c); desc != "" {
		return desc
	}
	return fmt.Sprintf("Unknown extended code: ??? (extended code: %d)", byte(c))
}

func extendedDescription(c ExtendedCode) string {
	switch c {
	case ExtNoError:
		return "No extended error code has been set. This error indicates an implementation problem."
	case ExtInvalidErrorCode:
		return "Invalid error code. This error code should never be used outside of development."
	case ExtWrongCommandFormat:
		return "The format of the command was incorrect."
	case ExtUnknownCommand:
		return "The command was successfully parsed, but it is not supported or unknown."
	case ExtInitCommandInvalid:
		return "The init command is invalid. The init packet either has an invalid update type or it is missing required fields for the update type."
	case ExtFwVersionFailure:
		return "The firmware version is too low."
	case ExtHwVersionFailure:
		return "The hardware version of the device does not match the required hardware version for the update."
	case ExtSdVersionFailure:
		return "The array of supported SoftDevices for the update does not contain the FWID of the current SoftDevice."
	case ExtSignatureMissing:
		return "The init packet does not contain a signature."
	case ExtWrongHashType:
		return "The hash type that is specified by the init packet is not supported by the DFU bootloader."
	case ExtHashFailed:
		return "The hash of the firmware image cannot be calculated."
	case ExtWrongSignatureType:
		return "The type of the signature is unknown or not supported by the DFU bootloader."
	case ExtVerificationFailed:
		return "The hash of the received firmware image does not match the hash in the init packet."
	case ExtInsufficientSpace:
		return "The available space on the device is insufficient to hold the firmware."
	default:
		return ""
	}
}

// ProtocolError is a failed DFU operation together with the result code that
// describes it. Local protocol violations are reported with ResultOperationFailed
// and the violation in Err.
type ProtocolError struct {
	// Operation is the request that failed
	Operation Opcode

	// Object is the object type being transferred when the error occurred
	Object ObjectType

	// Result is the base result code
	Result ResultCode

	// Extended is only meaningful when Result is ResultExtendedError
	Extended ExtendedCode

	// Err is the underlying cause, if any
	Err error
}

func (e *ProtocolError) Error() string {
	var b strings.Builder
	if e.Object != 0 {
		fmt.Fprintf(&b, "%s ", e.Object)
	}
	fmt.Fprintf(&b, "%s failed: %s (code: %d)", e.Operation, DescribeResult(e.Result), byte(e.Result))
	if e.Result == ResultExtendedError {
		fmt.Fprintf(&b, ": %s (extended code: %d)", DescribeExtended(e.Extended), byte(e.Extended))
	}
	if e.Err != nil {
		fmt.Fprintf(&b, ": %v", e.Err)
	}
	return b.String()
}

func (e *ProtocolError) Unwrap() error {
	return e.Err
}

// IsProtocolError returns true if err is or wraps a ProtocolError.
func IsProtocolError(err error) bool {
	var pe *ProtocolError
	return errors.As(err, &pe)
}

// ResultOf returns the result code pair carried by err. Errors without a
// ProtocolError in their chain report ResultOperationFailed; nil reports success.
func ResultOf(err error) (ResultCode, ExtendedCode) {
	if err == nil {
		return ResultSuccess, ExtNoError
	}
	var pe *ProtocolError
	if errors.As(err, &pe) {
		return pe.Result, pe.Extended
	}
	return ResultOperationFailed, ExtNoError
}
