// Package protocol implements the wire format of the Nordic Secure DFU control point.
//
// This package provides functions to build control point requests, decode the
// notifications that answer them, compute the CRC-32 the bootloader reports, and
// render result codes as text.
//
// # Protocol Overview
//
// Requests are written to the control point characteristic and answered by a
// notification on the same characteristic:
//
//	Request:      [OPCODE][PARAMS...]
//	Notification: [0x60][OPCODE][RESULT][PAYLOAD...]
//
// Object payloads are written to the packet characteristic without response, at most
// MaxChunkSize bytes per write. Multi-byte fields are little-endian.
//
// # Request Builders
//
//	cmd, err := protocol.BuildSelectCmd(protocol.ObjectData)
//	cmd, err := protocol.BuildCreateCmd(protocol.ObjectData, 4096)
//	cmd := protocol.BuildCalculateChecksumCmd()
//	cmd := protocol.BuildExecuteCmd()
//
// # Decoding
//
// Decode returns a Message that callers switch on:
//
//	switch msg := protocol.Decode(frame).(type) {
//	case *protocol.SelectResponse:
//	    // msg.MaxSize, msg.Offset, msg.CRC
//	case *protocol.StatusResponse:
//	    if !msg.Success() { ... }
//	case *protocol.MalformedResponse:
//	    // msg.Reason
//	}
//
// # Result Codes
//
// ResultCode and ExtendedCode are open enumerations: Known reports whether a value is
// documented and String always returns a description, falling back to an
// "Unknown code" text that includes the numeric value.
package protocol
