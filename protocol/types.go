package protocol

// Message is a decoded control point notification. It is always one of
// *SelectResponse, *ChecksumResponse, *StatusResponse or *MalformedResponse.
type Message interface {
	// Opcode is the request opcode the notification answers
	Opcode() Opcode
}

// SelectResponse is a successful answer to Select Object.
type SelectResponse struct {
	// MaxSize is the largest object the peripheral buffers before it requires
	// a checksum and execute
	MaxSize uint32

	// Offset is the number of bytes of the object already held by the peripheral
	Offset uint32

	// CRC is the CRC-32 of the first Offset bytes, as computed by the peripheral
	CRC uint32
}

// Opcode implements Message.
func (*SelectResponse) Opcode() Opcode { return OpSelect }

// ChecksumResponse is a successful answer to Calculate Checksum.
type ChecksumResponse struct {
	// Offset is the number of bytes of the object received so far
	Offset uint32

	// CRC is the CRC-32 of the first Offset bytes
	CRC uint32
}

// Opcode implements Message.
func (*ChecksumResponse) Opcode() Opcode { return OpCalculateChecksum }

// StatusResponse carries only a result code. Create, Execute and Set PRN answer
// with it on success, and every opcode answers with it on failure.
type StatusResponse struct {
	Op       Opcode
	Result   ResultCode
	Extended ExtendedCode
}

// Opcode implements Message.
func (r *StatusResponse) Opcode() Opcode { return r.Op }

// Success reports whether the peripheral accepted the request.
func (r *StatusResponse) Success() bool { return r.Result == ResultSuccess }

// MalformedResponse is a notification that does not have the shape its opcode
// requires.
type MalformedResponse struct {
	Op     Opcode
	Frame  []byte
	Reason string
}

// Opcode implements Message.
func (r *MalformedResponse) Opcode() Opcode { return r.Op }
