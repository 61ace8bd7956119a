package dfu

//go:generate go run github.com/golang/mock/mockgen -package=dfu -self_package=github.com/moffa90/go-nrfdfu/dfu -destination=mock_test.go github.com/moffa90/go-nrfdfu/dfu Connector,Transport

import "context"

// Transport is a connected link to a DFU peripheral.
//
// Implementations own the radio: GATT discovery, characteristic handles, MTU and
// notification plumbing all live behind this interface. The updater calls one method
// at a time and waits for it to return before the next call.
type Transport interface {
	// EnableNotifications subscribes to control point notifications.
	// It is called at the start of every update attempt.
	EnableNotifications(ctx context.Context) error

	// Request writes cmd to the control point and blocks until the notification that
	// answers it arrives. The transport arms its response matcher for the opcode in
	// cmd[0] before writing, and returns the raw notification bytes.
	Request(ctx context.Context, cmd []byte) ([]byte, error)

	// WriteData writes one chunk to the packet characteristic without response.
	// Chunks are never longer than protocol.MaxChunkSize.
	WriteData(ctx context.Context, chunk []byte) error

	// Close releases the link.
	Close() error
}

// Connector opens a Transport to the peripheral at address.
type Connector interface {
	Connect(ctx context.Context, address string) (Transport, error)
}

// ConnectorFunc adapts a function to the Connector interface.
type ConnectorFunc func(ctx context.Context, address string) (Transport, error)

// Connect calls f(ctx, address).
func (f ConnectorFunc) Connect(ctx context.Context, address string) (Transport, error) {
	return f(ctx, address)
}
