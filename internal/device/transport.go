package device

import (
	"context"
	"errors"
)

// PacketLength is the size of every buffer a Transport returns
const PacketLength = 64

var (
	// ErrTimeout means no packet arrived within the read timeout; the
	// caller treats it as "no data this tick"
	ErrTimeout = errors.New("transport read timeout")

	// ErrAccessDenied means the device cannot be read at all. It is
	// terminal: acquisition stops and the process exits.
	ErrAccessDenied = errors.New("transport access denied")
)

// Transport yields fixed-size raw packets from the headset. Read blocks for
// at most the transport's read timeout and returns a zero-filled buffer once
// ctx is cancelled. Close releases the underlying device.
type Transport interface {
	Read(ctx context.Context) ([]byte, error)
	Close() error
}

// cancelled returns the zero-filled buffer handed out after cancellation
func cancelled() []byte {
	return make([]byte, PacketLength)
}
