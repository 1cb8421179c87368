package device

import (
	"context"
	"time"
)

// ChannelTransport reads packets pushed by another component, such as the
// MQTT subscriber relaying a remote headset
type ChannelTransport struct {
	packets <-chan []byte
	timeout time.Duration
	onClose func() error
}

// NewChannelTransport wraps a packet channel. onClose may be nil.
func NewChannelTransport(packets <-chan []byte, timeout time.Duration, onClose func() error) *ChannelTransport {
	return &ChannelTransport{packets: packets, timeout: timeout, onClose: onClose}
}

// Read waits up to the timeout for the next packet
func (t *ChannelTransport) Read(ctx context.Context) ([]byte, error) {
	if ctx.Err() != nil {
		return cancelled(), nil
	}

	timer := time.NewTimer(t.timeout)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return cancelled(), nil
	case pkt, ok := <-t.packets:
		if !ok {
			return nil, ErrAccessDenied
		}
		return pkt, nil
	case <-timer.C:
		return nil, ErrTimeout
	}
}

// Close runs the release hook
func (t *ChannelTransport) Close() error {
	if t.onClose != nil {
		return t.onClose()
	}
	return nil
}
