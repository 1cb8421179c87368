package aggregator

import (
	"sync"
)

// DefaultBufferCapacity is the sliding window the DSP stages work on
const DefaultBufferCapacity = 4096

// SampleBuffer is a bounded FIFO of decoded samples. Appends evict the
// oldest samples once capacity is exceeded. One producer may append at a
// time; any number of readers may take snapshots concurrently.
type SampleBuffer struct {
	mu   sync.RWMutex
	buf  []uint32
	head int // index of the oldest sample
	size int
}

// NewSampleBuffer creates a buffer holding at most capacity samples
func NewSampleBuffer(capacity int) *SampleBuffer {
	if capacity <= 0 {
		capacity = DefaultBufferCapacity
	}
	return &SampleBuffer{buf: make([]uint32, capacity)}
}

// Append adds samples to the tail, dropping from the head as needed
func (b *SampleBuffer) Append(samples ...uint32) {
	if len(samples) == 0 {
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	capacity := len(b.buf)
	// Only the last capacity samples can survive this append
	if len(samples) >= capacity {
		copy(b.buf, samples[len(samples)-capacity:])
		b.head = 0
		b.size = capacity
		return
	}

	for _, s := range samples {
		tail := (b.head + b.size) % capacity
		b.buf[tail] = s
		if b.size < capacity {
			b.size++
		} else {
			b.head = (b.head + 1) % capacity
		}
	}
}

// Snapshot returns a copy of the buffered samples, oldest first
func (b *SampleBuffer) Snapshot() []uint32 {
	b.mu.RLock()
	defer b.mu.RUnlock()

	out := make([]uint32, b.size)
	n := copy(out, b.buf[b.head:min(b.head+b.size, len(b.buf))])
	copy(out[n:], b.buf[:b.size-n])
	return out
}

// Len returns the number of buffered samples
func (b *SampleBuffer) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.size
}

// Capacity returns the maximum number of samples retained
func (b *SampleBuffer) Capacity() int {
	return len(b.buf)
}
