// Package buffer provides a fixed-size byte ring used to keep the most recent
// output of a supervised agent.
package buffer

import (
	"bytes"
	"sync"
)

// RingBuffer is a thread-safe circular buffer holding the newest bytes
// written to it, up to its capacity. Older bytes are overwritten in place.
type RingBuffer struct {
	mu    sync.RWMutex
	data  []byte
	start int
	size  int
	total int64
}

// NewRingBuffer creates a RingBuffer with the given capacity.
// A non-positive capacity is treated as 1.
func NewRingBuffer(capacity int) *RingBuffer {
	if capacity <= 0 {
		capacity = 1
	}
	return &RingBuffer{data: make([]byte, capacity)}
}

// Write appends p, discarding the oldest bytes once the buffer is full.
// It never fails, so the buffer can sit behind an io.MultiWriter.
func (rb *RingBuffer) Write(p []byte) (int, error) {
	n := len(p)
	if n == 0 {
		return 0, nil
	}

	rb.mu.Lock()
	defer rb.mu.Unlock()

	rb.total += int64(n)
	capacity := len(rb.data)
	if n >= capacity {
		copy(rb.data, p[n-capacity:])
		rb.start = 0
		rb.size = capacity
		return n, nil
	}

	end := (rb.start + rb.size) % capacity
	written := copy(rb.data[end:], p)
	copy(rb.data, p[written:])

	rb.size += n
	if rb.size > capacity {
		rb.start = (rb.start + rb.size - capacity) % capacity
		rb.size = capacity
	}
	return n, nil
}

// Bytes returns a copy of the buffered data, oldest first.
func (rb *RingBuffer) Bytes() []byte {
	rb.mu.RLock()
	defer rb.mu.RUnlock()
	return rb.snapshot()
}

// Tail returns at most the last n lines of buffered data. A partial first
// line left over from wrap-around counts as a line.
func (rb *RingBuffer) Tail(n int) []byte {
	rb.mu.RLock()
	data := rb.snapshot()
	rb.mu.RUnlock()

	if n <= 0 || len(data) == 0 {
		return nil
	}

	end := len(data)
	if data[end-1] == '\n' {
		end--
	}
	cut := end
	for i := 0; i < n; i++ {
		idx := bytes.LastIndexByte(data[:cut], '\n')
		if idx < 0 {
			return data
		}
		cut = idx
	}
	return data[cut+1:]
}

// Len returns the number of buffered bytes.
func (rb *RingBuffer) Len() int {
	rb.mu.RLock()
	defer rb.mu.RUnlock()
	return rb.size
}

// Cap returns the capacity of the buffer.
func (rb *RingBuffer) Cap() int {
	return len(rb.data)
}

// Total returns how many bytes have ever been written, including discarded ones.
func (rb *RingBuffer) Total() int64 {
	rb.mu.RLock()
	defer rb.mu.RUnlock()
	return rb.total
}

// Reset empties the buffer.
func (rb *RingBuffer) Reset() {
	rb.mu.Lock()
	defer rb.mu.Unlock()
	rb.start, rb.size, rb.total = 0, 0, 0
}

func (rb *RingBuffer) snapshot() []byte {
	if rb.size == 0 {
		return nil
	}
	out := make([]byte, rb.size)
	first := copy(out, rb.data[rb.start:min(rb.start+rb.size, len(rb.data))])
	copy(out[first:], rb.data[:rb.size-first])
	return out
}
