// Package logging implements the handling of logs.
package logging

import (
	"fmt"
	"io"
	"strings"
	"sync"
	"time"
)

const timeLayout = "2006-01-02 15:04:05"

// RingBuffer keeps the most recent log events in a fixed-size ring and
// mirrors every event to an output stream. The retained events are
// served on the diagnostics dashboard.
type RingBuffer struct {
	mu    sync.Mutex
	out   io.Writer
	ring  []string
	next  int
	count int
}

// NewRingBuffer returns a pointer to a new [RingBuffer] of given size.
func NewRingBuffer(size int, out io.Writer) *RingBuffer {
	if size < 1 {
		size = 1
	}

	return &RingBuffer{
		out:  out,
		ring: make([]string, size),
	}
}

// Size returns the capacity of the ring-buffer.
func (b *RingBuffer) Size() int {
	return len(b.ring)
}

// Len returns the amount of retained events.
func (b *RingBuffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()

	return b.count
}

// Lines returns a copy of the retained events, oldest first.
func (b *RingBuffer) Lines() []string {
	b.mu.Lock()
	defer b.mu.Unlock()

	out := make([]string, 0, b.count)

	start := b.next - b.count
	for i := 0; i < b.count; i++ {
		idx := (start + i + len(b.ring)) % len(b.ring)
		out = append(out, b.ring[idx])
	}

	return out
}

// Reset returns the ring-buffer to zero state.
func (b *RingBuffer) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()

	clear(b.ring)
	b.next = 0
	b.count = 0
}

// Printf records a formatted message and mirrors it to the stream.
func (b *RingBuffer) Printf(format string, args ...any) {
	b.add(fmt.Sprintf(format, args...))
}

// Println records a message and mirrors it to the stream.
func (b *RingBuffer) Println(args ...any) {
	b.add(fmt.Sprintln(args...))
}

func (b *RingBuffer) add(msg string) {
	line := time.Now().Format(timeLayout) + " " + strings.TrimRight(msg, "\n")

	b.mu.Lock()
	b.ring[b.next] = line
	b.next = (b.next + 1) % len(b.ring)
	if b.count < len(b.ring) {
		b.count++
	}
	b.mu.Unlock()

	if b.out != nil {
		fmt.Fprintln(b.out, line)
	}
}
