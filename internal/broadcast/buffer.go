package broadcast

import "sync"

// DefaultCapacity is the number of log lines kept for late subscribers.
const DefaultCapacity = 1000

// LogBuffer is a bounded FIFO of log lines. Appending beyond capacity evicts
// the oldest line.
type LogBuffer struct {
	mu    sync.Mutex
	lines []string
	head  int
	size  int
}

// NewLogBuffer returns a buffer holding at most capacity lines.
func NewLogBuffer(capacity int) *LogBuffer {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &LogBuffer{lines: make([]string, capacity)}
}

// Append stores line, evicting the oldest one when full.
func (b *LogBuffer) Append(line string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.appendLocked(line)
}

func (b *LogBuffer) appendLocked(line string) {
	capacity := len(b.lines)
	b.lines[(b.head+b.size)%capacity] = line
	if b.size < capacity {
		b.size++
		return
	}
	b.head = (b.head + 1) % capacity
}

// Tail returns the last min(n, Len()) lines, oldest first.
func (b *LogBuffer) Tail(n int) []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.tailLocked(n)
}

func (b *LogBuffer) tailLocked(n int) []string {
	if n > b.size {
		n = b.size
	}
	if n <= 0 {
		return nil
	}
	out := make([]string, n)
	capacity := len(b.lines)
	start := b.head + b.size - n
	for i := 0; i < n; i++ {
		out[i] = b.lines[(start+i)%capacity]
	}
	return out
}

// Len is the number of lines held.
func (b *LogBuffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.size
}

// Cap is the buffer capacity.
func (b *LogBuffer) Cap() int { return len(b.lines) }
