// Package broadcast fans log lines and metric snapshots out to connected
// stream subscribers.
package broadcast

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

const (
	// DefaultBacklog is how many buffered lines a new log subscriber replays.
	DefaultBacklog = 100
	// DefaultPendingLimit bounds the undelivered lines of one subscriber.
	DefaultPendingLimit = 10000
)

var (
	// ErrDropped is returned by Next after a subscriber fell too far behind.
	ErrDropped = errors.New("log subscriber dropped: too far behind")
	// ErrSubscriptionClosed is returned by Next after Close.
	ErrSubscriptionClosed = errors.New("log subscription closed")
)

// Mirror receives every appended line. Push must not block.
type Mirror interface {
	Push(line string)
}

// LogHub owns the log buffer and the live log subscribers. A subscription is
// registered under the same lock that appends, so its backlog and live lines
// never overlap or leave a gap.
type LogHub struct {
	mu           sync.Mutex
	buf          *LogBuffer
	subs         *Registry[*LogSubscription]
	pendingLimit int
	mirror       Mirror
}

// NewLogHub returns a hub whose buffer holds capacity lines.
func NewLogHub(capacity int) *LogHub {
	return &LogHub{
		buf:          NewLogBuffer(capacity),
		subs:         NewRegistry[*LogSubscription](),
		pendingLimit: DefaultPendingLimit,
	}
}

// SetPendingLimit changes the per-subscriber backlog bound.
func (h *LogHub) SetPendingLimit(n int) {
	h.mu.Lock()
	if n > 0 {
		h.pendingLimit = n
	}
	h.mu.Unlock()
}

// SetMirror installs m; nil removes the mirror.
func (h *LogHub) SetMirror(m Mirror) {
	h.mu.Lock()
	h.mirror = m
	h.mu.Unlock()
}

// Append stores line and delivers it to every subscriber.
func (h *LogHub) Append(line string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.buf.Append(line)
	for _, s := range h.subs.Snapshot() {
		if !s.enqueue(line, h.pendingLimit) {
			h.subs.Remove(s.id)
			subscribersGauge.WithLabelValues("logs").Dec()
		}
	}
	if h.mirror != nil {
		h.mirror.Push(line)
	}
}

// Appendf formats and appends a line.
func (h *LogHub) Appendf(format string, args ...any) {
	h.Append(fmt.Sprintf(format, args...))
}

// Tail returns up to n of the most recent lines.
func (h *LogHub) Tail(n int) []string { return h.buf.Tail(n) }

// Len is the number of buffered lines.
func (h *LogHub) Len() int { return h.buf.Len() }

// Subscribers is the number of live log subscribers.
func (h *LogHub) Subscribers() int { return h.subs.Len() }

// Subscribe registers a subscriber that first receives the last
// min(backlog, Len()) lines and then every appended line.
func (h *LogHub) Subscribe(backlog int) *LogSubscription {
	s := &LogSubscription{hub: h, notify: make(chan struct{}, 1)}
	h.mu.Lock()
	defer h.mu.Unlock()
	s.pending = h.buf.Tail(backlog)
	s.id = h.subs.Add(s)
	subscribersGauge.WithLabelValues("logs").Inc()
	if len(s.pending) > 0 {
		s.signal()
	}
	return s
}

func (h *LogHub) remove(s *LogSubscription) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if s.dropped {
		return
	}
	h.subs.Remove(s.id)
	subscribersGauge.WithLabelValues("logs").Dec()
}

// LogSubscription is one subscriber's queue of undelivered lines. It is
// drained by a single reader.
type LogSubscription struct {
	id     string
	hub    *LogHub
	notify chan struct{}

	mu      sync.Mutex
	pending []string
	dropped bool
	closed  bool
}

// ID identifies the subscription.
func (s *LogSubscription) ID() string { return s.id }

// Next blocks until a line is available, the subscription is closed or
// dropped, or ctx ends.
func (s *LogSubscription) Next(ctx context.Context) (string, error) {
	for {
		s.mu.Lock()
		if len(s.pending) > 0 {
			line := s.pending[0]
			s.pending[0] = ""
			s.pending = s.pending[1:]
			s.mu.Unlock()
			return line, nil
		}
		dropped, closed := s.dropped, s.closed
		s.mu.Unlock()
		if dropped {
			return "", ErrDropped
		}
		if closed {
			return "", ErrSubscriptionClosed
		}
		select {
		case <-s.notify:
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
}

// Close deregisters the subscription. It is safe to call more than once.
func (s *LogSubscription) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.mu.Unlock()
	s.hub.remove(s)
	s.signal()
}

// enqueue appends line; it reports false when the subscriber must be dropped.
func (s *LogSubscription) enqueue(line string, limit int) bool {
	s.mu.Lock()
	if s.closed || s.dropped {
		keep := !s.dropped
		s.mu.Unlock()
		return keep
	}
	if len(s.pending) >= limit {
		s.dropped = true
		s.pending = nil
		s.mu.Unlock()
		s.signal()
		return false
	}
	s.pending = append(s.pending, line)
	s.mu.Unlock()
	s.signal()
	return true
}

func (s *LogSubscription) signal() {
	select {
	case s.notify <- struct{}{}:
	default:
	}
}
