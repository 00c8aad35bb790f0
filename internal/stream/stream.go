// Package stream encodes one generation's event sequence for a transport.
//
// A stream is zero or more token events followed by exactly one terminal
// event: done, stop(reason) or error. Writers latch the first write failure
// and refuse everything after a terminal event.
package stream

import "errors"

// Stop reasons carried by a terminal event.
const (
	// ReasonLimit means the token budget ran out. It is not reported on the wire.
	ReasonLimit = ""
	ReasonEOS   = "eos"
	ReasonStop  = "stop"
)

// ErrClosed is returned for events written after the terminal event.
var ErrClosed = errors.New("stream: terminal event already written")

// Writer is one client's view of a generation.
type Writer interface {
	// Token emits a text delta.
	Token(delta string) error
	// Done emits the terminal success event with reason.
	Done(reason string) error
	// Error emits the terminal failure event.
	Error(msg string) error
}

// tokenEvent and friends are the SSE payloads.
type tokenEvent struct {
	Content string `json:"content"`
}

type stopEvent struct {
	Stop       bool   `json:"stop"`
	StopReason string `json:"stop_reason,omitempty"`
}

type errorEvent struct {
	Error string `json:"error"`
}

// Frame is a WebSocket message.
type Frame struct {
	Type       string `json:"type"`
	Content    string `json:"content,omitempty"`
	Stop       bool   `json:"stop,omitempty"`
	StopReason string `json:"stop_reason,omitempty"`
	Message    string `json:"message,omitempty"`
	Text       string `json:"text,omitempty"`
}

// state tracks latching shared by both encodings.
type state struct {
	err    error
	closed bool
}

// begin reports whether another event may be written.
func (s *state) begin() error {
	if s.err != nil {
		return s.err
	}
	if s.closed {
		return ErrClosed
	}
	return nil
}

func (s *state) fail(err error) error {
	if err != nil && s.err == nil {
		s.err = err
	}
	return err
}
