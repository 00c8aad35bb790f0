package stream

import (
	"net/http"

	json "github.com/goccy/go-json"
)

// Dialect picks the SSE terminal event layout.
type Dialect int

const (
	// Chat ends with {"stop":true}.
	Chat Dialect = iota
	// Completion ends with {"stop":true,"stop_reason":...} like llama.cpp.
	Completion
)

// SSEWriter writes `data: <json>\n\n` events and flushes each one.
type SSEWriter struct {
	w       http.ResponseWriter
	rc      *http.ResponseController
	dialect Dialect
	st      state
}

// NewSSE sets the event-stream headers and commits the 200 response.
func NewSSE(w http.ResponseWriter, d Dialect) *SSEWriter {
	h := w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	s := &SSEWriter{w: w, rc: http.NewResponseController(w), dialect: d}
	// Headers reach the client before the first token.
	if err := s.rc.Flush(); err != nil {
		s.st.fail(err)
	}
	return s
}

func (s *SSEWriter) Token(delta string) error {
	return s.event(tokenEvent{Content: delta}, false)
}

func (s *SSEWriter) Done(reason string) error {
	ev := stopEvent{Stop: true}
	if s.dialect == Completion {
		ev.StopReason = reason
	}
	return s.event(ev, true)
}

func (s *SSEWriter) Error(msg string) error {
	return s.event(errorEvent{Error: msg}, true)
}

func (s *SSEWriter) event(v any, terminal bool) error {
	if err := s.st.begin(); err != nil {
		return err
	}
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	buf := make([]byte, 0, len(b)+8)
	buf = append(buf, "data: "...)
	buf = append(buf, b...)
	buf = append(buf, '\n', '\n')
	if terminal {
		s.st.closed = true
	}
	if _, err := s.w.Write(buf); err != nil {
		return s.st.fail(err)
	}
	if err := s.rc.Flush(); err != nil {
		return s.st.fail(err)
	}
	return nil
}
