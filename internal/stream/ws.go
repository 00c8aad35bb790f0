package stream

import (
	"context"
	"sync"
	"time"

	"github.com/coder/websocket"
	json "github.com/goccy/go-json"
)

// WSWriter writes one JSON text message per event.
type WSWriter struct {
	ctx     context.Context
	conn    *websocket.Conn
	timeout time.Duration

	mu sync.Mutex
	st state
}

// NewWS wraps conn. A positive writeTimeout bounds each message write.
func NewWS(ctx context.Context, conn *websocket.Conn, writeTimeout time.Duration) *WSWriter {
	return &WSWriter{ctx: ctx, conn: conn, timeout: writeTimeout}
}

func (w *WSWriter) Token(delta string) error {
	return w.write(Frame{Type: "token", Content: delta}, false)
}

func (w *WSWriter) Done(reason string) error {
	return w.write(Frame{Type: "done", Stop: true, StopReason: reason}, true)
}

func (w *WSWriter) Error(msg string) error {
	return w.write(Frame{Type: "error", Message: msg}, true)
}

// WriteJSON sends an arbitrary frame (log lines, metric snapshots). It obeys
// the same latching as token events but never ends the stream.
func (w *WSWriter) WriteJSON(v any) error {
	return w.write(v, false)
}

func (w *WSWriter) write(v any, terminal bool) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.st.begin(); err != nil {
		return err
	}
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	if terminal {
		w.st.closed = true
	}
	ctx := w.ctx
	if w.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, w.timeout)
		defer cancel()
	}
	if err := w.conn.Write(ctx, websocket.MessageText, b); err != nil {
		return w.st.fail(err)
	}
	return nil
}
