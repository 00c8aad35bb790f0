package httpapi

import (
	"net/http"
	"os"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"llmgate/internal/engine"
	"llmgate/internal/logx"
	"llmgate/internal/stream"
)

// zlog is an optional structured logger. If unset, the process logger is used.
var zlog *zerolog.Logger

// SetLogger installs a structured logger used by the HTTP layer.
func SetLogger(l zerolog.Logger) { zlog = &l }

func logger() *zerolog.Logger {
	if zlog != nil {
		return zlog
	}
	return &logx.Log
}

// LogLevel controls per-request logging behavior.
type LogLevel int

const (
	LevelOff LogLevel = iota
	LevelError
	LevelInfo
	LevelDebug
)

func parseLevel(s string) LogLevel {
	switch s {
	case "off", "":
		return LevelOff
	case "error":
		return LevelError
	case "info":
		return LevelInfo
	case "debug":
		return LevelDebug
	default:
		return LevelInfo
	}
}

// global default, read once
var defaultLogLevel = parseLevel(os.Getenv("LLMGATE_REQUEST_LOG"))

func requestLogLevel(r *http.Request) LogLevel {
	// Per-request overrides
	if v := r.URL.Query().Get("log"); v != "" {
		if v == "1" {
			return LevelDebug
		}
		return parseLevel(v)
	}
	if v := r.Header.Get("X-Log-Level"); v != "" {
		return parseLevel(v)
	}
	return defaultLogLevel
}

// genStart logs the beginning of a generation request.
func genStart(r *http.Request, lvl LogLevel, mode engine.Mode) {
	if lvl < LevelInfo {
		return
	}
	z := logger().Info().Str("path", r.URL.Path).Str("mode", mode.String())
	if rid := middleware.GetReqID(r.Context()); rid != "" {
		z = z.Str("request_id", rid)
	}
	z.Msg("generation start")
}

// genEnd logs the end of a generation request.
func genEnd(r *http.Request, lvl LogLevel, start time.Time, res engine.Result) {
	if lvl < LevelInfo && !(lvl >= LevelError && res.Err != nil) {
		return
	}
	z := logger().Info()
	if res.Err != nil {
		z = logger().Error().Err(res.Err)
	}
	z = z.Str("outcome", res.Outcome).Int("tokens", res.Tokens).Dur("dur", time.Since(start))
	if rid := middleware.GetReqID(r.Context()); rid != "" {
		z = z.Str("request_id", rid)
	}
	z.Msg("generation end")
}

// debugWriter logs every event before passing it on.
type debugWriter struct {
	stream.Writer
	rid string
}

func withDebug(r *http.Request, lvl LogLevel, w stream.Writer) stream.Writer {
	if lvl < LevelDebug {
		return w
	}
	return debugWriter{Writer: w, rid: middleware.GetReqID(r.Context())}
}

func (d debugWriter) Token(delta string) error {
	logger().Debug().Str("request_id", d.rid).Str("delta", delta).Msg("stream>")
	return d.Writer.Token(delta)
}

func (d debugWriter) Done(reason string) error {
	logger().Debug().Str("request_id", d.rid).Str("reason", reason).Msg("stream> done")
	return d.Writer.Done(reason)
}

func (d debugWriter) Error(msg string) error {
	logger().Debug().Str("request_id", d.rid).Str("error", msg).Msg("stream> error")
	return d.Writer.Error(msg)
}
