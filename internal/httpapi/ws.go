package httpapi

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/coder/websocket"

	"llmgate/internal/broadcast"
	"llmgate/internal/engine"
	"llmgate/internal/gate"
	"llmgate/internal/stream"
	"llmgate/pkg/types"
)

// acceptOptions allows cross-origin upgrades from the CORS origins.
func acceptOptions() *websocket.AcceptOptions {
	if !corsEnabled || len(corsAllowedOrigins) == 0 {
		return nil
	}
	patterns := make([]string, 0, len(corsAllowedOrigins))
	for _, o := range corsAllowedOrigins {
		if strings.Contains(o, "://") {
			if u, err := url.Parse(o); err == nil {
				o = u.Host
			}
		}
		patterns = append(patterns, o)
	}
	return &websocket.AcceptOptions{OriginPatterns: patterns}
}

// wsRejection is the message sent before closing a refused /chat/ws.
func wsRejection(err error) string {
	switch {
	case gate.IsLoading(err):
		return "Model is loading..."
	case gate.IsBusy(err):
		return "Server is busy"
	}
	return err.Error()
}

func rejectWS(ctx context.Context, c *websocket.Conn, err error) {
	statusFor(err)
	_ = stream.NewWS(ctx, c, wsWriteTimeout).Error(wsRejection(err))
	_ = c.Close(websocket.StatusNormalClosure, "")
}

// handleChatWS serves one generation per connection: the first text message
// is the request, then token frames and one terminal frame follow.
func handleChatWS(svc Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		c, err := websocket.Accept(w, r, acceptOptions())
		if err != nil {
			return
		}
		defer c.CloseNow()
		ctx, cancel := joinContexts(serverBaseCtx, r.Context())
		defer cancel()

		if err := svc.Admissible(); err != nil {
			rejectWS(ctx, c, err)
			return
		}
		typ, data, err := c.Read(ctx)
		if err != nil {
			return
		}
		if typ != websocket.MessageText {
			rejectWS(ctx, c, engine.ErrValidation("request must be a JSON text message"))
			return
		}
		var body types.ChatRequest
		fields, err := decodeFields(data, &body)
		if err != nil {
			rejectWS(ctx, c, engine.ErrValidation("invalid JSON body"))
			return
		}
		warnUnsupported(svc, fields)
		req, err := engine.NewChatRequest(body)
		if err != nil {
			rejectWS(ctx, c, err)
			return
		}
		g, err := svc.Admit(req)
		if err != nil {
			rejectWS(ctx, c, err)
			return
		}

		// A closed socket cancels the generation.
		ctx = c.CloseRead(ctx)
		lvl := requestLogLevel(r)
		start := time.Now()
		genStart(r, lvl, req.Mode)
		res := g.Run(ctx, withDebug(r, lvl, stream.NewWS(ctx, c, wsWriteTimeout)))
		genEnd(r, lvl, start, res)
		if res.Outcome != engine.OutcomeDisconnected {
			_ = c.Close(websocket.StatusNormalClosure, "")
		}
	}
}

// handleLogStream sends the log backlog and then live lines until the client
// goes away or falls too far behind.
func handleLogStream(svc Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		c, err := websocket.Accept(w, r, acceptOptions())
		if err != nil {
			return
		}
		defer c.CloseNow()
		ctx, cancel := joinContexts(serverBaseCtx, r.Context())
		defer cancel()
		ctx = c.CloseRead(ctx)

		sub := svc.Logs().Subscribe(logBacklog)
		defer sub.Close()
		ww := stream.NewWS(ctx, c, wsWriteTimeout)
		for {
			line, err := sub.Next(ctx)
			if err != nil {
				if errors.Is(err, broadcast.ErrDropped) {
					logger().Warn().Str("subscriber", sub.ID()).Msg("log subscriber dropped: too far behind")
					_ = c.Close(websocket.StatusPolicyViolation, "too slow")
				}
				return
			}
			if err := ww.WriteJSON(types.LogFrame{Type: "log", Text: line}); err != nil {
				return
			}
		}
	}
}

// handleMetricsStream pushes a snapshot right away, then periodically and
// whenever the generation state changes.
func handleMetricsStream(svc Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		c, err := websocket.Accept(w, r, acceptOptions())
		if err != nil {
			return
		}
		defer c.CloseNow()
		ctx, cancel := joinContexts(serverBaseCtx, r.Context())
		defer cancel()
		ctx = c.CloseRead(ctx)

		ww := stream.NewWS(ctx, c, wsWriteTimeout)
		snapshot := func(ctx context.Context) any {
			return types.MetricsFrame{Type: "metrics", MetricsSnapshot: svc.Metrics(ctx)}
		}
		if err := svc.Feed().Run(ctx, metricsInterval, snapshot, ww.WriteJSON); err != nil {
			logger().Debug().Err(err).Msg("metrics stream ended")
		}
	}
}
