package httpapi

import (
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	json "github.com/goccy/go-json"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"llmgate/internal/engine"
	"llmgate/internal/stream"
	"llmgate/pkg/types"
)

// NewMux builds the router for svc.
func NewMux(svc Service) http.Handler {
	r := chi.NewRouter()
	// Basic middlewares: request id, real ip, recoverer
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(MetricsMiddleware)
	if corsEnabled {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: corsAllowedOrigins,
			AllowedMethods: []string{"GET", "POST", "OPTIONS"},
			AllowedHeaders: []string{"*"},
		}))
	}
	// Security headers
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("X-Content-Type-Options", "nosniff")
			next.ServeHTTP(w, r)
		})
	})

	// Plain JSON endpoints; compression never applies to streams.
	r.Group(func(r chi.Router) {
		r.Use(inflight)
		r.Use(middleware.Compress(5))
		r.Get("/health", handleHealth(svc))
		r.Get("/metrics", handleMetrics(svc))
		r.Post("/tokenize", handleTokenize(svc))
	})

	r.Group(func(r chi.Router) {
		r.Use(inflight)
		r.Post("/chat", handleChat(svc))
		r.Post("/completion", handleCompletion(svc))
		r.Get("/chat/ws", handleChatWS(svc))
		r.Get("/logs/stream", handleLogStream(svc))
		r.Get("/metrics/stream", handleMetricsStream(svc))
	})

	// Prometheus exposition; /metrics keeps the JSON snapshot clients expect.
	r.Handle("/metrics/prometheus", promhttp.Handler())
	MountSwagger(r)
	return r
}

// handleHealth godoc
// @Summary      Readiness of the model
// @Tags         status
// @Produce      json
// @Success      200 {object} types.HealthResponse
// @Router       /health [get]
func handleHealth(svc Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, svc.Health())
	}
}

// handleMetrics godoc
// @Summary      One metrics snapshot
// @Tags         status
// @Produce      json
// @Success      200 {object} types.MetricsSnapshot
// @Router       /metrics [get]
func handleMetrics(svc Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, svc.Metrics(r.Context()))
	}
}

// handleChat godoc
// @Summary      Chat generation streamed as server-sent events
// @Tags         generation
// @Accept       json
// @Produce      text/event-stream
// @Param        request body types.ChatRequest true "Chat request"
// @Success      200 {string} string "data: {\"content\":\"...\"}"
// @Failure      400 {object} types.ErrorResponse
// @Failure      503 {object} types.ErrorResponse
// @Router       /chat [post]
func handleChat(svc Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body types.ChatRequest
		fields, ok := readJSON(w, r, &body)
		if !ok {
			return
		}
		warnUnsupported(svc, fields)
		req, err := engine.NewChatRequest(body)
		if err != nil {
			writeJSONError(w, statusFor(err), err.Error())
			return
		}
		serveSSE(w, r, svc, req, stream.Chat)
	}
}

// handleCompletion godoc
// @Summary      llama.cpp compatible completion streamed as server-sent events
// @Tags         generation
// @Accept       json
// @Produce      text/event-stream
// @Param        request body types.CompletionRequest true "Completion request"
// @Success      200 {string} string "data: {\"content\":\"...\"}"
// @Failure      400 {object} types.ErrorResponse
// @Failure      501 {object} types.ErrorResponse
// @Failure      503 {object} types.ErrorResponse
// @Router       /completion [post]
func handleCompletion(svc Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body types.CompletionRequest
		fields, ok := readJSON(w, r, &body)
		if !ok {
			return
		}
		warnUnsupported(svc, fields)
		req, err := engine.NewCompletionRequest(body)
		if err != nil {
			writeJSONError(w, statusFor(err), err.Error())
			return
		}
		serveSSE(w, r, svc, req, stream.Completion)
	}
}

// serveSSE admits req and streams it. Rejections are answered with a JSON
// error before any event-stream header is written.
func serveSSE(w http.ResponseWriter, r *http.Request, svc Service, req engine.Request, d stream.Dialect) {
	g, err := svc.Admit(req)
	if err != nil {
		writeJSONError(w, statusFor(err), err.Error())
		return
	}
	lvl := requestLogLevel(r)
	// Join server base context with request context so shutdown cancels work too.
	ctx, cancel := joinContexts(serverBaseCtx, r.Context())
	defer cancel()
	start := time.Now()
	genStart(r, lvl, req.Mode)
	res := g.Run(ctx, withDebug(r, lvl, stream.NewSSE(w, d)))
	genEnd(r, lvl, start, res)
}

// handleTokenize godoc
// @Summary      Tokenize text with the loaded model
// @Tags         generation
// @Accept       json
// @Produce      json
// @Param        request body types.TokenizeRequest true "Tokenize request"
// @Success      200 {object} types.TokenizeResponse
// @Failure      400 {object} types.ErrorResponse
// @Failure      503 {object} types.ErrorResponse
// @Router       /tokenize [post]
func handleTokenize(svc Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body types.TokenizeRequest
		if _, ok := readJSON(w, r, &body); !ok {
			return
		}
		resp, err := svc.Tokenize(r.Context(), body)
		if err != nil {
			writeJSONError(w, statusFor(err), err.Error())
			return
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

// readJSON checks the content type, limits the body and decodes it into v.
// It returns the raw top-level fields. On failure the error response is
// already written.
func readJSON(w http.ResponseWriter, r *http.Request, v any) (map[string]json.RawMessage, bool) {
	ct := r.Header.Get("Content-Type")
	if ct == "" || !strings.HasPrefix(strings.ToLower(ct), "application/json") {
		writeJSONError(w, http.StatusUnsupportedMediaType, "Content-Type must be application/json")
		return nil, false
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	body, err := io.ReadAll(r.Body)
	if err != nil {
		// Oversized bodies get the same answer as malformed ones.
		writeJSONError(w, http.StatusBadRequest, "invalid JSON body")
		return nil, false
	}
	fields, err := decodeFields(body, v)
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid JSON body")
		return nil, false
	}
	return fields, true
}

func decodeFields(body []byte, v any) (map[string]json.RawMessage, error) {
	if err := json.Unmarshal(body, v); err != nil {
		return nil, err
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(body, &fields); err != nil {
		return nil, err
	}
	return fields, nil
}

// warnUnsupported logs the llama.cpp sampling fields the backend ignores.
func warnUnsupported(svc Service, fields map[string]json.RawMessage) {
	var ignored []string
	for _, k := range types.UnsupportedSamplingFields {
		if _, ok := fields[k]; ok {
			ignored = append(ignored, k)
		}
	}
	if len(ignored) > 0 {
		svc.Warnf("Ignoring unsupported sampling parameters: %s", strings.Join(ignored, ", "))
	}
}
