package httpapi

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	json "github.com/goccy/go-json"

	"llmgate/internal/broadcast"
	"llmgate/internal/engine"
	"llmgate/internal/gate"
	"llmgate/internal/stream"
	"llmgate/pkg/types"
)

type mockRunner struct {
	tokens   []string
	reason   string
	errMsg   string
	mu       sync.Mutex
	released bool
}

func (m *mockRunner) Run(ctx context.Context, w stream.Writer) engine.Result {
	defer m.Release()
	for _, t := range m.tokens {
		if err := w.Token(t); err != nil {
			return engine.Result{Outcome: engine.OutcomeDisconnected}
		}
	}
	if m.errMsg != "" {
		_ = w.Error(m.errMsg)
		return engine.Result{Tokens: len(m.tokens), Outcome: engine.OutcomeError}
	}
	_ = w.Done(m.reason)
	return engine.Result{Tokens: len(m.tokens), Outcome: engine.OutcomeEOS}
}

func (m *mockRunner) Release() {
	m.mu.Lock()
	m.released = true
	m.mu.Unlock()
}

type mockService struct {
	health     types.HealthResponse
	metrics    types.MetricsSnapshot
	admissible error
	admitErr   error
	runner     *mockRunner
	tok        types.TokenizeResponse
	tokErr     error
	hub        *broadcast.LogHub
	feed       *broadcast.MetricsFeed

	mu       sync.Mutex
	admitted []engine.Request
	warnings []string
}

func newMock() *mockService {
	return &mockService{
		health: types.HealthResponse{Status: "ready", Engine: "mock"},
		runner: &mockRunner{tokens: []string{"Hel", "lo"}},
		hub:    broadcast.NewLogHub(1000),
		feed:   broadcast.NewMetricsFeed(),
	}
}

func (m *mockService) Health() types.HealthResponse { return m.health }
func (m *mockService) Metrics(context.Context) types.MetricsSnapshot { return m.metrics }
func (m *mockService) Admissible() error { return m.admissible }
func (m *mockService) Logs() *broadcast.LogHub { return m.hub }
func (m *mockService) Feed() *broadcast.MetricsFeed { return m.feed }

func (m *mockService) Admit(req engine.Request) (Runner, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.admitErr != nil {
		return nil, m.admitErr
	}
	m.admitted = append(m.admitted, req)
	return m.runner, nil
}

func (m *mockService) Tokenize(context.Context, types.TokenizeRequest) (types.TokenizeResponse, error) {
	return m.tok, m.tokErr
}

func (m *mockService) Warnf(format string, args ...any) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.warnings = append(m.warnings, fmt.Sprintf(format, args...))
}

func post(t *testing.T, h http.Handler, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func decodeError(t *testing.T, w *httptest.ResponseRecorder) types.ErrorResponse {
	t.Helper()
	var er types.ErrorResponse
	if err := json.Unmarshal(w.Body.Bytes(), &er); err != nil {
		t.Fatalf("error body %q: %v", w.Body.String(), err)
	}
	return er
}

func TestHealth(t *testing.T) {
	svc := newMock()
	svc.health = types.HealthResponse{Status: "failed", Engine: "mock", Error: "bad file"}
	w := httptest.NewRecorder()
	NewMux(svc).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("status=%d", w.Code)
	}
	var body types.HealthResponse
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("json: %v", err)
	}
	if body != svc.health {
		t.Fatalf("body = %+v", body)
	}
}

func TestMetricsSnapshotFields(t *testing.T) {
	svc := newMock()
	svc.metrics = types.MetricsSnapshot{Ready: true, Engine: "mock", TPS: 3.5}
	w := httptest.NewRecorder()
	NewMux(svc).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	var body map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("json: %v", err)
	}
	for _, k := range []string{"ready", "processing", "queueLength", "engine", "vramTotal", "vramUsed", "sysMemTotal", "sysMemUsed", "cpuCores", "procCpuSec", "tps", "predictedTotal"} {
		if _, ok := body[k]; !ok {
			t.Fatalf("missing %q in %v", k, body)
		}
	}
	if body["tps"] != 3.5 {
		t.Fatalf("tps = %v", body["tps"])
	}
}

func TestChat_StreamsSSE(t *testing.T) {
	svc := newMock()
	w := post(t, NewMux(svc), "/chat", `{"prompt":"hi"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("status=%d body=%s", w.Code, w.Body.String())
	}
	if ct := w.Header().Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("content-type=%q", ct)
	}
	want := "data: {\"content\":\"Hel\"}\n\ndata: {\"content\":\"lo\"}\n\ndata: {\"stop\":true}\n\n"
	if w.Body.String() != want {
		t.Fatalf("body=%q", w.Body.String())
	}
	if len(svc.admitted) != 1 || svc.admitted[0].MaxTokens != engine.DefaultMaxTokens || svc.admitted[0].Mode != engine.ModeChat {
		t.Fatalf("admitted = %+v", svc.admitted)
	}
	if !svc.runner.released {
		t.Fatalf("runner not released")
	}
}

func TestChat_ErrorEvent(t *testing.T) {
	svc := newMock()
	svc.runner = &mockRunner{tokens: []string{"a"}, errMsg: "Generation failed: boom"}
	w := post(t, NewMux(svc), "/chat", `{"prompt":"hi"}`)
	want := "data: {\"content\":\"a\"}\n\ndata: {\"error\":\"Generation failed: boom\"}\n\n"
	if w.Body.String() != want {
		t.Fatalf("body=%q", w.Body.String())
	}
}

func TestCompletion_StopReason(t *testing.T) {
	svc := newMock()
	svc.runner = &mockRunner{tokens: []string{"42"}, reason: stream.ReasonStop}
	w := post(t, NewMux(svc), "/completion", `{"prompt":"q","n_predict":-1,"stop":["\n"]}`)
	want := "data: {\"content\":\"42\"}\n\ndata: {\"stop\":true,\"stop_reason\":\"stop\"}\n\n"
	if w.Body.String() != want {
		t.Fatalf("body=%q", w.Body.String())
	}
	req := svc.admitted[0]
	if req.Mode != engine.ModeCompletion || req.MaxTokens != -1 || len(req.Stop) != 1 {
		t.Fatalf("admitted = %+v", req)
	}
}

func TestCompletion_NonStreaming501(t *testing.T) {
	svc := newMock()
	w := post(t, NewMux(svc), "/completion", `{"prompt":"q","stream":false}`)
	if w.Code != http.StatusNotImplemented {
		t.Fatalf("status=%d", w.Code)
	}
	if er := decodeError(t, w); er.Error != "Non-streaming completion not implemented" || er.Code != 501 {
		t.Fatalf("error = %+v", er)
	}
	if len(svc.admitted) != 0 {
		t.Fatalf("must not admit")
	}
}

func TestChat_Validation(t *testing.T) {
	svc := newMock()
	h := NewMux(svc)

	w := post(t, h, "/chat", `{"prompt":"   "}`)
	if w.Code != http.StatusBadRequest || decodeError(t, w).Error != "Prompt is required" {
		t.Fatalf("blank prompt: %d %s", w.Code, w.Body.String())
	}
	w = post(t, h, "/chat", `{"prompt":`)
	if w.Code != http.StatusBadRequest || decodeError(t, w).Error != "invalid JSON body" {
		t.Fatalf("bad json: %d %s", w.Code, w.Body.String())
	}

	req := httptest.NewRequest(http.MethodPost, "/chat", strings.NewReader(`{"prompt":"hi"}`))
	req.Header.Set("Content-Type", "text/plain")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnsupportedMediaType {
		t.Fatalf("content-type: %d", rec.Code)
	}
	if len(svc.admitted) != 0 {
		t.Fatalf("rejected requests must not reach admission")
	}
}

func TestChat_BodyLimit(t *testing.T) {
	SetMaxBodyBytes(16)
	defer SetMaxBodyBytes(0)
	w := post(t, NewMux(newMock()), "/chat", `{"prompt":"this body is longer than sixteen bytes"}`)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status=%d", w.Code)
	}
}

func TestChat_AdmissionErrors(t *testing.T) {
	cases := []struct {
		err  error
		want string
	}{
		{gate.ErrBusy, "busy"},
		{gate.ErrLoading, "loading"},
	}
	for _, tc := range cases {
		svc := newMock()
		svc.admitErr = tc.err
		w := post(t, NewMux(svc), "/chat", `{"prompt":"hi"}`)
		if w.Code != http.StatusServiceUnavailable {
			t.Fatalf("%s: status=%d", tc.want, w.Code)
		}
		if er := decodeError(t, w); er.Error != tc.want || er.Code != 503 {
			t.Fatalf("%s: error=%+v", tc.want, er)
		}
	}
}

func TestUnsupportedFieldsWarn(t *testing.T) {
	svc := newMock()
	w := post(t, NewMux(svc), "/completion", `{"prompt":"q","top_k":40,"mirostat":2,"seed":1}`)
	if w.Code != http.StatusOK {
		t.Fatalf("status=%d", w.Code)
	}
	if len(svc.warnings) != 1 || svc.warnings[0] != "Ignoring unsupported sampling parameters: top_k, mirostat" {
		t.Fatalf("warnings = %q", svc.warnings)
	}
}

func TestTokenize(t *testing.T) {
	svc := newMock()
	svc.tok = types.TokenizeResponse{Tokens: []int32{1, 2}, Count: 2}
	w := post(t, NewMux(svc), "/tokenize", `{"content":"hi"}`)
	if w.Code != http.StatusOK || strings.TrimSpace(w.Body.String()) != `{"tokens":[1,2],"count":2}` {
		t.Fatalf("status=%d body=%s", w.Code, w.Body.String())
	}

	svc.tokErr = engine.ErrValidation("Content is required")
	if w := post(t, NewMux(svc), "/tokenize", `{}`); w.Code != http.StatusBadRequest {
		t.Fatalf("validation status=%d", w.Code)
	}
	svc.tokErr = gate.ErrLoading
	if w := post(t, NewMux(svc), "/tokenize", `{"content":"x"}`); w.Code != http.StatusServiceUnavailable {
		t.Fatalf("loading status=%d", w.Code)
	}
}

func TestPrometheusEndpoint(t *testing.T) {
	h := NewMux(newMock())
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/health", nil))
	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics/prometheus", nil))
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), "llmgate_http_requests_total") {
		t.Fatalf("status=%d", w.Code)
	}
	if !strings.Contains(w.Body.String(), `path="/health"`) {
		t.Fatalf("route pattern label missing")
	}
}

func TestCORSPreflight(t *testing.T) {
	SetCORSOptions(true, []string{"*"})
	defer SetCORSOptions(false, nil)
	req := httptest.NewRequest(http.MethodOptions, "/chat", nil)
	req.Header.Set("Origin", "http://example.com")
	req.Header.Set("Access-Control-Request-Method", "POST")
	w := httptest.NewRecorder()
	NewMux(newMock()).ServeHTTP(w, req)
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "*" {
		t.Fatalf("allow-origin=%q", got)
	}
}

func TestJoinContexts(t *testing.T) {
	a, cancelA := context.WithCancel(context.Background())
	defer cancelA()
	b, cancelB := context.WithCancel(context.Background())
	ctx, cancel := joinContexts(a, b)
	defer cancel()
	cancelB()
	<-ctx.Done()

	ctx2, cancel2 := joinContexts(context.Background(), context.Background())
	cancel2()
	if ctx2.Err() == nil {
		t.Fatalf("cancel func must cancel the joined context")
	}
}

func TestRequestLogLevel(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/chat?log=1", nil)
	if requestLogLevel(r) != LevelDebug {
		t.Fatalf("?log=1 should mean debug")
	}
	r = httptest.NewRequest(http.MethodGet, "/chat", nil)
	r.Header.Set("X-Log-Level", "error")
	if requestLogLevel(r) != LevelError {
		t.Fatalf("header level not honored")
	}
}
