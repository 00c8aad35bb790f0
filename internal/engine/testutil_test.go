package engine

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"llmgate/internal/backend"
	"llmgate/internal/broadcast"
	"llmgate/pkg/types"
)

// fakeBackend is a byte-level in-memory backend: every UTF-8 byte of the
// reply is one token id (byte+10). It implements Loader, Model and Tokenizer.
type fakeBackend struct {
	mu          sync.Mutex
	reply       string
	endWithEOF  bool
	failAfter   int // fail Next after this many ids when stepErr is set
	stepErr     error
	hold        chan struct{}
	loadErr     error
	loadDelay   time.Duration
	templateErr error
	decodeErr   error
	pid         int
	closed      bool

	lastPrompt  []backend.TokenID
	lastSampler backend.SamplerConfig
	lastProcs   []backend.Processor
}

func (f *fakeBackend) Load(ctx context.Context, path string) (backend.Model, backend.Tokenizer, error) {
	if f.loadDelay > 0 {
		select {
		case <-time.After(f.loadDelay):
		case <-ctx.Done():
			return nil, nil, ctx.Err()
		}
	}
	if f.loadErr != nil {
		return nil, nil, f.loadErr
	}
	return f, f, nil
}

func (f *fakeBackend) PID() int { return f.pid }

func (f *fakeBackend) Close() error {
	f.mu.Lock()
	f.closed = true
	f.mu.Unlock()
	return nil
}

func encodeBytes(s string) []backend.TokenID {
	ids := make([]backend.TokenID, len(s))
	for i := 0; i < len(s); i++ {
		ids[i] = backend.TokenID(s[i]) + 10
	}
	return ids
}

func (f *fakeBackend) Encode(_ context.Context, text string, addSpecial bool) ([]backend.TokenID, error) {
	ids := encodeBytes(text)
	if addSpecial {
		ids = append([]backend.TokenID{1}, ids...)
	}
	return ids, nil
}

func (f *fakeBackend) Decode(_ context.Context, ids []backend.TokenID, _ bool) (string, error) {
	if f.decodeErr != nil {
		return "", f.decodeErr
	}
	var b []byte
	for _, id := range ids {
		switch {
		case id == 1:
			b = append(b, "<|bos|>"...)
		case id >= 10:
			b = append(b, byte(id-10))
		}
	}
	return strings.ToValidUTF8(string(b), "\uFFFD"), nil
}

func (f *fakeBackend) ApplyChatTemplate(_ context.Context, msgs []backend.Message) (string, error) {
	if f.templateErr != nil {
		return "", f.templateErr
	}
	return "<|user|>" + msgs[0].Content + "<|assistant|>", nil
}

func (f *fakeBackend) EOS() backend.TokenID { return -1 }

func (f *fakeBackend) Start(_ context.Context, prompt []backend.TokenID, s backend.SamplerConfig, procs ...backend.Processor) (backend.Stepper, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lastPrompt, f.lastSampler, f.lastProcs = prompt, s, procs
	return &fakeStepper{f: f, ids: encodeBytes(f.reply)}, nil
}

type fakeStepper struct {
	f   *fakeBackend
	ids []backend.TokenID
	pos int
}

func (s *fakeStepper) Next(ctx context.Context) (backend.Step, error) {
	if s.f.hold != nil {
		select {
		case <-s.f.hold:
		case <-ctx.Done():
			return backend.Step{}, ctx.Err()
		}
	}
	if s.f.stepErr != nil && s.pos >= s.f.failAfter {
		return backend.Step{}, s.f.stepErr
	}
	if s.pos >= len(s.ids) {
		if s.f.endWithEOF {
			return backend.Step{}, io.EOF
		}
		return backend.Step{ID: -1}, nil
	}
	id := s.ids[s.pos]
	s.pos++
	return backend.Step{ID: id}, nil
}

func (s *fakeStepper) Close() error { return nil }

// recWriter records stream events; failAt > 0 fails that write and all later ones.
type recWriter struct {
	mu     sync.Mutex
	events []string
	failAt int
	writes int
}

func (w *recWriter) write(ev string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.writes++
	if w.failAt > 0 && w.writes >= w.failAt {
		return errors.New("write fail")
	}
	w.events = append(w.events, ev)
	return nil
}

func (w *recWriter) Token(d string) error { return w.write("token:" + d) }
func (w *recWriter) Done(r string) error { return w.write("done:" + r) }
func (w *recWriter) Error(msg string) error { return w.write("error:" + msg) }

func (w *recWriter) text() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	var b strings.Builder
	for _, ev := range w.events {
		if t, ok := strings.CutPrefix(ev, "token:"); ok {
			b.WriteString(t)
		}
	}
	return b.String()
}

func (w *recWriter) last() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	if len(w.events) == 0 {
		return ""
	}
	return w.events[len(w.events)-1]
}

// fakeCollector returns fixed readouts.
type fakeCollector struct {
	err error
	rss uint64
}

func (c *fakeCollector) Collect(context.Context) (types.SystemMetrics, error) {
	if c.err != nil {
		return types.SystemMetrics{}, c.err
	}
	return types.SystemMetrics{SysMemTotal: 100, SysMemUsed: 50, CPUCores: 8, VRAMUsed: 10, VRAMTotal: 20}, nil
}

func (c *fakeCollector) RSS(context.Context, int) (uint64, error) { return c.rss, nil }

// createModelFile writes a small model file and returns its path.
func createModelFile(t *testing.T, size int) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "model.gguf")
	if err := os.WriteFile(p, make([]byte, size), 0o644); err != nil {
		t.Fatalf("write model: %v", err)
	}
	return p
}

// testCtx returns a context with a short timeout, canceled on test cleanup.
func testCtx(t *testing.T) context.Context {
	t.Helper()
	c, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)
	return c
}

// newLoaded returns an engine that finished loading fb.
func newLoaded(t *testing.T, fb *fakeBackend, cfg Config) *Engine {
	t.Helper()
	if cfg.ModelPath == "" {
		cfg.ModelPath = createModelFile(t, 16)
	}
	e := New(cfg, fb, broadcast.NewLogHub(1000), &fakeCollector{})
	if err := e.Load(testCtx(t)); err != nil {
		t.Fatalf("load: %v", err)
	}
	return e
}

func intp(v int) *int { return &v }

func chatReq(t *testing.T, prompt string) Request {
	t.Helper()
	r, err := NewChatRequest(types.ChatRequest{GenerationRequest: types.GenerationRequest{Prompt: prompt}})
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	return r
}

func hasLine(lines []string, prefix string) bool {
	for _, l := range lines {
		if strings.HasPrefix(l, prefix) {
			return true
		}
	}
	return false
}
