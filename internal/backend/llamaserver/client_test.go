package llamaserver

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"llmgate/internal/backend"
	"llmgate/internal/backend/llamaserver/llamatest"
)

func testCtx(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func newFake(t *testing.T, reply string) (*llamatest.Server, *Client) {
	t.Helper()
	fake := llamatest.New(reply)
	ts := httptest.NewServer(fake.Handler())
	t.Cleanup(ts.Close)
	return fake, NewClient(ts.URL, "", time.Second)
}

func TestClient_TokenizeRoundTrip(t *testing.T) {
	_, c := newFake(t, "")
	ctx := testCtx(t)
	ids, err := c.Encode(ctx, "hi", true)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if len(ids) != 3 || ids[0] != llamatest.BOS {
		t.Fatalf("unexpected ids: %v", ids)
	}
	text, err := c.Decode(ctx, ids[1:], true)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if text != "hi" {
		t.Fatalf("want hi, got %q", text)
	}
	if got, _ := c.Decode(ctx, nil, true); got != "" {
		t.Fatalf("empty decode should be empty, got %q", got)
	}
}

func TestClient_ApplyChatTemplate(t *testing.T) {
	_, c := newFake(t, "")
	out, err := c.ApplyChatTemplate(testCtx(t), []backend.Message{{Role: "user", Content: "hey"}})
	if err != nil {
		t.Fatalf("template: %v", err)
	}
	if out != "<|user|>hey<|assistant|>" {
		t.Fatalf("unexpected prompt %q", out)
	}
}

func TestStepper_StreamsIDsThenEOS(t *testing.T) {
	fake, c := newFake(t, "ok")
	ctx := testCtx(t)
	st, err := c.Start(ctx, llamatest.Encode("q"), backend.SamplerConfig{Temperature: 0.7, TopP: 0.95, MaxTokens: 10},
		backend.RepetitionPenalty{Penalty: 1.1, LastN: 64})
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	defer st.Close()

	want := llamatest.Encode("ok")
	for i, id := range want {
		step, err := st.Next(ctx)
		if err != nil {
			t.Fatalf("step %d: %v", i, err)
		}
		if step.ID != id {
			t.Fatalf("step %d: want %d got %d", i, id, step.ID)
		}
	}
	step, err := st.Next(ctx)
	if err != nil || step.ID != EOS {
		t.Fatalf("want EOS, got %v %v", step, err)
	}
	if _, err := st.Next(ctx); !errors.Is(err, io.EOF) {
		t.Fatalf("want io.EOF after EOS, got %v", err)
	}

	req := fake.LastRequest()
	if req["repeat_penalty"].(float64) != 1.1 || req["repeat_last_n"].(float64) != 64 {
		t.Fatalf("repetition penalty not forwarded: %v", req)
	}
	if req["return_tokens"] != true || req["stream"] != true {
		t.Fatalf("stream flags missing: %v", req)
	}
}

func TestStepper_LimitEndsWithEOF(t *testing.T) {
	_, c := newFake(t, "abcdef")
	ctx := testCtx(t)
	st, err := c.Start(ctx, llamatest.Encode("q"), backend.SamplerConfig{MaxTokens: 2})
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	defer st.Close()
	for i := 0; i < 2; i++ {
		if _, err := st.Next(ctx); err != nil {
			t.Fatalf("step %d: %v", i, err)
		}
	}
	if _, err := st.Next(ctx); !errors.Is(err, io.EOF) {
		t.Fatalf("want io.EOF on limit, got %v", err)
	}
}

func TestStepper_MultiTokenChunkAndError(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		_, _ = io.WriteString(w, "data: {\"content\":\"ab\",\"tokens\":[5,6],\"stop\":false}\n\n")
		_, _ = io.WriteString(w, "data: not json\n\n")
		_, _ = io.WriteString(w, "data: {\"error\":{\"message\":\"kv cache full\"}}\n\n")
	}))
	defer ts.Close()
	c := NewClient(ts.URL, "", time.Second)
	ctx := testCtx(t)
	st, err := c.Start(ctx, []backend.TokenID{1}, backend.SamplerConfig{})
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	defer st.Close()
	for _, want := range []backend.TokenID{5, 6} {
		step, err := st.Next(ctx)
		if err != nil || step.ID != want {
			t.Fatalf("want %d, got %v %v", want, step, err)
		}
	}
	_, err = st.Next(ctx)
	if err == nil || errors.Is(err, io.EOF) {
		t.Fatalf("want stream error, got %v", err)
	}
}

func TestStepper_ContextCancelUnblocks(t *testing.T) {
	fake, c := newFake(t, "abc")
	release := fake.Hold()
	defer release()
	ctx, cancel := context.WithCancel(context.Background())
	st, err := c.Start(ctx, []backend.TokenID{1}, backend.SamplerConfig{})
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	defer st.Close()
	if _, err := st.Next(ctx); err != nil {
		t.Fatalf("first step: %v", err)
	}
	go func() {
		time.Sleep(50 * time.Millisecond)
		cancel()
	}()
	if _, err := st.Next(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("want context.Canceled, got %v", err)
	}
}

func TestClient_StartHTTPError(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusInternalServerError)
	}))
	defer ts.Close()
	c := NewClient(ts.URL, "", time.Second)
	if _, err := c.Start(testCtx(t), []backend.TokenID{1}, backend.SamplerConfig{}); err == nil {
		t.Fatalf("expected error for 500 response")
	}
}

func TestAttach_WaitsForHealth(t *testing.T) {
	fake := llamatest.New("")
	fake.SetLoading(true)
	ts := httptest.NewServer(fake.Handler())
	defer ts.Close()
	go func() {
		time.Sleep(150 * time.Millisecond)
		fake.SetLoading(false)
	}()
	a := &Attach{URL: ts.URL, ReadyTimeout: 3 * time.Second}
	model, tok, err := a.Load(testCtx(t), "")
	if err != nil {
		t.Fatalf("attach: %v", err)
	}
	if model == nil || tok == nil || tok.EOS() != EOS {
		t.Fatalf("unexpected attach result")
	}
	if a.PID() != 0 {
		t.Fatalf("attach has no pid")
	}
}

func TestAttach_Timeout(t *testing.T) {
	fake := llamatest.New("")
	fake.SetLoading(true)
	ts := httptest.NewServer(fake.Handler())
	defer ts.Close()
	a := &Attach{URL: ts.URL, ReadyTimeout: 200 * time.Millisecond}
	if _, _, err := a.Load(testCtx(t), ""); err == nil {
		t.Fatalf("expected readiness timeout")
	}
}

func TestSpawner_Args(t *testing.T) {
	s := NewSpawner(SpawnConfig{Bin: "llama-server", CtxSize: 4096, NGL: 99, Threads: 8, ExtraArgs: []string{"--flash-attn"}})
	got := s.args("/m.gguf", 8081)
	want := []string{"-m", "/m.gguf", "--host", "127.0.0.1", "--port", "8081", "-c", "4096", "-ngl", "99", "-t", "8", "--flash-attn"}
	if len(got) != len(want) {
		t.Fatalf("args: %v", got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("arg %d: want %q got %q", i, want[i], got[i])
		}
	}
}

func TestSpawner_MissingBinary(t *testing.T) {
	s := NewSpawner(SpawnConfig{})
	if _, _, err := s.Load(testCtx(t), "/m.gguf"); err == nil {
		t.Fatalf("expected error without binary")
	}
	if err := s.Close(); err != nil {
		t.Fatalf("close without process: %v", err)
	}
}
