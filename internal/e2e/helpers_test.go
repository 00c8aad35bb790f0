package e2e

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"llmgate/internal/backend/llamaserver"
	"llmgate/internal/backend/llamaserver/llamatest"
	"llmgate/internal/broadcast"
	"llmgate/internal/engine"
	"llmgate/internal/httpapi"
)

// gateway is a full in-process stack: fake llama-server, attach loader,
// engine and router.
type gateway struct {
	fake *llamatest.Server
	eng  *engine.Engine
	srv  *httptest.Server
}

func newGateway(t *testing.T, reply string) *gateway {
	t.Helper()
	fake := llamatest.New(reply)
	backend := httptest.NewServer(fake.Handler())
	t.Cleanup(backend.Close)

	loader := &llamaserver.Attach{URL: backend.URL, ReadyTimeout: 5 * time.Second}
	eng := engine.New(engine.Config{ModelPath: "fake.gguf", Remote: true}, loader, broadcast.NewLogHub(1000), nil)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := eng.Load(ctx); err != nil {
		t.Fatalf("load: %v", err)
	}
	srv := httptest.NewServer(httpapi.NewMux(httpapi.FromEngine(eng)))
	t.Cleanup(srv.Close)
	return &gateway{fake: fake, eng: eng, srv: srv}
}

func (g *gateway) wsURL(path string) string {
	return "ws" + strings.TrimPrefix(g.srv.URL, "http") + path
}

func httpGet(t *testing.T, url string) (*http.Response, []byte) {
	t.Helper()
	resp, err := http.Get(url)
	if err != nil {
		t.Fatalf("get %s: %v", url, err)
	}
	defer resp.Body.Close()
	b, _ := io.ReadAll(resp.Body)
	return resp, b
}

func httpPostJSON(t *testing.T, url, body string) (*http.Response, []byte) {
	t.Helper()
	req, err := http.NewRequest(http.MethodPost, url, bytes.NewBufferString(body))
	if err != nil {
		t.Fatalf("new req: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("post %s: %v", url, err)
	}
	defer resp.Body.Close()
	b, _ := io.ReadAll(resp.Body)
	return resp, b
}

// sseData returns the payloads of the data: lines in body.
func sseData(body []byte) []string {
	var out []string
	for _, ev := range strings.Split(string(body), "\n\n") {
		if d, ok := strings.CutPrefix(ev, "data: "); ok {
			out = append(out, d)
		}
	}
	return out
}
