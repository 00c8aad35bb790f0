package llamaserver

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os/exec"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"time"

	"llmgate/internal/backend"
	"llmgate/internal/logx"
)

// SpawnConfig holds the llama-server command line knobs.
type SpawnConfig struct {
	Bin          string
	Host         string
	PortStart    int
	PortEnd      int
	CtxSize      int
	NGL          int
	Threads      int
	ExtraArgs    []string
	APIKey       string
	ReadyTimeout time.Duration
}

// Spawner is a backend.Loader that starts and owns a llama-server process.
type Spawner struct {
	cfg SpawnConfig

	mu     sync.Mutex
	cmd    *exec.Cmd
	pid    int
	waitCh chan error
	client *Client
}

// NewSpawner constructs a Spawner, applying defaults for host and timeout.
func NewSpawner(cfg SpawnConfig) *Spawner {
	if strings.TrimSpace(cfg.Host) == "" {
		cfg.Host = "127.0.0.1"
	}
	if cfg.ReadyTimeout <= 0 {
		cfg.ReadyTimeout = 10 * time.Minute
	}
	return &Spawner{cfg: cfg}
}

// Load starts llama-server for modelPath and waits until /health reports ready.
func (s *Spawner) Load(ctx context.Context, modelPath string) (backend.Model, backend.Tokenizer, error) {
	if strings.TrimSpace(modelPath) == "" {
		return nil, nil, errors.New("model path is empty")
	}
	if s.cfg.Bin == "" {
		return nil, nil, errors.New("llama-server binary not configured")
	}
	var (
		port int
		err  error
	)
	if s.cfg.PortStart > 0 && s.cfg.PortEnd >= s.cfg.PortStart {
		port, err = pickPortInRange(s.cfg.Host, s.cfg.PortStart, s.cfg.PortEnd)
	} else {
		port, err = pickFreePort(s.cfg.Host)
	}
	if err != nil {
		return nil, nil, err
	}
	baseURL := fmt.Sprintf("http://%s:%d", s.cfg.Host, port)

	cmd := exec.Command(s.cfg.Bin, s.args(modelPath, port)...)
	stderr := &tailBuffer{max: 4096}
	cmd.Stderr = stderr
	if err := cmd.Start(); err != nil {
		return nil, nil, fmt.Errorf("start llama-server: %w", err)
	}
	pid := cmd.Process.Pid
	logx.Log.Info().Str("model", modelPath).Int("pid", pid).Str("url", baseURL).Msg("llama-server started")

	waitCh := make(chan error, 1)
	go func() { waitCh <- cmd.Wait() }()

	client := NewClient(baseURL, s.cfg.APIKey, 0)
	s.mu.Lock()
	s.cmd, s.pid, s.waitCh, s.client = cmd, pid, waitCh, client
	s.mu.Unlock()

	deadline := time.NewTimer(s.cfg.ReadyTimeout)
	defer deadline.Stop()
	for {
		select {
		case werr := <-waitCh:
			s.forget()
			if werr != nil {
				return nil, nil, fmt.Errorf("llama-server exited early: %v; stderr tail: %s", werr, stderr.String())
			}
			return nil, nil, fmt.Errorf("llama-server exited before ready: %s", baseURL)
		case <-deadline.C:
			_ = s.Close()
			return nil, nil, fmt.Errorf("llama-server not ready in %s: %s", s.cfg.ReadyTimeout, baseURL)
		case <-ctx.Done():
			_ = s.Close()
			return nil, nil, ctx.Err()
		default:
		}
		probe, cancel := context.WithTimeout(ctx, time.Second)
		ok := client.Healthy(probe)
		cancel()
		if ok {
			logx.Log.Info().Int("pid", pid).Str("url", baseURL).Msg("llama-server ready")
			return client, client, nil
		}
		select {
		case <-ctx.Done():
		case <-time.After(100 * time.Millisecond):
		}
	}
}

func (s *Spawner) args(modelPath string, port int) []string {
	args := []string{"-m", modelPath, "--host", s.cfg.Host, "--port", strconv.Itoa(port)}
	if s.cfg.CtxSize > 0 {
		args = append(args, "-c", strconv.Itoa(s.cfg.CtxSize))
	}
	if s.cfg.NGL > 0 {
		args = append(args, "-ngl", strconv.Itoa(s.cfg.NGL))
	}
	if s.cfg.Threads > 0 {
		args = append(args, "-t", strconv.Itoa(s.cfg.Threads))
	}
	if s.cfg.APIKey != "" {
		args = append(args, "--api-key", s.cfg.APIKey)
	}
	return append(args, s.cfg.ExtraArgs...)
}

// PID returns the child process id while it runs.
func (s *Spawner) PID() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pid
}

// Close terminates the child: SIGTERM first, kill after 2s.
func (s *Spawner) Close() error {
	s.mu.Lock()
	cmd, waitCh := s.cmd, s.waitCh
	s.mu.Unlock()
	if cmd == nil || cmd.Process == nil {
		return nil
	}
	_ = cmd.Process.Signal(syscall.SIGTERM)
	select {
	case <-waitCh:
	case <-time.After(2 * time.Second):
		_ = cmd.Process.Kill()
		<-waitCh
	}
	logx.Log.Info().Int("pid", cmd.Process.Pid).Msg("llama-server stopped")
	s.forget()
	return nil
}

func (s *Spawner) forget() {
	s.mu.Lock()
	s.cmd, s.pid, s.waitCh = nil, 0, nil
	s.mu.Unlock()
}

// Attach is a backend.Loader for a llama-server that someone else runs.
type Attach struct {
	URL          string
	APIKey       string
	ReadyTimeout time.Duration
}

// Load waits for the remote server. The path is informational only: the
// remote server already has its model.
func (a *Attach) Load(ctx context.Context, modelPath string) (backend.Model, backend.Tokenizer, error) {
	if strings.TrimSpace(a.URL) == "" {
		return nil, nil, errors.New("backend url is empty")
	}
	c := NewClient(a.URL, a.APIKey, 0)
	if err := c.WaitReady(ctx, a.ReadyTimeout); err != nil {
		return nil, nil, err
	}
	if modelPath != "" {
		logx.Log.Debug().Str("model", modelPath).Str("url", a.URL).Msg("attached to running llama-server")
	}
	return c, c, nil
}

// PID is unknown for a remote server.
func (a *Attach) PID() int { return 0 }

// Close is a no-op; the remote server is not ours to stop.
func (a *Attach) Close() error { return nil }

func pickPortInRange(host string, start, end int) (int, error) {
	for p := start; p <= end; p++ {
		l, err := net.Listen("tcp", net.JoinHostPort(host, strconv.Itoa(p)))
		if err != nil {
			continue
		}
		_ = l.Close()
		return p, nil
	}
	return 0, fmt.Errorf("no free port in range %d-%d", start, end)
}

func pickFreePort(host string) (int, error) {
	l, err := net.Listen("tcp", net.JoinHostPort(host, "0"))
	if err != nil {
		return 0, err
	}
	defer l.Close()
	addr, ok := l.Addr().(*net.TCPAddr)
	if !ok {
		return 0, fmt.Errorf("unexpected addr: %s", l.Addr())
	}
	return addr.Port, nil
}

// tailBuffer keeps the last max bytes written to it.
type tailBuffer struct {
	mu  sync.Mutex
	max int
	buf []byte
}

func (t *tailBuffer) Write(p []byte) (int, error) {
	t.mu.Lock()
	t.buf = append(t.buf, p...)
	if len(t.buf) > t.max {
		t.buf = t.buf[len(t.buf)-t.max:]
	}
	t.mu.Unlock()
	return len(p), nil
}

func (t *tailBuffer) String() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return string(t.buf)
}
