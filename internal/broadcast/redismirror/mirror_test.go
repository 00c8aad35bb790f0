package redismirror

import (
	"context"
	"fmt"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"

	"llmgate/internal/broadcast"
)

func TestMirror_PushAndTrim(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	defer mr.Close()

	m, err := New(context.Background(), mr.Addr(), "", 5)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	hub := broadcast.NewLogHub(5)
	hub.SetMirror(m)
	for i := 0; i < 8; i++ {
		hub.Appendf("line %d", i)
	}
	if err := m.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	m.Push("after close")

	got, err := mr.List(DefaultKey)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(got) != 5 {
		t.Fatalf("want 5 lines, got %d: %v", len(got), got)
	}
	for i, l := range got {
		if want := fmt.Sprintf("line %d", i+3); l != want {
			t.Fatalf("line %d: want %q got %q", i, want, l)
		}
	}
}

func TestNew_PingFailure(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if _, err := New(ctx, "127.0.0.1:1", "", 10); err == nil {
		t.Fatalf("expected ping failure")
	}
}

func TestParseRedisURL(t *testing.T) {
	opts, err := parseRedisURL("redis://:pass@localhost:6379/2")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(opts.Addrs) != 1 || opts.Addrs[0] != "localhost:6379" || opts.DB != 2 || opts.Password != "pass" {
		t.Fatalf("unexpected opts %+v", opts)
	}
	if _, err := parseRedisURL("http://x"); err == nil {
		t.Fatalf("expected scheme error")
	}
}
