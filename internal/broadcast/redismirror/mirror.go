// Package redismirror copies log lines into a capped Redis list so external
// dashboards can read recent gateway logs.
package redismirror

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"llmgate/internal/logx"
)

// DefaultKey is the list the lines are pushed to.
const DefaultKey = "llmgate:logs"

const queueSize = 1024

// Mirror implements broadcast.Mirror. Lines are written by a background
// goroutine; Push drops lines when the queue is full.
type Mirror struct {
	client redis.UniversalClient
	key    string
	max    int64

	mu     sync.Mutex
	closed bool
	ch     chan string
	done   chan struct{}
}

// New connects to addr (host:port or redis:// URL) and starts the writer.
// The list is trimmed to maxLines entries.
func New(ctx context.Context, addr, key string, maxLines int) (*Mirror, error) {
	opts, err := parseRedisURL(addr)
	if err != nil {
		return nil, err
	}
	if key == "" {
		key = DefaultKey
	}
	if maxLines <= 0 {
		maxLines = 1000
	}
	c := redis.NewUniversalClient(opts)
	if err := c.Ping(ctx).Err(); err != nil {
		_ = c.Close()
		return nil, fmt.Errorf("redis mirror: ping: %w", err)
	}
	m := &Mirror{
		client: c,
		key:    key,
		max:    int64(maxLines),
		ch:     make(chan string, queueSize),
		done:   make(chan struct{}),
	}
	go m.loop()
	return m, nil
}

// parseRedisURL accepts a plain host:port or a redis:// / rediss:// URL.
func parseRedisURL(addr string) (*redis.UniversalOptions, error) {
	if !strings.Contains(addr, "://") {
		return &redis.UniversalOptions{Addrs: []string{addr}}, nil
	}
	o, err := redis.ParseURL(addr)
	if err != nil {
		return nil, fmt.Errorf("redis mirror: %w", err)
	}
	return &redis.UniversalOptions{
		Addrs:     []string{o.Addr},
		Username:  o.Username,
		Password:  o.Password,
		DB:        o.DB,
		TLSConfig: o.TLSConfig,
	}, nil
}

// Push queues line without blocking.
func (m *Mirror) Push(line string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return
	}
	select {
	case m.ch <- line:
	default:
		logx.Log.Warn().Str("key", m.key).Msg("redis log mirror queue full; dropping line")
	}
}

func (m *Mirror) loop() {
	defer close(m.done)
	batch := make([]any, 0, 64)
	for line := range m.ch {
		batch = append(batch[:0], line)
	more:
		for len(batch) < cap(batch) {
			select {
			case l, ok := <-m.ch:
				if !ok {
					break more
				}
				batch = append(batch, l)
			default:
				break more
			}
		}
		m.flush(batch)
	}
}

func (m *Mirror) flush(batch []any) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_, err := m.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.RPush(ctx, m.key, batch...)
		p.LTrim(ctx, m.key, -m.max, -1)
		return nil
	})
	if err != nil {
		logx.Log.Warn().Err(err).Str("key", m.key).Int("lines", len(batch)).Msg("redis log mirror write failed")
	}
}

// Close drains queued lines and disconnects.
func (m *Mirror) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	close(m.ch)
	m.mu.Unlock()
	<-m.done
	return m.client.Close()
}
