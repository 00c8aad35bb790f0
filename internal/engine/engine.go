package engine

import (
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"llmgate/internal/backend"
	"llmgate/internal/broadcast"
	"llmgate/internal/gate"
	"llmgate/internal/logx"
	"llmgate/internal/registry"
	"llmgate/internal/sysmetrics"
)

// Engine owns the backend, the generation gate and the log/metrics fan-out.
type Engine struct {
	cfg    Config
	loader backend.Loader
	hub    *broadcast.LogHub
	feed   *broadcast.MetricsFeed
	col    sysmetrics.Collector
	gate   *gate.Gate
	pub    EventPublisher

	mu    sync.RWMutex
	model backend.Model
	tok   backend.Tokenizer
	info  registry.Model
}

// New constructs an Engine in the loading state. col may be nil to disable
// host metrics.
func New(cfg Config, loader backend.Loader, hub *broadcast.LogHub, col sysmetrics.Collector) *Engine {
	if hub == nil {
		hub = broadcast.NewLogHub(broadcast.DefaultCapacity)
	}
	return &Engine{
		cfg:    cfg.withDefaults(),
		loader: loader,
		hub:    hub,
		feed:   broadcast.NewMetricsFeed(),
		col:    col,
		gate:   gate.New(),
		pub:    noopPublisher{},
	}
}

// SetPublisher installs p; nil restores the no-op publisher.
func (e *Engine) SetPublisher(p EventPublisher) {
	if p == nil {
		p = noopPublisher{}
	}
	e.pub = p
}

// Logs returns the log hub.
func (e *Engine) Logs() *broadcast.LogHub { return e.hub }

// Feed returns the metrics subscriber feed.
func (e *Engine) Feed() *broadcast.MetricsFeed { return e.feed }

// Gate exposes the generation gate.
func (e *Engine) Gate() *gate.Gate { return e.gate }

// EngineName is the configured engine label.
func (e *Engine) EngineName() string { return e.cfg.EngineName }

// Model returns the resolved model, zero until loading started.
func (e *Engine) Model() registry.Model {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.info
}

func (e *Engine) backend() (backend.Model, backend.Tokenizer) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.model, e.tok
}

// Infof logs a line to the process log and the log stream.
func (e *Engine) Infof(format string, args ...any) { e.logf(zerolog.InfoLevel, format, args...) }

// Warnf logs a warning line to the process log and the log stream.
func (e *Engine) Warnf(format string, args ...any) { e.logf(zerolog.WarnLevel, format, args...) }

func (e *Engine) errorf(format string, args ...any) { e.logf(zerolog.ErrorLevel, format, args...) }

func (e *Engine) logf(lvl zerolog.Level, format string, args ...any) {
	line := fmt.Sprintf(format, args...)
	logx.Log.WithLevel(lvl).Msg(line)
	e.hub.Append(line)
}

// Close stops the backend.
func (e *Engine) Close() error {
	e.Infof("Shutting down...")
	if e.loader == nil {
		return nil
	}
	return e.loader.Close()
}
