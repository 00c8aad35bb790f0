package engine

import (
	"context"
	"fmt"
	"strings"
	"time"

	"llmgate/internal/registry"
)

type loadResult struct {
	err error
}

// Load resolves the model and runs the backend loader, logging progress every
// ProgressInterval. On failure the engine stays up in the failed state.
func (e *Engine) Load(ctx context.Context) error {
	e.pub.Publish(Event{Name: EventLoadStart})
	info, err := e.resolveModel()
	if err != nil {
		return e.loadFailed(err)
	}
	e.mu.Lock()
	e.info = info
	e.mu.Unlock()
	e.Infof("Loading model from %s...", info.Path)

	start := time.Now()
	done := make(chan loadResult, 1)
	go func() {
		model, tok, err := e.loader.Load(ctx, info.Path)
		if err == nil {
			e.mu.Lock()
			e.model, e.tok = model, tok
			e.mu.Unlock()
		}
		done <- loadResult{err: err}
	}()

	progress := newLoadProgress(e, info.SizeBytes)
	t := time.NewTicker(e.cfg.ProgressInterval)
	defer t.Stop()
	for {
		select {
		case res := <-done:
			if res.err != nil {
				return e.loadFailed(res.err)
			}
			elapsed := time.Since(start)
			e.gate.MarkReady()
			loadDuration.Set(elapsed.Seconds())
			e.Infof("Model loaded successfully")
			e.Infof("Loading time: %.2f seconds", elapsed.Seconds())
			e.pub.Publish(Event{Name: EventLoadReady, Fields: map[string]any{"path": info.Path, "seconds": elapsed.Seconds()}})
			e.feed.Notify()
			return nil
		case <-t.C:
			progress.report(ctx)
		}
	}
}

func (e *Engine) resolveModel() (registry.Model, error) {
	if e.cfg.Remote {
		info, err := registry.Resolve(e.cfg.ModelPath)
		if err != nil {
			// The attached server owns its model; the local path is a label.
			return registry.Model{Name: e.cfg.ModelPath, Path: e.cfg.ModelPath}, nil
		}
		return info, nil
	}
	return registry.Resolve(e.cfg.ModelPath)
}

func (e *Engine) loadFailed(err error) error {
	e.gate.MarkFailed(err)
	e.errorf("Model loading failed: %v", err)
	e.pub.Publish(Event{Name: EventLoadFailed, Fields: map[string]any{"error": err.Error()}})
	e.feed.Notify()
	return fmt.Errorf("load model: %w", err)
}

// loadProgress estimates load progress from the resident memory of the
// process holding the weights.
type loadProgress struct {
	e        *Engine
	total    int64
	baseline uint64
	lastPID  int
	last     float64
}

func newLoadProgress(e *Engine, total int64) *loadProgress {
	return &loadProgress{e: e, total: total, lastPID: -1}
}

func (p *loadProgress) report(ctx context.Context) {
	if p.e.col == nil {
		return
	}
	pid := 0
	if p.e.loader != nil {
		pid = p.e.loader.PID()
	}
	rss, err := p.e.col.RSS(ctx, pid)
	if err != nil {
		return
	}
	if pid != p.lastPID {
		// A child starts from nothing; this process already holds memory.
		p.lastPID = pid
		p.baseline = 0
		if pid == 0 {
			p.baseline = rss
		}
	}
	var loaded uint64
	if rss > p.baseline {
		loaded = rss - p.baseline
	}
	mb := float64(loaded) / 1024 / 1024
	if p.total <= 0 {
		if float64(loaded) > p.last {
			p.last = float64(loaded)
			p.e.Infof("Loading... (%.1f MB loaded)", mb)
		}
		return
	}
	pct := min(95, float64(loaded)/float64(p.total)*100)
	if pct <= p.last {
		return
	}
	p.last = pct
	p.e.Infof("Loading progress: [%s] %.1f%% (%.1f MB loaded)", progressBar(pct, 30), pct, mb)
}

func progressBar(pct float64, width int) string {
	filled := int(float64(width) * pct / 100)
	filled = max(0, min(width, filled))
	return strings.Repeat("█", filled) + strings.Repeat("░", width-filled)
}
