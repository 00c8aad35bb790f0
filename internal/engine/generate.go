package engine

import (
	"context"
	"errors"
	"io"
	"strings"
	"time"

	"llmgate/internal/backend"
	"llmgate/internal/decoder"
	"llmgate/internal/gate"
	"llmgate/internal/logx"
	"llmgate/internal/stream"
)

// Outcomes recorded per finished generation.
const (
	OutcomeEOS          = "eos"
	OutcomeLimit        = "limit"
	OutcomeStop         = "stop"
	OutcomeError        = "error"
	OutcomeDisconnected = "disconnected"
)

// Result summarizes a finished generation.
type Result struct {
	Tokens  int
	Outcome string
	Err     error
}

// Generation is an admitted request holding the gate lease.
type Generation struct {
	e     *Engine
	lease *gate.Lease
	req   Request
}

// Start admits req. It fails fast with a gate error when the model is not
// ready or another generation runs; nothing changes state in that case.
func (e *Engine) Start(req Request) (*Generation, error) {
	if err := req.validate(); err != nil {
		return nil, err
	}
	lease, err := e.gate.Acquire()
	if err != nil {
		return nil, err
	}
	e.feed.Notify()
	return &Generation{e: e, lease: lease, req: req}, nil
}

// ID identifies the generation.
func (g *Generation) ID() string { return g.lease.ID() }

// Release frees the gate without running. Safe to call after Run.
func (g *Generation) Release() {
	g.lease.Release()
	g.e.feed.Notify()
}

// Run streams the generation to w and always releases the gate. A write
// failure ends the generation silently.
func (g *Generation) Run(ctx context.Context, w stream.Writer) Result {
	defer g.Release()
	e := g.e
	start := time.Now()
	e.pub.Publish(Event{Name: EventGenerationStart, GenerationID: g.ID(), Fields: map[string]any{"mode": g.req.Mode.String()}})

	res := g.run(ctx, w)

	generationsTotal.WithLabelValues(res.Outcome).Inc()
	generationDuration.Observe(time.Since(start).Seconds())
	fields := map[string]any{"tokens": res.Tokens, "outcome": res.Outcome}
	if res.Err != nil {
		fields["error"] = res.Err.Error()
	}
	e.pub.Publish(Event{Name: EventGenerationEnd, GenerationID: g.ID(), Fields: fields})
	return res
}

func (g *Generation) run(ctx context.Context, w stream.Writer) Result {
	e := g.e
	model, tok := e.backend()
	if model == nil || tok == nil {
		return g.fail(w, 0, errNotLoaded)
	}

	prompt := g.req.Prompt
	if g.req.Mode == ModeChat {
		rendered, err := tok.ApplyChatTemplate(ctx, []backend.Message{{Role: "user", Content: prompt}})
		if err != nil {
			logx.Log.Debug().Err(err).Msg("chat template unavailable; using raw prompt")
		} else {
			prompt = rendered
		}
	}
	ids, err := tok.Encode(ctx, prompt, true)
	if err != nil {
		return g.fail(w, 0, err)
	}

	sampler := backend.SamplerConfig{
		Temperature: g.req.Temperature,
		TopP:        g.req.TopP,
		MinP:        g.req.MinP,
		MaxTokens:   g.req.MaxTokens,
	}
	var procs []backend.Processor
	if g.req.RepeatPenalty != 1.0 {
		procs = append(procs, backend.RepetitionPenalty{Penalty: g.req.RepeatPenalty, LastN: g.req.RepeatLastN})
	}
	st, err := model.Start(ctx, ids, sampler, procs...)
	if err != nil {
		if ctx.Err() != nil {
			return g.disconnected(0)
		}
		return g.fail(w, 0, err)
	}
	defer st.Close()

	logx.Log.Debug().Str("generation", g.ID()).Int("prompt_tokens", len(ids)).Str("mode", g.req.Mode.String()).Msg("generation started")

	dec := decoder.New(tok)
	eos := tok.EOS()
	count := 0
	outcome := OutcomeLimit
	for g.req.MaxTokens < 0 || count < g.req.MaxTokens {
		step, err := g.next(ctx, st)
		if errors.Is(err, io.EOF) {
			outcome = OutcomeEOS
			break
		}
		if err != nil {
			if ctx.Err() != nil {
				return g.disconnected(count)
			}
			return g.fail(w, count, err)
		}
		if step.ID == eos {
			outcome = OutcomeEOS
			break
		}

		emitted := len(dec.Text())
		delta := dec.Push(ctx, step.ID)
		count++
		g.lease.RecordToken()
		tokensTotal.Inc()
		if delta != "" {
			if err := w.Token(delta); err != nil {
				return g.disconnected(count)
			}
			if containsStop(dec.Text(), emitted, g.req.Stop) {
				outcome = OutcomeStop
				break
			}
		}
		if count%5 == 0 {
			e.feed.Notify()
		}
		if count%10 == 0 {
			e.Infof("Generated %d tokens...", count)
		}
	}

	if outcome != OutcomeStop {
		if tail := dec.Flush(ctx); tail != "" {
			if err := w.Token(tail); err != nil {
				return g.disconnected(count)
			}
		}
	}
	if err := w.Done(reasonFor(outcome)); err != nil {
		return g.disconnected(count)
	}
	e.Infof("Generation completed: %d tokens", count)
	return Result{Tokens: count, Outcome: outcome}
}

// next pulls one step, bounded by the step timeout when configured.
func (g *Generation) next(ctx context.Context, st backend.Stepper) (backend.Step, error) {
	timeout := g.e.cfg.StepTimeout
	if timeout <= 0 {
		return st.Next(ctx)
	}
	sctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	step, err := st.Next(sctx)
	if err != nil && ctx.Err() == nil && errors.Is(err, context.DeadlineExceeded) {
		return step, errors.New("backend step timed out after " + timeout.String())
	}
	return step, err
}

func (g *Generation) fail(w stream.Writer, count int, err error) Result {
	msg := "Generation failed: " + err.Error()
	g.e.errorf("%s", msg)
	_ = w.Error(msg)
	return Result{Tokens: count, Outcome: OutcomeError, Err: err}
}

func (g *Generation) disconnected(count int) Result {
	g.e.Warnf("Client disconnected after %d tokens", count)
	return Result{Tokens: count, Outcome: OutcomeDisconnected}
}

func reasonFor(outcome string) string {
	switch outcome {
	case OutcomeEOS:
		return stream.ReasonEOS
	case OutcomeStop:
		return stream.ReasonStop
	}
	return stream.ReasonLimit
}

// containsStop reports whether any stop string occurs in text at a position
// that overlaps the part emitted after offset from.
func containsStop(text string, from int, stops []string) bool {
	for _, s := range stops {
		start := max(0, from-len(s)+1)
		if strings.Contains(text[start:], s) {
			return true
		}
	}
	return false
}
