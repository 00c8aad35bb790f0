// Package gate serializes access to the backend: at most one generation runs
// at a time and every other request is rejected immediately, never queued.
//
// The gate moves through Loading -> Ready -> Busy -> Ready, or
// Loading -> Failed when the model cannot be loaded.
package gate

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// Phase is the coarse server state.
type Phase string

const (
	PhaseLoading Phase = "loading"
	PhaseReady   Phase = "ready"
	PhaseBusy    Phase = "busy"
	PhaseFailed  Phase = "failed"
)

// State is a consistent copy of the gate counters.
type State struct {
	Phase                Phase
	Ready                bool
	Processing           bool
	QueueLength          int
	GenerationID         string
	TokensGenerated      int
	TokensGeneratedTotal int64
	GenerationStart      time.Time
	TPS                  float64
	LoadErr              error
}

// Gate owns the process-wide generation state.
type Gate struct {
	mu      sync.Mutex
	phase   Phase
	loadErr error
	lease   *Lease
	tokens  int
	total   int64
	start   time.Time
	now     func() time.Time
}

// New returns a gate in the Loading phase.
func New() *Gate {
	return &Gate{phase: PhaseLoading, now: time.Now}
}

// MarkReady records a successful load.
func (g *Gate) MarkReady() {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.phase == PhaseLoading {
		g.phase = PhaseReady
	}
}

// MarkFailed records a failed load. The gate then rejects every Acquire.
func (g *Gate) MarkFailed(err error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.phase == PhaseLoading {
		g.phase = PhaseFailed
		g.loadErr = err
	}
}

// Acquire takes the single generation slot without blocking.
func (g *Gate) Acquire() (*Lease, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	switch g.phase {
	case PhaseLoading:
		return nil, ErrLoading
	case PhaseFailed:
		return nil, failedError{cause: g.loadErr}
	case PhaseBusy:
		return nil, ErrBusy
	}
	l := &Lease{g: g, id: uuid.NewString()}
	g.lease = l
	g.phase = PhaseBusy
	g.tokens = 0
	g.start = g.now()
	return l, nil
}

// ReadyErr returns nil once the model is loaded, otherwise the error Acquire
// would report for the current phase.
func (g *Gate) ReadyErr() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	switch g.phase {
	case PhaseLoading:
		return ErrLoading
	case PhaseFailed:
		return failedError{cause: g.loadErr}
	}
	return nil
}

// Snapshot returns the current state. TPS is zero when nothing runs.
func (g *Gate) Snapshot() State {
	g.mu.Lock()
	defer g.mu.Unlock()
	s := State{
		Phase:                g.phase,
		Ready:                g.phase == PhaseReady || g.phase == PhaseBusy,
		Processing:           g.lease != nil,
		TokensGenerated:      g.tokens,
		TokensGeneratedTotal: g.total,
		GenerationStart:      g.start,
		LoadErr:              g.loadErr,
	}
	if g.lease != nil {
		s.QueueLength = 1
		s.GenerationID = g.lease.id
		if elapsed := g.now().Sub(g.start).Seconds(); elapsed > 0 {
			s.TPS = float64(g.tokens) / elapsed
		}
	}
	return s
}

// Lease is the right to run one generation.
type Lease struct {
	g        *Gate
	id       string
	released bool
}

// ID identifies the generation in logs.
func (l *Lease) ID() string { return l.id }

// RecordToken counts one produced token. It is a no-op after Release.
func (l *Lease) RecordToken() {
	g := l.g
	g.mu.Lock()
	defer g.mu.Unlock()
	if l.released {
		return
	}
	g.tokens++
	g.total++
}

// Tokens returns the tokens recorded by this lease so far.
func (l *Lease) Tokens() int {
	g := l.g
	g.mu.Lock()
	defer g.mu.Unlock()
	if l.released {
		return 0
	}
	return g.tokens
}

// Release frees the slot. Calling it more than once is safe.
func (l *Lease) Release() {
	g := l.g
	g.mu.Lock()
	defer g.mu.Unlock()
	if l.released {
		return
	}
	l.released = true
	g.lease = nil
	g.phase = PhaseReady
	g.tokens = 0
	g.start = time.Time{}
}
