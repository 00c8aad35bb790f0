package httpapi

import (
	"context"

	"llmgate/internal/broadcast"
	"llmgate/internal/engine"
	"llmgate/internal/gate"
	"llmgate/internal/stream"
	"llmgate/pkg/types"
)

// Service defines the methods required by the HTTP API layer.
type Service interface {
	Health() types.HealthResponse
	Metrics(ctx context.Context) types.MetricsSnapshot
	// Admissible reports, without side effects, why a generation would be
	// rejected right now.
	Admissible() error
	// Admit takes the generation slot for req.
	Admit(req engine.Request) (Runner, error)
	Tokenize(ctx context.Context, req types.TokenizeRequest) (types.TokenizeResponse, error)
	Logs() *broadcast.LogHub
	Feed() *broadcast.MetricsFeed
	Warnf(format string, args ...any)
}

// Runner is an admitted generation.
type Runner interface {
	Run(ctx context.Context, w stream.Writer) engine.Result
	Release()
}

// FromEngine adapts an Engine to Service.
func FromEngine(e *engine.Engine) Service { return engineService{e} }

type engineService struct{ *engine.Engine }

func (s engineService) Admissible() error {
	g := s.Gate()
	if err := g.ReadyErr(); err != nil {
		return err
	}
	if g.Snapshot().Processing {
		return gate.ErrBusy
	}
	return nil
}

func (s engineService) Admit(req engine.Request) (Runner, error) {
	g, err := s.Start(req)
	if err != nil {
		return nil, err
	}
	return g, nil
}
