package engine

import (
	"context"

	"llmgate/internal/gate"
	"llmgate/internal/logx"
	"llmgate/internal/sysmetrics"
	"llmgate/pkg/types"
)

// Health reports ready, loading or failed.
func (e *Engine) Health() types.HealthResponse {
	s := e.gate.Snapshot()
	resp := types.HealthResponse{Engine: e.cfg.EngineName}
	switch s.Phase {
	case gate.PhaseReady, gate.PhaseBusy:
		resp.Status = "ready"
	case gate.PhaseFailed:
		resp.Status = "failed"
		if s.LoadErr != nil {
			resp.Error = s.LoadErr.Error()
		}
	default:
		resp.Status = "loading"
	}
	return resp
}

// Metrics combines gate counters with host readouts. Collection failures
// yield zero readouts rather than an error.
func (e *Engine) Metrics(ctx context.Context) types.MetricsSnapshot {
	s := e.gate.Snapshot()
	out := types.MetricsSnapshot{
		Ready:          s.Ready,
		Processing:     s.Processing,
		QueueLength:    s.QueueLength,
		Engine:         e.cfg.EngineName,
		TPS:            s.TPS,
		PredictedTotal: s.TokensGeneratedTotal,
	}
	if e.col == nil {
		out.SystemMetrics = sysmetrics.Fallback()
		return out
	}
	cctx, cancel := context.WithTimeout(ctx, defaultMetricsTimeout)
	defer cancel()
	sm, err := e.col.Collect(cctx)
	if err != nil {
		logx.Log.Warn().Err(err).Msg("failed to get system metrics")
		sm = sysmetrics.Fallback()
	}
	out.SystemMetrics = sm
	return out
}
