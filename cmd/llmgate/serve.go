package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"llmgate/internal/backend"
	"llmgate/internal/backend/llamaserver"
	"llmgate/internal/broadcast"
	"llmgate/internal/broadcast/redismirror"
	"llmgate/internal/config"
	"llmgate/internal/engine"
	"llmgate/internal/httpapi"
	"llmgate/internal/logx"
	"llmgate/internal/sysmetrics"
)

const shutdownTimeout = 5 * time.Second

// newLoader spawns llama-server unless a backend URL is configured.
func newLoader(cfg config.Config) backend.Loader {
	if cfg.BackendURL != "" {
		return &llamaserver.Attach{URL: cfg.BackendURL, APIKey: cfg.BackendAPIKey, ReadyTimeout: cfg.ReadyTimeout.Std()}
	}
	return llamaserver.NewSpawner(llamaserver.SpawnConfig{
		Bin:          cfg.LlamaBin,
		Host:         cfg.LlamaHost,
		PortStart:    cfg.LlamaPortStart,
		PortEnd:      cfg.LlamaPortEnd,
		CtxSize:      cfg.LlamaCtxSize,
		NGL:          cfg.LlamaNGL,
		Threads:      cfg.LlamaThreads,
		ExtraArgs:    cfg.LlamaExtraArgs,
		APIKey:       cfg.BackendAPIKey,
		ReadyTimeout: cfg.ReadyTimeout.Std(),
	})
}

// serve runs the gateway until ctx ends. The model loads in the background
// while health, logs and metrics are already served. A nil ln listens on
// cfg.Addr.
func serve(ctx context.Context, cfg config.Config, ln net.Listener) error {
	logx.Configure(cfg.LogLevel)
	httpapi.SetLogger(logx.Log)

	hub := broadcast.NewLogHub(cfg.LogCapacity)
	if cfg.LogRedisURL != "" {
		m, err := redismirror.New(ctx, cfg.LogRedisURL, cfg.LogRedisKey, cfg.LogCapacity)
		if err != nil {
			logx.Log.Warn().Err(err).Msg("log mirror disabled")
		} else {
			hub.SetMirror(m)
			defer m.Close()
		}
	}

	loader := newLoader(cfg)
	eng := engine.New(engine.Config{
		EngineName:  cfg.EngineName,
		ModelPath:   cfg.ModelPath,
		Remote:      cfg.BackendURL != "",
		StepTimeout: cfg.StepTimeout.Std(),
	}, loader, hub, sysmetrics.NewHost(loader.PID))

	httpapi.SetMaxBodyBytes(cfg.MaxBodyBytes)
	httpapi.SetStreamOptions(cfg.LogBacklog, cfg.MetricsInterval.Std())
	httpapi.SetCORSOptions(cfg.CORS(), cfg.CORSAllowedOrigins)
	httpapi.SetBaseContext(ctx)

	if ln == nil {
		var err error
		if ln, err = net.Listen("tcp", cfg.Addr); err != nil {
			return err
		}
	}
	srv := &http.Server{
		Handler:           httpapi.NewMux(httpapi.FromEngine(eng)),
		ReadHeaderTimeout: 10 * time.Second,
	}
	eng.Infof("Starting llmgate on %s...", ln.Addr())

	loadCtx, cancelLoad := context.WithCancel(ctx)
	loaded := make(chan struct{})
	go func() {
		defer close(loaded)
		// A failed load leaves the server up in the failed state.
		_ = eng.Load(loadCtx)
	}()

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Serve(ln) }()

	var serveErr error
	select {
	case <-ctx.Done():
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			serveErr = err
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logx.Log.Warn().Err(err).Msg("graceful shutdown error")
	}
	cancelLoad()
	<-loaded
	if err := eng.Close(); err != nil {
		logx.Log.Warn().Err(err).Msg("backend shutdown error")
	}
	return serveErr
}
