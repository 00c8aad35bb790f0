package main

import (
	"context"
	"flag"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"llmgate/internal/backend/llamaserver/llamatest"
)

func main() {
	var model, host, port, ctxSize, ngl, threads, apiKey string
	// Accept the subset of llama-server flags the spawner passes.
	flag.StringVar(&model, "m", "", "model path")
	flag.StringVar(&host, "host", "127.0.0.1", "host")
	flag.StringVar(&port, "port", "0", "port")
	flag.StringVar(&ctxSize, "c", "", "context size")
	flag.StringVar(&ngl, "ngl", "", "gpu layers")
	flag.StringVar(&threads, "t", "", "threads")
	flag.StringVar(&apiKey, "api-key", "", "api key")
	flag.Parse()

	fake := llamatest.New("fake reply from " + model)
	srv := &http.Server{Addr: net.JoinHostPort(host, port), Handler: fake.Handler()}
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server error: %v", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)
	<-sigCh
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_ = srv.Shutdown(ctx)
}
