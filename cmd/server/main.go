// Command server runs the vibefeed engagement and realtime API.
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"vibefeed/internal/bootstrap"
	"vibefeed/internal/config"
	"vibefeed/internal/middleware"
	"vibefeed/internal/observability"
	"vibefeed/internal/server"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	shutdownTracing, err := observability.InitTracing(observability.TracingConfig{
		ServiceName:    "vibefeed-api",
		ServiceVersion: "1.0.0",
		Environment:    cfg.Env,
		Enabled:        cfg.TracingEnabled,
		Exporter:       cfg.TracingExporter,
		OTLPEndpoint:   cfg.OTLPEndpoint,
		SamplerRatio:   cfg.TracingSamplerRatio,
	})
	if err != nil {
		log.Fatalf("Failed to initialize tracing: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rt, err := bootstrap.InitRuntime(ctx, cfg)
	if err != nil {
		log.Fatalf("Failed to initialize runtime: %v", err)
	}

	srv, err := server.NewServerWithDeps(cfg, rt.DB, rt.Redis, rt.ServerOptions()...)
	if err != nil {
		log.Fatalf("Failed to create server: %v", err)
	}

	tree := bootstrap.NewTree(middleware.Logger, bootstrap.TreeConfig{})
	tree.AddServer(srv)

	if err := tree.Serve(ctx); err != nil && ctx.Err() == nil {
		middleware.Logger.Error("supervisor exited", "error", err)
	}
	middleware.Logger.Info("Shutting down...")

	cleanupCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if report, err := tree.UnstoppedServiceReport(); err == nil && len(report) > 0 {
		middleware.Logger.Warn("services did not stop cleanly", "count", len(report))
	}
	rt.Close(cleanupCtx)
	if err := shutdownTracing(cleanupCtx); err != nil {
		middleware.Logger.Error("tracing shutdown failed", "error", err)
	}
}
