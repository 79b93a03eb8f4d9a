package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"

	"invoice-backend/internal/bootstrap"
	"invoice-backend/internal/shared/config"
	"invoice-backend/internal/shared/server"
)

func main() {
	cfg := config.Load()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	app, err := bootstrap.Build(ctx, cfg)
	if err != nil {
		log.Fatalf("bootstrap error: %v", err)
	}
	defer app.Close()

	go app.Scheduler.Run(ctx)

	r := server.NewRouter(app)
	addr := server.Addr(cfg.Port)
	log.Printf("Starting API server on %s", addr)

	if err := r.Run(addr); err != nil {
		log.Fatalf("server error: %v", err)
	}
}
