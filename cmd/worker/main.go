package main

// Consumes job-start messages from SQS and starts analysis jobs. Deployed
// alongside cmd/api when IB_SQS_QUEUE_URL is configured.

import (
	"context"
	"log"
	"os/signal"
	"syscall"
	"time"

	"invoice-backend/internal/bootstrap"
	"invoice-backend/internal/queue"
	"invoice-backend/internal/shared/config"
	"invoice-backend/internal/shared/telemetry"
)

const receiveBatchSize = 10

func main() {
	cfg := config.Load()
	if cfg.SQSQueueURL == "" {
		log.Fatal("IB_SQS_QUEUE_URL is required for the worker")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	app, err := bootstrap.Build(ctx, cfg)
	if err != nil {
		log.Fatalf("bootstrap error: %v", err)
	}
	defer app.Close()

	client, err := queue.NewSQSClient(ctx, cfg.AWSRegion, cfg.SQSQueueURL)
	if err != nil {
		log.Fatalf("queue client error: %v", err)
	}

	telemetry.Info("worker.started", map[string]any{"queue_url": cfg.SQSQueueURL})
	for ctx.Err() == nil {
		received, err := client.Receive(ctx, receiveBatchSize)
		if err != nil {
			if ctx.Err() != nil {
				break
			}
			telemetry.Error("worker.receive_failed", map[string]any{"error": err.Error()})
			time.Sleep(5 * time.Second)
			continue
		}

		for _, msg := range received {
			if err := app.Documents.StartAnalysis(ctx, msg.Message.DocumentID); err != nil {
				telemetry.Error("worker.start_failed", map[string]any{
					"document_id": msg.Message.DocumentID,
					"request_id":  msg.Message.RequestID,
					"error":       err.Error(),
				})
				// The record was marked failed or is gone; either way the
				// message is spent.
			}
			if err := client.Delete(ctx, msg.ReceiptHandle); err != nil {
				telemetry.Error("worker.delete_failed", map[string]any{
					"document_id": msg.Message.DocumentID,
					"error":       err.Error(),
				})
			}
		}
	}
	telemetry.Info("worker.stopped", nil)
}
