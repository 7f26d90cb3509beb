package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/kroma-labs/courier-go/example/httpclient/internal/api"
	"github.com/kroma-labs/courier-go/example/httpclient/internal/config"
	"github.com/kroma-labs/courier-go/example/httpclient/internal/telemetry"
	"github.com/kroma-labs/courier-go/example/httpclient/internal/upstream"
	"github.com/kroma-labs/courier-go/httpclient"
	"github.com/rs/zerolog"

	"go.opentelemetry.io/otel"
)

func main() {
	ctx := context.Background()

	// 1. Setup OpenTelemetry (Tracing + Metrics)
	shutdownTracing, shutdownMetrics, err := telemetry.Setup(ctx)
	if err != nil {
		log.Fatalf("Failed to setup OTel: %v", err)
	}
	defer func() {
		shutdownTracing(ctx)
		shutdownMetrics(ctx)
	}()

	// 2. Start Prometheus Metrics Server
	metricsServer := &http.Server{Addr: config.MetricsPort}
	go func() {
		log.Printf("Starting Prometheus metrics server on %s", config.MetricsPort)
		if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Metrics server failed: %v", err)
		}
	}()

	// 3. Start the flaky upstream the client talks to
	upstreamServer := &http.Server{Addr: config.UpstreamAddr, Handler: upstream.Handler(config.FailureRate)}
	go func() {
		if err := upstreamServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Upstream server failed: %v", err)
		}
	}()

	// 4. Build the API client
	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()
	client := api.New("http://"+config.UpstreamAddr, logger)

	tracer := otel.Tracer("example-app")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	ticker := time.NewTicker(time.Duration(config.OperationInterval) * time.Second)
	defer ticker.Stop()

	fmt.Println("✅ HTTP client example app started!")
	fmt.Println("📊 Prometheus metrics: http://localhost:2112/metrics")
	fmt.Println("Press Ctrl+C to stop...")

	for {
		select {
		case <-ticker.C:
			ctx, span := tracer.Start(ctx, "api-operations")

			for _, id := range []string{"1", "2", "3", "404"} {
				user, err := client.GetUser(ctx, id)
				switch {
				case err == nil:
					log.Printf("Fetched user %s (%s)", user.Name, user.Email)
				case httpclient.KindOf(err) == httpclient.KindUnacceptableStatus:
					log.Printf("User %s not found: %v", id, err)
				default:
					log.Printf("Failed to get user %s: %v", id, err)
				}
			}

			if n, err := client.Export(ctx); err != nil {
				log.Printf("Failed to export users: %v", err)
			} else {
				log.Printf("Exported %d bytes", n)
			}

			span.End()
			log.Println("✓ API operations completed")

		case <-sigChan:
			fmt.Println("\n🛑 Shutting down gracefully...")
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := metricsServer.Shutdown(ctx); err != nil {
				log.Printf("Metrics server shutdown error: %v", err)
			}
			if err := upstreamServer.Shutdown(ctx); err != nil {
				log.Printf("Upstream server shutdown error: %v", err)
			}
			return
		}
	}
}
