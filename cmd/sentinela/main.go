// Package main is the entry point for the reconciliation batch process.
// One invocation performs one full cycle over the pharmacy portfolio and
// exits; scheduling is left to cron or the job runner.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/cgu-sc/sentinela/internal/core/types"
	"github.com/cgu-sc/sentinela/internal/domain/batch"
	"github.com/cgu-sc/sentinela/internal/infrastructure/storage/postgres"
	"github.com/cgu-sc/sentinela/internal/infrastructure/storage/postgres/movement_repo"
	"github.com/cgu-sc/sentinela/internal/infrastructure/storage/postgres/run_repo"
	"github.com/cgu-sc/sentinela/pkg/logger"
)

func main() {
	log, err := logger.New(logger.Config{
		Level:       getEnv("LOG_LEVEL", "info"),
		Development: getEnv("APP_ENV", "development") == "development",
	})
	if err != nil {
		fmt.Printf("failed to initialize logger: %v\n", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	ctx = logger.WithLogger(ctx, log)

	// SIGINT/SIGTERM cancel the cycle; the in-flight pharmacy's run row is
	// left Running and swept to Failed on the next start.
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-quit
		log.Infow("shutdown signal received", "signal", sig.String())
		cancel()
	}()

	analysisStart, err := types.ParseDate(getEnv("ANALYSIS_START", "2015-01-01"))
	if err != nil {
		log.Fatalw("invalid ANALYSIS_START", "error", err)
	}
	periodEnd, err := types.ParseDate(mustEnv("PERIOD_END"))
	if err != nil {
		log.Fatalw("invalid PERIOD_END", "error", err)
	}

	log.Infow("starting sentinela batch",
		"analysis_start", analysisStart.String(),
		"period_end", periodEnd.String(),
	)

	pool, err := postgres.NewPool(ctx, postgres.DefaultPoolConfig(mustEnv("DATABASE_URL")))
	if err != nil {
		log.Fatalw("failed to connect to database", "error", err)
	}
	defer pool.Close()

	txm := postgres.NewTxManager(pool)
	movements := movement_repo.New(txm)
	runs := run_repo.New(txm)

	orchestrator := batch.NewOrchestrator(batch.Config{
		AnalysisStart: analysisStart,
		PeriodEnd:     periodEnd,
	}, movements, movements, runs, txm)

	report, err := orchestrator.Run(ctx)
	if err != nil {
		log.Fatalw("batch cycle aborted", "error", err)
	}

	postgres.LogPoolStats(ctx, pool.Pool)

	if report.Failed > 0 {
		os.Exit(2)
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func mustEnv(key string) string {
	value := os.Getenv(key)
	if value == "" {
		fmt.Printf("required environment variable %s not set\n", key)
		os.Exit(1)
	}
	return value
}
