// Flowline Engine — сервис выполнения workflows.
//
// Engine:
//   - Получает run.requested из RabbitMQ и подхватывает pending runs
//     из базы (polling fallback)
//   - Выполняет граф workflow: разрешение выражений, вызов провайдеров,
//     ветвление и skip-каскады
//   - Журналирует каждый шаг в ledger (Postgres)
//   - Обрабатывает запросы на отмену
//
// Несколько экземпляров engine могут работать параллельно:
// дубликат запуска отсекается атомарным захватом run в базе.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/shaiso/Flowline/internal/capability"
	"github.com/shaiso/Flowline/internal/catalog"
	"github.com/shaiso/Flowline/internal/engine"
	"github.com/shaiso/Flowline/internal/mq"
	"github.com/shaiso/Flowline/internal/orchestrator"
	"github.com/shaiso/Flowline/internal/repo"
	"github.com/shaiso/Flowline/internal/telemetry"
)

func main() {
	// Инициализируем structured logging
	logger := telemetry.SetupLogger()
	logger.Info("starting flowline-engine")

	// graceful shutdown
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// DB pool
	pool, err := repo.NewPool(ctx)
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer pool.Close()
	logger.Info("database connected")

	// Создаём репозитории
	workflowRepo := repo.NewWorkflowRepo(pool)
	executionRepo := repo.NewExecutionRepo(pool)
	credentialRepo := repo.NewCredentialRepo(pool)
	memoryStore := repo.NewMemoryStore(pool)

	// RabbitMQ
	var mqConn *mq.Connection
	mqURL := os.Getenv("RABBITMQ_URL")
	if mqURL == "" {
		mqURL = mq.DefaultURL()
	}

	mqConn, err = mq.Dial(mqURL, "flowline-engine", logger)
	if err != nil {
		logger.Warn("RabbitMQ not available, running in polling-only mode", "error", err)
		mqConn = nil
	} else {
		defer mqConn.Close()
		logger.Info("RabbitMQ connected")

		if err := mq.SetupTopology(ctx, mqConn); err != nil {
			logger.Warn("failed to setup topology", "error", err)
		}
	}

	// Создаём движок
	eng := engine.New(engine.Config{
		Catalog:     catalog.DefaultRegistry(),
		Providers:   capability.DefaultRegistry(memoryStore),
		Ledger:      executionRepo,
		Credentials: credentialRepo,
		Logger:      logger,
		RunTimeout:  envDuration("RUN_TIMEOUT", 10*time.Minute),
		NodeTimeout: envDuration("NODE_TIMEOUT", 2*time.Minute),
	})

	// Создаём orchestrator
	orch := orchestrator.New(orchestrator.Config{
		Workflows: workflowRepo,
		Runs:      executionRepo,
		Engine:    eng,
		Conn:      mqConn,
		Logger:    logger,
	})

	if err := orch.Start(ctx); err != nil {
		logger.Error("failed to start orchestrator", "error", err)
		os.Exit(1)
	}

	// HTTP mux: /healthz + /metrics
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	mux.Handle("/metrics", promhttp.Handler())

	port := ":8082"
	if v := os.Getenv("ENGINE_PORT"); v != "" {
		port = ":" + v
	}

	go func() {
		logger.Info("listening", "addr", port)
		if err := http.ListenAndServe(port, mux); err != nil {
			logger.Error("http server error", "error", err)
			cancel()
		}
	}()

	// Ожидаем сигнал завершения
	<-ctx.Done()

	orch.Stop()
	logger.Info("flowline-engine stopped")
}

func envDuration(name string, def time.Duration) time.Duration {
	v := os.Getenv(name)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return def
	}
	return d
}
