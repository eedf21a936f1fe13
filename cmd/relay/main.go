package main

import (
	"chat-relay/auth"
	"chat-relay/contract"
	"chat-relay/internal"
	"chat-relay/internal/logs"
	"chat-relay/observability"
	"chat-relay/persistence"
	"chat-relay/runtime"
	"chat-relay/runtime/workers"
	"chat-relay/transport/ws"
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Netflix/go-env"
	"github.com/joho/godotenv"
)

// Exit codes to provide meaningful status to the operating system or service manager (e.g., systemd).
const (
	exitOK      = 0
	exitRuntime = 1
	exitConfig  = 2
)

func main() {
	// The main function acts as a thin wrapper.
	// Its only responsibility is to call run() and handle the OS exit code.
	code, err := run()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Relay terminated with error: %v\n", err)
	}
	os.Exit(code)
}

// run initializes all components, manages the server lifecycle, and centralizes error reporting.
// This pattern is preferred over calling os.Exit or panic directly because:
// 1. It ensures all 'defer' statements are executed before the program exits.
// 2. It improves testability by decoupling the initialization logic from the main entry point.
// 3. It provides a structured way to handle graceful shutdowns for the HTTP server and workers.
func run() (int, error) {
	// 1. Configuration & Logger
	_ = godotenv.Load()

	var config internal.Config
	if _, err := env.UnmarshalFromEnviron(&config); err != nil {
		return exitConfig, fmt.Errorf("config error: %w", err)
	}

	logger := logs.GetLoggerFromString(config.LogLevel)

	// 2. Coordinator state. All of it is ephemeral: a restart loses
	// nothing but momentary presence/typing consistency, since persisted
	// messages live entirely behind the external API.
	monitor := observability.NewMonitor()
	registry := runtime.NewRegistry(logger)
	membership := runtime.NewMembership()
	presence := runtime.NewPresence(logger)
	typing := runtime.NewTyping(config.TypingWindow)

	var validator contract.RoomValidator
	if config.RequireRoomValidation {
		if config.PersistenceBaseURL == "" {
			return exitConfig, fmt.Errorf("REQUIRE_ROOM_VALIDATION needs PERSISTENCE_BASE_URL")
		}
		validator = persistence.NewClient(logger,
			config.PersistenceBaseURL, config.PersistenceToken, config.PersistenceTimeout)
	}

	router := runtime.NewRouter(logger, registry, membership, presence, typing,
		validator, monitor, config.BufferSize)

	// 3. Supervision: router, typing sweeper and telemetry run as
	// supervised workers; a panic restarts the worker, not the process.
	sup := workers.NewSupervisor(logger)
	sup.Add(router)
	sup.Add(workers.NewSweeper(logger, config.SweepInterval, router.Sweep))
	sup.Add(workers.NewTelemetry(logger, monitor, config.MetricInterval, registry.Len))

	// 4. Context & Signals
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errChan := make(chan error, 2)

	go func() {
		logger.Info("Starting supervised workers...")
		sup.Run(ctx)
	}()

	// 5. HTTP server: the WebSocket endpoint plus a liveness probe.
	var verifier *auth.Verifier
	if config.AuthSecret != "" {
		verifier = auth.NewVerifier(config.AuthSecret)
		logger.Info("Handshake token verification enabled")
	}

	handler := ws.NewHandler(logger, router, verifier, monitor, ws.Options{
		MaxMessageSize: config.MaxMessageSize,
		SinkBufferSize: config.ConnectionBufferSize,
	})

	mux := http.NewServeMux()
	mux.Handle("/ws", handler)
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	address := fmt.Sprintf("%s:%d", config.Host, config.Port)
	server := &http.Server{Addr: address, Handler: mux}

	go func() {
		logger.Info("Starting relay server", "address", address, "at", time.Now().UTC())
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- fmt.Errorf("http server error: %w", err)
		}
	}()

	// 6. Wait for Stop or Error
	select {
	case <-ctx.Done():
		logger.Info("Shutdown signal received")
	case err := <-errChan:
		return exitRuntime, err
	}

	// 7. Graceful Shutdown: stop accepting connections, then stop the
	// workers so in-flight cascades drain.
	logger.Info("Shutting down gracefully...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), config.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warn("HTTP shutdown incomplete", "error", err)
	}
	sup.Stop()
	logger.Info("Program stopped cleanly")

	return exitOK, nil
}
