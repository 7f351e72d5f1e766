package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Netflix/go-env"
	"github.com/dgraph-io/badger/v4"
	"github.com/joho/godotenv"

	"care-relay/api"
	"care-relay/contract"
	"care-relay/internal"
	"care-relay/moderation"
	"care-relay/observability"
	"care-relay/push"
	"care-relay/repositories"
	"care-relay/runtime"
	"care-relay/search"
	"care-relay/services"
	"care-relay/ws"
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
// Deferred cleanups (database, index) always execute before the process exits.
func run() (int, error) {
	_ = godotenv.Load()

	var config internal.Config
	if _, err := env.UnmarshalFromEnviron(&config); err != nil {
		return exitConfig, fmt.Errorf("config error: %w", err)
	}
	charReplacement, err := internal.CharacterRune(config.CharReplacement)
	if err != nil {
		return exitConfig, err
	}

	logger := internal.LoggerFromString(config.LogLevel)
	ctx := context.Background()

	// Storage (BadgerDB)
	db, err := badger.Open(buildBadgerOpts(config, logger, ctx))
	if err != nil {
		return exitRuntime, fmt.Errorf("database opening failed: %w", err)
	}
	defer func() {
		logger.Info("Closing BadgerDB...")
		_ = db.Close()
	}()

	// Full-text index (Bluge)
	index, err := search.NewMessageIndex(config.BlugeFilepath, logger)
	if err != nil {
		return exitRuntime, fmt.Errorf("failed to open message index: %w", err)
	}
	defer func() {
		logger.Info("Closing Bluge...")
		_ = index.Close()
	}()

	words, err := internal.LoadCensoredWords(config.CensoredWordsFile)
	if err != nil {
		return exitConfig, err
	}
	moderator, err := moderation.NewModerator(words, charReplacement)
	if err != nil {
		return exitConfig, fmt.Errorf("building moderator: %w", err)
	}

	var dispatcher contract.IPushDispatcher = push.NoopDispatcher{}
	if config.PushEndpoint != "" {
		dispatcher = push.NewWebhookDispatcher(config.PushEndpoint, config.PushTimeout, logger)
	}

	// Repositories
	messages, err := repositories.NewMessageRepository(db, logger, config.LimitMessages)
	if err != nil {
		return exitRuntime, err
	}
	defer func() {
		_ = messages.Close()
	}()
	conversations := repositories.NewConversationRepository(db, logger)
	notifications := repositories.NewNotificationRepository(db, logger)
	calls := repositories.NewVideoCallRepository(db, logger)

	// Services
	registry := runtime.NewRegistry()
	stats := observability.NewStats()
	notifier := services.NewNotificationService(notifications, registry, dispatcher, stats, logger)
	chat := services.NewChatService(messages, conversations, registry, notifier, moderator, index, stats, logger)
	callService := services.NewCallService(registry, calls, notifier, stats, logger)

	// Transport
	hub := ws.NewHub(registry, chat, callService, config.ConnectionBufferSize, config.HubQueueSize, logger)
	handlers := api.NewHandlers(chat, callService, notifier, registry, stats, logger)
	router := api.NewRouter(handlers, hub.ServeWS)

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	go hub.Run(ctx)

	server := &http.Server{
		Addr:    config.Addr(),
		Handler: router,
	}
	errChan := make(chan error, 1)
	go func() {
		logger.Info("Starting relay server", "address", config.Addr(), "at", time.Now().UTC())
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- fmt.Errorf("http server error: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
		logger.Info("Shutdown signal received")
	case err := <-errChan:
		return exitRuntime, err
	}

	logger.Info("Shutting down gracefully...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return exitRuntime, fmt.Errorf("http shutdown: %w", err)
	}
	logger.Info("Program stopped cleanly")

	return exitOK, nil
}

func buildBadgerOpts(config internal.Config, logger *slog.Logger, ctx context.Context) badger.Options {
	options := badger.DefaultOptions(config.BadgerFilepath)

	if logger.Enabled(ctx, slog.LevelDebug) {
		options = options.WithLoggingLevel(badger.DEBUG).
			WithBypassLockGuard(true)
	} else {
		options = options.WithLoggingLevel(badger.WARNING)
	}

	return options
}
