package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/Netflix/go-env"
	"github.com/dgraph-io/badger/v4"
	"github.com/joho/godotenv"
	"github.com/mama165/sdk-go/logs"

	"gigspot/domain"
	"gigspot/feed"
	"gigspot/internal"
	"gigspot/repositories"
	"gigspot/runtime/workers"
	"gigspot/search"
	"gigspot/services"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Fatal error: %v\n", err)
		os.Exit(1)
	}
}

// run initializes all components, manages the host lifecycle, and
// centralizes error reporting, so that defers (database cleanup, feed
// teardown) always execute before the process exits.
func run() error {
	// 1. Configuration & Logger
	_ = godotenv.Load()
	var config internal.Config
	if _, err := env.UnmarshalFromEnviron(&config); err != nil {
		return fmt.Errorf("config error: %w", err)
	}
	log := logs.GetLoggerFromString(config.LogLevel)

	// 2. Storage (BadgerDB rows + Bluge discovery index)
	db, err := badger.Open(badger.DefaultOptions(config.BadgerFilepath).
		WithLoggingLevel(badger.WARNING))
	if err != nil {
		return fmt.Errorf("database opening failed: %w", err)
	}
	defer func() {
		log.Info("Closing BadgerDB...")
		_ = db.Close()
	}()

	index, err := search.Open(config.BlugeFilepath)
	if err != nil {
		return fmt.Errorf("search index opening failed: %w", err)
	}
	defer func() {
		log.Info("Closing search index...")
		_ = index.Close()
	}()

	// 3. Change feed & repositories
	broker := feed.NewBroker(log, config.FeedBufferSize)
	defer broker.Close()
	messages := repositories.NewMessageRepository(db, log, broker, config.HistoryPage)
	entities := repositories.NewEntityRepository(db)

	// 4. Messaging core
	resolver := services.NewEntityResolver(log, entities)
	aggregator := services.NewConversationAggregator(log, messages, resolver)
	adapter := services.NewMessageStoreAdapter(log, messages)
	synchronizer := services.NewSynchronizer(log, broker, resolver)
	reads := services.NewReadStateTracker(log, messages, aggregator)

	notify := func(msg domain.Message) {
		log.Info("New message", "from", msg.SenderName, "preview", preview(msg.Content))
	}
	session := services.NewSession(log, resolver, aggregator, adapter, synchronizer, reads, notify)

	// 5. Context & signals
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := session.Open(ctx, config.AccountID); err != nil {
		return fmt.Errorf("session open failed: %w", err)
	}
	defer func() {
		_ = session.Close()
	}()
	log.Info("Messaging session open", "viewer", session.Viewer().String())

	// 6. Row inspector & supervised workers
	internal.StartDebugServer(db, config.DebugPort, "/inspect", internal.MessageMapper, func() map[string]any {
		return map[string]any{
			"Viewer": session.Viewer().String(),
			"Feed":   synchronizer.State().String(),
		}
	})
	log.Info("Row inspector started", "url", fmt.Sprintf("http://localhost:%d/inspect", config.DebugPort))

	supervisor := workers.NewSupervisor(log, config.RestartInterval)
	supervisor.Add(workers.NewHeartbeatWorker(log, config.HeartbeatInterval))
	go supervisor.Run(ctx)

	// 7. Wait for stop
	<-ctx.Done()
	log.Info("Shutting down gracefully...")
	supervisor.Stop()
	log.Info("Program stopped cleanly")
	return nil
}

func preview(content string) string {
	const max = 40
	if len(content) <= max {
		return content
	}
	return content[:max] + "..."
}
