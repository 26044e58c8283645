package main

import (
	"context"
	"fmt"
	"log"
	"os"

	"github.com/dgraph-io/badger/v4"
	"github.com/gookit/color"
	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"github.com/olekukonko/tablewriter"

	"gigspot/domain"
	"gigspot/repositories"
	"gigspot/services"

	"log/slog"
)

// Config of the standalone inbox viewer.
type Config struct {
	BadgerFilepath string `envconfig:"BADGER_FILEPATH" required:"true"`
	AccountID      string `envconfig:"ACCOUNT_ID" required:"true"`
	Colours        bool   `envconfig:"INBOX_COLOURS" default:"true"`
}

func main() {
	// 1. Load config
	_ = godotenv.Load()
	var config Config
	if err := envconfig.Process("", &config); err != nil {
		log.Fatalf("Config error: %v", err)
	}

	// 2. Open Badger in read-only mode.
	// BypassLockGuard allows opening while the messenger holds the lock.
	opts := badger.DefaultOptions(config.BadgerFilepath).
		WithReadOnly(true).
		WithBypassLockGuard(true).
		WithLoggingLevel(badger.WARNING)
	db, err := badger.Open(opts)
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}
	defer db.Close()

	// 3. Resolve the viewer and load the grouped inbox.
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
	entities := repositories.NewEntityRepository(db)
	messages := repositories.NewMessageRepository(db, logger, nil, nil)
	resolver := services.NewEntityResolver(logger, entities)
	aggregator := services.NewConversationAggregator(logger, messages, resolver)

	ctx := context.Background()
	viewer, err := resolver.ActingEntity(ctx, config.AccountID)
	if err != nil {
		log.Fatalf("No acting entity: %v", err)
	}

	groups, err := aggregator.All(ctx, viewer)
	if err != nil {
		log.Fatalf("Inbox load failed: %v", err)
	}

	if config.Colours {
		color.Bold.Printf("Inbox of %s\n\n", viewer.String())
	} else {
		fmt.Printf("Inbox of %s\n\n", viewer.String())
	}

	for _, t := range domain.EntityTypes() {
		render(t, groups[t], config.Colours)
	}
}

func render(t domain.EntityType, conversations []domain.Conversation, colours bool) {
	header := fmt.Sprintf("%s (%d)", t, len(conversations))
	if colours {
		color.Green.Println(header)
	} else {
		fmt.Println(header)
	}
	if len(conversations) == 0 {
		fmt.Print("  no conversations\n\n")
		return
	}

	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"Counterpart", "Last message", "At", "Unread"})
	for _, c := range conversations {
		name := c.OtherName
		if name == "" {
			name = c.Other.ID
		}
		unread := fmt.Sprintf("%d", c.Unread)
		if colours && c.Unread > 0 {
			unread = color.Red.Sprintf("%d", c.Unread)
		}
		table.Append([]string{
			name,
			truncate(c.LastMessage, 48),
			c.LastMessageAt.Format("2006-01-02 15:04"),
			unread,
		})
	}
	table.Render()
	fmt.Println()
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}
