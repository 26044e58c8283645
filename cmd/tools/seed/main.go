// Command seed populates a local Badger store and Bluge index with
// demo identities and conversations, so the messenger and inbox
// binaries have something to show.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/Netflix/go-env"
	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
	"github.com/joho/godotenv"

	"gigspot/domain"
	"gigspot/internal"
	"gigspot/repositories"
	"gigspot/search"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Seed failed: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	_ = godotenv.Load()
	var config internal.Config
	if _, err := env.UnmarshalFromEnviron(&config); err != nil {
		return fmt.Errorf("config error: %w", err)
	}

	db, err := badger.Open(badger.DefaultOptions(config.BadgerFilepath).
		WithLoggingLevel(badger.ERROR))
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	index, err := search.Open(config.BlugeFilepath)
	if err != nil {
		return fmt.Errorf("open search index: %w", err)
	}
	defer index.Close()

	log := slog.Default()
	entities := repositories.NewEntityRepository(db)
	messages := repositories.NewMessageRepository(db, log, nil, nil)
	ctx := context.Background()

	// Three accounts: a plain spotter, a spotter running an artist
	// profile, and a spotter running a venue profile.
	alice := domain.Profile{
		Ref:       domain.EntityRef{ID: uuid.NewString(), Type: domain.EntitySpotter},
		Name:      "Alice",
		AccountID: config.AccountID,
	}
	bob := domain.Profile{
		Ref:       domain.EntityRef{ID: uuid.NewString(), Type: domain.EntitySpotter},
		Name:      "Bob",
		AccountID: "account-bob",
	}
	nightOwls := domain.Profile{
		Ref:            domain.EntityRef{ID: uuid.NewString(), Type: domain.EntityArtist},
		Name:           "The Night Owls",
		Location:       "Lyon",
		OwnerSpotterID: bob.Ref.ID,
	}
	carol := domain.Profile{
		Ref:       domain.EntityRef{ID: uuid.NewString(), Type: domain.EntitySpotter},
		Name:      "Carol",
		AccountID: "account-carol",
	}
	leLoft := domain.Profile{
		Ref:            domain.EntityRef{ID: uuid.NewString(), Type: domain.EntityVenue},
		Name:           "Le Loft",
		Location:       "Paris",
		OwnerSpotterID: carol.Ref.ID,
	}

	for _, p := range []domain.Profile{alice, bob, nightOwls, carol, leLoft} {
		if err := entities.PutProfile(ctx, p); err != nil {
			return fmt.Errorf("store profile %s: %w", p.Name, err)
		}
	}
	for _, p := range []domain.Profile{nightOwls, leLoft} {
		err := index.Index(domain.SearchableEntity{
			Ref:      p.Ref,
			Name:     p.Name,
			Location: p.Location,
		})
		if err != nil {
			return fmt.Errorf("index %s: %w", p.Name, err)
		}
	}

	// A couple of exchanges so every tab has content.
	exchanges := []struct {
		from, to domain.EntityRef
		content  string
	}{
		{alice.Ref, bob.Ref, "Hey, saw The Night Owls are playing Friday?"},
		{bob.Ref, alice.Ref, "Yes! Doors at 21h, come early"},
		{alice.Ref, carol.Ref, "Is Le Loft open for bookings next month?"},
		{carol.Ref, alice.Ref, "We have the 12th and the 19th free"},
	}
	for _, x := range exchanges {
		_, err := messages.Append(ctx, domain.Message{
			Sender:    x.from,
			Recipient: x.to,
			Content:   x.content,
			Type:      domain.MessageText,
		})
		if err != nil {
			return fmt.Errorf("seed message: %w", err)
		}
	}

	fmt.Println("Seeded 5 profiles, 2 searchable entities and 4 messages")
	fmt.Printf("Acting account: %s (Alice, %s)\n", config.AccountID, alice.Ref.ID)
	return nil
}
