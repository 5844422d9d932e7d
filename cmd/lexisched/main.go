package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/spf13/pflag"

	"github.com/lexisched/lexisched/internal/config"
	"github.com/lexisched/lexisched/internal/engine"
	"github.com/lexisched/lexisched/internal/storage"
	"github.com/lexisched/lexisched/internal/sync"
)

func main() {
	defaults := config.Default()

	// 1. Define and parse command-line flags. Dotted flags override the
	// matching config keys.
	flags := pflag.NewFlagSet("lexisched", pflag.ExitOnError)
	configPath := flags.String("config", "", "Path to a YAML config file")
	flags.String("database.path", defaults.Database.Path, "Path to the SQLite database file")
	flags.String("sync.repos", defaults.Sync.Repos, "Directory git deck sources are cloned into")
	user := flags.String("user", "", "Acting user id")
	addSource := flags.String("add-source", "", "Register a deck source (directory or git URL) for --user")
	syncDecks := flags.Bool("sync-decks", false, "Synchronize the acting user's deck sources")
	due := flags.Bool("due", false, "Show the acting user's next due card")
	summary := flags.Bool("summary", false, "Show the acting user's recent session summary")
	if err := flags.Parse(os.Args[1:]); err != nil {
		log.Fatalf("Failed to parse flags: %v", err)
	}

	cfg, err := config.Load(*configPath, flags)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	if *user == "" {
		log.Fatalf("--user is required")
	}

	// 2. Open the database.
	db, err := storage.Open(cfg.Database.Path)
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}
	defer db.Close()
	slog.Info("database opened", "path", cfg.Database.Path)

	eng := engine.New(db, db)

	// 3. Run the requested action.
	switch {
	case *addSource != "":
		sourceType := "local"
		if strings.HasSuffix(*addSource, ".git") || strings.HasPrefix(*addSource, "git@") ||
			strings.HasPrefix(*addSource, "https://") {
			sourceType = "git"
		}
		ctx, cancel := storeContext(cfg)
		defer cancel()
		id, err := db.InsertSource(ctx, *user, *addSource, sourceType)
		if err != nil {
			log.Fatalf("Failed to add source: %v", err)
		}
		slog.Info("source registered", "id", id, "type", sourceType, "path", *addSource)

	case *syncDecks:
		// Cloning can outlast a single store timeout.
		if err := sync.Run(context.Background(), db, *user, cfg.Sync.Repos); err != nil {
			log.Fatalf("Failed to sync deck sources: %v", err)
		}

	case *due:
		ctx, cancel := storeContext(cfg)
		defer cancel()
		card, err := eng.NextDueCard(ctx, *user, nil)
		if err != nil {
			log.Fatalf("Failed to get next due card: %v", err)
		}
		if card == nil {
			fmt.Println("No cards due.")
			return
		}
		fmt.Printf("Next due: %s (difficulty %d, reviews %d)\n",
			card.FrontText, card.Difficulty, card.ReviewCount)

	case *summary:
		ctx, cancel := storeContext(cfg)
		defer cancel()
		s, err := eng.SessionSummary(ctx, *user, time.Now().UTC().Add(-cfg.Session.Window))
		if err != nil {
			log.Fatalf("Failed to get session summary: %v", err)
		}
		fmt.Printf("Reviewed %d cards, average quality %.2f\n", s.Reviewed, s.AverageQuality)

	default:
		ctx, cancel := storeContext(cfg)
		defer cancel()
		cards, err := eng.ListCards(ctx, *user)
		if err != nil {
			log.Fatalf("Failed to list cards: %v", err)
		}
		var unreviewed int
		for _, c := range cards {
			if c.LastReviewed == nil {
				unreviewed++
			}
		}
		fmt.Printf("%d cards, %d never reviewed.\n", len(cards), unreviewed)
	}
}

func storeContext(cfg *config.Config) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), cfg.Session.Timeout)
}
