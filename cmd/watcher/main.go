package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"keywatch/internal/config"
	"keywatch/internal/coordinator"
	"keywatch/internal/extract"
	"keywatch/internal/model"
	"keywatch/internal/observability"
	"keywatch/internal/repository"
	"keywatch/internal/store"
)

// go run cmd/watcher/main.go -games "190548:grand-theft-auto-v:eur:20"
// Each entry is productID:slug:currency[:threshold]; threshold 0 disables
// the price alert.
func main() {
	gamesArg := flag.String("games", "", "tracked games, comma separated productID:slug:currency[:threshold]")
	flag.Parse()

	games, cfgs, err := parseGames(*gamesArg)
	if err != nil {
		log.Fatalf("invalid -games: %v", err)
	}
	if len(games) == 0 {
		log.Fatal("no games to track, pass -games")
	}

	cfg := config.Load()
	observability.Start(cfg.MetricsPort)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var snapshots coordinator.SnapshotStore
	if cfg.RedisURL != "" {
		snapshots = &store.SnapshotStore{Client: redis.NewClient(&redis.Options{Addr: cfg.RedisURL})}
	}

	var history coordinator.History
	if cfg.DatabaseURL != "" {
		pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
		if err != nil {
			log.Fatalf("postgres connect failed: %v", err)
		}
		defer pool.Close()
		repo := &repository.PriceHistory{DB: pool}
		if err := repo.EnsureSchema(ctx); err != nil {
			log.Fatalf("postgres schema setup failed: %v", err)
		}
		history = repo
	}

	extractor := extract.New(extract.Options{
		AllowAccounts: cfg.AllowAccounts,
		PaymentMethod: cfg.PaymentMethod,
		Timeout:       cfg.FetchTimeout,
	})

	tracker := coordinator.NewTracker(extractor, snapshots, history, coordinator.Options{
		Interval:         cfg.UpdateInterval,
		UnavailableAfter: cfg.UnavailableAfter,
	})
	defer tracker.Close()

	for i, game := range games {
		id, err := tracker.Add(ctx, game, cfgs[i])
		if err != nil {
			log.Fatalf("cannot track %s: %v", game.ProductID, err)
		}
		log.Printf("tracking %s (%s, %s) as %s", game.ProductID, game.Slug, game.Currency, id)
	}

	<-ctx.Done()
	log.Println("watcher shutting down")
}

func parseGames(arg string) ([]model.TrackedGame, []model.AlertConfig, error) {
	var games []model.TrackedGame
	var cfgs []model.AlertConfig

	for _, entry := range strings.Split(arg, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		parts := strings.Split(entry, ":")
		if len(parts) < 3 || len(parts) > 4 {
			return nil, nil, fmt.Errorf("bad game entry %q", entry)
		}

		currency := model.ParseCurrency(parts[2])
		if currency == "" {
			return nil, nil, fmt.Errorf("bad currency in %q", entry)
		}

		threshold := 0.0
		if len(parts) == 4 {
			v, err := strconv.ParseFloat(parts[3], 64)
			if err != nil {
				return nil, nil, fmt.Errorf("bad threshold in %q", entry)
			}
			threshold = v
		}

		games = append(games, model.TrackedGame{
			ProductID: strings.TrimSpace(parts[0]),
			Slug:      strings.TrimSpace(parts[1]),
			Currency:  currency,
		})
		cfgs = append(cfgs, model.AlertConfig{Threshold: threshold, Currency: currency})
	}
	return games, cfgs, nil
}
