package main

import (
	"context"
	"flag"
	"fmt"
	"log"

	"github.com/redis/go-redis/v9"

	"keywatch/internal/catalog"
	"keywatch/internal/config"
)

// go run cmd/search/main.go -q "grand theft auto v"
// Resolves a free-text game name against the catalog and prints the best
// matches with their canonical IDs and slugs.
func main() {
	query := flag.String("q", "", "game name to search for")
	topN := flag.Int("n", catalog.DefaultTopN, "number of results")
	flag.Parse()

	if *query == "" {
		log.Fatal("pass a query with -q")
	}

	cfg := config.Load()
	ctx := context.Background()

	var cache *redis.Client
	if cfg.RedisURL != "" {
		cache = redis.NewClient(&redis.Options{Addr: cfg.RedisURL})
	}

	idx := catalog.New(cfg.CatalogURL, cache)
	if !idx.LoadCached(ctx) {
		log.Println("fetching game catalog, this can take a moment...")
		if err := idx.Refresh(ctx); err != nil {
			log.Fatalf("catalog refresh failed: %v", err)
		}
	}
	log.Printf("catalog loaded, %d entries", idx.Size())

	results := idx.Search(*query, *topN)
	if len(results) == 0 {
		fmt.Println("no matches")
		return
	}
	for _, r := range results {
		fmt.Printf("%-10s %5.2f  %s  (slug %s)\n", r.ID, r.Score, r.Name, r.Slug())
	}
}
