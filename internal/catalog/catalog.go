// Package catalog maintains the game-name index used to resolve a free-text
// query to a canonical product ID. The upstream listing holds tens of
// thousands of entries and changes rarely, so it is fetched at setup time
// and on demand, never on the poll cycle.
package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/time/rate"

	"keywatch/internal/model"
	"keywatch/internal/observability"
)

const (
	// DefaultListingURL is the bulk game-name endpoint.
	DefaultListingURL = "https://www.allkeyshop.com/api/v2/vaks.php?action=gameNames&currency=eur"

	cacheKey = "keywatch:catalog"
	cacheTTL = 24 * time.Hour
)

// Index holds an immutable, atomically-swapped snapshot of the listing.
// Readers always see either the previous snapshot or the fully-new one.
type Index struct {
	client  *http.Client
	limiter *rate.Limiter
	url     string
	cache   *redis.Client // optional warm cache, nil disables it

	snap atomic.Pointer[snapshot]
}

type snapshot struct {
	entries   []model.CatalogEntry
	fetchedAt time.Time
}

func New(listingURL string, cache *redis.Client) *Index {
	if listingURL == "" {
		listingURL = DefaultListingURL
	}
	return &Index{
		client:  &http.Client{Timeout: 60 * time.Second},
		limiter: rate.NewLimiter(rate.Every(time.Second), 5),
		url:     listingURL,
		cache:   cache,
	}
}

// Refresh fetches the listing and replaces the snapshot wholesale. A failed
// or partial fetch leaves the previous snapshot untouched.
func (i *Index) Refresh(ctx context.Context) error {
	if err := i.limiter.Wait(ctx); err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, i.url, nil)
	if err != nil {
		return err
	}
	req.Header.Set("User-Agent", "Mozilla/5.0")
	req.Header.Set("Accept", "application/json")

	resp, err := i.client.Do(req)
	if err != nil {
		return fmt.Errorf("catalog fetch: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("catalog fetch: upstream status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("catalog fetch: %w", err)
	}

	entries, err := decodeListing(body)
	if err != nil {
		return err
	}

	i.swap(entries)

	if i.cache != nil {
		// Best-effort warm cache; the in-memory snapshot is already current.
		if err := i.cache.Set(ctx, cacheKey, body, cacheTTL).Err(); err != nil {
			log.Printf("[catalog] cache write failed: %v", err)
		}
	}
	return nil
}

// LoadCached restores the snapshot from the warm cache, avoiding a bulk
// fetch on restart. Returns false when no usable cache entry exists.
func (i *Index) LoadCached(ctx context.Context) bool {
	if i.cache == nil {
		return false
	}
	body, err := i.cache.Get(ctx, cacheKey).Bytes()
	if err != nil {
		return false
	}
	entries, err := decodeListing(body)
	if err != nil {
		return false
	}
	i.swap(entries)
	return true
}

func (i *Index) swap(entries []model.CatalogEntry) {
	i.snap.Store(&snapshot{entries: entries, fetchedAt: time.Now()})
	observability.CatalogSize.Set(float64(len(entries)))
}

// Entries returns the current snapshot's entries. Nil before the first
// successful refresh. The returned slice must not be mutated.
func (i *Index) Entries() []model.CatalogEntry {
	s := i.snap.Load()
	if s == nil {
		return nil
	}
	return s.entries
}

// Size reports the number of indexed entries.
func (i *Index) Size() int {
	return len(i.Entries())
}

// Search ranks the current snapshot against query and returns the topN best
// matches. An unloaded index or no match above the floor yields an empty
// result, not an error.
func (i *Index) Search(query string, topN int) []model.ScoredEntry {
	return Score(query, i.Entries(), topN)
}

type listingEntry struct {
	ID   flexID `json:"id"`
	Name string `json:"name"`
}

// decodeListing accepts both the bare-array listing shape and the
// object-wrapped one; upstream has shipped both.
func decodeListing(body []byte) ([]model.CatalogEntry, error) {
	var rows []listingEntry
	if err := json.Unmarshal(body, &rows); err != nil {
		var wrapped struct {
			Games []listingEntry `json:"games"`
		}
		if err2 := json.Unmarshal(body, &wrapped); err2 != nil || wrapped.Games == nil {
			return nil, fmt.Errorf("catalog listing: %w", err)
		}
		rows = wrapped.Games
	}

	entries := make([]model.CatalogEntry, 0, len(rows))
	for _, r := range rows {
		if r.ID == "" || r.Name == "" {
			continue
		}
		entries = append(entries, model.CatalogEntry{ID: string(r.ID), Name: r.Name})
	}
	if len(entries) == 0 {
		return nil, fmt.Errorf("catalog listing: no entries")
	}
	return entries, nil
}

// flexID accepts a string or numeric catalog ID.
type flexID string

func (f *flexID) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		*f = flexID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("catalog id is neither string nor number: %s", b)
	}
	*f = flexID(n.String())
	return nil
}
