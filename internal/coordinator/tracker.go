package coordinator

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"keywatch/internal/alert"
	"keywatch/internal/model"
	"keywatch/internal/source"
)

// Tracker is the host-facing registry of tracked games. Each Add spins up
// an independent refresh loop; games refresh independently and may overlap
// in time.
type Tracker struct {
	extractor Extractor
	store     SnapshotStore
	history   History
	opts      Options

	mu      sync.Mutex
	entries map[string]*trackedEntry
	wg      sync.WaitGroup
}

type trackedEntry struct {
	coord  *Coordinator
	cancel context.CancelFunc
	cfg    model.AlertConfig
}

func NewTracker(ex Extractor, store SnapshotStore, history History, opts Options) *Tracker {
	return &Tracker{
		extractor: ex,
		store:     store,
		history:   history,
		opts:      opts,
		entries:   make(map[string]*trackedEntry),
	}
}

// Add validates the game's currency, starts its refresh loop and returns
// the entry ID used for all later calls. An unsupported currency fails fast
// here and is never retried.
func (t *Tracker) Add(ctx context.Context, game model.TrackedGame, cfg model.AlertConfig) (string, error) {
	site, err := source.Select(game.Currency)
	if err != nil {
		return "", err
	}
	if game.ProductID == "" || game.Slug == "" {
		return "", fmt.Errorf("tracked game needs a product id and a slug")
	}

	id := uuid.New().String()
	runCtx, cancel := context.WithCancel(ctx)
	coord := New(game, site, t.extractor, t.store, t.history, t.opts)

	t.mu.Lock()
	t.entries[id] = &trackedEntry{coord: coord, cancel: cancel, cfg: cfg}
	t.mu.Unlock()

	t.wg.Add(1)
	go func() {
		defer t.wg.Done()
		coord.Run(runCtx)
	}()
	return id, nil
}

// Remove tears the game down. Its in-flight fetch, if any, is discarded on
// completion rather than applied.
func (t *Tracker) Remove(id string) bool {
	t.mu.Lock()
	e, ok := t.entries[id]
	delete(t.entries, id)
	t.mu.Unlock()
	if ok {
		e.cancel()
	}
	return ok
}

// Close tears down every tracked game and waits for the loops to exit.
func (t *Tracker) Close() {
	t.mu.Lock()
	for id, e := range t.entries {
		e.cancel()
		delete(t.entries, id)
	}
	t.mu.Unlock()
	t.wg.Wait()
}

func (t *Tracker) get(id string) (*trackedEntry, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	e, ok := t.entries[id]
	return e, ok
}

// Record returns the latest published PriceRecord, nil before the first
// successful fetch.
func (t *Tracker) Record(id string) (*model.PriceRecord, bool) {
	e, ok := t.get(id)
	if !ok {
		return nil, false
	}
	return e.coord.Record(), true
}

func (t *Tracker) State(id string) (model.RefreshState, bool) {
	e, ok := t.get(id)
	if !ok {
		return model.RefreshState{}, false
	}
	return e.coord.State(), true
}

// TriggerRefresh requests an immediate refresh, bypassing the schedule.
func (t *Tracker) TriggerRefresh(id string) bool {
	e, ok := t.get(id)
	if ok {
		e.coord.TriggerRefresh()
	}
	return ok
}

// EvaluateAlert reports whether the latest price is at or below the
// configured threshold. A zero threshold disables the alert.
func (t *Tracker) EvaluateAlert(id string) bool {
	e, ok := t.get(id)
	if !ok || e.cfg.Threshold <= 0 {
		return false
	}
	return alert.Evaluate(e.coord.Record(), e.cfg)
}

// StockOK reports whether the latest record carries any offer.
func (t *Tracker) StockOK(id string) bool {
	e, ok := t.get(id)
	if !ok {
		return false
	}
	return alert.StockOK(e.coord.Record())
}

// Diagnostics returns a host-loggable dump of one tracked game.
func (t *Tracker) Diagnostics(id string) (map[string]any, bool) {
	e, ok := t.get(id)
	if !ok {
		return nil, false
	}
	game := e.coord.Game()
	state := e.coord.State()
	diag := map[string]any{
		"product_id":           game.ProductID,
		"slug":                 game.Slug,
		"currency":             game.Currency,
		"status":               state.Status,
		"consecutive_failures": state.ConsecutiveFailures,
		"repair_signal":        state.RepairSignal,
		"stale":                state.Stale,
		"alert_threshold":      e.cfg.Threshold,
	}
	if rec := e.coord.Record(); rec != nil {
		diag["low_price"] = rec.LowPrice
		diag["offer_count"] = rec.OfferCount
		diag["fetched_at"] = rec.FetchedAt
	}
	return diag, true
}
