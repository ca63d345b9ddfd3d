// Package coordinator owns the polling lifecycle of a tracked game: one
// refresh loop per game, a state machine over
// idle/fetching/available/degraded/unavailable, failure-streak tracking and
// the durable repair signal. Extraction failures are absorbed here and
// translated into RefreshState; they never propagate to the host.
package coordinator

import (
	"context"
	"log"
	"sync"
	"time"

	"keywatch/internal/extract"
	"keywatch/internal/model"
	"keywatch/internal/observability"
	"keywatch/internal/source"
)

// Extractor produces a fresh PriceRecord for a game on a site.
type Extractor interface {
	Extract(ctx context.Context, site source.Site, game model.TrackedGame) (*model.PriceRecord, error)
}

// SnapshotStore persists the last record and state across restarts.
// Best-effort: every error is logged and swallowed.
type SnapshotStore interface {
	SaveSnapshot(ctx context.Context, game model.TrackedGame, rec *model.PriceRecord, state *model.RefreshState) error
	LoadSnapshot(ctx context.Context, game model.TrackedGame) (*model.PriceRecord, *model.RefreshState, error)
}

// History records successful fetches for trend queries. Optional.
type History interface {
	InsertPrice(ctx context.Context, rec *model.PriceRecord) error
}

type Options struct {
	// Interval paces the regular poll; transient failures are retried on
	// the next tick, never sooner.
	Interval time.Duration
	// UnavailableAfter is how long a failure streak may last before the
	// game is declared unavailable and a repair signal is raised.
	UnavailableAfter time.Duration
	// Now is the clock; defaults to time.Now.
	Now func() time.Time
}

func (o *Options) withDefaults() {
	if o.Interval <= 0 {
		o.Interval = time.Hour
	}
	if o.UnavailableAfter <= 0 {
		o.UnavailableAfter = 24 * time.Hour
	}
	if o.Now == nil {
		o.Now = time.Now
	}
}

// Coordinator runs the refresh loop for a single tracked game. At most one
// fetch is in flight at any time; the published record is only ever
// replaced by a newer successful one.
type Coordinator struct {
	game      model.TrackedGame
	site      source.Site
	extractor Extractor
	store     SnapshotStore
	history   History
	opts      Options

	// Capacity 1: a manual trigger during an in-flight fetch is queued
	// once, additional triggers are dropped.
	refreshCh chan struct{}

	mu             sync.Mutex
	inFlight       bool
	status         model.Status
	record         *model.PriceRecord
	failures       int
	firstFailureAt *time.Time
	lastErrorKind  model.ErrorKind
	lastSuccessAt  *time.Time
	repairSignal   string
	stale          bool
}

func New(game model.TrackedGame, site source.Site, ex Extractor, store SnapshotStore, history History, opts Options) *Coordinator {
	opts.withDefaults()
	return &Coordinator{
		game:      game,
		site:      site,
		extractor: ex,
		store:     store,
		history:   history,
		opts:      opts,
		refreshCh: make(chan struct{}, 1),
		status:    model.StatusIdle,
	}
}

// Run blocks until ctx is canceled. It restores any persisted snapshot,
// refreshes immediately, then polls on the configured interval. Manual
// triggers re-enter fetching without waiting for the next tick.
func (c *Coordinator) Run(ctx context.Context) {
	c.restore(ctx)
	c.refreshOnce(ctx)

	ticker := time.NewTicker(c.opts.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.refreshOnce(ctx)
		case <-c.refreshCh:
			c.refreshOnce(ctx)
		}
	}
}

// TriggerRefresh requests an immediate refresh. Idempotent while a fetch is
// outstanding: the request is queued at most once, never duplicated.
func (c *Coordinator) TriggerRefresh() {
	select {
	case c.refreshCh <- struct{}{}:
	default:
	}
}

// Record returns a copy of the latest published PriceRecord, or nil before
// the first success.
func (c *Coordinator) Record() *model.PriceRecord {
	c.mu.Lock()
	defer c.mu.Unlock()
	return copyRecord(c.record)
}

// State returns a snapshot of the refresh health.
func (c *Coordinator) State() model.RefreshState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stateLocked()
}

// Game returns the tracked game this coordinator serves.
func (c *Coordinator) Game() model.TrackedGame {
	return c.game
}

func (c *Coordinator) stateLocked() model.RefreshState {
	return model.RefreshState{
		Status:              c.status,
		ConsecutiveFailures: c.failures,
		FirstFailureAt:      copyTime(c.firstFailureAt),
		LastErrorKind:       c.lastErrorKind,
		LastSuccessAt:       copyTime(c.lastSuccessAt),
		RepairSignal:        c.repairSignal,
		Stale:               c.stale,
	}
}

// refreshOnce performs one fetch-and-apply cycle. Safe to call from
// multiple goroutines: if a fetch is already outstanding the call returns
// immediately.
func (c *Coordinator) refreshOnce(ctx context.Context) {
	c.mu.Lock()
	if c.inFlight {
		c.mu.Unlock()
		return
	}
	c.inFlight = true
	c.status = model.StatusFetching
	c.mu.Unlock()

	rec, err := c.extractor.Extract(ctx, c.site, c.game)

	c.mu.Lock()
	c.inFlight = false
	if ctx.Err() != nil {
		// The game was torn down while the fetch was in flight; the
		// result must not be applied.
		c.mu.Unlock()
		return
	}
	if err != nil {
		c.applyFailureLocked(err)
	} else {
		c.applySuccessLocked(rec)
	}
	snapRec := copyRecord(c.record)
	snapState := c.stateLocked()
	c.mu.Unlock()

	c.publish(ctx, snapRec, &snapState)
	if err == nil && c.history != nil {
		if herr := c.history.InsertPrice(ctx, rec); herr != nil {
			log.Printf("[coordinator] %s: history insert failed: %v", c.game.ProductID, herr)
		}
	}
}

func (c *Coordinator) applySuccessLocked(rec *model.PriceRecord) {
	now := c.opts.Now()
	c.record = rec
	c.status = model.StatusAvailable
	c.failures = 0
	c.firstFailureAt = nil
	c.lastErrorKind = ""
	c.repairSignal = ""
	c.stale = false
	c.lastSuccessAt = &now

	observability.FetchesTotal.WithLabelValues(c.game.ProductID, "success").Inc()
	observability.ConsecutiveFailures.WithLabelValues(c.game.ProductID).Set(0)
	if rec.LowPrice != nil {
		observability.CurrentPrice.WithLabelValues(c.game.ProductID, string(c.game.Currency)).Set(*rec.LowPrice)
	}
	log.Printf("[coordinator] %s: refreshed, %d offers", c.game.ProductID, rec.OfferCount)
}

func (c *Coordinator) applyFailureLocked(err error) {
	now := c.opts.Now()
	kind := extract.KindOf(err)

	c.failures++
	if c.firstFailureAt == nil {
		c.firstFailureAt = &now
	}
	c.lastErrorKind = kind
	if c.record != nil {
		c.stale = true
	}

	switch {
	case kind == model.ErrorKindNotFound:
		// Durable: the tracked identifier no longer resolves upstream.
		c.status = model.StatusUnavailable
		c.repairSignal = model.RepairProductNotFound
	case now.Sub(*c.firstFailureAt) >= c.opts.UnavailableAfter:
		c.status = model.StatusUnavailable
		c.repairSignal = model.RepairAPIFailure
	default:
		c.status = model.StatusDegraded
		c.repairSignal = ""
	}

	observability.FetchesTotal.WithLabelValues(c.game.ProductID, string(kind)).Inc()
	observability.ConsecutiveFailures.WithLabelValues(c.game.ProductID).Set(float64(c.failures))
	log.Printf("[coordinator] %s: refresh failed (%s, streak %d): %v", c.game.ProductID, kind, c.failures, err)
}

func (c *Coordinator) publish(ctx context.Context, rec *model.PriceRecord, state *model.RefreshState) {
	if c.store == nil {
		return
	}
	if err := c.store.SaveSnapshot(ctx, c.game, rec, state); err != nil {
		log.Printf("[coordinator] %s: snapshot save failed: %v", c.game.ProductID, err)
	}
}

func (c *Coordinator) restore(ctx context.Context) {
	if c.store == nil {
		return
	}
	rec, state, err := c.store.LoadSnapshot(ctx, c.game)
	if err != nil {
		log.Printf("[coordinator] %s: snapshot load failed: %v", c.game.ProductID, err)
		return
	}
	if rec == nil && state == nil {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.record = rec
	if state != nil {
		c.failures = state.ConsecutiveFailures
		c.firstFailureAt = copyTime(state.FirstFailureAt)
		c.lastErrorKind = state.LastErrorKind
		c.lastSuccessAt = copyTime(state.LastSuccessAt)
		c.repairSignal = state.RepairSignal
		c.stale = state.Stale
	}
	log.Printf("[coordinator] %s: restored persisted snapshot", c.game.ProductID)
}

func copyRecord(rec *model.PriceRecord) *model.PriceRecord {
	if rec == nil {
		return nil
	}
	out := *rec
	out.LowPrice = copyFloat(rec.LowPrice)
	out.HighPrice = copyFloat(rec.HighPrice)
	out.Rating = copyFloat(rec.Rating)
	if rec.RatingCount != nil {
		v := *rec.RatingCount
		out.RatingCount = &v
	}
	out.TopOffers = append([]model.Offer(nil), rec.TopOffers...)
	return &out
}

func copyFloat(f *float64) *float64 {
	if f == nil {
		return nil
	}
	v := *f
	return &v
}

func copyTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}
