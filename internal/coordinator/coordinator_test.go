package coordinator

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"keywatch/internal/extract"
	"keywatch/internal/model"
	"keywatch/internal/source"
)

var testGame = model.TrackedGame{
	ProductID: "190548",
	Slug:      "grand-theft-auto-v",
	Currency:  model.EUR,
}

func testRecord(price float64) *model.PriceRecord {
	return &model.PriceRecord{
		ProductID:  testGame.ProductID,
		Currency:   testGame.Currency,
		LowPrice:   &price,
		BestSeller: "StoreB",
		OfferCount: 2,
		FetchedAt:  time.Now(),
	}
}

type fakeExtractor struct {
	mu    sync.Mutex
	calls int
	rec   *model.PriceRecord
	err   error
	block chan struct{} // when non-nil, Extract waits for a receive
}

func (f *fakeExtractor) Extract(ctx context.Context, site source.Site, game model.TrackedGame) (*model.PriceRecord, error) {
	f.mu.Lock()
	f.calls++
	block := f.block
	f.mu.Unlock()
	if block != nil {
		<-block
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	out := *f.rec
	return &out, nil
}

func (f *fakeExtractor) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func (f *fakeExtractor) set(rec *model.PriceRecord, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rec = rec
	f.err = err
}

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2026, 1, 2, 3, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

func netErr() error {
	return &extract.Error{Kind: model.ErrorKindNetwork, URL: "u", Err: errors.New("timeout")}
}

func notFoundErr() error {
	return &extract.Error{Kind: model.ErrorKindNotFound, URL: "u", Err: errors.New("gone")}
}

func parseErr() error {
	return &extract.Error{Kind: model.ErrorKindParse, URL: "u", Err: errors.New("block missing")}
}

func newTestCoordinator(ex Extractor, clock *fakeClock) *Coordinator {
	return New(testGame, source.Site{Currency: model.EUR}, ex, nil, nil, Options{
		Interval:         time.Hour,
		UnavailableAfter: 24 * time.Hour,
		Now:              clock.now,
	})
}

func TestRefreshOnce_SuccessPublishes(t *testing.T) {
	ex := &fakeExtractor{rec: testRecord(14.99)}
	c := newTestCoordinator(ex, newFakeClock())

	assert.Equal(t, model.StatusIdle, c.State().Status)
	assert.Nil(t, c.Record())

	c.refreshOnce(context.Background())

	state := c.State()
	assert.Equal(t, model.StatusAvailable, state.Status)
	assert.Equal(t, 0, state.ConsecutiveFailures)
	assert.Nil(t, state.FirstFailureAt)
	assert.NotNil(t, state.LastSuccessAt)
	assert.False(t, state.Stale)

	rec := c.Record()
	require.NotNil(t, rec)
	require.NotNil(t, rec.LowPrice)
	assert.Equal(t, 14.99, *rec.LowPrice)
}

func TestRefreshOnce_TransientFailureKeepsRecord(t *testing.T) {
	clock := newFakeClock()
	ex := &fakeExtractor{rec: testRecord(14.99)}
	c := newTestCoordinator(ex, clock)

	c.refreshOnce(context.Background())
	require.Equal(t, model.StatusAvailable, c.State().Status)

	ex.set(nil, netErr())
	c.refreshOnce(context.Background())

	state := c.State()
	assert.Equal(t, model.StatusDegraded, state.Status)
	assert.Equal(t, 1, state.ConsecutiveFailures)
	assert.Equal(t, model.ErrorKindNetwork, state.LastErrorKind)
	require.NotNil(t, state.FirstFailureAt)
	assert.Equal(t, clock.now(), *state.FirstFailureAt)
	assert.True(t, state.Stale)
	assert.Empty(t, state.RepairSignal, "degraded is transient, no repair signal")

	rec := c.Record()
	require.NotNil(t, rec, "previous record stays visible through transient failure")
	assert.Equal(t, 14.99, *rec.LowPrice)
}

func TestRefreshOnce_EscalatesToUnavailableAfter24h(t *testing.T) {
	clock := newFakeClock()
	ex := &fakeExtractor{err: netErr()}
	c := newTestCoordinator(ex, clock)

	c.refreshOnce(context.Background())
	assert.Equal(t, model.StatusDegraded, c.State().Status)

	clock.advance(23 * time.Hour)
	c.refreshOnce(context.Background())
	assert.Equal(t, model.StatusDegraded, c.State().Status, "under 24h stays degraded")

	clock.advance(time.Hour)
	c.refreshOnce(context.Background())
	state := c.State()
	assert.Equal(t, model.StatusUnavailable, state.Status)
	assert.Equal(t, model.RepairAPIFailure, state.RepairSignal)
	assert.Equal(t, 3, state.ConsecutiveFailures)
}

func TestRefreshOnce_SuccessResetsStreak(t *testing.T) {
	clock := newFakeClock()
	ex := &fakeExtractor{err: netErr()}
	c := newTestCoordinator(ex, clock)

	c.refreshOnce(context.Background())
	clock.advance(25 * time.Hour)
	c.refreshOnce(context.Background())
	require.Equal(t, model.StatusUnavailable, c.State().Status)

	ex.set(testRecord(9.99), nil)
	c.refreshOnce(context.Background())

	state := c.State()
	assert.Equal(t, model.StatusAvailable, state.Status)
	assert.Equal(t, 0, state.ConsecutiveFailures)
	assert.Nil(t, state.FirstFailureAt)
	assert.Empty(t, state.RepairSignal)
	assert.Empty(t, state.LastErrorKind)
	assert.False(t, state.Stale)
}

func TestRefreshOnce_NotFoundIsImmediatelyUnavailable(t *testing.T) {
	ex := &fakeExtractor{rec: testRecord(14.99)}
	c := newTestCoordinator(ex, newFakeClock())

	c.refreshOnce(context.Background())
	ex.set(nil, notFoundErr())
	c.refreshOnce(context.Background())

	state := c.State()
	assert.Equal(t, model.StatusUnavailable, state.Status, "not-found does not wait for the 24h rule")
	assert.Equal(t, model.RepairProductNotFound, state.RepairSignal)
	assert.Equal(t, model.ErrorKindNotFound, state.LastErrorKind)
	assert.True(t, state.Stale)
	assert.NotNil(t, c.Record(), "record retained but flagged stale")
}

func TestRefreshOnce_ParseErrorIsTransientAtFirst(t *testing.T) {
	ex := &fakeExtractor{err: parseErr()}
	c := newTestCoordinator(ex, newFakeClock())

	c.refreshOnce(context.Background())

	state := c.State()
	assert.Equal(t, model.StatusDegraded, state.Status, "parse failures follow the 24h escalation rule")
	assert.Equal(t, model.ErrorKindParse, state.LastErrorKind)
}

func TestRefreshOnce_AtMostOneInFlight(t *testing.T) {
	block := make(chan struct{})
	ex := &fakeExtractor{rec: testRecord(14.99), block: block}
	c := newTestCoordinator(ex, newFakeClock())

	done := make(chan struct{})
	go func() {
		c.refreshOnce(context.Background())
		close(done)
	}()

	require.Eventually(t, func() bool {
		return c.State().Status == model.StatusFetching
	}, 2*time.Second, 5*time.Millisecond)

	// A second cycle while one is outstanding must refuse to start.
	c.refreshOnce(context.Background())
	assert.Equal(t, 1, ex.callCount())

	block <- struct{}{}
	<-done
	assert.Equal(t, model.StatusAvailable, c.State().Status)
}

func TestTriggerRefresh_QueuedOnce(t *testing.T) {
	c := newTestCoordinator(&fakeExtractor{rec: testRecord(1)}, newFakeClock())

	c.TriggerRefresh()
	c.TriggerRefresh()
	c.TriggerRefresh()

	assert.Len(t, c.refreshCh, 1, "repeated triggers collapse into one queued refresh")
}

func TestRefreshOnce_DiscardsResultAfterTeardown(t *testing.T) {
	block := make(chan struct{})
	ex := &fakeExtractor{rec: testRecord(14.99), block: block}
	c := newTestCoordinator(ex, newFakeClock())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		c.refreshOnce(ctx)
		close(done)
	}()

	require.Eventually(t, func() bool {
		return c.State().Status == model.StatusFetching
	}, 2*time.Second, 5*time.Millisecond)

	cancel()
	block <- struct{}{}
	<-done

	assert.Nil(t, c.Record(), "a fetch completing after teardown is discarded")
	assert.Equal(t, 0, c.State().ConsecutiveFailures)
}

func TestRun_ManualTriggerBypassesSchedule(t *testing.T) {
	ex := &fakeExtractor{rec: testRecord(19.99)}
	c := newTestCoordinator(ex, newFakeClock())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go c.Run(ctx)

	require.Eventually(t, func() bool {
		rec := c.Record()
		return rec != nil && rec.LowPrice != nil && *rec.LowPrice == 19.99
	}, 2*time.Second, 5*time.Millisecond, "initial refresh happens immediately")

	ex.set(testRecord(9.99), nil)
	c.TriggerRefresh()

	require.Eventually(t, func() bool {
		rec := c.Record()
		return rec != nil && rec.LowPrice != nil && *rec.LowPrice == 9.99
	}, 2*time.Second, 5*time.Millisecond, "manual trigger refreshes without waiting for the interval")
}

type memStore struct {
	mu    sync.Mutex
	rec   *model.PriceRecord
	state *model.RefreshState
	saves int
}

func (m *memStore) SaveSnapshot(ctx context.Context, game model.TrackedGame, rec *model.PriceRecord, state *model.RefreshState) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rec = rec
	m.state = state
	m.saves++
	return nil
}

func (m *memStore) LoadSnapshot(ctx context.Context, game model.TrackedGame) (*model.PriceRecord, *model.RefreshState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.rec, m.state, nil
}

func TestPersistence_SaveAndRestore(t *testing.T) {
	st := &memStore{}
	ex := &fakeExtractor{rec: testRecord(14.99)}
	c := New(testGame, source.Site{Currency: model.EUR}, ex, st, nil, Options{Now: newFakeClock().now})

	c.refreshOnce(context.Background())
	require.Equal(t, 1, st.saves)
	require.NotNil(t, st.rec)

	// A fresh coordinator with the same store resumes with the stale
	// record before its first fetch.
	c2 := New(testGame, source.Site{Currency: model.EUR}, ex, st, nil, Options{})
	c2.restore(context.Background())

	rec := c2.Record()
	require.NotNil(t, rec)
	assert.Equal(t, 14.99, *rec.LowPrice)
	assert.Equal(t, model.StatusIdle, c2.State().Status, "restored state still starts from idle")
}

type memHistory struct {
	mu      sync.Mutex
	inserts []*model.PriceRecord
}

func (m *memHistory) InsertPrice(ctx context.Context, rec *model.PriceRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.inserts = append(m.inserts, rec)
	return nil
}

func TestHistory_RecordedOnSuccessOnly(t *testing.T) {
	h := &memHistory{}
	ex := &fakeExtractor{rec: testRecord(14.99)}
	c := New(testGame, source.Site{Currency: model.EUR}, ex, nil, h, Options{Now: newFakeClock().now})

	c.refreshOnce(context.Background())
	ex.set(nil, netErr())
	c.refreshOnce(context.Background())

	h.mu.Lock()
	defer h.mu.Unlock()
	assert.Len(t, h.inserts, 1)
}
