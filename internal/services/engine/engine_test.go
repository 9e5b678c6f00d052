package engine

import (
	"context"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/BearBump/GeoPulse/internal/models"
	"github.com/BearBump/GeoPulse/internal/storage/sqlitestore"
	"github.com/BearBump/GeoPulse/internal/transport/remote"
	"github.com/BearBump/GeoPulse/internal/transport/remote/fake"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
)

type allowAll struct{}

func (allowAll) Authorized(context.Context) bool { return true }

type denyAll struct{}

func (denyAll) Authorized(context.Context) bool { return false }

func newTestEngine(t *testing.T, rc remote.Client, auth Authorizer) (*Engine, *sqlitestore.Storage) {
	t.Helper()
	st, err := sqlitestore.New(filepath.Join(t.TempDir(), "agent.db"))
	require.NoError(t, err)
	t.Cleanup(st.Close)

	e := New(rc, auth).WithSettings(time.Minute, 100, 5*time.Second)
	require.NoError(t, e.AttachStore(context.Background(), st))
	return e, st
}

func insertFix(t *testing.T, e *Engine, lat, lon float64) *models.Sample {
	t.Helper()
	m, err := e.OnSample(context.Background(), models.Fix{Latitude: lat, Longitude: lon, CapturedAt: time.Now().UTC()})
	require.NoError(t, err)
	return m
}

func TestEngine_CaptureThenSync(t *testing.T) {
	rc := fake.New()
	e, st := newTestEngine(t, rc, allowAll{})
	ctx := context.Background()

	insertFix(t, e, 28.1, 77.2)
	insertFix(t, e, 28.2, 77.3)
	insertFix(t, e, 28.3, 77.4)

	stats, err := e.Stats(ctx)
	require.NoError(t, err)
	require.Equal(t, models.StoreStats{Total: 3, Synced: 0, Pending: 3}, stats.Store)

	e.SetOnline(ctx, true)
	require.NoError(t, e.SyncNow(ctx))

	stats, err = e.Stats(ctx)
	require.NoError(t, err)
	require.Equal(t, models.StoreStats{Total: 3, Synced: 3, Pending: 0}, stats.Store)

	n, err := st.CountOutbox(ctx)
	require.NoError(t, err)
	require.Zero(t, n)

	batches := rc.Batches()
	require.Len(t, batches, 1)
	require.Len(t, batches[0], 3)
	require.InDelta(t, 28.1, batches[0][0].Latitude, 1e-9)
}

func TestEngine_RejectsInvalidFix(t *testing.T) {
	rc := fake.New()
	e, _ := newTestEngine(t, rc, allowAll{})
	ctx := context.Background()

	_, err := e.OnSample(ctx, models.Fix{Latitude: 200, Longitude: 77.2})
	var vErr *models.ValidationError
	require.ErrorAs(t, err, &vErr)

	stats, err := e.Stats(ctx)
	require.NoError(t, err)
	require.Equal(t, models.StoreStats{Total: 0, Synced: 0, Pending: 0}, stats.Store)
	require.Equal(t, int64(1), stats.TotalRejected)
}

func TestEngine_SyncWhileOffline_NoRemoteCall(t *testing.T) {
	rc := fake.New()
	e, _ := newTestEngine(t, rc, allowAll{})
	ctx := context.Background()

	insertFix(t, e, 28.1, 77.2)

	// online == false с момента старта процесса.
	require.NoError(t, e.SyncNow(ctx))
	require.Empty(t, rc.Batches())

	stats, err := e.Stats(ctx)
	require.NoError(t, err)
	require.Equal(t, int64(1), stats.Store.Pending)
}

func TestEngine_SyncEmpty_NoRemoteCall(t *testing.T) {
	rc := fake.New()
	e, st := newTestEngine(t, rc, allowAll{})
	ctx := context.Background()

	e.SetOnline(ctx, true)
	require.NoError(t, e.SyncNow(ctx))
	require.Empty(t, rc.Batches())

	audit, err := st.ListAudit(ctx, 10)
	require.NoError(t, err)
	require.NotEmpty(t, audit)
	require.Equal(t, "no data to sync", audit[0].Message)
}

func TestEngine_TransportFailure_BatchStaysPending(t *testing.T) {
	rc := fake.New()
	e, st := newTestEngine(t, rc, allowAll{})
	ctx := context.Background()

	insertFix(t, e, 28.1, 77.2)
	insertFix(t, e, 28.2, 77.3)

	e.SetOnline(ctx, true)
	rc.FailWith(&remote.TransportError{Reason: "boom"})
	require.Error(t, e.SyncNow(ctx))

	// Ни один сэмпл не помечен, outbox нетронут.
	stats, err := e.Stats(ctx)
	require.NoError(t, err)
	require.Equal(t, models.StoreStats{Total: 2, Synced: 0, Pending: 2}, stats.Store)

	n, err := st.CountOutbox(ctx)
	require.NoError(t, err)
	require.Equal(t, int64(2), n)

	// Следующий успешный триггер повторяет тот же батч целиком.
	rc.FailWith(nil)
	require.NoError(t, e.SyncNow(ctx))

	stats, err = e.Stats(ctx)
	require.NoError(t, err)
	require.Equal(t, models.StoreStats{Total: 2, Synced: 2, Pending: 0}, stats.Store)
}

func TestEngine_SyncedSampleNeverResent(t *testing.T) {
	rc := fake.New()
	e, _ := newTestEngine(t, rc, allowAll{})
	ctx := context.Background()

	insertFix(t, e, 28.1, 77.2)
	e.SetOnline(ctx, true)
	require.NoError(t, e.SyncNow(ctx))
	require.Len(t, rc.Batches(), 1)

	// Повторный синк не трогает уже synced сэмпл.
	require.NoError(t, e.SyncNow(ctx))
	require.Len(t, rc.Batches(), 1)
}

type blockingRemote struct {
	started chan struct{}
	release chan struct{}
	calls   atomic.Int32
}

func (b *blockingRemote) SyncBatch(ctx context.Context, _ string, _ []*models.Sample) error {
	b.calls.Add(1)
	b.started <- struct{}{}
	select {
	case <-b.release:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (b *blockingRemote) Probe(context.Context) bool { return true }

func TestEngine_SingleFlight(t *testing.T) {
	rc := &blockingRemote{started: make(chan struct{}, 1), release: make(chan struct{})}
	e, _ := newTestEngine(t, rc, allowAll{})
	ctx := context.Background()

	insertFix(t, e, 28.1, 77.2)
	e.SetOnline(ctx, true)

	firstDone := make(chan error, 1)
	go func() { firstDone <- e.SyncNow(ctx) }()
	<-rc.started

	// Пока первый синк в полёте, конкурирующие триггеры — no-op.
	var wg sync.WaitGroup
	errCh := make(chan error, 10)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errCh <- e.SyncNow(ctx)
		}()
	}
	wg.Wait()
	close(errCh)
	for err := range errCh {
		require.NoError(t, err)
	}
	require.Equal(t, int32(1), rc.calls.Load())

	close(rc.release)
	require.NoError(t, <-firstDone)

	stats, err := e.Stats(ctx)
	require.NoError(t, err)
	require.False(t, stats.SyncInFlight)
	require.Equal(t, int64(1), stats.Store.Synced)
}

func TestEngine_StuckTransportHitsTimeout(t *testing.T) {
	rc := &blockingRemote{started: make(chan struct{}, 1), release: make(chan struct{})}
	e, st := newTestEngine(t, rc, allowAll{})
	e.WithSettings(time.Minute, 100, 20*time.Millisecond)
	ctx := context.Background()

	insertFix(t, e, 28.1, 77.2)
	e.SetOnline(ctx, true)

	// release не закрывается: транспорт висит, пока не истечёт syncTimeout.
	done := make(chan error, 1)
	go func() { done <- e.SyncNow(ctx) }()
	<-rc.started

	select {
	case err := <-done:
		require.ErrorIs(t, err, context.DeadlineExceeded)
	case <-time.After(time.Second):
		t.Fatal("sync attempt not bounded by timeout")
	}

	// Висящий транспорт не пиннит guard и не трогает батч.
	stats, err := e.Stats(ctx)
	require.NoError(t, err)
	require.False(t, stats.SyncInFlight)
	require.Equal(t, models.StoreStats{Total: 1, Synced: 0, Pending: 1}, stats.Store)
	require.Equal(t, int64(1), stats.TotalSyncErrors)

	n, err := st.CountOutbox(ctx)
	require.NoError(t, err)
	require.Equal(t, int64(1), n)
}

func TestEngine_StartStop_IdempotentAndPersisted(t *testing.T) {
	rc := fake.New()
	e, st := newTestEngine(t, rc, allowAll{})
	ctx := context.Background()

	require.NoError(t, e.Start(ctx))
	require.NoError(t, e.Start(ctx))

	state, err := st.LoadState(ctx)
	require.NoError(t, err)
	require.True(t, state.TrackingEnabled)

	require.NoError(t, e.Stop(ctx))
	require.NoError(t, e.Stop(ctx))

	state, err = st.LoadState(ctx)
	require.NoError(t, err)
	require.False(t, state.TrackingEnabled)
}

func TestEngine_StartDenied(t *testing.T) {
	rc := fake.New()
	e, st := newTestEngine(t, rc, denyAll{})
	ctx := context.Background()

	err := e.Start(ctx)
	require.ErrorIs(t, err, ErrPermissionDenied)

	state, err := st.LoadState(ctx)
	require.NoError(t, err)
	require.False(t, state.TrackingEnabled)
}

func TestEngine_NotReadyBeforeAttach(t *testing.T) {
	e := New(fake.New(), allowAll{})
	ctx := context.Background()

	_, err := e.OnSample(ctx, models.Fix{Latitude: 1, Longitude: 2})
	require.ErrorIs(t, err, ErrEngineNotReady)
	require.ErrorIs(t, e.Start(ctx), ErrEngineNotReady)
	require.ErrorIs(t, e.SyncNow(ctx), ErrEngineNotReady)
	require.ErrorIs(t, e.PurgeAll(ctx), ErrEngineNotReady)
}

func TestEngine_OfflineTransitionIsInert(t *testing.T) {
	rc := fake.New()
	e, _ := newTestEngine(t, rc, allowAll{})
	ctx := context.Background()

	insertFix(t, e, 28.1, 77.2)

	e.SetOnline(ctx, true)
	require.True(t, e.Online())
	e.SetOnline(ctx, false)
	require.False(t, e.Online())

	require.NoError(t, e.SyncNow(ctx))
	require.Empty(t, rc.Batches())
}

func TestEngine_PurgeAll(t *testing.T) {
	rc := fake.New()
	e, st := newTestEngine(t, rc, allowAll{})
	ctx := context.Background()

	insertFix(t, e, 28.1, 77.2)
	insertFix(t, e, 28.2, 77.3)

	require.NoError(t, e.PurgeAll(ctx))

	stats, err := e.Stats(ctx)
	require.NoError(t, err)
	require.Equal(t, models.StoreStats{}, stats.Store)

	n, err := st.CountOutbox(ctx)
	require.NoError(t, err)
	require.Zero(t, n)
}

func TestEngine_Run_PeriodicWakeSyncs(t *testing.T) {
	rc := fake.New()
	e, _ := newTestEngine(t, rc, allowAll{})
	e.WithSettings(5*time.Millisecond, 100, time.Second)
	ctx := context.Background()

	insertFix(t, e, 28.1, 77.2)

	// Движок стартует offline: периодический wake сам спрашивает Probe и
	// поднимает online.
	runCtx, cancel := context.WithCancel(ctx)
	done := make(chan error, 1)
	go func() { done <- e.Run(runCtx) }()

	require.Eventually(t, func() bool {
		return len(rc.Batches()) >= 1
	}, time.Second, 5*time.Millisecond)

	cancel()
	require.ErrorIs(t, <-done, context.Canceled)

	stats, err := e.Stats(ctx)
	require.NoError(t, err)
	require.Equal(t, int64(1), stats.Store.Synced)
}

func TestEngine_PairingInvariant(t *testing.T) {
	rc := fake.New()
	e, st := newTestEngine(t, rc, allowAll{})
	ctx := context.Background()

	check := func() {
		stats, err := e.Stats(ctx)
		require.NoError(t, err)
		n, err := st.CountOutbox(ctx)
		require.NoError(t, err)
		require.Equal(t, stats.Store.Pending, n, "pending samples must pair 1:1 with live outbox entries")
	}

	check()
	insertFix(t, e, 28.1, 77.2)
	check()
	insertFix(t, e, 28.2, 77.3)
	check()

	_, err := e.OnSample(ctx, models.Fix{Latitude: 200, Longitude: 0})
	require.Error(t, err)
	check()

	e.SetOnline(ctx, true)
	rc.FailWith(errors.New("down"))
	_ = e.SyncNow(ctx)
	check()

	rc.FailWith(nil)
	require.NoError(t, e.SyncNow(ctx))
	check()
}
