package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/BearBump/GeoPulse/internal/models"
	"github.com/BearBump/GeoPulse/internal/transport/remote"
	"github.com/pkg/errors"
)

var (
	// ErrEngineNotReady: локальная база ещё не подключена. Вызывающий должен
	// повторить после AttachStore, молча терять fix нельзя.
	ErrEngineNotReady = errors.New("engine: store not attached")

	// ErrPermissionDenied: источник локаций не авторизован.
	ErrPermissionDenied = errors.New("engine: location source not authorized")
)

type Store interface {
	InsertPending(ctx context.Context, fix models.Fix) (*models.Sample, error)
	ListPending(ctx context.Context, limit int) ([]*models.Sample, error)
	MarkSynced(ctx context.Context, ids []uint64) error
	Stats(ctx context.Context) (models.StoreStats, error)
	PurgeAll(ctx context.Context) error
	AppendAudit(ctx context.Context, level, message string) error
	LoadState(ctx context.Context) (models.EngineState, error)
	SetTrackingEnabled(ctx context.Context, enabled bool) error
}

// Authorizer отвечает, разрешён ли источник локаций (permission prompt — вне
// движка, здесь только результат).
type Authorizer interface {
	Authorized(ctx context.Context) bool
}

// Engine владеет локальным стором, пайплайном захвата и координатором
// синхронизации. Единственная точка сериализации sync-попыток — syncInFlight.
type Engine struct {
	remote remote.Client
	auth   Authorizer

	mu       sync.RWMutex
	store    Store
	deviceID string

	wakeInterval time.Duration
	batchSize    int
	syncTimeout  time.Duration

	trackingEnabled atomic.Bool
	online          atomic.Bool
	syncInFlight    atomic.Bool

	triggerCh chan struct{}

	startedAtUnixNano   int64
	lastSyncUnixNano    atomic.Int64
	lastTriggerUnixNano atomic.Int64
	totalCaptured       atomic.Int64
	totalRejected       atomic.Int64
	totalSynced         atomic.Int64
	totalSyncErrors     atomic.Int64
	lastErrorMu         sync.Mutex
	lastError           string
}

func New(rc remote.Client, auth Authorizer) *Engine {
	return &Engine{
		remote:            rc,
		auth:              auth,
		wakeInterval:      15 * time.Minute,
		batchSize:         100,
		syncTimeout:       30 * time.Second,
		triggerCh:         make(chan struct{}, 1),
		startedAtUnixNano: time.Now().UTC().UnixNano(),
	}
}

func (e *Engine) WithSettings(wakeInterval time.Duration, batchSize int, syncTimeout time.Duration) *Engine {
	if wakeInterval > 0 {
		e.wakeInterval = wakeInterval
	}
	if batchSize > 0 {
		e.batchSize = batchSize
	}
	if syncTimeout > 0 {
		e.syncTimeout = syncTimeout
	}
	return e
}

// AttachStore подключает локальную базу и поднимает персистентное состояние.
// До этого момента OnSample и прочие операции возвращают ErrEngineNotReady.
func (e *Engine) AttachStore(ctx context.Context, st Store) error {
	state, err := st.LoadState(ctx)
	if err != nil {
		return errors.Wrap(err, "load engine state")
	}

	e.mu.Lock()
	e.store = st
	e.deviceID = state.DeviceID
	e.mu.Unlock()

	e.trackingEnabled.Store(state.TrackingEnabled)
	// online и syncInFlight — транзиентные, на старте всегда false.
	return nil
}

func (e *Engine) getStore() (Store, string) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.store, e.deviceID
}

// OnSample — вход пайплайна захвата: валидация, атомарная запись
// сэмпл+outbox, строка в журнал. Никогда не ждёт завершения синка.
func (e *Engine) OnSample(ctx context.Context, fix models.Fix) (*models.Sample, error) {
	st, _ := e.getStore()
	if st == nil {
		return nil, ErrEngineNotReady
	}

	m, err := st.InsertPending(ctx, fix)
	if err != nil {
		var vErr *models.ValidationError
		if errors.As(err, &vErr) {
			e.totalRejected.Add(1)
			_ = st.AppendAudit(ctx, models.AuditLevelError, "sample rejected: "+vErr.Error())
			return nil, err
		}
		return nil, errors.Wrap(err, "persist sample")
	}

	e.totalCaptured.Add(1)
	_ = st.AppendAudit(ctx, models.AuditLevelInfo, fmt.Sprintf("captured sample id=%d", m.ID))
	return m, nil
}

// Start включает трекинг. Идемпотентен: повторный вызов — безопасный no-op,
// который всё равно персистит флаг и пишет строку в журнал.
func (e *Engine) Start(ctx context.Context) error {
	st, _ := e.getStore()
	if st == nil {
		return ErrEngineNotReady
	}
	if e.auth != nil && !e.auth.Authorized(ctx) {
		return ErrPermissionDenied
	}

	if err := st.SetTrackingEnabled(ctx, true); err != nil {
		return err
	}
	e.trackingEnabled.Store(true)
	_ = st.AppendAudit(ctx, models.AuditLevelInfo, "tracking started")
	slog.Info("tracking started")
	return nil
}

func (e *Engine) Stop(ctx context.Context) error {
	st, _ := e.getStore()
	if st == nil {
		return ErrEngineNotReady
	}

	if err := st.SetTrackingEnabled(ctx, false); err != nil {
		return err
	}
	e.trackingEnabled.Store(false)
	_ = st.AppendAudit(ctx, models.AuditLevelInfo, "tracking stopped")
	slog.Info("tracking stopped")
	return nil
}

// SetOnline принимает переход connectivity-монитора. Переход в online —
// триггер синка, уход в offline фиксируется и больше ничего не делает.
func (e *Engine) SetOnline(ctx context.Context, online bool) {
	prev := e.online.Swap(online)
	if prev == online {
		return
	}

	if st, _ := e.getStore(); st != nil {
		msg := "connectivity offline"
		if online {
			msg = "connectivity online"
		}
		_ = st.AppendAudit(ctx, models.AuditLevelInfo, msg)
	}
	if online {
		e.Trigger()
	}
}

func (e *Engine) Online() bool {
	return e.online.Load()
}

// Trigger просит синк (best-effort, non-blocking). Если guard не пройдёт,
// триггер просто теряется: следующий успешный подберёт всё, что осталось.
func (e *Engine) Trigger() {
	e.lastTriggerUnixNano.Store(time.Now().UTC().UnixNano())
	select {
	case e.triggerCh <- struct{}{}:
	default:
	}
}

// PurgeAll — деструктивная операция: сэмплы, outbox и журнал. Подтверждение
// спрашивает внешний слой.
func (e *Engine) PurgeAll(ctx context.Context) error {
	st, _ := e.getStore()
	if st == nil {
		return ErrEngineNotReady
	}
	if err := st.PurgeAll(ctx); err != nil {
		return err
	}
	_ = st.AppendAudit(ctx, models.AuditLevelInfo, "purged all data")
	slog.Info("purged all data")
	return nil
}

type Stats struct {
	StartedAt       time.Time  `json:"startedAt"`
	TrackingEnabled bool       `json:"trackingEnabled"`
	Online          bool       `json:"online"`
	SyncInFlight    bool       `json:"syncInFlight"`
	DeviceID        string     `json:"deviceId,omitempty"`
	LastSyncAt      *time.Time `json:"lastSyncAt,omitempty"`
	LastTriggerAt   *time.Time `json:"lastTriggerAt,omitempty"`
	TotalCaptured   int64      `json:"totalCaptured"`
	TotalRejected   int64      `json:"totalRejected"`
	TotalSynced     int64      `json:"totalSynced"`
	TotalSyncErrors int64      `json:"totalSyncErrors"`
	LastError       string     `json:"lastError,omitempty"`

	Store models.StoreStats `json:"store"`
}

func (e *Engine) Stats(ctx context.Context) (Stats, error) {
	st := Stats{
		StartedAt:       time.Unix(0, e.startedAtUnixNano).UTC(),
		TrackingEnabled: e.trackingEnabled.Load(),
		Online:          e.online.Load(),
		SyncInFlight:    e.syncInFlight.Load(),
		TotalCaptured:   e.totalCaptured.Load(),
		TotalRejected:   e.totalRejected.Load(),
		TotalSynced:     e.totalSynced.Load(),
		TotalSyncErrors: e.totalSyncErrors.Load(),
	}
	if n := e.lastSyncUnixNano.Load(); n > 0 {
		t := time.Unix(0, n).UTC()
		st.LastSyncAt = &t
	}
	if n := e.lastTriggerUnixNano.Load(); n > 0 {
		t := time.Unix(0, n).UTC()
		st.LastTriggerAt = &t
	}
	e.lastErrorMu.Lock()
	st.LastError = e.lastError
	e.lastErrorMu.Unlock()

	store, deviceID := e.getStore()
	if store == nil {
		return st, nil
	}
	st.DeviceID = deviceID

	ss, err := store.Stats(ctx)
	if err != nil {
		return st, err
	}
	st.Store = ss
	return st, nil
}

func (e *Engine) setLastError(msg string) {
	e.lastErrorMu.Lock()
	e.lastError = msg
	e.lastErrorMu.Unlock()
}
