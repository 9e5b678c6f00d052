package engine

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/BearBump/GeoPulse/internal/models"
	"github.com/pkg/errors"
)

// Run крутит периодический wake и слушает триггеры (connectivity, ручной
// запрос). Периодический wake сам перепроверяет связность через Probe.
func (e *Engine) Run(ctx context.Context) error {
	t := time.NewTicker(e.wakeInterval)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C:
			if e.remote != nil {
				e.SetOnline(ctx, e.remote.Probe(ctx))
			}
			_ = e.SyncNow(ctx)
		case <-e.triggerCh:
			_ = e.SyncNow(ctx)
		}
	}
}

// SyncNow выполняет одну попытку синка. Guard: online && не идёт другой синк.
// Непрошедший guard — no-op, не ошибка: триггеры не копятся. Батч уходит
// одним вызовом транспорта; маркировка — всё или ничего.
func (e *Engine) SyncNow(ctx context.Context) error {
	st, deviceID := e.getStore()
	if st == nil {
		return ErrEngineNotReady
	}
	if !e.online.Load() {
		return nil
	}

	// Единственная точка сериализации: check-and-set одним атомарным шагом.
	if !e.syncInFlight.CompareAndSwap(false, true) {
		return nil
	}
	defer e.syncInFlight.Store(false)

	batch, err := st.ListPending(ctx, e.batchSize)
	if err != nil {
		e.setLastError(err.Error())
		_ = st.AppendAudit(ctx, models.AuditLevelError, "sync failed: list pending: "+err.Error())
		return errors.Wrap(err, "list pending")
	}
	if len(batch) == 0 {
		_ = st.AppendAudit(ctx, models.AuditLevelInfo, "no data to sync")
		return nil
	}

	sctx, cancel := context.WithTimeout(ctx, e.syncTimeout)
	defer cancel()

	if err := e.remote.SyncBatch(sctx, deviceID, batch); err != nil {
		// Весь батч остаётся pending и будет повторён verbatim.
		e.totalSyncErrors.Add(1)
		e.setLastError(err.Error())
		_ = st.AppendAudit(ctx, models.AuditLevelError,
			fmt.Sprintf("sync failed: %d samples: %s", len(batch), err.Error()))
		slog.Error("sync batch", "count", len(batch), "error", err.Error())
		return err
	}

	ids := make([]uint64, 0, len(batch))
	for _, m := range batch {
		ids = append(ids, m.ID)
	}
	if err := st.MarkSynced(ctx, ids); err != nil {
		// Сервер батч принял, локально пометить не смогли: сэмплы остаются
		// pending, повтор безопасен — сервер дедуплицирует по source_id.
		e.totalSyncErrors.Add(1)
		e.setLastError(err.Error())
		_ = st.AppendAudit(ctx, models.AuditLevelError, "sync failed: mark synced: "+err.Error())
		return errors.Wrap(err, "mark synced")
	}

	e.totalSynced.Add(int64(len(ids)))
	e.lastSyncUnixNano.Store(time.Now().UTC().UnixNano())
	_ = st.AppendAudit(ctx, models.AuditLevelInfo, fmt.Sprintf("synced %d samples", len(ids)))
	slog.Info("sync ok", "count", len(ids))
	return nil
}
