package main

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/BearBump/GeoPulse/internal/models"
	"github.com/BearBump/GeoPulse/internal/services/engine"
	"github.com/go-chi/chi/v5"
	"github.com/pkg/errors"
)

// diagStore — диагностические ручки, которые есть у sqlite-стора, но не нужны
// самому движку.
type diagStore interface {
	ListOutbox(ctx context.Context, limit int) ([]*models.OutboxEntry, error)
	ListAudit(ctx context.Context, limit int) ([]*models.AuditEntry, error)
}

type agentHTTPOpts struct {
	httpAddr string
	onListen func(httpAddr string)

	engine *engine.Engine
	store  engine.Store
}

// Control API агента: один-к-одному операции ядра (start, stop, sync-now,
// test-insert, purge-all, stats) плюс connectivity-хук и диагностика.
func runAgentHTTPServer(ctx context.Context, opts agentHTTPOpts) error {
	if opts.httpAddr == "" {
		opts.httpAddr = ":8081"
	}

	lis, err := net.Listen("tcp", opts.httpAddr)
	if err != nil {
		return err
	}
	if opts.onListen != nil {
		opts.onListen(lis.Addr().String())
	}

	r := chi.NewRouter()

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	r.Get("/readyz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"ready"}`))
	})

	r.Get("/stats", func(w http.ResponseWriter, r *http.Request) {
		st, err := opts.engine.Stats(r.Context())
		if err != nil {
			writeError(w, http.StatusInternalServerError, err)
			return
		}
		writeJSON(w, http.StatusOK, st)
	})

	r.Post("/tracking/start", func(w http.ResponseWriter, r *http.Request) {
		if err := opts.engine.Start(r.Context()); err != nil {
			writeError(w, statusForEngineErr(err), err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"tracking": true})
	})

	r.Post("/tracking/stop", func(w http.ResponseWriter, r *http.Request) {
		if err := opts.engine.Stop(r.Context()); err != nil {
			writeError(w, statusForEngineErr(err), err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"tracking": false})
	})

	r.Post("/sync", func(w http.ResponseWriter, r *http.Request) {
		if err := opts.engine.SyncNow(r.Context()); err != nil {
			writeError(w, statusForEngineErr(err), err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"status": "ok"})
	})

	r.Post("/connectivity", func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Online bool `json:"online"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			writeError(w, http.StatusBadRequest, errors.Wrap(err, "decode body"))
			return
		}
		opts.engine.SetOnline(r.Context(), body.Online)
		writeJSON(w, http.StatusOK, map[string]any{"online": body.Online})
	})

	r.Post("/samples", func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Latitude   float64   `json:"latitude"`
			Longitude  float64   `json:"longitude"`
			Accuracy   *float64  `json:"accuracy,omitempty"`
			Altitude   *float64  `json:"altitude,omitempty"`
			Speed      *float64  `json:"speed,omitempty"`
			Heading    *float64  `json:"heading,omitempty"`
			CapturedAt time.Time `json:"captured_at"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			writeError(w, http.StatusBadRequest, errors.Wrap(err, "decode body"))
			return
		}
		m, err := opts.engine.OnSample(r.Context(), models.Fix{
			Latitude:   body.Latitude,
			Longitude:  body.Longitude,
			Accuracy:   body.Accuracy,
			Altitude:   body.Altitude,
			Speed:      body.Speed,
			Heading:    body.Heading,
			CapturedAt: body.CapturedAt,
		})
		if err != nil {
			writeError(w, statusForEngineErr(err), err)
			return
		}
		writeJSON(w, http.StatusCreated, map[string]any{"id": m.ID})
	})

	r.Get("/samples/pending", func(w http.ResponseWriter, r *http.Request) {
		limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
		out, err := opts.store.ListPending(r.Context(), limit)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err)
			return
		}
		writeJSON(w, http.StatusOK, out)
	})

	r.Get("/outbox", func(w http.ResponseWriter, r *http.Request) {
		diag, ok := opts.store.(diagStore)
		if !ok {
			writeError(w, http.StatusNotImplemented, errors.New("store has no outbox listing"))
			return
		}
		limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
		out, err := diag.ListOutbox(r.Context(), limit)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err)
			return
		}
		writeJSON(w, http.StatusOK, out)
	})

	r.Get("/audit", func(w http.ResponseWriter, r *http.Request) {
		diag, ok := opts.store.(diagStore)
		if !ok {
			writeError(w, http.StatusNotImplemented, errors.New("store has no audit listing"))
			return
		}
		limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
		out, err := diag.ListAudit(r.Context(), limit)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err)
			return
		}
		writeJSON(w, http.StatusOK, out)
	})

	// Необратимо. UI обязан спросить подтверждение; API требует confirm=yes.
	r.Delete("/purge", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("confirm") != "yes" {
			writeError(w, http.StatusBadRequest, errors.New("purge requires confirm=yes"))
			return
		}
		if err := opts.engine.PurgeAll(r.Context()); err != nil {
			writeError(w, statusForEngineErr(err), err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"status": "purged"})
	})

	srv := &http.Server{Handler: r}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	return srv.Serve(lis)
}

func statusForEngineErr(err error) int {
	var vErr *models.ValidationError
	switch {
	case errors.Is(err, engine.ErrPermissionDenied):
		return http.StatusForbidden
	case errors.Is(err, engine.ErrEngineNotReady):
		return http.StatusServiceUnavailable
	case errors.As(err, &vErr):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}
