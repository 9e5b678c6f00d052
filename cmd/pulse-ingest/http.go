package main

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/BearBump/GeoPulse/internal/models"
	"github.com/BearBump/GeoPulse/internal/services/ingest"
	"github.com/go-chi/chi/v5"
	"github.com/pkg/errors"
)

type ingestHTTPOpts struct {
	httpAddr string
	apiKey   string
	onListen func(httpAddr string)

	svc *ingest.Service

	// ready проверяет зависимости (БД); nil — всегда ready.
	ready func(ctx context.Context) error
}

type batchRequest struct {
	DeviceID string        `json:"device_id"`
	Samples  []batchSample `json:"samples"`
}

type batchSample struct {
	SourceID   uint64    `json:"source_id"`
	Latitude   float64   `json:"latitude"`
	Longitude  float64   `json:"longitude"`
	Accuracy   *float64  `json:"accuracy,omitempty"`
	Altitude   *float64  `json:"altitude,omitempty"`
	Speed      *float64  `json:"speed,omitempty"`
	Heading    *float64  `json:"heading,omitempty"`
	CapturedAt time.Time `json:"captured_at"`
}

func runIngestHTTPServer(ctx context.Context, opts ingestHTTPOpts) error {
	if opts.httpAddr == "" {
		opts.httpAddr = ":8080"
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
		if opts.ready != nil {
			if err := opts.ready(r.Context()); err != nil {
				writeError(w, http.StatusServiceUnavailable, err)
				return
			}
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"ready"}`))
	})

	// Контракт транспорта агента: батч принят целиком (2xx) или нет. Код
	// ответа — единственное, на что агент опирается при маркировке.
	r.Post("/v1/locations:batch", func(w http.ResponseWriter, r *http.Request) {
		if opts.apiKey != "" && r.Header.Get("X-Api-Key") != opts.apiKey {
			writeError(w, http.StatusUnauthorized, errors.New("bad api key"))
			return
		}

		var body batchRequest
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			writeError(w, http.StatusBadRequest, errors.Wrap(err, "decode body"))
			return
		}

		items := make([]models.LocationInput, 0, len(body.Samples))
		for _, s := range body.Samples {
			items = append(items, models.LocationInput{
				SourceID:   s.SourceID,
				Latitude:   s.Latitude,
				Longitude:  s.Longitude,
				Accuracy:   s.Accuracy,
				Altitude:   s.Altitude,
				Speed:      s.Speed,
				Heading:    s.Heading,
				CapturedAt: s.CapturedAt,
			})
		}

		accepted, err := opts.svc.AcceptBatch(r.Context(), body.DeviceID, items)
		if err != nil {
			writeError(w, statusForIngestErr(err), err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "accepted": accepted})
	})

	r.Get("/v1/devices/{deviceID}/locations", func(w http.ResponseWriter, r *http.Request) {
		limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
		offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))
		out, err := opts.svc.ListLocations(r.Context(), chi.URLParam(r, "deviceID"), limit, offset)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err)
			return
		}
		writeJSON(w, http.StatusOK, out)
	})

	r.Get("/v1/devices/{deviceID}/latest", func(w http.ResponseWriter, r *http.Request) {
		l, err := opts.svc.LatestPosition(r.Context(), chi.URLParam(r, "deviceID"))
		if err != nil {
			writeError(w, http.StatusInternalServerError, err)
			return
		}
		if l == nil {
			writeError(w, http.StatusNotFound, errors.New("no locations for device"))
			return
		}
		writeJSON(w, http.StatusOK, l)
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

func statusForIngestErr(err error) int {
	var vErr *models.ValidationError
	switch {
	case errors.Is(err, ingest.ErrRateLimited):
		return http.StatusTooManyRequests
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
