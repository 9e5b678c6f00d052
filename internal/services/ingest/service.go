package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/BearBump/GeoPulse/internal/broker/messages"
	"github.com/BearBump/GeoPulse/internal/models"
	"github.com/pkg/errors"
)

// ErrRateLimited: устройство превысило лимит сэмплов в минуту. Агент повторит
// батч на следующем триггере, это штатный ответ, не авария.
var ErrRateLimited = errors.New("ingest: device rate limited")

type Repository interface {
	InsertBatch(ctx context.Context, deviceID string, items []models.LocationInput) (int, error)
	ListByDevice(ctx context.Context, deviceID string, limit, offset int) ([]*models.Location, error)
	LatestByDevice(ctx context.Context, deviceID string) (*models.Location, error)
}

type Producer interface {
	Publish(ctx context.Context, topic string, key, value []byte) error
}

type RateLimiter interface {
	AllowN(ctx context.Context, key string, n, limit int64, window time.Duration) (bool, int64, error)
}

type BytesCache interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
}

type Service struct {
	repo     Repository
	producer Producer
	rl       RateLimiter
	cache    BytesCache

	topic      string
	latestTTL  time.Duration
	ratePerMin int64
}

func New(repo Repository, producer Producer, rl RateLimiter, cache BytesCache, topic string) *Service {
	return &Service{
		repo:       repo,
		producer:   producer,
		rl:         rl,
		cache:      cache,
		topic:      topic,
		latestTTL:  10 * time.Minute,
		ratePerMin: 600,
	}
}

func (s *Service) WithSettings(latestTTL time.Duration, ratePerMin int64) *Service {
	if latestTTL > 0 {
		s.latestTTL = latestTTL
	}
	if ratePerMin > 0 {
		s.ratePerMin = ratePerMin
	}
	return s
}

// AcceptBatch принимает батч агента целиком: либо весь батч закоммичен, либо
// ошибка — частичных приёмов нет, агент маркирует локально только после 2xx.
func (s *Service) AcceptBatch(ctx context.Context, deviceID string, items []models.LocationInput) (int, error) {
	if deviceID == "" {
		return 0, errors.New("device_id is required")
	}
	if len(items) == 0 {
		return 0, errors.New("samples is empty")
	}
	if len(items) > 1_000 {
		return 0, errors.New("too many samples (max 1000)")
	}
	for _, it := range items {
		if err := models.ValidateFix(models.Fix{Latitude: it.Latitude, Longitude: it.Longitude}); err != nil {
			return 0, err
		}
	}

	if s.rl != nil && s.ratePerMin > 0 {
		minuteKey := fmt.Sprintf("rl:ingest:%s:%s", deviceID, time.Now().UTC().Format("200601021504"))
		allowed, n, err := s.rl.AllowN(ctx, minuteKey, int64(len(items)), s.ratePerMin, 70*time.Second)
		if err != nil {
			// Редис лёг — принимаем без лимита, лучше чем терять данные.
			slog.Warn("rate limiter unavailable", "error", err.Error())
		} else if !allowed {
			slog.Warn("rate limit exceeded", "device_id", deviceID, "count", n)
			return 0, ErrRateLimited
		}
	}

	accepted, err := s.repo.InsertBatch(ctx, deviceID, items)
	if err != nil {
		return 0, err
	}

	s.publishReceived(ctx, deviceID, items, accepted)
	s.cacheLatest(ctx, deviceID, items)

	return accepted, nil
}

func (s *Service) ListLocations(ctx context.Context, deviceID string, limit, offset int) ([]*models.Location, error) {
	if deviceID == "" {
		return nil, errors.New("device_id is required")
	}
	return s.repo.ListByDevice(ctx, deviceID, limit, offset)
}

// LatestPosition отдаёт последнюю позицию устройства: сперва кэш, затем БД.
func (s *Service) LatestPosition(ctx context.Context, deviceID string) (*models.Location, error) {
	if deviceID == "" {
		return nil, errors.New("device_id is required")
	}

	if s.cache != nil && s.latestTTL > 0 {
		if b, ok, err := s.cache.Get(ctx, latestKey(deviceID)); err == nil && ok {
			var l models.Location
			if json.Unmarshal(b, &l) == nil {
				return &l, nil
			}
		}
	}

	l, err := s.repo.LatestByDevice(ctx, deviceID)
	if err != nil {
		return nil, err
	}
	if l != nil && s.cache != nil && s.latestTTL > 0 {
		if b, err := json.Marshal(l); err == nil {
			_ = s.cache.Set(ctx, latestKey(deviceID), b, s.latestTTL)
		}
	}
	return l, nil
}

// Публикация в Kafka — best-effort: батч уже в БД, консьюмеры топика
// советующие, не источник истины.
func (s *Service) publishReceived(ctx context.Context, deviceID string, items []models.LocationInput, accepted int) {
	if s.producer == nil || s.topic == "" {
		return
	}

	msg := messages.LocationsReceived{
		DeviceID:   deviceID,
		Count:      len(items),
		Accepted:   accepted,
		ReceivedAt: time.Now().UTC(),
	}
	for _, it := range items {
		msg.Locations = append(msg.Locations, messages.Location{
			SourceID:   it.SourceID,
			Latitude:   it.Latitude,
			Longitude:  it.Longitude,
			Accuracy:   it.Accuracy,
			Altitude:   it.Altitude,
			Speed:      it.Speed,
			Heading:    it.Heading,
			CapturedAt: it.CapturedAt,
		})
	}

	b, err := json.Marshal(msg)
	if err != nil {
		slog.Error("marshal kafka msg", "error", err.Error())
		return
	}
	if err := s.producer.Publish(ctx, s.topic, []byte(deviceID), b); err != nil {
		slog.Error("publish locations.received", "device_id", deviceID, "error", err.Error())
	}
}

func (s *Service) cacheLatest(ctx context.Context, deviceID string, items []models.LocationInput) {
	if s.cache == nil || s.latestTTL <= 0 || len(items) == 0 {
		return
	}

	last := items[0]
	for _, it := range items[1:] {
		if it.CapturedAt.After(last.CapturedAt) {
			last = it
		}
	}

	l := models.Location{
		DeviceID:   deviceID,
		SourceID:   last.SourceID,
		Latitude:   last.Latitude,
		Longitude:  last.Longitude,
		Accuracy:   last.Accuracy,
		Altitude:   last.Altitude,
		Speed:      last.Speed,
		Heading:    last.Heading,
		CapturedAt: last.CapturedAt,
		ReceivedAt: time.Now().UTC(),
	}
	if b, err := json.Marshal(l); err == nil {
		_ = s.cache.Set(ctx, latestKey(deviceID), b, s.latestTTL)
	}
}

func latestKey(deviceID string) string {
	return fmt.Sprintf("device:%s:latest", deviceID)
}
