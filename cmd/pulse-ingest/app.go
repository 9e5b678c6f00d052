package main

import (
	"context"
	"fmt"
	"time"

	"github.com/BearBump/GeoPulse/config"
	"github.com/BearBump/GeoPulse/internal/broker/kafka"
	"github.com/BearBump/GeoPulse/internal/cache/rediscache"
	"github.com/BearBump/GeoPulse/internal/services/ingest"
	"github.com/BearBump/GeoPulse/internal/storage/pgingest"
)

type ingestFactories struct {
	newStorage     func(cfg *config.Config) (repo ingest.Repository, closeFn func(), err error)
	newProducer    func(cfg *config.Config) ingest.Producer
	newRateLimiter func(cfg *config.Config) ingest.RateLimiter
	newCache       func(cfg *config.Config) ingest.BytesCache
}

func defaultIngestFactories() ingestFactories {
	return ingestFactories{
		newStorage: func(cfg *config.Config) (ingest.Repository, func(), error) {
			sslMode := cfg.Database.SSLMode
			if sslMode == "" {
				sslMode = "disable"
			}
			connString := fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
				cfg.Database.Username, cfg.Database.Password, cfg.Database.Host, cfg.Database.Port, cfg.Database.DBName, sslMode)
			st, err := pgingest.New(connString)
			if err != nil {
				return nil, nil, err
			}
			return st, st.Close, nil
		},
		newProducer: func(cfg *config.Config) ingest.Producer {
			brokers := []string{fmt.Sprintf("%s:%d", cfg.Kafka.Host, cfg.Kafka.Port)}
			return kafka.NewProducer(brokers)
		},
		newRateLimiter: func(cfg *config.Config) ingest.RateLimiter {
			redisAddr := fmt.Sprintf("%s:%d", cfg.Redis.Host, cfg.Redis.Port)
			return rediscache.NewRateLimiter(redisAddr)
		},
		newCache: func(cfg *config.Config) ingest.BytesCache {
			redisAddr := fmt.Sprintf("%s:%d", cfg.Redis.Host, cfg.Redis.Port)
			return rediscache.New(redisAddr)
		},
	}
}

func RunIngest(ctx context.Context, cfg *config.Config, f ingestFactories) error {
	topic := cfg.Kafka.LocationsReceivedTopicName
	if topic == "" {
		topic = "locations.received"
	}
	httpAddr := cfg.Ingest.HTTPAddr
	if httpAddr == "" {
		httpAddr = ":8080"
	}
	latestTTL := time.Duration(cfg.Ingest.LatestTTLSeconds) * time.Second
	if latestTTL <= 0 {
		latestTTL = 10 * time.Minute
	}
	ratePerMin := int64(cfg.Ingest.RateLimitPerDevicePerMin)
	if ratePerMin <= 0 {
		ratePerMin = 600
	}

	repo, closeFn, err := f.newStorage(cfg)
	if err != nil {
		return err
	}
	if closeFn != nil {
		defer closeFn()
	}

	svc := ingest.New(repo, f.newProducer(cfg), f.newRateLimiter(cfg), f.newCache(cfg), topic).
		WithSettings(latestTTL, ratePerMin)

	opts := ingestHTTPOpts{
		httpAddr: httpAddr,
		apiKey:   cfg.Ingest.APIKey,
		svc:      svc,
	}
	if p, ok := repo.(interface{ Ping(ctx context.Context) error }); ok {
		opts.ready = p.Ping
	}

	return runIngestHTTPServer(ctx, opts)
}
