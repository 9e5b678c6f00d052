package main

import (
	"context"
	"time"

	"github.com/BearBump/GeoPulse/config"
	"github.com/BearBump/GeoPulse/internal/services/engine"
	"github.com/BearBump/GeoPulse/internal/storage/sqlitestore"
	"github.com/BearBump/GeoPulse/internal/transport/remote"
	"github.com/BearBump/GeoPulse/internal/transport/remote/fake"
	"github.com/BearBump/GeoPulse/internal/transport/remote/httpsync"
)

type agentFactories struct {
	newStore      func(cfg *config.Config) (store engine.Store, closeFn func(), err error)
	newRemote     func(cfg *config.Config) remote.Client
	newAuthorizer func(cfg *config.Config) engine.Authorizer
}

// staticAuthorizer подменяет OS-уровневый permission prompt: агент знает
// только итоговое да/нет.
type staticAuthorizer struct {
	allowed bool
}

func (a staticAuthorizer) Authorized(_ context.Context) bool { return a.allowed }

func defaultAgentFactories() agentFactories {
	return agentFactories{
		newStore: func(cfg *config.Config) (engine.Store, func(), error) {
			path := cfg.Agent.StorePath
			if path == "" {
				path = "geopulse.db"
			}
			st, err := sqlitestore.New(path)
			if err != nil {
				return nil, nil, err
			}
			return st, st.Close, nil
		},
		newRemote: func(cfg *config.Config) remote.Client {
			// Без ingest_base_url — локальный fake, как с carrier-заглушкой
			// в демо-режиме.
			if cfg.Agent.IngestBaseURL == "" {
				return fake.New()
			}
			timeout := time.Duration(cfg.Agent.SyncTimeoutSeconds) * time.Second
			return httpsync.New(cfg.Agent.IngestBaseURL, cfg.Agent.IngestAPIKey, timeout)
		},
		newAuthorizer: func(cfg *config.Config) engine.Authorizer {
			return staticAuthorizer{allowed: cfg.Agent.AssumeAuthorized}
		},
	}
}

func RunAgent(ctx context.Context, cfg *config.Config, f agentFactories) error {
	wake := time.Duration(cfg.Agent.SyncWakeIntervalSeconds) * time.Second
	if wake <= 0 {
		wake = 15 * time.Minute
	}
	batchSize := cfg.Agent.SyncBatchSize
	if batchSize <= 0 {
		batchSize = 100
	}
	timeout := time.Duration(cfg.Agent.SyncTimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	httpAddr := cfg.Agent.HTTPAddr
	if httpAddr == "" {
		httpAddr = ":8081"
	}

	store, closeFn, err := f.newStore(cfg)
	if err != nil {
		return err
	}
	if closeFn != nil {
		defer closeFn()
	}

	eng := engine.New(f.newRemote(cfg), f.newAuthorizer(cfg)).
		WithSettings(wake, batchSize, timeout)
	if err := eng.AttachStore(ctx, store); err != nil {
		return err
	}

	httpErr := make(chan error, 1)
	go func() {
		httpErr <- runAgentHTTPServer(ctx, agentHTTPOpts{
			httpAddr: httpAddr,
			engine:   eng,
			store:    store,
		})
	}()

	engErr := make(chan error, 1)
	go func() {
		engErr <- eng.Run(ctx)
	}()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case err := <-httpErr:
		return err
	case err := <-engErr:
		return err
	}
}
